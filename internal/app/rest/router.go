package rest

import (
	"net/http"
	"time"

	"github.com/christmas-fire/squadup/internal/service/file"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth     *AuthHandler
	Messages *MessageHandler
	Groups   *GroupHandler
	Files    *FileHandler
	// Websocket serves the real-time channel at /ws when set.
	Websocket http.Handler
}

type RouterConfig struct {
	UploadDir string
	ClientURL string
	Log       *zap.Logger
}

func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", health)

	mux.HandleFunc("POST /api/auth/register", h.Auth.Register)
	mux.HandleFunc("POST /api/auth/verify-otp", h.Auth.VerifyOTP)
	mux.HandleFunc("POST /api/auth/login", h.Auth.Login)

	mux.HandleFunc("POST /api/group/create", h.Groups.Create)
	mux.HandleFunc("POST /api/group/invite", h.Groups.Invite)
	mux.HandleFunc("GET /api/group/accept/{token}", h.Groups.Accept)
	mux.HandleFunc("GET /api/group/user/{userId}", h.Groups.ListForUser)
	mux.HandleFunc("GET /api/group/{groupId}", h.Groups.Details)

	mux.HandleFunc("GET /messages/group/{groupId}", h.Messages.ListByGroup)
	mux.HandleFunc("POST /messages/send", h.Messages.Send)
	mux.HandleFunc("POST /messages/poll", h.Messages.CreatePoll)
	mux.HandleFunc("GET /messages/{id}", h.Messages.Get)
	mux.HandleFunc("PUT /messages/{id}/delivered", h.Messages.Delivered)
	mux.HandleFunc("PUT /messages/{id}/read", h.Messages.Read)
	mux.HandleFunc("PUT /messages/{id}/vote", h.Messages.Vote)

	mux.HandleFunc("POST /api/files/upload", h.Files.Upload)
	mux.HandleFunc("GET /api/files/group/{groupId}", h.Files.ListByGroup)
	mux.HandleFunc("GET /api/files/download/{id}", h.Files.Download)
	mux.Handle("GET "+file.URLPrefix, http.StripPrefix(file.URLPrefix, http.FileServer(http.Dir(cfg.UploadDir))))

	if h.Websocket != nil {
		mux.Handle("/ws", h.Websocket)
	}

	return withLogging(cfg.Log, withCORS(cfg.ClientURL, mux))
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{true, "SquadUp backend is running"})
}

func withCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if origin != "*" {
			header.Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging leaves /ws untouched so the upgrader can hijack the connection.
func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	log = log.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
