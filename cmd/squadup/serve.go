package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/christmas-fire/squadup/internal/app/rest"
	"github.com/christmas-fire/squadup/internal/config"
	"github.com/christmas-fire/squadup/internal/controller/grpc/interceptors"
	"github.com/christmas-fire/squadup/internal/controller/grpc/squadup"
	"github.com/christmas-fire/squadup/internal/controller/ws"
	"github.com/christmas-fire/squadup/internal/logger"
	"github.com/christmas-fire/squadup/internal/mailer"
	filerepo "github.com/christmas-fire/squadup/internal/repository/file"
	grouprepo "github.com/christmas-fire/squadup/internal/repository/group"
	messagerepo "github.com/christmas-fire/squadup/internal/repository/message"
	userrepo "github.com/christmas-fire/squadup/internal/repository/user"
	"github.com/christmas-fire/squadup/internal/service/auth"
	"github.com/christmas-fire/squadup/internal/service/file"
	"github.com/christmas-fire/squadup/internal/service/group"
	"github.com/christmas-fire/squadup/internal/service/message"
	"github.com/christmas-fire/squadup/internal/storage/postgres"
	redisstorage "github.com/christmas-fire/squadup/internal/storage/redis"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

var envFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, websocket and gRPC servers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file read before the environment")
}

type stores struct {
	users    userrepo.UserRepository
	groups   grouprepo.GroupRepository
	messages messagerepo.MessageRepository
	files    filerepo.FileRepository
}

// openStores picks Postgres when a database is configured and in-memory
// stores otherwise.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (stores, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is not set, using in-memory stores")
		return stores{
			users:    userrepo.NewMemoryRepository(),
			groups:   grouprepo.NewMemoryRepository(),
			messages: messagerepo.NewMemoryRepository(),
			files:    filerepo.NewMemoryRepository(),
		}, func() {}, nil
	}

	pool, err := postgres.NewStorage(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return stores{}, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return stores{
		users:    userrepo.NewPostgresRepository(pool),
		groups:   grouprepo.NewPostgresRepository(pool),
		messages: messagerepo.NewPostgresRepository(pool),
		files:    filerepo.NewPostgresRepository(pool),
	}, pool.Close, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	hub := ws.NewHub(log)
	var publisher message.EventPublisher = hub
	var relay *ws.Relay
	if cfg.RedisAddr != "" {
		redisClient, err := redisstorage.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		relay = ws.NewRelay(redisClient, hub, cfg.SendBuffer, log)
		publisher = relay
	}

	mail := mailer.NewLogMailer(log)
	authService := auth.NewAuthService(st.users, mail, cfg.JWTSecret, cfg.TokenTTL, log)
	groupService := group.NewGroupService(st.groups, st.users, mail, authService,
		cfg.JWTSecret, cfg.InviteTTL, cfg.ClientURL, log)
	messageService := message.NewMessageService(st.messages, publisher, log)
	fileService := file.NewFileService(st.files, groupService, publisher, cfg.UploadDir, cfg.MaxUploadBytes, log)

	router := rest.NewRouter(rest.Handlers{
		Auth:      rest.NewAuthHandler(authService, log),
		Messages:  rest.NewMessageHandler(messageService, log),
		Groups:    rest.NewGroupHandler(groupService, log),
		Files:     rest.NewFileHandler(fileService, log),
		Websocket: ws.NewServer(hub, messageService, publisher, groupService, cfg.JWTSecret, cfg.SendBuffer, log, ws.RequireAuth(cfg.WSRequireAuth)),
	}, rest.RouterConfig{UploadDir: cfg.UploadDir, ClientURL: cfg.ClientURL, Log: log})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnaryInterceptor(log.Named("grpc")),
			interceptors.AuthUnaryInterceptor(cfg.JWTSecret, squadup.PublicMethods),
		),
		grpc.ChainStreamInterceptor(
			interceptors.LoggingStreamInterceptor(log.Named("grpc")),
			interceptors.AuthStreamInterceptor(cfg.JWTSecret, squadup.PublicMethods),
		),
	)
	squadup.RegisterSquadUpServer(grpcServer, squadup.NewServer(authService, messageService, groupService, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(squadup.ServiceName, healthpb.HealthCheckResponse_SERVING)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gCtx)
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			log.Info("relaying events through redis", zap.String("addr", cfg.RedisAddr), zap.String("channel", ws.EventsChannel))
			return relay.Run(gCtx)
		})
	}

	g.Go(func() error {
		log.Info("http server is listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		log.Info("gRPC server is listening", zap.String("addr", listener.Addr().String()))
		if err := grpcServer.Serve(listener); err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		healthServer.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
