package rest

import (
	"errors"
	"net/http"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/service/auth"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service *auth.AuthService
	log     *zap.Logger
}

func NewAuthHandler(service *auth.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log}
}

type RegisterRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Enrollment string `json:"enrollment"`
	Course     string `json:"course"`
	Semester   string `json:"semester"`
	College    string `json:"college"`
}

type RegisterResponse struct {
	Message string      `json:"message"`
	User    models.User `json:"user"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Register(r.Context(), auth.RegisterInput{
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   req.Password,
		Enrollment: req.Enrollment,
		Course:     req.Course,
		Semester:   req.Semester,
		College:    req.College,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserAlreadyExists):
			writeError(w, http.StatusConflict, "User already exists")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error("failed to register user", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Could not create user")
		}
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{Message: "Registered successfully", User: u})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, auth.ErrInvalidOTP):
			writeError(w, http.StatusBadRequest, "Invalid OTP")
		default:
			h.log.Error("failed to verify otp", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Verification failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, ErrorResponse{Message: "Email verified"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, u, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotVerified):
			writeError(w, http.StatusForbidden, "Please verify your email first")
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
		default:
			h.log.Error("failed to login", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: u})
}
