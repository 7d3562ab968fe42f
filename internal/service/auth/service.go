package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/christmas-fire/squadup/internal/mailer"
	"github.com/christmas-fire/squadup/internal/models"
	"github.com/christmas-fire/squadup/internal/repository/user"
	"github.com/christmas-fire/squadup/internal/validation"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidInput wraps every input rejection below it.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidEmail       = errors.New("email is not a valid address")
	ErrNameRequired       = errors.New("full name is required")
	ErrNameTooLong        = errors.New("full name must be at most 100 characters long")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong    = errors.New("password is too long")
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotVerified        = errors.New("email is not verified")
	ErrInvalidOTP         = errors.New("invalid verification code")
	ErrInvalidToken       = errors.New("invalid token")
)

const otpDigits = 6

// RegisterInput is checked in field order; the first failing field decides
// the returned error. max counts characters; bcrypt's 72 byte limit is
// enforced again when hashing.
type RegisterInput struct {
	FullName   string `validate:"required,max=100"`
	Email      string `validate:"required,email"`
	Password   string `validate:"required,min=8,max=72"`
	Enrollment string
	Course     string
	Semester   string
	College    string
}

type loginInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type AuthService struct {
	userRepo    user.UserRepository
	mailer      mailer.Mailer
	tokenSecret string
	tokenTTL    time.Duration
	log         *zap.Logger
}

func NewAuthService(userRepo user.UserRepository, m mailer.Mailer, secret string, ttl time.Duration, log *zap.Logger) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		mailer:      m,
		tokenSecret: secret,
		tokenTTL:    ttl,
		log:         log.Named("auth"),
	}
}

// Register stores an unverified user and mails a one-time code to confirm
// the address.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validation.Struct(in); err != nil {
		return models.User{}, inputErr(err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return models.User{}, fmt.Errorf("%w: %w", ErrInvalidInput, ErrPasswordTooLong)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	otp, err := generateOTP()
	if err != nil {
		return models.User{}, fmt.Errorf("failed to generate otp: %w", err)
	}

	created, err := s.userRepo.Create(ctx, models.User{
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: passHash,
		Enrollment:   in.Enrollment,
		Course:       in.Course,
		Semester:     in.Semester,
		College:      in.College,
		OTP:          otp,
	})
	if err != nil {
		if errors.Is(err, user.ErrUserAlreadyExists) {
			return models.User{}, ErrUserAlreadyExists
		}
		return models.User{}, err
	}

	body := fmt.Sprintf("Your SquadUp verification code is %s", otp)
	if err := s.mailer.Send(ctx, created.Email, "Verify your email", body); err != nil {
		s.log.Warn("failed to send verification code", zap.String("email", created.Email), zap.Error(err))
	}

	return created, nil
}

func (s *AuthService) VerifyOTP(ctx context.Context, email, otp string) error {
	u, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if u.Verified {
		return nil
	}
	if strings.TrimSpace(otp) == "" || strings.TrimSpace(otp) != u.OTP {
		return ErrInvalidOTP
	}
	return s.userRepo.MarkVerified(ctx, u.ID)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, models.User, error) {
	email = normalizeEmail(email)
	if err := validation.Struct(loginInput{Email: email, Password: password}); err != nil {
		return "", models.User{}, inputErr(err)
	}

	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return "", models.User{}, ErrInvalidCredentials
		}
		return "", models.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}
	if !u.Verified {
		return "", models.User{}, ErrNotVerified
	}

	token, err := s.IssueToken(u.ID)
	if err != nil {
		return "", models.User{}, err
	}
	return token, u, nil
}

func (s *AuthService) User(ctx context.Context, id string) (models.User, error) {
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// IssueToken signs a login token whose subject is the user id.
func (s *AuthService) IssueToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
	})

	signedToken, err := token.SignedString([]byte(s.tokenSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ParseToken validates an HS256 login token and returns its subject.
func ParseToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

var fieldErrors = map[string]error{
	"FullName.required": ErrNameRequired,
	"FullName.max":      ErrNameTooLong,
	"Email.required":    ErrEmailRequired,
	"Email.email":       ErrInvalidEmail,
	"Password.required": ErrPasswordRequired,
	"Password.min":      ErrPasswordTooShort,
	"Password.max":      ErrPasswordTooLong,
}

func inputErr(err error) error {
	fe, ok := validation.FirstField(err)
	if !ok {
		return fmt.Errorf("failed to validate input: %w", err)
	}
	if sentinel, ok := fieldErrors[fe.Field()+"."+fe.Tag()]; ok {
		return fmt.Errorf("%w: %w", ErrInvalidInput, sentinel)
	}
	return fmt.Errorf("%w: %s failed on %s", ErrInvalidInput, fe.Field(), fe.Tag())
}

func generateOTP() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
