package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/christmas-fire/squadup/internal/validation"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":5000" validate:"required"`
	GRPCAddr       string        `env:"GRPC_ADDR" envDefault:":8080" validate:"required"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	JWTSecret      string        `env:"JWT_SECRET" validate:"required"`
	TokenTTL       time.Duration `env:"TOKEN_TTL" envDefault:"168h" validate:"gt=0"`
	InviteTTL      time.Duration `env:"INVITE_TTL" envDefault:"24h" validate:"gt=0"`
	ClientURL      string        `env:"CLIENT_URL" envDefault:"http://localhost:3000" validate:"required,url"`
	UploadDir      string        `env:"UPLOAD_DIR" envDefault:"uploads" validate:"required"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760" validate:"gt=0"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	SendBuffer     int           `env:"SEND_BUFFER" envDefault:"256" validate:"gt=0"`
	WSRequireAuth  bool          `env:"WS_REQUIRE_AUTH" envDefault:"false"`
}

// Load reads an optional .env file, then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)
	return Parse()
}

func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
