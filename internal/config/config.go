package config

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/ifiokjr/verily/internal/shared"
)

// Config holds application configuration values. The env tag names the
// variable each field is read from; validation errors report that name.
type Config struct {
	Env  string `env:"ENV" validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr            string        `env:"HTTP_ADDR" validate:"required"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	}
	Database struct {
		URL string `env:"DATABASE_URL" validate:"required"`
	}
	Auth struct {
		JWTSecret       string        `env:"JWT_SECRET" validate:"required,min=32"`
		AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" validate:"gt=0"`
		RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" validate:"gtfield=AccessTokenTTL"`
		EncryptionKey   string        `env:"ENCRYPTION_KEY" validate:"omitempty,hexadecimal,len=64"`
	}
	Health struct {
		Schedule string `env:"HEALTH_SCHEDULE" validate:"required"`
	}
	Log struct {
		ConsoleLevel string `env:"LOG_CONSOLE_LEVEL" validate:"required,oneof=debug info warn error"`
		FileLevel    string `env:"LOG_FILE_LEVEL" validate:"required,oneof=debug info warn error"`
		File         string `env:"LOG_FILE"`
	}
}

// IsDev reports whether the process runs as a development deployment.
func (c Config) IsDev() bool { return c.Env == "dev" }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("env")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Load reads configuration from environment variables and an optional .env
// file. A missing required variable is reported as EnvMissing, any other
// bad value as EnvInvalid; both are *shared.AppError.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = strings.ToLower(getenv("ENV", "prod"))
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Database.URL = getenv("DATABASE_URL", "sqlite::memory:")
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	c.Health.Schedule = getenv("HEALTH_SCHEDULE", "@every 1m")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/verily.log")

	durations := []struct {
		dst  *time.Duration
		name string
		def  time.Duration
	}{
		{&c.HTTP.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", 5 * time.Second},
		{&c.Auth.AccessTokenTTL, "ACCESS_TOKEN_TTL", 15 * time.Minute},
		{&c.Auth.RefreshTokenTTL, "REFRESH_TOKEN_TTL", 30 * 24 * time.Hour},
	}
	for _, d := range durations {
		v, err := getduration(d.name, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if err := validate.Struct(c); err != nil {
		return Config{}, envError(err)
	}
	if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
		return Config{}, shared.NewEnvInvalid("HEALTH_SCHEDULE")
	}
	return c, nil
}

// envError maps the first validation failure to the variable that caused it.
func envError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return shared.FromError(err)
	}
	fe := errs[0]
	if fe.Tag() == "required" {
		return shared.NewEnvMissing(fe.Field())
	}
	return shared.NewEnvInvalid(fe.Field())
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, shared.NewEnvInvalid(k)
	}
	return d, nil
}
