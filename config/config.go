package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env  string
	Port string

	JWTSecret string
	TokenTTL  time.Duration

	AIURL     string
	AITimeout time.Duration
	AppURL    string

	EmailUser      string
	EmailPass      string
	SMTPHost       string
	SMTPPort       int
	SendgridAPIKey string

	DBDriver    string
	MongoURI    string
	MongoDB     string
	PostgresDSN string

	RedisURL         string
	IntakeRateLimit  int
	IntakeRateWindow time.Duration

	CORSOrigins []string
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Env:            get("APP_ENV", "development"),
		Port:           get("PORT", "5000"),
		JWTSecret:      getenv("JWT_SECRET"),
		TokenTTL:       7 * 24 * time.Hour,
		AIURL:          strings.TrimRight(get("PYTHON_AI_URL", "http://localhost:8000"), "/"),
		AppURL:         strings.TrimRight(get("APP_URL", "http://localhost:5173"), "/"),
		EmailUser:      getenv("EMAIL_USER"),
		EmailPass:      getenv("EMAIL_PASS"),
		SMTPHost:       get("SMTP_HOST", "smtp.gmail.com"),
		SendgridAPIKey: getenv("SENDGRID_API_KEY"),
		DBDriver:       strings.ToLower(get("DB_DRIVER", DriverMongo)),
		MongoURI:       get("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:        get("MONGO_DB", "nirog"),
		RedisURL:       getenv("REDIS_URL"),
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET not set")
	}

	var err error
	if cfg.SMTPPort, err = intVar(get("SMTP_PORT", "587"), "SMTP_PORT"); err != nil {
		return nil, err
	}
	if cfg.IntakeRateLimit, err = intVar(get("INTAKE_RATE_LIMIT", "30"), "INTAKE_RATE_LIMIT"); err != nil {
		return nil, err
	}
	window, err := intVar(get("INTAKE_RATE_WINDOW_SEC", "60"), "INTAKE_RATE_WINDOW_SEC")
	if err != nil {
		return nil, err
	}
	cfg.IntakeRateWindow = time.Duration(window) * time.Second
	aiTimeout, err := intVar(get("AI_TIMEOUT_SEC", "120"), "AI_TIMEOUT_SEC")
	if err != nil {
		return nil, err
	}
	cfg.AITimeout = time.Duration(aiTimeout) * time.Second

	switch cfg.DBDriver {
	case DriverMongo, DriverMemory:
	case DriverPostgres:
		cfg.PostgresDSN = getenv("DATABASE_URL")
		if cfg.PostgresDSN == "" {
			cfg.PostgresDSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
				get("DB_HOST", "localhost"),
				get("DB_PORT", "5432"),
				getenv("DB_USER"),
				getenv("DB_PASSWORD"),
				get("DB_NAME", "nirog"),
			)
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	for _, origin := range strings.Split(get("CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	return cfg, nil
}

func intVar(v, name string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}
