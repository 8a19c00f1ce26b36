package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adityajain-27/medical-ai-sub000/aiclient"
	"github.com/adityajain-27/medical-ai-sub000/config"
	"github.com/adityajain-27/medical-ai-sub000/controllers"
	"github.com/adityajain-27/medical-ai-sub000/logging"
	"github.com/adityajain-27/medical-ai-sub000/mailer"
	"github.com/adityajain-27/medical-ai-sub000/ratelimit"
	"github.com/adityajain-27/medical-ai-sub000/routes"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/store/memstore"
	"github.com/adityajain-27/medical-ai-sub000/store/mongostore"
	"github.com/adityajain-27/medical-ai-sub000/store/pgstore"
)

const (
	connectTimeout  = 20 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Production())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	st, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}

	issuer, err := security.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("Failed to build token issuer", zap.Error(err))
	}

	var limiter ratelimit.KeyedRateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		limiter = ratelimit.NewRedis(rdb, cfg.IntakeRateLimit, cfg.IntakeRateWindow)
	}

	ai := aiclient.New(cfg.AIURL, &http.Client{Timeout: cfg.AITimeout})
	h := controllers.NewHandler(st, ai, newMailer(cfg, logger), issuer, cfg, logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger), security.CORSMiddleware(cfg.CORSOrigins))
	routes.Register(r, h, issuer, limiter)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := st.Close(ctx); err != nil {
		logger.Error("Failed to close store", zap.Error(err))
	}
	logger.Info("Server exited")
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := config.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st := pgstore.New(db)
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Connected to PostgreSQL")
		return st, nil
	case config.DriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return memstore.New(), nil
	default:
		client, err := config.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		st := mongostore.New(client, cfg.MongoDB)
		if err := st.EnsureIndexes(ctx); err != nil {
			st.Close(ctx)
			return nil, err
		}
		logger.Info("Connected to MongoDB", zap.String("database", cfg.MongoDB))
		return st, nil
	}
}

// newMailer prefers SendGrid when an API key is configured and falls back to
// SMTP with the Gmail credentials.
func newMailer(cfg *config.Config, logger *zap.Logger) mailer.Mailer {
	if cfg.SendgridAPIKey != "" {
		logger.Info("Sending mail through SendGrid")
		return mailer.NewSendgrid(cfg.SendgridAPIKey, cfg.EmailUser)
	}
	if cfg.EmailUser == "" {
		logger.Warn("EMAIL_USER not set, intake e-mails will fail")
	}
	return mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass)
}
