package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/finbridge/authcore/internal/api"
	"github.com/finbridge/authcore/internal/api/middleware"
	"github.com/finbridge/authcore/internal/auth"
	"github.com/finbridge/authcore/internal/cache"
	"github.com/finbridge/authcore/internal/config"
	"github.com/finbridge/authcore/internal/notify"
	"github.com/finbridge/authcore/internal/password"
	"github.com/finbridge/authcore/internal/ratelimit"
	"github.com/finbridge/authcore/internal/session"
	"github.com/finbridge/authcore/internal/store"
	"github.com/finbridge/authcore/internal/token"
	"github.com/finbridge/authcore/pkg/logger"
)

func main() {
	// Local env files are optional; production relies on system env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet; print and bail.
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Setup(cfg.Environment)
	log.Info("application_startup", "env", cfg.Environment)

	sentryEnabled := cfg.SentryDSN != ""
	if sentryEnabled {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
			Environment:      cfg.Environment,
		})
		if err != nil {
			log.Error("sentry_init_failed", "error", err)
			sentryEnabled = false
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	} else {
		log.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	ctx := context.Background()

	pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	st := store.NewPostgres(pool)

	// Redis is the shared revocation blacklist and rate-limit state. Without
	// it the server still runs, on process-local fallbacks.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("redis_connect_failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	} else {
		log.Warn("redis_url_missing", "details", "using_in_memory_cache")
	}

	var sharedCache cache.Cache
	if redisClient != nil {
		sharedCache = cache.NewRedis(redisClient)
	} else {
		sharedCache = cache.NewMemory()
	}
	blacklist := cache.NewBlacklist(sharedCache)

	hasher := password.NewBcryptHasher(cfg.BcryptCost)
	tokens := token.NewService([]byte(cfg.JWTSecret), cfg.AccessTokenTTL)

	sessions, err := session.NewManager(
		session.Config{
			Backend: cfg.SessionBackend,
			Storage: cfg.SessionStorage,
			Audit:   cfg.SessionAudit,
			TTL:     cfg.RefreshTokenTTL,
		},
		session.Deps{
			Tokens:  st.RefreshTokens(),
			Cache:   sharedCache,
			AuditDB: pool,
			Logger:  log,
		},
	)
	if err != nil {
		log.Error("session_manager_init_failed", "error", err)
		os.Exit(1)
	}

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		log.Error("mailer_init_failed", "error", err)
		os.Exit(1)
	}

	svc := auth.NewService(
		st, hasher, tokens, sessions, blacklist,
		notifier, nil,
		auth.Config{
			RefreshTTL:      cfg.RefreshTokenTTL,
			MaxFailedLogins: cfg.MaxFailedLogins,
			LockoutDuration: cfg.LockoutDuration,
		},
		log,
	)

	var limitStore ratelimit.Store
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(api.DefaultRateRules(), limitStore, ratelimit.NewDatabaseSink(pool, log), log)

	router := api.NewRouter(api.RouterConfig{
		Handler:           api.NewHandler(svc, cfg.TrustProxyHeaders, log),
		Health:            api.NewHealthHandler(pool, redisClient),
		Identity:          middleware.NewIdentity(tokens, st.Users(), st.RefreshTokens(), blacklist),
		Limiter:           limiter,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		SentryEnabled:     sentryEnabled,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server_listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutdown_started")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown_failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown_complete")
}

// buildNotifier selects the mail transport by driver name.
func buildNotifier(cfg *config.Config, log *slog.Logger) (*notify.Notifier, error) {
	switch cfg.MailerDriver {
	case "", "dev":
		return notify.NewNotifier(&notify.DevMailer{Logger: log}, cfg.AppURL, log), nil
	case "smtp":
		sender, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return nil, err
		}
		return notify.NewNotifier(sender, cfg.AppURL, log), nil
	default:
		return nil, fmt.Errorf("unknown mailer driver %q", cfg.MailerDriver)
	}
}
