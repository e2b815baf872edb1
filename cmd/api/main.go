package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/lmercier/portcullis/internal/auth"
	"github.com/lmercier/portcullis/internal/background"
	"github.com/lmercier/portcullis/internal/config"
	"github.com/lmercier/portcullis/internal/database"
	"github.com/lmercier/portcullis/internal/handlers"
	middlewareCustom "github.com/lmercier/portcullis/internal/middleware"
	"github.com/lmercier/portcullis/internal/models"
	"github.com/lmercier/portcullis/internal/repositories"
	"github.com/lmercier/portcullis/internal/routes"
	"github.com/lmercier/portcullis/internal/services"
	pkgauth "github.com/lmercier/portcullis/pkg/auth"
	pkglogger "github.com/lmercier/portcullis/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("attempt_store", cfg.Auth.AttemptStore),
		slog.String("session_store", cfg.Auth.SessionStore))

	// Initialize the user store for the configured driver
	var (
		userStore services.UserStore
		db        *database.DB
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if err := database.Migrate(context.Background(), db.Pool); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
		userStore = repositories.NewPostgresUserRepository(db)
	default:
		sqliteRepo, err := repositories.NewSQLiteUserRepository(cfg.Database.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite database", slog.Any("error", err))
			os.Exit(1)
		}
		defer sqliteRepo.Close()
		userStore = sqliteRepo
	}

	// Redis client, shared by whichever stores are configured to use it
	var redisClient *redis.Client
	if cfg.Auth.AttemptStore == "redis" || cfg.Auth.SessionStore == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		cancel()
	}

	// Attempt store backing the per-username tracker
	var attemptStore services.AttemptStore
	switch cfg.Auth.AttemptStore {
	case "redis":
		attemptStore = repositories.NewRedisAttemptStore(redisClient)
	case "postgres":
		attemptStore = repositories.NewPostgresAttemptStore(db)
	default:
		attemptStore = repositories.NewMemoryAttemptStore()
	}
	tracker := services.NewAttemptTracker(attemptStore, logger)

	// Session store and manager
	var (
		sessionStore   auth.SessionStore
		cleanupManager *background.CleanupManager
	)
	if cfg.Auth.SessionStore == "redis" {
		sessionStore = repositories.NewRedisSessionStore(redisClient, cfg.Auth.SessionTTL)
	} else {
		memStore := repositories.NewMemorySessionStore()
		sessionStore = memStore
		// Redis expires sessions by TTL; the memory store needs a sweeper
		cleanupManager = background.NewCleanupManager(memStore, logger, 10*time.Minute, cfg.Auth.SessionTTL)
	}
	sessionManager := auth.NewSessionManager(sessionStore, userStore, logger)

	// Security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	csrfSigner := auth.NewCSRFSigner(cfg.Auth.CSRFSecret)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandMs,
	})

	authService := services.NewAuthService(
		userStore,
		tracker,
		sessionManager,
		pkgauth.Verifier{},
		timingDelay,
		logger,
		auditLogger,
	)

	// Seed the default account if the store is empty
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureDefaultUser(ctx, userStore, cfg, logger); err != nil {
		logger.Error("failed to ensure default user", slog.Any("error", err))
	}
	cancel()

	cookieConfig := auth.CookieConfig{
		Secure: cfg.Server.Env == "production",
	}
	authHandler := handlers.NewAuthHandler(authService, csrfSigner, cookieConfig, nil)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, csrfSigner, logger)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.HealthCheck(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start session sweeper when the memory store is in use
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	if cleanupManager != nil {
		go cleanupManager.Start(cleanupCtx)
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	if cleanupManager != nil {
		cleanupManager.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureDefaultUser creates the bootstrap account when the user store is
// empty and AUTH_BOOTSTRAP_USERNAME / AUTH_BOOTSTRAP_PASSWORD are set.
func ensureDefaultUser(ctx context.Context, users services.UserStore, cfg *config.Config, logger *slog.Logger) error {
	username := cfg.Auth.BootstrapUsername
	password := cfg.Auth.BootstrapPassword

	if username == "" || password == "" {
		logger.Info("no bootstrap credentials set, skipping default user creation")
		return nil
	}

	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash bootstrap password: %w", err)
	}

	_, err = users.Create(ctx, &models.User{
		Username:     username,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return fmt.Errorf("failed to create default user: %w", err)
	}

	logger.Info("default user created", slog.String("username", pkglogger.SanitizedUsername(username)))
	return nil
}
