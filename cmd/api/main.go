package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	adminTokenExpiry = 15 * time.Minute
	eventBufferSize  = 256
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.Server.LogLevel))

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize security services
	auditLogger := pkglogger.NewAuditLogger(logger)
	csrfManager := auth.NewCSRFTokenManager(cfg.Auth.CSRFTokenTTL)

	securityService, err := services.NewSecurityService(cfg.RateLimit, cfg.Security, csrfManager, logger)
	if err != nil {
		logger.Error("failed to initialize security service", slog.Any("error", err))
		os.Exit(1)
	}
	securityService.Subscribe(services.AuditSubscriber(auditLogger))

	// Optional Postgres archive of security events
	var (
		db      *database.DB
		archive *services.AuditArchiveService
	)
	if cfg.Archive.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = database.NewConnection(ctx, &cfg.Archive.Database, logger)
		if err == nil {
			err = db.Migrate(ctx)
		}
		cancel()
		if err != nil {
			logger.Error("failed to initialize audit archive", slog.Any("error", err))
			os.Exit(1)
		}

		archive = services.NewAuditArchiveService(repositories.NewSecurityEventRepository(db), eventBufferSize, logger)
		securityService.Subscribe(func(event models.SecurityEvent) {
			archive.Archive(event)
		})
		logger.Info("audit archive enabled", slog.Int("retention_days", cfg.Archive.RetentionDays))
	}

	// Optional e-mail alerts via AWS SES
	var alerts *services.AlertService
	if cfg.Alerts.To != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sender, err := services.NewSESAlertSender(ctx, cfg.Alerts.AWSRegion, cfg.Alerts.From, splitAddresses(cfg.Alerts.To), logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize alert sender", slog.Any("error", err))
			os.Exit(1)
		}

		alerts = services.NewAlertService(sender, eventBufferSize, logger)
		securityService.Subscribe(func(event models.SecurityEvent) {
			alerts.Notify(event)
		})
		logger.Info("security alerts enabled")
	}

	// Initialize cleanup manager
	var purger background.ArchivePurger
	if archive != nil {
		purger = archive
	}
	cleanupManager := background.NewCleanupManager(securityService, purger, cfg.Archive.RetentionDays, logger, cfg.Auth.CleanupInterval)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(cfg.Auth.AdminJWTSecret, adminTokenExpiry)

	// Timing delay for failed login responses
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	h := routes.Handlers{
		Security: handlers.NewSecurityHandler(securityService, timingDelay, ipConfig, logger),
		CSRF:     handlers.NewCSRFHandler(securityService, cfg.Server.Env == "production", logger),
		Session:  handlers.NewSessionHandler(securityService, logger),
		Admin:    handlers.NewAdminHandler(securityService, auditLogger, ipConfig, logger),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, h, securityService, tokenManager,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Auth.PublicRequestsPerMinute}, logger)

	// Health check, including the archive database when enabled
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
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
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Drain queued events before the database goes away
	if alerts != nil {
		if err := alerts.Close(shutdownCtx); err != nil {
			logger.Error("alert queue did not drain", slog.Any("error", err))
		}
	}
	if archive != nil {
		if err := archive.Close(shutdownCtx); err != nil {
			logger.Error("archive queue did not drain", slog.Any("error", err))
		}
	}
	if db != nil {
		db.Close()
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitAddresses(raw string) []string {
	var out []string
	for _, addr := range strings.Split(raw, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
