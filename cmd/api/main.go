package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/careslot/careslot/internal/admin"
	"github.com/careslot/careslot/internal/api/router"
	"github.com/careslot/careslot/internal/auth/sessions"
	"github.com/careslot/careslot/internal/bookings"
	"github.com/careslot/careslot/internal/clinics"
	appconfig "github.com/careslot/careslot/internal/config"
	"github.com/careslot/careslot/internal/notifications"
	"github.com/careslot/careslot/internal/notify"
	"github.com/careslot/careslot/internal/observability/metrics"
	"github.com/careslot/careslot/internal/users"
	"github.com/careslot/careslot/pkg/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting careslot API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	// Repositories: postgres when DATABASE_URL is set, in-memory otherwise.
	var (
		clinicRepo       clinics.Repository
		userRepo         users.Repository
		bookingRepo      bookings.Repository
		notificationRepo notifications.Repository
		statsDB          *sql.DB
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("database unreachable", "error", err)
			os.Exit(1)
		}
		clinicRepo = clinics.NewPostgresRepository(pool)
		userRepo = users.NewPostgresRepository(pool)
		bookingRepo = bookings.NewPostgresRepository(pool)
		notificationRepo = notifications.NewPostgresRepository(pool)

		statsDB, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open stats connection", "error", err)
			os.Exit(1)
		}
		defer statsDB.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		clinicRepo = clinics.NewInMemoryRepository()
		userRepo = users.NewInMemoryRepository()
		bookingRepo = bookings.NewInMemoryRepository()
		notificationRepo = notifications.NewInMemoryRepository()
	}

	// Redis session store.
	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "error", err, "addr", cfg.RedisAddr)
		os.Exit(1)
	}
	sessionStore := sessions.NewStore(redisClient, cfg.SessionTTL)

	// Email sender selection.
	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sg == nil {
			logger.Error("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty")
			os.Exit(1)
		}
		sender = sg
	case "ses":
		loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
			loaders = append(loaders, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	default:
		logger.Warn("email disabled, using stub sender", "provider", cfg.EmailProvider)
		sender = notify.NewStubEmailSender(logger)
	}
	mailer := notify.NewBookingMailer(sender, logger)

	// Metrics.
	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	// Services and handlers.
	notificationSvc := notifications.NewService(notificationRepo, logger)
	bookingSvc := bookings.NewService(bookingRepo, clinicRepo, notificationSvc, mailer, bookingMetrics,
		bookings.ServiceConfig{
			MaxBookings: cfg.MaxBookingsPerSlot,
			CodeTTL:     cfg.VerificationCodeTTL,
		}, logger)

	secureCookies := cfg.Env != "development"
	routerCfg := &router.Config{
		Logger:              logger,
		BookingHandler:      bookings.NewHandler(bookingSvc, logger),
		ClinicAdminHandler:  clinics.NewAdminHandler(clinicRepo, logger),
		ClinicAuthHandler:   clinics.NewAuthHandler(clinicRepo, sessionStore, secureCookies, logger),
		UserHandler:         users.NewHandler(userRepo, sessionStore, logger),
		NotificationHandler: notifications.NewHandler(notificationRepo, logger),
		AdminHandler: admin.NewHandler(statsDB, admin.Config{
			Username:  cfg.AdminUsername,
			Password:  cfg.AdminPassword,
			JWTSecret: cfg.AdminJWTSecret,
		}, logger),
		SessionStore:       sessionStore,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Metrics:            bookingMetrics,
		AdminJWTSecret:     cfg.AdminJWTSecret,
		OIDCIssuer:         cfg.OIDCIssuer,
		OIDCClientID:       cfg.OIDCClientID,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSec:    cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
