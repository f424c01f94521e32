package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/inkform/inkform/libs/auth"
	"github.com/inkform/inkform/libs/config"
	"github.com/inkform/inkform/libs/db"
	"github.com/inkform/inkform/libs/httpx"
	"github.com/inkform/inkform/libs/kafkax"
	otelx "github.com/inkform/inkform/libs/otel"
	"github.com/inkform/inkform/libs/runtime"
	"github.com/inkform/inkform/libs/secrets"
	"github.com/inkform/inkform/services/studio-service/internal/calendar"
	"github.com/inkform/inkform/services/studio-service/internal/email"
	"github.com/inkform/inkform/services/studio-service/internal/handlers"
	"github.com/inkform/inkform/services/studio-service/internal/lifecycle"
	"github.com/inkform/inkform/services/studio-service/internal/outbox"
	"github.com/inkform/inkform/services/studio-service/internal/payments"
	"github.com/inkform/inkform/services/studio-service/internal/reminders"
	"github.com/inkform/inkform/services/studio-service/internal/sideeffects"
	"github.com/inkform/inkform/services/studio-service/internal/storage"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "studio-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("config error", "err", err)
		return
	}
	pool, err := db.Open(ctx, dbURL, db.WithMaxConns(config.Int("DB_MAX_CONNS", 10, 1)))
	if err != nil {
		logger.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("migrations failed", "err", err)
			return
		}
	}

	box, err := secrets.NewBox(config.String("STUDIO_SECRETS_KEY", ""))
	if err != nil {
		logger.Error("studio secrets key invalid", "err", err)
		return
	}
	if box == nil {
		logger.Warn("STUDIO_SECRETS_KEY not set; studio credentials are read as plaintext")
	}

	outboxRepo := outbox.NewRepository()
	store := storage.NewPostgresStore(pool, outboxRepo)
	studios := storage.NewStudioRepository(pool, box)

	orchestrator := sideeffects.NewOrchestrator(
		calendar.GoogleConnector{
			Timeout:    config.Seconds("CALENDAR_TIMEOUT_SECONDS", 10*time.Second),
			CalendarID: config.String("CALENDAR_ID", "primary"),
		},
		email.SMTPDialer{Timeout: config.Seconds("SMTP_TIMEOUT_SECONDS", 10*time.Second)},
		store,
		logger,
	)
	controller := lifecycle.NewController(store, studios, orchestrator, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50, 1),
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	if config.Bool("REMINDERS_ENABLED", true) {
		worker := reminders.NewWorker(store, controller, logger, reminders.WorkerConfig{
			Interval:   config.Seconds("REMINDER_INTERVAL_SECONDS", time.Minute),
			Lead:       config.Seconds("REMINDER_LEAD_SECONDS", 24*time.Hour),
			RetryAfter: config.Seconds("REMINDER_RETRY_SECONDS", time.Hour),
			BatchSize:  config.Int("REMINDER_BATCH_SIZE", 50, 1),
		})
		go worker.Run(ctx)
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers), Optional: true})
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120, 1)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0, 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "studio-rl"))
		rateLimitMW = rl.Middleware(logger, httpx.ClientKey, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb), Optional: true})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware(httpx.ClientKey)
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	var jwksClient *auth.JWKSClient
	if url := config.String("JWKS_URL", ""); url != "" {
		jwksClient = auth.NewJWKSClient(url, config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute))
	}
	jwtSecret := config.String("JWT_SECRET", "")
	if jwtSecret == "" && jwksClient == nil {
		logger.Error("config error", "err", errors.New("JWT_SECRET or JWKS_URL is required"))
		return
	}
	verifier := auth.NewVerifier(jwtSecret, jwksClient)

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewAppointmentHandler(controller, logger).Register(mux, verifier.RequireStudio)

	if secret := config.String("STRIPE_WEBHOOK_SECRET", ""); secret != "" {
		webhook := handlers.NewStripeWebhook(
			secret,
			config.Seconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 0),
			payments.NewPostgresEventLog(pool),
			controller,
			logger,
		)
		mux.Handle("POST /api/v1/payments/webhooks/stripe", webhook)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; payment webhooks disabled")
	}

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Seconds("CORS_MAX_AGE_SECONDS", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1024))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 30*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
}
