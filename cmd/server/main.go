package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/dayplan/internal/config"
	"github.com/benvon/dayplan/internal/database"
	"github.com/benvon/dayplan/internal/handlers"
	"github.com/benvon/dayplan/internal/logger"
	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/middleware"
	"github.com/benvon/dayplan/internal/queue"
	"github.com/benvon/dayplan/internal/services/oidc"
	"github.com/benvon/dayplan/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	migrateFlag := flag.Bool("migrate", false, "Apply pending schema migrations before serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.LogFormat, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("planner_timezone", cfg.Location().String()),
		zap.Int("max_range_days", cfg.MaxRangeDays),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// OpenTelemetry
	var tracerProvider *sdktrace.TracerProvider
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tracerProvider, err = telemetry.InitTracer(context.Background(), telemetry.Config{
				Component: "server",
				Endpoint:  cfg.OTELEndpoint,
			})
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
				tracerProvider = nil
			} else {
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tracerProvider); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// Database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	if *migrateFlag {
		applied, err := db.Migrate(context.Background())
		if err != nil {
			zapLogger.Fatal("failed_to_migrate_database", zap.Error(err))
		}
		zapLogger.Info("database_migrated", zap.Ints("applied_versions", applied))
	}

	// Redis backs rate limiting and prefetch dedupe. Without it both fall
	// back to per-process behaviour.
	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		zapLogger.Warn("invalid_redis_url", zap.Error(err))
	} else {
		client := redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			zapLogger.Warn("failed_to_connect_to_redis_using_in_process_fallbacks", zap.Error(err))
			_ = client.Close()
		} else {
			redisClient = client
			zapLogger.Info("connected_to_redis")
			defer func() {
				if err := redisClient.Close(); err != nil {
					zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
				}
			}()
		}
	}

	// RabbitMQ is only needed for prefetch
	var (
		jobQueue queue.JobQueue
		rabbit   *queue.RabbitMQQueue
	)
	if err := cfg.RequireQueue(); err != nil {
		zapLogger.Warn("prefetch_disabled", zap.Error(err))
	} else {
		rabbit, err = queue.ConnectRabbitMQ(context.Background(), cfg.RabbitMQURL, 0, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
		}
		jobQueue = rabbit
		defer func() {
			if err := rabbit.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
	}

	// Repositories and the materializer
	templateRepo := database.NewTemplateRepository(db)
	planRepo := database.NewPlanRepository(db)
	instanceRepo := database.NewInstanceRepository(db)

	m := materializer.New(templateRepo, planRepo, instanceRepo,
		materializer.WithLogger(zapLogger),
		materializer.WithLocation(cfg.Location()),
		materializer.WithMaxRangeDays(cfg.MaxRangeDays),
	)

	// Authentication
	var authenticator *middleware.Authenticator
	switch cfg.AuthMode {
	case config.AuthModeHeader:
		zapLogger.Warn("header_auth_mode_enabled_trusting_upstream_identity")
		authenticator = middleware.NewHeaderAuthenticator(zapLogger)
	default:
		verifier := oidc.NewVerifier(oidc.NewJWKSManager(time.Hour), cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience)
		authenticator = middleware.NewJWTAuthenticator(verifier, zapLogger)
	}

	rateLimitMW, err := middleware.RateLimit(redisClient, cfg.RateLimit, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Handlers
	var deduper queue.Deduper = queue.NewRedisDeduper(redisClient, cfg.DedupeTTL(), zapLogger)
	planHandler := handlers.NewPlanHandler(m, jobQueue, deduper, cfg.Visibility(), zapLogger)
	templateHandler := handlers.NewTemplateHandler(templateRepo, zapLogger)

	checks := map[string]handlers.Checker{"database": db}
	if redisClient != nil {
		checks["redis"] = handlers.CheckerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if rabbit != nil {
		checks["queue"] = rabbit
	}
	healthChecker := handlers.NewHealthChecker(checks, zapLogger)

	// Router
	r := mux.NewRouter()

	// In gorilla/mux, middleware registered first is the outermost wrapper
	if tracerProvider != nil {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	// 1. Error handler (catches panics from everything below)
	r.Use(middleware.ErrorHandler(zapLogger))
	// 2. Logging
	r.Use(middleware.Logging(zapLogger))
	// 3. Audit logging for auth and ownership failures
	r.Use(middleware.Audit(zapLogger))
	// 4. Security headers
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	// 5. CORS
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins, zapLogger))
	// 6. Request timeout
	r.Use(middleware.Timeout(30 * time.Second))

	// Public routes
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	handlers.NewOpenAPIHandler().RegisterRoutes(r)

	// API v1 routes (authenticated)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authenticator.Middleware)
	apiRouter.Use(rateLimitMW)
	apiRouter.Use(middleware.ContentType)
	apiRouter.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))

	planHandler.RegisterRoutes(apiRouter.PathPrefix("/plans").Subrouter())
	templateHandler.RegisterRoutes(apiRouter.PathPrefix("/templates").Subrouter())

	// Preflight requests are answered by the CORS middleware
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   35 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}
