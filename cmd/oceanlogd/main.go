package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oceanlog/oceanlog/pkg/api"
	"github.com/oceanlog/oceanlog/pkg/auth"
	"github.com/oceanlog/oceanlog/pkg/auxdata"
	"github.com/oceanlog/oceanlog/pkg/config"
	"github.com/oceanlog/oceanlog/pkg/events"
	"github.com/oceanlog/oceanlog/pkg/images"
	"github.com/oceanlog/oceanlog/pkg/notify"
	"github.com/oceanlog/oceanlog/pkg/observability"
	"github.com/oceanlog/oceanlog/pkg/scope"
	"github.com/oceanlog/oceanlog/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer()
	}

	switch args[1] {
	case "server", "serve":
		return runServer()
	case "health":
		return runHealthCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServer()
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "oceanlogd - cruise event log server")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  oceanlogd <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  server   Run the API server (default)")
	fmt.Fprintln(w, "  health   Check a running server over HTTP")
	fmt.Fprintln(w, "  help     Show this help")
	fmt.Fprintln(w, "")
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

//nolint:gocognit,gocyclo
func runServer() int {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		return 1
	}

	// Database: Postgres when DATABASE_URL is set, SQLite lite mode otherwise.
	var st *store.Store
	if cfg.DatabaseURL != "" {
		st, err = store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			return 1
		}
		logger.Info("postgres connected")
	} else {
		logger.Info("DATABASE_URL not set, falling back to lite mode", "path", cfg.SQLitePath)
		st, err = store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Error("sqlite open failed", "error", err)
			return 1
		}
	}
	defer st.Close()

	if err := st.Init(ctx); err != nil {
		logger.Error("schema init failed", "error", err)
		return 1
	}

	eventStore := store.NewEventStore(st)
	auxStore := store.NewAuxDataStore(st)
	cruiseStore := store.NewCruiseStore(st)
	loweringStore := store.NewLoweringStore(st)
	userStore := store.NewUserStore(st)

	// Notifications and per-actor rate limiting ride on Redis when
	// configured; otherwise an in-process hub and no actor limiter.
	var (
		publisher    notify.Publisher
		limiterStore auth.LimiterStore
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping failed", "addr", cfg.RedisAddr, "error", err)
			return 1
		}
		defer client.Close()
		publisher = notify.NewRedisPublisher(client)
		limiterStore = auth.NewRedisLimiterStore(client)
		logger.Info("redis connected", "addr", cfg.RedisAddr)
	} else {
		publisher = notify.NewHub()
	}
	announcer := notify.NewAnnouncer(publisher, logger)

	// Image storage: S3 when a bucket is configured, local directory
	// otherwise.
	var imageStore images.Store
	if cfg.S3Bucket != "" {
		imageStore, err = images.NewS3Store(ctx, images.S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
		if err != nil {
			logger.Error("s3 store init failed", "error", err)
			return 1
		}
		logger.Info("image store: s3", "bucket", cfg.S3Bucket)
	} else {
		imageStore, err = images.NewFileStore(cfg.ImagePath)
		if err != nil {
			logger.Error("file store init failed", "error", err)
			return 1
		}
		logger.Info("image store: local", "path", cfg.ImagePath)
	}
	uploader := auxdata.NewUploader(cfg.FilePondPath, imageStore)

	resolver := scope.NewResolver(cruiseStore, loweringStore, cfg.UseAccessControl)

	eventsSvc := events.NewService(eventStore, auxStore, userStore, resolver, announcer, logger)
	auxSvc := auxdata.NewService(auxStore, eventStore, resolver, announcer, uploader, logger)

	schemas, err := api.CompileSchemas()
	if err != nil {
		logger.Error("schema compile failed", "error", err)
		return 1
	}

	// Freetext matches as a literal substring on SQLite, or anywhere the
	// operator asks for it.
	literalFreetext := cfg.LiteralFreetext || st.Dialect() == store.DialectSQLite

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "oceanlog-api",
		ServiceVersion: "1.0.0",
		Environment:    getenvDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	eventsSvc.WithObservability(obs)
	auxSvc.WithObservability(obs)

	eventsHandler := api.NewEventsHandler(eventsSvc, schemas, literalFreetext)
	auxHandler := api.NewAuxDataHandler(auxSvc, schemas, literalFreetext)

	health := func(w http.ResponseWriter, r *http.Request) {
		if err := st.DB().PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}

	mux := api.NewRouter(eventsHandler, auxHandler, health)

	edge := api.NewGlobalRateLimiter(cfg.EdgeRPS, cfg.EdgeBurst)
	jwtValidator := auth.NewJWTValidator([]byte(cfg.JWTSecret))

	// Outermost first: request id, CORS, edge limiter, tracing, auth,
	// per-actor limiter, access log.
	var handler http.Handler = mux
	handler = api.LoggingMiddleware(logger)(handler)
	handler = auth.RateLimitMiddleware(limiterStore, auth.LimitPolicy{
		RPM:   cfg.RateLimitRPM,
		Burst: cfg.RateLimitBurst,
	})(handler)
	handler = auth.NewMiddleware(jwtValidator)(handler)
	handler = obs.HTTPMiddleware(handler)
	handler = edge.Middleware(handler)
	handler = auth.CORSMiddleware(nil)(handler)
	handler = auth.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown failed", "error", err)
	}
	return 0
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runHealthCmd(out, errOut io.Writer) int {
	port := getenvDefault("PORT", "8000")
	resp, err := http.Get("http://localhost:" + port + "/health")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
