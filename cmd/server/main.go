package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "torrentstream/resolver/internal/api/http"
	"torrentstream/resolver/internal/app"
	"torrentstream/resolver/internal/debrid"
	"torrentstream/resolver/internal/metrics"
	"torrentstream/resolver/internal/ratelimit"
	"torrentstream/resolver/internal/redact"
	mongorepo "torrentstream/resolver/internal/repository/mongo"
	"torrentstream/resolver/internal/resolve"
	"torrentstream/resolver/internal/session"
	"torrentstream/resolver/internal/source"
	"torrentstream/resolver/internal/streamindex"
	"torrentstream/resolver/internal/telemetry"
)

var version = "dev"

func main() {
	cfg := app.LoadConfig()
	redactor := redact.New(cfg.Secrets()...)
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, redactor)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "stream-resolver", version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "stream-resolver"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("debridAPIURL", cfg.DebridAPIURL),
		slog.Bool("hasDebridKey", cfg.DebridAPIKey != ""),
		slog.String("streamIndexURL", cfg.StreamIndexURL),
		slog.Int("proxyRateLimit", cfg.ProxyRateLimit),
		slog.Bool("rateLimitDisabled", cfg.RateLimitDisabled),
		slog.String("trustedProxies", cfg.TrustedProxies),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasMongo", strings.TrimSpace(cfg.MongoURI) != ""),
		slog.Duration("searchCacheTTL", cfg.SearchCacheTTL),
		slog.Duration("sessionTTL", cfg.SessionTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debridClient := debrid.NewClient(debrid.Config{
		BaseURL:           cfg.DebridAPIURL,
		APIKey:            cfg.DebridAPIKey,
		UserAgent:         cfg.UserAgent,
		Client:            &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Logger:            logger,
		RequestsPerSecond: float64(cfg.DebridRPS),
		Burst:             cfg.DebridBurst,
		PollInterval:      cfg.DebridPollInterval,
		WaitTimeout:       cfg.DebridWaitTimeout,
	})
	if !debridClient.Enabled() {
		logger.Warn("debrid api key not configured, resolution is disabled")
	}

	indexClient := streamindex.NewClient(streamindex.Config{
		BaseURL:   cfg.StreamIndexURL,
		Options:   cfg.StreamIndexOptions,
		DebridKey: cfg.DebridAPIKey,
		UserAgent: cfg.UserAgent,
		Client:    &http.Client{Timeout: cfg.RequestTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Logger:    logger,
		Redactor:  redactor,
	})

	redisClient := connectRedis(rootCtx, cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	streams := streamindex.NewService(indexClient, buildSearchOptions(cfg, redisClient, logger)...)

	hub := apihttp.NewHub(logger)
	engineOpts := []resolve.Option{
		resolve.WithLogger(logger),
		resolve.WithPublisher(hub),
		resolve.WithClassifier(buildClassifier(cfg, logger)),
	}

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithHub(hub),
		apihttp.WithDebrid(debridClient),
		apihttp.WithAllowedOrigins(splitList(cfg.AllowedOrigins)),
		apihttp.WithTrustedProxies(splitList(cfg.TrustedProxies)),
	}

	history, mongoClient := connectHistory(rootCtx, cfg, logger)
	if history != nil {
		engineOpts = append(engineOpts, resolve.WithRecorder(history))
		serverOpts = append(serverOpts, apihttp.WithHistory(history))
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoClient.Disconnect(ctx)
		}()
	}
	engine := resolve.NewEngine(debridClient, engineOpts...)

	sessions := session.NewStore(cfg.SessionTTL)
	sessions.StartSweeper(rootCtx, 5*time.Minute, logger)
	batches := session.NewBatchQueue(rootCtx, streams, engine, logger)
	serverOpts = append(serverOpts, apihttp.WithSessions(sessions), apihttp.WithBatches(batches))

	if limiter := buildRateLimiter(rootCtx, cfg, redisClient, logger); limiter != nil {
		serverOpts = append(serverOpts, apihttp.WithRateLimiter(limiter))
	}

	api := apihttp.NewServer(streams, engine, serverOpts...)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Torrent waits stream progress over SSE for minutes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("stream resolver started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("version", version),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	api.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stream resolver stopped")
}

func newLogger(levelRaw, formatRaw string, redactor *redact.Redactor) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level:       parseLogLevel(levelRaw),
		ReplaceAttr: redactor.ReplaceAttr,
	}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, handlerOpts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}

// buildClassifier falls back to the built-in patterns when the configured
// ones do not compile.
func buildClassifier(cfg app.Config, logger *slog.Logger) *source.Classifier {
	var opts []source.Option
	if direct, err := source.CompilePatterns(cfg.DirectLinkPatterns); err != nil {
		logger.Warn("invalid direct link patterns, using defaults", slog.String("error", err.Error()))
	} else {
		opts = append(opts, source.WithDirectPatterns(direct...))
	}
	if resolveLinks, err := source.CompilePatterns(cfg.ResolveLinkPatterns); err != nil {
		logger.Warn("invalid resolve link patterns, using defaults", slog.String("error", err.Error()))
	} else {
		opts = append(opts, source.WithResolvePatterns(resolveLinks...))
	}
	return source.NewClassifier(opts...)
}

func connectRedis(ctx context.Context, rawURL string, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(rawURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory state only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory state only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildSearchOptions(cfg app.Config, redisClient *redis.Client, logger *slog.Logger) []streamindex.ServiceOption {
	opts := []streamindex.ServiceOption{streamindex.WithLogger(logger)}
	if cfg.CacheDisabled {
		return opts
	}
	opts = append(opts, streamindex.WithCacheTTL(cfg.SearchCacheTTL))
	if redisClient != nil {
		return append(opts, streamindex.WithCache(streamindex.NewRedisCache(redisClient)))
	}
	return append(opts, streamindex.WithCache(streamindex.NewMemoryCache(0)))
}

// buildRateLimiter shares windows through Redis when it is available so
// replicas enforce one budget per client.
func buildRateLimiter(ctx context.Context, cfg app.Config, redisClient *redis.Client, logger *slog.Logger) *ratelimit.Limiter {
	if cfg.RateLimitDisabled || cfg.ProxyRateLimit <= 0 {
		logger.Info("stream search rate limit disabled")
		return nil
	}
	var store ratelimit.Store
	if redisClient != nil {
		store = ratelimit.NewRedisStore(redisClient, "")
	} else {
		memory := ratelimit.NewMemoryStore()
		memory.StartSweeper(ctx, time.Minute, logger)
		store = memory
	}
	return ratelimit.NewLimiter(store, cfg.ProxyRateLimit, cfg.ProxyRateWindow, logger)
}

// connectHistory enables the attempt history when MONGO_URI is set. Mongo
// failures only disable history.
func connectHistory(ctx context.Context, cfg app.Config, logger *slog.Logger) (*mongorepo.AttemptRepository, *mongo.Client) {
	if strings.TrimSpace(cfg.MongoURI) == "" {
		logger.Info("mongo uri not configured, resolution history disabled")
		return nil, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Warn("mongo connect failed, resolution history disabled", slog.String("error", err.Error()))
		return nil, nil
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Warn("mongo ping failed, resolution history disabled", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return nil, nil
	}
	repo := mongorepo.NewAttemptRepository(client, cfg.MongoDB, cfg.HistoryRetention)
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	logger.Info("resolution history enabled", slog.String("database", cfg.MongoDB))
	return repo, client
}
