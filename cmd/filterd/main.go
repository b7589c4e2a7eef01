// Command filterd is a standalone demo host for the engine library: a
// small fasthttp service exposing should_block/stats/metrics over HTTP plus
// a Prometheus scrape endpoint, built the way this codebase's own gateway
// binaries are (flag-driven listen address, zap logger, fasthttp server
// with graceful shutdown). It is not part of the engine's own surface — a
// real embedding host talks to the library or the FFI boundary directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/shieldcore/filterengine/internal/options"
	"github.com/shieldcore/filterengine/pkg/analytics"
	"github.com/shieldcore/filterengine/pkg/engine"
	"github.com/shieldcore/filterengine/pkg/fleet"
)

func main() {
	listen := flag.String("listen", ":8787", "HTTP listen address for the should_block/stats/metrics API")
	metricsListen := flag.String("metrics-listen", ":9787", "HTTP listen address for the Prometheus scrape endpoint")
	filterListPath := flag.String("filter-list", "", "path to an EasyList-dialect filter list to load at startup")
	configPath := flag.String("config", "", "path to a YAML options file (cache sizing, logging, fleet, analytics); defaults applied for anything omitted")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	opts := options.Default()
	if *configPath != "" {
		text, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Fatal("failed to read config", zap.String("path", *configPath), zap.Error(err))
		}
		opts, err = options.Parse(text)
		if err != nil {
			logger.Fatal("failed to parse config", zap.String("path", *configPath), zap.Error(err))
		}
	}

	e, err := engine.New(opts)
	if err != nil {
		logger.Fatal("failed to create engine", zap.Error(err))
	}
	defer e.Destroy()

	if *filterListPath != "" {
		text, err := os.ReadFile(*filterListPath)
		if err != nil {
			logger.Fatal("failed to read filter list", zap.String("path", *filterListPath), zap.Error(err))
		}
		if !e.LoadRules(string(text)) {
			logger.Fatal("filter list produced no usable rules", zap.String("path", *filterListPath))
		}
		logger.Info("filter list loaded", zap.String("path", *filterListPath))
	}

	var sink *analytics.Sink
	if opts.Analytics.Enabled {
		sink, err = analytics.New(analytics.Options{
			Addresses: opts.Analytics.Addresses,
			Database:  opts.Analytics.Database,
			Username:  opts.Analytics.Username,
			Password:  opts.Analytics.Password,
			BatchSize: opts.Analytics.BatchSize,
		}, logger)
		if err != nil {
			logger.Fatal("failed to start analytics sink", zap.Error(err))
		}
		sink.Start()
		defer sink.Stop()
		logger.Info("analytics sink started", zap.Strings("addresses", opts.Analytics.Addresses))
	}

	if opts.Fleet.Enabled {
		interval, parseErr := time.ParseDuration(opts.Fleet.FlushInterval)
		if parseErr != nil {
			interval = 0 // fleet.New applies its own default for <= 0
		}
		agg, err := fleet.New(opts.Fleet.RedisAddr, opts.Fleet.FleetID, interval, e, logger)
		if err != nil {
			logger.Fatal("failed to start fleet aggregator", zap.Error(err))
		}
		agg.Start()
		defer agg.Stop()
		logger.Info("fleet aggregator started", zap.String("redis_addr", opts.Fleet.RedisAddr), zap.String("fleet_id", opts.Fleet.FleetID))
	}

	collector := newEngineCollector(e)
	registerer := prometheusRegisterer()
	registerer.MustRegister(collector)
	metricsHandler := prometheusHandler(registerer)

	apiServer := &fasthttp.Server{
		Handler: requestLogger(logger, apiHandler(e, logger, sink)),
		Name:    "filterd/1.0",
	}
	metricsServer := &fasthttp.Server{
		Handler: metricsHandler,
		Name:    "filterd-metrics/1.0",
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("api server starting", zap.String("address", *listen))
		if err := apiServer.ListenAndServe(*listen); err != nil {
			errs <- err
		}
	}()
	go func() {
		logger.Info("metrics server starting", zap.String("address", *metricsListen))
		if err := metricsServer.ListenAndServe(*metricsListen); err != nil {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down filterd")
	case err := <-errs:
		logger.Error("server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.ShutdownWithContext(ctx); err != nil {
		logger.Error("api server shutdown error", zap.Error(err))
	}
	if err := metricsServer.ShutdownWithContext(ctx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
}

// requestLogger tags every request with a request ID and logs its outcome,
// matching the corpus's request-ID convention.
func requestLogger(logger *zap.Logger, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		requestID := uuid.New().String()
		ctx.Response.Header.Set("X-Request-ID", requestID)
		start := time.Now()
		next(ctx)
		logger.Debug("request handled",
			zap.String("request_id", requestID),
			zap.String("path", string(ctx.Path())),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func apiHandler(e *engine.Engine, logger *zap.Logger, sink *analytics.Sink) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/v1/should_block":
			handleShouldBlock(ctx, e, sink)
		case "/v1/stats":
			ctx.SetContentType("application/json")
			ctx.SetBodyString(e.GetStats())
		case "/v1/metrics":
			ctx.SetContentType("application/json")
			ctx.SetBodyString(e.GetMetrics())
		case "/v1/load_filter_list":
			handleLoadFilterList(ctx, e, logger)
		case "/v1/reset_stats":
			if !e.ResetStats() {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				return
			}
			ctx.SetStatusCode(fasthttp.StatusNoContent)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}

type shouldBlockRequest struct {
	URL        string `json:"url"`
	SourceHost string `json:"source_host"`
}

type shouldBlockResponse struct {
	Blocked bool `json:"blocked"`
}

func handleShouldBlock(ctx *fasthttp.RequestCtx, e *engine.Engine, sink *analytics.Sink) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	var req shouldBlockRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.URL == "" {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	blocked := e.ShouldBlock(engine.Query{URL: req.URL, SourceHost: req.SourceHost})
	if sink != nil {
		sink.Record(analytics.Event{
			ID:         uuid.New(),
			Timestamp:  time.Now(),
			URL:        req.URL,
			SourceHost: req.SourceHost,
			Blocked:    blocked,
		})
	}
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(shouldBlockResponse{Blocked: blocked})
	ctx.SetBody(body)
}

func handleLoadFilterList(ctx *fasthttp.RequestCtx, e *engine.Engine, logger *zap.Logger) {
	if !ctx.IsPost() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}
	ok := e.LoadRules(string(ctx.PostBody()))
	if !ok {
		logger.Warn("load_filter_list: nothing usable compiled")
		ctx.SetStatusCode(fasthttp.StatusUnprocessableEntity)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}
