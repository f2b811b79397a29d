package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/manenim/server-rate-limiter/pkg/config"
	"github.com/manenim/server-rate-limiter/pkg/httpmw"
	"github.com/manenim/server-rate-limiter/pkg/ratelimit"
)

func main() {
	var (
		listenAddr  = flag.String("listen", ":8080", "HTTP listen address")
		redisAddr   = flag.String("redis-addr", "", "Redis address (default REDIS_ADDR or localhost:6379)")
		sectionFile = flag.String("sections", "sections.json", "path to the section rules JSON")
		atomic      = flag.Bool("atomic", false, "evaluate with a single server-side script")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		addr = "localhost:6379"
	}

	sections, err := config.LoadOrWrite(*sectionFile, ratelimit.Sections{
		"ip": {Amount: 10, Interval: time.Minute, Timeout: 30 * time.Second},
	}, logger)
	if err != nil {
		logger.Error("loading sections", "err", err)
		os.Exit(1)
	}
	if err := sections.Validate(); err != nil {
		logger.Error("invalid sections", "err", err)
		os.Exit(1)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	reg := prometheus.NewRegistry()
	recorder := ratelimit.NewPromRecorder(reg)

	opts := []ratelimit.Option{
		ratelimit.WithPrefix("demo:"),
		ratelimit.WithTimeout(100 * time.Millisecond),
		ratelimit.WithRecorder(recorder),
	}
	if *atomic {
		opts = append(opts, ratelimit.WithAtomicEvaluate())
	}

	limiter, err := ratelimit.NewRedisLimiter(client, sections, opts...)
	if err != nil {
		logger.Error("connecting to redis", "addr", addr, "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	guard := httpmw.Middleware(httpmw.Options{
		Limiter:             limiter,
		Section:             "ip",
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		Local:               httpmw.NewLocalFilter(ctx, 50, 100),
		Logger:              logger,
	})

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte("Pong!\n"))
		})
	})

	logger.Info("listening", "addr", *listenAddr, "redis", addr)
	if err := http.ListenAndServe(*listenAddr, r); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
