package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pasteline/cfg"
	"pasteline/svc/api"
	"pasteline/svc/db"
	"pasteline/svc/events"
	"pasteline/svc/lim"
	"pasteline/svc/svc"
	"pasteline/svc/util"

	"golang.org/x/sync/errgroup"
)

type backend interface {
	svc.Backend
	Close() error
}

type publisher interface {
	svc.Publisher
	Close() error
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "-health" {
		os.Exit(healthcheck())
	}

	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().
		Str("environment", c.Environment).
		Bool("test_mode", c.TestMode).
		Msg("starting pasteline")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var (
		store   backend
		counter lim.Counter
	)
	if c.RedisURL != "" {
		rdb, err := db.NewRedis(c.RedisURL, c)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to connect to redis")
		}
		util.Info().Bool("tls", c.RedisTLS).Msg("redis connected")
		store, counter = rdb, rdb
	} else {
		sqlDB, err := db.NewSQLite(c.DatabasePath)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to initialize database")
		}
		util.Warn().Str("path", c.DatabasePath).Msg("REDIS_URL unset, using sqlite backend")
		store = sqlDB
		g.Go(func() error { return svc.RunCleaner(gctx, sqlDB, c.CleanupInterval) })
		g.Go(func() error { return db.RunWALMaintenance(gctx, sqlDB.DB()) })
	}
	defer store.Close()

	var pub publisher = events.Nop{}
	if url := c.AMQPURL.Value(); url != "" {
		a, err := events.NewAMQP(url, c.AMQPExchange)
		if err != nil {
			util.Fatal().Err(err).Msg("failed to connect to message broker")
		}
		util.Info().Str("exchange", c.AMQPExchange).Msg("event publishing enabled")
		pub = a
	}
	defer pub.Close()

	pasteSvc := svc.NewPaste(store, pub, c.BaseURL)
	pasteSvc.SetMaxSize(c.MaxPasteSize)

	limiter, err := lim.New(lim.Config{
		GlobalRPM:         c.RateLimit.RPM,
		Burst:             c.RateLimit.Burst,
		ConservativeLimit: c.RateLimit.ConservativeLimit,
		CacheSize:         c.LimiterCacheSize,
		TrustedProxies:    c.TrustedProxies,
	}, counter)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to initialize rate limiter")
	}
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("per_ip", c.RateLimit.ConservativeLimit).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")
	g.Go(func() error { return limiter.Watch().Run(gctx) })

	server := api.NewServer(c, pasteSvc, limiter)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		util.Info().Msg("shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		util.Error().Err(err).Msg("shutdown with error")
		return
	}
	util.Info().Msg("shutdown complete")
}

// healthcheck probes the local server, for container HEALTHCHECK use.
func healthcheck() int {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://127.0.0.1:" + port + "/api/healthz")
	if err != nil {
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}
