package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/config"
	httpapi "github.com/sawpanic/gerun/internal/interfaces/http"
	"github.com/sawpanic/gerun/internal/marketdata"
	"github.com/sawpanic/gerun/internal/signals"
	"github.com/sawpanic/gerun/internal/store"
	"github.com/sawpanic/gerun/internal/store/postgres"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	engine, err := alloc.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}

	metrics := httpapi.NewMetricsRegistry()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prices := marketdata.NewPricesClient(cfg.Prices, metrics)
	defer prices.Close()
	var source marketdata.Source = prices

	buffer := signals.NewBuffer()

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}

		source = marketdata.NewCachedSource(prices, marketdata.NewTickCache(client, cfg.Redis.TickTTL, metrics))

		batcher := signals.NewBatcher(cfg.Batch.Size, cfg.Batch.Interval, func(_ context.Context, opps []alloc.Opportunity) {
			buffer.Store(opps)
		})
		consumer := signals.NewConsumer(client, cfg.Consumer, batcher, metrics)
		go batcher.Run(ctx)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("signal consumer exited")
			}
		}()
	}

	var (
		plans   store.PlansRepo
		journal httpapi.Pinger
	)
	if cfg.Postgres.DSN != "" {
		db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Postgres.Timeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("postgres unreachable: %w", err)
		}

		repo := postgres.NewPlansRepo(db, cfg.Postgres.Timeout)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		plans = repo
		journal = repo
		log.Info().Msg("plan journal connected")
	}

	hub := httpapi.NewPlanHub(metrics)
	go hub.Run(ctx)

	go pollTicks(ctx, source, cfg.Prices.PollInterval)

	handlers := httpapi.NewHandlers(httpapi.Deps{
		Engine:  engine,
		Metrics: metrics,
		Buffer:  buffer,
		Plans:   plans,
		Hub:     hub,
	})
	health := httpapi.NewHealthHandler(engine, source, journal, hub, version, buildStamp)

	server, err := httpapi.NewServer(cfg.Server, handlers, health)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("allocation service stopped")
	return nil
}

// pollTicks keeps the tick snapshot warm so /health and the Redis tick cache
// see fresh prices even when no allocation requests arrive. An interval of
// zero disables polling.
func pollTicks(ctx context.Context, source marketdata.Source, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ticks, err := source.LatestTicks(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("tick poll failed")
				continue
			}
			log.Debug().Int("items", len(ticks)).Msg("tick snapshot refreshed")
		}
	}
}
