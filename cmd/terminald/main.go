package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/gateway"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/hub"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/journal"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider/alpaca"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/provider/sim"
	"github.com/Kyle-Grantland/finterm/cmd/terminald/internal/repository"
	"github.com/Kyle-Grantland/finterm/pkg/config"
	"github.com/Kyle-Grantland/finterm/pkg/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger, err := config.NewLogger(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	wsHub := hub.New(logger, cfg.Stream.FlushInterval)
	defer wsHub.Dispose()

	// Optional quote snapshot cache
	var snapshots repository.SnapshotStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := repository.NewRedisStore(rdb, logger)
		wsHub.SetSnapshotSink(store)
		snapshots = store
		defer store.Close()
		logger.Info("Snapshot cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Optional event journal
	if len(cfg.Kafka.Brokers) > 0 {
		spec := journal.TopicSpec{
			Name:              cfg.Kafka.Topic,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
		}
		if err := journal.EnsureTopic(logger, &journal.RealKafkaDialer{Dialer: kafka.DefaultDialer}, nil, cfg.Kafka.Brokers, spec); err != nil {
			logger.Warn("Journal topic not ready, writes may fail until the broker catches up", zap.Error(err))
		}

		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.Hash{},
		}
		j := journal.NewJournal(logger, writer, nil)
		wsHub.Register(j)
		defer j.Close()
		logger.Info("Event journal enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	registry := provider.NewRegistry(
		provider.Registration{
			ID:   alpaca.ID,
			Name: "Alpaca Markets",
			News: true,
			New: func(l *zap.Logger) provider.MarketDataProvider {
				return alpaca.New(l, cfg.Stream)
			},
		},
		provider.Registration{
			ID:   sim.ID,
			Name: "Simulator",
			New: func(l *zap.Logger) provider.MarketDataProvider {
				return sim.New(l, nil, nil)
			},
		},
	)

	manager := provider.NewManager(registry, wsHub.Events(), logger)
	defer manager.Dispose()

	providerCfg := models.ProviderConfig{
		APIKey:    cfg.Provider.APIKey,
		APISecret: cfg.Provider.APISecret,
		BaseURL:   cfg.Provider.BaseURL,
		WSURL:     cfg.Provider.WSURL,
		Sandbox:   cfg.Provider.Sandbox,
	}
	if err := manager.Activate(context.Background(), cfg.Provider.ID, providerCfg); err != nil {
		// The daemon still serves /api/provider/credentials so the user can
		// fix their keys without a restart
		logger.Error("Provider activation failed", zap.String("provider", cfg.Provider.ID), zap.Error(err))
	}

	handler := gateway.NewHandler(logger, manager, wsHub, snapshots)
	srv := &http.Server{Addr: cfg.App.Port, Handler: handler.Routes()}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	srv.Shutdown(context.Background())
	logger.Info("Shutdown Complete")
}
