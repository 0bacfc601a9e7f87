package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/congregation-messenger/internal/config"
	"github.com/nimasrn/congregation-messenger/internal/processor"
	"github.com/nimasrn/congregation-messenger/internal/queue"
	"github.com/nimasrn/congregation-messenger/internal/repository"
	"github.com/nimasrn/congregation-messenger/internal/store"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/pg"
	"github.com/nimasrn/congregation-messenger/pkg/prom"
	"github.com/nimasrn/congregation-messenger/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer logger.Sync() //nolint

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if len(cfg.LogLevel) > 0 {
		logger.SetLevel(cfg.LogLevel[0])
	}
	logger.Info("starting delivery processor", "version", version, "commit", commit, "date", date)

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: "processor",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redisAdap.Close()

	st, closer, err := openStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to open record store", "driver", cfg.StoreDriver, "error", err)
		return
	}
	defer closer.Close()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.MetricsListenAddr, cfg.MetricsURI)

	reports := repository.NewDeliveryReportRepository(st)
	idempotencyService := processor.NewIdempotencyService(redisAdap, processor.DefaultIdempotencyConfig())

	consumerName := cfg.QueueConsumerName
	if consumerName == "" {
		consumerName = hostname
	}
	service := processor.NewProcessorService(redisAdap, processor.NewDeliveryReportProcessor(reports, idempotencyService), processor.Options{
		Queue: queue.QueueConfig{
			Name:              cfg.QueueName,
			ConsumerGroup:     cfg.QueueConsumerGroup,
			ConsumerName:      consumerName,
			MaxRetries:        cfg.QueueMaxRetries,
			VisibilityTimeout: cfg.QueueVisibilityTimeout,
			PollInterval:      cfg.QueuePollInterval,
			BatchSize:         cfg.QueueBatchSize,
			MaxLen:            cfg.QueueMaxLen,
			EnableDLQ:         cfg.QueueEnableDLQ,
		},
		Consumers: cfg.QueueConsumers,
		Workers:   20,
	})

	log := logger.With("consumer", consumerName, "queue", cfg.QueueName)
	if err := service.Start(); err != nil {
		log.Error("failed to start processor", "error", err)
		return
	}
	log.Info("processor started", "consumers", cfg.QueueConsumers)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c
	log.Info("shutting down processor", "signal", sig.String())
	service.Stop()
	log.Info("processor stopped", "stats", service.Metrics().GetStats())
}

// openStore needs no change feed, the processor only appends reports.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, io.Closer, error) {
	if cfg.StoreDriver == "firestore" {
		fs, err := store.NewFirestoreStore(ctx, store.FirestoreConfig{
			ProjectID:       cfg.FirestoreProjectID,
			CredentialsFile: cfg.GoogleCredentialsFile,
			Root:            cfg.FirestoreCollectionsRoot,
		})
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	}

	readConf := pg.Config{
		User:     cfg.PostgresReadUser,
		Host:     cfg.PostgresReadHost,
		Port:     cfg.PostgresReadPort,
		Password: cfg.PostgresReadPassword,
		Database: cfg.PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, cfg.AppEnv == "dev")
	if err != nil {
		return nil, nil, err
	}
	return store.NewGormStore(db, nil), db, nil
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
