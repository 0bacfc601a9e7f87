package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/auth"
	"github.com/nimasrn/congregation-messenger/internal/config"
	"github.com/nimasrn/congregation-messenger/internal/cost"
	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/handlers"
	"github.com/nimasrn/congregation-messenger/internal/history"
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/notify"
	"github.com/nimasrn/congregation-messenger/internal/phone"
	"github.com/nimasrn/congregation-messenger/internal/queue"
	"github.com/nimasrn/congregation-messenger/internal/recipients"
	"github.com/nimasrn/congregation-messenger/internal/repository"
	"github.com/nimasrn/congregation-messenger/internal/retry"
	"github.com/nimasrn/congregation-messenger/internal/services"
	"github.com/nimasrn/congregation-messenger/internal/store"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
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
	logger.Info("starting api", "version", version, "commit", commit, "date", date)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.MetricsListenAddr, cfg.MetricsURI)

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: "api",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}
	defer redisAdap.Close()

	ctx := context.Background()
	st, closer, err := openStore(ctx, cfg, redisAdap)
	if err != nil {
		logger.Error("failed to open record store", "driver", cfg.StoreDriver, "error", err)
		return
	}
	defer closer.Close()

	deliveryQueue, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              cfg.QueueName,
		ConsumerGroup:     cfg.QueueConsumerGroup,
		ConsumerName:      cfg.QueueConsumerName,
		MaxRetries:        cfg.QueueMaxRetries,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BatchSize:         cfg.QueueBatchSize,
		MaxLen:            cfg.QueueMaxLen,
		EnableDLQ:         cfg.QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating delivery queue", "error", err)
		return
	}

	normalizer, err := phone.NewNormalizer(cfg.PhoneCountryCode, cfg.PhoneCanonicalLength)
	if err != nil {
		logger.Error("invalid phone plan", "error", err)
		return
	}

	smsGateway, err := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.GatewayBaseURL,
		APIKey:          cfg.GatewayAPIKey,
		SenderID:        cfg.GatewaySenderID,
		Timeout:         cfg.GatewayTimeout,
		MaxConns:        64,
		ReadBufferSize:  1024 * 4,
		WriteBufferSize: 1024 * 4,
	})
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		return
	}
	if !cfg.GatewayConfigured() {
		logger.Warn("gateway credentials missing, sends will be refused until configured")
	}

	authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logger.Error("failed to create authenticator", "driver", cfg.AuthDriver, "error", err)
		return
	}

	// repositories
	memberRepo := repository.NewMemberRepository(st)
	orgRepo := repository.NewOrganizationRepository(st)
	templateRepo := repository.NewTemplateRepository(st)
	historyRepo := repository.NewHistoryRepository(st)

	// changes made by other replicas or the firestore console
	stopWatch, err := memberRepo.Watch(ctx, func(kind store.ChangeKind, m *model.Member) {
		logger.Info("member record changed", "kind", kind, "id", m.ID, "code", m.Code)
	})
	if err != nil {
		logger.Warn("member change feed unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	// services
	center := notify.NewCenter(200)
	broadcastService := services.NewBroadcastService(
		smsGateway,
		memberRepo,
		recipients.NewResolver(normalizer),
		history.NewRecorder(historyRepo),
		center,
		services.BroadcastOptions{
			Policy:       retry.Policy{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay},
			FallbackName: cfg.FallbackDisplayName,
			Estimator:    cost.NewEstimator(cfg.SMSUnitPrice),
		},
	)
	directoryService := services.NewDirectoryService(memberRepo, orgRepo, templateRepo, historyRepo, normalizer)

	// transport
	opts := xhttp.DefaultServerOption
	opts.Name = cfg.AppName
	opts.ReadBufferSize = 1024 * 16
	opts.WriteBufferSize = 1024 * 16
	opts.WriteTimeout = cfg.HttpRequestTimeout + 5*time.Second
	s := xhttp.NewServer(opts)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))

	guards := handlers.NewGuards(authenticator)
	g := s.Router.Group("/api/v1")
	handlers.RegisterBroadcastRoutes(g, handlers.NewBroadcastHandler(broadcastService), guards)
	handlers.RegisterDirectoryRoutes(g, handlers.NewDirectoryHandler(directoryService), guards)
	handlers.RegisterNotificationRoutes(g, handlers.NewNotificationHandler(center), guards)
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(smsGateway), guards)
	handlers.RegisterWebhookRoutes(g, handlers.NewWebhookHandler(deliveryQueue))

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	if err := s.Shutdown(); err != nil {
		logger.Error("http-server shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config, redisAdap redis.RedisAdapter) (store.Store, io.Closer, error) {
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
	// replicas share change notifications over redis
	feed := store.NewRedisFeed(redisAdap.Client(), cfg.RedisUniversalKeyPrefix+"store:changes:")
	return store.NewGormStore(db, feed), db, nil
}

func newAuthenticator(ctx context.Context, cfg *config.Config) (auth.Authenticator, error) {
	if cfg.AuthDriver == "firebase" {
		return auth.NewFirebaseAuthenticator(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials)
	}
	return auth.NewJWTAuthenticator(cfg.AuthJWTSigningKey, cfg.AuthJWTIssuer)
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
