package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pdfqa/internal/ai"
	"pdfqa/internal/app"
	"pdfqa/internal/cache"
	"pdfqa/internal/config"
	"pdfqa/internal/metrics"
	"pdfqa/internal/pkg/pdfextract"
	mysqlClient "pdfqa/internal/platform/mysql"
	rabbitmqClient "pdfqa/internal/platform/rabbitmq"
	redisClient "pdfqa/internal/platform/redis"
	"pdfqa/internal/repository"
	"pdfqa/internal/session"
	"pdfqa/internal/worker"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	QA      *app.QAService
	// History is nil unless history recording is enabled.
	History *repository.QAExchangeRepository

	Redis         *redis.Client
	MySQL         *gorm.DB
	MQConn        *amqp.Connection
	HistoryWorker *worker.ExchangePersistWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.New(cfg.App.Name),
		StartedAt: time.Now(),
	}

	store, err := a.newSessionStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	policy, err := session.NewKeyPolicy(cfg.Session.KeyPolicy)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithObserver(a.Metrics),
	}
	if cfg.History.Enabled {
		publisher, err := a.startHistory(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts = append(opts, app.WithHistoryPublisher(publisher))
	}

	a.QA = app.NewQAService(
		pdfextract.NewExtractor(),
		store,
		policy,
		newCompletionClient(cfg),
		opts...,
	)

	logger.Info("application initialised",
		"session_policy", policy.Name(),
		"session_backend", cfg.Session.Backend,
		"history_enabled", cfg.History.Enabled,
		"breaker_enabled", cfg.Completion.Breaker.Enabled,
	)
	return a, nil
}

func (a *App) newSessionStore(ctx context.Context) (session.Store, error) {
	cfg := a.Config
	if cfg.SessionTTL() == 0 {
		a.Logger.Warn("session eviction disabled: uploaded documents are kept until restart",
			"backend", cfg.Session.Backend)
	}

	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(cfg.SessionTTL()), nil
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	a.Redis = redisCli
	return cache.NewSessionCache(redisCli, cfg.SessionTTL()), nil
}

func (a *App) startHistory(ctx context.Context) (*rabbitmqClient.ExchangePublisher, error) {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	a.MySQL = mysqlDB
	if err := mysqlClient.Migrate(mysqlDB); err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	a.MQConn = mqConn

	a.History = repository.NewQAExchangeRepository(mysqlDB)
	a.HistoryWorker = worker.NewExchangePersistWorker(mqConn, a.History, cfg.RabbitMQ.HistoryQueue, a.Logger)
	if err := a.HistoryWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start history worker failed: %w", err)
	}

	return rabbitmqClient.NewExchangePublisher(mqConn, cfg.RabbitMQ.HistoryQueue), nil
}

func newCompletionClient(cfg *config.Config) *ai.CompletionClient {
	var opts []ai.Option
	if cfg.Completion.Breaker.Enabled {
		opts = append(opts, ai.WithBreaker(ai.NewBreaker("completion", ai.BreakerConfig{
			MinRequests:  uint32(cfg.Completion.Breaker.MinRequests),
			FailureRatio: cfg.Completion.Breaker.FailureRatio,
			OpenTimeout:  time.Duration(cfg.Completion.Breaker.OpenTimeoutSeconds) * time.Second,
		})))
	}
	return ai.NewCompletionClient(ai.CompletionConfig{
		URL:            cfg.Completion.URL,
		Model:          cfg.Completion.Model,
		DeveloperToken: cfg.Completion.DeveloperToken,
		Timeout:        cfg.CompletionTimeout(),
	}, opts...)
}

// HealthChecks returns a probe for every dependency this instance connected to.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if a.Redis != nil {
		checks["redis"] = redisClient.Checker(a.Redis)
	}
	if a.MySQL != nil {
		checks["mysql"] = mysqlClient.Checker(a.MySQL)
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = rabbitmqClient.Checker(a.MQConn)
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.HistoryWorker != nil {
		a.HistoryWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
