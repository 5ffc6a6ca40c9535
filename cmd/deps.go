package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/classifier"
	"github.com/frahmantamala/sms-expense-pipeline/internal/core/events"
	"github.com/frahmantamala/sms-expense-pipeline/internal/queue"
	"github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage"
	rawMessagePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/rawmessage/postgres"
	"github.com/frahmantamala/sms-expense-pipeline/internal/source"
	sourcePostgres "github.com/frahmantamala/sms-expense-pipeline/internal/source/postgres"
	"github.com/frahmantamala/sms-expense-pipeline/internal/trigger"
	triggerPostgres "github.com/frahmantamala/sms-expense-pipeline/internal/trigger/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dependencies is everything the server, the worker and the one-shot
// commands share.
type Dependencies struct {
	Config      *internal.Config
	Logger      *slog.Logger
	DB          *sqlx.DB
	Gorm        *gorm.DB
	EventBus    *events.EventBus
	Queue       queue.Queue
	Redis       *queue.RedisQueue
	Sources     *source.Service
	RawMessages rawmessage.RepositoryAPI
	Processor   *trigger.Processor
	Replayer    *trigger.Replayer
	Reconciler  *trigger.Reconciler
}

func initializeDependencies(ctx context.Context, cfg *internal.Config, lg *slog.Logger) (*Dependencies, error) {
	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db, cfg.Observability.Logging.Level)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config:      cfg,
		Logger:      lg,
		DB:          db,
		Gorm:        gormDB,
		EventBus:    events.NewEventBus(lg),
		Sources:     source.NewService(sourcePostgres.NewSourceRepository(gormDB), lg),
		RawMessages: rawMessagePostgres.NewRawMessageRepository(gormDB),
	}

	switch cfg.Queue.Driver {
	case "redis":
		deps.Redis = queue.NewRedisQueue(queue.RedisConfig{
			Addr:         cfg.Queue.RedisAddr,
			Password:     cfg.Queue.RedisPassword,
			DB:           cfg.Queue.RedisDB,
			Key:          cfg.Queue.Key,
			BlockTimeout: cfg.Queue.BlockTimeout,
		}, lg)
		if err := deps.Redis.Ping(ctx); err != nil {
			deps.Close(ctx)
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		deps.Queue = deps.Redis
	default:
		deps.Queue = queue.NewMemoryQueue(cfg.Queue.BufferSize, 0)
	}

	cls, err := classifier.New(ctx, classifier.Config{
		Provider: cfg.Classifier.Provider,
		APIURL:   cfg.Classifier.APIURL,
		APIKey:   cfg.Classifier.APIKey,
		Model:    cfg.Classifier.Model,
		Timeout:  cfg.Classifier.Timeout,
		Referer:  cfg.Classifier.Referer,
		Title:    cfg.Classifier.Title,
		Sources:  activeSourceLabels(ctx, deps.Sources, lg),
	}, lg)
	if err != nil {
		deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	deps.Processor = trigger.NewProcessor(
		deps.RawMessages,
		triggerPostgres.NewCommitter(gormDB, lg),
		cls,
		deps.Sources,
		deps.EventBus,
		trigger.Config{
			ClassifierTimeout: cfg.Classifier.Timeout,
			Limits: trigger.Limits{
				AmountMin:         cfg.Pipeline.AmountMin,
				AmountMax:         cfg.Pipeline.AmountMax,
				NoteMaxLength:     cfg.Pipeline.NoteMaxLength,
				CategoryMaxLength: cfg.Pipeline.CategoryMaxLength,
			},
		},
		lg,
	)
	deps.Replayer = trigger.NewReplayer(deps.RawMessages, deps.Queue, trigger.ReplayConfig{
		Grace:       cfg.Worker.ReplayGrace,
		MaxAttempts: cfg.Worker.MaxAttempts,
		Batch:       cfg.Worker.ReplayBatch,
	}, lg)
	deps.Reconciler = trigger.NewReconciler(triggerPostgres.NewOrphanStore(db), deps.RawMessages, cfg.Worker.ReplayBatch, lg)

	deps.EventBus.Subscribe(events.EventTypeRawMessageCreated, trigger.EnqueueOnCreated(deps.Queue, lg))
	deps.EventBus.Subscribe(events.EventTypeRawMessageProcessed, trigger.AuditOutcome(lg))

	return deps, nil
}

// Close drains pending events before releasing the queue and the database.
func (d *Dependencies) Close(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.EventBus.Drain(drainCtx); err != nil {
		d.Logger.Warn("event bus drain incomplete", "error", err)
	}

	if d.Queue != nil {
		if err := d.Queue.Close(); err != nil {
			d.Logger.Error("queue close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func activeSourceLabels(ctx context.Context, sources *source.Service, lg *slog.Logger) []string {
	active, err := sources.ListActive(ctx)
	if err != nil {
		lg.Warn("failed to load payment sources, prompting with the default list", "error", err)
		return nil
	}
	labels := make([]string, 0, len(active))
	for _, s := range active {
		labels = append(labels, s.Label)
	}
	return labels
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm layers gorm over the same pool so both share connection limits.
func initGorm(db *sqlx.DB, level string) (*gorm.DB, error) {
	logLevel := gormlogger.Warn
	if level == "debug" {
		logLevel = gormlogger.Info
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	return gormDB, nil
}

func isShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
