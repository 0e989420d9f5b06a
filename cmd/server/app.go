package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/shelf-api/internal/config"
	"github.com/phrazzld/shelf-api/internal/platform/memory"
	"github.com/phrazzld/shelf-api/internal/platform/postgres"
	"github.com/phrazzld/shelf-api/internal/platform/redisqueue"
	"github.com/phrazzld/shelf-api/internal/service/auth"
	"github.com/phrazzld/shelf-api/internal/service/batch"
	"github.com/phrazzld/shelf-api/internal/store"
	"github.com/phrazzld/shelf-api/internal/task"
)

// application holds the shared dependencies so they can be started and
// released together.
type application struct {
	config *config.Config
	logger *slog.Logger

	// nil with the memory driver
	db *sql.DB

	userStore       store.UserStore
	tokenStore      store.TokenStore
	bookStore       store.BookStore
	uploadTaskStore store.UploadTaskStore

	tokenService   auth.TokenService
	accountService *auth.AccountService
	authenticator  *auth.Authenticator
	sweeper        *auth.ExpirySweeper

	taskRunner *task.Runner
	tracker    *batch.Tracker
}

// newApplication builds every component from cfg. Postgres migrations are
// applied before the stores are used.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}

	queue, err := app.setupQueue(ctx)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	app.tokenService = auth.NewTokenService(app.tokenStore, logger)
	app.accountService = auth.NewAccountService(
		app.userStore,
		app.tokenService,
		auth.NewBcryptHasher(cfg.Auth.BCryptCost),
		cfg.Auth.TokenTTL(),
		logger,
	)
	app.authenticator = auth.NewAuthenticator(app.tokenService, app.userStore, logger)
	app.sweeper = auth.NewExpirySweeper(app.tokenService, cfg.Auth.ExpirySweepInterval(), logger)

	app.taskRunner = task.NewRunner(
		app.uploadTaskStore,
		queue,
		task.NewBookProcessor(app.bookStore),
		runnerConfig(cfg.Task),
		logger,
	)
	app.tracker = batch.NewTracker(app.uploadTaskStore, app.taskRunner, batch.Config{
		InvalidRowPolicy: batch.InvalidRowPolicy(cfg.Batch.InvalidRowPolicy),
		MaxRows:          cfg.Batch.MaxRows,
	}, logger)

	logger.Info("application initialized",
		slog.Int("worker_count", cfg.Task.WorkerCount),
		slog.Int("token_ttl_hours", cfg.Auth.TokenTTLHours),
		slog.String("invalid_row_policy", cfg.Batch.InvalidRowPolicy))
	return app, nil
}

func (app *application) setupStores(ctx context.Context) error {
	switch app.config.Database.Driver {
	case "memory":
		users := memory.NewUserStore()
		books := memory.NewBookStore()
		books.Users = users
		app.userStore = users
		app.tokenStore = memory.NewTokenStore()
		app.bookStore = books
		app.uploadTaskStore = memory.NewUploadTaskStore()
		app.logger.Warn("using in-memory storage; data is lost on restart")
		return nil
	case "postgres":
		db, err := setupAppDatabase(ctx, app.config, app.logger)
		if err != nil {
			return err
		}
		if err := postgres.Migrate(ctx, db, "up", app.logger); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		app.db = db
		app.userStore = postgres.NewPostgresUserStore(db, app.logger)
		app.tokenStore = postgres.NewPostgresTokenStore(db, app.logger)
		app.bookStore = postgres.NewPostgresBookStore(db, app.logger)
		app.uploadTaskStore = postgres.NewPostgresUploadTaskStore(db, app.logger)
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", app.config.Database.Driver)
	}
}

func (app *application) setupQueue(ctx context.Context) (task.Queue, error) {
	switch app.config.Task.QueueDriver {
	case "memory":
		// One full batch fits without waiting on the workers.
		size := max(app.config.Task.QueueSize, app.config.Batch.MaxRows)
		return task.NewMemoryQueue(size, app.logger), nil
	case "redis":
		opts := redisqueue.Options{
			Addr:      app.config.Redis.Addr,
			Password:  app.config.Redis.Password,
			DB:        app.config.Redis.DB,
			QueueName: app.config.Redis.QueueName,
			DLQSuffix: app.config.Redis.DLQSuffix,
		}
		client, err := redisqueue.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return redisqueue.New(client, opts, app.logger), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver %q", app.config.Task.QueueDriver)
	}
}

func runnerConfig(cfg config.TaskConfig) task.RunnerConfig {
	return task.RunnerConfig{
		WorkerCount:            cfg.WorkerCount,
		MaxAttempts:            cfg.MaxAttempts,
		RetryDelay:             time.Duration(cfg.RetryDelaySeconds) * time.Second,
		ItemDelay:              time.Duration(cfg.ItemDelayMs) * time.Millisecond,
		TaskTimeout:            time.Duration(cfg.TaskTimeoutSeconds) * time.Second,
		StuckTaskAge:           time.Duration(cfg.StuckTaskAgeMinutes) * time.Minute,
		StuckTaskCheckInterval: time.Duration(cfg.StuckCheckIntervalMinutes) * time.Minute,
	}
}

// Run starts the background workers and serves HTTP until ctx is done.
func (app *application) Run(ctx context.Context) error {
	if err := app.taskRunner.Start(ctx); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.sweeper.Start(ctx)

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup stops background work before releasing the database.
func (app *application) cleanup() {
	if app.sweeper != nil {
		app.sweeper.Stop()
	}
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", slog.String("error", err.Error()))
		}
	}
}
