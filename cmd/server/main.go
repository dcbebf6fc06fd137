package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailops/internal/api"
	"mailops/internal/clock"
	"mailops/internal/config"
	"mailops/internal/job"
	"mailops/internal/mail"
	"mailops/internal/metrics"
	"mailops/internal/model"
	"mailops/internal/notify"
	"mailops/internal/order"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
	"mailops/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(cfg.Server.Environment)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := initRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db, err := initDB(cfg.MySQL)
	if err != nil {
		return err
	}

	// Repositories
	taskRepo := repository.NewTaskRepository(db)
	execRepo := repository.NewExecutionRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	emailRepo := repository.NewEmailRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	syncLogRepo := repository.NewSyncLogRepository(db)

	// Collaborators
	clk := clock.New()
	observer := metrics.NewPrometheusObserver()
	transport := mail.NewIMAPTransport(cfg.Mail.Credentials, cfg.Mail.DialTimeout)
	notifier := notify.NewThrottledNotifier(notify.NewLogNotifier(), rdb, cfg.Notify.ThrottleTTL)
	statusClient := order.NewCachedStatusClient(
		order.NewHTTPStatusClient(cfg.OrderAPI.BaseURL, cfg.OrderAPI.Timeout),
		rdb, cfg.OrderAPI.CacheTTL,
	)

	// Job bodies
	registry := scheduler.NewRegistry()
	registry.Register(model.TaskTypeMailboxSync,
		job.NewMailboxSyncJob(accountRepo, emailRepo, syncLogRepo, transport, clk))
	registry.Register(model.TaskTypeOrderSync,
		job.NewOrderExtractJob(accountRepo, emailRepo, orderRepo, transport))
	registry.Register(model.TaskTypeOrderStatusUpdate,
		job.NewOrderStatusJob(orderRepo, statusClient))
	registry.Register(model.TaskTypeCleanup,
		job.NewCleanupJob(execRepo, syncLogRepo, clk))
	registry.Register(model.TaskTypeBackup,
		job.NewBackupJob(taskRepo, cfg.Backup.Directory, clk))

	// Control plane
	dispatcher := scheduler.NewDispatcher(ctx, execRepo, taskRepo, registry, clk, observer, cfg.Scheduler.MaxWorkers)
	retry := scheduler.NewRetryController(ctx, dispatcher, notifier, clk, observer)
	dispatcher.SetRetryHandler(retry)

	sched := scheduler.NewScheduler(taskRepo, dispatcher, clk, cfg.Scheduler.TickInterval, observer)
	if err := sched.SeedNextRuns(ctx); err != nil {
		return fmt.Errorf("failed to seed schedules: %w", err)
	}
	go func() {
		logger.Info("starting scheduler")
		sched.Run(ctx)
	}()

	// HTTP ops surface
	handler := api.NewTaskHandler(db, taskRepo, execRepo, accountRepo, syncLogRepo, dispatcher, clk)
	r := api.RegisterRoutes(handler, rdb, cfg.RateLimit.RequestsPerSecond)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop the scheduler before draining so no new executions start.
	cancel()
	dispatcher.Drain()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited properly")
	return nil
}

// -- Infrastructure Initializers --

func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func initDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	// Simple auto-migrate for dev convenience
	err = db.AutoMigrate(
		&model.Task{},
		&model.Execution{},
		&model.MailboxAccount{},
		&model.EmailRecord{},
		&model.Order{},
		&model.OrderItem{},
		&model.SyncLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}
