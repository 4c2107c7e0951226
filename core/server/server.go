package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"calendar-aggregator/core/cache"
	"calendar-aggregator/core/config"
	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/controller"
	"calendar-aggregator/core/database"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/core/middleware"
	"calendar-aggregator/modules/calendar"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// Run starts the HTTP server and, when enabled, the calendar task worker.
// It blocks until SIGINT or SIGTERM.
func Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	logger.SetJSON(cfg.Log.JSON)

	db, err := database.InitDB(database.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	var redisCache cache.Cache
	if cfg.Calendar.CacheBackend == "redis" {
		redisCache, err = cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer redisCache.Close()
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	var taskClient *asynq.Client
	deps := calendar.Deps{DB: &db, Cache: redisCache, Config: cfg}
	if cfg.Calendar.WarmerEnabled {
		taskClient = asynq.NewClient(redisOpt)
		defer taskClient.Close()
		deps.Enqueuer = taskClient
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = controller.HTTPErrorHandler
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	module, err := calendar.Init(ctx, e, deps)
	if err != nil {
		return err
	}

	var taskServer *asynq.Server
	if cfg.Calendar.WarmerEnabled {
		taskServer = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{constants.QueueCalendar: 1},
		})
		mux := asynq.NewServeMux()
		module.TaskHandler.Register(mux)
		if err := taskServer.Start(mux); err != nil {
			return fmt.Errorf("start task server: %w", err)
		}
		logger.Info("Server:Run:TaskServerStarted", "queue", constants.QueueCalendar)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server:Run:Listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Server:Run:Shutdown")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if taskServer != nil {
		taskServer.Shutdown()
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server:Run:Shutdown:Error", "error", err)
		return err
	}
	return nil
}
