package calendar

import (
	"context"
	"fmt"
	"net/http"

	"calendar-aggregator/core/cache"
	"calendar-aggregator/core/config"
	"calendar-aggregator/core/constants"
	"calendar-aggregator/core/database"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/core/middleware"
	"calendar-aggregator/core/utils"
	"calendar-aggregator/modules/calendar/controller"
	"calendar-aggregator/modules/calendar/provider"
	"calendar-aggregator/modules/calendar/repository"
	"calendar-aggregator/modules/calendar/router"
	"calendar-aggregator/modules/calendar/service"
	"calendar-aggregator/modules/calendar/worker"

	"github.com/labstack/echo/v4"
)

// Deps are the shared resources the calendar module runs on. Cache is
// required only for the redis cache backend; Enqueuer only when the warmer
// is enabled.
type Deps struct {
	DB       database.IDatabase
	Cache    cache.Cache
	Enqueuer worker.Enqueuer
	Config   *config.Config
}

// Module exposes what the server needs after Init.
type Module struct {
	Service     service.CalendarService
	TaskHandler *worker.WarmEventsHandler
}

func Init(ctx context.Context, e *echo.Echo, deps Deps) (*Module, error) {
	cfg := deps.Config

	if err := repository.EnsureSchema(ctx, deps.DB); err != nil {
		return nil, fmt.Errorf("calendar schema: %w", err)
	}

	// Initialize layers
	accountRepo := repository.NewAccountRepository(deps.DB)
	tokenRepo := repository.NewTokenRepository(deps.DB)

	cacheStore, err := newEventsCacheStore(cfg.Calendar.CacheBackend, deps)
	if err != nil {
		return nil, err
	}

	tokenCipher, err := utils.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Calendar.ProviderTimeout}
	adapters := map[provider.Name]provider.Adapter{
		provider.Google: provider.NewGoogleAdapter(provider.GoogleConfig{
			ClientID:     cfg.GoogleAPI.ClientID,
			ClientSecret: cfg.GoogleAPI.ClientSecret,
			HTTPClient:   httpClient,
		}),
		provider.Microsoft: provider.NewMicrosoftAdapter(provider.MicrosoftConfig{
			ClientID:     cfg.MicrosoftAPI.ClientID,
			ClientSecret: cfg.MicrosoftAPI.ClientSecret,
			Tenant:       cfg.MicrosoftAPI.Tenant,
			HTTPClient:   httpClient,
		}),
	}

	tokenStore := service.NewTokenStore(tokenRepo, accountRepo, tokenCipher, adapters, cfg.Calendar.ProviderTimeout)

	opts := service.Options{ProviderTimeout: cfg.Calendar.ProviderTimeout}
	if cfg.Calendar.WarmerEnabled {
		if deps.Enqueuer == nil {
			return nil, fmt.Errorf("calendar warmer enabled without a task client")
		}
		opts.Warmer = worker.NewWarmer(deps.Enqueuer)
	}

	calendarService := service.NewCalendarService(accountRepo, tokenStore, service.NewEventCache(cacheStore), adapters, opts)
	calendarController := controller.NewCalendarController(calendarService)

	// Setup routes
	router.NewCalendarRouter(calendarController).Setup(e, middleware.AuthMiddleware(cfg.JWT.Secret))

	logger.Info("Calendar:Init",
		"cache_backend", cfg.Calendar.CacheBackend,
		"provider_timeout", cfg.Calendar.ProviderTimeout,
		"warmer_enabled", cfg.Calendar.WarmerEnabled,
	)

	return &Module{
		Service:     calendarService,
		TaskHandler: worker.NewWarmEventsHandler(calendarService),
	}, nil
}

func newEventsCacheStore(backend string, deps Deps) (repository.EventsCacheStore, error) {
	switch backend {
	case "redis":
		if deps.Cache == nil {
			return nil, fmt.Errorf("redis cache backend selected but no cache configured")
		}
		return repository.NewRedisEventsCacheStore(deps.Cache, constants.CalendarRedisRetention), nil
	case "", "postgres":
		return repository.NewPostgresEventsCacheStore(deps.DB), nil
	default:
		return nil, fmt.Errorf("unknown calendar cache backend: %s", backend)
	}
}
