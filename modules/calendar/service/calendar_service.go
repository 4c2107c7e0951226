package service

import (
	"context"
	"slices"
	"sort"
	"time"
	"unicode/utf8"

	"calendar-aggregator/core/constants"
	appErrors "calendar-aggregator/core/errors"
	"calendar-aggregator/core/logger"
	"calendar-aggregator/modules/calendar/dto"
	"calendar-aggregator/modules/calendar/entity"
	"calendar-aggregator/modules/calendar/mapper"
	"calendar-aggregator/modules/calendar/provider"
	"calendar-aggregator/modules/calendar/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type CalendarService interface {
	GetWorkflowEvents(ctx context.Context, userID, workflowID uuid.UUID) (*dto.EventsResponse, error)
	// RefreshWorkflowEvents ignores cache freshness but still honors provider cooldowns.
	RefreshWorkflowEvents(ctx context.Context, userID, workflowID uuid.UUID) error
	ListAccounts(ctx context.Context, userID, workflowID uuid.UUID) (*dto.AccountsResponse, error)
	SetAccountVisibility(ctx context.Context, userID, accountID, workflowID uuid.UUID, enabled bool) (*dto.VisibilityResponse, error)
}

// CacheWarmer schedules a background refresh of one (user, workflow).
type CacheWarmer interface {
	ScheduleRefresh(ctx context.Context, userID, workflowID uuid.UUID, at time.Time) error
}

type noopWarmer struct{}

func (noopWarmer) ScheduleRefresh(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}

type Options struct {
	ProviderTimeout time.Duration
	Warmer          CacheWarmer
	Now             func() time.Time
}

type calendarService struct {
	accounts repository.AccountRepository
	tokens   TokenStore
	cache    *EventCache
	adapters map[provider.Name]provider.Adapter
	warmer   CacheWarmer
	timeout  time.Duration
	now      func() time.Time
	inflight singleflight.Group
}

func NewCalendarService(
	accounts repository.AccountRepository,
	tokens TokenStore,
	cache *EventCache,
	adapters map[provider.Name]provider.Adapter,
	opts Options,
) CalendarService {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = constants.DefaultProviderTimeout
	}
	if opts.Warmer == nil {
		opts.Warmer = noopWarmer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &calendarService{
		accounts: accounts,
		tokens:   tokens,
		cache:    cache,
		adapters: adapters,
		warmer:   opts.Warmer,
		timeout:  opts.ProviderTimeout,
		now:      opts.Now,
	}
}

// accountOutcome is what one account contributed to a live fetch.
type accountOutcome struct {
	events    []dto.EventResponse
	lastError *string
}

// providerRun is owned by a single goroutine until the group finishes.
type providerRun struct {
	name       provider.Name
	accounts   []entity.CalendarAccount
	hadSuccess bool
	throttled  bool
	retryAfter time.Duration
	outcomes   map[uuid.UUID]accountOutcome
}

type fetchResult struct {
	events    []dto.EventResponse
	lastError map[uuid.UUID]*string
}

func (s *calendarService) GetWorkflowEvents(ctx context.Context, userID, workflowID uuid.UUID) (*dto.EventsResponse, error) {
	return s.aggregate(ctx, userID, workflowID, false)
}

func (s *calendarService) RefreshWorkflowEvents(ctx context.Context, userID, workflowID uuid.UUID) error {
	_, err := s.aggregate(ctx, userID, workflowID, true)
	return err
}

func (s *calendarService) aggregate(ctx context.Context, userID, workflowID uuid.UUID, force bool) (*dto.EventsResponse, error) {
	accounts, visibility, err := s.loadAccounts(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}

	enabled := make([]entity.CalendarAccount, 0, len(accounts))
	for _, a := range accounts {
		if visibility.IsAccountEnabled(a.ID) {
			enabled = append(enabled, a)
		}
	}

	resp := &dto.EventsResponse{
		OK:       true,
		Accounts: accountResponses(accounts, visibility, nil),
		Events:   []dto.EventResponse{},
	}
	if len(enabled) == 0 {
		return resp, nil
	}

	enabledIDs := make([]string, len(enabled))
	for i, a := range enabled {
		enabledIDs[i] = a.ID.String()
	}
	sort.Strings(enabledIDs)

	prior, err := s.cache.Read(ctx, userID, workflowID)
	if err != nil {
		logger.Warn("CalendarService:aggregate:CacheRead:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
		prior = nil
	}

	now := s.now()
	if prior != nil {
		if prior.Backoff.AnyCoolingDown(providersOf(enabled), now) {
			logger.Info("CalendarService:aggregate:ServeCooldown", "user_id", userID, "workflow_id", workflowID)
			resp.Events = prior.Events
			return resp, nil
		}
		if !force && IsValid(prior, enabledIDs, CacheTTL(userID, workflowID), now) {
			resp.Events = prior.Events
			return resp, nil
		}
	}

	// Joined callers get the leader's result, computed from the leader's now
	// and prior entry. The fetch outlives the leader's request so a
	// disconnecting client cannot fail the others.
	key := userID.String() + ":" + workflowID.String()
	fetchCtx := context.WithoutCancel(ctx)
	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		return s.liveFetch(fetchCtx, userID, workflowID, enabled, enabledIDs, prior, now), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug("CalendarService:aggregate:SharedFetch", "user_id", userID, "workflow_id", workflowID)
	}

	result := v.(*fetchResult)
	resp.Accounts = accountResponses(accounts, visibility, result.lastError)
	resp.Events = result.events
	return resp, nil
}

// liveFetch calls the providers and persists the outcome. When nothing came
// back it serves the prior events instead of an empty list.
func (s *calendarService) liveFetch(
	ctx context.Context,
	userID, workflowID uuid.UUID,
	enabled []entity.CalendarAccount,
	enabledIDs []string,
	prior *CacheEntry,
	now time.Time,
) *fetchResult {
	window := provider.NewTimeWindow(now)
	runs := groupByProvider(enabled)

	var g errgroup.Group
	for _, run := range runs {
		run := run
		g.Go(func() error {
			s.fetchProvider(ctx, run, window)
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make(map[uuid.UUID]accountOutcome, len(enabled))
	for _, run := range runs {
		for id, o := range run.outcomes {
			outcomes[id] = o
		}
	}

	merged := make([]dto.EventResponse, 0)
	lastErrors := make(map[uuid.UUID]*string, len(enabled))
	for _, a := range enabled {
		o := outcomes[a.ID]
		merged = append(merged, o.events...)
		lastErrors[a.ID] = o.lastError
	}
	merged = mergeEvents(merged, constants.CalendarMergedLimit)

	backoff := BackoffState{}
	if prior != nil {
		backoff = prior.Backoff.Clone()
	}
	anySuccess := false
	var throttled []provider.Name
	for _, run := range runs {
		switch {
		case run.hadSuccess:
			anySuccess = true
			backoff.RecordSuccess(run.name)
		case run.throttled:
			until := backoff.RecordThrottle(run.name, run.retryAfter, userID, workflowID, now)
			throttled = append(throttled, run.name)
			logger.Warn("CalendarService:liveFetch:Throttled",
				"user_id", userID, "workflow_id", workflowID, "provider", run.name,
				"failure_count", backoff[run.name].FailureCount, "cooldown_until", until)
		}
	}

	served := merged
	persisted := merged
	if len(merged) == 0 && prior != nil {
		stale := eventsOfAccounts(prior.Events, enabledIDs)
		served = stale
		if !anySuccess {
			persisted = stale
		}
	}

	s.cache.Write(ctx, userID, workflowID, &CacheEntry{
		EnabledAccountIDs: enabledIDs,
		Events:            persisted,
		UpdatedAt:         now,
		Backoff:           backoff,
	})

	if at, ok := backoff.EarliestCooldown(throttled, now); ok {
		if err := s.warmer.ScheduleRefresh(ctx, userID, workflowID, at.Add(time.Second)); err != nil {
			logger.Warn("CalendarService:liveFetch:ScheduleRefresh:Error", "error", err, "user_id", userID, "workflow_id", workflowID)
		}
	}

	logger.Info("CalendarService:liveFetch:Done",
		"user_id", userID, "workflow_id", workflowID,
		"accounts", len(enabled), "events", len(served), "throttled", len(throttled))
	return &fetchResult{events: served, lastError: lastErrors}
}

// fetchProvider walks one provider's accounts in registry order.
func (s *calendarService) fetchProvider(ctx context.Context, run *providerRun, window provider.TimeWindow) {
	adapter, ok := s.adapters[run.name]
	for _, account := range run.accounts {
		if !ok {
			msg := "Unsupported calendar provider."
			run.outcomes[account.ID] = accountOutcome{lastError: &msg}
			s.setLastError(ctx, account, &msg)
			continue
		}

		accessToken, err := s.tokens.RefreshIfNeeded(ctx, account)
		if err != nil {
			// The token store already recorded the reconnect message.
			msg := provider.ReconnectMessage(run.name)
			run.outcomes[account.ID] = accountOutcome{lastError: &msg}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		events, err := adapter.ListEvents(callCtx, accessToken, window, constants.CalendarPerAccountLimit)
		cancel()

		if err != nil {
			if throttled, hint := provider.IsThrottled(err); throttled {
				run.throttled = true
				if hint > run.retryAfter {
					run.retryAfter = hint
				}
			}
			msg := truncateMessage(provider.UserMessage(err), constants.CalendarLastErrorMaxLength)
			logger.Warn("CalendarService:fetchProvider:ListEvents:Error",
				"error", err, "account_id", account.ID, "provider", run.name)
			run.outcomes[account.ID] = accountOutcome{lastError: &msg}
			s.setLastError(ctx, account, &msg)
			continue
		}

		if len(events) > constants.CalendarPerAccountLimit {
			events = events[:constants.CalendarPerAccountLimit]
		}
		run.hadSuccess = true
		run.outcomes[account.ID] = accountOutcome{events: mapper.ToEventResponses(events, account)}
		s.setLastError(ctx, account, nil)
	}
}

func (s *calendarService) setLastError(ctx context.Context, account entity.CalendarAccount, msg *string) {
	if sameMessage(account.LastError, msg) {
		return
	}
	if err := s.accounts.UpdateLastError(ctx, account.ID, msg); err != nil {
		logger.Error("CalendarService:setLastError:Error", "error", err, "account_id", account.ID)
	}
}

func (s *calendarService) ListAccounts(ctx context.Context, userID, workflowID uuid.UUID) (*dto.AccountsResponse, error) {
	accounts, visibility, err := s.loadAccounts(ctx, userID, workflowID)
	if err != nil {
		return nil, err
	}
	return &dto.AccountsResponse{OK: true, Accounts: accountResponses(accounts, visibility, nil)}, nil
}

func (s *calendarService) SetAccountVisibility(ctx context.Context, userID, accountID, workflowID uuid.UUID, enabled bool) (*dto.VisibilityResponse, error) {
	account, err := s.accounts.GetByID(ctx, userID, accountID)
	if err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrInternalServer, "failed to load calendar account", err)
	}
	if account == nil {
		return nil, appErrors.NewAppError(appErrors.ErrNotFound, "Calendar account not found", nil)
	}

	row := &entity.WorkflowVisibility{WorkflowID: workflowID, CalendarAccountID: accountID, Enabled: enabled}
	if err := s.accounts.UpsertVisibility(ctx, row); err != nil {
		return nil, appErrors.NewAppError(appErrors.ErrInternalServer, "failed to update visibility", err)
	}

	logger.Info("CalendarService:SetAccountVisibility", "user_id", userID, "account_id", accountID,
		"workflow_id", workflowID, "enabled", enabled)
	return &dto.VisibilityResponse{
		OK:         true,
		AccountID:  accountID.String(),
		WorkflowID: workflowID.String(),
		Enabled:    enabled,
	}, nil
}

func (s *calendarService) loadAccounts(ctx context.Context, userID, workflowID uuid.UUID) ([]entity.CalendarAccount, VisibilityIndex, error) {
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, appErrors.NewAppError(appErrors.ErrInternalServer, "failed to load calendar accounts", err)
	}

	ids := make([]uuid.UUID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	rows, err := s.accounts.ListVisibility(ctx, workflowID, ids)
	if err != nil {
		return nil, nil, appErrors.NewAppError(appErrors.ErrInternalServer, "failed to load calendar visibility", err)
	}
	return accounts, NewVisibilityIndex(rows), nil
}

// groupByProvider keeps first-appearance order of providers and registry
// order of accounts within each provider.
func groupByProvider(accounts []entity.CalendarAccount) []*providerRun {
	var runs []*providerRun
	index := map[provider.Name]*providerRun{}
	for _, a := range accounts {
		name := provider.Name(a.Provider)
		run, ok := index[name]
		if !ok {
			run = &providerRun{name: name, outcomes: map[uuid.UUID]accountOutcome{}}
			index[name] = run
			runs = append(runs, run)
		}
		run.accounts = append(run.accounts, a)
	}
	return runs
}

func providersOf(accounts []entity.CalendarAccount) []provider.Name {
	seen := map[provider.Name]bool{}
	var names []provider.Name
	for _, a := range accounts {
		n := provider.Name(a.Provider)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

// mergeEvents sorts by start, keeping input order for ties, and truncates.
func mergeEvents(events []dto.EventResponse, limit int) []dto.EventResponse {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}

// eventsOfAccounts drops events of accounts outside ids, which is needed when
// the enabled set changed since the events were cached.
func eventsOfAccounts(events []dto.EventResponse, ids []string) []dto.EventResponse {
	out := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		if slices.Contains(ids, e.AccountID) {
			out = append(out, e)
		}
	}
	return out
}

// accountResponses overlays this run's lastError values when given.
func accountResponses(accounts []entity.CalendarAccount, visibility VisibilityIndex, lastErrors map[uuid.UUID]*string) []dto.AccountResponse {
	out := make([]dto.AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		if msg, ok := lastErrors[a.ID]; ok {
			a.LastError = msg
		}
		out = append(out, mapper.ToAccountResponse(a, visibility.IsAccountEnabled(a.ID)))
	}
	return out
}

func truncateMessage(msg string, limit int) string {
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:limit])
}

func sameMessage(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
