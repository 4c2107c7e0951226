package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	coreEntity "calendar-aggregator/core/entity"
	"calendar-aggregator/modules/calendar/entity"
	"calendar-aggregator/modules/calendar/provider"

	"github.com/google/uuid"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newAccount(userID uuid.UUID, name provider.Name, email string, created time.Time) entity.CalendarAccount {
	return entity.CalendarAccount{
		BaseEntity: coreEntity.BaseEntity{ID: uuid.New(), CreatedAt: created},
		UserID:     userID,
		Provider:   string(name),
		Email:      email,
	}
}

type fakeAccountRepo struct {
	mu         sync.Mutex
	accounts   []entity.CalendarAccount
	visibility []entity.WorkflowVisibility
	lastErrors map[uuid.UUID]*string
	listErr    error
}

func newFakeAccountRepo(accounts ...entity.CalendarAccount) *fakeAccountRepo {
	return &fakeAccountRepo{accounts: accounts, lastErrors: map[uuid.UUID]*string{}}
}

func (f *fakeAccountRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]entity.CalendarAccount, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []entity.CalendarAccount
	for _, a := range f.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, userID, accountID uuid.UUID) (*entity.CalendarAccount, error) {
	for _, a := range f.accounts {
		if a.ID == accountID && a.UserID == userID {
			acc := a
			return &acc, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) UpdateLastError(_ context.Context, accountID uuid.UUID, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErrors[accountID] = lastError
	return nil
}

func (f *fakeAccountRepo) lastError(accountID uuid.UUID) (*string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.lastErrors[accountID]
	return v, ok
}

func (f *fakeAccountRepo) ListVisibility(_ context.Context, workflowID uuid.UUID, _ []uuid.UUID) ([]entity.WorkflowVisibility, error) {
	var out []entity.WorkflowVisibility
	for _, v := range f.visibility {
		if v.WorkflowID == workflowID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) UpsertVisibility(_ context.Context, v *entity.WorkflowVisibility) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, row := range f.visibility {
		if row.WorkflowID == v.WorkflowID && row.CalendarAccountID == v.CalendarAccountID {
			f.visibility[i].Enabled = v.Enabled
			return nil
		}
	}
	f.visibility = append(f.visibility, *v)
	return nil
}

type fakeTokenRepo struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*entity.CalendarAccountToken
	updates int
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{rows: map[uuid.UUID]*entity.CalendarAccountToken{}}
}

func (f *fakeTokenRepo) GetByAccountID(_ context.Context, accountID uuid.UUID) (*entity.CalendarAccountToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[accountID]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeTokenRepo) Upsert(_ context.Context, token *entity.CalendarAccountToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *token
	if existing, ok := f.rows[token.CalendarAccountID]; ok && cp.RefreshTokenEnc == nil {
		cp.RefreshTokenEnc = existing.RefreshTokenEnc
	}
	f.rows[token.CalendarAccountID] = &cp
	return nil
}

func (f *fakeTokenRepo) UpdateAccessToken(_ context.Context, accountID uuid.UUID, accessTokenEnc string, refreshTokenEnc *string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[accountID]
	if !ok {
		return errors.New("no row")
	}
	f.updates++
	row.AccessTokenEnc = accessTokenEnc
	if refreshTokenEnc != nil {
		row.RefreshTokenEnc = refreshTokenEnc
	}
	row.ExpiresAt = expiresAt
	return nil
}

// fakeTokenStore hands out "token-<accountID>" unless told to fail.
type fakeTokenStore struct {
	fail map[uuid.UUID]bool
}

func (f *fakeTokenStore) Get(_ context.Context, accountID uuid.UUID) (*provider.Token, error) {
	return &provider.Token{AccessToken: "token-" + accountID.String(), ExpiresAt: testNow.Add(time.Hour)}, nil
}

func (f *fakeTokenStore) RefreshIfNeeded(_ context.Context, account entity.CalendarAccount) (string, error) {
	if f.fail[account.ID] {
		return "", ErrRefreshFailed
	}
	return "token-" + account.ID.String(), nil
}

func (f *fakeTokenStore) Save(context.Context, uuid.UUID, provider.Token) error {
	return nil
}

type fakeCacheStore struct {
	mu        sync.Mutex
	rows      map[string]*entity.EventsCache
	gets      int
	upserts   int
	failWrite bool
	failRead  bool
}

func newFakeCacheStore() *fakeCacheStore {
	return &fakeCacheStore{rows: map[string]*entity.EventsCache{}}
}

func cacheKey(userID, workflowID uuid.UUID) string {
	return userID.String() + ":" + workflowID.String()
}

func (f *fakeCacheStore) Get(_ context.Context, userID, workflowID uuid.UUID) (*entity.EventsCache, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.failRead {
		return nil, errors.New("read failed")
	}
	row, ok := f.rows[cacheKey(userID, workflowID)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeCacheStore) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeCacheStore) Upsert(_ context.Context, row *entity.EventsCache) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.failWrite {
		return errors.New("write failed")
	}
	cp := *row
	f.rows[cacheKey(row.UserID, row.WorkflowID)] = &cp
	return nil
}

type listFunc func(accessToken string) ([]provider.Event, error)

type fakeAdapter struct {
	name    provider.Name
	calls   atomic.Int32
	mu      sync.Mutex
	list    listFunc
	// listCtx, when set, replaces list and sees the call context.
	listCtx func(ctx context.Context, accessToken string) ([]provider.Event, error)
	windows []provider.TimeWindow
	limits  []int
}

func newFakeAdapter(name provider.Name, list listFunc) *fakeAdapter {
	return &fakeAdapter{name: name, list: list}
}

func (f *fakeAdapter) Name() provider.Name { return f.name }

func (f *fakeAdapter) ListEvents(ctx context.Context, accessToken string, window provider.TimeWindow, limit int) ([]provider.Event, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.windows = append(f.windows, window)
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	if f.listCtx != nil {
		return f.listCtx(ctx, accessToken)
	}
	return f.list(accessToken)
}

func (f *fakeAdapter) RefreshToken(context.Context, string) (*provider.Token, error) {
	return nil, errors.New("not used")
}

type scheduled struct {
	userID, workflowID uuid.UUID
	at                 time.Time
}

type fakeWarmer struct {
	mu    sync.Mutex
	calls []scheduled
}

func (f *fakeWarmer) ScheduleRefresh(_ context.Context, userID, workflowID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scheduled{userID, workflowID, at})
	return nil
}

func eventsAt(prefix string, starts ...time.Time) []provider.Event {
	out := make([]provider.Event, len(starts))
	for i, s := range starts {
		end := s.Add(30 * time.Minute)
		out[i] = provider.Event{ID: prefix + "-" + s.Format("1504"), Title: prefix, Start: s, End: &end}
	}
	return out
}

func throttledErr(name provider.Name, retryAfter time.Duration) error {
	return &provider.UpstreamError{Provider: name, Status: 429, Message: "Too Many Requests", RetryAfter: retryAfter}
}
