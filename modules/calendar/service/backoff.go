package service

import (
	"hash/fnv"
	"strconv"
	"time"

	"calendar-aggregator/core/constants"
	"calendar-aggregator/modules/calendar/provider"

	"github.com/google/uuid"
)

// ProviderBackoff is Idle when FailureCount is 0 and CooldownUntil is nil,
// Cooling(FailureCount) otherwise.
type ProviderBackoff struct {
	FailureCount  int
	CooldownUntil *time.Time
}

// BackoffState is the per-provider throttling state of one (user, workflow).
type BackoffState map[provider.Name]ProviderBackoff

func (s BackoffState) Clone() BackoffState {
	out := make(BackoffState, len(s))
	for k, v := range s {
		if v.CooldownUntil != nil {
			until := *v.CooldownUntil
			v.CooldownUntil = &until
		}
		out[k] = v
	}
	return out
}

func (s BackoffState) IsCoolingDown(name provider.Name, now time.Time) bool {
	b, ok := s[name]
	return ok && b.CooldownUntil != nil && b.CooldownUntil.After(now)
}

// AnyCoolingDown only looks at the given providers, so a provider without
// enabled accounts never blocks a request.
func (s BackoffState) AnyCoolingDown(names []provider.Name, now time.Time) bool {
	for _, n := range names {
		if s.IsCoolingDown(n, now) {
			return true
		}
	}
	return false
}

// RecordSuccess returns the provider to Idle.
func (s BackoffState) RecordSuccess(name provider.Name) {
	s[name] = ProviderBackoff{}
}

// RecordThrottle advances the provider to Cooling(n+1) and returns the new
// cooldown deadline.
func (s BackoffState) RecordThrottle(name provider.Name, retryAfter time.Duration, userID, workflowID uuid.UUID, now time.Time) time.Time {
	prev := s[name]
	count := prev.FailureCount + 1
	if count > constants.BackoffMaxFailureCount {
		count = constants.BackoffMaxFailureCount
	}

	until := now.Add(CooldownDelay(count, retryAfter) + cooldownJitter(userID, workflowID, name, now))
	s[name] = ProviderBackoff{FailureCount: count, CooldownUntil: &until}
	return until
}

// CooldownDelay is 30s * 2^failureCount, raised to the retry-after hint when
// that is larger, capped at 15 minutes. Jitter is added separately.
func CooldownDelay(failureCount int, retryAfter time.Duration) time.Duration {
	if failureCount < 1 {
		failureCount = 1
	}
	if failureCount > constants.BackoffMaxFailureCount {
		failureCount = constants.BackoffMaxFailureCount
	}

	delay := constants.BackoffBaseDelay << failureCount
	if retryAfter > delay {
		delay = retryAfter
	}
	if delay > constants.BackoffMaxDelay {
		delay = constants.BackoffMaxDelay
	}
	return delay
}

// cooldownJitter spreads retries of different users throttled on the same
// tick over 0.25s to 3.25s.
func cooldownJitter(userID, workflowID uuid.UUID, name provider.Name, now time.Time) time.Duration {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID.String()))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(workflowID.String()))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))

	spanMs := uint32(constants.BackoffJitterSpan / time.Millisecond)
	return constants.BackoffMinJitter + time.Duration(h.Sum32()%(spanMs+1))*time.Millisecond
}

// EarliestCooldown returns the soonest future deadline among names.
func (s BackoffState) EarliestCooldown(names []provider.Name, now time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, n := range names {
		b, ok := s[n]
		if !ok || b.CooldownUntil == nil || !b.CooldownUntil.After(now) {
			continue
		}
		if !found || b.CooldownUntil.Before(earliest) {
			earliest = *b.CooldownUntil
			found = true
		}
	}
	return earliest, found
}

// encode splits the state into the two persisted maps.
func (s BackoffState) encode() (map[string]time.Time, map[string]int) {
	cooldowns := make(map[string]time.Time, len(s))
	counts := make(map[string]int, len(s))
	for name, b := range s {
		counts[string(name)] = b.FailureCount
		if b.CooldownUntil != nil {
			cooldowns[string(name)] = b.CooldownUntil.UTC()
		}
	}
	return cooldowns, counts
}

func decodeBackoff(cooldowns map[string]time.Time, counts map[string]int) BackoffState {
	state := BackoffState{}
	for n, count := range counts {
		name := provider.Name(n)
		if !name.Valid() {
			continue
		}
		state[name] = ProviderBackoff{FailureCount: min(max(count, 0), constants.BackoffMaxFailureCount)}
	}
	for n, until := range cooldowns {
		name := provider.Name(n)
		if !name.Valid() || until.IsZero() {
			continue
		}
		b := state[name]
		u := until
		b.CooldownUntil = &u
		state[name] = b
	}
	return state
}
