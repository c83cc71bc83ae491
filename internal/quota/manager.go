// Package quota enforces tiered per-user request limits. Counters
// live in the store; this package holds the limit table and the
// calendar-day reset policy.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/animanga/mangapipe/internal/models"
	"github.com/animanga/mangapipe/internal/store"
)

// Limits is one tier's allowance.
type Limits struct {
	Daily   int
	Monthly int
}

// Decision is the outcome of a quota check. A denied decision carries
// a human-readable reason for the client.
type Decision struct {
	Allowed      bool
	Reason       string
	DailyUsed    int
	DailyLimit   int
	MonthlyUsed  int
	MonthlyLimit int
	Tier         models.Tier
}

type Manager struct {
	st *store.Store

	mu     sync.RWMutex
	limits map[models.Tier]Limits

	// now is swappable for day-rollover tests.
	now func() time.Time
}

func New(st *store.Store, standard, premium Limits) *Manager {
	return &Manager{
		st: st,
		limits: map[models.Tier]Limits{
			models.TierStandard: standard,
			models.TierPremium:  premium,
		},
		now: time.Now,
	}
}

// Check applies the calendar-day reset and reports whether the user
// may make another chapter request. The check is advisory: it does not
// reserve anything, and usage is only recorded after the request
// actually succeeds.
func (m *Manager) Check(userID int64, tier models.Tier) (*Decision, error) {
	q, err := m.st.GetOrCreateUserQuota(userID, tier)
	if err != nil {
		return nil, fmt.Errorf("could not load quota for user %d: %w", userID, err)
	}

	today := m.now().Format("2006-01-02")
	if q.LastRequestDate != today {
		if err := m.st.ResetDailyQuotaIfNewDay(userID, today); err != nil {
			return nil, fmt.Errorf("could not reset daily quota for user %d: %w", userID, err)
		}
		q.DailyRequests = 0
		q.LastRequestDate = today
	}

	m.mu.RLock()
	limits, ok := m.limits[q.Tier]
	if !ok {
		limits = m.limits[models.TierStandard]
	}
	m.mu.RUnlock()

	d := &Decision{
		DailyUsed:    q.DailyRequests,
		DailyLimit:   limits.Daily,
		MonthlyUsed:  q.MonthlyRequests,
		MonthlyLimit: limits.Monthly,
		Tier:         q.Tier,
	}
	switch {
	case q.DailyRequests >= limits.Daily:
		d.Reason = fmt.Sprintf("daily limit of %d chapters reached", limits.Daily)
	case q.MonthlyRequests >= limits.Monthly:
		d.Reason = fmt.Sprintf("monthly limit of %d chapters reached", limits.Monthly)
	default:
		d.Allowed = true
	}
	return d, nil
}

// SetLimits swaps in new tier allowances, used when the config file
// changes at runtime. In-flight checks keep the old limits.
func (m *Manager) SetLimits(standard, premium Limits) {
	m.mu.Lock()
	m.limits = map[models.Tier]Limits{
		models.TierStandard: standard,
		models.TierPremium:  premium,
	}
	m.mu.Unlock()
}

// RecordUsage charges one successful chapter request to the user.
func (m *Manager) RecordUsage(userID int64) error {
	return m.st.IncrementQuotaUsage(userID)
}

// SetTier moves a user to a different quota class.
func (m *Manager) SetTier(userID int64, tier models.Tier) error {
	return m.st.UpdateUserTier(userID, tier)
}
