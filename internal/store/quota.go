package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/animanga/mangapipe/internal/models"
)

// GetOrCreateUserQuota fetches a user's quota row, creating it with
// zeroed counters on first sight.
func (s *Store) GetOrCreateUserQuota(userID int64, tier models.Tier) (*models.UserQuota, error) {
	q, err := s.getUserQuota(userID)
	if err != nil {
		return nil, err
	}
	if q != nil {
		return q, nil
	}

	today := time.Now().Format("2006-01-02")
	// A concurrent first request may insert the same row; ignore the
	// conflict and read it back.
	_, err = s.db.Exec(`
        INSERT INTO user_quotas (user_id, tier, daily_requests, monthly_requests, last_request_date, created_at)
        VALUES (?, ?, 0, 0, ?, ?)
        ON CONFLICT(user_id) DO NOTHING;
    `, userID, string(tier), today, time.Now())
	if err != nil {
		return nil, err
	}
	return s.getUserQuota(userID)
}

func (s *Store) getUserQuota(userID int64) (*models.UserQuota, error) {
	var q models.UserQuota
	var tier string
	err := s.db.QueryRow(`
        SELECT user_id, tier, daily_requests, monthly_requests, last_request_date, created_at
        FROM user_quotas WHERE user_id = ?
    `, userID).Scan(&q.UserID, &tier, &q.DailyRequests, &q.MonthlyRequests, &q.LastRequestDate, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Tier = models.Tier(tier)
	return &q, nil
}

// ResetDailyQuotaIfNewDay zeroes the daily counter the first time a
// user is seen on a new calendar day. The date comparison and reset
// are one statement so concurrent requests can't double-reset.
func (s *Store) ResetDailyQuotaIfNewDay(userID int64, today string) error {
	_, err := s.db.Exec(`
        UPDATE user_quotas SET daily_requests = 0, last_request_date = ?
        WHERE user_id = ? AND last_request_date <> ?
    `, today, userID, today)
	return err
}

// IncrementQuotaUsage bumps both counters for a user in a single
// statement.
func (s *Store) IncrementQuotaUsage(userID int64) error {
	_, err := s.db.Exec(`
        UPDATE user_quotas
        SET daily_requests = daily_requests + 1,
            monthly_requests = monthly_requests + 1
        WHERE user_id = ?
    `, userID)
	return err
}

// UpdateUserTier changes a user's quota class.
func (s *Store) UpdateUserTier(userID int64, tier models.Tier) error {
	_, err := s.db.Exec("UPDATE user_quotas SET tier = ? WHERE user_id = ?", string(tier), userID)
	return err
}

// ResetMonthlyCounters zeroes every user's monthly counter. Nothing
// calls this on a schedule; the reset cadence is an operator decision.
func (s *Store) ResetMonthlyCounters() error {
	_, err := s.db.Exec("UPDATE user_quotas SET monthly_requests = 0")
	return err
}
