package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jobwatch/jobwatch/internal/subscription"
	"github.com/jobwatch/jobwatch/internal/types"
	"github.com/pkg/errors"
)

// SaveSubscription inserts the subscription, assigning its ID, or updates the
// stored row when the ID is already set.
func (s *Store) SaveSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.ID == 0 {
		if time.Time(sub.CreatedAt).IsZero() {
			sub.CreatedAt = types.UnixMilli(time.Now())
		}

		stmt := buildInsertStmt(sub, "name", "filter", "channel_type", "recipient", "token_hash", "created_at")

		return s.inTx(ctx, func(tx *sqlx.Tx) error {
			id, err := insertAndFetchID(ctx, tx, stmt, sub)
			if err != nil {
				return err
			}

			sub.ID = id
			return nil
		})
	}

	stmt := `UPDATE subscription
SET name = :name, filter = :filter, channel_type = :channel_type, recipient = :recipient
WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, stmt, sub)
	if err != nil {
		return errors.Wrapf(err, "cannot update subscription %d", sub.ID)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteSubscription removes the subscription and, via cascade, its
// notification history. Returns ErrNotFound for unknown IDs.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subscription WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "cannot delete subscription %d", id)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	return nil
}

// SubscriptionByID returns one subscription or ErrNotFound.
func (s *Store) SubscriptionByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	var sub subscription.Subscription

	err := s.db.GetContext(ctx, &sub,
		`SELECT id, name, filter, channel_type, recipient, token_hash, created_at FROM subscription WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "cannot select subscription %d", id)
	}

	return &sub, nil
}

// Subscriptions returns all subscriptions ordered by ID. This implements the
// subscription.Source interface for the runtime view.
func (s *Store) Subscriptions(ctx context.Context) ([]*subscription.Subscription, error) {
	var subs []*subscription.Subscription

	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, name, filter, channel_type, recipient, token_hash, created_at FROM subscription ORDER BY id`)
	return subs, errors.Wrap(err, "cannot select subscriptions")
}

// AddHistory records a delivered notification. Returns false if this
// (subscription, posting) pair was recorded before.
func (s *Store) AddHistory(ctx context.Context, entry *subscription.NotificationHistory) (bool, error) {
	stmt := `INSERT INTO notification_history (id, subscription_id, posting_id, channel_type, sent_at)
VALUES (:id, :subscription_id, :posting_id, :channel_type, :sent_at)
ON CONFLICT (subscription_id, posting_id) DO NOTHING`

	result, err := s.db.NamedExecContext(ctx, stmt, entry)
	if err != nil {
		return false, errors.Wrap(err, "cannot insert notification history")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "cannot fetch affected history rows")
	}

	return affected > 0, nil
}

// HistoryBySubscription returns the newest history entries of one
// subscription, at most limit many.
func (s *Store) HistoryBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]*subscription.NotificationHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []*subscription.NotificationHistory

	err := s.db.SelectContext(ctx, &entries,
		`SELECT id, subscription_id, posting_id, channel_type, sent_at FROM notification_history
WHERE subscription_id = ? ORDER BY sent_at DESC LIMIT ?`, subscriptionID, limit)
	return entries, errors.Wrapf(err, "cannot select history of subscription %d", subscriptionID)
}
