package db

import (
	"context"

	"tickler/internal/types"
)

// SubscriptionRepository provides read access to the subscriptions table.
// Subscription rows are written by the settings service; the scheduler only
// ever lists them, so no mutation methods exist here.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListEnabled returns every subscription that is enabled and carries a
// non-empty schedule, ordered by creation time for deterministic batch
// iteration. Returns an empty slice (not nil) when nothing matches.
func (r *SubscriptionRepository) ListEnabled(ctx context.Context) ([]types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_ref, kind, schedule, enabled, created_at, updated_at
		 FROM subscriptions
		 WHERE enabled = TRUE AND schedule <> ''
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query subscriptions", err)
	}
	defer rows.Close()

	subs := make([]types.Subscription, 0)
	for rows.Next() {
		var s types.Subscription
		if err := rows.Scan(
			&s.ID,
			&s.UserRef,
			&s.Kind,
			&s.Schedule,
			&s.Enabled,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating subscriptions", err)
	}

	return subs, nil
}
