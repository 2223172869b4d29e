package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tickler/internal/types"
)

// RecipientRepository provides read access to the user_contacts table. The
// email worker resolves each reminder's user_ref to a contact record at send
// time.
type RecipientRepository struct {
	db DBTX
}

// NewRecipientRepository creates a new RecipientRepository backed by the
// given database connection (pool or transaction).
func NewRecipientRepository(db DBTX) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// Lookup returns the contact record for a user reference. A missing row maps
// to ErrCodeNotFoundSubscription's sibling not-found semantics: the worker
// treats it as a permanent, non-retryable failure.
func (r *RecipientRepository) Lookup(ctx context.Context, userRef string) (types.Recipient, error) {
	var rec types.Recipient
	err := r.db.QueryRow(ctx,
		`SELECT user_ref, email, display_name
		 FROM user_contacts
		 WHERE user_ref = $1`,
		userRef,
	).Scan(
		&rec.UserRef,
		&rec.Email,
		&rec.DisplayName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Recipient{}, types.NewAppError(
				types.ErrCodeNotFoundSubscription,
				fmt.Sprintf("no contact record for user %q", userRef),
				err,
			)
		}
		return types.Recipient{}, types.NewAppError(types.ErrCodeInternalDB, "failed to look up recipient", err)
	}
	return rec, nil
}
