package external

import (
	"context"

	"tickler/internal/types"
)

// EmailProvider sends one pre-rendered email (subject plus HTML/text bodies)
// and reports the provider-assigned message ID so deliveries can be
// correlated back to reminder messages.
type EmailProvider interface {
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
