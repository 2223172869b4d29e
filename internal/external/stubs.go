package external

import (
	"context"
	"fmt"
	"log/slog"

	"tickler/internal/types"
)

// StubEmailProvider logs sends instead of performing them and hands back a
// fake message ID. Active when EMAIL_PROVIDER=stub or APP_ENV=local, so the
// worker boots without real provider credentials.
type StubEmailProvider struct {
	logger *slog.Logger
}

func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", input.To,
		"subject", input.Subject,
		"from", input.From.Address,
	)
	return fmt.Sprintf("msg_stub_%s", input.ReferenceID), nil
}

var _ EmailProvider = (*StubEmailProvider)(nil)
