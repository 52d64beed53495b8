package session

import (
	"context"
	"log/slog"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, email string, token string) error
}

// LogMailer writes reset tokens to the log instead of sending mail.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, email string, token string) error {
	m.Logger.InfoContext(ctx, "password reset requested", "email", email, "token", token)
	return nil
}
