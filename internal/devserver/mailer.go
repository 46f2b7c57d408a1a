package devserver

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers the comfort email of a user
type Mailer interface {
	SendComfortEmail(ctx context.Context, user string) error
}

// LogMailer only logs the email it would have sent
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a mailer that writes to the log
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendComfortEmail implements Mailer
func (m *LogMailer) SendComfortEmail(ctx context.Context, user string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.logger.Info("Comfort email sent", zap.String("user", user))
	return nil
}
