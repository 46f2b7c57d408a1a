package usecase

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

// ErrEmailInFlight is returned when a comfort email is requested while one is being sent
var ErrEmailInFlight = errors.New("comfort email already in flight")

// ComfortEmail is the "send me a comfort email" action of the dashboard
type ComfortEmail struct {
	mailer   repositories.ComfortMailer
	alerts   repositories.AlertPresenter
	messages Messages
	logger   *zap.Logger

	inFlight atomic.Bool
}

// NewComfortEmail creates the action
func NewComfortEmail(mailer repositories.ComfortMailer, alerts repositories.AlertPresenter, messages Messages, logger *zap.Logger) *ComfortEmail {
	if logger == nil {
		logger = zap.NewNop()
	}
	if messages.EmailFailed == "" {
		messages = MessagesFor("")
	}
	return &ComfortEmail{
		mailer:   mailer,
		alerts:   alerts,
		messages: messages,
		logger:   logger,
	}
}

// InFlight reports whether a request is pending, i.e. the button is disabled
func (c *ComfortEmail) InFlight() bool {
	return c.inFlight.Load()
}

// Send requests the email and shows the server's message as an alert
func (c *ComfortEmail) Send(ctx context.Context) (*repositories.ComfortEmailResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.alerts.Show(c.messages.EmailInFlight, entities.SeverityInfo)
		return nil, ErrEmailInFlight
	}
	defer c.inFlight.Store(false)

	result, err := c.mailer.SendComfortEmail(ctx)
	if err != nil {
		c.logger.Error("Error sending comfort email", zap.Error(err))
		c.alerts.Show(c.messages.EmailFailed, entities.SeverityDanger)
		return nil, err
	}

	severity := entities.SeveritySuccess
	if !result.Success {
		severity = entities.SeverityDanger
	}
	c.alerts.Show(result.Message, severity)
	return result, nil
}
