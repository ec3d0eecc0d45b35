// Package notify delivers progression notifications to whatever the deployment
// has configured: NATS subjects, an HTTP webhook, or the log.
package notify

import (
	"context"
	"encoding/json"

	"engagement-engine/internal/config"
	"engagement-engine/internal/domain"

	"github.com/rs/zerolog"
)

// Publisher delivers a batch of notifications. A returned error is reported
// by the caller and never undoes the progression change that produced them.
type Publisher interface {
	Publish(ctx context.Context, notes []domain.Notification) error
	Close() error
}

func New(cfg *config.Config, logger zerolog.Logger) (Publisher, error) {
	logger = logger.With().Str("component", "notifier").Str("notifier", cfg.Notifier).Logger()

	switch cfg.Notifier {
	case config.NotifierNATS:
		return NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
	case config.NotifierWebhook:
		return NewWebhookPublisher(cfg.WebhookURL, logger), nil
	default:
		return NewLogPublisher(logger), nil
	}
}

type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, notes []domain.Notification) error {
	for _, n := range notes {
		payload, err := json.Marshal(n)
		if err != nil {
			return err
		}
		p.logger.Info().
			Str("notification_id", n.ID).
			Str("kind", string(n.Kind)).
			Str("user_id", n.UserID).
			RawJSON("payload", payload).
			Msg("notification")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
