package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"engagement-engine/internal/domain"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher sends each notification to <prefix>.<kind>. The notification
// id travels as Nats-Msg-Id so JetStream consumers can drop redeliveries.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger zerolog.Logger
}

func NewNATSPublisher(url, prefix string, logger zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("engagement-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	logger.Info().Str("url", nc.ConnectedUrlRedacted()).Str("prefix", prefix).Msg("nats connected")
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

func (p *NATSPublisher) Subject(kind domain.NotificationKind) string {
	return p.prefix + "." + string(kind)
}

func (p *NATSPublisher) Publish(ctx context.Context, notes []domain.Notification) error {
	var errs []error
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		msg := nats.NewMsg(p.Subject(n.Kind))
		msg.Data = data
		msg.Header.Set(nats.MsgIdHdr, n.ID)

		if err := p.nc.PublishMsg(msg); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", n.ID, err))
			continue
		}
		p.logger.Debug().Str("subject", msg.Subject).Str("notification_id", n.ID).Msg("notification published")
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return p.nc.FlushWithContext(ctx)
}

func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
