package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"engagement-engine/internal/constants"
	"engagement-engine/internal/domain"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

type webhookPayload struct {
	Notifications []domain.Notification `json:"notifications"`
}

// WebhookPublisher POSTs each batch as one JSON document.
type WebhookPublisher struct {
	url    string
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewWebhookPublisher(url string, logger zerolog.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		url: url,
		client: &fasthttp.Client{
			MaxConnsPerHost:     32,
			ReadTimeout:         constants.NotifyTimeout,
			WriteTimeout:        constants.NotifyTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, notes []domain.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	body, err := json.Marshal(webhookPayload{Notifications: notes})
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Idempotency-Key", notes[0].ID)
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.NotifyTimeout)
	}
	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook error: %d", code)
	}

	p.logger.Debug().Int("count", len(notes)).Msg("notifications delivered")
	return nil
}

func (p *WebhookPublisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
