package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/pkg/types"
)

// HTTPSender is the default pkg/types.WebhookSender, POSTing the signed
// body with a bounded per-request timeout. Grounded on the teacher's plain
// net/http usage elsewhere in the pack (no HTTP client library beyond the
// standard one is exercised for outbound calls in any example repo).
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender builds an HTTPSender whose requests are bounded by timeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, url string, body []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", "sha256="+signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// DeliveryPayload mirrors spec §6's outbound wire body shape
// {event, timestamp, data}; payloads are pre-marshalled by the engine when
// it enqueues a delivery, so this type only documents the shape.
type DeliveryPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Deliverer runs one tick of the webhook delivery job (C10): pick due
// deliveries, POST each, and record success or schedule a retry per the
// configured back-off ladder.
type Deliverer struct {
	store          *store.Store
	sender         types.WebhookSender
	batchSize      int
	retryBackoff   []time.Duration
	maxAttempts    int
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithBatchSize overrides the default batch size (25).
func WithBatchSize(n int) DelivererOption {
	return func(d *Deliverer) { d.batchSize = n }
}

// WithRetryBackoff overrides the default back-off ladder (60s, 300s).
func WithRetryBackoff(steps []time.Duration) DelivererOption {
	return func(d *Deliverer) { d.retryBackoff = steps }
}

// WithMaxAttempts overrides the default max delivery attempts before giving
// up on a single delivery row (len(retryBackoff)+1).
func WithMaxAttempts(n int) DelivererOption {
	return func(d *Deliverer) { d.maxAttempts = n }
}

// NewDeliverer builds a Deliverer.
func NewDeliverer(st *store.Store, sender types.WebhookSender, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		store:        st,
		sender:       sender,
		batchSize:    25,
		retryBackoff: []time.Duration{60 * time.Second, 300 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxAttempts == 0 {
		d.maxAttempts = len(d.retryBackoff) + 1
	}
	return d
}

// Tick runs one delivery pass: pick due rows, attempt each, and record the
// outcome (spec §4.10).
func (d *Deliverer) Tick(ctx context.Context) error {
	deliveries, err := d.store.DueDeliveries(d.batchSize)
	if err != nil {
		return fmt.Errorf("webhook: due deliveries: %w", err)
	}
	for _, dl := range deliveries {
		if err := d.attempt(ctx, dl); err != nil {
			log.Printf("[webhook] deliver %s: %v", dl.ID, err)
		}
	}
	return nil
}

func (d *Deliverer) attempt(ctx context.Context, dl types.WebhookDelivery) error {
	hook, err := d.store.GetWebhook(dl.WebhookID)
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}
	if hook == nil || !hook.Active {
		// Subscription gone or disabled since enqueue; give up silently,
		// there is nowhere left to retry to.
		return nil
	}

	sig := Sign(hook.Secret, dl.Payload)
	statusCode, sendErr := d.sender.Send(ctx, hook.URL, dl.Payload, sig)
	if sendErr == nil && statusCode >= 200 && statusCode < 300 {
		if err := d.store.MarkDelivered(dl.ID, statusCode); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
		return nil
	}

	if sendErr != nil {
		log.Printf("[webhook] transport error delivering %s to %s: %v", dl.ID, hook.URL, sendErr)
	}

	if dl.Attempt+1 >= d.maxAttempts {
		if err := d.store.MarkFailed(dl.ID, statusCode, nil); err != nil {
			return fmt.Errorf("mark failed (final): %w", err)
		}
		return nil
	}

	step := dl.Attempt
	if step >= len(d.retryBackoff) {
		step = len(d.retryBackoff) - 1
	}
	next := time.Now().UTC().Add(d.retryBackoff[step])
	if err := d.store.MarkFailed(dl.ID, statusCode, &next); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
