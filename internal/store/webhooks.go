package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/onchainscore/scoringcore/pkg/types"
	"gorm.io/gorm"
)

const maxConsecutiveFailures = 5

// CreateWebhook inserts a new active webhook subscription.
func (s *Store) CreateWebhook(w types.Webhook) (types.Webhook, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	rec := webhookRecord{
		ID:     w.ID,
		Wallet: strings.ToLower(w.Wallet),
		URL:    w.URL,
		Secret: w.Secret,
		Events: strings.Join(w.Events, ","),
		Active: true,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return types.Webhook{}, fmt.Errorf("create webhook: %w", err)
	}
	w.Active = true
	return w, nil
}

// EnqueueDelivery stores a pending delivery row for a webhook event.
func (s *Store) EnqueueDelivery(d types.WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	rec := webhookDeliveryRecord{
		ID:        d.ID,
		WebhookID: d.WebhookID,
		EventType: d.EventType,
		Payload:   d.Payload,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// ActiveWebhooksForEvent returns active webhooks subscribed to eventType,
// used when the engine enqueues a score.updated event (spec §4.5 step 3m).
func (s *Store) ActiveWebhooksForEvent(wallet, eventType string) ([]types.Webhook, error) {
	var recs []webhookRecord
	err := s.db.Where("wallet = ? AND active = ?", strings.ToLower(wallet), true).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("active webhooks: %w", err)
	}
	out := make([]types.Webhook, 0, len(recs))
	for _, r := range recs {
		events := strings.Split(r.Events, ",")
		for _, e := range events {
			if e == eventType {
				out = append(out, webhookFromRecord(r))
				break
			}
		}
	}
	return out, nil
}

func webhookFromRecord(r webhookRecord) types.Webhook {
	var events []string
	if r.Events != "" {
		events = strings.Split(r.Events, ",")
	}
	return types.Webhook{
		ID:                  r.ID,
		Wallet:              r.Wallet,
		URL:                 r.URL,
		Secret:              r.Secret,
		Events:              events,
		Active:              r.Active,
		ConsecutiveFailures: r.ConsecutiveFailures,
	}
}

// DueDeliveries returns pending deliveries ready to attempt: not yet
// delivered, and either never attempted or due per next_retry_at (spec §4.10).
// A row whose last failure left next_retry_at nil has been given up on and
// is not returned.
func (s *Store) DueDeliveries(batchSize int) ([]types.WebhookDelivery, error) {
	var recs []webhookDeliveryRecord
	t := now()
	err := s.db.Where("delivered_at IS NULL AND ((next_retry_at IS NULL AND attempt = 0) OR next_retry_at <= ?)", t).
		Limit(batchSize).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("due deliveries: %w", err)
	}
	out := make([]types.WebhookDelivery, len(recs))
	for i, r := range recs {
		out[i] = types.WebhookDelivery{
			ID:          r.ID,
			WebhookID:   r.WebhookID,
			EventType:   r.EventType,
			Payload:     r.Payload,
			Attempt:     r.Attempt,
			NextRetryAt: r.NextRetryAt,
			StatusCode:  r.StatusCode,
			DeliveredAt: r.DeliveredAt,
		}
	}
	return out, nil
}

// GetWebhook returns a webhook by id.
func (s *Store) GetWebhook(id string) (*types.Webhook, error) {
	var r webhookRecord
	err := s.db.Where("id = ?", id).First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	w := webhookFromRecord(r)
	return &w, nil
}

// MarkDelivered records a successful delivery and resets the webhook's
// consecutive-failure counter (spec §4.10).
func (s *Store) MarkDelivered(deliveryID string, statusCode int) error {
	return s.txn(func(tx *gorm.DB) error {
		t := now()
		var d webhookDeliveryRecord
		if err := tx.Where("id = ?", deliveryID).First(&d).Error; err != nil {
			return fmt.Errorf("mark delivered: load delivery: %w", err)
		}
		d.DeliveredAt = &t
		d.StatusCode = statusCode
		if err := tx.Save(&d).Error; err != nil {
			return fmt.Errorf("mark delivered: save delivery: %w", err)
		}
		if err := tx.Model(&webhookRecord{}).Where("id = ?", d.WebhookID).
			Update("consecutive_failures", 0).Error; err != nil {
			return fmt.Errorf("mark delivered: reset failures: %w", err)
		}
		return nil
	})
}

// MarkFailed increments the delivery attempt, schedules the next retry (or
// leaves it nil to signal "give up"), and bumps the webhook's
// consecutive-failure counter, auto-disabling it once the threshold is
// reached (spec §4.10, §8 scenario F).
func (s *Store) MarkFailed(deliveryID string, statusCode int, nextRetryAt *time.Time) error {
	return s.txn(func(tx *gorm.DB) error {
		var d webhookDeliveryRecord
		if err := tx.Where("id = ?", deliveryID).First(&d).Error; err != nil {
			return fmt.Errorf("mark failed: load delivery: %w", err)
		}
		d.Attempt++
		d.StatusCode = statusCode
		d.NextRetryAt = nextRetryAt
		if err := tx.Save(&d).Error; err != nil {
			return fmt.Errorf("mark failed: save delivery: %w", err)
		}

		var wh webhookRecord
		if err := tx.Where("id = ?", d.WebhookID).First(&wh).Error; err != nil {
			return fmt.Errorf("mark failed: load webhook: %w", err)
		}
		wh.ConsecutiveFailures++
		if wh.ConsecutiveFailures >= maxConsecutiveFailures {
			wh.Active = false
		}
		if err := tx.Save(&wh).Error; err != nil {
			return fmt.Errorf("mark failed: save webhook: %w", err)
		}
		return nil
	})
}
