package webhook

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/onchainscore/scoringcore/internal/store"
	"github.com/onchainscore/scoringcore/internal/testutil"
	"github.com/onchainscore/scoringcore/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	sig := Sign("supersecret", []byte(`{"event":"score.updated"}`))
	require.True(t, Verify("supersecret", []byte(`{"event":"score.updated"}`), sig))
	require.False(t, Verify("wrongsecret", []byte(`{"event":"score.updated"}`), sig))
}

func TestDelivererMarksSuccessAndResetsFailures(t *testing.T) {
	s := newTestStore(t)
	wh, err := s.CreateWebhook(types.Webhook{Wallet: "0xaaa", URL: "https://example.test/hook", Secret: "shh", Events: []string{"score.updated"}})
	require.NoError(t, err)
	require.NoError(t, s.EnqueueDelivery(types.WebhookDelivery{WebhookID: wh.ID, EventType: "score.updated", Payload: []byte(`{"event":"score.updated"}`)}))

	sender := &testutil.FakeWebhookSender{StatusCode: 200}
	d := NewDeliverer(s, sender)
	require.NoError(t, d.Tick(context.Background()))

	require.Len(t, sender.Deliveries, 1)
	require.Equal(t, "https://example.test/hook", sender.Deliveries[0].URL)
	require.True(t, Verify("shh", sender.Deliveries[0].Body, sender.Deliveries[0].Signature))

	due, err := s.DueDeliveries(10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestDelivererDisablesWebhookAfterFiveFailures(t *testing.T) {
	s := newTestStore(t)
	wh, err := s.CreateWebhook(types.Webhook{Wallet: "0xbbb", URL: "https://example.test/hook", Secret: "shh", Events: []string{"score.updated"}})
	require.NoError(t, err)

	sender := &testutil.FakeWebhookSender{StatusCode: 500}
	d := NewDeliverer(s, sender, WithRetryBackoff(nil), WithMaxAttempts(1))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.EnqueueDelivery(types.WebhookDelivery{WebhookID: wh.ID, EventType: "score.updated", Payload: []byte(`{}`)}))
		require.NoError(t, d.Tick(context.Background()))
	}

	got, err := s.GetWebhook(wh.ID)
	require.NoError(t, err)
	require.False(t, got.Active)

	// a sixth event produces no delivered row and Tick skips it silently
	require.NoError(t, s.EnqueueDelivery(types.WebhookDelivery{WebhookID: wh.ID, EventType: "score.updated", Payload: []byte(`{}`)}))
	require.NoError(t, d.Tick(context.Background()))
	require.Len(t, sender.Deliveries, 5) // 6th never attempted: webhook inactive
}
