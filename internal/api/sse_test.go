package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpgagnon/passtrack-backend/internal/adapters/notify"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(nil)

	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)
	require.Equal(t, 2, b.SubscriberCount())

	b.Publish(notify.PaymentEvent{
		Type:       "payment",
		PassportID: 7,
		UserName:   "Samuel Turbide",
		Amount:     50,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case payload := <-ch:
			var event notify.PaymentEvent
			require.NoError(t, json.Unmarshal(payload, &event))
			assert.Equal(t, int64(7), event.PassportID)
			assert.Equal(t, "Samuel Turbide", event.UserName)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker(nil)

	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Publishing with no subscribers is a no-op
	b.Publish(map[string]string{"type": "payment"})
}

func TestBrokerDropsSlowSubscriber(t *testing.T) {
	b := NewBroker(nil)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	// Fill the buffer without draining; extra events are dropped, not blocking
	for i := 0; i < 32; i++ {
		b.Publish(map[string]int{"seq": i})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 16, received)
}
