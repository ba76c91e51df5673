package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

type stubSender struct {
	sent []SendParams
	err  error
}

func (s *stubSender) Send(params SendParams) error {
	s.sent = append(s.sent, params)
	return s.err
}

type stubEmailLog struct {
	entries []*storage.EmailLog
}

func (s *stubEmailLog) LogEmail(entry *storage.EmailLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubPublisher struct {
	events []interface{}
}

func (s *stubPublisher) Publish(event interface{}) {
	s.events = append(s.events, event)
}

func testEvent(optOut bool) Event {
	return Event{
		Type: EventPaymentReceived,
		Passport: &storage.Passport{
			ID:            42,
			PassCode:      "PC-42",
			SoldAmt:       decimal.NewFromFloat(50.00),
			UsesRemaining: 10,
			User: &storage.User{
				Name:        "Samuel Turbide",
				Email:       "sam@example.com",
				EmailOptOut: optOut,
			},
		},
		Activity:   &storage.Activity{Name: "Hockey du lundi"},
		AdminEmail: "gmail-bot@system",
		Timestamp:  time.Now().UTC(),
	}
}

func TestNotifyPassEvent_SendsAndLogs(t *testing.T) {
	sender := &stubSender{}
	emailLog := &stubEmailLog{}
	n := NewNotifier(sender, emailLog, nil, nil)

	require.NoError(t, n.NotifyPassEvent(context.Background(), testEvent(false)))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "sam@example.com", sender.sent[0].To)
	assert.Equal(t, "payment_received", sender.sent[0].TemplateName)
	assert.Contains(t, sender.sent[0].Subject, "Hockey du lundi")
	assert.Equal(t, "50.00", sender.sent[0].Context["Amount"])

	require.Len(t, emailLog.entries, 1)
	assert.Equal(t, "sent", emailLog.entries[0].Status)
	assert.Equal(t, "PC-42", emailLog.entries[0].PassCode)
}

func TestNotifyPassEvent_FailureIsLogged(t *testing.T) {
	sender := &stubSender{err: errors.New("smtp timeout")}
	emailLog := &stubEmailLog{}
	n := NewNotifier(sender, emailLog, nil, nil)

	err := n.NotifyPassEvent(context.Background(), testEvent(false))
	require.Error(t, err)

	require.Len(t, emailLog.entries, 1)
	assert.Equal(t, "failed", emailLog.entries[0].Status)
}

func TestNotifyPassEvent_OptOutSkips(t *testing.T) {
	sender := &stubSender{}
	emailLog := &stubEmailLog{}
	n := NewNotifier(sender, emailLog, nil, nil)

	require.NoError(t, n.NotifyPassEvent(context.Background(), testEvent(true)))
	assert.Empty(t, sender.sent)
	assert.Empty(t, emailLog.entries)
}

func TestNotifyPassEvent_LateReminderSubject(t *testing.T) {
	sender := &stubSender{}
	n := NewNotifier(sender, &stubEmailLog{}, nil, nil)

	event := testEvent(false)
	event.Type = EventPaymentLate
	require.NoError(t, n.NotifyPassEvent(context.Background(), event))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "Rappel de paiement")
	assert.Equal(t, "payment_late", sender.sent[0].TemplateName)
}

func TestEmitPaymentNotification(t *testing.T) {
	publisher := &stubPublisher{}
	n := NewNotifier(&stubSender{}, &stubEmailLog{}, publisher, nil)

	n.EmitPaymentNotification(testEvent(false).Passport)

	require.Len(t, publisher.events, 1)
	event, ok := publisher.events[0].(PaymentEvent)
	require.True(t, ok)
	assert.Equal(t, "payment", event.Type)
	assert.Equal(t, int64(42), event.PassportID)
	assert.Equal(t, "Samuel Turbide", event.UserName)
	assert.InDelta(t, 50.00, event.Amount, 0.001)
}

func TestEmitPaymentNotification_NilPublisherIsNoop(t *testing.T) {
	n := NewNotifier(&stubSender{}, &stubEmailLog{}, nil, nil)
	n.EmitPaymentNotification(testEvent(false).Passport) // must not panic
}

func TestRenderTemplates(t *testing.T) {
	for _, name := range []string{"payment_received", "payment_late"} {
		body, err := Render(name, map[string]interface{}{
			"UserName":      "Samuel Turbide",
			"Amount":        "50.00",
			"ActivityName":  "Hockey du lundi",
			"PassCode":      "PC-42",
			"UsesRemaining": 10,
		})
		require.NoError(t, err, name)
		assert.True(t, strings.Contains(body, "Samuel Turbide"), name)
		assert.True(t, strings.Contains(body, "50.00"), name)
	}
}
