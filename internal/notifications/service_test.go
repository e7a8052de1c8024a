package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/pkg/enums"
	"github.com/angelmondragon/digimart-backend/pkg/logger"
	"github.com/angelmondragon/digimart-backend/pkg/outbox"
	"github.com/angelmondragon/digimart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/digimart-backend/pkg/outbox/registry"
)

func TestProcessDispatchesWalletTopUp(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	userID := uuid.New()
	msg := buildTopUpMessage(t, userID, 12550)

	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if handler.notification.RecipientID != userID {
		t.Fatalf("unexpected recipient %s", handler.notification.RecipientID)
	}
	if handler.notification.EventType != enums.EventWalletToppedUp {
		t.Fatalf("unexpected event type %s", handler.notification.EventType)
	}
	if handler.notification.Body != "Your wallet was credited $125.50." {
		t.Fatalf("unexpected body %q", handler.notification.Body)
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected one idempotency check, got %d", len(manager.checked))
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{checkResult: true}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	msg := buildTopUpMessage(t, uuid.New(), 1000)
	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestService(t, handler, manager)

	msg := buildTopUpMessage(t, uuid.New(), 1000)
	res := svc.process(context.Background(), msg)
	if !res.nack {
		t.Fatalf("expected nack on handler error")
	}
	if len(manager.deleted) != 1 {
		t.Fatalf("expected idempotency delete on failure")
	}
}

func TestProcessInvalidEnvelope(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	msg := &gcppubsub.Message{Data: []byte("invalid json")}
	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("invalid envelope should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency manager should not be touched")
	}
}

func TestProcessUnsupportedEventSkipsIdempotency(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	// ticket_assigned carries no decoder, so the message acks untouched.
	msg := buildMessage(t, payloads.TicketAssignedEvent{
		TicketID:    uuid.New(),
		ModeratorID: uuid.New(),
	}, enums.EventTicketAssigned)

	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("unsupported event should ack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked")
	}
	if len(manager.checked) != 0 {
		t.Fatalf("idempotency manager should not be touched")
	}
}

func TestProcessDefaultsEnvelopeVersion(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	svc := newTestService(t, handler, manager)

	// Services emit with a zero version; the consumer reads it as v1.
	payload := mustJSON(t, payloads.EscrowReleasedEvent{
		OrderItemID:  uuid.New(),
		SellerUserID: uuid.New(),
		AmountCents:  10000,
		FeeCents:     500,
	})
	env := outbox.PayloadEnvelope{
		Version:    0,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	msg := buildEnvelopeMessage(t, env, enums.EventEscrowReleased)

	res := svc.process(context.Background(), msg)
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if handler.notification.Body != "$95.00 was released to your wallet." {
		t.Fatalf("unexpected body %q", handler.notification.Body)
	}
}

func newTestService(t *testing.T, handler Handler, manager *stubManager) *Service {
	t.Helper()
	decoders := registry.NewDecoderRegistry()
	RegisterDefaultDecoders(decoders)
	return &Service{
		decoders: decoders,
		handler:  handler,
		manager:  manager,
		logg:     logger.New(logger.Options{ServiceName: "notifications-test"}),
	}
}

func buildTopUpMessage(t *testing.T, userID uuid.UUID, amountCents int) *gcppubsub.Message {
	t.Helper()
	return buildMessage(t, payloads.WalletToppedUpEvent{
		WalletID:    uuid.New(),
		UserID:      userID,
		AmountCents: amountCents,
	}, enums.EventWalletToppedUp)
}

func buildMessage(t *testing.T, payload interface{}, eventType enums.OutboxEventType) *gcppubsub.Message {
	t.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       mustJSON(t, payload),
	}
	return buildEnvelopeMessage(t, env, eventType)
}

func buildEnvelopeMessage(t *testing.T, env outbox.PayloadEnvelope, eventType enums.OutboxEventType) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &gcppubsub.Message{
		ID:   "msg-1",
		Data: data,
		Attributes: map[string]string{
			"event_type": string(eventType),
		},
	}
}

func mustJSON(t *testing.T, value interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

type stubHandler struct {
	called       bool
	notification Notification
	err          error
}

func (h *stubHandler) Handle(ctx context.Context, notification Notification) error {
	h.called = true
	h.notification = notification
	return h.err
}

type stubManager struct {
	checkResult bool
	checkErr    error
	checked     []uuid.UUID
	deleted     []uuid.UUID
}

func (s *stubManager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, s.checkErr
}

func (s *stubManager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}
