package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/digimart-backend/pkg/enums"
	"github.com/angelmondragon/digimart-backend/pkg/logger"
	"github.com/angelmondragon/digimart-backend/pkg/outbox"
	"github.com/angelmondragon/digimart-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/digimart-backend/pkg/outbox/registry"
)

const notificationConsumerName = "notifications"

// Notification is the user-facing message composed from a domain event.
type Notification struct {
	RecipientID uuid.UUID
	EventType   enums.OutboxEventType
	Title       string
	Body        string
	OccurredAt  time.Time
}

// Handler delivers composed notifications.
type Handler interface {
	Handle(ctx context.Context, notification Notification) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, notification Notification) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, notification Notification) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, notification)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes notification events from Pub/Sub while honoring Redis
// idempotency. Malformed or unsupported messages are acked so they do not
// wedge the subscription; only handler failures are retried.
type Service struct {
	subscription *gcppubsub.Subscriber
	decoders     *registry.DecoderRegistry
	handler      Handler
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewService creates a new notification worker service.
func NewService(subscription *gcppubsub.Subscriber, decoders *registry.DecoderRegistry, handler Handler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("notification subscription is required")
	}
	if decoders == nil {
		return nil, errors.New("decoder registry is required")
	}
	if handler == nil {
		return nil, errors.New("notification handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		subscription: subscription,
		decoders:     decoders,
		handler:      handler,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming notification messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{
		"message_id": msg.ID,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid notification envelope")
		return processResult{}
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		s.logg.Warn(logCtx, "invalid event type attribute")
		return processResult{}
	}

	rawEventID := strings.TrimSpace(envelope.EventID)
	if rawEventID == "" {
		rawEventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	eventID, err := uuid.Parse(rawEventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	fields["event_id"] = eventID.String()
	fields["event_type"] = eventType
	logCtx = s.logg.WithFields(ctx, fields)

	// Decode before the idempotency mark: an undecodable message stays
	// undecodable, so it must not burn its processed slot.
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := s.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		s.logg.Warn(logCtx, "event not handled by notification consumer")
		return processResult{}
	}
	notification, ok := buildNotification(eventType, envelope, decoded)
	if !ok {
		s.logg.Warn(logCtx, "no notification mapping for event")
		return processResult{}
	}

	already, err := s.manager.CheckAndMarkProcessed(logCtx, notificationConsumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.handler.Handle(logCtx, notification); err != nil {
		s.logg.Error(logCtx, "notification handler error", err)
		_ = s.manager.Delete(logCtx, notificationConsumerName, eventID)
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "notification dispatched")
	return processResult{}
}

// RegisterDefaultDecoders installs the v1 payload decoders for every event
// the notification consumer composes a message from.
func RegisterDefaultDecoders(reg *registry.DecoderRegistry) {
	reg.Register(enums.EventWalletToppedUp, 1, decodeInto(func() interface{} { return &payloads.WalletToppedUpEvent{} }))
	reg.Register(enums.EventEscrowHoldCreated, 1, decodeInto(func() interface{} { return &payloads.EscrowHoldCreatedEvent{} }))
	reg.Register(enums.EventEscrowReleased, 1, decodeInto(func() interface{} { return &payloads.EscrowReleasedEvent{} }))
	reg.Register(enums.EventEscrowRefunded, 1, decodeInto(func() interface{} { return &payloads.EscrowRefundedEvent{} }))
}

func decodeInto(factory func() interface{}) func(json.RawMessage) (interface{}, error) {
	return func(payload json.RawMessage) (interface{}, error) {
		out := factory()
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

func buildNotification(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope, decoded interface{}) (Notification, bool) {
	notification := Notification{
		EventType:  eventType,
		OccurredAt: envelope.OccurredAt.UTC(),
	}

	switch payload := decoded.(type) {
	case *payloads.WalletToppedUpEvent:
		notification.RecipientID = payload.UserID
		notification.Title = "Wallet topped up"
		notification.Body = fmt.Sprintf("Your wallet was credited %s.", formatCents(payload.AmountCents))
	case *payloads.EscrowHoldCreatedEvent:
		notification.RecipientID = payload.BuyerID
		notification.Title = "Payment captured"
		notification.Body = fmt.Sprintf("%s is held in escrow until delivery is confirmed.", formatCents(payload.HoldAmountCents))
	case *payloads.EscrowReleasedEvent:
		notification.RecipientID = payload.SellerUserID
		notification.Title = "Funds released"
		notification.Body = fmt.Sprintf("%s was released to your wallet.", formatCents(payload.AmountCents-payload.FeeCents))
	case *payloads.EscrowRefundedEvent:
		notification.RecipientID = payload.BuyerID
		notification.Title = "Refund issued"
		notification.Body = fmt.Sprintf("%s was refunded to your wallet.", formatCents(payload.RefundAmountCents))
	default:
		return Notification{}, false
	}

	return notification, true
}

func formatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// NewLogHandler returns a handler that records each dispatch in the service
// log. Delivery channels consume the same topic from their own services.
func NewLogHandler(logg *logger.Logger) (Handler, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return HandlerFunc(func(ctx context.Context, notification Notification) error {
		logCtx := logg.WithFields(ctx, map[string]any{
			"recipient_id": notification.RecipientID.String(),
			"event_type":   notification.EventType,
			"title":        notification.Title,
		})
		logg.Info(logCtx, "notification recorded")
		return nil
	}), nil
}
