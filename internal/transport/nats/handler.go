package nats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"scrivo/internal/model"
	"scrivo/internal/repository"
	"scrivo/internal/service"
)

const (
	paymentEventsSubject = "payments.events"
	paymentEventsGroup   = "scrivo_payments"
)

// Handler is the bus-side ingress for provider payment events: deliveries
// re-queued by an upstream webhook relay land here with the same
// at-least-once, possibly-duplicated semantics as the HTTP path, and run
// through the same dedup guard and reconciler.
type Handler struct {
	payments service.PaymentService
	dedup    service.DedupService
	nc       *nats.Conn
	log      *zap.Logger
	subs     []*nats.Subscription
}

func NewHandler(payments service.PaymentService, dedup service.DedupService, nc *nats.Conn, log *zap.Logger) *Handler {
	return &Handler{payments: payments, dedup: dedup, nc: nc, log: log}
}

// Start subscribes to the payment-event subject and blocks until ctx is
// cancelled. Queue subscription: one instance in the group handles each
// delivery.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(paymentEventsSubject, paymentEventsGroup, func(m *nats.Msg) {
		var event model.WebhookEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			h.log.Error("nats: failed to unmarshal payment event", zap.Error(err))
			return
		}
		if event.EventID == "" || event.CheckoutID == "" || event.AccountID <= 0 || event.Credits <= 0 {
			h.log.Warn("nats: dropping malformed payment event",
				zap.String("event_id", event.EventID))
			return
		}

		seen, err := h.dedup.Seen(ctx, event.EventID)
		if err != nil {
			h.log.Error("nats: dedup check failed", zap.String("event_id", event.EventID), zap.Error(err))
			return
		}
		if seen {
			return
		}

		if _, err := h.payments.ReconcileAndCredit(ctx, event.CheckoutID, event.AccountID, event.Credits); err != nil {
			h.log.Error("nats: reconcile failed",
				zap.String("checkout_id", event.CheckoutID), zap.Error(err))
			return
		}

		if err := h.dedup.Mark(ctx, event.EventID); err != nil &&
			!errors.Is(err, repository.ErrEventAlreadyProcessed) {
			h.log.Error("nats: marking event failed", zap.String("event_id", event.EventID), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	h.log.Info("NATS payment-event handler is running")

	<-ctx.Done()
	h.log.Info("NATS payment-event handler shutting down, draining subscriptions")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
