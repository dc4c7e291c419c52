package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"scrivo/internal/model"
	"scrivo/internal/repository"
	"scrivo/internal/service"
)

const auditGroup = "scrivo_audit"

// AuditWorker listens for applied credits on the bus and writes one ledger
// entry per checkout. The insert is keyed on checkout id with ON CONFLICT
// DO NOTHING, so redelivered events collapse into a single row.
type AuditWorker struct {
	audit    service.AuditService
	natsConn *nats.Conn
	log      *zap.Logger
}

func NewAuditWorker(audit service.AuditService, nc *nats.Conn, log *zap.Logger) *AuditWorker {
	return &AuditWorker{audit: audit, natsConn: nc, log: log}
}

// Run subscribes to the credits topic and blocks until ctx is cancelled.
// Queue subscription: each event is handled by one worker in the group.
func (w *AuditWorker) Run(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(repository.TopicCreditsApplied, auditGroup, func(m *nats.Msg) {
		var event model.CreditAppliedEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			w.log.Error("worker: failed to unmarshal credit event", zap.Error(err))
			return
		}

		if err := w.audit.RecordLedgerEntry(ctx, event.CheckoutID, event.AccountID, event.Credits, event.NewBalance); err != nil {
			w.log.Error("worker: failed to record ledger entry",
				zap.String("checkout_id", event.CheckoutID),
				zap.Int64("account_id", event.AccountID),
				zap.Error(err))
			return
		}

		w.log.Info("worker: ledger entry recorded",
			zap.String("checkout_id", event.CheckoutID),
			zap.Int64("account_id", event.AccountID))
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	w.log.Info("audit worker is running")

	<-ctx.Done()

	w.log.Info("audit worker received shutdown signal, draining subscription")
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *AuditWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *AuditWorker) Stop(ctx context.Context) error {
	return nil
}
