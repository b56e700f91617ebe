package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/metrics"
	"tollbooth/backend/services/toll-controller/internal/service"
	"tollbooth/backend/services/toll-controller/internal/tollproto"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

const mirrorTimeout = 2 * time.Second

// Ledger is the system of record for committed transactions.
type Ledger interface {
	Append(rec ledger.Record) error
}

// TransactionMirror receives a copy of each committed record. Failures never affect the
// ledger or the status.
type TransactionMirror interface {
	Save(ctx context.Context, rec ledger.Record) error
}

// NewTransactionHandler commits a paid transaction to the ledger and opens the barrier.
// A failed file rewrite is logged; the record stays in memory and the status still updates.
func NewTransactionHandler(
	store Ledger,
	state *service.StatusState,
	mirror TransactionMirror,
	now func() time.Time,
	m *metrics.Metrics,
	logger *zap.Logger,
) tollproto.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, ev protocol.Event) error {
		tx, ok := ev.(protocol.Transaction)
		if !ok {
			return fmt.Errorf("transaction handler: unexpected event %T", ev)
		}

		rec := ledger.NewRecord(now(), tx.CardID, tx.Amount, tx.Balance)
		if err := store.Append(rec); err != nil {
			if !errors.Is(err, ledger.ErrWriteFailed) {
				return err
			}
			logger.Error("ledger write failed, record kept in memory",
				zap.String("card_id", tx.CardID),
				zap.Int64("amount", tx.Amount),
				zap.Error(err),
			)
		}

		state.ApplyTransaction(tx.CardID, tx.Amount, tx.Balance)
		logger.Info("toll paid",
			zap.String("card_id", tx.CardID),
			zap.Int64("amount", tx.Amount),
			zap.Int64("balance", tx.Balance),
		)

		if mirror != nil {
			saveCtx, cancel := context.WithTimeout(ctx, mirrorTimeout)
			err := mirror.Save(saveCtx, rec)
			cancel()
			if err != nil {
				m.SinkFailed(metrics.SinkPostgres)
				logger.Warn("transaction mirror failed", zap.String("card_id", tx.CardID), zap.Error(err))
			}
		}
		return nil
	}
}
