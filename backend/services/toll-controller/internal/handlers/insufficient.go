package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/service"
	"tollbooth/backend/services/toll-controller/internal/tollproto"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

// NewInsufficientHandler records a rejected payment. Nothing is written to the ledger.
func NewInsufficientHandler(state *service.StatusState, logger *zap.Logger) tollproto.HandlerFunc {
	return func(_ context.Context, ev protocol.Event) error {
		ins, ok := ev.(protocol.Insufficient)
		if !ok {
			return fmt.Errorf("insufficient handler: unexpected event %T", ev)
		}

		state.ApplyInsufficient(ins.CardID, ins.Balance)
		logger.Info("insufficient balance", zap.String("card_id", ins.CardID), zap.Int64("balance", ins.Balance))
		return nil
	}
}
