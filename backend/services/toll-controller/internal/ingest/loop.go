package ingest

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/device"
	"tollbooth/backend/services/toll-controller/internal/service"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

// LineSource yields raw lines from the controller link.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
	Close() error
}

// LineProcessor applies one line to the system.
type LineProcessor interface {
	Process(ctx context.Context, line string) (protocol.Event, error)
}

// Loop reads lines one at a time and fully processes each before reading the next, so line
// order, processing order and ledger order are the same.
type Loop struct {
	source    LineSource
	processor LineProcessor
	state     *service.StatusState
	logger    *zap.Logger
}

// NewLoop builds the ingestion loop.
func NewLoop(source LineSource, processor LineProcessor, state *service.StatusState, logger *zap.Logger) *Loop {
	return &Loop{
		source:    source,
		processor: processor,
		state:     state,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, the source is closed or drained, or the device is lost.
// Only a lost device is reported as an error; the status is marked lost first so readers
// can keep serving it.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("ingestion started")
	defer l.logger.Info("ingestion stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := l.source.ReadLine(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, device.ErrClosed), errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, device.ErrDeviceLost):
				l.state.SetDevice(service.DeviceLost)
				l.logger.Error("serial device lost", zap.Error(err))
				return err
			default:
				l.logger.Warn("serial read failed", zap.Error(err))
				continue
			}
		}

		// Handler failures are logged by the processor; the next line is read regardless.
		_, _ = l.processor.Process(ctx, line)
	}
}
