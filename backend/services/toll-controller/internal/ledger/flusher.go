package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Flusher retries the file rewrite of a dirty store on an interval and once more on Stop.
type Flusher struct {
	store    *Store
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewFlusher creates a flusher but does not start it.
func NewFlusher(store *Store, interval time.Duration, logger *zap.Logger) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Flusher{
		store:    store,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the background loop. It exits when ctx is cancelled or Stop is called.
func (f *Flusher) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	go f.loop(ctx)
}

// Stop ends the loop, waits for it and makes a final flush attempt.
func (f *Flusher) Stop() error {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
	return f.flush()
}

func (f *Flusher) loop(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = f.flush()
		}
	}
}

func (f *Flusher) flush() error {
	if !f.store.Dirty() {
		return nil
	}
	if err := f.store.Flush(); err != nil {
		f.logger.Error("ledger flush failed", zap.String("path", f.store.Path()), zap.Error(err))
		return err
	}
	f.logger.Info("ledger flushed after earlier write failure", zap.String("path", f.store.Path()))
	return nil
}
