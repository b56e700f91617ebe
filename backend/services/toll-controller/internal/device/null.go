package device

import (
	"context"
	"sync"
)

// NullSource is used when no controller is attached. It never yields a line.
type NullSource struct {
	once sync.Once
	done chan struct{}
}

// NewNullSource returns a source for no-device mode.
func NewNullSource() *NullSource {
	return &NullSource{done: make(chan struct{})}
}

// ReadLine blocks until ctx ends or the source is closed.
func (n *NullSource) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-n.done:
		return "", ErrClosed
	}
}

// Close releases a blocked ReadLine.
func (n *NullSource) Close() error {
	n.once.Do(func() { close(n.done) })
	return nil
}
