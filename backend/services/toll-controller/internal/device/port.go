package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/metrics"
)

var (
	// ErrDeviceUnavailable is returned by Open when the port cannot be opened at startup.
	ErrDeviceUnavailable = errors.New("device: unavailable")
	// ErrDeviceLost is returned by ReadLine once the link failed and could not be re-opened.
	ErrDeviceLost = errors.New("device: lost")
	// ErrClosed is returned by sources after Close.
	ErrClosed = errors.New("device: source closed")
)

// PortConfig describes the controller link.
type PortConfig struct {
	Name              string
	BaudRate          int
	ReadTimeout       time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	MaxLineBytes      int
}

// Opener opens the underlying port. Reads must return (0, nil) when ReadTimeout elapses
// without data.
type Opener func(cfg PortConfig) (io.ReadCloser, error)

// OpenSerial opens a real serial port, 8N1 at the configured baud rate.
func OpenSerial(cfg PortConfig) (io.ReadCloser, error) {
	port, err := serial.Open(cfg.Name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// PortSource reads lines from the controller and re-opens the port after read errors.
type PortSource struct {
	cfg     PortConfig
	open    Opener
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	port   io.ReadCloser
	reader *LineReader
	closed bool
}

// Open opens the port with opener (OpenSerial when nil). Failure wraps ErrDeviceUnavailable.
func Open(cfg PortConfig, opener Opener, m *metrics.Metrics, logger *zap.Logger) (*PortSource, error) {
	if opener == nil {
		opener = OpenSerial
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}

	port, err := opener(cfg)
	if err != nil {
		m.DeviceConnected(false)
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceUnavailable, cfg.Name, err)
	}
	m.DeviceConnected(true)
	logger.Info("serial device opened", zap.String("port", cfg.Name), zap.Int("baud", cfg.BaudRate))

	return &PortSource{
		cfg:     cfg,
		open:    opener,
		logger:  logger,
		metrics: m,
		port:    port,
		reader:  NewLineReader(port, cfg.MaxLineBytes),
	}, nil
}

// ReadLine returns the next line. Oversized lines yield ErrLineTooLong and the caller may
// keep reading. A read error triggers up to ReconnectAttempts re-opens; when they all fail
// the error wraps ErrDeviceLost.
func (p *PortSource) ReadLine(ctx context.Context) (string, error) {
	for {
		p.mu.Lock()
		reader, closed := p.reader, p.closed
		p.mu.Unlock()
		if closed {
			return "", ErrClosed
		}

		line, err := reader.ReadLine(ctx)
		if err == nil {
			return line, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, ErrLineTooLong) {
			return "", err
		}
		if p.isClosed() {
			return "", ErrClosed
		}

		p.logger.Warn("serial read failed, reopening", zap.String("port", p.cfg.Name), zap.Error(err))
		p.metrics.DeviceConnected(false)
		if rerr := p.reconnect(ctx, err); rerr != nil {
			return "", rerr
		}
	}
}

func (p *PortSource) reconnect(ctx context.Context, cause error) error {
	p.mu.Lock()
	if p.port != nil {
		_ = p.port.Close()
		p.port = nil
	}
	p.mu.Unlock()

	var lastErr error = cause
	for attempt := 1; attempt <= p.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.ReconnectDelay):
		}

		port, err := p.open(p.cfg)
		if err != nil {
			lastErr = err
			p.logger.Warn("serial reopen failed",
				zap.String("port", p.cfg.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = port.Close()
			return ErrClosed
		}
		p.port = port
		p.reader = NewLineReader(port, p.cfg.MaxLineBytes)
		p.mu.Unlock()

		p.metrics.DeviceConnected(true)
		p.logger.Info("serial device reopened", zap.String("port", p.cfg.Name), zap.Int("attempt", attempt))
		return nil
	}

	return fmt.Errorf("%w: %s after %d reopen attempts: %w", ErrDeviceLost, p.cfg.Name, p.cfg.ReconnectAttempts, lastErr)
}

func (p *PortSource) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close closes the port, unblocking a pending read.
func (p *PortSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.metrics.DeviceConnected(false)
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}
