package device_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/device"
)

// scriptedPort replays chunks, returning (0, nil) between them like a serial read timeout.
type scriptedPort struct {
	mu     sync.Mutex
	chunks []string
	failAt int
	reads  int
	closed bool
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	p.reads++
	if p.failAt > 0 && p.reads == p.failAt {
		return 0, errors.New("input/output error")
	}
	if len(p.chunks) == 0 {
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if p.chunks[0] == "" {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func testConfig() device.PortConfig {
	return device.PortConfig{
		Name:              "/dev/ttyTEST0",
		BaudRate:          9600,
		ReadTimeout:       10 * time.Millisecond,
		ReconnectAttempts: 2,
		ReconnectDelay:    time.Millisecond,
		MaxLineBytes:      32,
	}
}

// ── LineReader ──

func TestLineReader_FramesAcrossChunks(t *testing.T) {
	port := &scriptedPort{chunks: []string{"TRANS", "ACTION,ABC,10", "0,900\r\nCAP", "TURE\n"}}
	r := device.NewLineReader(port, 64)

	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TRANSACTION,ABC,100,900", line)

	line, err = r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE", line)
}

func TestLineReader_EmptyLine(t *testing.T) {
	r := device.NewLineReader(strings.NewReader("\n"), 64)
	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", line)
}

func TestLineReader_TooLongLineIsDropped(t *testing.T) {
	long := strings.Repeat("X", 40)
	r := device.NewLineReader(strings.NewReader(long+"\nCAPTURE\n"), 16)

	_, err := r.ReadLine(context.Background())
	require.ErrorIs(t, err, device.ErrLineTooLong)

	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE", line)
}

func TestLineReader_EOFReturnsBufferedLineFirst(t *testing.T) {
	r := device.NewLineReader(strings.NewReader("CAPTURE\n"), 64)

	line, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE", line)

	_, err = r.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_StopsOnContextDuringTimeouts(t *testing.T) {
	r := device.NewLineReader(&scriptedPort{}, 64)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// ── PortSource ──

func TestOpen_FailureIsUnavailable(t *testing.T) {
	opener := func(device.PortConfig) (io.ReadCloser, error) {
		return nil, errors.New("no such file or directory")
	}
	_, err := device.Open(testConfig(), opener, nil, zap.NewNop())
	require.ErrorIs(t, err, device.ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "/dev/ttyTEST0")
}

func TestPortSource_ReopensAfterReadError(t *testing.T) {
	first := &scriptedPort{chunks: []string{"CAPTURE\n"}, failAt: 2}
	second := &scriptedPort{chunks: []string{"INSUFFICIENT,ABC,0,50\n"}}
	ports := []*scriptedPort{first, second}
	opened := 0
	opener := func(device.PortConfig) (io.ReadCloser, error) {
		p := ports[opened]
		opened++
		return p, nil
	}

	src, err := device.Open(testConfig(), opener, nil, zap.NewNop())
	require.NoError(t, err)
	defer src.Close()

	line, err := src.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "CAPTURE", line)

	line, err = src.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "INSUFFICIENT,ABC,0,50", line)
	assert.Equal(t, 2, opened)
	assert.True(t, first.closed)
}

func TestPortSource_LostAfterReopenAttempts(t *testing.T) {
	calls := 0
	opener := func(device.PortConfig) (io.ReadCloser, error) {
		calls++
		if calls == 1 {
			return &scriptedPort{failAt: 1}, nil
		}
		return nil, errors.New("device not configured")
	}

	src, err := device.Open(testConfig(), opener, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = src.ReadLine(context.Background())
	require.ErrorIs(t, err, device.ErrDeviceLost)
	assert.Equal(t, 3, calls)
}

func TestPortSource_CloseUnblocksRead(t *testing.T) {
	opener := func(device.PortConfig) (io.ReadCloser, error) { return &scriptedPort{}, nil }
	src, err := device.Open(testConfig(), opener, nil, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := src.ReadLine(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, device.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadLine did not return after Close")
	}
}

// ── NullSource ──

func TestNullSource_BlocksUntilCancelled(t *testing.T) {
	src := device.NewNullSource()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := src.ReadLine(ctx)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("NullSource returned a line")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close())
}
