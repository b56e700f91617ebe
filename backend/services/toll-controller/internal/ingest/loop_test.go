package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/capture"
	"tollbooth/backend/services/toll-controller/internal/device"
	"tollbooth/backend/services/toll-controller/internal/handlers"
	"tollbooth/backend/services/toll-controller/internal/ingest"
	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/service"
	"tollbooth/backend/services/toll-controller/internal/tollproto"
	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

// scriptedSource yields each item in order, then returns end.
type scriptedSource struct {
	mu    sync.Mutex
	items []any // string or error
	end   error
}

func (s *scriptedSource) ReadLine(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return "", s.end
	}
	item := s.items[0]
	s.items = s.items[1:]
	if err, ok := item.(error); ok {
		return "", err
	}
	return item.(string), nil
}

func (s *scriptedSource) Close() error { return nil }

type booth struct {
	store    *ledger.Store
	state    *service.StatusState
	captures int
	failCap  bool
	dir      string
}

func newBooth(t *testing.T) *booth {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "transaction_history.json"))
	require.NoError(t, err)
	return &booth{store: store, state: service.NewStatusState(nil), dir: dir}
}

func (b *booth) run(t *testing.T, src ingest.LineSource) error {
	t.Helper()
	logger := zap.NewNop()

	runner := capture.RunnerFunc(func(_ context.Context, path string) error {
		b.captures++
		if b.failCap {
			return errors.New("camera busy")
		}
		return os.WriteFile(path, []byte("jpeg"), 0o644)
	})
	capturer := capture.NewCapturer(capture.Config{
		Dir:       filepath.Join(b.dir, "toll_images"),
		Extension: "jpg",
		Timeout:   time.Second,
	}, runner, time.Now, nil, logger)

	router := tollproto.NewRouter()
	router.Register(protocol.TagCapture, handlers.NewCaptureHandler(capturer, b.state, logger))
	router.Register(protocol.TagTransaction, handlers.NewTransactionHandler(b.store, b.state, nil, time.Now, nil, logger))
	router.Register(protocol.TagInsufficient, handlers.NewInsufficientHandler(b.state, logger))

	processor := tollproto.NewProcessor(tollproto.NewDecoder(), router, nil, nil, logger)
	return ingest.NewLoop(src, processor, b.state, logger).Run(context.Background())
}

func lines(items ...any) *scriptedSource {
	return &scriptedSource{items: items, end: device.ErrClosed}
}

func TestLoop_TransactionScenario(t *testing.T) {
	b := newBooth(t)
	require.NoError(t, b.run(t, lines("TRANSACTION,AB12,500,1500")))

	recs := b.store.Snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, "AB12", recs[0].CardID)
	assert.Equal(t, int64(500), recs[0].Amount)
	assert.Equal(t, int64(1500), recs[0].Balance)

	snap := b.state.Snapshot()
	assert.Equal(t, service.BarrierOpen, snap.Barrier)
	require.NotNil(t, snap.LastTransaction)
	assert.Equal(t, "AB12", snap.LastTransaction.CardID)
	assert.Equal(t, int64(500), snap.LastTransaction.Amount)
}

func TestLoop_InsufficientScenario(t *testing.T) {
	b := newBooth(t)
	require.NoError(t, b.run(t, lines("INSUFFICIENT,CD34,0,50")))

	assert.Equal(t, 0, b.store.Len())
	snap := b.state.Snapshot()
	assert.Equal(t, service.BarrierClosed, snap.Barrier)
	require.NotNil(t, snap.LastTransaction)
	assert.Equal(t, "CD34", snap.LastTransaction.CardID)
	assert.Equal(t, int64(50), snap.LastTransaction.Balance)
}

func TestLoop_MalformedLinesChangeNothing(t *testing.T) {
	b := newBooth(t)
	require.NoError(t, b.run(t, lines(
		"TRANSACTION,AB12,abc,1500",
		"TRANSACTION,AB12,-5,1500",
		"TRANSACTION,AB12,500",
		"HELLO",
		"",
		"transaction,AB12,500,1500",
	)))

	assert.Equal(t, 0, b.store.Len())
	snap := b.state.Snapshot()
	assert.Equal(t, service.BarrierClosed, snap.Barrier)
	assert.Nil(t, snap.LastTransaction)
	assert.Nil(t, snap.LastVehicle)
}

func TestLoop_OpenThenCaptureCloses(t *testing.T) {
	for _, fail := range []bool{false, true} {
		t.Run(fmt.Sprintf("capture_fails=%v", fail), func(t *testing.T) {
			b := newBooth(t)
			b.failCap = fail
			require.NoError(t, b.run(t, lines("TRANSACTION,AB12,500,1500", "CAPTURE")))

			snap := b.state.Snapshot()
			assert.Equal(t, service.BarrierClosed, snap.Barrier)
			assert.Equal(t, 1, b.captures)
			assert.Equal(t, fail, snap.LatestImage == "")
		})
	}
}

func TestLoop_PreservesArrivalOrder(t *testing.T) {
	b := newBooth(t)
	var script []any
	for i := 0; i < 20; i++ {
		script = append(script, fmt.Sprintf("TRANSACTION,C%02d,%d,%d", i, 10+i, 1000-i))
		if i%5 == 0 {
			script = append(script, "GARBAGE", "CAPTURE")
		}
	}
	require.NoError(t, b.run(t, lines(script...)))

	recs := b.store.Snapshot()
	require.Len(t, recs, 20)
	for i, r := range recs {
		assert.Equal(t, fmt.Sprintf("C%02d", i), r.CardID)
	}

	reloaded, err := ledger.Open(b.store.Path())
	require.NoError(t, err)
	assert.Equal(t, 20, reloaded.Len())
	assert.Equal(t, "C19", reloaded.Recent(1)[0].CardID)
}

func TestLoop_TransientReadErrorsAreSkipped(t *testing.T) {
	b := newBooth(t)
	require.NoError(t, b.run(t, lines(
		device.ErrLineTooLong,
		"TRANSACTION,AB12,500,1500",
	)))
	assert.Equal(t, 1, b.store.Len())
}

func TestLoop_DeviceLostStopsAndMarksStatus(t *testing.T) {
	b := newBooth(t)
	lost := fmt.Errorf("%w: /dev/ttyACM0", device.ErrDeviceLost)
	src := &scriptedSource{items: []any{"TRANSACTION,AB12,500,1500"}, end: lost}

	err := b.run(t, src)
	require.ErrorIs(t, err, device.ErrDeviceLost)

	snap := b.state.Snapshot()
	assert.Equal(t, service.DeviceLost, snap.Device)
	assert.Equal(t, service.BarrierOpen, snap.Barrier)
	assert.Equal(t, 1, b.store.Len())
}

func TestLoop_StopsOnCancel(t *testing.T) {
	state := service.NewStatusState(nil)
	src := device.NewNullSource()
	loop := ingest.NewLoop(src, nil, state, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
