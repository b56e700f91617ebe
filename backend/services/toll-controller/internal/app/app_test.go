package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/app"
	"tollbooth/backend/services/toll-controller/internal/capture"
	"tollbooth/backend/services/toll-controller/internal/config"
	"tollbooth/backend/services/toll-controller/internal/device"
	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/service"
)

// linePort feeds data once and then behaves like an idle serial port.
type linePort struct {
	mu     sync.Mutex
	data   *strings.Reader
	closed bool
}

func (p *linePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	var n int
	if !closed && p.data.Len() > 0 {
		n, _ = p.data.Read(b)
	}
	p.mu.Unlock()

	if closed {
		return 0, errors.New("port closed")
	}
	if n == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	return n, nil
}

func (p *linePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Serial.Port = "/dev/ttyTEST0"
	cfg.Ledger.Path = filepath.Join(dir, "transaction_history.json")
	cfg.Capture.Dir = filepath.Join(dir, "toll_images")
	cfg.HTTP.Port = "127.0.0.1:0"
	return cfg
}

func portWith(lines string) device.Opener {
	return func(device.PortConfig) (io.ReadCloser, error) {
		return &linePort{data: strings.NewReader(lines)}, nil
	}
}

func fakeCamera() capture.Runner {
	return capture.RunnerFunc(func(_ context.Context, path string) error {
		return os.WriteFile(path, []byte("jpeg"), 0o644)
	})
}

func TestApp_IngestsAndServes(t *testing.T) {
	cfg := testConfig(t)
	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithOpener(portWith("TRANSACTION,AB12,500,1500\nINSUFFICIENT,CD34,0,50\nbogus\nCAPTURE\n")),
		app.WithCaptureRunner(fakeCamera()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap := a.State().Snapshot()
		return snap.LastVehicle != nil && snap.LastVehicle.Captured
	}, 2*time.Second, 10*time.Millisecond)

	snap := a.State().Snapshot()
	assert.Equal(t, service.BarrierClosed, snap.Barrier)
	assert.Equal(t, service.DeviceConnected, snap.Device)
	require.NotNil(t, snap.LastTransaction)
	assert.Equal(t, "CD34", snap.LastTransaction.CardID)
	assert.Equal(t, 1, a.Ledger().Len())

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Transactions []ledger.Record `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Transactions, 1)
	assert.Equal(t, "AB12", body.Transactions[0].CardID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	a.Close()

	reloaded, err := ledger.Open(cfg.Ledger.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestApp_RunsWithoutDevice(t *testing.T) {
	cfg := testConfig(t)
	noPort := func(device.PortConfig) (io.ReadCloser, error) {
		return nil, errors.New("no such file or directory")
	}
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithOpener(noPort), app.WithCaptureRunner(fakeCamera()))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, service.DeviceNone, a.State().Snapshot().Device)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"device":"no_device"`)
}

func TestApp_CorruptLedgerIsFatal(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Ledger.Path, []byte(`{"not":"an array"}`), 0o644))

	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithOpener(portWith("")))
	require.ErrorIs(t, err, ledger.ErrCorrupt)
}

func TestApp_AuthProtectsAPI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.PasswordHash = "$2a$04$invalidhashinvalidhashinvalidhashinvalidhashinvalidha"
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithOpener(portWith("")), app.WithCaptureRunner(fakeCamera()))
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"operator":"operator","password":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
