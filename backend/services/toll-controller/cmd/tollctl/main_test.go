package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	libredis "tollbooth/backend/libs/redis"

	"tollbooth/backend/services/toll-controller/internal/ledger"
	"tollbooth/backend/services/toll-controller/internal/service"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeLedger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transaction_history.json")
	store, err := ledger.Open(path)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, store.Append(ledger.NewRecord(now.Add(-2*time.Minute), "AB12", 500, 1500)))
	require.NoError(t, store.Append(ledger.NewRecord(now.Add(-time.Minute), "CD34", 250, 750)))
	return path
}

func TestPasswd_FromArgAndStdin(t *testing.T) {
	out, err := run(t, "", "passwd", "--cost", "4", "booth-secret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("booth-secret")))

	out, err = run(t, "from-stdin\n", "passwd", "--cost", "4")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))
}

func TestPasswd_Empty(t *testing.T) {
	_, err := run(t, "", "passwd")
	assert.Error(t, err)
}

func TestLedgerStats(t *testing.T) {
	path := writeLedger(t)

	out, err := run(t, "", "ledger", "stats", "--file", path, "--days", "2", "--json")
	require.NoError(t, err)

	var st ledger.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.TotalVehicles)
	assert.Equal(t, int64(750), st.TotalRevenue)
	assert.Len(t, st.Daily, 2)

	out, err = run(t, "", "ledger", "stats", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Total vehicles: 2")
	assert.Contains(t, out, "Total revenue:  GBP 750")
}

func TestLedgerRecent(t *testing.T) {
	path := writeLedger(t)

	out, err := run(t, "", "ledger", "recent", "--file", path, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "CD34")
	assert.NotContains(t, out, "AB12")
}

func TestLedger_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := run(t, "", "ledger", "recent", "--file", path)
	assert.ErrorIs(t, err, ledger.ErrCorrupt)
}

func TestStatus_RequiresRedisAddr(t *testing.T) {
	t.Setenv("TOLL_REDIS_ADDR", "")

	_, err := run(t, "", "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, libredis.ErrEmptyAddr)
}

func TestPrintStatus(t *testing.T) {
	snap := &service.StatusSnapshot{
		Barrier: service.BarrierOpen,
		Device:  service.DeviceConnected,
		LastTransaction: &service.TransactionSummary{
			Outcome: service.OutcomePaid,
			CardID:  "AB12",
			Amount:  500,
			Balance: 1500,
		},
		LatestImage: "toll_images/vehicle_20260314-092653.jpg",
		UpdatedAt:   time.Now(),
	}
	cmd := statusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	printStatus(cmd, snap)
	assert.Contains(t, out.String(), "Barrier: open")
	assert.Contains(t, out.String(), "Latest Transaction: Card AB12 - Amount: GBP 500")
	assert.Contains(t, out.String(), "vehicle_20260314-092653.jpg")
}
