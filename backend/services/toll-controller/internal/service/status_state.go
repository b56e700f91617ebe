package service

import (
	"fmt"
	"sync"
	"time"
)

// Barrier is the gate position as last reported by events.
type Barrier string

const (
	BarrierClosed Barrier = "closed"
	BarrierOpen   Barrier = "open"
)

// DeviceStatus describes the serial controller link.
type DeviceStatus string

const (
	DeviceConnected DeviceStatus = "connected"
	DeviceNone      DeviceStatus = "no_device"
	DeviceLost      DeviceStatus = "lost"
)

// Outcome distinguishes the two kinds of transaction summary.
type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeInsufficient Outcome = "insufficient"
)

// TransactionSummary describes the latest payment attempt. Amount is set for paid
// outcomes, Balance for both.
type TransactionSummary struct {
	Outcome Outcome   `json:"outcome"`
	CardID  string    `json:"card_id"`
	Amount  int64     `json:"amount,omitempty"`
	Balance int64     `json:"balance"`
	At      time.Time `json:"at"`
}

// Currency prefixes amounts on the booth display. The controller reports minor units of it.
const Currency = "GBP"

// Text renders the summary the way the booth display shows it.
func (t TransactionSummary) Text() string {
	if t.Outcome == OutcomeInsufficient {
		return fmt.Sprintf("Insufficient Balance: Card %s - Balance: %s %d", t.CardID, Currency, t.Balance)
	}
	return fmt.Sprintf("Latest Transaction: Card %s - Amount: %s %d", t.CardID, Currency, t.Amount)
}

// VehicleEvent describes the latest detection and its capture result.
type VehicleEvent struct {
	DetectedAt time.Time `json:"detected_at"`
	Captured   bool      `json:"captured"`
	ImagePath  string    `json:"image_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// StatusSnapshot is a point-in-time copy of the status for readers.
type StatusSnapshot struct {
	Barrier         Barrier             `json:"barrier"`
	Device          DeviceStatus        `json:"device"`
	LastVehicle     *VehicleEvent       `json:"last_vehicle,omitempty"`
	LastTransaction *TransactionSummary `json:"last_transaction,omitempty"`
	// LatestImage is the path of the last successful capture. A failed capture leaves it unchanged.
	LatestImage string    `json:"latest_image,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusState is the barrier/vehicle state machine. The ingestion loop is the only writer;
// readers take snapshots. Initial state is barrier closed with no vehicle or transaction.
type StatusState struct {
	mu   sync.RWMutex
	cur  StatusSnapshot
	now  func() time.Time
	subs map[int]chan StatusSnapshot
	next int
}

// NewStatusState returns state in its initial position.
func NewStatusState(now func() time.Time) *StatusState {
	if now == nil {
		now = time.Now
	}
	return &StatusState{
		cur: StatusSnapshot{
			Barrier:   BarrierClosed,
			Device:    DeviceNone,
			UpdatedAt: now(),
		},
		now:  now,
		subs: make(map[int]chan StatusSnapshot),
	}
}

// ApplyTransaction opens the barrier and records a paid summary.
func (s *StatusState) ApplyTransaction(cardID string, amount, balance int64) {
	s.update(func(st *StatusSnapshot, now time.Time) {
		st.Barrier = BarrierOpen
		st.LastTransaction = &TransactionSummary{
			Outcome: OutcomePaid,
			CardID:  cardID,
			Amount:  amount,
			Balance: balance,
			At:      now,
		}
	})
}

// ApplyInsufficient records a rejected payment. The barrier does not move.
func (s *StatusState) ApplyInsufficient(cardID string, balance int64) {
	s.update(func(st *StatusSnapshot, now time.Time) {
		st.LastTransaction = &TransactionSummary{
			Outcome: OutcomeInsufficient,
			CardID:  cardID,
			Balance: balance,
			At:      now,
		}
	})
}

// VehicleDetected records a detection before its capture runs.
func (s *StatusState) VehicleDetected() {
	s.update(func(st *StatusSnapshot, now time.Time) {
		st.LastVehicle = &VehicleEvent{DetectedAt: now}
	})
}

// CaptureCompleted closes the barrier whatever the capture outcome. On success the image
// path becomes the latest image.
func (s *StatusState) CaptureCompleted(imagePath string, captureErr error) {
	s.update(func(st *StatusSnapshot, now time.Time) {
		st.Barrier = BarrierClosed

		ev := VehicleEvent{DetectedAt: now}
		if st.LastVehicle != nil {
			ev.DetectedAt = st.LastVehicle.DetectedAt
		}
		if captureErr != nil {
			ev.Error = captureErr.Error()
		} else {
			ev.Captured = true
			ev.ImagePath = imagePath
			st.LatestImage = imagePath
		}
		st.LastVehicle = &ev
	})
}

// SetDevice records the serial link status.
func (s *StatusState) SetDevice(d DeviceStatus) {
	s.update(func(st *StatusSnapshot, _ time.Time) {
		st.Device = d
	})
}

// Snapshot returns a copy of the current state.
func (s *StatusState) Snapshot() StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// Subscribe returns a channel that receives a snapshot after every change, and a func that
// unsubscribes and closes it. Slow subscribers miss updates rather than block the writer.
func (s *StatusState) Subscribe(buffer int) (<-chan StatusSnapshot, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan StatusSnapshot, buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *StatusState) update(fn func(st *StatusSnapshot, now time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	fn(&s.cur, now)
	s.cur.UpdatedAt = now

	for _, ch := range s.subs {
		select {
		case ch <- s.cur.clone():
		default:
		}
	}
}

func (st StatusSnapshot) clone() StatusSnapshot {
	out := st
	if st.LastVehicle != nil {
		v := *st.LastVehicle
		out.LastVehicle = &v
	}
	if st.LastTransaction != nil {
		t := *st.LastTransaction
		out.LastTransaction = &t
	}
	return out
}
