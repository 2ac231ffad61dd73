package application

import (
	"sort"
	"time"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

// timeoutWheel counts down per-transaction deadlines. It is driven by the
// observed local_time deltas of outbound messages, not by a wall clock, so a
// quiet transport never fires timeouts.
type timeoutWheel struct {
	timeout   time.Duration
	remaining map[domain.TxID]time.Duration
}

func newTimeoutWheel(timeout time.Duration) *timeoutWheel {
	return &timeoutWheel{
		timeout:   timeout,
		remaining: make(map[domain.TxID]time.Duration),
	}
}

// Start arms a countdown for tx. Zero transactions and duplicates are
// ignored; a disabled wheel (timeout 0) never arms.
func (w *timeoutWheel) Start(tx domain.TxID) {
	if w.timeout <= 0 || tx == 0 {
		return
	}
	if _, ok := w.remaining[tx]; ok {
		return
	}
	w.remaining[tx] = w.timeout
}

// Update resets the countdown for tx only if one is armed. Matching data
// frames use it as a liveness heartbeat.
func (w *timeoutWheel) Update(tx domain.TxID) {
	if _, ok := w.remaining[tx]; ok {
		w.remaining[tx] = w.timeout
	}
}

func (w *timeoutWheel) Remove(tx domain.TxID) {
	delete(w.remaining, tx)
}

// Tick advances every countdown by delta and returns the transactions whose
// deadline elapsed, evicting them.
func (w *timeoutWheel) Tick(delta time.Duration) []domain.TxID {
	if delta <= 0 || len(w.remaining) == 0 {
		return nil
	}
	var fired []domain.TxID
	for tx, rem := range w.remaining {
		rem -= delta
		if rem <= 0 {
			delete(w.remaining, tx)
			fired = append(fired, tx)
			continue
		}
		w.remaining[tx] = rem
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i] < fired[j] })
	return fired
}

func (w *timeoutWheel) Reset() {
	clear(w.remaining)
}
