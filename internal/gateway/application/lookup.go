package application

import (
	"time"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

// lookupMessage is the capability bound for queueable lookup requests.
type lookupMessage[M any] interface {
	domain.Message
	CloneTyped() M
}

// lookupKind is the type-erased face of a lookupState, letting the router
// treat the four kinds uniformly for ticking, draining and reset.
type lookupKind interface {
	ResultType() domain.MessageType
	Arm(tx domain.TxID)
	Heartbeat(tx domain.TxID)
	Drain(orig domain.TxID) (next domain.Message, ok bool)
	Fire(delta time.Duration) []domain.Message
	Depth() int
	Reset()
	SetTimeout(d time.Duration)
}

// lookupState serializes lookups of one kind: the queue head is the only
// request in flight downstream, everything behind it waits for the head's
// result or timeout.
type lookupState[M lookupMessage[M]] struct {
	queue      []M
	wheel      *timeoutWheel
	resultType domain.MessageType
	newResult  func(orig domain.TxID) domain.Message
}

func newLookupState[M lookupMessage[M]](timeout time.Duration, resultType domain.MessageType, newResult func(domain.TxID) domain.Message) *lookupState[M] {
	return &lookupState[M]{
		wheel:      newTimeoutWheel(timeout),
		resultType: resultType,
		newResult:  newResult,
	}
}

// Enqueue records the lookup and reports whether it should be forwarded
// downstream now. A request already queued is forwarded only when it is the
// re-driven head coming back through the inbound port.
func (l *lookupState[M]) Enqueue(msg M) bool {
	tx := msg.Head().TxID
	for i, q := range l.queue {
		if q.Head().TxID == tx {
			return msg.Head().IsBack && i == 0
		}
	}
	l.queue = append(l.queue, msg.CloneTyped())
	return len(l.queue) == 1
}

func (l *lookupState[M]) ResultType() domain.MessageType { return l.resultType }

// Arm restarts the timeout countdown for the lookup that just went in
// flight. Time spent waiting in the queue does not count against it.
func (l *lookupState[M]) Arm(tx domain.TxID) {
	l.wheel.Remove(tx)
	l.wheel.Start(tx)
}

// Heartbeat refreshes the countdown when a matching data frame proves the
// venue is still working on the lookup.
func (l *lookupState[M]) Heartbeat(tx domain.TxID) { l.wheel.Update(tx) }

// Drain settles the in-flight lookup identified by orig and promotes the
// next queued request, returning it marked for re-entry.
func (l *lookupState[M]) Drain(orig domain.TxID) (domain.Message, bool) {
	l.wheel.Remove(orig)
	if len(l.queue) == 0 {
		return nil, false
	}
	l.queue = l.queue[1:]
	if len(l.queue) == 0 {
		return nil, false
	}
	next := l.queue[0].CloneTyped()
	next.Head().IsBack = true
	return next, true
}

// Fire advances the timeout wheel and materializes a synthetic result for
// every lookup whose countdown elapsed.
func (l *lookupState[M]) Fire(delta time.Duration) []domain.Message {
	fired := l.wheel.Tick(delta)
	if len(fired) == 0 {
		return nil
	}
	out := make([]domain.Message, 0, len(fired))
	for _, tx := range fired {
		out = append(out, l.newResult(tx))
	}
	return out
}

func (l *lookupState[M]) Depth() int { return len(l.queue) }

func (l *lookupState[M]) Reset() {
	l.queue = nil
	l.wheel.Reset()
}

func (l *lookupState[M]) SetTimeout(d time.Duration) {
	l.wheel.timeout = d
}
