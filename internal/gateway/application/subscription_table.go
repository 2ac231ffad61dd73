package application

import (
	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

// subscriptionMessage is the capability bound shared by every message type
// the table can track: market data, portfolio, order status and portfolio
// lookup requests.
type subscriptionMessage[M any] interface {
	domain.Message
	CloneTyped() M
	Subscribe() bool
}

// subscriptionInfo is the shared record behind one physical subscription.
// It is referenced from both the keyed map and the by-tx index, so it must
// never be deep-copied once stored.
type subscriptionInfo[K comparable, M subscriptionMessage[M]] struct {
	key         K
	message     M   // canonical subscribe request, clone of the first
	requests    []M // requests awaiting the next downstream ack, arrival order
	subscribers *subscriberSet
	subscribed  bool
}

// subscriptionTable deduplicates subscribe requests per key and fans the
// downstream ack back out to every logical subscriber.
type subscriptionTable[K comparable, M subscriptionMessage[M]] struct {
	byKey map[K]*subscriptionInfo[K, M]
	byTx  map[domain.TxID]*subscriptionInfo[K, M]
}

func newSubscriptionTable[K comparable, M subscriptionMessage[M]]() *subscriptionTable[K, M] {
	return &subscriptionTable[K, M]{
		byKey: make(map[K]*subscriptionInfo[K, M]),
		byTx:  make(map[domain.TxID]*subscriptionInfo[K, M]),
	}
}

// subscribeAction tells the router what to do after table bookkeeping.
type subscribeAction struct {
	Forward  bool // send the request downstream
	History  bool // forwarded as a history-only duplicate
	SynthAck bool // synthesize an immediate positive ack for this subscriber
}

// Subscribe registers tx as a logical subscriber of key. The first
// subscriber triggers the physical subscribe; later ones either ride the
// pending ack, get an immediate synthetic ack, or — when multiple
// subscriptions are allowed — go downstream as history-only requests.
func (t *subscriptionTable[K, M]) Subscribe(key K, msg M, multiple bool) subscribeAction {
	tx := msg.Head().TxID

	info, ok := t.byKey[key]
	if !ok {
		info = &subscriptionInfo[K, M]{
			key:         key,
			message:     msg.CloneTyped(),
			subscribers: newSubscriberSet(),
		}
		t.byKey[key] = info
	}

	info.subscribers.Add(tx)
	t.byTx[tx] = info
	first := info.subscribers.Len() == 1

	var act subscribeAction
	switch {
	case first:
		act.Forward = true
		info.requests = append(info.requests, msg.CloneTyped())
	case multiple:
		act.Forward = true
		act.History = true
		if info.subscribed {
			act.SynthAck = true
		} else {
			info.requests = append(info.requests, msg.CloneTyped())
		}
	case info.subscribed:
		act.SynthAck = true
	default:
		info.requests = append(info.requests, msg.CloneTyped())
	}
	return act
}

// unsubscribeAction tells the router what to do after an unsubscribe.
type unsubscribeAction[M any] struct {
	NotFound   bool
	Forward    bool
	ForwardMsg M    // prepared clone for downstream, original tx filled in
	SynthAck   bool // remaining subscribers exist, ack the caller directly
}

// Unsubscribe removes msg.OriginalTxID from the key's subscriber set. The
// physical unsubscribe goes downstream only when the set drains; the key
// entry is removed immediately while the by-tx entry survives until the
// unsubscribe ack is processed.
func (t *subscriptionTable[K, M]) Unsubscribe(key K, msg M) unsubscribeAction[M] {
	var act unsubscribeAction[M]

	info, ok := t.byKey[key]
	if !ok || !info.subscribers.Remove(msg.Head().OriginalTxID) {
		act.NotFound = true
		return act
	}
	delete(t.byTx, msg.Head().OriginalTxID)

	if info.subscribers.Len() > 0 {
		act.SynthAck = true
		return act
	}

	fwd := msg.CloneTyped()
	if fwd.Head().OriginalTxID == 0 {
		fwd.Head().OriginalTxID = info.message.Head().TxID
	}
	act.Forward = true
	act.ForwardMsg = fwd

	info.requests = append(info.requests, msg.CloneTyped())
	info.message = msg.CloneTyped()
	t.byTx[msg.Head().TxID] = info
	delete(t.byKey, key)
	return act
}

// ProcessAck settles the pending requests of the subscription referenced by
// the downstream ack. It returns one upstream ack per recorded request, in
// arrival order, each bound to that request's transaction id.
func (t *subscriptionTable[K, M]) ProcessAck(ack *domain.Header) (acks []M, handled bool) {
	info, ok := t.byTx[ack.OriginalTxID]
	if !ok {
		return nil, false
	}

	positive := ack.Error == nil && !ack.IsNotSupported
	info.subscribed = info.message.Subscribe() && positive

	for _, req := range info.requests {
		reply := req.CloneTyped()
		h := reply.Head()
		h.OriginalTxID = req.Head().TxID
		h.TxID = 0
		h.Error = ack.Error
		h.IsNotSupported = ack.IsNotSupported
		acks = append(acks, reply)
	}
	info.requests = nil

	if !info.subscribed {
		t.drop(info)
	}
	return acks, true
}

// drop removes every reference to info from both indexes.
func (t *subscriptionTable[K, M]) drop(info *subscriptionInfo[K, M]) {
	delete(t.byKey, info.key)
	for tx, i := range t.byTx {
		if i == info {
			delete(t.byTx, tx)
		}
	}
}

// Lookup returns the info a transaction id is bound to, if any.
func (t *subscriptionTable[K, M]) Lookup(tx domain.TxID) (*subscriptionInfo[K, M], bool) {
	info, ok := t.byTx[tx]
	return info, ok
}

// First returns the live entry with the smallest transaction id. Transaction
// ids are monotonic, so the smallest is the earliest still alive.
func (t *subscriptionTable[K, M]) First() (*subscriptionInfo[K, M], bool) {
	var (
		best   *subscriptionInfo[K, M]
		bestTx domain.TxID
	)
	for _, info := range t.byKey {
		tx := info.message.Head().TxID
		if best == nil || tx < bestTx {
			best, bestTx = info, tx
		}
	}
	return best, best != nil
}

// Messages clones the canonical subscribe of every live entry.
func (t *subscriptionTable[K, M]) Messages() []M {
	msgs := make([]M, 0, len(t.byKey))
	for _, info := range t.byKey {
		msgs = append(msgs, info.message.CloneTyped())
	}
	return msgs
}

func (t *subscriptionTable[K, M]) Len() int { return len(t.byKey) }

func (t *subscriptionTable[K, M]) Clear() {
	clear(t.byKey)
	clear(t.byTx)
}
