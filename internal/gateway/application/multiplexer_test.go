package application

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

type fakeDownstream struct {
	sent        []domain.Message
	next        int64
	unsupported map[domain.MessageType]bool
	noSecurity  bool
}

func (f *fakeDownstream) SendIn(msg domain.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeDownstream) SupportsOut(t domain.MessageType) bool {
	return !f.unsupported[t]
}

func (f *fakeDownstream) NextTxID() domain.TxID {
	f.next++
	return domain.TxID(1000 + f.next)
}

func (f *fakeDownstream) SupportsSubscriptionBySecurity() bool {
	return !f.noSecurity
}

func (f *fakeDownstream) ofType(t domain.MessageType) []domain.Message {
	var out []domain.Message
	for _, m := range f.sent {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

// fakeUpstream records raised messages and feeds re-entries back into the
// multiplexer, the way the surrounding pipeline does.
type fakeUpstream struct {
	mux    *Multiplexer
	raised []domain.Message
	looped []domain.Message
}

func (f *fakeUpstream) RaiseNewOut(msg domain.Message) {
	f.raised = append(f.raised, msg)
}

func (f *fakeUpstream) OnSendIn(msg domain.Message) {
	f.looped = append(f.looped, msg)
	if f.mux != nil {
		f.mux.SendIn(msg)
	}
}

func newTestMux(t *testing.T, opts Options) (*Multiplexer, *fakeDownstream, *fakeUpstream) {
	t.Helper()
	down := &fakeDownstream{unsupported: make(map[domain.MessageType]bool)}
	up := &fakeUpstream{}
	mux, err := NewMultiplexer(down, up, opts, nil, nil)
	require.NoError(t, err)
	up.mux = mux
	return mux, down, up
}

func mdSubscribe(tx domain.TxID, securityID int64) *domain.MarketDataMessage {
	return &domain.MarketDataMessage{
		Header:      domain.Header{TxID: tx},
		DataType:    domain.DataTypeCandles,
		SecurityID:  securityID,
		Arg:         "M1",
		IsSubscribe: true,
	}
}

func mdUnsubscribe(tx, original domain.TxID, securityID int64) *domain.MarketDataMessage {
	return &domain.MarketDataMessage{
		Header:     domain.Header{TxID: tx, OriginalTxID: original},
		DataType:   domain.DataTypeCandles,
		SecurityID: securityID,
		Arg:        "M1",
	}
}

func mdAck(original domain.TxID) *domain.MarketDataMessage {
	return &domain.MarketDataMessage{
		Header:      domain.Header{OriginalTxID: original},
		IsSubscribe: true,
	}
}

func TestNewMultiplexerRejectsNegativeTimeout(t *testing.T) {
	down := &fakeDownstream{}
	_, err := NewMultiplexer(down, &fakeUpstream{}, Options{LookupTimeout: -time.Second}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInterval)
}

func TestNewMultiplexerPanicsOnNilCollaborators(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = NewMultiplexer(nil, &fakeUpstream{}, DefaultOptions(), nil, nil)
	})
	assert.Panics(t, func() {
		_, _ = NewMultiplexer(&fakeDownstream{}, nil, DefaultOptions(), nil, nil)
	})
}

func TestSetLookupTimeoutRejectsNegative(t *testing.T) {
	mux, _, _ := newTestMux(t, DefaultOptions())
	assert.ErrorIs(t, mux.SetLookupTimeout(-1), domain.ErrInvalidInterval)
	assert.NoError(t, mux.SetLookupTimeout(30*time.Second))
}

// Two subscribes on one key produce one physical subscribe; the single ack
// fans back out to both subscribers in arrival order.
func TestDedupSharesOnePhysicalSubscription(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(mdSubscribe(2, 42))

	require.Len(t, down.sent, 1)
	assert.Equal(t, domain.TxID(1), down.sent[0].Head().TxID)

	require.NoError(t, mux.HandleOut(mdAck(1)))

	require.Len(t, up.raised, 2)
	assert.Equal(t, domain.TxID(1), up.raised[0].Head().OriginalTxID)
	assert.Equal(t, domain.TxID(2), up.raised[1].Head().OriginalTxID)
	for _, m := range up.raised {
		assert.NoError(t, m.Head().Error)
	}
}

func TestAckOrderFollowsArrivalOrder(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	for tx := domain.TxID(1); tx <= 5; tx++ {
		mux.SendIn(mdSubscribe(tx, 7))
	}
	require.Len(t, down.sent, 1)

	require.NoError(t, mux.HandleOut(mdAck(1)))

	require.Len(t, up.raised, 5)
	for i, m := range up.raised {
		assert.Equal(t, domain.TxID(i+1), m.Head().OriginalTxID)
	}
}

func TestLateSubscriberGetsImmediateAck(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	require.NoError(t, mux.HandleOut(mdAck(1)))
	up.raised = nil

	mux.SendIn(mdSubscribe(2, 42))

	require.Len(t, down.sent, 1, "no second physical subscribe")
	require.Len(t, up.raised, 1)
	assert.Equal(t, domain.TxID(2), up.raised[0].Head().OriginalTxID)
	assert.NoError(t, up.raised[0].Head().Error)
}

func TestFailedAckDropsSubscription(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	require.Len(t, down.sent, 1)

	ack := mdAck(1)
	ack.Error = assert.AnError
	require.NoError(t, mux.HandleOut(ack))

	require.Len(t, up.raised, 1)
	assert.Error(t, up.raised[0].Head().Error)
	assert.Zero(t, mux.md.Len())
	assert.Empty(t, mux.md.byTx)
}

func TestNonExistUnsubscribeAsError(t *testing.T) {
	mux, down, up := newTestMux(t, Options{NonExistSubscriptionAsError: true, LookupTimeout: DefaultLookupTimeout})

	mux.SendIn(mdUnsubscribe(5, 99, 42))

	assert.Empty(t, down.sent)
	require.Len(t, up.raised, 1)
	assert.Equal(t, domain.TxID(5), up.raised[0].Head().OriginalTxID)
	assert.ErrorIs(t, up.raised[0].Head().Error, domain.ErrNonExistSubscription)
}

func TestNonExistUnsubscribeSwallowedByDefault(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdUnsubscribe(5, 99, 42))

	assert.Empty(t, down.sent)
	assert.Empty(t, up.raised)
}

// Subscribe then unsubscribe round-trips to empty tables once both acks are
// settled.
func TestSubscribeUnsubscribeRoundTrip(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	require.NoError(t, mux.HandleOut(mdAck(1)))

	mux.SendIn(mdUnsubscribe(2, 1, 42))
	require.Len(t, down.sent, 2)
	unsub := down.sent[1].(*domain.MarketDataMessage)
	assert.False(t, unsub.IsSubscribe)
	assert.Equal(t, domain.TxID(1), unsub.OriginalTxID)

	require.NoError(t, mux.HandleOut(&domain.MarketDataMessage{Header: domain.Header{OriginalTxID: 2}}))

	assert.Zero(t, mux.md.Len())
	assert.Empty(t, mux.md.byTx)
	require.Len(t, up.raised, 2)
	assert.Equal(t, domain.TxID(2), up.raised[1].Head().OriginalTxID)
}

// Two subscribers, two unsubscribes: exactly one physical subscribe and one
// physical unsubscribe cross the downstream port.
func TestSharedKeyRoundTrip(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(mdSubscribe(2, 42))
	require.NoError(t, mux.HandleOut(mdAck(1)))
	up.raised = nil

	mux.SendIn(mdUnsubscribe(3, 1, 42))
	require.Len(t, down.sent, 1, "first unsubscribe absorbed")
	require.Len(t, up.raised, 1, "absorbed unsubscribe acked directly")
	assert.Equal(t, domain.TxID(3), up.raised[0].Head().OriginalTxID)

	mux.SendIn(mdUnsubscribe(4, 2, 42))
	require.Len(t, down.sent, 2, "last unsubscribe goes downstream")
	assert.Equal(t, domain.TxID(4), down.sent[1].Head().TxID)
}

func TestCaseInsensitiveKeys(t *testing.T) {
	mux, down, _ := newTestMux(t, DefaultOptions())

	news := func(tx domain.TxID, id string) *domain.MarketDataMessage {
		return &domain.MarketDataMessage{
			Header:      domain.Header{TxID: tx},
			DataType:    domain.DataTypeNews,
			NewsID:      id,
			IsSubscribe: true,
		}
	}
	mux.SendIn(news(1, "MOEX"))
	mux.SendIn(news(2, "moex"))

	assert.Len(t, down.sent, 1)
	assert.Equal(t, 1, mux.md.Len())

	pf := func(tx domain.TxID, name string) *domain.PortfolioMessage {
		return &domain.PortfolioMessage{Header: domain.Header{TxID: tx}, Portfolio: name, IsSubscribe: true}
	}
	mux.SendIn(pf(3, "Main"))
	mux.SendIn(pf(4, "MAIN"))
	assert.Len(t, down.ofType(domain.TypePortfolio), 1)
	assert.Equal(t, 1, mux.pf.Len())
}

func TestSecurityKeyDroppedWhenVenueCannotSubscribeBySecurity(t *testing.T) {
	mux, down, _ := newTestMux(t, DefaultOptions())
	down.noSecurity = true

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(mdSubscribe(2, 43))

	assert.Len(t, down.sent, 1, "different securities share one physical stream")
	assert.Equal(t, 1, mux.md.Len())
}

// History-only duplicates go downstream flagged as history; their raw acks
// are consumed and the data stream is tagged with every subscriber.
func TestMultipleSubscriptionsHistoryOnly(t *testing.T) {
	mux, down, up := newTestMux(t, Options{SupportMultipleSubscriptions: true, LookupTimeout: DefaultLookupTimeout})

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(mdSubscribe(2, 42))

	require.Len(t, down.sent, 2)
	second := down.sent[1].(*domain.MarketDataMessage)
	assert.True(t, second.IsHistory)

	require.NoError(t, mux.HandleOut(mdAck(1)))
	require.Len(t, up.raised, 2)

	up.raised = nil
	require.NoError(t, mux.HandleOut(mdAck(2)))
	assert.Empty(t, up.raised, "history-only ack consumed")

	candle := &domain.CandleMessage{Header: domain.Header{OriginalTxID: 1}, SecurityID: 42}
	require.NoError(t, mux.HandleOut(candle))
	require.Len(t, up.raised, 1)
	assert.Equal(t, []domain.TxID{1, 2}, up.raised[0].Head().SubscriptionIDs)
}

func TestLookupQueueSingleInFlight(t *testing.T) {
	mux, down, up := newTestMux(t, DefaultOptions())

	lookup := func(tx domain.TxID) *domain.SecurityLookupMessage {
		return &domain.SecurityLookupMessage{Header: domain.Header{TxID: tx}, SecurityCode: "SBER"}
	}
	mux.SendIn(lookup(1))
	mux.SendIn(lookup(2))
	mux.SendIn(lookup(3))

	require.Len(t, down.sent, 1)
	assert.Equal(t, domain.TxID(1), down.sent[0].Head().TxID)

	require.NoError(t, mux.HandleOut(&domain.SecurityLookupResultMessage{Header: domain.Header{OriginalTxID: 1}}))
	require.Len(t, down.sent, 2)
	assert.Equal(t, domain.TxID(2), down.sent[1].Head().TxID)
	assert.True(t, down.sent[1].Head().IsBack)

	require.NoError(t, mux.HandleOut(&domain.SecurityLookupResultMessage{Header: domain.Header{OriginalTxID: 2}}))
	require.Len(t, down.sent, 3)
	assert.Equal(t, domain.TxID(3), down.sent[2].Head().TxID)

	require.NoError(t, mux.HandleOut(&domain.SecurityLookupResultMessage{Header: domain.Header{OriginalTxID: 3}}))
	require.Len(t, down.sent, 3)

	results := 0
	for _, m := range up.raised {
		if m.Type() == domain.TypeSecurityLookupResult {
			results++
		}
	}
	assert.Equal(t, 3, results)
}

// A lookup whose result type the venue never produces is answered by a
// synthetic result once enough venue time passes.
func TestLookupTimeoutFiresSyntheticResult(t *testing.T) {
	mux, down, up := newTestMux(t, Options{LookupTimeout: 10 * time.Second})
	down.unsupported[domain.TypeSecurityLookupResult] = true

	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 7}})
	require.Len(t, down.sent, 1)

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	candle := func(at time.Time) *domain.CandleMessage {
		return &domain.CandleMessage{Header: domain.Header{LocalTime: at}}
	}
	require.NoError(t, mux.HandleOut(candle(base)))
	require.NoError(t, mux.HandleOut(candle(base.Add(11*time.Second))))

	var synthetic *domain.SecurityLookupResultMessage
	for _, m := range up.raised {
		if r, ok := m.(*domain.SecurityLookupResultMessage); ok {
			synthetic = r
		}
	}
	require.NotNil(t, synthetic)
	assert.Equal(t, domain.TxID(7), synthetic.OriginalTxID)
}

func TestLookupHeartbeatDefersTimeout(t *testing.T) {
	mux, down, up := newTestMux(t, Options{LookupTimeout: 10 * time.Second})
	down.unsupported[domain.TypeSecurityLookupResult] = true

	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 7}})

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base}}))
	// 6 seconds in, a security frame for the lookup resets the countdown.
	require.NoError(t, mux.HandleOut(&domain.SecurityMessage{Header: domain.Header{OriginalTxID: 7, LocalTime: base.Add(6 * time.Second)}}))
	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base.Add(12 * time.Second)}}))

	for _, m := range up.raised {
		_, isResult := m.(*domain.SecurityLookupResultMessage)
		assert.False(t, isResult, "heartbeat must defer the timeout")
	}

	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base.Add(17 * time.Second)}}))
	found := false
	for _, m := range up.raised {
		if _, ok := m.(*domain.SecurityLookupResultMessage); ok {
			found = true
		}
	}
	assert.True(t, found)
}

// A timed-out head must not wedge the queue: the next lookup goes in flight.
func TestLookupTimeoutAdvancesQueue(t *testing.T) {
	mux, down, _ := newTestMux(t, Options{LookupTimeout: 10 * time.Second})
	down.unsupported[domain.TypeSecurityLookupResult] = true

	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 1}})
	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 2}})
	require.Len(t, down.sent, 1)

	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base}}))
	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base.Add(11 * time.Second)}}))

	require.Len(t, down.sent, 2)
	assert.Equal(t, domain.TxID(2), down.sent[1].Head().TxID)
}

func TestReconnectReplayRestoresSubscription(t *testing.T) {
	mux, down, up := newTestMux(t, Options{RestoreOnNormalReconnect: true, LookupTimeout: DefaultLookupTimeout})

	mux.SendIn(mdSubscribe(10, 42))
	require.NoError(t, mux.HandleOut(mdAck(10)))
	down.sent = nil
	up.raised = nil

	mux.SendIn(&domain.DisconnectMessage{})

	require.Len(t, down.sent, 2)
	unsub := down.sent[0].(*domain.MarketDataMessage)
	assert.False(t, unsub.IsSubscribe)
	assert.Equal(t, domain.TxID(10), unsub.OriginalTxID)
	assert.NotEqual(t, domain.TxID(10), unsub.TxID, "synthetic unsubscribe gets a fresh tx")
	assert.Equal(t, domain.TypeDisconnect, down.sent[1].Type())

	down.sent = nil
	require.NoError(t, mux.HandleOut(&domain.ConnectMessage{}))

	require.Len(t, up.looped, 1)
	replayed := up.looped[0].(*domain.MarketDataMessage)
	assert.True(t, replayed.IsBack)
	assert.Equal(t, domain.TxID(10), replayed.TxID)

	require.Len(t, down.sent, 1, "replayed subscribe passes through to the venue")
	assert.Equal(t, domain.TxID(10), down.sent[0].Head().TxID)
	assert.Equal(t, 1, mux.md.Len(), "bookkeeping preserved across the reconnect")
}

func TestReplayedUnsubscribeAckIsConsumed(t *testing.T) {
	mux, down, up := newTestMux(t, Options{RestoreOnNormalReconnect: true, LookupTimeout: DefaultLookupTimeout})

	mux.SendIn(mdSubscribe(10, 42))
	require.NoError(t, mux.HandleOut(mdAck(10)))
	mux.SendIn(&domain.DisconnectMessage{})

	unsubTx := down.sent[len(down.sent)-2].Head().TxID
	up.raised = nil
	require.NoError(t, mux.HandleOut(&domain.MarketDataMessage{Header: domain.Header{OriginalTxID: unsubTx}}))
	assert.Empty(t, up.raised, "pass-through unsubscribe ack suppressed")
}

func TestDisconnectWithoutRestoreClearsTables(t *testing.T) {
	mux, down, _ := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(10, 42))
	require.NoError(t, mux.HandleOut(mdAck(10)))

	mux.SendIn(&domain.DisconnectMessage{})
	assert.Zero(t, mux.md.Len())

	down.sent = nil
	require.NoError(t, mux.HandleOut(&domain.ConnectMessage{}))
	assert.Empty(t, down.sent, "nothing to replay")
}

// With only error-restore armed, a disconnect leaves the subscriber state in
// place waiting for the reconnect-finished signal.
func TestErrorRestoreKeepsSubscribersAcrossDisconnect(t *testing.T) {
	mux, down, _ := newTestMux(t, Options{RestoreOnErrorReconnect: true, LookupTimeout: DefaultLookupTimeout})

	mux.SendIn(mdSubscribe(10, 42))
	require.NoError(t, mux.HandleOut(mdAck(10)))

	mux.SendIn(&domain.DisconnectMessage{})
	assert.Equal(t, 1, mux.md.Len())

	down.sent = nil
	require.NoError(t, mux.HandleOut(&domain.ReconnectingFinishedMessage{}))
	require.Len(t, down.sent, 1)
	assert.Equal(t, domain.TxID(10), down.sent[0].Head().TxID)
}

func TestResetClearsEverything(t *testing.T) {
	mux, down, _ := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 2}})
	mux.SendIn(&domain.ResetMessage{})

	assert.Zero(t, mux.md.Len())
	assert.Zero(t, mux.securities.Depth())
	assert.Empty(t, mux.passThrough)
	assert.True(t, mux.prevLocalTime.IsZero())
	assert.Equal(t, domain.TypeReset, down.sent[len(down.sent)-1].Type())
}

func TestCandleTaggingUsesSubscriberSnapshot(t *testing.T) {
	mux, _, up := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(mdSubscribe(2, 42))
	require.NoError(t, mux.HandleOut(mdAck(1)))
	up.raised = nil

	candle := &domain.CandleMessage{Header: domain.Header{OriginalTxID: 1}, SecurityID: 42}
	require.NoError(t, mux.HandleOut(candle))

	require.Len(t, up.raised, 1)
	assert.Equal(t, []domain.TxID{1, 2}, up.raised[0].Head().SubscriptionIDs)
}

func TestExecutionTaggingTransactionalPolicy(t *testing.T) {
	mux, _, up := newTestMux(t, DefaultOptions())

	pfLookup := func(tx domain.TxID) *domain.PortfolioLookupMessage {
		return &domain.PortfolioLookupMessage{Header: domain.Header{TxID: tx}, IsSubscribe: true}
	}
	mux.SendIn(pfLookup(5))
	require.NoError(t, mux.HandleOut(&domain.PortfolioLookupResultMessage{Header: domain.Header{OriginalTxID: 5}}))
	mux.SendIn(pfLookup(6))
	require.NoError(t, mux.HandleOut(&domain.PortfolioLookupResultMessage{Header: domain.Header{OriginalTxID: 6}}))
	up.raised = nil

	exec := &domain.ExecutionMessage{
		Header:    domain.Header{OriginalTxID: 6},
		ExecType:  domain.ExecTypeTransaction,
		Portfolio: "main",
	}
	require.NoError(t, mux.HandleOut(exec))

	require.Len(t, up.raised, 1)
	h := up.raised[0].Head()
	assert.Equal(t, domain.TxID(6), h.SubscriptionID)
	// Ids come from the earliest live entry, a preserved limitation of the
	// transactional tagging policy.
	assert.Equal(t, []domain.TxID{5}, h.SubscriptionIDs)
}

func TestUnknownOutboundVariantFails(t *testing.T) {
	mux, _, _ := newTestMux(t, DefaultOptions())
	err := mux.HandleOut(&unknownMessage{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedMessage)
}

type unknownMessage struct {
	domain.Header
}

func (m *unknownMessage) Type() domain.MessageType { return domain.MessageType(999) }
func (m *unknownMessage) Clone() domain.Message    { c := *m; return &c }

func TestUnknownInboundForwardsUnchanged(t *testing.T) {
	mux, down, _ := newTestMux(t, DefaultOptions())
	msg := &domain.ConnectMessage{}
	mux.SendIn(msg)
	require.Len(t, down.sent, 1)
	assert.Same(t, domain.Message(msg), down.sent[0])
}

// Invariants 1 and 2 hold under a random subscribe/unsubscribe storm.
func TestTableInvariantsUnderRandomOps(t *testing.T) {
	mux, _, _ := newTestMux(t, DefaultOptions())
	rng := rand.New(rand.NewSource(1))

	live := make(map[domain.TxID]int64)
	nextTx := domain.TxID(0)

	for i := 0; i < 500; i++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			nextTx++
			sec := int64(rng.Intn(5) + 1)
			mux.SendIn(mdSubscribe(nextTx, sec))
			live[nextTx] = sec
			_ = mux.HandleOut(mdAck(nextTx))
		} else {
			var victim domain.TxID
			for tx := range live {
				victim = tx
				break
			}
			nextTx++
			mux.SendIn(mdUnsubscribe(nextTx, victim, live[victim]))
			_ = mux.HandleOut(&domain.MarketDataMessage{Header: domain.Header{OriginalTxID: nextTx}})
			delete(live, victim)
		}

		for key, info := range mux.md.byKey {
			assert.Positive(t, info.subscribers.Len(), "key %v has no subscribers", key)
		}
		for tx, info := range mux.md.byTx {
			if _, pending := live[tx]; pending {
				assert.True(t, info.subscribers.Contains(tx), "tx %d not in its info's subscriber set", tx)
			}
		}
	}
}

type fakeAuditTrail struct {
	mu      sync.Mutex
	entries []string // "action:tx"
}

func (f *fakeAuditTrail) Record(_ context.Context, txID int64, _, action, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, fmt.Sprintf("%s:%d", action, txID))
	return nil
}

func (f *fakeAuditTrail) has(entry string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func TestReplayAndTimeoutAreAudited(t *testing.T) {
	mux, down, _ := newTestMux(t, Options{RestoreOnNormalReconnect: true, LookupTimeout: 10 * time.Second})
	trail := &fakeAuditTrail{}
	mux.SetAuditTrail(trail)
	down.unsupported[domain.TypeSecurityLookupResult] = true

	mux.SendIn(mdSubscribe(10, 42))
	require.NoError(t, mux.HandleOut(mdAck(10)))
	mux.SendIn(&domain.DisconnectMessage{})
	require.NoError(t, mux.HandleOut(&domain.ConnectMessage{}))

	assert.Eventually(t, func() bool { return trail.has("replay:10") },
		time.Second, 10*time.Millisecond, "replayed subscription not audited")

	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 7}})
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base}}))
	require.NoError(t, mux.HandleOut(&domain.CandleMessage{Header: domain.Header{LocalTime: base.Add(11 * time.Second)}}))

	assert.Eventually(t, func() bool { return trail.has("timeout:7") },
		time.Second, 10*time.Millisecond, "fired lookup timeout not audited")
}

func TestSnapshotReflectsState(t *testing.T) {
	mux, _, _ := newTestMux(t, DefaultOptions())

	mux.SendIn(mdSubscribe(1, 42))
	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 2}})
	mux.SendIn(&domain.SecurityLookupMessage{Header: domain.Header{TxID: 3}})

	snap := mux.Snapshot()
	require.Len(t, snap.Subscriptions, 1)
	assert.Equal(t, "marketdata", snap.Subscriptions[0].Kind)
	assert.Equal(t, []int64{1}, snap.Subscriptions[0].Subscribers)
	assert.Equal(t, 2, snap.LookupDepths["securities"])
}
