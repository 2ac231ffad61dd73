package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
	"github.com/wyfcoding/venuegateway/pkg/metrics"
)

// Multiplexer is the subscription multiplexing stage between upstream
// clients and the venue transport. It deduplicates subscriptions per key,
// serializes lookup floods, times out unacknowledged lookups against the
// venue's message clock, restores subscriptions across reconnects, and tags
// outbound data with the logical subscribers that asked for it.
//
// It owns no goroutine: both ports are driven by caller threads. All state
// lives under one mutex, and no callback is ever invoked while it is held.
type Multiplexer struct {
	mu    sync.Mutex
	log   *slog.Logger
	mets  *metrics.Metrics
	down  domain.DownstreamAdapter
	up    domain.UpstreamSink
	audit domain.AuditTrail
	opts  Options

	md *subscriptionTable[domain.MarketDataKey, *domain.MarketDataMessage]
	pf *subscriptionTable[string, *domain.PortfolioMessage]
	os *subscriptionTable[domain.TxID, *domain.OrderStatusMessage]
	pl *subscriptionTable[domain.TxID, *domain.PortfolioLookupMessage]

	historyOnly map[domain.TxID]struct{}
	passThrough map[domain.TxID]struct{}

	pendingReplay []domain.Message
	prevLocalTime time.Time

	securities *lookupState[*domain.SecurityLookupMessage]
	portfolios *lookupState[*domain.PortfolioLookupMessage]
	boards     *lookupState[*domain.BoardLookupMessage]
	timeFrames *lookupState[*domain.TimeFrameLookupMessage]
}

// NewMultiplexer wires the multiplexer between its two collaborators.
// Nil collaborators are programmer errors and panic.
func NewMultiplexer(down domain.DownstreamAdapter, up domain.UpstreamSink, opts Options, log *slog.Logger, mets *metrics.Metrics) (*Multiplexer, error) {
	if down == nil {
		panic("venuegateway: nil downstream adapter")
	}
	if up == nil {
		panic("venuegateway: nil upstream sink")
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.LookupTimeout < 0 {
		return nil, domain.ErrInvalidInterval
	}

	m := &Multiplexer{
		log:  log,
		mets: mets,
		down: down,
		up:   up,
		opts: opts,

		md: newSubscriptionTable[domain.MarketDataKey, *domain.MarketDataMessage](),
		pf: newSubscriptionTable[string, *domain.PortfolioMessage](),
		os: newSubscriptionTable[domain.TxID, *domain.OrderStatusMessage](),
		pl: newSubscriptionTable[domain.TxID, *domain.PortfolioLookupMessage](),

		historyOnly: make(map[domain.TxID]struct{}),
		passThrough: make(map[domain.TxID]struct{}),
	}

	m.securities = newLookupState[*domain.SecurityLookupMessage](opts.LookupTimeout, domain.TypeSecurityLookupResult, func(tx domain.TxID) domain.Message {
		return &domain.SecurityLookupResultMessage{Header: domain.Header{OriginalTxID: tx}}
	})
	m.portfolios = newLookupState[*domain.PortfolioLookupMessage](opts.LookupTimeout, domain.TypePortfolioLookupResult, func(tx domain.TxID) domain.Message {
		return &domain.PortfolioLookupResultMessage{Header: domain.Header{OriginalTxID: tx}}
	})
	m.boards = newLookupState[*domain.BoardLookupMessage](opts.LookupTimeout, domain.TypeBoardLookupResult, func(tx domain.TxID) domain.Message {
		return &domain.BoardLookupResultMessage{Header: domain.Header{OriginalTxID: tx}}
	})
	m.timeFrames = newLookupState[*domain.TimeFrameLookupMessage](opts.LookupTimeout, domain.TypeTimeFrameLookupResult, func(tx domain.TxID) domain.Message {
		return &domain.TimeFrameLookupResultMessage{Header: domain.Header{OriginalTxID: tx}}
	})

	return m, nil
}

// SetAuditTrail attaches an optional audit sink for replay and timeout
// events. Entries are written asynchronously, never under the lock.
func (m *Multiplexer) SetAuditTrail(audit domain.AuditTrail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = audit
}

// SetLookupTimeout replaces the countdown applied to all four lookup kinds.
func (m *Multiplexer) SetLookupTimeout(d time.Duration) error {
	if d < 0 {
		return domain.ErrInvalidInterval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.LookupTimeout = d
	for _, lk := range m.lookupKinds() {
		lk.SetTimeout(d)
	}
	return nil
}

func (m *Multiplexer) lookupKinds() []lookupKind {
	return []lookupKind{m.securities, m.portfolios, m.boards, m.timeFrames}
}

// effects is the work computed under the lock and performed after release.
// Callbacks under the lock would invert lock order with the surrounding
// pipeline.
type effects struct {
	down   []domain.Message // forward to the venue transport
	up     []domain.Message // raise to the upstream client
	loop   []domain.Message // re-enter through the inbound port
	audits []auditEntry     // append to the audit trail, if attached
}

type auditEntry struct {
	tx     domain.TxID
	kind   string
	action string
	detail string
}

func (m *Multiplexer) flush(eff *effects) {
	for _, msg := range eff.down {
		if err := m.down.SendIn(msg); err != nil {
			m.log.Error("downstream send failed", "type", msg.Type().String(), "tx", msg.Head().TxID, "error", err)
		}
	}
	for _, msg := range eff.up {
		m.up.RaiseNewOut(msg)
	}
	for _, msg := range eff.loop {
		m.up.OnSendIn(msg)
	}
	if m.audit != nil && len(eff.audits) > 0 {
		go func(entries []auditEntry) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			for _, e := range entries {
				if err := m.audit.Record(ctx, int64(e.tx), e.kind, e.action, "", e.detail); err != nil {
					m.log.Warn("audit write failed", "tx", e.tx, "action", e.action, "error", err)
				}
			}
		}(eff.audits)
	}
}

// ---------------------------------------------------------------------------
// Inbound port
// ---------------------------------------------------------------------------

// SendIn receives a control message from upstream and routes it.
func (m *Multiplexer) SendIn(msg domain.Message) {
	if msg == nil {
		panic("venuegateway: nil inbound message")
	}
	if m.mets != nil {
		m.mets.MessagesRouted.WithLabelValues("in").Inc()
	}

	var eff effects
	m.mu.Lock()
	m.routeIn(msg, &eff)
	m.updateGaugesLocked()
	m.mu.Unlock()
	m.flush(&eff)
}

func (m *Multiplexer) routeIn(msg domain.Message, eff *effects) {
	switch v := msg.(type) {
	case *domain.ResetMessage:
		m.processReset(v, eff)
	case *domain.DisconnectMessage:
		m.processDisconnect(v, eff)
	case *domain.MarketDataMessage:
		m.processInMarketData(v, eff)
	case *domain.PortfolioMessage:
		m.processInPortfolio(v, eff)
	case *domain.OrderStatusMessage:
		m.processInOrderStatus(v, eff)
	case *domain.PortfolioLookupMessage:
		m.processInPortfolioLookup(v, eff)
	case *domain.SecurityLookupMessage:
		processInLookup(m, m.securities, v, eff)
	case *domain.BoardLookupMessage:
		processInLookup(m, m.boards, v, eff)
	case *domain.TimeFrameLookupMessage:
		processInLookup(m, m.timeFrames, v, eff)
	default:
		eff.down = append(eff.down, msg)
	}
}

func (m *Multiplexer) processReset(msg *domain.ResetMessage, eff *effects) {
	if !m.opts.RestoreOnErrorReconnect {
		m.clearTablesLocked()
	}
	m.pendingReplay = nil
	clear(m.passThrough)
	for _, lk := range m.lookupKinds() {
		lk.Reset()
	}
	m.prevLocalTime = time.Time{}
	eff.down = append(eff.down, msg)
}

func (m *Multiplexer) processDisconnect(msg *domain.DisconnectMessage, eff *effects) {
	subs := m.snapshotSubscriptionsLocked()

	if m.opts.RestoreOnNormalReconnect {
		m.pendingReplay = m.pendingReplay[:0]
		for _, sub := range subs {
			m.pendingReplay = append(m.pendingReplay, sub.Clone())
		}
	} else if !m.opts.RestoreOnErrorReconnect {
		// With neither restore mode armed the subscriber state dies with
		// the session. Error-restore mode keeps it for the next
		// reconnect-finished signal.
		m.clearTablesLocked()
	}

	for _, sub := range subs {
		unsub := makeUnsubscribe(sub, m.down.NextTxID())
		if unsub == nil {
			continue
		}
		if m.opts.RestoreOnNormalReconnect {
			m.passThrough[unsub.Head().TxID] = struct{}{}
		}
		eff.down = append(eff.down, unsub)
	}

	eff.down = append(eff.down, msg)
}

func (m *Multiplexer) processInMarketData(msg *domain.MarketDataMessage, eff *effects) {
	if m.consumePassThrough(msg.TxID) {
		eff.down = append(eff.down, msg)
		return
	}

	key := domain.NewMarketDataKey(msg, m.down.SupportsSubscriptionBySecurity())

	if msg.IsSubscribe {
		act := m.md.Subscribe(key, msg, m.opts.SupportMultipleSubscriptions)
		if act.History {
			m.historyOnly[msg.TxID] = struct{}{}
		}
		if act.Forward {
			fwd := msg.CloneTyped()
			fwd.IsHistory = fwd.IsHistory || act.History
			eff.down = append(eff.down, fwd)
		}
		if act.SynthAck {
			eff.up = append(eff.up, m.synthAck(msg))
		}
		return
	}

	act := m.md.Unsubscribe(key, msg)
	switch {
	case act.NotFound:
		m.replyNonExist(msg, eff)
	case act.Forward:
		eff.down = append(eff.down, act.ForwardMsg)
	case act.SynthAck:
		eff.up = append(eff.up, m.synthAck(msg))
	}
}

func (m *Multiplexer) processInPortfolio(msg *domain.PortfolioMessage, eff *effects) {
	if m.consumePassThrough(msg.TxID) {
		eff.down = append(eff.down, msg)
		return
	}

	key := domain.PortfolioKey(msg.Portfolio)

	if msg.IsSubscribe {
		act := m.pf.Subscribe(key, msg, false)
		if act.Forward {
			eff.down = append(eff.down, msg.CloneTyped())
		}
		if act.SynthAck {
			eff.up = append(eff.up, m.synthAck(msg))
		}
		return
	}

	act := m.pf.Unsubscribe(key, msg)
	switch {
	case act.NotFound:
		m.replyNonExist(msg, eff)
	case act.Forward:
		eff.down = append(eff.down, act.ForwardMsg)
	case act.SynthAck:
		eff.up = append(eff.up, m.synthAck(msg))
	}
}

func (m *Multiplexer) processInOrderStatus(msg *domain.OrderStatusMessage, eff *effects) {
	if m.consumePassThrough(msg.TxID) {
		eff.down = append(eff.down, msg)
		return
	}

	if msg.IsSubscribe {
		act := m.os.Subscribe(msg.TxID, msg, false)
		if act.Forward {
			eff.down = append(eff.down, msg.CloneTyped())
		}
		return
	}

	act := m.os.Unsubscribe(msg.OriginalTxID, msg)
	switch {
	case act.NotFound:
		m.log.Info("unsubscribe for unknown order status subscription", "tx", msg.TxID, "original", msg.OriginalTxID)
	case act.Forward:
		eff.down = append(eff.down, act.ForwardMsg)
	case act.SynthAck:
		eff.up = append(eff.up, m.synthAck(msg))
	}
}

// processInPortfolioLookup registers the request as a subscription keyed by
// its own transaction id and serializes it through the portfolio lookup
// queue at the same time.
func (m *Multiplexer) processInPortfolioLookup(msg *domain.PortfolioLookupMessage, eff *effects) {
	if m.consumePassThrough(msg.TxID) {
		eff.down = append(eff.down, msg)
		return
	}

	if msg.IsSubscribe {
		if _, registered := m.pl.Lookup(msg.TxID); !registered {
			m.pl.Subscribe(msg.TxID, msg, false)
		}
		if m.portfolios.Enqueue(msg) {
			m.armIfUnsupported(m.portfolios, msg.TxID)
			eff.down = append(eff.down, msg.CloneTyped())
		}
		return
	}

	act := m.pl.Unsubscribe(msg.OriginalTxID, msg)
	switch {
	case act.NotFound:
		m.log.Info("unsubscribe for unknown portfolio lookup subscription", "tx", msg.TxID, "original", msg.OriginalTxID)
	case act.Forward:
		eff.down = append(eff.down, act.ForwardMsg)
	case act.SynthAck:
		eff.up = append(eff.up, m.synthAck(msg))
	}
}

func processInLookup[M lookupMessage[M]](m *Multiplexer, st *lookupState[M], msg M, eff *effects) {
	if m.consumePassThrough(msg.Head().TxID) {
		eff.down = append(eff.down, msg)
		return
	}
	if st.Enqueue(msg) {
		m.armIfUnsupported(st, msg.Head().TxID)
		eff.down = append(eff.down, msg)
	}
}

// armIfUnsupported starts a countdown for an in-flight lookup whose result
// type the venue transport never produces on its own.
func (m *Multiplexer) armIfUnsupported(lk lookupKind, tx domain.TxID) {
	if !m.down.SupportsOut(lk.ResultType()) {
		lk.Arm(tx)
	}
}

// synthAck fabricates the positive ack a deduplicated request would have
// received had it gone downstream itself.
func (m *Multiplexer) synthAck(msg domain.Message) domain.Message {
	if m.mets != nil {
		m.mets.AcksSynthesized.Inc()
	}
	ack := msg.Clone()
	h := ack.Head()
	h.OriginalTxID = msg.Head().TxID
	h.TxID = 0
	h.Error = nil
	h.IsNotSupported = false
	return ack
}

func (m *Multiplexer) replyNonExist(msg domain.Message, eff *effects) {
	if !m.opts.NonExistSubscriptionAsError {
		m.log.Info("unsubscribe for unknown subscription", "type", msg.Type().String(), "tx", msg.Head().TxID, "original", msg.Head().OriginalTxID)
		return
	}
	reply := msg.Clone()
	h := reply.Head()
	h.OriginalTxID = msg.Head().TxID
	h.TxID = 0
	h.Error = domain.ErrNonExistSubscription
	eff.up = append(eff.up, reply)
}

// ---------------------------------------------------------------------------
// Outbound port
// ---------------------------------------------------------------------------

// HandleOut receives a message from the venue transport, correlates acks,
// drains lookup queues, tags data with subscription ids, advances the
// message-driven timeout clock, and forwards upstream.
func (m *Multiplexer) HandleOut(msg domain.Message) error {
	if msg == nil {
		panic("venuegateway: nil outbound message")
	}
	if m.mets != nil {
		m.mets.MessagesRouted.WithLabelValues("out").Inc()
	}

	var eff effects
	m.mu.Lock()
	err := m.routeOut(msg, &eff)
	if err == nil {
		m.tickLocked(msg, &eff)
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	if err != nil {
		return err
	}
	m.flush(&eff)
	return nil
}

func (m *Multiplexer) routeOut(msg domain.Message, eff *effects) error {
	switch v := msg.(type) {
	case *domain.ConnectMessage:
		eff.up = append(eff.up, v)
		if v.Error == nil {
			m.armReplayLocked(eff)
		}
	case *domain.ReconnectingFinishedMessage:
		eff.up = append(eff.up, v)
		if m.opts.RestoreOnErrorReconnect {
			m.replayLocked(m.snapshotSubscriptionsLocked(), eff)
		}
	case *domain.DisconnectMessage, *domain.ResetMessage:
		eff.up = append(eff.up, msg)

	case *domain.MarketDataMessage:
		m.processOutMarketDataAck(v, eff)
	case *domain.OrderStatusMessage:
		m.processOutOrderStatusAck(v, eff)

	case *domain.SecurityMessage:
		m.securities.Heartbeat(v.OriginalTxID)
		eff.up = append(eff.up, v)
	case *domain.BoardMessage:
		m.boards.Heartbeat(v.OriginalTxID)
		eff.up = append(eff.up, v)

	case *domain.SecurityLookupResultMessage:
		m.drainLookup(m.securities, v.OriginalTxID, eff)
		eff.up = append(eff.up, v)
	case *domain.BoardLookupResultMessage:
		m.drainLookup(m.boards, v.OriginalTxID, eff)
		eff.up = append(eff.up, v)
	case *domain.TimeFrameLookupResultMessage:
		m.drainLookup(m.timeFrames, v.OriginalTxID, eff)
		eff.up = append(eff.up, v)
	case *domain.PortfolioLookupResultMessage:
		m.processOutPortfolioLookupResult(v, eff)

	case *domain.PortfolioMessage:
		m.portfolios.Heartbeat(v.OriginalTxID)
		if err := m.tagLocked(v); err != nil {
			return err
		}
		eff.up = append(eff.up, v)
	case *domain.CandleMessage, *domain.NewsMessage, *domain.BoardStateMessage,
		*domain.ExecutionMessage, *domain.PortfolioChangeMessage, *domain.PositionChangeMessage:
		if err := m.tagLocked(msg); err != nil {
			return err
		}
		eff.up = append(eff.up, msg)

	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMessage, msg.Type().String())
	}
	return nil
}

// processOutMarketDataAck settles a market data ack. Handled acks are
// suppressed: the per-request acks fabricated here replace the raw one.
func (m *Multiplexer) processOutMarketDataAck(msg *domain.MarketDataMessage, eff *effects) {
	orig := msg.OriginalTxID
	if m.consumeHistoryOnly(orig) || m.consumePassThrough(orig) {
		return
	}
	acks, handled := m.md.ProcessAck(&msg.Header)
	if !handled {
		eff.up = append(eff.up, msg)
		return
	}
	for _, ack := range acks {
		eff.up = append(eff.up, ack)
	}
}

func (m *Multiplexer) processOutOrderStatusAck(msg *domain.OrderStatusMessage, eff *effects) {
	orig := msg.OriginalTxID
	if m.consumeHistoryOnly(orig) || m.consumePassThrough(orig) {
		return
	}
	acks, handled := m.os.ProcessAck(&msg.Header)
	if !handled {
		eff.up = append(eff.up, msg)
		return
	}
	for _, ack := range acks {
		eff.up = append(eff.up, ack)
	}
}

// processOutPortfolioLookupResult first resolves the result as the ack of
// the portfolio-lookup subscription, then advances the lookup queue. The
// result itself always reaches the client.
func (m *Multiplexer) processOutPortfolioLookupResult(msg *domain.PortfolioLookupResultMessage, eff *effects) {
	orig := msg.OriginalTxID
	if !m.consumeHistoryOnly(orig) && !m.consumePassThrough(orig) {
		// The result carries the ack status; the tracked request itself is
		// the only subscriber, so the fan-out replies are redundant.
		m.pl.ProcessAck(&msg.Header)
	}
	m.drainLookup(m.portfolios, orig, eff)
	eff.up = append(eff.up, msg)
}

func (m *Multiplexer) drainLookup(lk lookupKind, orig domain.TxID, eff *effects) {
	if next, ok := lk.Drain(orig); ok {
		eff.loop = append(eff.loop, next)
	}
}

// tickLocked advances the lookup timeout wheels by the observed venue time
// delta and settles every fired lookup with a synthetic result.
func (m *Multiplexer) tickLocked(msg domain.Message, eff *effects) {
	lt := msg.Head().LocalTime
	if lt.IsZero() {
		return
	}
	if !m.prevLocalTime.IsZero() {
		delta := lt.Sub(m.prevLocalTime)
		for _, lk := range m.lookupKinds() {
			for _, res := range lk.Fire(delta) {
				if m.mets != nil {
					m.mets.LookupTimeoutsFired.Inc()
				}
				eff.audits = append(eff.audits, auditEntry{
					tx:     res.Head().OriginalTxID,
					kind:   res.Type().String(),
					action: domain.AuditActionTimeout,
					detail: "lookup unacknowledged, synthetic result raised",
				})
				m.drainLookup(lk, res.Head().OriginalTxID, eff)
				eff.up = append(eff.up, res)
			}
		}
	}
	m.prevLocalTime = lt
}

// ---------------------------------------------------------------------------
// Subscription-id tagging
// ---------------------------------------------------------------------------

func (m *Multiplexer) tagLocked(msg domain.Message) error {
	h := msg.Head()
	switch v := msg.(type) {
	case *domain.CandleMessage, *domain.NewsMessage, *domain.BoardStateMessage:
		m.tagMarketDataLocked(h)
	case *domain.ExecutionMessage:
		if v.ExecType == domain.ExecTypeTick || v.ExecType == domain.ExecTypeOrderLog {
			m.tagMarketDataLocked(h)
		} else {
			m.tagTransactionalLocked(h)
		}
	case *domain.PortfolioMessage, *domain.PortfolioChangeMessage, *domain.PositionChangeMessage:
		m.tagTransactionalLocked(h)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMessage, msg.Type().String())
	}
	return nil
}

func (m *Multiplexer) tagMarketDataLocked(h *domain.Header) {
	if info, ok := m.md.Lookup(h.OriginalTxID); ok {
		h.SubscriptionIDs = info.subscribers.Snapshot()
	}
}

// tagTransactionalLocked stamps portfolio-stream frames. Limitation: when
// several portfolio subscriptions are live, the id list comes from the
// earliest entry regardless of which subscription produced the frame.
func (m *Multiplexer) tagTransactionalLocked(h *domain.Header) {
	if _, ok := m.pl.Lookup(h.OriginalTxID); ok {
		h.SubscriptionID = h.OriginalTxID
	}
	if first, ok := m.pl.First(); ok {
		h.SubscriptionIDs = first.subscribers.Snapshot()
	}
}

// ---------------------------------------------------------------------------
// Reconnect replay
// ---------------------------------------------------------------------------

// snapshotSubscriptionsLocked clones the canonical subscribe of every live
// subscription across all tables into a flat list.
func (m *Multiplexer) snapshotSubscriptionsLocked() []domain.Message {
	var out []domain.Message
	for _, msg := range m.md.Messages() {
		out = append(out, msg)
	}
	for _, msg := range m.pf.Messages() {
		out = append(out, msg)
	}
	for _, msg := range m.os.Messages() {
		out = append(out, msg)
	}
	for _, msg := range m.pl.Messages() {
		out = append(out, msg)
	}
	return out
}

// armReplayLocked picks the re-emission list for a successful connect.
func (m *Multiplexer) armReplayLocked(eff *effects) {
	switch {
	case m.opts.RestoreOnErrorReconnect:
		m.replayLocked(m.snapshotSubscriptionsLocked(), eff)
	case m.opts.RestoreOnNormalReconnect:
		replay := m.pendingReplay
		m.pendingReplay = nil
		m.replayLocked(replay, eff)
	}
}

// replayLocked schedules captured subscribes for re-entry through the
// inbound port. Their transaction ids join the pass-through set so the
// subscription table treats them as already registered.
func (m *Multiplexer) replayLocked(subs []domain.Message, eff *effects) {
	for _, sub := range subs {
		c := sub.Clone()
		h := c.Head()
		h.IsBack = true
		m.passThrough[h.TxID] = struct{}{}
		if m.mets != nil {
			m.mets.ReplaysIssued.Inc()
		}
		eff.audits = append(eff.audits, auditEntry{
			tx:     h.TxID,
			kind:   c.Type().String(),
			action: domain.AuditActionReplay,
			detail: "subscription re-issued after reconnect",
		})
		eff.loop = append(eff.loop, c)
	}
}

// makeUnsubscribe pairs a captured subscribe with its synthetic unsubscribe:
// fresh transaction id, original id pointing at the capture.
func makeUnsubscribe(msg domain.Message, tx domain.TxID) domain.Message {
	switch v := msg.(type) {
	case *domain.MarketDataMessage:
		c := v.CloneTyped()
		c.TxID, c.OriginalTxID, c.IsSubscribe = tx, v.TxID, false
		return c
	case *domain.PortfolioMessage:
		c := v.CloneTyped()
		c.TxID, c.OriginalTxID, c.IsSubscribe = tx, v.TxID, false
		return c
	case *domain.OrderStatusMessage:
		c := v.CloneTyped()
		c.TxID, c.OriginalTxID, c.IsSubscribe = tx, v.TxID, false
		return c
	case *domain.PortfolioLookupMessage:
		c := v.CloneTyped()
		c.TxID, c.OriginalTxID, c.IsSubscribe = tx, v.TxID, false
		return c
	}
	return nil
}

// ---------------------------------------------------------------------------
// Shared state helpers
// ---------------------------------------------------------------------------

func (m *Multiplexer) consumePassThrough(tx domain.TxID) bool {
	if _, ok := m.passThrough[tx]; ok {
		delete(m.passThrough, tx)
		return true
	}
	return false
}

func (m *Multiplexer) consumeHistoryOnly(tx domain.TxID) bool {
	if _, ok := m.historyOnly[tx]; ok {
		delete(m.historyOnly, tx)
		return true
	}
	return false
}

func (m *Multiplexer) clearTablesLocked() {
	m.md.Clear()
	m.pf.Clear()
	m.os.Clear()
	m.pl.Clear()
	clear(m.historyOnly)
}

func (m *Multiplexer) updateGaugesLocked() {
	if m.mets == nil {
		return
	}
	m.mets.SubscriptionsActive.Set(float64(m.md.Len() + m.pf.Len() + m.os.Len() + m.pl.Len()))

	subscribers := 0
	for _, info := range m.md.byKey {
		subscribers += info.subscribers.Len()
	}
	for _, info := range m.pf.byKey {
		subscribers += info.subscribers.Len()
	}
	for _, info := range m.os.byKey {
		subscribers += info.subscribers.Len()
	}
	for _, info := range m.pl.byKey {
		subscribers += info.subscribers.Len()
	}
	m.mets.SubscribersActive.Set(float64(subscribers))

	m.mets.LookupQueueDepth.WithLabelValues("securities").Set(float64(m.securities.Depth()))
	m.mets.LookupQueueDepth.WithLabelValues("portfolios").Set(float64(m.portfolios.Depth()))
	m.mets.LookupQueueDepth.WithLabelValues("boards").Set(float64(m.boards.Depth()))
	m.mets.LookupQueueDepth.WithLabelValues("timeframes").Set(float64(m.timeFrames.Depth()))
}
