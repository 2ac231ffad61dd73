package domain

import "context"

// DownstreamAdapter is the venue-facing collaborator of the gateway. The
// multiplexer forwards physical requests through it and probes its
// capabilities to decide keying and lookup timeout policy.
type DownstreamAdapter interface {
	// SendIn forwards a control message towards the venue transport.
	SendIn(msg Message) error

	// SupportsOut reports whether the venue transport ever produces the
	// given outbound message type. Lookups whose result type is not
	// supported are armed with a timeout.
	SupportsOut(t MessageType) bool

	// NextTxID returns the next transaction id from the process-wide
	// monotonic generator.
	NextTxID() TxID

	// SupportsSubscriptionBySecurity reports whether the venue accepts
	// per-security market data subscriptions. When false, market data keys
	// drop the security id.
	SupportsSubscriptionBySecurity() bool
}

// UpstreamSink is the client-facing collaborator of the gateway.
type UpstreamSink interface {
	// RaiseNewOut delivers an outbound message to the upstream client.
	RaiseNewOut(msg Message)

	// OnSendIn re-enters a message into the inbound port. Used for replayed
	// subscribes and drained lookups, always with IsBack set.
	OnSendIn(msg Message)
}

// Audit actions recorded against subscription transaction ids.
const (
	AuditActionSubscribe   = "subscribe"
	AuditActionUnsubscribe = "unsubscribe"
	AuditActionReplay      = "replay"
	AuditActionTimeout     = "timeout"
	AuditActionNonExist    = "non_exist"
)

// AuditTrail appends subscription lifecycle rows for ops forensics. It is
// write-only from the gateway's point of view; nothing is read back.
type AuditTrail interface {
	Record(ctx context.Context, txID int64, kind, action, key, detail string) error
}
