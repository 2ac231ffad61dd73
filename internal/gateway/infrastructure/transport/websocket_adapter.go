package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
	"github.com/wyfcoding/venuegateway/pkg/ids"
)

// WebSocketAdapter speaks JSON frames to the venue over a websocket and
// implements the multiplexer's downstream port. Connection lifecycle is
// surfaced on both ports: losing a live connection pushes a Disconnect
// through the inbound port so the snapshot/replay machinery runs, and every
// dial outcome is reported to the outbound handler as a Connect
// success/error.
type WebSocketAdapter struct {
	endpoint   string
	log        *slog.Logger
	ids        *ids.Generator
	bySecurity bool
	interval   time.Duration
	in         func(domain.Message)
	out        func(domain.Message)

	mu   sync.Mutex
	conn *websocket.Conn
}

// Config 交易所接入参数
type Config struct {
	Endpoint               string
	ReconnectInterval      time.Duration
	SubscriptionBySecurity bool
	TxIDSeed               int64
}

// NewWebSocketAdapter creates the venue transport. in receives connection
// lifecycle messages for the inbound port (bind it to the multiplexer's
// SendIn); out receives every decoded venue message (bind it to HandleOut).
func NewWebSocketAdapter(cfg Config, in, out func(domain.Message), log *slog.Logger) *WebSocketAdapter {
	if in == nil {
		panic("venuegateway: nil inbound handler")
	}
	if out == nil {
		panic("venuegateway: nil outbound handler")
	}
	interval := cfg.ReconnectInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &WebSocketAdapter{
		endpoint:   cfg.Endpoint,
		log:        log,
		ids:        ids.NewGenerator(cfg.TxIDSeed),
		bySecurity: cfg.SubscriptionBySecurity,
		interval:   interval,
		in:         in,
		out:        out,
	}
}

// SendIn forwards a control message to the venue.
func (a *WebSocketAdapter) SendIn(msg domain.Message) error {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return errors.New("venue connection is down")
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SupportsOut reports the message types this venue produces. Board and time
// frame lookups are answered only through the gateway's timeout path.
func (a *WebSocketAdapter) SupportsOut(t domain.MessageType) bool {
	switch t {
	case domain.TypeBoardLookupResult, domain.TypeTimeFrameLookupResult:
		return false
	default:
		return true
	}
}

// NextTxID hands out ids from the process-wide monotonic generator.
func (a *WebSocketAdapter) NextTxID() domain.TxID {
	return domain.TxID(a.ids.Next())
}

// SupportsSubscriptionBySecurity reports the venue's keying capability.
func (a *WebSocketAdapter) SupportsSubscriptionBySecurity() bool {
	return a.bySecurity
}

// Run dials the venue and pumps frames until ctx is cancelled. Each
// connection loss surfaces as an inbound Disconnect followed by an outbound
// connect error; the next successful dial closes the cycle with an outbound
// Connect, which is what triggers the multiplexer's replay.
func (a *WebSocketAdapter) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.endpoint, nil)
		if err != nil {
			a.log.Warn("venue dial failed", "endpoint", a.endpoint, "error", err)
			a.out(&domain.ConnectMessage{Header: domain.Header{Error: err}})
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.interval):
			}
			continue
		}

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()

		a.log.Info("venue connected", "endpoint", a.endpoint)
		a.out(&domain.ConnectMessage{})

		err = a.readPump(ctx, conn)

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		_ = conn.Close()

		// The session was live, so the loss goes through the inbound port
		// first: the multiplexer snapshots its subscriptions and emits the
		// paired unsubscribes before anything else happens.
		a.in(&domain.DisconnectMessage{})

		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn("venue connection lost", "error", err)
		a.out(&domain.ConnectMessage{Header: domain.Header{Error: err}})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.interval):
		}
	}
}

func (a *WebSocketAdapter) readPump(ctx context.Context, conn *websocket.Conn) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			a.log.Warn("malformed venue frame", "error", err)
			continue
		}
		msg, err := DecodeFrame(&frame)
		if err != nil {
			a.log.Warn("undecodable venue frame", "type", frame.Type, "error", err)
			continue
		}
		a.out(msg)
	}
}

// Close tears down the current connection, if any.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	return err
}
