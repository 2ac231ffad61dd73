package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxID is the client-unique correlation id of a request. Zero means absent.
type TxID int64

// MessageType enumerates every message variant the gateway routes.
type MessageType int

const (
	TypeReset MessageType = iota + 1
	TypeConnect
	TypeDisconnect
	TypeReconnectingFinished

	TypeMarketData
	TypePortfolio
	TypeOrderStatus

	TypeSecurityLookup
	TypeSecurityLookupResult
	TypePortfolioLookup
	TypePortfolioLookupResult
	TypeBoardLookup
	TypeBoardLookupResult
	TypeTimeFrameLookup
	TypeTimeFrameLookupResult

	TypeSecurity
	TypeBoard
	TypeBoardState
	TypeCandle
	TypeNews
	TypeExecution
	TypePortfolioChange
	TypePositionChange
)

func (t MessageType) String() string {
	switch t {
	case TypeReset:
		return "Reset"
	case TypeConnect:
		return "Connect"
	case TypeDisconnect:
		return "Disconnect"
	case TypeReconnectingFinished:
		return "ReconnectingFinished"
	case TypeMarketData:
		return "MarketData"
	case TypePortfolio:
		return "Portfolio"
	case TypeOrderStatus:
		return "OrderStatus"
	case TypeSecurityLookup:
		return "SecurityLookup"
	case TypeSecurityLookupResult:
		return "SecurityLookupResult"
	case TypePortfolioLookup:
		return "PortfolioLookup"
	case TypePortfolioLookupResult:
		return "PortfolioLookupResult"
	case TypeBoardLookup:
		return "BoardLookup"
	case TypeBoardLookupResult:
		return "BoardLookupResult"
	case TypeTimeFrameLookup:
		return "TimeFrameLookup"
	case TypeTimeFrameLookupResult:
		return "TimeFrameLookupResult"
	case TypeSecurity:
		return "Security"
	case TypeBoard:
		return "Board"
	case TypeBoardState:
		return "BoardState"
	case TypeCandle:
		return "Candle"
	case TypeNews:
		return "News"
	case TypeExecution:
		return "Execution"
	case TypePortfolioChange:
		return "PortfolioChange"
	case TypePositionChange:
		return "PositionChange"
	default:
		return "Unknown"
	}
}

// Header carries the envelope fields shared by every message variant.
type Header struct {
	TxID            TxID
	OriginalTxID    TxID
	IsBack          bool
	IsNotSupported  bool
	Error           error
	LocalTime       time.Time
	SubscriptionID  TxID
	SubscriptionIDs []TxID
}

func (h *Header) Head() *Header { return h }

// cloneHeader copies the header including the subscription id slice.
func (h Header) cloneHeader() Header {
	if h.SubscriptionIDs != nil {
		ids := make([]TxID, len(h.SubscriptionIDs))
		copy(ids, h.SubscriptionIDs)
		h.SubscriptionIDs = ids
	}
	return h
}

// Message is the closed set of variants crossing the gateway's two ports.
type Message interface {
	Type() MessageType
	Head() *Header
	Clone() Message
}

// ---------------------------------------------------------------------------
// Lifecycle messages
// ---------------------------------------------------------------------------

type ResetMessage struct {
	Header
}

func (m *ResetMessage) Type() MessageType { return TypeReset }
func (m *ResetMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type ConnectMessage struct {
	Header
}

func (m *ConnectMessage) Type() MessageType { return TypeConnect }
func (m *ConnectMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type DisconnectMessage struct {
	Header
}

func (m *DisconnectMessage) Type() MessageType { return TypeDisconnect }
func (m *DisconnectMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type ReconnectingFinishedMessage struct {
	Header
}

func (m *ReconnectingFinishedMessage) Type() MessageType { return TypeReconnectingFinished }
func (m *ReconnectingFinishedMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

// ---------------------------------------------------------------------------
// Subscription messages
// ---------------------------------------------------------------------------

// MarketDataType identifies the stream a market data subscription asks for.
type MarketDataType int

const (
	DataTypeLevel1 MarketDataType = iota + 1
	DataTypeMarketDepth
	DataTypeTicks
	DataTypeOrderLog
	DataTypeCandles
	DataTypeNews
	DataTypeBoard
)

func (t MarketDataType) String() string {
	switch t {
	case DataTypeLevel1:
		return "level1"
	case DataTypeMarketDepth:
		return "depth"
	case DataTypeTicks:
		return "ticks"
	case DataTypeOrderLog:
		return "orderlog"
	case DataTypeCandles:
		return "candles"
	case DataTypeNews:
		return "news"
	case DataTypeBoard:
		return "board"
	default:
		return "unknown"
	}
}

// RequiresSecurity reports whether subscriptions of this type are keyed by
// security. News and board streams are keyed by scope string instead.
func (t MarketDataType) RequiresSecurity() bool {
	return t != DataTypeNews && t != DataTypeBoard
}

// MarketDataMessage doubles as the subscribe/unsubscribe request and the
// downstream acknowledgement for market data streams.
type MarketDataMessage struct {
	Header

	DataType    MarketDataType
	SecurityID  int64
	Arg         string
	NewsID      string
	BoardCode   string
	IsSubscribe bool
	IsHistory   bool
	From        time.Time
	To          time.Time
	Count       int64
}

func (m *MarketDataMessage) Type() MessageType { return TypeMarketData }
func (m *MarketDataMessage) Clone() Message    { return m.CloneTyped() }
func (m *MarketDataMessage) CloneTyped() *MarketDataMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}
func (m *MarketDataMessage) Subscribe() bool { return m.IsSubscribe }

// Scope returns the news/board scope for data types that are not keyed by
// security, as given; NewMarketDataKey case-folds it.
func (m *MarketDataMessage) Scope() string {
	if m.DataType == DataTypeBoard {
		return m.BoardCode
	}
	return m.NewsID
}

// PortfolioMessage doubles as the portfolio subscribe request and the
// outbound portfolio state frame.
type PortfolioMessage struct {
	Header

	Portfolio    string
	IsSubscribe  bool
	BeginValue   decimal.Decimal
	CurrentValue decimal.Decimal
}

func (m *PortfolioMessage) Type() MessageType { return TypePortfolio }
func (m *PortfolioMessage) Clone() Message    { return m.CloneTyped() }
func (m *PortfolioMessage) CloneTyped() *PortfolioMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}
func (m *PortfolioMessage) Subscribe() bool { return m.IsSubscribe }

// OrderStatusMessage subscribes to the order-and-trade stream. One
// subscription per request, never shared between clients.
type OrderStatusMessage struct {
	Header

	IsSubscribe bool
	OrderID     int64
}

func (m *OrderStatusMessage) Type() MessageType { return TypeOrderStatus }
func (m *OrderStatusMessage) Clone() Message    { return m.CloneTyped() }
func (m *OrderStatusMessage) CloneTyped() *OrderStatusMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}
func (m *OrderStatusMessage) Subscribe() bool { return m.IsSubscribe }

// ---------------------------------------------------------------------------
// Lookup messages
// ---------------------------------------------------------------------------

type SecurityLookupMessage struct {
	Header

	SecurityCode string
	BoardCode    string
	SecurityType string
}

func (m *SecurityLookupMessage) Type() MessageType { return TypeSecurityLookup }
func (m *SecurityLookupMessage) Clone() Message    { return m.CloneTyped() }
func (m *SecurityLookupMessage) CloneTyped() *SecurityLookupMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

type SecurityLookupResultMessage struct {
	Header
}

func (m *SecurityLookupResultMessage) Type() MessageType { return TypeSecurityLookupResult }
func (m *SecurityLookupResultMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

// PortfolioLookupMessage is both a lookup and a subscription: the venue
// answers with a result message and then keeps streaming portfolio and
// execution updates correlated to its transaction id.
type PortfolioLookupMessage struct {
	Header

	Portfolio   string
	IsSubscribe bool
}

func (m *PortfolioLookupMessage) Type() MessageType { return TypePortfolioLookup }
func (m *PortfolioLookupMessage) Clone() Message    { return m.CloneTyped() }
func (m *PortfolioLookupMessage) CloneTyped() *PortfolioLookupMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}
func (m *PortfolioLookupMessage) Subscribe() bool { return m.IsSubscribe }

type PortfolioLookupResultMessage struct {
	Header
}

func (m *PortfolioLookupResultMessage) Type() MessageType { return TypePortfolioLookupResult }
func (m *PortfolioLookupResultMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

type BoardLookupMessage struct {
	Header

	Like string
}

func (m *BoardLookupMessage) Type() MessageType { return TypeBoardLookup }
func (m *BoardLookupMessage) Clone() Message    { return m.CloneTyped() }
func (m *BoardLookupMessage) CloneTyped() *BoardLookupMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

type BoardLookupResultMessage struct {
	Header
}

func (m *BoardLookupResultMessage) Type() MessageType { return TypeBoardLookupResult }
func (m *BoardLookupResultMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

type TimeFrameLookupMessage struct {
	Header
}

func (m *TimeFrameLookupMessage) Type() MessageType { return TypeTimeFrameLookup }
func (m *TimeFrameLookupMessage) Clone() Message    { return m.CloneTyped() }
func (m *TimeFrameLookupMessage) CloneTyped() *TimeFrameLookupMessage {
	c := *m
	c.Header = m.cloneHeader()
	return &c
}

type TimeFrameLookupResultMessage struct {
	Header

	TimeFrames []string
}

func (m *TimeFrameLookupResultMessage) Type() MessageType { return TypeTimeFrameLookupResult }
func (m *TimeFrameLookupResultMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	if m.TimeFrames != nil {
		c.TimeFrames = append([]string(nil), m.TimeFrames...)
	}
	return &c
}

// ---------------------------------------------------------------------------
// Data messages
// ---------------------------------------------------------------------------

// SecurityMessage is a security definition frame. It also serves as the
// liveness heartbeat of an in-flight security lookup.
type SecurityMessage struct {
	Header

	SecurityID   int64
	SecurityCode string
	BoardCode    string
	Name         string
	Decimals     int
	MinStep      decimal.Decimal
}

func (m *SecurityMessage) Type() MessageType { return TypeSecurity }
func (m *SecurityMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

// BoardMessage is a board definition frame and the heartbeat of an in-flight
// board lookup.
type BoardMessage struct {
	Header

	BoardCode string
	Market    string
	Name      string
}

func (m *BoardMessage) Type() MessageType { return TypeBoard }
func (m *BoardMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type BoardStateMessage struct {
	Header

	BoardCode string
	State     string
}

func (m *BoardStateMessage) Type() MessageType { return TypeBoardState }
func (m *BoardStateMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type CandleMessage struct {
	Header

	SecurityID int64
	Arg        string
	OpenTime   time.Time
	OpenPrice  decimal.Decimal
	HighPrice  decimal.Decimal
	LowPrice   decimal.Decimal
	ClosePrice decimal.Decimal
	Volume     decimal.Decimal
	IsFinished bool
}

func (m *CandleMessage) Type() MessageType { return TypeCandle }
func (m *CandleMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type NewsMessage struct {
	Header

	NewsID    string
	BoardCode string
	Headline  string
	Story     string
	When      time.Time
}

func (m *NewsMessage) Type() MessageType { return TypeNews }
func (m *NewsMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

// ExecutionType splits the execution stream into its three sources.
type ExecutionType int

const (
	ExecTypeTick ExecutionType = iota + 1
	ExecTypeOrderLog
	ExecTypeTransaction
)

// ExecutionMessage carries ticks, order log entries and order/trade reports.
// Tick and order log frames belong to market data subscriptions; transaction
// frames belong to the portfolio stream.
type ExecutionMessage struct {
	Header

	ExecType   ExecutionType
	SecurityID int64
	Portfolio  string
	OrderID    int64
	TradeID    int64
	Side       string
	Price      decimal.Decimal
	Volume     decimal.Decimal
	ServerTime time.Time
}

func (m *ExecutionMessage) Type() MessageType { return TypeExecution }
func (m *ExecutionMessage) Clone() Message    { c := *m; c.Header = m.cloneHeader(); return &c }

type PortfolioChangeMessage struct {
	Header

	Portfolio string
	Changes   map[string]decimal.Decimal
}

func (m *PortfolioChangeMessage) Type() MessageType { return TypePortfolioChange }
func (m *PortfolioChangeMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	if m.Changes != nil {
		c.Changes = make(map[string]decimal.Decimal, len(m.Changes))
		for k, v := range m.Changes {
			c.Changes[k] = v
		}
	}
	return &c
}

type PositionChangeMessage struct {
	Header

	Portfolio  string
	SecurityID int64
	Changes    map[string]decimal.Decimal
}

func (m *PositionChangeMessage) Type() MessageType { return TypePositionChange }
func (m *PositionChangeMessage) Clone() Message {
	c := *m
	c.Header = m.cloneHeader()
	if m.Changes != nil {
		c.Changes = make(map[string]decimal.Decimal, len(m.Changes))
		for k, v := range m.Changes {
			c.Changes[k] = v
		}
	}
	return &c
}
