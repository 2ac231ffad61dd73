package transport

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

// Frame is the JSON envelope spoken on the venue websocket. It is owned by
// the transport; the multiplexer never sees it.
type Frame struct {
	Type         string `json:"type"`
	TxID         int64  `json:"tx_id,omitempty"`
	OriginalTxID int64  `json:"original_tx_id,omitempty"`
	IsSubscribe  *bool  `json:"is_subscribe,omitempty"`
	IsHistory    bool   `json:"is_history,omitempty"`
	NotSupported bool   `json:"not_supported,omitempty"`
	Error        string `json:"error,omitempty"`
	LocalTime    int64  `json:"local_time,omitempty"` // unix milliseconds

	DataType     string `json:"data_type,omitempty"`
	SecurityID   int64  `json:"security_id,omitempty"`
	SecurityCode string `json:"security_code,omitempty"`
	Arg          string `json:"arg,omitempty"`
	NewsID       string `json:"news_id,omitempty"`
	BoardCode    string `json:"board_code,omitempty"`
	Portfolio    string `json:"portfolio,omitempty"`
	OrderID      int64  `json:"order_id,omitempty"`
	TradeID      int64  `json:"trade_id,omitempty"`
	ExecType     string `json:"exec_type,omitempty"`
	Side         string `json:"side,omitempty"`
	State        string `json:"state,omitempty"`
	Headline     string `json:"headline,omitempty"`

	Open   string `json:"open,omitempty"`
	High   string `json:"high,omitempty"`
	Low    string `json:"low,omitempty"`
	Close  string `json:"close,omitempty"`
	Price  string `json:"price,omitempty"`
	Volume string `json:"volume,omitempty"`

	Changes map[string]string `json:"changes,omitempty"`
}

const (
	frameMarketData            = "market_data"
	frameOrderStatus           = "order_status"
	framePortfolio             = "portfolio"
	frameSecurityLookup        = "security_lookup"
	frameSecurityLookupResult  = "security_lookup_result"
	framePortfolioLookup       = "portfolio_lookup"
	framePortfolioLookupResult = "portfolio_lookup_result"
	frameBoardLookup           = "board_lookup"
	frameBoardLookupResult     = "board_lookup_result"
	frameTimeFrameLookup       = "timeframe_lookup"
	frameTimeFrameLookupResult = "timeframe_lookup_result"
	frameSecurity              = "security"
	frameBoard                 = "board"
	frameBoardState            = "board_state"
	frameCandle                = "candle"
	frameNews                  = "news"
	frameExecution             = "execution"
	framePortfolioChange       = "portfolio_change"
	framePositionChange        = "position_change"
	frameDisconnect            = "disconnect"
	frameReset                 = "reset"
)

func boolPtr(b bool) *bool { return &b }

// EncodeFrame converts a control message into its wire frame.
func EncodeFrame(msg domain.Message) (*Frame, error) {
	h := msg.Head()
	f := &Frame{
		TxID:         int64(h.TxID),
		OriginalTxID: int64(h.OriginalTxID),
	}

	switch v := msg.(type) {
	case *domain.MarketDataMessage:
		f.Type = frameMarketData
		f.IsSubscribe = boolPtr(v.IsSubscribe)
		f.IsHistory = v.IsHistory
		f.DataType = v.DataType.String()
		f.SecurityID = v.SecurityID
		f.Arg = v.Arg
		f.NewsID = v.NewsID
		f.BoardCode = v.BoardCode
	case *domain.PortfolioMessage:
		f.Type = framePortfolio
		f.IsSubscribe = boolPtr(v.IsSubscribe)
		f.Portfolio = v.Portfolio
	case *domain.OrderStatusMessage:
		f.Type = frameOrderStatus
		f.IsSubscribe = boolPtr(v.IsSubscribe)
		f.OrderID = v.OrderID
	case *domain.SecurityLookupMessage:
		f.Type = frameSecurityLookup
		f.SecurityCode = v.SecurityCode
		f.BoardCode = v.BoardCode
	case *domain.PortfolioLookupMessage:
		f.Type = framePortfolioLookup
		f.IsSubscribe = boolPtr(v.IsSubscribe)
		f.Portfolio = v.Portfolio
	case *domain.BoardLookupMessage:
		f.Type = frameBoardLookup
		f.BoardCode = v.Like
	case *domain.TimeFrameLookupMessage:
		f.Type = frameTimeFrameLookup
	case *domain.DisconnectMessage:
		f.Type = frameDisconnect
	case *domain.ResetMessage:
		f.Type = frameReset
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedMessage, msg.Type().String())
	}
	return f, nil
}

// DecodeFrame converts a venue frame into the outbound domain message.
func DecodeFrame(f *Frame) (domain.Message, error) {
	h := domain.Header{
		TxID:           domain.TxID(f.TxID),
		OriginalTxID:   domain.TxID(f.OriginalTxID),
		IsNotSupported: f.NotSupported,
	}
	if f.Error != "" {
		h.Error = fmt.Errorf("venue: %s", f.Error)
	}
	if f.LocalTime != 0 {
		h.LocalTime = time.UnixMilli(f.LocalTime)
	}

	switch f.Type {
	case frameMarketData:
		m := &domain.MarketDataMessage{Header: h, SecurityID: f.SecurityID, Arg: f.Arg, NewsID: f.NewsID, BoardCode: f.BoardCode, IsHistory: f.IsHistory}
		if f.IsSubscribe != nil {
			m.IsSubscribe = *f.IsSubscribe
		}
		m.DataType = parseDataType(f.DataType)
		return m, nil
	case frameOrderStatus:
		m := &domain.OrderStatusMessage{Header: h, OrderID: f.OrderID}
		if f.IsSubscribe != nil {
			m.IsSubscribe = *f.IsSubscribe
		}
		return m, nil
	case frameSecurityLookupResult:
		return &domain.SecurityLookupResultMessage{Header: h}, nil
	case framePortfolioLookupResult:
		return &domain.PortfolioLookupResultMessage{Header: h}, nil
	case frameBoardLookupResult:
		return &domain.BoardLookupResultMessage{Header: h}, nil
	case frameTimeFrameLookupResult:
		return &domain.TimeFrameLookupResultMessage{Header: h}, nil
	case frameSecurity:
		return &domain.SecurityMessage{Header: h, SecurityID: f.SecurityID, SecurityCode: f.SecurityCode, BoardCode: f.BoardCode}, nil
	case frameBoard:
		return &domain.BoardMessage{Header: h, BoardCode: f.BoardCode}, nil
	case frameBoardState:
		return &domain.BoardStateMessage{Header: h, BoardCode: f.BoardCode, State: f.State}, nil
	case frameCandle:
		return &domain.CandleMessage{
			Header:     h,
			SecurityID: f.SecurityID,
			Arg:        f.Arg,
			OpenPrice:  parseDecimal(f.Open),
			HighPrice:  parseDecimal(f.High),
			LowPrice:   parseDecimal(f.Low),
			ClosePrice: parseDecimal(f.Close),
			Volume:     parseDecimal(f.Volume),
		}, nil
	case frameNews:
		return &domain.NewsMessage{Header: h, NewsID: f.NewsID, BoardCode: f.BoardCode, Headline: f.Headline}, nil
	case frameExecution:
		return &domain.ExecutionMessage{
			Header:     h,
			ExecType:   parseExecType(f.ExecType),
			SecurityID: f.SecurityID,
			Portfolio:  f.Portfolio,
			OrderID:    f.OrderID,
			TradeID:    f.TradeID,
			Side:       f.Side,
			Price:      parseDecimal(f.Price),
			Volume:     parseDecimal(f.Volume),
		}, nil
	case framePortfolio:
		m := &domain.PortfolioMessage{Header: h, Portfolio: f.Portfolio}
		if f.IsSubscribe != nil {
			m.IsSubscribe = *f.IsSubscribe
		}
		return m, nil
	case framePortfolioChange:
		return &domain.PortfolioChangeMessage{Header: h, Portfolio: f.Portfolio, Changes: parseChanges(f.Changes)}, nil
	case framePositionChange:
		return &domain.PositionChangeMessage{Header: h, Portfolio: f.Portfolio, SecurityID: f.SecurityID, Changes: parseChanges(f.Changes)}, nil
	default:
		return nil, fmt.Errorf("%w: frame %q", domain.ErrUnsupportedMessage, f.Type)
	}
}

func parseDataType(s string) domain.MarketDataType {
	switch s {
	case "level1":
		return domain.DataTypeLevel1
	case "depth":
		return domain.DataTypeMarketDepth
	case "ticks":
		return domain.DataTypeTicks
	case "orderlog":
		return domain.DataTypeOrderLog
	case "candles":
		return domain.DataTypeCandles
	case "news":
		return domain.DataTypeNews
	case "board":
		return domain.DataTypeBoard
	default:
		return 0
	}
}

func parseExecType(s string) domain.ExecutionType {
	switch s {
	case "tick":
		return domain.ExecTypeTick
	case "orderlog":
		return domain.ExecTypeOrderLog
	default:
		return domain.ExecTypeTransaction
	}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseChanges(in map[string]string) map[string]decimal.Decimal {
	if in == nil {
		return nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = parseDecimal(v)
	}
	return out
}
