package domain

import "time"

const (
	CandleUpdatedEventType    = "venue.marketdata.candle"
	TradeExecutedEventType    = "venue.execution.trade"
	PortfolioUpdatedEventType = "venue.portfolio.updated"
	NewsPublishedEventType    = "venue.marketdata.news"
)

// CandleUpdatedEvent K线更新事件
type CandleUpdatedEvent struct {
	SecurityID      int64     `json:"security_id"`
	Arg             string    `json:"arg"`
	OpenPrice       string    `json:"open_price"`
	HighPrice       string    `json:"high_price"`
	LowPrice        string    `json:"low_price"`
	ClosePrice      string    `json:"close_price"`
	Volume          string    `json:"volume"`
	SubscriptionIDs []int64   `json:"subscription_ids"`
	Timestamp       time.Time `json:"timestamp"`
}

// TradeExecutedEvent 成交回报事件
type TradeExecutedEvent struct {
	SecurityID      int64     `json:"security_id"`
	Portfolio       string    `json:"portfolio"`
	OrderID         int64     `json:"order_id"`
	TradeID         int64     `json:"trade_id"`
	Side            string    `json:"side"`
	Price           string    `json:"price"`
	Volume          string    `json:"volume"`
	SubscriptionIDs []int64   `json:"subscription_ids"`
	Timestamp       time.Time `json:"timestamp"`
}

// PortfolioUpdatedEvent 投资组合更新事件
type PortfolioUpdatedEvent struct {
	Portfolio       string            `json:"portfolio"`
	Changes         map[string]string `json:"changes,omitempty"`
	SubscriptionIDs []int64           `json:"subscription_ids"`
	Timestamp       time.Time         `json:"timestamp"`
}

// NewsPublishedEvent 新闻事件
type NewsPublishedEvent struct {
	NewsID          string    `json:"news_id"`
	Headline        string    `json:"headline"`
	SubscriptionIDs []int64   `json:"subscription_ids"`
	Timestamp       time.Time `json:"timestamp"`
}
