package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

const (
	TopicMarketData = "venue.marketdata"
	TopicExecution  = "venue.execution"
	TopicPortfolio  = "venue.portfolio"
)

// Publisher fans tagged data messages out to Kafka so downstream consumers
// see the same subscription ids the gateway stamped.
type Publisher struct {
	writer *kafkago.Writer
	log    *slog.Logger
}

func NewPublisher(brokers []string, log *slog.Logger) *Publisher {
	writer := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafkago.RequireOne,
	}
	return &Publisher{writer: writer, log: log}
}

// Publish routes one outbound data message to its topic. Messages without a
// Kafka projection are ignored.
func (p *Publisher) Publish(ctx context.Context, msg domain.Message) {
	switch v := msg.(type) {
	case *domain.CandleMessage:
		p.emit(ctx, TopicMarketData, keyFromInt(v.SecurityID), domain.CandleUpdatedEventType, domain.CandleUpdatedEvent{
			SecurityID:      v.SecurityID,
			Arg:             v.Arg,
			OpenPrice:       v.OpenPrice.String(),
			HighPrice:       v.HighPrice.String(),
			LowPrice:        v.LowPrice.String(),
			ClosePrice:      v.ClosePrice.String(),
			Volume:          v.Volume.String(),
			SubscriptionIDs: toInt64(v.SubscriptionIDs),
			Timestamp:       v.LocalTime,
		})
	case *domain.ExecutionMessage:
		if v.ExecType != domain.ExecTypeTransaction {
			return
		}
		p.emit(ctx, TopicExecution, []byte(v.Portfolio), domain.TradeExecutedEventType, domain.TradeExecutedEvent{
			SecurityID:      v.SecurityID,
			Portfolio:       v.Portfolio,
			OrderID:         v.OrderID,
			TradeID:         v.TradeID,
			Side:            v.Side,
			Price:           v.Price.String(),
			Volume:          v.Volume.String(),
			SubscriptionIDs: toInt64(v.SubscriptionIDs),
			Timestamp:       v.LocalTime,
		})
	case *domain.PortfolioChangeMessage:
		p.emit(ctx, TopicPortfolio, []byte(v.Portfolio), domain.PortfolioUpdatedEventType, domain.PortfolioUpdatedEvent{
			Portfolio:       v.Portfolio,
			Changes:         changesToString(v.Changes),
			SubscriptionIDs: toInt64(v.SubscriptionIDs),
			Timestamp:       v.LocalTime,
		})
	case *domain.NewsMessage:
		p.emit(ctx, TopicMarketData, []byte(v.NewsID), domain.NewsPublishedEventType, domain.NewsPublishedEvent{
			NewsID:          v.NewsID,
			Headline:        v.Headline,
			SubscriptionIDs: toInt64(v.SubscriptionIDs),
			Timestamp:       v.LocalTime,
		})
	}
}

func (p *Publisher) emit(ctx context.Context, topic string, key []byte, eventType string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}
	msg := kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
		Time: time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("failed to publish event", "topic", topic, "type", eventType, "error", err)
	}
}

func (p *Publisher) Close() error { return p.writer.Close() }

func keyFromInt(id int64) []byte {
	return []byte{byte(id >> 56), byte(id >> 48), byte(id >> 40), byte(id >> 32), byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func changesToString(changes map[string]decimal.Decimal) map[string]string {
	if changes == nil {
		return nil
	}
	out := make(map[string]string, len(changes))
	for k, v := range changes {
		out[k] = v.String()
	}
	return out
}

func toInt64(ids []domain.TxID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
