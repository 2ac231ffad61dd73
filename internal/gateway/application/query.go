package application

import (
	"fmt"
	"sort"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

// SubscriptionDTO is the read-model row for one physical subscription.
type SubscriptionDTO struct {
	Key         string  `json:"key"`
	Kind        string  `json:"kind"`
	TxID        int64   `json:"tx_id"`
	Subscribers []int64 `json:"subscribers"`
	Subscribed  bool    `json:"subscribed"`
}

// StateDTO is the read-model of the whole multiplexer, captured atomically.
type StateDTO struct {
	Subscriptions []SubscriptionDTO `json:"subscriptions"`
	LookupDepths  map[string]int    `json:"lookup_depths"`
	PendingReplay int               `json:"pending_replay"`
	PassThrough   int               `json:"pass_through"`
}

// Snapshot captures the current state under the adapter lock for the HTTP
// control surface. The returned value shares nothing with live state.
func (m *Multiplexer) Snapshot() StateDTO {
	m.mu.Lock()
	defer m.mu.Unlock()

	var subs []SubscriptionDTO
	for key, info := range m.md.byKey {
		subs = append(subs, SubscriptionDTO{
			Key:         fmt.Sprintf("%s/%d/%s%s", key.DataType, key.SecurityID, key.Arg, key.Scope),
			Kind:        "marketdata",
			TxID:        int64(info.message.TxID),
			Subscribers: toInt64(info.subscribers.Snapshot()),
			Subscribed:  info.subscribed,
		})
	}
	for key, info := range m.pf.byKey {
		subs = append(subs, SubscriptionDTO{
			Key:         key,
			Kind:        "portfolio",
			TxID:        int64(info.message.TxID),
			Subscribers: toInt64(info.subscribers.Snapshot()),
			Subscribed:  info.subscribed,
		})
	}
	for key, info := range m.os.byKey {
		subs = append(subs, SubscriptionDTO{
			Key:         fmt.Sprintf("tx:%d", key),
			Kind:        "orderstatus",
			TxID:        int64(info.message.TxID),
			Subscribers: toInt64(info.subscribers.Snapshot()),
			Subscribed:  info.subscribed,
		})
	}
	for key, info := range m.pl.byKey {
		subs = append(subs, SubscriptionDTO{
			Key:         fmt.Sprintf("tx:%d", key),
			Kind:        "portfoliolookup",
			TxID:        int64(info.message.TxID),
			Subscribers: toInt64(info.subscribers.Snapshot()),
			Subscribed:  info.subscribed,
		})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].TxID < subs[j].TxID })

	return StateDTO{
		Subscriptions: subs,
		LookupDepths: map[string]int{
			"securities": m.securities.Depth(),
			"portfolios": m.portfolios.Depth(),
			"boards":     m.boards.Depth(),
			"timeframes": m.timeFrames.Depth(),
		},
		PendingReplay: len(m.pendingReplay),
		PassThrough:   len(m.passThrough),
	}
}

func toInt64(ids []domain.TxID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}
