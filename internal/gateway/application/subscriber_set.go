package application

import (
	"sort"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

// subscriberSet tracks the logical subscribers of one physical subscription
// and keeps an immutable snapshot that is rebuilt lazily on mutation.
// Consumers hold the returned slice across lock boundaries, so it is never
// mutated in place once handed out.
type subscriberSet struct {
	ids      map[domain.TxID]struct{}
	snapshot []domain.TxID
	dirty    bool
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{ids: make(map[domain.TxID]struct{})}
}

func (s *subscriberSet) Add(tx domain.TxID) {
	if _, ok := s.ids[tx]; ok {
		return
	}
	s.ids[tx] = struct{}{}
	s.dirty = true
}

func (s *subscriberSet) Remove(tx domain.TxID) bool {
	if _, ok := s.ids[tx]; !ok {
		return false
	}
	delete(s.ids, tx)
	s.dirty = true
	return true
}

func (s *subscriberSet) Contains(tx domain.TxID) bool {
	_, ok := s.ids[tx]
	return ok
}

func (s *subscriberSet) Len() int { return len(s.ids) }

// Snapshot returns the cached immutable subscriber sequence, ascending by
// transaction id. The slice is replaced, never mutated, on rebuild.
func (s *subscriberSet) Snapshot() []domain.TxID {
	if s.dirty || s.snapshot == nil {
		ids := make([]domain.TxID, 0, len(s.ids))
		for tx := range s.ids {
			ids = append(ids, tx)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		s.snapshot = ids
		s.dirty = false
	}
	return s.snapshot
}
