package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

func TestSubscriberSetSnapshotIsCachedAndSorted(t *testing.T) {
	s := newSubscriberSet()
	s.Add(3)
	s.Add(1)
	s.Add(2)

	snap := s.Snapshot()
	assert.Equal(t, []domain.TxID{1, 2, 3}, snap)

	again := s.Snapshot()
	assert.Same(t, &snap[0], &again[0], "unchanged set returns the cached slice")

	s.Add(1) // already present, must not dirty the cache
	assert.Same(t, &snap[0], &s.Snapshot()[0])

	s.Remove(2)
	rebuilt := s.Snapshot()
	assert.Equal(t, []domain.TxID{1, 3}, rebuilt)
	assert.Equal(t, []domain.TxID{1, 2, 3}, snap, "old snapshot unchanged after mutation")
}

func TestSubscriberSetRemove(t *testing.T) {
	s := newSubscriberSet()
	s.Add(1)
	assert.True(t, s.Remove(1))
	assert.False(t, s.Remove(1))
	assert.Zero(t, s.Len())
}
