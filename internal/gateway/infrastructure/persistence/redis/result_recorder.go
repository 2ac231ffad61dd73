package redis

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wyfcoding/venuegateway/internal/gateway/domain"
)

type pendingLookup struct {
	code  string
	board string
	rows  []CachedSecurity
}

// ResultRecorder watches the upstream message flow and captures completed
// security lookups into the cache. Track must be called when the lookup is
// submitted so the result can be bound back to its query parameters.
type ResultRecorder struct {
	cache *LookupCache
	log   *slog.Logger

	mu      sync.Mutex
	pending map[domain.TxID]*pendingLookup
}

func NewResultRecorder(cache *LookupCache, log *slog.Logger) *ResultRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &ResultRecorder{
		cache:   cache,
		log:     log,
		pending: make(map[domain.TxID]*pendingLookup),
	}
}

// Track registers an in-flight security lookup.
func (r *ResultRecorder) Track(tx domain.TxID, code, board string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[tx] = &pendingLookup{code: code, board: board}
}

// GetSecurities proxies the cache for the control surface.
func (r *ResultRecorder) GetSecurities(ctx context.Context, code, board string) ([]CachedSecurity, bool, error) {
	return r.cache.GetSecurities(ctx, code, board)
}

// Observe inspects one upstream message. Security definition frames
// accumulate under their lookup; the result frame seals and stores them.
func (r *ResultRecorder) Observe(ctx context.Context, msg domain.Message) {
	switch v := msg.(type) {
	case *domain.SecurityMessage:
		r.mu.Lock()
		if p, ok := r.pending[v.OriginalTxID]; ok {
			p.rows = append(p.rows, CachedSecurity{
				SecurityID:   v.SecurityID,
				SecurityCode: v.SecurityCode,
				BoardCode:    v.BoardCode,
				Name:         v.Name,
			})
		}
		r.mu.Unlock()
	case *domain.SecurityLookupResultMessage:
		r.mu.Lock()
		p, ok := r.pending[v.OriginalTxID]
		delete(r.pending, v.OriginalTxID)
		r.mu.Unlock()
		if !ok || v.Error != nil {
			return
		}
		if err := r.cache.SaveSecurities(ctx, p.code, p.board, p.rows); err != nil {
			r.log.Warn("failed to cache lookup result", "tx", v.OriginalTxID, "error", err)
		}
	}
}
