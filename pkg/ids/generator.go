// Package ids 提供进程级单调递增的事务 ID 生成器
package ids

import "sync/atomic"

// Generator hands out monotonically increasing positive transaction ids.
// The zero id is reserved to mean "absent" and is never returned.
type Generator struct {
	last atomic.Int64
}

// NewGenerator starts a generator at the given seed. Ids begin at seed+1.
func NewGenerator(seed int64) *Generator {
	g := &Generator{}
	g.last.Store(seed)
	return g
}

// Next returns the next transaction id.
func (g *Generator) Next() int64 {
	return g.last.Add(1)
}

// Current returns the most recently issued id, or the seed if none.
func (g *Generator) Current() int64 {
	return g.last.Load()
}
