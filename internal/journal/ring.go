package journal

import (
	"context"
	"sync"
)

// RingSink 保留最近 N 条记录，供 API 查询
type RingSink struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRingSink 创建容量为 size 的环形缓冲
func NewRingSink(size int) *RingSink {
	if size <= 0 {
		size = 100
	}
	return &RingSink{entries: make([]Entry, size)}
}

func (r *RingSink) Write(_ context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent 按时间倒序返回最多 limit 条记录
func (r *RingSink) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	idx := r.next
	for i := 0; i < limit; i++ {
		idx = (idx - 1 + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}
