// Package dedupe tracks activity identities so that the same activity is
// ingested once even when it shows up on several pages or in several files.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/stride/internal/domain/activity"
)

// Deduper records seen activity IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was seen before and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so it can be ingested again.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps IDs in a map. When bounded, the oldest recorded ID is
// evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a deduper holding up to 100000 IDs by default.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 100000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[id]; ok {
		d.order.Remove(e)
		delete(d.seen, id)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

// Rows returns raw with rows whose Activity ID was already seen removed, and
// the number removed. Rows without an ID are always kept.
func Rows(ctx context.Context, d Deduper, raw activity.RawTable) (activity.RawTable, int) {
	idx := raw.Index()
	if _, ok := idx[activity.ColID]; !ok {
		return raw, 0
	}
	out := activity.RawTable{Columns: raw.Columns, Rows: make([][]string, 0, len(raw.Rows))}
	dropped := 0
	for _, row := range raw.Rows {
		id := raw.Cell(row, idx, activity.ColID)
		if id != "" && d.SeenAndRecord(ctx, id) {
			dropped++
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out, dropped
}
