// Package quiet implements the muted-hours policy: a local-time window, the
// bounded digest buffer that collects items while muted, and the phase machine
// that decides when the buffer is flushed.
package quiet

import (
	"time"

	"NewsRelay/internal/domain"
)

// Window is a half-open [Start, End) range of local hours. It wraps past
// midnight when Start > End and is disabled when Start == End.
type Window struct {
	Start int
	End   int
	Loc   *time.Location
}

// Contains reports whether t falls inside the window in its configured zone.
func (w Window) Contains(t time.Time) bool {
	if w.Start == w.End {
		return false
	}
	loc := w.Loc
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	if w.Start < w.End {
		return h >= w.Start && h < w.End
	}
	return h >= w.Start || h < w.End
}

// NextPhase derives the phase for this cycle. A non-empty buffer outside the
// window is always pending a flush, whatever the previous phase was.
func NextPhase(inQuiet bool, buffered int) domain.Phase {
	switch {
	case inQuiet:
		return domain.PhaseQuiet
	case buffered > 0:
		return domain.PhaseFlushing
	default:
		return domain.PhaseActive
	}
}

// Buffer is a capacity-bounded, insertion-ordered collection of items that
// keeps the hottest ones when full.
type Buffer struct {
	items    []domain.NewsItem
	capacity int
}

// NewBuffer restores a buffer from persisted items. Items beyond capacity are
// trimmed coldest-first so the bound holds even after a config change.
func NewBuffer(items []domain.NewsItem, capacity int) (*Buffer, []domain.NewsItem) {
	if capacity < 0 {
		capacity = 0
	}
	b := &Buffer{items: append([]domain.NewsItem(nil), items...), capacity: capacity}
	var trimmed []domain.NewsItem
	for len(b.items) > b.capacity {
		idx := b.minIndex()
		trimmed = append(trimmed, b.items[idx])
		b.remove(idx)
	}
	return b, trimmed
}

// Admit offers item to the buffer. When full, the coldest resident is evicted
// only if item is strictly hotter; otherwise item itself is rejected and
// returned as the evicted one.
func (b *Buffer) Admit(item domain.NewsItem) (bool, *domain.NewsItem) {
	if len(b.items) < b.capacity {
		b.items = append(b.items, item)
		return true, nil
	}
	if b.capacity == 0 {
		rejected := item
		return false, &rejected
	}

	idx := b.minIndex()
	if item.Heat <= b.items[idx].Heat {
		rejected := item
		return false, &rejected
	}
	evicted := b.items[idx]
	b.remove(idx)
	b.items = append(b.items, item)
	return true, &evicted
}

// Contains reports whether an item with fingerprint is buffered.
func (b *Buffer) Contains(fingerprint string) bool {
	for _, it := range b.items {
		if it.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// Items returns a copy of the buffered items in insertion order.
func (b *Buffer) Items() []domain.NewsItem {
	return append([]domain.NewsItem(nil), b.items...)
}

// Len returns the number of buffered items.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Remove drops the item with fingerprint and reports whether it was buffered.
func (b *Buffer) Remove(fingerprint string) bool {
	for i, it := range b.items {
		if it.Fingerprint == fingerprint {
			b.remove(i)
			return true
		}
	}
	return false
}

// minIndex returns the first resident with the lowest heat.
func (b *Buffer) minIndex() int {
	idx := 0
	for i := 1; i < len(b.items); i++ {
		if b.items[i].Heat < b.items[idx].Heat {
			idx = i
		}
	}
	return idx
}

func (b *Buffer) remove(idx int) {
	b.items = append(b.items[:idx], b.items[idx+1:]...)
}
