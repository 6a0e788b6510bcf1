package descriptor

import (
	"fmt"
	"sort"

	orderedmap "github.com/elliotchance/orderedmap/v2"

	"symtrace/internal/event"
)

// NormalizeStats describes one fold of an event stream.
type NormalizeStats struct {
	Events     int64                // events observed
	Duplicates int64                // events that added nothing new
	Symbols    int                  // distinct symbols
	Members    int                  // distinct members across all symbols
	ByKind     map[event.Kind]int64 // events per access kind
}

// Normalizer folds access events into descriptors. The fold table keeps
// first-observation order so progress logs stay stable; Snapshot
// produces the canonical sorted Set, so the same event multiset yields
// the same Set regardless of arrival order.
type Normalizer struct {
	table *orderedmap.OrderedMap[string, *Descriptor]
	stats NormalizeStats
}

// NewNormalizer creates an empty normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		table: orderedmap.NewOrderedMap[string, *Descriptor](),
		stats: NormalizeStats{ByKind: make(map[event.Kind]int64)},
	}
}

// Observe folds one event into the table. Re-observing the same access
// is counted as a duplicate and changes nothing.
func (n *Normalizer) Observe(ev event.AccessEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	n.stats.Events++
	n.stats.ByKind[ev.Kind]++

	d, exists := n.table.Get(ev.Symbol)
	if !exists {
		d = NewDescriptor(ev.Symbol)
		n.table.Set(ev.Symbol, d)
	}

	added := false
	if ev.Member != "" || ev.Params != nil {
		added = d.AddMember(Member{Name: ev.Member, Params: ev.Params})
	}
	if exists && !added {
		n.stats.Duplicates++
	}
	return nil
}

// Snapshot builds the canonical Set from everything observed so far.
// The normalizer remains usable afterwards.
func (n *Normalizer) Snapshot() *Set {
	symbols := n.table.Keys()
	sort.Strings(symbols)

	set := NewSet()
	for _, sym := range symbols {
		d, _ := n.table.Get(sym)
		set.symbols.Set(sym, d.clone())
	}
	return set
}

// Stats returns the fold counters. Symbols and Members reflect the
// current table contents.
func (n *Normalizer) Stats() NormalizeStats {
	st := n.stats
	st.Symbols = n.table.Len()
	st.Members = 0
	for el := n.table.Front(); el != nil; el = el.Next() {
		st.Members += el.Value.MemberCount()
	}
	st.ByKind = make(map[event.Kind]int64, len(n.stats.ByKind))
	for k, v := range n.stats.ByKind {
		st.ByKind[k] = v
	}
	return st
}

// Normalize folds a complete event sequence in one call.
func Normalize(events []event.AccessEvent) (*Set, NormalizeStats, error) {
	n := NewNormalizer()
	for i, ev := range events {
		if err := n.Observe(ev); err != nil {
			return nil, n.Stats(), fmt.Errorf("event %d: %w", i+1, err)
		}
	}
	return n.Snapshot(), n.Stats(), nil
}
