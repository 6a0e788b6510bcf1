// Package descriptor holds the canonical access-metadata model: the
// deduplicated, ordered set of symbols and members distilled from an
// event stream, plus the fold and merge operations over it.
package descriptor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/elliotchance/orderedmap/v2"
)

// ErrDuplicateSymbol reports a descriptor document carrying the same
// symbol twice. Duplicates are a schema violation, not merge input.
var ErrDuplicateSymbol = errors.New("duplicate symbol")

// Member identifies one accessed member of a symbol. Name may be empty
// (the symbol itself). Params nil means no signature was recorded and
// is distinct from an explicit zero-parameter signature. Two members
// are the same member only when name and exact signature match.
type Member struct {
	Name   string   // member name, "" for the symbol itself
	Params []string // ordered parameter type names, nil when unrecorded
}

// Signature renders the member identity for display and ordering,
// e.g. "<init>(long,boolean)". A member without a recorded signature
// renders as the bare name.
func (m Member) Signature() string {
	if m.Params == nil {
		return m.Name
	}
	return m.Name + "(" + strings.Join(m.Params, ",") + ")"
}

// key is the exact identity used for dedup. Unlike Signature it cannot
// collide when a parameter type itself contains a comma: the parameter
// count and NUL separators keep distinct lists distinct.
func (m Member) key() string {
	if m.Params == nil {
		return m.Name
	}
	var sb strings.Builder
	sb.WriteString(m.Name)
	sb.WriteByte(0)
	sb.WriteString(strconv.Itoa(len(m.Params)))
	for _, p := range m.Params {
		sb.WriteByte(0)
		sb.WriteString(p)
	}
	return sb.String()
}

// less orders members by name, then unrecorded-signature first, then
// parameter list lexicographically.
func (m Member) less(o Member) bool {
	if m.Name != o.Name {
		return m.Name < o.Name
	}
	if (m.Params == nil) != (o.Params == nil) {
		return m.Params == nil
	}
	for i := 0; i < len(m.Params) && i < len(o.Params); i++ {
		if m.Params[i] != o.Params[i] {
			return m.Params[i] < o.Params[i]
		}
	}
	return len(m.Params) < len(o.Params)
}

// Descriptor collects the accessed members of a single symbol.
type Descriptor struct {
	Symbol  string
	members map[string]Member // member key -> member
}

// NewDescriptor creates an empty descriptor for the given symbol.
func NewDescriptor(symbol string) *Descriptor {
	return &Descriptor{Symbol: symbol, members: make(map[string]Member)}
}

// AddMember records m and reports whether it was new. The parameter
// list is copied so callers cannot alias the stored member.
func (d *Descriptor) AddMember(m Member) bool {
	k := m.key()
	if _, exists := d.members[k]; exists {
		return false
	}
	if m.Params != nil {
		cp := make([]string, len(m.Params))
		copy(cp, m.Params)
		m.Params = cp
	}
	d.members[k] = m
	return true
}

// HasMember reports whether the exact member identity is present.
func (d *Descriptor) HasMember(m Member) bool {
	_, exists := d.members[m.key()]
	return exists
}

// Members returns the member set in canonical order.
func (d *Descriptor) Members() []Member {
	out := make([]Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// MemberCount returns the number of distinct members.
func (d *Descriptor) MemberCount() int {
	return len(d.members)
}

func (d *Descriptor) clone() *Descriptor {
	c := NewDescriptor(d.Symbol)
	for _, m := range d.members {
		c.AddMember(m)
	}
	return c
}

// Set is the canonical descriptor collection: symbols held in strictly
// ascending name order. Builders insert in sorted order; Insert rejects
// duplicates and order violations, so equal sets always emit identical
// bytes.
type Set struct {
	symbols *orderedmap.OrderedMap[string, *Descriptor]
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{symbols: orderedmap.NewOrderedMap[string, *Descriptor]()}
}

// Insert appends d, which must sort strictly after every symbol already
// present. A repeated symbol returns ErrDuplicateSymbol.
func (s *Set) Insert(d *Descriptor) error {
	if d.Symbol == "" {
		return fmt.Errorf("descriptor with empty symbol name")
	}
	if _, exists := s.symbols.Get(d.Symbol); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSymbol, d.Symbol)
	}
	if back := s.symbols.Back(); back != nil && d.Symbol < back.Key {
		return fmt.Errorf("symbol %s inserted out of order", d.Symbol)
	}
	s.symbols.Set(d.Symbol, d)
	return nil
}

// Len returns the number of symbols.
func (s *Set) Len() int {
	return s.symbols.Len()
}

// Get returns the descriptor for a symbol, if present.
func (s *Set) Get(symbol string) (*Descriptor, bool) {
	return s.symbols.Get(symbol)
}

// Has reports whether the symbol is present.
func (s *Set) Has(symbol string) bool {
	_, exists := s.symbols.Get(symbol)
	return exists
}

// Symbols returns the symbol names in canonical order.
func (s *Set) Symbols() []string {
	return s.symbols.Keys()
}

// Descriptors returns the set contents in canonical order.
func (s *Set) Descriptors() []*Descriptor {
	out := make([]*Descriptor, 0, s.symbols.Len())
	for el := s.symbols.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

// MemberCount totals distinct members across all symbols.
func (s *Set) MemberCount() int {
	n := 0
	for el := s.symbols.Front(); el != nil; el = el.Next() {
		n += el.Value.MemberCount()
	}
	return n
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	c := NewSet()
	for el := s.symbols.Front(); el != nil; el = el.Next() {
		c.symbols.Set(el.Key, el.Value.clone())
	}
	return c
}

// Equal reports whether both sets contain exactly the same symbols and
// members.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	a, b := s.symbols.Front(), o.symbols.Front()
	for a != nil {
		if a.Key != b.Key || a.Value.MemberCount() != b.Value.MemberCount() {
			return false
		}
		for k := range a.Value.members {
			if _, exists := b.Value.members[k]; !exists {
				return false
			}
		}
		a, b = a.Next(), b.Next()
	}
	return true
}
