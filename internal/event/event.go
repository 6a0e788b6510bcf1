// Package event defines the access events observed in a target process
// and the NDJSON encoding used to stream and persist them.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies how a symbol was touched.
type Kind string

const (
	KindConstruct Kind = "construct"  // instance creation
	KindRead      Kind = "read"       // symbol or member read
	KindInvoke    Kind = "invoke"     // member invocation
	KindArrayType Kind = "array-type" // array-of-symbol instantiation
)

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindConstruct, KindRead, KindInvoke, KindArrayType:
		return true
	}
	return false
}

// AccessEvent is a single observed cross-boundary symbol access.
// Symbol is required. Member is optional; empty means the symbol
// itself. Params is the ordered parameter type list of the accessed
// member: nil means no signature was recorded, which is distinct from
// an explicit zero-parameter signature.
type AccessEvent struct {
	Kind   Kind
	Symbol string
	Member string
	Params []string
}

type eventJSON struct {
	Kind   Kind      `json:"kind"`
	Symbol string    `json:"symbol"`
	Member string    `json:"member,omitempty"`
	Params *[]string `json:"params,omitempty"`
}

// MarshalJSON keeps the nil-vs-empty Params distinction on the wire:
// nil is omitted, a zero-parameter signature encodes as [].
func (e AccessEvent) MarshalJSON() ([]byte, error) {
	ej := eventJSON{Kind: e.Kind, Symbol: e.Symbol, Member: e.Member}
	if e.Params != nil {
		ej.Params = &e.Params
	}
	return json.Marshal(ej)
}

func (e *AccessEvent) UnmarshalJSON(data []byte) error {
	var ej eventJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	e.Kind = ej.Kind
	e.Symbol = ej.Symbol
	e.Member = ej.Member
	if ej.Params != nil {
		e.Params = *ej.Params
	} else {
		e.Params = nil
	}
	return nil
}

// Validate checks the event against the wire schema.
func (e AccessEvent) Validate() error {
	if e.Symbol == "" {
		return fmt.Errorf("access event: missing symbol")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("access event: unknown kind %q", string(e.Kind))
	}
	return nil
}

// String renders the event for logs, e.g. "invoke Pkg.Foo#bar(long,int)".
func (e AccessEvent) String() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteByte(' ')
	sb.WriteString(e.Symbol)
	if e.Member != "" || e.Params != nil {
		sb.WriteByte('#')
		sb.WriteString(e.Member)
	}
	if e.Params != nil {
		sb.WriteByte('(')
		sb.WriteString(strings.Join(e.Params, ","))
		sb.WriteByte(')')
	}
	return sb.String()
}
