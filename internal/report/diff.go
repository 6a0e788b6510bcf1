package report

import (
	"symtrace/internal/descriptor"
)

// SymbolDelta lists member-level changes within one symbol.
type SymbolDelta struct {
	Symbol         string
	AddedMembers   []string // signatures present only in the newer set
	RemovedMembers []string // signatures present only in the older set
}

// Diff is the symbol-level difference between two descriptor sets.
// All slices follow canonical symbol order.
type Diff struct {
	Added   []string // symbols only in the newer set
	Removed []string // symbols only in the older set
	Changed []SymbolDelta
}

// Empty reports whether the two sets were identical.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ComputeDiff compares two descriptor sets. Sets are ordered, so a single
// forward walk over both symbol lists covers every case.
func ComputeDiff(before, after *descriptor.Set) Diff {
	var d Diff

	oldSyms := before.Symbols()
	newSyms := after.Symbols()

	i, j := 0, 0
	for i < len(oldSyms) || j < len(newSyms) {
		switch {
		case j >= len(newSyms) || (i < len(oldSyms) && oldSyms[i] < newSyms[j]):
			d.Removed = append(d.Removed, oldSyms[i])
			i++

		case i >= len(oldSyms) || newSyms[j] < oldSyms[i]:
			d.Added = append(d.Added, newSyms[j])
			j++

		default:
			od, _ := before.Get(oldSyms[i])
			nd, _ := after.Get(newSyms[j])

			delta := SymbolDelta{Symbol: oldSyms[i]}
			for _, m := range nd.Members() {
				if !od.HasMember(m) {
					delta.AddedMembers = append(delta.AddedMembers, m.Signature())
				}
			}
			for _, m := range od.Members() {
				if !nd.HasMember(m) {
					delta.RemovedMembers = append(delta.RemovedMembers, m.Signature())
				}
			}
			if len(delta.AddedMembers) > 0 || len(delta.RemovedMembers) > 0 {
				d.Changed = append(d.Changed, delta)
			}
			i++
			j++
		}
	}

	return d
}
