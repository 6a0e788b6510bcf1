package descriptor

// Merge returns the union of a and b: every symbol present in either
// input, with member sets unioned per symbol. Neither input is
// modified. Merge is commutative and associative, and the empty set is
// its identity, so repeated collection runs can be folded in any order.
func Merge(a, b *Set) *Set {
	out := NewSet()
	ae, be := a.symbols.Front(), b.symbols.Front()
	for ae != nil || be != nil {
		switch {
		case be == nil || (ae != nil && ae.Key < be.Key):
			out.symbols.Set(ae.Key, ae.Value.clone())
			ae = ae.Next()
		case ae == nil || be.Key < ae.Key:
			out.symbols.Set(be.Key, be.Value.clone())
			be = be.Next()
		default:
			d := ae.Value.clone()
			for _, m := range be.Value.Members() {
				d.AddMember(m)
			}
			out.symbols.Set(d.Symbol, d)
			ae, be = ae.Next(), be.Next()
		}
	}
	return out
}

// MergeAll unions any number of sets left to right.
func MergeAll(sets ...*Set) *Set {
	out := NewSet()
	for _, s := range sets {
		out = Merge(out, s)
	}
	return out
}
