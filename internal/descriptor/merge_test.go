package descriptor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatten exports a set as symbol -> sorted member signatures so cmp
// can diff merge results structurally.
func flatten(s *Set) map[string][]string {
	out := make(map[string][]string, s.Len())
	for _, d := range s.Descriptors() {
		sigs := make([]string, 0, d.MemberCount())
		for _, m := range d.Members() {
			sigs = append(sigs, m.Signature())
		}
		out[d.Symbol] = sigs
	}
	return out
}

func mergeFixtures(t *testing.T) (a, b, c *Set) {
	a = buildSet(t, map[string][]Member{
		"com.acme.Foo": {{Name: "m1", Params: []string{"long"}}},
	})
	b = buildSet(t, map[string][]Member{
		"com.acme.Bar": {{Name: "m3"}},
		"com.acme.Foo": {{Name: "m2", Params: []string{}}},
	})
	c = buildSet(t, map[string][]Member{
		"com.acme.Bar": {{Name: "m3"}, {Name: "m4", Params: []string{"int"}}},
		"com.acme.Qux": nil,
	})
	return a, b, c
}

func TestMerge_UnionScenario(t *testing.T) {
	a, b, _ := mergeFixtures(t)

	merged := Merge(a, b)
	want := map[string][]string{
		"com.acme.Bar": {"m3"},
		"com.acme.Foo": {"m1(long)", "m2()"},
	}
	if diff := cmp.Diff(want, flatten(merged)); diff != "" {
		t.Errorf("merged set mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_Commutative(t *testing.T) {
	a, b, c := mergeFixtures(t)

	pairs := [][2]*Set{{a, b}, {a, c}, {b, c}}
	for _, p := range pairs {
		if diff := cmp.Diff(flatten(Merge(p[0], p[1])), flatten(Merge(p[1], p[0]))); diff != "" {
			t.Errorf("merge not commutative:\n%s", diff)
		}
	}
}

func TestMerge_Associative(t *testing.T) {
	a, b, c := mergeFixtures(t)

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))
	if diff := cmp.Diff(flatten(left), flatten(right)); diff != "" {
		t.Errorf("merge not associative:\n%s", diff)
	}
}

func TestMerge_EmptyIdentity(t *testing.T) {
	a, _, _ := mergeFixtures(t)
	empty := NewSet()

	assert.True(t, Merge(a, empty).Equal(a))
	assert.True(t, Merge(empty, a).Equal(a))
	assert.Equal(t, 0, Merge(empty, NewSet()).Len())
}

func TestMerge_InputsUnmodified(t *testing.T) {
	a, b, _ := mergeFixtures(t)
	beforeA, beforeB := flatten(a), flatten(b)

	merged := Merge(a, b)
	d, _ := merged.Get("com.acme.Foo")
	d.AddMember(Member{Name: "later"})

	if diff := cmp.Diff(beforeA, flatten(a)); diff != "" {
		t.Errorf("left input changed:\n%s", diff)
	}
	if diff := cmp.Diff(beforeB, flatten(b)); diff != "" {
		t.Errorf("right input changed:\n%s", diff)
	}
}

func TestMerge_NeverDropsMembers(t *testing.T) {
	a, b, c := mergeFixtures(t)

	merged := MergeAll(a, b, c)
	for _, src := range []*Set{a, b, c} {
		for _, d := range src.Descriptors() {
			got, exists := merged.Get(d.Symbol)
			require.True(t, exists, "symbol %s dropped", d.Symbol)
			for _, m := range d.Members() {
				assert.True(t, got.HasMember(m), "member %s of %s dropped", m.Signature(), d.Symbol)
			}
		}
	}
}

func TestMergeAll_NoInputs(t *testing.T) {
	assert.Equal(t, 0, MergeAll().Len())
}
