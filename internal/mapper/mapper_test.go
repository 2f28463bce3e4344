package mapper

import (
	"errors"
	"testing"

	types "github.com/openstats/datasetsvc/internal/domain"
)

func snap(key string, id int64, state map[string]interface{}) snapshot {
	return snapshot{Key: key, ID: id, State: state}
}

func entryByKey(t *testing.T, entries []types.MappingEntry, key string) types.MappingEntry {
	t.Helper()
	for _, e := range entries {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("no entry for key %q", key)
	return types.MappingEntry{}
}

func TestDiffClassifiesEveryKey(t *testing.T) {
	prev := []snapshot{
		snap("a", 1, map[string]interface{}{"label": "A"}),
		snap("b", 2, map[string]interface{}{"label": "B"}),
		snap("c", 3, map[string]interface{}{"label": "C"}),
	}
	cur := []snapshot{
		snap("a", 11, map[string]interface{}{"label": "A"}),
		snap("b", 12, map[string]interface{}{"label": "B (revised)"}),
		snap("d", 14, map[string]interface{}{"label": "D"}),
	}

	entries, changes, err := diff("filter", prev, cur)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(entries) != 4 || len(changes) != 4 {
		t.Fatalf("expected 4 entries and 4 changes, got %d / %d", len(entries), len(changes))
	}

	a := entryByKey(t, entries, "a")
	if a.Type != types.ChangeTypeUnchanged || *a.PreviousID != 1 || *a.NewID != 11 {
		t.Fatalf("unexpected entry for a: %+v", a)
	}
	b := entryByKey(t, entries, "b")
	if b.Type != types.ChangeTypeUpdated || *b.PreviousID != 2 || *b.NewID != 12 {
		t.Fatalf("unexpected entry for b: %+v", b)
	}
	c := entryByKey(t, entries, "c")
	if c.Type != types.ChangeTypeRemoved || *c.PreviousID != 3 || c.NewID != nil {
		t.Fatalf("unexpected entry for c: %+v", c)
	}
	d := entryByKey(t, entries, "d")
	if d.Type != types.ChangeTypeAdded || d.PreviousID != nil || *d.NewID != 14 {
		t.Fatalf("unexpected entry for d: %+v", d)
	}
}

func TestDiffEmptyPreviousIsAllAdded(t *testing.T) {
	cur := []snapshot{
		snap("a", 1, map[string]interface{}{"label": "A"}),
		snap("b", 2, map[string]interface{}{"label": "B"}),
	}
	entries, _, err := diff("indicator", nil, cur)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	for _, e := range entries {
		if e.Type != types.ChangeTypeAdded {
			t.Fatalf("expected all entries Added, got %+v", e)
		}
	}
}

func TestDiffRejectsDuplicateKeys(t *testing.T) {
	cur := []snapshot{
		snap("a", 1, nil),
		snap("a", 2, nil),
	}
	_, _, err := diff("location", nil, cur)
	var dupErr *DuplicateKeyError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dupErr.Dimension != "location" || dupErr.Key != "a" {
		t.Fatalf("unexpected error detail: %+v", dupErr)
	}

	prev := []snapshot{
		snap("b", 1, nil),
		snap("b", 2, nil),
	}
	_, _, err = diff("location", prev, nil)
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateKeyError for previous side, got %v", err)
	}
}

func TestDecideVersionBump(t *testing.T) {
	unchanged := []types.MappingEntry{{Key: "a", Type: types.ChangeTypeUnchanged}}
	added := []types.MappingEntry{{Key: "b", Type: types.ChangeTypeAdded}}
	removed := []types.MappingEntry{{Key: "c", Type: types.ChangeTypeRemoved}}
	updated := []types.MappingEntry{{Key: "d", Type: types.ChangeTypeUpdated}}

	cases := []struct {
		name string
		dims [][]types.MappingEntry
		want types.VersionBump
	}{
		{name: "identical shape", dims: [][]types.MappingEntry{unchanged, unchanged}, want: types.VersionBumpPatch},
		{name: "empty", dims: nil, want: types.VersionBumpPatch},
		{name: "only additions", dims: [][]types.MappingEntry{unchanged, added}, want: types.VersionBumpMinor},
		{name: "any removal", dims: [][]types.MappingEntry{added, removed}, want: types.VersionBumpMajor},
		{name: "any update", dims: [][]types.MappingEntry{unchanged, updated}, want: types.VersionBumpMajor},
		{name: "removal in later dimension", dims: [][]types.MappingEntry{unchanged, unchanged, removed}, want: types.VersionBumpMajor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecideVersionBump(tc.dims...); got != tc.want {
				t.Fatalf("DecideVersionBump = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDiffStateComparisonIsDeep(t *testing.T) {
	prev := []snapshot{snap("a", 1, map[string]interface{}{
		"label": "A", "decimal_places": 2,
	})}
	same := []snapshot{snap("a", 2, map[string]interface{}{
		"label": "A", "decimal_places": 2,
	})}
	changedDP := []snapshot{snap("a", 2, map[string]interface{}{
		"label": "A", "decimal_places": 3,
	})}

	entries, _, err := diff("indicator", prev, same)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if entries[0].Type != types.ChangeTypeUnchanged {
		t.Fatalf("expected Unchanged, got %q", entries[0].Type)
	}

	entries, _, err = diff("indicator", prev, changedDP)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if entries[0].Type != types.ChangeTypeUpdated {
		t.Fatalf("expected Updated, got %q", entries[0].Type)
	}
}
