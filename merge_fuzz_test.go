// SPDX-License-Identifier: Apache-2.0

package merge3_test

import (
	"math"
	"reflect"
	"testing"
	"unicode/utf8"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/merge3"
)

// FuzzMergeYAML fuzzes MergeMarshal with arbitrary YAML input.
func FuzzMergeYAML(f *testing.F) {
	f.Add([]byte(`a: 1`), []byte(`a: 2`), []byte(`b: 2`))
	f.Add([]byte(`authors: [{full_name: Smith}]`), []byte(`authors: []`), []byte(`authors: [{full_name: Smith}, {full_name: Doe}]`))
	f.Add([]byte(`x: [1, 2, 3]`), []byte(`x: [1, 3]`), []byte(`x: [4, 5]`))
	f.Add([]byte(`deep: {nested: {value: 1}}`), []byte(`deep: {nested: {value: 2}}`), []byte(`deep: {nested: [1]}`))
	f.Add([]byte(``), []byte(`a: 1`), []byte(`null`))

	opts := merge3.Options{Config: merge3.Configuration{
		DefaultListOp: merge3.KeepUpdateAndHeadEntitiesHeadFirst,
		Comparators:   map[string]merge3.Comparator{"authors": merge3.NameComparator("full_name")},
	}}

	f.Fuzz(func(t *testing.T, root, head, update []byte) {
		// Errors are fine; panics are not.
		result, _, err := merge3.MergeMarshal(opts, yaml.Unmarshal, yaml.Marshal, root, head, update)
		if err != nil {
			return
		}
		var parsed any
		if err := yaml.Unmarshal(result, &parsed); err != nil {
			// Some scalars marshal to YAML the library cannot read back.
			if len(result) < 100 {
				t.Skipf("YAML library round-trip issue: %v\nResult: %s", err, result)
			}
			t.Fatalf("merge succeeded but result is invalid YAML: %v\nResult: %s", err, result)
		}
	})
}

// FuzzMergeOneSideUnchanged checks that a branch equal to root never wins.
func FuzzMergeOneSideUnchanged(f *testing.F) {
	f.Add("a", "b", 1.0)
	f.Add("", "", 0.0)
	f.Add("x", "x", -3.5)

	f.Fuzz(func(t *testing.T, s1, s2 string, n float64) {
		if math.IsNaN(n) {
			t.Skip("NaN never equals itself")
		}
		root := map[string]any{
			"title": s1,
			"tags":  []any{s1, "fixed"},
			"meta":  map[string]any{"n": 1.0},
		}
		changed := map[string]any{
			"title": s2,
			"tags":  []any{s2},
			"meta":  map[string]any{"n": n, "extra": true},
		}

		merged, conflicts, err := merge3.Merge(root, root, changed, merge3.Configuration{})
		if err != nil {
			t.Fatal(err)
		}
		if len(conflicts) != 0 || !reflect.DeepEqual(merged, changed) {
			t.Fatalf("update only: got %v %v, want %v", merged, conflicts, changed)
		}

		merged, conflicts, err = merge3.Merge(root, changed, root, merge3.Configuration{})
		if err != nil {
			t.Fatal(err)
		}
		if len(conflicts) != 0 || !reflect.DeepEqual(merged, changed) {
			t.Fatalf("head only: got %v %v, want %v", merged, conflicts, changed)
		}
	})
}

// FuzzMergeKeyedLists merges entity lists matched by key.
func FuzzMergeKeyedLists(f *testing.F) {
	f.Add("1", "1")
	f.Add("1", "2")
	f.Add("", "x")

	cfg := merge3.Configuration{
		DefaultListOp: merge3.KeepUpdateAndHeadEntitiesHeadFirst,
		Comparators:   map[string]merge3.Comparator{"ids": merge3.KeyComparator("value")},
	}

	f.Fuzz(func(t *testing.T, id1, id2 string) {
		head := map[string]any{"ids": []any{map[string]any{"value": id1, "source": "head"}}}
		update := map[string]any{"ids": []any{map[string]any{"value": id2, "source": "update"}}}

		merged, conflicts, err := merge3.Merge(map[string]any{}, head, update, cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(conflicts) != 0 {
			t.Fatalf("unexpected conflicts: %v", conflicts)
		}
		ids, ok := merged.(map[string]any)["ids"].([]any)
		if !ok {
			t.Fatalf("ids is not a list: %v", merged)
		}
		want := 2
		if id1 == id2 {
			want = 1
		}
		if len(ids) != want {
			t.Fatalf("expected %d ids, got %v", want, ids)
		}
	})
}

// FuzzDiffApply checks that applying a diff reproduces the derived document.
func FuzzDiffApply(f *testing.F) {
	f.Add("a", "b", "c")
	f.Add("x", "x", "x")
	f.Add("", "z", "")

	f.Fuzz(func(t *testing.T, s1, s2, s3 string) {
		if !utf8.ValidString(s1 + s2 + s3) {
			t.Skip("JSON replaces invalid UTF-8")
		}
		base := map[string]any{
			"title": s1,
			"tags":  []any{s1, s2, s3},
			"refs":  []any{map[string]any{"id": s1}, map[string]any{"id": s2}},
		}
		derived := map[string]any{
			"title": s2,
			"tags":  []any{s3, s1},
			"refs":  []any{map[string]any{"id": s2, "seen": true}, map[string]any{"id": s3}},
			"extra": s3,
		}

		patch := merge3.Diff(base, derived, nil)
		got, err := merge3.Apply(base, patch)
		if err != nil {
			t.Fatalf("apply %v: %v", patch, err)
		}
		if !reflect.DeepEqual(got, derived) {
			t.Fatalf("round trip: got %v, want %v\npatch: %v", got, derived, patch)
		}
	})
}
