// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"unicode/utf8"

	jsonpatch "github.com/evanphx/json-patch"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

// OpType is a JSON Patch operation name.
type OpType string

const (
	OpAdd     OpType = "add"
	OpRemove  OpType = "remove"
	OpReplace OpType = "replace"
)

// Operation is a single RFC 6902 operation.
type Operation struct {
	Op    OpType `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON writes "value" for add and replace even when it is null.
func (o Operation) MarshalJSON() ([]byte, error) {
	if o.Op == OpRemove {
		return json.Marshal(struct {
			Op   OpType `json:"op"`
			Path string `json:"path"`
		}{o.Op, o.Path})
	}
	return json.Marshal(struct {
		Op    OpType `json:"op"`
		Path  string `json:"path"`
		Value any    `json:"value"`
	}{o.Op, o.Path, o.Value})
}

// Patch is an ordered list of operations. Operations address the document as
// it is after all earlier operations have been applied.
type Patch []Operation

// Diff computes the patch that turns base into derived.
//
// Objects are compared key by key. List elements are aligned with the
// comparator configured for the list's field path (deep equality when cfg is
// nil or has none), so an edited entity becomes nested replace operations
// rather than a remove and an add. Applying the result to base with [Apply]
// reproduces derived.
func Diff(base, derived any, cfg *Configuration) Patch {
	if cfg == nil {
		cfg = &Configuration{}
	}
	d := differ{cfg: cfg}
	d.diff("", "", base, derived)
	return d.ops
}

type differ struct {
	cfg *Configuration
	ops Patch
}

func (d *differ) emit(op OpType, ptr string, value any) {
	d.ops = append(d.ops, Operation{Op: op, Path: ptr, Value: value})
}

func (d *differ) diff(fp, ptr string, a, b any) {
	if reflect.DeepEqual(a, b) {
		return
	}
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap && bIsMap {
		d.diffMaps(fp, ptr, am, bm)
		return
	}
	al, aIsList := a.([]any)
	bl, bIsList := b.([]any)
	if aIsList && bIsList {
		d.diffLists(fp, ptr, al, bl)
		return
	}
	d.emit(OpReplace, ptr, b)
}

func (d *differ) diffMaps(fp, ptr string, a, b map[string]any) {
	keys := slices.Sorted(maps.Keys(a))
	for _, k := range keys {
		if _, ok := b[k]; !ok {
			d.emit(OpRemove, joinPointer(ptr, k), nil)
		}
	}
	keys = slices.Sorted(maps.Keys(b))
	for _, k := range keys {
		av, ok := a[k]
		if !ok {
			d.emit(OpAdd, joinPointer(ptr, k), b[k])
			continue
		}
		d.diff(joinField(fp, k), joinPointer(ptr, k), av, b[k])
	}
}

func (d *differ) diffLists(fp, ptr string, a, b []any) {
	ar, br := entityRunes(a, b, d.cfg.Resolve(fp).Comparator)

	dmp := diffpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ar, br, false)

	ai, bi, idx := 0, 0, 0
	for _, df := range diffs {
		n := utf8.RuneCountInString(df.Text)
		switch df.Type {
		case diffpatch.DiffEqual:
			for range n {
				d.diff(fp, indexPointer(ptr, idx), a[ai], b[bi])
				ai++
				bi++
				idx++
			}
		case diffpatch.DiffDelete:
			for range n {
				d.emit(OpRemove, indexPointer(ptr, idx), nil)
				ai++
			}
		case diffpatch.DiffInsert:
			for range n {
				d.emit(OpAdd, indexPointer(ptr, idx), b[bi])
				bi++
				idx++
			}
		}
	}
}

// entityRunes assigns one rune per identity class so that the sequence diff
// sees comparator-matched elements as equal. Runes come from the private use
// areas so they survive the library's string round trip.
func entityRunes(a, b []any, cmp Comparator) ([]rune, []rune) {
	var reps []any
	classOf := func(v any) rune {
		for i, rep := range reps {
			if cmp(rep, v) {
				return classRune(i)
			}
		}
		reps = append(reps, v)
		return classRune(len(reps) - 1)
	}
	ar := make([]rune, len(a))
	for i, v := range a {
		ar[i] = classOf(v)
	}
	br := make([]rune, len(b))
	for i, v := range b {
		br[i] = classOf(v)
	}
	return ar, br
}

func classRune(i int) rune {
	const bmpPUA = 0xF8FF - 0xE000 + 1
	if i < bmpPUA {
		return rune(0xE000 + i)
	}
	return rune(0xF0000 + i - bmpPUA)
}

// Apply applies a patch to doc and returns the patched copy; doc itself is
// not modified.
func Apply(doc any, patch Patch) (any, error) {
	cur, err := deepCopy(doc)
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	var pending Patch
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		out, err := applyJSON(cur, pending)
		pending = nil
		if err != nil {
			return err
		}
		cur = out
		return nil
	}
	for _, op := range patch {
		if op.Path != "" {
			pending = append(pending, op)
			continue
		}
		// Whole-document operations are outside what the patch library accepts.
		if err := flush(); err != nil {
			return nil, err
		}
		switch op.Op {
		case OpAdd, OpReplace:
			if cur, err = deepCopy(op.Value); err != nil {
				return nil, &PatchError{Err: err}
			}
		case OpRemove:
			cur = nil
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cur, nil
}

func applyJSON(doc any, ops Patch) (any, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	opsJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	p, err := jsonpatch.DecodePatch(opsJSON)
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	outJSON, err := p.Apply(docJSON)
	if err != nil {
		return nil, &PatchError{Err: err}
	}
	var out any
	if err := json.Unmarshal(outJSON, &out); err != nil {
		return nil, &PatchError{Err: err}
	}
	return out, nil
}
