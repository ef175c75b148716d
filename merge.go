// SPDX-License-Identifier: Apache-2.0

// Package merge3 provides policy-driven three-way merging of JSON-like documents.
//
// Given a common ancestor (root), a locally curated version (head) and an
// incoming version (update), a merge produces a new document plus the list of
// conflicts a human should review. Documents are the shapes produced by
// encoding/json: map[string]any, []any, string, float64, bool and nil.
//
// Objects are merged key by key. Lists are merged entity by entity: a
// per-path [Comparator] decides which elements are "the same" across the
// three versions and a per-path [ListOp] decides which entities survive.
// Where both branches changed the same scalar, a per-path [DictOp] picks the
// winner.
package merge3

import (
	"log/slog"
	"maps"
	"reflect"
	"slices"

	"github.com/mitchellh/copystructure"
)

// Options configures a [Merger].
//
// The zero value is valid: the zero [Configuration] and no logging.
type Options struct {
	// Config is the merge policy.
	Config Configuration
	// Logger receives debug events about patches, conflicts and filtered
	// paths. If nil, nothing is logged.
	Logger *slog.Logger
}

// Result is the outcome of a merge.
type Result struct {
	// Merged is the merged document. It shares no memory with the inputs.
	Merged any
	// Conflicts are in traversal order; use [SortConflicts] for a stable order.
	Conflicts []Conflict
	// HeadPatch turns root into head.
	HeadPatch Patch
	// UpdatePatch turns root into update.
	UpdatePatch Patch
}

// Merger performs three-way merges with a fixed configuration.
//
// A Merger holds no per-merge state and is safe for concurrent use.
type Merger struct {
	opts Options
	log  *slog.Logger
}

// NewMerger creates a new [Merger] with the given options.
// Returns an error if the configuration is invalid.
func NewMerger(opts Options) (*Merger, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Merger{opts: opts, log: log}, nil
}

// Options returns the merge options configured for this [Merger].
func (m *Merger) Options() Options {
	return m.opts
}

// Merge merges update into head relative to root. See [Merger.Merge].
func Merge(root, head, update any, cfg Configuration) (any, []Conflict, error) {
	m, err := NewMerger(Options{Config: cfg})
	if err != nil {
		return nil, nil, err
	}
	res, err := m.Merge(root, head, update)
	if err != nil {
		return nil, nil, err
	}
	return res.Merged, res.Conflicts, nil
}

// Merge merges update into head relative to root.
//
// At every location the three versions are compared: if head and update
// agree, or only one of them changed, that value is taken. When both changed,
// objects recurse key by key, lists are reconciled entity by entity and
// scalars fall back to the path's [DictOp]. Paths under FilterOut are dropped.
//
// None of the inputs is modified. A [*TypeMismatchError] is returned when head
// and update hold different container kinds at a location both changed.
//
// Example:
//
//	cfg := Configuration{ListDictOps: map[string]DictOp{"title": FallbackKeepHead}}
//	root := map[string]any{"title": "x"}
//	head := map[string]any{"title": "y"}
//	update := map[string]any{"title": "z"}
//	merged, conflicts, _ := Merge(root, head, update, cfg)
//	// merged["title"] == "y", no conflicts
func (m *Merger) Merge(root, head, update any) (*Result, error) {
	r := &mergeRun{cfg: &m.opts.Config, log: m.log}

	res := &Result{
		HeadPatch:   Diff(root, head, r.cfg),
		UpdatePatch: Diff(root, update, r.cfg),
	}
	m.log.Debug("merge started",
		"head_ops", len(res.HeadPatch),
		"update_ops", len(res.UpdatePatch))

	merged, err := r.mergeNode("", "", root, head, update)
	if err != nil {
		return nil, err
	}
	if merged == missing {
		merged = nil
	}
	merged, err = deepCopy(merged)
	if err != nil {
		return nil, err
	}
	res.Merged = r.prune("", merged)
	res.Conflicts = r.conflicts.list

	m.log.Debug("merge finished", "conflicts", len(res.Conflicts))
	return res, nil
}

// Diff computes the patch from base to derived using this merger's comparators.
func (m *Merger) Diff(base, derived any) Patch {
	return Diff(base, derived, &m.opts.Config)
}

// missingValue marks a key that is absent from one of the versions; it is
// distinct from an explicit null.
type missingValue struct{}

var missing any = missingValue{}

type kind int

const (
	kindMissing kind = iota
	kindNull
	kindScalar
	kindObject
	kindList
)

func (k kind) String() string {
	switch k {
	case kindMissing:
		return "nothing"
	case kindNull:
		return "null"
	case kindObject:
		return "an object"
	case kindList:
		return "a list"
	default:
		return "a scalar"
	}
}

func kindOf(v any) kind {
	switch v.(type) {
	case missingValue:
		return kindMissing
	case nil:
		return kindNull
	case map[string]any:
		return kindObject
	case []any:
		return kindList
	default:
		return kindScalar
	}
}

// mergeRun holds the state of one merge.
type mergeRun struct {
	cfg       *Configuration
	log       *slog.Logger
	conflicts conflicts
}

// conflict records c with its own copy of the value, so it shares nothing
// with the inputs.
func (r *mergeRun) conflict(c Conflict) error {
	v, err := deepCopy(c.Value)
	if err != nil {
		return err
	}
	c.Value = v
	r.log.Debug("merge conflict", "path", c.Path, "kind", c.Kind.String())
	r.conflicts.add(c)
	return nil
}

// mergeNode merges one location. fp is its field path, ptr its JSON Pointer
// in the merged document. Absent values are passed as missing.
func (r *mergeRun) mergeNode(fp, ptr string, root, head, update any) (any, error) {
	switch {
	case equal(head, update):
		return head, nil
	case equal(root, head):
		return update, nil
	case equal(root, update):
		return head, nil
	}

	hk, uk := kindOf(head), kindOf(update)
	switch {
	case hk == kindObject && uk == kindObject:
		rm, _ := root.(map[string]any)
		return r.mergeObject(fp, ptr, rm, head.(map[string]any), update.(map[string]any))

	case (hk == kindList || hk == kindMissing) && (uk == kindList || uk == kindMissing):
		rl, _ := root.([]any)
		hl, _ := head.([]any)
		ul, _ := update.([]any)
		out, err := r.mergeList(fp, ptr, rl, hl, ul)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 && (hk == kindMissing || uk == kindMissing) {
			return missing, nil
		}
		return out, nil

	case hk != uk && isContainer(hk, uk) && hk > kindNull && uk > kindNull:
		return nil, &TypeMismatchError{Path: fp, Pointer: ptr, Head: hk.String(), Update: uk.String()}
	}

	if r.cfg.Resolve(fp).DictOp == FallbackKeepHead {
		return head, nil
	}
	return update, nil
}

func isContainer(kinds ...kind) bool {
	for _, k := range kinds {
		if k == kindObject || k == kindList {
			return true
		}
	}
	return false
}

func (r *mergeRun) mergeObject(fp, ptr string, root, head, update map[string]any) (any, error) {
	keys := make(map[string]struct{}, len(head)+len(update))
	for k := range root {
		keys[k] = struct{}{}
	}
	for k := range head {
		keys[k] = struct{}{}
	}
	for k := range update {
		keys[k] = struct{}{}
	}

	out := make(map[string]any, len(keys))
	for _, k := range slices.Sorted(maps.Keys(keys)) {
		cfp := joinField(fp, k)
		if r.cfg.IsFiltered(cfp) {
			r.log.Debug("path filtered", "path", cfp)
			continue
		}
		v, err := r.mergeNode(cfp, joinPointer(ptr, k), lookup(root, k), lookup(head, k), lookup(update, k))
		if err != nil {
			return nil, err
		}
		if v != missing {
			out[k] = v
		}
	}
	return out, nil
}

// equal compares document values; missing equals only missing.
func equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func lookup(m map[string]any, k string) any {
	if v, ok := m[k]; ok {
		return v
	}
	return missing
}

// prune removes filtered paths from a merged value in place. Subtrees taken
// whole from one branch still carry them.
func (r *mergeRun) prune(fp string, v any) any {
	if len(r.cfg.FilterOut) == 0 {
		return v
	}
	switch v := v.(type) {
	case map[string]any:
		for k, child := range v {
			cfp := joinField(fp, k)
			if r.cfg.IsFiltered(cfp) {
				delete(v, k)
				continue
			}
			v[k] = r.prune(cfp, child)
		}
	case []any:
		for i, child := range v {
			v[i] = r.prune(fp, child)
		}
	}
	return v
}

func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return copystructure.Copy(v)
}
