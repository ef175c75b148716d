// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"encoding/json"
	"fmt"
	"slices"
)

// ConflictKind names what the losing branch wanted to do.
type ConflictKind int

const (
	// SetField: the other branch wanted this location to hold Value.
	SetField ConflictKind = iota
	// RemoveField: head removed this entity, the merge kept update's Value.
	RemoveField
	// AddBackToHead: the other branch wants Value re-added.
	AddBackToHead
	// Insert: the other branch wants Value inserted here.
	Insert
	// ManualMerge: no policy applies, a human must reconcile.
	ManualMerge
)

var conflictKindNames = map[ConflictKind]string{
	SetField:      "SET_FIELD",
	RemoveField:   "REMOVE_FIELD",
	AddBackToHead: "ADD_BACK_TO_HEAD",
	Insert:        "INSERT",
	ManualMerge:   "MANUAL_MERGE",
}

func (k ConflictKind) String() string {
	if name, ok := conflictKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ConflictKind(%d)", k)
}

// Op returns the JSON Patch operation that would apply the losing intent.
func (k ConflictKind) Op() OpType {
	switch k {
	case RemoveField:
		return OpRemove
	case AddBackToHead, Insert:
		return OpAdd
	default:
		return OpReplace
	}
}

// ParseConflictKind converts a serialized kind name to a [ConflictKind].
func ParseConflictKind(s string) (ConflictKind, error) {
	for k, name := range conflictKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown conflict kind %q", ErrMarshal, s)
}

// Conflict is a divergence the merge could not settle on its own. The merged
// document still holds a best-effort value at Path.
type Conflict struct {
	// Path is a JSON Pointer into the merged document.
	Path string
	// Kind is what the losing branch wanted to do.
	Kind ConflictKind
	// Value is the competing value.
	Value any
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s %s: %v", c.Kind, c.Kind.Op(), c.Path, c.Value)
}

type conflictJSON struct {
	Path  string `json:"path"`
	Op    OpType `json:"op"`
	Value any    `json:"value"`
	Type  string `json:"$type"`
}

// MarshalJSON encodes the conflict as {"path", "op", "value", "$type"}.
func (c Conflict) MarshalJSON() ([]byte, error) {
	return json.Marshal(conflictJSON{
		Path:  c.Path,
		Op:    c.Kind.Op(),
		Value: c.Value,
		Type:  c.Kind.String(),
	})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (c *Conflict) UnmarshalJSON(data []byte) error {
	var raw conflictJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseConflictKind(raw.Type)
	if err != nil {
		return err
	}
	*c = Conflict{Path: raw.Path, Kind: kind, Value: raw.Value}
	return nil
}

// SortConflicts orders conflicts by path, numeric pointer segments compared
// as numbers. Conflicts at the same path keep their relative order.
func SortConflicts(conflicts []Conflict) {
	slices.SortStableFunc(conflicts, func(a, b Conflict) int {
		return comparePointers(a.Path, b.Path)
	})
}

// conflicts accumulates conflicts in traversal order.
type conflicts struct {
	list []Conflict
}

func (cs *conflicts) add(c Conflict) {
	cs.list = append(cs.list, c)
}
