// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"fmt"
	"slices"
	"strings"
)

// ListOp selects how the entities of a list are unified when both head and
// update changed it relative to root.
type ListOp int

const (
	// KeepOnlyUpdateEntities keeps update's entities; head's additions and
	// removals are ignored. This is the zero value.
	KeepOnlyUpdateEntities ListOp = iota
	// KeepOnlyHeadEntities keeps head's entities; update's additions and
	// removals are ignored.
	KeepOnlyHeadEntities
	// KeepUpdateAndHeadEntitiesUpdateFirst keeps the union of both branches,
	// update's entities first.
	KeepUpdateAndHeadEntitiesUpdateFirst
	// KeepUpdateAndHeadEntitiesHeadFirst keeps the union of both branches,
	// head's entities first.
	KeepUpdateAndHeadEntitiesHeadFirst
	// KeepUpdateEntitiesConflictOnHeadDelete keeps update's entities plus the
	// ones head inserted, and raises a conflict for every entity head deleted
	// that update still carries.
	KeepUpdateEntitiesConflictOnHeadDelete
)

var listOpNames = map[ListOp]string{
	KeepOnlyUpdateEntities:                 "KEEP_ONLY_UPDATE_ENTITIES",
	KeepOnlyHeadEntities:                   "KEEP_ONLY_HEAD_ENTITIES",
	KeepUpdateAndHeadEntitiesUpdateFirst:   "KEEP_UPDATE_AND_HEAD_ENTITIES_UPDATE_FIRST",
	KeepUpdateAndHeadEntitiesHeadFirst:     "KEEP_UPDATE_AND_HEAD_ENTITIES_HEAD_FIRST",
	KeepUpdateEntitiesConflictOnHeadDelete: "KEEP_UPDATE_ENTITIES_CONFLICT_ON_HEAD_DELETE",
}

func (op ListOp) String() string {
	if name, ok := listOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("ListOp(%d)", op)
}

// MarshalText implements [encoding.TextMarshaler].
func (op ListOp) MarshalText() ([]byte, error) {
	name, ok := listOpNames[op]
	if !ok {
		return nil, &InvalidConfigError{Field: "list op", Value: op.String(), Message: "unknown list operation"}
	}
	return []byte(name), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (op *ListOp) UnmarshalText(text []byte) error {
	parsed, err := ParseListOp(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// ParseListOp converts a list operation name to a [ListOp].
// Names are matched case-insensitively and dashes are accepted for underscores.
func ParseListOp(s string) (ListOp, error) {
	want := canonicalOpName(s)
	for op, name := range listOpNames {
		if name == want {
			return op, nil
		}
	}
	return 0, &InvalidConfigError{
		Field:   "list op",
		Value:   s,
		Message: "valid: " + strings.Join(sortedNames(listOpNames), ", "),
	}
}

// DictOp selects which branch wins when head and update changed the same
// non-list location to different values.
type DictOp int

const (
	// FallbackKeepUpdate keeps update's value. This is the zero value.
	FallbackKeepUpdate DictOp = iota
	// FallbackKeepHead keeps head's value.
	FallbackKeepHead
)

var dictOpNames = map[DictOp]string{
	FallbackKeepUpdate: "FALLBACK_KEEP_UPDATE",
	FallbackKeepHead:   "FALLBACK_KEEP_HEAD",
}

func (op DictOp) String() string {
	if name, ok := dictOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("DictOp(%d)", op)
}

// MarshalText implements [encoding.TextMarshaler].
func (op DictOp) MarshalText() ([]byte, error) {
	name, ok := dictOpNames[op]
	if !ok {
		return nil, &InvalidConfigError{Field: "dict op", Value: op.String(), Message: "unknown dict operation"}
	}
	return []byte(name), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (op *DictOp) UnmarshalText(text []byte) error {
	parsed, err := ParseDictOp(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// ParseDictOp converts a dict operation name to a [DictOp].
func ParseDictOp(s string) (DictOp, error) {
	want := canonicalOpName(s)
	for op, name := range dictOpNames {
		if name == want {
			return op, nil
		}
	}
	return 0, &InvalidConfigError{
		Field:   "dict op",
		Value:   s,
		Message: "valid: " + strings.Join(sortedNames(dictOpNames), ", "),
	}
}

func canonicalOpName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToUpper(s)
}

func sortedNames[K comparable](names map[K]string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Configuration is the merge policy for one pair of document sources.
//
// Field paths are dot-joined object keys with list positions left out, so
// "authors.full_name" addresses the full_name of every author.
//
// The zero value is valid: update wins every conflicting edit, lists keep
// update's entities, and entities are matched by deep equality.
//
// A Configuration must not be modified once it has been handed to a [Merger].
type Configuration struct {
	// DefaultDictOp applies to paths without a ListDictOps entry.
	DefaultDictOp DictOp
	// DefaultListOp applies to paths without a ListMergeOps entry.
	DefaultListOp ListOp
	// FilterOut lists field paths whose subtrees never reach the merged document.
	FilterOut []string
	// ListMergeOps maps a list's field path to its unification strategy.
	ListMergeOps map[string]ListOp
	// ListDictOps maps a field path to its fallback for conflicting edits.
	ListDictOps map[string]DictOp
	// Comparators maps a list's field path to its entity identity predicate.
	Comparators map[string]Comparator
}

// Policy is the resolved merge policy for a single field path.
type Policy struct {
	ListOp     ListOp
	DictOp     DictOp
	Comparator Comparator
	// Filtered reports that the path lies under a FilterOut entry.
	Filtered bool
}

// Resolve returns the policy for a field path.
//
// List and dict operations are looked up by exact path; a parent's entry is
// never inherited and unmatched paths take the configured defaults. Paths
// without a comparator use [DeepEqual]. A path is filtered when it equals a
// FilterOut entry or lies beneath one.
func (c *Configuration) Resolve(path string) Policy {
	p := Policy{
		ListOp:     c.DefaultListOp,
		DictOp:     c.DefaultDictOp,
		Comparator: DeepEqual,
		Filtered:   c.IsFiltered(path),
	}
	if op, ok := c.ListMergeOps[path]; ok {
		p.ListOp = op
	}
	if op, ok := c.ListDictOps[path]; ok {
		p.DictOp = op
	}
	if cmp, ok := c.Comparators[path]; ok && cmp != nil {
		p.Comparator = cmp
	}
	return p
}

// IsFiltered reports whether the field path is excluded from merged output.
func (c *Configuration) IsFiltered(path string) bool {
	for _, f := range c.FilterOut {
		if path == f || strings.HasPrefix(path, f+".") {
			return true
		}
	}
	return false
}

// Validate checks that every operation in the configuration is known.
func (c *Configuration) Validate() error {
	if _, ok := dictOpNames[c.DefaultDictOp]; !ok {
		return &InvalidConfigError{Field: "default_dict_op", Value: c.DefaultDictOp.String(), Message: "unknown dict operation"}
	}
	if _, ok := listOpNames[c.DefaultListOp]; !ok {
		return &InvalidConfigError{Field: "default_list_op", Value: c.DefaultListOp.String(), Message: "unknown list operation"}
	}
	for path, op := range c.ListMergeOps {
		if _, ok := listOpNames[op]; !ok {
			return &InvalidConfigError{Field: "list_merge_ops." + path, Value: op.String(), Message: "unknown list operation"}
		}
	}
	for path, op := range c.ListDictOps {
		if _, ok := dictOpNames[op]; !ok {
			return &InvalidConfigError{Field: "list_dict_ops." + path, Value: op.String(), Message: "unknown dict operation"}
		}
	}
	for _, f := range c.FilterOut {
		if f == "" {
			return &InvalidConfigError{Field: "filter_out", Message: "empty field path"}
		}
	}
	return nil
}

// joinField appends an object key to a field path.
func joinField(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
