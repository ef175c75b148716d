// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strings"
)

// TagKind identifies which m3 struct tag directive had an error.
type TagKind int

const (
	// UnknownTag indicates an unknown or unsupported m3 tag directive.
	UnknownTag TagKind = iota
	// ListTag indicates an error with m3:"list=..." directive.
	ListTag
	// DictTag indicates an error with m3:"dict=..." directive.
	DictTag
	// KeyTag indicates an error with m3:"key" directive.
	KeyTag
	// NameTag indicates an error with m3:"name" directive.
	NameTag
	// FieldTag indicates an error with m3:"field=..." directive.
	FieldTag
)

func (k TagKind) String() string {
	switch k {
	case UnknownTag:
		return "unknown"
	case ListTag:
		return "list"
	case DictTag:
		return "dict"
	case KeyTag:
		return "key"
	case NameTag:
		return "name"
	case FieldTag:
		return "field"
	default:
		return fmt.Sprintf("TagKind(%d)", k)
	}
}

// InvalidTagError is returned when an m3 struct tag contains an invalid directive or value.
type InvalidTagError struct {
	// Kind indicates which m3 tag directive had the error.
	Kind TagKind
	// FieldName is the struct field name where the error occurred.
	FieldName string
	// Value is the invalid value (e.g., the invalid operation name).
	Value string
	// Message provides details about what went wrong.
	Message string
}

func (e *InvalidTagError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("field %s: invalid %s tag: %s (value: %q)",
			e.FieldName, e.Kind.String(), e.Message, e.Value)
	}
	return fmt.Sprintf("field %s: invalid %s tag: %s",
		e.FieldName, e.Kind.String(), e.Message)
}

func (e *InvalidTagError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ConfigFor derives a [Configuration] from m3 struct tags on the record type T,
// layered over base. Entries in base for the same path are overridden.
//
// Struct tag format:
//   - m3:"list=<op>" - list operation for this field, e.g. list=keep_only_head_entities
//   - m3:"dict=<op>" - dict operation for this field, e.g. dict=fallback_keep_head
//   - m3:"filter" - drop this field from merged output
//   - m3:"key" - marks a field as part of the entity key of its struct; a
//     list of that struct is matched with a [KeyComparator] on all key fields
//   - m3:"name" - a list of the enclosing struct is matched with a
//     [NameComparator] on this field
//   - m3:"field=name" - overrides field name detection
//
// Field names are detected from json, yaml and toml struct tags, in that
// order. [NewTyped] only consults json tags, since records reach the engine
// through encoding/json.
//
// Example:
//
//	type Record struct {
//		Authors []Author `json:"authors" m3:"list=keep_update_entities_conflict_on_head_delete"`
//		Control int      `json:"control_number" m3:"dict=fallback_keep_head"`
//	}
//
//	type Author struct {
//		FullName string `json:"full_name" m3:"name,dict=fallback_keep_head"`
//	}
func ConfigFor[T any](base Configuration) (Configuration, error) {
	return configFor[T](base, codecTags)
}

// Struct tags consulted for a field's document name, in priority order.
var (
	codecTags = []string{"json", "yaml", "toml"}
	jsonTags  = []string{"json"}
)

func configFor[T any](base Configuration, nameTags []string) (Configuration, error) {
	cfg := base
	cfg.FilterOut = append([]string(nil), base.FilterOut...)
	cfg.ListMergeOps = cloneOrNew(base.ListMergeOps)
	cfg.ListDictOps = cloneOrNew(base.ListDictOps)
	cfg.Comparators = cloneOrNew(base.Comparators)

	t := reflect.TypeOf((*T)(nil)).Elem()
	w := &tagWalker{cfg: &cfg, nameTags: nameTags, seen: map[reflect.Type]bool{}}
	if _, err := w.collect(t, ""); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

func cloneOrNew[V any](m map[string]V) map[string]V {
	if m == nil {
		return make(map[string]V)
	}
	return maps.Clone(m)
}

type tagWalker struct {
	cfg      *Configuration
	nameTags []string
	seen     map[reflect.Type]bool
}

// collect walks a struct type and records its directives under prefix.
// It returns the comparator a list of this struct should use, if any.
func (w *tagWalker) collect(t reflect.Type, prefix string) (Comparator, error) {
	cfg, seen := w.cfg, w.seen
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || seen[t] {
		return nil, nil
	}
	seen[t] = true
	defer delete(seen, t)

	var keys []string
	var nameField string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldName, err := getFieldName(field, w.nameTags)
		if err != nil {
			return nil, err
		}
		if fieldName == "-" {
			continue
		}
		fp := joinField(prefix, fieldName)

		d, err := parseM3Tag(field.Tag.Get("m3"), fieldName)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if d.list != nil {
			cfg.ListMergeOps[fp] = *d.list
		}
		if d.dict != nil {
			cfg.ListDictOps[fp] = *d.dict
		}
		if d.filter {
			cfg.FilterOut = append(cfg.FilterOut, fp)
		}
		if d.key {
			if !field.Type.Comparable() {
				return nil, &InvalidTagError{
					Kind:      KeyTag,
					FieldName: field.Name,
					Message:   fmt.Sprintf("key field must be comparable type, got %s", field.Type.String()),
				}
			}
			keys = append(keys, fieldName)
		}
		if d.name {
			if nameField != "" {
				return nil, &InvalidTagError{
					Kind:      NameTag,
					FieldName: field.Name,
					Message:   "only one name field per struct",
				}
			}
			nameField = fieldName
		}

		// Unwrap pointer and slice types to get to the element type
		fieldType := field.Type
		isList := false
		for fieldType.Kind() == reflect.Ptr || fieldType.Kind() == reflect.Slice {
			if fieldType.Kind() == reflect.Slice {
				isList = true
			}
			fieldType = fieldType.Elem()
		}
		elemCmp, err := w.collect(fieldType, fp)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if isList && elemCmp != nil {
			if _, explicit := cfg.Comparators[fp]; !explicit {
				cfg.Comparators[fp] = elemCmp
			}
		}
	}

	switch {
	case len(keys) > 0 && nameField != "":
		return nil, &InvalidTagError{
			Kind:      KeyTag,
			FieldName: t.Name(),
			Message:   "key and name directives cannot be combined",
		}
	case len(keys) > 0:
		return KeyComparator(keys...), nil
	case nameField != "":
		return NameComparator(nameField), nil
	}
	return nil, nil
}

// getFieldName extracts the serialized field name from struct tags.
// Priority: m3:field override > nameTags in order > struct field name.
func getFieldName(field reflect.StructField, nameTags []string) (string, error) {
	if m3Tag := field.Tag.Get("m3"); m3Tag != "" {
		fieldName, err := extractFieldDirective(m3Tag)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", field.Name, err)
		}
		if fieldName != "" {
			return fieldName, nil
		}
	}

	for _, tagName := range nameTags {
		if tag := field.Tag.Get(tagName); tag != "" {
			// Handle "name,omitempty" format - take first part
			if idx := strings.Index(tag, ","); idx != -1 {
				tag = tag[:idx]
			}
			if tag != "" {
				return tag, nil
			}
		}
	}

	return field.Name, nil
}

// extractFieldDirective extracts the field=name directive from an m3 tag.
func extractFieldDirective(m3Tag string) (string, error) {
	for _, part := range strings.Split(m3Tag, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "field=") {
			fieldName := strings.TrimPrefix(part, "field=")
			if fieldName == "" {
				return "", &InvalidTagError{
					Kind:    FieldTag,
					Value:   part,
					Message: "field name cannot be empty",
				}
			}
			return fieldName, nil
		}
	}
	return "", nil
}

type directives struct {
	list   *ListOp
	dict   *DictOp
	filter bool
	key    bool
	name   bool
}

// parseM3Tag parses the m3 struct tag.
func parseM3Tag(tag, fieldName string) (directives, error) {
	var d directives
	if tag == "" {
		return d, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "key":
			d.key = true
		case part == "name":
			d.name = true
		case part == "filter":
			d.filter = true
		case strings.HasPrefix(part, "list="):
			op, err := ParseListOp(strings.TrimPrefix(part, "list="))
			if err != nil {
				return d, &InvalidTagError{Kind: ListTag, FieldName: fieldName, Value: part, Message: err.Error()}
			}
			d.list = &op
		case strings.HasPrefix(part, "dict="):
			op, err := ParseDictOp(strings.TrimPrefix(part, "dict="))
			if err != nil {
				return d, &InvalidTagError{Kind: DictTag, FieldName: fieldName, Value: part, Message: err.Error()}
			}
			d.dict = &op
		case strings.HasPrefix(part, "field="):
			// handled in getFieldName
		default:
			return d, &InvalidTagError{
				Kind:      UnknownTag,
				FieldName: fieldName,
				Value:     part,
				Message:   "unknown m3 tag directive",
			}
		}
	}
	return d, nil
}

// Typed merges records of type T. Records are converted to documents through
// encoding/json, so json tags decide the field paths.
type Typed[T any] struct {
	*Merger
}

// NewTyped creates a [Typed] merger whose configuration is opts.Config
// extended by the m3 struct tags of T. Paths follow encoding/json naming: the
// json tag, else the Go field name.
func NewTyped[T any](opts Options) (*Typed[T], error) {
	cfg, err := configFor[T](opts.Config, jsonTags)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	m, err := NewMerger(opts)
	if err != nil {
		return nil, err
	}
	return &Typed[T]{Merger: m}, nil
}

// Merge merges typed records. See [Merger.Merge].
func (t *Typed[T]) Merge(root, head, update T) (T, []Conflict, error) {
	var zero T
	docs := make([]any, 3)
	for i, rec := range []T{root, head, update} {
		doc, err := toDocument(rec)
		if err != nil {
			return zero, nil, &MarshalError{Err: err, Doc: docNames[i]}
		}
		docs[i] = doc
	}
	res, err := t.Merger.Merge(docs[0], docs[1], docs[2])
	if err != nil {
		return zero, nil, err
	}
	raw, err := json.Marshal(res.Merged)
	if err != nil {
		return zero, nil, &MarshalError{Err: err, Doc: "merged"}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, nil, &MarshalError{Err: err, Doc: "merged"}
	}
	return out, res.Conflicts, nil
}

var docNames = [3]string{"root", "head", "update"}

func toDocument(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
