// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Comparator reports whether two list elements are the same logical entity.
// It is an identity test, not an equality test: two versions of an author
// with different affiliations are still the same author.
//
// Comparators must be safe for concurrent use.
type Comparator func(a, b any) bool

// DeepEqual matches entities whose whole values are equal. It is used for
// every path without a configured comparator.
func DeepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// KeyComparator matches object entities whose listed sub-fields are all
// present and equal. Fields are dotted paths into the entity, e.g.
// "reference.dois". Entities missing a key field fall back to [DeepEqual].
func KeyComparator(fields ...string) Comparator {
	fields = append([]string(nil), fields...)
	return func(a, b any) bool {
		for _, f := range fields {
			av, aok := lookupField(a, f)
			bv, bok := lookupField(b, f)
			if !aok || !bok {
				return DeepEqual(a, b)
			}
			if !reflect.DeepEqual(av, bv) {
				return false
			}
		}
		return true
	}
}

// NameComparator matches entities by a person or organisation name held at
// field (or by the element itself when field is empty). Names are split into
// lower-case tokens with diacritics removed; two names match when the tokens
// of one are a subset of the tokens of the other, so "Elliott" matches
// "Elliott, Chris".
func NameComparator(field string) Comparator {
	return func(a, b any) bool {
		an, aok := nameAt(a, field)
		bn, bok := nameAt(b, field)
		if !aok || !bok {
			return DeepEqual(a, b)
		}
		at, bt := nameTokens(an), nameTokens(bn)
		if len(at) == 0 || len(bt) == 0 {
			return an == bn
		}
		return subset(at, bt) || subset(bt, at)
	}
}

func nameAt(v any, field string) (string, bool) {
	if field != "" {
		var ok bool
		if v, ok = lookupField(v, field); !ok {
			return "", false
		}
	}
	s, ok := v.(string)
	return s, ok
}

func foldDiacritics() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func nameTokens(name string) map[string]struct{} {
	folded, _, err := transform.String(foldDiacritics(), name)
	if err != nil {
		folded = name
	}
	fields := strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

func subset(small, big map[string]struct{}) bool {
	for t := range small {
		if _, ok := big[t]; !ok {
			return false
		}
	}
	return true
}

// ExprComparator compiles a boolean expr-lang expression over the two
// entities, bound to a and b:
//
//	a.schema == b.schema && lower(a.value) == lower(b.value)
//
// Evaluation errors count as "not the same entity".
func ExprComparator(src string) (Comparator, error) {
	program, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		return nil, &InvalidConfigError{Field: "comparator expr", Value: src, Message: err.Error()}
	}
	return func(a, b any) bool {
		out, err := vm.Run(program, map[string]any{"a": a, "b": b})
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}, nil
}

// ComparatorSpec declares a comparator in a configuration file.
type ComparatorSpec struct {
	// Kind is one of "deep", "key", "name" or "expr".
	Kind string `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=deep key name expr"`
	// Field is the name field for kind "name".
	Field string `json:"field,omitempty" yaml:"field,omitempty" toml:"field,omitempty"`
	// Fields are the key fields for kind "key".
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty" toml:"fields,omitempty" validate:"required_if=Kind key,dive,required"`
	// Expr is the expression for kind "expr".
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty" toml:"expr,omitempty" validate:"required_if=Kind expr"`
}

// Build returns the comparator s declares.
func (s ComparatorSpec) Build() (Comparator, error) {
	switch s.Kind {
	case "deep", "":
		return DeepEqual, nil
	case "key":
		if len(s.Fields) == 0 {
			return nil, &InvalidConfigError{Field: "comparator", Value: s.Kind, Message: "key comparator needs fields"}
		}
		return KeyComparator(s.Fields...), nil
	case "name":
		return NameComparator(s.Field), nil
	case "expr":
		return ExprComparator(s.Expr)
	default:
		return nil, &InvalidConfigError{Field: "comparator", Value: s.Kind, Message: "valid: deep, key, name, expr"}
	}
}

// lookupField walks a dotted path through nested objects.
func lookupField(v any, path string) (any, bool) {
	for _, key := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[key]; !ok {
			return nil, false
		}
	}
	return v, true
}

func (s ComparatorSpec) String() string {
	switch s.Kind {
	case "key":
		return fmt.Sprintf("key(%s)", strings.Join(s.Fields, ","))
	case "name":
		return fmt.Sprintf("name(%s)", s.Field)
	case "expr":
		return fmt.Sprintf("expr(%s)", s.Expr)
	default:
		return "deep"
	}
}
