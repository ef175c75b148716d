// SPDX-License-Identifier: Apache-2.0

package merge3_test

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/sam-fredrickson/merge3"
)

type testAuthorID struct {
	Schema string `json:"schema" m3:"key"`
	Value  string `json:"value" m3:"key"`
}

type testAuthor struct {
	FullName string         `json:"full_name" m3:"name,dict=fallback_keep_head"`
	UUID     string         `json:"uuid,omitempty"`
	IDs      []testAuthorID `json:"ids,omitempty"`
}

type testDOI struct {
	Value  string `json:"value" m3:"key"`
	Source string `json:"source,omitempty"`
}

type testRecord struct {
	Title   string       `json:"title" m3:"dict=fallback_keep_head"`
	Authors []testAuthor `json:"authors" m3:"list=keep_update_entities_conflict_on_head_delete"`
	DOIs    []testDOI    `json:"dois,omitempty" m3:"list=keep-update-and-head-entities-head-first"`
	Notes   []string     `json:"_private_notes,omitempty" m3:"filter"`
	Year    int          `json:"year"`
}

func TestConfigFor(t *testing.T) {
	cfg, err := merge3.ConfigFor[testRecord](merge3.Configuration{})
	if err != nil {
		t.Fatal(err)
	}

	wantList := map[string]merge3.ListOp{
		"authors": merge3.KeepUpdateEntitiesConflictOnHeadDelete,
		"dois":    merge3.KeepUpdateAndHeadEntitiesHeadFirst,
	}
	if !reflect.DeepEqual(cfg.ListMergeOps, wantList) {
		t.Fatalf("list ops: got %v, want %v", cfg.ListMergeOps, wantList)
	}
	wantDict := map[string]merge3.DictOp{
		"title":             merge3.FallbackKeepHead,
		"authors.full_name": merge3.FallbackKeepHead,
	}
	if !reflect.DeepEqual(cfg.ListDictOps, wantDict) {
		t.Fatalf("dict ops: got %v, want %v", cfg.ListDictOps, wantDict)
	}
	if !slices.Equal(cfg.FilterOut, []string{"_private_notes"}) {
		t.Fatalf("filter: got %v", cfg.FilterOut)
	}

	var paths []string
	for p := range cfg.Comparators {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	if !slices.Equal(paths, []string{"authors", "authors.ids", "dois"}) {
		t.Fatalf("comparators: got %v", paths)
	}

	authors := cfg.Comparators["authors"]
	if !authors(map[string]any{"full_name": "Elliott"}, map[string]any{"full_name": "Elliott, Chris"}) {
		t.Fatal("authors should match by name")
	}
	ids := cfg.Comparators["authors.ids"]
	if ids(map[string]any{"schema": "ORCID", "value": "1"}, map[string]any{"schema": "BAI", "value": "1"}) {
		t.Fatal("ids should match on schema and value")
	}
}

func TestConfigForKeepsBase(t *testing.T) {
	explicit := merge3.KeyComparator("uuid")
	base := merge3.Configuration{
		DefaultDictOp: merge3.FallbackKeepHead,
		FilterOut:     []string{"legacy"},
		ListMergeOps:  map[string]merge3.ListOp{"authors": merge3.KeepOnlyHeadEntities, "other": merge3.KeepOnlyHeadEntities},
		Comparators:   map[string]merge3.Comparator{"authors": explicit},
	}
	cfg, err := merge3.ConfigFor[testRecord](base)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DefaultDictOp != merge3.FallbackKeepHead {
		t.Fatal("default dict op lost")
	}
	if cfg.ListMergeOps["authors"] != merge3.KeepUpdateEntitiesConflictOnHeadDelete {
		t.Fatal("tag should override base list op")
	}
	if cfg.ListMergeOps["other"] != merge3.KeepOnlyHeadEntities {
		t.Fatal("base list op lost")
	}
	if !slices.Equal(cfg.FilterOut, []string{"legacy", "_private_notes"}) {
		t.Fatalf("filter: got %v", cfg.FilterOut)
	}
	// An explicit comparator wins over the one derived from tags.
	if cfg.Comparators["authors"](map[string]any{"full_name": "A", "uuid": "1"}, map[string]any{"full_name": "A", "uuid": "2"}) {
		t.Fatal("explicit uuid comparator should be kept")
	}

	// The base configuration is not modified.
	if base.ListMergeOps["authors"] != merge3.KeepOnlyHeadEntities || len(base.FilterOut) != 1 || len(base.Comparators) != 1 {
		t.Fatalf("base modified: %+v", base)
	}
}

func TestConfigForFieldNames(t *testing.T) {
	type Inner struct {
		Tags []string `toml:"tags" m3:"list=keep_only_head_entities"`
	}
	type Doc struct {
		A     string `json:"a_json" yaml:"a_yaml" m3:"dict=fallback_keep_head"`
		B     string `yaml:"b_yaml" m3:"dict=fallback_keep_head"`
		C     string `m3:"dict=fallback_keep_head"`
		D     string `json:"d_json" m3:"field=d_override,dict=fallback_keep_head"`
		Inner Inner  `json:"inner"`
		Skip  string `json:"-" m3:"dict=fallback_keep_head"`
	}
	cfg, err := merge3.ConfigFor[Doc](merge3.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"a_json", "b_yaml", "C", "d_override"} {
		if cfg.ListDictOps[path] != merge3.FallbackKeepHead {
			t.Errorf("missing dict op for %s: %v", path, cfg.ListDictOps)
		}
	}
	if _, ok := cfg.ListDictOps["-"]; ok {
		t.Error("skipped field should not be configured")
	}
	if cfg.ListMergeOps["inner.tags"] != merge3.KeepOnlyHeadEntities {
		t.Errorf("nested list op: %v", cfg.ListMergeOps)
	}
}

type testNode struct {
	Name     string      `json:"name" m3:"key"`
	Children []*testNode `json:"children" m3:"list=keep_update_and_head_entities_update_first"`
}

func TestConfigForRecursiveType(t *testing.T) {
	type Tree struct {
		Roots []*testNode `json:"roots"`
	}
	cfg, err := merge3.ConfigFor[Tree](merge3.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListMergeOps["roots.children"] != merge3.KeepUpdateAndHeadEntitiesUpdateFirst {
		t.Fatalf("got %v", cfg.ListMergeOps)
	}
	if cfg.Comparators["roots"] == nil {
		t.Fatal("roots should be keyed by name")
	}
	// The walk stops at the first repeated type.
	if _, ok := cfg.ListMergeOps["roots.children.children"]; ok {
		t.Fatal("recursive type walked twice")
	}
}

func configErr[T any]() error {
	_, err := merge3.ConfigFor[T](merge3.Configuration{})
	return err
}

func typedErr[T any]() error {
	_, err := merge3.NewTyped[T](merge3.Options{})
	return err
}

func TestConfigForInvalidTags(t *testing.T) {
	type BadOp struct {
		L []string `json:"l" m3:"list=keep_everything"`
	}
	type BadDict struct {
		D string `json:"d" m3:"dict=keep_root"`
	}
	type Unknown struct {
		X string `json:"x" m3:"primary"`
	}
	type NonComparable struct {
		K []string `json:"k" m3:"key"`
	}
	type KeyAndName struct {
		K string `json:"k" m3:"key"`
		N string `json:"n" m3:"name"`
	}
	type TwoNames struct {
		A string `json:"a" m3:"name"`
		B string `json:"b" m3:"name"`
	}
	type EmptyField struct {
		A string `m3:"field="`
	}
	type Nested struct {
		Items []Unknown `json:"items"`
	}

	tests := []struct {
		name string
		fn   func() error
		kind merge3.TagKind
		msg  string
	}{
		{"bad list op", configErr[BadOp], merge3.ListTag, "keep_everything"},
		{"bad dict op", configErr[BadDict], merge3.DictTag, "keep_root"},
		{"unknown directive", configErr[Unknown], merge3.UnknownTag, "primary"},
		{"non comparable key", configErr[NonComparable], merge3.KeyTag, "comparable"},
		{"key and name", configErr[KeyAndName], merge3.KeyTag, "cannot be combined"},
		{"two names", configErr[TwoNames], merge3.NameTag, "only one name"},
		{"empty field", configErr[EmptyField], merge3.FieldTag, "cannot be empty"},
		{"nested", configErr[Nested], merge3.UnknownTag, "field Items"},
		{"typed merger", typedErr[BadOp], merge3.ListTag, "keep_everything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, merge3.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var tagErr *merge3.InvalidTagError
			if !errors.As(err, &tagErr) {
				t.Fatalf("expected InvalidTagError, got %T", err)
			}
			if tagErr.Kind != tt.kind {
				t.Fatalf("expected %s tag error, got %s", tt.kind, tagErr.Kind)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("expected %q in %q", tt.msg, err.Error())
			}
		})
	}
}

func TestTypedMerge(t *testing.T) {
	merger, err := merge3.NewTyped[testRecord](merge3.Options{})
	if err != nil {
		t.Fatal(err)
	}

	root := testRecord{
		Title:   "A",
		Authors: []testAuthor{{FullName: "Smith, J."}},
		Year:    2020,
	}
	head := testRecord{
		Title:   "A (curated)",
		Authors: []testAuthor{{FullName: "Smith, J.", UUID: "1"}},
		DOIs:    []testDOI{{Value: "10.1/a", Source: "curator"}},
		Notes:   []string{"checked"},
		Year:    2020,
	}
	update := testRecord{
		Title:   "B",
		Authors: []testAuthor{{FullName: "Smith, J."}, {FullName: "Doe, A."}},
		DOIs:    []testDOI{{Value: "10.1/b"}, {Value: "10.1/a", Source: "crossref"}},
		Year:    2021,
	}

	merged, conflicts, err := merger.Merge(root, head, update)
	if err != nil {
		t.Fatal(err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("unexpected conflicts: %v", conflicts)
	}

	if merged.Title != "A (curated)" {
		t.Errorf("title: got %q", merged.Title)
	}
	if merged.Year != 2021 {
		t.Errorf("year: got %d", merged.Year)
	}
	wantAuthors := []testAuthor{{FullName: "Smith, J.", UUID: "1"}, {FullName: "Doe, A."}}
	if !reflect.DeepEqual(merged.Authors, wantAuthors) {
		t.Errorf("authors: got %+v, want %+v", merged.Authors, wantAuthors)
	}
	if merged.Notes != nil {
		t.Errorf("filtered notes leaked: %v", merged.Notes)
	}
	wantDOIs := []testDOI{{Value: "10.1/a", Source: "crossref"}, {Value: "10.1/b"}}
	if !reflect.DeepEqual(merged.DOIs, wantDOIs) {
		t.Errorf("dois: got %v, want %v", merged.DOIs, wantDOIs)
	}
	// Inputs are untouched.
	if head.Notes[0] != "checked" || head.Authors[0].UUID != "1" {
		t.Error("head modified")
	}
}

func TestTypedMergeConflicts(t *testing.T) {
	merger, err := merge3.NewTyped[testRecord](merge3.Options{})
	if err != nil {
		t.Fatal(err)
	}
	root := testRecord{Authors: []testAuthor{{FullName: "Smith"}, {FullName: "Doe"}}}
	head := testRecord{Authors: []testAuthor{{FullName: "Smith"}}}
	update := testRecord{Authors: []testAuthor{{FullName: "Smith"}, {FullName: "Doe", UUID: "2"}}}

	merged, conflicts, err := merger.Merge(root, head, update)
	if err != nil {
		t.Fatal(err)
	}
	if len(merged.Authors) != 2 || merged.Authors[1].UUID != "2" {
		t.Fatalf("authors: got %+v", merged.Authors)
	}
	if len(conflicts) != 1 || conflicts[0].Kind != merge3.RemoveField || conflicts[0].Path != "/authors/1" {
		t.Fatalf("conflicts: got %v", conflicts)
	}
}

func TestTypedFollowsJSONFieldNames(t *testing.T) {
	type Doc struct {
		Title string `yaml:"title" m3:"dict=fallback_keep_head"`
		Year  int    `json:"year" yaml:"published" m3:"dict=fallback_keep_head"`
	}

	merger, err := merge3.NewTyped[Doc](merge3.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ops := merger.Options().Config.ListDictOps
	want := map[string]merge3.DictOp{
		"Title": merge3.FallbackKeepHead,
		"year":  merge3.FallbackKeepHead,
	}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("dict ops: got %v, want %v", ops, want)
	}

	merged, _, err := merger.Merge(Doc{"x", 1}, Doc{"y", 2}, Doc{"z", 3})
	if err != nil {
		t.Fatal(err)
	}
	if merged != (Doc{"y", 2}) {
		t.Fatalf("got %+v, want head's values", merged)
	}

	// ConfigFor on its own still reads yaml tags.
	cfg, err := merge3.ConfigFor[Doc](merge3.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListDictOps["title"] != merge3.FallbackKeepHead {
		t.Fatalf("ConfigFor dict ops: %v", cfg.ListDictOps)
	}
}

func TestTagKindString(t *testing.T) {
	kinds := map[merge3.TagKind]string{
		merge3.UnknownTag:  "unknown",
		merge3.ListTag:     "list",
		merge3.DictTag:     "dict",
		merge3.KeyTag:      "key",
		merge3.NameTag:     "name",
		merge3.FieldTag:    "field",
		merge3.TagKind(99): "TagKind(99)",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("got %q, want %q", k.String(), want)
		}
	}
}
