// SPDX-License-Identifier: Apache-2.0

package merge3_test

import (
	"fmt"
	"log"

	"github.com/sam-fredrickson/merge3"
)

// Example merging typed records whose merge policy is declared in m3 tags.
func ExampleTyped() {
	type AuthorID struct {
		Schema string `json:"schema" m3:"key"`
		Value  string `json:"value" m3:"key"`
	}
	type Author struct {
		FullName string     `json:"full_name" m3:"name"`
		UUID     string     `json:"uuid,omitempty"`
		IDs      []AuthorID `json:"ids,omitempty"`
	}
	type Record struct {
		Title   string   `json:"title" m3:"dict=fallback_keep_head"`
		Authors []Author `json:"authors" m3:"list=keep_update_entities_conflict_on_head_delete"`
	}

	merger, err := merge3.NewTyped[Record](merge3.Options{})
	if err != nil {
		log.Fatal(err)
	}

	root := Record{
		Title:   "Symmetry breaking",
		Authors: []Author{{FullName: "Elliott"}, {FullName: "Gwilliam"}},
	}
	// A curator fixed the title, linked Elliott and removed Gwilliam.
	head := Record{
		Title:   "Symmetry breaking (curated)",
		Authors: []Author{{FullName: "Elliott", UUID: "65aa01c7"}},
	}
	// The publisher sent a new title and an ORCID for Gwilliam.
	update := Record{
		Title: "Symmetry Breaking",
		Authors: []Author{
			{FullName: "Elliott"},
			{FullName: "Gwilliam", IDs: []AuthorID{{Schema: "ORCID", Value: "0000-0002-1825-0097"}}},
		},
	}

	merged, conflicts, err := merger.Merge(root, head, update)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("title:", merged.Title)
	for _, a := range merged.Authors {
		fmt.Printf("author: %s %q %d ids\n", a.FullName, a.UUID, len(a.IDs))
	}
	for _, c := range conflicts {
		fmt.Println("conflict:", c.Kind, c.Kind.Op(), c.Path)
	}

	// Output:
	// title: Symmetry breaking (curated)
	// author: Elliott "65aa01c7" 0 ids
	// author: Gwilliam "" 1 ids
	// conflict: REMOVE_FIELD remove /authors/1
}
