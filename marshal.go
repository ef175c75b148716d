// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"encoding/json"
)

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
// See [Merger.MergeMarshal] for details.
func MergeMarshal(
	opts Options,
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	root, head, update []byte,
) ([]byte, []Conflict, error) {
	m, err := NewMerger(opts)
	if err != nil {
		return nil, nil, err
	}
	return m.MergeMarshal(unmarshal, marshal, root, head, update)
}

// MergeMarshal merges byte documents using provided unmarshal and marshal functions.
//
// Documents are unmarshaled, normalized to encoding/json shapes with
// [Normalize], merged with [Merger.Merge], then the merged document is
// marshaled back to bytes. Works with any serialization format (YAML, JSON,
// TOML, etc.) via custom marshal functions.
//
// Example:
//
//	import "github.com/goccy/go-yaml"
//
//	merged, conflicts, err := MergeMarshal(opts, yaml.Unmarshal, yaml.Marshal, root, head, update)
func (m *Merger) MergeMarshal(
	unmarshal func([]byte, any) error,
	marshal func(any) ([]byte, error),
	root, head, update []byte,
) ([]byte, []Conflict, error) {
	docs := make([]any, 3)
	for i, raw := range [][]byte{root, head, update} {
		var doc any
		if len(raw) > 0 {
			if err := unmarshal(raw, &doc); err != nil {
				return nil, nil, &MarshalError{Err: err, Doc: docNames[i]}
			}
		}
		doc, err := Normalize(doc)
		if err != nil {
			return nil, nil, &MarshalError{Err: err, Doc: docNames[i]}
		}
		docs[i] = doc
	}

	res, err := m.Merge(docs[0], docs[1], docs[2])
	if err != nil {
		return nil, nil, err
	}

	out, err := marshal(res.Merged)
	if err != nil {
		return nil, nil, &MarshalError{Err: err, Doc: "merged"}
	}
	return out, res.Conflicts, nil
}

// Normalize converts a decoded document to encoding/json shapes, so that
// values decoded by different libraries compare equal: integers become
// float64, maps become map[string]any and times become strings.
func Normalize(doc any) (any, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
