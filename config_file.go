// SPDX-License-Identifier: Apache-2.0

package merge3

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// ConfigFile is the serialized form of a [Configuration]. Operation names are
// the canonical upper-case names; lower case and dashes are accepted.
//
//	default_dict_op: FALLBACK_KEEP_UPDATE
//	default_list_op: KEEP_ONLY_UPDATE_ENTITIES
//	filter_out: [_private_notes]
//	list_merge_ops:
//	  authors: KEEP_UPDATE_ENTITIES_CONFLICT_ON_HEAD_DELETE
//	list_dict_ops:
//	  authors.full_name: FALLBACK_KEEP_HEAD
//	comparators:
//	  authors: {kind: name, field: full_name}
//	  dois: {kind: key, fields: [value]}
type ConfigFile struct {
	DefaultDictOp string                    `json:"default_dict_op,omitempty" yaml:"default_dict_op,omitempty" toml:"default_dict_op,omitempty"`
	DefaultListOp string                    `json:"default_list_op,omitempty" yaml:"default_list_op,omitempty" toml:"default_list_op,omitempty"`
	FilterOut     []string                  `json:"filter_out,omitempty" yaml:"filter_out,omitempty" toml:"filter_out,omitempty" validate:"dive,required"`
	ListMergeOps  map[string]string         `json:"list_merge_ops,omitempty" yaml:"list_merge_ops,omitempty" toml:"list_merge_ops,omitempty" validate:"dive,keys,required,endkeys,required"`
	ListDictOps   map[string]string         `json:"list_dict_ops,omitempty" yaml:"list_dict_ops,omitempty" toml:"list_dict_ops,omitempty" validate:"dive,keys,required,endkeys,required"`
	Comparators   map[string]ComparatorSpec `json:"comparators,omitempty" yaml:"comparators,omitempty" toml:"comparators,omitempty" validate:"dive,keys,required,endkeys"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build validates the file and converts it to a [Configuration].
func (f *ConfigFile) Build() (Configuration, error) {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			v := verrs[0]
			return Configuration{}, &InvalidConfigError{
				Field:   v.Namespace(),
				Value:   fmt.Sprint(v.Value()),
				Message: "failed " + v.Tag() + " check",
			}
		}
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg Configuration
	var err error
	if f.DefaultDictOp != "" {
		if cfg.DefaultDictOp, err = ParseDictOp(f.DefaultDictOp); err != nil {
			return Configuration{}, err
		}
	}
	if f.DefaultListOp != "" {
		if cfg.DefaultListOp, err = ParseListOp(f.DefaultListOp); err != nil {
			return Configuration{}, err
		}
	}
	cfg.FilterOut = append([]string(nil), f.FilterOut...)

	cfg.ListMergeOps = make(map[string]ListOp, len(f.ListMergeOps))
	for path, name := range f.ListMergeOps {
		op, err := ParseListOp(name)
		if err != nil {
			return Configuration{}, fmt.Errorf("list_merge_ops.%s: %w", path, err)
		}
		cfg.ListMergeOps[path] = op
	}
	cfg.ListDictOps = make(map[string]DictOp, len(f.ListDictOps))
	for path, name := range f.ListDictOps {
		op, err := ParseDictOp(name)
		if err != nil {
			return Configuration{}, fmt.Errorf("list_dict_ops.%s: %w", path, err)
		}
		cfg.ListDictOps[path] = op
	}
	cfg.Comparators = make(map[string]Comparator, len(f.Comparators))
	for path, spec := range f.Comparators {
		cmp, err := spec.Build()
		if err != nil {
			return Configuration{}, fmt.Errorf("comparators.%s: %w", path, err)
		}
		cfg.Comparators[path] = cmp
	}
	return cfg, cfg.Validate()
}

// ParseConfig decodes a configuration file with the given unmarshal function
// (yaml.Unmarshal, json.Unmarshal, toml.Unmarshal, ...).
func ParseConfig(data []byte, unmarshal func([]byte, any) error) (Configuration, error) {
	var f ConfigFile
	if err := unmarshal(data, &f); err != nil {
		return Configuration{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return f.Build()
}

// LoadConfig reads a configuration file, choosing the decoder from the file
// extension: .yaml/.yml, .json or .toml.
func LoadConfig(path string) (Configuration, error) {
	unmarshal, err := UnmarshalerFor(path)
	if err != nil {
		return Configuration{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	cfg, err := ParseConfig(data, unmarshal)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalerFor returns the decoder matching a file's extension.
func UnmarshalerFor(path string) (func([]byte, any) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal, nil
	case ".json":
		return json.Unmarshal, nil
	case ".toml":
		return toml.Unmarshal, nil
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}
