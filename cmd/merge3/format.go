// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/merge3"
)

type format string

var validFormats = map[string]format{
	"":     format(""),
	"json": format("json"),
	"yaml": format("yaml"),
	"toml": format("toml"),
}

func (f *format) String() string {
	return string(*f)
}

func (f *format) Set(value string) error {
	value = strings.ToLower(value)
	format, ok := validFormats[value]
	if !ok {
		return fmt.Errorf("invalid format %q", value)
	}
	*f = format
	return nil
}

func (f *format) Type() string {
	return "format"
}

func (f *format) Marshal(doc any) ([]byte, error) {
	switch *f {
	case "json", "":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case "yaml":
		return yaml.Marshal(doc)
	case "toml":
		return toml.Marshal(doc)
	default:
		return nil, fmt.Errorf("invalid format %q", *f)
	}
}

// readDocument decodes a record file by extension and normalizes it to
// encoding/json shapes. An empty file is a null document.
func readDocument(file string) (any, format, error) {
	var f format
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		f = validFormats["yaml"]
	case ".json":
		f = validFormats["json"]
	case ".toml":
		f = validFormats["toml"]
	}
	unmarshal, err := merge3.UnmarshalerFor(file)
	if err != nil {
		return nil, f, err
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, f, err
	}
	var doc any
	if len(contents) > 0 {
		if err := unmarshal(contents, &doc); err != nil {
			return nil, f, err
		}
	}
	doc, err = merge3.Normalize(doc)
	if err != nil {
		return nil, f, err
	}
	return doc, f, nil
}
