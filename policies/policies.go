// SPDX-License-Identifier: Apache-2.0

// Package policies holds the built-in merge policies for literature records
// and picks one from the provenance of the two branches.
//
// Each [Scenario] is named "<update source>-on-<head source>", where a source
// is either arXiv or a publisher. Tables are embedded YAML in the format read
// by [merge3.ParseConfig]; entity comparators are shared by all scenarios.
package policies

import (
	"embed"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/sam-fredrickson/merge3"
)

//go:embed tables/*.yaml
var tables embed.FS

// Scenario names a built-in policy.
type Scenario string

const (
	ArxivOnArxiv         Scenario = "arxiv-on-arxiv"
	ArxivOnPublisher     Scenario = "arxiv-on-publisher"
	PublisherOnArxiv     Scenario = "publisher-on-arxiv"
	PublisherOnPublisher Scenario = "publisher-on-publisher"
)

// Auto asks [Merge] to choose the scenario with [Select].
const Auto Scenario = "auto"

// Scenarios returns the built-in scenarios in name order.
func Scenarios() []Scenario {
	return []Scenario{ArxivOnArxiv, ArxivOnPublisher, PublisherOnArxiv, PublisherOnPublisher}
}

// ParseScenario converts a scenario name. "auto" and "" yield [Auto].
func ParseScenario(s string) (Scenario, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(Auto) {
		return Auto, nil
	}
	if slices.Contains(Scenarios(), Scenario(s)) {
		return Scenario(s), nil
	}
	return "", &merge3.InvalidConfigError{
		Field:   "scenario",
		Value:   s,
		Message: fmt.Sprintf("valid: auto, %s", joinScenarios(Scenarios())),
	}
}

func joinScenarios(ss []Scenario) string {
	names := make([]string, len(ss))
	for i, s := range ss {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

var loadTables = sync.OnceValues(func() (map[Scenario]merge3.Configuration, error) {
	comparators, err := parseTable("comparators")
	if err != nil {
		return nil, err
	}
	out := make(map[Scenario]merge3.Configuration, len(Scenarios()))
	for _, s := range Scenarios() {
		cfg, err := parseTable(string(s))
		if err != nil {
			return nil, err
		}
		cfg.Comparators = maps.Clone(comparators.Comparators)
		out[s] = cfg
	}
	return out, nil
})

func parseTable(name string) (merge3.Configuration, error) {
	data, err := tables.ReadFile("tables/" + name + ".yaml")
	if err != nil {
		return merge3.Configuration{}, err
	}
	cfg, err := merge3.ParseConfig(data, yaml.Unmarshal)
	if err != nil {
		return merge3.Configuration{}, fmt.Errorf("policy table %s: %w", name, err)
	}
	return cfg, nil
}

// Config returns the configuration of a built-in scenario. The returned value
// is shared and must not be modified.
func Config(s Scenario) (merge3.Configuration, error) {
	all, err := loadTables()
	if err != nil {
		return merge3.Configuration{}, err
	}
	cfg, ok := all[s]
	if !ok {
		_, err := ParseScenario(string(s))
		if err == nil {
			err = &merge3.InvalidConfigError{Field: "scenario", Value: string(s), Message: "not a concrete scenario"}
		}
		return merge3.Configuration{}, err
	}
	return cfg, nil
}

// Select picks the scenario for merging update into head.
//
// A record's source is acquisition_source.source: "arXiv" (any case) means
// arXiv, anything else a publisher. A record without one counts as arXiv when
// it carries arxiv_eprints and as a publisher otherwise.
func Select(head, update any) Scenario {
	switch {
	case fromArxiv(update) && fromArxiv(head):
		return ArxivOnArxiv
	case fromArxiv(update):
		return ArxivOnPublisher
	case fromArxiv(head):
		return PublisherOnArxiv
	default:
		return PublisherOnPublisher
	}
}

func fromArxiv(doc any) bool {
	rec, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	if acq, ok := rec["acquisition_source"].(map[string]any); ok {
		if src, ok := acq["source"].(string); ok && src != "" {
			return strings.EqualFold(src, "arxiv")
		}
	}
	eprints, ok := rec["arxiv_eprints"].([]any)
	return ok && len(eprints) > 0
}

// Options configures [Merge].
type Options struct {
	// Scenario is the policy to apply; empty or [Auto] selects one.
	Scenario Scenario
	// Logger is handed to the engine. If nil, nothing is logged.
	Logger *slog.Logger
}

// Merge merges literature records under a built-in policy.
//
// The merged record's acquisition_source is always the update's: provenance
// describes the latest harvest, whatever the policy says about other fields.
func Merge(opts Options, root, head, update any) (*merge3.Result, Scenario, error) {
	scenario := opts.Scenario
	if scenario == "" || scenario == Auto {
		scenario = Select(head, update)
	}
	cfg, err := Config(scenario)
	if err != nil {
		return nil, "", err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log.Debug("merging record", "scenario", string(scenario))

	m, err := merge3.NewMerger(merge3.Options{Config: cfg, Logger: log})
	if err != nil {
		return nil, "", err
	}
	res, err := m.Merge(root, head, update)
	if err != nil {
		return nil, "", err
	}
	if err := keepUpdateProvenance(res, update); err != nil {
		return nil, "", err
	}
	return res, scenario, nil
}

func keepUpdateProvenance(res *merge3.Result, update any) error {
	u, ok := update.(map[string]any)
	if !ok {
		return nil
	}
	acq, ok := u["acquisition_source"]
	if !ok {
		return nil
	}
	merged, ok := res.Merged.(map[string]any)
	if !ok {
		return nil
	}
	acq, err := merge3.Normalize(acq)
	if err != nil {
		return &merge3.MarshalError{Err: err, Doc: "update"}
	}
	merged["acquisition_source"] = acq
	return nil
}
