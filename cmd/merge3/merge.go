// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sam-fredrickson/merge3"
	"github.com/sam-fredrickson/merge3/policies"
)

// policyFlags choose the merge policy: a configuration file or a built-in
// scenario.
type policyFlags struct {
	config   string
	scenario string
}

func (p *policyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.config, "config", "c", "", "merge policy file (.yaml, .json or .toml)")
	cmd.Flags().StringVarP(&p.scenario, "scenario", "s", string(policies.Auto), "built-in policy, or auto to choose from acquisition_source")
	cmd.MarkFlagsMutuallyExclusive("config", "scenario")
}

type mergeFunc func(root, head, update any) (*merge3.Result, string, error)

// merger resolves the policy once; the returned function is safe for
// concurrent use.
func (p *policyFlags) merger(log *slog.Logger) (mergeFunc, error) {
	if p.config != "" {
		cfg, err := merge3.LoadConfig(p.config)
		if err != nil {
			return nil, err
		}
		m, err := merge3.NewMerger(merge3.Options{Config: cfg, Logger: log})
		if err != nil {
			return nil, err
		}
		return func(root, head, update any) (*merge3.Result, string, error) {
			res, err := m.Merge(root, head, update)
			return res, p.config, err
		}, nil
	}

	scenario, err := policies.ParseScenario(p.scenario)
	if err != nil {
		return nil, err
	}
	return func(root, head, update any) (*merge3.Result, string, error) {
		res, s, err := policies.Merge(policies.Options{Scenario: scenario, Logger: log}, root, head, update)
		return res, string(s), err
	}, nil
}

// configuration returns the policy used to align lists in a diff.
func (p *policyFlags) configuration(base, derived any) (merge3.Configuration, error) {
	if p.config != "" {
		return merge3.LoadConfig(p.config)
	}
	scenario, err := policies.ParseScenario(p.scenario)
	if err != nil {
		return merge3.Configuration{}, err
	}
	if scenario == policies.Auto {
		scenario = policies.Select(base, derived)
	}
	return policies.Config(scenario)
}

func newMergeCmd(g *globals) *cobra.Command {
	var policy policyFlags
	var rootPath, headPath, updatePath, outputPath string
	var outputFormat format

	cmd := &cobra.Command{
		Use:   "merge --root FILE --head FILE --update FILE",
		Short: "Merge one record",
		Example: `  # merge a harvested record into its curated version
  merge3 merge --root root.json --head head.json --update update.json

  # use a custom policy and write YAML
  merge3 merge -c policy.yaml --format yaml --root r.yaml --head h.yaml --update u.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mergeFn, err := policy.merger(g.logger())
			if err != nil {
				return err
			}

			return runMerge(mergeFn, rootPath, headPath, updatePath, outputFormat, outputPath, g.stdout, newConflictReport(g.stderr))
		},
	}
	policy.bind(cmd)
	cmd.Flags().StringVar(&rootPath, "root", "", "common ancestor record")
	cmd.Flags().StringVar(&headPath, "head", "", "curated record")
	cmd.Flags().StringVar(&updatePath, "update", "", "incoming record")
	cmd.Flags().StringVarP(&outputPath, "out", "o", "", "output file path (defaults to stdout)")
	cmd.Flags().Var(&outputFormat, "format", "output format [json, yaml, toml] (defaults to the head's format)")
	for _, name := range []string{"root", "head", "update"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runMerge(
	mergeFn mergeFunc,
	rootPath, headPath, updatePath string,
	outputFormat format,
	outputPath string,
	stdout io.Writer,
	report *conflictReport,
) error {
	var docs [3]any
	for i, file := range []string{rootPath, headPath, updatePath} {
		doc, fileFormat, err := readDocument(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		docs[i] = doc
		if i == 1 && outputFormat == "" {
			outputFormat = fileFormat
		}
	}

	res, _, err := mergeFn(docs[0], docs[1], docs[2])
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}
	merge3.SortConflicts(res.Conflicts)

	out, err := resultDocument(res)
	if err != nil {
		return err
	}
	marshaled, err := outputFormat.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal result as %s: %w", outputFormat.String(), err)
	}
	// The output file is only created once there is something to put in it.
	if outputPath != "" {
		err = os.WriteFile(outputPath, marshaled, 0o644)
	} else {
		_, err = stdout.Write(marshaled)
	}
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	report.write("", res.Conflicts)
	return nil
}

// resultDocument is the {"merged", "conflicts"} envelope written by merge.
func resultDocument(res *merge3.Result) (map[string]any, error) {
	conflicts := []any{}
	if len(res.Conflicts) > 0 {
		doc, err := merge3.Normalize(res.Conflicts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode conflicts: %w", err)
		}
		conflicts = doc.([]any)
	}
	return map[string]any{
		"merged":    res.Merged,
		"conflicts": conflicts,
	}, nil
}

func newDiffCmd(g *globals) *cobra.Command {
	var policy policyFlags
	var outputFormat format

	cmd := &cobra.Command{
		Use:   "diff BASE DERIVED",
		Short: "Print the JSON Patch turning BASE into DERIVED",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, baseFormat, err := readDocument(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			derived, _, err := readDocument(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			cfg, err := policy.configuration(base, derived)
			if err != nil {
				return err
			}
			if outputFormat == "" {
				outputFormat = baseFormat
			}

			patch := merge3.Diff(base, derived, &cfg)
			doc := []any{}
			if len(patch) > 0 {
				normalized, err := merge3.Normalize(patch)
				if err != nil {
					return err
				}
				doc = normalized.([]any)
			}
			if outputFormat == "toml" {
				// TOML has no top-level arrays.
				return writeFormatted(g.stdout, outputFormat, map[string]any{"patch": doc})
			}
			return writeFormatted(g.stdout, outputFormat, doc)
		},
	}
	policy.bind(cmd)
	cmd.Flags().Var(&outputFormat, "format", "output format [json, yaml, toml] (defaults to BASE's format)")
	return cmd
}

func writeFormatted(w io.Writer, f format, doc any) error {
	marshaled, err := f.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal result as %s: %w", f.String(), err)
	}
	_, err = w.Write(marshaled)
	return err
}

func newScenariosCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in merge policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range policies.Scenarios() {
				cfg, err := policies.Config(s)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(g.stdout, "%-24s default_dict_op=%s default_list_op=%s list_ops=%d dict_ops=%d\n",
					s, cfg.DefaultDictOp, cfg.DefaultListOp, len(cfg.ListMergeOps), len(cfg.ListDictOps))
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
