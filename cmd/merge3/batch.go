// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sam-fredrickson/merge3"
)

const (
	rootSuffix      = ".root.json"
	headSuffix      = ".head.json"
	updateSuffix    = ".update.json"
	mergedSuffix    = ".merged.json"
	conflictsSuffix = ".conflicts.json"
)

func newBatchCmd(g *globals) *cobra.Command {
	var policy policyFlags
	var jobs int

	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Merge every <name>.{root,head,update}.json triple in DIR",
		Long: `batch merges every record triple in DIR concurrently. The merged record is
written to <name>.merged.json and, when there are any, its conflicts to
<name>.conflicts.json. A summary line per record goes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mergeFn, err := policy.merger(g.logger())
			if err != nil {
				return err
			}
			results, err := runBatch(cmd.Context(), mergeFn, args[0], jobs)
			if err != nil {
				return err
			}
			report := newConflictReport(g.stderr)
			for _, r := range results {
				if _, err := fmt.Fprintf(g.stdout, "%s\t%s\t%d conflicts\n", r.name, r.policy, len(r.conflicts)); err != nil {
					return err
				}
				report.write(r.name, r.conflicts)
			}
			return nil
		},
	}
	policy.bind(cmd)
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of concurrent merges")
	return cmd
}

type batchResult struct {
	name      string
	policy    string
	conflicts []merge3.Conflict
}

// findTriples returns the record names in dir that have all three versions.
func findTriples(dir string) ([]string, error) {
	roots, err := filepath.Glob(filepath.Join(dir, "*"+rootSuffix))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, root := range roots {
		name := strings.TrimSuffix(filepath.Base(root), rootSuffix)
		complete := true
		for _, suffix := range []string{headSuffix, updateSuffix} {
			if _, err := os.Stat(filepath.Join(dir, name+suffix)); err != nil {
				complete = false
				break
			}
		}
		if complete {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// runBatch merges every triple in dir with at most jobs merges in flight.
// Results are in name order. The first failure cancels the remaining work.
func runBatch(ctx context.Context, mergeFn mergeFunc, dir string, jobs int) ([]batchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	names, err := findTriples(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no *%s files with matching head and update in %s", rootSuffix, dir)
	}

	results := make([]batchResult, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := mergeTriple(mergeFn, dir, name)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func mergeTriple(mergeFn mergeFunc, dir, name string) (batchResult, error) {
	var docs [3]any
	for i, suffix := range []string{rootSuffix, headSuffix, updateSuffix} {
		doc, _, err := readDocument(filepath.Join(dir, name+suffix))
		if err != nil {
			return batchResult{}, err
		}
		docs[i] = doc
	}
	res, policy, err := mergeFn(docs[0], docs[1], docs[2])
	if err != nil {
		return batchResult{}, err
	}
	merge3.SortConflicts(res.Conflicts)

	if err := writeJSON(filepath.Join(dir, name+mergedSuffix), res.Merged); err != nil {
		return batchResult{}, err
	}
	conflictsPath := filepath.Join(dir, name+conflictsSuffix)
	if len(res.Conflicts) > 0 {
		if err := writeJSON(conflictsPath, res.Conflicts); err != nil {
			return batchResult{}, err
		}
	} else if err := os.Remove(conflictsPath); err != nil && !os.IsNotExist(err) {
		return batchResult{}, err
	}
	return batchResult{name: name, policy: policy, conflicts: res.Conflicts}, nil
}

func writeJSON(path string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}
