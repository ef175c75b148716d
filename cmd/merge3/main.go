// SPDX-License-Identifier: Apache-2.0

// Command merge3 runs policy-driven three-way merges of JSON, YAML and TOML
// records from the command line.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals are the flags shared by every subcommand.
type globals struct {
	verbose bool
	stdout  io.Writer
	stderr  io.Writer
}

func (g *globals) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(g.stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "merge3",
		Short: "Three-way merge of curated records",
		Long: `merge3 merges an incoming record (update) into a curated record (head),
relative to their common ancestor (root). Lists are merged entity by entity
and every edit the policy could not settle is reported as a conflict.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log merge events to stderr")

	root.AddCommand(
		newMergeCmd(g),
		newDiffCmd(g),
		newBatchCmd(g),
		newScenariosCmd(g),
	)
	return root
}
