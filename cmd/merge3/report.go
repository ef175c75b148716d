// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/sam-fredrickson/merge3"
)

// conflictReport writes one line per conflict, coloured by kind when w is a
// terminal.
type conflictReport struct {
	w      io.Writer
	kind   *color.Color
	path   *color.Color
	header *color.Color
}

func newConflictReport(w io.Writer) *conflictReport {
	r := &conflictReport{
		w:      w,
		kind:   color.New(color.FgYellow, color.Bold),
		path:   color.New(color.FgCyan),
		header: color.New(color.FgRed),
	}
	if !isTerminal(w) {
		r.kind.DisableColor()
		r.path.DisableColor()
		r.header.DisableColor()
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *conflictReport) write(name string, conflicts []merge3.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	if name != "" {
		_, _ = r.header.Fprintf(r.w, "%s: %d conflicts\n", name, len(conflicts))
	}
	for _, c := range conflicts {
		value, err := json.Marshal(c.Value)
		if err != nil {
			value = []byte(fmt.Sprint(c.Value))
		}
		_, _ = fmt.Fprintf(r.w, "%s %s %s %s\n",
			r.kind.Sprint(c.Kind), c.Kind.Op(), r.path.Sprint(c.Path), value)
	}
}
