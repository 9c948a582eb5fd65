package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rackworks/hwdiag/internal/diag"
)

// Summary is the final per-target outcome of one diagnostic invocation.
type Summary struct {
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
	Rows    []Row  `json:"targets"`
}

type Row struct {
	Target string `json:"target"`
	Handle string `json:"handle,omitempty"`
	State  string `json:"state"`
}

// FromPool snapshots the pool members after polling finished.
func FromPool(command string, args []string, pool *diag.Pool) Summary {
	s := Summary{
		Command: command,
		Args:    strings.Join(args, " "),
	}
	for t := range pool.Members() {
		s.Rows = append(s.Rows, Row{
			Target: t.Target(),
			Handle: string(t.Handle()),
			State:  string(t.State()),
		})
	}
	return s
}

// Failed lists the targets which did not end in Completed.
func (s Summary) Failed() []string {
	var failed []string
	for _, r := range s.Rows {
		if r.State != string(diag.StateCompleted) {
			failed = append(failed, r.Target)
		}
	}
	return failed
}

// Render writes the human readable table.
func (s Summary) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "TARGET\tSTATE\tJOB"); err != nil {
		return err
	}
	for _, r := range s.Rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Target, r.State, r.Handle); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// AsJSON writes the machine readable form.
func (s Summary) AsJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
