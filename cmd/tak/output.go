package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/steveyegge/tak/internal/errs"
)

// outputJSON pretty-prints v to stdout: an indented encoder, one record
// per invocation since tak has no daemon to batch against.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error encoding output: %v\n", err)
		os.Exit(1)
	}
}

// errorRecord is the stderr error envelope spec.md §6 mandates:
// {"error":"<code>","message":"<text>"}.
type errorRecord struct {
	Error   errs.Code `json:"error"`
	Message string    `json:"message"`
}

// fatal writes the structured error record to stderr and exits 1, per
// tak's always-JSON output contract (spec.md §6/§7).
func fatal(err error) {
	rec := errorRecord{Error: errs.CodeOf(err), Message: err.Error()}
	if rec.Error == "" {
		rec.Error = errs.Internal
	}
	data, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Fprintln(os.Stderr, string(data))
	os.Exit(1)
}
