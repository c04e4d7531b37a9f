package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// historyEvent is one line of a task's .tak/history/<id>.jsonl sidecar.
// History append is best-effort and non-atomic with the state change
// (spec.md §5): failures here are swallowed by callers, never propagated as
// lifecycle failures.
type historyEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// appendHistory appends one JSONL event line for id. The return value is
// informational only; every caller in this package ignores failures here
// per the best-effort contract, but surfaces the error string into the
// returned Result so observers can see it happened.
func appendHistory(takDir, id, event, detail string) error {
	dir := filepath.Join(takDir, "history")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, id+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(historyEvent{Event: event, Timestamp: time.Now().UTC(), Detail: detail})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = f.Write(line)
	return err
}
