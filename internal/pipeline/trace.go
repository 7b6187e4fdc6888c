package pipeline

import (
	"time"

	"github.com/segmentio/ksuid"
)

// StageEvent is one completed stage in a preprocessing run.
type StageEvent struct {
	Stage     string `json:"stage"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Detail    string `json:"detail,omitempty"`
}

// Trace accumulates per-request diagnostics. It is created per run and
// threaded explicitly through the stages; there is no module-level debug
// state anywhere in the pipeline.
type Trace struct {
	TraceID  string       `json:"trace_id"`
	Stages   []StageEvent `json:"stages"`
	Warnings []string     `json:"warnings,omitempty"`
}

// NewTrace allocates a trace with a sortable unique identifier.
func NewTrace() *Trace {
	return &Trace{TraceID: ksuid.New().String()}
}

// Record appends a completed stage.
func (t *Trace) Record(stage string, start time.Time, detail string) {
	t.Stages = append(t.Stages, StageEvent{
		Stage:     stage,
		ElapsedMs: time.Since(start).Milliseconds(),
		Detail:    detail,
	})
}

// Warn appends diagnostic messages, dropping empties.
func (t *Trace) Warn(messages ...string) {
	for _, msg := range messages {
		if msg != "" {
			t.Warnings = append(t.Warnings, msg)
		}
	}
}
