package diag

import (
	"context"
	"time"
)

// Event is one captured moment of the diagnostic lifecycle: a wire
// payload or a local state transition.
type Event struct {
	Time    time.Time
	Target  string
	Kind    string // "submit" | "launch-status" | "run-status" | "delete" | "state"
	Handle  string
	Payload []byte
	Note    string
}

// Recorder persists events for later inspection. It is an optional
// collaborator injected at pool construction; implementations must
// swallow their own failures, orchestration never depends on them.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

func record(ctx context.Context, rec Recorder, ev Event) {
	if rec == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	rec.Record(ctx, ev)
}
