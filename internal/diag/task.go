package diag

import (
	"context"
	"log/slog"
	"time"

	"github.com/rackworks/hwdiag/internal/jobs"
)

// State is the local task lifecycle vocabulary. Values are compared
// explicitly, a State is never coerced to a boolean.
type State string

const (
	StateNew         State = "New" // launched, not yet observed running
	StateRunning     State = "Running"
	StateCompleted   State = "Completed"
	StateInterrupted State = "Interrupted"
	StateKilled      State = "Killed"
	StateException   State = "Exception"
	StateCancelled   State = "Cancelled"
	StateTimedOut    State = "TimedOut"
)

// Terminal reports whether a task in this state is done; a terminal
// state never changes again.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateInterrupted, StateKilled,
		StateException, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// stateFromRemote maps the remote-reported task vocabulary onto the
// local set. Anything unknown is a protocol violation.
func stateFromRemote(remote string) (State, bool) {
	switch remote {
	case "New":
		return StateNew, true
	case "Starting", "Pending", "Running", "Stopping", "Suspended", "Service":
		return StateRunning, true
	case "Completed":
		return StateCompleted, true
	case "Interrupted":
		return StateInterrupted, true
	case "Killed":
		return StateKilled, true
	case "Exception":
		return StateException, true
	case "Cancelled", "Canceled":
		return StateCancelled, true
	}
	return StateException, false
}

// Task owns exactly one outstanding remote job handle for one target and
// tracks its lifecycle. The launcher is exclusively owned by the task;
// connections are never shared between tasks.
type Task struct {
	target string
	handle jobs.Handle
	client jobs.Launcher

	state         State
	launched      bool
	launchPayload []byte
	runPayload    []byte
	startedAt     time.Time

	rec Recorder
	now func() time.Time
}

func (t *Task) Target() string      { return t.target }
func (t *Task) Handle() jobs.Handle { return t.handle }
func (t *Task) State() State        { return t.state }
func (t *Task) StartedAt() time.Time { return t.startedAt }

// LastPayload returns the most recent raw status body, for diagnostics.
func (t *Task) LastPayload() []byte {
	if t.runPayload != nil {
		return t.runPayload
	}
	return t.launchPayload
}

// Complete is true once the task reached any terminal state.
func (t *Task) Complete() bool { return t.state.Terminal() }

// Poll queries the remote run status once and advances the task state.
// Transport and protocol failures are terminal: the task moves to
// Exception and is never polled again. Poll never returns an error.
func (t *Task) Poll(ctx context.Context) {
	if t.state.Terminal() {
		return
	}

	status, err := t.client.RunStatus(ctx, t.handle, t.target)
	if err != nil {
		slog.ErrorContext(ctx, "run status poll failed", "target", t.target, "handle", t.handle, "error", err)
		t.setState(ctx, StateException)
		return
	}

	t.runPayload = status.Raw
	record(ctx, t.rec, Event{Target: t.target, Kind: "run-status", Handle: string(t.handle), Payload: status.Raw})

	next, known := stateFromRemote(status.State)
	if !known {
		slog.ErrorContext(ctx, "remote reported unknown task state", "target", t.target, "handle", t.handle, "state", status.State)
		t.setState(ctx, StateException)
		return
	}
	if next == StateRunning && t.state == StateNew {
		t.startedAt = t.now()
	}
	t.setState(ctx, next)
}

// Cancel marks the task Cancelled and best-effort deletes the remote
// job; the delete outcome does not matter.
func (t *Task) Cancel(ctx context.Context) {
	t.finish(ctx, StateCancelled)
}

// expire is the timeout-induced variant of Cancel. Exactly one error is
// logged for the target.
func (t *Task) expire(ctx context.Context) {
	if t.state.Terminal() {
		return
	}
	slog.ErrorContext(ctx, "diagnostic exceeded pool timeout, cancelling", "target", t.target, "handle", t.handle)
	t.finish(ctx, StateTimedOut)
}

func (t *Task) finish(ctx context.Context, s State) {
	if t.state.Terminal() {
		return
	}
	t.setState(ctx, s)
	if err := t.client.Delete(ctx, t.handle); err != nil {
		slog.DebugContext(ctx, "best-effort job delete failed", "target", t.target, "handle", t.handle, "error", err)
	}
	record(ctx, t.rec, Event{Target: t.target, Kind: "delete", Handle: string(t.handle)})
}

func (t *Task) setState(ctx context.Context, s State) {
	if t.state == s {
		return
	}
	slog.DebugContext(ctx, "task state", "target", t.target, "from", t.state, "to", s)
	record(ctx, t.rec, Event{Target: t.target, Kind: "state", Handle: string(t.handle), Note: string(s)})
	t.state = s
}
