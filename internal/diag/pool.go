package diag

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/rackworks/hwdiag/internal/jobs"
)

// Options configure one Pool. Clock exists for tests; nil means time.Now.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Recorder Recorder
	Clock    func() time.Time
}

// Pool owns the tasks of one diagnostic invocation and drives their
// launch phase, run-phase polling, interval throttling and timeout
// enforcement. A pool is single-threaded: members are visited
// sequentially in a stable order, one bounded HTTP round trip at a time,
// so one target's failure never blocks progress on another.
type Pool struct {
	command string
	args    []string
	members []*Task

	interval time.Duration
	timeout  time.Duration

	startedAt    time.Time
	lastPolledAt time.Time

	rec Recorder
	now func() time.Time
}

// New attempts one launch per requested target. Targets whose submission
// definitively fails are logged once and never become members; an empty
// pool is valid. Each member receives its own launcher so that it
// exclusively owns an outbound connection.
func New(ctx context.Context, factory jobs.Factory, targets []string, command string, args []string, opts Options) *Pool {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	p := &Pool{
		command:   command,
		args:      args,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		rec:       opts.Recorder,
		now:       now,
		startedAt: now(),
	}

	for _, target := range targets {
		client, err := factory.Launcher(target)
		if err != nil {
			slog.ErrorContext(ctx, "diagnostic launch failed", "target", target, "command", command, "error", err)
			continue
		}

		handle, err := client.Submit(ctx, []string{target}, command, args)
		if err != nil {
			slog.ErrorContext(ctx, "diagnostic launch failed", "target", target, "command", command, "error", err)
			client.Close()
			continue
		}

		t := &Task{
			target:    target,
			handle:    handle,
			client:    client,
			state:     StateNew,
			startedAt: now(),
			rec:       opts.Recorder,
			now:       now,
		}
		record(ctx, p.rec, Event{
			Target: target,
			Kind:   "submit",
			Handle: string(handle),
			Note:   strings.TrimSpace(command + " " + strings.Join(args, " ")),
		})
		p.members = append(p.members, t)
	}

	return p
}

// PollUntilLaunched queries launch status for every member still
// awaiting a decision until each one either confirmed its launch or
// failed it. Failed members are removed and logged once. A member still
// undecided when the pool timeout elapses counts as failed, so this
// always terminates.
func (p *Pool) PollUntilLaunched(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		expired := p.now().Sub(p.startedAt) > p.timeout
		pending := false
		kept := p.members[:0]

		for _, t := range p.members {
			if t.launched {
				kept = append(kept, t)
				continue
			}

			decision, err := t.client.LaunchStatus(ctx, t.handle, t.target)
			switch {
			case err != nil:
				slog.ErrorContext(ctx, "launch failed", "target", t.target, "handle", t.handle, "error", err)
				p.discard(ctx, t)
			case decision.Decided && decision.OK:
				t.launched = true
				t.launchPayload = decision.Raw
				record(ctx, p.rec, Event{Target: t.target, Kind: "launch-status", Handle: string(t.handle), Payload: decision.Raw})
				kept = append(kept, t)
			case decision.Decided:
				slog.ErrorContext(ctx, "launch failed", "target", t.target, "handle", t.handle,
					"state", decision.State, "message", decision.Message)
				p.discard(ctx, t)
			case expired:
				slog.ErrorContext(ctx, "launch undecided past pool timeout", "target", t.target, "handle", t.handle)
				p.discard(ctx, t)
			default:
				pending = true
				kept = append(kept, t)
			}
		}

		p.members = kept
		if !pending {
			return nil
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
}

// discard releases the resources of a task removed during the launch
// phase: best-effort remote delete, then the connection.
func (p *Pool) discard(ctx context.Context, t *Task) {
	if err := t.client.Delete(ctx, t.handle); err != nil {
		slog.DebugContext(ctx, "best-effort job delete failed", "target", t.target, "handle", t.handle, "error", err)
	}
	t.client.Close()
}

// PollStatuses is one rate-limited polling step. Called again within one
// interval it returns immediately without any network traffic, which
// bounds the request rate under a tight caller loop. Otherwise every
// non-complete member is polled once and, independently, cancelled with
// TimedOut once the pool timeout has elapsed. No per-target failure ever
// propagates out of here; all failure is a terminal task state.
func (p *Pool) PollStatuses(ctx context.Context) {
	now := p.now()
	if !p.lastPolledAt.IsZero() && now.Sub(p.lastPolledAt) < p.interval {
		return
	}

	for _, t := range p.members {
		if t.Complete() {
			continue
		}
		t.Poll(ctx)
		if !t.Complete() && p.now().Sub(p.startedAt) > p.timeout {
			t.expire(ctx)
		}
	}

	p.lastPolledAt = p.now()
}

// PollUntilComplete loops PollStatuses until every member reached a
// terminal state, pacing itself with the pool interval. It terminates
// even under universal target failure because the timeout drives every
// remaining member to TimedOut.
func (p *Pool) PollUntilComplete(ctx context.Context) error {
	for !p.Complete() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.PollStatuses(ctx)
		if p.Complete() {
			break
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
	return nil
}

// Complete is true once all members are, including the degenerate empty
// pool.
func (p *Pool) Complete() bool {
	for _, t := range p.members {
		if !t.Complete() {
			return false
		}
	}
	return true
}

func (p *Pool) Size() int { return len(p.members) }

// Members iterates all members in their stable poll order. The sequence
// is restartable, not single-use.
func (p *Pool) Members() iter.Seq[*Task] {
	return func(yield func(*Task) bool) {
		for _, t := range p.members {
			if !yield(t) {
				return
			}
		}
	}
}

// Completed is the filtered view of members in a terminal state.
func (p *Pool) Completed() iter.Seq[*Task] {
	return p.filtered(true)
}

// NotCompleted is the filtered view of members still in flight.
func (p *Pool) NotCompleted() iter.Seq[*Task] {
	return p.filtered(false)
}

func (p *Pool) filtered(complete bool) iter.Seq[*Task] {
	return func(yield func(*Task) bool) {
		for _, t := range p.members {
			if t.Complete() != complete {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Cancel cancels every non-complete member explicitly. Distinct from
// timeout expiry: members end Cancelled, not TimedOut.
func (p *Pool) Cancel(ctx context.Context) {
	for _, t := range p.members {
		t.Cancel(ctx)
	}
}

// Cleanup best-effort deletes every member's remote job and releases its
// connection. Errors are logged, never returned.
func (p *Pool) Cleanup(ctx context.Context) {
	for _, t := range p.members {
		if err := t.client.Delete(ctx, t.handle); err != nil {
			slog.WarnContext(ctx, "cleanup: job delete failed", "target", t.target, "handle", t.handle, "error", err)
		}
		record(ctx, p.rec, Event{Target: t.target, Kind: "delete", Handle: string(t.handle)})
		t.client.Close()
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
