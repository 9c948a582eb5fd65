package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rackworks/hwdiag/internal/capture"
	"github.com/rackworks/hwdiag/internal/diag"
	"github.com/rackworks/hwdiag/internal/jobs"
	"github.com/rackworks/hwdiag/internal/model"
	"github.com/rackworks/hwdiag/internal/report"
)

const defaultCapturePath = "hwdiag-capture.db"

// Invocation is one diagnostic request: which targets, which vendor
// routine, and the resolved pool cadence.
type Invocation struct {
	Targets  []string
	Command  string
	Args     []string
	Interval time.Duration
	Timeout  time.Duration
}

// Run drives one invocation to completion and returns the per-target
// summary. Partial target failure is not an error; only setup problems
// and context cancellation are.
func Run(ctx context.Context, cfg model.Config, inv Invocation) (report.Summary, error) {
	if len(inv.Targets) == 0 {
		return report.Summary{}, errors.New("no targets given")
	}
	if inv.Command == "" {
		return report.Summary{}, errors.New("no diagnostic command given")
	}

	factory, err := NewFactory(cfg)
	if err != nil {
		return report.Summary{}, err
	}

	var rec diag.Recorder
	if cfg.Capture != nil && deref(cfg.Capture.Enabled) {
		path := defaultCapturePath
		if cfg.Capture.Path != nil {
			path = *cfg.Capture.Path
		}
		store, err := capture.Open(ctx, path)
		if err != nil {
			return report.Summary{}, fmt.Errorf("opening capture store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				slog.WarnContext(ctx, "closing capture store failed", "error", err)
			}
		}()
		slog.InfoContext(ctx, "capturing wire traffic", "path", path, "session", store.Session())
		rec = store
	}

	pool := diag.New(ctx, factory, inv.Targets, inv.Command, inv.Args, diag.Options{
		Interval: inv.Interval,
		Timeout:  inv.Timeout,
		Recorder: rec,
	})
	defer pool.Cleanup(ctx)

	if err := pool.PollUntilLaunched(ctx); err != nil {
		return report.FromPool(inv.Command, inv.Args, pool), err
	}
	if err := pool.PollUntilComplete(ctx); err != nil {
		return report.FromPool(inv.Command, inv.Args, pool), err
	}

	return report.FromPool(inv.Command, inv.Args, pool), nil
}

// NewFactory picks the launcher implementation named by the config.
func NewFactory(cfg model.Config) (jobs.Factory, error) {
	switch cfg.Backend {
	case "", model.BackendRelay:
		if cfg.Relay == nil {
			return nil, errors.New("backend relay requires a relay section")
		}
		return jobs.RelayFactory{
			URL:   cfg.Relay.URL,
			Token: authToken(cfg.Relay.Auth),
		}, nil

	case model.BackendRedfish:
		if cfg.Redfish == nil {
			return nil, errors.New("backend redfish requires a redfish section")
		}
		f := jobs.RedfishFactory{
			Token: authToken(cfg.Redfish.Auth),
		}
		if cfg.Redfish.Scheme != nil {
			f.Scheme = *cfg.Redfish.Scheme
		}
		if cfg.Redfish.Port != nil {
			f.Port = *cfg.Redfish.Port
		}
		if cfg.Redfish.Insecure != nil {
			f.Insecure = *cfg.Redfish.Insecure
		}
		return f, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// ResolvePoll parses the configured cadence. Flags may override the
// result at the CLI layer.
func ResolvePoll(cfg model.Poll) (interval, timeout time.Duration, err error) {
	if cfg.Interval != "" {
		interval, err = model.ParseSegDuration(cfg.Interval)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing poll.interval: %w", err)
		}
	}
	if cfg.Timeout != "" {
		timeout, err = model.ParseSegDuration(cfg.Timeout)
		if err != nil {
			return 0, 0, fmt.Errorf("parsing poll.timeout: %w", err)
		}
	}
	return interval, timeout, nil
}

func authToken(a model.Auth) string {
	if a.Type == model.AuthTypeStaticToken {
		return a.Token
	}
	return ""
}

func deref[T any](pt *T) T {
	var zero T
	if pt == nil {
		return zero
	}
	return *pt
}
