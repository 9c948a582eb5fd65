package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/rackworks/hwdiag/internal/model"
)

// Watch runs the invocation on the configured schedule until the context
// is cancelled. Every run is independent: its pool is constructed,
// polled to completion and cleaned up before the next firing.
func Watch(ctx context.Context, cfg model.Config, inv Invocation) error {
	scheduler, err := newScheduler(ctx, cfg.Service.Schedule, func() {
		summary, err := Run(ctx, cfg, inv)
		if err != nil {
			slog.ErrorContext(ctx, "scheduled diagnostic run failed", "command", inv.Command, "error", err)
			return
		}
		if failed := summary.Failed(); len(failed) > 0 {
			slog.WarnContext(ctx, "diagnostics degraded", "command", inv.Command, "failed", failed)
			return
		}
		slog.InfoContext(ctx, "diagnostics completed", "command", inv.Command, "targets", len(summary.Rows))
	})
	if err != nil {
		return err
	}

	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

func newScheduler(ctx context.Context, cfgp *model.TimerSchedule, startFunc func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, errors.New("watch mode requires service.schedule")
	}
	cfg := *cfgp

	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		interval, err := model.ParseCron(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron, "interval", interval.String())
	case cfg.Duration != "":
		d, err := model.ParseSegDuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
		job = gocron.DurationJob(d)
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(startFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
