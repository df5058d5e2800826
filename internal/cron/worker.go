// Package cron runs the scheduled scan worker. The cadence comes from the
// scan_interval setting — either a number of seconds or a standard cron
// expression — falling back to a configured default. A Postgres advisory
// lock keeps multiple worker replicas from double-scanning.
package cron

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hoteliq/ratewatch/internal/alerting"
	"github.com/hoteliq/ratewatch/internal/metrics"
	"github.com/hoteliq/ratewatch/internal/scan"
	"github.com/hoteliq/ratewatch/internal/storage"
)

const (
	jobName          = "scheduled_scan"
	settingKey       = "scan_interval"
	advisoryLockKey  = int64(0x72617465776368) // "ratewch"
	minInterval      = time.Minute
	settingPollLimit = 24 * time.Hour
)

// advisoryLocker is satisfied by the pgx pool storage; other backends run
// unlocked (single-process deployments).
type advisoryLocker interface {
	AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error)
}

type Worker struct {
	store        storage.Storage
	orchestrator *scan.Orchestrator
	alerter      *alerting.Alerter
	defaultEvery time.Duration
}

func NewWorker(store storage.Storage, orchestrator *scan.Orchestrator, alerter *alerting.Alerter, defaultEvery time.Duration) *Worker {
	if defaultEvery < minInterval {
		defaultEvery = minInterval
	}
	return &Worker{
		store:        store,
		orchestrator: orchestrator,
		alerter:      alerter,
		defaultEvery: defaultEvery,
	}
}

// Run blocks until the context is cancelled, firing scans on schedule.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("cron: scheduled scan worker started (default interval %s)", w.defaultEvery)
	for {
		wait := w.untilNextRun(ctx, time.Now())
		select {
		case <-ctx.Done():
			log.Printf("cron: worker stopping: %v", ctx.Err())
			return ctx.Err()
		case <-time.After(wait):
		}
		w.RunOnce(ctx)
	}
}

// untilNextRun resolves the scan_interval setting into a wait duration.
func (w *Worker) untilNextRun(ctx context.Context, now time.Time) time.Duration {
	raw, err := w.store.GetSetting(ctx, settingKey)
	if err != nil {
		log.Printf("cron: read %s setting: %v", settingKey, err)
		return w.defaultEvery
	}
	if raw == "" {
		return w.defaultEvery
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		d := time.Duration(secs) * time.Second
		if d < minInterval {
			return minInterval
		}
		return d
	}

	if sched, err := cron.ParseStandard(raw); err == nil {
		wait := sched.Next(now).Sub(now)
		if wait <= 0 || wait > settingPollLimit {
			return w.defaultEvery
		}
		return wait
	}

	log.Printf("cron: %s setting %q is neither seconds nor a cron expression, using default", settingKey, raw)
	return w.defaultEvery
}

// RunOnce executes one scheduled scan cycle across all users with hotels.
func (w *Worker) RunOnce(ctx context.Context) {
	started := time.Now()

	if locker, ok := w.store.(advisoryLocker); ok {
		got, err := locker.AcquireAdvisoryLock(ctx, advisoryLockKey)
		if err != nil {
			log.Printf("cron: advisory lock: %v", err)
			return
		}
		if !got {
			log.Printf("cron: another worker holds the scan lock, skipping cycle")
			return
		}
		defer func() {
			if _, err := locker.ReleaseAdvisoryLock(ctx, advisoryLockKey); err != nil {
				log.Printf("cron: release advisory lock: %v", err)
			}
		}()
	}

	users, err := w.store.ListScanUsers(ctx)
	if err != nil {
		log.Printf("cron: list scan users: %v", err)
		w.finishCycle(ctx, started, err)
		return
	}

	var firstErr error
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		session, err := w.orchestrator.Run(ctx, scan.Request{
			UserID:      userID,
			SessionType: storage.ScanScheduled,
		})
		if err != nil {
			log.Printf("cron: scheduled scan for user %s: %v", userID, err)
			if firstErr == nil {
				firstErr = err
			}
			if session != nil {
				w.alerter.ScanFailed(*session)
			}
			continue
		}
		if session.FailedCount > 0 {
			w.alerter.ScanDegraded(*session)
		}
	}
	w.finishCycle(ctx, started, firstErr)
}

func (w *Worker) finishCycle(ctx context.Context, started time.Time, err error) {
	metrics.UpdateJobMetrics(jobName, started, err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if uerr := w.store.UpdateScheduledJob(ctx, jobName, started, time.Since(started), err == nil, msg); uerr != nil {
		log.Printf("cron: record job run: %v", uerr)
	}
}
