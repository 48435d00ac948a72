package engine

import (
	"context"
	"time"

	"github.com/aristath/ratewatch/internal/scheduler"
)

// jobTimeout bounds each scheduled tick so a stuck upstream call can
// never block the next tick indefinitely.
const jobTimeout = 20 * time.Second

// alertTickJob runs the Alert Engine's ~30s evaluation loop (§4.H).
type alertTickJob struct{ e *Engine }

func (j alertTickJob) Name() string { return "alert_tick" }

func (j alertTickJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, err := j.e.Alerts.CheckAll(ctx)
	return err
}

// heartbeatTickJob runs the Heartbeat Checker's ~30s loop (§4.I).
type heartbeatTickJob struct{ e *Engine }

func (j heartbeatTickJob) Name() string { return "heartbeat_tick" }

func (j heartbeatTickJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, err := j.e.Heartbeats.CheckAll(ctx)
	return err
}

// recomputeSweepJob is the §4.F safety-net sweep that recomputes every
// enabled monitor every ~10s, independent of event-driven recompute.
type recomputeSweepJob struct{ e *Engine }

func (j recomputeSweepJob) Name() string { return "monitor_recompute_sweep" }

func (j recomputeSweepJob) Run() error {
	_, err := j.e.Monitors.RecomputeAll(true)
	return err
}

// downsampleJob runs the §4.J retention pipeline every ~2h.
type downsampleJob struct{ e *Engine }

func (j downsampleJob) Name() string { return "downsampler" }

func (j downsampleJob) Run() error {
	return j.e.Downsampler.Run()
}

// RegisterJobs adds every scheduled job to sched at the intervals §4.F,
// §4.H, §4.I and §4.J name.
func (e *Engine) RegisterJobs(sched *scheduler.Scheduler) error {
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 30s", alertTickJob{e}},
		{"@every 30s", heartbeatTickJob{e}},
		{"@every 10s", recomputeSweepJob{e}},
		{"@every 2h", downsampleJob{e}},
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return err
		}
	}
	return nil
}
