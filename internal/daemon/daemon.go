package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
)

// Reconciler is the engine surface the daemon drives.
type Reconciler interface {
	RunCycle(ctx context.Context) bool
	Cleanup()
}

// Daemon runs reconciliation cycles at a fixed interval on a single
// background goroutine. The sleep between cycles is interruptible; an
// in-flight cycle finishes its current phase before the stop signal
// is observed.
type Daemon struct {
	reconciler Reconciler
	interval   time.Duration
	log        logr.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(log logr.Logger, reconciler Reconciler, interval time.Duration) *Daemon {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Daemon{
		reconciler: reconciler,
		interval:   interval,
		log:        log,
	}
}

// Start launches the background loop. It returns an error if the
// daemon is already running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.done != nil {
		return errors.New("daemon already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		d.loop(runCtx)
	}()

	d.log.Info("daemon started", "interval", d.interval)
	return nil
}

// Run executes the loop on the calling goroutine until ctx is
// cancelled, then cleans up.
func (d *Daemon) Run(ctx context.Context) {
	d.loop(ctx)
	d.reconciler.Cleanup()
}

// Stop cancels the loop and waits up to grace for the in-flight cycle
// to finish. An expired grace period reports an ungraceful shutdown.
func (d *Daemon) Stop(grace time.Duration) error {
	if d.done == nil {
		return errors.New("daemon not running")
	}
	d.cancel()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-d.done:
		d.done = nil
		d.reconciler.Cleanup()
		d.log.Info("daemon stopped")
		return nil
	case <-timer.C:
		return errors.New("daemon did not stop within grace period")
	}
}

func (d *Daemon) loop(ctx context.Context) {
	for {
		start := time.Now()
		if !d.reconciler.RunCycle(ctx) {
			d.log.Info("reconciliation cycle reported failure, retrying next interval")
		}

		elapsed := time.Since(start)
		sleep := d.interval - elapsed
		if sleep < 0 {
			d.log.Info("cycle overran interval", "elapsed", elapsed, "interval", d.interval)
			sleep = 0
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
