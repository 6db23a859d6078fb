// Package worker runs the background side of the intake service: it applies automated check
// results to dataset statuses and exports archived datasets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oceanco2/intake/intake/pkg/archive"
	"github.com/oceanco2/intake/intake/pkg/checkqueue"
	"github.com/oceanco2/intake/intake/pkg/metrics"
	"github.com/oceanco2/intake/intake/pkg/qcstatus"
	"github.com/oceanco2/intake/intake/pkg/statusstore"
)

// CheckSource delivers check results until ctx is cancelled.
type CheckSource interface {
	Run(ctx context.Context, handle checkqueue.Handler) error
}

// Exporter writes archive bundles.
type Exporter interface {
	Exported(ctx context.Context, expocode string, version int64) (bool, error)
	Export(ctx context.Context, b *archive.Bundle) (string, error)
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  statusstore.Store
	Engine *qcstatus.Engine

	// Checks is optional; without it no check results are consumed.
	Checks CheckSource
	// Exporter is optional; without it archived datasets are not exported.
	Exporter        Exporter
	ArchiveInterval time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("status store is required")
	}
	if cfg.Engine == nil {
		return errors.New("status engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = 5 * time.Minute
	}
	return nil
}

type Worker struct {
	log *slog.Logger
	cfg Config

	ready     atomic.Bool
	startedAt time.Time
	wg        sync.WaitGroup
}

func New(cfg Config) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Worker{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// errStaleCheck aborts an update whose check result is already applied or superseded.
var errStaleCheck = errors.New("stale check result")

// HandleCheck applies one check result to the dataset's status. Duplicate deliveries and results
// older than the one already applied are ignored.
func (w *Worker) HandleCheck(ctx context.Context, msg *checkqueue.Message) error {
	st, err := w.cfg.Store.Upsert(ctx, msg.Expocode, func(st *qcstatus.Status) error {
		if last := st.LastCheck; last != nil && (last.ID == msg.Check.ID || last.At.After(msg.Check.At)) {
			return errStaleCheck
		}
		w.cfg.Engine.Evaluate(st, qcstatus.Evaluation{
			Check:              msg.Check,
			MetadataAcceptable: st.MetadataAcceptable,
			Crossovers:         st.Crossovers,
		})
		return nil
	})
	if errors.Is(err, errStaleCheck) {
		w.log.Debug("worker: ignoring stale check result", "expocode", msg.Expocode, "check_id", msg.Check.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply check result: %w", err)
	}
	metrics.StatusTransitionsTotal.WithLabelValues("evaluate", "success").Inc()

	w.log.Info("worker: check result applied",
		"expocode", msg.Expocode,
		"check_id", msg.Check.ID,
		"outcome", msg.Check.Outcome.String(),
		"suggested", st.Suggested.String(),
		"actual", st.Actual.String())
	return nil
}

// ExportArchived exports every archived dataset whose current version has no bundle yet and
// returns how many were exported.
func (w *Worker) ExportArchived(ctx context.Context) (int, error) {
	if w.cfg.Exporter == nil {
		return 0, nil
	}
	statuses, err := w.cfg.Store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list statuses: %w", err)
	}

	var errs []error
	exported := 0
	for _, st := range statuses {
		if st.Actual.State != qcstatus.StateArchived {
			continue
		}
		done, err := w.cfg.Exporter.Exported(ctx, st.Expocode, st.Version)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if done {
			continue
		}
		if err := ExportStatus(ctx, w.cfg.Store, w.cfg.Exporter, st); err != nil {
			errs = append(errs, err)
			continue
		}
		exported++
	}
	return exported, errors.Join(errs...)
}

// ExportStatus writes the bundle of one archived status with its check history.
func ExportStatus(ctx context.Context, store statusstore.Store, exporter Exporter, st *qcstatus.Status) error {
	checks, err := store.Checks(ctx, st.Expocode, 0)
	if err != nil {
		return fmt.Errorf("failed to load checks of %s: %w", st.Expocode, err)
	}
	b, err := archive.NewBundle(st, checks)
	if err != nil {
		return err
	}
	if _, err := exporter.Export(ctx, b); err != nil {
		return err
	}
	return nil
}

// Ready reports whether the worker has completed its first archive sweep.
func (w *Worker) Ready() bool {
	return w.ready.Load()
}

// Start launches the check consumer and the archive loop. They stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.startedAt = w.cfg.Clock.Now()

	if w.cfg.Checks != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.cfg.Checks.Run(ctx, w.HandleCheck); err != nil {
				w.log.Error("worker: check consumer stopped", "error", err)
			}
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.archiveLoop(ctx)
	}()
}

func (w *Worker) archiveLoop(ctx context.Context) {
	ticker := w.cfg.Clock.NewTicker(w.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		n, err := w.ExportArchived(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("worker: archive export failed", "error", err)
		} else {
			if !w.ready.Swap(true) {
				w.log.Info("worker: ready", "startup", w.cfg.Clock.Since(w.startedAt).String())
			}
			if n > 0 {
				w.log.Info("worker: archived datasets exported", "count", n)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

// Close waits for the goroutines started by Start to return.
func (w *Worker) Close() error {
	w.wg.Wait()
	return nil
}
