// Package dispatcher fans a row table out to one worker per span and waits
// for all of them.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/clock/system"
	idgen "github.com/JakeFAU/articlescraper/internal/id/uuid"
	"github.com/JakeFAU/articlescraper/internal/progress"
	"github.com/JakeFAU/articlescraper/internal/scrape"
	"github.com/JakeFAU/articlescraper/internal/worker"
)

// Summary describes a finished run.
type Summary struct {
	RunID     uuid.UUID
	Rows      int
	Succeeded int
	Failed    int
	Pending   int
	// Spans holds one result per worker, in span order.
	Spans   []worker.Result
	Elapsed time.Duration
}

// Dispatcher runs scrape jobs over a shared Extractor.
type Dispatcher struct {
	extractor scrape.Extractor
	emitter   progress.Emitter
	ids       scrape.IDGenerator
	clock     scrape.Clock
	logger    *zap.Logger
}

// New creates a Dispatcher. Nil emitter, ids, clock and logger fall back to
// no-op or system implementations.
func New(
	extractor scrape.Extractor,
	emitter progress.Emitter,
	ids scrape.IDGenerator,
	clock scrape.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if emitter == nil {
		emitter = progress.Discard
	}
	if ids == nil {
		ids = idgen.New()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		extractor: extractor,
		emitter:   emitter,
		ids:       ids,
		clock:     clock,
		logger:    logger.Named("dispatcher"),
	}
}

// Scrape partitions table into workerCount spans, runs one worker per span
// and blocks until every worker returns. Row failures are recorded on the
// rows. The returned error is non-nil only for invalid arguments, a crashed
// worker (ErrWorkerCrashed) or cancellation (wrapping ctx.Err()).
func (d *Dispatcher) Scrape(ctx context.Context, table *scrape.Table, workerCount int) (Summary, error) {
	if workerCount < 1 {
		return Summary{}, fmt.Errorf("%w: worker count must be at least 1, got %d", scrape.ErrInvalidConfig, workerCount)
	}
	if err := table.Validate(); err != nil {
		return Summary{}, err
	}
	if d.extractor == nil {
		return Summary{}, fmt.Errorf("%w: no extractor configured", scrape.ErrInvalidConfig)
	}
	spans, err := scrape.Partition(table.Len(), workerCount)
	if err != nil {
		return Summary{}, fmt.Errorf("partition rows: %w", err)
	}
	views, err := table.Views(spans)
	if err != nil {
		return Summary{}, fmt.Errorf("build views: %w", err)
	}
	id, err := d.ids.NewRunID()
	if err != nil {
		return Summary{}, fmt.Errorf("new run id: %w", err)
	}
	runID := progress.UUIDToBytes(id)
	logger := d.logger.With(zap.Stringer("run_id", id))

	start := d.clock.Now()
	d.emitRun(runID, progress.StageRunStart, 0, table.Len(), 0, "")
	logger.Info("scrape started", zap.Int("rows", table.Len()), zap.Int("workers", workerCount))

	results := make([]worker.Result, len(views))
	var wg sync.WaitGroup
	for i, view := range views {
		wg.Add(1)
		go func(i int, view *scrape.View) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = tallyCrashed(view)
					logger.Error("worker panic",
						zap.Int("span", i),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()),
					)
				}
			}()
			w := worker.New(i, runID, d.extractor, d.emitter, d.clock, logger)
			results[i] = w.Run(ctx, view)
		}(i, view)
	}
	wg.Wait()

	counts := table.Counts()
	summary := Summary{
		RunID:     id,
		Rows:      table.Len(),
		Succeeded: counts[scrape.StatusSuccess],
		Failed:    counts[scrape.StatusError],
		Pending:   counts[scrape.StatusPending],
		Spans:     results,
		Elapsed:   d.clock.Now().Sub(start),
	}
	done := summary.Succeeded + summary.Failed

	if err := d.checkTerminal(ctx, table, results); err != nil {
		d.emitRun(runID, progress.StageRunError, done, summary.Rows, summary.Elapsed, err.Error())
		logger.Error("scrape incomplete", zap.Int("pending", summary.Pending), zap.Error(err))
		return summary, err
	}

	d.emitRun(runID, progress.StageRunDone, done, summary.Rows, summary.Elapsed, "")
	logger.Info("scrape finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// checkTerminal fails if a worker crashed or any row is still pending after
// every worker returned. A crash is reported even if ctx was also cancelled.
func (d *Dispatcher) checkTerminal(ctx context.Context, table *scrape.Table, results []worker.Result) error {
	var (
		pending, lost int
		crashed       []scrape.Span
	)
	for _, res := range results {
		n := len(table.PendingIn(res.Span))
		pending += n
		if res.Crashed || n > res.Skipped {
			lost += n
			crashed = append(crashed, res.Span)
		}
	}
	if len(crashed) > 0 {
		return fmt.Errorf("%w: %d rows pending in spans %v", scrape.ErrWorkerCrashed, lost, crashed)
	}
	if pending == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("scrape interrupted with %d rows pending: %w", pending, err)
	}
	return fmt.Errorf("%w: %d rows pending without cancellation", scrape.ErrWorkerCrashed, pending)
}

// tallyCrashed rebuilds a panicked worker's result from the rows it left
// behind.
func tallyCrashed(view *scrape.View) worker.Result {
	res := worker.Result{Span: view.Span(), Crashed: true}
	for k := 0; k < view.Len(); k++ {
		switch view.Row(k).Status {
		case scrape.StatusSuccess:
			res.Succeeded++
		case scrape.StatusError:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res
}

func (d *Dispatcher) emitRun(runID [16]byte, stage progress.Stage, completed, total int, dur time.Duration, note string) {
	if dur < 0 {
		dur = 0
	}
	d.emitter.Emit(progress.Event{
		RunID:     runID,
		TS:        d.clock.Now(),
		Stage:     stage,
		Span:      -1,
		Completed: completed,
		Total:     total,
		Dur:       dur,
		Note:      note,
	})
}
