// Package worker processes one span of the row table.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/clock/system"
	"github.com/JakeFAU/articlescraper/internal/metrics"
	"github.com/JakeFAU/articlescraper/internal/progress"
	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// Result tallies what a worker did with its span.
type Result struct {
	Span      scrape.Span
	Succeeded int
	Failed    int
	// Skipped counts rows left pending because ctx ended first.
	Skipped int
	// Crashed is set by the dispatcher when the worker panicked. Rows the
	// worker never reached are then counted as Skipped.
	Crashed bool
}

// Processed is the number of rows the worker resolved.
func (r Result) Processed() int {
	return r.Succeeded + r.Failed
}

// Worker resolves every row of one View. It never returns row failures as
// errors; each row ends up SUCCESS or ERROR.
type Worker struct {
	id        int
	runID     [16]byte
	extractor scrape.Extractor
	emitter   progress.Emitter
	clock     scrape.Clock
	logger    *zap.Logger
}

// New constructs the worker for span number id of run runID.
func New(
	id int,
	runID [16]byte,
	extractor scrape.Extractor,
	emitter progress.Emitter,
	clock scrape.Clock,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.Discard
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:        id,
		runID:     runID,
		extractor: extractor,
		emitter:   emitter,
		clock:     clock,
		logger:    logger.With(zap.Int("span", id)),
	}
}

// Run processes view's rows in ascending order. Once ctx is done no further
// rows are started; the ones not reached stay pending.
func (w *Worker) Run(ctx context.Context, view *scrape.View) Result {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	total := view.Len()
	res := Result{Span: view.Span()}
	w.emit(progress.Event{Stage: progress.StageSpanStart, Total: total})
	w.logger.Debug("span started", zap.Stringer("range", view.Span()), zap.Int("rows", total))

	for k := 0; k < total; k++ {
		if ctx.Err() != nil {
			res.Skipped = total - k
			w.logger.Info("span interrupted",
				zap.Int("completed", k),
				zap.Int("skipped", res.Skipped),
				zap.Error(ctx.Err()),
			)
			break
		}
		row := view.Row(k)
		status, dur, note := w.process(ctx, view.Index(k), row)
		if status == scrape.StatusSuccess {
			res.Succeeded++
		} else {
			res.Failed++
		}
		w.emit(progress.Event{
			Stage:     progress.StageRowDone,
			Completed: k + 1,
			Total:     total,
			Status:    status,
			Site:      metrics.SanitizeSite(row.URL),
			URL:       row.URL,
			Dur:       dur,
			Note:      note,
		})
	}

	w.emit(progress.Event{Stage: progress.StageSpanDone, Completed: res.Processed(), Total: total})
	w.logger.Debug("span done",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
	)
	return res
}

func (w *Worker) process(ctx context.Context, index int, row *scrape.Row) (scrape.Status, time.Duration, string) {
	start := w.clock.Now()
	article, err := w.extract(ctx, row.URL)
	dur := w.clock.Now().Sub(start)
	if dur < 0 {
		dur = 0
	}
	if err != nil {
		row.MarkError()
		w.logger.Warn("row failed",
			zap.Int("row", index),
			zap.String("url", row.URL),
			zap.Duration("dur", dur),
			zap.Error(err),
		)
		return scrape.StatusError, dur, err.Error()
	}
	row.MarkSuccess(article)
	return scrape.StatusSuccess, dur, ""
}

// extract calls the extractor, turning a panic into an error so one bad page
// cannot take down the span.
func (w *Worker) extract(ctx context.Context, url string) (article scrape.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("extractor panic",
				zap.String("url", url),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			article = scrape.Article{}
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return w.extractor.FetchAndExtract(ctx, url)
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.runID
	evt.TS = w.clock.Now()
	evt.Span = w.id
	w.emitter.Emit(evt)
}
