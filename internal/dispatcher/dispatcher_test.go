package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/progress"
	"github.com/JakeFAU/articlescraper/internal/scrape"
	"github.com/JakeFAU/articlescraper/internal/worker"
)

func newTable(n int) *scrape.Table {
	rows := make([]scrape.Row, n)
	for i := range rows {
		rows[i] = scrape.NewRow(fmt.Sprintf("https://site.test/%d", i), map[string]string{"ID": fmt.Sprint(i)})
	}
	return scrape.NewTable([]string{"ID", scrape.ColumnURL}, rows)
}

var constantArticle = scrape.ExtractorFunc(func(context.Context, string) (scrape.Article, error) {
	return scrape.Article{Title: "T", Body: "B"}, nil
})

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recordingEmitter) Stage(stage progress.Stage) []progress.Event {
	var out []progress.Event
	for _, evt := range r.Events() {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

type fixedIDs struct {
	id uuid.UUID
}

func (f fixedIDs) NewRunID() (uuid.UUID, error) {
	return f.id, nil
}

func TestScrapeAllSucceed(t *testing.T) {
	t.Parallel()

	table := newTable(9)
	emitter := &recordingEmitter{}
	runID := uuid.MustParse("00000000-0000-0000-0000-000000000009")
	d := New(constantArticle, emitter, fixedIDs{id: runID}, nil, zap.NewNop())

	summary, err := d.Scrape(context.Background(), table, 4)
	require.NoError(t, err)

	require.Equal(t, runID, summary.RunID)
	require.Equal(t, 9, summary.Rows)
	require.Equal(t, 9, summary.Succeeded)
	require.Zero(t, summary.Failed)
	require.Zero(t, summary.Pending)
	for _, row := range table.Rows {
		require.Equal(t, scrape.StatusSuccess, row.Status)
		require.Equal(t, "T", row.ArticleTitle)
		require.Equal(t, "B", row.Text)
	}

	// 9 rows over 4 workers: [0,3) [3,6) [6,9) [9,9).
	require.Len(t, summary.Spans, 4)
	wantSpans := []scrape.Span{{Start: 0, End: 3}, {Start: 3, End: 6}, {Start: 6, End: 9}, {Start: 9, End: 9}}
	wantDone := []int{3, 3, 3, 0}
	for i, res := range summary.Spans {
		require.Equal(t, wantSpans[i], res.Span)
		require.Equal(t, wantDone[i], res.Succeeded)
	}

	require.Len(t, emitter.Stage(progress.StageRunStart), 1)
	require.Len(t, emitter.Stage(progress.StageSpanStart), 4)
	require.Len(t, emitter.Stage(progress.StageSpanDone), 4)
	require.Len(t, emitter.Stage(progress.StageRowDone), 9)
	done := emitter.Stage(progress.StageRunDone)
	require.Len(t, done, 1)
	require.Equal(t, 9, done[0].Completed)
	require.Equal(t, progress.UUIDToBytes(runID), done[0].RunID)
	for _, evt := range emitter.Events() {
		require.NoError(t, evt.Validate())
	}
}

// Each row's ROW_DONE event must come from the worker whose span holds the
// row, and every row is extracted exactly once.
func TestScrapeNoCrossSpanMutation(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ rows, workers int }{{10, 3}, {9, 4}, {2, 5}, {37, 6}, {1, 1}} {
		tc := tc
		t.Run(fmt.Sprintf("%d_rows_%d_workers", tc.rows, tc.workers), func(t *testing.T) {
			t.Parallel()

			table := newTable(tc.rows)
			var mu sync.Mutex
			calls := map[string]int{}
			extractor := scrape.ExtractorFunc(func(_ context.Context, url string) (scrape.Article, error) {
				mu.Lock()
				calls[url]++
				mu.Unlock()
				return scrape.Article{Title: "T", Body: url}, nil
			})
			emitter := &recordingEmitter{}

			_, err := New(extractor, emitter, nil, nil, nil).Scrape(context.Background(), table, tc.workers)
			require.NoError(t, err)

			spans, err := scrape.Partition(tc.rows, tc.workers)
			require.NoError(t, err)
			owner := map[string]int{}
			for s, span := range spans {
				for i := span.Start; i < span.End; i++ {
					owner[table.Rows[i].URL] = s
				}
			}
			rowEvents := emitter.Stage(progress.StageRowDone)
			require.Len(t, rowEvents, tc.rows)
			for _, evt := range rowEvents {
				require.Equal(t, owner[evt.URL], evt.Span, "row %s written by span %d", evt.URL, evt.Span)
			}
			for i, row := range table.Rows {
				require.Equal(t, 1, calls[row.URL])
				require.Equal(t, row.URL, row.Text, "row %d carries another row's text", i)
				require.Equal(t, fmt.Sprint(i), row.Value("ID"))
			}
		})
	}
}

func TestScrapeFailureIsolation(t *testing.T) {
	t.Parallel()

	table := newTable(10)
	extractor := scrape.ExtractorFunc(func(_ context.Context, url string) (scrape.Article, error) {
		switch url {
		case "https://site.test/3", "https://site.test/7":
			return scrape.Article{}, errors.New("timeout")
		}
		return scrape.Article{Title: "T", Body: "B"}, nil
	})

	summary, err := New(extractor, nil, nil, nil, nil).Scrape(context.Background(), table, 3)
	require.NoError(t, err)
	require.Equal(t, 8, summary.Succeeded)
	require.Equal(t, 2, summary.Failed)
	for i, row := range table.Rows {
		if i == 3 || i == 7 {
			require.Equal(t, scrape.StatusError, row.Status)
			require.Empty(t, row.ArticleTitle)
			require.Empty(t, row.Text)
			continue
		}
		require.Equal(t, scrape.StatusSuccess, row.Status)
	}
}

func TestScrapeRejectsInvalidWorkerCount(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -1, -50} {
		table := newTable(3)
		called := false
		extractor := scrape.ExtractorFunc(func(context.Context, string) (scrape.Article, error) {
			called = true
			return scrape.Article{}, nil
		})
		_, err := New(extractor, nil, nil, nil, nil).Scrape(context.Background(), table, n)
		require.ErrorIs(t, err, scrape.ErrInvalidConfig, "workers=%d", n)
		require.False(t, called)
		for _, row := range table.Rows {
			require.Equal(t, scrape.StatusPending, row.Status)
		}
	}
}

func TestScrapeRejectsInvalidTable(t *testing.T) {
	t.Parallel()

	noURL := scrape.NewTable([]string{"LINK"}, []scrape.Row{scrape.NewRow("https://a.test", nil)})
	empty := scrape.NewTable([]string{scrape.ColumnURL}, nil)

	for name, table := range map[string]*scrape.Table{"nil": nil, "no url column": noURL, "no rows": empty} {
		_, err := New(constantArticle, nil, nil, nil, nil).Scrape(context.Background(), table, 2)
		require.ErrorIs(t, err, scrape.ErrInvalidInput, name)
	}
}

func TestScrapeConfigCheckedBeforeInput(t *testing.T) {
	t.Parallel()

	_, err := New(constantArticle, nil, nil, nil, nil).Scrape(context.Background(), nil, 0)
	require.ErrorIs(t, err, scrape.ErrInvalidConfig)
}

func TestScrapeMoreWorkersThanRows(t *testing.T) {
	t.Parallel()

	table := newTable(2)
	summary, err := New(constantArticle, nil, nil, nil, nil).Scrape(context.Background(), table, 5)
	require.NoError(t, err)
	require.Len(t, summary.Spans, 5)
	require.Equal(t, 2, summary.Succeeded)
}

// A worker that dies outside the per-row guard leaves its rows pending.
func TestScrapeReportsCrashedWorker(t *testing.T) {
	t.Parallel()

	table := newTable(6)
	emitter := &panickingEmitter{span: 1, stage: progress.StageSpanStart, inner: &recordingEmitter{}}

	summary, err := New(constantArticle, emitter, nil, nil, nil).Scrape(context.Background(), table, 3)
	require.ErrorIs(t, err, scrape.ErrWorkerCrashed)
	require.Contains(t, err.Error(), "[2,4)")
	require.Equal(t, 2, summary.Pending)
	require.Equal(t, 4, summary.Succeeded)
	require.Equal(t, scrape.StatusPending, table.Rows[2].Status)
	require.Equal(t, scrape.StatusPending, table.Rows[3].Status)
	require.True(t, summary.Spans[1].Crashed)
	require.False(t, summary.Spans[0].Crashed)
	require.Len(t, emitter.inner.Stage(progress.StageRunError), 1)
}

func TestScrapeCrashedWorkerKeepsResolvedRows(t *testing.T) {
	t.Parallel()

	table := newTable(6)
	emitter := &panickingEmitter{span: 1, stage: progress.StageRowDone, completed: 1, inner: &recordingEmitter{}}

	summary, err := New(constantArticle, emitter, nil, nil, nil).Scrape(context.Background(), table, 3)
	require.ErrorIs(t, err, scrape.ErrWorkerCrashed)
	require.Contains(t, err.Error(), "1 rows pending in spans [[2,4)]")
	require.Equal(t, scrape.StatusSuccess, table.Rows[2].Status)
	require.Equal(t, scrape.StatusPending, table.Rows[3].Status)
	require.Equal(t, worker.Result{
		Span:      scrape.Span{Start: 2, End: 4},
		Succeeded: 1,
		Skipped:   1,
		Crashed:   true,
	}, summary.Spans[1])

	var succeeded, skipped int
	for _, res := range summary.Spans {
		succeeded += res.Succeeded
		skipped += res.Skipped
	}
	require.Equal(t, summary.Succeeded, succeeded)
	require.Equal(t, summary.Pending, skipped)
}

// Cancellation arriving after a worker crashed must not mask the crash.
func TestScrapeCrashNotMaskedByCancel(t *testing.T) {
	t.Parallel()

	table := newTable(6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emitter := &panickingEmitter{span: 1, stage: progress.StageSpanStart, inner: &recordingEmitter{}}
	extractor := scrape.ExtractorFunc(func(_ context.Context, url string) (scrape.Article, error) {
		if url == "https://site.test/4" {
			cancel()
		}
		return scrape.Article{Title: "T", Body: "B"}, nil
	})

	summary, err := New(extractor, emitter, nil, nil, nil).Scrape(ctx, table, 3)
	require.ErrorIs(t, err, scrape.ErrWorkerCrashed)
	require.NotErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "[2,4)")
	require.NotContains(t, err.Error(), "[4,6)")
	require.True(t, summary.Spans[1].Crashed)
	require.Equal(t, 2, summary.Spans[1].Skipped)
	require.Equal(t, 1, summary.Spans[2].Skipped)
	require.Equal(t, scrape.StatusPending, table.Rows[5].Status)
	require.Len(t, emitter.inner.Stage(progress.StageRunError), 1)
}

func TestScrapeCancelled(t *testing.T) {
	t.Parallel()

	table := newTable(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	extractor := scrape.ExtractorFunc(func(ctx context.Context, url string) (scrape.Article, error) {
		if url == "https://site.test/0" {
			cancel()
		}
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
		return scrape.Article{Title: "T", Body: "B"}, nil
	})

	summary, err := New(extractor, nil, nil, nil, nil).Scrape(ctx, table, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, scrape.ErrWorkerCrashed)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 7, summary.Pending)
}

func TestScrapeWithHub(t *testing.T) {
	t.Parallel()

	sink := &countingSink{}
	hub := progress.NewHub(progress.Config{MaxBatchEvents: 4, MaxBatchWait: 5 * time.Millisecond}, sink)

	_, err := New(constantArticle, hub, nil, nil, nil).Scrape(context.Background(), newTable(12), 3)
	require.NoError(t, err)
	require.NoError(t, hub.Close(context.Background()))
	// RUN_START + 3 SPAN_START + 12 ROW_DONE + 3 SPAN_DONE + RUN_DONE
	require.Equal(t, 20, sink.Total())
	require.Zero(t, hub.Dropped())
}

// panickingEmitter blows up on the first event of stage for span whose
// Completed count matches.
type panickingEmitter struct {
	span      int
	stage     progress.Stage
	completed int
	inner     *recordingEmitter
}

func (p *panickingEmitter) Emit(evt progress.Event) {
	if evt.Stage == p.stage && evt.Span == p.span && evt.Completed == p.completed {
		panic("emitter exploded")
	}
	p.inner.Emit(evt)
}

type countingSink struct {
	mu    sync.Mutex
	total int
}

func (c *countingSink) Consume(_ context.Context, batch []progress.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += len(batch)
	return nil
}

func (c *countingSink) Close(context.Context) error { return nil }

func (c *countingSink) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
