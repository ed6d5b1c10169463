package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/articlescraper/internal/progress"
	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// LogSink writes progress events as structured log lines. Failed rows are
// logged at Warn so they stand out in a long run; everything else is Debug
// except run and span boundaries.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("completed", evt.Completed),
			zap.Int("total", evt.Total),
		}
		if evt.Span >= 0 {
			fields = append(fields, zap.Int("span", evt.Span))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Status != "" {
			fields = append(fields, zap.String("status", string(evt.Status)))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}

		switch {
		case evt.Stage == progress.StageRunError:
			s.logger.Error("scrape run failed", fields...)
		case evt.Stage == progress.StageRowDone && evt.Status == scrape.StatusError:
			s.logger.Warn("row failed", fields...)
		case evt.Stage == progress.StageRowDone:
			s.logger.Debug("row done", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
