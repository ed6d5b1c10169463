package scrape

import (
	"fmt"
	"sort"
)

// Span is a half-open row range [Start, End) owned by one worker.
type Span struct {
	Start int
	End   int
}

// Len returns the number of rows in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Empty reports whether the span covers no rows.
func (s Span) Empty() bool {
	return s.End <= s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Partition splits [0, totalRows) into exactly workerCount contiguous spans of
// ceil(totalRows/workerCount) rows. Trailing spans may be short or empty.
func Partition(totalRows, workerCount int) ([]Span, error) {
	if workerCount < 1 {
		return nil, fmt.Errorf("%w: worker count must be >= 1, got %d", ErrInvalidConfig, workerCount)
	}
	if totalRows < 0 {
		return nil, fmt.Errorf("%w: total rows must be >= 0, got %d", ErrInvalidInput, totalRows)
	}
	chunk := (totalRows + workerCount - 1) / workerCount
	spans := make([]Span, workerCount)
	for i := range spans {
		spans[i] = Span{
			Start: min(i*chunk, totalRows),
			End:   min((i+1)*chunk, totalRows),
		}
	}
	return spans, nil
}

func checkDisjoint(spans []Span) error {
	sorted := make([]Span, 0, len(spans))
	for _, s := range spans {
		if !s.Empty() {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start < sorted[i-1].End {
			return fmt.Errorf("spans %s and %s overlap", sorted[i-1], sorted[i])
		}
	}
	return nil
}
