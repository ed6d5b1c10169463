// Package progress defines the event structures emitted by scrape workers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/articlescraper/internal/scrape"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StageSpanStart Stage = "SPAN_START"
	StageSpanDone  Stage = "SPAN_DONE"
	StageRowDone   Stage = "ROW_DONE"
)

// Event captures a single step of scrape progress.
type Event struct {
	// RunID identifies one dispatcher run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Span is the worker's span number; -1 for run-level events.
	Span int
	// Completed counts rows the span (or run) has finished so far.
	Completed int
	// Total is the number of rows in the span (or run).
	Total int
	// Status is the outcome of the row for ROW_DONE events.
	Status scrape.Status
	// Site optionally scopes row events to a host label.
	Site string
	// URL is the row's URL for ROW_DONE events.
	URL string
	// Dur captures row latency or run wall time.
	Dur time.Duration
	// Note carries low-volume context such as a row's error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSpanStart, StageSpanDone:
		if e.Span < 0 {
			return errors.New("span events require a span number")
		}
	case StageRowDone:
		if e.Span < 0 {
			return errors.New("row done requires a span number")
		}
		if !e.Status.Terminal() {
			return fmt.Errorf("row done requires a terminal status, got %q", e.Status)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Completed < 0 || e.Total < 0 || e.Completed > e.Total {
		return fmt.Errorf("completed %d out of range for total %d", e.Completed, e.Total)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
