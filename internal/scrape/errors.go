package scrape

import "errors"

var (
	// ErrInvalidConfig is returned when the worker count is below one.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidInput is returned when the table is empty or lacks a URL column.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWorkerCrashed is returned when a worker panicked, or when a run
	// finishes with pending rows that cancellation does not account for.
	ErrWorkerCrashed = errors.New("worker crashed")
	// ErrRequestRefused is returned by a Fetcher that refused to send a
	// request at all, e.g. because robots.txt disallows it. Retrying cannot
	// change the outcome.
	ErrRequestRefused = errors.New("request refused")
)
