// Package scrape defines the row table, spans, outcome vocabulary and the
// extractor contract shared by the partitioner, workers and dispatcher.
package scrape
