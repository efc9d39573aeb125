// Package batch splits ordered record sequences into fixed-size chunks
// and folds a transform over them. Batching is a memory bound only: the
// combined result must be identical to a single-pass transform.
package batch

import (
	"errors"
	"fmt"
)

// ErrInvalidBatchSize is returned before any work happens when the
// requested chunk size is below the enforced minimum of 1.
var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// Process applies transform to consecutive chunks of at most batchSize
// records and merges chunk results with combine.
//
// An empty input returns the zero value of R without invoking transform.
// An error from transform aborts the whole operation immediately so the
// caller's transaction can roll back; chunks are never skipped.
func Process[T, R any](records []T, batchSize int, transform func([]T) (R, error), combine func(R, R) R) (R, error) {
	var acc R
	if batchSize < 1 {
		return acc, fmt.Errorf("%w: got %d", ErrInvalidBatchSize, batchSize)
	}
	if len(records) == 0 {
		return acc, nil
	}

	first := true
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		part, err := transform(records[start:end])
		if err != nil {
			var zero R
			return zero, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if first {
			acc = part
			first = false
			continue
		}
		acc = combine(acc, part)
	}
	return acc, nil
}

// SumInt64 folds an int64-valued extractor over records in batches. The
// extractor may reject a record, aborting the whole sum.
func SumInt64[T any](records []T, batchSize int, value func(T) (int64, error)) (int64, error) {
	return Process(records, batchSize,
		func(chunk []T) (int64, error) {
			var total int64
			for _, r := range chunk {
				v, err := value(r)
				if err != nil {
					return 0, err
				}
				total += v
			}
			return total, nil
		},
		func(a, b int64) int64 { return a + b },
	)
}

// Append concatenates per-chunk slices, preserving input order.
func Append[T, R any](records []T, batchSize int, transform func([]T) ([]R, error)) ([]R, error) {
	return Process(records, batchSize, transform,
		func(a, b []R) []R { return append(a, b...) },
	)
}
