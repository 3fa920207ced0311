// Package batch runs a step over a list of items in fixed-size chunks, one
// transaction per chunk, tolerating per-item failures.
package batch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Isolator runs fn so that its writes can be undone without aborting the
// surrounding transaction (an SQL savepoint, for instance).
type Isolator interface {
	Isolate(ctx context.Context, fn func() error) error
}

// TxFunc opens a transaction, runs fn inside it and commits when fn returns
// nil. It rolls back otherwise.
type TxFunc[Tx any] func(ctx context.Context, fn func(tx Tx) error) error

// Options control chunking and failure handling.
type Options[T any] struct {
	ChunkSize int
	// ContinueOnError keeps going past failed items and failed chunks.
	// Without it the first failure rolls back its chunk and stops the run.
	ContinueOnError bool
	// Key labels an item in errors and logs. Defaults to its index.
	Key func(T) string
	Log zerolog.Logger
}

// ItemError describes one failed item.
type ItemError struct {
	Index   int
	Key     string
	Message string
}

// Result aggregates a run.
type Result struct {
	Succeeded    int
	Failed       int
	Errors       []ItemError
	ChunksFailed int
}

// Process runs step for every item. Items in a chunk run sequentially in
// that chunk's transaction, each inside tx.Isolate so a failing item is
// rolled back alone. A chunk whose transaction fails counts all its items as
// failed. The returned error is non-nil only when the run was stopped early.
func Process[T any, Tx Isolator](ctx context.Context, items []T, opts Options[T], begin TxFunc[Tx], step func(ctx context.Context, tx Tx, item T) error) (Result, error) {
	size := opts.ChunkSize
	if size <= 0 {
		size = len(items)
	}
	key := opts.Key
	if key == nil {
		key = func(T) string { return "" }
	}

	var res Result
	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+size, len(items))
		chunk := items[start:end]

		var (
			ok     int
			failed []ItemError
		)
		err := begin(ctx, func(tx Tx) error {
			ok, failed = 0, nil
			for i, item := range chunk {
				idx := start + i
				err := tx.Isolate(ctx, func() error { return step(ctx, tx, item) })
				if err == nil {
					ok++
					continue
				}
				ie := ItemError{Index: idx, Key: key(item), Message: err.Error()}
				failed = append(failed, ie)
				opts.Log.Warn().Err(err).Int("index", idx).Str("key", ie.Key).Msg("batch item failed")
				if !opts.ContinueOnError {
					return fmt.Errorf("item %d: %w", idx, err)
				}
			}
			return nil
		})

		if err == nil {
			res.Succeeded += ok
			res.Failed += len(failed)
			res.Errors = append(res.Errors, failed...)
			continue
		}

		res.ChunksFailed++
		res.Failed += len(chunk)
		res.Errors = append(res.Errors, chunkErrors(chunk, start, key, failed, err)...)
		opts.Log.Warn().Err(err).Int("chunk_start", start).Int("chunk_size", len(chunk)).Msg("batch chunk rolled back")
		if !opts.ContinueOnError {
			return res, err
		}
	}
	return res, nil
}

// chunkErrors reports every item of a rolled-back chunk: items that failed
// on their own keep their message, the rest carry the chunk error.
func chunkErrors[T any](chunk []T, start int, key func(T) string, failed []ItemError, err error) []ItemError {
	own := make(map[int]ItemError, len(failed))
	for _, ie := range failed {
		own[ie.Index] = ie
	}
	out := make([]ItemError, 0, len(chunk))
	for i, item := range chunk {
		idx := start + i
		if ie, ok := own[idx]; ok {
			out = append(out, ie)
			continue
		}
		out = append(out, ItemError{Index: idx, Key: key(item), Message: "chunk rolled back: " + err.Error()})
	}
	return out
}
