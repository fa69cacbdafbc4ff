package bk

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"
)

// listConcurrency bounds the number of member loads in flight during List.
const listConcurrency = 8

// Collection is a family of entities of one kind whose creation and deletion
// are mirrored in an index, so that the kind can be enumerated without
// scanning the store.
//
// Record and index writes are two ordered steps, not a transaction. When the
// second step fails the record stays reachable by key but the index drifts;
// drift is logged and tolerated by List, and reported by Drift. It is never
// repaired automatically.
type Collection[T any] struct {
	backend *Backend
	kind    string
	index   *Index
	initial func() T
	keyOf   func(T) string
}

// NewCollection builds a collection of kind indexed under indexName.
// keyOf extracts the record key from a value.
func NewCollection[T any](b *Backend, kind, indexName string, initial func() T, keyOf func(T) string) *Collection[T] {
	return &Collection[T]{
		backend: b,
		kind:    kind,
		index:   NewIndex(b, indexName),
		initial: initial,
		keyOf:   keyOf,
	}
}

// Kind returns the record kind of the members.
func (c *Collection[T]) Kind() string { return c.kind }

// Index returns the membership index.
func (c *Collection[T]) Index() *Index { return c.index }

// Entity returns the member entity for key, whether or not it exists.
func (c *Collection[T]) Entity(key string) *Entity[T] {
	return NewEntity(c.backend, c.kind, key, c.initial)
}

// Create saves value and then adds its key to the index.
func (c *Collection[T]) Create(ctx context.Context, value T) (T, error) {
	var zero T
	key := c.keyOf(value)
	if err := c.Entity(key).Save(ctx, value); err != nil {
		return zero, fmt.Errorf("creating %s %q: %w", c.kind, key, err)
	}
	c.addToIndex(ctx, key)
	return value, nil
}

// Ensure saves value only when no record exists under its key, indexing it
// on creation. It returns the stored state and whether this call created it.
func (c *Collection[T]) Ensure(ctx context.Context, value T) (T, bool, error) {
	var zero T
	key := c.keyOf(value)
	state, created, err := c.Entity(key).ensure(ctx, value)
	if err != nil {
		return zero, false, fmt.Errorf("ensuring %s %q: %w", c.kind, key, err)
	}
	if created {
		c.addToIndex(ctx, key)
	}
	return state, created, nil
}

// CreateIfAbsent is Create that fails with ErrAlreadyExists instead of
// overwriting an existing record.
func (c *Collection[T]) CreateIfAbsent(ctx context.Context, value T) (T, error) {
	var zero T
	state, created, err := c.Ensure(ctx, value)
	if err != nil {
		return zero, err
	}
	if !created {
		return zero, fmt.Errorf("%s %q: %w", c.kind, c.keyOf(value), ErrAlreadyExists)
	}
	return state, nil
}

// Delete removes the record and then its index entry. It reports whether a
// record existed; deleting a missing key is not an error.
func (c *Collection[T]) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := c.Entity(key).remove(ctx)
	if err != nil {
		return false, fmt.Errorf("deleting %s %q: %w", c.kind, key, err)
	}
	if err := c.index.Remove(ctx, key); err != nil {
		c.backend.logger.Warn("invariant drift: record deleted but still indexed",
			"kind", c.kind, "index", c.index.Name(), "key", key, "error", err)
	}
	return existed, nil
}

// List loads every indexed member in index order. Members whose record is
// missing are skipped and logged as drift.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	keys, err := c.index.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s index: %w", c.index.Name(), err)
	}

	type slot struct {
		value T
		found bool
	}
	slots := make([]slot, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			value, found, err := c.Entity(key).load(gctx)
			if err != nil {
				return fmt.Errorf("loading %s %q: %w", c.kind, key, err)
			}
			slots[i] = slot{value: value, found: found}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]T, 0, len(keys))
	for i, s := range slots {
		if !s.found {
			c.backend.logger.Warn("invariant drift: indexed record missing",
				"kind", c.kind, "index", c.index.Name(), "key", keys[i])
			continue
		}
		result = append(result, s.value)
	}
	return result, nil
}

// DriftReport describes disagreement between a collection's records and its index.
type DriftReport struct {
	Kind  string
	Index string
	// Dangling keys are indexed but have no record.
	Dangling []string
	// Unindexed keys have a record but no index entry. Only filled when the
	// store implements KeyScanner.
	Unindexed []string
	// Scanned is true when the store was enumerated for Unindexed.
	Scanned bool
}

// Clean reports whether no drift was found.
func (r DriftReport) Clean() bool {
	return len(r.Dangling) == 0 && len(r.Unindexed) == 0
}

// Drift compares the index with the stored records. It never writes.
func (c *Collection[T]) Drift(ctx context.Context) (DriftReport, error) {
	report := DriftReport{Kind: c.kind, Index: c.index.Name()}

	indexed, err := c.index.List(ctx)
	if err != nil {
		return report, fmt.Errorf("listing %s index: %w", c.index.Name(), err)
	}
	for _, key := range indexed {
		ok, err := c.backend.store.Exists(ctx, c.kind, key)
		if err != nil {
			return report, fmt.Errorf("checking %s %q: %w", c.kind, key, err)
		}
		if !ok {
			report.Dangling = append(report.Dangling, key)
		}
	}

	scanner, ok := c.backend.store.(KeyScanner)
	if !ok {
		return report, nil
	}
	stored, err := scanner.Keys(ctx, c.kind)
	if err != nil {
		return report, fmt.Errorf("scanning %s keys: %w", c.kind, err)
	}
	report.Scanned = true
	for _, key := range stored {
		if !slices.Contains(indexed, key) {
			report.Unindexed = append(report.Unindexed, key)
		}
	}
	return report, nil
}

func (c *Collection[T]) addToIndex(ctx context.Context, key string) {
	if err := c.index.Add(ctx, key); err != nil {
		c.backend.logger.Warn("invariant drift: record written but not indexed",
			"kind", c.kind, "index", c.index.Name(), "key", key, "error", err)
	}
}
