package bk

import (
	"context"
	"slices"
)

// IndexKind is the record kind under which every index is stored.
const IndexKind = "index"

// Index is an ordered, duplicate-free list of keys kept in a single record.
// Mutations are read-modify-writes of that record and are serialized by the
// record's key lock. An index is never updated atomically with the records
// it lists.
type Index struct {
	name   string
	entity *Entity[[]string]
}

// NewIndex returns the index stored under name.
func NewIndex(b *Backend, name string) *Index {
	return &Index{
		name:   name,
		entity: NewEntity(b, IndexKind, name, func() []string { return []string{} }),
	}
}

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Init writes an empty index record when none exists. It is idempotent and
// never touches an existing index.
func (i *Index) Init(ctx context.Context) error {
	_, _, err := i.entity.ensure(ctx, []string{})
	return err
}

// List returns the member keys in insertion order.
func (i *Index) List(ctx context.Context) ([]string, error) {
	return i.entity.State(ctx)
}

// Add appends key. Adding a member that is already present is a no-op.
func (i *Index) Add(ctx context.Context, key string) error {
	_, err := i.entity.Mutate(ctx, func(keys []string) ([]string, error) {
		if slices.Contains(keys, key) {
			return nil, errSkipWrite
		}
		return append(keys, key), nil
	})
	return err
}

// Remove drops key. Removing a missing member is a no-op.
func (i *Index) Remove(ctx context.Context, key string) error {
	_, err := i.entity.Mutate(ctx, func(keys []string) ([]string, error) {
		idx := slices.Index(keys, key)
		if idx < 0 {
			return nil, errSkipWrite
		}
		return slices.Delete(keys, idx, idx+1), nil
	})
	return err
}

// Contains reports whether key is a member.
func (i *Index) Contains(ctx context.Context, key string) (bool, error) {
	keys, err := i.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(keys, key), nil
}
