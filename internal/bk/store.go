package bk

import "context"

// RecordStore provides an interface for record storage backends.
// A record is addressed by (kind, key) and holds one JSON document that is
// always replaced whole. Every operation is atomic for a single (kind, key)
// pair; nothing is atomic across pairs.
type RecordStore interface {
	// Get returns the stored value. found is false when no record exists;
	// a missing record is never an error.
	Get(ctx context.Context, kind, key string) (value []byte, found bool, err error)

	// Put replaces the value stored under (kind, key).
	Put(ctx context.Context, kind, key string, value []byte) error

	// Delete removes the record and reports whether one existed.
	Delete(ctx context.Context, kind, key string) (bool, error)

	// Exists reports whether a record is stored under (kind, key).
	Exists(ctx context.Context, kind, key string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// KeyScanner is implemented by backends that can enumerate the keys of a
// kind without going through an index. It is only used by reconciliation.
type KeyScanner interface {
	// Keys returns every key stored for kind, sorted lexically.
	Keys(ctx context.Context, kind string) ([]string, error)
}
