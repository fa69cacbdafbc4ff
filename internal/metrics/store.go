package metrics

import (
	"context"
	"time"

	"bk-go/internal/bk"
)

// Store operation labels.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDelete = "delete"
	OpExists = "exists"
	OpKeys   = "keys"
)

// Result labels besides the bk.ErrorKind values used for failures.
const (
	ResultOK   = "ok"
	ResultMiss = "miss"
)

// InstrumentedStore counts and times every call to the wrapped store.
type InstrumentedStore struct {
	inner   bk.RecordStore
	metrics *Metrics
}

type scanningInstrumentedStore struct {
	*InstrumentedStore
	scanner bk.KeyScanner
}

var (
	_ bk.RecordStore = (*InstrumentedStore)(nil)
	_ bk.KeyScanner  = scanningInstrumentedStore{}
)

// InstrumentStore wraps inner. The result implements bk.KeyScanner exactly
// when inner does.
func (m *Metrics) InstrumentStore(inner bk.RecordStore) bk.RecordStore {
	s := &InstrumentedStore{inner: inner, metrics: m}
	if scanner, ok := inner.(bk.KeyScanner); ok {
		return scanningInstrumentedStore{InstrumentedStore: s, scanner: scanner}
	}
	return s
}

func (s *InstrumentedStore) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	start := time.Now()
	value, found, err := s.inner.Get(ctx, kind, key)
	result := ResultOK
	if err == nil && !found {
		result = ResultMiss
	}
	s.observe(OpGet, kind, start, result, err)
	return value, found, err
}

func (s *InstrumentedStore) Put(ctx context.Context, kind, key string, value []byte) error {
	start := time.Now()
	err := s.inner.Put(ctx, kind, key, value)
	s.observe(OpPut, kind, start, ResultOK, err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, kind, key string) (bool, error) {
	start := time.Now()
	existed, err := s.inner.Delete(ctx, kind, key)
	result := ResultOK
	if err == nil && !existed {
		result = ResultMiss
	}
	s.observe(OpDelete, kind, start, result, err)
	return existed, err
}

func (s *InstrumentedStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, kind, key)
	s.observe(OpExists, kind, start, ResultOK, err)
	return ok, err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() bk.RecordStore { return s.inner }

func (s scanningInstrumentedStore) Keys(ctx context.Context, kind string) ([]string, error) {
	start := time.Now()
	keys, err := s.scanner.Keys(ctx, kind)
	s.observe(OpKeys, kind, start, ResultOK, err)
	return keys, err
}

func (s *InstrumentedStore) observe(op, kind string, start time.Time, result string, err error) {
	if err != nil {
		result = bk.ErrorKind(err)
	}
	s.metrics.storeOps.WithLabelValues(op, kind, result).Inc()
	s.metrics.storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
