package bk_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/testutil"
)

type item struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func newItems(b *bk.Backend) *bk.Collection[item] {
	return bk.NewCollection(b, "item", "items",
		func() item { return item{} },
		func(i item) string { return i.ID })
}

func ids(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// recordingLogger keeps warnings for assertions.
type recordingLogger struct {
	bk.NopLogger
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warned(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warns {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestCollection_CreateAndList(t *testing.T) {
	ctx := context.Background()
	c := newItems(bk.NewBackend(testutil.NewTestStore(t), nil))

	for _, id := range []string{"c", "a", "b"} {
		if _, err := c.Create(ctx, item{ID: id, Label: "label " + id}); err != nil {
			t.Fatalf("Create(%q) error = %v", id, err)
		}
	}
	// Re-creating replaces the record without duplicating the index entry.
	if _, err := c.Create(ctx, item{ID: "a", Label: "replaced"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []string{"c", "a", "b"}; !slices.Equal(ids(got), want) {
		t.Errorf("List() ids = %v, want %v", ids(got), want)
	}
	if got[1].Label != "replaced" {
		t.Errorf("List()[1].Label = %q, want %q", got[1].Label, "replaced")
	}
}

func TestCollection_ListManyMembersKeepsOrder(t *testing.T) {
	ctx := context.Background()
	c := newItems(bk.NewBackend(testutil.NewTestStore(t), nil))

	var want []string
	for i := 40; i > 0; i-- {
		id := fmt.Sprintf("item-%02d", i)
		want = append(want, id)
		if _, err := c.Create(ctx, item{ID: id}); err != nil {
			t.Fatalf("Create(%q) error = %v", id, err)
		}
	}

	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !slices.Equal(ids(got), want) {
		t.Errorf("List() ids = %v, want %v", ids(got), want)
	}
}

func TestCollection_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	c := newItems(bk.NewBackend(testutil.NewTestStore(t), nil))

	if _, err := c.CreateIfAbsent(ctx, item{ID: "a", Label: "first"}); err != nil {
		t.Fatalf("CreateIfAbsent() error = %v", err)
	}
	_, err := c.CreateIfAbsent(ctx, item{ID: "a", Label: "second"})
	if !errors.Is(err, bk.ErrAlreadyExists) {
		t.Fatalf("CreateIfAbsent() error = %v, want ErrAlreadyExists", err)
	}

	got, _ := c.Entity("a").State(ctx)
	if got.Label != "first" {
		t.Errorf("Label = %q, want %q", got.Label, "first")
	}
}

func TestCollection_Ensure(t *testing.T) {
	ctx := context.Background()
	c := newItems(bk.NewBackend(testutil.NewTestStore(t), nil))

	got, created, err := c.Ensure(ctx, item{ID: "a", Label: "first"})
	if err != nil || !created || got.Label != "first" {
		t.Fatalf("Ensure() = %+v, %v, %v; want first, true, nil", got, created, err)
	}
	got, created, err = c.Ensure(ctx, item{ID: "a", Label: "second"})
	if err != nil || created || got.Label != "first" {
		t.Fatalf("second Ensure() = %+v, %v, %v; want first, false, nil", got, created, err)
	}

	keys, _ := c.Index().List(ctx)
	if !slices.Equal(keys, []string{"a"}) {
		t.Errorf("index = %v, want [a]", keys)
	}
}

func TestCollection_Delete(t *testing.T) {
	ctx := context.Background()
	c := newItems(bk.NewBackend(testutil.NewTestStore(t), nil))

	if _, err := c.Create(ctx, item{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create(ctx, item{ID: "b"}); err != nil {
		t.Fatal(err)
	}

	deleted, err := c.Delete(ctx, "a")
	if err != nil || !deleted {
		t.Fatalf("Delete(a) = %v, %v; want true, nil", deleted, err)
	}
	deleted, err = c.Delete(ctx, "a")
	if err != nil || deleted {
		t.Fatalf("second Delete(a) = %v, %v; want false, nil", deleted, err)
	}

	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !slices.Equal(ids(got), []string{"b"}) {
		t.Errorf("List() ids = %v, want [b]", ids(got))
	}
}

func TestCollection_IndexAddFailureIsDrift(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(testutil.NewTestStore(t))
	logger := &recordingLogger{}
	c := newItems(bk.NewBackend(faulty, logger))

	faulty.FailOn(testutil.OpPut, bk.IndexKind)
	if _, err := c.Create(ctx, item{ID: "orphan"}); err != nil {
		t.Fatalf("Create() error = %v, want nil (index failure is drift)", err)
	}
	faulty.Heal()

	if !logger.warned("invariant drift") {
		t.Error("expected an invariant drift warning")
	}

	// The record is reachable by key but not listed.
	exists, err := c.Entity("orphan").Exists(ctx)
	if err != nil || !exists {
		t.Errorf("Exists() = %v, %v; want true, nil", exists, err)
	}
	got, _ := c.List(ctx)
	if len(got) != 0 {
		t.Errorf("List() = %v, want empty", ids(got))
	}

	report, err := c.Drift(ctx)
	if err != nil {
		t.Fatalf("Drift() error = %v", err)
	}
	if !report.Scanned {
		t.Error("Drift().Scanned = false, want true")
	}
	if !slices.Equal(report.Unindexed, []string{"orphan"}) {
		t.Errorf("Drift().Unindexed = %v, want [orphan]", report.Unindexed)
	}
	if report.Clean() {
		t.Error("Drift().Clean() = true, want false")
	}
}

func TestCollection_IndexRemoveFailureIsDrift(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(testutil.NewTestStore(t))
	logger := &recordingLogger{}
	c := newItems(bk.NewBackend(faulty, logger))

	if _, err := c.Create(ctx, item{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Create(ctx, item{ID: "b"}); err != nil {
		t.Fatal(err)
	}

	faulty.FailOn(testutil.OpPut, bk.IndexKind)
	deleted, err := c.Delete(ctx, "a")
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v; want true, nil", deleted, err)
	}
	faulty.Heal()

	// The dangling index entry is skipped, never returned.
	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !slices.Equal(ids(got), []string{"b"}) {
		t.Errorf("List() ids = %v, want [b]", ids(got))
	}
	if !logger.warned("indexed record missing") {
		t.Error("expected a warning for the dangling index entry")
	}

	report, err := c.Drift(ctx)
	if err != nil {
		t.Fatalf("Drift() error = %v", err)
	}
	if !slices.Equal(report.Dangling, []string{"a"}) {
		t.Errorf("Drift().Dangling = %v, want [a]", report.Dangling)
	}
	if len(report.Unindexed) != 0 {
		t.Errorf("Drift().Unindexed = %v, want empty", report.Unindexed)
	}
}

func TestCollection_RecordWriteFailure(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(testutil.NewTestStore(t))
	c := newItems(bk.NewBackend(faulty, nil))

	faulty.FailOn(testutil.OpPut, "item")
	_, err := c.Create(ctx, item{ID: "a"})
	if !errors.Is(err, bk.ErrUnavailable) {
		t.Fatalf("Create() error = %v, want ErrUnavailable", err)
	}
	faulty.Heal()

	keys, _ := c.Index().List(ctx)
	if len(keys) != 0 {
		t.Errorf("index = %v, want empty after a failed record write", keys)
	}
}

func TestCollection_ListFailsOnUnreadableMember(t *testing.T) {
	ctx := context.Background()
	faulty := testutil.NewFaultyStore(testutil.NewTestStore(t))
	c := newItems(bk.NewBackend(faulty, nil))

	if _, err := c.Create(ctx, item{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	faulty.FailOn(testutil.OpGet, "item")

	if _, err := c.List(ctx); !errors.Is(err, bk.ErrUnavailable) {
		t.Errorf("List() error = %v, want ErrUnavailable", err)
	}
}

func TestCollection_DriftWithoutScanner(t *testing.T) {
	ctx := context.Background()
	c := newItems(bk.NewBackend(unscannable{testutil.NewTestStore(t)}, nil))

	if _, err := c.Create(ctx, item{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	report, err := c.Drift(ctx)
	if err != nil {
		t.Fatalf("Drift() error = %v", err)
	}
	if report.Scanned {
		t.Error("Drift().Scanned = true for a store without KeyScanner")
	}
	if !report.Clean() {
		t.Errorf("Drift() = %+v, want clean", report)
	}
}

// unscannable exposes only the RecordStore methods of the wrapped store.
type unscannable struct{ bk.RecordStore }
