package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"subreddit-notifier/pkg/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func entry(fullID string) stream.Entry {
	return stream.Entry{FullID: fullID, ShortID: fullID[3:]}
}

// newestFirst builds a page in the source's order from oldest-first IDs.
func newestFirst(ids ...string) []stream.Entry {
	page := make([]stream.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		page = append(page, entry(ids[i]))
	}
	return page
}

type fakeFetcher struct {
	pages       map[string][]stream.Entry // keyed by before cursor
	newest      stream.Entry
	newestCalls int
}

func (f *fakeFetcher) FetchPage(_ context.Context, before string) ([]stream.Entry, error) {
	page := f.pages[before]
	delete(f.pages, before)
	return page, nil
}

func (f *fakeFetcher) Newest(context.Context) (stream.Entry, error) {
	f.newestCalls++
	return f.newest, nil
}

type fakeCursorStore struct {
	cursors map[string]string
	saves   []string
	saveErr error
	loadErr error
}

func newFakeCursorStore() *fakeCursorStore {
	return &fakeCursorStore{cursors: map[string]string{}}
}

func (s *fakeCursorStore) LoadCursor(_ context.Context, streamKey string) (string, bool, error) {
	if s.loadErr != nil {
		return "", false, s.loadErr
	}
	cursor, ok := s.cursors[streamKey]
	return cursor, ok, nil
}

func (s *fakeCursorStore) SaveCursor(_ context.Context, streamKey, afterFullID string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cursors[streamKey] = afterFullID
	s.saves = append(s.saves, afterFullID)
	return nil
}

func TestRunEmitsOldestFirstAndPersistsPerItem(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]stream.Entry{
		"t3_000": newestFirst("t3_001", "t3_002", "t3_003", "t3_004", "t3_005"),
	}}
	store := newFakeCursorStore()

	ctx, cancel := context.WithCancel(context.Background())
	var delivered []string
	consumer := func(_ context.Context, e stream.Entry) error {
		delivered = append(delivered, e.FullID)
		if len(delivered) == 5 {
			cancel()
		}
		return nil
	}

	w := New("golang_new", fetcher, store, consumer, testLogger())
	if err := w.Resolve(ctx, Options{After: "t3_000"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"t3_001", "t3_002", "t3_003", "t3_004", "t3_005"}
	if fmt.Sprint(delivered) != fmt.Sprint(want) {
		t.Errorf("Delivered order = %v, want %v", delivered, want)
	}

	// Per-item persistence: the Nth save equals the Nth emitted entry.
	for i, id := range want {
		if i >= len(store.saves) || store.saves[i] != id {
			t.Fatalf("Save %d = %v, want %s (saves: %v)", i, store.saves[i:], id, store.saves)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		persisted  string
		want       string
		wantNewest int
	}{
		{
			name:      "explicit override wins over persisted cursor",
			opts:      Options{After: "t3_override"},
			persisted: "t3_saved",
			want:      "t3_override",
		},
		{
			name:       "reset ignores persisted cursor",
			opts:       Options{Reset: true},
			persisted:  "t3_saved",
			want:       "t3_newest",
			wantNewest: 1,
		},
		{
			name:      "persisted cursor resumes",
			opts:      Options{},
			persisted: "t3_saved",
			want:      "t3_saved",
		},
		{
			name:       "no cursor baselines on newest",
			opts:       Options{},
			want:       "t3_newest",
			wantNewest: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{newest: entry("t3_newest")}
			store := newFakeCursorStore()
			if tt.persisted != "" {
				store.cursors["golang_new"] = tt.persisted
			}

			w := New("golang_new", fetcher, store, nil, testLogger())
			if err := w.Resolve(context.Background(), tt.opts); err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if w.after != tt.want {
				t.Errorf("Resolved cursor = %q, want %q", w.after, tt.want)
			}
			if fetcher.newestCalls != tt.wantNewest {
				t.Errorf("Newest called %d times, want %d", fetcher.newestCalls, tt.wantNewest)
			}
		})
	}
}

func TestResolveOnlyOnce(t *testing.T) {
	w := New("golang_new", &fakeFetcher{}, newFakeCursorStore(), nil, testLogger())
	if err := w.Resolve(context.Background(), Options{After: "t3_a"}); err != nil {
		t.Fatalf("First Resolve returned error: %v", err)
	}
	if err := w.Resolve(context.Background(), Options{After: "t3_b"}); err == nil {
		t.Error("Second Resolve should fail; the choice is made exactly once per process")
	}
}

func TestRunRequiresResolve(t *testing.T) {
	w := New("golang_new", &fakeFetcher{}, newFakeCursorStore(), nil, testLogger())
	if err := w.Run(context.Background()); err == nil {
		t.Error("Run without Resolve should fail")
	}
}

func TestConsumerErrorStopsWithoutAdvancingCursor(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]stream.Entry{
		"t3_000": newestFirst("t3_001", "t3_002", "t3_003", "t3_004", "t3_005"),
	}}
	store := newFakeCursorStore()

	boom := errors.New("publish failed")
	var delivered []string
	consumer := func(_ context.Context, e stream.Entry) error {
		if e.FullID == "t3_004" {
			return boom
		}
		delivered = append(delivered, e.FullID)
		return nil
	}

	w := New("golang_new", fetcher, store, consumer, testLogger())
	if err := w.Resolve(context.Background(), Options{After: "t3_000"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	err := w.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want wrapped publish failure", err)
	}

	if got := store.cursors["golang_new"]; got != "t3_003" {
		t.Errorf("Persisted cursor = %q, want t3_003 (not advanced past the failed entry)", got)
	}
}

// TestCrashResume simulates a crash after item 3 of 5 and verifies that a
// fresh walker re-delivers items 4 and 5 only. With per-item persistence
// the persisted cursor at crash time is exactly item 3.
func TestCrashResume(t *testing.T) {
	store := newFakeCursorStore()

	// First run: consumer crashes on the 4th item.
	fetcher := &fakeFetcher{pages: map[string][]stream.Entry{
		"t3_000": newestFirst("t3_001", "t3_002", "t3_003", "t3_004", "t3_005"),
	}}
	consumer := func(_ context.Context, e stream.Entry) error {
		if e.FullID == "t3_004" {
			return errors.New("crash")
		}
		return nil
	}
	w := New("golang_new", fetcher, store, consumer, testLogger())
	if err := w.Resolve(context.Background(), Options{After: "t3_000"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("Expected first run to fail")
	}

	// Restart: the source now serves the entries after the persisted
	// cursor. Items 1-3 must not be re-delivered.
	fetcher2 := &fakeFetcher{pages: map[string][]stream.Entry{
		"t3_003": newestFirst("t3_004", "t3_005"),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	var redelivered []string
	consumer2 := func(_ context.Context, e stream.Entry) error {
		redelivered = append(redelivered, e.FullID)
		if len(redelivered) == 2 {
			cancel()
		}
		return nil
	}
	w2 := New("golang_new", fetcher2, store, consumer2, testLogger())
	if err := w2.Resolve(ctx, Options{}); err != nil {
		t.Fatalf("Resolve on restart returned error: %v", err)
	}
	if err := w2.Run(ctx); err != nil {
		t.Fatalf("Run on restart returned error: %v", err)
	}

	want := []string{"t3_004", "t3_005"}
	if fmt.Sprint(redelivered) != fmt.Sprint(want) {
		t.Errorf("Redelivered = %v, want %v", redelivered, want)
	}
}

func TestDrainPersistsCursorOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]stream.Entry{
		"t3_000": newestFirst("t3_001"),
	}}
	store := newFakeCursorStore()

	ctx, cancel := context.WithCancel(context.Background())
	consumer := func(_ context.Context, _ stream.Entry) error {
		cancel()
		return nil
	}

	w := New("golang_new", fetcher, store, consumer, testLogger())
	if err := w.Resolve(ctx, Options{After: "t3_000"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v, want nil after drain", err)
	}
	if got := store.cursors["golang_new"]; got != "t3_001" {
		t.Errorf("Drained cursor = %q, want t3_001", got)
	}
}

func TestDrainFailureStillShutsDownCleanly(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := newFakeCursorStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New("golang_new", fetcher, store, nil, testLogger())
	if err := w.Resolve(context.Background(), Options{After: "t3_001"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	store.saveErr = errors.New("store down")
	if err := w.Run(ctx); err != nil {
		t.Errorf("Run returned %v, want nil; shutdown must complete even when the drain save fails", err)
	}
}
