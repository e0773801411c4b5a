package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfgo/testpulse/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func record(passed bool, ms float64) model.HistoryRecord {
	return model.HistoryRecord{
		Passed:    passed,
		Duration:  ms,
		Timestamp: "2026-01-02T03:04:05.000Z",
	}
}

func newTestStore(t *testing.T, maxRuns int) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".testpulse", "history.json")
	return NewStore(zerolog.Nop(), path, maxRuns)
}

func TestStore_LoadMissing(t *testing.T) {
	store := newTestStore(t, 10)

	h := store.Load()
	require.NotNil(t, h)
	require.Equal(t, 0, h.Len())
}

func TestStore_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated", content: `{"a :: TestA": [{"passed": tr`},
		{name: "not an object", content: `[1, 2, 3]`},
		{name: "wrong value type", content: `{"a :: TestA": "oops"}`},
		{name: "garbage", content: "\x00\x01binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, 10)
			require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0755))
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0644))

			h := store.Load()
			require.NotNil(t, h)
			require.Equal(t, 0, h.Len())
		})
	}
}

func TestStore_RecordAndTrim_KeepsMostRecent(t *testing.T) {
	store := newTestStore(t, 3)
	h := New()
	id := model.TestID("a_test.go :: TestA")

	for i := 1; i <= 3; i++ {
		store.RecordAndTrim(h, id, record(true, float64(i)))
	}
	require.Len(t, h.Records(id), 3)

	store.RecordAndTrim(h, id, record(false, 4))

	got := h.Records(id)
	require.Len(t, got, 3)
	require.Equal(t, []float64{2, 3, 4}, durations(got))
	require.False(t, got[2].Passed)
}

func TestStore_RecordAndTrim_WindowInvariant(t *testing.T) {
	for _, maxRuns := range []int{1, 2, 5, 10} {
		t.Run(fmt.Sprintf("window %d", maxRuns), func(t *testing.T) {
			store := newTestStore(t, maxRuns)
			h := New()
			ids := []model.TestID{"a :: A", "b :: B", "c :: C"}
			appended := map[model.TestID][]float64{}

			// Interleave identities so order across identities varies.
			for i := 0; i < 25; i++ {
				id := ids[(i*7)%len(ids)]
				store.RecordAndTrim(h, id, record(i%2 == 0, float64(i)))
				appended[id] = append(appended[id], float64(i))

				for _, other := range ids {
					require.LessOrEqual(t, len(h.Records(other)), maxRuns)
				}
			}

			for _, id := range ids {
				want := appended[id]
				if len(want) > maxRuns {
					want = want[len(want)-maxRuns:]
				}
				require.Equal(t, want, durations(h.Records(id)), "identity %s", id)
			}
		})
	}
}

func TestStore_RecordsReturnsCopy(t *testing.T) {
	store := newTestStore(t, 3)
	h := New()
	id := model.TestID("a :: A")
	store.RecordAndTrim(h, id, record(true, 1))

	got := h.Records(id)
	got[0].Duration = 999

	require.Equal(t, float64(1), h.Records(id)[0].Duration)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t, 10)
	h := New()
	store.RecordAndTrim(h, "z_test.go :: TestZ", record(true, 12.5))
	store.RecordAndTrim(h, "a_test.go :: TestA", record(false, 3))
	store.RecordAndTrim(h, "z_test.go :: TestZ", record(false, 14))

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, h))
	first, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	loaded := store.Load()
	require.Equal(t, []model.TestID{"z_test.go :: TestZ", "a_test.go :: TestA"}, loaded.IDs())
	require.Equal(t, h.Records("z_test.go :: TestZ"), loaded.Records("z_test.go :: TestZ"))

	require.NoError(t, store.Save(ctx, loaded))
	second, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestStore_SaveOverwritesWithoutTempFiles(t *testing.T) {
	store := newTestStore(t, 10)
	ctx := context.Background()

	h := New()
	store.RecordAndTrim(h, "a :: A", record(true, 1))
	require.NoError(t, store.Save(ctx, h))

	h2 := New()
	store.RecordAndTrim(h2, "b :: B", record(false, 2))
	require.NoError(t, store.Save(ctx, h2))

	loaded := store.Load()
	require.Equal(t, []model.TestID{"b :: B"}, loaded.IDs())

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp")
	}
}

func TestStore_SaveFailureKeepsPreviousSnapshot(t *testing.T) {
	store := newTestStore(t, 10)
	h := New()
	store.RecordAndTrim(h, "a :: A", record(true, 1))
	require.NoError(t, store.Save(context.Background(), h))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Hold the lock so the save has to wait and observes the cancelled context.
	other := NewStore(zerolog.Nop(), store.Path(), 10)
	holder := lockFor(t, other.Path())
	defer holder()

	h2 := New()
	store.RecordAndTrim(h2, "b :: B", record(false, 2))
	require.Error(t, store.Save(ctx, h2))

	loaded := store.Load()
	require.Equal(t, []model.TestID{"a :: A"}, loaded.IDs())
}

func TestStore_LoadTrimsShrunkWindow(t *testing.T) {
	big := newTestStore(t, 10)
	h := New()
	for i := 0; i < 6; i++ {
		big.RecordAndTrim(h, "a :: A", record(true, float64(i)))
	}
	require.NoError(t, big.Save(context.Background(), h))

	small := NewStore(zerolog.Nop(), big.Path(), 2)
	loaded := small.Load()
	require.Equal(t, []float64{4, 5}, durations(loaded.Records("a :: A")))
}

func TestNewStore_DefaultWindow(t *testing.T) {
	store := NewStore(zerolog.Nop(), "history.json", 0)
	require.Equal(t, DefaultMaxRuns, store.MaxRuns())
}

func TestDefaultPath(t *testing.T) {
	require.Equal(t, filepath.Join("/src/app", ".testpulse", "history.json"), DefaultPath("/src/app"))
	require.Equal(t, filepath.Join(".testpulse", "history.json"), DefaultPath(""))
}

func TestWriteFileAtomic_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "file.json")
	require.Error(t, WriteFileAtomic(path, []byte("{}"), 0644))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func durations(records []model.HistoryRecord) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		out = append(out, r.Duration)
	}
	return out
}

func lockFor(t *testing.T, path string) func() {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lock := newLock(path)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	require.NoError(t, err)
	require.True(t, locked)
	return func() { _ = lock.Unlock() }
}
