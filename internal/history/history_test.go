package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) = %T, want nil", driver, st)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}

func testRoundTrip(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := Record{
			At:       base.Add(time.Duration(i) * time.Minute),
			Kind:     KindPost,
			AdminID:  "111111111",
			Channels: []string{"-1001234567890"},
			Sent:     i,
			Failed:   0,
			TookMS:   int64(100 * i),
		}
		if i == 2 {
			r.Kind = KindScheduled
			r.JobID = "job-2"
		}
		if err := st.AppendReport(ctx, r); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := st.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("recent len = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Sent != 4 || got[2].Sent != 2 {
		t.Fatalf("order wrong: %+v", got)
	}
	if got[2].JobID != "job-2" || got[2].Kind != KindScheduled {
		t.Fatalf("job record = %+v", got[2])
	}
	if diff := cmp.Diff([]string{"-1001234567890"}, got[0].Channels); diff != "" {
		t.Errorf("channels (-want +got):\n%s", diff)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	testRoundTrip(t, st)
}

func TestFileStoreRecentEmptyAndLimit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	got, err := st.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent on empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("recent = %v, want empty", got)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	testRoundTrip(t, st)
}
