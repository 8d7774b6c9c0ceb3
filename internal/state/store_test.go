package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

const testOwner = "111111111"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenInitializesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("document not persisted: %v", err)
	}

	doc := s.Snapshot()
	if diff := cmp.Diff([]string{testOwner}, doc.Admins); diff != "" {
		t.Errorf("admins mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultSettings(), doc.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRecoversFromCorruptDocument(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	doc := s.Snapshot()
	if len(doc.Admins) != 1 || doc.Admins[0] != testOwner {
		t.Fatalf("admins = %v, want [%s]", doc.Admins, testOwner)
	}

	// The reset document must be written back.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("persisted document still corrupt: %v", err)
	}
}

func TestMutatePersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.AddChannel("-1001234567890", Channel{Name: "Ops", Type: ChannelPrivate}); err != nil {
		t.Fatalf("add channel: %v", err)
	}
	if _, err := s.AddAdmin("222222222"); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	_ = s.Close()

	s2, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	doc := s2.Snapshot()
	if _, ok := doc.Channels["-1001234567890"]; !ok {
		t.Fatal("channel lost on reopen")
	}
	if !containsString(doc.Admins, "222222222") {
		t.Fatal("admin lost on reopen")
	}
}

func TestRemoveAdminRefusesOwner(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if _, err := s.AddAdmin("222222222"); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	before := s.Admins()

	removed, err := s.RemoveAdmin(testOwner)
	if err != nil {
		t.Fatalf("remove owner: %v", err)
	}
	if removed {
		t.Fatal("owner removal reported true")
	}
	if diff := cmp.Diff(before, s.Admins()); diff != "" {
		t.Errorf("admin set changed (-want +got):\n%s", diff)
	}

	removed, err = s.RemoveAdmin("222222222")
	if err != nil || !removed {
		t.Fatalf("remove admin = %v, %v; want true, nil", removed, err)
	}
	if s.IsAdmin("222222222") {
		t.Fatal("admin still present after removal")
	}
}

func TestAddAdminIdempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	added, err := s.AddAdmin("333333333")
	if err != nil || !added {
		t.Fatalf("first add = %v, %v", added, err)
	}
	added, err = s.AddAdmin("333333333")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if added {
		t.Fatal("second add reported true")
	}
	if got := len(s.Admins()); got != 2 {
		t.Fatalf("admin count = %d, want 2", got)
	}
}

func TestDeleteScheduledTwice(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	post := ScheduledPost{
		ScheduleTime: "2026-09-01 10:00:00",
		Messages:     []batch.Message{batch.Text("hi")},
		Channels:     []string{"-1001234567890"},
		AdminID:      testOwner,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.PutScheduled("job-1", post); err != nil {
		t.Fatalf("put: %v", err)
	}

	found, err := s.DeleteScheduled("job-1")
	if err != nil || !found {
		t.Fatalf("first delete = %v, %v; want true, nil", found, err)
	}
	found, err = s.DeleteScheduled("job-1")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if found {
		t.Fatal("second delete reported found")
	}
}

func TestUpdateSettingsClamps(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.UpdateSettings(func(st *Settings) {
		st.DelaySeconds = -3
		st.MaxRetries = 0
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DelaySeconds != 0 {
		t.Errorf("delay = %v, want 0", got.DelaySeconds)
	}
	if got.MaxRetries != 1 {
		t.Errorf("retries = %d, want 1", got.MaxRetries)
	}
}

func TestRecordDispatchAccounting(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	at := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)

	if err := s.RecordDispatch(testOwner, 3, 1, []string{"-1001234567890"}, at); err != nil {
		t.Fatalf("record: %v", err)
	}
	doc := s.Snapshot()
	if doc.Stats.TotalPosts != 3 || doc.Stats.TotalBatches != 1 {
		t.Fatalf("stats = %+v", doc.Stats)
	}
	if doc.Stats.LastPostAt == nil || !doc.Stats.LastPostAt.Equal(at) {
		t.Fatalf("last_post_at = %v, want %v", doc.Stats.LastPostAt, at)
	}
	as := doc.AdminStats[testOwner]
	if as.Posts != 3 || as.Batches != 1 {
		t.Fatalf("admin stats = %+v", as)
	}
	day := doc.PostAnalytics["2026-08-21"]
	if day.Posts != 3 || day.Batches != 1 || day.Failures != 1 {
		t.Fatalf("day stats = %+v", day)
	}

	// A fully failed batch still counts the batch but not a post and
	// leaves the last-post marker alone.
	if err := s.RecordDispatch(testOwner, 0, 2, []string{"-1001234567890"}, at.Add(time.Hour)); err != nil {
		t.Fatalf("record: %v", err)
	}
	doc = s.Snapshot()
	if doc.Stats.TotalPosts != 3 || doc.Stats.TotalBatches != 2 {
		t.Fatalf("stats after failure = %+v", doc.Stats)
	}
	if !doc.Stats.LastPostAt.Equal(at) {
		t.Fatalf("last_post_at moved on failed batch: %v", doc.Stats.LastPostAt)
	}
}

func TestScheduledPostAtLenient(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	tests := []struct {
		raw    string
		wantOK bool
	}{
		{"2026-09-01 10:00:00", true},
		{"2026-09-01 10:00", true},
		{"2026-09-01T10:00:00Z", true},
		{"not a time", false},
		{"", false},
	}
	for _, tt := range tests {
		_, ok := ScheduledPost{ScheduleTime: tt.raw}.At(loc)
		if ok != tt.wantOK {
			t.Errorf("At(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
		}
	}
}

func TestMalformedScheduleTimeSurvivesLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutScheduled("bad", ScheduledPost{
		ScheduleTime: "garbage",
		Messages:     []batch.Message{batch.Text("x")},
		Channels:     []string{"-1001234567890"},
		AdminID:      testOwner,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = s.Close()

	s2, err := Open(path, testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	jobs := s2.ListScheduled()
	job, ok := jobs["bad"]
	if !ok {
		t.Fatal("malformed job dropped at load; expiry owns its removal")
	}
	if _, parsed := job.At(time.UTC); parsed {
		t.Fatal("garbage time parsed")
	}
}

func TestChannelTypeDecodeUnknown(t *testing.T) {
	t.Parallel()
	var ch Channel
	if err := json.Unmarshal([]byte(`{"name":"X","type":"broadcast"}`), &ch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ch.Type != ChannelUnknown {
		t.Fatalf("type = %q, want unknown", ch.Type)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	doc := s.Snapshot()
	doc.Channels["-1009999999999"] = Channel{Name: "intruder"}
	doc.Admins = append(doc.Admins, "999")

	fresh := s.Snapshot()
	if _, ok := fresh.Channels["-1009999999999"]; ok {
		t.Fatal("snapshot mutation leaked into store")
	}
	if len(fresh.Admins) != 1 {
		t.Fatalf("admins = %v", fresh.Admins)
	}
}
