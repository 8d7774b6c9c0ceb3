package batch

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppendGrows(t *testing.T) {
	t.Parallel()
	var b Builder
	n, err := b.Append(Text("hello"))
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if n != 1 || b.Len() != 1 {
		t.Fatalf("size = %d/%d, want 1/1", n, b.Len())
	}
	if _, err := b.Append(Photo("file123", "cap")); err != nil {
		t.Fatalf("Append photo error: %v", err)
	}
	want := []Message{Text("hello"), Photo("file123", "cap")}
	if diff := cmp.Diff(want, b.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendAtCapacityFailsUnchanged(t *testing.T) {
	t.Parallel()
	var b Builder
	for i := 0; i < MaxMessages; i++ {
		if _, err := b.Append(Text("m")); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}
	before := b.Messages()

	n, err := b.Append(Text("overflow"))
	if !errors.Is(err, ErrBatchFull) {
		t.Fatalf("err = %v, want ErrBatchFull", err)
	}
	if n != MaxMessages {
		t.Fatalf("reported size = %d, want %d", n, MaxMessages)
	}
	if diff := cmp.Diff(before, b.Messages()); diff != "" {
		t.Errorf("batch changed on rejected append:\n%s", diff)
	}
}

func TestAppendRejectsOverlongAndInvalid(t *testing.T) {
	t.Parallel()
	var b Builder
	if _, err := b.Append(Text(strings.Repeat("x", MaxMessageLen+1))); !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
	if _, err := b.Append(Message{Kind: "sticker", Content: "?"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if b.Len() != 0 {
		t.Fatalf("batch size = %d, want 0", b.Len())
	}
}

func TestAppendBlobSplitsOnBlankLines(t *testing.T) {
	t.Parallel()
	var b Builder
	added, err := b.AppendBlob("A\n\nB\n\nC")
	if err != nil {
		t.Fatalf("AppendBlob error: %v", err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3", added)
	}
	want := []Message{Text("A"), Text("B"), Text("C")}
	if diff := cmp.Diff(want, b.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendBlobDropsEmptyAndOverlong(t *testing.T) {
	t.Parallel()
	var b Builder
	blob := "  \n\nfirst\n\n\n\nsecond line one\nsecond line two\n\n" + strings.Repeat("x", MaxMessageLen+1) + "\n\n  third  "
	added, err := b.AppendBlob(blob)
	if err != nil {
		t.Fatalf("AppendBlob error: %v", err)
	}
	if added != 3 {
		t.Fatalf("added = %d, want 3", added)
	}
	want := []Message{Text("first"), Text("second line one\nsecond line two"), Text("third")}
	if diff := cmp.Diff(want, b.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendBlobStopsAtCapacity(t *testing.T) {
	t.Parallel()
	var b Builder
	for i := 0; i < MaxMessages-1; i++ {
		if _, err := b.Append(Text("m")); err != nil {
			t.Fatalf("fill: %v", err)
		}
	}
	added, err := b.AppendBlob("one\n\ntwo\n\nthree")
	if err != nil {
		t.Fatalf("AppendBlob error: %v", err)
	}
	if added != 1 || b.Len() != MaxMessages {
		t.Fatalf("added = %d size = %d, want 1 and %d", added, b.Len(), MaxMessages)
	}

	added, err = b.AppendBlob("more")
	if !errors.Is(err, ErrBatchFull) {
		t.Fatalf("err = %v, want ErrBatchFull", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	var b Builder
	_, _ = b.Append(Text("a"))
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("size after clear = %d, want 0", b.Len())
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()
	var b Builder
	if got := b.Summary(5); got != "Batch is empty." {
		t.Fatalf("empty summary = %q", got)
	}
	_, _ = b.Append(Text("short"))
	_, _ = b.Append(Photo("f1", "caption here"))
	_, _ = b.Append(Text("another"))

	got := b.Summary(2)
	if !strings.Contains(got, "1. short") || !strings.Contains(got, "Photo") {
		t.Errorf("summary missing entries:\n%s", got)
	}
	if !strings.Contains(got, "+1 more") {
		t.Errorf("summary missing tail:\n%s", got)
	}
}

func TestMessageJSONRoundTripAndRejects(t *testing.T) {
	t.Parallel()
	data, err := json.Marshal(Photo("file9", "hi"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(Photo("file9", "hi"), m); diff != "" {
		t.Errorf("round trip mismatch:\n%s", diff)
	}

	bad := []string{
		`{"kind":"sticker","content":"x"}`,
		`{"kind":"text"}`,
		`{"kind":"photo","content":"x"}`,
		`{"kind":"photo"}`,
	}
	for _, s := range bad {
		var m Message
		if err := json.Unmarshal([]byte(s), &m); err == nil {
			t.Errorf("unmarshal %s succeeded, want error", s)
		}
	}
}
