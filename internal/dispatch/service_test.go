package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

type sentMsg struct {
	To      string
	Kind    string
	Body    string
	Caption string
}

// fakeAdapter records sends and fails on demand.
type fakeAdapter struct {
	mu sync.Mutex

	sent []sentMsg
	// failFirst makes the first N sends to a channel fail.
	failFirst map[string]int
	// failAlways makes every send to a channel fail.
	failAlways map[string]bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{failFirst: map[string]int{}, failAlways: map[string]bool{}}
}

func (f *fakeAdapter) send(to transport.ChatTarget, kind, body, caption string) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlways[to.ID] {
		return transport.MessageRef{}, errors.New("telegram says no")
	}
	if n := f.failFirst[to.ID]; n > 0 {
		f.failFirst[to.ID] = n - 1
		return transport.MessageRef{}, errors.New("flaky")
	}
	f.sent = append(f.sent, sentMsg{To: to.ID, Kind: kind, Body: body, Caption: caption})
	return transport.MessageRef{Target: to, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) sentCopy() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                              { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return f.send(to, "text", text, "")
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to transport.ChatTarget, fileRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return f.send(to, "photo", fileRef, caption)
}

func (f *fakeAdapter) SendVideo(ctx context.Context, to transport.ChatTarget, fileRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return f.send(to, "video", fileRef, caption)
}

func (f *fakeAdapter) SendDocument(ctx context.Context, to transport.ChatTarget, fileRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return f.send(to, "document", fileRef, caption)
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) ChatInfo(ctx context.Context, id string) (transport.ChatInfo, error) {
	return transport.ChatInfo{}, errors.New("not implemented")
}

func (f *fakeAdapter) DownloadFile(ctx context.Context, fileRef string, maxBytes int64) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func newTestService(t *testing.T, ad transport.Adapter) (*Service, *state.Store) {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"), "111111111", logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	// No delay between messages keeps tests fast.
	if _, err := st.UpdateSettings(func(s *state.Settings) {
		s.DelaySeconds = 0
		s.MaxRetries = 2
	}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	svc := New(Config{MessagesPerSec: 1000}, ad, st, nil, nil, logx.Nop())
	return svc, st
}

func TestSendBatchDeliversWithFooter(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	svc, st := newTestService(t, ad)
	if _, err := st.UpdateSettings(func(s *state.Settings) { s.Footer = "— via bot" }); err != nil {
		t.Fatalf("settings: %v", err)
	}

	rep := svc.SendBatch(context.Background(), Request{
		AdminID:  "111111111",
		Kind:     "post",
		Channels: []string{"-1001111111111", "-1002222222222"},
		Messages: []batch.Message{
			batch.Text("hello"),
			batch.Photo("file-1", "pic"),
		},
	})

	if rep.ChannelsOK != 2 || rep.ChannelsFailed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.MessagesSent != 4 {
		t.Fatalf("messages sent = %d, want 4", rep.MessagesSent)
	}

	sent := ad.sentCopy()
	if len(sent) != 4 {
		t.Fatalf("adapter got %d sends", len(sent))
	}
	if sent[0].Body != "hello\n\n— via bot" {
		t.Errorf("footer missing: %q", sent[0].Body)
	}
	if sent[1].Kind != "photo" || sent[1].Caption != "pic\n\n— via bot" {
		t.Errorf("photo = %+v", sent[1])
	}
	// Channel-major order: both messages to the first channel first.
	if sent[0].To != "-1001111111111" || sent[1].To != "-1001111111111" {
		t.Errorf("order = %+v", sent[:2])
	}

	doc := st.Snapshot()
	if doc.Stats.TotalPosts != 2 || doc.Stats.TotalBatches != 1 {
		t.Fatalf("stats = %+v", doc.Stats)
	}
	if doc.Stats.LastPostAt == nil {
		t.Fatal("last_post_at not set")
	}
}

func TestSendBatchRetries(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.failFirst["-1001111111111"] = 1
	svc, _ := newTestService(t, ad)

	rep := svc.SendBatch(context.Background(), Request{
		AdminID:  "111111111",
		Kind:     "post",
		Channels: []string{"-1001111111111"},
		Messages: []batch.Message{batch.Text("retry me")},
	})

	if rep.ChannelsOK != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if got := len(ad.sentCopy()); got != 1 {
		t.Fatalf("sends recorded = %d, want 1", got)
	}
}

func TestSendBatchAllFail(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	ad.failAlways["-1001111111111"] = true
	svc, st := newTestService(t, ad)

	rep := svc.SendBatch(context.Background(), Request{
		AdminID:  "111111111",
		Kind:     "post",
		Channels: []string{"-1001111111111"},
		Messages: []batch.Message{batch.Text("doomed")},
	})

	if rep.ChannelsOK != 0 || rep.ChannelsFailed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	out := rep.PerChannel["-1001111111111"]
	if out.Failed != 1 || out.Err == "" {
		t.Fatalf("outcome = %+v", out)
	}

	// The batch counts, the post does not.
	doc := st.Snapshot()
	if doc.Stats.TotalPosts != 0 || doc.Stats.TotalBatches != 1 {
		t.Fatalf("stats = %+v", doc.Stats)
	}
	if doc.Stats.LastPostAt != nil {
		t.Fatal("last_post_at set on failed dispatch")
	}
}

func TestSendBatchCanceled(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	svc, _ := newTestService(t, ad)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := svc.SendBatch(ctx, Request{
		AdminID:  "111111111",
		Kind:     "post",
		Channels: []string{"-1001111111111"},
		Messages: []batch.Message{batch.Text("never")},
	})

	if !rep.Canceled {
		t.Fatal("not marked canceled")
	}
	if got := len(ad.sentCopy()); got != 0 {
		t.Fatalf("sends = %d, want 0", got)
	}
}

func TestSendBatchPublishesEvent(t *testing.T) {
	t.Parallel()
	ad := newFakeAdapter()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"), "111111111", logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if _, err := st.UpdateSettings(func(s *state.Settings) { s.DelaySeconds = 0 }); err != nil {
		t.Fatalf("settings: %v", err)
	}

	bus := eventbus.New()
	events, cancel := bus.Subscribe(4)
	defer cancel()

	svc := New(Config{MessagesPerSec: 1000}, ad, st, nil, bus, logx.Nop())
	svc.SendBatch(context.Background(), Request{
		AdminID:  "111111111",
		Kind:     "scheduled",
		JobID:    "job-9",
		Channels: []string{"-1001111111111"},
		Messages: []batch.Message{batch.Text("x")},
	})

	select {
	case ev := <-events:
		if ev.Type != eventbus.TypePostExecuted {
			t.Fatalf("event type = %q", ev.Type)
		}
		res, ok := ev.Data.(eventbus.PostResult)
		if !ok {
			t.Fatalf("event data = %T", ev.Data)
		}
		if res.JobID != "job-9" || res.Sent != 1 {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestWithFooter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body, footer, want string
	}{
		{"hello", "", "hello"},
		{"hello", "f", "hello\n\nf"},
		{"", "f", "f"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := withFooter(tt.body, tt.footer); got != tt.want {
			t.Errorf("withFooter(%q, %q) = %q, want %q", tt.body, tt.footer, got, tt.want)
		}
	}
	if !strings.Contains(withFooter("a", "b"), "\n\n") {
		t.Error("footer separator missing")
	}
}
