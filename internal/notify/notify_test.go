package notify

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samirtelegrambot/ACMProBot/internal/eventbus"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

const testOwner = "111111111"

type fakeSend struct {
	To   string
	Text string
}

// fakeAdapter records SendText calls on a channel the test selects on.
type fakeAdapter struct {
	sent chan fakeSend
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{sent: make(chan fakeSend, 32)}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.sent <- fakeSend{To: to.ID, Text: text}
	return transport.MessageRef{Target: to, MessageID: 1}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to transport.ChatTarget, fileRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) SendVideo(ctx context.Context, to transport.ChatTarget, fileRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) SendDocument(ctx context.Context, to transport.ChatTarget, fileRef, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

func (f *fakeAdapter) ChatInfo(ctx context.Context, id string) (transport.ChatInfo, error) {
	return transport.ChatInfo{}, nil
}

func (f *fakeAdapter) DownloadFile(ctx context.Context, fileRef string, maxBytes int64) ([]byte, error) {
	return nil, nil
}

func (f *fakeAdapter) waitSend(t *testing.T) fakeSend {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no notice delivered")
		return fakeSend{}
	}
}

func newTestService(t *testing.T) (*Service, *state.Store, *fakeAdapter, eventbus.Bus) {
	t.Helper()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"), testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	bus := eventbus.New()
	ad := newFakeAdapter()
	svc := New(Config{Enabled: true, QueueSize: 16, RatePerSec: 1000, RetryMax: 1}, ad, st, bus, logx.Nop())

	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc, st, ad, bus
}

func TestScheduledOutcomeNotifiesAdmin(t *testing.T) {
	t.Parallel()
	_, _, ad, bus := newTestService(t)

	bus.Publish(eventbus.Event{
		Type: eventbus.TypePostExecuted,
		Data: eventbus.PostResult{AdminID: "222", JobID: "abcd1234-0000", Sent: 2, Failed: 1},
	})

	got := ad.waitSend(t)
	if got.To != "222" {
		t.Fatalf("notice to %q, want 222", got.To)
	}
	if !strings.Contains(got.Text, "abcd1234") || !strings.Contains(got.Text, "2 channel(s) ok") {
		t.Fatalf("notice text = %q", got.Text)
	}
}

func TestImmediatePostStaysQuiet(t *testing.T) {
	t.Parallel()
	_, _, ad, bus := newTestService(t)

	// No job id means the operator already saw the result inline.
	bus.Publish(eventbus.Event{
		Type: eventbus.TypePostExecuted,
		Data: eventbus.PostResult{AdminID: "222", Sent: 1},
	})
	// The reset notice is unconditional; the queue is FIFO, so if the
	// first event had produced a notice it would arrive before this one.
	bus.Publish(eventbus.Event{Type: eventbus.TypeStateReset, Data: "decode error"})

	got := ad.waitSend(t)
	if got.To != testOwner || !strings.Contains(got.Text, "reset") {
		t.Fatalf("unexpected notice %+v", got)
	}
}

func TestToggleSilencesJobNotices(t *testing.T) {
	t.Parallel()
	_, st, ad, bus := newTestService(t)

	if _, err := st.UpdateSettings(func(s *state.Settings) { s.NotificationsEnabled = false }); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	bus.Publish(eventbus.Event{
		Type: eventbus.TypePostExecuted,
		Data: eventbus.PostResult{AdminID: "222", JobID: "abcd1234", Sent: 1},
	})
	bus.Publish(eventbus.Event{Type: eventbus.TypeStateReset, Data: "marker"})

	got := ad.waitSend(t)
	if !strings.Contains(got.Text, "marker") {
		t.Fatalf("job notice slipped through the toggle: %+v", got)
	}
}

func TestExpiryNotifiesAdminAndOwner(t *testing.T) {
	t.Parallel()
	_, _, ad, bus := newTestService(t)

	bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobExpired,
		Data: eventbus.JobNote{JobID: "abcd1234", AdminID: "222", Reason: "missed by more than 1h"},
	})

	first := ad.waitSend(t)
	second := ad.waitSend(t)
	if first.To != "222" || second.To != testOwner {
		t.Fatalf("notice targets = %q, %q", first.To, second.To)
	}
	if !strings.Contains(first.Text, "expired") {
		t.Fatalf("notice text = %q", first.Text)
	}
}

func TestExpiryDedupesOwner(t *testing.T) {
	t.Parallel()
	_, _, ad, bus := newTestService(t)

	bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobExpired,
		Data: eventbus.JobNote{JobID: "abcd1234", AdminID: testOwner, Reason: "missed"},
	})
	bus.Publish(eventbus.Event{Type: eventbus.TypeStateReset, Data: "marker"})

	if got := ad.waitSend(t); got.To != testOwner || !strings.Contains(got.Text, "expired") {
		t.Fatalf("first notice %+v", got)
	}
	// Exactly one expiry notice when the admin is the owner.
	if got := ad.waitSend(t); !strings.Contains(got.Text, "marker") {
		t.Fatalf("owner was notified twice: %+v", got)
	}
}

func TestStopDrains(t *testing.T) {
	t.Parallel()
	st, err := state.Open(filepath.Join(t.TempDir(), "state.json"), testOwner, logx.Nop(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	bus := eventbus.New()
	ad := newFakeAdapter()
	svc := New(Config{Enabled: true, QueueSize: 16, RatePerSec: 1000, RetryMax: 1}, ad, st, bus, logx.Nop())
	svc.Start(context.Background())

	for i := 0; i < 3; i++ {
		bus.Publish(eventbus.Event{Type: eventbus.TypeStateReset, Data: "drain"})
	}
	// Give the run goroutine a moment to move events into the queue.
	deadline := time.Now().Add(2 * time.Second)
	for len(ad.sent)+len(svc.queue) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Stop(ctx)

	if got := len(ad.sent); got != 3 {
		t.Fatalf("delivered after stop = %d, want 3", got)
	}
}
