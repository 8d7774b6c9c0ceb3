// Package bot is the operator surface: it consumes adapter updates,
// gates them on admin membership, and routes commands, menu labels,
// session input, and inline callbacks to the services underneath.
package bot

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/dispatch"
	"github.com/samirtelegrambot/ACMProBot/internal/history"
	"github.com/samirtelegrambot/ACMProBot/internal/schedule"
	"github.com/samirtelegrambot/ACMProBot/internal/session"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
	"github.com/samirtelegrambot/ACMProBot/pkg/tgui"
)

const (
	// pageSize is how many channels one list or picker page shows.
	pageSize = 8
	// dispatchBudget bounds one detached batch run end to end.
	dispatchBudget = 30 * time.Minute
)

type Config struct {
	Workers       int           // update workers, default 4
	UpdateBuffer  int           // update channel capacity, default 64
	HandleTimeout time.Duration // per-update budget, default 30s
	SlowThreshold time.Duration // warn when a handler runs longer, default 2s
	// DownloadMaxBytes caps .txt imports pulled through the bot API.
	DownloadMaxBytes int64
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.UpdateBuffer <= 0 {
		c.UpdateBuffer = 64
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 30 * time.Second
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 2 * time.Second
	}
	if c.DownloadMaxBytes <= 0 {
		c.DownloadMaxBytes = 1 << 20
	}
}

// Dispatcher is what the posting flow needs from the delivery side.
type Dispatcher interface {
	SendBatch(ctx context.Context, req dispatch.Request) dispatch.Report
}

// Scheduler is what the schedule screens need from the job side.
type Scheduler interface {
	Create(adminID string, at time.Time, msgs []batch.Message, channels []string) (string, error)
	Cancel(adminID, id string) (bool, error)
	Jobs() []schedule.Job
	Get(id string) (schedule.Job, bool)
	Status() schedule.Status
	Location() *time.Location
}

type Bot struct {
	cfg      Config
	adapter  transport.Adapter
	store    *state.Store
	disp     Dispatcher
	sched    Scheduler
	archive  history.Store // nil when the archive is disabled
	sessions *session.Manager
	log      logx.Logger

	startedAt time.Time
	nowFn     func() time.Time
	updates   chan transport.Update
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func (b *Bot) now() time.Time { return b.nowFn() }

func New(cfg Config, adapter transport.Adapter, store *state.Store, disp Dispatcher, sched Scheduler, archive history.Store, log logx.Logger) *Bot {
	cfg.normalize()
	return &Bot{
		cfg:       cfg,
		adapter:   adapter,
		store:     store,
		disp:      disp,
		sched:     sched,
		archive:   archive,
		sessions:  session.NewManager(),
		log:       log,
		startedAt: time.Now(),
		nowFn:     time.Now,
	}
}

// Start spins the worker pool, publishes the command menu, and starts
// the adapter's poller. It does not block.
func (b *Bot) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.updates = make(chan transport.Update, b.cfg.UpdateBuffer)

	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker(runCtx)
	}

	if u, ok := b.adapter.(transport.CommandMenuUpdater); ok {
		mctx, mcancel := context.WithTimeout(runCtx, 10*time.Second)
		if err := u.UpdateMenuCommands(mctx, menuCommands()); err != nil {
			b.log.Warn("command menu update failed", logx.Err(err))
		}
		mcancel()
	}

	if err := b.adapter.Start(runCtx, b.updates); err != nil {
		cancel()
		return err
	}
	b.log.Info("bot started", logx.Int("workers", b.cfg.Workers))
	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	err := b.adapter.Stop(ctx)
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.log.Warn("bot stop deadline hit with workers still busy")
		return ctx.Err()
	}
	b.log.Info("bot stopped")
	return err
}

func (b *Bot) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-b.updates:
			b.handle(ctx, up)
		}
	}
}

// handle is the per-update middleware: panic capture, time budget,
// slow-handler warning.
func (b *Bot) handle(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panic",
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, b.cfg.HandleTimeout)
	defer cancel()

	start := time.Now()
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			b.handleMessage(hctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			b.handleCallback(hctx, up.Callback)
		}
	}
	if took := time.Since(start); took > b.cfg.SlowThreshold {
		b.log.Warn("slow update handler",
			logx.String("kind", string(up.Kind)),
			logx.Duration("took", took),
		)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *transport.Message) {
	from := strconv.FormatInt(m.FromID, 10)
	if !b.store.IsAdmin(from) {
		b.log.Warn("unauthorized message",
			logx.String("from", from),
			logx.String("username", m.FromUsername),
		)
		b.replyText(ctx, m.ChatID, "You are not authorized to use this bot.")
		return
	}

	sess := b.sessions.Get(from)
	sess.Lock()
	defer sess.Unlock()

	if m.Text != "" {
		if b.dispatchCommand(ctx, sess, m, from) {
			return
		}
		if b.dispatchMenuLabel(ctx, sess, m, from) {
			return
		}
		if b.dispatchStateText(ctx, sess, m, from) {
			return
		}
		b.replyText(ctx, m.ChatID, "I didn't understand that. Use the menu below or /help.")
		return
	}

	if b.dispatchMedia(ctx, sess, m, from) {
		return
	}
	b.replyText(ctx, m.ChatID, "Nothing to do with that message right now. Use the menu or /help.")
}

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) {
	from := strconv.FormatInt(cb.FromID, 10)
	if !b.store.IsAdmin(from) {
		b.log.Warn("unauthorized callback", logx.String("from", from), logx.String("data", cb.Data))
		b.answer(ctx, cb.ID, "Forbidden")
		return
	}

	sess := b.sessions.Get(from)
	sess.Lock()
	defer sess.Unlock()
	b.dispatchCallback(ctx, sess, cb, from)
}

// chatTarget addresses the chat an update came from.
func chatTarget(chatID int64) transport.ChatTarget {
	return transport.ChatTarget{ID: strconv.FormatInt(chatID, 10)}
}

func callbackRef(cb *transport.Callback) transport.MessageRef {
	return transport.MessageRef{Target: chatTarget(cb.ChatID), MessageID: cb.MessageID}
}

// replyText sends a plain text reply; failures are logged, not surfaced.
func (b *Bot) replyText(ctx context.Context, chatID int64, text string) {
	if _, err := b.adapter.SendText(ctx, chatTarget(chatID), text, nil); err != nil {
		b.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

// send delivers a rendered screen as a new message.
func (b *Bot) send(ctx context.Context, chatID int64, msg tgui.Message) {
	if _, err := msg.Send(ctx, b.adapter, chatTarget(chatID)); err != nil {
		b.log.Warn("send failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

// edit redraws a screen in place; when the edit fails (deleted message,
// unchanged content) it falls back to sending anew.
func (b *Bot) edit(ctx context.Context, cb *transport.Callback, msg tgui.Message) {
	if err := msg.Edit(ctx, b.adapter, callbackRef(cb)); err != nil {
		b.log.Debug("edit failed, sending instead", logx.Err(err))
		b.send(ctx, cb.ChatID, msg)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		b.log.Debug("callback answer failed", logx.Err(err))
	}
}
