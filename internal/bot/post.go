package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/dispatch"
	"github.com/samirtelegrambot/ACMProBot/internal/history"
	"github.com/samirtelegrambot/ACMProBot/internal/session"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
	"github.com/samirtelegrambot/ACMProBot/pkg/tgui"
)

// startPostFlow opens the immediate-post preview for the current batch.
func (b *Bot) startPostFlow(ctx context.Context, sess *session.Session, chatID int64) {
	if sess.Batch.Len() == 0 {
		b.replyText(ctx, chatID, "Batch is empty. Add messages first (Batch menu).")
		return
	}
	sess.ResetPrompt()
	sess.Flow = session.FlowPost
	b.send(ctx, chatID, previewScreen(sess, b.store.Settings().Footer))
}

// selectedIDs resolves the picker selection against the configured
// channel set, in listing order.
func (b *Bot) selectedIDs(sess *session.Session) []string {
	entries := b.store.Channels()
	known := make([]string, len(entries))
	for i, e := range entries {
		known[i] = e.ID
	}
	return sess.Selected.IDs(known)
}

func (b *Bot) onToggleChannel(ctx context.Context, sess *session.Session, cb *transport.Callback, id string) {
	sess.Selected.Toggle(id)
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, b.pickerScreen(sess))
}

func (b *Bot) onSelectAll(ctx context.Context, sess *session.Session, cb *transport.Callback) {
	for _, e := range b.store.Channels() {
		sess.Selected.Add(e.ID)
	}
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, b.pickerScreen(sess))
}

func (b *Bot) onSelectNone(ctx context.Context, sess *session.Session, cb *transport.Callback) {
	sess.Selected.Clear()
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, b.pickerScreen(sess))
}

func (b *Bot) onPickerPage(ctx context.Context, sess *session.Session, cb *transport.Callback, arg string) {
	if n, err := strconv.Atoi(arg); err == nil {
		sess.PickPage = n
	}
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, b.pickerScreen(sess))
}

// onPostContinue advances the active flow: preview to picker for an
// immediate post, picker to time prompt for a scheduled one.
func (b *Bot) onPostContinue(ctx context.Context, sess *session.Session, cb *transport.Callback) {
	switch sess.Flow {
	case session.FlowPost:
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.pickerScreen(sess))

	case session.FlowSchedule:
		ids := b.selectedIDs(sess)
		if len(ids) == 0 {
			b.answer(ctx, cb.ID, "Select at least one channel.")
			return
		}
		sess.Draft.Channels = ids
		sess.State = session.AwaitingScheduleTime
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Schedule",
			"When should it go out? Send a time like 2026-01-02 15:04, or just 15:04 for the next occurrence. /cancel to abort."))

	default:
		b.answer(ctx, cb.ID, "Nothing in progress.")
	}
}

func (b *Bot) onCancelPost(ctx context.Context, sess *session.Session, cb *transport.Callback) {
	flow := sess.Flow
	sess.ResetPrompt()
	b.answer(ctx, cb.ID, "Cancelled")
	if flow == session.FlowSchedule {
		b.edit(ctx, cb, b.scheduleScreen())
		return
	}
	b.edit(ctx, cb, promptScreen("Post", "Post cancelled. The batch is untouched."))
}

// onConfirmPost snapshots the batch and selection, acknowledges, and
// hands delivery to a detached worker so the update loop stays free.
func (b *Bot) onConfirmPost(ctx context.Context, sess *session.Session, cb *transport.Callback, from string) {
	if sess.Flow != session.FlowPost {
		b.answer(ctx, cb.ID, "Nothing in progress.")
		return
	}
	ids := b.selectedIDs(sess)
	if len(ids) == 0 {
		b.answer(ctx, cb.ID, "Select at least one channel.")
		return
	}
	msgs := sess.Batch.Messages()
	if len(msgs) == 0 {
		b.answer(ctx, cb.ID, "Batch is empty.")
		return
	}

	names := make(map[string]string, len(ids))
	for _, e := range b.store.Channels() {
		names[e.ID] = e.Name
	}

	sess.ResetPrompt()
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, promptScreen("Post",
		fmt.Sprintf("Posting %d message(s) to %d channel(s)…", len(msgs), len(ids))))

	go b.runDispatch(from, cb.ChatID, ids, names, msgs)
}

// runDispatch delivers one immediate batch on its own budget, reporting
// per-channel failures as they happen and clearing the batch only when
// something was actually delivered.
func (b *Bot) runDispatch(adminID string, chatID int64, ids []string, names map[string]string, msgs []batch.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchBudget)
	defer cancel()

	rep := b.disp.SendBatch(ctx, dispatch.Request{
		AdminID:  adminID,
		Channels: ids,
		Messages: msgs,
		Kind:     history.KindPost,
		OnChannel: func(id string, out dispatch.Outcome) {
			if out.Delivered() {
				return
			}
			name := names[id]
			if name == "" {
				name = "Unknown Channel"
			}
			b.replyText(ctx, chatID, fmt.Sprintf("Failed to send to %s (%s)", name, id))
		},
	})

	if rep.ChannelsOK > 0 {
		b.replyText(ctx, chatID, fmt.Sprintf("Successfully posted to %d channel(s).", rep.ChannelsOK))
		sess := b.sessions.Get(adminID)
		sess.Lock()
		sess.Batch.Clear()
		sess.Unlock()
	} else {
		b.replyText(ctx, chatID, "No posts were successful.")
	}
	b.log.Info("immediate post finished",
		logx.String("admin", adminID),
		logx.Int("channels_ok", rep.ChannelsOK),
		logx.Int("channels_failed", rep.ChannelsFailed),
		logx.Bool("canceled", rep.Canceled),
	)
}

// promptScreen is a plain one-line screen without a keyboard.
func promptScreen(title, text string) tgui.Message {
	return tgui.New().Title("", title).Blank().Line(text).Build()
}
