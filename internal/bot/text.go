package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/schedule"
	"github.com/samirtelegrambot/ACMProBot/internal/session"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/internal/validate"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

// dispatchStateText routes free text to the pending prompt, if any.
func (b *Bot) dispatchStateText(ctx context.Context, sess *session.Session, m *transport.Message, from string) bool {
	switch sess.State {
	case session.AwaitingChannelID:
		b.onChannelIDInput(ctx, sess, m)
	case session.AwaitingBatchMessage:
		b.onBatchTextInput(ctx, sess, m)
	case session.AwaitingBlob:
		b.onBlobInput(ctx, sess, m)
	case session.AwaitingScheduleMessage:
		b.onScheduleMessageInput(ctx, sess, m)
	case session.AwaitingScheduleTime:
		b.onScheduleTimeInput(ctx, sess, m, from)
	case session.AwaitingDelay:
		b.onDelayInput(ctx, sess, m)
	case session.AwaitingRetries:
		b.onRetriesInput(ctx, sess, m)
	case session.AwaitingFooter:
		b.onFooterInput(ctx, sess, m)
	case session.AwaitingAdminAdd:
		b.onAdminAddInput(ctx, sess, m)
	case session.AwaitingAdminRemove:
		b.onAdminRemoveInput(ctx, sess, m)
	default:
		return false
	}
	return true
}

func (b *Bot) onChannelIDInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	id := strings.TrimSpace(m.Text)
	if !validate.ChannelID(id) {
		b.replyText(ctx, m.ChatID, "That doesn't look like a channel. Send a -100… id or a public @handle, or /cancel.")
		return
	}

	ch := b.resolveChannel(ctx, id)
	if err := b.store.AddChannel(id, ch); err != nil {
		b.log.Error("channel add failed", logx.String("channel", id), logx.Err(err))
		b.replyText(ctx, m.ChatID, "Couldn't save the channel. Try again.")
		return
	}
	sess.ResetPrompt()
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Channel added: %s", ch.Name))
	b.send(ctx, m.ChatID, b.channelsScreen(0))
}

// resolveChannel fetches live chat metadata; an unreachable chat still
// gets stored under a placeholder name so posting can be tried later.
func (b *Bot) resolveChannel(ctx context.Context, id string) state.Channel {
	info, err := b.adapter.ChatInfo(ctx, id)
	if err != nil {
		b.log.Warn("chat info lookup failed", logx.String("channel", id), logx.Err(err))
		return state.Channel{Name: fmt.Sprintf("Unknown Channel (%s)", id), Type: state.ChannelUnknown}
	}

	ch := state.Channel{Name: info.Title, Type: channelTypeOf(info)}
	if ch.Name == "" {
		ch.Name = fmt.Sprintf("Unknown Channel (%s)", id)
	}
	if info.MemberCount > 0 {
		n := info.MemberCount
		ch.SubscriberCount = &n
	}
	return ch
}

func channelTypeOf(info transport.ChatInfo) state.ChannelType {
	switch info.Type {
	case "channel":
		if info.Username != "" {
			return state.ChannelPublic
		}
		return state.ChannelPrivate
	case "supergroup":
		return state.ChannelSupergroup
	}
	return state.ChannelUnknown
}

func (b *Bot) onBatchTextInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	n, err := sess.Batch.Append(batch.Text(m.Text))
	if err != nil {
		b.replyText(ctx, m.ChatID, appendErrorText(err))
		return
	}
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Added (%d/%d). Keep sending, or /cancel when done.", n, batch.MaxMessages))
}

func (b *Bot) onBlobInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	added, err := sess.Batch.AppendBlob(m.Text)
	if err != nil {
		b.replyText(ctx, m.ChatID, appendErrorText(err))
		return
	}
	sess.ResetPrompt()
	if added == 0 {
		b.replyText(ctx, m.ChatID, "Nothing usable in that blob. Separate messages with blank lines.")
		return
	}
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Split into %d message(s). Batch now has %d.", added, sess.Batch.Len()))
}

func appendErrorText(err error) string {
	switch {
	case errors.Is(err, batch.ErrBatchFull):
		return fmt.Sprintf("Batch is full (%d messages). Post or clear it first.", batch.MaxMessages)
	case errors.Is(err, batch.ErrTooLong):
		return fmt.Sprintf("Message too long (over %d characters).", batch.MaxMessageLen)
	}
	return "Couldn't add that message."
}

func (b *Bot) onScheduleMessageInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	if utf8.RuneCountInString(m.Text) > batch.MaxMessageLen {
		b.replyText(ctx, m.ChatID, fmt.Sprintf("Message too long (over %d characters).", batch.MaxMessageLen))
		return
	}
	sess.Draft.Messages = []batch.Message{batch.Text(m.Text)}
	sess.State = session.Idle
	sess.Selected.Clear()
	sess.PickPage = 0
	b.send(ctx, m.ChatID, b.pickerScreen(sess))
}

func (b *Bot) onScheduleTimeInput(ctx context.Context, sess *session.Session, m *transport.Message, from string) {
	at, ok := validate.ParseScheduleTime(m.Text, b.now(), b.sched.Location())
	if !ok {
		b.replyText(ctx, m.ChatID, "Couldn't read that time. Try formats like 2026-01-02 15:04 or just 15:04, or /cancel.")
		return
	}

	id, err := b.sched.Create(from, at, sess.Draft.Messages, sess.Draft.Channels)
	if err != nil {
		b.replyText(ctx, m.ChatID, scheduleErrorText(err))
		return
	}
	sess.ResetPrompt()
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Scheduled for %s (job %s).", b.fmtTime(at), shortID(id)))
	b.send(ctx, m.ChatID, b.scheduleScreen())
}

func scheduleErrorText(err error) string {
	switch {
	case errors.Is(err, schedule.ErrPastTime):
		return "That time is already in the past. Send a future time."
	case errors.Is(err, schedule.ErrEmptyBatch):
		return "Nothing to schedule. The message set is empty."
	case errors.Is(err, schedule.ErrNoChannels):
		return "No channels selected for this post."
	case errors.Is(err, schedule.ErrTooManyMessages):
		return fmt.Sprintf("Too many messages for one post (max %d).", batch.MaxMessages)
	}
	return "Couldn't create the scheduled post."
}

func (b *Bot) onDelayInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	v, err := strconv.ParseFloat(strings.TrimSpace(m.Text), 64)
	if err != nil || v < 0 {
		b.replyText(ctx, m.ChatID, "Send a non-negative number of seconds, like 2 or 0.5.")
		return
	}
	s, err := b.store.UpdateSettings(func(st *state.Settings) { st.DelaySeconds = v })
	if err != nil {
		b.log.Error("settings update failed", logx.Err(err))
		b.replyText(ctx, m.ChatID, "Couldn't save the setting. Try again.")
		return
	}
	sess.ResetPrompt()
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Delay set to %.1fs.", s.DelaySeconds))
	b.send(ctx, m.ChatID, b.settingsScreen())
}

func (b *Bot) onRetriesInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	v, err := strconv.Atoi(strings.TrimSpace(m.Text))
	if err != nil || v < 1 {
		b.replyText(ctx, m.ChatID, "Send a whole number of attempts, at least 1.")
		return
	}
	s, err := b.store.UpdateSettings(func(st *state.Settings) { st.MaxRetries = v })
	if err != nil {
		b.log.Error("settings update failed", logx.Err(err))
		b.replyText(ctx, m.ChatID, "Couldn't save the setting. Try again.")
		return
	}
	sess.ResetPrompt()
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Retries set to %d.", s.MaxRetries))
	b.send(ctx, m.ChatID, b.settingsScreen())
}

func (b *Bot) onFooterInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	text := m.Text
	if strings.HasPrefix(text, "/clear_footer") {
		if _, err := b.store.UpdateSettings(func(st *state.Settings) { st.Footer = "" }); err != nil {
			b.replyText(ctx, m.ChatID, "Couldn't save the setting. Try again.")
			return
		}
		sess.ResetPrompt()
		b.replyText(ctx, m.ChatID, "Footer cleared.")
		b.send(ctx, m.ChatID, b.settingsScreen())
		return
	}
	if utf8.RuneCountInString(text) > state.FooterMaxLen {
		b.replyText(ctx, m.ChatID, fmt.Sprintf("Footer too long (max %d characters).", state.FooterMaxLen))
		return
	}
	if _, err := b.store.UpdateSettings(func(st *state.Settings) { st.Footer = text }); err != nil {
		b.replyText(ctx, m.ChatID, "Couldn't save the setting. Try again.")
		return
	}
	sess.ResetPrompt()
	b.replyText(ctx, m.ChatID, "Footer saved. It is appended to every text post.")
	b.send(ctx, m.ChatID, b.settingsScreen())
}

func (b *Bot) onAdminAddInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	id := strings.TrimSpace(m.Text)
	if !validate.UserID(id) {
		b.replyText(ctx, m.ChatID, "Send a numeric Telegram user id, or /cancel.")
		return
	}
	added, err := b.store.AddAdmin(id)
	if err != nil {
		b.log.Error("admin add failed", logx.Err(err))
		b.replyText(ctx, m.ChatID, "Couldn't save the admin. Try again.")
		return
	}
	sess.ResetPrompt()
	if added {
		b.replyText(ctx, m.ChatID, fmt.Sprintf("Admin %s added.", id))
	} else {
		b.replyText(ctx, m.ChatID, fmt.Sprintf("%s is already an admin.", id))
	}
	b.send(ctx, m.ChatID, b.adminScreen())
}

func (b *Bot) onAdminRemoveInput(ctx context.Context, sess *session.Session, m *transport.Message) {
	id := strings.TrimSpace(m.Text)
	if !validate.UserID(id) {
		b.replyText(ctx, m.ChatID, "Send a numeric Telegram user id, or /cancel.")
		return
	}
	removed, err := b.store.RemoveAdmin(id)
	if err != nil {
		b.log.Error("admin remove failed", logx.Err(err))
		b.replyText(ctx, m.ChatID, "Couldn't update the admin set. Try again.")
		return
	}
	sess.ResetPrompt()
	if removed {
		b.replyText(ctx, m.ChatID, fmt.Sprintf("Admin %s removed.", id))
	} else {
		b.replyText(ctx, m.ChatID, "That id is not a removable admin.")
	}
	b.send(ctx, m.ChatID, b.adminScreen())
}

// dispatchMedia handles attachment messages: media appended to the
// batch or the schedule draft, plus .txt imports split as blobs.
func (b *Bot) dispatchMedia(ctx context.Context, sess *session.Session, m *transport.Message, from string) bool {
	msg, ok := mediaMessage(m)
	if !ok {
		return false
	}

	switch sess.State {
	case session.AwaitingBatchMessage, session.AwaitingBlob:
		if m.DocumentRef != "" && strings.HasSuffix(strings.ToLower(m.FileName), ".txt") {
			b.importBlobFile(ctx, sess, m)
			return true
		}
		n, err := sess.Batch.Append(msg)
		if err != nil {
			b.replyText(ctx, m.ChatID, appendErrorText(err))
			return true
		}
		b.replyText(ctx, m.ChatID, fmt.Sprintf("Added %s (%d/%d).", string(msg.Kind), n, batch.MaxMessages))
		return true

	case session.AwaitingScheduleMessage:
		sess.Draft.Messages = []batch.Message{msg}
		sess.State = session.Idle
		sess.Selected.Clear()
		sess.PickPage = 0
		b.send(ctx, m.ChatID, b.pickerScreen(sess))
		return true
	}
	return false
}

// importBlobFile downloads an uploaded .txt and splits it like pasted text.
func (b *Bot) importBlobFile(ctx context.Context, sess *session.Session, m *transport.Message) {
	if m.FileSize > b.cfg.DownloadMaxBytes {
		b.replyText(ctx, m.ChatID, "That file is too large to import.")
		return
	}
	data, err := b.adapter.DownloadFile(ctx, m.DocumentRef, b.cfg.DownloadMaxBytes)
	if err != nil {
		b.log.Warn("blob file download failed", logx.Err(err))
		b.replyText(ctx, m.ChatID, "Couldn't download that file. Try pasting the text instead.")
		return
	}
	added, err := sess.Batch.AppendBlob(string(data))
	if err != nil {
		b.replyText(ctx, m.ChatID, appendErrorText(err))
		return
	}
	sess.ResetPrompt()
	if added == 0 {
		b.replyText(ctx, m.ChatID, "The file had no usable messages. Separate them with blank lines.")
		return
	}
	b.replyText(ctx, m.ChatID, fmt.Sprintf("Imported %d message(s) from the file. Batch now has %d.", added, sess.Batch.Len()))
}

func mediaMessage(m *transport.Message) (batch.Message, bool) {
	switch {
	case m.PhotoRef != "":
		return batch.Photo(m.PhotoRef, m.Caption), true
	case m.VideoRef != "":
		return batch.Video(m.VideoRef, m.Caption), true
	case m.DocumentRef != "":
		return batch.Document(m.DocumentRef, m.Caption), true
	}
	return batch.Message{}, false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
