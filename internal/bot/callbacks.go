package bot

import (
	"context"
	"strconv"

	"github.com/samirtelegrambot/ACMProBot/internal/session"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
	"github.com/samirtelegrambot/ACMProBot/pkg/tgui"
)

// dispatchCallback routes inline button presses. Exact tokens first,
// then prefixed ones; admin_remove_menu must win over admin_remove_<id>.
func (b *Bot) dispatchCallback(ctx context.Context, sess *session.Session, cb *transport.Callback, from string) {
	switch cb.Data {
	case "add_channel":
		sess.State = session.AwaitingChannelID
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Channels",
			"Send the channel to add: a -100… id or a public @handle. The bot must be an admin there. /cancel to abort."))
		return
	case "back_to_channels":
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.channelsScreen(sess.ListPage))
		return

	case "batch_add":
		sess.State = session.AwaitingBatchMessage
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Batch",
			"Send the messages to add. Text, photos, videos, and documents all work. /cancel when done."))
		return
	case "batch_blob":
		sess.State = session.AwaitingBlob
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Batch",
			"Paste the text blob, or upload a .txt file. Blank lines split it into separate messages."))
		return
	case "batch_show":
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, batchSummaryScreen(sess))
		return
	case "batch_clear":
		sess.Batch.Clear()
		b.answer(ctx, cb.ID, "Batch cleared")
		b.edit(ctx, cb, batchScreen(sess))
		return

	case "post_select_all":
		b.onSelectAll(ctx, sess, cb)
		return
	case "post_select_none":
		b.onSelectNone(ctx, sess, cb)
		return
	case "post_continue":
		b.onPostContinue(ctx, sess, cb)
		return
	case "confirm_post":
		b.onConfirmPost(ctx, sess, cb, from)
		return
	case "cancel_post":
		b.onCancelPost(ctx, sess, cb)
		return

	case "view_scheduled", "back_to_schedule":
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.scheduleScreen())
		return
	case "schedule_new":
		sess.Flow = session.FlowSchedule
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, scheduleSourceScreen(sess.Batch.Len()))
		return
	case "schedule_use_batch":
		b.onScheduleUseBatch(ctx, sess, cb)
		return
	case "schedule_fresh":
		sess.Flow = session.FlowSchedule
		sess.State = session.AwaitingScheduleMessage
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Schedule", "Send the message to schedule. Text or media, one message."))
		return

	case "set_delay":
		sess.State = session.AwaitingDelay
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Settings",
			"Send the delay between messages, in seconds. Decimals are fine, like 0.5."))
		return
	case "set_retry":
		sess.State = session.AwaitingRetries
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Settings", "Send how many attempts each message gets, at least 1."))
		return
	case "set_footer":
		sess.State = session.AwaitingFooter
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Settings",
			"Send the footer text. It is appended to every text post. /clear_footer removes it."))
		return
	case "toggle_notifications":
		b.onToggleNotifications(ctx, cb)
		return

	case "admin_add":
		if !b.requireOwner(ctx, cb, from) {
			return
		}
		sess.State = session.AwaitingAdminAdd
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, promptScreen("Admin", "Send the numeric Telegram user id to grant access."))
		return
	case "admin_remove_menu":
		if !b.requireOwner(ctx, cb, from) {
			return
		}
		sess.State = session.AwaitingAdminRemove
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.adminRemoveScreen())
		return
	case "view_analytics":
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.analyticsScreen(ctx))
		return
	case "back_to_admin":
		sess.ResetPrompt()
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.adminScreen())
		return
	}

	if arg, ok := tgui.Arg(cb.Data, "chanpage_"); ok {
		if n, err := strconv.Atoi(arg); err == nil {
			sess.ListPage = n
		}
		b.answer(ctx, cb.ID, "")
		b.edit(ctx, cb, b.channelsScreen(sess.ListPage))
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "remove_channel_"); ok {
		b.onRemoveChannel(ctx, sess, cb, arg)
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "toggle_channel_"); ok {
		b.onToggleChannel(ctx, sess, cb, arg)
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "channel_"); ok {
		b.onChannelDetail(ctx, cb, arg)
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "postpage_"); ok {
		b.onPickerPage(ctx, sess, cb, arg)
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "schedule_detail_"); ok {
		b.onScheduleDetail(ctx, cb, arg)
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "schedule_cancel_"); ok {
		b.onScheduleCancel(ctx, cb, arg, from)
		return
	}
	if arg, ok := tgui.Arg(cb.Data, "admin_remove_"); ok {
		b.onAdminRemoveButton(ctx, cb, arg, from)
		return
	}

	b.log.Debug("unknown callback", logx.String("data", cb.Data), logx.String("admin", from))
	b.answer(ctx, cb.ID, "")
}

func (b *Bot) requireOwner(ctx context.Context, cb *transport.Callback, from string) bool {
	if b.store.IsOwner(from) {
		return true
	}
	b.answer(ctx, cb.ID, "Owner only")
	return false
}

func (b *Bot) onChannelDetail(ctx context.Context, cb *transport.Callback, id string) {
	for _, e := range b.store.Channels() {
		if e.ID == id {
			b.answer(ctx, cb.ID, "")
			b.edit(ctx, cb, channelDetailScreen(e))
			return
		}
	}
	b.answer(ctx, cb.ID, "Channel not found")
	b.edit(ctx, cb, b.channelsScreen(0))
}

func (b *Bot) onRemoveChannel(ctx context.Context, sess *session.Session, cb *transport.Callback, id string) {
	removed, err := b.store.RemoveChannel(id)
	if err != nil {
		b.log.Error("channel remove failed", logx.String("channel", id), logx.Err(err))
		b.answer(ctx, cb.ID, "Couldn't remove the channel")
		return
	}
	if removed {
		b.answer(ctx, cb.ID, "Channel removed")
	} else {
		b.answer(ctx, cb.ID, "Channel not found")
	}
	b.edit(ctx, cb, b.channelsScreen(sess.ListPage))
}

func (b *Bot) onScheduleUseBatch(ctx context.Context, sess *session.Session, cb *transport.Callback) {
	if sess.Batch.Len() == 0 {
		b.answer(ctx, cb.ID, "Batch is empty")
		return
	}
	sess.Flow = session.FlowSchedule
	sess.Draft.Messages = sess.Batch.Messages()
	sess.Selected.Clear()
	sess.PickPage = 0
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, b.pickerScreen(sess))
}

func (b *Bot) onScheduleDetail(ctx context.Context, cb *transport.Callback, id string) {
	j, ok := b.sched.Get(id)
	if !ok {
		b.answer(ctx, cb.ID, "That job no longer exists")
		b.edit(ctx, cb, b.scheduleScreen())
		return
	}
	b.answer(ctx, cb.ID, "")
	b.edit(ctx, cb, b.scheduleDetailScreen(j))
}

func (b *Bot) onScheduleCancel(ctx context.Context, cb *transport.Callback, id, from string) {
	found, err := b.sched.Cancel(from, id)
	if err != nil {
		b.log.Error("job cancel failed", logx.String("job", id), logx.Err(err))
		b.answer(ctx, cb.ID, "Couldn't cancel the job")
		return
	}
	if found {
		b.answer(ctx, cb.ID, "Scheduled post deleted")
	} else {
		b.answer(ctx, cb.ID, "That job no longer exists")
	}
	b.edit(ctx, cb, b.scheduleScreen())
}

func (b *Bot) onToggleNotifications(ctx context.Context, cb *transport.Callback) {
	s, err := b.store.UpdateSettings(func(st *state.Settings) {
		st.NotificationsEnabled = !st.NotificationsEnabled
	})
	if err != nil {
		b.log.Error("settings update failed", logx.Err(err))
		b.answer(ctx, cb.ID, "Couldn't save the setting")
		return
	}
	if s.NotificationsEnabled {
		b.answer(ctx, cb.ID, "Notifications on")
	} else {
		b.answer(ctx, cb.ID, "Notifications off")
	}
	b.edit(ctx, cb, b.settingsScreen())
}

func (b *Bot) onAdminRemoveButton(ctx context.Context, cb *transport.Callback, id, from string) {
	if !b.requireOwner(ctx, cb, from) {
		return
	}
	removed, err := b.store.RemoveAdmin(id)
	if err != nil {
		b.log.Error("admin remove failed", logx.Err(err))
		b.answer(ctx, cb.ID, "Couldn't update the admin set")
		return
	}
	if removed {
		b.answer(ctx, cb.ID, "Admin removed")
	} else {
		b.answer(ctx, cb.ID, "Not a removable admin")
	}
	b.edit(ctx, cb, b.adminRemoveScreen())
}
