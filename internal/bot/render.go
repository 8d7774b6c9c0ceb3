package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	tele "gopkg.in/telebot.v4"

	"github.com/samirtelegrambot/ACMProBot/internal/batch"
	"github.com/samirtelegrambot/ACMProBot/internal/picker"
	"github.com/samirtelegrambot/ACMProBot/internal/schedule"
	"github.com/samirtelegrambot/ACMProBot/internal/session"
	"github.com/samirtelegrambot/ACMProBot/internal/state"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
	"github.com/samirtelegrambot/ACMProBot/pkg/tgui"
)

func mainMenu() *tgui.Reply {
	return tgui.NewReply().
		Row(labelChannels, labelBatch).
		Row(labelSchedule, labelPost).
		Row(labelSettings, labelAdmin)
}

func welcomeScreen() tgui.Message {
	return tgui.New().
		Title("", "Channel Broadcast Bot").
		Blank().
		Line("Build a batch of messages, then post it to your channels now or on a schedule.").
		Line("Use the menu below, or /help for the command list.").
		Reply(mainMenu()).
		Build()
}

func helpScreen() tgui.Message {
	return tgui.New().
		Title("", "Help").
		Blank().
		Section("Commands").
		KV("/start", "open the main menu").
		KV("/status", "uptime, jobs, and counters").
		KV("/preview_post", "preview and post the batch").
		KV("/show_batch", "show the current batch").
		KV("/clear_batch", "empty the current batch").
		KV("/cancel", "abort the current prompt").
		Blank().
		Section("Flow").
		Line("Batch: collect up to 25 messages (text, media, or a blob split on blank lines).").
		Line("Post: pick channels, confirm, and the batch goes out with your delay and footer.").
		Line("Schedule: the same, but at a time you choose.").
		Build()
}

func (b *Bot) statusScreen() tgui.Message {
	doc := b.store.Snapshot()
	st := b.sched.Status()

	msg := tgui.New().
		Title("", "Status").
		Blank().
		KV("Uptime", time.Since(b.startedAt).Truncate(time.Second).String()).
		KV("Admins", fmt.Sprintf("%d", len(doc.Admins))).
		KV("Channels", fmt.Sprintf("%d", len(doc.Channels))).
		Blank().
		Section("Scheduler")
	if !st.Enabled {
		msg.Line("Disabled.")
	} else {
		msg.KV("Pending jobs", fmt.Sprintf("%d", st.Pending)).
			KV("Next sweep", b.fmtTime(st.NextTick)).
			KV("Timezone", st.Timezone)
	}

	msg.Blank().Section("Totals").
		KV("Posts", humanize.Comma(doc.Stats.TotalPosts)).
		KV("Batches", humanize.Comma(doc.Stats.TotalBatches))
	if doc.Stats.LastPostAt != nil {
		msg.KV("Last post", fmt.Sprintf("%s to %d channel(s)",
			humanize.Time(*doc.Stats.LastPostAt), len(doc.Stats.LastPostChannels)))
	} else {
		msg.KV("Last post", "never")
	}

	if b.archive != nil {
		msg.KV("Archive", "on")
	} else {
		msg.KV("Archive", "off")
	}
	return msg.Build()
}

func clampPage(page, items, size int) int {
	if page < 0 {
		return 0
	}
	total := (items + size - 1) / size
	if total > 0 && page >= total {
		return total - 1
	}
	return page
}

func (b *Bot) channelsScreen(page int) tgui.Message {
	entries := b.store.Channels()
	msg := tgui.New().Title("", "Channels").Blank()
	kb := tgui.NewInline()

	if len(entries) == 0 {
		msg.Line("No channels yet. Add the first one.")
		kb.Row(tgui.Btn("Add Channel", "add_channel"))
		return msg.Inline(kb).Build()
	}

	page = clampPage(page, len(entries), pageSize)
	items, total := picker.Page(entries, page, pageSize)

	msg.Line(fmt.Sprintf("%d channel(s). Tap one for details.", len(entries)))
	if total > 1 {
		msg.Line(fmt.Sprintf("Page %d of %d.", page+1, total))
	}

	btns := make([]tele.Btn, 0, len(items))
	for _, e := range items {
		btns = append(btns, tgui.Btn(e.Name, tgui.Data("channel_", e.ID)))
	}
	kb.Grid(2, btns)
	if nav := pagerRow("chanpage_", page, total); len(nav) > 0 {
		kb.Row(nav...)
	}
	kb.Row(tgui.Btn("Add Channel", "add_channel"))
	return msg.Inline(kb).Build()
}

func pagerRow(prefix string, page, total int) []tele.Btn {
	if total <= 1 {
		return nil
	}
	var nav []tele.Btn
	if page > 0 {
		nav = append(nav, tgui.Btn("« Prev", fmt.Sprintf("%s%d", prefix, page-1)))
	}
	if page < total-1 {
		nav = append(nav, tgui.Btn("Next »", fmt.Sprintf("%s%d", prefix, page+1)))
	}
	return nav
}

func channelDetailScreen(e state.ChannelEntry) tgui.Message {
	msg := tgui.New().
		Title("", e.Name).
		Blank().
		KV("ID", e.ID).
		KV("Type", string(e.Type))
	if e.SubscriberCount != nil {
		msg.KV("Subscribers", humanize.Comma(int64(*e.SubscriberCount)))
	} else {
		msg.KV("Subscribers", "unknown")
	}

	kb := tgui.NewInline().
		Row(tgui.Btn("Remove Channel", tgui.Data("remove_channel_", e.ID))).
		Row(tgui.Btn("Back", "back_to_channels"))
	return msg.Inline(kb).Build()
}

func batchKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("Add Message", "batch_add"), tgui.Btn("Paste Blob", "batch_blob")).
		Row(tgui.Btn("Show Batch", "batch_show"), tgui.Btn("Clear Batch", "batch_clear"))
}

func batchScreen(sess *session.Session) tgui.Message {
	msg := tgui.New().Title("", "Batch").Blank()
	if n := sess.Batch.Len(); n == 0 {
		msg.Line("Batch is empty. Add messages one by one, or paste a blob split on blank lines.")
	} else {
		msg.Line(fmt.Sprintf("%d of %d message(s) queued.", n, batch.MaxMessages))
	}
	return msg.Inline(batchKeyboard()).Build()
}

func batchSummaryScreen(sess *session.Session) tgui.Message {
	msg := tgui.New().Title("", "Batch").Blank()
	if sess.Batch.Len() == 0 {
		msg.Line("Batch is empty.")
	} else {
		msg.Line(fmt.Sprintf("%d message(s):", sess.Batch.Len()))
		msg.Pre(sess.Batch.Summary(10))
	}
	return msg.Inline(batchKeyboard()).Build()
}

func previewScreen(sess *session.Session, footer string) tgui.Message {
	msg := tgui.New().
		Title("", "Post Preview").
		Blank().
		Line(fmt.Sprintf("%d message(s) ready to go.", sess.Batch.Len())).
		Pre(sess.Batch.Summary(10))
	if footer != "" {
		msg.KV("Footer", tgui.TruncRunes(footer, 48))
	}

	kb := tgui.NewInline().Row(
		tgui.Btn("Continue", "post_continue"),
		tgui.Btn("Cancel", "cancel_post"),
	)
	return msg.Inline(kb).Build()
}

// pickerScreen renders the channel toggle grid for the active flow.
// The caller holds the session lock; the clamped page is written back.
func (b *Bot) pickerScreen(sess *session.Session) tgui.Message {
	entries := b.store.Channels()
	title := "Post: Select Channels"
	if sess.Flow == session.FlowSchedule {
		title = "Schedule: Select Channels"
	}
	msg := tgui.New().Title("", title).Blank()

	if len(entries) == 0 {
		msg.Line("No channels configured. Add one in the Channels menu first.")
		kb := tgui.NewInline().Row(tgui.Btn("Cancel", "cancel_post"))
		return msg.Inline(kb).Build()
	}

	sess.PickPage = clampPage(sess.PickPage, len(entries), pageSize)
	items, total := picker.Page(entries, sess.PickPage, pageSize)

	msg.Line(fmt.Sprintf("%d of %d channel(s) selected.", sess.Selected.Len(), len(entries)))
	if total > 1 {
		msg.Line(fmt.Sprintf("Page %d of %d.", sess.PickPage+1, total))
	}

	btns := make([]tele.Btn, 0, len(items))
	for _, e := range items {
		label := e.Name
		if sess.Selected.Has(e.ID) {
			label = "✅ " + label
		}
		btns = append(btns, tgui.Btn(label, tgui.Data("toggle_channel_", e.ID)))
	}

	kb := tgui.NewInline()
	kb.Grid(2, btns)
	kb.Row(tgui.Btn("Select All", "post_select_all"), tgui.Btn("Select None", "post_select_none"))
	if nav := pagerRow("postpage_", sess.PickPage, total); len(nav) > 0 {
		kb.Row(nav...)
	}
	if sess.Flow == session.FlowSchedule {
		kb.Row(tgui.Btn("Continue", "post_continue"), tgui.Btn("Cancel", "cancel_post"))
	} else {
		kb.Row(tgui.Btn("Confirm Post", "confirm_post"), tgui.Btn("Cancel", "cancel_post"))
	}
	return msg.Inline(kb).Build()
}

func (b *Bot) scheduleScreen() tgui.Message {
	st := b.sched.Status()
	jobs := b.sched.Jobs()

	msg := tgui.New().Title("", "Scheduled Posts").Blank()
	if !st.Enabled {
		msg.Line("Scheduler is disabled in the config. Jobs can be created but will not run.")
	} else {
		msg.KV("Pending", fmt.Sprintf("%d", len(jobs))).
			KV("Next sweep", b.fmtTime(st.NextTick))
	}

	kb := tgui.NewInline()
	if len(jobs) == 0 {
		msg.Blank().Line("Nothing scheduled.")
	} else {
		shown := jobs
		if len(shown) > 10 {
			shown = shown[:10]
			msg.Blank().Line(fmt.Sprintf("Showing the first 10 of %d.", len(jobs)))
		}
		for _, j := range shown {
			kb.Row(tgui.Btn(jobLabel(b, j), tgui.Data("schedule_detail_", j.ID)))
		}
	}
	kb.Row(tgui.Btn("New Scheduled Post", "schedule_new"))
	kb.Row(tgui.Btn("Refresh", "view_scheduled"))
	return msg.Inline(kb).Build()
}

func jobLabel(b *Bot, j schedule.Job) string {
	when := "bad time"
	if j.OK {
		when = b.fmtTime(j.At)
	}
	return fmt.Sprintf("%s · %d ch · %d msg", when, len(j.Post.Channels), len(j.Post.Messages))
}

func scheduleSourceScreen(batchLen int) tgui.Message {
	msg := tgui.New().
		Title("", "New Scheduled Post").
		Blank().
		Line("Where do the messages come from?")

	kb := tgui.NewInline()
	if batchLen > 0 {
		kb.Row(tgui.Btn(fmt.Sprintf("Use Current Batch (%d)", batchLen), "schedule_use_batch"))
	}
	kb.Row(tgui.Btn("Single Message", "schedule_fresh"))
	kb.Row(tgui.Btn("Back", "back_to_schedule"))
	return msg.Inline(kb).Build()
}

func (b *Bot) scheduleDetailScreen(j schedule.Job) tgui.Message {
	msg := tgui.New().
		Title("", "Scheduled Post").
		Blank().
		KV("Job", shortID(j.ID))
	if j.OK {
		msg.KV("When", b.fmtTime(j.At))
	} else {
		msg.KV("When", fmt.Sprintf("unreadable (%s)", j.Post.ScheduleTime))
	}
	msg.KV("Created", humanize.Time(j.Post.CreatedAt)).
		KV("By", j.Post.AdminID).
		KV("Channels", fmt.Sprintf("%d", len(j.Post.Channels))).
		KV("Messages", fmt.Sprintf("%d", len(j.Post.Messages))).
		Pre(messagesPreview(j.Post.Messages, 5))

	kb := tgui.NewInline().
		Row(tgui.Btn("Cancel Job", tgui.Data("schedule_cancel_", j.ID))).
		Row(tgui.Btn("Back", "back_to_schedule"))
	return msg.Inline(kb).Build()
}

func messagesPreview(msgs []batch.Message, limit int) string {
	if limit > len(msgs) {
		limit = len(msgs)
	}
	out := ""
	for i := 0; i < limit; i++ {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%d. %s", i+1, messageLine(msgs[i]))
	}
	if rest := len(msgs) - limit; rest > 0 {
		out += fmt.Sprintf("\n+%d more", rest)
	}
	return out
}

func messageLine(m batch.Message) string {
	if m.Kind == batch.KindText {
		return tgui.TruncRunes(m.Content, 60)
	}
	if m.Caption != "" {
		return fmt.Sprintf("[%s] %s", m.Kind, tgui.TruncRunes(m.Caption, 48))
	}
	return fmt.Sprintf("[%s]", m.Kind)
}

func (b *Bot) settingsScreen() tgui.Message {
	s := b.store.Settings()

	notif := "off"
	if s.NotificationsEnabled {
		notif = "on"
	}
	footer := "not set"
	if s.Footer != "" {
		footer = tgui.TruncRunes(s.Footer, 48)
	}

	msg := tgui.New().
		Title("", "Settings").
		Blank().
		KV("Delay", fmt.Sprintf("%.1fs between messages", s.DelaySeconds)).
		KV("Retries", fmt.Sprintf("%d attempt(s) per message", s.MaxRetries)).
		KV("Notifications", notif).
		KV("Footer", footer)

	kb := tgui.NewInline().
		Row(tgui.Btn("Set Delay", "set_delay"), tgui.Btn("Set Retries", "set_retry")).
		Row(tgui.Btn("Set Footer", "set_footer"), tgui.Btn("Notifications: "+notif, "toggle_notifications"))
	return msg.Inline(kb).Build()
}

func (b *Bot) adminScreen() tgui.Message {
	owner := b.store.Owner()
	msg := tgui.New().Title("", "Admin").Blank().Section("Admins")
	for _, id := range b.store.Admins() {
		if id == owner {
			msg.Line(id + " (owner)")
		} else {
			msg.Line(id)
		}
	}

	kb := tgui.NewInline().
		Row(tgui.Btn("Add Admin", "admin_add"), tgui.Btn("Remove Admin", "admin_remove_menu")).
		Row(tgui.Btn("Analytics", "view_analytics"))
	return msg.Inline(kb).Build()
}

func (b *Bot) adminRemoveScreen() tgui.Message {
	owner := b.store.Owner()
	msg := tgui.New().Title("", "Remove Admin").Blank()

	kb := tgui.NewInline()
	others := 0
	for _, id := range b.store.Admins() {
		if id == owner {
			continue
		}
		others++
		kb.Row(tgui.Btn(id, tgui.Data("admin_remove_", id)))
	}
	if others == 0 {
		msg.Line("No other admins.")
	} else {
		msg.Line("Tap an admin to revoke access, or send their id.")
	}
	kb.Row(tgui.Btn("Back", "back_to_admin"))
	return msg.Inline(kb).Build()
}

func (b *Bot) analyticsScreen(ctx context.Context) tgui.Message {
	doc := b.store.Snapshot()

	msg := tgui.New().
		Title("", "Analytics").
		Blank().
		Section("Totals").
		KV("Posts", humanize.Comma(doc.Stats.TotalPosts)).
		KV("Batches", humanize.Comma(doc.Stats.TotalBatches))
	if doc.Stats.LastPostAt != nil {
		msg.KV("Last post", fmt.Sprintf("%s to %d channel(s)",
			humanize.Time(*doc.Stats.LastPostAt), len(doc.Stats.LastPostChannels)))
	}

	msg.Blank().Section("Per admin")
	for _, id := range b.store.Admins() {
		as := doc.AdminStats[id]
		line := fmt.Sprintf("%s: %d post(s), %d batch(es)", id, as.Posts, as.Batches)
		if as.LastActionAt != nil {
			line += ", last " + humanize.Time(*as.LastActionAt)
		}
		msg.Line(line)
	}

	msg.Blank().Section("Last 7 days")
	active := 0
	now := b.now()
	for i := 0; i < 7; i++ {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		ds, ok := doc.PostAnalytics[day]
		if !ok {
			continue
		}
		active++
		msg.Line(fmt.Sprintf("%s: %d post(s), %d batch(es), %d failed", day, ds.Posts, ds.Batches, ds.Failures))
	}
	if active == 0 {
		msg.Line("No activity.")
	}

	if b.archive != nil {
		msg.Blank().Section("Recent deliveries")
		recs, err := b.archive.Recent(ctx, 5)
		switch {
		case err != nil:
			b.log.Warn("archive read failed", logx.Err(err))
			msg.Line("Archive unavailable.")
		case len(recs) == 0:
			msg.Line("Nothing archived yet.")
		default:
			for _, r := range recs {
				msg.Line(fmt.Sprintf("%s %s: %d sent, %d failed, %d channel(s)",
					r.At.Format(displayTime), r.Kind, r.Sent, r.Failed, len(r.Channels)))
			}
		}
	}

	kb := tgui.NewInline().Row(tgui.Btn("Back", "back_to_admin"))
	return msg.Inline(kb).Build()
}
