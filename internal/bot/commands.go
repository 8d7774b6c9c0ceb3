package bot

import (
	"context"
	"strings"
	"time"

	"github.com/samirtelegrambot/ACMProBot/internal/session"
	"github.com/samirtelegrambot/ACMProBot/internal/transport"
	"github.com/samirtelegrambot/ACMProBot/pkg/logx"
)

const (
	labelChannels = "Channels"
	labelBatch    = "Batch"
	labelSchedule = "Schedule"
	labelPost     = "Post"
	labelSettings = "Settings"
	labelAdmin    = "Admin"
	labelBack     = "Back to Main Menu"
)

func menuCommands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "start", Description: "Open the main menu"},
		{Command: "help", Description: "How the bot works"},
		{Command: "status", Description: "Uptime, jobs, and counters"},
		{Command: "preview_post", Description: "Preview and post the batch"},
		{Command: "show_batch", Description: "Show the current batch"},
		{Command: "clear_batch", Description: "Empty the current batch"},
		{Command: "cancel", Description: "Abort the current prompt"},
	}
}

// dispatchCommand claims slash commands this bot knows. Unknown commands
// fall through so prompt states can see them.
func (b *Bot) dispatchCommand(ctx context.Context, sess *session.Session, m *transport.Message, from string) bool {
	fields := strings.Fields(m.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")

	switch cmd {
	case "/start":
		sess.ResetPrompt()
		b.send(ctx, m.ChatID, welcomeScreen())
	case "/help":
		b.send(ctx, m.ChatID, helpScreen())
	case "/status":
		b.send(ctx, m.ChatID, b.statusScreen())
	case "/cancel":
		sess.ResetPrompt()
		b.replyText(ctx, m.ChatID, "Cancelled. The batch is untouched.")
	case "/show_batch":
		b.send(ctx, m.ChatID, batchSummaryScreen(sess))
	case "/clear_batch":
		sess.Batch.Clear()
		b.replyText(ctx, m.ChatID, "Batch cleared.")
	case "/preview_post":
		b.startPostFlow(ctx, sess, m.ChatID)
	default:
		return false
	}

	b.log.Debug("command handled", logx.String("cmd", cmd), logx.String("admin", from))
	return true
}

// dispatchMenuLabel claims the persistent keyboard labels. A label is
// navigation: it abandons any pending prompt first.
func (b *Bot) dispatchMenuLabel(ctx context.Context, sess *session.Session, m *transport.Message, from string) bool {
	switch m.Text {
	case labelChannels:
		sess.ResetPrompt()
		sess.ListPage = 0
		b.send(ctx, m.ChatID, b.channelsScreen(0))
	case labelBatch:
		sess.ResetPrompt()
		b.send(ctx, m.ChatID, batchScreen(sess))
	case labelSchedule:
		sess.ResetPrompt()
		b.send(ctx, m.ChatID, b.scheduleScreen())
	case labelPost:
		b.startPostFlow(ctx, sess, m.ChatID)
	case labelSettings:
		sess.ResetPrompt()
		b.send(ctx, m.ChatID, b.settingsScreen())
	case labelAdmin:
		sess.ResetPrompt()
		b.send(ctx, m.ChatID, b.adminScreen())
	case labelBack:
		sess.ResetPrompt()
		b.send(ctx, m.ChatID, welcomeScreen())
	default:
		return false
	}

	b.log.Debug("menu label handled", logx.String("label", m.Text), logx.String("admin", from))
	return true
}

const displayTime = "2006-01-02 15:04"

// fmtTime renders t in the scheduler's timezone, or a dash for zero.
func (b *Bot) fmtTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.In(b.sched.Location()).Format(displayTime)
}
