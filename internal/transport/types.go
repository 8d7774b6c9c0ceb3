package transport

import (
	"context"
	"strconv"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Message is a platform-neutral incoming message. Media attachments are
// carried as opaque file references the adapter knows how to send back
// or download.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	Caption      string

	PhotoRef    string
	VideoRef    string
	DocumentRef string
	FileName    string
	FileSize    int64
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// ChatTarget addresses a chat by platform id: a decimal user/chat id or
// a public @handle.
type ChatTarget struct {
	ID string
}

func (t ChatTarget) IsZero() bool { return t.ID == "" }

// UserTarget addresses a private chat with the given user.
func UserTarget(userID int64) ChatTarget {
	return ChatTarget{ID: strconv.FormatInt(userID, 10)}
}

// ChannelTarget addresses a channel by its stored id ("-100..." or "@handle").
func ChannelTarget(id string) ChatTarget { return ChatTarget{ID: id} }

type MessageRef struct {
	Target    ChatTarget
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// ChatInfo describes a chat as reported by the platform.
type ChatInfo struct {
	ID          int64
	Title       string
	Username    string
	Type        string // "channel", "supergroup", ...
	MemberCount int
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, fileRef, caption string, opt *SendOptions) (MessageRef, error)
	SendVideo(ctx context.Context, to ChatTarget, fileRef, caption string, opt *SendOptions) (MessageRef, error)
	SendDocument(ctx context.Context, to ChatTarget, fileRef, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// ChatInfo resolves a channel id or @handle to its live metadata.
	ChatInfo(ctx context.Context, id string) (ChatInfo, error)

	// DownloadFile fetches a file by reference, up to maxBytes.
	DownloadFile(ctx context.Context, fileRef string, maxBytes int64) ([]byte, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
