package batch

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxMessages caps one batch; appends beyond it fail.
	MaxMessages = 25
	// MaxMessageLen bounds a single text content or caption, in runes.
	// Kept under Telegram's 4096 hard limit to leave room for the footer.
	MaxMessageLen = 4000
)

var (
	ErrBatchFull = errors.New("batch is full")
	ErrTooLong   = errors.New("message too long")
	ErrEmpty     = errors.New("batch is empty")
)

// Builder accumulates an ordered batch. Not safe for concurrent use;
// callers hold the owning session's lock.
type Builder struct {
	msgs []Message
}

func (b *Builder) Len() int { return len(b.msgs) }

// Messages returns a copy in append order.
func (b *Builder) Messages() []Message {
	out := make([]Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// Append adds one message and reports the new size. A full batch stays
// unchanged and fails with ErrBatchFull.
func (b *Builder) Append(m Message) (int, error) {
	if err := m.Validate(); err != nil {
		return len(b.msgs), err
	}
	if utf8.RuneCountInString(m.Content) > MaxMessageLen || utf8.RuneCountInString(m.Caption) > MaxMessageLen {
		return len(b.msgs), ErrTooLong
	}
	if len(b.msgs) >= MaxMessages {
		return len(b.msgs), ErrBatchFull
	}
	b.msgs = append(b.msgs, m)
	return len(b.msgs), nil
}

// AppendBlob splits text on blank lines and appends each non-empty,
// length-conforming segment as a text message, stopping at capacity.
// It reports how many messages were added; ErrBatchFull is returned
// only when the batch had no room at all.
func (b *Builder) AppendBlob(blob string) (int, error) {
	if len(b.msgs) >= MaxMessages {
		return 0, ErrBatchFull
	}

	blob = strings.ReplaceAll(blob, "\r\n", "\n")
	added := 0
	for _, seg := range strings.Split(blob, "\n\n") {
		seg = strings.TrimSpace(seg)
		if seg == "" || utf8.RuneCountInString(seg) > MaxMessageLen {
			continue
		}
		if len(b.msgs) >= MaxMessages {
			break
		}
		b.msgs = append(b.msgs, Text(seg))
		added++
	}
	return added, nil
}

func (b *Builder) Clear() { b.msgs = nil }

// Summary renders up to limit entries, one line each, with a tail line
// counting the rest.
func (b *Builder) Summary(limit int) string {
	if len(b.msgs) == 0 {
		return "Batch is empty."
	}
	if limit <= 0 || limit > len(b.msgs) {
		limit = len(b.msgs)
	}

	var sb strings.Builder
	for i := 0; i < limit; i++ {
		m := b.msgs[i]
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%d. %s", i+1, describe(m))
	}
	if rest := len(b.msgs) - limit; rest > 0 {
		fmt.Fprintf(&sb, "\n+%d more", rest)
	}
	return sb.String()
}

func describe(m Message) string {
	switch m.Kind {
	case KindText:
		return clip(m.Content, 60)
	default:
		label := strings.ToUpper(string(m.Kind[0])) + string(m.Kind[1:])
		if m.Caption == "" {
			return label
		}
		return label + ": " + clip(m.Caption, 48)
	}
}

func clip(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
