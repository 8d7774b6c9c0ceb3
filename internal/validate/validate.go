// Package validate holds the pure input validators shared by the bot
// surface and the scheduler. Everything here is total: bad input yields
// a false/zero result, never an error or a panic.
package validate

import (
	"strconv"
	"strings"
	"time"
)

// maxUserID bounds Telegram user ids (exclusive).
const maxUserID = int64(10_000_000_000)

// ChannelID reports whether s is a usable channel reference: a public
// @handle (letter first, then 5-32 letters/digits/underscores total) or
// a private "-100" chat id followed by exactly ten digits.
func ChannelID(s string) bool {
	if h, ok := strings.CutPrefix(s, "@"); ok {
		return validHandle(h)
	}
	if rest, ok := strings.CutPrefix(s, "-100"); ok {
		return len(rest) == 10 && allDigits(rest)
	}
	return false
}

func validHandle(h string) bool {
	if len(h) < 5 || len(h) > 32 {
		return false
	}
	c := h[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return false
	}
	for i := 1; i < len(h); i++ {
		c := h[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// UserID reports whether s is a plausible Telegram user id: a decimal
// integer strictly between zero and 10^10.
func UserID(s string) bool {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return false
	}
	return n > 0 && n < maxUserID
}

// scheduleLayouts are tried in order. A bare clock time is handled
// separately because it needs date resolution.
var scheduleLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

const clockLayout = "15:04"

// ParseScheduleTime parses operator-entered schedule text. Full layouts
// are tried first; a bare HH:MM resolves against now's date in loc and
// rolls over to tomorrow when the result would not be strictly in the
// future. Returns false when nothing matches.
func ParseScheduleTime(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, true
		}
	}

	t, err := time.ParseInLocation(clockLayout, text, loc)
	if err != nil {
		return time.Time{}, false
	}

	now = now.In(loc)
	at := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}
