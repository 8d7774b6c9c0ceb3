package tgui

import (
	"strings"
	"testing"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"héllo", 3, "hél…"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestEscAndWrap(t *testing.T) {
	t.Parallel()
	if got := Esc("<b>&").String(); got != "&lt;b&gt;&amp;" {
		t.Errorf("Esc = %q", got)
	}
	if got := B("x<y").String(); got != "<b>x&lt;y</b>" {
		t.Errorf("B = %q", got)
	}
	if got := Code("a&b").String(); got != "<code>a&amp;b</code>" {
		t.Errorf("Code = %q", got)
	}
}

func TestBuilderEscapesLines(t *testing.T) {
	t.Parallel()
	m := New().
		Title("📋", "Channels").
		Blank().
		KV("Total", "2").
		Line("<script>").
		Build()

	if !strings.Contains(m.Text, "<b>Channels</b>") {
		t.Errorf("title not bold: %q", m.Text)
	}
	if !strings.Contains(m.Text, "&lt;script&gt;") {
		t.Errorf("line not escaped: %q", m.Text)
	}
	if m.Opt == nil || m.Opt.ParseMode != "HTML" || !m.Opt.DisablePreview {
		t.Errorf("opt = %+v", m.Opt)
	}
}

func TestCallbackData(t *testing.T) {
	t.Parallel()
	d := Data("channel_", "-1001234567890")
	if d != "channel_-1001234567890" {
		t.Errorf("Data = %q", d)
	}
	arg, ok := Arg(d, "channel_")
	if !ok || arg != "-1001234567890" {
		t.Errorf("Arg = %q, %v", arg, ok)
	}
	if _, ok := Arg(d, "remove_channel_"); ok {
		t.Error("Arg matched wrong prefix")
	}

	long := Data("x_", strings.Repeat("a", 100))
	if len(long) != MaxCallbackDataLen {
		t.Errorf("len = %d, want %d", len(long), MaxCallbackDataLen)
	}
}

func TestInlineAndReplyMarkup(t *testing.T) {
	t.Parallel()
	ik := NewInline().
		Row(Btn("A", "a"), Btn("B", "b")).
		Row(Btn("C", "c"))
	if got := len(ik.Markup().InlineKeyboard); got != 2 {
		t.Fatalf("inline rows = %d, want 2", got)
	}
	if ik.Markup().InlineKeyboard[0][0].Text != "A" {
		t.Errorf("btn = %+v", ik.Markup().InlineKeyboard[0][0])
	}

	rk := NewReply().
		Row("Channels", "Batch").
		Row("Back to Main Menu")
	if got := len(rk.Markup().ReplyKeyboard); got != 2 {
		t.Fatalf("reply rows = %d, want 2", got)
	}
	if !rk.Markup().ResizeKeyboard {
		t.Error("resize not set")
	}
}
