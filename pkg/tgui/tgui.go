package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline is a small builder for inline keyboards (ReplyMarkup).
// It stores rows as tele.Row ([]tele.Btn) and applies them via ReplyMarkup.Inline().
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a new row (buttons) to the inline keyboard.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Grid appends buttons split into cols columns.
func (i *Inline) Grid(cols int, buttons []tele.Btn) *Inline {
	if cols <= 0 {
		cols = 2
	}
	for _, row := range i.rm.Split(cols, buttons) {
		i.rows = append(i.rows, row)
	}
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button with raw callback_data (we do NOT encode it).
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

// ConfirmRow builds a simple 2-button confirm row.
func ConfirmRow(yes, no tele.Btn) *Inline {
	return NewInline().Row(yes, no)
}

// Reply builds a persistent reply keyboard (the bottom menu).
type Reply struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewReply() *Reply {
	return &Reply{rm: &tele.ReplyMarkup{ResizeKeyboard: true}}
}

// Row appends a row of plain text buttons.
func (r *Reply) Row(labels ...string) *Reply {
	btns := make([]tele.Btn, 0, len(labels))
	for _, l := range labels {
		btns = append(btns, tele.Btn{Text: l})
	}
	r.rows = append(r.rows, r.rm.Row(btns...))
	r.rm.Reply(r.rows...)
	return r
}

// Markup returns underlying reply markup.
func (r *Reply) Markup() *tele.ReplyMarkup { return r.rm }
