// Package keyboard builds inline keyboards whose buttons carry raw callback data.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline button. Data is sent verbatim as callback_data.
type Button struct {
	Text string
	Data string
}

// Btn is shorthand for Button{Text: text, Data: data}.
func Btn(text, data string) Button {
	return Button{Text: text, Data: data}
}

// Inline builds an inline keyboard where each provided button is placed on its own row.
func Inline(buttons ...Button) *tele.ReplyMarkup {
	rows := make([][]Button, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []Button{b})
	}
	return Rows(rows...)
}

// Rows builds an inline keyboard from rows of buttons. Empty rows are skipped.
func Rows(rows ...[]Button) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Grid splits a flat list of buttons into rows with up to n buttons per row.
// If n <= 1, it behaves like Inline (one per row).
func Grid(buttons []Button, n int) *tele.ReplyMarkup {
	if n <= 1 {
		return Inline(buttons...)
	}
	var rows [][]Button
	for i := 0; i < len(buttons); i += n {
		end := i + n
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}
	return Rows(rows...)
}

// Flatten lists every button of markup in reading order.
func Flatten(markup *tele.ReplyMarkup) []Button {
	if markup == nil {
		return nil
	}
	var out []Button
	for _, row := range markup.InlineKeyboard {
		for _, b := range row {
			out = append(out, Button{Text: b.Text, Data: b.Data})
		}
	}
	return out
}
