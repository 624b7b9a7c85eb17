// Package calendar renders an interactive month-grid date picker as an
// inline keyboard. The wizard only consumes two outcomes from it: a final
// chosen date, or a fresh keyboard to redisplay (month navigation); every
// other press is a no-op.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/bionicsv26/telegram-bot/internal/chat"
)

// Callback payload grammar:
//
//	cal;day;2026-10-05  final selection
//	cal;nav;2026-10     redisplay the given month
//	cal;noop            padding cells, ignored
const (
	prefix   = "cal"
	sep      = ";"
	noopData = prefix + sep + "noop"

	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

var monthNames = map[string][]string{
	"en": {"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"},
	"ru": {"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
		"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь"},
}

var weekdayNames = map[string][]string{
	"en": {"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"},
	"ru": {"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"},
}

// langFor maps a locale like "ru_RU" to a supported name table.
func langFor(locale string) string {
	if strings.HasPrefix(locale, "ru") {
		return "ru"
	}
	return "en"
}

// Result is the outcome of processing a calendar button press.
type Result struct {
	Chosen    bool           // a final date was picked
	Date      time.Time      // valid when Chosen
	Redisplay *chat.Keyboard // non-nil when the picker should be redrawn
}

// IsCalendarData reports whether a callback payload belongs to the picker.
func IsCalendarData(data string) bool {
	return strings.HasPrefix(data, prefix+sep)
}

// Build renders the picker opened at minDate's month. Days before minDate
// are shown but inert.
func Build(locale string, minDate time.Time) chat.Keyboard {
	return buildMonth(minDate.Year(), minDate.Month(), locale, minDate)
}

// Process interprets a callback payload. minDate carries the same lower
// bound the picker was built with.
func Process(data, locale string, minDate time.Time) (Result, error) {
	parts := strings.Split(data, sep)
	if len(parts) < 2 || parts[0] != prefix {
		return Result{}, fmt.Errorf("calendar: not a calendar payload: %q", data)
	}
	switch parts[1] {
	case "noop":
		return Result{}, nil
	case "nav":
		if len(parts) != 3 {
			return Result{}, fmt.Errorf("calendar: bad nav payload: %q", data)
		}
		m, err := time.Parse(monthLayout, parts[2])
		if err != nil {
			return Result{}, fmt.Errorf("calendar: bad nav month %q: %w", parts[2], err)
		}
		kb := buildMonth(m.Year(), m.Month(), locale, minDate)
		return Result{Redisplay: &kb}, nil
	case "day":
		if len(parts) != 3 {
			return Result{}, fmt.Errorf("calendar: bad day payload: %q", data)
		}
		d, err := time.Parse(dayLayout, parts[2])
		if err != nil {
			return Result{}, fmt.Errorf("calendar: bad day %q: %w", parts[2], err)
		}
		minDay := time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC)
		if d.Before(minDay) {
			return Result{}, nil
		}
		return Result{Chosen: true, Date: d}, nil
	default:
		return Result{}, fmt.Errorf("calendar: unknown action %q", parts[1])
	}
}

func buildMonth(year int, month time.Month, locale string, minDate time.Time) chat.Keyboard {
	lang := langFor(locale)
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)
	prev := first.AddDate(0, -1, 0)
	minDay := time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC)

	var kb chat.Keyboard

	// Header: prev / month-year / next. Navigating before the minimum
	// month is inert.
	minMonth := time.Date(minDay.Year(), minDay.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevBtn := chat.Button{Label: "«", Data: noopData}
	if first.After(minMonth) {
		prevBtn = chat.Button{Label: "«", Data: prefix + sep + "nav" + sep + prev.Format(monthLayout)}
	}
	kb.Rows = append(kb.Rows, []chat.Button{
		prevBtn,
		{Label: fmt.Sprintf("%s %d", monthNames[lang][month-1], year), Data: noopData},
		{Label: "»", Data: prefix + sep + "nav" + sep + next.Format(monthLayout)},
	})

	// Weekday header.
	var wk []chat.Button
	for _, name := range weekdayNames[lang] {
		wk = append(wk, chat.Button{Label: name, Data: noopData})
	}
	kb.Rows = append(kb.Rows, wk)

	// Day grid, Monday-first weeks.
	offset := (int(first.Weekday()) + 6) % 7
	row := make([]chat.Button, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, chat.Button{Label: " ", Data: noopData})
	}
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		btn := chat.Button{Label: " ", Data: noopData}
		if !d.Before(minDay) {
			btn = chat.Button{
				Label: fmt.Sprintf("%d", d.Day()),
				Data:  prefix + sep + "day" + sep + d.Format(dayLayout),
			}
		}
		row = append(row, btn)
		if len(row) == 7 {
			kb.Rows = append(kb.Rows, row)
			row = make([]chat.Button, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, chat.Button{Label: " ", Data: noopData})
		}
		kb.Rows = append(kb.Rows, row)
	}
	return kb
}
