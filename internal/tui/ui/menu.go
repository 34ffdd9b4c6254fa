package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is the number of hints stacked per column in the header.
const menuRows = 5

// Menu shows the key hints of the current page in columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint panel.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 0)

	return &Menu{TextView: tv, theme: theme}
}

// Update renders hints in columns of menuRows.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, strings.Join(m.render(hints), "\n"))
}

func (m *Menu) render(hints []MenuHint) []string {
	columns := menuColumns(hints, menuRows)
	lines := make([]string, min(len(hints), menuRows))
	for _, col := range columns {
		width := 0
		for _, h := range col {
			width = max(width, len(h.Key))
		}
		for row, h := range col {
			color := m.theme.MenuKeyColor
			if h.Numeric {
				color = m.theme.NumericKeyColor
			}
			pad := strings.Repeat(" ", width-len(h.Key))
			lines[row] += fmt.Sprintf("[%s::b]<%s>[-:-:-]%s %-10s ", ColorName(color), h.Key, pad, h.Description)
		}
	}
	return lines
}

// menuColumns splits hints into columns of at most rows entries. Numeric hints
// are moved to the end so they share a column.
func menuColumns(hints []MenuHint, rows int) [][]MenuHint {
	if rows <= 0 {
		return nil
	}
	ordered := make([]MenuHint, 0, len(hints))
	var numeric []MenuHint
	for _, h := range hints {
		if h.Numeric {
			numeric = append(numeric, h)
			continue
		}
		ordered = append(ordered, h)
	}
	ordered = append(ordered, numeric...)

	var columns [][]MenuHint
	for start := 0; start < len(ordered); start += rows {
		columns = append(columns, ordered[start:min(start+rows, len(ordered))])
	}
	return columns
}
