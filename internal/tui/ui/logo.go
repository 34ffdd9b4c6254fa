package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header banner.
type Logo struct {
	*tview.TextView
}

// NewLogo creates the header banner.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	title := ColorName(theme.TitleColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]╔═╗╦═╗╦  ╦[-:-:-]\n"+
			"[%s::b]╚═╗╠╦╝╚╗╔╝[-:-:-]\n"+
			"[%s::b]╚═╝╩╚═ ╚╝ [-:-:-]\n"+
			"[%s]marketplace chat[-]",
		title, title, title, ColorName(theme.FgColor),
	)
	return &Logo{TextView: tv}
}
