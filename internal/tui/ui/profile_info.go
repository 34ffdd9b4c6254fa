package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// ProfileData is what the header shows about the daemon.
type ProfileData struct {
	Profile       string
	Viewer        string
	Phase         string
	Conversations int
	Unread        int
	AutoRefresh   bool
	Uptime        time.Duration
}

// ProfileInfo renders ProfileData in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates the header profile panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders data.
func (pi *ProfileInfo) Update(data *ProfileData) {
	pi.Clear()
	if data == nil {
		return
	}

	fg := ColorName(pi.theme.FgColor)
	val := ColorName(pi.theme.CounterColor)
	unread := val
	if data.Unread > 0 {
		unread = ColorName(pi.theme.UnreadColor)
	}

	viewer := data.Viewer
	if viewer == "" {
		viewer = "signed out"
	}
	refresh := "off"
	if data.AutoRefresh {
		refresh = "on"
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Viewer:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Phase:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Convs:[-:-:-]   [%s]%d[-]\n"+
			"[%s::b]Unread:[-:-:-]  [%s]%d[-]\n"+
			"[%s::b]Auto:[-:-:-]    [%s]%s[-] [%s]up %s[-]",
		fg, val, tview.Escape(data.Profile),
		fg, val, tview.Escape(viewer),
		fg, val, data.Phase,
		fg, val, data.Conversations,
		fg, unread, data.Unread,
		fg, val, refresh, val, formatDuration(data.Uptime),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
