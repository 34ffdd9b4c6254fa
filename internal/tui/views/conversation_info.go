package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/tui/ui"
)

// ConversationInfo shows the details of one conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

func (ci *ConversationInfo) Name() string { return "Details" }

func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

func (ci *ConversationInfo) Update(c *api.Conversation) {
	ci.Clear()
	if c == nil {
		return
	}

	fg := ui.ColorName(ci.theme.FgColor)
	val := ui.ColorName(ci.theme.CounterColor)

	state := "Active"
	if !c.IsActive {
		state = "Closed"
	}
	last := formatTimestamp(lastActivity(*c))
	if last == "" {
		last = "-"
	}

	rows := []struct{ label, value string }{
		{"With:", c.OtherUserName},
		{"User ID:", c.OtherUserID},
		{"Client:", c.ClientID},
		{"Provider:", c.ProviderID},
		{"State:", state},
		{"Unread:", fmt.Sprint(c.Unread)},
		{"Created:", formatTimestamp(c.CreatedAtMs)},
		{"Last Active:", last},
		{"Last Message:", preview(*c)},
		{"ID:", c.ID},
	}
	_, _ = fmt.Fprintln(ci)
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r.label, val, tview.Escape(sanitizeForTerminal(r.value)))
	}
	ci.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(c.OtherUserName))))
}
