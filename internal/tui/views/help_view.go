package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	"github.com/srvmarket/srvchat/internal/tui/ui"
)

// HelpView lists the key bindings and commands.
type HelpView struct {
	*tview.TextView
}

type helpSection struct {
	title string
	keys  [][2]string
}

var helpSections = []helpSection{
	{"Global", [][2]string{
		{":", "Command mode"},
		{"Esc", "Cancel / go back"},
		{"?", "This help"},
		{"q", "Quit / back"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Conversations", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Open the nth conversation"},
		{"/", "Filter by name or message"},
		{"0", "Clear filter"},
		{"n", "New conversation with a provider"},
		{"r", "Refresh now"},
		{"a", "Mark everything read"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send (in composer)"},
		{"o", "Load older messages"},
		{"d", "Conversation details"},
	}},
	{"Commands", [][2]string{
		{":open <name>", "Open a conversation by participant name"},
		{":new <provider-id>", "Start a conversation"},
		{":refresh", "Refresh conversations"},
		{":readall", "Mark everything read"},
		{":login <viewer> <token>", "Sign in and remember the credential"},
		{":logout", "Sign out and forget local data"},
		{":help, :h", "This help"},
		{":quit, :q", "Quit"},
	}},
}

func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	kc := ui.ColorName(theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, k := range s.keys {
			fmt.Fprintf(&b, "  [%s]%-24s[-:-:-] %s\n", kc, tview.Escape(k[0]), k[1])
		}
	}
	_, _ = fmt.Fprint(tv, b.String())
	return &HelpView{TextView: tv}
}

func (hv *HelpView) Name() string { return "Help" }

func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back"}}
}
