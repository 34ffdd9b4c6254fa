package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/tui/ui"
)

// ConversationList is the table of the viewer's conversations.
type ConversationList struct {
	*tview.Table
	theme         *ui.Theme
	conversations []api.Conversation
	visible       []api.Conversation
	filter        string
}

func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

func (cl *ConversationList) Name() string { return "Conversations" }

func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "n", Description: "New"},
		{Key: "r", Description: "Refresh"},
		{Key: "a", Description: "Read all"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the list, keeping the selected conversation when it is still present.
func (cl *ConversationList) Update(conversations []api.Conversation) {
	selected := cl.SelectedID()
	cl.conversations = conversations
	cl.render()
	if selected == "" {
		return
	}
	for i, c := range cl.visible {
		if c.ID == selected {
			cl.Select(i+1, 0)
			return
		}
	}
}

// SetFilter shows only conversations whose participant name or last message
// contains filter, ignoring case.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

func (cl *ConversationList) matches(c api.Conversation) bool {
	if cl.filter == "" {
		return true
	}
	f := strings.ToLower(cl.filter)
	return strings.Contains(strings.ToLower(c.OtherUserName), f) ||
		strings.Contains(strings.ToLower(preview(c)), f)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" STATE", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = cl.visible[:0]
	for _, c := range cl.conversations {
		if !cl.matches(c) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		name := c.OtherUserName
		color := cl.theme.FgColor
		if c.Unread > 0 {
			name = fmt.Sprintf("(%d) %s", c.Unread, name)
			color = cl.theme.UnreadColor
		}
		state := "active"
		if !c.IsActive {
			state = "closed"
			color = cl.theme.InactiveColor
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview(c)))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(lastActivity(c))).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(state).SetTextColor(color).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d/%d) filter: %s ", len(cl.visible), len(cl.conversations), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.conversations)))
	}
}

// SelectedID returns the id of the highlighted conversation, or "".
func (cl *ConversationList) SelectedID() string {
	row, _ := cl.GetSelection()
	return cl.IDByIndex(row)
}

// IDByIndex returns the id of the nth visible conversation, counting from 1.
func (cl *ConversationList) IDByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}

// Find returns the conversation with id.
func (cl *ConversationList) Find(id string) (api.Conversation, bool) {
	for _, c := range cl.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return api.Conversation{}, false
}

// FindByName returns the first conversation whose participant name contains name.
func (cl *ConversationList) FindByName(name string) (api.Conversation, bool) {
	name = strings.ToLower(name)
	for _, c := range cl.conversations {
		if strings.Contains(strings.ToLower(c.OtherUserName), name) {
			return c, true
		}
	}
	return api.Conversation{}, false
}

func preview(c api.Conversation) string {
	m := c.LastMessage
	if m == nil {
		return ""
	}
	text := messageText(*m)
	if m.FromMe {
		text = "You: " + text
	}
	return strings.ReplaceAll(text, "\n", " ")
}

func lastActivity(c api.Conversation) int64 {
	if c.LastMessageAtMs != 0 {
		return c.LastMessageAtMs
	}
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAtMs
	}
	return c.CreatedAtMs
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
