package views

import (
	"fmt"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/tui/ui"
)

// MessageThread shows the open conversation above a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	thread   *api.ThreadResponse
	onSend   func(text string)
}

func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}
	mt.updateCounter("")

	composer.SetChangedFunc(mt.updateCounter)
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		// Validation happens in the daemon so the rules live in one place.
		if text := composer.GetText(); text != "" {
			mt.onSend(text)
		}
	})

	return mt
}

func (mt *MessageThread) Name() string {
	if mt.thread != nil && mt.thread.Conversation.OtherUserName != "" {
		return mt.thread.Conversation.OtherUserName
	}
	return "Messages"
}

func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "o", Description: "Older"},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// ClearComposer empties the composer after a successful send.
func (mt *MessageThread) ClearComposer() {
	mt.composer.SetText("")
}

func (mt *MessageThread) updateCounter(text string) {
	n := utf8.RuneCountInString(text)
	color := mt.theme.CounterColor
	if n > chat.MaxContentLength {
		color = mt.theme.FlashErrColor
	}
	mt.composer.SetTitle(fmt.Sprintf(" Compose (i to focus) [%s]%d/%d[-] ", ui.ColorName(color), n, chat.MaxContentLength))
}

// ConversationID returns the id of the shown thread, or "".
func (mt *MessageThread) ConversationID() string {
	if mt.thread == nil {
		return ""
	}
	return mt.thread.Conversation.ID
}

// Conversation returns the shown conversation.
func (mt *MessageThread) Conversation() *api.Conversation {
	if mt.thread == nil {
		return nil
	}
	c := mt.thread.Conversation
	return &c
}

// Update renders t, oldest message first. A nil t clears the view.
func (mt *MessageThread) Update(t *api.ThreadResponse) {
	// A reader scrolled up in the same thread keeps their place.
	keepScroll := mt.thread != nil && t != nil && mt.thread.Conversation.ID == t.Conversation.ID && !mt.atEnd()
	row, _ := mt.messages.GetScrollOffset()

	mt.thread = t
	mt.messages.Clear()
	if t == nil {
		mt.messages.SetTitle(" Messages ")
		return
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(mt.Name()))))

	if t.HasMore {
		_, _ = fmt.Fprintf(mt.messages, "[%s::d]  press o for older messages[-:-:-]\n\n", ui.ColorName(mt.theme.FgColor))
	}
	if len(t.Messages) == 0 {
		_, _ = fmt.Fprint(mt.messages, "  No messages yet.\n")
	}
	if !t.Conversation.IsActive {
		_, _ = fmt.Fprintf(mt.messages, "[%s]  This conversation is closed.[-]\n\n", ui.ColorName(mt.theme.InactiveColor))
	}

	for _, m := range t.Messages {
		sender := mt.Name()
		color := mt.theme.OtherMessageColor
		if m.FromMe {
			sender = "You"
			color = mt.theme.OwnMessageColor
		}
		ts := formatTimestamp(m.CreatedAtMs)
		receipt := ""
		if m.FromMe {
			receipt = " " + receiptMark(m.Status)
		}
		_, _ = fmt.Fprintf(mt.messages, "[%s::b]%s[-:-:-] [::d]%s%s[-:-:-]\n%s\n\n",
			ui.ColorName(color), tview.Escape(sanitizeForTerminal(sender)), ts, receipt,
			tview.Escape(sanitizeForTerminal(messageText(m))))
	}

	if keepScroll {
		mt.messages.ScrollTo(row, 0)
	} else {
		mt.messages.ScrollToEnd()
	}
}

func (mt *MessageThread) atEnd() bool {
	row, _ := mt.messages.GetScrollOffset()
	_, _, _, height := mt.messages.GetInnerRect()
	return row+height >= mt.messages.GetOriginalLineCount()
}

func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func messageText(m api.Message) string {
	if m.Kind == string(chat.KindFile) && m.Attachment != nil {
		text := fmt.Sprintf("[file] %s (%s)", m.Attachment.Name, formatSize(m.Attachment.Size))
		if m.Content != "" {
			text += " " + m.Content
		}
		return text
	}
	return m.Content
}

func receiptMark(status string) string {
	switch chat.DeliveryStatus(status) {
	case chat.StatusRead:
		return "read"
	case chat.StatusDelivered:
		return "delivered"
	default:
		return "sent"
	}
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
