package views

import (
	"testing"

	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/tui/ui"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"a\u200db", "ab"},
		{"\u2764\ufe0f", "\u2764"},
	}
	for _, tt := range tests {
		if got := sanitizeForTerminal(tt.in); got != tt.want {
			t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  api.Message
		want string
	}{
		{"text", api.Message{Kind: "text", Content: "hi"}, "hi"},
		{"file", api.Message{Kind: "file", Attachment: &api.Attachment{Name: "a.pdf", Size: 2048}}, "[file] a.pdf (2.0 KB)"},
		{"file with caption", api.Message{Kind: "file", Content: "see", Attachment: &api.Attachment{Name: "x", Size: 10}}, "[file] x (10 B) see"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageText(tt.msg); got != tt.want {
				t.Errorf("messageText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConversationListFilter(t *testing.T) {
	cl := NewConversationList(ui.DefaultTheme())
	cl.Update([]api.Conversation{
		{ID: "c1", OtherUserName: "Ana Plumber", IsActive: true},
		{ID: "c2", OtherUserName: "Bruno Painter", IsActive: true, LastMessage: &api.Message{Content: "pipe quote"}},
		{ID: "c3", OtherUserName: "Carla", Unread: 2},
	})

	if got := cl.IDByIndex(3); got != "c3" {
		t.Errorf("IDByIndex(3) = %q, want c3", got)
	}

	cl.SetFilter("PIPE")
	if got := cl.IDByIndex(1); got != "c2" {
		t.Errorf("filtered IDByIndex(1) = %q, want c2", got)
	}
	if got := cl.IDByIndex(2); got != "" {
		t.Errorf("filtered IDByIndex(2) = %q, want empty", got)
	}

	cl.ClearFilter()
	if c, ok := cl.FindByName("ana"); !ok || c.ID != "c1" {
		t.Errorf("FindByName(ana) = %v %v", c.ID, ok)
	}
}

func TestPreviewMarksOwnMessages(t *testing.T) {
	c := api.Conversation{LastMessage: &api.Message{Content: "on my\nway", FromMe: true}}
	if got := preview(c); got != "You: on my way" {
		t.Errorf("preview = %q", got)
	}
}
