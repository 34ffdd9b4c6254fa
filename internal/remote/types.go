package remote

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Variant is a tagged union on the wire: an object with exactly one key naming the case,
// e.g. {"Text": null} or {"Delivered": null}.
type Variant map[string]any

// NewVariant returns a payload-less variant for tag.
func NewVariant(tag string) Variant {
	return Variant{tag: nil}
}

// Tag returns the variant's case name, or "" unless exactly one case is set.
func (v Variant) Tag() string {
	if len(v) != 1 {
		return ""
	}
	for k := range v {
		return k
	}
	return ""
}

// UnreadEntry is one [userId, count] pair of a conversation's unread map.
type UnreadEntry struct {
	UserID string
	Count  int
}

func (e UnreadEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.UserID, e.Count})
}

func (e *UnreadEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("unread entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.UserID); err != nil {
		return fmt.Errorf("unread entry user: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Count); err != nil {
		return fmt.Errorf("unread entry count: %w", err)
	}
	return nil
}

// Conversation is the wire form of a conversation. Timestamps are nanosecond ticks.
type Conversation struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"client_id"`
	ProviderID    string        `json:"provider_id"`
	CreatedAt     int64         `json:"created_at"`
	LastMessageAt *int64        `json:"last_message_at,omitempty"`
	IsActive      bool          `json:"is_active"`
	UnreadCount   []UnreadEntry `json:"unread_count"`
}

// FileAttachment is the wire form of a message attachment.
type FileAttachment struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// Message is the wire form of a message.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	MessageType    Variant         `json:"message_type"`
	Content        string          `json:"content"`
	Attachment     *FileAttachment `json:"attachment,omitempty"`
	Status         Variant         `json:"status"`
	CreatedAt      int64           `json:"created_at"`
	ReadAt         *int64          `json:"read_at,omitempty"`
}

// ConversationSummary pairs a conversation with its latest message.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	LastMessage  *Message     `json:"last_message,omitempty"`
}

// MessagePage is one page of messages.
type MessagePage struct {
	Messages      []Message `json:"messages"`
	HasMore       bool      `json:"has_more"`
	NextPageToken *string   `json:"next_page_token,omitempty"`
}

// Profile is the public profile used for display names.
type Profile struct {
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// SendMessageRequest is the body of a message submission.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// CreateConversationRequest is the body of a conversation creation.
type CreateConversationRequest struct {
	ClientID   string `json:"client_id"`
	ProviderID string `json:"provider_id"`
}

// Event is a push notification from the events socket.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	At             int64  `json:"at"`
}

// Result is the envelope every endpoint answers with.
type Result[T any] struct {
	Ok  *T      `json:"ok,omitempty"`
	Err *string `json:"err,omitempty"`
}
