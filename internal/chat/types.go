package chat

import "time"

// MessageKind is the closed set of message payload kinds.
type MessageKind string

const (
	KindText MessageKind = "text"
	KindFile MessageKind = "file"
)

// DeliveryStatus tracks how far a message got towards its receiver.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Conversation is a two-party channel between a client and a provider.
type Conversation struct {
	ID            string
	ClientID      string
	ProviderID    string
	CreatedAt     time.Time
	LastMessageAt *time.Time
	IsActive      bool
	// UnreadCount maps a participant id to the number of messages they have not read.
	UnreadCount map[string]int
}

// Participants returns the client and provider ids, in that order.
func (c *Conversation) Participants() [2]string {
	return [2]string{c.ClientID, c.ProviderID}
}

// HasParticipant reports whether userID is the client or the provider.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ClientID == userID || c.ProviderID == userID)
}

// OtherParticipant returns the participant that is not viewerID.
// A viewer matching neither side is treated like the client.
func (c *Conversation) OtherParticipant(viewerID string) string {
	if c.ClientID == viewerID {
		return c.ProviderID
	}
	return c.ClientID
}

// UnreadFor returns the unread counter for userID.
func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[userID]
}

// FileAttachment describes a file carried by a KindFile message.
type FileAttachment struct {
	Name     string
	Size     int64
	MimeType string
	URL      string
}

// Message belongs to exactly one conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Kind           MessageKind
	Content        string
	Attachment     *FileAttachment
	Status         DeliveryStatus
	CreatedAt      time.Time
	ReadAt         *time.Time
}

// ConversationSummary pairs a conversation with its most recent message, if any.
type ConversationSummary struct {
	Conversation Conversation
	LastMessage  *Message
}

// EnhancedConversationSummary is a summary annotated for one viewer.
type EnhancedConversationSummary struct {
	ConversationSummary
	OtherUserID     string
	OtherUserName   string
	OtherUserAvatar string
}

// MessagePage is one page of a conversation's messages.
type MessagePage struct {
	Messages      []Message
	HasMore       bool
	NextPageToken string
}

// Thread is the conversation currently open in the synchronizer.
type Thread struct {
	Conversation Conversation
	Messages     []Message
	HasMore      bool
}

// Profile is the display identity of a user.
type Profile struct {
	Name      string
	AvatarURL string
}
