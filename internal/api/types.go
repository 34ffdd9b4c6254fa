package api

// Empty is the request or response of calls without arguments.
type Empty struct{}

// StatusResponse describes the daemon and its synchronizer.
type StatusResponse struct {
	Profile         string `json:"profile"`
	ViewerID        string `json:"viewer_id,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	Phase           string `json:"phase"`
	Loading         bool   `json:"loading"`
	Refreshing      bool   `json:"refreshing"`
	AutoRefresh     bool   `json:"auto_refresh"`
	Conversations   int    `json:"conversations"`
	Unread          int    `json:"unread"`
	OpenThread      string `json:"open_thread,omitempty"`
	Error           string `json:"error,omitempty"`
	BackgroundError string `json:"background_error,omitempty"`
	UptimeMs        int64  `json:"uptime_ms"`
}

// Attachment is a file carried by a message.
type Attachment struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	FromMe         bool        `json:"from_me"`
	Kind           string      `json:"kind"`
	Content        string      `json:"content"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Status         string      `json:"status"`
	CreatedAtMs    int64       `json:"created_at_ms"`
	ReadAtMs       int64       `json:"read_at_ms,omitempty"`
}

// Conversation is a conversation as seen by the signed-in viewer.
type Conversation struct {
	ID              string   `json:"id"`
	ClientID        string   `json:"client_id"`
	ProviderID      string   `json:"provider_id"`
	OtherUserID     string   `json:"other_user_id"`
	OtherUserName   string   `json:"other_user_name"`
	OtherUserAvatar string   `json:"other_user_avatar,omitempty"`
	IsActive        bool     `json:"is_active"`
	Unread          int      `json:"unread"`
	CreatedAtMs     int64    `json:"created_at_ms"`
	LastMessageAtMs int64    `json:"last_message_at_ms,omitempty"`
	LastMessage     *Message `json:"last_message,omitempty"`
}

type ListConversationsRequest struct {
	// Refresh fetches from the remote store before answering.
	Refresh bool `json:"refresh"`
}

type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Unread        int            `json:"unread"`
}

type OpenConversationRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
}

type ThreadResponse struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	HasMore      bool         `json:"has_more"`
}

// SendMessageRequest carries raw content; the synchronizer owns content rules.
type SendMessageRequest struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiver_id,omitempty" validate:"omitempty,max=128"`
}

type SendMessageResponse struct {
	Message Message `json:"message"`
}

type MarkReadRequest struct {
	ConversationID string `json:"conversation_id" validate:"required,max=128"`
}

type MarkAllReadResponse struct {
	Marked int `json:"marked"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

type CreateConversationRequest struct {
	ProviderID string `json:"provider_id" validate:"required,max=128"`
}

type CreateConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

type SignInRequest struct {
	ViewerID string `json:"viewer_id" validate:"required,max=128"`
	Token    string `json:"token" validate:"required"`
	Endpoint string `json:"endpoint,omitempty" validate:"omitempty,url"`
	// Persist writes the credential to the profile config.
	Persist bool `json:"persist"`
}

type WatchEventsRequest struct {
	// Namespaces filters events by kind prefix. Empty selects all of them.
	Namespaces []string `json:"namespaces,omitempty" validate:"dive,oneof=inbox. sync. notify. push."`
}

// EventEnvelope is one bus event streamed to a front-end.
type EventEnvelope struct {
	EventID        string `json:"event_id"`
	Profile        string `json:"profile"`
	Kind           string `json:"kind"`
	OccurredAtMs   int64  `json:"occurred_at_ms"`
	ConversationID string `json:"conversation_id,omitempty"`
	Phase          string `json:"phase,omitempty"`
	Count          *int   `json:"count,omitempty"`
	Message        string `json:"message,omitempty"`
}
