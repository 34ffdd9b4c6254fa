package bus

import "time"

// Event kinds. Subscribers filter by prefix, so the part before the dot is the namespace.
const (
	KindConversationsUpdated = "inbox.conversations_updated"
	KindThreadUpdated        = "inbox.thread_updated"
	KindMessageSent          = "inbox.message_sent"
	KindConversationRead     = "inbox.read"
	KindError                = "inbox.error"
	KindReset                = "inbox.reset"
	KindStateChanged         = "sync.state_changed"
	KindUnreadChanged        = "notify.unread_changed"
	KindPush                 = "push.event"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// ConversationRef is the payload of events about a single conversation.
type ConversationRef struct {
	ConversationID string
}
