// Package adapter translates between the remote store's wire representation and the
// local chat types. Conversions are pure; unknown enum tags fail closed to a default.
package adapter

import (
	"time"

	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/remote"
)

// Wire tags of the message kind and delivery status unions.
const (
	tagText      = "Text"
	tagFile      = "File"
	tagSent      = "Sent"
	tagDelivered = "Delivered"
	tagRead      = "Read"
)

// DefaultKind is used for message kinds this client does not know.
const DefaultKind = chat.KindText

// DefaultStatus is used for delivery statuses this client does not know.
const DefaultStatus = chat.StatusSent

// Kind decodes a message kind union.
func Kind(v remote.Variant) chat.MessageKind {
	switch v.Tag() {
	case tagText:
		return chat.KindText
	case tagFile:
		return chat.KindFile
	default:
		return DefaultKind
	}
}

// Status decodes a delivery status union.
func Status(v remote.Variant) chat.DeliveryStatus {
	switch v.Tag() {
	case tagSent:
		return chat.StatusSent
	case tagDelivered:
		return chat.StatusDelivered
	case tagRead:
		return chat.StatusRead
	default:
		return DefaultStatus
	}
}

// Time converts nanosecond ticks to a UTC time. Zero ticks map to the zero time.
func Time(ticks int64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	return time.Unix(0, ticks).UTC()
}

// OptionalTime converts optional ticks; absent or zero yields nil.
func OptionalTime(ticks *int64) *time.Time {
	if ticks == nil || *ticks == 0 {
		return nil
	}
	t := Time(*ticks)
	return &t
}

// Ticks converts a time back to nanosecond ticks.
func Ticks(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Conversation decodes a wire conversation. Unread entries for users that are not
// participants are dropped.
func Conversation(w remote.Conversation) chat.Conversation {
	c := chat.Conversation{
		ID:            w.ID,
		ClientID:      w.ClientID,
		ProviderID:    w.ProviderID,
		CreatedAt:     Time(w.CreatedAt),
		LastMessageAt: OptionalTime(w.LastMessageAt),
		IsActive:      w.IsActive,
		UnreadCount:   make(map[string]int, 2),
	}
	for _, e := range w.UnreadCount {
		if c.HasParticipant(e.UserID) {
			c.UnreadCount[e.UserID] = e.Count
		}
	}
	return c
}

// Message decodes a wire message.
func Message(w remote.Message) chat.Message {
	m := chat.Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		ReceiverID:     w.ReceiverID,
		Kind:           Kind(w.MessageType),
		Content:        w.Content,
		Status:         Status(w.Status),
		CreatedAt:      Time(w.CreatedAt),
		ReadAt:         OptionalTime(w.ReadAt),
	}
	if w.Attachment != nil {
		m.Attachment = &chat.FileAttachment{
			Name:     w.Attachment.Name,
			Size:     w.Attachment.Size,
			MimeType: w.Attachment.MimeType,
			URL:      w.Attachment.URL,
		}
	}
	return m
}

// Messages decodes a slice of wire messages. The result is never nil.
func Messages(ws []remote.Message) []chat.Message {
	out := make([]chat.Message, 0, len(ws))
	for _, w := range ws {
		out = append(out, Message(w))
	}
	return out
}

// Summary decodes a conversation summary.
func Summary(w remote.ConversationSummary) chat.ConversationSummary {
	s := chat.ConversationSummary{Conversation: Conversation(w.Conversation)}
	if w.LastMessage != nil {
		m := Message(*w.LastMessage)
		s.LastMessage = &m
	}
	return s
}

// Page decodes a message page.
func Page(w remote.MessagePage) chat.MessagePage {
	p := chat.MessagePage{
		Messages: Messages(w.Messages),
		HasMore:  w.HasMore,
	}
	if w.NextPageToken != nil {
		p.NextPageToken = *w.NextPageToken
	}
	return p
}

// Profile decodes a public profile.
func Profile(w remote.Profile) chat.Profile {
	p := chat.Profile{Name: w.Name}
	if w.AvatarURL != nil {
		p.AvatarURL = *w.AvatarURL
	}
	return p
}

// FromMessage encodes a local message back to wire form. Used for display and
// diagnostics; nothing resubmits it.
func FromMessage(m chat.Message) remote.Message {
	w := remote.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		MessageType:    remote.NewVariant(kindTag(m.Kind)),
		Content:        m.Content,
		Status:         remote.NewVariant(statusTag(m.Status)),
		CreatedAt:      Ticks(m.CreatedAt),
	}
	if m.ReadAt != nil {
		ticks := Ticks(*m.ReadAt)
		w.ReadAt = &ticks
	}
	if m.Attachment != nil {
		w.Attachment = &remote.FileAttachment{
			Name:     m.Attachment.Name,
			Size:     m.Attachment.Size,
			MimeType: m.Attachment.MimeType,
			URL:      m.Attachment.URL,
		}
	}
	return w
}

func kindTag(k chat.MessageKind) string {
	if k == chat.KindFile {
		return tagFile
	}
	return tagText
}

func statusTag(s chat.DeliveryStatus) string {
	switch s {
	case chat.StatusDelivered:
		return tagDelivered
	case chat.StatusRead:
		return tagRead
	default:
		return tagSent
	}
}
