package api

import (
	"context"
	"errors"
	"time"

	"github.com/srvmarket/srvchat/internal/chat"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func unixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func optUnixMs(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return unixMs(*t)
}

func messageFromChat(m chat.Message, viewerID string) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		FromMe:         viewerID != "" && m.SenderID == viewerID,
		Kind:           string(m.Kind),
		Content:        m.Content,
		Status:         string(m.Status),
		CreatedAtMs:    unixMs(m.CreatedAt),
		ReadAtMs:       optUnixMs(m.ReadAt),
	}
	if a := m.Attachment; a != nil {
		out.Attachment = &Attachment{Name: a.Name, Size: a.Size, MimeType: a.MimeType, URL: a.URL}
	}
	return out
}

func messagesFromChat(msgs []chat.Message, viewerID string) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFromChat(m, viewerID))
	}
	return out
}

func conversationFromChat(c chat.Conversation, viewerID string) Conversation {
	return Conversation{
		ID:              c.ID,
		ClientID:        c.ClientID,
		ProviderID:      c.ProviderID,
		OtherUserID:     c.OtherParticipant(viewerID),
		IsActive:        c.IsActive,
		Unread:          c.UnreadFor(viewerID),
		CreatedAtMs:     unixMs(c.CreatedAt),
		LastMessageAtMs: optUnixMs(c.LastMessageAt),
	}
}

func summaryFromChat(s chat.EnhancedConversationSummary, viewerID string) Conversation {
	out := conversationFromChat(s.Conversation, viewerID)
	out.OtherUserID = s.OtherUserID
	out.OtherUserName = s.OtherUserName
	out.OtherUserAvatar = s.OtherUserAvatar
	if s.LastMessage != nil {
		m := messageFromChat(*s.LastMessage, viewerID)
		out.LastMessage = &m
	}
	return out
}

func threadFromChat(t chat.Thread, viewerID string) *ThreadResponse {
	return &ThreadResponse{
		Conversation: conversationFromChat(t.Conversation, viewerID),
		Messages:     messagesFromChat(t.Messages, viewerID),
		HasMore:      t.HasMore,
	}
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	var ve *chat.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		return grpcstatus.Error(codes.InvalidArgument, ve.Message)
	case errors.Is(err, chat.ErrAuthenticationRequired):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, chat.ErrNoOpenConversation):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case chat.IsRemote(err):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
