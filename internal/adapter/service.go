package adapter

import (
	"context"

	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/remote"
)

// WireStore is the remote conversation store in wire types. *remote.Client satisfies it.
type WireStore interface {
	GetMyConversations(ctx context.Context) ([]remote.ConversationSummary, error)
	GetConversation(ctx context.Context, id string) (remote.Conversation, error)
	GetConversationMessages(ctx context.Context, id string, limit, offset int) (remote.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, receiverID, content string) (remote.Message, error)
	MarkMessagesAsRead(ctx context.Context, conversationID string) (bool, error)
	CreateConversation(ctx context.Context, clientID, providerID string) (remote.Conversation, error)
	ResolveUser(ctx context.Context, userID string) (remote.Profile, error)
}

// Service exposes a WireStore in local types. Every failure is returned as a
// *chat.RemoteOperationError naming the operation.
type Service struct {
	wire WireStore
}

// NewService wraps a wire-level store.
func NewService(w WireStore) *Service {
	return &Service{wire: w}
}

func remoteErr(op string, err error) error {
	return &chat.RemoteOperationError{Op: op, Err: err}
}

func (s *Service) GetMyConversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	ws, err := s.wire.GetMyConversations(ctx)
	if err != nil {
		return nil, remoteErr("getMyConversations", err)
	}
	out := make([]chat.ConversationSummary, 0, len(ws))
	for _, w := range ws {
		out = append(out, Summary(w))
	}
	return out, nil
}

func (s *Service) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	w, err := s.wire.GetConversation(ctx, id)
	if err != nil {
		return chat.Conversation{}, remoteErr("getConversation", err)
	}
	return Conversation(w), nil
}

func (s *Service) GetConversationMessages(ctx context.Context, id string, limit, offset int) (chat.MessagePage, error) {
	w, err := s.wire.GetConversationMessages(ctx, id, limit, offset)
	if err != nil {
		return chat.MessagePage{}, remoteErr("getConversationMessages", err)
	}
	return Page(w), nil
}

func (s *Service) SendMessage(ctx context.Context, conversationID, receiverID, content string) (chat.Message, error) {
	w, err := s.wire.SendMessage(ctx, conversationID, receiverID, content)
	if err != nil {
		return chat.Message{}, remoteErr("sendMessage", err)
	}
	return Message(w), nil
}

func (s *Service) MarkMessagesAsRead(ctx context.Context, conversationID string) (bool, error) {
	ok, err := s.wire.MarkMessagesAsRead(ctx, conversationID)
	if err != nil {
		return false, remoteErr("markMessagesAsRead", err)
	}
	return ok, nil
}

func (s *Service) CreateConversation(ctx context.Context, clientID, providerID string) (chat.Conversation, error) {
	w, err := s.wire.CreateConversation(ctx, clientID, providerID)
	if err != nil {
		return chat.Conversation{}, remoteErr("createConversation", err)
	}
	return Conversation(w), nil
}

// ResolveUser looks up a display profile.
func (s *Service) ResolveUser(ctx context.Context, userID string) (chat.Profile, error) {
	w, err := s.wire.ResolveUser(ctx, userID)
	if err != nil {
		return chat.Profile{}, remoteErr("resolveUserName", err)
	}
	return Profile(w), nil
}
