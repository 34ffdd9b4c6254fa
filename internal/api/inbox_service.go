package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/notify"
	"github.com/srvmarket/srvchat/internal/remote"
	"github.com/srvmarket/srvchat/internal/status"
	intsync "github.com/srvmarket/srvchat/internal/sync"
	"go.uber.org/zap"
)

// Identity binds the daemon to a remote credential.
type Identity interface {
	SignIn(ctx context.Context, viewerID, token, endpoint string, persist bool) error
	SignOut(ctx context.Context) error
	Endpoint() string
}

// InboxService implements InboxServer on top of the synchronizer.
type InboxService struct {
	profile   string
	startedAt time.Time
	sync      *intsync.Synchronizer
	counter   *notify.Counter
	identity  Identity
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewInboxService creates the inbox service. identity may be nil, in which case
// SignIn and SignOut are unavailable.
func NewInboxService(profile string, s *intsync.Synchronizer, counter *notify.Counter, identity Identity, b *bus.Bus, logger *zap.Logger) *InboxService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxService{
		profile:   profile,
		startedAt: time.Now(),
		sync:      s,
		counter:   counter,
		identity:  identity,
		bus:       b,
		logger:    logger,
	}
}

func (s *InboxService) Status(_ context.Context, _ *Empty) (*StatusResponse, error) {
	st := s.sync.Snapshot()
	resp := &StatusResponse{
		Profile:       s.profile,
		ViewerID:      st.ViewerID,
		Phase:         string(st.Phase),
		Loading:       st.Loading,
		Refreshing:    st.Refreshing,
		AutoRefresh:   s.sync.AutoRefreshing(),
		Conversations: len(st.Conversations),
		Unread:        s.counter.Total(),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
	}
	if s.identity != nil {
		resp.Endpoint = s.identity.Endpoint()
	}
	if st.Thread != nil {
		resp.OpenThread = st.Thread.Conversation.ID
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if err := s.sync.LastBackgroundError(); err != nil {
		resp.BackgroundError = err.Error()
	}
	return resp, nil
}

func (s *InboxService) ListConversations(ctx context.Context, req *ListConversationsRequest) (*ListConversationsResponse, error) {
	if req.Refresh {
		if err := s.sync.FetchConversations(ctx, false); err != nil {
			return nil, toStatus(err)
		}
	}
	return s.list(), nil
}

func (s *InboxService) list() *ListConversationsResponse {
	st := s.sync.Snapshot()
	resp := &ListConversationsResponse{
		Conversations: make([]Conversation, 0, len(st.Conversations)),
		Unread:        s.counter.Total(),
	}
	for _, c := range st.Conversations {
		resp.Conversations = append(resp.Conversations, summaryFromChat(c, st.ViewerID))
	}
	return resp
}

func (s *InboxService) OpenConversation(ctx context.Context, req *OpenConversationRequest) (*ThreadResponse, error) {
	thread, err := s.sync.LoadConversation(ctx, req.ConversationID, false)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.thread(thread.Conversation.ID, threadFromChat(thread, s.sync.ViewerID())), nil
}

// thread fills in the display fields known from the conversation list.
func (s *InboxService) thread(id string, t *ThreadResponse) *ThreadResponse {
	for _, c := range s.sync.Snapshot().Conversations {
		if c.Conversation.ID == id {
			t.Conversation.OtherUserName = c.OtherUserName
			t.Conversation.OtherUserAvatar = c.OtherUserAvatar
			break
		}
	}
	return t
}

// Thread returns the open thread as last synchronized, without a remote call.
func (s *InboxService) Thread(_ context.Context, _ *Empty) (*ThreadResponse, error) {
	st := s.sync.Snapshot()
	if st.Thread == nil {
		return nil, toStatus(chat.ErrNoOpenConversation)
	}
	return s.thread(st.Thread.Conversation.ID, threadFromChat(*st.Thread, st.ViewerID)), nil
}

func (s *InboxService) LoadOlder(ctx context.Context, _ *Empty) (*ThreadResponse, error) {
	thread, err := s.sync.LoadOlderMessages(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.thread(thread.Conversation.ID, threadFromChat(thread, s.sync.ViewerID())), nil
}

func (s *InboxService) CloseConversation(_ context.Context, _ *Empty) (*Empty, error) {
	s.sync.CloseConversation()
	return &Empty{}, nil
}

func (s *InboxService) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	msg, err := s.sync.SendMessage(ctx, req.Content, req.ReceiverID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendMessageResponse{Message: messageFromChat(msg, s.sync.ViewerID())}, nil
}

func (s *InboxService) MarkRead(ctx context.Context, req *MarkReadRequest) (*Empty, error) {
	s.sync.MarkAsRead(ctx, req.ConversationID)
	return &Empty{}, nil
}

func (s *InboxService) MarkAllRead(ctx context.Context, _ *Empty) (*MarkAllReadResponse, error) {
	return &MarkAllReadResponse{Marked: s.counter.MarkAllRead(ctx)}, nil
}

func (s *InboxService) UnreadCount(_ context.Context, _ *Empty) (*UnreadCountResponse, error) {
	return &UnreadCountResponse{Unread: s.counter.Total()}, nil
}

func (s *InboxService) CreateConversation(ctx context.Context, req *CreateConversationRequest) (*CreateConversationResponse, error) {
	c, err := s.sync.CreateConversation(ctx, req.ProviderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CreateConversationResponse{Conversation: conversationFromChat(c, s.sync.ViewerID())}, nil
}

func (s *InboxService) Refresh(ctx context.Context, _ *Empty) (*ListConversationsResponse, error) {
	if err := s.sync.FetchConversations(ctx, false); err != nil {
		return nil, toStatus(err)
	}
	return s.list(), nil
}

func (s *InboxService) SignIn(ctx context.Context, req *SignInRequest) (*StatusResponse, error) {
	if s.identity == nil {
		return nil, toStatus(errors.New("sign-in is not available"))
	}
	if err := s.identity.SignIn(ctx, req.ViewerID, req.Token, req.Endpoint, req.Persist); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info("viewer signed in via API", zap.String("viewer_id", req.ViewerID))
	return s.Status(ctx, &Empty{})
}

func (s *InboxService) SignOut(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	if s.identity == nil {
		return nil, toStatus(errors.New("sign-out is not available"))
	}
	if err := s.identity.SignOut(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.Status(ctx, &Empty{})
}

func (s *InboxService) WatchEvents(req *WatchEventsRequest, stream EventSender) error {
	if err := Validate(req); err != nil {
		return err
	}
	namespaces := req.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{"inbox.", "sync.", "notify.", "push."}
	}

	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	ctx := stream.Context()
	for {
		select {
		case evt := <-ch:
			if !hasAnyPrefix(evt.Kind, namespaces) {
				continue
			}
			if err := stream.Send(s.envelope(evt)); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *InboxService) envelope(evt bus.Event) *EventEnvelope {
	env := &EventEnvelope{
		EventID:      uuid.New().String(),
		Profile:      s.profile,
		Kind:         evt.Kind,
		OccurredAtMs: evt.Timestamp.UnixMilli(),
	}
	switch p := evt.Payload.(type) {
	case bus.ConversationRef:
		env.ConversationID = p.ConversationID
	case status.StatusChange:
		env.Phase = string(p.To)
	case int:
		n := p
		env.Count = &n
	case error:
		env.Message = p.Error()
	case remote.Event:
		env.ConversationID = p.ConversationID
		env.Message = p.Type
	}
	return env
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
