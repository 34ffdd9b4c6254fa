package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/status"
	"go.uber.org/zap"
)

const viewer = "user-aaaaaaaa"

// fakeStore is an in-memory Store that records every call.
type fakeStore struct {
	mu    gosync.Mutex
	calls map[string]int

	conversations []chat.ConversationSummary
	threads       map[string]chat.Conversation
	messages      map[string][]chat.Message
	profiles      map[string]chat.Profile

	listErr  error
	getErr   error
	sendErr  error
	readErr  error
	listHook func(call int)
	// msgHook runs before GetConversationMessages answers.
	msgHook  func(call int)
	lastPage struct{ limit, offset int }
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		calls:    make(map[string]int),
		threads:  make(map[string]chat.Conversation),
		messages: make(map[string][]chat.Message),
		profiles: make(map[string]chat.Profile),
	}
}

func (f *fakeStore) record(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeStore) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *fakeStore) setConversations(sums []chat.ConversationSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = sums
	for _, s := range sums {
		f.threads[s.Conversation.ID] = s.Conversation
	}
}

func (f *fakeStore) GetMyConversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	n := f.record("GetMyConversations")
	f.mu.Lock()
	hook := f.listHook
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]chat.ConversationSummary(nil), f.conversations...), nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	f.record("GetConversation")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return chat.Conversation{}, f.getErr
	}
	c, ok := f.threads[id]
	if !ok {
		return chat.Conversation{}, &chat.RemoteOperationError{Op: "getConversation", Err: errors.New("not found")}
	}
	return c, nil
}

func (f *fakeStore) GetConversationMessages(ctx context.Context, id string, limit, offset int) (chat.MessagePage, error) {
	n := f.record("GetConversationMessages")
	f.mu.Lock()
	hook := f.msgHook
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPage.limit, f.lastPage.offset = limit, offset
	all := f.messages[id]
	if offset >= len(all) {
		return chat.MessagePage{}, nil
	}
	end := min(offset+limit, len(all))
	return chat.MessagePage{
		Messages: append([]chat.Message(nil), all[offset:end]...),
		HasMore:  end < len(all),
	}, nil
}

func (f *fakeStore) SendMessage(ctx context.Context, conversationID, receiverID, content string) (chat.Message, error) {
	n := f.record("SendMessage")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	return chat.Message{
		ID:             "sent-" + string(rune('0'+n)),
		ConversationID: conversationID,
		SenderID:       viewer,
		ReceiverID:     receiverID,
		Kind:           chat.KindText,
		Content:        content,
		Status:         chat.StatusSent,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeStore) MarkMessagesAsRead(ctx context.Context, conversationID string) (bool, error) {
	f.record("MarkMessagesAsRead")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	return true, nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, clientID, providerID string) (chat.Conversation, error) {
	f.record("CreateConversation")
	c := chat.Conversation{ID: "new-conv", ClientID: clientID, ProviderID: providerID, IsActive: true}
	f.setConversations(append(f.conversations, chat.ConversationSummary{Conversation: c}))
	return c, nil
}

func (f *fakeStore) ResolveUser(ctx context.Context, userID string) (chat.Profile, error) {
	f.record("ResolveUser")
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return chat.Profile{}, errors.New("profile not found")
	}
	return p, nil
}

// fakeSnap is an in-memory Snapshotter.
type fakeSnap struct {
	mu       gosync.Mutex
	sums     map[string][]chat.EnhancedConversationSummary
	messages map[string][]chat.Message
	cleared  []string
}

func newFakeSnap() *fakeSnap {
	return &fakeSnap{
		sums:     make(map[string][]chat.EnhancedConversationSummary),
		messages: make(map[string][]chat.Message),
	}
}

func (f *fakeSnap) SaveSummaries(viewerID string, sums []chat.EnhancedConversationSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sums[viewerID] = sums
	return nil
}

func (f *fakeSnap) LoadSummaries(viewerID string) ([]chat.EnhancedConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sums[viewerID], nil
}

func (f *fakeSnap) SaveMessages(viewerID, conversationID string, msgs []chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[viewerID+"/"+conversationID] = msgs
	return nil
}

func (f *fakeSnap) ListMessages(viewerID, conversationID string, limit int) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[viewerID+"/"+conversationID], nil
}

func (f *fakeSnap) Clear(viewerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sums, viewerID)
	f.cleared = append(f.cleared, viewerID)
	return nil
}

func conv(id, client, provider string, unread map[string]int) chat.ConversationSummary {
	return chat.ConversationSummary{Conversation: chat.Conversation{
		ID: id, ClientID: client, ProviderID: provider, IsActive: true, UnreadCount: unread,
	}}
}

func newSynced(t *testing.T, store *fakeStore, opts Options) *Synchronizer {
	t.Helper()
	s := New(opts, nil, bus.New(), zap.NewNop())
	if err := s.SignIn(viewer, store); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Reset)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOperationsRequireViewer(t *testing.T) {
	s := New(Options{}, nil, nil, nil)
	ctx := context.Background()

	if err := s.FetchConversations(ctx, false); !errors.Is(err, chat.ErrAuthenticationRequired) {
		t.Errorf("FetchConversations error = %v, want ErrAuthenticationRequired", err)
	}
	if _, err := s.LoadConversation(ctx, "c1", false); !errors.Is(err, chat.ErrAuthenticationRequired) {
		t.Errorf("LoadConversation error = %v, want ErrAuthenticationRequired", err)
	}
	if _, err := s.SendMessage(ctx, "hi", ""); !errors.Is(err, chat.ErrAuthenticationRequired) {
		t.Errorf("SendMessage error = %v, want ErrAuthenticationRequired", err)
	}
	if _, err := s.CreateConversation(ctx, "p1"); !errors.Is(err, chat.ErrAuthenticationRequired) {
		t.Errorf("CreateConversation error = %v, want ErrAuthenticationRequired", err)
	}
	s.MarkAsRead(ctx, "c1")
	if got := s.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount = %d, want 0", got)
	}
	if s.Phase() != status.Idle {
		t.Errorf("phase = %s, want IDLE", s.Phase())
	}
}

func TestSignInRejectsEmptyIdentity(t *testing.T) {
	s := New(Options{}, nil, nil, nil)
	if err := s.SignIn("", newFakeStore()); !errors.Is(err, chat.ErrAuthenticationRequired) {
		t.Errorf("SignIn(\"\") error = %v", err)
	}
	if err := s.SignIn(viewer, nil); !errors.Is(err, chat.ErrAuthenticationRequired) {
		t.Errorf("SignIn(nil store) error = %v", err)
	}
}

func TestFetchConversationsEnhancesOtherParticipant(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{
		conv("c1", viewer, "provider-bbbbbbbb", nil),
		conv("c2", "client-cccccccc", viewer, nil),
	})
	store.profiles["provider-bbbbbbbb"] = chat.Profile{Name: "Bea", AvatarURL: "https://img/b.png"}

	s := newSynced(t, store, Options{})
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	st := s.Snapshot()
	if len(st.Conversations) != 2 {
		t.Fatalf("got %d conversations, want 2", len(st.Conversations))
	}
	tests := []struct {
		other, name, avatar string
	}{
		{"provider-bbbbbbbb", "Bea", "https://img/b.png"},
		{"client-cccccccc", "User client-c", ""},
	}
	for i, tt := range tests {
		c := st.Conversations[i]
		if c.OtherUserID != tt.other {
			t.Errorf("[%d] OtherUserID = %q, want %q", i, c.OtherUserID, tt.other)
		}
		if c.OtherUserID == viewer {
			t.Errorf("[%d] OtherUserID is the viewer", i)
		}
		if c.OtherUserName != tt.name {
			t.Errorf("[%d] OtherUserName = %q, want %q", i, c.OtherUserName, tt.name)
		}
		if c.OtherUserAvatar != tt.avatar {
			t.Errorf("[%d] OtherUserAvatar = %q, want %q", i, c.OtherUserAvatar, tt.avatar)
		}
	}
	if st.Phase != status.Loaded {
		t.Errorf("phase = %s, want LOADED", st.Phase)
	}
	if st.Loading || st.Refreshing {
		t.Errorf("loading=%v refreshing=%v after fetch", st.Loading, st.Refreshing)
	}

	// Names are cached: a second pass resolves nothing remotely.
	before := store.count("ResolveUser")
	if err := s.FetchConversations(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if got := store.count("ResolveUser"); got != before {
		t.Errorf("ResolveUser calls = %d, want %d", got, before)
	}
}

func TestFetchFailureForegroundVsSilent(t *testing.T) {
	boom := &chat.RemoteOperationError{Op: "getMyConversations", Err: errors.New("503")}

	t.Run("foreground", func(t *testing.T) {
		store := newFakeStore()
		store.listErr = boom
		s := newSynced(t, store, Options{})

		err := s.FetchConversations(context.Background(), false)
		if !errors.Is(err, boom) {
			t.Fatalf("error = %v, want %v", err, boom)
		}
		st := s.Snapshot()
		if st.Err == nil {
			t.Error("foreground failure not surfaced")
		}
		if st.Phase != status.Errored {
			t.Errorf("phase = %s, want ERRORED", st.Phase)
		}

		// Retry clears the surfaced error.
		store.mu.Lock()
		store.listErr = nil
		store.mu.Unlock()
		if err := s.FetchConversations(context.Background(), false); err != nil {
			t.Fatal(err)
		}
		if st := s.Snapshot(); st.Err != nil || st.Phase != status.Loaded {
			t.Errorf("after retry err=%v phase=%s, want nil LOADED", st.Err, st.Phase)
		}
	})

	t.Run("silent", func(t *testing.T) {
		store := newFakeStore()
		store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "p1", nil)})
		s := newSynced(t, store, Options{})
		if err := s.FetchConversations(context.Background(), false); err != nil {
			t.Fatal(err)
		}

		store.mu.Lock()
		store.listErr = boom
		store.mu.Unlock()
		if err := s.FetchConversations(context.Background(), true); err == nil {
			t.Fatal("expected error from silent fetch")
		}

		st := s.Snapshot()
		if st.Err != nil {
			t.Errorf("silent failure surfaced: %v", st.Err)
		}
		if len(st.Conversations) != 1 {
			t.Errorf("last-known-good list lost: %d conversations", len(st.Conversations))
		}
		if st.Phase != status.Loaded {
			t.Errorf("phase = %s, want LOADED", st.Phase)
		}
		if !errors.Is(s.LastBackgroundError(), boom) {
			t.Errorf("LastBackgroundError = %v", s.LastBackgroundError())
		}
	})
}

// Scenario: an empty conversation opens with an empty, non-nil message list.
func TestLoadConversationEmptyThread(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "provider-b", nil)})
	s := newSynced(t, store, Options{})

	thread, err := s.LoadConversation(context.Background(), "c1", false)
	if err != nil {
		t.Fatal(err)
	}
	if thread.Messages == nil || len(thread.Messages) != 0 {
		t.Errorf("messages = %#v, want empty non-nil", thread.Messages)
	}
	if thread.HasMore {
		t.Error("HasMore = true, want false")
	}
	if got := store.count("MarkMessagesAsRead"); got != 1 {
		t.Errorf("MarkMessagesAsRead calls = %d, want 1", got)
	}
	if got := store.count("GetMyConversations"); got != 1 {
		t.Errorf("GetMyConversations calls = %d, want 1", got)
	}
	st := s.Snapshot()
	if st.Thread == nil || st.Thread.Conversation.ID != "c1" {
		t.Fatalf("open thread = %+v, want c1", st.Thread)
	}
	if st.Err != nil {
		t.Errorf("Err = %v", st.Err)
	}
}

func TestLoadConversationUsesPageSize(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "p1", nil)})
	for i := range 30 {
		store.messages["c1"] = append(store.messages["c1"], chat.Message{
			ID: string(rune('a' + i)), ConversationID: "c1", CreatedAt: time.Unix(int64(i), 0),
		})
	}
	s := newSynced(t, store, Options{PageSize: 20})

	thread, err := s.LoadConversation(context.Background(), "c1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(thread.Messages) != 20 || !thread.HasMore {
		t.Fatalf("got %d messages hasMore=%v, want 20 true", len(thread.Messages), thread.HasMore)
	}

	thread, err = s.LoadOlderMessages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if store.lastPage.offset != 20 {
		t.Errorf("offset = %d, want 20", store.lastPage.offset)
	}
	if len(thread.Messages) != 30 || thread.HasMore {
		t.Errorf("got %d messages hasMore=%v, want 30 false", len(thread.Messages), thread.HasMore)
	}
}

func TestLoadConversationFailureSurfaced(t *testing.T) {
	store := newFakeStore()
	s := newSynced(t, store, Options{})

	if _, err := s.LoadConversation(context.Background(), "missing", false); err == nil {
		t.Fatal("expected error")
	}
	st := s.Snapshot()
	if st.Err == nil || st.Phase != status.Errored {
		t.Errorf("err=%v phase=%s, want surfaced ERRORED", st.Err, st.Phase)
	}
	if st.Thread != nil {
		t.Error("thread opened on failure")
	}
	if got := store.count("GetConversation"); got != 1 {
		t.Errorf("GetConversation calls = %d, want 1 (no retry)", got)
	}
}

func openThread(t *testing.T, store *fakeStore) *Synchronizer {
	t.Helper()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "provider-b", nil)})
	s := newSynced(t, store, Options{})
	if _, err := s.LoadConversation(context.Background(), "c1", false); err != nil {
		t.Fatal(err)
	}
	store.resetCalls()
	return s
}

// Scenario: sending "Hello" appends one Sent message and refreshes the list once.
func TestSendMessageAppendsAndRefreshes(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)

	msg, err := s.SendMessage(context.Background(), "Hello", "provider-b")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != chat.StatusSent {
		t.Errorf("status = %s, want sent", msg.Status)
	}

	st := s.Snapshot()
	if len(st.Thread.Messages) != 1 {
		t.Fatalf("thread has %d messages, want 1", len(st.Thread.Messages))
	}
	if got := st.Thread.Messages[0]; got.Content != "Hello" || got.Status != chat.StatusSent {
		t.Errorf("appended = %+v", got)
	}
	if got := store.count("SendMessage"); got != 1 {
		t.Errorf("SendMessage calls = %d, want 1", got)
	}
	if got := store.count("GetMyConversations"); got != 1 {
		t.Errorf("GetMyConversations calls = %d, want exactly 1", got)
	}
}

func TestSendDuringThreadRefreshKeepsMessage(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)

	release := make(chan struct{})
	entered := make(chan struct{})
	store.mu.Lock()
	store.msgHook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	store.mu.Unlock()

	ticked := make(chan bool, 1)
	go func() { ticked <- s.Tick(context.Background()) }()
	<-entered

	if _, err := s.SendMessage(context.Background(), "Hello", ""); err != nil {
		t.Fatal(err)
	}
	close(release)
	if !<-ticked {
		t.Fatal("tick did not run")
	}

	st := s.Snapshot()
	if len(st.Thread.Messages) != 1 || st.Thread.Messages[0].Content != "Hello" {
		t.Errorf("thread messages = %+v, want the sent message", st.Thread.Messages)
	}

	// The next refresh is not stale and applies normally.
	s.Tick(context.Background())
	if got := len(s.Snapshot().Thread.Messages); got != 0 {
		t.Errorf("fresh refresh left %d messages, want the remote page (0)", got)
	}
}

func TestSendMessageDefaultsReceiver(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)

	msg, err := s.SendMessage(context.Background(), "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ReceiverID != "provider-b" {
		t.Errorf("receiver = %q, want provider-b", msg.ReceiverID)
	}
}

// Scenarios: empty and oversized content fail locally with no remote call.
func TestSendMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty", "", "Message cannot be empty"},
		{"whitespace", "  \n\t ", "Message cannot be empty"},
		{"501 chars", strings.Repeat("a", 501), "Message cannot exceed 500 characters"},
		{"501 runes", strings.Repeat("é", 501), "Message cannot exceed 500 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			s := openThread(t, store)

			_, err := s.SendMessage(context.Background(), tt.content, "provider-b")
			var ve *chat.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if ve.Message != tt.want {
				t.Errorf("message = %q, want %q", ve.Message, tt.want)
			}
			if n := store.total(); n != 0 {
				t.Errorf("remote calls = %d, want 0", n)
			}
			if got := len(s.Snapshot().Thread.Messages); got != 0 {
				t.Errorf("thread has %d messages, want 0", got)
			}
		})
	}
}

func TestSendMessageAcceptsExactly500(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)
	if _, err := s.SendMessage(context.Background(), strings.Repeat("a", 500), "provider-b"); err != nil {
		t.Fatalf("500 chars rejected: %v", err)
	}
}

func TestSendMessagePreconditions(t *testing.T) {
	t.Run("no open thread", func(t *testing.T) {
		store := newFakeStore()
		s := newSynced(t, store, Options{})
		if _, err := s.SendMessage(context.Background(), "hi", "x"); !errors.Is(err, chat.ErrNoOpenConversation) {
			t.Errorf("error = %v, want ErrNoOpenConversation", err)
		}
		if n := store.total(); n != 0 {
			t.Errorf("remote calls = %d, want 0", n)
		}
	})

	t.Run("foreign receiver", func(t *testing.T) {
		store := newFakeStore()
		s := openThread(t, store)
		if _, err := s.SendMessage(context.Background(), "hi", "stranger"); !chat.IsValidation(err) {
			t.Errorf("error = %v, want ValidationError", err)
		}
		if _, err := s.SendMessage(context.Background(), "hi", viewer); !chat.IsValidation(err) {
			t.Errorf("sending to self: error = %v, want ValidationError", err)
		}
		if n := store.count("SendMessage"); n != 0 {
			t.Errorf("SendMessage calls = %d, want 0", n)
		}
	})
}

func TestSendMessageRemoteFailurePropagates(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)
	store.sendErr = &chat.RemoteOperationError{Op: "sendMessage", Err: errors.New("timeout")}

	_, err := s.SendMessage(context.Background(), "Hello", "provider-b")
	if !chat.IsRemote(err) {
		t.Fatalf("error = %v, want RemoteOperationError", err)
	}
	if got := len(s.Snapshot().Thread.Messages); got != 0 {
		t.Errorf("thread has %d messages after failed send, want 0", got)
	}
	if got := store.count("GetMyConversations"); got != 0 {
		t.Errorf("GetMyConversations calls = %d, want 0", got)
	}
}

// Scenario: unread {V:3} and {V:0} sum to 3.
func TestUnreadCount(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{
		conv("c1", viewer, "p1", map[string]int{viewer: 3, "p1": 7}),
		conv("c2", "c9", viewer, map[string]int{viewer: 0}),
	})
	s := newSynced(t, store, Options{})

	if got := s.UnreadCount(); got != 0 {
		t.Errorf("before fetch UnreadCount = %d, want 0", got)
	}
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := s.UnreadCount(); got != 3 {
		t.Errorf("UnreadCount = %d, want 3", got)
	}

	s.SignOut()
	if got := s.UnreadCount(); got != 0 {
		t.Errorf("signed out UnreadCount = %d, want 0", got)
	}
}

func TestMarkAsReadNeverFails(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{
		conv("c1", viewer, "p1", map[string]int{viewer: 2}),
	})
	s := newSynced(t, store, Options{})
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	// Plant a surfaced error so we can check it is left alone.
	store.getErr = errors.New("planted")
	if _, err := s.LoadConversation(context.Background(), "c1", false); err == nil {
		t.Fatal("expected planted error")
	}
	planted := s.Snapshot().Err

	store.readErr = errors.New("read receipts down")
	s.MarkAsRead(context.Background(), "c1")

	st := s.Snapshot()
	if st.Err != planted {
		t.Errorf("Err = %v, want unchanged %v", st.Err, planted)
	}
	if got := s.UnreadCount(); got != 2 {
		t.Errorf("UnreadCount after failed mark = %d, want 2", got)
	}

	store.readErr = nil
	s.MarkAsRead(context.Background(), "c1")
	if got := s.UnreadCount(); got != 0 {
		t.Errorf("UnreadCount after mark = %d, want 0", got)
	}
}

func TestMarkAsReadDoesNotMutateSnapshots(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{
		conv("c1", viewer, "p1", map[string]int{viewer: 4}),
	})
	s := newSynced(t, store, Options{})
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	before := s.Snapshot()
	s.MarkAsRead(context.Background(), "c1")
	if got := before.Conversations[0].Conversation.UnreadFor(viewer); got != 4 {
		t.Errorf("earlier snapshot changed to %d", got)
	}
}

func TestSupersededFetchIsDropped(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("old", viewer, "p1", nil)})

	release := make(chan struct{})
	entered := make(chan struct{})
	store.listHook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	s := newSynced(t, store, Options{})

	done := make(chan error, 1)
	go func() { done <- s.FetchConversations(context.Background(), true) }()
	<-entered

	// The slow first request reads "old" only after the second one applied "new".
	store.setConversations([]chat.ConversationSummary{conv("new", viewer, "p1", nil)})
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	store.conversations = []chat.ConversationSummary{conv("old", viewer, "p1", nil)}
	store.mu.Unlock()
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	st := s.Snapshot()
	if len(st.Conversations) != 1 || st.Conversations[0].Conversation.ID != "new" {
		t.Errorf("conversations = %+v, want [new]", st.Conversations)
	}
	if st.Phase != status.Loaded {
		t.Errorf("phase = %s, want LOADED", st.Phase)
	}
}

func TestResetDiscardsInflightResponse(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "p1", nil)})

	release := make(chan struct{})
	entered := make(chan struct{})
	store.listHook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	s := newSynced(t, store, Options{})

	done := make(chan error, 1)
	go func() { done <- s.FetchConversations(context.Background(), false) }()
	<-entered

	s.Reset()
	close(release)
	<-done

	st := s.Snapshot()
	if len(st.Conversations) != 0 {
		t.Errorf("got %d conversations after reset, want 0", len(st.Conversations))
	}
	if st.Phase != status.Idle {
		t.Errorf("phase = %s, want IDLE", st.Phase)
	}
	if st.Loading {
		t.Error("Loading still set after reset")
	}
}

func TestCloseConversationDropsOpenInFlight(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)

	s.CloseConversation()
	if st := s.Snapshot(); st.Thread != nil {
		t.Fatalf("thread = %+v after close", st.Thread)
	}
	if _, err := s.LoadOlderMessages(context.Background()); !errors.Is(err, chat.ErrNoOpenConversation) {
		t.Errorf("LoadOlderMessages error = %v, want ErrNoOpenConversation", err)
	}
}

func TestTickSkipsOverlap(t *testing.T) {
	store := newFakeStore()
	release := make(chan struct{})
	entered := make(chan struct{})
	store.listHook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	s := newSynced(t, store, Options{})

	ran := make(chan bool, 1)
	go func() { ran <- s.Tick(context.Background()) }()
	<-entered

	if s.Tick(context.Background()) {
		t.Error("overlapping Tick ran")
	}
	close(release)
	if !<-ran {
		t.Error("first Tick did not run")
	}
	if got := store.count("GetMyConversations"); got != 1 {
		t.Errorf("GetMyConversations calls = %d, want 1", got)
	}
}

func TestAutoRefresh(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)
	s.opts.Interval = 10 * time.Millisecond

	s.StartAutoRefresh(context.Background())
	s.StartAutoRefresh(context.Background())
	if !s.AutoRefreshing() {
		t.Fatal("auto-refresh not running")
	}

	waitFor(t, "two refresh passes", func() bool {
		return store.count("GetMyConversations") >= 2 && store.count("GetConversationMessages") >= 2
	})
	if got := store.count("MarkMessagesAsRead"); got != 0 {
		t.Errorf("refresh marked read %d times, want 0", got)
	}

	s.StopAutoRefresh()
	if s.AutoRefreshing() {
		t.Error("auto-refresh still running after stop")
	}
	n := store.count("GetMyConversations")
	time.Sleep(50 * time.Millisecond)
	if got := store.count("GetMyConversations"); got != n {
		t.Errorf("refresh continued after stop: %d -> %d calls", n, got)
	}
}

func TestResetStopsAutoRefreshAndClears(t *testing.T) {
	store := newFakeStore()
	s := openThread(t, store)
	s.StartAutoRefresh(context.Background())

	s.Reset()

	if s.AutoRefreshing() {
		t.Error("auto-refresh running after reset")
	}
	st := s.Snapshot()
	if st.Thread != nil || len(st.Conversations) != 0 || st.Err != nil {
		t.Errorf("state not cleared: %+v", st)
	}
	if st.Phase != status.Idle {
		t.Errorf("phase = %s, want IDLE", st.Phase)
	}
	if st.ViewerID != viewer {
		t.Errorf("viewer = %q, want kept", st.ViewerID)
	}
}

func TestSignInRebindsIdentity(t *testing.T) {
	first := newFakeStore()
	s := openThread(t, first)
	s.StartAutoRefresh(context.Background())

	second := newFakeStore()
	second.setConversations([]chat.ConversationSummary{conv("other", "user-z", "p9", nil)})
	if err := s.SignIn("user-z", second); err != nil {
		t.Fatal(err)
	}

	st := s.Snapshot()
	if st.ViewerID != "user-z" || st.Thread != nil || len(st.Conversations) != 0 {
		t.Errorf("state after sign-in = %+v", st)
	}
	if !s.AutoRefreshing() {
		t.Error("auto-refresh did not survive sign-in")
	}
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if got := second.count("GetMyConversations"); got == 0 {
		t.Error("new store not used")
	}
}

func TestSignOutClearsSnapshot(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "p1", nil)})
	snap := newFakeSnap()
	s := New(Options{}, snap, bus.New(), zap.NewNop())
	if err := s.SignIn(viewer, store); err != nil {
		t.Fatal(err)
	}
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if len(snap.sums[viewer]) != 1 {
		t.Fatalf("snapshot has %d summaries, want 1", len(snap.sums[viewer]))
	}

	s.SignOut()
	if s.ViewerID() != "" {
		t.Errorf("viewer = %q after sign-out", s.ViewerID())
	}
	if len(snap.cleared) != 1 || snap.cleared[0] != viewer {
		t.Errorf("cleared = %v, want [%s]", snap.cleared, viewer)
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	snap := newFakeSnap()
	snap.sums[viewer] = []chat.EnhancedConversationSummary{{
		ConversationSummary: conv("c1", viewer, "p1", map[string]int{viewer: 5}),
		OtherUserID:         "p1",
		OtherUserName:       "Pia",
	}}
	s := New(Options{}, snap, bus.New(), zap.NewNop())
	if err := s.SignIn(viewer, newFakeStore()); err != nil {
		t.Fatal(err)
	}

	if err := s.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.UnreadCount(); got != 5 {
		t.Errorf("UnreadCount = %d, want 5", got)
	}

	// A fetched list always wins over the snapshot.
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Snapshot().Conversations); got != 0 {
		t.Errorf("restore overwrote fetched list: %d conversations", got)
	}
}

func TestLoadConversationSeedsFromSnapshot(t *testing.T) {
	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "p1", nil)})
	store.messages["c1"] = []chat.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "p1", ReceiverID: viewer, Content: "old", CreatedAt: time.Unix(100, 0)},
		{ID: "m2", ConversationID: "c1", SenderID: "p1", ReceiverID: viewer, Content: "new", CreatedAt: time.Unix(200, 0)},
	}
	snap := newFakeSnap()
	snap.messages[viewer+"/c1"] = []chat.Message{
		{ID: "m1", ConversationID: "c1", SenderID: "p1", ReceiverID: viewer, Content: "old", CreatedAt: time.Unix(100, 0)},
	}

	s := New(Options{}, snap, bus.New(), zap.NewNop())
	if err := s.SignIn(viewer, store); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Reset)
	if err := s.FetchConversations(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	entered := make(chan struct{})
	store.mu.Lock()
	store.msgHook = func(call int) {
		if call == 1 {
			close(entered)
			<-release
		}
	}
	store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadConversation(context.Background(), "c1", false)
		done <- err
	}()
	<-entered

	seeded := s.Snapshot().Thread
	if seeded == nil || seeded.Conversation.ID != "c1" || len(seeded.Messages) != 1 || seeded.Messages[0].ID != "m1" {
		t.Fatalf("thread while loading = %+v, want the saved message", seeded)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := len(s.Snapshot().Thread.Messages); got != 2 {
		t.Errorf("thread after load has %d messages, want the remote page (2)", got)
	}
	snap.mu.Lock()
	saved := len(snap.messages[viewer+"/c1"])
	snap.mu.Unlock()
	if saved != 2 {
		t.Errorf("snapshot holds %d messages, want 2", saved)
	}
}

func TestLoadConversationSkipsSeedOutsideList(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("offline")
	snap := newFakeSnap()
	snap.messages[viewer+"/c9"] = []chat.Message{{ID: "m1", ConversationID: "c9"}}

	s := New(Options{}, snap, bus.New(), zap.NewNop())
	if err := s.SignIn(viewer, store); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Reset)

	if _, err := s.LoadConversation(context.Background(), "c9", false); err == nil {
		t.Fatal("expected remote error")
	}
	if st := s.Snapshot(); st.Thread != nil {
		t.Errorf("thread = %+v, want nil without a listed conversation", st.Thread)
	}
}

func TestCreateConversation(t *testing.T) {
	store := newFakeStore()
	s := newSynced(t, store, Options{})

	for _, provider := range []string{"", viewer} {
		if _, err := s.CreateConversation(context.Background(), provider); !chat.IsValidation(err) {
			t.Errorf("CreateConversation(%q) error = %v, want ValidationError", provider, err)
		}
	}
	if n := store.count("CreateConversation"); n != 0 {
		t.Fatalf("CreateConversation calls = %d, want 0", n)
	}

	c, err := s.CreateConversation(context.Background(), "provider-q")
	if err != nil {
		t.Fatal(err)
	}
	if c.ClientID != viewer || c.ProviderID != "provider-q" {
		t.Errorf("conversation = %+v, want viewer as client", c)
	}
	if got := s.ConversationIDs(); len(got) != 1 || got[0] != "new-conv" {
		t.Errorf("ConversationIDs = %v, want [new-conv]", got)
	}
}

func TestEventsPublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("inbox.", 32)
	defer unsub()

	store := newFakeStore()
	store.setConversations([]chat.ConversationSummary{conv("c1", viewer, "p1", nil)})
	s := New(Options{}, nil, b, zap.NewNop())
	if err := s.SignIn(viewer, store); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadConversation(context.Background(), "c1", false); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	timeout := time.After(time.Second)
	for !seen[bus.KindThreadUpdated] || !seen[bus.KindConversationsUpdated] || !seen[bus.KindConversationRead] {
		select {
		case evt := <-ch:
			seen[evt.Kind] = true
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}
}
