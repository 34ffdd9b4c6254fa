package model

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/tui/ui"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const (
	watchMinBackoff = 500 * time.Millisecond
	watchMaxBackoff = 10 * time.Second
)

// Daemon is the part of the daemon client the view model uses. *client.Client satisfies it.
type Daemon interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	ListConversations(ctx context.Context, refresh bool) (*api.ListConversationsResponse, error)
	OpenConversation(ctx context.Context, id string) (*api.ThreadResponse, error)
	Thread(ctx context.Context) (*api.ThreadResponse, error)
	LoadOlder(ctx context.Context) (*api.ThreadResponse, error)
	CloseConversation(ctx context.Context) error
	SendMessage(ctx context.Context, content, receiverID string) (*api.Message, error)
	MarkAllRead(ctx context.Context) (int, error)
	CreateConversation(ctx context.Context, providerID string) (*api.Conversation, error)
	Refresh(ctx context.Context) (*api.ListConversationsResponse, error)
	SignIn(ctx context.Context, req *api.SignInRequest) (*api.StatusResponse, error)
	SignOut(ctx context.Context) (*api.StatusResponse, error)
	Watch(ctx context.Context, namespaces []string, fn func(*api.EventEnvelope)) error
}

// ViewModel caches daemon state for the views and signals when it changed.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	status        *api.StatusResponse
	conversations []api.Conversation
	unread        int
	thread        *api.ThreadResponse

	Flash *ui.FlashModel

	refreshCh chan struct{}
}

func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{
		daemon:    d,
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh receives a value whenever the cached state changed.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.unread = resp.Unread
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadConversations reads the daemon's list, asking it to fetch first when refresh is set.
func (vm *ViewModel) LoadConversations(ctx context.Context, refresh bool) error {
	resp, err := vm.daemon.ListConversations(ctx, refresh)
	if err != nil {
		return err
	}
	vm.setList(resp)
	return nil
}

// Refresh asks the daemon for an immediate foreground fetch.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	resp, err := vm.daemon.Refresh(ctx)
	if err != nil {
		return err
	}
	vm.setList(resp)
	return nil
}

func (vm *ViewModel) setList(resp *api.ListConversationsResponse) {
	vm.mu.Lock()
	vm.conversations = resp.Conversations
	vm.unread = resp.Unread
	vm.mu.Unlock()
	vm.signalRefresh()
}

func (vm *ViewModel) Open(ctx context.Context, id string) error {
	t, err := vm.daemon.OpenConversation(ctx, id)
	if err != nil {
		return err
	}
	vm.setThread(t)
	return nil
}

func (vm *ViewModel) LoadOlder(ctx context.Context) (added int, err error) {
	before := 0
	if cur := vm.Thread(); cur != nil {
		before = len(cur.Messages)
	}
	t, err := vm.daemon.LoadOlder(ctx)
	if err != nil {
		return 0, err
	}
	vm.setThread(t)
	return len(t.Messages) - before, nil
}

// Close forgets the open thread locally and in the daemon.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.setThread(nil)
	return vm.daemon.CloseConversation(ctx)
}

// reloadThread picks up the daemon's copy of the open thread after it changed.
func (vm *ViewModel) reloadThread(ctx context.Context) {
	t, err := vm.daemon.Thread(ctx)
	if grpcstatus.Code(err) == codes.FailedPrecondition {
		vm.setThread(nil)
		return
	}
	if err != nil {
		return
	}
	if cur := vm.Thread(); cur == nil || cur.Conversation.ID != t.Conversation.ID {
		return
	}
	vm.setThread(t)
}

func (vm *ViewModel) setThread(t *api.ThreadResponse) {
	vm.mu.Lock()
	vm.thread = t
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Send sends text to the other participant of the open thread.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	if _, err := vm.daemon.SendMessage(ctx, text, ""); err != nil {
		return err
	}
	vm.reloadThread(ctx)
	return nil
}

func (vm *ViewModel) MarkAllRead(ctx context.Context) (int, error) {
	n, err := vm.daemon.MarkAllRead(ctx)
	if err != nil {
		return 0, err
	}
	vm.mu.Lock()
	vm.unread = 0
	vm.mu.Unlock()
	vm.signalRefresh()
	return n, nil
}

func (vm *ViewModel) Create(ctx context.Context, providerID string) (*api.Conversation, error) {
	c, err := vm.daemon.CreateConversation(ctx, providerID)
	if err != nil {
		return nil, err
	}
	_ = vm.LoadConversations(ctx, false)
	return c, nil
}

func (vm *ViewModel) SignIn(ctx context.Context, viewerID, token string) error {
	st, err := vm.daemon.SignIn(ctx, &api.SignInRequest{ViewerID: viewerID, Token: token, Persist: true})
	if err != nil {
		return err
	}
	vm.reset(st)
	return vm.LoadConversations(ctx, true)
}

func (vm *ViewModel) SignOut(ctx context.Context) error {
	st, err := vm.daemon.SignOut(ctx)
	if err != nil {
		return err
	}
	vm.reset(st)
	return nil
}

func (vm *ViewModel) reset(st *api.StatusResponse) {
	vm.mu.Lock()
	vm.status = st
	vm.conversations = nil
	vm.thread = nil
	vm.unread = 0
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Watch follows the daemon's events until ctx is done, reconnecting with backoff.
func (vm *ViewModel) Watch(ctx context.Context) {
	backoff := watchMinBackoff
	for {
		connected := time.Now()
		err := vm.daemon.Watch(ctx, nil, func(evt *api.EventEnvelope) {
			vm.handle(ctx, evt)
		})
		if ctx.Err() != nil {
			return
		}
		if time.Since(connected) > watchMaxBackoff {
			backoff = watchMinBackoff
		}
		if err != nil {
			vm.Flash.Warn("daemon event stream lost, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, watchMaxBackoff)
	}
}

func (vm *ViewModel) handle(ctx context.Context, evt *api.EventEnvelope) {
	switch evt.Kind {
	case bus.KindConversationsUpdated, bus.KindConversationRead:
		_ = vm.LoadConversations(ctx, false)
	case bus.KindThreadUpdated, bus.KindMessageSent:
		if cur := vm.Thread(); cur != nil && cur.Conversation.ID == evt.ConversationID {
			vm.reloadThread(ctx)
		}
	case bus.KindUnreadChanged:
		if evt.Count != nil {
			vm.mu.Lock()
			vm.unread = *evt.Count
			vm.mu.Unlock()
			vm.signalRefresh()
		}
	case bus.KindStateChanged:
		vm.mu.Lock()
		if vm.status != nil && evt.Phase != "" {
			st := *vm.status
			st.Phase = evt.Phase
			vm.status = &st
		}
		vm.mu.Unlock()
		vm.signalRefresh()
	case bus.KindReset:
		_ = vm.LoadStatus(ctx)
		_ = vm.LoadConversations(ctx, false)
		vm.reloadThread(ctx)
	case bus.KindError:
		if evt.Message != "" {
			vm.Flash.Warn(evt.Message)
		}
	default:
		if strings.HasPrefix(evt.Kind, "push.") {
			vm.signalRefresh()
		}
	}
}

func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

func (vm *ViewModel) Conversations() []api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

func (vm *ViewModel) Unread() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.unread
}

func (vm *ViewModel) Thread() *api.ThreadResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.thread
}

// SignedIn reports whether the daemon has a viewer.
func (vm *ViewModel) SignedIn() bool {
	st := vm.Status()
	return st != nil && st.ViewerID != ""
}
