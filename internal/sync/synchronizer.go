package sync

import (
	"context"
	"errors"
	"maps"
	"slices"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/chat"
	"github.com/srvmarket/srvchat/internal/names"
	"github.com/srvmarket/srvchat/internal/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultPageSize = 50

	enhanceWorkers = 8
)

// Store is the remote conversation store in local types.
type Store interface {
	GetMyConversations(ctx context.Context) ([]chat.ConversationSummary, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	GetConversationMessages(ctx context.Context, id string, limit, offset int) (chat.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, receiverID, content string) (chat.Message, error)
	MarkMessagesAsRead(ctx context.Context, conversationID string) (bool, error)
	CreateConversation(ctx context.Context, clientID, providerID string) (chat.Conversation, error)
	names.Lookup
}

// Snapshotter persists the last-known-good state of a viewer.
type Snapshotter interface {
	SaveSummaries(viewerID string, sums []chat.EnhancedConversationSummary) error
	LoadSummaries(viewerID string) ([]chat.EnhancedConversationSummary, error)
	SaveMessages(viewerID, conversationID string, msgs []chat.Message) error
	ListMessages(viewerID, conversationID string, limit int) ([]chat.Message, error)
	Clear(viewerID string) error
}

// Options tune a Synchronizer. Zero values select the defaults.
type Options struct {
	Interval      time.Duration
	PageSize      int
	NameCacheSize int
	NameCacheTTL  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	return o
}

// State is a point-in-time copy of the synchronizer state.
type State struct {
	ViewerID      string
	Conversations []chat.EnhancedConversationSummary
	Thread        *chat.Thread
	// Loading is set while a foreground operation runs.
	Loading bool
	// Refreshing is set while a silent operation runs.
	Refreshing bool
	// Err is the last surfaced error. Silent operations never set it.
	Err   error
	Phase status.State
}

// op tracks one phase-affecting remote operation.
type op struct {
	epoch  uint64
	seq    uint64
	silent bool
}

// Synchronizer keeps a viewer-local replica of the remote conversation store.
// The mutex is never held across a remote call. A response is applied only if it is
// still the newest of its kind for the current identity.
type Synchronizer struct {
	mu gosync.Mutex

	viewerID string
	store    Store
	resolver *names.Resolver

	conversations []chat.EnhancedConversationSummary
	thread        *chat.Thread
	loading       int
	refreshing    int
	err           error
	bgErr         error

	// epoch changes on Reset and SignIn; older responses are dropped.
	epoch         uint64
	convSeq       uint64
	convApplied   uint64
	threadSeq     uint64
	threadApplied uint64
	// threadRev changes whenever the open thread's messages change; a background
	// page fetched before the change is dropped.
	threadRev uint64
	// listed is set once a fetched list has been applied in this epoch.
	listed bool

	inflight int
	prev     status.State
	outcome  status.State

	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
	refreshParent context.Context
	ticking       atomic.Bool

	opts    Options
	snap    Snapshotter
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// New creates a signed-out synchronizer. snap may be nil.
func New(opts Options, snap Snapshotter, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	if b == nil {
		b = bus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		opts:    opts.withDefaults(),
		snap:    snap,
		bus:     b,
		machine: status.NewMachine(b),
		logger:  logger,
	}
}

// SignIn binds the synchronizer to viewerID and a store built for that viewer's
// credential. Any previous state is cleared. A running auto-refresh keeps running.
func (s *Synchronizer) SignIn(viewerID string, store Store) error {
	if viewerID == "" || store == nil {
		return chat.ErrAuthenticationRequired
	}

	s.mu.Lock()
	parent := s.refreshParent
	s.mu.Unlock()

	s.Reset()

	s.mu.Lock()
	s.viewerID = viewerID
	s.store = store
	s.resolver = names.NewResolver(store, s.opts.NameCacheSize, s.opts.NameCacheTTL, s.logger)
	s.mu.Unlock()

	s.logger.Info("signed in", zap.String("viewer_id", viewerID))
	if parent != nil && parent.Err() == nil {
		s.StartAutoRefresh(parent)
	}
	return nil
}

// SignOut tears down all state, forgets the identity and clears its local snapshot.
func (s *Synchronizer) SignOut() {
	s.Reset()

	s.mu.Lock()
	viewer := s.viewerID
	s.viewerID = ""
	s.store = nil
	s.resolver = nil
	s.mu.Unlock()

	if viewer == "" {
		return
	}
	if s.snap != nil {
		if err := s.snap.Clear(viewer); err != nil {
			s.logger.Warn("failed to clear snapshot", zap.String("viewer_id", viewer), zap.Error(err))
		}
	}
	s.logger.Info("signed out", zap.String("viewer_id", viewer))
}

// Reset stops auto-refresh, clears conversations, thread and errors, and returns to Idle.
// The identity is kept. Responses still in flight are discarded when they arrive.
func (s *Synchronizer) Reset() {
	s.StopAutoRefresh()

	s.mu.Lock()
	s.epoch++
	s.conversations = nil
	s.thread = nil
	s.loading, s.refreshing = 0, 0
	s.err, s.bgErr = nil, nil
	s.convApplied, s.threadApplied = s.convSeq, s.threadSeq
	s.listed = false
	s.inflight = 0
	s.outcome = ""
	if s.resolver != nil {
		s.resolver.Reset()
	}
	s.machine.Reset()
	s.mu.Unlock()

	s.bus.Emit(bus.KindReset, nil)
}

// ViewerID returns the signed-in viewer, or "".
func (s *Synchronizer) ViewerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewerID
}

// Phase returns the lifecycle phase.
func (s *Synchronizer) Phase() status.State {
	return s.machine.Current()
}

// Snapshot returns a copy of the current state.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ViewerID:      s.viewerID,
		Conversations: make([]chat.EnhancedConversationSummary, len(s.conversations)),
		Loading:       s.loading > 0,
		Refreshing:    s.refreshing > 0,
		Err:           s.err,
		Phase:         s.machine.Current(),
	}
	for i, c := range s.conversations {
		st.Conversations[i] = copySummary(c)
	}
	if s.thread != nil {
		t := copyThread(*s.thread)
		st.Thread = &t
	}
	return st
}

// LastBackgroundError returns the most recent silent failure, or nil.
func (s *Synchronizer) LastBackgroundError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bgErr
}

// FetchConversations replaces the conversation list with the remote one, annotated with
// the other participant's name and avatar. A silent fetch never sets the surfaced error.
func (s *Synchronizer) FetchConversations(ctx context.Context, silent bool) error {
	s.mu.Lock()
	if s.viewerID == "" {
		s.mu.Unlock()
		return chat.ErrAuthenticationRequired
	}
	viewer, store, resolver := s.viewerID, s.store, s.resolver
	s.convSeq++
	o := s.beginLocked(silent, s.convSeq)
	s.mu.Unlock()

	sums, err := store.GetMyConversations(ctx)
	var enhanced []chat.EnhancedConversationSummary
	if err == nil {
		enhanced = enhance(ctx, resolver, viewer, sums)
	}

	s.mu.Lock()
	if err != nil {
		s.failLocked(o, o.seq < s.convApplied, "fetch conversations", err)
		s.mu.Unlock()
		return err
	}
	if o.epoch != s.epoch || o.seq < s.convApplied {
		s.endLocked(o, "")
		s.mu.Unlock()
		s.logger.Debug("dropped superseded conversation list", zap.Uint64("seq", o.seq))
		return nil
	}
	s.convApplied = o.seq
	s.conversations = enhanced
	s.listed = true
	if !silent {
		s.err = nil
	}
	s.endLocked(o, status.Loaded)
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationsUpdated, len(enhanced))
	if s.snap != nil {
		if err := s.snap.SaveSummaries(viewer, enhanced); err != nil {
			s.logger.Warn("failed to save conversation snapshot", zap.Error(err))
		}
	}
	return nil
}

func enhance(ctx context.Context, r *names.Resolver, viewerID string, sums []chat.ConversationSummary) []chat.EnhancedConversationSummary {
	out := make([]chat.EnhancedConversationSummary, len(sums))
	var g errgroup.Group
	g.SetLimit(enhanceWorkers)
	for i, sum := range sums {
		g.Go(func() error {
			other := sum.Conversation.OtherParticipant(viewerID)
			e := r.Lookup(ctx, other)
			out[i] = chat.EnhancedConversationSummary{
				ConversationSummary: sum,
				OtherUserID:         other,
				OtherUserName:       e.Name,
				OtherUserAvatar:     e.AvatarURL,
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// LoadConversation opens a conversation: metadata and the first page of messages.
// On success the conversation is marked read and the list is refreshed silently.
func (s *Synchronizer) LoadConversation(ctx context.Context, id string, silent bool) (chat.Thread, error) {
	s.mu.Lock()
	if s.viewerID == "" {
		s.mu.Unlock()
		return chat.Thread{}, chat.ErrAuthenticationRequired
	}
	store, limit, viewer := s.store, s.opts.PageSize, s.viewerID
	s.threadSeq++
	o := s.beginLocked(silent, s.threadSeq)
	seed := s.snap != nil && (s.thread == nil || s.thread.Conversation.ID != id)
	s.mu.Unlock()

	if seed {
		s.seedThread(viewer, id, limit, o)
	}

	conv, err := store.GetConversation(ctx, id)
	var page chat.MessagePage
	if err == nil {
		page, err = store.GetConversationMessages(ctx, id, limit, 0)
	}

	s.mu.Lock()
	if err != nil {
		s.failLocked(o, o.seq < s.threadApplied, "load conversation", err)
		s.mu.Unlock()
		return chat.Thread{}, err
	}
	thread := chat.Thread{
		Conversation: conv,
		Messages:     nonNil(page.Messages),
		HasMore:      page.HasMore,
	}
	if o.epoch != s.epoch || o.seq < s.threadApplied {
		s.endLocked(o, "")
		s.mu.Unlock()
		s.logger.Debug("dropped superseded thread", zap.String("conversation_id", id))
		return thread, nil
	}
	s.threadApplied = o.seq
	s.threadRev++
	applied := copyThread(thread)
	s.thread = &applied
	if !silent {
		s.err = nil
	}
	s.endLocked(o, status.Loaded)
	s.mu.Unlock()

	s.bus.Emit(bus.KindThreadUpdated, bus.ConversationRef{ConversationID: id})
	s.saveMessages(viewer, id, thread.Messages)

	s.MarkAsRead(ctx, id)
	_ = s.FetchConversations(ctx, true)
	return thread, nil
}

// LoadOlderMessages fetches the page after the loaded messages of the open thread.
func (s *Synchronizer) LoadOlderMessages(ctx context.Context) (chat.Thread, error) {
	s.mu.Lock()
	if s.viewerID == "" {
		s.mu.Unlock()
		return chat.Thread{}, chat.ErrAuthenticationRequired
	}
	if s.thread == nil {
		s.mu.Unlock()
		return chat.Thread{}, chat.ErrNoOpenConversation
	}
	if !s.thread.HasMore {
		t := copyThread(*s.thread)
		s.mu.Unlock()
		return t, nil
	}
	store, viewer := s.store, s.viewerID
	id, offset, limit := s.thread.Conversation.ID, len(s.thread.Messages), s.opts.PageSize
	epoch, openSeq := s.epoch, s.threadSeq
	s.mu.Unlock()

	page, err := store.GetConversationMessages(ctx, id, limit, offset)
	if err != nil {
		s.logger.Warn("failed to load older messages", zap.String("conversation_id", id), zap.Error(err))
		return chat.Thread{}, err
	}

	s.mu.Lock()
	if epoch != s.epoch || openSeq != s.threadSeq || s.thread == nil || s.thread.Conversation.ID != id {
		s.mu.Unlock()
		return chat.Thread{}, chat.ErrNoOpenConversation
	}
	s.thread.Messages = mergeMessages(s.thread.Messages, page.Messages)
	s.thread.HasMore = page.HasMore
	s.threadRev++
	t := copyThread(*s.thread)
	s.mu.Unlock()

	s.bus.Emit(bus.KindThreadUpdated, bus.ConversationRef{ConversationID: id})
	s.saveMessages(viewer, id, t.Messages)
	return t, nil
}

// CloseConversation drops the open thread. Loads still in flight will not reopen it.
func (s *Synchronizer) CloseConversation() {
	s.mu.Lock()
	wasOpen := s.thread != nil
	s.thread = nil
	s.threadSeq++
	s.threadApplied = s.threadSeq
	s.mu.Unlock()

	if wasOpen {
		s.bus.Emit(bus.KindThreadUpdated, bus.ConversationRef{})
	}
}

// SendMessage validates content, sends it to the receiver in the open thread and appends
// the stored message. An empty receiverID selects the other participant.
func (s *Synchronizer) SendMessage(ctx context.Context, content, receiverID string) (chat.Message, error) {
	if err := chat.ValidateContent(content); err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	if s.viewerID == "" {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrAuthenticationRequired
	}
	if s.thread == nil {
		s.mu.Unlock()
		return chat.Message{}, chat.ErrNoOpenConversation
	}
	viewer, store, epoch := s.viewerID, s.store, s.epoch
	conv := s.thread.Conversation
	s.mu.Unlock()

	if receiverID == "" {
		receiverID = conv.OtherParticipant(viewer)
	}
	if receiverID == viewer || !conv.HasParticipant(receiverID) {
		return chat.Message{}, &chat.ValidationError{Message: "Receiver is not part of this conversation"}
	}

	msg, err := store.SendMessage(ctx, conv.ID, receiverID, content)
	if err != nil {
		s.logger.Warn("send failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		return chat.Message{}, err
	}

	s.mu.Lock()
	appended := epoch == s.epoch && s.thread != nil && s.thread.Conversation.ID == conv.ID
	if appended {
		s.thread.Messages = appendMessage(s.thread.Messages, msg)
		s.threadRev++
	}
	s.mu.Unlock()

	if appended {
		s.bus.Emit(bus.KindMessageSent, bus.ConversationRef{ConversationID: conv.ID})
	}
	_ = s.FetchConversations(ctx, true)
	return msg, nil
}

// MarkAsRead marks a conversation read for the viewer. It is best-effort: failures are
// logged and never reach the caller or the surfaced error.
func (s *Synchronizer) MarkAsRead(ctx context.Context, conversationID string) {
	s.mu.Lock()
	viewer, store, epoch := s.viewerID, s.store, s.epoch
	s.mu.Unlock()

	if store == nil {
		s.logger.Debug("mark as read skipped, signed out", zap.String("conversation_id", conversationID))
		return
	}
	if _, err := store.MarkMessagesAsRead(ctx, conversationID); err != nil {
		s.logger.Warn("mark as read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}

	s.mu.Lock()
	if epoch == s.epoch {
		for i := range s.conversations {
			c := &s.conversations[i].Conversation
			if c.ID != conversationID || c.UnreadFor(viewer) == 0 {
				continue
			}
			unread := maps.Clone(c.UnreadCount)
			unread[viewer] = 0
			c.UnreadCount = unread
		}
	}
	s.mu.Unlock()

	s.bus.Emit(bus.KindConversationRead, bus.ConversationRef{ConversationID: conversationID})
}

// UnreadCount sums the viewer's unread counters over the loaded conversations.
func (s *Synchronizer) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewerID == "" {
		return 0
	}
	total := 0
	for _, c := range s.conversations {
		total += c.Conversation.UnreadFor(s.viewerID)
	}
	return total
}

// ConversationIDs returns the ids of the loaded conversations.
func (s *Synchronizer) ConversationIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.conversations))
	for _, c := range s.conversations {
		ids = append(ids, c.Conversation.ID)
	}
	return ids
}

// CreateConversation starts a conversation between the viewer, as client, and providerID.
func (s *Synchronizer) CreateConversation(ctx context.Context, providerID string) (chat.Conversation, error) {
	s.mu.Lock()
	viewer, store := s.viewerID, s.store
	s.mu.Unlock()

	if viewer == "" {
		return chat.Conversation{}, chat.ErrAuthenticationRequired
	}
	if providerID == "" {
		return chat.Conversation{}, &chat.ValidationError{Message: "Provider is required"}
	}
	if providerID == viewer {
		return chat.Conversation{}, &chat.ValidationError{Message: "Cannot start a conversation with yourself"}
	}

	conv, err := store.CreateConversation(ctx, viewer, providerID)
	if err != nil {
		s.logger.Warn("create conversation failed", zap.String("provider_id", providerID), zap.Error(err))
		return chat.Conversation{}, err
	}
	s.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	_ = s.FetchConversations(ctx, true)
	return conv, nil
}

// Restore seeds an empty conversation list from the local snapshot so front-ends have
// something to render before the first fetch completes.
func (s *Synchronizer) Restore(ctx context.Context) error {
	if s.snap == nil {
		return nil
	}
	s.mu.Lock()
	viewer, epoch := s.viewerID, s.epoch
	s.mu.Unlock()
	if viewer == "" {
		return chat.ErrAuthenticationRequired
	}

	sums, err := s.snap.LoadSummaries(viewer)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	restored := epoch == s.epoch && !s.listed && len(sums) > 0
	if restored {
		s.conversations = sums
	}
	s.mu.Unlock()

	if restored {
		s.logger.Info("restored conversations from snapshot", zap.Int("count", len(sums)))
		s.bus.Emit(bus.KindConversationsUpdated, len(sums))
	}
	return nil
}

// StartAutoRefresh runs a silent refresh every interval until StopAutoRefresh, Reset
// or ctx cancellation. Calling it while running is a no-op.
func (s *Synchronizer) StartAutoRefresh(ctx context.Context) {
	s.mu.Lock()
	if s.refreshCancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.refreshCancel, s.refreshDone, s.refreshParent = cancel, done, ctx
	interval := s.opts.Interval
	s.mu.Unlock()

	s.logger.Debug("auto-refresh started", zap.Duration("interval", interval))
	go s.refreshLoop(loopCtx, interval, done)
}

// StopAutoRefresh stops the refresh loop and waits for a running tick to finish.
func (s *Synchronizer) StopAutoRefresh() {
	s.mu.Lock()
	cancel, done := s.refreshCancel, s.refreshDone
	s.refreshCancel, s.refreshDone, s.refreshParent = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug("auto-refresh stopped")
}

// AutoRefreshing reports whether the refresh loop is running.
func (s *Synchronizer) AutoRefreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCancel != nil
}

func (s *Synchronizer) refreshLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	var wg gosync.WaitGroup
	defer close(done)
	defer wg.Wait()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.ticking.CompareAndSwap(false, true) {
				s.logger.Debug("refresh tick skipped, previous tick still running")
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.ticking.Store(false)
				s.refresh(ctx)
			}()
		}
	}
}

// Tick runs one silent refresh pass unless one is already running.
// It reports whether the pass ran.
func (s *Synchronizer) Tick(ctx context.Context) bool {
	if !s.ticking.CompareAndSwap(false, true) {
		return false
	}
	defer s.ticking.Store(false)
	s.refresh(ctx)
	return true
}

// Nudge reacts to a push notification with an immediate silent refresh.
func (s *Synchronizer) Nudge(ctx context.Context, conversationID string) {
	if !s.Tick(ctx) {
		s.logger.Debug("nudge coalesced into running refresh", zap.String("conversation_id", conversationID))
	}
}

func (s *Synchronizer) refresh(ctx context.Context) {
	if err := s.FetchConversations(ctx, true); errors.Is(err, chat.ErrAuthenticationRequired) {
		return
	}
	s.refreshThread(ctx)
}

// refreshThread re-fetches the messages of the open thread without marking it read.
func (s *Synchronizer) refreshThread(ctx context.Context) {
	s.mu.Lock()
	if s.thread == nil || s.store == nil {
		s.mu.Unlock()
		return
	}
	store, viewer := s.store, s.viewerID
	id := s.thread.Conversation.ID
	limit := max(s.opts.PageSize, len(s.thread.Messages))
	openSeq, rev := s.threadSeq, s.threadRev
	o := s.beginLocked(true, openSeq)
	s.mu.Unlock()

	page, err := store.GetConversationMessages(ctx, id, limit, 0)

	s.mu.Lock()
	if err != nil {
		s.failLocked(o, false, "refresh thread", err)
		s.mu.Unlock()
		return
	}
	if o.epoch != s.epoch || openSeq != s.threadSeq || rev != s.threadRev || s.thread == nil || s.thread.Conversation.ID != id {
		s.endLocked(o, "")
		s.mu.Unlock()
		s.logger.Debug("dropped stale thread refresh", zap.String("conversation_id", id))
		return
	}
	s.thread.Messages = nonNil(slices.Clone(page.Messages))
	s.threadRev++
	s.thread.HasMore = page.HasMore
	msgs := slices.Clone(s.thread.Messages)
	s.endLocked(o, status.Loaded)
	s.mu.Unlock()

	s.bus.Emit(bus.KindThreadUpdated, bus.ConversationRef{ConversationID: id})
	s.saveMessages(viewer, id, msgs)
}

// seedThread opens id with the messages saved by an earlier session, so front-ends
// can render it while the remote page loads. It needs the conversation in the list
// and gives way to any newer load.
func (s *Synchronizer) seedThread(viewer, id string, limit int, o op) {
	msgs, err := s.snap.ListMessages(viewer, id, limit)
	if err != nil {
		s.logger.Warn("failed to read message snapshot", zap.String("conversation_id", id), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	i := slices.IndexFunc(s.conversations, func(c chat.EnhancedConversationSummary) bool {
		return c.Conversation.ID == id
	})
	if i < 0 || o.epoch != s.epoch || o.seq != s.threadSeq || o.seq < s.threadApplied {
		s.mu.Unlock()
		return
	}
	s.thread = &chat.Thread{
		Conversation: copySummary(s.conversations[i]).Conversation,
		Messages:     msgs,
		HasMore:      len(msgs) >= limit,
	}
	s.threadRev++
	s.mu.Unlock()

	s.logger.Debug("seeded thread from snapshot", zap.String("conversation_id", id), zap.Int("messages", len(msgs)))
	s.bus.Emit(bus.KindThreadUpdated, bus.ConversationRef{ConversationID: id})
}

func (s *Synchronizer) saveMessages(viewer, conversationID string, msgs []chat.Message) {
	if s.snap == nil {
		return
	}
	if err := s.snap.SaveMessages(viewer, conversationID, msgs); err != nil {
		s.logger.Warn("failed to save message snapshot", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// beginLocked registers an operation and moves the phase to Loading.
func (s *Synchronizer) beginLocked(silent bool, seq uint64) op {
	if s.inflight == 0 {
		s.prev = s.machine.Current()
		s.outcome = ""
		if s.prev != status.Loading {
			s.transitionLocked(status.Loading)
		}
	}
	s.inflight++
	if silent {
		s.refreshing++
	} else {
		s.loading++
	}
	return op{epoch: s.epoch, seq: seq, silent: silent}
}

// endLocked unregisters an operation. When the last one ends the phase settles on the
// latest recorded outcome, or returns to where it was if nothing was recorded.
func (s *Synchronizer) endLocked(o op, outcome status.State) {
	if o.epoch != s.epoch {
		return
	}
	if outcome != "" {
		s.outcome = outcome
	}
	if o.silent {
		s.refreshing--
	} else {
		s.loading--
	}
	s.inflight--
	if s.inflight > 0 {
		return
	}
	target := s.outcome
	if target == "" {
		target = s.prev
	}
	if target != s.machine.Current() {
		s.transitionLocked(target)
	}
}

// failLocked records a failed operation. Foreground failures are surfaced; silent
// ones are kept as the last background error. Superseded failures only end the op.
func (s *Synchronizer) failLocked(o op, superseded bool, what string, err error) {
	if o.epoch != s.epoch || superseded || errors.Is(err, context.Canceled) {
		s.endLocked(o, "")
		return
	}
	if o.silent {
		s.bgErr = err
		s.logger.Warn("background "+what+" failed", zap.Error(err))
		s.endLocked(o, "")
		return
	}
	s.err = err
	s.logger.Error(what+" failed", zap.Error(err))
	s.endLocked(o, status.Errored)
	s.bus.Emit(bus.KindError, err)
}

func (s *Synchronizer) transitionLocked(to status.State) {
	if err := s.machine.Transition(to); err != nil {
		s.logger.Error("phase transition rejected", zap.Error(err))
	}
}

func nonNil(msgs []chat.Message) []chat.Message {
	if msgs == nil {
		return []chat.Message{}
	}
	return msgs
}

// appendMessage adds m, replacing a message with the same id.
func appendMessage(msgs []chat.Message, m chat.Message) []chat.Message {
	if i := slices.IndexFunc(msgs, func(x chat.Message) bool { return x.ID == m.ID }); i >= 0 {
		msgs[i] = m
		return msgs
	}
	return append(msgs, m)
}

// mergeMessages adds page to msgs, dropping duplicates, ordered by creation time.
func mergeMessages(msgs, page []chat.Message) []chat.Message {
	out := slices.Clone(msgs)
	for _, m := range page {
		out = appendMessage(out, m)
	}
	slices.SortStableFunc(out, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func copySummary(c chat.EnhancedConversationSummary) chat.EnhancedConversationSummary {
	c.Conversation.UnreadCount = maps.Clone(c.Conversation.UnreadCount)
	if c.LastMessage != nil {
		m := *c.LastMessage
		c.LastMessage = &m
	}
	return c
}

func copyThread(t chat.Thread) chat.Thread {
	t.Messages = nonNil(slices.Clone(t.Messages))
	return t
}
