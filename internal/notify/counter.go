package notify

import (
	"context"
	"sync"

	"github.com/srvmarket/srvchat/internal/bus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source is the synchronizer as seen by the counter.
type Source interface {
	UnreadCount() int
	ConversationIDs() []string
	MarkAsRead(ctx context.Context, conversationID string)
}

// Counter tracks the viewer's total unread messages across all conversations.
// It recomputes the total from the synchronizer after every inbox event.
type Counter struct {
	src    Source
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	total int

	pending sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCounter creates a counter over src.
func NewCounter(src Source, b *bus.Bus, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{src: src, bus: b, logger: logger}
}

// Start subscribes to inbox events on the bus.
func (c *Counter) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	ch, unsub := c.bus.Subscribe("inbox.", 64)
	c.Refresh()

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case <-ch:
				c.Refresh()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop unsubscribes and waits for outstanding bulk marks.
func (c *Counter) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.cancel = nil
	}
	c.pending.Wait()
}

// Total returns the last computed total.
func (c *Counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Refresh recomputes the total from the source and returns it.
func (c *Counter) Refresh() int {
	c.set(c.src.UnreadCount())
	return c.Total()
}

func (c *Counter) set(n int) {
	c.mu.Lock()
	changed := c.total != n
	c.total = n
	c.mu.Unlock()
	if changed && c.bus != nil {
		c.bus.Emit(bus.KindUnreadChanged, n)
	}
}

// MarkAllRead marks every loaded conversation read in parallel without waiting for the
// results, and zeroes the total immediately. It returns how many conversations were marked.
func (c *Counter) MarkAllRead(ctx context.Context) int {
	ids := c.src.ConversationIDs()
	c.set(0)
	if len(ids) == 0 {
		return 0
	}

	ctx = context.WithoutCancel(ctx)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		var g errgroup.Group
		for _, id := range ids {
			g.Go(func() error {
				c.src.MarkAsRead(ctx, id)
				return nil
			})
		}
		_ = g.Wait()
		c.logger.Debug("mark all read finished", zap.Int("conversations", len(ids)))
	}()
	return len(ids)
}
