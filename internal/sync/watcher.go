package sync

import (
	"context"
	"time"

	"github.com/srvmarket/srvchat/internal/bus"
	"github.com/srvmarket/srvchat/internal/remote"
	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = time.Minute
)

// PushSource delivers push events until the connection ends. *remote.Client satisfies it.
type PushSource interface {
	Watch(ctx context.Context, fn func(remote.Event)) error
}

// Nudger refreshes in reaction to a push event.
type Nudger interface {
	Nudge(ctx context.Context, conversationID string)
}

// Watcher keeps a push connection open and nudges the synchronizer on every event.
// Broken connections are retried with exponential backoff.
type Watcher struct {
	source PushSource
	target Nudger
	bus    *bus.Bus
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher. Start must be called to connect.
func NewWatcher(source PushSource, target Nudger, b *bus.Bus, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		source:     source,
		target:     target,
		bus:        b,
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
}

// Start connects in the background.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
}

// Stop disconnects and waits for the connection loop to exit. A nil watcher is a no-op.
func (w *Watcher) Stop() {
	if w == nil || w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	backoff := w.minBackoff
	for {
		connected := time.Now()
		err := w.source.Watch(ctx, func(evt remote.Event) {
			if w.bus != nil {
				w.bus.Emit(bus.KindPush, evt)
			}
			w.target.Nudge(ctx, evt.ConversationID)
		})
		if ctx.Err() != nil {
			return
		}
		// A connection that stayed up for a while starts the backoff over.
		if time.Since(connected) > w.maxBackoff {
			backoff = w.minBackoff
		}
		w.logger.Warn("push channel disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.maxBackoff)
	}
}
