package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// EventsURL returns the websocket URL of the push channel.
func (c *Client) EventsURL() string {
	u := c.endpoint + "/v1/events"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// Watch connects to the push channel and calls fn for every event until ctx is done
// or the connection fails. It always returns a non-nil error.
func (c *Client) Watch(ctx context.Context, fn func(Event)) error {
	header := http.Header{}
	if c.identity.Token != "" {
		header.Set("Authorization", "Bearer "+c.identity.Token)
	}

	conn, _, err := websocket.Dial(ctx, c.EventsURL(), &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		fn(evt)
	}
}
