package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/srvmarket/srvchat/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed connection to the daemon's inbox API.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. The connection is established lazily.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(api.Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c, "Status", &api.Empty{})
}

// ListConversations returns the daemon's conversation list, fetching it first when refresh is set.
func (c *Client) ListConversations(ctx context.Context, refresh bool) (*api.ListConversationsResponse, error) {
	return invoke[api.ListConversationsResponse](ctx, c, "ListConversations", &api.ListConversationsRequest{Refresh: refresh})
}

func (c *Client) OpenConversation(ctx context.Context, id string) (*api.ThreadResponse, error) {
	return invoke[api.ThreadResponse](ctx, c, "OpenConversation", &api.OpenConversationRequest{ConversationID: id})
}

// Thread returns the daemon's open thread without refetching it.
func (c *Client) Thread(ctx context.Context) (*api.ThreadResponse, error) {
	return invoke[api.ThreadResponse](ctx, c, "Thread", &api.Empty{})
}

func (c *Client) LoadOlder(ctx context.Context) (*api.ThreadResponse, error) {
	return invoke[api.ThreadResponse](ctx, c, "LoadOlder", &api.Empty{})
}

func (c *Client) CloseConversation(ctx context.Context) error {
	_, err := invoke[api.Empty](ctx, c, "CloseConversation", &api.Empty{})
	return err
}

// SendMessage sends content in the open conversation. An empty receiverID selects
// the other participant.
func (c *Client) SendMessage(ctx context.Context, content, receiverID string) (*api.Message, error) {
	resp, err := invoke[api.SendMessageResponse](ctx, c, "SendMessage", &api.SendMessageRequest{Content: content, ReceiverID: receiverID})
	if err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := invoke[api.Empty](ctx, c, "MarkRead", &api.MarkReadRequest{ConversationID: id})
	return err
}

func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	resp, err := invoke[api.MarkAllReadResponse](ctx, c, "MarkAllRead", &api.Empty{})
	if err != nil {
		return 0, err
	}
	return resp.Marked, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	resp, err := invoke[api.UnreadCountResponse](ctx, c, "UnreadCount", &api.Empty{})
	if err != nil {
		return 0, err
	}
	return resp.Unread, nil
}

func (c *Client) CreateConversation(ctx context.Context, providerID string) (*api.Conversation, error) {
	resp, err := invoke[api.CreateConversationResponse](ctx, c, "CreateConversation", &api.CreateConversationRequest{ProviderID: providerID})
	if err != nil {
		return nil, err
	}
	return &resp.Conversation, nil
}

func (c *Client) Refresh(ctx context.Context) (*api.ListConversationsResponse, error) {
	return invoke[api.ListConversationsResponse](ctx, c, "Refresh", &api.Empty{})
}

func (c *Client) SignIn(ctx context.Context, req *api.SignInRequest) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c, "SignIn", req)
}

func (c *Client) SignOut(ctx context.Context) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c, "SignOut", &api.Empty{})
}

// Watch streams daemon events to fn until ctx is done or the stream breaks.
// A cancelled ctx ends the watch without error.
func (c *Client) Watch(ctx context.Context, namespaces []string, fn func(*api.EventEnvelope)) error {
	stream, err := c.conn.NewStream(ctx, &api.InboxServiceDesc.Streams[0], api.FullMethod("WatchEvents"))
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	if err := stream.SendMsg(&api.WatchEventsRequest{Namespaces: namespaces}); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close watch request: %w", err)
	}
	for {
		evt := new(api.EventEnvelope)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(evt)
	}
}
