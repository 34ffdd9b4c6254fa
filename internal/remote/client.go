package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Identity is the credential a client is built for.
type Identity struct {
	ViewerID string
	Token    string
}

// ErrEmptyEnvelope is returned for a successful response carrying neither ok nor err.
var ErrEmptyEnvelope = errors.New("response has neither ok nor err")

// StatusError is an application or HTTP level failure reported by the store.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the remote conversation store over HTTP/JSON.
// A Client is bound to one Identity; use WithIdentity after a credential change.
type Client struct {
	endpoint   string
	identity   Identity
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	opts       []Option
	http       *resty.Client
}

// New builds a client for endpoint acting as id.
func New(endpoint string, id Identity, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		identity: id,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
		opts:     opts,
	}
	for _, opt := range opts {
		opt(c)
	}

	var rc *resty.Client
	if c.httpClient != nil {
		rc = resty.NewWithClient(c.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(c.endpoint).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if id.Token != "" {
		rc.SetAuthToken(id.Token)
	}
	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.SetHeader("X-Request-ID", uuid.NewString())
		return nil
	})
	c.http = rc
	return c
}

// WithIdentity returns a new client for the same endpoint and options acting as id.
func (c *Client) WithIdentity(id Identity) *Client {
	return New(c.endpoint, id, c.opts...)
}

// Identity returns the credential the client was built for.
func (c *Client) Identity() Identity {
	return c.identity
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	method string
	path   string
	params map[string]string
	query  map[string]string
	body   any
}

func do[T any](ctx context.Context, c *Client, r request) (T, error) {
	var zero T

	req := c.http.R().SetContext(ctx)
	if len(r.params) > 0 {
		req.SetPathParams(r.params)
	}
	if len(r.query) > 0 {
		req.SetQueryParams(r.query)
	}
	if r.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.body)
	}

	start := time.Now()
	resp, err := req.Execute(r.method, r.path)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	c.logger.Debug("remote call",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("took", time.Since(start)),
	)

	var env Result[T]
	body := resp.Body()
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			if resp.IsError() {
				return zero, &StatusError{Code: resp.StatusCode(), Message: strings.TrimSpace(string(body))}
			}
			return zero, fmt.Errorf("decode %s %s: %w", r.method, r.path, err)
		}
	}
	if env.Err != nil {
		return zero, &StatusError{Code: resp.StatusCode(), Message: *env.Err}
	}
	if resp.IsError() {
		return zero, &StatusError{Code: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	}
	if env.Ok == nil {
		return zero, fmt.Errorf("%s %s: %w", r.method, r.path, ErrEmptyEnvelope)
	}
	return *env.Ok, nil
}

// GetMyConversations lists every conversation the viewer participates in.
func (c *Client) GetMyConversations(ctx context.Context) ([]ConversationSummary, error) {
	return do[[]ConversationSummary](ctx, c, request{method: http.MethodGet, path: "/v1/conversations"})
}

// GetConversation fetches a single conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	return do[Conversation](ctx, c, request{
		method: http.MethodGet,
		path:   "/v1/conversations/{id}",
		params: map[string]string{"id": id},
	})
}

// GetConversationMessages fetches a page of messages.
func (c *Client) GetConversationMessages(ctx context.Context, id string, limit, offset int) (MessagePage, error) {
	return do[MessagePage](ctx, c, request{
		method: http.MethodGet,
		path:   "/v1/conversations/{id}/messages",
		params: map[string]string{"id": id},
		query: map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		},
	})
}

// SendMessage submits a text message.
func (c *Client) SendMessage(ctx context.Context, conversationID, receiverID, content string) (Message, error) {
	return do[Message](ctx, c, request{
		method: http.MethodPost,
		path:   "/v1/conversations/{id}/messages",
		params: map[string]string{"id": conversationID},
		body:   SendMessageRequest{ReceiverID: receiverID, Content: content},
	})
}

// MarkMessagesAsRead marks every message addressed to the viewer as read.
func (c *Client) MarkMessagesAsRead(ctx context.Context, conversationID string) (bool, error) {
	return do[bool](ctx, c, request{
		method: http.MethodPost,
		path:   "/v1/conversations/{id}/read",
		params: map[string]string{"id": conversationID},
	})
}

// CreateConversation opens a conversation between a client and a provider.
func (c *Client) CreateConversation(ctx context.Context, clientID, providerID string) (Conversation, error) {
	return do[Conversation](ctx, c, request{
		method: http.MethodPost,
		path:   "/v1/conversations",
		body:   CreateConversationRequest{ClientID: clientID, ProviderID: providerID},
	})
}

// ResolveUser fetches the public profile of userID.
func (c *Client) ResolveUser(ctx context.Context, userID string) (Profile, error) {
	return do[Profile](ctx, c, request{
		method: http.MethodGet,
		path:   "/v1/profiles/{id}",
		params: map[string]string{"id": userID},
	})
}
