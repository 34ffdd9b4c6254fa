package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "srvchat.inbox.v1.Inbox"

// InboxServer is the daemon side of the inbox API.
type InboxServer interface {
	Status(context.Context, *Empty) (*StatusResponse, error)
	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	OpenConversation(context.Context, *OpenConversationRequest) (*ThreadResponse, error)
	Thread(context.Context, *Empty) (*ThreadResponse, error)
	LoadOlder(context.Context, *Empty) (*ThreadResponse, error)
	CloseConversation(context.Context, *Empty) (*Empty, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*Empty, error)
	MarkAllRead(context.Context, *Empty) (*MarkAllReadResponse, error)
	UnreadCount(context.Context, *Empty) (*UnreadCountResponse, error)
	CreateConversation(context.Context, *CreateConversationRequest) (*CreateConversationResponse, error)
	Refresh(context.Context, *Empty) (*ListConversationsResponse, error)
	SignIn(context.Context, *SignInRequest) (*StatusResponse, error)
	SignOut(context.Context, *Empty) (*StatusResponse, error)
	WatchEvents(*WatchEventsRequest, EventSender) error
}

// EventSender is the server side of the WatchEvents stream.
type EventSender interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

// FullMethod returns the gRPC path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary builds the descriptor of a unary method whose request type is Req.
func unary[Req, Resp any](name string, call func(InboxServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(InboxServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InboxServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(evt *EventEnvelope) error {
	return s.ServerStream.SendMsg(evt)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(InboxServer).WatchEvents(in, &eventStream{stream})
}

// InboxServiceDesc describes the inbox API for grpc.Server.RegisterService.
var InboxServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InboxServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", InboxServer.Status),
		unary("ListConversations", InboxServer.ListConversations),
		unary("OpenConversation", InboxServer.OpenConversation),
		unary("Thread", InboxServer.Thread),
		unary("LoadOlder", InboxServer.LoadOlder),
		unary("CloseConversation", InboxServer.CloseConversation),
		unary("SendMessage", InboxServer.SendMessage),
		unary("MarkRead", InboxServer.MarkRead),
		unary("MarkAllRead", InboxServer.MarkAllRead),
		unary("UnreadCount", InboxServer.UnreadCount),
		unary("CreateConversation", InboxServer.CreateConversation),
		unary("Refresh", InboxServer.Refresh),
		unary("SignIn", InboxServer.SignIn),
		unary("SignOut", InboxServer.SignOut),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "srvchat/inbox/v1",
}

// RegisterInboxServer registers srv on s.
func RegisterInboxServer(s grpc.ServiceRegistrar, srv InboxServer) {
	s.RegisterService(&InboxServiceDesc, srv)
}
