package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"octopus/internal/app/dto"
)

const ServiceName = "octopus.chat.v1.ChatService"

type ListConversationsRequest struct {
	Status   string `json:"status,omitempty"`
	With     string `json:"with,omitempty"`
	TimeZone string `json:"tz,omitempty"`
}

type LoadThreadRequest struct {
	CounterpartyID string `json:"counterparty_id"`
	TimeZone       string `json:"tz,omitempty"`
}

type SendMessageRequest struct {
	CounterpartyID string `json:"counterparty_id"`
	ApplicationID  string `json:"application_id,omitempty"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type MarkReadRequest struct {
	CounterpartyID string `json:"counterparty_id"`
}

type UnreadCountRequest struct{}

// ChatServer is the server side of the chat service.
type ChatServer interface {
	ListConversations(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error)
	LoadThread(ctx context.Context, req *LoadThreadRequest) (*dto.Thread, error)
	SendMessage(ctx context.Context, req *SendMessageRequest) (*dto.ChatMessage, error)
	MarkRead(ctx context.Context, req *MarkReadRequest) (*dto.MarkReadResponse, error)
	UnreadCount(ctx context.Context, req *UnreadCountRequest) (*dto.UnreadCount, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListConversations", ChatServer.ListConversations),
		unary("LoadThread", ChatServer.LoadThread),
		unary("SendMessage", ChatServer.SendMessage),
		unary("MarkRead", ChatServer.MarkRead),
		unary("UnreadCount", ChatServer.UnreadCount),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "octopus/chat/v1",
}

func RegisterChatServer(s grpc.ServiceRegistrar, srv ChatServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(ChatServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
