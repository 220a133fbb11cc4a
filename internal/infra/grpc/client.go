package grpcapi

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"octopus/internal/app/dto"
	"octopus/internal/domain/chat"
)

// Client calls the chat service on behalf of one signed-in user.
type Client struct {
	conn        *grpc.ClientConn
	token       string
	callTimeout time.Duration
}

// NewClient prepares a lazy connection to target. Extra options are appended
// after the insecure transport and JSON codec defaults.
func NewClient(target, token string, callTimeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	if target == "" {
		return nil, errors.New("grpcapi: target required")
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, token: token, callTimeout: callTimeout}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) ListConversations(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error) {
	out := new(dto.ConversationList)
	return out, c.invoke(ctx, "ListConversations", req, out)
}

func (c *Client) LoadThread(ctx context.Context, req *LoadThreadRequest) (*dto.Thread, error) {
	out := new(dto.Thread)
	return out, c.invoke(ctx, "LoadThread", req, out)
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*dto.ChatMessage, error) {
	out := new(dto.ChatMessage)
	return out, c.invoke(ctx, "SendMessage", req, out)
}

func (c *Client) MarkRead(ctx context.Context, req *MarkReadRequest) (*dto.MarkReadResponse, error) {
	out := new(dto.MarkReadResponse)
	return out, c.invoke(ctx, "MarkRead", req, out)
}

func (c *Client) UnreadCount(ctx context.Context, req *UnreadCountRequest) (*dto.UnreadCount, error) {
	if req == nil {
		req = &UnreadCountRequest{}
	}
	out := new(dto.UnreadCount)
	return out, c.invoke(ctx, "UnreadCount", req, out)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	return fromStatus(c.conn.Invoke(ctx, fullMethod(method), in, out))
}

// fromStatus restores the domain errors callers branch on.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return chat.ErrConversationNotFound
	case codes.FailedPrecondition:
		return chat.ErrAwaitingFirstContact
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return err
	}
}

var _ ChatServer = (*Client)(nil)
