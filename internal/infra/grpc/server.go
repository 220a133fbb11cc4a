package grpcapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"octopus/internal/app/commands"
	"octopus/internal/app/dto"
	"octopus/internal/app/handlers/inbox"
	"octopus/internal/app/handlers/messages"
	"octopus/internal/app/middleware"
	"octopus/internal/app/queries"
	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
	"octopus/internal/infra/obs"
	"octopus/internal/infra/security"
)

type TokenVerifier interface {
	Verify(token string) (session.Principal, error)
}

// NewServer builds a gRPC server exposing the chat service behind the auth
// and logging interceptors.
func NewServer(verifier TokenVerifier, logger *slog.Logger, chatSrv ChatServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(LoggingInterceptor(logger), AuthInterceptor(verifier, logger)),
	}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterChatServer(srv, chatSrv)
	return srv
}

// AuthInterceptor resolves the bearer token in the "authorization" metadata
// into the principal carried by the call context.
func AuthInterceptor(verifier TokenVerifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if verifier == nil {
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		token, err := security.BearerToken(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "auth required")
		}
		p, err := verifier.Verify(token)
		if err != nil {
			if logger != nil {
				logger.Debug("token validation failed", "method", info.FullMethod, "error", err)
			}
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(session.WithPrincipal(ctx, p), req)
	}
}

func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if vals := md.Get(strings.ToLower(obs.RequestIDHeader)); len(vals) > 0 && vals[0] != "" {
			ctx = obs.WithRequestID(ctx, vals[0])
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		if logger != nil {
			code := status.Code(err)
			level := slog.LevelInfo
			if code == codes.Internal || code == codes.Unknown || code == codes.Unavailable {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "grpc call",
				"method", info.FullMethod,
				"code", code.String(),
				"latency", time.Since(start),
				"request_id", obs.RequestIDFromContext(ctx),
			)
		}
		return resp, err
	}
}

// Server implements ChatServer on top of the command and query buses.
type Server struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
	Now      func() time.Time
}

func (s *Server) ListConversations(ctx context.Context, req *ListConversationsRequest) (*dto.ConversationList, error) {
	viewer, loc, err := s.prepare(ctx, req.TimeZone)
	if err != nil {
		return nil, err
	}
	res, err := queries.Ask[inbox.ListConversationsQuery, *inbox.ListConversationsResult](ctx, s.Queries, inbox.ListConversationsQuery{
		Viewer: viewer,
		Status: strings.TrimSpace(req.Status),
		Target: strings.TrimSpace(req.With),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := &dto.ConversationList{Items: dto.FromConversations(res.Conversations), TotalUnread: res.TotalUnread}
	if res.Selected != nil {
		out.Selected = res.Selected.CounterpartyID
		if res.Thread != nil {
			thread := dto.NewThread(res.Selected.CounterpartyID, res.Thread.ApplicationIDs, res.Thread.Messages,
				res.Thread.State, res.Thread.State.CanSend(viewer.Role), chat.GroupByDate(res.Thread.Messages, s.now(), loc))
			out.Thread = &thread
		}
	}
	return out, nil
}

func (s *Server) LoadThread(ctx context.Context, req *LoadThreadRequest) (*dto.Thread, error) {
	viewer, loc, err := s.prepare(ctx, req.TimeZone)
	if err != nil {
		return nil, err
	}
	view, err := queries.Ask[messages.LoadThreadQuery, *messages.ThreadView](ctx, s.Queries, messages.LoadThreadQuery{
		Viewer:         viewer,
		CounterpartyID: strings.TrimSpace(req.CounterpartyID),
		Location:       loc,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := dto.NewThread(view.CounterpartyID, view.Snapshot.ApplicationIDs, view.Snapshot.Messages, view.Snapshot.State, view.CanSend, view.Buckets)
	return &out, nil
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*dto.ChatMessage, error) {
	viewer, _, err := s.prepare(ctx, "")
	if err != nil {
		return nil, err
	}
	res, err := commands.Dispatch[messages.SendMessageCommand, *messages.SendMessageResult](ctx, s.Commands, messages.SendMessageCommand{
		Viewer:         viewer,
		CounterpartyID: strings.TrimSpace(req.CounterpartyID),
		ApplicationID:  strings.TrimSpace(req.ApplicationID),
		Content:        req.Content,
		IdemKey:        strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out := dto.FromMessage(res.Message)
	return &out, nil
}

func (s *Server) MarkRead(ctx context.Context, req *MarkReadRequest) (*dto.MarkReadResponse, error) {
	viewer, _, err := s.prepare(ctx, "")
	if err != nil {
		return nil, err
	}
	res, err := commands.Dispatch[messages.MarkReadCommand, *messages.MarkReadResult](ctx, s.Commands, messages.MarkReadCommand{
		Viewer:         viewer,
		CounterpartyID: strings.TrimSpace(req.CounterpartyID),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &dto.MarkReadResponse{ApplicationIDs: res.ApplicationIDs, ReadAt: res.ReadAt}, nil
}

func (s *Server) UnreadCount(ctx context.Context, _ *UnreadCountRequest) (*dto.UnreadCount, error) {
	viewer, _, err := s.prepare(ctx, "")
	if err != nil {
		return nil, err
	}
	res, err := queries.Ask[inbox.UnreadCountQuery, *inbox.UnreadCountResult](ctx, s.Queries, inbox.UnreadCountQuery{Viewer: viewer})
	if err != nil {
		return nil, toStatus(err)
	}
	return &dto.UnreadCount{Total: res.Total, ByCounterparty: res.ByCounterparty}, nil
}

func (s *Server) prepare(ctx context.Context, tz string) (session.Principal, *time.Location, error) {
	if s.Commands == nil || s.Queries == nil {
		return session.Principal{}, nil, status.Error(codes.Unavailable, "chat service unavailable")
	}
	viewer, ok := session.FromContext(ctx)
	if !ok {
		return session.Principal{}, nil, status.Error(codes.Unauthenticated, "auth required")
	}
	loc := time.UTC
	if tz = strings.TrimSpace(tz); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return session.Principal{}, nil, status.Error(codes.InvalidArgument, "unknown time zone")
		}
		loc = parsed
	}
	return viewer, loc, nil
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return status.Error(codes.NotFound, "conversation not found")
	case errors.Is(err, chat.ErrApplicationNotInThread),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, middleware.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, chat.ErrAwaitingFirstContact):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, session.ErrInvalidPrincipal):
		return status.Error(codes.Unauthenticated, "auth required")
	case errors.Is(err, session.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, middleware.ErrReplayedFailure):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "store timeout")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	default:
		return status.Errorf(codes.Internal, "chat: %v", err)
	}
}

var _ ChatServer = (*Server)(nil)
