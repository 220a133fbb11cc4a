package grpcapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"octopus/internal/app/session"
	"octopus/internal/app/wiring"
	"octopus/internal/domain/chat"
	"octopus/internal/infra/obs"
	"octopus/internal/infra/storage/memory"
)

type stubVerifier map[string]session.Principal

func (s stubVerifier) Verify(token string) (session.Principal, error) {
	p, ok := s[token]
	if !ok {
		return session.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

var t0 = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func startServer(t *testing.T) (*memory.Store, func(token string) *Client) {
	t.Helper()
	now := func() time.Time { return t0.Add(time.Hour) }
	store := memory.NewStore().WithClock(now)
	store.PutApplication(chat.Application{ID: "app-1", CreatorID: "creator-1", CompanyID: "company-1", Status: chat.ApplicationAccepted})
	store.PutMessage(chat.Message{ID: "m1", ApplicationID: "app-1", SenderID: "company-1", SenderRole: chat.RoleCompany, Content: "hello", CreatedAt: t0})

	buses := wiring.Build(wiring.Deps{
		Applications: store,
		Messages:     store,
		Profiles:     store,
		Idempotency:  memory.NewIdempotencyStore(time.Hour),
		Logger:       obs.Discard(),
		Now:          now,
	})
	srv := NewServer(stubVerifier{
		"creator-token": {UserID: "creator-1", Role: chat.RoleCreator},
		"company-token": {UserID: "company-1", Role: chat.RoleCompany},
	}, obs.Discard(), &Server{Commands: buses.Commands, Queries: buses.Queries, Now: now})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		buses.Threads.Wait()
	})

	dial := func(token string) *Client {
		client, err := NewClient("passthrough:///bufnet", token, 5*time.Second,
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}))
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		return client
	}
	return store, dial
}

func TestGRPC_RejectsMissingToken(t *testing.T) {
	_, dial := startServer(t)

	_, err := dial("").UnreadCount(context.Background(), nil)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = dial("bogus").UnreadCount(context.Background(), nil)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPC_InboxAndThread(t *testing.T) {
	_, dial := startServer(t)
	client := dial("creator-token")
	ctx := context.Background()

	list, err := client.ListConversations(ctx, &ListConversationsRequest{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "company-1", list.Items[0].CounterpartyID)
	require.Equal(t, "Company", list.Items[0].DisplayName)
	require.Equal(t, 1, list.TotalUnread)

	thread, err := client.LoadThread(ctx, &LoadThreadRequest{CounterpartyID: "company-1", TimeZone: "Asia/Tokyo"})
	require.NoError(t, err)
	require.True(t, thread.CanSend)
	require.Len(t, thread.Messages, 1)
	require.Equal(t, "2026-04-03", thread.Buckets[0].Day)

	_, err = client.LoadThread(ctx, &LoadThreadRequest{CounterpartyID: "company-9"})
	require.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestGRPC_SendAndMarkRead(t *testing.T) {
	store, dial := startServer(t)
	ctx := context.Background()

	sent, err := dial("company-token").SendMessage(ctx, &SendMessageRequest{CounterpartyID: "creator-1", Content: "contract is ready", IdempotencyKey: "s-1"})
	require.NoError(t, err)
	require.Equal(t, "app-1", sent.ApplicationID)

	again, err := dial("company-token").SendMessage(ctx, &SendMessageRequest{CounterpartyID: "creator-1", Content: "contract is ready", IdempotencyKey: "s-1"})
	require.NoError(t, err)
	require.Equal(t, sent.ID, again.ID)

	_, err = dial("company-token").SendMessage(ctx, &SendMessageRequest{CounterpartyID: "creator-1", Content: " "})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	creator := dial("creator-token")
	count, err := creator.UnreadCount(ctx, &UnreadCountRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, count.Total)

	res, err := creator.MarkRead(ctx, &MarkReadRequest{CounterpartyID: "company-1"})
	require.NoError(t, err)
	require.Equal(t, []string{"app-1"}, res.ApplicationIDs)

	msgs, err := store.ListMessages(ctx, chat.MessageFilter{ApplicationIDs: []string{"app-1"}})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.NotNil(t, m.ReadAt)
	}
}
