package ginserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"octopus/internal/app/dto"
	"octopus/internal/app/session"
	"octopus/internal/app/wiring"
	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
	"octopus/internal/infra/config"
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

type harness struct {
	router *gin.Engine
	store  *memory.Store
	outbox *memory.Outbox
	buses  wiring.Buses
}

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	now := func() time.Time { return base.Add(time.Hour) }
	store := memory.NewStore().WithClock(now)
	store.PutApplication(chat.Application{ID: "app-1", CreatorID: "creator-1", CompanyID: "company-1", Status: chat.ApplicationAccepted})
	store.PutApplication(chat.Application{ID: "app-2", CreatorID: "creator-1", CompanyID: "company-1", Status: chat.ApplicationAccepted})
	store.PutApplication(chat.Application{ID: "app-3", CreatorID: "creator-1", CompanyID: "company-2", Status: chat.ApplicationAccepted})
	store.PutMessage(chat.Message{ID: "m1", ApplicationID: "app-1", SenderID: "company-1", SenderRole: chat.RoleCompany, Content: "welcome", CreatedAt: base})
	store.PutMessage(chat.Message{ID: "m2", ApplicationID: "app-2", SenderID: "company-1", SenderRole: chat.RoleCompany, Content: "brief attached", CreatedAt: base.Add(time.Minute)})
	store.PutProfile(profile.KindCompany, profile.Profile{UserID: "company-1", FullName: "Acme Studio"})

	box := memory.NewOutbox()
	buses := wiring.Build(wiring.Deps{
		Applications:    store,
		Messages:        store,
		Profiles:        store,
		Outbox:          box,
		Idempotency:     memory.NewIdempotencyStore(time.Hour),
		Logger:          obs.Discard(),
		MarkReadTimeout: time.Second,
		Now:             now,
	})
	auth := AuthMiddleware{Verifier: stubVerifier{
		"creator-token": {UserID: "creator-1", Role: chat.RoleCreator},
		"company-token": {UserID: "company-2", Role: chat.RoleCompany},
	}}
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{Logger: obs.Discard()}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Commands: buses.Commands, Queries: buses.Queries, Logger: obs.Discard(), Now: now},
		AuthMiddleware: auth.Handle,
	})
	t.Cleanup(buses.Threads.Wait)
	return &harness{router: router, store: store, outbox: box, buses: buses}
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestChatRoutes_RequireToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations", "forged", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListConversations_GroupsByCounterparty(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations", "creator-token", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ConversationList](t, rec)

	require.Len(t, list.Items, 2)
	require.Equal(t, "company-1", list.Items[0].CounterpartyID)
	require.Equal(t, "Acme Studio", list.Items[0].DisplayName)
	require.ElementsMatch(t, []string{"app-1", "app-2"}, list.Items[0].ApplicationIDs)
	require.Equal(t, 2, list.Items[0].UnreadCount)
	require.NotNil(t, list.Items[0].LastMessage)
	require.Equal(t, "m2", list.Items[0].LastMessage.ID)
	require.Equal(t, "company-2", list.Items[1].CounterpartyID)
	require.Equal(t, 2, list.TotalUnread)
	require.Nil(t, list.Thread)
}

func TestListConversations_DeepLinkEmbedsThread(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations?with=company-1", "creator-token", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ConversationList](t, rec)

	require.Equal(t, "company-1", list.Selected)
	require.NotNil(t, list.Thread)
	require.Len(t, list.Thread.Messages, 2)
	require.True(t, list.Thread.CanSend)
	require.Equal(t, "m1", list.Thread.Messages[0].ID)
}

func TestThread_MarksIncomingRead(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations/company-1/messages?tz=Europe/Berlin", "creator-token", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	thread := decode[dto.Thread](t, rec)
	require.Equal(t, chat.ThreadOpen.String(), thread.State)
	require.Len(t, thread.Buckets, 1)
	require.Equal(t, "2026-03-10", thread.Buckets[0].Day)
	h.buses.Threads.Wait()

	rec = h.do(t, http.MethodGet, "/api/v1/unread-count", "creator-token", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	count := decode[dto.UnreadCount](t, rec)
	require.Equal(t, 0, count.Total)
}

func TestThread_UnknownCounterparty(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/conversations/nobody/messages", "creator-token", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/conversations/company-1/messages?tz=Mars/Olympus", "creator-token", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessage_ReplaysIdempotencyKey(t *testing.T) {
	h := newHarness(t)
	headers := map[string]string{"Idempotency-Key": "k-1"}
	body := dto.SendMessageRequest{Content: "  on it  "}

	first := h.do(t, http.MethodPost, "/api/v1/conversations/company-1/messages", "creator-token", body, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	sent := decode[dto.ChatMessage](t, first)
	require.Equal(t, "on it", sent.Content)
	require.Equal(t, "app-2", sent.ApplicationID)
	require.Equal(t, string(chat.RoleCreator), sent.SenderRole)

	second := h.do(t, http.MethodPost, "/api/v1/conversations/company-1/messages", "creator-token", body, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, sent.ID, decode[dto.ChatMessage](t, second).ID)

	require.Len(t, h.outbox.Published(), 1)
}

func TestSendMessage_RejectsBadInput(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/conversations/company-1/messages", "creator-token", dto.SendMessageRequest{Content: "   "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/conversations/company-1/messages", "creator-token",
		dto.SendMessageRequest{Content: "hi", ApplicationID: "app-3"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMarkRead_OnlyCounterpartyMessages(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/conversations/creator-9/read", "company-token", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/conversations/company-1/read", "creator-token", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[dto.MarkReadResponse](t, rec)
	require.ElementsMatch(t, []string{"app-1", "app-2"}, res.ApplicationIDs)

	msgs, err := h.store.ListMessages(t.Context(), chat.MessageFilter{ApplicationIDs: []string{"app-1", "app-2"}})
	require.NoError(t, err)
	for _, m := range msgs {
		require.NotNil(t, m.ReadAt, m.ID)
	}
}
