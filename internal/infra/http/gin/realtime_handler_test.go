package ginserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"octopus/internal/app/dto"
	"octopus/internal/app/wiring"
	"octopus/internal/domain/chat"
	"octopus/internal/infra/config"
	"octopus/internal/infra/obs"
	"octopus/internal/infra/realtime"
	"octopus/internal/infra/storage/memory"
)

func newStreamServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	store.PutApplication(chat.Application{ID: "app-3", CreatorID: "creator-1", CompanyID: "company-2", Status: chat.ApplicationAccepted})
	store.PutMessage(chat.Message{ID: "m1", ApplicationID: "app-3", SenderID: "company-2", SenderRole: chat.RoleCompany, Content: "hello", CreatedAt: base})

	hub := realtime.NewHub(obs.Discard())
	buses := wiring.Build(wiring.Deps{
		Applications:    store,
		Messages:        store,
		Profiles:        store,
		Outbox:          &realtime.NotifyingOutbox{Next: memory.NewOutbox(), Fanout: hub},
		Logger:          obs.Discard(),
		MarkReadTimeout: time.Second,
	})
	auth := AuthMiddleware{Verifier: stubVerifier{
		"creator-token": {UserID: "creator-1", Role: chat.RoleCreator},
		"company-token": {UserID: "company-2", Role: chat.RoleCompany},
	}}
	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{Logger: obs.Discard()}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Commands: buses.Commands, Queries: buses.Queries, Logger: obs.Discard()},
		Realtime:       NewRealtimeHandler(hub, nil, obs.Discard()),
		AuthMiddleware: auth.Handle,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		buses.Threads.Wait()
	})
	return srv, hub
}

func streamURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream?access_token=" + token
}

func TestStream_RejectsMissingToken(t *testing.T) {
	srv, _ := newStreamServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestStream_ReceivesNotificationOnSend(t *testing.T) {
	srv, hub := newStreamServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv, "creator-token"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connected("creator-1") == 1 }, time.Second, 10*time.Millisecond)

	body, err := json.Marshal(dto.SendMessageRequest{Content: "contract is ready"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/conversations/creator-1/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer company-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var note realtime.Notification
	require.NoError(t, conn.ReadJSON(&note))
	require.Equal(t, chat.EventMessageSent, note.Type)
	require.Equal(t, "app-3", note.ApplicationID)
	require.Equal(t, "company-2", note.From)
}

func TestStream_CheckOrigin(t *testing.T) {
	h := NewRealtimeHandler(realtime.NewHub(nil), []string{"https://app.octopus.test"}, nil)

	req := httptest.NewRequest(http.MethodGet, "http://api.octopus.test/api/v1/stream", nil)
	require.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://app.octopus.test")
	require.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.test")
	require.False(t, h.checkOrigin(req))

	req.Header.Set("Origin", "http://api.octopus.test")
	require.True(t, h.checkOrigin(req))
}

func TestStream_CheckOriginWithoutConfiguredOrigins(t *testing.T) {
	h := NewRealtimeHandler(realtime.NewHub(nil), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "http://api.octopus.test/api/v1/stream", nil)
	require.True(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.test")
	require.False(t, h.checkOrigin(req))

	req.Header.Set("Origin", "http://api.octopus.test")
	require.True(t, h.checkOrigin(req))

	open := NewRealtimeHandler(realtime.NewHub(nil), []string{"*"}, nil)
	require.True(t, open.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.test")
	require.True(t, open.checkOrigin(req))
}
