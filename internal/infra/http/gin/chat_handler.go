package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"octopus/internal/app/commands"
	"octopus/internal/app/dto"
	"octopus/internal/app/handlers/inbox"
	"octopus/internal/app/handlers/messages"
	"octopus/internal/app/middleware"
	"octopus/internal/app/queries"
	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

// ChatHandler bridges HTTP with the chat command and query buses.
type ChatHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
	Now      func() time.Time
}

// ListConversations returns the viewer's inbox. ?with= deep-links a
// counterparty and embeds its thread.
func (h ChatHandler) ListConversations(c *gin.Context) {
	viewer, ok := requirePrincipal(c)
	if !ok {
		return
	}
	loc, ok := h.location(c)
	if !ok {
		return
	}
	res, err := queries.Ask[inbox.ListConversationsQuery, *inbox.ListConversationsResult](c.Request.Context(), h.Queries, inbox.ListConversationsQuery{
		Viewer: viewer,
		Status: strings.TrimSpace(c.Query("status")),
		Target: strings.TrimSpace(c.Query("with")),
	})
	if err != nil {
		h.respondError(c, err, "list conversations", "user_id", viewer.UserID)
		return
	}
	out := dto.ConversationList{Items: []dto.Conversation{}}
	if res != nil {
		out.Items = dto.FromConversations(res.Conversations)
		out.TotalUnread = res.TotalUnread
		if res.Selected != nil {
			out.Selected = res.Selected.CounterpartyID
			if res.Thread != nil {
				thread := dto.NewThread(res.Selected.CounterpartyID, res.Thread.ApplicationIDs, res.Thread.Messages,
					res.Thread.State, res.Thread.State.CanSend(viewer.Role), chat.GroupByDate(res.Thread.Messages, h.now(), loc))
				out.Thread = &thread
			}
		}
	}
	c.JSON(http.StatusOK, out)
}

// Thread opens the conversation with :counterparty and marks incoming
// messages read in the background.
func (h ChatHandler) Thread(c *gin.Context) {
	viewer, ok := requirePrincipal(c)
	if !ok {
		return
	}
	loc, ok := h.location(c)
	if !ok {
		return
	}
	counterparty := strings.TrimSpace(c.Param("counterparty"))
	view, err := queries.Ask[messages.LoadThreadQuery, *messages.ThreadView](c.Request.Context(), h.Queries, messages.LoadThreadQuery{
		Viewer:         viewer,
		CounterpartyID: counterparty,
		Location:       loc,
	})
	if err != nil {
		h.respondError(c, err, "load thread", "user_id", viewer.UserID, "counterparty_id", counterparty)
		return
	}
	c.JSON(http.StatusOK, dto.NewThread(view.CounterpartyID, view.Snapshot.ApplicationIDs, view.Snapshot.Messages,
		view.Snapshot.State, view.CanSend, view.Buckets))
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	viewer, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	counterparty := strings.TrimSpace(c.Param("counterparty"))
	res, err := commands.Dispatch[messages.SendMessageCommand, *messages.SendMessageResult](c.Request.Context(), h.Commands, messages.SendMessageCommand{
		Viewer:         viewer,
		CounterpartyID: counterparty,
		ApplicationID:  strings.TrimSpace(req.ApplicationID),
		Content:        req.Content,
		IdemKey:        strings.TrimSpace(c.GetHeader("Idempotency-Key")),
	})
	if err != nil {
		h.respondError(c, err, "send message", "user_id", viewer.UserID, "counterparty_id", counterparty)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(res.Message))
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	viewer, ok := requirePrincipal(c)
	if !ok {
		return
	}
	counterparty := strings.TrimSpace(c.Param("counterparty"))
	res, err := commands.Dispatch[messages.MarkReadCommand, *messages.MarkReadResult](c.Request.Context(), h.Commands, messages.MarkReadCommand{
		Viewer:         viewer,
		CounterpartyID: counterparty,
	})
	if err != nil {
		h.respondError(c, err, "mark read", "user_id", viewer.UserID, "counterparty_id", counterparty)
		return
	}
	c.JSON(http.StatusOK, dto.MarkReadResponse{ApplicationIDs: res.ApplicationIDs, ReadAt: res.ReadAt})
}

func (h ChatHandler) UnreadCount(c *gin.Context) {
	viewer, ok := requirePrincipal(c)
	if !ok {
		return
	}
	res, err := queries.Ask[inbox.UnreadCountQuery, *inbox.UnreadCountResult](c.Request.Context(), h.Queries, inbox.UnreadCountQuery{Viewer: viewer})
	if err != nil {
		h.respondError(c, err, "unread count", "user_id", viewer.UserID)
		return
	}
	c.JSON(http.StatusOK, dto.UnreadCount{Total: res.Total, ByCounterparty: res.ByCounterparty})
}

// location reads ?tz= (an IANA zone). Day buckets default to UTC.
func (h ChatHandler) location(c *gin.Context) (*time.Location, bool) {
	tz := strings.TrimSpace(c.Query("tz"))
	if tz == "" {
		return time.UTC, true
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown time zone"})
		return nil, false
	}
	return loc, true
}

func (h ChatHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h ChatHandler) respondError(c *gin.Context, err error, action string, attrs ...any) {
	code, msg := statusFor(err)
	if h.Logger != nil {
		level := slog.LevelWarn
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.Logger.Log(c.Request.Context(), level, "chat request failed", append([]any{"action", action, "status", code, "error", err}, attrs...)...)
	}
	c.JSON(code, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, chat.ErrApplicationNotInThread):
		return http.StatusUnprocessableEntity, "application does not belong to this conversation"
	case errors.Is(err, chat.ErrAwaitingFirstContact):
		return http.StatusConflict, "waiting for the company to write first"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "content is required"
	case errors.Is(err, chat.ErrMessageTooLong):
		return http.StatusBadRequest, "content is too long"
	case errors.Is(err, middleware.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrInvalidPrincipal):
		return http.StatusUnauthorized, "auth required"
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, middleware.ErrReplayedFailure):
		return http.StatusConflict, "request was already processed and failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "store timeout"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
