package postgrest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
)

const (
	tableApplications = "applications"
	tableMessages     = "messages"
)

var errEmptyInsert = errors.New("postgrest: insert returned no rows")

// Store implements the chat and profile ports on top of the REST API.
type Store struct {
	Client *Client
}

func NewStore(client *Client) *Store {
	return &Store{Client: client}
}

type applicationRow struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`
	CompanyID string `json:"company_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

type messageRow struct {
	ID            string     `json:"id"`
	ApplicationID string     `json:"application_id"`
	SenderID      string     `json:"sender_id"`
	SenderRole    string     `json:"sender_role"`
	Content       string     `json:"content"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at"`
}

type profileRow struct {
	UserID    string  `json:"user_id"`
	FullName  *string `json:"full_name"`
	Username  *string `json:"username"`
	Bio       *string `json:"bio"`
	AvatarURL *string `json:"avatar_url"`
}

func (r messageRow) message() chat.Message {
	msg := chat.Message{
		ID:            r.ID,
		ApplicationID: r.ApplicationID,
		SenderID:      r.SenderID,
		SenderRole:    chat.Role(r.SenderRole),
		Content:       r.Content,
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if r.ReadAt != nil {
		ts := r.ReadAt.UTC()
		msg.ReadAt = &ts
	}
	return msg
}

func (s *Store) ListApplications(ctx context.Context, filter chat.ApplicationFilter) ([]chat.Application, error) {
	q := url.Values{"select": {"id,creator_id,company_id,job_id,status"}}
	if filter.OwnerID != "" {
		switch filter.ViewerRole {
		case chat.RoleCreator:
			q.Set("creator_id", "eq."+filter.OwnerID)
		case chat.RoleCompany:
			q.Set("company_id", "eq."+filter.OwnerID)
		default:
			return nil, chat.ErrInvalidRole
		}
	}
	if filter.Status != "" {
		q.Set("status", "ilike."+filter.Status)
	}
	var rows []applicationRow
	if err := s.Client.do(ctx, http.MethodGet, "/rest/v1/"+tableApplications, q, nil, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]chat.Application, 0, len(rows))
	for _, r := range rows {
		out = append(out, chat.Application{
			ID:        r.ID,
			CreatorID: r.CreatorID,
			CompanyID: r.CompanyID,
			JobID:     r.JobID,
			Status:    r.Status,
		})
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, filter chat.MessageFilter) ([]chat.Message, error) {
	if len(filter.ApplicationIDs) == 0 {
		return []chat.Message{}, nil
	}
	order := "created_at.asc"
	if filter.Order == chat.OrderDesc {
		order = "created_at.desc"
	}
	q := url.Values{
		"select":         {"id,application_id,sender_id,sender_role,content,created_at,read_at"},
		"application_id": {inList(filter.ApplicationIDs)},
		"order":          {order},
	}
	var rows []messageRow
	if err := s.Client.do(ctx, http.MethodGet, "/rest/v1/"+tableMessages, q, nil, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]chat.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.message())
	}
	return out, nil
}

type insertMessage struct {
	ApplicationID string `json:"application_id"`
	SenderID      string `json:"sender_id"`
	SenderRole    string `json:"sender_role"`
	Content       string `json:"content"`
}

func (s *Store) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	var rows []messageRow
	err := s.Client.do(ctx, http.MethodPost, "/rest/v1/"+tableMessages, nil, insertMessage{
		ApplicationID: msg.ApplicationID,
		SenderID:      msg.SenderID,
		SenderRole:    string(msg.SenderRole),
		Content:       msg.Content,
	}, map[string]string{"Prefer": "return=representation"}, &rows)
	if err != nil {
		return chat.Message{}, err
	}
	if len(rows) == 0 {
		return chat.Message{}, errEmptyInsert
	}
	return rows[0].message(), nil
}

type readPatch struct {
	ReadAt time.Time `json:"read_at"`
}

func (s *Store) MarkRead(ctx context.Context, params chat.MarkReadParams) error {
	q := url.Values{
		"application_id": {"eq." + params.ApplicationID},
		"sender_role":    {"eq." + string(params.SenderRole)},
		"read_at":        {"is.null"},
	}
	if !params.Before.IsZero() {
		q.Set("created_at", "lte."+params.Before.UTC().Format(time.RFC3339Nano))
	}
	readAt := params.ReadAt
	if readAt.IsZero() {
		readAt = time.Now()
	}
	return s.Client.do(ctx, http.MethodPatch, "/rest/v1/"+tableMessages, q, readPatch{ReadAt: readAt.UTC()},
		map[string]string{"Prefer": "return=minimal"}, nil)
}

func (s *Store) ListProfiles(ctx context.Context, kind profile.Kind, userIDs []string) ([]profile.Profile, error) {
	if len(userIDs) == 0 {
		return []profile.Profile{}, nil
	}
	q := url.Values{
		"select":  {"user_id,full_name,username,bio,avatar_url"},
		"user_id": {inList(userIDs)},
	}
	var rows []profileRow
	if err := s.Client.do(ctx, http.MethodGet, "/rest/v1/"+profileTable(kind), q, nil, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]profile.Profile, 0, len(rows))
	for _, r := range rows {
		out = append(out, profile.Profile{
			UserID:    r.UserID,
			FullName:  deref(r.FullName),
			Username:  deref(r.Username),
			BioRaw:    deref(r.Bio),
			AvatarURL: deref(r.AvatarURL),
		})
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	var rows []applicationRow
	return s.Client.do(ctx, http.MethodGet, "/rest/v1/"+tableApplications, q, nil, nil, &rows)
}

func profileTable(kind profile.Kind) string {
	if kind == profile.KindCompany {
		return "company_profiles"
	}
	return "creator_profiles"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var (
	_ chat.ApplicationRepository = (*Store)(nil)
	_ chat.MessageRepository     = (*Store)(nil)
	_ profile.Repository         = (*Store)(nil)
)
