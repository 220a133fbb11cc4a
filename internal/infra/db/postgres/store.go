package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
)

// Store reads the marketplace tables directly, bypassing the REST layer.
type Store struct {
	Pool *pgxpool.Pool
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

type applicationRecord struct {
	ID        string `db:"id"`
	CreatorID string `db:"creator_id"`
	CompanyID string `db:"company_id"`
	JobID     string `db:"job_id"`
	Status    string `db:"status"`
}

type messageRecord struct {
	ID            string     `db:"id"`
	ApplicationID string     `db:"application_id"`
	SenderID      string     `db:"sender_id"`
	SenderRole    string     `db:"sender_role"`
	Content       string     `db:"content"`
	CreatedAt     time.Time  `db:"created_at"`
	ReadAt        *time.Time `db:"read_at"`
}

type profileRecord struct {
	UserID    string  `db:"user_id"`
	FullName  *string `db:"full_name"`
	Username  *string `db:"username"`
	Bio       *string `db:"bio"`
	AvatarURL *string `db:"avatar_url"`
}

const messageColumns = `id::text AS id, application_id::text AS application_id, sender_id::text AS sender_id,
	sender_role, content, created_at, read_at`

func (s *Store) ListApplications(ctx context.Context, filter chat.ApplicationFilter) ([]chat.Application, error) {
	sql, args, err := applicationsQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[applicationRecord])
	if err != nil {
		return nil, fmt.Errorf("scan applications: %w", err)
	}
	out := make([]chat.Application, 0, len(records))
	for _, r := range records {
		out = append(out, chat.Application(r))
	}
	return out, nil
}

func applicationsQuery(filter chat.ApplicationFilter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		switch filter.ViewerRole {
		case chat.RoleCreator:
			where = append(where, fmt.Sprintf("creator_id::text = $%d", len(args)+1))
		case chat.RoleCompany:
			where = append(where, fmt.Sprintf("company_id::text = $%d", len(args)+1))
		default:
			return "", nil, chat.ErrInvalidRole
		}
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("lower(status) = lower($%d)", len(args)+1))
		args = append(args, filter.Status)
	}
	sql := `SELECT id::text AS id, creator_id::text AS creator_id, company_id::text AS company_id,
	job_id::text AS job_id, status FROM applications`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	return sql, args, nil
}

func (s *Store) ListMessages(ctx context.Context, filter chat.MessageFilter) ([]chat.Message, error) {
	if len(filter.ApplicationIDs) == 0 {
		return []chat.Message{}, nil
	}
	rows, err := s.Pool.Query(ctx, messagesQuery(filter.Order), filter.ApplicationIDs)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[messageRecord])
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	out := make([]chat.Message, 0, len(records))
	for _, r := range records {
		out = append(out, r.message())
	}
	return out, nil
}

func messagesQuery(order chat.Order) string {
	dir := "ASC"
	if order == chat.OrderDesc {
		dir = "DESC"
	}
	return `SELECT ` + messageColumns + ` FROM messages
	WHERE application_id = ANY($1::text[]::uuid[])
	ORDER BY created_at ` + dir
}

func (s *Store) CreateMessage(ctx context.Context, msg chat.NewMessage) (chat.Message, error) {
	rows, err := s.Pool.Query(ctx, `INSERT INTO messages (application_id, sender_id, sender_role, content)
	VALUES ($1::text::uuid, $2::text::uuid, $3, $4)
	RETURNING `+messageColumns, msg.ApplicationID, msg.SenderID, string(msg.SenderRole), msg.Content)
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	record, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[messageRecord])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.Message{}, fmt.Errorf("insert message: no row returned")
		}
		return chat.Message{}, fmt.Errorf("scan inserted message: %w", err)
	}
	return record.message(), nil
}

func (s *Store) MarkRead(ctx context.Context, params chat.MarkReadParams) error {
	readAt := params.ReadAt
	if readAt.IsZero() {
		readAt = time.Now().UTC()
	}
	var before *time.Time
	if !params.Before.IsZero() {
		b := params.Before
		before = &b
	}
	_, err := s.Pool.Exec(ctx, `UPDATE messages SET read_at = $1
	WHERE application_id = $2::text::uuid AND sender_role = $3 AND read_at IS NULL
	AND ($4::timestamptz IS NULL OR created_at <= $4)`,
		readAt, params.ApplicationID, string(params.SenderRole), before)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *Store) ListProfiles(ctx context.Context, kind profile.Kind, userIDs []string) ([]profile.Profile, error) {
	if len(userIDs) == 0 {
		return []profile.Profile{}, nil
	}
	table := "creator_profiles"
	if kind == profile.KindCompany {
		table = "company_profiles"
	}
	rows, err := s.Pool.Query(ctx, `SELECT user_id::text AS user_id, full_name, username, bio, avatar_url
	FROM `+table+` WHERE user_id = ANY($1::text[]::uuid[])`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[profileRecord])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	out := make([]profile.Profile, 0, len(records))
	for _, r := range records {
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

func (r messageRecord) message() chat.Message {
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
