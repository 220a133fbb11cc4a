package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
)

// Fixtures is the on-disk seed format of the memory store.
type Fixtures struct {
	Applications []applicationFixture `json:"applications"`
	Messages     []messageFixture     `json:"messages"`
	Creators     []profileFixture     `json:"creator_profiles"`
	Companies    []profileFixture     `json:"company_profiles"`
}

type applicationFixture struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`
	CompanyID string `json:"company_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

type messageFixture struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`
	SenderID      string `json:"sender_id"`
	SenderRole    string `json:"sender_role"`
	Content       string `json:"content"`
	CreatedAt     string `json:"created_at"`
	ReadAt        string `json:"read_at"`
}

type profileFixture struct {
	UserID    string `json:"user_id"`
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// LoadFixtures reads path into the store. A missing file is not an error.
// Invalid rows are logged and skipped.
func (s *Store) LoadFixtures(path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("chat fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		logger.Warn("chat fixtures file empty", "path", path)
		return nil
	}
	var fx Fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	s.Seed(fx, logger)
	return nil
}

// Seed imports already decoded fixtures.
func (s *Store) Seed(fx Fixtures, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, a := range fx.Applications {
		if strings.TrimSpace(a.ID) == "" {
			logger.Error("fixture application without id skipped")
			continue
		}
		s.PutApplication(chat.Application{
			ID:        a.ID,
			CreatorID: a.CreatorID,
			CompanyID: a.CompanyID,
			JobID:     a.JobID,
			Status:    a.Status,
		})
	}
	for _, m := range fx.Messages {
		role, err := chat.ParseRole(m.SenderRole)
		if err != nil {
			logger.Error("fixture message invalid", "message_id", m.ID, "error", err)
			continue
		}
		created, err := time.Parse(time.RFC3339, m.CreatedAt)
		if err != nil {
			logger.Error("fixture message timestamp invalid", "message_id", m.ID, "error", err)
			continue
		}
		msg := chat.Message{
			ID:            m.ID,
			ApplicationID: m.ApplicationID,
			SenderID:      m.SenderID,
			SenderRole:    role,
			Content:       m.Content,
			CreatedAt:     created.UTC(),
		}
		if strings.TrimSpace(m.ReadAt) != "" {
			if readAt, err := time.Parse(time.RFC3339, m.ReadAt); err == nil {
				readAt = readAt.UTC()
				msg.ReadAt = &readAt
			}
		}
		s.PutMessage(msg)
	}
	for _, p := range fx.Creators {
		s.PutProfile(profile.KindCreator, p.profile())
	}
	for _, p := range fx.Companies {
		s.PutProfile(profile.KindCompany, p.profile())
	}
	logger.Info("chat fixtures imported",
		"applications", len(fx.Applications),
		"messages", len(fx.Messages),
		"profiles", len(fx.Creators)+len(fx.Companies))
}

func (p profileFixture) profile() profile.Profile {
	return profile.Profile{
		UserID:    p.UserID,
		FullName:  p.FullName,
		Username:  p.Username,
		BioRaw:    p.Bio,
		AvatarURL: p.AvatarURL,
	}
}

// DefaultFixturesPath returns the first existing candidate seed file.
func DefaultFixturesPath() string {
	candidates := []string{
		filepath.Join("data", "chat.json"),
		filepath.Join("..", "data", "chat.json"),
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return candidates[0]
}
