package scylla

import (
	"context"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"

	"octopus/internal/domain/chat"
)

func TestReadTarget(t *testing.T) {
	before := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	params := chat.MarkReadParams{ApplicationID: "a1", SenderRole: chat.RoleCompany, Before: before}

	require.True(t, readTarget(params, "company", before, time.Time{}))
	require.True(t, readTarget(params, "company", before.Add(-time.Hour), time.Time{}))
	require.False(t, readTarget(params, "company", before.Add(time.Second), time.Time{}))
	require.False(t, readTarget(params, "creator", before, time.Time{}))
	require.False(t, readTarget(params, "company", before, before))

	params.Before = time.Time{}
	require.True(t, readTarget(params, "company", before.Add(time.Hour), time.Time{}))
}

func TestToMessage(t *testing.T) {
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	id := gocql.UUIDFromTime(at)

	msg := toMessage("a1", id, "u1", "creator", "hi", at, time.Time{})
	require.Equal(t, id.String(), msg.ID)
	require.Equal(t, chat.RoleCreator, msg.SenderRole)
	require.Equal(t, time.UTC, msg.CreatedAt.Location())
	require.Nil(t, msg.ReadAt)

	msg = toMessage("a1", id, "u1", "creator", "hi", at, at.Add(time.Minute))
	require.NotNil(t, msg.ReadAt)
}

func TestStoreWithoutSession(t *testing.T) {
	s := NewStore(nil, nil)
	_, err := s.ListMessages(context.Background(), chat.MessageFilter{ApplicationIDs: []string{"a1"}})
	require.ErrorIs(t, err, errNoSession)
	require.ErrorIs(t, s.MarkRead(context.Background(), chat.MarkReadParams{}), errNoSession)
	require.ErrorIs(t, s.Ping(context.Background()), errNoSession)
}
