package thread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"octopus/internal/domain/chat"
)

func TestLoader_LoadsAscendingAndMarksRead(t *testing.T) {
	repo := &fakeMessages{stored: []chat.Message{
		{ID: "m3", ApplicationID: "a2", SenderRole: chat.RoleCompany, CreatedAt: time.Unix(300, 0)},
		{ID: "m1", ApplicationID: "a1", SenderRole: chat.RoleCompany, CreatedAt: time.Unix(100, 0)},
		{ID: "m2", ApplicationID: "a1", SenderRole: chat.RoleCreator, CreatedAt: time.Unix(200, 0)},
		{ID: "m4", ApplicationID: "a3", SenderRole: chat.RoleCreator, CreatedAt: time.Unix(400, 0)},
	}}
	loader := &Loader{Messages: repo, Now: func() time.Time { return time.Unix(999, 0) }}

	snap, err := loader.Load(context.Background(), creator, []string{"a1", "a2", "a3"})
	require.NoError(t, err)
	loader.Wait()

	ids := []string{}
	for _, m := range snap.Messages {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids)
	require.Equal(t, chat.ThreadOpen, snap.State)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.marked, 2)
	byApp := map[string]chat.MarkReadParams{}
	for _, p := range repo.marked {
		byApp[p.ApplicationID] = p
	}
	require.Equal(t, chat.RoleCompany, byApp["a1"].SenderRole)
	require.Equal(t, time.Unix(100, 0), byApp["a1"].Before)
	require.Equal(t, time.Unix(300, 0), byApp["a2"].Before)
	require.Equal(t, time.Unix(999, 0).UTC(), byApp["a2"].ReadAt)
	for _, m := range repo.stored {
		if m.SenderRole == chat.RoleCompany {
			require.NotNil(t, m.ReadAt, m.ID)
		}
	}
}

func TestLoader_MarkReadSurvivesCallerCancellation(t *testing.T) {
	repo := &fakeMessages{stored: []chat.Message{
		{ID: "m1", ApplicationID: "a1", SenderRole: chat.RoleCreator, CreatedAt: time.Unix(100, 0)},
	}}
	loader := &Loader{Messages: repo}
	ctx, cancel := context.WithCancel(context.Background())

	_, err := loader.Load(ctx, company, []string{"a1"})
	require.NoError(t, err)
	cancel()
	loader.Wait()

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.marked, 1)
	require.NotNil(t, repo.stored[0].ReadAt)
}

func TestLoader_NoApplications(t *testing.T) {
	repo := &fakeMessages{}
	loader := &Loader{Messages: repo}

	snap, err := loader.Load(context.Background(), creator, nil)

	require.NoError(t, err)
	require.Empty(t, snap.Messages)
	require.Equal(t, chat.ThreadAwaitingFirstContact, snap.State)
	require.Zero(t, repo.listCalls)
}

func TestLoader_NotConfigured(t *testing.T) {
	_, err := (&Loader{}).Load(context.Background(), creator, []string{"a1"})
	require.ErrorIs(t, err, ErrLoaderNotConfigured)
}
