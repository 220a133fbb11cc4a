package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"octopus/internal/app/dto"
	"octopus/internal/app/session"
	"octopus/internal/app/thread"
	"octopus/internal/app/wiring"
	"octopus/internal/domain/chat"
	grpcapi "octopus/internal/infra/grpc"
	"octopus/internal/infra/postgrest"
)

// chatBackend is the transport the commands talk to: a remote octopus server
// or the Supabase project reached directly.
type chatBackend struct {
	api     grpcapi.ChatServer
	viewer  session.Principal
	threads *thread.Loader
	close   func() error
}

func openBackend(ctx context.Context) (context.Context, *chatBackend, error) {
	viewer, err := sessions.Init()
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return ctx, nil, fmt.Errorf("not signed in, run 'octopus-chat login' first")
		}
		return ctx, nil, err
	}
	if cfg.APIAddr != "" {
		client, err := grpcapi.NewClient(cfg.APIAddr, viewer.Token, cfg.StoreTimeout)
		if err != nil {
			return ctx, nil, err
		}
		logger.Debug("using remote chat service", "addr", cfg.APIAddr)
		return ctx, &chatBackend{api: client, viewer: viewer, close: client.Close}, nil
	}

	store := postgrest.NewStore(postgrest.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.StoreTimeout).WithToken(viewer.Token))
	buses := wiring.Build(wiring.Deps{
		Applications: store,
		Messages:     store,
		Profiles:     store,
		Logger:       logger,
	})
	logger.Debug("using direct store", "url", cfg.SupabaseURL)
	b := &chatBackend{
		api:     &grpcapi.Server{Commands: buses.Commands, Queries: buses.Queries, Logger: logger},
		viewer:  viewer,
		threads: buses.Threads,
		close: func() error {
			buses.Threads.Wait()
			return nil
		},
	}
	return session.WithPrincipal(ctx, viewer), b, nil
}

// openThread returns the driver for one conversation. Direct mode keeps a
// local thread session so sends show up immediately and survive reloads.
func (b *chatBackend) openThread(ctx context.Context, counterpartyID string, loc *time.Location) (threadDriver, dto.Thread, error) {
	view, err := b.api.LoadThread(ctx, &grpcapi.LoadThreadRequest{CounterpartyID: counterpartyID, TimeZone: tzFlag})
	if err != nil {
		return nil, dto.Thread{}, err
	}
	if b.threads == nil {
		remote := &remoteThread{api: b.api, counterpartyID: counterpartyID}
		remote.canSend.Store(view.CanSend)
		return remote, *view, nil
	}
	s, err := thread.NewSession(thread.SessionConfig{
		Viewer:         b.viewer,
		CounterpartyID: counterpartyID,
		ApplicationIDs: view.ApplicationIDs,
		Loader:         b.threads,
		Logger:         logger,
	})
	if err != nil {
		return nil, dto.Thread{}, err
	}
	// The query above already marked incoming messages read; seed from it.
	s.Restore(snapshotOf(*view))
	local := &localThread{session: s, applicationIDs: view.ApplicationIDs, loc: loc}
	return local, local.view(), nil
}

func snapshotOf(view dto.Thread) thread.Snapshot {
	return thread.Snapshot{
		ApplicationIDs: append([]string(nil), view.ApplicationIDs...),
		Messages:       dto.ToMessages(view.Messages),
		State:          chat.ParseThreadState(view.State),
	}
}

type threadDriver interface {
	Refresh(ctx context.Context) (dto.Thread, error)
	Send(ctx context.Context, text string) (dto.ChatMessage, error)
}

type localThread struct {
	session        *thread.Session
	applicationIDs []string
	loc            *time.Location
}

func (t *localThread) Refresh(ctx context.Context) (dto.Thread, error) {
	if err := t.session.Load(ctx); err != nil {
		return dto.Thread{}, err
	}
	return t.view(), nil
}

func (t *localThread) Send(ctx context.Context, text string) (dto.ChatMessage, error) {
	msg, err := t.session.Send(ctx, text)
	if err != nil {
		return dto.ChatMessage{}, err
	}
	return dto.FromMessage(msg), nil
}

func (t *localThread) view() dto.Thread {
	s := t.session
	return dto.NewThread(s.CounterpartyID(), t.applicationIDs, s.Messages(), s.State(), s.CanSend(), s.Buckets(t.loc))
}

// remoteThread applies the first-contact rule from the last loaded view; the
// server accepts any send.
type remoteThread struct {
	api            grpcapi.ChatServer
	counterpartyID string
	canSend        atomic.Bool
}

func (t *remoteThread) Refresh(ctx context.Context) (dto.Thread, error) {
	view, err := t.api.LoadThread(ctx, &grpcapi.LoadThreadRequest{CounterpartyID: t.counterpartyID, TimeZone: tzFlag})
	if err != nil {
		return dto.Thread{}, err
	}
	t.canSend.Store(view.CanSend)
	return *view, nil
}

func (t *remoteThread) Send(ctx context.Context, text string) (dto.ChatMessage, error) {
	if !t.canSend.Load() {
		return dto.ChatMessage{}, chat.ErrAwaitingFirstContact
	}
	msg, err := t.api.SendMessage(ctx, &grpcapi.SendMessageRequest{CounterpartyID: t.counterpartyID, Content: text})
	if err != nil {
		return dto.ChatMessage{}, err
	}
	return *msg, nil
}

func location() (*time.Location, error) {
	if tzFlag == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tzFlag)
}
