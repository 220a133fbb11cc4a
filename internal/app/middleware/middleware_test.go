package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"octopus/internal/app/commands"
	"octopus/internal/app/outbox"
	"octopus/internal/app/queries"
	"octopus/internal/app/session"
	"octopus/internal/domain/chat"
)

type noteCommand struct {
	Owner string `validate:"required"`
	Text  string `validate:"required,max=5"`
	Idem  string
}

func (noteCommand) Key() string              { return "test.note" }
func (c noteCommand) IdempotencyKey() string { return c.Idem }
func (noteCommand) ResultPrototype() any     { return &noteResult{} }

type noteResult struct {
	Seq int `json:"seq"`
}

type lookupQuery struct {
	ID string `validate:"required"`
}

func (lookupQuery) Key() string { return "test.lookup" }

type memIdempotency struct {
	mu    sync.Mutex
	items map[string]IdempotencyRecord
}

func (m *memIdempotency) Get(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.items[key]
	return rec, ok, nil
}

func (m *memIdempotency) Save(_ context.Context, rec IdempotencyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]IdempotencyRecord{}
	}
	m.items[rec.Key] = rec
	return nil
}

type countingOutbox struct {
	flushes  int
	flushErr error
}

func (o *countingOutbox) Add(context.Context, outbox.EventRecord) error { return nil }

func (o *countingOutbox) Flush(context.Context) error {
	o.flushes++
	return o.flushErr
}

type denyOwner string

func (d denyOwner) Authorize(_ context.Context, message any) error {
	if n, ok := message.(noteCommand); ok && n.Owner == string(d) {
		return errors.New("denied")
	}
	return nil
}

func noteBus(calls *int, fail error) *commands.InMemoryBus {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[noteCommand, *noteResult](bus, noteCommand{}.Key(), commands.HandlerFunc[noteCommand, *noteResult](
		func(context.Context, noteCommand) (*noteResult, error) {
			*calls++
			if fail != nil {
				return nil, fail
			}
			return &noteResult{Seq: *calls}, nil
		}))
	return bus
}

func TestChainCommands_OrderAndValidation(t *testing.T) {
	var calls int
	box := &countingOutbox{}
	bus := ChainCommands(noteBus(&calls, nil),
		Authorization(denyOwner("mallory")),
		Validation(NewStructValidator()),
		OutboxFlush(box, nil),
	)
	ctx := context.Background()

	_, err := commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{Owner: "mallory", Text: "x"})
	var deniedErr *DeniedError
	require.ErrorAs(t, err, &deniedErr)
	require.Equal(t, "test.note", deniedErr.Key)
	require.EqualError(t, deniedErr.Err, "denied")

	_, err = commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{Owner: "ann", Text: "too long"})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "Text")

	res, err := commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{Owner: "ann", Text: "ok"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Seq)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, box.flushes)
}

func TestOutboxFlush_SkipsOnFailureAndIgnoresFlushError(t *testing.T) {
	var calls int
	box := &countingOutbox{}
	failing := ChainCommands(noteBus(&calls, errors.New("boom")), OutboxFlush(box, nil))
	_, err := failing.Dispatch(context.Background(), noteCommand{Owner: "a", Text: "b"})
	require.Error(t, err)
	require.Zero(t, box.flushes)

	box.flushErr = errors.New("broker down")
	ok := ChainCommands(noteBus(&calls, nil), OutboxFlush(box, nil))
	_, err = ok.Dispatch(context.Background(), noteCommand{Owner: "a", Text: "b"})
	require.NoError(t, err)
	require.Equal(t, 1, box.flushes)
}

func TestIdempotency_ReplaysResult(t *testing.T) {
	var calls int
	store := &memIdempotency{}
	bus := ChainCommands(noteBus(&calls, nil), Idempotency(store, nil))
	ctx := context.Background()

	first, err := commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{Idem: "k1"})
	require.NoError(t, err)
	second, err := commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{Idem: "k1"})
	require.NoError(t, err)
	require.Equal(t, first.Seq, second.Seq)
	require.Equal(t, 1, calls)

	_, err = commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{})
	require.NoError(t, err)
	_, err = commands.Dispatch[noteCommand, *noteResult](ctx, bus, noteCommand{})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Contains(t, store.items, "test.note:k1")
}

func TestIdempotency_ReplaysFailure(t *testing.T) {
	var calls int
	bus := ChainCommands(noteBus(&calls, errors.New("store offline")), Idempotency(&memIdempotency{}, nil))

	_, err := bus.Dispatch(context.Background(), noteCommand{Idem: "k2"})
	require.EqualError(t, err, "store offline")
	_, err = bus.Dispatch(context.Background(), noteCommand{Idem: "k2"})
	require.ErrorIs(t, err, ErrReplayedFailure)
	require.ErrorContains(t, err, "store offline")
	require.Equal(t, 1, calls)
}

func TestIdempotency_DoesNotRememberCancellation(t *testing.T) {
	var calls int
	store := &memIdempotency{}
	bus := ChainCommands(noteBus(&calls, context.DeadlineExceeded), Idempotency(store, nil))

	_, err := bus.Dispatch(context.Background(), noteCommand{Idem: "k3"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = bus.Dispatch(context.Background(), noteCommand{Idem: "k3"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrReplayedFailure)
	require.Equal(t, 2, calls)
	require.Empty(t, store.items)
}

func TestIdempotency_ConcurrentRetriesRunOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[noteCommand, *noteResult](bus, noteCommand{}.Key(), commands.HandlerFunc[noteCommand, *noteResult](
		func(context.Context, noteCommand) (*noteResult, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				close(entered)
				<-release
			}
			return &noteResult{Seq: n}, nil
		}))
	chained := ChainCommands(bus, Idempotency(&memIdempotency{}, nil))
	ctx := context.Background()

	results := make(chan *noteResult, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := commands.Dispatch[noteCommand, *noteResult](ctx, chained, noteCommand{Idem: "same"})
		require.NoError(t, err)
		results <- res
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := commands.Dispatch[noteCommand, *noteResult](ctx, chained, noteCommand{Idem: "same"})
		require.NoError(t, err)
		results <- res
	}()
	close(release)
	wg.Wait()
	close(results)

	for res := range results {
		require.Equal(t, 1, res.Seq)
	}
	require.Equal(t, 1, calls)
}

type viewerNote struct {
	Viewer session.Principal
	Text   string `validate:"required"`
}

func (viewerNote) Key() string                    { return "test.viewer_note" }
func (n viewerNote) Principal() session.Principal { return n.Viewer }

func TestAuthorization_DeniedErrorNamesViewer(t *testing.T) {
	bus := commands.NewInMemoryBus()
	commands.RegisterHandler[viewerNote, string](bus, viewerNote{}.Key(), commands.HandlerFunc[viewerNote, string](
		func(context.Context, viewerNote) (string, error) { return "ok", nil }))
	chained := ChainCommands(bus, Authorization(session.Authorizer{}))
	caller := session.Principal{UserID: "creator-1", Role: chat.RoleCreator}
	ctx := session.WithPrincipal(context.Background(), caller)

	_, err := chained.Dispatch(ctx, viewerNote{Viewer: session.Principal{UserID: "company-1", Role: chat.RoleCompany}, Text: "hi"})

	require.ErrorIs(t, err, session.ErrForbidden)
	var deniedErr *DeniedError
	require.ErrorAs(t, err, &deniedErr)
	require.Equal(t, "company-1", deniedErr.UserID)
	require.Equal(t, "company", deniedErr.Role)
	require.Contains(t, err.Error(), "test.viewer_note denied for company company-1")

	out, err := commands.Dispatch[viewerNote, string](ctx, chained, viewerNote{Viewer: caller, Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
}

func TestCommandPipeline_Order(t *testing.T) {
	var calls int
	box := &countingOutbox{}
	store := &memIdempotency{}
	bus := ChainCommands(noteBus(&calls, nil), CommandPipeline(PipelineConfig{
		Authorizer:  denyOwner("mallory"),
		Validator:   NewStructValidator(),
		Idempotency: store,
		Outbox:      box,
	})...)
	ctx := context.Background()

	_, err := bus.Dispatch(ctx, noteCommand{Owner: "mallory", Text: "x", Idem: "k"})
	require.Error(t, err)
	_, err = bus.Dispatch(ctx, noteCommand{Owner: "ann", Text: "too long", Idem: "k"})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, store.items)

	_, err = bus.Dispatch(ctx, noteCommand{Owner: "ann", Text: "ok", Idem: "k"})
	require.NoError(t, err)
	_, err = bus.Dispatch(ctx, noteCommand{Owner: "ann", Text: "ok", Idem: "k"})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, box.flushes)

	require.Len(t, QueryPipeline(PipelineConfig{Authorizer: denyOwner(""), Validator: NewStructValidator()}), 2)
}

func TestChainQueries_Validation(t *testing.T) {
	bus := queries.NewInMemoryBus()
	queries.RegisterHandler[lookupQuery, string](bus, lookupQuery{}.Key(), queries.HandlerFunc[lookupQuery, string](
		func(_ context.Context, q lookupQuery) (string, error) { return "found:" + q.ID, nil }))
	chained := ChainQueries(bus, QueryAuthorization(denyOwner("")), QueryValidation(NewStructValidator()))

	_, err := queries.Ask[lookupQuery, string](context.Background(), chained, lookupQuery{})
	require.ErrorIs(t, err, ErrValidation)

	out, err := queries.Ask[lookupQuery, string](context.Background(), chained, lookupQuery{ID: "7"})
	require.NoError(t, err)
	require.Equal(t, "found:7", out)
}

func TestStructValidator_IgnoresNonStructs(t *testing.T) {
	require.NoError(t, NewStructValidator().Validate(context.Background(), "plain"))
}
