package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"golang.org/x/sync/singleflight"

	"octopus/internal/app/commands"
)

// IdempotentCommand is implemented by commands a client may safely retry,
// such as a message send repeated after a dropped response.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	// ResultPrototype returns a pointer of the handler's result type.
	ResultPrototype() any
}

type IdempotencyRecord struct {
	Key        string
	Payload    []byte
	Error      string
	OccurredAt time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var (
	errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")
	// ErrReplayedFailure wraps the stored error text of a failed first attempt.
	ErrReplayedFailure = errors.New("middleware: replayed failure")
)

// Idempotency replays the stored outcome of a command whose key was already
// processed. Keys are scoped by command key so two command types never collide.
// Concurrent attempts with one key share a single execution. Failures caused by
// cancellation are not remembered so the client can retry them.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	return func(next commands.Bus) commands.Bus {
		guard := &idempotencyGuard{store: store, codec: codec, next: wrapCommand(next)}
		return commandFunc(guard.dispatch)
	}
}

type idempotencyGuard struct {
	store    IdempotencyStore
	codec    ResultCodec
	next     func(context.Context, commands.Command) (any, error)
	inflight singleflight.Group
}

func (g *idempotencyGuard) dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	idCmd, ok := cmd.(IdempotentCommand)
	if !ok || idCmd.IdempotencyKey() == "" {
		return g.next(ctx, cmd)
	}
	key := cmd.Key() + ":" + idCmd.IdempotencyKey()
	result, err, _ := g.inflight.Do(key, func() (any, error) {
		rec, found, err := g.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			return g.replay(rec, idCmd)
		}
		return g.execute(ctx, key, cmd)
	})
	return result, err
}

func (g *idempotencyGuard) replay(rec IdempotencyRecord, cmd IdempotentCommand) (any, error) {
	if rec.Error != "" {
		return nil, errors.Join(ErrReplayedFailure, errors.New(rec.Error))
	}
	proto := cmd.ResultPrototype()
	if proto == nil {
		return nil, errMissingPrototype
	}
	if len(rec.Payload) > 0 {
		if err := g.codec.Decode(rec.Payload, proto); err != nil {
			return nil, err
		}
	}
	return normalizePrototype(proto), nil
}

func (g *idempotencyGuard) execute(ctx context.Context, key string, cmd commands.Command) (any, error) {
	result, err := g.next(ctx, cmd)
	record := IdempotencyRecord{Key: key, OccurredAt: time.Now().UTC()}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		record.Error = err.Error()
		if saveErr := g.store.Save(ctx, record); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return nil, err
	}
	if result != nil {
		payload, err := g.codec.Encode(result)
		if err != nil {
			return nil, err
		}
		record.Payload = payload
	}
	if err := g.store.Save(ctx, record); err != nil {
		return nil, err
	}
	return result, nil
}

func normalizePrototype(proto any) any {
	rv := reflect.ValueOf(proto)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Interface()
	}
	return proto
}
