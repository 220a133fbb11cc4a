package middleware

import (
	"context"
	"log/slog"

	"octopus/internal/app/commands"
	"octopus/internal/app/outbox"
	"octopus/internal/app/queries"
)

// CommandMiddleware wraps a command bus with cross-cutting behavior.
type CommandMiddleware func(next commands.Bus) commands.Bus

// QueryMiddleware wraps a query bus with cross-cutting behavior.
type QueryMiddleware func(next queries.Bus) queries.Bus

// ChainCommands wraps base with mws, outermost first.
func ChainCommands(base commands.Bus, mws ...CommandMiddleware) commands.Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// ChainQueries wraps base with mws, outermost first.
func ChainQueries(base queries.Bus, mws ...QueryMiddleware) queries.Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// PipelineConfig lists what the chat buses are wrapped with. Idempotency and
// Outbox are optional.
type PipelineConfig struct {
	Authorizer  Authorizer
	Validator   Validator
	Idempotency IdempotencyStore
	Outbox      outbox.Outbox
	Logger      *slog.Logger
}

// CommandPipeline returns command middleware outermost first. A retried send
// is answered from the idempotency store only after authorization and
// validation passed.
func CommandPipeline(cfg PipelineConfig) []CommandMiddleware {
	mws := []CommandMiddleware{Authorization(cfg.Authorizer), Validation(cfg.Validator)}
	if cfg.Idempotency != nil {
		mws = append(mws, Idempotency(cfg.Idempotency, nil))
	}
	if cfg.Outbox != nil {
		mws = append(mws, OutboxFlush(cfg.Outbox, cfg.Logger))
	}
	return mws
}

// QueryPipeline orders query middleware; reads never stage events.
func QueryPipeline(cfg PipelineConfig) []QueryMiddleware {
	return []QueryMiddleware{QueryAuthorization(cfg.Authorizer), QueryValidation(cfg.Validator)}
}

type commandFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f commandFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	return f(ctx, cmd)
}

func wrapCommand(next commands.Bus) commandFunc {
	return func(ctx context.Context, cmd commands.Command) (any, error) {
		return next.Dispatch(ctx, cmd)
	}
}

type queryFunc func(ctx context.Context, query queries.Query) (any, error)

func (f queryFunc) Ask(ctx context.Context, q queries.Query) (any, error) {
	return f(ctx, q)
}

func wrapQuery(next queries.Bus) queryFunc {
	return func(ctx context.Context, q queries.Query) (any, error) {
		return next.Ask(ctx, q)
	}
}
