package middleware

import (
	"context"
	"fmt"

	"octopus/internal/app/commands"
	"octopus/internal/app/queries"
	"octopus/internal/app/session"
)

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// DeniedError records which request was refused and on whose behalf. It
// unwraps to the authorizer's error.
type DeniedError struct {
	Key    string
	UserID string
	Role   string
	Err    error
}

func (e *DeniedError) Error() string {
	if e.UserID == "" {
		return fmt.Sprintf("%s denied: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("%s denied for %s %s: %v", e.Key, e.Role, e.UserID, e.Err)
}

func (e *DeniedError) Unwrap() error { return e.Err }

func denied(key string, message any, err error) error {
	out := &DeniedError{Key: key, Err: err}
	if scoped, ok := message.(session.Scoped); ok {
		viewer := scoped.Principal()
		out.UserID = viewer.UserID
		out.Role = string(viewer.Role)
	}
	return out
}

// Authorization runs a before the command reaches validation or a handler.
func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, denied(cmd.Key(), cmd, err)
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, denied(q.Key(), q, err)
			}
			return nextFn(ctx, q)
		})
	}
}
