package session

import (
	"context"
	"errors"
	"strings"

	"octopus/internal/domain/chat"
)

var (
	ErrNoSession        = errors.New("session: no active session")
	ErrInvalidPrincipal = errors.New("session: invalid principal")
	ErrForbidden        = errors.New("session: principal does not match request")
)

// Principal is the signed-in marketplace user. It is passed explicitly into
// every query and command; nothing in the app layer reads it from globals.
type Principal struct {
	UserID string    `json:"user_id" validate:"required"`
	Role   chat.Role `json:"role" validate:"required,oneof=creator company"`
	Token  string    `json:"token,omitempty"`
}

func (p Principal) Validate() error {
	if strings.TrimSpace(p.UserID) == "" || !p.Role.Valid() {
		return ErrInvalidPrincipal
	}
	return nil
}

type principalKey struct{}

// WithPrincipal attaches p to ctx for transports that authenticate per call.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Scoped is implemented by queries and commands issued on behalf of a viewer.
type Scoped interface {
	Principal() Principal
}

// Authorizer rejects scoped messages without a valid viewer, and messages
// whose viewer differs from the caller authenticated on the context.
type Authorizer struct{}

func (Authorizer) Authorize(ctx context.Context, message any) error {
	scoped, ok := message.(Scoped)
	if !ok {
		return nil
	}
	viewer := scoped.Principal()
	if err := viewer.Validate(); err != nil {
		return err
	}
	if caller, ok := FromContext(ctx); ok && (caller.UserID != viewer.UserID || caller.Role != viewer.Role) {
		return ErrForbidden
	}
	return nil
}
