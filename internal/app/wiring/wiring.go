// Package wiring registers the chat handlers on the command and query buses
// and wraps them with the middleware pipeline shared by every transport.
package wiring

import (
	"log/slog"
	"time"

	"octopus/internal/app/commands"
	"octopus/internal/app/handlers/inbox"
	"octopus/internal/app/handlers/messages"
	"octopus/internal/app/middleware"
	"octopus/internal/app/outbox"
	"octopus/internal/app/queries"
	"octopus/internal/app/session"
	"octopus/internal/app/thread"
	"octopus/internal/domain/chat"
	"octopus/internal/domain/profile"
)

type Deps struct {
	Applications    chat.ApplicationRepository
	Messages        chat.MessageRepository
	Profiles        profile.Repository
	Outbox          outbox.Outbox
	Encoder         outbox.EventEncoder
	Idempotency     middleware.IdempotencyStore
	Logger          *slog.Logger
	MarkReadTimeout time.Duration
	Now             func() time.Time
}

type Buses struct {
	Commands commands.Bus
	Queries  queries.Bus
	Threads  *thread.Loader
}

func Build(d Deps) Buses {
	threads := &thread.Loader{
		Messages:        d.Messages,
		Logger:          d.Logger,
		MarkReadTimeout: d.MarkReadTimeout,
		Now:             d.Now,
	}

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, inbox.ListConversationsKey, &inbox.ListConversationsHandler{
		Applications: d.Applications,
		Messages:     d.Messages,
		Profiles:     d.Profiles,
		Threads:      threads,
		Logger:       d.Logger,
	})
	queries.RegisterHandler(queryBus, inbox.UnreadCountKey, &inbox.UnreadCountHandler{
		Applications: d.Applications,
		Messages:     d.Messages,
	})
	queries.RegisterHandler(queryBus, messages.LoadThreadKey, &messages.LoadThreadHandler{
		Applications: d.Applications,
		Threads:      threads,
		Now:          d.Now,
	})

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, messages.SendMessageKey, &messages.SendMessageHandler{
		Applications: d.Applications,
		Messages:     d.Messages,
		Outbox:       d.Outbox,
		Encoder:      d.Encoder,
		Logger:       d.Logger,
	})
	commands.RegisterHandler(commandBus, messages.MarkReadKey, &messages.MarkReadHandler{
		Applications: d.Applications,
		Messages:     d.Messages,
		Outbox:       d.Outbox,
		Encoder:      d.Encoder,
		Now:          d.Now,
	})

	pipeline := middleware.PipelineConfig{
		Authorizer:  session.Authorizer{},
		Validator:   middleware.NewStructValidator(),
		Idempotency: d.Idempotency,
		Outbox:      d.Outbox,
		Logger:      d.Logger,
	}
	return Buses{
		Commands: middleware.ChainCommands(commandBus, middleware.CommandPipeline(pipeline)...),
		Queries:  middleware.ChainQueries(queryBus, middleware.QueryPipeline(pipeline)...),
		Threads:  threads,
	}
}
