package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "octopus/internal/app/outbox"
)

// Publisher ships one record to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Outbox stages records in memory. Flush hands them to Publisher when one is
// set and keeps them in Published otherwise. Records that fail to publish stay
// pending for the next flush.
type Outbox struct {
	Publisher   Publisher
	TopicPrefix string
	Logger      *slog.Logger

	mu        sync.Mutex
	pending   []appoutbox.EventRecord
	published []appoutbox.EventRecord
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, record)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var failed []appoutbox.EventRecord
	var firstErr error
	for _, rec := range o.pending {
		if o.Publisher != nil {
			topic := appoutbox.TopicFor(o.TopicPrefix, rec.Name)
			if err := o.Publisher.Publish(ctx, topic, rec.Aggregate, rec.Payload, rec.Headers); err != nil {
				failed = append(failed, rec)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
		}
		if o.Logger != nil {
			o.Logger.Debug("event flushed", "event", rec.Name, "aggregate", rec.Aggregate, "id", rec.ID)
		}
		o.published = append(o.published, rec)
	}
	o.pending = failed
	return firstErr
}

// Published returns a copy of every flushed record, oldest first.
func (o *Outbox) Published() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.published...)
}

// Pending returns a copy of records awaiting a flush.
func (o *Outbox) Pending() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.pending...)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
