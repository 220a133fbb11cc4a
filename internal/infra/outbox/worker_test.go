package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu     sync.Mutex
	due    []*EventDocument
	sent   []string
	failed map[string]time.Time
}

func (q *fakeQueue) Claim(ctx context.Context, workerID string) (*EventDocument, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.due) == 0 {
		return nil, nil
	}
	doc := q.due[0]
	q.due = q.due[1:]
	doc.ClaimedBy = workerID
	return doc, nil
}

func (q *fakeQueue) MarkSent(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failed == nil {
		q.failed = map[string]time.Time{}
	}
	q.failed[id] = next
	return nil
}

type published struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type fakeProducer struct {
	mu   sync.Mutex
	out  []published
	fail map[string]bool
}

func (p *fakeProducer) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[key] {
		return errors.New("broker unavailable")
	}
	p.out = append(p.out, published{topic: topic, key: key, payload: payload, headers: headers})
	return nil
}

func TestDrainPublishesCloudEvents(t *testing.T) {
	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	queue := &fakeQueue{due: []*EventDocument{
		{ID: "e1", Name: "chat.message_sent", Aggregate: "app-1", Payload: []byte(`{"message_id":"m1"}`), OccurredAt: at, Headers: map[string]string{"x-request-id": "r1"}},
		{ID: "e2", Name: "chat.messages_read", Aggregate: "app-2", Payload: []byte(`{}`), OccurredAt: at},
	}}
	producer := &fakeProducer{}
	w := &Worker{Store: queue, Producer: producer, TopicPrefix: "dev.", ID: "w1"}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"e1", "e2"}, queue.sent)
	require.Equal(t, "dev.chat.events.v1", producer.out[0].topic)
	require.Equal(t, "app-1", producer.out[0].key)
	require.Equal(t, "application/cloudevents+json", producer.out[0].headers["content-type"])
	require.Equal(t, "r1", producer.out[0].headers["x-request-id"])

	var evt map[string]any
	require.NoError(t, json.Unmarshal(producer.out[0].payload, &evt))
	require.Equal(t, "chat.message_sent.v1", evt["type"])
	require.Equal(t, "e1", evt["id"])
	require.Equal(t, "app://octopus", evt["source"])
	require.Equal(t, map[string]any{"message_id": "m1"}, evt["data"])
}

func TestDrainSchedulesRetryOnFailure(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	queue := &fakeQueue{due: []*EventDocument{
		{ID: "bad", Name: "chat.message_sent", Aggregate: "down", Payload: []byte(`{}`), Attempts: 1},
		{ID: "junk", Name: "chat.message_sent", Aggregate: "ok", Payload: []byte(`not json`)},
		{ID: "good", Name: "chat.message_sent", Aggregate: "ok", Payload: []byte(`{}`)},
	}}
	producer := &fakeProducer{fail: map[string]bool{"down": true}}
	w := &Worker{
		Store:    queue,
		Producer: producer,
		Backoff:  []time.Duration{time.Second, time.Minute},
		Now:      func() time.Time { return now },
	}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"good"}, queue.sent)
	require.Equal(t, now.Add(time.Minute), queue.failed["bad"])
	require.Equal(t, now.Add(time.Second), queue.failed["junk"])
}

func TestRunRequiresDependencies(t *testing.T) {
	require.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- (&Worker{Store: &fakeQueue{}, Producer: &fakeProducer{}, Interval: time.Millisecond}).Run(ctx)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
