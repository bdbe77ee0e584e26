package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "priceflow/config"
	"priceflow/models"
)

type fakeReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	commits  []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.messages) > 0 {
		msg := f.messages[0]
		f.messages = f.messages[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits)
}

type fakeDeserializer struct {
	applicable bool
	err        error
}

func (f *fakeDeserializer) Deserialize(value []byte) (models.Event, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if !f.applicable {
		return nil, false, nil
	}
	return models.PriceBatchCreatedEvent{}, true, nil
}

type fakeHandler struct {
	mu      sync.Mutex
	results []bool
	calls   int
	panics  int
}

func (f *fakeHandler) Handle(ctx context.Context, event models.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics > 0 {
		f.panics--
		panic("handler exploded")
	}
	f.calls++
	if len(f.results) == 0 {
		return true
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func (f *fakeHandler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.GroupID = "test"
	cfg.Kafka.FailureBackoff = 1000
	return cfg
}

func runConsumer(t *testing.T, reader *fakeReader, d Deserializer, h EventHandler, wantCommits int) {
	t.Helper()
	c, err := NewConsumer(testConfig(), reader, d, h)
	if err != nil {
		t.Fatalf("NewConsumer returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reader.committed() < wantCommits && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	c.Stop()

	if got := reader.committed(); got != wantCommits {
		t.Fatalf("committed %d messages, want %d", got, wantCommits)
	}
}

func TestConsumerCommitsAfterSuccessfulHandling(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "t", Value: []byte(`{}`)}}}
	handler := &fakeHandler{}
	runConsumer(t, reader, &fakeDeserializer{applicable: true}, handler, 1)
	if handler.callCount() != 1 {
		t.Fatalf("handler called %d times, want 1", handler.callCount())
	}
}

func TestConsumerRetriesUntilHandlerAccepts(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "t", Value: []byte(`{}`)}}}
	handler := &fakeHandler{results: []bool{false, false, true}}
	runConsumer(t, reader, &fakeDeserializer{applicable: true}, handler, 1)
	if handler.callCount() != 3 {
		t.Fatalf("handler called %d times, want 3", handler.callCount())
	}
}

func TestConsumerCommitsInapplicableWithoutHandler(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "t", Value: []byte(`{}`)}}}
	handler := &fakeHandler{}
	runConsumer(t, reader, &fakeDeserializer{applicable: false}, handler, 1)
	if handler.callCount() != 0 {
		t.Fatalf("handler called %d times, want 0", handler.callCount())
	}
}

func TestConsumerCommitsPoisonMessageByDefault(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "t", Value: []byte(`nope`)}}}
	handler := &fakeHandler{}
	runConsumer(t, reader, &fakeDeserializer{err: errors.New("bad payload")}, handler, 1)
	if handler.callCount() != 0 {
		t.Fatalf("handler called %d times, want 0", handler.callCount())
	}
}

func TestConsumerRecoversFromHandlerPanic(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Topic: "t", Value: []byte(`{}`)}}}
	handler := &fakeHandler{panics: 1}
	runConsumer(t, reader, &fakeDeserializer{applicable: true}, handler, 1)
	if handler.callCount() != 1 {
		t.Fatalf("handler called %d times after panic, want 1", handler.callCount())
	}
}

func TestConsumerProcessesMessagesInOrder(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Topic: "t", Offset: 1, Value: []byte(`{}`)},
		{Topic: "t", Offset: 2, Value: []byte(`{}`)},
	}}
	handler := &fakeHandler{}
	runConsumer(t, reader, &fakeDeserializer{applicable: true}, handler, 2)

	if reader.commits[0].Offset != 1 || reader.commits[1].Offset != 2 {
		t.Fatalf("commits out of order: %v, %v", reader.commits[0].Offset, reader.commits[1].Offset)
	}
}
