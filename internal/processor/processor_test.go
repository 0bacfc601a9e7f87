package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu       sync.Mutex
	seen     map[string]int
	failOnce map[string]bool
	done     chan string
}

func newRecordingProcessor() *recordingProcessor {
	return &recordingProcessor{seen: map[string]int{}, failOnce: map[string]bool{}, done: make(chan string, 100)}
}

func (p *recordingProcessor) GetType() string { return "test" }

func (p *recordingProcessor) Process(ctx context.Context, msg *queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := string(msg.Data)
	p.seen[key]++
	if p.failOnce[key] && p.seen[key] == 1 {
		return errors.New("first attempt fails")
	}
	p.done <- key
	return nil
}

func testOptions(name string) Options {
	return Options{
		Queue: queue.QueueConfig{
			Name:              name,
			ConsumerGroup:     "processors",
			MaxRetries:        3,
			VisibilityTimeout: 100 * time.Millisecond,
			PollInterval:      20 * time.Millisecond,
			BatchSize:         10,
		},
		Consumers: 2,
		Workers:   4,
	}
}

func waitFor(t *testing.T, done <-chan string, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case key := <-done:
			got = append(got, key)
		case <-timeout:
			t.Fatalf("processed %d of %d messages", len(got), n)
		}
	}
	return got
}

func TestProcessorService_ProcessesEveryMessageOnce(t *testing.T) {
	_, adapter := setupTestRedis(t)
	proc := newRecordingProcessor()
	svc := NewProcessorService(adapter, proc, testOptions("reports"))
	require.NoError(t, svc.Start())
	defer svc.Stop()

	producer, err := queue.NewQueue(adapter, testOptions("reports").Queue)
	require.NoError(t, err)
	for _, body := range []string{"a", "b", "c", "d", "e"} {
		_, err := producer.Publish(context.Background(), []byte(body), nil)
		require.NoError(t, err)
	}

	got := waitFor(t, proc.done, 5)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, got)
	assert.Equal(t, int64(5), svc.Metrics().GetStats().TotalProcessed)
}

func TestProcessorService_FailedMessageIsReclaimed(t *testing.T) {
	_, adapter := setupTestRedis(t)
	proc := newRecordingProcessor()
	proc.failOnce["flaky"] = true
	svc := NewProcessorService(adapter, proc, testOptions("reports"))
	require.NoError(t, svc.Start())
	defer svc.Stop()

	producer, err := queue.NewQueue(adapter, testOptions("reports").Queue)
	require.NoError(t, err)
	_, err = producer.Publish(context.Background(), []byte("flaky"), nil)
	require.NoError(t, err)

	waitFor(t, proc.done, 1)
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 2, proc.seen["flaky"])
	assert.Equal(t, int64(1), svc.Metrics().GetStats().TotalFailed)
}

func TestServiceMetrics(t *testing.T) {
	m := NewServiceMetrics()
	m.RecordSuccess(10 * time.Millisecond)
	m.RecordSuccess(30 * time.Millisecond)
	m.RecordFailure()

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.Equal(t, int64(20), stats.AvgDurationMs)

	m.Reset()
	assert.Zero(t, m.GetStats().TotalProcessed)
}
