package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/queue"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/redis"
	"github.com/nimasrn/congregation-messenger/pkg/worker"
)

const (
	ProcessingTimeout = 5 * time.Second
	HealthInterval    = 30 * time.Second
	MetricsInterval   = 30 * time.Second
	ShutdownTimeout   = time.Minute
	// HighLagThreshold is the pending count above which the health check warns.
	HighLagThreshold = 10_000
)

// Processor handles one kind of queue message.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

type Options struct {
	Queue     queue.QueueConfig
	Consumers int
	Workers   int
	Buffer    int
}

// ProcessorService reads the queue with several consumers and hands each
// message to a worker pool, acking only when the processor succeeds.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	opts      Options
	queues    []*queue.Queue
	processor Processor
	metrics   *ServiceMetrics
	pool      *worker.Pool[*job]
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

type job struct {
	ctx    context.Context
	msg    *queue.Message
	result chan error
}

func NewProcessorService(adapter redis.RedisAdapter, processor Processor, opts Options) *ProcessorService {
	if opts.Consumers < 1 {
		opts.Consumers = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 10
	}
	if opts.Buffer < 1 {
		opts.Buffer = opts.Workers * 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ProcessorService{
		adapter:   adapter,
		opts:      opts,
		processor: processor,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.pool = worker.NewPool[*job](opts.Buffer, opts.Workers, s.work)
	return s
}

func (s *ProcessorService) Metrics() *ServiceMetrics { return s.metrics }

func (s *ProcessorService) Start() error {
	logger.Info("starting processor service", "type", s.processor.GetType())
	s.pool.Start()

	base := s.opts.Queue.ConsumerName
	if base == "" {
		base = s.processor.GetType()
	}
	for i := 0; i < s.opts.Consumers; i++ {
		cfg := s.opts.Queue
		cfg.ConsumerName = fmt.Sprintf("%s-instance-%d", base, i)

		q, err := queue.NewQueue(s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.handle); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(2)
	go s.every(MetricsInterval, s.reportMetrics)
	go s.every(HealthInterval, s.healthCheck)

	logger.Info("processor service started", "consumers", len(s.queues), "workers", s.pool.Workers())
	return nil
}

func (s *ProcessorService) every(d time.Duration, fn func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.GetStats()
	logger.Info("processor metrics",
		"total_processed", stats.TotalProcessed,
		"total_failed", stats.TotalFailed,
		"rate_per_second", stats.RatePerSecond,
		"avg_duration_ms", stats.AvgDurationMs,
		"uptime_seconds", stats.UptimeSeconds,
		"buffered", s.pool.Pending())
}

func (s *ProcessorService) healthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("health check failed: redis unreachable", "error", err)
		return
	}
	if len(s.queues) == 0 {
		return
	}
	// every consumer shares one stream and group
	stats, err := s.queues[0].GetStats(ctx)
	if err != nil {
		logger.Warn("health check: queue stats unavailable", "error", err)
		return
	}
	if stats.PendingMessages > HighLagThreshold {
		logger.Warn("health check: queue has high lag", "pending_messages", stats.PendingMessages)
	}
}

// Stop drains the consumers before the pool so no acked work is lost.
func (s *ProcessorService) Stop() {
	logger.Info("shutting down processor service")
	s.cancel()

	var wg sync.WaitGroup
	for i, q := range s.queues {
		wg.Add(1)
		go func(index int, q *queue.Queue) {
			defer wg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	wg.Wait()

	s.pool.Stop()
	s.wg.Wait()
	s.reportMetrics()
	logger.Info("processor service stopped")
}

// handle runs on the consumer goroutine and waits for the worker's answer.
func (s *ProcessorService) handle(ctx context.Context, msg *queue.Message) error {
	jobCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	j := &job{ctx: jobCtx, msg: msg, result: make(chan error, 1)}
	if err := s.pool.Enqueue(jobCtx, j); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	select {
	case err := <-j.result:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process message: %w", jobCtx.Err())
	}
}

func (s *ProcessorService) work(workerIndex int, j *job) {
	if j.ctx.Err() != nil {
		logger.Warn("job expired before processing started", "worker", workerIndex)
		j.result <- j.ctx.Err()
		return
	}

	start := time.Now()
	err := s.processor.Process(j.ctx, j.msg)
	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("failed to process message", "worker", workerIndex, "id", j.msg.ID, "attempts", j.msg.Attempts, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}
	// buffered, never blocks
	j.result <- err
}
