package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"llm_proxy/internal/models"
	"llm_proxy/internal/queue"
	"llm_proxy/internal/utils"
)

// Sink receives audit entries from the proxy's hot path. Enqueue must
// be cheap; persistence happens elsewhere.
type Sink interface {
	Enqueue(rec *models.RequestLog) error
}

// NoopSink discards audit entries.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *models.RequestLog) error {
	return nil
}

// LogStore is the slice of the request log repository the sink needs.
type LogStore interface {
	InsertBatch(ctx context.Context, logs []*models.RequestLog) error
}

// QueueSink buffers audit entries in a queue and drains them in
// batches to the database, optionally shipping each batch to S3 as
// well. Batches that exhaust their retries go to the dead letter
// queue.
type QueueSink struct {
	queue  queue.Queue
	dlq    queue.DeadLetterQueue
	store  LogStore
	s3     *S3Writer // nil disables shipping
	config *queue.Config
	logger *utils.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewQueueSink creates a new queue-backed sink
func NewQueueSink(q queue.Queue, dlq queue.DeadLetterQueue, store LogStore, s3 *S3Writer, config *queue.Config) *QueueSink {
	if config == nil {
		config = queue.DefaultConfig("request-log")
	}

	return &QueueSink{
		queue:       q,
		dlq:         dlq,
		store:       store,
		s3:          s3,
		config:      config,
		logger:      utils.NewLogger("log-sink"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Enqueue adds an audit entry to the buffer. A full or closed queue
// drops the entry; the audit log is best-effort and must never block
// a request.
func (s *QueueSink) Enqueue(rec *models.RequestLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := s.queue.Enqueue(ctx, rec); err != nil {
		s.logger.Warn("Dropping audit entry", "error", err)
		return err
	}
	return nil
}

// Start starts the drain worker
func (s *QueueSink) Start(ctx context.Context) {
	go s.run(ctx)
}

// Shutdown stops the worker and drains whatever is still queued
func (s *QueueSink) Shutdown(ctx context.Context) error {
	close(s.stopChan)

	select {
	case <-s.stoppedChan:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Final drain
	for {
		items, err := s.queue.DequeueBatch(ctx, s.config.BatchSize, 100*time.Millisecond)
		if err != nil || len(items) == 0 {
			return nil
		}
		s.persistItems(ctx, items)
	}
}

func (s *QueueSink) run(ctx context.Context) {
	defer close(s.stoppedChan)

	for {
		select {
		case <-s.stopChan:
			s.logger.Info("Log sink stopping")
			return
		case <-ctx.Done():
			s.logger.Info("Log sink context cancelled")
			return
		default:
			s.processBatch(ctx)
		}
	}
}

func (s *QueueSink) processBatch(ctx context.Context) {
	items, err := s.queue.DequeueBatch(ctx, s.config.BatchSize, s.config.BatchTimeout)
	if err != nil {
		s.logger.Error("Failed to dequeue audit entries", "error", err)
		time.Sleep(1 * time.Second) // back off on error
		return
	}

	if len(items) == 0 {
		return
	}

	s.logger.Debug("Processing audit batch", "count", len(items))
	s.persistItems(ctx, items)
}

func (s *QueueSink) persistItems(ctx context.Context, items []any) {
	logs := make([]*models.RequestLog, 0, len(items))
	for _, item := range items {
		var rec models.RequestLog
		if err := unmarshalItem(item, &rec); err != nil {
			s.logger.Error("Failed to unmarshal audit entry", "error", err)
			continue
		}
		logs = append(logs, &rec)
	}

	if len(logs) == 0 {
		return
	}

	if err := s.persistWithRetries(ctx, logs); err != nil {
		s.logger.Error("Audit batch failed after retries", "count", len(logs), "error", err)
		if s.dlq != nil {
			for _, rec := range logs {
				if dlqErr := s.dlq.Add(ctx, rec, err); dlqErr != nil {
					s.logger.Error("Failed to add to dead letter queue", "error", dlqErr)
				}
			}
		}
		return
	}

	if s.s3 != nil {
		if _, err := s.s3.WriteBatch(ctx, logs); err != nil {
			// S3 is secondary; the rows are already in the database
			s.logger.Warn("Failed to ship batch to S3", "error", err)
		}
	}
}

func (s *QueueSink) persistWithRetries(ctx context.Context, logs []*models.RequestLog) error {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			s.logger.Debug("Retrying audit batch", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := s.store.InsertBatch(ctx, logs); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetQueueLength returns the current buffer depth
func (s *QueueSink) GetQueueLength(ctx context.Context) (int, error) {
	return s.queue.Length(ctx)
}

// GetDeadLetterItems returns failed entries awaiting operator action
func (s *QueueSink) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if s.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return s.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed entry by ID
func (s *QueueSink) RetryDeadLetterItem(ctx context.Context, id string) error {
	if s.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := s.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID == id {
			if err := s.queue.Enqueue(ctx, dlItem.Item); err != nil {
				return fmt.Errorf("failed to re-enqueue item: %w", err)
			}
			if err := s.dlq.Remove(ctx, id); err != nil {
				return fmt.Errorf("failed to remove from DLQ: %w", err)
			}
			return nil
		}
	}

	return queue.ErrItemNotFound
}

// unmarshalItem converts a queue item back into a RequestLog. Memory
// queues hand back the original pointer; Redis queues hand back raw
// JSON.
func unmarshalItem(item any, rec *models.RequestLog) error {
	switch v := item.(type) {
	case *models.RequestLog:
		*rec = *v
		return nil
	case models.RequestLog:
		*rec = v
		return nil
	case []byte:
		return json.Unmarshal(v, rec)
	case json.RawMessage:
		return json.Unmarshal(v, rec)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, rec)
	}
}
