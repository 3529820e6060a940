// Package queue buffers request audit entries between the proxy's hot
// path and the batch writer. Two backends:
//
//   - Memory queue: channel-based, nothing survives a restart. Fine for
//     standalone deployments and tests.
//   - Redis queue: list-based, survives restarts and supports multiple
//     writer processes draining the same queue.
//
// Entries that repeatedly fail to persist land in a dead letter queue
// instead of being dropped, so an operator can inspect and replay them.
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO buffer of audit entries.
type Queue interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item any) error

	// DequeueBatch retrieves up to maxItems items, waiting at most wait
	// for the first one. An empty slice means the wait elapsed with
	// nothing queued.
	DequeueBatch(ctx context.Context, maxItems int, wait time.Duration) ([]any, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterQueue holds items that exhausted their retries.
type DeadLetterQueue interface {
	// Add stores a failed item together with the error that killed it
	Add(ctx context.Context, item any, err error) error

	// List retrieves up to maxItems dead items
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes a dead item by ID
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem is one failed item with its failure context
type DeadLetterItem struct {
	ID        string    `json:"id"`
	Item      any       `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue tuning knobs
type Config struct {
	// BatchSize is the maximum number of items drained per batch
	BatchSize int

	// BatchTimeout is how long the writer waits before flushing a
	// partial batch
	BatchTimeout time.Duration

	// MaxRetries is how many times a batch insert is retried before
	// items go to the dead letter queue
	MaxRetries int

	// RetryBackoff is the initial backoff between retries; it doubles
	// on each attempt
	RetryBackoff time.Duration

	// Name distinguishes queues sharing a Redis database
	Name string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(name string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		Name:         name,
	}
}
