package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apptrail-sh/revisions/internal/model"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// BatchConfig holds configuration for event batching
type BatchConfig struct {
	FlushWindow  time.Duration // How long the first event of a batch may wait
	MaxBatchSize int           // Maximum events per batch
}

// DefaultBatchConfig returns the default batching configuration
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		FlushWindow:  2 * time.Second,
		MaxBatchSize: 100,
	}
}

// RevisionEventQueue batches revision events and fans every batch out to all
// publishers. Batches are published in arrival order; publisher errors are
// logged and the batch is dropped for that publisher.
type RevisionEventQueue struct {
	events     <-chan model.RevisionEvent
	publishers []RevisionEventPublisher
	config     BatchConfig

	mu      sync.Mutex
	pending []model.RevisionEvent
	timer   *time.Timer

	// publishMu keeps batches in order when the timer and the loop flush concurrently
	publishMu sync.Mutex
	done      chan struct{}
}

// NewRevisionEventQueue creates a new batching revision event queue
func NewRevisionEventQueue(
	events <-chan model.RevisionEvent,
	publishers []RevisionEventPublisher,
	config BatchConfig,
) *RevisionEventQueue {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultBatchConfig().MaxBatchSize
	}
	return &RevisionEventQueue{
		events:     events,
		publishers: publishers,
		config:     config,
		pending:    make([]model.RevisionEvent, 0, config.MaxBatchSize),
		done:       make(chan struct{}),
	}
}

// Run consumes events until the channel is closed or ctx is cancelled, then
// publishes whatever is still pending. On cancellation the events already
// buffered in the channel are published as well.
func (q *RevisionEventQueue) Run(ctx context.Context) {
	logger := log.FromContext(ctx).WithName("event-queue")
	ctx = log.IntoContext(ctx, logger)
	defer close(q.done)

	logger.Info("Revision event queue started",
		"publishers", len(q.publishers),
		"flushWindow", q.config.FlushWindow,
		"maxBatchSize", q.config.MaxBatchSize,
	)

	// Publishing on shutdown must not use the cancelled context
	drainCtx := context.WithoutCancel(ctx)

	for {
		select {
		case event, ok := <-q.events:
			if !ok {
				q.flush(drainCtx)
				logger.Info("Revision event queue drained")
				return
			}
			q.add(ctx, event)
		case <-ctx.Done():
			drained := q.drainBuffered(drainCtx)
			q.flush(drainCtx)
			logger.Info("Revision event queue stopped", "drained", drained)
			return
		}
	}
}

// drainBuffered moves every event already buffered in the channel into the
// pending batch without blocking
func (q *RevisionEventQueue) drainBuffered(ctx context.Context) int {
	n := 0
	for {
		select {
		case event, ok := <-q.events:
			if !ok {
				return n
			}
			q.add(ctx, event)
			n++
		default:
			return n
		}
	}
}

// Done is closed once Run has returned and the last batch is published
func (q *RevisionEventQueue) Done() <-chan struct{} {
	return q.done
}

func (q *RevisionEventQueue) add(ctx context.Context, event model.RevisionEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, event)
	if len(q.pending) == 1 && q.config.FlushWindow > 0 {
		q.timer = time.AfterFunc(q.config.FlushWindow, func() {
			q.flush(ctx)
		})
	}
	full := len(q.pending) >= q.config.MaxBatchSize || q.config.FlushWindow <= 0
	q.mu.Unlock()

	if full {
		q.flush(ctx)
	}
}

func (q *RevisionEventQueue) flush(ctx context.Context) {
	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	batch := q.take()
	if len(batch) == 0 {
		return
	}

	logger := log.FromContext(ctx)
	logger.Info("Flushing revision event batch",
		"eventCount", len(batch),
		"publishers", len(q.publishers),
	)

	for _, publisher := range q.publishers {
		if err := publisher.PublishBatch(ctx, batch); err != nil {
			logger.Error(err, "Failed to publish revision event batch",
				"publisher", fmt.Sprintf("%T", publisher),
				"eventCount", len(batch),
			)
		}
	}
}

// take detaches the pending batch and stops the flush timer
func (q *RevisionEventQueue) take() []model.RevisionEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if len(q.pending) == 0 {
		return nil
	}
	batch := q.pending
	q.pending = make([]model.RevisionEvent, 0, q.config.MaxBatchSize)
	return batch
}
