package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
)

// maxBatch caps how many queued events go out in one write.
const maxBatch = 100

// Publisher is the part of kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector queues events and publishes them in batches from a single
// goroutine, so detections never wait on Kafka. When the queue is full,
// events are dropped and counted.
type Collector struct {
	publisher Publisher
	queue     chan kafka.Event
	done      chan struct{}
	dropped   atomic.Int64
	logger    *slog.Logger
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		queue:     make(chan kafka.Event, bufferSize),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

// Start runs the publish loop until ctx ends or Close is called. Events
// still queued at that point are flushed in a final batch.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case ev, ok := <-c.queue:
				if !ok {
					return
				}
				c.publish(ctx, c.fill([]kafka.Event{ev}))
			case <-ctx.Done():
				for batch := c.fill(nil); len(batch) > 0; batch = c.fill(nil) {
					c.publish(context.Background(), batch)
				}
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.queue))
}

// fill appends whatever is already queued, up to maxBatch events.
func (c *Collector) fill(batch []kafka.Event) []kafka.Event {
	for len(batch) < maxBatch {
		select {
		case ev, ok := <-c.queue:
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (c *Collector) TrackDetection(event DetectionEvent) {
	c.track(kafka.Event{Key: event.ID, Type: string(EventDetection), Value: event})
}

func (c *Collector) TrackCatalogue(event CatalogueEvent) {
	c.track(kafka.Event{Key: "catalogue", Type: string(EventCatalogueUpdated), Value: event})
}

func (c *Collector) track(ev kafka.Event) {
	select {
	case c.queue <- ev:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "type", ev.Type, "dropped_total", n)
		}
	}
}

// Dropped reports how many events were discarded on a full queue.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the loop to flush. It must be
// called once, after Start and the last Track call.
func (c *Collector) Close() {
	close(c.queue)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, batch []kafka.Event) {
	if len(batch) == 0 {
		return
	}
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
	}
}
