package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/thunderlink/internal/model"
)

// TopicCampaignEvents carries one model.CampaignEvent per campaign step.
const TopicCampaignEvents = "campaign_events"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers to local subscribers with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	backoff    time.Duration
	wg         sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Topic:      topic,
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.maxRetries,
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.wg.Done()

	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		zap.L().Warn("Job failed",
			zap.String("topic", job.Topic),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err),
		)

		if job.RetryCount > job.MaxRetries {
			zap.L().Error("Job permanently failed", zap.String("topic", job.Topic), zap.Int("attempts", job.RetryCount))
			return // No requeue
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has been handled or dropped.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Fanout publishes to every queue and subscribes on the first one.
type Fanout []Queue

func (f Fanout) Publish(topic string, payload any) error {
	var errs []error
	for _, q := range f {
		if err := q.Publish(topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Subscribe(topic string, handler func(payload any) error) error {
	if len(f) == 0 {
		return errors.New("fanout has no queues")
	}
	return f[0].Subscribe(topic, handler)
}

// StartCampaignEventSubscriber logs every campaign event.
func StartCampaignEventSubscriber(q Queue) error {
	return q.Subscribe(TopicCampaignEvents, func(payload any) error {
		ev, ok := payload.(model.CampaignEvent)
		if !ok {
			zap.L().Warn("⚠️ Invalid payload type, expected CampaignEvent")
			return nil // no retry
		}
		LogEvent(ev)
		return nil
	})
}

// LogEvent writes a campaign event to the structured log.
func LogEvent(ev model.CampaignEvent) {
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.Int("index", ev.Index),
		zap.Int("total", ev.Total),
		zap.Time("at", ev.At),
	}
	if ev.Phone != "" {
		fields = append(fields, zap.String("phone", ev.Phone))
	}
	if ev.Error != "" {
		fields = append(fields, zap.String("error", ev.Error))
		zap.L().Warn("📩 campaign event", fields...)
		return
	}
	zap.L().Info("📩 campaign event", fields...)
}
