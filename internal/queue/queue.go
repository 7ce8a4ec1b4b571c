package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/charityng-backend/internal/logger"
)

const (
	// TopicCacheInvalidate is broadcast to every replica.
	TopicCacheInvalidate = "cache.invalidate"
	// TopicReferenceRepairs is a work queue consumed by one worker per job.
	TopicReferenceRepairs = "reference_repairs"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
	Close() error
}

// Invalidation tells cache holders to drop entries of a kind. An empty Key
// drops the whole namespace.
type Invalidation struct {
	Kind   string `json:"kind"`
	Key    string `json:"key,omitempty"`
	Origin string `json:"origin"`
}

// RepairJob asks for the campaign side reference of a fulfillment to be
// re-registered.
type RepairJob struct {
	CampaignID    string `json:"campaign_id"`
	FulfillmentID string `json:"fulfillment_id"`
}

// Decode converts a payload delivered in process (T or *T) or over the
// wire (JSON bytes) into T.
func Decode[T any](payload any) (T, error) {
	var out T
	switch p := payload.(type) {
	case T:
		return p, nil
	case *T:
		if p == nil {
			return out, fmt.Errorf("nil payload")
		}
		return *p, nil
	case []byte:
		err := json.Unmarshal(p, &out)
		return out, err
	case json.RawMessage:
		err := json.Unmarshal(p, &out)
		return out, err
	}
	return out, fmt.Errorf("unexpected payload type %T", payload)
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	inflight sync.WaitGroup

	MaxRetries int
	Backoff    time.Duration
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		MaxRetries: 3,
		Backoff:    500 * time.Millisecond,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish hands the payload to every subscriber of topic. Publishing to a
// topic nobody listens on is not an error.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := append([]func(payload any) error(nil), q.handlers[topic]...)
	q.mu.Unlock()

	for _, handler := range handlers {
		job := JobPayload{
			Topic:      topic,
			Payload:    payload,
			MaxRetries: q.MaxRetries,
		}
		q.inflight.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.inflight.Done()
	log := logger.L().WithField("topic", job.Topic)

	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		log.WithFields(logrus.Fields{
			"attempt": job.RetryCount,
			"max":     job.MaxRetries,
		}).WithError(err).Warn("job failed")

		if job.RetryCount > job.MaxRetries {
			log.WithField("payload", job.Payload).Error("job permanently failed")
			return
		}

		// Linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Drain blocks until every published job has been handled.
func (q *InMemoryQueue) Drain() {
	q.inflight.Wait()
}

func (q *InMemoryQueue) Close() error {
	q.Drain()
	return nil
}

// ReferenceRepairer re-registers a fulfillment reference on its campaign.
type ReferenceRepairer interface {
	RepairReference(ctx context.Context, campaignID, fulfillmentID string) error
}

// StartReferenceRepairSubscriber consumes repair jobs published after a
// failed phase-2 append.
func StartReferenceRepairSubscriber(q Queue, repairer ReferenceRepairer) error {
	return q.Subscribe(TopicReferenceRepairs, func(payload any) error {
		job, err := Decode[RepairJob](payload)
		if err != nil {
			logger.L().WithError(err).Warn("invalid repair job payload")
			return nil // no retry
		}

		log := logger.L().WithFields(logrus.Fields{
			"campaign_id":    job.CampaignID,
			"fulfillment_id": job.FulfillmentID,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := repairer.RepairReference(ctx, job.CampaignID, job.FulfillmentID); err != nil {
			log.WithError(err).Warn("reference repair failed")
			return err // retry
		}
		log.Info("reference repaired")
		return nil
	})
}
