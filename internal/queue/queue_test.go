package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueueDeliversToAllSubscribers(t *testing.T) {
	q := NewInMemoryQueue()

	var mu sync.Mutex
	got := []string{}
	for _, name := range []string{"a", "b"} {
		name := name
		require.NoError(t, q.Subscribe("topic", func(payload any) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+payload.(string))
			return nil
		}))
	}

	require.NoError(t, q.Publish("topic", "hello"))
	q.Drain()

	assert.ElementsMatch(t, []string{"a:hello", "b:hello"}, got)
}

func TestInMemoryQueuePublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue()
	assert.NoError(t, q.Publish("nobody", 1))
}

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond

	var calls int32
	require.NoError(t, q.Subscribe("topic", func(payload any) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		return nil
	}))

	require.NoError(t, q.Publish("topic", 1))
	q.Drain()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	q.MaxRetries = 2

	var calls int32
	require.NoError(t, q.Subscribe("topic", func(payload any) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}))

	require.NoError(t, q.Publish("topic", 1))
	q.Drain()

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDecode(t *testing.T) {
	job := RepairJob{CampaignID: "c1", FulfillmentID: "f1"}

	got, err := Decode[RepairJob](job)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	got, err = Decode[RepairJob](&job)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	got, err = Decode[RepairJob]([]byte(`{"campaign_id":"c1","fulfillment_id":"f1"}`))
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = Decode[RepairJob](42)
	assert.Error(t, err)
}

type repairRecorder struct {
	mu    sync.Mutex
	fails int
	jobs  []RepairJob
}

func (r *repairRecorder) RepairReference(ctx context.Context, campaignID, fulfillmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("campaign store unavailable")
	}
	r.jobs = append(r.jobs, RepairJob{CampaignID: campaignID, FulfillmentID: fulfillmentID})
	return nil
}

func TestReferenceRepairSubscriberRetries(t *testing.T) {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	rec := &repairRecorder{fails: 1}

	require.NoError(t, StartReferenceRepairSubscriber(q, rec))
	require.NoError(t, q.Publish(TopicReferenceRepairs, RepairJob{CampaignID: "c1", FulfillmentID: "f1"}))
	q.Drain()

	assert.Equal(t, []RepairJob{{CampaignID: "c1", FulfillmentID: "f1"}}, rec.jobs)
}

func TestReferenceRepairSubscriberDropsGarbage(t *testing.T) {
	q := NewInMemoryQueue()
	rec := &repairRecorder{}

	require.NoError(t, StartReferenceRepairSubscriber(q, rec))
	require.NoError(t, q.Publish(TopicReferenceRepairs, []byte("not json")))
	q.Drain()

	assert.Empty(t, rec.jobs)
}
