package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, retryCount(nil))
	assert.Equal(t, 0, retryCount(amqp.Table{retryHeader: "2"}))
	assert.Equal(t, 2, retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 3, retryCount(amqp.Table{retryHeader: int64(3)}))
	assert.Equal(t, 4, retryCount(amqp.Table{retryHeader: 4}))
}

type recordingAcknowledger struct {
	acked, nacked, requeued int
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestAMQPQueueRequeuesDeliveryWithoutHandler(t *testing.T) {
	q := &AMQPQueue{name: "jobs", maxRetries: 3, logger: zap.NewNop(), handlers: map[string]Handler{}}

	body, err := json.Marshal(NewJob(TaskSendAutoresponse, map[string]string{"responder_id": "1"}))
	require.NoError(t, err)
	ack := &recordingAcknowledger{}

	q.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})

	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.requeued)
}

func TestAMQPQueueRetriesThroughBroker(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}

	name := "test-" + uuid.NewString()
	q, err := NewAMQPQueue(url, name, 3, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer q.Close()

	var calls atomic.Int32
	done := make(chan Job, 1)
	require.NoError(t, q.Subscribe("flaky", func(ctx context.Context, job Job) error {
		if calls.Add(1) == 1 {
			return errors.New("temporary")
		}
		done <- job
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	require.NoError(t, q.Publish(ctx, NewJob("flaky", map[string]string{"k": "v"})))

	select {
	case job := <-done:
		assert.Equal(t, 1, job.Attempt)
		assert.Equal(t, "v", job.Args["k"])
	case <-time.After(10 * time.Second):
		t.Fatal("job was not redelivered")
	}
}
