package rabbitmq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	base := 500 * time.Millisecond

	assert.Equal(t, base, calculateBackoff(base, 0))
	assert.Equal(t, base, calculateBackoff(base, 1))
	assert.Equal(t, 2*base, calculateBackoff(base, 2))
	assert.Equal(t, 8*base, calculateBackoff(base, 4))
	assert.Equal(t, maxBackoff, calculateBackoff(base, 12))
	assert.Equal(t, maxBackoff, calculateBackoff(base, 200))
}

func TestCalculateBackoffNeverWraps(t *testing.T) {
	for _, base := range []time.Duration{time.Nanosecond, time.Millisecond, 500 * time.Millisecond, time.Second} {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 256; attempt++ {
			d := calculateBackoff(base, attempt)
			assert.Positive(t, d, "base=%v attempt=%d", base, attempt)
			assert.LessOrEqual(t, d, maxBackoff, "base=%v attempt=%d", base, attempt)
			assert.GreaterOrEqual(t, d, prev, "base=%v attempt=%d", base, attempt)
			prev = d
		}
		assert.Equal(t, maxBackoff, calculateBackoff(base, 64))
	}

	assert.Equal(t, maxBackoff, calculateBackoff(2*time.Minute, 1))
	assert.Zero(t, calculateBackoff(0, 5))
}

func TestGetAttemptFromHeaders(t *testing.T) {
	assert.Equal(t, 1, getAttemptFromHeaders(amqp.Delivery{}))
	assert.Equal(t, 2, getAttemptFromHeaders(amqp.Delivery{Redelivered: true}))

	deaths := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(1)}, amqp.Table{"count": int64(1)}, amqp.Table{"count": int64(1)}},
	}}
	assert.Equal(t, 3, getAttemptFromHeaders(deaths))
}

func TestConsumerConfigDefaults(t *testing.T) {
	cfg := ConsumerConfig{Queue: "bootanim.requests", StatusQueue: "bootanim.status"}.withDefaults()

	assert.Equal(t, "bootanim.requests", cfg.RoutingKey)
	assert.Equal(t, "bootanim.status", cfg.StatusRoutingKey)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, 1, cfg.Prefetch)

	cfg = ConsumerConfig{Queue: "q", RoutingKey: "custom.key", WorkerCount: 4, Prefetch: 2}.withDefaults()
	assert.Equal(t, "custom.key", cfg.RoutingKey)
	assert.Equal(t, 4, cfg.Prefetch)
}

func TestNewPublishing(t *testing.T) {
	body := []byte(`{"job_id":"42"}`)

	a := newPublishing(body, nil)
	b := newPublishing(body, nil)

	assert.Equal(t, "application/json", a.ContentType)
	assert.Equal(t, amqp.Persistent, a.DeliveryMode)
	assert.Equal(t, appID, a.AppId)
	assert.Equal(t, body, a.Body)
	assert.NotEmpty(t, a.MessageId)
	assert.NotEqual(t, a.MessageId, b.MessageId)
}

func TestDLQHeaders(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	h := dlqHeaders("invalid options: numframes must not be 0", at)

	assert.Equal(t, "invalid options: numframes must not be 0", h["x-dlq-reason"])
	assert.Equal(t, "2024-03-01T15:30:00Z", h["x-dlq-failed-at"])
	assert.NoError(t, h.Validate())
}
