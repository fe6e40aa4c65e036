package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/swell-fusion/internal/domain"
)

func TestToRawMessage(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("bundle-1|ndbc"),
		Value:     []byte(`{"bundle_id":"bundle-1"}`),
		Topic:     "swell-source-series",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("ndbc")},
		},
	}

	raw := toRawMessage(nil, msg)

	assert.Equal(t, []byte("bundle-1|ndbc"), raw.Key)
	assert.JSONEq(t, `{"bundle_id":"bundle-1"}`, string(raw.Value))
	assert.Equal(t, "swell-source-series", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "ndbc", raw.Headers["source"])
	assert.NotNil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC)
	f := domain.SwellForecast{
		ID:         "forecast-1",
		BundleID:   "bundle-1",
		CreatedAt:  now,
		Confidence: 0.8125,
		Category:   "high",
		State:      domain.StatePending,
	}

	msg, err := serializeToMessage(f)
	require.NoError(t, err)

	assert.Equal(t, []byte("forecast-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"bundle_id":"bundle-1"`)
	assert.Contains(t, string(msg.Value), `"confidence_category":"high"`)
	assert.Len(t, msg.Headers, 3)
	assert.Equal(t, "bundle_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("bundle-1"), msg.Headers[0].Value)
	assert.Equal(t, "confidence", msg.Headers[1].Key)
	assert.Equal(t, []byte("0.8125"), msg.Headers[1].Value)
	assert.Equal(t, "created_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)
}
