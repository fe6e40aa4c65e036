package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/swell-fusion/internal/config"
	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// Writer publishes fused forecasts to the sink topic for the narrative and
// rendering services. It implements pipeline.ForecastPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishForecast serializes and publishes one forecast, keyed by forecast
// id so replays of the same forecast land on the same partition.
func (w *Writer) PublishForecast(ctx context.Context, f domain.SwellForecast) error {
	msg, err := serializeToMessage(f)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SwellForecast into a Kafka message.
func serializeToMessage(f domain.SwellForecast) (kafkago.Message, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(f.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "bundle_id", Value: []byte(f.BundleID)},
			{Key: "confidence", Value: []byte(strconv.FormatFloat(f.Confidence, 'f', 4, 64))},
			{Key: "created_at", Value: []byte(f.CreatedAt.Format(time.RFC3339))},
		},
	}, nil
}
