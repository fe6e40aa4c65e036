package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/swell-fusion/internal/config"
	"github.com/couchcryptid/swell-fusion/internal/domain"
)

// pollTimeout bounds how long ExtractBatch waits for the first message;
// drainTimeout bounds the wait for each subsequent one, so a full bundle
// burst comes back in one batch without stalling on a quiet topic.
const (
	pollTimeout  = 5 * time.Second
	drainTimeout = 250 * time.Millisecond
)

// Reader consumes source-series messages from the source topic as part of
// a consumer group. It implements pipeline.BatchExtractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// ExtractBatch fetches up to batchSize messages. It blocks briefly for the
// first message and then drains whatever else is immediately available; an
// empty batch on a quiet topic is normal, not an error.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error) {
	var batch []domain.RawMessage

	for len(batch) < batchSize {
		wait := drainTimeout
		if len(batch) == 0 {
			wait = pollTimeout
		}
		fetchCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, toRawMessage(r.reader, msg))
	}
	return batch, nil
}

// Close shuts down the consumer and leaves the group.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func toRawMessage(reader *kafkago.Reader, msg kafkago.Message) domain.RawMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawMessage{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Commit: func(ctx context.Context) error {
			return reader.CommitMessages(ctx, msg)
		},
	}
}
