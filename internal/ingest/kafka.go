package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"anchord/internal/config"
	"anchord/internal/logging"
)

// KafkaConsumer reads evidence envelopes from a Kafka topic with manual
// offset commits, so an envelope is only committed once it is acked.
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewKafkaConsumer creates a consumer from ingest configuration.
func NewKafkaConsumer(cfg config.Ingest, logger *slog.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("incomplete kafka configuration: brokers, topic, group_id are all required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})

	return &KafkaConsumer{
		reader: reader,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}, nil
}

// Consume fetches the next envelope. Messages that fail to decode are
// committed and reported as an error so a poison message cannot wedge the
// partition.
func (k *KafkaConsumer) Consume(ctx context.Context) (*Envelope, func(success bool), error) {
	msg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("fetch message: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		k.logger.Warn("discarding undecodable message",
			logging.Int64("offset", msg.Offset),
			logging.Error(err),
		)
		_ = k.reader.CommitMessages(ctx, msg)
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}

	ack := func(success bool) {
		if !success {
			return
		}
		if err := k.reader.CommitMessages(context.Background(), msg); err != nil {
			k.logger.Error("commit offset failed",
				logging.Int64("offset", msg.Offset),
				logging.Error(err),
			)
		}
	}
	return &env, ack, nil
}

// Close shuts down the underlying Kafka reader.
func (k *KafkaConsumer) Close() error {
	return k.reader.Close()
}

var _ Consumer = (*KafkaConsumer)(nil)
