package consumer

import (
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "priceflow/config"
)

// NewReader builds a consumer-group reader over the category's topics.
// resetOffset makes a group with no committed offset start from the
// earliest message instead of the latest; it has no effect on a group that
// has already committed.
func NewReader(cfg *appconfig.Config, topics []string, resetOffset bool) *kafka.Reader {
	startOffset := kafka.LastOffset
	if resetOffset {
		startOffset = kafka.FirstOffset
	}
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		GroupTopics: topics,
		MinBytes:    cfg.Kafka.MinBytes,
		MaxBytes:    cfg.Kafka.MaxBytes,
		MaxWait:     cfg.Kafka.PollTimeout,
		StartOffset: startOffset,
	}
	if cfg.Kafka.CommitAsync {
		rc.CommitInterval = time.Second
	}
	return kafka.NewReader(rc)
}
