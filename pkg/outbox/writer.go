package outbox

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the Kafka producer the dispatcher publishes through. Every
// message waits for all in-sync replicas.
type Writer struct {
	*kafka.Writer
}

func NewWriter(brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}
