package utils

import (
	"sync"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// MessageTracker remembers which Kafka message carried a buffered payload so
// its offset can be committed once the payload is persisted.
type MessageTracker struct {
	messages sync.Map
}

func (t *MessageTracker) Track(id string, msg *kafka.Message) {
	t.messages.Store(id, msg)
}

func (t *MessageTracker) Take(id string) (*kafka.Message, bool) {
	msg, ok := t.messages.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return msg.(*kafka.Message), true
}
