package utils

import (
	"testing"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func TestMessageTrackerTakeRemoves(t *testing.T) {
	var tracker MessageTracker
	msg := &kafka.Message{Key: []byte("job-1")}

	tracker.Track("job-1", msg)

	got, ok := tracker.Take("job-1")
	if !ok || got != msg {
		t.Fatalf("Take() = %v, %v", got, ok)
	}
	if _, ok := tracker.Take("job-1"); ok {
		t.Fatal("message should only be returned once")
	}
}
