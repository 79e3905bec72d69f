package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/sentiscope/internal/models"
)

type fakeArchive struct {
	batches [][]models.AnalyzedBatch
	failFor int
}

func (f *fakeArchive) BatchInsertItemResults(_ context.Context, batches []models.AnalyzedBatch) error {
	if f.failFor > 0 {
		f.failFor--
		return errors.New("dynamodb unavailable")
	}
	f.batches = append(f.batches, batches)
	return nil
}

func resultMessage(t *testing.T, offset int64, batch models.AnalyzedBatch) *kafka.Message {
	t.Helper()
	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatal(err)
	}
	topic := "analyze-results"
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0, Offset: kafka.Offset(offset)},
		Key:            []byte(batch.JobID),
		Value:          data,
	}
}

func TestResultsArchiverFlushCommitsAfterWrite(t *testing.T) {
	archive := &fakeArchive{}
	archiver := NewResultsArchiver(archive, 2)

	full, err := archiver.Add(resultMessage(t, 1, models.AnalyzedBatch{JobID: "a"}))
	if err != nil || full {
		t.Fatalf("Add() = %v, %v", full, err)
	}
	full, err = archiver.Add(resultMessage(t, 2, models.AnalyzedBatch{JobID: "b"}))
	if err != nil || !full {
		t.Fatalf("Add() = %v, %v; want full", full, err)
	}

	var committed []int64
	commit := func(msg *kafka.Message) error {
		committed = append(committed, int64(msg.TopicPartition.Offset))
		return nil
	}

	if err := archiver.Flush(context.Background(), commit); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(archive.batches) != 1 || len(archive.batches[0]) != 2 {
		t.Fatalf("unexpected archive writes %+v", archive.batches)
	}
	if archive.batches[0][0].JobID != "a" || archive.batches[0][1].JobID != "b" {
		t.Fatalf("job ids not preserved: %+v", archive.batches[0])
	}
	if len(committed) != 2 || committed[0] != 1 || committed[1] != 2 {
		t.Fatalf("committed = %v", committed)
	}
	if archiver.Pending() != 0 {
		t.Fatalf("pending = %d after flush", archiver.Pending())
	}
}

func TestResultsArchiverKeepsBatchesOnFailure(t *testing.T) {
	archive := &fakeArchive{failFor: ARCHIVE_INSERT_ATTEMPTS}
	archiver := NewResultsArchiver(archive, 10)
	archiver.retry = time.Millisecond

	if _, err := archiver.Add(resultMessage(t, 7, models.AnalyzedBatch{JobID: "a"})); err != nil {
		t.Fatal(err)
	}

	commits := 0
	commit := func(*kafka.Message) error { commits++; return nil }

	if err := archiver.Flush(context.Background(), commit); err == nil {
		t.Fatal("expected flush error")
	}
	if commits != 0 {
		t.Fatal("nothing should be committed when the write fails")
	}
	if archiver.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", archiver.Pending())
	}

	if err := archiver.Flush(context.Background(), commit); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if commits != 1 {
		t.Fatalf("commits = %d, want 1", commits)
	}
}

func TestResultsArchiverRejectsBadPayload(t *testing.T) {
	archiver := NewResultsArchiver(&fakeArchive{}, 10)
	if _, err := archiver.Add(&kafka.Message{Value: []byte("nope")}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestResultsArchiverFallsBackToMessageKey(t *testing.T) {
	archive := &fakeArchive{}
	archiver := NewResultsArchiver(archive, 10)

	msg := resultMessage(t, 3, models.AnalyzedBatch{})
	msg.Key = []byte("from-key")
	if _, err := archiver.Add(msg); err != nil {
		t.Fatal(err)
	}
	if err := archiver.Flush(context.Background(), func(*kafka.Message) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if archive.batches[0][0].JobID != "from-key" {
		t.Fatalf("job id = %q", archive.batches[0][0].JobID)
	}
}
