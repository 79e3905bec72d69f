package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/sentiscope/internal/clients/kafka_client"
	"github.com/spacesedan/sentiscope/internal/models"
	"github.com/spacesedan/sentiscope/internal/utils"
)

const ARCHIVE_INSERT_ATTEMPTS = 3

type Archiver interface {
	BatchInsertItemResults(ctx context.Context, batches []models.AnalyzedBatch) error
}

type pendingBatch struct {
	batch models.AnalyzedBatch
	key   string
}

// ResultsArchiver buffers analyzed batches and writes them to the archive in
// groups, committing each source message only after its batch is stored.
type ResultsArchiver struct {
	archive Archiver
	buffer  *utils.BatchBuffer[pendingBatch]
	tracker *utils.MessageTracker
	retry   time.Duration
}

func NewResultsArchiver(archive Archiver, batchSize int) *ResultsArchiver {
	return &ResultsArchiver{
		archive: archive,
		buffer:  utils.NewBatchBuffer[pendingBatch](batchSize),
		tracker: &utils.MessageTracker{},
		retry:   time.Second,
	}
}

// Add buffers the batch carried by msg and reports whether a flush is due.
func (r *ResultsArchiver) Add(msg *kafka.Message) (bool, error) {
	var batch models.AnalyzedBatch
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return false, fmt.Errorf("decode analyzed batch: %w", err)
	}
	if batch.JobID == "" {
		batch.JobID = string(msg.Key)
	}

	key := trackingKey(msg)
	r.tracker.Track(key, msg)
	return r.buffer.Add(pendingBatch{batch: batch, key: key}), nil
}

func (r *ResultsArchiver) Pending() int {
	return r.buffer.Size()
}

// Flush writes everything buffered and commits the messages it came from.
// On failure the batches go back into the buffer for the next flush.
func (r *ResultsArchiver) Flush(ctx context.Context, commit func(*kafka.Message) error) error {
	pending := r.buffer.GetAndClear()
	if len(pending) == 0 {
		return nil
	}

	batches := make([]models.AnalyzedBatch, len(pending))
	for i, p := range pending {
		batches[i] = p.batch
	}

	err := r.insertWithRetry(ctx, batches)
	if err != nil {
		for _, p := range pending {
			r.buffer.Add(p)
		}
		return err
	}

	for _, p := range pending {
		if msg, ok := r.tracker.Take(p.key); ok {
			if err := commit(msg); err != nil {
				slog.Warn("[ResultsArchiveConsumer] Failed to commit offset",
					slog.String("error", err.Error()))
			}
		}
	}

	slog.Info("[ResultsArchiveConsumer] Archived analyzed batches", slog.Int("batches", len(batches)))
	return nil
}

func (r *ResultsArchiver) insertWithRetry(ctx context.Context, batches []models.AnalyzedBatch) error {
	var err error
	for attempt := 1; attempt <= ARCHIVE_INSERT_ATTEMPTS; attempt++ {
		if err = r.archive.BatchInsertItemResults(ctx, batches); err == nil {
			return nil
		}
		slog.Error("[ResultsArchiveConsumer] Failed to write results to DB",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt))

		if attempt == ARCHIVE_INSERT_ATTEMPTS {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retry):
		}
	}
	return err
}

func trackingKey(msg *kafka.Message) string {
	return fmt.Sprintf("%d:%d", msg.TopicPartition.Partition, msg.TopicPartition.Offset)
}

func StartResultsArchiveConsumer(archiver *ResultsArchiver) kafka_client.ConsumerFunc {
	return func(ctx context.Context, consumer *kafka.Consumer) {
		iterator := kafka_client.NewKafkaMessageIterator(ctx, consumer)
		committer := kafka_client.NewCommitHandler(ctx, consumer)

		messages := make(chan *kafka.Message)
		go func(out chan<- *kafka.Message) {
			defer close(out)
			for {
				msg, err := iterator.Next()
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					handleConsumerError(err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(messages)

		ticker := time.NewTicker(utils.BATCH_TIMEOUT)
		defer ticker.Stop()

		flush := func(ctx context.Context) {
			if err := archiver.Flush(ctx, committer.Commit); err != nil {
				handleConsumerError(err)
			}
		}

		slog.Info("[ResultsArchiveConsumer] Listening for messages...")

		for {
			select {
			case <-ctx.Done():
				slog.Warn("[ResultsArchiveConsumer] Stopping consumer...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				flush(shutdownCtx)
				cancel()
				return
			case <-ticker.C:
				flush(ctx)
			case msg, ok := <-messages:
				if !ok {
					messages = nil
					continue
				}
				full, err := archiver.Add(msg)
				if err != nil {
					handleConsumerError(err)
					if err := committer.Commit(msg); err != nil {
						handleConsumerError(err)
					}
					continue
				}
				if full {
					flush(ctx)
				}
			}
		}
	}
}
