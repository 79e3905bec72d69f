package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spacesedan/sentiscope/internal/clients/kafka_client"
	"github.com/spacesedan/sentiscope/internal/models"
	"github.com/spacesedan/sentiscope/internal/pipeline"
)

const MAX_PUBLISH_BACKOFF = 30 * time.Second

type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, items []models.InputItem) ([]models.ItemResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// JobTracker deduplicates redelivered jobs. Optional.
type JobTracker interface {
	IsJobProcessed(ctx context.Context, jobID string) bool
	MarkJobProcessed(ctx context.Context, jobID string) error
}

// JobProcessor turns one analyze-requests message into either an analyzed
// batch or a failed job.
type JobProcessor struct {
	analyzer  BatchAnalyzer
	publisher Publisher
	tracker   JobTracker
	maxItems  int
	now       func() time.Time

	// initial wait between publish attempts
	retryDelay time.Duration
}

func NewJobProcessor(analyzer BatchAnalyzer, publisher Publisher, tracker JobTracker, maxItems int) *JobProcessor {
	return &JobProcessor{
		analyzer:   analyzer,
		publisher:  publisher,
		tracker:    tracker,
		maxItems:   maxItems,
		now:        time.Now,
		retryDelay: kafka_client.RETRY_DELAY,
	}
}

// Process handles one message payload. Publishing is retried until it
// succeeds, so a returned error only happens once ctx is done and means the
// message must not be committed.
func (p *JobProcessor) Process(ctx context.Context, payload []byte) error {
	var job models.AnalyzeJob
	if err := json.Unmarshal(payload, &job); err != nil {
		slog.Warn("[AnalyzeRequestConsumer] Dropping undecodable job",
			slog.String("error", err.Error()))
		return p.fail(ctx, models.FailedJob{Error: fmt.Sprintf("invalid job payload: %v", err)})
	}

	if job.JobID == "" {
		job.JobID = gonanoid.Must()
	}

	if p.tracker != nil && p.tracker.IsJobProcessed(ctx, job.JobID) {
		slog.Info("[AnalyzeRequestConsumer] Skipping already processed job",
			slog.String("job_id", job.JobID))
		return nil
	}

	if p.maxItems > 0 && len(job.Items) > p.maxItems {
		return p.fail(ctx, models.FailedJob{
			JobID: job.JobID,
			Error: fmt.Sprintf("job has %d items, limit is %d", len(job.Items), p.maxItems),
			Items: job.Items,
		})
	}

	start := time.Now()
	results, err := p.analyzer.AnalyzeBatch(ctx, job.Items)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failed := models.FailedJob{JobID: job.JobID, Error: err.Error(), Items: job.Items}
		var inferenceErr *pipeline.InferenceError
		if errors.As(err, &inferenceErr) {
			failed.ItemID = inferenceErr.ItemID
		}
		return p.fail(ctx, failed)
	}

	batch := models.AnalyzedBatch{
		JobID:      job.JobID,
		AnalyzedAt: p.now(),
		Results:    results,
	}
	if err := p.publish(ctx, kafka_client.KAFKA_TOPIC_ANALYZE_RESULTS, job.JobID, batch); err != nil {
		return fmt.Errorf("publish results for job %s: %w", job.JobID, err)
	}

	if p.tracker != nil {
		if err := p.tracker.MarkJobProcessed(ctx, job.JobID); err != nil {
			slog.Warn("[AnalyzeRequestConsumer] Failed to mark job processed",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()))
		}
	}

	slog.Info("[AnalyzeRequestConsumer] Job analyzed",
		slog.String("job_id", job.JobID),
		slog.Int("items", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (p *JobProcessor) fail(ctx context.Context, failed models.FailedJob) error {
	failed.FailedAt = p.now()
	slog.Error("[AnalyzeRequestConsumer] Job failed",
		slog.String("job_id", failed.JobID),
		slog.String("item_id", failed.ItemID),
		slog.String("error", failed.Error))

	if err := p.publish(ctx, kafka_client.KAFKA_TOPIC_ANALYZE_FAILED, failed.JobID, failed); err != nil {
		return fmt.Errorf("publish failed job %s: %w", failed.JobID, err)
	}
	return nil
}

// publish blocks until the broker accepts value or ctx ends. Moving on to the
// next message would let its commit skip this one.
func (p *JobProcessor) publish(ctx context.Context, topic, key string, value any) error {
	backoff := p.retryDelay
	for attempt := 1; ; attempt++ {
		err := p.publisher.Publish(ctx, topic, key, value)
		if err == nil {
			return nil
		}

		slog.Warn("[AnalyzeRequestConsumer] Publish failed, retrying...",
			slog.String("topic", topic),
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, MAX_PUBLISH_BACKOFF)
	}
}

// StartAnalyzeRequestConsumer reads jobs until ctx ends, pausing while any
// health flag is false.
func StartAnalyzeRequestConsumer(processor *JobProcessor) func(context.Context, *kafka.Consumer, ...*atomic.Bool) {
	return func(ctx context.Context, consumer *kafka.Consumer, health ...*atomic.Bool) {
		iterator := kafka_client.NewKafkaMessageIterator(ctx, consumer)
		committer := kafka_client.NewCommitHandler(ctx, consumer)

		slog.Info("[AnalyzeRequestConsumer] Listening for messages...")

		for {
			if !waitUntilHealthy(ctx, "AnalyzeRequestConsumer", health) {
				slog.Warn("[AnalyzeRequestConsumer] Stopping consumer...")
				return
			}

			msg, err := iterator.Next()
			if err != nil {
				if ctx.Err() != nil {
					slog.Warn("[AnalyzeRequestConsumer] Stopping consumer...")
					return
				}
				handleConsumerError(err)
				continue
			}

			// An error here means ctx ended mid-publish. The message stays
			// uncommitted and is redelivered to the next consumer.
			if err := processor.Process(ctx, msg.Value); err != nil {
				handleConsumerError(err)
				slog.Warn("[AnalyzeRequestConsumer] Stopping consumer...")
				return
			}

			if err := committer.Commit(msg); err != nil {
				handleConsumerError(err)
			}
		}
	}
}

func handleConsumerError(err error) {
	if err == nil {
		return
	}
	slog.Error("[Consumer] Kafka Consumer Error",
		slog.String("error", err.Error()))
}
