package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spacesedan/sentiscope/internal/models"
)

const (
	DEFAULT_RESULTS_TABLE_NAME = "AnalyzedItems"
	MAX_BATCH_WRITE_SIZE       = 25
	MAX_UNPROCESSED_RETRIES    = 3
	RESULT_TTL                 = 7 * 24 * time.Hour
)

// BatchWriter is the slice of the DynamoDB API the archive needs.
type BatchWriter interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

type ResultArchive struct {
	client  BatchWriter
	table   string
	backoff time.Duration
	now     func() time.Time
}

func NewResultArchive(client BatchWriter, table string) *ResultArchive {
	if table == "" {
		table = DEFAULT_RESULTS_TABLE_NAME
	}
	return &ResultArchive{
		client:  client,
		table:   table,
		backoff: 500 * time.Millisecond,
		now:     time.Now,
	}
}

// archivedResult is the stored shape of one analyzed item. Items are keyed
// by job and position since caller ids are neither required nor unique.
type archivedResult struct {
	JobID    string `dynamodbav:"job_id"`
	Position int    `dynamodbav:"position"`
	models.ItemResult
	CreatedAt int64 `dynamodbav:"created_at"`
	TTL       int64 `dynamodbav:"ttl"`
}

func (a *ResultArchive) ResultToDynamoDBItem(jobID string, position int, result models.ItemResult) (map[string]types.AttributeValue, error) {
	now := a.now()
	if result.AspectSentiment == nil {
		result.AspectSentiment = []models.AspectSentiment{}
	}
	return attributevalue.MarshalMap(archivedResult{
		JobID:      jobID,
		Position:   position,
		ItemResult: result,
		CreatedAt:  now.Unix(),
		TTL:        now.Add(RESULT_TTL).Unix(),
	})
}

// BatchInsertItemResults stores every result of every batch, 25 items per
// request, retrying whatever DynamoDB reports as unprocessed.
func (a *ResultArchive) BatchInsertItemResults(ctx context.Context, batches []models.AnalyzedBatch) error {
	// A redelivered batch repeats its keys, and DynamoDB rejects a request
	// that writes the same key twice. The last copy wins.
	type itemKey struct {
		jobID    string
		position int
	}
	index := make(map[itemKey]int)
	writeRequests := make([]types.WriteRequest, 0)
	for _, batch := range batches {
		for position, result := range batch.Results {
			item, err := a.ResultToDynamoDBItem(batch.JobID, position, result)
			if err != nil {
				return fmt.Errorf("[DynamoDB] Failed to marshal result %d of job %s: %w", position, batch.JobID, err)
			}
			request := types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}

			key := itemKey{batch.JobID, position}
			if i, ok := index[key]; ok {
				writeRequests[i] = request
				continue
			}
			index[key] = len(writeRequests)
			writeRequests = append(writeRequests, request)
		}
	}

	for i := 0; i < len(writeRequests); i += MAX_BATCH_WRITE_SIZE {
		if err := ctx.Err(); err != nil {
			slog.Warn("[DynamoDB] context canceled")
			return err
		}

		end := i + MAX_BATCH_WRITE_SIZE
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		if err := a.writeChunk(ctx, writeRequests[i:end]); err != nil {
			return err
		}
	}

	slog.Info("[DynamoDB] Successfully stored analyzed items",
		slog.Int("items", len(writeRequests)),
		slog.String("table", a.table))
	return nil
}

func (a *ResultArchive) writeChunk(ctx context.Context, requests []types.WriteRequest) error {
	out, err := a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{a.table: requests},
	})
	if err != nil {
		return fmt.Errorf("[DynamoDB] Failed to batch write analyzed items: %w", err)
	}

	retryCount := 0
	backoff := a.backoff
	for len(out.UnprocessedItems) > 0 && retryCount < MAX_UNPROCESSED_RETRIES {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		slog.Warn("[DynamoDB] Retrying unprocessed items...",
			slog.Int("attempt", retryCount+1),
			slog.Int("remaining", len(out.UnprocessedItems[a.table])))

		out, err = a.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: out.UnprocessedItems,
		})
		if err != nil {
			return fmt.Errorf("[DynamoDB] Retry error: %w", err)
		}
		retryCount++
	}

	if remaining := len(out.UnprocessedItems[a.table]); remaining > 0 {
		return fmt.Errorf("[DynamoDB] %d items were not written after %d retries", remaining, MAX_UNPROCESSED_RETRIES)
	}
	return nil
}
