// Package pipeline runs the per-item flow: segment the text, infer each
// segment, aggregate, assemble.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spacesedan/sentiscope/internal/aggregation"
	"github.com/spacesedan/sentiscope/internal/chunking"
	"github.com/spacesedan/sentiscope/internal/models"
	"golang.org/x/sync/errgroup"
)

// Inferer produces the inference for a single segment. *sentiment.Adapter
// is the production implementation.
type Inferer interface {
	Infer(ctx context.Context, segment string) (models.SegmentInference, error)
}

type Analyzer struct {
	segmenter          *chunking.Segmenter
	inferer            Inferer
	itemParallelism    int
	segmentParallelism int
}

type Option func(*Analyzer)

// WithItemParallelism sets how many items of one batch are analyzed at once.
func WithItemParallelism(n int) Option {
	return func(a *Analyzer) { a.itemParallelism = n }
}

// WithSegmentParallelism sets how many segments of one item are inferred at
// once.
func WithSegmentParallelism(n int) Option {
	return func(a *Analyzer) { a.segmentParallelism = n }
}

func NewAnalyzer(segmenter *chunking.Segmenter, inferer Inferer, opts ...Option) *Analyzer {
	a := &Analyzer{
		segmenter:          segmenter,
		inferer:            inferer,
		itemParallelism:    1,
		segmentParallelism: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.itemParallelism < 1 {
		a.itemParallelism = 1
	}
	if a.segmentParallelism < 1 {
		a.segmentParallelism = 1
	}
	return a
}

// AnalyzeBatch returns one result per item in input order. The first
// failure cancels the rest of the batch and is returned alone.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, items []models.InputItem) ([]models.ItemResult, error) {
	start := time.Now()
	results := make([]models.ItemResult, len(items))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.itemParallelism)
	for i := range items {
		idx := i
		item := items[i]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			result, err := a.AnalyzeItem(gCtx, item)
			if err != nil {
				return err
			}
			results[idx] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var inferenceErr *InferenceError
		if errors.As(err, &inferenceErr) {
			slog.Error("[Analyzer] Batch failed",
				slog.String("item_id", inferenceErr.ItemID),
				slog.Int("segment", inferenceErr.Segment),
				slog.String("error", inferenceErr.Err.Error()))
		}
		return nil, err
	}

	slog.Info("[Analyzer] Batch analyzed",
		slog.Int("items", len(items)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// AnalyzeItem segments one item, infers every segment and merges the
// results. Segment results are combined in split order regardless of the
// order they complete in.
func (a *Analyzer) AnalyzeItem(ctx context.Context, item models.InputItem) (models.ItemResult, error) {
	segments := a.segmenter.Segment(item.Text)
	inferences := make([]models.SegmentInference, len(segments))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.segmentParallelism)
	for i := range segments {
		idx := i
		segment := segments[i]
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return &InferenceError{ItemID: item.ID, Segment: idx, Err: err}
			}
			inference, err := a.inferer.Infer(gCtx, segment)
			if err != nil {
				return &InferenceError{ItemID: item.ID, Segment: idx, Err: err}
			}
			inferences[idx] = inference
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ItemResult{}, err
	}

	generals := make([]models.SegmentSentiment, len(inferences))
	perSegment := make([][]models.AspectSentiment, len(inferences))
	for i, inference := range inferences {
		generals[i] = inference.General
		perSegment[i] = inference.Aspects
	}

	general, usedDefault := aggregation.GeneralWithFallback(generals)
	if usedDefault {
		slog.Warn("[Analyzer] Item produced no segment sentiment",
			slog.String("item_id", item.ID))
	}

	slog.Debug("[Analyzer] Item analyzed",
		slog.String("item_id", item.ID),
		slog.Int("segments", len(segments)),
		slog.String("label", general.Label))

	return Assemble(item, general, aggregation.Aspects(perSegment)), nil
}
