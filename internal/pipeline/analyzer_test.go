package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spacesedan/sentiscope/internal/chunking"
	"github.com/spacesedan/sentiscope/internal/models"
	"github.com/spacesedan/sentiscope/internal/sentiment"
)

type inferFunc func(ctx context.Context, segment string) (models.SegmentInference, error)

func (f inferFunc) Infer(ctx context.Context, segment string) (models.SegmentInference, error) {
	return f(ctx, segment)
}

// jitter sleeps for a few milliseconds derived from the segment so that
// parallel runs complete out of order.
func jitter(segment string) {
	h := fnv.New32a()
	h.Write([]byte(segment))
	time.Sleep(time.Duration(h.Sum32()%7) * time.Millisecond)
}

type fixedGeneral models.SegmentSentiment

func (f fixedGeneral) ClassifyGeneral(context.Context, string) (models.SegmentSentiment, error) {
	return models.SegmentSentiment(f), nil
}

type fixedAspects []models.AspectSentiment

func (f fixedAspects) ExtractAspects(context.Context, string) ([]models.AspectSentiment, error) {
	return f, nil
}

func TestAnalyzeEndToEnd(t *testing.T) {
	adapter := sentiment.NewAdapter(
		fixedGeneral{Label: "POSITIVE", Score: 0.95},
		fixedAspects{
			{Aspect: "battery life", Sentiment: "positive"},
			{Aspect: "screen", Sentiment: "negative"},
		},
	)
	analyzer := NewAnalyzer(chunking.NewSegmenter(100, chunking.WordCounter{}), adapter)

	got, err := analyzer.AnalyzeBatch(context.Background(), []models.InputItem{
		{ID: "x", Text: "Great battery life. Bad screen though."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []models.ItemResult{{
		ID:               "x",
		Text:             "Great battery life. Bad screen though.",
		GeneralSentiment: models.SegmentSentiment{Label: "POSITIVE", Score: 0.95},
		AspectSentiment: []models.AspectSentiment{
			{Aspect: "battery life", Sentiment: "positive"},
			{Aspect: "screen", Sentiment: "negative"},
		},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected results:\n got  %+v\n want %+v", got, want)
	}
}

func TestAnalyzeItemAggregatesSegmentsInOrder(t *testing.T) {
	scores := map[string]float64{
		"First part is fine.": 0.7,
		"Second is awful.":    0.9,
		"Third is great.":     0.9,
	}
	labels := map[string]string{
		"First part is fine.": "POSITIVE",
		"Second is awful.":    "NEGATIVE",
		"Third is great.":     "POSITIVE",
	}
	inferer := inferFunc(func(_ context.Context, segment string) (models.SegmentInference, error) {
		jitter(segment)
		return models.SegmentInference{
			General: models.SegmentSentiment{Label: labels[segment], Score: scores[segment]},
			Aspects: []models.AspectSentiment{
				{Aspect: segment + "/a", Sentiment: "positive"},
				{Aspect: segment + "/b", Sentiment: "negative"},
			},
		}, nil
	})

	// a budget of 3 words puts each sentence in its own segment
	analyzer := NewAnalyzer(chunking.NewSegmenter(3, nil), inferer, WithSegmentParallelism(3))
	item := models.InputItem{ID: "multi", Text: "First part is fine. Second is awful. Third is great."}

	for run := 0; run < 10; run++ {
		got, err := analyzer.AnalyzeItem(context.Background(), item)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if want := (models.SegmentSentiment{Label: "NEGATIVE", Score: 0.9}); got.GeneralSentiment != want {
			t.Fatalf("unexpected general sentiment: got %+v, want %+v", got.GeneralSentiment, want)
		}

		var aspects []string
		for _, a := range got.AspectSentiment {
			aspects = append(aspects, a.Aspect)
		}
		want := []string{
			"First part is fine./a", "First part is fine./b",
			"Second is awful./a", "Second is awful./b",
			"Third is great./a", "Third is great./b",
		}
		if !reflect.DeepEqual(aspects, want) {
			t.Fatalf("aspects out of order: got %q, want %q", aspects, want)
		}
	}
}

func TestAnalyzeBatchPreservesOrder(t *testing.T) {
	inferer := inferFunc(func(_ context.Context, segment string) (models.SegmentInference, error) {
		jitter(segment)
		return models.SegmentInference{
			General: models.SegmentSentiment{Label: "POSITIVE", Score: 0.5},
			Aspects: []models.AspectSentiment{},
		}, nil
	})
	analyzer := NewAnalyzer(chunking.NewSegmenter(5, nil), inferer,
		WithItemParallelism(8), WithSegmentParallelism(4))

	items := make([]models.InputItem, 50)
	for i := range items {
		items[i] = models.InputItem{
			ID:   fmt.Sprintf("item-%d", i),
			Text: strings.Repeat(fmt.Sprintf("Sentence %d here. ", i), i%4+1),
		}
	}

	results, err := analyzer.AnalyzeBatch(context.Background(), items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if r.ID != items[i].ID || r.Text != items[i].Text {
			t.Fatalf("result %d belongs to %q, expected %q", i, r.ID, items[i].ID)
		}
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	var seen []string
	inferer := inferFunc(func(_ context.Context, segment string) (models.SegmentInference, error) {
		seen = append(seen, segment)
		return models.SegmentInference{General: models.SegmentSentiment{Label: "NEUTRAL", Score: 0.99}}, nil
	})
	analyzer := NewAnalyzer(chunking.NewSegmenter(10, nil), inferer)

	got, err := analyzer.AnalyzeItem(context.Background(), models.InputItem{ID: "empty", Text: ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{""}) {
		t.Fatalf("expected a single empty segment, got %q", seen)
	}
	if got.GeneralSentiment.Score != 0.99 {
		t.Fatalf("expected the classifier result, got %+v", got.GeneralSentiment)
	}
	if got.AspectSentiment == nil {
		t.Fatal("expected empty non-nil aspects")
	}
}

func TestAnalyzeBatchFailsWithItemID(t *testing.T) {
	boom := errors.New("model crashed")
	inferer := inferFunc(func(_ context.Context, segment string) (models.SegmentInference, error) {
		if strings.Contains(segment, "poison") {
			return models.SegmentInference{}, boom
		}
		return models.SegmentInference{General: models.SegmentSentiment{Label: "POSITIVE", Score: 1}}, nil
	})
	analyzer := NewAnalyzer(chunking.NewSegmenter(2, nil), inferer)

	results, err := analyzer.AnalyzeBatch(context.Background(), []models.InputItem{
		{ID: "ok", Text: "All good."},
		{ID: "bad", Text: "Fine start. Then poison arrives."},
		{ID: "never", Text: "Not reached."},
	})
	if results != nil {
		t.Fatalf("expected no partial results, got %+v", results)
	}

	var inferenceErr *InferenceError
	if !errors.As(err, &inferenceErr) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if inferenceErr.ItemID != "bad" || inferenceErr.Segment != 1 {
		t.Fatalf("unexpected failure location: item %q segment %d", inferenceErr.ItemID, inferenceErr.Segment)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	if inferenceErr.Timeout() {
		t.Fatal("model failure reported as timeout")
	}
	if !strings.Contains(err.Error(), `"bad"`) {
		t.Fatalf("error does not name the item: %v", err)
	}
}

func TestInferenceErrorTimeout(t *testing.T) {
	err := &InferenceError{ItemID: "slow", Err: fmt.Errorf("general sentiment: %w", context.DeadlineExceeded)}
	if !err.Timeout() {
		t.Fatal("expected deadline to be reported as timeout")
	}
}

func TestAssemble(t *testing.T) {
	item := models.InputItem{ID: "1", Text: "hello"}
	general := models.SegmentSentiment{Label: "POSITIVE", Score: 0.8}

	got := Assemble(item, general, nil)
	if got.ID != "1" || got.Text != "hello" || got.GeneralSentiment != general {
		t.Fatalf("unexpected result: %+v", got)
	}
	if got.AspectSentiment == nil || len(got.AspectSentiment) != 0 {
		t.Fatalf("expected empty aspects, got %#v", got.AspectSentiment)
	}
}
