package aggregation

import (
	"reflect"
	"testing"

	"github.com/spacesedan/sentiscope/internal/models"
)

func TestGeneral(t *testing.T) {
	tests := []struct {
		name  string
		input []models.SegmentSentiment
		want  models.SegmentSentiment
	}{
		{
			name:  "single segment",
			input: []models.SegmentSentiment{{Label: "POSITIVE", Score: 0.95}},
			want:  models.SegmentSentiment{Label: "POSITIVE", Score: 0.95},
		},
		{
			name: "highest score wins",
			input: []models.SegmentSentiment{
				{Label: "POSITIVE", Score: 0.6},
				{Label: "NEGATIVE", Score: 0.99},
				{Label: "POSITIVE", Score: 0.7},
			},
			want: models.SegmentSentiment{Label: "NEGATIVE", Score: 0.99},
		},
		{
			name: "tie goes to first occurrence",
			input: []models.SegmentSentiment{
				{Label: "POSITIVE", Score: 0.7},
				{Label: "NEGATIVE", Score: 0.9},
				{Label: "POSITIVE", Score: 0.9},
			},
			want: models.SegmentSentiment{Label: "NEGATIVE", Score: 0.9},
		},
		{
			name: "all zero keeps the first",
			input: []models.SegmentSentiment{
				{Label: "NEUTRAL", Score: 0},
				{Label: "POSITIVE", Score: 0},
			},
			want: models.SegmentSentiment{Label: "NEUTRAL", Score: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := General(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected aggregate: got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGeneralEmptyUsesDefault(t *testing.T) {
	for _, input := range [][]models.SegmentSentiment{nil, {}} {
		got, usedDefault := GeneralWithFallback(input)
		if !usedDefault {
			t.Fatal("expected default to be used")
		}
		want := models.SegmentSentiment{Label: "NEUTRAL", Score: 0.5}
		if got != want {
			t.Fatalf("unexpected default: got %+v, want %+v", got, want)
		}
		if General(input) != want {
			t.Fatalf("General did not return default for %v", input)
		}
	}

	if _, usedDefault := GeneralWithFallback([]models.SegmentSentiment{{Label: "POSITIVE", Score: 0.1}}); usedDefault {
		t.Fatal("default reported for non-empty input")
	}
}

func TestAspects(t *testing.T) {
	a1 := models.AspectSentiment{Aspect: "battery", Sentiment: "positive"}
	a2 := models.AspectSentiment{Aspect: "screen", Sentiment: "negative"}
	a3 := models.AspectSentiment{Aspect: "battery", Sentiment: "positive"}

	tests := []struct {
		name  string
		input [][]models.AspectSentiment
		want  []models.AspectSentiment
	}{
		{
			name:  "flattens in segment order",
			input: [][]models.AspectSentiment{{a1, a2}, {a3}},
			want:  []models.AspectSentiment{a1, a2, a3},
		},
		{
			name:  "keeps duplicates across segments",
			input: [][]models.AspectSentiment{{a1}, {a3}},
			want:  []models.AspectSentiment{a1, a3},
		},
		{
			name:  "empty segments in between",
			input: [][]models.AspectSentiment{{}, {a2}, nil, {a1}},
			want:  []models.AspectSentiment{a2, a1},
		},
		{
			name:  "no aspects is an empty slice",
			input: [][]models.AspectSentiment{{}, nil},
			want:  []models.AspectSentiment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aspects(tt.input)
			if got == nil {
				t.Fatal("expected non-nil slice")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected aspects: got %+v, want %+v", got, tt.want)
			}
		})
	}
}
