package sentiment

import (
	"context"
	"testing"

	"github.com/spacesedan/sentiscope/internal/models"
)

func TestConvertMarkdownToText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text",
			input: "Nothing to strip here",
			want:  "Nothing to strip here",
		},
		{
			name:  "emphasis and link",
			input: "This is **great**, see [the docs](https://example.com/docs)",
			want:  "This is great, see the docs",
		},
		{
			name:  "bare url",
			input: "Visit https://example.com now",
			want:  "Visit now",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertMarkdownToText(tt.input); got != tt.want {
				t.Fatalf("unexpected text: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVaderClassifier(t *testing.T) {
	v := NewVaderClassifier()

	tests := []struct {
		text  string
		label string
	}{
		{text: "I love this phone, it is wonderful and amazing!", label: models.LabelPositive},
		{text: "This is terrible, awful and I hate it.", label: models.LabelNegative},
		{text: "The box is on the table.", label: models.LabelNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := v.ClassifyGeneral(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Label != tt.label {
				t.Fatalf("unexpected label for %q: got %s, want %s", tt.text, got.Label, tt.label)
			}
			if got.Score < 0 || got.Score > 1 {
				t.Fatalf("score %v outside [0,1]", got.Score)
			}
		})
	}
}
