// Package aggregation merges per-segment inference results into one result
// per input item.
package aggregation

import (
	"log/slog"

	"github.com/spacesedan/sentiscope/internal/models"
)

// DefaultSentiment stands in when an item reaches aggregation without any
// segment results. The segmenter always yields at least one segment, so this
// only shows up if that guarantee is broken upstream.
var DefaultSentiment = models.SegmentSentiment{
	Label: models.LabelNeutral,
	Score: 0.5,
}

// General returns the segment sentiment with the highest score. Ties go to
// the earliest segment.
func General(sentiments []models.SegmentSentiment) models.SegmentSentiment {
	result, _ := GeneralWithFallback(sentiments)
	return result
}

// GeneralWithFallback is General that also reports whether DefaultSentiment
// was substituted for an empty input.
func GeneralWithFallback(sentiments []models.SegmentSentiment) (models.SegmentSentiment, bool) {
	if len(sentiments) == 0 {
		slog.Warn("[Aggregator] No segment sentiments to aggregate, using default",
			slog.String("label", DefaultSentiment.Label),
			slog.Float64("score", DefaultSentiment.Score))
		return DefaultSentiment, true
	}

	best := sentiments[0]
	for _, s := range sentiments[1:] {
		if s.Score > best.Score {
			best = s
		}
	}
	return best, false
}

// Aspects flattens per-segment aspects in segment order. Nothing is merged,
// deduplicated or re-scored. The result is never nil.
func Aspects(perSegment [][]models.AspectSentiment) []models.AspectSentiment {
	total := 0
	for _, aspects := range perSegment {
		total += len(aspects)
	}

	flat := make([]models.AspectSentiment, 0, total)
	for _, aspects := range perSegment {
		flat = append(flat, aspects...)
	}
	return flat
}
