package pipeline

import "github.com/spacesedan/sentiscope/internal/models"

// Assemble pairs the aggregated sentiment with the item it came from.
func Assemble(item models.InputItem, general models.SegmentSentiment, aspects []models.AspectSentiment) models.ItemResult {
	if aspects == nil {
		aspects = []models.AspectSentiment{}
	}
	return models.ItemResult{
		ID:               item.ID,
		Text:             item.Text,
		GeneralSentiment: general,
		AspectSentiment:  aspects,
	}
}
