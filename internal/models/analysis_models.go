package models

// InputItem is one piece of caller supplied text. ID is opaque to the
// service and only echoed back.
type InputItem struct {
	ID   string `json:"id" validate:"max=256"`
	Text string `json:"value"`
}

type SegmentSentiment struct {
	Label string  `json:"label" dynamodbav:"label"`
	Score float64 `json:"score" dynamodbav:"score"`
}

type AspectSentiment struct {
	Aspect    string `json:"aspect" dynamodbav:"aspect"`
	Sentiment string `json:"sentiment" dynamodbav:"sentiment"`
}

// SegmentInference is what the inference adapter produces for a single
// segment: exactly one general sentiment and zero or more aspects.
type SegmentInference struct {
	General SegmentSentiment  `json:"general"`
	Aspects []AspectSentiment `json:"aspects"`
}

type ItemResult struct {
	ID               string            `json:"id" dynamodbav:"item_id"`
	Text             string            `json:"text" dynamodbav:"text"`
	GeneralSentiment SegmentSentiment  `json:"general_sentiment" dynamodbav:"general_sentiment"`
	AspectSentiment  []AspectSentiment `json:"aspect_sentiment" dynamodbav:"aspect_sentiment"`
}

const (
	LabelPositive = "POSITIVE"
	LabelNegative = "NEGATIVE"
	LabelNeutral  = "NEUTRAL"
)

const (
	AspectPositive = "positive"
	AspectNegative = "negative"
	AspectNeutral  = "neutral"
)
