package sentiment

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
	"github.com/spacesedan/sentiscope/internal/models"
)

const VADER_THRESHOLD = 0.20

var (
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern          = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
)

func RemoveLinks(input string) string {
	input = markdownLinkPattern.ReplaceAllString(input, "$1") // Keep only the text
	return urlPattern.ReplaceAllString(input, "")
}

// ConvertMarkdownToText renders markdown and collapses it to single spaced
// plain text. The HTML tags blackfriday emits are stripped along with links.
func ConvertMarkdownToText(input string) string {
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	plainText := strings.Join(strings.Fields(htmlTagPattern.ReplaceAllString(string(output), "")), " ")

	return strings.Join(strings.Fields(RemoveLinks(plainText)), " ")
}

// VaderClassifier is a lexicon based GeneralClassifier. It needs no model
// files, which makes it the fallback backend when no transformer is
// available.
type VaderClassifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVaderClassifier() *VaderClassifier {
	return &VaderClassifier{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VaderClassifier) ClassifyGeneral(ctx context.Context, segment string) (models.SegmentSentiment, error) {
	if err := ctx.Err(); err != nil {
		return models.SegmentSentiment{}, err
	}
	score, label := v.AnalyzeWithVADER(segment)

	// compound is in [-1, 1]; confidence is its distance from the
	// neutral band in the label's direction
	confidence := math.Abs(score)
	if label == models.LabelNeutral {
		confidence = 1 - confidence
	}

	return models.SegmentSentiment{Label: label, Score: confidence}, nil
}

func (v *VaderClassifier) AnalyzeWithVADER(text string) (float64, string) {
	plainText := ConvertMarkdownToText(text)

	sentiment := v.analyzer.PolarityScores(plainText)
	score := sentiment.Compound

	var label string
	if score >= VADER_THRESHOLD {
		label = models.LabelPositive
	} else if score <= -VADER_THRESHOLD {
		label = models.LabelNegative
	} else {
		label = models.LabelNeutral
	}

	return score, label
}
