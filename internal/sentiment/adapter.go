// Package sentiment defines the two inference capabilities the analyzer
// depends on and the adapter that turns their raw output into validated
// per-segment results.
package sentiment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/spacesedan/sentiscope/internal/models"
)

// GeneralClassifier labels one segment with a single sentiment and a
// confidence in [0, 1].
type GeneralClassifier interface {
	ClassifyGeneral(ctx context.Context, segment string) (models.SegmentSentiment, error)
}

// AspectExtractor returns the (aspect, sentiment) pairs found in one segment,
// in the order the extractor produced them.
type AspectExtractor interface {
	ExtractAspects(ctx context.Context, segment string) ([]models.AspectSentiment, error)
}

// NoAspects is an AspectExtractor that never finds anything. It is used when
// aspect extraction is switched off.
type NoAspects struct{}

func (NoAspects) ExtractAspects(context.Context, string) ([]models.AspectSentiment, error) {
	return []models.AspectSentiment{}, nil
}

var ErrMalformedOutput = errors.New("malformed inference output")

type Adapter struct {
	general GeneralClassifier
	aspects AspectExtractor
	timeout time.Duration
	labels  LabelMaps
	cache   Cache

	// backend identity mixed into cache keys
	scope    string
	cacheTag string
}

type AdapterOption func(*Adapter)

// WithTimeout bounds the inference of a single segment, covering both
// capability calls.
func WithTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.timeout = d }
}

func WithLabelMaps(labels LabelMaps) AdapterOption {
	return func(a *Adapter) { a.labels = LabelMaps{}.Merge(labels) }
}

// WithCache stores validated segment results. Cache failures are logged and
// otherwise ignored.
func WithCache(cache Cache) AdapterOption {
	return func(a *Adapter) { a.cache = cache }
}

// WithCacheScope names the backends behind the adapter. Entries cached under
// one scope are never served under another.
func WithCacheScope(scope string) AdapterOption {
	return func(a *Adapter) { a.scope = scope }
}

func NewAdapter(general GeneralClassifier, aspects AspectExtractor, opts ...AdapterOption) *Adapter {
	if aspects == nil {
		aspects = NoAspects{}
	}
	a := &Adapter{
		general: general,
		aspects: aspects,
		labels:  DefaultLabelMaps(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.cacheTag = a.scope + "|" + a.labels.fingerprint()
	return a
}

// Infer runs both capabilities on one segment. Errors are returned as is;
// retrying is left to the caller.
func (a *Adapter) Infer(ctx context.Context, segment string) (models.SegmentInference, error) {
	key := CacheKey(a.cacheTag, segment)
	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("[InferenceAdapter] Cache lookup failed",
				slog.String("error", err.Error()))
		} else if ok {
			return cached, nil
		}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	raw, err := a.general.ClassifyGeneral(ctx, segment)
	if err != nil {
		return models.SegmentInference{}, fmt.Errorf("general sentiment: %w", err)
	}
	general, err := a.normalizeGeneral(raw)
	if err != nil {
		return models.SegmentInference{}, fmt.Errorf("general sentiment: %w", err)
	}

	rawAspects, err := a.aspects.ExtractAspects(ctx, segment)
	if err != nil {
		return models.SegmentInference{}, fmt.Errorf("aspect extraction: %w", err)
	}
	aspects, err := a.normalizeAspects(rawAspects)
	if err != nil {
		return models.SegmentInference{}, fmt.Errorf("aspect extraction: %w", err)
	}

	result := models.SegmentInference{General: general, Aspects: aspects}

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, result); err != nil {
			slog.Warn("[InferenceAdapter] Cache store failed",
				slog.String("error", err.Error()))
		}
	}
	return result, nil
}

func (a *Adapter) normalizeGeneral(raw models.SegmentSentiment) (models.SegmentSentiment, error) {
	label := a.labels.General.Normalize(raw.Label, strings.ToUpper)
	if label == "" {
		return models.SegmentSentiment{}, fmt.Errorf("%w: empty label", ErrMalformedOutput)
	}
	if math.IsNaN(raw.Score) || raw.Score < 0 || raw.Score > 1 {
		return models.SegmentSentiment{}, fmt.Errorf("%w: score %v outside [0,1]", ErrMalformedOutput, raw.Score)
	}
	return models.SegmentSentiment{Label: label, Score: raw.Score}, nil
}

func (a *Adapter) normalizeAspects(raw []models.AspectSentiment) ([]models.AspectSentiment, error) {
	aspects := make([]models.AspectSentiment, 0, len(raw))
	for i, r := range raw {
		aspect := strings.TrimSpace(r.Aspect)
		if aspect == "" {
			return nil, fmt.Errorf("%w: empty aspect at position %d", ErrMalformedOutput, i)
		}
		sentiment := a.labels.Aspect.Normalize(r.Sentiment, strings.ToLower)
		if sentiment == "" {
			return nil, fmt.Errorf("%w: empty sentiment for aspect %q", ErrMalformedOutput, aspect)
		}
		aspects = append(aspects, models.AspectSentiment{Aspect: aspect, Sentiment: sentiment})
	}
	return aspects, nil
}

// CacheKey derives the cache key for a segment under a backend and label
// configuration tag.
func CacheKey(tag, segment string) string {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{0})
	h.Write([]byte(segment))
	return hex.EncodeToString(h.Sum(nil))
}
