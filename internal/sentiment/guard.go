package sentiment

import (
	"context"
	"fmt"

	"github.com/spacesedan/sentiscope/internal/models"
	"golang.org/x/sync/semaphore"
)

// Guard is the single acquisition point for a model that cannot take
// unbounded concurrent calls. With weight 1 every call is serialized.
type Guard struct {
	sem *semaphore.Weighted
}

func NewGuard(weight int64) *Guard {
	if weight < 1 {
		weight = 1
	}
	return &Guard{sem: semaphore.NewWeighted(weight)}
}

func (g *Guard) General(c GeneralClassifier) GeneralClassifier {
	return &guardedGeneral{guard: g, next: c}
}

func (g *Guard) Aspects(e AspectExtractor) AspectExtractor {
	return &guardedAspects{guard: g, next: e}
}

func (g *Guard) acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for inference slot: %w", err)
	}
	return nil
}

type guardedGeneral struct {
	guard *Guard
	next  GeneralClassifier
}

func (g *guardedGeneral) ClassifyGeneral(ctx context.Context, segment string) (models.SegmentSentiment, error) {
	if err := g.guard.acquire(ctx); err != nil {
		return models.SegmentSentiment{}, err
	}
	defer g.guard.sem.Release(1)
	return g.next.ClassifyGeneral(ctx, segment)
}

type guardedAspects struct {
	guard *Guard
	next  AspectExtractor
}

func (g *guardedAspects) ExtractAspects(ctx context.Context, segment string) ([]models.AspectSentiment, error) {
	if err := g.guard.acquire(ctx); err != nil {
		return nil, err
	}
	defer g.guard.sem.Release(1)
	return g.next.ExtractAspects(ctx, segment)
}
