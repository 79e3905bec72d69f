package consumers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/spacesedan/sentiscope/internal/clients/kafka_client"
)

const HEALTH_PAUSE = 5 * time.Second

type ConsumerWrapper struct {
	fn     func(ctx context.Context, consumer *kafka.Consumer, health ...*atomic.Bool)
	health []*atomic.Bool
}

func WrapConsumer(fn func(ctx context.Context, consumer *kafka.Consumer, health ...*atomic.Bool), health ...*atomic.Bool) ConsumerWrapper {
	return ConsumerWrapper{
		fn:     fn,
		health: health,
	}
}

func (cw ConsumerWrapper) WithHealthCheck(health *atomic.Bool) ConsumerWrapper {
	cw.health = append(cw.health, health)
	return cw
}

func (cw ConsumerWrapper) Handler() kafka_client.ConsumerFunc {
	return func(ctx context.Context, consumer *kafka.Consumer) {
		cw.fn(ctx, consumer, cw.health...)
	}
}

func allHealthy(health []*atomic.Bool) bool {
	for _, h := range health {
		if h != nil && !h.Load() {
			return false
		}
	}
	return true
}

// waitUntilHealthy blocks while any dependency is reported unhealthy. It
// returns false when ctx ends first.
func waitUntilHealthy(ctx context.Context, component string, health []*atomic.Bool) bool {
	logged := false
	for !allHealthy(health) {
		if !logged {
			slog.Warn("["+component+"] Inference unhealthy, pausing consumption")
			logged = true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(HEALTH_PAUSE):
		}
	}
	if logged {
		slog.Info("[" + component + "] Inference healthy again, resuming")
	}
	return ctx.Err() == nil
}
