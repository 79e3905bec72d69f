package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const HEALTHCHECK_INTERVAL = 15 * time.Second

// Probe reports whether an inference backend can currently serve requests.
type Probe func(ctx context.Context) bool

// MonitorInferenceHealth runs probe immediately and then on every tick,
// storing the outcome in healthy until ctx ends.
func MonitorInferenceHealth(ctx context.Context, probe Probe, healthy *atomic.Bool, interval time.Duration) {
	if interval <= 0 {
		interval = HEALTHCHECK_INTERVAL
	}

	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		isHealthy := probe(probeCtx)
		if was := healthy.Swap(isHealthy); was != isHealthy {
			if isHealthy {
				slog.Info("[HealthCheck] Inference backend is healthy")
			} else {
				slog.Warn("[HealthCheck] Inference backend is unhealthy")
			}
		}
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// AllOf combines probes; the result is healthy only when every probe is.
func AllOf(probes ...Probe) Probe {
	return func(ctx context.Context) bool {
		for _, p := range probes {
			if p != nil && !p(ctx) {
				return false
			}
		}
		return true
	}
}
