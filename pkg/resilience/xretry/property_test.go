package xretry

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/omeyang/fetchguard/pkg/resilience/xclassify"
)

func categoryGen() gopter.Gen {
	cats := xclassify.Categories()
	values := make([]any, len(cats))
	for i, c := range cats {
		values[i] = c
	}
	return gen.OneConstOf(values...)
}

func TestNextDelayProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("delay stays within [0, max+jitter]", prop.ForAll(
		func(attempt int, baseMs, spanMs, jitterMs int64, c xclassify.Category) bool {
			cfg := FromMillis(3, baseMs, baseMs+spanMs, jitterMs)
			d := NextDelay(attempt, c, cfg)
			return d >= 0 && d <= cfg.MaxDelay+cfg.Jitter
		},
		gen.IntRange(-10, 200),
		gen.Int64Range(1, 10_000),
		gen.Int64Range(0, 600_000),
		gen.Int64Range(0, 5_000),
		categoryGen(),
	))

	properties.Property("deterministic part is monotonic in attempt", prop.ForAll(
		func(attempt int, baseMs, spanMs int64, c xclassify.Category) bool {
			cfg := FromMillis(3, baseMs, baseMs+spanMs, 0)
			return NextDelay(attempt, c, cfg) <= NextDelay(attempt+1, c, cfg)
		},
		gen.IntRange(0, 100),
		gen.Int64Range(1, 10_000),
		gen.Int64Range(0, 600_000),
		categoryGen(),
	))

	properties.Property("rate limit is three times the transient delay before clamping", prop.ForAll(
		func(attempt int, baseMs int64) bool {
			cfg := RetryConfig{BaseDelay: time.Duration(baseMs) * time.Millisecond, MaxDelay: 24 * time.Hour}
			return NextDelay(attempt, xclassify.RateLimit, cfg) == 3*NextDelay(attempt, xclassify.Transient, cfg)
		},
		gen.IntRange(0, 8),
		gen.Int64Range(1, 1_000),
	))

	properties.TestingRun(t)
}
