package sample

import (
	"fmt"
	"math/rand"

	"github.com/danthegoodman1/adaptree/value"
)

// TargetSampleBytes is how much raw input a sample should represent.
const TargetSampleBytes = int64(1) << 30

// SamplingRate picks the rate that keeps roughly TargetSampleBytes of a dataset.
func SamplingRate(totalBytes int64) float64 {
	if totalBytes <= TargetSampleBytes {
		return 1.0
	}
	return float64(TargetSampleBytes) / float64(totalBytes)
}

// Bernoulli draws each tuple from next into a new Set with probability rate and
// returns the set along with how many tuples were seen in total.
func Bernoulli(types []value.AttributeType, next func() (value.Tuple, bool, error), rate float64, rng *rand.Rand) (*Set, int64, error) {
	s := New(types)
	var seen int64
	for {
		tuple, ok, err := next()
		if err != nil {
			return nil, seen, fmt.Errorf("error reading tuple %d: %w", seen, err)
		}
		if !ok {
			return s, seen, nil
		}
		seen++
		if rate < 1 && rng.Float64() >= rate {
			continue
		}
		if err := s.Insert(tuple); err != nil {
			return nil, seen, fmt.Errorf("error inserting tuple %d: %w", seen, err)
		}
	}
}
