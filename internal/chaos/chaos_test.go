package chaos

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatency(t *testing.T) {
	tests := []struct {
		name        string
		seconds     float64
		probability float64
		want        time.Duration
	}{
		{name: "always", seconds: 1.5, probability: 1.0, want: 1500 * time.Millisecond},
		{name: "never", seconds: 1.5, probability: 0.0, want: 0},
		{name: "no timeout configured", seconds: 0, probability: 1.0, want: 0},
		{name: "negative timeout", seconds: -1, probability: 1.0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngineWithSource(rand.NewSource(1))
			for i := 0; i < 50; i++ {
				assert.Equal(t, tt.want, e.Latency(tt.seconds, tt.probability))
			}
		})
	}
}

func TestLatencyPartialProbability(t *testing.T) {
	e := NewEngineWithSource(rand.NewSource(42))

	var delayed int
	for i := 0; i < 1000; i++ {
		if e.Latency(1, 0.3) > 0 {
			delayed++
		}
	}

	assert.Greater(t, delayed, 200)
	assert.Less(t, delayed, 400)
}

func TestStallUsesSleeper(t *testing.T) {
	e := NewEngineWithSource(rand.NewSource(1))

	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	assert.Equal(t, 2*time.Second, e.Stall(context.Background(), 2, 1))
	assert.Equal(t, time.Duration(0), e.Stall(context.Background(), 2, 0))
	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}
