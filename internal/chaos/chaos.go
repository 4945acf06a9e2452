package chaos

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Engine decides whether a matched call should be delayed to simulate a slow
// backend, and performs the delay.
type Engine struct {
	mu    sync.Mutex
	rand  *rand.Rand
	sleep func(context.Context, time.Duration)
}

// NewEngine creates a new instance of the chaos engine
func NewEngine() *Engine {
	return NewEngineWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewEngineWithSource creates an engine drawing from src, so tests can pin the
// sequence of draws.
func NewEngineWithSource(src rand.Source) *Engine {
	return &Engine{
		rand:  rand.New(src),
		sleep: sleepFor,
	}
}

// Latency returns how long a call should stall. probability is in [0,1]; the
// call stalls when a uniform draw in [0,1) falls below it.
func (e *Engine) Latency(seconds, probability float64) time.Duration {
	if seconds <= 0 {
		return 0
	}

	e.mu.Lock()
	draw := e.rand.Float64()
	e.mu.Unlock()

	if draw >= probability {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// Stall blocks for the latency chosen by Latency and reports how long it
// stalled. The wait is not cut short by ctx: a simulated slow backend stays
// slow even if the client goes away.
func (e *Engine) Stall(ctx context.Context, seconds, probability float64) time.Duration {
	d := e.Latency(seconds, probability)
	if d > 0 {
		e.sleep(ctx, d)
	}
	return d
}

func sleepFor(_ context.Context, d time.Duration) {
	time.Sleep(d)
}
