package eis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ardnew/eisusb/pkg"
)

// Provider acquires the samples of one frequency of a session. BeginSession
// must eventually call sink.OnSamplesReady exactly once, either before it
// returns or later from another goroutine. An error return means no samples
// will be delivered.
type Provider interface {
	BeginSession(ctx context.Context, params Params, frequency int, sink Sink) error
}

// Sink receives the samples of a requested frequency. Both channels must hold
// Params.SampleCount samples. The slices are copied before OnSamplesReady
// returns.
type Sink interface {
	OnSamplesReady(voltage, current []float32) error
}

// BatteryMonitor reports the instrument's battery voltage.
type BatteryMonitor interface {
	BatteryVoltage() (float32, error)
}

// DefaultBatteryVoltage is reported by Synthetic unless configured otherwise.
const DefaultBatteryVoltage float32 = 4.5

// SyntheticOption configures a Synthetic provider.
type SyntheticOption func(*Synthetic)

// WithBatteryVoltage sets the reported battery voltage.
func WithBatteryVoltage(v float32) SyntheticOption {
	return func(s *Synthetic) { s.battery = v }
}

// WithDelay makes BeginSession return immediately and deliver samples from a
// goroutine after d.
func WithDelay(d time.Duration) SyntheticOption {
	return func(s *Synthetic) { s.delay = d }
}

// Synthetic stands in for the analog front end: every channel sample is
// drawn uniformly from [-1, 1).
type Synthetic struct {
	mu      sync.Mutex
	rng     *rand.Rand
	battery float32
	delay   time.Duration
	wg      sync.WaitGroup
}

var (
	_ Provider       = (*Synthetic)(nil)
	_ BatteryMonitor = (*Synthetic)(nil)
)

// NewSynthetic returns a synthetic provider seeded with seed.
func NewSynthetic(seed uint64, opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
		battery: DefaultBatteryVoltage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BeginSession implements [Provider].
func (s *Synthetic) BeginSession(ctx context.Context, params Params, frequency int, sink Sink) error {
	n := params.SampleCount()
	if n == 0 || n > MaxData {
		return fmt.Errorf("sample count %d: %w", n, pkg.ErrInvalidParameter)
	}
	if frequency < 0 || frequency >= params.FrequencyCount() {
		return fmt.Errorf("frequency index %d of %d: %w", frequency, params.FrequencyCount(), pkg.ErrOutOfRange)
	}

	voltage := make([]float32, n)
	current := make([]float32, n)
	s.mu.Lock()
	for i := range n {
		voltage[i] = s.rng.Float32()*2 - 1
		current[i] = s.rng.Float32()*2 - 1
	}
	s.mu.Unlock()

	pkg.LogDebug(pkg.ComponentProvider, "samples acquired",
		"frequency", frequency, "samples", n, "delay", s.delay)

	if s.delay <= 0 {
		return sink.OnSamplesReady(voltage, current)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			pkg.LogDebug(pkg.ComponentProvider, "acquisition canceled", "frequency", frequency)
			return
		case <-timer.C:
		}
		if err := sink.OnSamplesReady(voltage, current); err != nil {
			pkg.LogWarn(pkg.ComponentProvider, "delivery rejected", "frequency", frequency, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every delayed delivery has finished.
func (s *Synthetic) Wait() {
	s.wg.Wait()
}

// BatteryVoltage implements [BatteryMonitor].
func (s *Synthetic) BatteryVoltage() (float32, error) {
	return s.battery, nil
}
