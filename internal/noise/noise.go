// Package noise generates the random variables used by the sensor models.
//
// Every sensor draws from a Generator. The default generator applies the
// Box–Muller transform to a uniform Source; tests swap in a seeded or fixed
// source to make runs reproducible.
package noise

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Source yields uniform samples in [0, 1).
type Source interface {
	Float64() float64
}

// Generator draws zero-mean Gaussian and uniform samples.
type Generator interface {
	// Gaussian returns a sample from N(0, sigma²).
	Gaussian(sigma float64) float64
	// Float64 returns a uniform sample in [0, 1).
	Float64() float64
}

// BoxMuller is a Generator backed by a uniform Source. It is safe for
// concurrent use.
type BoxMuller struct {
	mu  sync.Mutex
	src Source
}

// NewBoxMuller returns a Generator drawing from src. A nil src uses the
// process-wide random source.
func NewBoxMuller(src Source) *BoxMuller {
	if src == nil {
		src = systemSource{}
	}
	return &BoxMuller{src: src}
}

// NewSeeded returns a reproducible Generator seeded with seed.
func NewSeeded(seed uint64) *BoxMuller {
	return NewBoxMuller(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Gaussian returns sigma * z where z is a standard normal deviate. A zero
// sigma returns exactly zero without consuming the source.
func (g *BoxMuller) Gaussian(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	g.mu.Lock()
	// 1-u keeps u1 in (0, 1] so the logarithm stays finite.
	u1 := 1 - g.src.Float64()
	u2 := g.src.Float64()
	g.mu.Unlock()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return z * sigma
}

// Float64 returns the next uniform sample from the source.
func (g *BoxMuller) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.src.Float64()
}

type systemSource struct{}

func (systemSource) Float64() float64 { return rand.Float64() }

// Sequence is a Source that replays a fixed list of values, wrapping around
// at the end. The zero value yields 0.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence returns a Source replaying values in order.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float64 returns the next value in the sequence.
func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Fixed is a Generator that always returns the same deviates: Gaussian
// yields Z*sigma and Float64 yields U. Fixed{} is a noiseless generator whose
// uniform draws are 0, so any positive probability event always fires.
type Fixed struct {
	Z float64
	U float64
}

// Gaussian returns f.Z * sigma.
func (f Fixed) Gaussian(sigma float64) float64 { return f.Z * sigma }

// Float64 returns f.U.
func (f Fixed) Float64() float64 { return f.U }
