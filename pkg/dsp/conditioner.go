// Package dsp implements the signal-conditioning stage that turns float PCM
// from a synthesis stream into fixed-size wire frames.
//
// The chain applied per sample is gain → one-pole IIR smoothing → soft clip →
// int16 quantisation. The smoothing filter carries state across samples, so a
// [Conditioner] belongs to exactly one stream and must be discarded with it.
// Given identical input and coefficients the output is byte-identical across
// runs; nothing in the chain depends on wall-clock time or randomness.
package dsp

import "math"

const (
	// Gain is the fixed linear gain applied before smoothing.
	Gain = 1.8

	// Alpha is the one-pole IIR smoothing coefficient:
	// y = Alpha*x + (1-Alpha)*y_prev.
	Alpha = 0.15
)

// Conditioner applies the per-sample conditioning chain. The zero value is not
// usable; create one with [NewConditioner]. Not safe for concurrent use —
// one per stream.
type Conditioner struct {
	gain  float64
	alpha float64
	prev  float64
}

// NewConditioner returns a Conditioner with the standard gain and smoothing
// coefficient and filter state initialised to zero.
func NewConditioner() *Conditioner {
	return &Conditioner{gain: Gain, alpha: Alpha}
}

// Process runs one sample through the chain and returns the quantised result.
func (c *Conditioner) Process(x float32) int16 {
	v := float64(x) * c.gain

	// One-pole IIR smoothing.
	v = c.alpha*v + (1-c.alpha)*c.prev
	c.prev = v

	v = softClip(v)

	return quantise(v)
}

// softClip saturates values outside [-1, 1] exponentially instead of hard
// clipping, avoiding the discontinuity at the rail.
func softClip(x float64) float64 {
	switch {
	case x > 1:
		return 1 - math.Exp(-(x - 1))
	case x < -1:
		return -1 + math.Exp(-(-x - 1))
	default:
		return x
	}
}

// quantise rounds to the nearest int16 and clamps to the representable range.
func quantise(x float64) int16 {
	v := math.Round(x * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
