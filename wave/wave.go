// Package wave generates one period of a waveform as DAC codes.
package wave

import (
	"fmt"
	"math"
	"strings"
)

const MAX_CODE = 4095

// Waveform fills samples with exactly one period.
type Waveform interface {
	Fill(samples []uint32)
	Name() string
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// code clamps offset+amp*f, f in [-1, 1], to the DAC's range.
func code(offset, amp int, f float64) uint32 {
	v := offset + round(float64(amp)*f)
	if v < 0 {
		return 0
	}
	if v > MAX_CODE {
		return MAX_CODE
	}
	return uint32(v)
}

// Level is the amplitude and midpoint shared by every shape, in DAC codes.
type Level struct {
	Amplitude int
	Offset    int
}

func DefaultLevel() Level {
	return Level{Amplitude: 2047, Offset: 2048}
}

type Sine struct {
	Level
}

func NewSine(l Level) *Sine {
	return &Sine{l}
}

func (s *Sine) Fill(samples []uint32) {
	n := float64(len(samples))
	for i := range samples {
		samples[i] = code(s.Offset, s.Amplitude, math.Sin(2*math.Pi*float64(i)/n))
	}
}

func (s *Sine) Name() string {
	return "SINE"
}

type Triangle struct {
	Level
}

func NewTriangle(l Level) *Triangle {
	return &Triangle{l}
}

// Fill starts at the bottom, peaks halfway through and comes back down.
func (t *Triangle) Fill(samples []uint32) {
	n := float64(len(samples))
	for i := range samples {
		f := float64(i) / n
		if f < 0.5 {
			samples[i] = code(t.Offset, t.Amplitude, 4*f-1)
		} else {
			samples[i] = code(t.Offset, t.Amplitude, 3-4*f)
		}
	}
}

func (t *Triangle) Name() string {
	return "TRIANGLE"
}

type Sawtooth struct {
	Level
}

func NewSawtooth(l Level) *Sawtooth {
	return &Sawtooth{l}
}

func (s *Sawtooth) Fill(samples []uint32) {
	n := float64(len(samples))
	for i := range samples {
		samples[i] = code(s.Offset, s.Amplitude, 2*float64(i)/n-1)
	}
}

func (s *Sawtooth) Name() string {
	return "SAWTOOTH"
}

type Square struct {
	Level
	Duty float64 // fraction of the period spent high
}

func NewSquare(l Level, duty float64) *Square {
	return &Square{Level: l, Duty: duty}
}

func (s *Square) Fill(samples []uint32) {
	high := round(s.Duty * float64(len(samples)))
	for i := range samples {
		if i < high {
			samples[i] = code(s.Offset, s.Amplitude, 1)
		} else {
			samples[i] = code(s.Offset, s.Amplitude, -1)
		}
	}
}

func (s *Square) Name() string {
	return "SQUARE"
}

// Step is a staircase of Steps equal levels from bottom to top.
type Step struct {
	Level
	Steps int
}

func NewStep(l Level, steps int) *Step {
	return &Step{Level: l, Steps: steps}
}

func (s *Step) Fill(samples []uint32) {
	n := len(samples)
	for i := range samples {
		k := i * s.Steps / n
		f := -1.0
		if s.Steps > 1 {
			f = 2*float64(k)/float64(s.Steps-1) - 1
		}
		samples[i] = code(s.Offset, s.Amplitude, f)
	}
}

func (s *Step) Name() string {
	return "STEP"
}

// ByName returns the named shape at level l with default parameters.
func ByName(name string, l Level) (Waveform, error) {
	switch strings.ToUpper(name) {
	case "SINE":
		return NewSine(l), nil
	case "TRIANGLE":
		return NewTriangle(l), nil
	case "SAWTOOTH":
		return NewSawtooth(l), nil
	case "SQUARE":
		return NewSquare(l, 0.5), nil
	case "STEP":
		return NewStep(l, 8), nil
	}
	return nil, fmt.Errorf("unknown waveform %q", name)
}
