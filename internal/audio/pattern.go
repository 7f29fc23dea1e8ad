// Package audio turns notification priorities into short tone bursts and
// delivers them to audio outputs without ever blocking the caller.
package audio

import (
	"math"
	"time"

	"sunsense/internal/models"
)

// Envelope and spacing of every tone segment
const (
	SegmentSpacing = 0.15 // seconds between onsets
	PeakGain       = 0.3
	FloorGain      = 0.01
	DecayTime      = 0.1 // seconds from PeakGain to FloorGain
)

var frequencies = map[models.Priority][]float64{
	models.PriorityHigh:   {800, 1000, 800},
	models.PriorityMedium: {600, 800},
	models.PriorityLow:    {400},
}

// Tone is one frequency burst within a clip
type Tone struct {
	FrequencyHz    float64 `json:"frequency_hz"`
	StartOffsetSec float64 `json:"start_offset_sec"`
}

// Clip is the full tone pattern for one notification
type Clip struct {
	Priority models.Priority `json:"priority"`
	Segments []Tone          `json:"segments"`
	TotalSec float64         `json:"total_sec"`
}

// Empty reports whether the clip has nothing to play
func (c Clip) Empty() bool {
	return len(c.Segments) == 0
}

// Total returns the nominal clip length
func (c Clip) Total() time.Duration {
	return time.Duration(c.TotalSec * float64(time.Second))
}

// Pattern returns the tone pattern for a priority. Unknown priorities and
// PriorityNone give an empty clip.
func Pattern(p models.Priority) Clip {
	freqs := frequencies[p]
	clip := Clip{Priority: p, Segments: make([]Tone, 0, len(freqs))}
	for i, f := range freqs {
		clip.Segments = append(clip.Segments, Tone{
			FrequencyHz:    f,
			StartOffsetSec: float64(i) * SegmentSpacing,
		})
	}
	clip.TotalSec = float64(len(freqs)) * SegmentSpacing
	return clip
}

// Gain is the amplitude t seconds after a segment onset: an instant rise to
// PeakGain, an exponential decay to FloorGain over DecayTime, then FloorGain
// until the next onset.
func Gain(t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t >= DecayTime:
		return FloorGain
	default:
		return PeakGain * math.Pow(FloorGain/PeakGain, t/DecayTime)
	}
}

// Synthesize renders the clip as mono samples in [-1, 1]. A single
// oscillator keeps its phase across frequency changes, so segment
// boundaries do not click.
func Synthesize(c Clip, sampleRate int) []float64 {
	if c.Empty() || sampleRate <= 0 {
		return nil
	}

	n := int(math.Ceil(c.TotalSec * float64(sampleRate)))
	out := make([]float64, n)

	seg := 0
	phase := 0.0
	for i := range out {
		t := float64(i) / float64(sampleRate)
		for seg+1 < len(c.Segments) && t >= c.Segments[seg+1].StartOffsetSec-1e-9 {
			seg++
		}
		tone := c.Segments[seg]
		out[i] = math.Sin(phase) * Gain(t-tone.StartOffsetSec)
		phase += 2 * math.Pi * tone.FrequencyHz / float64(sampleRate)
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return out
}
