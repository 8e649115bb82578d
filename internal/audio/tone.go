package audio

import "math"

const (
	ToneFrequency = 440.0
	ToneAmplitude = 16000
)

// Tone generates a continuous sine wave as interleaved int16 PCM. Successive
// calls continue the waveform where the previous call stopped.
type Tone struct {
	Frequency  float64
	SampleRate int
	Channels   int

	pos int64
}

// NewTone returns a tone generator. A zero frequency selects ToneFrequency.
func NewTone(frequency float64, sampleRate, channels int) *Tone {
	if frequency <= 0 {
		frequency = ToneFrequency
	}
	return &Tone{Frequency: frequency, SampleRate: sampleRate, Channels: channels}
}

// Next returns the next n samples per channel, interleaved.
func (t *Tone) Next(n int) []int16 {
	out := make([]int16, n*t.Channels)
	for i := 0; i < n; i++ {
		ts := float64(t.pos+int64(i)) / float64(t.SampleRate)
		v := int16(ToneAmplitude * math.Sin(2*math.Pi*t.Frequency*ts))
		for c := 0; c < t.Channels; c++ {
			out[i*t.Channels+c] = v
		}
	}
	t.pos += int64(n)
	return out
}

// Position returns the number of samples per channel generated so far.
func (t *Tone) Position() int64 {
	return t.pos
}
