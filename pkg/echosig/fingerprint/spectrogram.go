// Package fingerprint turns a PCM channel into a landmark hash set: windowed
// STFT magnitude spectrogram, local-maxima peak extraction, and combinatorial
// peak-pair hashing. The three stages mirror the three stages of the
// original Shazam-style pipeline and are kept in separate files so each can
// be tested in isolation.
package fingerprint

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// WindowSize is the STFT window length in samples, fixed by the hash
	// format: changing it changes every downstream hash value.
	WindowSize = 4096
	// OverlapRatio is the fraction of each window that overlaps the next.
	OverlapRatio = 0.5
	// HopSize is the number of samples advanced between frames.
	HopSize = int(WindowSize * (1 - OverlapRatio))

	// dBFloor is the magnitude floor (in dB) substituted for -Inf so that
	// downstream comparisons never see a non-finite value.
	dBFloor = -100.0
)

// Spectrogram is a magnitude-in-dB matrix, S[t][f], t the frame index and f
// the frequency bin (0..WindowSize/2 inclusive).
type Spectrogram [][]float64

// Frames reports the number of time frames.
func (s Spectrogram) Frames() int { return len(s) }

// Bins reports the number of frequency bins per frame, or 0 if empty.
func (s Spectrogram) Bins() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// hannWindow returns a symmetric Hann taper of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// Compute builds the magnitude spectrogram of one mono PCM channel. Trailing
// samples short of a full window are discarded, per spec.
func Compute(samples []float64) Spectrogram {
	window := hannWindow(WindowSize)

	var frames Spectrogram
	for start := 0; start+WindowSize <= len(samples); start += HopSize {
		frame := make([]float64, WindowSize)
		for i := 0; i < WindowSize; i++ {
			frame[i] = samples[start+i] * window[i]
		}

		spectrum := fft.FFTReal(frame)
		magnitudes := magnitudeDB(spectrum)
		frames = append(frames, magnitudes)
	}
	return frames
}

// magnitudeDB converts one frame's complex FFT output into dB magnitude,
// keeping only the non-redundant half (0..N/2 inclusive), floored at
// dBFloor to avoid -Inf.
func magnitudeDB(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	out := make([]float64, half)
	for i := 0; i < half; i++ {
		power := cmplx.Abs(spectrum[i])
		power *= power
		db := dBFloor
		if power > 0 {
			db = 10 * math.Log10(power)
			if db < dBFloor {
				db = dBFloor
			}
		}
		out[i] = db
	}
	return out
}
