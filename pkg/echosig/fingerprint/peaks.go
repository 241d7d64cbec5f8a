package fingerprint

import "sort"

// AminDB is the amplitude floor a cell's magnitude must exceed, in dB above
// the spectrogram's own floor, to be considered a peak candidate.
const AminDB = dBFloor + 10

// neighborhoodHalfWidth is half the structuring-element footprint in each
// dimension. A half-width of 10 yields a ~20x20 footprint (time x freq), the
// "neighborhood radius ~20 bins" called for in the spec. Implemented as a
// square max-filter rather than a literal binary-dilation of an 8-connected
// kernel; the two are equivalent once the kernel is iterated out to a
// rectangular footprint, and the square filter is far cheaper to compute.
const neighborhoodHalfWidth = 10

// Peak is a local maximum of the magnitude spectrogram: Time is the STFT
// frame index, Freq is the frequency bin index.
type Peak struct {
	Time int
	Freq int
}

// ExtractPeaks finds every cell that equals the maximum over its
// structuring neighborhood and exceeds AminDB. DC-row (Freq==0) peaks are
// kept: the hashing stage tolerates them and spec.md's open question
// recommends keeping them.
//
// Peaks are returned sorted ascending by (Time, Freq), the order the hasher
// requires for its fan-out.
func ExtractPeaks(s Spectrogram) []Peak {
	frames := s.Frames()
	if frames == 0 {
		return nil
	}
	bins := s.Bins()

	var peaks []Peak
	for t := 0; t < frames; t++ {
		for f := 0; f < bins; f++ {
			value := s[t][f]
			if value <= AminDB {
				continue
			}
			if isLocalMax(s, t, f, value) {
				peaks = append(peaks, Peak{Time: t, Freq: f})
			}
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].Time != peaks[j].Time {
			return peaks[i].Time < peaks[j].Time
		}
		return peaks[i].Freq < peaks[j].Freq
	})
	return peaks
}

// isLocalMax reports whether s[t][f] equals the maximum over its structuring
// neighborhood (the morphological-dilation semantics of spec.md §4.2: a cell
// that ties the neighborhood max is itself a peak).
func isLocalMax(s Spectrogram, t, f int, value float64) bool {
	frames := s.Frames()
	bins := s.Bins()

	for dt := -neighborhoodHalfWidth; dt <= neighborhoodHalfWidth; dt++ {
		tt := t + dt
		if tt < 0 || tt >= frames {
			continue
		}
		row := s[tt]
		for df := -neighborhoodHalfWidth; df <= neighborhoodHalfWidth; df++ {
			ff := f + df
			if ff < 0 || ff >= bins {
				continue
			}
			if row[ff] > value {
				return false
			}
		}
	}
	return true
}
