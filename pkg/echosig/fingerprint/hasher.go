package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/echosig/echosig/pkg/echosig/model"
)

const (
	// FanValue is the number of subsequent peaks (in ascending time order)
	// fanned out from each anchor peak.
	FanValue = 15
	// MaxDeltaFrames is the largest anchor-to-target time gap, in STFT
	// frames, that is still hashed.
	MaxDeltaFrames = 200
)

// Hash hashes one anchor/target peak pair into the 5-byte landmark hash.
// The digest input is the ASCII string "f_a|f_b|Δt"; the landmark hash is
// the first 5 bytes (the first 10 hex characters) of its SHA1 digest.
func Hash(anchor, target Peak) [5]byte {
	deltaT := target.Time - anchor.Time
	input := fmt.Sprintf("%d|%d|%d", anchor.Freq, target.Freq, deltaT)
	digest := sha1.Sum([]byte(input))

	var out [5]byte
	copy(out[:], digest[:5])
	return out
}

// HashHex renders a 5-byte landmark hash as the uppercase 10-hex-char form
// used at API boundaries, matching the on-disk convention of the systems
// this format was modeled on.
func HashHex(hash [5]byte) string {
	return strings.ToUpper(hex.EncodeToString(hash[:]))
}

// Fingerprint fans each anchor peak out to its next FanValue peaks (in
// ascending time order, as ExtractPeaks already returns them) and emits one
// landmark per valid pair. A landmark count therefore never exceeds
// len(peaks) * FanValue.
func Fingerprint(peaks []Peak) model.Fingerprint {
	fp := make(model.Fingerprint)

	for i, anchor := range peaks {
		limit := i + 1 + FanValue
		if limit > len(peaks) {
			limit = len(peaks)
		}
		for j := i + 1; j < limit; j++ {
			target := peaks[j]
			deltaT := target.Time - anchor.Time

			if deltaT < 0 || deltaT > MaxDeltaFrames {
				continue
			}
			if deltaT == 0 && target.Freq == anchor.Freq {
				continue
			}

			hash := Hash(anchor, target)
			fp.Add(hash, uint32(anchor.Time))
		}
	}

	return fp
}
