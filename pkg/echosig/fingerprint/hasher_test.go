package fingerprint

import "testing"

func TestHashDeterministic(t *testing.T) {
	a := Peak{Time: 10, Freq: 200}
	b := Peak{Time: 15, Freq: 340}

	h1 := Hash(a, b)
	h2 := Hash(a, b)
	if h1 != h2 {
		t.Errorf("Hash is not deterministic: %v vs %v", h1, h2)
	}
}

func TestHashHexLength(t *testing.T) {
	h := Hash(Peak{Time: 1, Freq: 2}, Peak{Time: 3, Freq: 4})
	hex := HashHex(h)
	if len(hex) != 10 {
		t.Errorf("HashHex length = %d, want 10 (5 bytes)", len(hex))
	}
}

func TestFingerprintLandmarkCountBound(t *testing.T) {
	peaks := make([]Peak, 50)
	for i := range peaks {
		peaks[i] = Peak{Time: i * 2, Freq: i % 100}
	}

	fp := Fingerprint(peaks)
	if fp.Len() > len(peaks)*FanValue {
		t.Errorf("landmark count %d exceeds bound P*FanValue = %d", fp.Len(), len(peaks)*FanValue)
	}
}

func TestFingerprintSkipsZeroDeltaSameFreq(t *testing.T) {
	peaks := []Peak{
		{Time: 5, Freq: 100},
		{Time: 5, Freq: 100}, // same time, same freq: must be skipped
		{Time: 5, Freq: 200}, // same time, different freq: must be kept
	}

	fp := Fingerprint(peaks)
	if fp.Len() != 1 {
		t.Errorf("Fingerprint().Len() = %d, want 1 (only the differing-freq pair survives)", fp.Len())
	}
}

func TestFingerprintSkipsOutOfRangeDelta(t *testing.T) {
	peaks := []Peak{
		{Time: 0, Freq: 10},
		{Time: MaxDeltaFrames + 1, Freq: 20},
	}
	fp := Fingerprint(peaks)
	if fp.Len() != 0 {
		t.Errorf("Fingerprint().Len() = %d, want 0 (delta exceeds MaxDeltaFrames)", fp.Len())
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	peaks := []Peak{
		{Time: 1, Freq: 10}, {Time: 2, Freq: 20}, {Time: 2, Freq: 30},
		{Time: 5, Freq: 15}, {Time: 9, Freq: 40},
	}

	a := Fingerprint(peaks)
	b := Fingerprint(peaks)

	if a.Len() != b.Len() {
		t.Fatalf("non-deterministic landmark count: %d vs %d", a.Len(), b.Len())
	}
	for hash, offsets := range a {
		bOffsets, ok := b[hash]
		if !ok || len(bOffsets) != len(offsets) {
			t.Fatalf("hash %x differs between runs", hash)
		}
	}
}

// TestFingerprintOffsetInvariance mirrors spec.md §8 property 2: shifting
// every peak's time index by a constant k shifts every landmark's anchor
// offset by the same k, leaving the hash set otherwise identical.
func TestFingerprintOffsetInvariance(t *testing.T) {
	peaks := []Peak{
		{Time: 1, Freq: 10}, {Time: 4, Freq: 22}, {Time: 4, Freq: 50},
		{Time: 8, Freq: 31}, {Time: 20, Freq: 9},
	}

	const k = 37
	shifted := make([]Peak, len(peaks))
	for i, p := range peaks {
		shifted[i] = Peak{Time: p.Time + k, Freq: p.Freq}
	}

	base := Fingerprint(peaks)
	got := Fingerprint(shifted)

	want := make(map[[5]byte]map[uint32]struct{})
	for hash, offsets := range base {
		shiftedOffsets := make(map[uint32]struct{}, len(offsets))
		for off := range offsets {
			shiftedOffsets[off+k] = struct{}{}
		}
		want[hash] = shiftedOffsets
	}

	if got.Len() != base.Len() {
		t.Fatalf("shifted fingerprint has %d landmarks, want %d", got.Len(), base.Len())
	}
	for hash, offsets := range want {
		gotOffsets, ok := got[hash]
		if !ok {
			t.Fatalf("hash %x missing from shifted fingerprint", hash)
		}
		for off := range offsets {
			if _, ok := gotOffsets[off]; !ok {
				t.Errorf("hash %x missing shifted offset %d", hash, off)
			}
		}
	}
}
