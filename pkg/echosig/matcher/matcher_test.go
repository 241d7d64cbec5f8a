package matcher

import (
	"errors"
	"testing"

	"github.com/echosig/echosig/pkg/echosig/model"
)

func songLookup(songs map[uint32]model.Song) SongLookup {
	return func(id uint32) (model.Song, error) {
		s, ok := songs[id]
		if !ok {
			return model.Song{}, errors.New("not found")
		}
		return s, nil
	}
}

func TestAlignNoCandidates(t *testing.T) {
	_, err := AlignSlice(nil, songLookup(nil), 44100)
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("err = %v, want ErrNoMatch", err)
	}
}

// TestAlignWinner mirrors spec.md §8 property 6: c copies of (A, 5) beat
// c-1 copies of (B, 10).
func TestAlignWinner(t *testing.T) {
	songs := map[uint32]model.Song{
		1: {ID: 1, Name: "A"},
		2: {ID: 2, Name: "B"},
	}

	var candidates []model.Candidate
	for i := 0; i < 10; i++ {
		candidates = append(candidates, model.Candidate{SongID: 1, Delta: 5})
	}
	for i := 0; i < 9; i++ {
		candidates = append(candidates, model.Candidate{SongID: 2, Delta: 10})
	}

	result, err := AlignSlice(candidates, songLookup(songs), 44100)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if result.SongID != 1 || result.Offset != 5 || result.Confidence != 10 {
		t.Errorf("result = %+v, want song 1, offset 5, confidence 10", result)
	}
}

// TestAlignTieBreakFirstToReachMax: when two keys reach the same maximum
// count, the first one (in stream order) to reach it wins.
func TestAlignTieBreakFirstToReachMax(t *testing.T) {
	songs := map[uint32]model.Song{
		1: {ID: 1, Name: "First"},
		2: {ID: 2, Name: "Second"},
	}

	candidates := []model.Candidate{
		{SongID: 1, Delta: 1},
		{SongID: 1, Delta: 1}, // song 1 reaches count 2 here
		{SongID: 2, Delta: 2},
		{SongID: 2, Delta: 2}, // song 2 only ties at count 2, doesn't exceed
	}

	result, err := AlignSlice(candidates, songLookup(songs), 44100)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if result.SongID != 1 {
		t.Errorf("SongID = %d, want 1 (first to reach the max count)", result.SongID)
	}
}

// TestAlignOffsetSecondsFormula mirrors spec.md §8 property 8.
func TestAlignOffsetSecondsFormula(t *testing.T) {
	songs := map[uint32]model.Song{1: {ID: 1, Name: "A"}}
	candidates := []model.Candidate{{SongID: 1, Delta: 100}}

	result, err := AlignSlice(candidates, songLookup(songs), 44100)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	const want = 4.64399
	if result.OffsetSeconds != want {
		t.Errorf("OffsetSeconds = %v, want %v", result.OffsetSeconds, want)
	}
}

// TestAlignSelfMatch mirrors spec.md §8 property 3: a song's own landmark
// set, re-submitted as candidates at Δ=0, wins with confidence |L|.
func TestAlignSelfMatch(t *testing.T) {
	songs := map[uint32]model.Song{42: {ID: 42, Name: "Self"}}

	const landmarkCount = 37
	candidates := make([]model.Candidate, landmarkCount)
	for i := range candidates {
		candidates[i] = model.Candidate{SongID: 42, Delta: 0}
	}

	result, err := AlignSlice(candidates, songLookup(songs), 44100)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if result.SongID != 42 || result.Offset != 0 || result.Confidence != landmarkCount {
		t.Errorf("result = %+v, want song 42, offset 0, confidence %d", result, landmarkCount)
	}
}

func TestAlignUnknownSongLookupError(t *testing.T) {
	candidates := []model.Candidate{{SongID: 99, Delta: 1}}
	_, err := AlignSlice(candidates, songLookup(nil), 44100)
	if err == nil {
		t.Fatal("expected error for unknown song id")
	}
}
