// Package matcher performs the offset-histogram alignment vote: given the
// candidate (song_id, Δ) tuples an index lookup returns for a query
// fingerprint, it picks the song and time offset every candidate agrees on
// most.
package matcher

import (
	"errors"
	"math"

	"github.com/echosig/echosig/pkg/echosig/fingerprint"
	"github.com/echosig/echosig/pkg/echosig/model"
)

// ErrNoMatch is returned when the candidate stream was empty: return_matches
// yielded nothing, so there is nothing to vote on. It is a structural
// result, not a failure — callers should treat it as "no match".
var ErrNoMatch = errors.New("matcher: no candidates to align")

// SongLookup resolves a song_id to its metadata, as exposed by the index's
// get_song_by_id operation.
type SongLookup func(songID uint32) (model.Song, error)

// Result is the match record returned to the caller, per spec.md §6.
type Result struct {
	SongID         uint32
	SongName       string
	Confidence     int
	Offset         int64
	OffsetSeconds  float64
	ContentHashHex string
}

// voteKey is the (Δ, song_id) pair the alignment vote counts against.
type voteKey struct {
	delta  int64
	songID uint32
}

// Align runs the offset-histogram vote over candidates and resolves the
// winner against the index via lookup. sampleRate is the ingest-time Fs used
// to convert the winning frame offset into seconds.
//
// Tie-breaking: the first (song_id, Δ) pair to reach the current maximum
// count wins, matching the candidate stream's arrival order. This is a
// deliberate, documented choice (spec.md §9 Open Question) rather than an
// accident of iteration order: candidates must be drained in a single pass
// over a channel or slice, never re-ordered before voting.
func Align(candidates <-chan model.Candidate, lookup SongLookup, sampleRate int) (Result, error) {
	counts := make(map[voteKey]int)

	var (
		seen      bool
		bestKey   voteKey
		bestCount int
	)

	for c := range candidates {
		key := voteKey{delta: c.Delta, songID: c.SongID}
		counts[key]++
		if counts[key] > bestCount {
			bestCount = counts[key]
			bestKey = key
			seen = true
		}
	}

	if !seen {
		return Result{}, ErrNoMatch
	}

	song, err := lookup(bestKey.songID)
	if err != nil {
		return Result{}, err
	}

	offsetSeconds := roundTo(
		float64(bestKey.delta)*float64(fingerprint.WindowSize)*(1-fingerprint.OverlapRatio)/float64(sampleRate),
		5,
	)

	return Result{
		SongID:         bestKey.songID,
		SongName:       song.Name,
		Confidence:     bestCount,
		Offset:         bestKey.delta,
		OffsetSeconds:  offsetSeconds,
		ContentHashHex: contentHashHex(song),
	}, nil
}

// AlignSlice is a convenience wrapper for callers holding the full candidate
// set in memory rather than streaming it over a channel.
func AlignSlice(candidates []model.Candidate, lookup SongLookup, sampleRate int) (Result, error) {
	ch := make(chan model.Candidate, len(candidates))
	for _, c := range candidates {
		ch <- c
	}
	close(ch)
	return Align(ch, lookup, sampleRate)
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func contentHashHex(song model.Song) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(song.ContentHash)*2)
	for _, b := range song.ContentHash {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(out)
}
