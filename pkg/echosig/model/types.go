// Package model holds the plain data types shared across the fingerprinting
// pipeline, the index, and the matcher. None of these types know how they
// are persisted or computed.
package model

// Song is a single indexed recording.
type Song struct {
	ID            uint32
	Name          string
	ContentHash   [20]byte
	Fingerprinted bool
}

// Landmark is one committed (hash, song, offset) triple, as stored in the
// index. Hash is truncated to 5 bytes (the first 10 hex chars of a SHA1
// digest); Offset is the anchor peak's STFT frame index.
type Landmark struct {
	Hash   [5]byte
	SongID uint32
	Offset uint32
}

// Fingerprint is the in-memory, duplicate-free set of (hash, offset) pairs
// produced for one audio channel. Keys are [5]byte hashes; values are the
// set of offsets at which that hash was observed (almost always a single
// offset, but the set tolerates a hash recurring within one channel).
type Fingerprint map[[5]byte]map[uint32]struct{}

// Add inserts a (hash, offset) landmark into the set.
func (f Fingerprint) Add(hash [5]byte, offset uint32) {
	offsets, ok := f[hash]
	if !ok {
		offsets = make(map[uint32]struct{}, 1)
		f[hash] = offsets
	}
	offsets[offset] = struct{}{}
}

// Union merges other into f in place.
func (f Fingerprint) Union(other Fingerprint) {
	for hash, offsets := range other {
		for offset := range offsets {
			f.Add(hash, offset)
		}
	}
}

// Len returns the total number of (hash, offset) pairs in the set.
func (f Fingerprint) Len() int {
	n := 0
	for _, offsets := range f {
		n += len(offsets)
	}
	return n
}

// QueryHash is a (hash, query_offset) pair submitted to the index during a
// lookup. It is the query-side analogue of Landmark.
type QueryHash struct {
	Hash        [5]byte
	QueryOffset uint32
}

// Candidate is one (song_id, Δ) tuple yielded by an index lookup, where
// Δ = db_offset - query_offset for a single matching hash. The matcher
// consumes a multiset of these to vote for a winning song and offset.
type Candidate struct {
	SongID uint32
	Delta  int64
}
