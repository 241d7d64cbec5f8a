package ingest

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/echosig/echosig/pkg/config"
	"github.com/echosig/echosig/pkg/echosig/model"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available on PATH")
	}
}

func writeSineWAV(t *testing.T, path string, seconds float64, sampleRate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture wav: %v", err)
	}
	defer f.Close()

	n := int(seconds * float64(sampleRate))
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(8000 * float64((i%100)-50))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{Data: samples, Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate}}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing fixture wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing fixture wav encoder: %v", err)
	}
}

// fakeIndex is an in-memory stand-in for storage.Store, sufficient to
// exercise the orchestrator's coordinator-side logic without a real
// database.
type fakeIndex struct {
	mu          sync.Mutex
	nextID      uint32
	byHash      map[[20]byte]uint32
	songs       map[uint32]model.Song
	fingerprint map[uint32]model.Fingerprint
	committed   map[uint32]bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		byHash:      make(map[[20]byte]uint32),
		songs:       make(map[uint32]model.Song),
		fingerprint: make(map[uint32]model.Fingerprint),
		committed:   make(map[uint32]bool),
	}
}

func (f *fakeIndex) SongByContentHash(contentHash [20]byte) (model.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byHash[contentHash]
	if !ok {
		return model.Song{}, errors.New("not found")
	}
	return f.songs[id], nil
}

func (f *fakeIndex) InsertSong(name string, contentHash [20]byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.songs[id] = model.Song{ID: id, Name: name, ContentHash: contentHash}
	f.byHash[contentHash] = id
	return id, nil
}

func (f *fakeIndex) InsertHashes(songID uint32, fp model.Fingerprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fingerprint[songID] = fp
	return nil
}

func (f *fakeIndex) SetSongFingerprinted(songID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed[songID] = true
	song := f.songs[songID]
	song.Fingerprinted = true
	f.songs[songID] = song
	return nil
}

func (f *fakeIndex) DeleteSong(songID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.songs, songID)
	delete(f.fingerprint, songID)
	delete(f.committed, songID)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	cfg.WorkerCount = 4
	return cfg
}

// TestRunParallelIngestDropsCorruptFile mirrors the crash-tolerance scenario:
// a batch of files is ingested in parallel and one file that cannot be
// decoded is dropped without affecting the rest.
func TestRunParallelIngestDropsCorruptFile(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	good1 := filepath.Join(dir, "good1.wav")
	good2 := filepath.Join(dir, "good2.wav")
	bad := filepath.Join(dir, "bad.wav")

	writeSineWAV(t, good1, 3, 44100)
	writeSineWAV(t, good2, 3, 44100)
	if err := os.WriteFile(bad, []byte("not an audio file"), 0o644); err != nil {
		t.Fatalf("writing corrupt fixture: %v", err)
	}

	idx := newFakeIndex()
	results := Run(context.Background(), idx, testConfig(t), []string{good1, good2, bad})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	var failed, succeeded int
	for _, r := range results {
		if r.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1 (only bad.wav)", failed)
	}
	if succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", succeeded)
	}
}

// TestRunSkipsReingestByContentHash mirrors spec.md §8 property 4: ingesting
// the same file twice commits it once and skips the second attempt.
func TestRunSkipsReingestByContentHash(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	writeSineWAV(t, path, 3, 44100)

	idx := newFakeIndex()
	cfg := testConfig(t)

	first := Run(context.Background(), idx, cfg, []string{path})
	if len(first) != 1 || first[0].Err != nil || first[0].Skipped {
		t.Fatalf("first ingest = %+v, want a clean commit", first[0])
	}

	second := Run(context.Background(), idx, cfg, []string{path})
	if len(second) != 1 || second[0].Err != nil || !second[0].Skipped {
		t.Fatalf("second ingest = %+v, want Skipped=true", second[0])
	}
	if second[0].SongID != first[0].SongID {
		t.Errorf("re-ingest resolved to a different song id: %d vs %d", second[0].SongID, first[0].SongID)
	}
}
