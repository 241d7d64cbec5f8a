package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/echosig/echosig/pkg/config"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available on PATH")
	}
}

func writeDistinctiveWAV(t *testing.T, path string, seed, seconds, sampleRate int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture wav: %v", err)
	}
	defer f.Close()

	n := seconds * sampleRate
	samples := make([]int, n)
	for i := range samples {
		// A sum of two tones whose frequencies depend on seed, giving each
		// fixture a distinguishable peak structure.
		samples[i] = int(6000*sinApprox(i, 200+seed*37)) + int(4000*sinApprox(i, 800+seed*53))
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

// sinApprox is a cheap periodic waveform generator avoiding a math.Sin
// dependency inside the fixture builder; it only needs to be periodic and
// distinguishable, not an accurate sine.
func sinApprox(i, period int) float64 {
	phase := i % period
	half := period / 2
	if phase < half {
		return float64(phase)/float64(half)*2 - 1
	}
	return 1 - float64(phase-half)/float64(half)*2
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DB = filepath.Join(t.TempDir(), "engine_test.sqlite3")
	cfg.TempDir = t.TempDir()
	cfg.SampleRate = 44100

	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestAddSongThenRecognizeSelfMatch(t *testing.T) {
	requireFFmpeg(t)

	e := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	writeDistinctiveWAV(t, path, 1, 5, 44100)

	result, err := e.AddSong(context.Background(), path)
	if err != nil {
		t.Fatalf("AddSong() error = %v", err)
	}
	if result.Skipped {
		t.Fatal("AddSong() reported Skipped on first ingest")
	}

	match, err := e.Recognize(context.Background(), path)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if match.SongID != result.SongID {
		t.Errorf("Recognize() SongID = %d, want %d", match.SongID, result.SongID)
	}
}

func TestEmptyIndexRecognizeFails(t *testing.T) {
	requireFFmpeg(t)

	e := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	writeDistinctiveWAV(t, path, 2, 5, 44100)

	if _, err := e.Recognize(context.Background(), path); err == nil {
		t.Fatal("Recognize() against an empty index succeeded, want an error")
	}
}

func TestListAndDelete(t *testing.T) {
	requireFFmpeg(t)

	e := newTestEngine(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "track.wav")
	writeDistinctiveWAV(t, path, 3, 5, 44100)

	result, err := e.AddSong(context.Background(), path)
	if err != nil {
		t.Fatalf("AddSong() error = %v", err)
	}

	songs, err := e.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(songs) != 1 || songs[0].ID != result.SongID {
		t.Fatalf("List() = %+v, want one song with id %d", songs, result.SongID)
	}

	if err := e.Delete(result.SongID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	songs, err = e.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(songs) != 0 {
		t.Errorf("List() after Delete() = %+v, want empty", songs)
	}
}
