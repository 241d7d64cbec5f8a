// Package engine is the top-level facade tying decoding, fingerprinting,
// the index, and the matcher together — the single entry point a CLI or
// server binds to, mirroring the teacher's acousticService and the
// dejavu facade it was itself modeled on.
package engine

import (
	"context"
	"fmt"

	"github.com/echosig/echosig/pkg/config"
	"github.com/echosig/echosig/pkg/echosig/decode"
	"github.com/echosig/echosig/pkg/echosig/echosigerr"
	"github.com/echosig/echosig/pkg/echosig/fingerprint"
	"github.com/echosig/echosig/pkg/echosig/ingest"
	"github.com/echosig/echosig/pkg/echosig/matcher"
	"github.com/echosig/echosig/pkg/echosig/model"
	"github.com/echosig/echosig/pkg/echosig/storage"
	"github.com/echosig/echosig/pkg/logger"
	"github.com/echosig/echosig/pkg/utils"
)

// Engine is the recognition service: one index, one configuration, ready to
// ingest new recordings and recognize unknown ones against what it holds.
type Engine struct {
	cfg   *config.Config
	store *storage.Store
	log   *logger.Logger
}

// Open connects to the index named by cfg.Database and returns a ready
// Engine.
func Open(cfg *config.Config) (*Engine, error) {
	store, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return &Engine{cfg: cfg, store: store, log: logger.GetLogger()}, nil
}

// Close releases the index connection.
func (e *Engine) Close() error {
	return e.store.Close()
}

// AddSong ingests a single file, skipping it if a byte-identical file is
// already indexed.
func (e *Engine) AddSong(ctx context.Context, path string) (ingest.Result, error) {
	results := ingest.Run(ctx, e.store, e.cfg, []string{path})
	if len(results) != 1 {
		return ingest.Result{}, fmt.Errorf("expected one ingest result, got %d", len(results))
	}
	return results[0], results[0].Err
}

// AddSongs ingests a batch of files in parallel, across a worker pool sized
// by the engine's configuration.
func (e *Engine) AddSongs(ctx context.Context, paths []string) []ingest.Result {
	return ingest.Run(ctx, e.store, e.cfg, paths)
}

// Recognize decodes path, fingerprints it, and resolves the best matching
// indexed song.
func (e *Engine) Recognize(ctx context.Context, path string) (matcher.Result, error) {
	wavPath, err := decode.ConvertToWAV(ctx, path, e.cfg.TempDir, decode.ConvertOptions{SampleRate: e.cfg.SampleRate})
	if err != nil {
		return matcher.Result{}, fmt.Errorf("%w: %v", echosigerr.ErrDecode, err)
	}
	defer utils.DeleteFile(wavPath)

	samples, err := decode.ReadWAV(wavPath)
	if err != nil {
		return matcher.Result{}, fmt.Errorf("%w: %v", echosigerr.ErrDecode, err)
	}

	return e.recognizeSamples(samples)
}

// RecognizeSamples resolves a best match directly from decoded per-channel
// PCM samples, the path a microphone capture uses instead of reading a
// file. Each channel is fingerprinted independently and the landmark sets
// are unioned, matching the file-ingest path.
func (e *Engine) RecognizeSamples(channels [][]float64, sampleRate int) (matcher.Result, error) {
	return e.recognizeSamples(decode.Samples{Channels: channels, SampleRate: sampleRate})
}

func (e *Engine) recognizeSamples(samples decode.Samples) (matcher.Result, error) {
	query := make(model.Fingerprint)
	for _, channel := range samples.Channels {
		spec := fingerprint.Compute(channel)
		peaks := fingerprint.ExtractPeaks(spec)
		if len(peaks) == 0 {
			continue
		}
		query.Union(fingerprint.Fingerprint(peaks))
	}
	if len(query) == 0 {
		return matcher.Result{}, echosigerr.ErrNoRecording
	}

	candidates, errs := e.store.ReturnMatches(query)

	result, err := matcher.Align(candidates, e.store.SongByID, samples.SampleRate)
	if drainErr := <-errs; drainErr != nil {
		return matcher.Result{}, fmt.Errorf("%w: %v", echosigerr.ErrIndexIO, drainErr)
	}
	if err != nil {
		return matcher.Result{}, err
	}
	return result, nil
}

// List returns every song the index has successfully fingerprinted.
func (e *Engine) List() ([]model.Song, error) {
	var songs []model.Song
	err := e.store.GetFingerprintedSongs(func(s model.Song) error {
		songs = append(songs, s)
		return nil
	})
	return songs, err
}

// Delete removes a song and all of its landmark hashes from the index.
func (e *Engine) Delete(songID uint32) error {
	return e.store.DeleteSong(songID)
}

// CleanCrashed removes songs left behind by an ingest that never committed,
// the recovery step spec.md §7 requires a deployment run at startup.
func (e *Engine) CleanCrashed() error {
	return e.store.DeleteUnfingerprinted()
}

// IsEmpty reports whether the index holds any fingerprinted song.
func (e *Engine) IsEmpty() (bool, error) {
	return e.store.IsEmpty()
}

// Reset drops and recreates the index's tables, discarding every song and
// landmark it holds. This is the destructive empty() operation spec.md
// §4.4 describes, distinct from IsEmpty's read-only check.
func (e *Engine) Reset() error {
	return e.store.Reset()
}
