// Package ingest orchestrates parallel fingerprint ingestion: a pool of
// worker goroutines decode and fingerprint files concurrently, while a
// single coordinator goroutine owns every write to the index. This
// translates the process-per-file, multiprocessing-pool heritage of the
// system this module descends from into Go's goroutine/channel idiom: no
// worker ever holds a handle capable of mutating the index, so the
// invariant "only one writer touches the index at a time" holds by
// construction rather than by discipline.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/echosig/echosig/pkg/config"
	"github.com/echosig/echosig/pkg/echosig/decode"
	"github.com/echosig/echosig/pkg/echosig/echosigerr"
	"github.com/echosig/echosig/pkg/echosig/fingerprint"
	"github.com/echosig/echosig/pkg/echosig/model"
	"github.com/echosig/echosig/pkg/logger"
	"github.com/echosig/echosig/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Index is the subset of storage.Store the orchestrator's coordinator
// goroutine needs. Workers never see this interface: they only return
// jobResult values over a channel.
type Index interface {
	SongByContentHash(contentHash [20]byte) (model.Song, error)
	InsertSong(name string, contentHash [20]byte) (uint32, error)
	InsertHashes(songID uint32, fp model.Fingerprint) error
	SetSongFingerprinted(songID uint32) error
	DeleteSong(songID uint32) error
}

// Result reports the outcome of ingesting one file.
type Result struct {
	Path      string
	SongID    uint32
	Skipped   bool // already present, by content hash
	LandmarkN int
	Err       error
}

// jobResult is what a worker computes for one file, before any index write
// happens.
type jobResult struct {
	path        string
	contentHash [20]byte
	fp          model.Fingerprint
	duration    float64
	err         error
}

// pending is a file that has cleared the coordinator's cheap dedup check
// and is queued for the expensive decode+fingerprint pass.
type pending struct {
	path        string
	contentHash [20]byte
}

// Run ingests every path in paths, using up to cfg.WorkerCount worker
// goroutines to decode and fingerprint concurrently. Per spec.md §4.6 step
// 2, the content-hash dedup check runs in the coordinator before a path is
// ever dispatched to a worker: a byte-identical re-submission is resolved
// by a hash-and-lookup alone and never pays for decoding or fingerprinting.
// All index writes happen serially on the calling goroutine. Per-file
// errors are reported in the returned results and do not stop the rest of
// the batch; a worker panic is recovered and surfaced as
// echosigerr.ErrWorkerCrash for that file alone.
func Run(ctx context.Context, idx Index, cfg *config.Config, paths []string) []Result {
	results := make([]Result, 0, len(paths))
	dispatched := make([]pending, 0, len(paths))

	for _, p := range paths {
		contentHash, err := decode.ContentHash(p)
		if err != nil {
			results = append(results, Result{Path: p, Err: fmt.Errorf("%w: %s: %v", echosigerr.ErrDecode, p, err)})
			continue
		}

		if existing, err := idx.SongByContentHash(contentHash); err == nil {
			logger.Infof("ingest: skipping %s, already indexed as song %d", p, existing.ID)
			results = append(results, Result{Path: p, SongID: existing.ID, Skipped: true})
			continue
		}

		dispatched = append(dispatched, pending{path: p, contentHash: contentHash})
	}

	if len(dispatched) == 0 {
		return results
	}

	done := make(chan jobResult, len(dispatched))

	workers := config.WorkerCount(cfg.WorkerCount)
	if workers > len(dispatched) {
		workers = len(dispatched)
	}
	if workers < 1 {
		workers = 1
	}

	// errgroup bounds concurrency to workers and gives every job its own
	// goroutine without the orchestrator hand-rolling a jobs channel. Every
	// job returns nil, so gctx is cancelled only when ctx is: a worker's
	// failure never cancels its siblings — one bad file is reported, not
	// fatal to the batch.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, job := range dispatched {
		job := job
		g.Go(func() error {
			done <- computeFingerprint(gctx, cfg, job)
			return nil
		})
	}
	go func() {
		g.Wait()
		close(done)
	}()

	for i := 0; i < len(dispatched); i++ {
		c := <-done
		if c.err != nil {
			results = append(results, Result{Path: c.path, Err: c.err})
			continue
		}

		songID, err := idx.InsertSong(filepath.Base(c.path), c.contentHash)
		if err != nil {
			results = append(results, Result{Path: c.path, Err: fmt.Errorf("inserting song: %w", err)})
			continue
		}

		if err := idx.InsertHashes(songID, c.fp); err != nil {
			idx.DeleteSong(songID)
			results = append(results, Result{Path: c.path, Err: fmt.Errorf("committing hashes: %w", err)})
			continue
		}

		if err := idx.SetSongFingerprinted(songID); err != nil {
			idx.DeleteSong(songID)
			results = append(results, Result{Path: c.path, Err: fmt.Errorf("marking fingerprinted: %w", err)})
			continue
		}

		results = append(results, Result{Path: c.path, SongID: songID, LandmarkN: c.fp.Len()})
	}

	return results
}

// computeFingerprint decodes job.path into its separated per-channel PCM
// streams and fingerprints each channel independently, unioning the
// resulting landmark sets into one (spec.md §4.6 step 4). Union dedupes
// identical triples that arise from e.g. L/R channel symmetry.
func computeFingerprint(ctx context.Context, cfg *config.Config, job pending) (out jobResult) {
	out.path = job.path
	out.contentHash = job.contentHash
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("%w: %s: %v", echosigerr.ErrWorkerCrash, job.path, r)
		}
	}()

	wavPath, err := decode.ConvertToWAV(ctx, job.path, cfg.TempDir, decode.ConvertOptions{SampleRate: cfg.SampleRate})
	if err != nil {
		out.err = fmt.Errorf("%w: %s: %v", echosigerr.ErrDecode, job.path, err)
		return out
	}
	defer utils.DeleteFile(wavPath)

	samples, err := decode.ReadWAV(wavPath)
	if err != nil {
		out.err = fmt.Errorf("%w: %s: %v", echosigerr.ErrDecode, job.path, err)
		return out
	}

	if cfg.Limited() {
		samples = decode.Trim(samples, *cfg.FingerprintLimit)
	}

	fp := make(model.Fingerprint)
	for _, channel := range samples.Channels {
		spec := fingerprint.Compute(channel)
		peaks := fingerprint.ExtractPeaks(spec)
		if len(peaks) == 0 {
			continue
		}
		fp.Union(fingerprint.Fingerprint(peaks))
	}
	if len(fp) == 0 {
		out.err = fmt.Errorf("%w: %s", echosigerr.ErrNoRecording, job.path)
		return out
	}

	out.fp = fp
	if len(samples.Channels) > 0 {
		out.duration = float64(len(samples.Channels[0])) / float64(samples.SampleRate)
	}
	return out
}
