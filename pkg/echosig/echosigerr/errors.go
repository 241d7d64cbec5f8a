// Package echosigerr defines the sentinel error categories the engine and
// its callers distinguish, per the decode/index/recognition failure modes a
// deployed fingerprinting service has to tell apart.
package echosigerr

import "errors"

var (
	// ErrDecode marks a failure in converting or decoding an input file
	// into PCM samples (ffmpeg failure, corrupt or unsupported audio).
	ErrDecode = errors.New("echosig: audio decode failed")

	// ErrIndexIO marks a transient index failure: connection drop, I/O
	// error, timeout. Safe to retry.
	ErrIndexIO = errors.New("echosig: index I/O failed")

	// ErrIndexSchema marks a fatal index failure: the schema does not
	// match what the running code expects. Not retryable.
	ErrIndexSchema = errors.New("echosig: index schema mismatch")

	// ErrNoRecording is returned when a query produces no peaks or no
	// landmark hashes at all, e.g. near-silent input.
	ErrNoRecording = errors.New("echosig: no usable audio in recording")

	// ErrWorkerCrash marks an ingest worker that panicked while processing
	// one file. The orchestrator recovers it, drops that file, and
	// continues with the rest of the batch.
	ErrWorkerCrash = errors.New("echosig: ingest worker crashed")
)
