// Package decode turns an arbitrary input audio file into its separated,
// normalized per-channel PCM samples, ready for the fingerprinting pipeline
// to hash each channel independently, and computes the content hash ingest
// uses to detect byte-identical re-submissions. Conversion to a canonical
// WAV shells out to ffmpeg, grounded on the teacher's
// pkg/acousticdna/audio/processor.go; the PCM decode itself uses
// go-audio/wav and go-audio/audio, as Prayush09-MusicRecognition's upload
// pipeline does, rather than the teacher's hand-rolled RIFF chunk reader.
package decode

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/echosig/echosig/pkg/utils"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ContentHashBlockSize is the fixed block size the content hash is computed
// over: reading in uniform 1 MiB blocks keeps hashing memory bounded
// regardless of file size and makes the hash independent of any particular
// I/O buffering choice.
const ContentHashBlockSize = 1 << 20

// ConvertOptions configures the ffmpeg WAV conversion step.
type ConvertOptions struct {
	SampleRate int
}

// ConvertToWAV shells out to ffmpeg to produce a 16-bit PCM WAV file at the
// configured sample rate, preserving the input's original channel layout so
// the fingerprinting pipeline can hash each channel on its own, writing it
// under outputDir. The caller owns cleanup of the returned path.
func ConvertToWAV(ctx context.Context, inputPath, outputDir string, opts ConvertOptions) (string, error) {
	if opts.SampleRate == 0 {
		opts.SampleRate = 44100
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", fmt.Errorf("creating decode work directory: %w", err)
	}

	// Prefix with a UUID: two workers converting files that share a
	// basename (e.g. two different artists' "track01.mp3") must not race
	// on the same output path.
	outputPath := filepath.Join(outputDir, utils.GenerateUUID()+"-"+filepath.Base(inputPath)+".wav")
	tmpPath := outputPath + ".tmp"
	defer utils.DeleteFile(tmpPath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y", "-v", "quiet",
		"-i", inputPath,
		"-ar", fmt.Sprintf("%d", opts.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg: %w (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Samples is a decoded recording's separated per-channel PCM data,
// normalized to [-1, 1], plus the sample rate it was captured or decoded
// at. Channels are independent: spec.md §4.6 step 4 fingerprints each one
// on its own and unions the resulting landmark sets, rather than mixing
// channels down before hashing.
type Samples struct {
	Channels   [][]float64
	SampleRate int
}

// ReadWAV decodes a PCM WAV file into its normalized per-channel float64
// samples, one slice per channel in the file's original channel order.
func ReadWAV(path string) (Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return Samples{}, fmt.Errorf("opening wav file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Samples{}, fmt.Errorf("%s is not a valid wav file", path)
	}

	format := decoder.Format()
	numChannels := int(format.NumChannels)
	if numChannels < 1 {
		return Samples{}, fmt.Errorf("invalid channel count %d", numChannels)
	}

	const bufferFrames = 8192
	buf := &audio.IntBuffer{
		Data:   make([]int, bufferFrames*numChannels),
		Format: format,
	}

	const scale = 1.0 / 32768.0
	channels := make([][]float64, numChannels)

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return Samples{}, fmt.Errorf("reading pcm data: %w", err)
		}
		if n == 0 {
			break
		}

		frames := n / numChannels
		for fr := 0; fr < frames; fr++ {
			base := fr * numChannels
			for ch := 0; ch < numChannels; ch++ {
				channels[ch] = append(channels[ch], float64(buf.Data[base+ch])*scale)
			}
		}

		if n < len(buf.Data) {
			break
		}
	}

	return Samples{Channels: channels, SampleRate: int(format.SampleRate)}, nil
}

// Trim restricts every channel to at most limitSeconds of audio from the
// start, implementing the fingerprint_limit configuration option. A
// non-positive limit means "no limit".
func Trim(s Samples, limitSeconds float64) Samples {
	if limitSeconds <= 0 {
		return s
	}
	maxSamples := int(limitSeconds * float64(s.SampleRate))

	out := Samples{SampleRate: s.SampleRate, Channels: make([][]float64, len(s.Channels))}
	for i, ch := range s.Channels {
		if maxSamples >= len(ch) {
			out.Channels[i] = ch
			continue
		}
		out.Channels[i] = ch[:maxSamples]
	}
	return out
}

// ContentHash computes the SHA1 digest of a file's bytes, read in fixed
// ContentHashBlockSize blocks, used to detect a byte-identical re-ingest
// before any decode or fingerprint work runs.
func ContentHash(path string) ([20]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [20]byte{}, fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, ContentHashBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return [20]byte{}, fmt.Errorf("hashing file contents: %w", err)
	}

	var sum [20]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
