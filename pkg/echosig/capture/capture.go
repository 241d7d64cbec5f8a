// Package capture records microphone audio for recognition, adapted from
// DanielCarmel-media-luna's MicrophoneRecorder onto a context-driven API
// that buffers each audio channel and hands out copies via Snapshot/Tail.
package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

// Recorder captures microphone input at a fixed sample rate and channel
// count, deinterleaving it into one in-memory buffer per channel that a
// caller can snapshot at any point, e.g. once enough audio has built up for
// a recognition attempt. The recognizer fingerprints each channel
// independently and unions the matches, per spec.md §6.
type Recorder struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	buffer [][]float64 // one slice per channel

	stream *portaudio.Stream
}

// New opens the default input device at sampleRate with the given channel
// count (clamped to at least 1). Call Stop when finished to release the
// PortAudio stream.
func New(sampleRate, channels int) (*Recorder, error) {
	if channels < 1 {
		channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("resolving default input device: %w", err)
	}

	r := &Recorder{sampleRate: sampleRate, channels: channels, buffer: make([][]float64, channels)}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, r.onAudio)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening audio stream: %w", err)
	}
	r.stream = stream
	return r, nil
}

// onAudio receives interleaved frames (one sample per channel, per frame)
// and deinterleaves them into r.buffer.
func (r *Recorder) onAudio(in []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := len(in) / r.channels
	for fr := 0; fr < frames; fr++ {
		base := fr * r.channels
		for ch := 0; ch < r.channels; ch++ {
			r.buffer[ch] = append(r.buffer[ch], float64(in[base+ch]))
		}
	}
}

// Start begins streaming from the input device. Recording stops when ctx is
// canceled or Stop is called, whichever comes first.
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.stream.Start(); err != nil {
		return fmt.Errorf("starting audio stream: %w", err)
	}
	go func() {
		<-ctx.Done()
		r.stream.Stop()
	}()
	return nil
}

// Snapshot returns a copy of every sample captured so far on each channel,
// at the recorder's sample rate.
func (r *Recorder) Snapshot() ([][]float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]float64, len(r.buffer))
	for i, ch := range r.buffer {
		out[i] = append([]float64(nil), ch...)
	}
	return out, r.sampleRate
}

// Tail returns the most recent windowSeconds of captured audio on each
// channel, or everything captured so far if less than that has
// accumulated.
func (r *Recorder) Tail(windowSeconds float64) ([][]float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := int(windowSeconds * float64(r.sampleRate))
	out := make([][]float64, len(r.buffer))
	for i, ch := range r.buffer {
		start := 0
		if want < len(ch) {
			start = len(ch) - want
		}
		out[i] = append([]float64(nil), ch[start:]...)
	}
	return out, r.sampleRate
}

// Stop halts the stream and releases PortAudio resources. Safe to call more
// than once.
func (r *Recorder) Stop() error {
	if r.stream == nil {
		return nil
	}
	stream := r.stream
	r.stream = nil

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("stopping audio stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("closing audio stream: %w", err)
	}
	return portaudio.Terminate()
}
