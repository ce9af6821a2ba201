// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	applog "jackconnector/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrAlreadyRecording = errors.New("already recording")

// Recorder writes the capture ports of every period to a WAV file,
// interleaved in registry order. It taps the consumer chain as a Middleware
// and so runs on the bridge's serving goroutine, never on the audio thread.
type Recorder struct {
	sampleRate int
	bitDepth   int
	logger     *applog.Logger

	isRecording atomic.Int32

	mu         sync.Mutex
	channels   int
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer
	frames     int64
	writeErr   error
}

// NewRecorder creates an idle recorder. bitDepth is 16, 24 or 32.
func NewRecorder(sampleRate, bitDepth int) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		logger:     applog.With("recorder"),
	}
}

// Start creates filename and begins recording channels interleaved capture
// channels. Periods with fewer capture ports are padded with silence.
func (r *Recorder) Start(filename string, channels int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() == 1 {
		return ErrAlreadyRecording
	}
	if channels <= 0 {
		return fmt.Errorf("start recording: no capture channels")
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}

	r.outputFile = file
	r.channels = channels
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, r.bitDepth, channels, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  r.sampleRate,
		},
		SourceBitDepth: r.bitDepth,
	}
	r.frames = 0
	r.writeErr = nil

	r.isRecording.Store(1)
	r.logger.Infof("recording %d channels to %s", channels, filename)
	return nil
}

// Stop finalizes the WAV header and closes the file. Stopping an idle
// recorder is a no-op. A write error seen while recording is returned here.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRecording.Load() == 0 && r.outputFile == nil {
		return nil
	}
	r.isRecording.Store(0)

	errs := []error{r.writeErr}
	if r.wavEncoder != nil {
		errs = append(errs, r.wavEncoder.Close())
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		errs = append(errs, r.outputFile.Close())
		r.outputFile = nil
	}
	r.logger.Infof("recorded %d frames", r.frames)
	return errors.Join(errs...)
}

// Recording reports whether periods are being written.
func (r *Recorder) Recording() bool {
	return r.isRecording.Load() == 1
}

// Frames returns the number of frames written since Start.
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Middleware taps capture samples before handing the period on.
func (r *Recorder) Middleware(next ProcessFunc) ProcessFunc {
	return func(req PeriodRequest) (PeriodResponse, error) {
		if r.isRecording.Load() == 1 {
			r.write(req)
		}
		return next(req)
	}
}

func (r *Recorder) write(req PeriodRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return
	}

	n := req.Frames * r.channels
	if cap(r.sampleBuf.Data) < n {
		r.sampleBuf.Data = make([]int, n)
	}
	data := r.sampleBuf.Data[:n]
	scale := float32(int64(1)<<(r.bitDepth-1) - 1)

	for ch := range r.channels {
		var samples []float32
		if ch < len(req.Inputs) {
			samples = req.Capture[req.Inputs[ch]]
		}
		for i := range req.Frames {
			var s float32
			if i < len(samples) {
				s = samples[i]
			}
			data[i*r.channels+ch] = int(clampUnit(s) * scale)
		}
	}
	r.sampleBuf.Data = data

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		r.writeErr = fmt.Errorf("write wav: %w", err)
		r.isRecording.Store(0)
		r.logger.Errorf("recording stopped: %v", err)
		return
	}
	r.frames += int64(req.Frames)
}

func clampUnit(s float32) float32 {
	switch {
	case s != s:
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
