// Package wavio is the offline audio-graph adapter: it reads WAV files into
// fixed-size stereo float32 blocks, drives a processor block by block and
// writes the result back out as PCM WAV.
package wavio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-fxhost/dsp/core"
)

// ErrInvalidFile is returned for streams that are not PCM WAV.
var ErrInvalidFile = errors.New("wavio: invalid WAV stream")

const pcmFormat = 1

// maxValue is the full-scale integer of a PCM bit depth.
func maxValue(bitDepth int) float64 {
	switch bitDepth {
	case 16, 24, 32:
		return float64(int64(1)<<(bitDepth-1)) - 1
	default:
		return 0
	}
}

// Reader yields stereo blocks from a WAV stream. Mono input is duplicated
// to both channels; channels beyond the second are dropped.
type Reader struct {
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	rate     int
	channels int
	bitDepth int
	inv      float64
}

// NewReader validates the stream header.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidFile
	}

	format := dec.Format()
	bitDepth := int(dec.BitDepth)

	fullScale := maxValue(bitDepth)
	if fullScale == 0 || format.NumChannels < 1 {
		return nil, fmt.Errorf("%w: %d channels, %d bit", ErrInvalidFile, format.NumChannels, bitDepth)
	}

	return &Reader{
		dec:      dec,
		buf:      &audio.IntBuffer{Format: format},
		rate:     format.SampleRate,
		channels: format.NumChannels,
		bitDepth: bitDepth,
		inv:      1 / fullScale,
	}, nil
}

// SampleRate returns the stream rate in Hz.
func (r *Reader) SampleRate() int { return r.rate }

// Channels returns the channel count of the stream.
func (r *Reader) Channels() int { return r.channels }

// BitDepth returns the PCM sample width.
func (r *Reader) BitDepth() int { return r.bitDepth }

// ReadBlock fills left and right, which must have equal length, and
// returns the number of frames read. Frames past the end of the stream are
// zeroed. At the end of the stream it returns 0, io.EOF.
func (r *Reader) ReadBlock(left, right []float32) (int, error) {
	if len(left) != len(right) {
		return 0, fmt.Errorf("wavio: channel lengths differ: %d != %d", len(left), len(right))
	}

	want := len(left) * r.channels
	if cap(r.buf.Data) < want {
		r.buf.Data = make([]int, want)
	}

	r.buf.Data = r.buf.Data[:want]

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil {
		return 0, fmt.Errorf("wavio: read: %w", err)
	}

	frames := n / r.channels

	for i := range left {
		if i >= frames {
			left[i], right[i] = 0, 0
			continue
		}

		base := i * r.channels
		left[i] = float32(float64(r.buf.Data[base]) * r.inv)

		if r.channels == 1 {
			right[i] = left[i]
		} else {
			right[i] = float32(float64(r.buf.Data[base+1]) * r.inv)
		}
	}

	if frames == 0 {
		return 0, io.EOF
	}

	return frames, nil
}

// Writer encodes stereo blocks as PCM WAV.
type Writer struct {
	enc       *wav.Encoder
	buf       *audio.IntBuffer
	fullScale float64
}

// NewWriter starts a stereo stream of the given rate and bit depth on w.
// Close must be called to finalize the header.
func NewWriter(w io.WriteSeeker, sampleRate, bitDepth int) (*Writer, error) {
	fullScale := maxValue(bitDepth)
	if fullScale == 0 {
		return nil, fmt.Errorf("wavio: unsupported bit depth %d", bitDepth)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("wavio: invalid sample rate %d", sampleRate)
	}

	return &Writer{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, 2, pcmFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		fullScale: fullScale,
	}, nil
}

// WriteBlock interleaves and writes the frames of left and right.
// Samples are clipped to [-1, 1].
func (w *Writer) WriteBlock(left, right []float32) error {
	if len(left) != len(right) {
		return fmt.Errorf("wavio: channel lengths differ: %d != %d", len(left), len(right))
	}

	n := 2 * len(left)
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}

	w.buf.Data = w.buf.Data[:n]

	for i := range left {
		w.buf.Data[2*i] = w.quantize(left[i])
		w.buf.Data[2*i+1] = w.quantize(right[i])
	}

	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("wavio: write: %w", err)
	}

	return nil
}

func (w *Writer) quantize(s float32) int {
	return int(math.Round(core.Clamp(float64(s), -1, 1) * w.fullScale))
}

// Close flushes the encoder and patches the header sizes.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("wavio: close: %w", err)
	}

	return nil
}

// Processor is the block interface of an effect chain.
type Processor interface {
	Process(inL, inR, outL, outR []float32)
}

// Render pulls blocks of blockSize frames from r through p into w until the
// stream ends or ctx is canceled, and returns the number of frames
// written. The final short block is zero padded for p and truncated on
// output. p must already be set up for r's rate and blockSize.
func Render(ctx context.Context, p Processor, r *Reader, w *Writer, blockSize int) (int64, error) {
	if blockSize <= 0 {
		return 0, fmt.Errorf("wavio: invalid block size %d", blockSize)
	}

	var (
		inL  = make([]float32, blockSize)
		inR  = make([]float32, blockSize)
		outL = make([]float32, blockSize)
		outR = make([]float32, blockSize)
		done int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		n, err := r.ReadBlock(inL, inR)
		if errors.Is(err, io.EOF) {
			return done, nil
		}

		if err != nil {
			return done, err
		}

		p.Process(inL, inR, outL, outR)

		if err := w.WriteBlock(outL[:n], outR[:n]); err != nil {
			return done, err
		}

		done += int64(n)
	}
}
