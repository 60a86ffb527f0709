package dsp

import "encoding/binary"

const (
	// SampleRate is the wire sample rate in Hz.
	SampleRate = 22050

	// FrameSamples is the number of samples per wire frame (20 ms at 22050 Hz).
	FrameSamples = 441

	// FrameBytes is the size of one wire frame: FrameSamples int16 LE samples.
	FrameBytes = FrameSamples * 2
)

// Framer accumulates conditioned samples into fixed-size wire frames. It owns
// a [Conditioner], so a Framer serves exactly one stream. Not safe for
// concurrent use.
type Framer struct {
	cond *Conditioner
	buf  []byte
}

// NewFramer returns a Framer with fresh filter state.
func NewFramer() *Framer {
	return &Framer{
		cond: NewConditioner(),
		buf:  make([]byte, 0, FrameBytes),
	}
}

// Push conditions the given samples and returns any frames completed by them,
// in order. Samples that do not fill a frame are retained for the next call.
func (f *Framer) Push(samples []float32) [][]byte {
	var frames [][]byte
	for _, s := range samples {
		f.buf = binary.LittleEndian.AppendUint16(f.buf, uint16(f.cond.Process(s)))
		if len(f.buf) == FrameBytes {
			frames = append(frames, f.buf)
			f.buf = make([]byte, 0, FrameBytes)
		}
	}
	return frames
}

// Flush zero-pads and returns the trailing partial frame, if any. After Flush
// the Framer is empty; the filter state is not reset, but a flushed stream is
// finished and the Framer should be discarded.
func (f *Framer) Flush() ([]byte, bool) {
	if len(f.buf) == 0 {
		return nil, false
	}
	frame := f.buf
	for len(frame) < FrameBytes {
		frame = append(frame, 0, 0)
	}
	f.buf = make([]byte, 0, FrameBytes)
	return frame, true
}

// Pending reports how many samples are buffered awaiting a full frame.
func (f *Framer) Pending() int {
	return len(f.buf) / 2
}
