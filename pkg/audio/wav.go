package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAV holds decoded PCM16 audio alongside the parameters needed to interpret
// it. Data is interleaved 16-bit LE samples.
type WAV struct {
	SampleRate int
	Channels   int
	Data       []byte
}

// ErrNotWAV reports that a payload lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE container")

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM. It walks the
// chunk list so extra chunks (LIST, fact, etc.) before or after the data chunk
// are tolerated.
func DecodeWAV(b []byte) (*WAV, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w       WAV
		gotFmt  bool
		gotData bool
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(b) {
			return nil, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("audio: fmt chunk too small (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(b[body:])
			if format != 1 { // PCM
				return nil, fmt.Errorf("audio: unsupported WAV format tag %d", format)
			}
			w.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			w.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			bits := binary.LittleEndian.Uint16(b[body+14:])
			if bits != 16 {
				return nil, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			gotFmt = true
		case "data":
			w.Data = b[body : body+size]
			gotData = true
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !gotFmt || !gotData {
		return nil, errors.New("audio: missing fmt or data chunk")
	}
	if w.Channels < 1 || w.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid fmt (channels=%d rate=%d)", w.Channels, w.SampleRate)
	}
	return &w, nil
}

// Mono returns the audio downmixed to a single channel. Mono input is returned
// as-is; more than two channels is rejected.
func (w *WAV) Mono() ([]byte, error) {
	switch w.Channels {
	case 1:
		return w.Data, nil
	case 2:
		return StereoToMono(w.Data), nil
	default:
		return nil, fmt.Errorf("audio: cannot downmix %d channels", w.Channels)
	}
}

// EncodeWAV wraps 16-bit mono PCM in a minimal RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
