package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestResampleMono16_Identity(t *testing.T) {
	t.Parallel()

	in := pcm16(1, 2, 3, 4)
	if got := ResampleMono16(in, 16000, 16000); string(got) != string(in) {
		t.Error("same-rate resample modified the data")
	}
}

func TestResampleMono16_HalvesLength(t *testing.T) {
	t.Parallel()

	in := make([]byte, 2000) // 1000 samples
	out := ResampleMono16(in, 32000, 16000)
	if len(out) != 1000 {
		t.Errorf("len = %d, want 1000", len(out))
	}
}

func TestResampleMono16_Interpolates(t *testing.T) {
	t.Parallel()

	// Doubling the rate of [0, 100] must place ~50 between them.
	out := ResampleMono16(pcm16(0, 100), 8000, 16000)
	if len(out) != 8 {
		t.Fatalf("len = %d, want 8", len(out))
	}
	mid := int16(binary.LittleEndian.Uint16(out[2:]))
	if mid < 40 || mid > 60 {
		t.Errorf("interpolated sample = %d, want ≈ 50", mid)
	}
}

func TestStereoToMono_Averages(t *testing.T) {
	t.Parallel()

	in := pcm16(100, 200, -50, 50)
	out := StereoToMono(in)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if got := int16(binary.LittleEndian.Uint16(out[0:])); got != 150 {
		t.Errorf("frame 0 = %d, want 150", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:])); got != 0 {
		t.Errorf("frame 1 = %d, want 0", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS(pcm16(1000, -1000, 1000, -1000)); math.Abs(got-1000) > 0.001 {
		t.Errorf("RMS of ±1000 square = %v, want 1000", got)
	}
	if got := RMS(pcm16(0, 0, 0)); got != 0 {
		t.Errorf("RMS of silence = %v, want 0", got)
	}
}

func TestFloat32PCMRoundTrip(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.5, -0.5, 0.999, -1}
	out := PCM16ToFloat32(Float32ToPCM16(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 0.001 {
			t.Errorf("sample %d: got %v, want ≈ %v", i, out[i], in[i])
		}
	}
}

func TestFloat32ToPCM16_Clamps(t *testing.T) {
	t.Parallel()

	out := Float32ToPCM16([]float32{5, -5})
	if got := int16(binary.LittleEndian.Uint16(out[0:])); got != 32767 {
		t.Errorf("over-range sample = %d, want 32767", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:])); got != -32767 {
		t.Errorf("under-range sample = %d, want -32767", got)
	}
}
