package speech

import (
	"encoding/binary"
	"math"
)

// EncodePCM16 converts integer-valued samples to 16-bit little-endian PCM.
// Values are clamped to the int16 range and truncated toward zero.
func EncodePCM16(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
