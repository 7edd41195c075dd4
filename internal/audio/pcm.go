package audio

import (
	"math"
)

// BytesToSamples decodes 16-bit little-endian PCM. A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes encodes samples as 16-bit little-endian PCM
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// DecodeMulaw converts G.711 μ-law bytes to 16-bit little-endian PCM
func DecodeMulaw(pcmu []byte) []byte {
	pcm := make([]byte, len(pcmu)*2)
	for i, b := range pcmu {
		sample := mulawToLinear(b)
		pcm[i*2] = byte(sample)
		pcm[i*2+1] = byte(sample >> 8)
	}
	return pcm
}

const mulawBias = 0x84

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := int32((b >> 4) & 0x07)
	mantissa := int32(b & 0x0F)

	magnitude := ((mantissa << 3) + mulawBias) << exponent
	magnitude -= mulawBias

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// CalculateRMS calculates the Root Mean Square energy of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
