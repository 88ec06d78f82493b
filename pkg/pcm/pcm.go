// Package pcm converts between floating-point audio samples, raw PCM16
// little-endian bytes, and the base64 text form used on the wire.
// All functions are pure; the package holds no state.
package pcm

import (
	"encoding/base64"
	"errors"
	"time"
)

// ErrTruncated is returned when a PCM16 byte buffer has an odd length
// and cannot be decoded into whole samples.
var ErrTruncated = errors.New("pcm: truncated buffer, odd byte length")

// EncodeSamples converts float32 samples to PCM16 little-endian bytes.
// Samples are clamped to [-1, 1]; out-of-range input never errors.
func EncodeSamples(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}

		var s int16
		if f >= 0 {
			s = int16(f * 32767)
		} else {
			s = int16(f * 32768)
		}

		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}
	return data
}

// DecodeSamples converts PCM16 little-endian bytes to float32 samples
// in [-1, 1). Returns ErrTruncated if the buffer length is odd.
func DecodeSamples(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrTruncated
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float32(s) / 32768
	}
	return samples, nil
}

// ToTransportText encodes raw bytes as base64 for JSON transport.
func ToTransportText(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FromTransportText decodes base64 transport text back to raw bytes.
func FromTransportText(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(uint16(s) >> 8)
	}
	return data
}

// Duration returns the playback duration of a PCM16 byte buffer.
func Duration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
