package audio

import (
	"encoding/binary"
	"fmt"
)

// wavHeaderSize is the size of a canonical PCM RIFF/WAV header.
const wavHeaderSize = 44

// EncodeWAV wraps mono 16-bit PCM samples in a standard RIFF/WAV container.
// The returned byte slice is suitable for a multipart upload or a temporary
// file without further processing.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * BitsPerSample / 8
	blockAlign := channels * BitsPerSample / 8
	dataSize := len(samples) * 2

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                    // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                     // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)              // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))    // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))      // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))    // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(BitsPerSample)) // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}

	return buf
}

// DecodeWAV parses a mono 16-bit PCM RIFF/WAV container produced by
// [EncodeWAV] and returns the sample sequence and sample rate. Only the
// canonical 44-byte header layout is supported.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("audio: wav data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE container")
	}
	if string(data[12:16]) != "fmt " {
		return nil, 0, fmt.Errorf("audio: missing fmt chunk")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return nil, 0, fmt.Errorf("audio: unsupported wav format %d (want PCM)", format)
	}
	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		return nil, 0, fmt.Errorf("audio: unsupported channel count %d (want mono)", channels)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != BitsPerSample {
		return nil, 0, fmt.Errorf("audio: unsupported bit depth %d (want %d)", bits, BitsPerSample)
	}
	if string(data[36:40]) != "data" {
		return nil, 0, fmt.Errorf("audio: missing data chunk")
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))
	if dataSize > len(data)-wavHeaderSize {
		return nil, 0, fmt.Errorf("audio: wav data chunk truncated: header says %d bytes, have %d", dataSize, len(data)-wavHeaderSize)
	}

	samples := make([]int16, dataSize/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[wavHeaderSize+i*2:]))
	}
	return samples, sampleRate, nil
}
