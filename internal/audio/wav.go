package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// wavFormat is the subset of the "fmt " chunk we care about
type wavFormat struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// WAVInfo describes a normalized PCM container
type WAVInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	DataSize      uint32        `json:"data_size_bytes"`
	NumSamples    uint32        `json:"num_samples"`
	Duration      time.Duration `json:"duration"`
}

// parseWAV walks the RIFF chunk list and returns the format and the raw data payload.
// ffmpeg emits a LIST chunk between "fmt " and "data", so offsets are never assumed.
func parseWAV(data []byte) (*wavFormat, []byte, error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var format *wavFormat
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, nil, fmt.Errorf("invalid WAV file: truncated fmt chunk")
			}
			var f wavFormat
			if err := binary.Read(bytes.NewReader(data[body:body+16]), binary.LittleEndian, &f); err != nil {
				return nil, nil, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			format = &f
		case "data":
			if format == nil {
				return nil, nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			end := body + size
			// Streaming writers may leave the size unset
			if end > len(data) || size == 0 {
				end = len(data)
			}
			return format, data[body:end], nil
		}

		// Chunks are word aligned
		offset = body + size + size%2
	}

	if format == nil {
		return nil, nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	return nil, nil, fmt.Errorf("invalid WAV file: missing data chunk")
}

// DecodeWAV decodes WAV data into mono PCM-16 samples
func DecodeWAV(data []byte) ([]int16, int, error) {
	format, payload, err := parseWAV(data)
	if err != nil {
		return nil, 0, err
	}

	if format.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.AudioFormat)
	}

	if format.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", format.BitsPerSample)
	}

	if format.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", format.NumChannels)
	}

	samples := make([]int16, len(payload)/2)
	if err := binary.Read(bytes.NewReader(payload[:len(samples)*2]), binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, int(format.SampleRate), nil
}

// GetWAVInfo extracts metadata from WAV data
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	format, payload, err := parseWAV(data)
	if err != nil {
		return nil, err
	}

	if format.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	info := &WAVInfo{
		SampleRate:    format.SampleRate,
		Channels:      format.NumChannels,
		BitsPerSample: format.BitsPerSample,
		DataSize:      uint32(len(payload)),
	}

	if format.BlockAlign > 0 {
		info.NumSamples = info.DataSize / uint32(format.BlockAlign)
	}
	info.Duration = time.Duration(float64(info.NumSamples) / float64(format.SampleRate) * float64(time.Second))

	return info, nil
}

// ReadWAVInfo reads and inspects a WAV file on disk
func ReadWAVInfo(path string) (*WAVInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV file %s: %w", path, err)
	}
	return GetWAVInfo(data)
}
