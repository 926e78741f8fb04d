package audiotest

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := []int16{100, -200, 300}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}
	if !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Errorf("Missing RIFF/WAVE markers: %q", data[:12])
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != 6 {
		t.Errorf("Expected data size 6, got %d", size)
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []int16{100, 200, 300}

	if _, err := EncodeWAV(samples, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := EncodeWAV(samples, -1000); err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestWriteWAV(t *testing.T) {
	path := WriteWAV(t, t.TempDir(), "clip.wav", []int16{1, 2}, 8000)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	if len(data) != 48 {
		t.Errorf("Expected 48 bytes, got %d", len(data))
	}
}
