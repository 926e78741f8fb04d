package vad

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/AmalSKumar0/voicebot/internal/audio/audiotest"
)

func tone(n int, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*440.0*float64(i)/16000.0))
	}
	return samples
}

func TestNewProcessor(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	if processor.GetThreshold() != 0.02 {
		t.Errorf("Expected threshold 0.02, got %f", processor.GetThreshold())
	}

	if processor.GetWindowSize() != 512 {
		t.Errorf("Expected window size 512, got %d", processor.GetWindowSize())
	}
}

func TestNewProcessorValidation(t *testing.T) {
	tests := []struct {
		name       string
		threshold  float32
		windowSize int
		expectErr  bool
	}{
		{"valid", 0.5, 512, false},
		{"zero threshold", 0, 512, false},
		{"negative threshold", -0.1, 512, true},
		{"threshold above one", 1.5, 512, true},
		{"zero window", 0.5, 0, true},
		{"negative window", 0.5, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.threshold, tt.windowSize)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestProcessWrongSampleCount(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	if _, err := processor.Process(make([]int16, 256)); err == nil {
		t.Error("Expected error for wrong sample count")
	}
}

func TestVoiceActivityDetection(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name        string
		samples     []int16
		expectVoice bool
	}{
		{"silence", make([]int16, 512), false},
		{"low hiss", tone(512, 100), false},
		{"speech level tone", tone(512, 8000), true},
		{"full scale square", func() []int16 {
			s := make([]int16, 512)
			for i := range s {
				s[i] = math.MaxInt16
			}
			return s
		}(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := processor.Process(tt.samples)
			if err != nil {
				t.Fatalf("Process failed: %v", err)
			}
			if result.Probability < 0 || result.Probability > 1 {
				t.Errorf("Invalid probability: %f", result.Probability)
			}
			if result.HasVoice != tt.expectVoice {
				t.Errorf("Expected voice=%v, got %v (probability %.4f)", tt.expectVoice, result.HasVoice, result.Probability)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	// Two silent windows, then a short burst in a partial trailing window
	samples := append(make([]int16, 1024), tone(300, 12000)...)
	analysis := processor.Analyze(samples)

	if analysis.Windows != 3 {
		t.Errorf("Expected 3 windows, got %d", analysis.Windows)
	}
	if analysis.VoiceWindows != 1 {
		t.Errorf("Expected 1 voice window, got %d", analysis.VoiceWindows)
	}
	if !analysis.HasVoice {
		t.Error("Expected fragment to contain voice")
	}

	silent := processor.Analyze(make([]int16, 4096))
	if silent.HasVoice {
		t.Error("Expected silent fragment")
	}

	empty := processor.Analyze(nil)
	if empty.Windows != 0 || empty.HasVoice {
		t.Errorf("Expected empty analysis, got %+v", empty)
	}
}

func TestAnalyzeFile(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	dir := t.TempDir()
	write := func(name string, samples []int16) string {
		data, err := audiotest.EncodeWAV(samples, 16000)
		if err != nil {
			t.Fatalf("EncodeWAV failed: %v", err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	voiced, err := processor.AnalyzeFile(write("voiced.wav", tone(16000, 10000)))
	if err != nil {
		t.Fatalf("AnalyzeFile failed: %v", err)
	}
	if !voiced.HasVoice {
		t.Error("Expected voiced file to contain voice")
	}

	silent, err := processor.AnalyzeFile(write("silent.wav", make([]int16, 16000)))
	if err != nil {
		t.Fatalf("AnalyzeFile failed: %v", err)
	}
	if silent.HasVoice {
		t.Error("Expected silent file")
	}

	if _, err := processor.AnalyzeFile(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}

	garbage := filepath.Join(dir, "garbage.wav")
	if err := os.WriteFile(garbage, []byte("not a wav"), 0o600); err != nil {
		t.Fatalf("Failed to write garbage: %v", err)
	}
	if _, err := processor.AnalyzeFile(garbage); err == nil {
		t.Error("Expected error for invalid WAV")
	}

	stats := processor.GetStats()
	if stats.FilesAnalyzed != 2 || stats.FilesSilent != 1 {
		t.Errorf("Unexpected file stats: %+v", stats)
	}
}

func TestProcessorStats(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	stats := processor.GetStats()
	if stats.TotalWindows != 0 || stats.VoicePercentage != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}

	processor.Process(make([]int16, 512))
	processor.Process(tone(512, 8000))

	stats = processor.GetStats()
	if stats.TotalWindows != 2 {
		t.Errorf("Expected 2 windows, got %d", stats.TotalWindows)
	}
	if stats.VoiceWindows != 1 {
		t.Errorf("Expected 1 voice window, got %d", stats.VoiceWindows)
	}
	if stats.VoicePercentage != 50 {
		t.Errorf("Expected 50%% voice, got %f", stats.VoicePercentage)
	}
	if stats.LastProcessed.IsZero() {
		t.Error("Expected last processed time to be set")
	}
}

func TestConcurrentProcessing(t *testing.T) {
	processor, err := NewProcessor(0.02, 512)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	numGoroutines := 5
	numProcessPerGoroutine := 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			samples := tone(512, float64(id*1000))
			for j := 0; j < numProcessPerGoroutine; j++ {
				if _, err := processor.Process(samples); err != nil {
					t.Errorf("Goroutine %d failed to process: %v", id, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	stats := processor.GetStats()
	expectedWindows := uint64(numGoroutines * numProcessPerGoroutine)
	if stats.TotalWindows != expectedWindows {
		t.Errorf("Expected %d total windows, got %d", expectedWindows, stats.TotalWindows)
	}
}
