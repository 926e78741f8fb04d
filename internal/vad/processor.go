package vad

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/AmalSKumar0/voicebot/internal/audio"
)

// Processor is an energy-based voice activity detector used to skip
// transcription of fragments that contain only silence. It holds no
// per-stream state and is safe to share between sessions.
type Processor struct {
	threshold  float32
	windowSize int // samples per window (512 = 32ms at 16kHz)

	// Statistics
	totalWindows  uint64
	voiceWindows  uint64
	filesAnalyzed uint64
	filesSilent   uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// VADResult represents the result of voice activity detection on one window
type VADResult struct {
	Probability float32 `json:"probability"` // normalized RMS energy (0.0 - 1.0)
	HasVoice    bool    `json:"has_voice"`
}

// Analysis summarizes a whole fragment
type Analysis struct {
	Windows         int           `json:"windows"`
	VoiceWindows    int           `json:"voice_windows"`
	PeakProbability float32       `json:"peak_probability"`
	HasVoice        bool          `json:"has_voice"`
	ProcessingTime  time.Duration `json:"processing_time"`
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	FilesAnalyzed   uint64    `json:"files_analyzed"`
	FilesSilent     uint64    `json:"files_silent"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewProcessor creates a new VAD processor instance
func NewProcessor(threshold float32, windowSize int) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", windowSize)
	}

	return &Processor{
		threshold:  threshold,
		windowSize: windowSize,
	}, nil
}

// Process scores a single window of samples
func (p *Processor) Process(samples []int16) (*VADResult, error) {
	if len(samples) != p.windowSize {
		return nil, fmt.Errorf("expected %d samples, got %d", p.windowSize, len(samples))
	}

	probability := windowEnergy(samples)
	hasVoice := probability >= p.GetThreshold()

	p.mu.Lock()
	p.totalWindows++
	if hasVoice {
		p.voiceWindows++
	}
	p.lastProcessed = time.Now()
	p.mu.Unlock()

	return &VADResult{Probability: probability, HasVoice: hasVoice}, nil
}

// Analyze scores consecutive windows of samples; a trailing partial window
// is zero-padded.
func (p *Processor) Analyze(samples []int16) Analysis {
	startTime := time.Now()
	var analysis Analysis

	window := make([]int16, p.windowSize)
	for offset := 0; offset < len(samples); offset += p.windowSize {
		end := offset + p.windowSize
		if end > len(samples) {
			clear(window)
			copy(window, samples[offset:])
		} else {
			copy(window, samples[offset:end])
		}

		result, err := p.Process(window)
		if err != nil {
			continue
		}

		analysis.Windows++
		if result.HasVoice {
			analysis.VoiceWindows++
		}
		if result.Probability > analysis.PeakProbability {
			analysis.PeakProbability = result.Probability
		}
	}

	analysis.HasVoice = analysis.VoiceWindows > 0
	analysis.ProcessingTime = time.Since(startTime)

	p.mu.Lock()
	p.filesAnalyzed++
	if !analysis.HasVoice {
		p.filesSilent++
	}
	p.mu.Unlock()

	return analysis
}

// AnalyzeFile decodes a normalized WAV file and analyzes it
func (p *Processor) AnalyzeFile(path string) (Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	samples, _, err := audio.DecodeWAV(data)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return p.Analyze(samples), nil
}

// windowEnergy returns the RMS energy of samples relative to full scale
func windowEnergy(samples []int16) float32 {
	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	energy = math.Sqrt(energy/float64(len(samples))) / 32768.0

	if energy > 1.0 {
		energy = 1.0
	}
	return float32(energy)
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		FilesAnalyzed:   p.filesAnalyzed,
		FilesSilent:     p.filesSilent,
		LastProcessed:   p.lastProcessed,
		Threshold:       p.threshold,
	}
}

// GetThreshold returns the current voice detection threshold
func (p *Processor) GetThreshold() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threshold
}

// GetWindowSize returns the window size in samples
func (p *Processor) GetWindowSize() int {
	return p.windowSize
}
