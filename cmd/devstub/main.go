// Command devstub serves canned transcription and chat-completion responses
// so the voice server can run locally without model backends.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

type segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcriptionResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []segment `json:"segments"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type stub struct {
	logger     *slog.Logger
	transcript string
	delay      time.Duration
}

func (s *stub) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Transcription request received",
		slog.String("filename", header.Filename),
		slog.Int64("audio_bytes", size),
		slog.String("model", r.FormValue("model")),
		slog.String("beam_size", r.FormValue("beam_size")),
		slog.String("best_of", r.FormValue("best_of")),
		slog.String("vad_filter", r.FormValue("vad_filter")),
		slog.String("language", r.FormValue("language")),
	)

	// Simulate processing time
	time.Sleep(s.delay)

	words := strings.Fields(s.transcript)
	half := len(words) / 2
	response := transcriptionResponse{
		Text:     s.transcript,
		Language: "en",
		Duration: 2,
		Segments: []segment{
			{Start: 0, End: 1, Text: " " + strings.Join(words[:half], " ")},
			{Start: 1, End: 2, Text: " " + strings.Join(words[half:], " ")},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *stub) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request body"}}`, http.StatusBadRequest)
		return
	}

	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}

	s.logger.Info("Chat completion request received",
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)),
		slog.String("last_message", last),
	)

	time.Sleep(s.delay)

	response := map[string]interface{}{
		"id":     "chatcmpl-devstub",
		"object": "chat.completion",
		"model":  req.Model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       chatMessage{Role: "assistant", Content: "Oh wow... you said \"" + last + "\"! Tell me more!"},
				"finish_reason": "stop",
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	transcript := flag.String("transcript", "this is a test transcription", "Transcript returned for every upload")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := &stub{logger: logger, transcript: *transcript, delay: *delay}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", s.handleTranscription)
	mux.HandleFunc("/v1/chat/completions", s.handleChat)

	logger.Info("Development stub starting",
		slog.String("address", *addr),
		slog.String("transcription_endpoint", "/v1/audio/transcriptions"),
		slog.String("reply_base_url", "/v1"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
