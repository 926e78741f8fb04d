package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmalSKumar0/voicebot/internal/conversation"
)

func newTestOpenAIClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:     server.URL + "/openai/v1/",
		APIKey:      "secret",
		Model:       "llama3-70b-8192",
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestOpenAIClientComplete(t *testing.T) {
	client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3-70b-8192", req.Model)
		assert.InDelta(t, 0.7, req.Temperature, 1e-6)
		assert.Equal(t, []chatMessage{
			{Role: "system", Content: "persona"},
			{Role: "user", Content: "hello"},
		}, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"  Hey!  "},"finish_reason":"stop"}]}`))
	})

	text, err := client.Complete(context.Background(), []conversation.Message{
		{Role: conversation.RoleSystem, Content: "persona"},
		{Role: conversation.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hey!", text)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		contains string
	}{
		{"api error", http.StatusUnauthorized, `{"error":{"message":"invalid api key","type":"auth"}}`, "invalid api key"},
		{"plain error", http.StatusBadGateway, `bad gateway`, "status 502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrNoChoices.Error()},
		{"malformed", http.StatusOK, `{"choices":`, "failed to parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestNewOpenAIClientValidation(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewOpenAIClient(OpenAIConfig{BaseURL: "http://x"})
	assert.Error(t, err)

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://x/", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "http://x", client.config.BaseURL)
	assert.Equal(t, 30*time.Second, client.config.Timeout)
}
