package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AmalSKumar0/voicebot/internal/conversation"
)

const chatCompletionsPath = "/chat/completions"

// ErrNoChoices is returned when the API answers without a completion
var ErrNoChoices = errors.New("no completion choices returned")

// OpenAIConfig contains chat-completion client configuration
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAIClient implements Engine against an OpenAI-compatible API
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *http.Client
}

// API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewOpenAIClient creates a chat-completion client
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &OpenAIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Complete implements Engine.
func (c *OpenAIClient) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	req := chatRequest{
		Model:       c.config.Model,
		Messages:    make([]chatMessage, len(messages)),
		Temperature: c.config.Temperature,
	}
	for i, msg := range messages {
		req.Messages[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var chatResp chatResponse
	jsonErr := json.Unmarshal(respBody, &chatResp)

	if resp.StatusCode != http.StatusOK {
		if jsonErr == nil && chatResp.Error != nil && chatResp.Error.Message != "" {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, chatResp.Error.Message)
		}
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if jsonErr != nil {
		return "", fmt.Errorf("failed to parse response: %w", jsonErr)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrNoChoices
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
