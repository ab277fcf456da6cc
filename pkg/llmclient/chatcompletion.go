package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/handy-ai/handy-engine/pkg/herr"
)

// ChatMessage is one message of an OpenAI-compatible chat completion
// request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionClient is grounded directly on the OpenAI-compatible
// provider pattern: POST {base}/chat/completions with an Authorization:
// Bearer header, extracting choices[0].message.content, per spec.md §6.
type ChatCompletionClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewChatCompletionClient builds a client for any OpenAI-compatible
// endpoint (including Apple Intelligence-style local providers that
// speak the same wire protocol, per spec.md §4.11).
func NewChatCompletionClient(baseURL, apiKey, model string) *ChatCompletionClient {
	return &ChatCompletionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: totalTimeout},
	}
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends messages and returns the first choice's content.
func (c *ChatCompletionClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	body, err := json.Marshal(chatCompletionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", herr.Wrap(herr.Network, "marshaling chat completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", herr.Wrap(herr.Network, "building chat completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", herr.ErrUnreachable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", herr.HTTPStatus(resp.StatusCode, string(b))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", herr.Wrap(herr.Network, "decoding chat completion response", err)
	}
	if len(out.Choices) == 0 {
		return "", herr.New(herr.Network, "no choices returned")
	}
	return out.Choices[0].Message.Content, nil
}
