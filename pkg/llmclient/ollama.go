// Package llmclient implements the local-LLM HTTP client (generate,
// embeddings, tags) and the OpenAI-compatible chat-completion client
// used for post-processing, per spec.md §4.8 and §6.
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/handy-ai/handy-engine/pkg/herr"
)

const (
	connectTimeout = 10 * time.Second
	totalTimeout   = 300 * time.Second
	tokenChanCap   = 100
)

// OllamaClient talks to a local-LLM HTTP endpoint exposing /api/generate,
// /api/embeddings, and /api/tags, as described in spec.md §6.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient builds a client against baseURL (e.g.
// "http://localhost:11434").
func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: totalTimeout,
		},
	}
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateChunk struct {
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	TotalDuration uint64 `json:"total_duration,omitempty"`
	EvalCount     uint64 `json:"eval_count,omitempty"`
}

// GenerateOptions mirrors the model-tuning fields spec.md §4.8 lists.
type GenerateOptions struct {
	Temperature float64
	NumCtx      int
}

func (o GenerateOptions) toMap() map[string]interface{} {
	m := map[string]interface{}{}
	if o.Temperature != 0 {
		m["temperature"] = o.Temperature
	}
	if o.NumCtx != 0 {
		m["num_ctx"] = o.NumCtx
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Generate sends a non-streaming request and returns the full response
// text.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	var full string
	err := c.generate(ctx, model, prompt, false, opts, func(chunk string) {
		full += chunk
	})
	return full, err
}

// GenerateStream sends a streaming request, passing each response chunk
// to onChunk as it arrives, and returns the concatenation once done.
// onChunk cannot stop generation; a caller wanting early termination
// should cancel ctx.
func (c *OllamaClient) GenerateStream(ctx context.Context, model, prompt string, opts GenerateOptions, onChunk func(string)) (string, error) {
	var full string
	err := c.generate(ctx, model, prompt, true, opts, func(chunk string) {
		full += chunk
		if onChunk != nil {
			onChunk(chunk)
		}
	})
	return full, err
}

// StreamToChannel runs a streaming generate request and forwards chunks
// on a bounded (capacity 100) channel, matching spec.md §5's
// token-streaming discipline. The channel is closed when generation
// completes or fails; a send that would block (channel full) is treated
// as "consumer gone" and terminates the stream gracefully, without an
// error, rather than blocking or panicking.
func (c *OllamaClient) StreamToChannel(ctx context.Context, model, prompt string, opts GenerateOptions) (<-chan string, <-chan error) {
	tokens := make(chan string, tokenChanCap)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		genCtx, stop := context.WithCancel(ctx)
		defer stop()
		consumerGone := false
		err := c.generate(genCtx, model, prompt, true, opts, func(chunk string) {
			if consumerGone {
				return
			}
			select {
			case tokens <- chunk:
			case <-ctx.Done():
			default:
				// Consumer gone or too slow: end generation rather than
				// block the producer goroutine forever.
				consumerGone = true
				stop()
			}
		})
		if err != nil && !consumerGone {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return tokens, errs
}

func (c *OllamaClient) generate(ctx context.Context, model, prompt string, stream bool, opts GenerateOptions, onChunk func(string)) (retErr error) {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  stream,
		Options: opts.toMap(),
	})
	if err != nil {
		return herr.Wrap(herr.Network, "marshaling generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return herr.Wrap(herr.Network, "building generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return herr.ErrUnreachable.WithDetails(ctx.Err().Error())
		}
		return herr.Wrap(herr.Network, "contacting LLM endpoint", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return herr.HTTPStatus(resp.StatusCode, string(b))
	}

	if !stream {
		var chunk generateChunk
		if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
			return herr.Wrap(herr.Network, "decoding generate response", err).WithDetails(err.Error())
		}
		onChunk(chunk.Response)
		return nil
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return herr.ErrCancelled
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return herr.ErrMalformedChunk.WithDetails(string(line))
		}
		onChunk(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return herr.Wrap(herr.Network, "reading stream", err)
	}
	return nil
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embeddings calls POST /api/embeddings.
func (c *OllamaClient) Embeddings(ctx context.Context, model, prompt string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	body, err := json.Marshal(embeddingsRequest{Model: model, Prompt: prompt})
	if err != nil {
		return nil, herr.Wrap(herr.Network, "marshaling embeddings request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, herr.Wrap(herr.Network, "building embeddings request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, herr.ErrUnreachable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, herr.HTTPStatus(resp.StatusCode, string(b))
	}

	var out embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, herr.Wrap(herr.Network, "decoding embeddings response", err)
	}
	return out.Embedding, nil
}

// ModelInfo is one entry of GET /api/tags.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	Digest     string `json:"digest,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// Tags calls GET /api/tags, used both as a readiness probe and for UI
// model population.
func (c *OllamaClient) Tags(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, herr.Wrap(herr.Network, "building tags request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, herr.ErrUnreachable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, herr.HTTPStatus(resp.StatusCode, string(b))
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, herr.Wrap(herr.Network, "decoding tags response", err)
	}
	return out.Models, nil
}
