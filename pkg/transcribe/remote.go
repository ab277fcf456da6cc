package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/handy-ai/handy-engine/pkg/audio"
	"github.com/handy-ai/handy-engine/pkg/herr"
)

// DeepgramEngine is a remote Engine backend, grounded on the teacher's
// DeepgramSTT provider: samples are encoded as 16-bit PCM and POSTed to
// Deepgram's listen endpoint. Load/Unload are no-ops since there is no
// local model to manage.
type DeepgramEngine struct {
	apiKey string
	url    string
	client *http.Client
}

// NewDeepgramEngine builds a Deepgram-backed Engine.
func NewDeepgramEngine(apiKey string) *DeepgramEngine {
	return &DeepgramEngine{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
		client: &http.Client{},
	}
}

func (e *DeepgramEngine) Load(context.Context) error   { return nil }
func (e *DeepgramEngine) Unload(context.Context) error { return nil }

// Transcribe encodes samples as 16kHz mono 16-bit PCM and posts them
// to Deepgram; translateToEnglish is unsupported by this backend and
// ignored (Deepgram has no translation task).
func (e *DeepgramEngine) Transcribe(ctx context.Context, samples []float32, language string, translateToEnglish bool) (string, error) {
	u, err := url.Parse(e.url)
	if err != nil {
		return "", herr.Wrap(herr.Network, "parsing deepgram url", err)
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if language != "" && language != "auto" {
		params.Set("language", language)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audio.EncodePCM16(samples)))
	if err != nil {
		return "", herr.Wrap(herr.Network, "building deepgram request", err)
	}
	req.Header.Set("Authorization", "Token "+e.apiKey)
	req.Header.Set("Content-Type", "audio/l16; rate=16000; channels=1")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", herr.ErrUnreachable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", herr.HTTPStatus(resp.StatusCode, string(body))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", herr.ErrMalformedChunk.WithDetails(err.Error())
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

// GroqEngine is a remote Engine backend, grounded on the teacher's Groq
// STT provider: an OpenAI-compatible multipart transcription endpoint.
type GroqEngine struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewGroqEngine builds a Groq Whisper-compatible Engine.
func NewGroqEngine(apiKey, model string) *GroqEngine {
	if model == "" {
		model = "whisper-large-v3"
	}
	return &GroqEngine{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
		client: &http.Client{},
	}
}

func (e *GroqEngine) Load(context.Context) error   { return nil }
func (e *GroqEngine) Unload(context.Context) error { return nil }

// Transcribe wraps samples as a WAV payload and posts it to Groq's
// multipart transcription endpoint, selecting the translate task when
// translateToEnglish is set.
func (e *GroqEngine) Transcribe(ctx context.Context, samples []float32, language string, translateToEnglish bool) (string, error) {
	wavBody, contentType, err := buildMultipartWAV(samples, e.model, language, translateToEnglish)
	if err != nil {
		return "", herr.Wrap(herr.Audio, "encoding audio for groq", err)
	}

	endpoint := e.url
	if translateToEnglish {
		endpoint = "https://api.groq.com/openai/v1/audio/translations"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, wavBody)
	if err != nil {
		return "", herr.Wrap(herr.Network, "building groq request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", herr.ErrUnreachable.WithDetails(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", herr.HTTPStatus(resp.StatusCode, string(body))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", herr.ErrMalformedChunk.WithDetails(err.Error())
	}
	return result.Text, nil
}

func buildMultipartWAV(samples []float32, model, language string, translate bool) (io.Reader, string, error) {
	var buf bytes.Buffer
	boundary := "handyengine"
	w := &buf

	writeField := func(name, value string) {
		fmt.Fprintf(w, "--%s\r\nContent-Disposition: form-data; name=\"%s\"\r\n\r\n%s\r\n", boundary, name, value)
	}
	writeField("model", model)
	if language != "" && language != "auto" && !translate {
		writeField("language", language)
	}

	fmt.Fprintf(w, "--%s\r\nContent-Disposition: form-data; name=\"file\"; filename=\"audio.wav\"\r\nContent-Type: audio/wav\r\n\r\n", boundary)
	w.Write(audio.NewWavBuffer(audio.EncodePCM16(samples), audio.TargetSampleRate))
	fmt.Fprintf(w, "\r\n--%s--\r\n", boundary)

	return &buf, "multipart/form-data; boundary=" + boundary, nil
}
