package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeepgramEngineParsesTranscript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello from deepgram"}]}]}}`))
	}))
	defer server.Close()

	e := NewDeepgramEngine("test-key")
	e.url = server.URL

	text, err := e.Transcribe(context.Background(), []float32{0, 0.1, -0.1}, "en", false)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello from deepgram" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

