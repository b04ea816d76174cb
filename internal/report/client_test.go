package report

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completionResponse(content string) []byte {
	data, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return data
}

func TestClientComplete(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(completionResponse("Milo had a great week."))
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key", "test-model", discardLogger())
	text, err := c.Complete(context.Background(), "be nice", "summarize")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Milo had a great week." {
		t.Errorf("content = %q", text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q, want test-model", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system+user", gotReq.Messages)
	}
}

func TestClientRetriesOn5xx(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(completionResponse("after retry"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "", "test-model", discardLogger())
	text, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "after retry" {
		t.Errorf("content = %q", text)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClientDoesNotRetry4xx(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.URL, "bad-key", "test-model", discardLogger())
	_, err := c.Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (4xx is permanent)", calls)
	}
}

func TestClientConfigured(t *testing.T) {
	if NewClient("", "", "", discardLogger()).Configured() {
		t.Error("expected unconfigured without base url and model")
	}
	if !NewClient("http://localhost", "", "m", discardLogger()).Configured() {
		t.Error("expected configured with base url and model")
	}
}
