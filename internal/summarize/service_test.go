package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pansoNote/internal/config"
)

func TestOpenAISummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("Authorization = %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4-turbo" {
			t.Fatalf("model = %q", req.Model)
		}
		if req.Temperature != 0.5 || req.MaxTokens != 300 {
			t.Fatalf("unexpected sampling params: %+v", req)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "미적분학") {
			t.Fatalf("prompt missing course name: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  요점: 미분의 정의\n"}},
			},
		})
	}))
	defer server.Close()

	svc := NewOpenAIService(config.SummarizeConfig{
		Provider: "openai",
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Timeout:  5 * time.Second,
	})
	got, err := svc.Summarize(context.Background(), "미분의 정의\nlim h→0", "미적분학")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "요점: 미분의 정의" {
		t.Fatalf("summary = %q", got)
	}
}

func TestOpenAISummarizeBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "rate limit"}})
	}))
	defer server.Close()

	svc := NewOpenAIService(config.SummarizeConfig{APIKey: "k", BaseURL: server.URL, Timeout: time.Second})
	if _, err := svc.Summarize(context.Background(), "본문", ""); err == nil {
		t.Fatal("expected error from failing backend")
	} else if !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("error should carry backend message, got %v", err)
	}
}

func TestZephyrSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req zephyrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(req.Inputs, "<|assistant|>") {
			t.Fatalf("prompt missing chat template: %q", req.Inputs)
		}
		json.NewEncoder(w).Encode([]zephyrGenerated{{GeneratedText: "요점 정리입니다."}})
	}))
	defer server.Close()

	svc := NewZephyrService(config.SummarizeConfig{BaseURL: server.URL, Timeout: time.Second})
	got, err := svc.Summarize(context.Background(), "본문", "선형대수")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "요점 정리입니다." {
		t.Fatalf("summary = %q", got)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(config.SummarizeConfig{Provider: "groq"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestFailureNote(t *testing.T) {
	note := FailureNote(context.DeadlineExceeded)
	if !strings.HasPrefix(note, "[요약 실패:") || !strings.HasSuffix(note, "]") {
		t.Fatalf("failure note = %q", note)
	}
}
