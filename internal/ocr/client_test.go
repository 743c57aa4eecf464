package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecognizeJoinsLines(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if _, ok := r.MultipartForm.File["image"]; !ok {
			t.Fatalf("missing image part")
		}
		var lines []Line
		if calls == 1 {
			lines = []Line{{Text: "미분의 정의"}, {Text: "lim h→0"}}
		} else {
			lines = []Line{{Text: "연쇄법칙"}}
		}
		json.NewEncoder(w).Encode(recognizeResponse{Lines: lines})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, err := client.Recognize(context.Background(), []ImageInput{
		{Name: "board1.jpg", Data: []byte("a")},
		{Name: "board2.jpg", Data: []byte("b")},
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one request per image, got %d", calls)
	}
	if len(result.Lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(result.Lines))
	}
	want := "미분의 정의\nlim h→0\n연쇄법칙"
	if result.Text != want {
		t.Fatalf("joined text = %q, want %q", result.Text, want)
	}
}

func TestRecognizeEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(recognizeResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, err := client.Recognize(context.Background(), []ImageInput{{Name: "blank.jpg", Data: []byte("x")}})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Text != "" || len(result.Lines) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRecognizeEngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	if _, err := client.Recognize(context.Background(), []ImageInput{{Name: "board.jpg", Data: []byte("x")}}); err == nil {
		t.Fatal("expected error from failing engine")
	}
}
