package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"aural/internal/domain"
	"aural/internal/infra/ollama"
)

func history(prompt string) []domain.Message {
	return []domain.Message{
		{Role: domain.RoleSystem, Content: "You are Aural."},
		{Role: domain.RoleUser, Content: prompt},
	}
}

func TestClient_Chat_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req["model"] != "llama3.2:latest" {
			t.Errorf("model: got %v, want llama3.2:latest", req["model"])
		}
		if req["prompt"] != "hello there" {
			t.Errorf("prompt: got %v", req["prompt"])
		}

		io.WriteString(w, `{"response":"Hi","done":false}`+"\n")
		io.WriteString(w, `{"response":" there!","done":false}`+"\n")
		io.WriteString(w, `{"response":"","done":true}`+"\n")
	}))
	defer server.Close()

	client := ollama.NewClient(server.URL, "")

	reply, err := client.Chat(context.Background(), "llama3.2", history("hello there"))
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if reply != "Hi there!" {
		t.Errorf("reply: got %q, want %q", reply, "Hi there!")
	}
}

func TestClient_Chat_FallsBackToChatCompletions(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusNotFound)
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		var req struct {
			Messages []domain.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages: got %d, want full history of 2", len(req.Messages))
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "fallback reply"}},
			},
		})
	}))
	defer fallback.Close()

	client := ollama.NewClient(primary.URL, fallback.URL)

	reply, err := client.Chat(context.Background(), "dolphin-mistral", history("hi"))
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if reply != "fallback reply" {
		t.Errorf("reply: got %q", reply)
	}
}

func TestClient_Chat_EmptyPrompt(t *testing.T) {
	client := ollama.NewClient("http://localhost:0", "")

	_, err := client.Chat(context.Background(), "llama3.2", []domain.Message{
		{Role: domain.RoleSystem, Content: "system"},
	})
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestNormalizeModel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"llama3.2", "llama3.2:latest"},
		{"dolphin-mistral", "dolphin-mistral:latest"},
		{"deepseek-r1:14b", "deepseek-r1:14b"},
		{"llama3.2:latest", "llama3.2:latest"},
	}

	for _, tc := range cases {
		if got := ollama.NormalizeModel(tc.in); got != tc.want {
			t.Errorf("NormalizeModel(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
