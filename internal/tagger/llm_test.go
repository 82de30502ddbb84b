package tagger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/wakeru/internal/models"
)

func TestParseEntities(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    []models.RawEntityMention
		wantErr bool
	}{
		{
			name:  "plain json",
			reply: `{"entities":[{"text":"Paris","label":"GPE"},{"text":" Paris ","label":"gpe"}]}`,
			want:  []models.RawEntityMention{{Text: "Paris", Label: "GPE"}, {Text: " Paris ", Label: "GPE"}},
		},
		{
			name:  "code fence",
			reply: "```json\n{\"entities\":[{\"text\":\"Acme\",\"label\":\"ORG\"}]}\n```",
			want:  []models.RawEntityMention{{Text: "Acme", Label: "ORG"}},
		},
		{
			name:  "leading prose",
			reply: `Here you go: {"entities":[]}`,
			want:  []models.RawEntityMention{},
		},
		{
			name:  "drops empty spans and labels",
			reply: `{"entities":[{"text":"  ","label":"ORG"},{"text":"Bob","label":""},{"text":"Bob","label":"PERSON"}]}`,
			want:  []models.RawEntityMention{{Text: "Bob", Label: "PERSON"}},
		},
		{
			name:    "not json",
			reply:   "I cannot help with that.",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEntities(tt.reply)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	p, err := renderPrompt([]string{"ORG", "GPE"}, "Acme is in Paris")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p, "ORG, GPE") || !strings.Contains(p, "Acme is in Paris") {
		t.Errorf("prompt = %q", p)
	}
	p, _ = renderPrompt(nil, "x")
	if !strings.Contains(p, "WORK_OF_ART") {
		t.Error("default labels missing from prompt")
	}
}

func chatReply(content string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "llama3.1",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return body
}

func TestOpenAITagger_segments(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %q", req.ResponseFormat.Type)
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			_, _ = w.Write(chatReply(`{"entities":[{"text":"Acme Corp","label":"ORG"}]}`))
			return
		}
		_, _ = w.Write(chatReply(`{"entities":[{"text":"Paris","label":"GPE"}]}`))
	}))
	defer srv.Close()

	tg, err := NewOpenAITagger("", srv.URL, "llama3.1", nil, 20)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tg.Tag(context.Background(), "Acme Corp is based\nin Paris, France.")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want one per segment", calls)
	}
	want := []models.RawEntityMention{{Text: "Acme Corp", Label: "ORG"}, {Text: "Paris", Label: "GPE"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOpenAITagger_badReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(chatReply("not json at all"))
	}))
	defer srv.Close()
	tg, _ := NewOpenAITagger("key", srv.URL, "", nil, 0)
	if _, err := tg.Tag(context.Background(), "text"); err == nil {
		t.Error("expected parse error")
	}
}

func TestAnthropicTagger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"{\"entities\":[{\"text\":\"Jane Doe\",\"label\":\"PERSON\"}]}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":10}}`))
	}))
	defer srv.Close()

	tg, err := NewAnthropicTagger("test-key", srv.URL+"/", "", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tg.Tag(context.Background(), "Jane Doe signed.")
	if err != nil {
		t.Fatal(err)
	}
	want := []models.RawEntityMention{{Text: "Jane Doe", Label: "PERSON"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewAnthropicTagger_requiresKey(t *testing.T) {
	if _, err := NewAnthropicTagger("", "", "", nil, 0); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("err = %v, want ErrAPIKeyRequired", err)
	}
}
