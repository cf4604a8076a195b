package textsource_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/typing-contest/internal/logger"
	"github.com/iliyamo/typing-contest/internal/textsource"
)

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind textsource.ResponseKind
		text string
	}{
		{"Should take a JSON string as plain text", `"Quick brown fox."`, textsource.PlainText, "Quick brown fox."},
		{"Should take a non JSON body as plain text", `Quick brown fox.`, textsource.PlainText, "Quick brown fox."},
		{"Should prefer the text field", `{"text":"a","content":"b"}`, textsource.TextField, "a"},
		{"Should use content when text is missing", `{"content":"b","message":{"content":"c"}}`, textsource.ContentField, "b"},
		{"Should use message content", `{"message":{"role":"assistant","content":"c"}}`, textsource.MessageContent, "c"},
		{"Should understand chat completions", `{"choices":[{"message":{"content":"d"}}]}`, textsource.ChoicesContent, "d"},
		{"Should skip non string text fields", `{"text":5,"content":"b"}`, textsource.ContentField, "b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := textsource.ParseResponse([]byte(tc.body))
			assert.Equal(t, tc.kind, got.Kind)
			assert.Equal(t, tc.text, got.Text)
		})
	}
	t.Run("Should keep the raw body of unknown shapes", func(t *testing.T) {
		got := textsource.ParseResponse([]byte(`{"answer":"x"}`))
		assert.Equal(t, textsource.Opaque, got.Kind)
		assert.JSONEq(t, `{"answer":"x"}`, got.Raw)
	})
}

func TestExtract(t *testing.T) {
	t.Run("Should trim the passage", func(t *testing.T) {
		text, err := textsource.Extract(textsource.Response{Kind: textsource.TextField, Text: "  hi there \n"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "hi there", text)
	})
	t.Run("Should fall back to raw JSON and warn", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.New(&logger.Config{Level: logger.WarnLevel, Output: &buf})
		text, err := textsource.Extract(textsource.Response{Kind: textsource.Opaque, Raw: `{"answer":"x"}`}, log)
		require.NoError(t, err)
		assert.Equal(t, `{"answer":"x"}`, text)
		assert.Contains(t, buf.String(), "no known text field")
	})
	t.Run("Should fail on an empty passage", func(t *testing.T) {
		_, err := textsource.Extract(textsource.Response{Kind: textsource.PlainText, Text: "   "}, nil)
		assert.ErrorIs(t, err, textsource.ErrEmptyResponse)
	})
}

func TestContestPrompt(t *testing.T) {
	t.Run("Should mention difficulty and category", func(t *testing.T) {
		p := textsource.ContestPrompt("hard", "programming")
		assert.Contains(t, p, "suitable for a hard difficulty level, and related to programming. Max 150 characters.")
	})
}

func TestHTTPGenerator(t *testing.T) {
	t.Run("Should post an authenticated chat request", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Typing is fun."}}]}`))
		}))
		defer srv.Close()

		g := textsource.NewHTTPGenerator(srv.URL+"/v1/chat/completions", "secret", nil)
		resp, err := g.Chat(context.Background(), "prompt", "")
		require.NoError(t, err)
		assert.Equal(t, textsource.ChoicesContent, resp.Kind)
		assert.Equal(t, "Typing is fun.", resp.Text)
		assert.Equal(t, textsource.DefaultModel, got["model"])
	})
	t.Run("Should fail on an error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		_, err := textsource.NewHTTPGenerator(srv.URL, "", nil).Chat(context.Background(), "p", "m")
		assert.ErrorContains(t, err, "429")
	})
}
