package textsource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/typing-contest/internal/logger"
)

// DefaultModel is the model hint sent with every chat request.
const DefaultModel = "gpt-4o-mini"

// TestPrompt asks for a typing-test passage.
const TestPrompt = "Generate a short, interesting sentence suitable for a typing test. " +
	"It should be grammatically correct and not too complex. Max 100 characters."

// ContestPrompt asks for a contest passage of the given difficulty and
// category.
func ContestPrompt(difficulty, category string) string {
	return fmt.Sprintf("Generate a unique, interesting sentence for a typing test. "+
		"It should be grammatically correct, suitable for a %s difficulty level, and related to %s. "+
		"Max 150 characters.", difficulty, category)
}

// ResponseKind is the shape an AI backend answered with.
type ResponseKind int

const (
	PlainText ResponseKind = iota
	TextField
	ContentField
	MessageContent
	ChoicesContent
	Opaque
)

// Response is an AI answer. Text holds the candidate passage for every kind
// but Opaque, whose Raw body is all there is.
type Response struct {
	Kind ResponseKind
	Text string
	Raw  string
}

// Generator produces text from a prompt.
type Generator interface {
	Chat(ctx context.Context, prompt, model string) (Response, error)
}

// ParseResponse classifies an AI response body. A body that is not JSON is
// taken as plain text.
func ParseResponse(raw []byte) Response {
	if !gjson.ValidBytes(raw) {
		return Response{Kind: PlainText, Text: string(raw)}
	}
	r := gjson.ParseBytes(raw)
	if r.Type == gjson.String {
		return Response{Kind: PlainText, Text: r.String()}
	}
	probes := []struct {
		kind ResponseKind
		path string
	}{
		{TextField, "text"},
		{ContentField, "content"},
		{MessageContent, "message.content"},
		{ChoicesContent, "choices.0.message.content"},
	}
	for _, p := range probes {
		if v := r.Get(p.path); v.Type == gjson.String && v.String() != "" {
			return Response{Kind: p.kind, Text: v.String()}
		}
	}
	return Response{Kind: Opaque, Raw: r.Raw}
}

// Extract returns the trimmed passage of resp. Opaque answers are passed
// through as their raw JSON.
func Extract(resp Response, log logger.Logger) (string, error) {
	text := resp.Text
	if resp.Kind == Opaque {
		text = resp.Raw
		if log != nil {
			log.Warn("AI response has no known text field, using raw body", "body", resp.Raw)
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// HTTPGenerator talks to an OpenAI-compatible chat completions endpoint.
type HTTPGenerator struct {
	client *resty.Client
	url    string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// NewHTTPGenerator posts chat requests to url, authenticating with apiKey
// when it is set.
func NewHTTPGenerator(url, apiKey string, client *resty.Client) *HTTPGenerator {
	if client == nil {
		client = resty.New()
	}
	client.SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPGenerator{client: client, url: url}
}

func (g *HTTPGenerator) Chat(ctx context.Context, prompt, model string) (Response, error) {
	if model == "" {
		model = DefaultModel
	}
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: model, Messages: []chatMessage{{Role: "user", Content: prompt}}}).
		Post(g.url)
	if err != nil {
		return Response{}, err
	}
	if resp.IsError() {
		return Response{}, fmt.Errorf("AI backend answered %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return Response{}, errors.New("AI backend returned an empty body")
	}
	return ParseResponse(body), nil
}
