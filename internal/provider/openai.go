package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
)

// chatCompletionsClient speaks the OpenAI chat-completions protocol. Zhipu
// uses the same wire format with a more lenient stream framing.
type chatCompletionsClient struct {
	id string
	pc config.ProviderConfig
	t  *transport

	// bareLines accepts stream lines without the "data:" prefix
	bareLines bool

	// streamUsage asks the server to append a usage chunk to streams
	streamUsage bool
}

func newOpenAIClient(pc config.ProviderConfig, t *transport) ProviderClient {
	return &chatCompletionsClient{id: constants.ProviderOpenAI, pc: pc, t: t, streamUsage: true}
}

type ccRequest struct {
	Model               string           `json:"model"`
	Messages            []Message        `json:"messages"`
	Temperature         *float64         `json:"temperature,omitempty"`
	MaxTokens           int              `json:"max_tokens,omitempty"`
	MaxCompletionTokens int              `json:"max_completion_tokens,omitempty"`
	Stream              bool             `json:"stream"`
	StreamOptions       *ccStreamOptions `json:"stream_options,omitempty"`
}

type ccStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type ccUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ccResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *ccUsage `json:"usage"`
}

func (u *ccUsage) normalize() *Usage {
	if u == nil || (u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0) {
		return nil
	}
	return &Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

func (c *chatCompletionsClient) ID() string { return c.id }

func (c *chatCompletionsClient) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.pc.APIKey)
	return h
}

// reasoningModel reports models that reject temperature and max_tokens
func reasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func (c *chatCompletionsClient) body(req ChatRequest, stream bool) ccRequest {
	model := resolveModel(req, c.pc)
	body := ccRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   stream,
	}
	if c.id == constants.ProviderOpenAI && reasoningModel(model) {
		body.MaxCompletionTokens = req.MaxTokens
	} else {
		temp := req.Temperature
		body.Temperature = &temp
		body.MaxTokens = req.MaxTokens
	}
	if stream && c.streamUsage {
		body.StreamOptions = &ccStreamOptions{IncludeUsage: true}
	}
	return body
}

func (c *chatCompletionsClient) endpoint(req ChatRequest) string {
	return expandEndpoint(c.pc.EndpointTemplate, resolveModel(req, c.pc), c.pc.APIKey)
}

// Send posts a chat-completions request
func (c *chatCompletionsClient) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	data, err := c.t.postJSON(ctx, c.endpoint(req), c.header(), c.body(req, false))
	if err != nil {
		return nil, err
	}
	return c.parse(data)
}

func (c *chatCompletionsClient) parse(data []byte) (*ChatResponse, error) {
	var resp ccResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, c.t.malformed("invalid JSON", err)
	}
	if len(resp.Choices) == 0 {
		return nil, c.t.malformed("response has no choices", nil)
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return nil, c.t.malformed("response has no text", nil)
	}
	return &ChatResponse{
		Text:  text,
		Model: resp.Model,
		Usage: resp.Usage.normalize(),
		Raw:   json.RawMessage(data),
	}, nil
}

// Stream posts a streaming chat-completions request
func (c *chatCompletionsClient) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	resp, err := c.t.post(ctx, c.endpoint(req), c.header(), c.body(req, true), true)
	if err != nil {
		return nil, err
	}
	dec := &ccStreamDecoder{
		provider: c.id,
		lines:    newLineReader(c.id, resp.Body),
		bare:     c.bareLines,
	}
	return newStream(ctx, c.id, resp.Body, dec, req.Messages), nil
}

type ccStreamDecoder struct {
	provider string
	lines    *lineReader
	bare     bool
}

func (d *ccStreamDecoder) next() (chunk, error) {
	for {
		line, err := d.lines.next()
		if err != nil {
			return chunk{}, err
		}
		data, ok := sseData(line, d.bare)
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return chunk{done: true}, nil
		}
		if err := streamError(d.provider, []byte(data)); err != nil {
			return chunk{}, err
		}

		var resp ccResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			logSkippedChunk(d.provider, data, err)
			continue
		}

		c := chunk{usage: resp.Usage.normalize(), raw: []byte(data)}
		if len(resp.Choices) > 0 {
			c.text = resp.Choices[0].Delta.Content
		}
		return c, nil
	}
}
