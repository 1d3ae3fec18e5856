package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
)

// AnthropicVersion is sent in the anthropic-version header
const AnthropicVersion = "2023-06-01"

type anthropicClient struct {
	pc config.ProviderConfig
	t  *transport
}

func newAnthropicClient(pc config.ProviderConfig, t *transport) ProviderClient {
	return &anthropicClient{pc: pc, t: t}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *anthropicUsage) normalize() *Usage {
	if u == nil || (u.InputTokens == 0 && u.OutputTokens == 0) {
		return nil
	}
	return &Usage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.InputTokens + u.OutputTokens,
	}
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      *anthropicUsage `json:"usage"`
}

// anthropicEvent covers the stream events osram reads
type anthropicEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage *anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *anthropicUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) ID() string { return constants.ProviderAnthropic }

func (c *anthropicClient) header() http.Header {
	h := http.Header{}
	h.Set("x-api-key", c.pc.APIKey)
	h.Set("anthropic-version", AnthropicVersion)
	return h
}

func (c *anthropicClient) body(req ChatRequest, stream bool) anthropicRequest {
	system, turns := splitSystem(req.Messages)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = constants.DefaultMaxTokens
	}
	return anthropicRequest{
		Model:       resolveModel(req, c.pc),
		MaxTokens:   maxTokens,
		Messages:    mergeConsecutive(turns),
		System:      system,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

func (c *anthropicClient) endpoint(req ChatRequest) string {
	return expandEndpoint(c.pc.EndpointTemplate, resolveModel(req, c.pc), c.pc.APIKey)
}

// Send posts to the Messages API
func (c *anthropicClient) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	data, err := c.t.postJSON(ctx, c.endpoint(req), c.header(), c.body(req, false))
	if err != nil {
		return nil, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, c.t.malformed("invalid JSON", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, c.t.malformed("response has no text content", nil)
	}

	return &ChatResponse{
		Text:  text.String(),
		Model: resp.Model,
		Usage: resp.Usage.normalize(),
		Raw:   json.RawMessage(data),
	}, nil
}

// Stream posts a streaming Messages API request
func (c *anthropicClient) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	resp, err := c.t.post(ctx, c.endpoint(req), c.header(), c.body(req, true), true)
	if err != nil {
		return nil, err
	}
	dec := &anthropicStreamDecoder{lines: newLineReader(constants.ProviderAnthropic, resp.Body)}
	return newStream(ctx, constants.ProviderAnthropic, resp.Body, dec, req.Messages), nil
}

// anthropicStreamDecoder reads the SSE event stream. The event type is
// repeated inside every data payload, so "event:" lines are ignored.
type anthropicStreamDecoder struct {
	lines *lineReader
}

func (d *anthropicStreamDecoder) next() (chunk, error) {
	for {
		line, err := d.lines.next()
		if err != nil {
			return chunk{}, err
		}
		data, ok := sseData(line, false)
		if !ok {
			continue
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			logSkippedChunk(constants.ProviderAnthropic, data, err)
			continue
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				return chunk{usage: ev.Message.Usage.normalize(), raw: []byte(data)}, nil
			}
		case "content_block_delta":
			if ev.Delta != nil && ev.Delta.Type == "text_delta" {
				return chunk{text: ev.Delta.Text, raw: []byte(data)}, nil
			}
		case "message_delta":
			if u := ev.Usage; u != nil && u.OutputTokens > 0 {
				return chunk{usage: &Usage{CompletionTokens: u.OutputTokens}, raw: []byte(data)}, nil
			}
		case "message_stop":
			return chunk{done: true}, nil
		case "error":
			msg := "stream error"
			if ev.Error != nil {
				msg = ev.Error.Type + ": " + ev.Error.Message
			}
			return chunk{}, &ProviderUnavailableError{Provider: constants.ProviderAnthropic, Message: msg}
		}
	}
}
