package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
)

// Sampling parameters osram always sends to Gemini
const (
	geminiTopK = 40
	geminiTopP = 0.95
)

const (
	geminiSendMethod   = ":generateContent"
	geminiStreamMethod = ":streamGenerateContent"
)

type geminiClient struct {
	pc config.ProviderConfig
	t  *transport
}

func newGeminiClient(pc config.ProviderConfig, t *transport) ProviderClient {
	return &geminiClient{pc: pc, t: t}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (r *geminiResponse) usage() *Usage {
	m := r.UsageMetadata
	if m == nil || (m.PromptTokenCount == 0 && m.CandidatesTokenCount == 0) {
		return nil
	}
	total := m.TotalTokenCount
	if total == 0 {
		total = m.PromptTokenCount + m.CandidatesTokenCount
	}
	return &Usage{PromptTokens: m.PromptTokenCount, CompletionTokens: m.CandidatesTokenCount, TotalTokens: total}
}

func (c *geminiClient) ID() string { return constants.ProviderGemini }

func (c *geminiClient) body(req ChatRequest) geminiRequest {
	system, turns := splitSystem(req.Messages)
	turns = mergeConsecutive(turns)

	contents := make([]geminiContent, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}

	body := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopK:            geminiTopK,
			TopP:            geminiTopP,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return body
}

// endpoint expands the template and switches the method segment between
// generateContent and streamGenerateContent. The key travels as a query
// parameter; it is added when the template has no {api_key} placeholder.
func (c *geminiClient) endpoint(req ChatRequest, stream bool) (string, error) {
	raw := expandEndpoint(c.pc.EndpointTemplate, resolveModel(req, c.pc), c.pc.APIKey)
	if stream {
		if !strings.Contains(raw, geminiStreamMethod) {
			raw = strings.Replace(raw, geminiSendMethod, geminiStreamMethod, 1)
		}
	} else {
		raw = strings.Replace(raw, geminiStreamMethod, geminiSendMethod, 1)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("gemini: invalid endpoint: %w", err)
	}
	q := u.Query()
	if q.Get("key") == "" {
		q.Set("key", c.pc.APIKey)
	}
	if !stream {
		q.Del("alt")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Send posts a generateContent request
func (c *geminiClient) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	endpoint, err := c.endpoint(req, false)
	if err != nil {
		return nil, err
	}
	data, err := c.t.postJSON(ctx, endpoint, nil, c.body(req))
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, c.t.malformed("invalid JSON", err)
	}
	text := resp.text()
	if text == "" {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, c.t.malformed("prompt blocked: "+resp.PromptFeedback.BlockReason, nil)
		}
		return nil, c.t.malformed("response has no candidates text", nil)
	}

	return &ChatResponse{
		Text:  text,
		Model: resp.ModelVersion,
		Usage: resp.usage(),
		Raw:   json.RawMessage(data),
	}, nil
}

// Stream posts a streamGenerateContent request
func (c *geminiClient) Stream(ctx context.Context, req ChatRequest) (*Stream, error) {
	endpoint, err := c.endpoint(req, true)
	if err != nil {
		return nil, err
	}
	resp, err := c.t.post(ctx, endpoint, nil, c.body(req), true)
	if err != nil {
		return nil, err
	}
	dec := &geminiStreamDecoder{r: bufio.NewReader(resp.Body)}
	return newStream(ctx, constants.ProviderGemini, resp.Body, dec, req.Messages), nil
}

// geminiStreamDecoder reads streamGenerateContent output. Without alt=sse
// the body is one JSON array delivered incrementally; with alt=sse it is an
// SSE stream of response objects. A bare object (usually an error) is read
// as the whole reply. The first byte decides.
type geminiStreamDecoder struct {
	r      *bufio.Reader
	array  *json.Decoder
	object *json.Decoder
	lines  *lineReader
}

func (d *geminiStreamDecoder) next() (chunk, error) {
	if d.array == nil && d.object == nil && d.lines == nil {
		if err := d.detect(); err != nil {
			return chunk{}, err
		}
	}
	switch {
	case d.lines != nil:
		return d.nextSSE()
	case d.object != nil:
		return d.nextObject()
	default:
		return d.nextElement()
	}
}

func (d *geminiStreamDecoder) detect() error {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return &ProviderUnavailableError{Provider: constants.ProviderGemini, Err: err}
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			_ = d.r.UnreadByte()
			d.array = json.NewDecoder(d.r)
			// Consume '[' through the token API so Decode handles the commas
			if _, err := d.array.Token(); err != nil {
				return &MalformedResponseError{Provider: constants.ProviderGemini, Message: "invalid stream array", Err: err}
			}
			return nil
		case '{':
			_ = d.r.UnreadByte()
			d.object = json.NewDecoder(d.r)
			return nil
		default:
			_ = d.r.UnreadByte()
			d.lines = newLineReader(constants.ProviderGemini, d.r)
			return nil
		}
	}
}

func (d *geminiStreamDecoder) nextElement() (chunk, error) {
	if !d.array.More() {
		// Consume the closing bracket
		if _, err := d.array.Token(); err != nil && !errors.Is(err, io.EOF) {
			return chunk{}, &MalformedResponseError{Provider: constants.ProviderGemini, Message: "unterminated stream array", Err: err}
		}
		return chunk{done: true}, nil
	}

	var raw json.RawMessage
	if err := d.array.Decode(&raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return chunk{}, &MalformedResponseError{Provider: constants.ProviderGemini, Message: "stream ended mid-element", Err: err}
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return chunk{}, &MalformedResponseError{Provider: constants.ProviderGemini, Message: "invalid stream element", Err: err}
		}
		return chunk{}, &ProviderUnavailableError{Provider: constants.ProviderGemini, Err: err}
	}
	c, _, err := decodeGeminiChunk(raw)
	return c, err
}

func (d *geminiStreamDecoder) nextObject() (chunk, error) {
	var raw json.RawMessage
	if err := d.object.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return chunk{done: true}, nil
		}
		return chunk{}, &MalformedResponseError{Provider: constants.ProviderGemini, Message: "invalid response object", Err: err}
	}
	c, _, err := decodeGeminiChunk(raw)
	return c, err
}

func (d *geminiStreamDecoder) nextSSE() (chunk, error) {
	for {
		line, err := d.lines.next()
		if err != nil {
			return chunk{}, err
		}
		data, ok := sseData(line, false)
		if !ok {
			continue
		}
		c, ok, err := decodeGeminiChunk([]byte(data))
		if err != nil || ok {
			return c, err
		}
	}
}

// decodeGeminiChunk reports ok=false for a chunk that was logged and skipped
func decodeGeminiChunk(raw []byte) (chunk, bool, error) {
	if err := streamError(constants.ProviderGemini, raw); err != nil {
		return chunk{}, false, err
	}
	var resp geminiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		logSkippedChunk(constants.ProviderGemini, string(raw), err)
		return chunk{}, false, nil
	}
	return chunk{text: resp.text(), usage: resp.usage(), raw: raw}, true, nil
}
