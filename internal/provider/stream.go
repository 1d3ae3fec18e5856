package provider

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/quocvuong92/osram-cli/internal/logging"
)

// chunk is one decoded unit of a vendor stream
type chunk struct {
	text  string
	usage *Usage
	raw   []byte
	done  bool
}

// chunkDecoder yields the chunks of one vendor's stream format. It returns
// io.EOF when the body ends without an explicit end marker.
type chunkDecoder interface {
	next() (chunk, error)
}

// Stream is a lazily consumed streaming response. It is finite and not
// restartable.
type Stream struct {
	provider string
	ctx      context.Context
	body     io.ReadCloser
	dec      chunkDecoder
	prompt   []Message

	text   strings.Builder
	usage  *Usage
	chunks int // chunks decoded from vendor JSON
	done   bool
	closed bool
}

func newStream(ctx context.Context, provider string, body io.ReadCloser, dec chunkDecoder, prompt []Message) *Stream {
	return &Stream{provider: provider, ctx: ctx, body: body, dec: dec, prompt: prompt}
}

// Recv returns the next text delta. It returns io.EOF after the provider's
// end-of-stream marker or when the connection closes, and a
// MalformedResponseError instead when the stream ended without any text.
func (s *Stream) Recv() (ChatResponse, error) {
	if s.done || s.closed {
		return ChatResponse{}, io.EOF
	}

	for {
		if err := s.ctx.Err(); err != nil {
			s.finish()
			return ChatResponse{}, &ProviderUnavailableError{Provider: s.provider, Err: err}
		}

		c, err := s.dec.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ChatResponse{}, s.end()
			}
			s.finish()
			return ChatResponse{}, err
		}

		if c.raw != nil {
			s.chunks++
		}
		if c.usage != nil {
			s.usage = mergeUsage(s.usage, c.usage)
		}
		if c.text != "" {
			s.text.WriteString(c.text)
			if c.done {
				s.finish()
			}
			return ChatResponse{Text: c.text, Raw: c.raw}, nil
		}
		if c.done {
			return ChatResponse{}, s.end()
		}
	}
}

// end finishes the stream and returns io.EOF, or a MalformedResponseError
// when nothing usable arrived.
func (s *Stream) end() error {
	s.finish()
	if s.text.Len() > 0 {
		return io.EOF
	}
	msg := "stream carried no text"
	if s.chunks == 0 {
		msg = "no parseable chunk in stream"
	}
	return &MalformedResponseError{Provider: s.provider, Message: msg}
}

// Text returns everything received so far
func (s *Stream) Text() string {
	return s.text.String()
}

// Usage returns the usage reported by the provider, or an estimate when the
// stream carried none. Only meaningful after Recv returned io.EOF.
func (s *Stream) Usage() *Usage {
	if s.usage != nil {
		u := *s.usage
		if u.TotalTokens == 0 {
			u.TotalTokens = u.PromptTokens + u.CompletionTokens
		}
		return &u
	}
	return EstimateUsage(s.prompt, s.text.String())
}

// Response returns the accumulated text and usage as one ChatResponse
func (s *Stream) Response() *ChatResponse {
	return &ChatResponse{Text: s.Text(), Usage: s.Usage()}
}

// Close releases the response body. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (s *Stream) finish() {
	s.done = true
	_ = s.Close()
}

// mergeUsage folds a usage update into the running totals. Anthropic sends
// prompt tokens at the start and completion tokens at the end.
func mergeUsage(cur, upd *Usage) *Usage {
	if cur == nil {
		u := *upd
		return &u
	}
	out := *cur
	if upd.PromptTokens > 0 {
		out.PromptTokens = upd.PromptTokens
	}
	if upd.CompletionTokens > 0 {
		out.CompletionTokens = upd.CompletionTokens
	}
	if upd.TotalTokens > 0 {
		out.TotalTokens = upd.TotalTokens
	} else {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return &out
}

// lineReader returns the non-blank lines of a chunked body
type lineReader struct {
	provider string
	r        *bufio.Reader
}

func newLineReader(provider string, r io.Reader) *lineReader {
	return &lineReader{provider: provider, r: bufio.NewReaderSize(r, 64*1024)}
}

func (lr *lineReader) next() (string, error) {
	for {
		line, err := lr.r.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", &ProviderUnavailableError{Provider: lr.provider, Err: err}
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, nil
		}
		if err != nil {
			return "", io.EOF
		}
	}
}

// sseData returns the payload of a "data:" line. bare accepts a line that is
// the JSON object itself (Zhipu sometimes omits the prefix). Other SSE
// fields (event:, id:, retry:, comments) report ok=false.
func sseData(line string, bare bool) (data string, ok bool) {
	if rest, found := strings.CutPrefix(line, "data:"); found {
		return strings.TrimSpace(rest), true
	}
	if bare && (strings.HasPrefix(line, "{") || line == "[DONE]") {
		return line, true
	}
	return "", false
}

// logSkippedChunk records a stream chunk that could not be decoded. The
// stream continues with the next chunk.
func logSkippedChunk(provider, data string, err error) {
	logging.Warn("skipping unparseable stream chunk", logging.Fields{
		"provider": provider,
		"error":    err.Error(),
		"data":     truncate(data, 200),
	})
}
