package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/logging"
)

// ProviderClient talks to one vendor API.
type ProviderClient interface {
	// ID returns the provider id ("zai", "claude", "gemini", "openai")
	ID() string

	// Send issues a single non-streaming request
	Send(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Stream issues a single streaming request. The returned Stream must be
	// closed by the caller.
	Stream(ctx context.Context, req ChatRequest) (*Stream, error)
}

// Options configures the HTTP side of a client
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *logging.Logger
}

// Option modifies Options
type Option func(*Options)

// WithHTTPClient replaces the HTTP client (tests point it at httptest servers)
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

// WithTimeout sets the whole-request timeout, including streamed bodies
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithLogger logs requests and responses through l when it is at debug level
func WithLogger(l *logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

type factory func(pc config.ProviderConfig, t *transport) ProviderClient

var registry = map[string]factory{
	constants.ProviderZhipu:     newZhipuClient,
	constants.ProviderAnthropic: newAnthropicClient,
	constants.ProviderGemini:    newGeminiClient,
	constants.ProviderOpenAI:    newOpenAIClient,
}

// Supported returns the registered provider ids, sorted
func Supported() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New returns the client registered for pc.ID.
func New(pc config.ProviderConfig, opts ...Option) (ProviderClient, error) {
	build, ok := registry[pc.ID]
	if !ok {
		return nil, &config.ConfigurationError{Field: "provider", Err: fmt.Errorf("%w: %q", config.ErrUnknownProvider, pc.ID)}
	}
	if pc.APIKey == "" {
		return nil, &config.ConfigurationError{Field: "providers." + pc.ID + ".api_key", Err: config.ErrAPIKeyNotFound}
	}
	if pc.EndpointTemplate == "" {
		pc.EndpointTemplate = constants.DefaultEndpoints[pc.ID]
	}
	if pc.Model == "" {
		pc.Model = constants.DefaultModels[pc.ID]
	}

	o := Options{Timeout: constants.DefaultAPITimeout}
	for _, opt := range opts {
		opt(&o)
	}

	return build(pc, newTransport(pc.ID, o)), nil
}

// NewFromConfig builds a client for the current provider of cfg.
func NewFromConfig(cfg config.Config, opts ...Option) (ProviderClient, error) {
	pc, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithTimeout(cfg.Timeout)}, opts...)
	return New(pc, opts...)
}

// transport performs the single HTTP exchange every client needs
type transport struct {
	provider string
	client   *http.Client
}

func newTransport(provider string, o Options) *transport {
	client := o.HTTPClient
	if client == nil {
		rt := http.DefaultTransport
		if o.Logger != nil && o.Logger.Enabled(logging.LevelDebug) {
			rt = logging.NewLoggingRoundTripper(rt, logging.NewHTTPLogger(o.Logger), true)
		}
		client = &http.Client{Transport: rt, Timeout: o.Timeout}
	}
	return &transport{provider: provider, client: client}
}

// post sends body as JSON and returns the response when the status is 2xx.
// Any other status is classified and the body closed.
func (t *transport) post(ctx context.Context, endpoint string, header http.Header, body interface{}, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", t.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", t.provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: t.provider, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, errorFromResponse(t.provider, resp)
	}

	return resp, nil
}

// postJSON is post followed by reading the whole body
func (t *transport) postJSON(ctx context.Context, endpoint string, header http.Header, body interface{}) ([]byte, error) {
	resp, err := t.post(ctx, endpoint, header, body, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderUnavailableError{Provider: t.provider, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return data, nil
}

func (t *transport) malformed(msg string, err error) error {
	return &MalformedResponseError{Provider: t.provider, Message: msg, Err: err}
}

// expandEndpoint substitutes {model} and {api_key} in an endpoint template
func expandEndpoint(tmpl, model, apiKey string) string {
	return strings.NewReplacer(
		"{model}", url.PathEscape(model),
		"{api_key}", url.QueryEscape(apiKey),
	).Replace(tmpl)
}

func resolveModel(req ChatRequest, pc config.ProviderConfig) string {
	if req.Model != "" {
		return req.Model
	}
	return pc.Model
}
