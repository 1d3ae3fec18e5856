package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/logging"
	"github.com/quocvuong92/osram-cli/internal/provider"
)

// chatOptions are the flags shared by `osram chat` and the bare root command
type chatOptions struct {
	system      string
	stream      bool
	render      bool
	usage       bool
	interactive bool
	actions     bool
	noCache     bool
	model       string
	provider    string
	temperature float64
	maxTokens   int
	retries     int
}

func (o *chatOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.system, "system", constants.DefaultSystemMessage, "System prompt")
	f.BoolVarP(&o.stream, "stream", "s", false, "Stream output in real-time")
	f.BoolVarP(&o.render, "render", "r", false, "Render markdown with colors and formatting")
	f.BoolVarP(&o.usage, "usage", "u", false, "Show token usage statistics")
	f.BoolVarP(&o.interactive, "interactive", "i", false, "Interactive chat mode")
	f.BoolVar(&o.actions, "actions", false, "In interactive mode, let the model run file, shell and git actions")
	f.BoolVar(&o.noCache, "no-cache", false, "Bypass the response cache")
	f.StringVarP(&o.model, "model", "m", "", "Model name (default: the provider's configured model)")
	f.StringVarP(&o.provider, "provider", "p", "", "Provider: zai, claude, gemini, openai")
	f.Float64Var(&o.temperature, "temperature", -1, "Sampling temperature (default: from config)")
	f.IntVar(&o.maxTokens, "max-tokens", 0, "Maximum completion tokens (default: from config)")
	f.IntVar(&o.retries, "retries", 0, "Retry rate-limited or unavailable requests this many times")
}

func (app *App) newChatCmd() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send a prompt to the current provider",
		Long: `Send a prompt to the current provider and print the reply.

The prompt is read from stdin when no argument is given and stdin is not a
terminal. Without a prompt (or with -i) an interactive session starts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return app.runInteractive(cmd.Context(), opts)
			}
			if len(args) == 0 {
				prompt, err := readPrompt(cmd.InOrStdin())
				if err != nil {
					return err
				}
				if prompt == "" {
					return app.runInteractive(cmd.Context(), opts)
				}
				args = []string{prompt}
			}
			return app.runChat(cmd.Context(), opts, args)
		},
	}
	opts.bind(cmd)
	return cmd
}

// readPrompt reads a piped prompt; it returns "" for an interactive stdin
func readPrompt(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// chatConfig applies the per-invocation provider and model overrides
func (app *App) chatConfig(opts *chatOptions) (config.Config, error) {
	cfg := app.cfg
	if opts.provider != "" {
		var err error
		if cfg, err = cfg.WithProvider(strings.ToLower(opts.provider)); err != nil {
			return cfg, err
		}
	}
	if opts.model != "" {
		if !config.ValidateModel(cfg.CurrentProvider, opts.model) {
			logging.Warn("model is not in the known list", logging.Fields{
				"provider": cfg.CurrentProvider,
				"model":    opts.model,
			})
		}
		cfg = cfg.WithModel(opts.model)
	}
	return cfg, nil
}

// buildRequest turns flags, config and messages into a ChatRequest
func buildRequest(cfg config.Config, opts *chatOptions, messages []provider.Message) provider.ChatRequest {
	req := provider.ChatRequest{
		Model:       cfg.Providers[cfg.CurrentProvider].Model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      opts.stream,
	}
	if opts.temperature >= 0 {
		req.Temperature = opts.temperature
	}
	if opts.maxTokens > 0 {
		req.MaxTokens = opts.maxTokens
	}
	return req
}

func (app *App) runChat(ctx context.Context, opts *chatOptions, args []string) error {
	cfg, err := app.chatConfig(opts)
	if err != nil {
		return err
	}
	if opts.render {
		if err := display.InitRenderer(cfg.Theme); err != nil {
			logging.Warn("markdown rendering disabled", logging.Fields{"error": err.Error()})
		}
	}

	client, err := app.newClient(cfg)
	if err != nil {
		return err
	}

	var messages []provider.Message
	if opts.system != "" {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: opts.system})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: strings.Join(args, " ")})
	req := buildRequest(cfg, opts, messages)

	logging.Debug("sending chat request", logging.Fields{
		"provider": client.ID(),
		"model":    req.Model,
		"stream":   req.Stream,
	})

	resp, err := app.complete(ctx, cfg, client, req, opts)
	if err != nil {
		return err
	}
	if opts.usage && resp.Usage != nil {
		u := resp.Usage
		display.ShowUsage(u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.Estimated)
	}
	return nil
}

// complete sends req and prints the reply, consulting the response cache for
// non-streaming requests.
func (app *App) complete(ctx context.Context, cfg config.Config, client provider.ProviderClient, req provider.ChatRequest, opts *chatOptions) (*provider.ChatResponse, error) {
	if req.Stream {
		return app.streamReply(ctx, client, req, opts)
	}

	useCache := cfg.CacheResponses && !opts.noCache
	key := cacheKey(client.ID(), req)
	if useCache {
		if resp, ok := app.cachedResponse(ctx, key); ok {
			logging.Debug("response cache hit", logging.Fields{"key": key})
			showReply(resp.Text, opts.render)
			return resp, nil
		}
	}

	sp := display.NewSpinner("Thinking...")
	sp.Start()
	resp, err := provider.Retry(ctx, provider.NewRetryPolicy(opts.retries), func(ctx context.Context) (*provider.ChatResponse, error) {
		return client.Send(ctx, req)
	})
	sp.Stop()
	if err != nil {
		return nil, err
	}

	if useCache {
		app.cacheResponse(ctx, key, resp, cfg)
	}
	showReply(resp.Text, opts.render)
	return resp, nil
}

func (app *App) streamReply(ctx context.Context, client provider.ProviderClient, req provider.ChatRequest, opts *chatOptions) (*provider.ChatResponse, error) {
	sp := display.NewSpinner("Thinking...")
	sp.Start()
	stream, err := provider.Retry(ctx, provider.NewRetryPolicy(opts.retries), func(ctx context.Context) (*provider.Stream, error) {
		return client.Stream(ctx, req)
	})
	if err != nil {
		sp.Stop()
		return nil, err
	}
	defer stream.Close()

	firstChunk := true
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			sp.Stop()
			if !opts.render {
				fmt.Fprintln(display.Stdout)
			}
			return nil, err
		}
		if firstChunk {
			firstChunk = false
			if opts.render {
				sp.UpdateMessage("Receiving...")
			} else {
				sp.Stop()
			}
		}
		if !opts.render {
			fmt.Fprint(display.Stdout, delta.Text)
		}
	}
	sp.Stop()

	if opts.render {
		display.ShowContentRendered(stream.Text())
	} else {
		fmt.Fprintln(display.Stdout)
	}
	return stream.Response(), nil
}

func showReply(text string, render bool) {
	if render {
		display.ShowContentRendered(text)
		return
	}
	display.ShowContent(text)
}

// cacheKey identifies a request by provider, model, sampling settings and
// the full message list.
func cacheKey(providerID string, req provider.ChatRequest) string {
	d := xxhash.New()
	_, _ = d.WriteString(providerID)
	_, _ = d.WriteString("\x00" + req.Model)
	_, _ = d.WriteString("\x00" + strconv.FormatFloat(req.Temperature, 'g', -1, 64))
	_, _ = d.WriteString("\x00" + strconv.Itoa(req.MaxTokens))
	for _, m := range req.Messages {
		_, _ = d.WriteString("\x00" + m.Role + "\x00" + m.Content)
	}
	return "chat:" + strconv.FormatUint(d.Sum64(), 16)
}

func (app *App) cachedResponse(ctx context.Context, key string) (*provider.ChatResponse, bool) {
	s, err := app.openStore(ctx)
	if err != nil {
		logging.Warn("response cache unavailable", logging.Fields{"error": err.Error()})
		return nil, false
	}
	value, ok, err := s.Cache().Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			logging.Warn("response cache read failed", logging.Fields{"error": err.Error()})
		}
		return nil, false
	}
	var resp provider.ChatResponse
	if err := json.Unmarshal([]byte(value), &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (app *App) cacheResponse(ctx context.Context, key string, resp *provider.ChatResponse, cfg config.Config) {
	s, err := app.openStore(ctx)
	if err != nil {
		logging.Warn("response cache unavailable", logging.Fields{"error": err.Error()})
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.Cache().Put(ctx, key, string(data), cfg.CacheTTL); err != nil {
		logging.Warn("response cache write failed", logging.Fields{"error": err.Error()})
	}
}
