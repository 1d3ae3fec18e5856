package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/elk-language/go-prompt"
	istrings "github.com/elk-language/go-prompt/strings"
	"github.com/google/uuid"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/gitops"
	"github.com/quocvuong92/osram-cli/internal/history"
	"github.com/quocvuong92/osram-cli/internal/logging"
	"github.com/quocvuong92/osram-cli/internal/provider"
)

// InteractiveSession holds the state for an interactive chat session.
// It manages conversation history, the active client and persistence.
type InteractiveSession struct {
	app            *App
	ctx            context.Context
	opts           *chatOptions
	cfg            config.Config
	client         provider.ProviderClient
	messages       []provider.Message
	exitFlag       bool
	inputBuffer    []string // Buffer for multiline input
	history        *history.History
	conversationID string
	actions        bool // plain input goes through act
	tokens         []tokenUse
}

// newSession builds a session without starting the prompt loop
func (app *App) newSession(ctx context.Context, opts *chatOptions) (*InteractiveSession, error) {
	cfg, err := app.chatConfig(opts)
	if err != nil {
		return nil, err
	}
	client, err := app.newClient(cfg)
	if err != nil {
		return nil, err
	}

	s := &InteractiveSession{
		app:            app,
		ctx:            ctx,
		opts:           opts,
		cfg:            cfg,
		client:         client,
		conversationID: uuid.NewString(),
		actions:        opts.actions,
	}
	s.resetMessages()

	if cfg.SaveHistory {
		cwd, _ := os.Getwd()
		s.history = history.New(history.Path(cfg, cwd), cfg.MaxHistory)
		if err := s.history.Load(); err != nil {
			display.ShowWarning(fmt.Sprintf("Could not load history: %v", err))
		}
	}
	return s, nil
}

func (s *InteractiveSession) resetMessages() {
	s.messages = nil
	if s.opts.system != "" {
		s.messages = []provider.Message{{Role: provider.RoleSystem, Content: s.opts.system}}
	}
}

func (s *InteractiveSession) git() *gitops.Runner {
	cwd, _ := os.Getwd()
	return gitops.New(cwd)
}

// model returns the model the current provider is configured with
func (s *InteractiveSession) model() string {
	return s.cfg.Providers[s.cfg.CurrentProvider].Model
}

// completer provides auto-completion suggestions for slash commands.
func (s *InteractiveSession) completer(d prompt.Document) ([]prompt.Suggest, istrings.RuneNumber, istrings.RuneNumber) {
	text := d.TextBeforeCursor()
	endIndex := d.CurrentRuneIndex()
	w := d.GetWordBeforeCursor()
	startIndex := endIndex - istrings.RuneCountInString(w)

	if !strings.HasPrefix(text, "/") {
		return []prompt.Suggest{}, startIndex, endIndex
	}

	textLower := strings.ToLower(text)

	if strings.HasPrefix(textLower, "/model ") {
		var suggestions []prompt.Suggest
		for _, model := range config.AvailableModels(s.cfg.CurrentProvider) {
			desc := ""
			if model == s.model() {
				desc = "(current)"
			}
			suggestions = append(suggestions, prompt.Suggest{Text: model, Description: desc})
		}
		return prompt.FilterHasPrefix(suggestions, w, true), startIndex, endIndex
	}

	if strings.HasPrefix(textLower, "/provider ") {
		suggestions := []prompt.Suggest{
			{Text: "zai", Description: "Zhipu GLM"},
			{Text: "claude", Description: "Anthropic Claude"},
			{Text: "gemini", Description: "Google Gemini"},
			{Text: "openai", Description: "OpenAI"},
		}
		return prompt.FilterHasPrefix(suggestions, w, true), startIndex, endIndex
	}

	suggestions := []prompt.Suggest{
		{Text: "/model", Description: "Show/switch model (current: " + s.model() + ")"},
		{Text: "/provider", Description: "Show/switch provider (current: " + s.cfg.CurrentProvider + ")"},
		{Text: "/clear", Description: "Clear conversation history"},
		{Text: "/history", Description: "Show recent conversations"},
		{Text: "/resume", Description: "Resume a previous conversation"},
		{Text: "/git", Description: "Run git and add its output to the conversation"},
		{Text: "/do", Description: "Let the assistant run a file, shell or git action"},
		{Text: "/actions", Description: "Toggle action mode for every prompt"},
		{Text: "/cd", Description: "Change the working directory"},
		{Text: "/tokens", Description: "Show token usage for this session"},
		{Text: "/settings", Description: "Show current settings"},
		{Text: "/configure", Description: "Change a setting and save it"},
		{Text: "/help", Description: "Show all available commands"},
		{Text: "/exit", Description: "Exit interactive mode"},

		{Text: "/q", Description: "Exit (alias)"},
		{Text: "/c", Description: "Clear (alias)"},
		{Text: "/h", Description: "Help (alias)"},
	}

	return prompt.FilterHasPrefix(suggestions, w, true), startIndex, endIndex
}

// runInteractive starts the interactive chat mode with a REPL interface.
// Supports multiline input with backslash continuation and slash commands.
func (app *App) runInteractive(ctx context.Context, opts *chatOptions) error {
	session, err := app.newSession(ctx, opts)
	if err != nil {
		return err
	}
	if opts.render {
		if err := display.InitRenderer(session.cfg.Theme); err != nil {
			logging.Warn("markdown rendering disabled", logging.Fields{"error": err.Error()})
		}
	}

	fmt.Fprintln(display.Stdout, "osram - Interactive Mode")
	fmt.Fprintf(display.Stdout, "Provider: %s\n", session.cfg.CurrentProvider)
	fmt.Fprintf(display.Stdout, "Model: %s\n", session.model())
	if session.cfg.EnableGitIntegration {
		if branch := session.git().CurrentBranch(ctx); branch != "" {
			fmt.Fprintf(display.Stdout, "Branch: %s\n", branch)
		}
	}
	display.ShowMuted("Type /help for commands, Ctrl+C or Ctrl+D to quit")
	display.ShowMuted("End a line with \\ for multiline input")
	if session.actions {
		display.ShowMuted("Action mode is on: the assistant may read, write and run things after asking")
	}
	fmt.Fprintln(display.Stdout)

	p := prompt.New(
		session.executor,
		prompt.WithCompleter(session.completer),
		prompt.WithPrefix("> "),
		prompt.WithTitle("osram"),
		prompt.WithPrefixTextColor(prompt.Green),
		prompt.WithSuggestionBGColor(prompt.DarkBlue),
		prompt.WithSuggestionTextColor(prompt.White),
		prompt.WithSelectedSuggestionBGColor(prompt.Cyan),
		prompt.WithSelectedSuggestionTextColor(prompt.Black),
		prompt.WithDescriptionBGColor(prompt.DarkBlue),
		prompt.WithDescriptionTextColor(prompt.LightGray),
		prompt.WithSelectedDescriptionBGColor(prompt.Cyan),
		prompt.WithSelectedDescriptionTextColor(prompt.Black),
		prompt.WithMaxSuggestion(10),
		prompt.WithCompletionOnDown(),
		prompt.WithExitChecker(func(in string, breakline bool) bool {
			return session.exitFlag
		}),
		prompt.WithKeyBind(prompt.KeyBind{
			Key: prompt.ControlC,
			Fn: func(p *prompt.Prompt) bool {
				fmt.Fprintln(display.Stdout, "\nGoodbye!")
				session.saveHistory()
				session.exitFlag = true
				return false
			},
		}),
		prompt.WithKeyBind(prompt.KeyBind{
			Key: prompt.ControlD,
			Fn: func(p *prompt.Prompt) bool {
				if p.Buffer().Text() == "" {
					fmt.Fprintln(display.Stdout, "Goodbye!")
					session.saveHistory()
					session.exitFlag = true
				}
				return false
			},
		}),
	)

	p.Run()
	return nil
}

// saveHistory persists the current conversation when it has user turns
func (s *InteractiveSession) saveHistory() {
	if s.history == nil || !s.hasTurns() {
		return
	}
	s.history.Add(s.conversationID, s.cfg.CurrentProvider, s.model(), s.messages)
	if err := s.history.Save(); err != nil {
		display.ShowWarning(fmt.Sprintf("Could not save history: %v", err))
	}
}

func (s *InteractiveSession) hasTurns() bool {
	for _, m := range s.messages {
		if m.Role != provider.RoleSystem {
			return true
		}
	}
	return false
}

// executor handles each input line of the REPL
func (s *InteractiveSession) executor(input string) {
	if s.exitFlag {
		return
	}

	if strings.HasSuffix(input, "\\") {
		s.inputBuffer = append(s.inputBuffer, strings.TrimSuffix(input, "\\"))
		fmt.Fprint(display.Stdout, "... ")
		return
	}
	if len(s.inputBuffer) > 0 {
		s.inputBuffer = append(s.inputBuffer, input)
		input = strings.Join(s.inputBuffer, "\n")
		s.inputBuffer = nil
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	if strings.HasPrefix(input, "/") {
		if s.handleCommand(input) {
			s.exitFlag = true
		}
		return
	}

	if s.actions {
		s.act(input)
		return
	}
	s.send(input)
}

// send appends the user turn, asks the provider and records the reply. A
// failed request leaves the conversation as it was.
func (s *InteractiveSession) send(input string) {
	s.messages = append(s.messages, provider.Message{Role: provider.RoleUser, Content: input})
	fmt.Fprintln(display.Stdout)

	opts := *s.opts
	opts.stream = s.opts.stream || s.cfg.EnableStreaming
	req := buildRequest(s.cfg, &opts, s.messages)

	resp, err := s.app.complete(s.ctx, s.cfg, s.client, req, &opts)
	if err != nil {
		display.ShowError(err.Error())
		s.messages = s.messages[:len(s.messages)-1]
		return
	}
	s.messages = append(s.messages, provider.Message{Role: provider.RoleAssistant, Content: resp.Text})
	s.trackUsage("chat", req, resp)
	if s.opts.usage && resp.Usage != nil {
		u := resp.Usage
		display.ShowUsage(u.PromptTokens, u.CompletionTokens, u.TotalTokens, u.Estimated)
	}
	fmt.Fprintln(display.Stdout)
}
