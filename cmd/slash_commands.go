package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/gitops"
	"github.com/quocvuong92/osram-cli/internal/provider"
	"github.com/quocvuong92/osram-cli/internal/store"
)

// handleCommand processes slash commands in interactive mode.
// Returns true if the session should exit, false otherwise.
func (s *InteractiveSession) handleCommand(input string) bool {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/exit", "/quit", "/q":
		fmt.Fprintln(display.Stdout, "Goodbye!")
		s.saveHistory()
		return true

	case "/clear", "/c":
		s.saveHistory()
		s.resetMessages()
		s.conversationID = uuid.NewString()
		fmt.Fprintln(display.Stdout, "Conversation cleared.")

	case "/help", "/h":
		showHelp()

	case "/history":
		s.showHistory()

	case "/resume":
		s.resumeConversation(arg)

	case "/model":
		s.handleModelCommand(arg)

	case "/provider":
		s.handleProviderCommand(arg)

	case "/git":
		s.handleGitCommand(arg)

	case "/do":
		if arg == "" {
			fmt.Fprintln(display.Stdout, "Usage: /do <request>")
			break
		}
		s.act(arg)

	case "/actions":
		s.handleActionsCommand(arg)

	case "/cd":
		s.handleCdCommand(arg)

	case "/tokens":
		s.showTokens()

	case "/settings":
		s.showSettings()

	case "/configure":
		s.handleConfigureCommand(arg)

	default:
		fmt.Fprintf(display.Stdout, "Unknown command: %s\n", cmd)
		fmt.Fprintln(display.Stdout, "Type /help for available commands")
	}

	return false
}

// showHelp displays the help message with all available commands.
func showHelp() {
	out := display.Stdout
	fmt.Fprintln(out, "\nCommands:")
	fmt.Fprintf(out, "  %-24s %s\n", "/exit, /quit, /q", "Exit interactive mode")
	fmt.Fprintf(out, "  %-24s %s\n", "/clear, /c", "Start a new conversation")
	fmt.Fprintf(out, "  %-24s %s\n", "/history", "Show recent conversations")
	fmt.Fprintf(out, "  %-24s %s\n", "/resume [n]", "Resume the last (or n-th recent) conversation")
	fmt.Fprintf(out, "  %-24s %s\n", "/model <name>", "Switch model")
	fmt.Fprintf(out, "  %-24s %s\n", "/model", "Show current model")
	fmt.Fprintf(out, "  %-24s %s\n", "/provider <id>", "Switch provider (zai, claude, gemini, openai)")
	fmt.Fprintf(out, "  %-24s %s\n", "/provider", "Show current provider")
	fmt.Fprintf(out, "  %-24s %s\n", "/git <args>", "Run git and share its output with the assistant")
	fmt.Fprintf(out, "  %-24s %s\n", "/do <request>", "Let the assistant run a file, shell or git action")
	fmt.Fprintf(out, "  %-24s %s\n", "/actions [on|off]", "Send every prompt through /do")
	fmt.Fprintf(out, "  %-24s %s\n", "/cd [dir]", "Show or change the working directory")
	fmt.Fprintf(out, "  %-24s %s\n", "/tokens", "Show token usage for this session")
	fmt.Fprintf(out, "  %-24s %s\n", "/settings", "Show current settings")
	fmt.Fprintf(out, "  %-24s %s\n", "/configure <key> <value>", "Change a setting and save it")
	fmt.Fprintf(out, "  %-24s %s\n", "/help, /h", "Show this help")
	fmt.Fprintln(out)
}

const recentConversations = 10

// showHistory displays recent conversation history.
func (s *InteractiveSession) showHistory() {
	if s.history == nil {
		fmt.Fprintln(display.Stdout, "History is disabled (save_history is off).")
		return
	}

	conversations := s.history.Recent(recentConversations)
	if len(conversations) == 0 {
		fmt.Fprintln(display.Stdout, "No conversation history.")
		return
	}

	rows := make([][]string, 0, len(conversations))
	for i, conv := range conversations {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			humanize.Time(conv.UpdatedAt),
			conv.Provider + "/" + conv.Model,
			strconv.Itoa(countTurns(conv.Messages)),
			conv.Title(),
		})
	}
	display.ShowTable([]string{"#", "Updated", "Model", "Messages", "Title"}, rows)
}

// resumeConversation loads a saved conversation into the session. arg is
// empty for the most recent one or a 1-based index into /history.
func (s *InteractiveSession) resumeConversation(arg string) {
	if s.history == nil {
		fmt.Fprintln(display.Stdout, "History is disabled (save_history is off).")
		return
	}

	conversations := s.history.Recent(recentConversations)
	idx := 0
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(conversations) {
			fmt.Fprintf(display.Stdout, "Invalid conversation number: %s\n", arg)
			return
		}
		idx = n - 1
	}
	if len(conversations) == 0 {
		fmt.Fprintln(display.Stdout, "No conversation to resume.")
		return
	}

	s.saveHistory()
	conv := conversations[idx]
	s.messages = append(s.messages[:0:0], conv.Messages...)
	s.conversationID = conv.ID
	fmt.Fprintf(display.Stdout, "Resumed conversation from %s (%d messages)\n",
		conv.UpdatedAt.Format("2006-01-02 15:04"),
		countTurns(conv.Messages),
	)
}

func countTurns(messages []provider.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role != provider.RoleSystem {
			n++
		}
	}
	return n
}

// handleModelCommand processes the /model command to show or switch models.
func (s *InteractiveSession) handleModelCommand(model string) {
	available := config.AvailableModels(s.cfg.CurrentProvider)
	if model == "" {
		fmt.Fprintf(display.Stdout, "Current model: %s\n", s.model())
		if len(available) > 0 {
			fmt.Fprintf(display.Stdout, "Available: %s\n", strings.Join(available, ", "))
		}
		return
	}

	if !config.ValidateModel(s.cfg.CurrentProvider, model) {
		display.ShowWarning(fmt.Sprintf("%s is not a known %s model; using it anyway", model, s.cfg.CurrentProvider))
	}
	s.cfg = s.cfg.WithModel(model)
	fmt.Fprintf(display.Stdout, "Switched to model: %s\n", model)
}

// handleProviderCommand processes the /provider command. Switching keeps the
// conversation; the new provider receives the full message list.
func (s *InteractiveSession) handleProviderCommand(id string) {
	if id == "" {
		fmt.Fprintf(display.Stdout, "Current provider: %s\n", s.cfg.CurrentProvider)
		fmt.Fprintln(display.Stdout, "Available: zai, claude, gemini, openai")
		return
	}

	cfg, err := s.cfg.WithProvider(strings.ToLower(id))
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	client, err := s.app.newClient(cfg)
	if err != nil {
		display.ShowError(fmt.Sprintf("Failed to switch provider: %v", err))
		return
	}

	s.cfg = cfg
	s.client = client
	display.ShowSuccess(fmt.Sprintf("Switched to %s", cfg.CurrentProvider))
	fmt.Fprintf(display.Stdout, "  Model: %s\n", s.model())
}

// handleGitCommand runs git in the working directory and appends the
// result to the conversation so the next prompt can refer to it.
func (s *InteractiveSession) handleGitCommand(arg string) {
	if !s.cfg.EnableGitIntegration {
		display.ShowError(ErrGitDisabled.Error())
		return
	}
	args := strings.Fields(arg)
	if len(args) == 0 {
		fmt.Fprintln(display.Stdout, "Usage: /git <args>")
		return
	}

	line := "git " + strings.Join(args, " ")
	runner := s.git()
	if !runner.IsRepository(s.ctx) {
		display.ShowWarning("not inside a git repository")
	}
	res, err := runner.Run(s.ctx, args...)
	if err != nil {
		s.app.logOperation(s.ctx, "git", line, store.StatusFailed, err.Error())
		display.ShowError(err.Error())
		return
	}

	display.ShowCommandOutput(res.Stdout)
	status := store.StatusSuccess
	if res.ExitCode != 0 {
		display.ShowCommandError(line, res.ExitCode, res.Stderr)
		status = store.StatusFailed
	}
	s.app.logOperation(s.ctx, "git", line, status, "exit "+strconv.Itoa(res.ExitCode))

	s.messages = append(s.messages, provider.Message{
		Role:    provider.RoleUser,
		Content: "Output of a command I ran:\n\n" + gitops.Summary(res),
	})
	display.ShowMuted("Added to the conversation.")
}

// handleActionsCommand shows or sets action mode
func (s *InteractiveSession) handleActionsCommand(arg string) {
	switch strings.ToLower(arg) {
	case "":
		s.actions = !s.actions
	case "on":
		s.actions = true
	case "off":
		s.actions = false
	default:
		fmt.Fprintln(display.Stdout, "Usage: /actions [on|off]")
		return
	}
	if s.actions {
		fmt.Fprintln(display.Stdout, "Action mode on: prompts may run file, shell and git actions.")
		return
	}
	fmt.Fprintln(display.Stdout, "Action mode off.")
}

// handleCdCommand prints or changes the working directory
func (s *InteractiveSession) handleCdCommand(arg string) {
	if arg == "" {
		cwd, err := os.Getwd()
		if err != nil {
			display.ShowError(err.Error())
			return
		}
		fmt.Fprintln(display.Stdout, cwd)
		return
	}
	dir, err := s.chdir(arg)
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	fmt.Fprintf(display.Stdout, "Changed directory to: %s\n", dir)
}

// chdir changes the process working directory; ~ expands to the home
// directory. The change is logged as a "cd" operation.
func (s *InteractiveSession) chdir(path string) (string, error) {
	if path == "" {
		return "", errors.New("no directory specified")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(dir)
	switch {
	case err != nil:
		err = fmt.Errorf("%s does not exist", dir)
	case !info.IsDir():
		err = fmt.Errorf("%s is not a directory", dir)
	default:
		err = os.Chdir(dir)
	}
	s.app.logOperation(s.ctx, "cd", dir, statusOf(err), "")
	if err != nil {
		return "", err
	}
	return dir, nil
}

// tokenUse is one request's usage in this session
type tokenUse struct {
	operation string
	usage     provider.Usage
	at        time.Time
}

// trackUsage records resp's usage, estimating it when the provider sent none
func (s *InteractiveSession) trackUsage(operation string, req provider.ChatRequest, resp *provider.ChatResponse) {
	u := resp.Usage
	if u == nil {
		u = provider.EstimateUsage(req.Messages, resp.Text)
	}
	s.tokens = append(s.tokens, tokenUse{operation: operation, usage: *u, at: time.Now()})
}

func (s *InteractiveSession) showTokens() {
	if len(s.tokens) == 0 {
		fmt.Fprintln(display.Stdout, "No requests in this session yet.")
		return
	}

	var total provider.Usage
	rows := make([][]string, 0, len(s.tokens)+1)
	for _, t := range s.tokens {
		mark := ""
		if t.usage.Estimated {
			mark = "~"
			total.Estimated = true
		}
		total.PromptTokens += t.usage.PromptTokens
		total.CompletionTokens += t.usage.CompletionTokens
		total.TotalTokens += t.usage.TotalTokens
		rows = append(rows, []string{
			t.operation,
			mark + strconv.Itoa(t.usage.PromptTokens),
			mark + strconv.Itoa(t.usage.CompletionTokens),
			mark + strconv.Itoa(t.usage.TotalTokens),
			t.at.Format(time.TimeOnly),
		})
	}
	mark := ""
	if total.Estimated {
		mark = "~"
	}
	rows = append(rows, []string{
		"TOTAL",
		mark + strconv.Itoa(total.PromptTokens),
		mark + strconv.Itoa(total.CompletionTokens),
		mark + strconv.Itoa(total.TotalTokens),
		"",
	})
	display.ShowTable([]string{"Operation", "Prompt", "Completion", "Total", "Time"}, rows)
	if total.Estimated {
		display.ShowMuted("~ estimated at four characters per token")
	}
}

func (s *InteractiveSession) showSettings() {
	cwd, _ := os.Getwd()
	mode := "off"
	if s.actions {
		mode = "on"
	}
	rows := append(configRows(s.cfg),
		[]string{"working_directory", cwd},
		[]string{"action_mode", mode},
	)
	display.ShowTable([]string{"Setting", "Value"}, rows)
}

// handleConfigureCommand sets one key in the configuration file, then
// reloads it. The session keeps its provider and model unless the key
// changes them.
func (s *InteractiveSession) handleConfigureCommand(arg string) {
	key, value, _ := strings.Cut(arg, " ")
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		fmt.Fprintln(display.Stdout, "Usage: /configure <key> <value>")
		fmt.Fprintln(display.Stdout, "  e.g. /configure providers.claude.api_key sk-ant-...")
		fmt.Fprintln(display.Stdout, "       /configure user_preferences.confirm_destructive false")
		return
	}

	fc, _, err := config.LoadConfigFile(s.app.configPath)
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	if err := fc.Set(key, value); err != nil {
		display.ShowError(err.Error())
		return
	}
	if err := config.SaveConfigFile(s.app.configPath, fc); err != nil {
		display.ShowError(err.Error())
		return
	}
	cfg, err := config.LoadFrom(s.app.configPath, os.Getenv)
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	s.app.cfg = cfg

	next := cfg
	if key != "current_provider" {
		if kept, err := next.WithProvider(s.cfg.CurrentProvider); err == nil {
			next = kept
			if key != "providers."+next.CurrentProvider+".model" {
				next = next.WithModel(s.model())
			}
		}
	}
	client, err := s.app.newClient(next)
	if err != nil {
		display.ShowWarning(fmt.Sprintf("Saved, but the %s client could not be rebuilt: %v", next.CurrentProvider, err))
		return
	}
	s.cfg = next
	s.client = client
	s.app.logOperation(s.ctx, "config.set", key, store.StatusSuccess, "")
	display.ShowSuccess(key + " updated")
}
