package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/quocvuong92/osram-cli/internal/analyzer"
	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/executor"
	"github.com/quocvuong92/osram-cli/internal/fsops"
	"github.com/quocvuong92/osram-cli/internal/gitops"
	"github.com/quocvuong92/osram-cli/internal/logging"
	"github.com/quocvuong92/osram-cli/internal/provider"
	"github.com/quocvuong92/osram-cli/internal/store"
)

// Action types the model may pick in action mode
const (
	actionListFiles       = "list_files"
	actionReadFile        = "read_file"
	actionWriteFile       = "write_file"
	actionCreateDirectory = "create_directory"
	actionDeleteFile      = "delete_file"
	actionCopyFile        = "copy_file"
	actionMoveFile        = "move_file"
	actionFindFiles       = "find_files"
	actionCompareFiles    = "compare_files"
	actionChangeDirectory = "change_directory"
	actionRunCommand      = "run_command"
	actionGitOperation    = "git_operation"
	actionAnalyzeProject  = "analyze_project"
	actionNone            = "none"
)

const actionPromptTemplate = `Decide which local action answers the request below and reply with only a JSON object, no prose:

{
  "action_type": "list_files|read_file|write_file|create_directory|delete_file|copy_file|move_file|find_files|compare_files|change_directory|run_command|git_operation|analyze_project|none",
  "parameters": {},
  "requires_ai_response": true,
  "is_destructive": false
}

Parameters by action:
  list_files: path
  read_file: file_path
  write_file: file_path, content
  create_directory: dir_path
  delete_file: path
  copy_file, move_file: source, destination
  find_files: pattern, directory
  compare_files: file1, file2
  change_directory: path
  run_command: command
  git_operation: operation, args (list of strings)
  analyze_project: path

Use "none" when the request needs no local action. The working directory is %s.

Request: %s`

const resultPromptTemplate = `I asked: %s

The action you chose produced this result:

%s

Answer my request using this result.`

// action is the model's reply in action mode
type action struct {
	Type               string       `json:"action_type" validate:"required,oneof=list_files read_file write_file create_directory delete_file copy_file move_file find_files compare_files change_directory run_command git_operation analyze_project none"`
	Parameters         actionParams `json:"parameters"`
	RequiresAIResponse *bool        `json:"requires_ai_response"`
	IsDestructive      bool         `json:"is_destructive"`
}

type actionParams struct {
	Path        string   `json:"path"`
	FilePath    string   `json:"file_path"`
	DirPath     string   `json:"dir_path"`
	Content     string   `json:"content"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Pattern     string   `json:"pattern"`
	Directory   string   `json:"directory"`
	File1       string   `json:"file1"`
	File2       string   `json:"file2"`
	Command     string   `json:"command"`
	Operation   string   `json:"operation"`
	Args        []string `json:"args"`
}

// wantsReply reports whether the model should describe the result; it
// defaults to true.
func (a *action) wantsReply() bool {
	return a.RequiresAIResponse == nil || *a.RequiresAIResponse
}

var actionValidate = validator.New(validator.WithRequiredStructEnabled())

// errNoAction means the reply did not contain an action object
var errNoAction = errors.New("reply is not an action")

// parseAction extracts the JSON action from a reply, tolerating code fences
// and text around the object.
func parseAction(text string) (*action, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errNoAction
	}
	var a action
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("%w: %w", errNoAction, err)
	}
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	if err := actionValidate.Struct(&a); err != nil {
		return nil, fmt.Errorf("%w: %w", errNoAction, err)
	}
	return &a, nil
}

func actionPrompt(input string) string {
	cwd, _ := os.Getwd()
	return fmt.Sprintf(actionPromptTemplate, cwd, input)
}

// act lets the model pick an action for input, runs it, and has the model
// answer from the result. A reply that is not an action, or picks "none",
// is answered as a normal chat turn.
func (s *InteractiveSession) act(input string) {
	plan := append(s.messages[:len(s.messages):len(s.messages)],
		provider.Message{Role: provider.RoleUser, Content: actionPrompt(input)})
	req := buildRequest(s.cfg, s.opts, plan)
	req.Stream = false

	sp := display.NewSpinner("Planning...")
	sp.Start()
	resp, err := provider.Retry(s.ctx, provider.NewRetryPolicy(s.opts.retries), func(ctx context.Context) (*provider.ChatResponse, error) {
		return s.client.Send(ctx, req)
	})
	sp.Stop()
	if err != nil {
		display.ShowError(err.Error())
		return
	}
	s.trackUsage("plan", req, resp)

	a, err := parseAction(resp.Text)
	if err != nil || a.Type == actionNone {
		if err != nil {
			logging.Debug("answering without an action", logging.Fields{"error": err.Error()})
		}
		s.send(input)
		return
	}

	result := s.runAction(a)
	if !a.wantsReply() {
		reply := "Action completed: " + result
		fmt.Fprintln(display.Stdout, reply)
		s.messages = append(s.messages,
			provider.Message{Role: provider.RoleUser, Content: input},
			provider.Message{Role: provider.RoleAssistant, Content: reply},
		)
		return
	}

	summary := append(s.messages[:len(s.messages):len(s.messages)],
		provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf(resultPromptTemplate, input, result)})
	opts := *s.opts
	opts.stream = s.opts.stream || s.cfg.EnableStreaming
	opts.noCache = true
	req = buildRequest(s.cfg, &opts, summary)

	fmt.Fprintln(display.Stdout)
	reply, err := s.app.complete(s.ctx, s.cfg, s.client, req, &opts)
	text := ""
	if err != nil {
		display.ShowWarning("could not get a reply about the result: " + err.Error())
		text = "Action completed: " + result
		fmt.Fprintln(display.Stdout, text)
	} else {
		s.trackUsage("action", req, reply)
		text = reply.Text
	}
	s.messages = append(s.messages,
		provider.Message{Role: provider.RoleUser, Content: input},
		provider.Message{Role: provider.RoleAssistant, Content: text},
	)
	fmt.Fprintln(display.Stdout)
}

// runAction dispatches an action and returns the text reported back to
// the model. Failures are reported in the text, never returned.
func (s *InteractiveSession) runAction(a *action) string {
	p := a.Parameters
	switch a.Type {
	case actionListFiles:
		return s.listFiles(firstNonEmpty(p.Path, p.Directory, "."))
	case actionReadFile:
		return s.readFile(firstNonEmpty(p.FilePath, p.Path))
	case actionWriteFile:
		return s.writeFile(a, firstNonEmpty(p.FilePath, p.Path), p.Content)
	case actionCreateDirectory:
		return s.createDirectory(firstNonEmpty(p.DirPath, p.Path))
	case actionDeleteFile:
		return s.deleteFile(firstNonEmpty(p.Path, p.FilePath))
	case actionCopyFile:
		return s.copyFile(a, p.Source, p.Destination)
	case actionMoveFile:
		return s.moveFile(p.Source, p.Destination)
	case actionFindFiles:
		return s.findFiles(p.Pattern, firstNonEmpty(p.Directory, p.Path, "."))
	case actionCompareFiles:
		return s.compareFiles(p.File1, p.File2)
	case actionChangeDirectory:
		return s.changeDirectory(firstNonEmpty(p.Path, p.DirPath))
	case actionRunCommand:
		return s.runCommand(a, p.Command)
	case actionGitOperation:
		return s.gitOperation(a, p.Operation, p.Args)
	case actionAnalyzeProject:
		return s.analyzeProject(firstNonEmpty(p.Path, p.Directory, "."))
	default:
		return "Error: unknown action type " + a.Type
	}
}

// allow checks path safety and, for destructive actions, asks the user. A
// refusal is logged and returned as the message for the model.
func (s *InteractiveSession) allow(op, path, question string, destructive bool) (string, bool) {
	if ok, reason := fsops.IsPathSafe(path); !ok {
		display.ShowFileBlocked(op, path, reason)
		s.app.logOperation(s.ctx, op, path, store.StatusDenied, reason)
		return "Blocked: " + reason, false
	}
	if destructive && !s.app.confirm(question) {
		s.app.logOperation(s.ctx, op, path, store.StatusDenied, "declined")
		return "Action cancelled by user.", false
	}
	return "", true
}

func (s *InteractiveSession) listFiles(path string) string {
	display.ShowFileOperation("list", path)
	entries, err := s.app.fs.List(path)
	s.app.logOperation(s.ctx, "action.list_files", path, statusOf(err), "")
	if err != nil {
		return "Error: " + err.Error()
	}
	abs, _ := filepath.Abs(path)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of directory: %s\n", abs)
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&sb, "  %s/\n", e.Name)
			continue
		}
		fmt.Fprintf(&sb, "  %s (%s)\n", e.Name, humanize.IBytes(uint64(e.Size)))
	}
	if len(entries) == 0 {
		sb.WriteString("  (empty)\n")
	}
	return sb.String()
}

func (s *InteractiveSession) readFile(path string) string {
	if path == "" {
		return "Error: no file path specified"
	}
	display.ShowFileOperation("read", path)
	res, err := s.app.fs.Read(path)
	s.app.logOperation(s.ctx, "action.read_file", path, statusOf(err), "")
	if err != nil {
		return "Error: " + err.Error()
	}
	text := "Content of " + path + ":\n\n" + res.Content
	if res.Truncated {
		text += fmt.Sprintf("\n\n(truncated: %s of %s shown)", humanize.IBytes(fsops.MaxReadSize), humanize.IBytes(uint64(res.Size)))
	}
	return text
}

func (s *InteractiveSession) writeFile(a *action, path, content string) string {
	const op = "action.write_file"
	if path == "" {
		return "Error: no file path specified"
	}
	display.ShowFileOperation("write", path)
	overwrite := s.app.fs.Exists(path)
	question := "Write " + path + "?"
	if overwrite {
		question = "Overwrite " + path + "?"
	}
	if msg, ok := s.allow(op, path, question, overwrite || a.IsDestructive); !ok {
		return msg
	}
	res, err := s.app.fs.Write(path, content)
	s.app.logOperation(s.ctx, op, path, statusOf(err), fmt.Sprintf("%d bytes", len(content)))
	if err != nil {
		return "Error: " + err.Error()
	}
	text := fmt.Sprintf("Wrote %d bytes to %s", res.Bytes, res.Path)
	if res.Backup != "" {
		text += " (previous version saved as " + res.Backup + ")"
	}
	return text
}

func (s *InteractiveSession) createDirectory(path string) string {
	const op = "action.create_directory"
	if path == "" {
		return "Error: no directory path specified"
	}
	if msg, ok := s.allow(op, path, "", false); !ok {
		return msg
	}
	created, err := s.app.fs.Mkdir(path)
	s.app.logOperation(s.ctx, op, path, statusOf(err), "")
	if err != nil {
		return "Error: " + err.Error()
	}
	return "Created directory " + created
}

func (s *InteractiveSession) deleteFile(path string) string {
	const op = "action.delete_file"
	if path == "" {
		return "Error: no path specified"
	}
	display.ShowFileOperation("delete", path)
	if msg, ok := s.allow(op, path, "Move "+path+" to the trash?", true); !ok {
		return msg
	}
	dest, err := s.app.fs.Delete(path)
	s.app.logOperation(s.ctx, op, path, statusOf(err), dest)
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Moved %s to the trash (%s)", path, dest)
}

func (s *InteractiveSession) copyFile(a *action, src, dst string) string {
	const op = "action.copy_file"
	if src == "" || dst == "" {
		return "Error: both source and destination are required"
	}
	overwrite := s.app.fs.Exists(dst)
	if msg, ok := s.allow(op, dst, "Copy "+src+" over "+dst+"?", overwrite || a.IsDestructive); !ok {
		return msg
	}
	out, err := s.app.fs.Copy(src, dst)
	s.app.logOperation(s.ctx, op, src, statusOf(err), "to "+dst)
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Copied %s to %s", src, out)
}

func (s *InteractiveSession) moveFile(src, dst string) string {
	const op = "action.move_file"
	if src == "" || dst == "" {
		return "Error: both source and destination are required"
	}
	if ok, reason := fsops.IsPathSafe(dst); !ok {
		display.ShowFileBlocked(op, dst, reason)
		s.app.logOperation(s.ctx, op, dst, store.StatusDenied, reason)
		return "Blocked: " + reason
	}
	if msg, ok := s.allow(op, src, "Move "+src+" to "+dst+"?", true); !ok {
		return msg
	}
	out, err := s.app.fs.Move(src, dst)
	s.app.logOperation(s.ctx, op, src, statusOf(err), "to "+dst)
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Moved %s to %s", src, out)
}

func (s *InteractiveSession) findFiles(pattern, dir string) string {
	if pattern == "" {
		return "Error: no search pattern specified"
	}
	display.ShowFileOperation("search", pattern+" in "+dir)
	entries, err := s.app.fs.Find(dir, pattern)
	s.app.logOperation(s.ctx, "action.find_files", dir, statusOf(err), pattern)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No files matching %q in %s", pattern, dir)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Files matching %q in %s:\n", pattern, dir)
	for _, e := range entries {
		sb.WriteString("  " + e.Path + "\n")
	}
	if len(entries) >= fsops.MaxFindResults {
		fmt.Fprintf(&sb, "(stopped after %d matches)\n", fsops.MaxFindResults)
	}
	return sb.String()
}

func (s *InteractiveSession) compareFiles(a, b string) string {
	if a == "" || b == "" {
		return "Error: both file paths are required"
	}
	diff, err := s.app.fs.Compare(a, b)
	s.app.logOperation(s.ctx, "action.compare_files", a, statusOf(err), "with "+b)
	if err != nil {
		return "Error: " + err.Error()
	}
	if diff == "" {
		return "Files are identical"
	}
	display.ShowDiff(diff)
	return "Differences between " + a + " and " + b + ":\n" + diff
}

func (s *InteractiveSession) changeDirectory(path string) string {
	dir, err := s.chdir(path)
	if err != nil {
		return "Error: " + err.Error()
	}
	return "Changed directory to: " + dir
}

func (s *InteractiveSession) runCommand(a *action, line string) string {
	const op = "action.run_command"
	line = strings.TrimSpace(line)
	if line == "" {
		return "Error: no command specified"
	}

	verdict := executor.ClassifyCommand(line)
	switch {
	case verdict.Level == executor.Dangerous:
		display.ShowCommandBlocked(line, verdict.Reason)
		s.app.logOperation(s.ctx, op, line, store.StatusDenied, verdict.Reason)
		return "Command blocked: " + verdict.Reason
	case verdict.Level == executor.NeedsConfirm || a.IsDestructive:
		fmt.Fprintln(display.Stdout, "$ "+line)
		if !s.app.confirm("Run this command? (" + verdict.Reason + ")") {
			s.app.logOperation(s.ctx, op, line, store.StatusDenied, "declined")
			return "Command execution denied by user"
		}
	}

	display.ShowCommandExecuting(line)
	res, err := executor.Shell(s.ctx, constants.DefaultCommandTimeout, line)
	if err != nil {
		s.app.logOperation(s.ctx, op, line, store.StatusFailed, err.Error())
		return "Error: " + err.Error()
	}
	return s.commandResult(op, line, res)
}

func (s *InteractiveSession) gitOperation(a *action, operation string, args []string) string {
	const op = "action.git_operation"
	if !s.cfg.EnableGitIntegration {
		return "Error: " + ErrGitDisabled.Error()
	}
	if operation == "" {
		return "Error: no git operation specified"
	}
	argv := append([]string{operation}, args...)
	line := "git " + strings.Join(argv, " ")
	if a.IsDestructive {
		fmt.Fprintln(display.Stdout, "$ "+line)
		if !s.app.confirm("Run this command?") {
			s.app.logOperation(s.ctx, op, line, store.StatusDenied, "declined")
			return "Command execution denied by user"
		}
	}

	res, err := s.git().Run(s.ctx, argv...)
	if err != nil {
		s.app.logOperation(s.ctx, op, line, store.StatusFailed, err.Error())
		return "Error: " + err.Error()
	}
	return s.commandResult(op, line, res)
}

// commandResult shows and logs a finished command and renders it for the model
func (s *InteractiveSession) commandResult(op, line string, res *executor.Result) string {
	display.ShowCommandOutput(res.Stdout)
	status := store.StatusSuccess
	if res.ExitCode != 0 {
		display.ShowCommandError(line, res.ExitCode, res.Stderr)
		status = store.StatusFailed
	}
	s.app.logOperation(s.ctx, op, line, status, fmt.Sprintf("exit %d", res.ExitCode))
	return gitops.Summary(res)
}

func (s *InteractiveSession) analyzeProject(path string) string {
	report, cached, err := s.app.projectReport(s.ctx, path, &analyzeOptions{})
	if err != nil {
		return "Error: " + err.Error()
	}
	showReportSummary(report, cached)
	return analyzer.Summary(report)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
