package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quocvuong92/osram-cli/internal/display"
	"github.com/quocvuong92/osram-cli/internal/provider"
	"github.com/quocvuong92/osram-cli/internal/store"
)

// actionReply is a model reply choosing typ with params
func actionReply(t *testing.T, typ string, params map[string]any, wantsReply bool) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"action_type":          typ,
		"parameters":           params,
		"requires_ai_response": wantsReply,
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// sessionOps returns the operations the session logged
func sessionOps(t *testing.T, s *InteractiveSession) []store.OperationRecord {
	t.Helper()
	st, err := s.app.openStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	recs, err := st.Operations().ListSession(context.Background(), s.app.sessionID)
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func hasOp(recs []store.OperationRecord, op, status string) bool {
	for _, r := range recs {
		if r.Operation == op && r.Status == status {
			return true
		}
	}
	return false
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantType  string
		wantReply bool
		wantErr   bool
	}{
		{
			name:      "plain object",
			text:      `{"action_type":"list_files","parameters":{"path":"."}}`,
			wantType:  actionListFiles,
			wantReply: true,
		},
		{
			name:      "code fence",
			text:      "```json\n{\"action_type\":\"read_file\",\"parameters\":{\"file_path\":\"go.mod\"}}\n```",
			wantType:  actionReadFile,
			wantReply: true,
		},
		{
			name:      "prose around the object",
			text:      `Sure. {"action_type":"Run_Command","parameters":{"command":"ls"},"requires_ai_response":false} Done.`,
			wantType:  actionRunCommand,
			wantReply: false,
		},
		{
			name:      "none",
			text:      `{"action_type":"none"}`,
			wantType:  actionNone,
			wantReply: true,
		},
		{name: "no object", text: "Goroutines are lightweight threads.", wantErr: true},
		{name: "unknown type", text: `{"action_type":"format_disk"}`, wantErr: true},
		{name: "missing type", text: `{"parameters":{"path":"."}}`, wantErr: true},
		{name: "broken json", text: `{"action_type":"list_files",}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAction(tt.text)
			if tt.wantErr {
				if !errors.Is(err, errNoAction) {
					t.Errorf("parseAction() error = %v, want errNoAction", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAction() error = %v", err)
			}
			if a.Type != tt.wantType || a.wantsReply() != tt.wantReply {
				t.Errorf("parseAction() = %s reply=%v, want %s reply=%v", a.Type, a.wantsReply(), tt.wantType, tt.wantReply)
			}
		})
	}
}

func TestSession_ActionListFiles(t *testing.T) {
	env := newTestEnv(t)
	dir := env.workDir(t)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestSession(t, env)
	env.enqueue(
		actionReply(t, actionListFiles, map[string]any{"path": dir}, true),
		"There is one file.",
	)

	s.executor("/do what is in the work dir?")

	if got := env.requests.Load(); got != 2 {
		t.Fatalf("server requests = %d, want plan and answer", got)
	}
	if !strings.Contains(env.lastRequest(), "notes.txt") {
		t.Errorf("answer request did not carry the listing: %s", env.lastRequest())
	}
	if len(s.messages) != 3 {
		t.Fatalf("messages = %+v, want system, request and answer", s.messages)
	}
	if s.messages[1].Content != "what is in the work dir?" || s.messages[2].Content != "There is one file." {
		t.Errorf("conversation = %+v", s.messages[1:])
	}
	if !hasOp(sessionOps(t, s), "action.list_files", store.StatusSuccess) {
		t.Error("list action was not logged")
	}
	if len(s.tokens) != 2 || s.tokens[0].operation != "plan" {
		t.Errorf("tokens = %+v, want plan and action", s.tokens)
	}
}

func TestSession_ActionDeleteDeclined(t *testing.T) {
	env := newTestEnv(t)
	dir := env.workDir(t)
	file := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, out := newTestSession(t, env)
	t.Cleanup(display.SetInput(strings.NewReader("n\n")))
	env.enqueue(actionReply(t, actionDeleteFile, map[string]any{"path": file}, false))

	s.executor("/do delete keep.txt")

	if _, err := os.Stat(file); err != nil {
		t.Errorf("declined delete removed the file: %v", err)
	}
	if !strings.Contains(out.String(), "Action cancelled by user.") {
		t.Errorf("output = %q", out.String())
	}
	if !hasOp(sessionOps(t, s), "action.delete_file", store.StatusDenied) {
		t.Error("declined delete was not logged as denied")
	}
	if got := env.requests.Load(); got != 1 {
		t.Errorf("server requests = %d, want only the plan", got)
	}
}

func TestSession_ActionDeleteApproved(t *testing.T) {
	env := newTestEnv(t)
	dir := env.workDir(t)
	file := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestSession(t, env)
	s.app.assumeYes = true
	env.enqueue(actionReply(t, actionDeleteFile, map[string]any{"path": file}, false))

	s.executor("/do delete old.txt")

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("approved delete left the file")
	}
	if _, err := os.Stat(filepath.Join(env.dir, "trash", "old.txt")); err != nil {
		t.Errorf("file not in trash: %v", err)
	}
	if last := s.messages[len(s.messages)-1]; last.Role != provider.RoleAssistant || !strings.HasPrefix(last.Content, "Action completed: Moved") {
		t.Errorf("last turn = %+v", last)
	}
}

func TestSession_ActionWriteFile(t *testing.T) {
	env := newTestEnv(t)
	dir := env.workDir(t)
	file := filepath.Join(dir, "hello.go")
	s, _ := newTestSession(t, env)
	env.enqueue(actionReply(t, actionWriteFile, map[string]any{"file_path": file, "content": "package main\n"}, false))

	s.executor("/do create hello.go")

	data, err := os.ReadFile(file)
	if err != nil || string(data) != "package main\n" {
		t.Errorf("file = %q, %v", data, err)
	}
	if !hasOp(sessionOps(t, s), "action.write_file", store.StatusSuccess) {
		t.Error("write action was not logged")
	}
}

func TestSession_ActionRunBlocksDangerous(t *testing.T) {
	env := newTestEnv(t)
	s, out := newTestSession(t, env)
	s.app.assumeYes = true
	env.enqueue(actionReply(t, actionRunCommand, map[string]any{"command": "sudo rm -rf /"}, false))

	s.executor("/do clean the disk")

	if !strings.Contains(out.String(), "Command blocked") {
		t.Errorf("output = %q, want blocked", out.String())
	}
	if !hasOp(sessionOps(t, s), "action.run_command", store.StatusDenied) {
		t.Error("blocked command was not logged as denied")
	}
}

func TestSession_ActionFallsBackToChat(t *testing.T) {
	env := newTestEnv(t)
	s, _ := newTestSession(t, env)
	env.enqueue("Goroutines are lightweight threads.")

	s.executor("/do explain goroutines")

	if got := env.requests.Load(); got != 2 {
		t.Fatalf("server requests = %d, want plan and chat", got)
	}
	if len(s.messages) != 3 || s.messages[2].Content != env.reply {
		t.Errorf("messages = %+v, want a normal chat turn", s.messages)
	}
}

func TestSession_ActionMode(t *testing.T) {
	env := newTestEnv(t)
	s, _ := newTestSession(t, env)

	s.executor("/actions on")
	if !s.actions {
		t.Fatal("/actions on did not enable action mode")
	}
	env.enqueue(`{"action_type":"none"}`)
	s.executor("hello")
	if got := env.requests.Load(); got != 2 {
		t.Errorf("server requests = %d, want plan and chat", got)
	}

	s.executor("/actions off")
	s.executor("hello again")
	if got := env.requests.Load(); got != 3 {
		t.Errorf("server requests = %d, want one more chat", got)
	}
}
