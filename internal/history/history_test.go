package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/provider"
)

func msgs(contents ...string) []provider.Message {
	out := make([]provider.Message, 0, len(contents))
	for i, c := range contents {
		role := provider.RoleUser
		if i%2 == 1 {
			role = provider.RoleAssistant
		}
		out = append(out, provider.Message{Role: role, Content: c})
	}
	return out
}

func tickingHistory(t *testing.T, max int) *History {
	t.Helper()
	h := New(filepath.Join(t.TempDir(), "sub", "history.json"), max)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	h.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return h
}

func TestHistory_SaveLoad(t *testing.T) {
	h := tickingHistory(t, 10)
	h.Add("a", "openai", "gpt-4o", msgs("hello", "hi"))
	h.Add("b", "claude", "claude-3-opus-20240229", msgs("second"))

	if err := h.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(h.File())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("history perm = %o, want 600", perm)
	}

	loaded := New(h.File(), 10)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c := loaded.Get("a")
	if c == nil {
		t.Fatal("Get(a) = nil")
	}
	if c.Provider != "openai" || len(c.Messages) != 2 || c.Messages[1].Content != "hi" {
		t.Errorf("Get(a) = %+v", c)
	}
	if last := loaded.Last(); last == nil || last.ID != "b" {
		t.Errorf("Last() = %+v, want b", last)
	}
}

func TestHistory_LoadMissingFile(t *testing.T) {
	h := New(filepath.Join(t.TempDir(), "none.json"), 5)
	if err := h.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if h.Last() != nil {
		t.Error("Last() on empty history should be nil")
	}
}

func TestHistory_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := New(path, 5).Load(); err == nil {
		t.Error("Load() of corrupt file should fail")
	}
}

func TestHistory_UpdateAndRecent(t *testing.T) {
	h := tickingHistory(t, 10)
	h.Add("a", "zai", "GLM-4-Plus", msgs("one"))
	h.Add("b", "zai", "GLM-4-Plus", msgs("two"))
	h.Add("c", "zai", "GLM-4-Plus", msgs("three"))

	if !h.Update("a", msgs("one", "reply")) {
		t.Fatal("Update(a) = false")
	}
	if h.Update("missing", nil) {
		t.Error("Update(missing) = true")
	}

	recent := h.Recent(2)
	if len(recent) != 2 || recent[0].ID != "a" || recent[1].ID != "c" {
		t.Errorf("Recent(2) = %v, want [a c]", ids(recent))
	}
	if len(h.Recent(0)) != 3 {
		t.Errorf("Recent(0) should return everything")
	}
}

func TestHistory_AddExistingUpdates(t *testing.T) {
	h := tickingHistory(t, 10)
	h.Add("a", "zai", "m1", msgs("one"))
	h.Add("a", "openai", "m2", msgs("one", "two"))

	if n := len(h.Recent(0)); n != 1 {
		t.Fatalf("len = %d, want 1", n)
	}
	c := h.Get("a")
	if c.Provider != "openai" || c.Model != "m2" || len(c.Messages) != 2 {
		t.Errorf("Get(a) = %+v", c)
	}
	if !c.UpdatedAt.After(c.CreatedAt) {
		t.Error("UpdatedAt should advance")
	}
}

func TestHistory_MaxTrimsOldest(t *testing.T) {
	h := tickingHistory(t, 2)
	h.Add("a", "zai", "m", msgs("1"))
	h.Add("b", "zai", "m", msgs("2"))
	h.Add("c", "zai", "m", msgs("3"))

	if h.Get("a") != nil {
		t.Error("oldest conversation should be dropped")
	}
	if h.Get("b") == nil || h.Get("c") == nil {
		t.Error("newest conversations should be kept")
	}
}

func TestHistory_GetReturnsCopy(t *testing.T) {
	h := tickingHistory(t, 5)
	h.Add("a", "zai", "m", msgs("original"))

	c := h.Get("a")
	c.Messages[0].Content = "changed"
	if h.Get("a").Messages[0].Content != "original" {
		t.Error("Get() should not expose internal state")
	}
}

func TestHistory_Clear(t *testing.T) {
	h := tickingHistory(t, 5)
	h.Add("a", "zai", "m", msgs("x"))
	h.Clear()
	if h.Last() != nil {
		t.Error("Clear() should drop everything")
	}
}

func TestConversation_Title(t *testing.T) {
	long := strings.Repeat("é", 80)
	tests := []struct {
		messages []provider.Message
		want     string
	}{
		{nil, "(empty)"},
		{[]provider.Message{{Role: provider.RoleSystem, Content: "sys"}, {Role: provider.RoleUser, Content: "question"}}, "question"},
		{[]provider.Message{{Role: provider.RoleUser, Content: long}}, strings.Repeat("é", 57) + "..."},
	}
	for _, tt := range tests {
		if got := (Conversation{Messages: tt.messages}).Title(); got != tt.want {
			t.Errorf("Title() = %q, want %q", got, tt.want)
		}
	}
}

func TestPath(t *testing.T) {
	cfg := config.Config{HistoryFile: "osram_history.json"}
	if got := Path(cfg, "/work/a"); filepath.Base(got) != "osram_history.json" || !filepath.IsAbs(got) {
		t.Errorf("Path() = %q", got)
	}

	cfg.HistoryFile = "/custom/h.json"
	if got := Path(cfg, "/work/a"); got != "/custom/h.json" {
		t.Errorf("Path() = %q, want absolute history_file", got)
	}

	cfg.HistoryPerDirectory = true
	a, b := Path(cfg, "/work/a"), Path(cfg, "/work/b")
	if a == b {
		t.Error("per-directory paths should differ")
	}
	if Path(cfg, "/work/a/") != a {
		t.Error("per-directory path should ignore trailing slash")
	}
	if filepath.Base(filepath.Dir(a)) != "history" {
		t.Errorf("per-directory path = %q", a)
	}
}

func ids(cs []Conversation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
