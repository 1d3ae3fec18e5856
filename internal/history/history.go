// Package history persists interactive conversations to a JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/cespare/xxhash/v2"

	"github.com/quocvuong92/osram-cli/internal/config"
	"github.com/quocvuong92/osram-cli/internal/constants"
	"github.com/quocvuong92/osram-cli/internal/provider"
)

// Conversation is one saved chat session
type Conversation struct {
	ID        string             `json:"id"`
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Directory string             `json:"directory,omitempty"`
	Messages  []provider.Message `json:"messages"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Title is the first user message, shortened for listings
func (c Conversation) Title() string {
	for _, m := range c.Messages {
		if m.Role != provider.RoleUser {
			continue
		}
		runes := []rune(m.Content)
		if len(runes) > 60 {
			return string(runes[:57]) + "..."
		}
		return m.Content
	}
	return "(empty)"
}

// Manager is the in-memory view of a history file
type Manager interface {
	Load() error
	Save() error
	Add(id, providerID, model string, messages []provider.Message)
	Update(id string, messages []provider.Message) bool
	Get(id string) *Conversation
	Last() *Conversation
	Recent(n int) []Conversation
	Clear()
}

var _ Manager = (*History)(nil)

// History keeps at most max conversations, oldest dropped first
type History struct {
	mu            sync.Mutex
	path          string
	max           int
	now           func() time.Time
	conversations []Conversation
}

type historyFile struct {
	Conversations []Conversation `json:"conversations"`
}

// New returns an empty History backed by path
func New(path string, max int) *History {
	if max <= 0 {
		max = constants.DefaultMaxHistory
	}
	return &History{path: path, max: max, now: time.Now}
}

// Path resolves where history is stored. A relative history_file lives in
// the osram data directory; with history_per_directory each working
// directory gets its own file named by a hash of its path.
func Path(cfg config.Config, cwd string) string {
	base := filepath.Join(xdg.DataHome, constants.AppName)
	if cfg.HistoryPerDirectory && cwd != "" {
		sum := strconv.FormatUint(xxhash.Sum64String(filepath.Clean(cwd)), 16)
		return filepath.Join(base, "history", sum+".json")
	}
	if filepath.IsAbs(cfg.HistoryFile) {
		return cfg.HistoryFile
	}
	return filepath.Join(base, cfg.HistoryFile)
}

// File returns the backing file path
func (h *History) File() string {
	return h.path
}

// Load replaces the in-memory history with the file contents. A missing
// file is an empty history.
func (h *History) Load() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path)
	if errors.Is(err, os.ErrNotExist) {
		h.conversations = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse history %s: %w", h.path, err)
	}
	h.conversations = f.Conversations
	return nil
}

// Save writes the history atomically with owner-only permissions
func (h *History) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.MarshalIndent(historyFile{Conversations: h.conversations}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o700); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(h.path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Add appends a conversation, or updates it if id is already present
func (h *History) Add(id, providerID, model string, messages []provider.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for i := range h.conversations {
		if h.conversations[i].ID == id {
			h.conversations[i].Provider = providerID
			h.conversations[i].Model = model
			h.conversations[i].Messages = copyMessages(messages)
			h.conversations[i].UpdatedAt = now
			return
		}
	}

	cwd, _ := os.Getwd()
	h.conversations = append(h.conversations, Conversation{
		ID:        id,
		Provider:  providerID,
		Model:     model,
		Directory: cwd,
		Messages:  copyMessages(messages),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if over := len(h.conversations) - h.max; over > 0 {
		h.conversations = append([]Conversation(nil), h.conversations[over:]...)
	}
}

// Update replaces the messages of an existing conversation
func (h *History) Update(id string, messages []provider.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.conversations {
		if h.conversations[i].ID == id {
			h.conversations[i].Messages = copyMessages(messages)
			h.conversations[i].UpdatedAt = h.now()
			return true
		}
	}
	return false
}

// Get returns a copy of the conversation with id, or nil
func (h *History) Get(id string) *Conversation {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.conversations {
		if c.ID == id {
			c.Messages = copyMessages(c.Messages)
			return &c
		}
	}
	return nil
}

// Last returns the most recently updated conversation, or nil
func (h *History) Last() *Conversation {
	recent := h.Recent(1)
	if len(recent) == 0 {
		return nil
	}
	return &recent[0]
}

// Recent returns up to n conversations, most recently updated first
func (h *History) Recent(n int) []Conversation {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Conversation, len(h.conversations))
	copy(out, h.conversations)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Clear drops every conversation; call Save to persist
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conversations = nil
}

func copyMessages(messages []provider.Message) []provider.Message {
	return append([]provider.Message(nil), messages...)
}
