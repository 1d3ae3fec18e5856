package provider

import (
	"encoding/json"
	"unicode/utf8"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the vendor-neutral request. An empty Model uses the model
// from the provider configuration.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// Usage reports token counts. Estimated is set when the provider did not
// report usage and the counts were derived from text length.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// ChatResponse is the normalized reply. For streams each Recv returns a
// ChatResponse holding only the text delta.
type ChatResponse struct {
	Text  string          `json:"text"`
	Model string          `json:"model,omitempty"`
	Usage *Usage          `json:"usage,omitempty"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// EstimateUsage builds an estimated Usage from the prompt and completion text.
func EstimateUsage(messages []Message, completion string) *Usage {
	prompt := 0
	for _, m := range messages {
		prompt += EstimateTokens(m.Content)
	}
	out := EstimateTokens(completion)
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
		Estimated:        true,
	}
}

// splitSystem separates system messages from the conversation turns.
// Vendors that take the system prompt as a separate field use this.
func splitSystem(messages []Message) (system string, turns []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

// mergeConsecutive joins adjacent turns with the same role; Anthropic and
// Gemini reject two user turns in a row.
func mergeConsecutive(turns []Message) []Message {
	out := make([]Message, 0, len(turns))
	for _, m := range turns {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
