package display

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the column width for rendered markdown
const DefaultWordWrap = 100

var (
	renderer   *glamour.TermRenderer
	rendererMu sync.Mutex
)

// InitRenderer prepares the markdown renderer for a theme ("dark", "light",
// "notty", "auto", ...). An empty theme picks the style from the terminal.
func InitRenderer(theme string) error {
	style := glamour.WithAutoStyle()
	switch t := strings.ToLower(strings.TrimSpace(theme)); t {
	case "", "auto", "system":
	default:
		style = glamour.WithStandardStyle(t)
	}

	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(DefaultWordWrap))
	if err != nil {
		return fmt.Errorf("failed to initialize markdown renderer: %w", err)
	}

	rendererMu.Lock()
	renderer = r
	rendererMu.Unlock()
	return nil
}

// RenderMarkdown renders content with the current renderer. Without one
// (InitRenderer not called or failed) the content is returned unchanged.
func RenderMarkdown(content string) string {
	rendererMu.Lock()
	r := renderer
	rendererMu.Unlock()

	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// ShowContentRendered prints markdown content through the renderer
func ShowContentRendered(content string) {
	fmt.Fprint(Stdout, RenderMarkdown(content))
	if !strings.HasSuffix(content, "\n") {
		fmt.Fprintln(Stdout)
	}
}
