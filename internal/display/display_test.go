package display

import (
	"bytes"
	"strings"
	"testing"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	t.Cleanup(restore)
	return &out, &errOut
}

func TestShowError_WritesToStderr(t *testing.T) {
	out, errOut := capture(t)

	ShowError("store open: disk full")

	if out.Len() != 0 {
		t.Errorf("stdout = %q, want empty", out.String())
	}
	if !strings.Contains(errOut.String(), "Error: ") || !strings.Contains(errOut.String(), "store open: disk full") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestShowModels_MarksCurrent(t *testing.T) {
	out, _ := capture(t)

	ShowModels([]string{"gpt-4o", "gpt-4-turbo"}, "gpt-4-turbo")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), out.String())
	}
	if strings.Contains(lines[1], "(current)") {
		t.Errorf("gpt-4o marked current: %q", lines[1])
	}
	if !strings.Contains(lines[2], "gpt-4-turbo") || !strings.Contains(lines[2], "(current)") {
		t.Errorf("current line = %q", lines[2])
	}
}

func TestShowCommandOutput_AddsNewline(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ok", "ok\n"},
		{"ok\n", "ok\n"},
	}

	for _, tt := range tests {
		out, _ := capture(t)
		ShowCommandOutput(tt.in)
		if out.String() != tt.want {
			t.Errorf("ShowCommandOutput(%q) wrote %q, want %q", tt.in, out.String(), tt.want)
		}
	}
}

func TestShowDiff(t *testing.T) {
	out, _ := capture(t)
	ShowDiff("")
	if !strings.Contains(out.String(), "identical") {
		t.Errorf("empty diff output = %q", out.String())
	}

	out, _ = capture(t)
	ShowDiff("--- a\n+++ b\n@@ -1 +1 @@\n-old\n+new\n")
	for _, want := range []string{"--- a", "+++ b", "-old", "+new"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("diff output missing %q: %q", want, out.String())
		}
	}
}

func TestRenderTable(t *testing.T) {
	got := RenderTable([]string{"ID", "Operation"}, [][]string{{"1", "fs.write"}, {"2", "git"}})
	for _, want := range []string{"ID", "Operation", "fs.write", "git"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}

	for _, tt := range tests {
		capture(t)
		restore := SetInput(strings.NewReader(tt.input))
		got := Confirm("Delete?")
		restore()
		if got != tt.want {
			t.Errorf("Confirm with input %q = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRenderMarkdown_WithoutRenderer(t *testing.T) {
	rendererMu.Lock()
	prev := renderer
	renderer = nil
	rendererMu.Unlock()
	t.Cleanup(func() {
		rendererMu.Lock()
		renderer = prev
		rendererMu.Unlock()
	})

	if got := RenderMarkdown("# Title"); got != "# Title" {
		t.Errorf("RenderMarkdown() = %q, want input unchanged", got)
	}
}

func TestInitRenderer(t *testing.T) {
	if err := InitRenderer("notty"); err != nil {
		t.Fatalf("InitRenderer(notty) error = %v", err)
	}
	got := RenderMarkdown("# Title\n\nSome **bold** text.")
	if !strings.Contains(got, "Title") || !strings.Contains(got, "bold") {
		t.Errorf("rendered = %q", got)
	}
	if strings.Contains(got, "**bold**") {
		t.Errorf("markdown emphasis was not rendered: %q", got)
	}
}

func TestNewSpinner_UpdateMessage(t *testing.T) {
	capture(t)
	sp := NewSpinner("Thinking...")
	sp.UpdateMessage("Receiving...")
	if sp.s.Suffix != " Receiving..." {
		t.Errorf("Suffix = %q", sp.s.Suffix)
	}
	sp.Start()
	sp.Stop()
}
