package display

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// Spinner wraps briandowns/spinner with a message suffix. It writes to
// Stderr so piped stdout stays clean; the library stays silent when the
// writer is not a terminal.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a stopped spinner showing msg
func NewSpinner(msg string) *Spinner {
	opt := spinner.WithWriter(Stderr)
	if f, ok := Stderr.(*os.File); ok {
		opt = spinner.WithWriterFile(f)
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, opt)
	s.Suffix = " " + msg
	return &Spinner{s: s}
}

// Start begins the animation
func (sp *Spinner) Start() {
	sp.s.Start()
}

// Stop ends the animation and clears the line
func (sp *Spinner) Stop() {
	sp.s.Stop()
}

// UpdateMessage changes the text shown next to the spinner
func (sp *Spinner) UpdateMessage(msg string) {
	sp.s.Lock()
	sp.s.Suffix = " " + msg
	sp.s.Unlock()
}
