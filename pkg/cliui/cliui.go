// Package cliui provides reusable terminal UI helpers (spinners, step indicators,
// prompts, markdown rendering) for chatchain CLI commands.
package cliui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	StepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	DimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	ValueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("223"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Marks and prompts are rendered once per colour setting; SetColor
// re-renders them.
var (
	SuccessMark     string
	FailMark        string
	UserPrompt      string
	AssistantPrompt string
)

var colorEnabled atomic.Bool

func init() {
	colorEnabled.Store(true)
	renderMarks()
}

// spinnerFrames matches bubbletea's spinner.Dot pattern.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// SetColor switches styled output on or off. With colour off every style
// renders as plain text and markdown uses the no-colour glamour theme.
func SetColor(enabled bool) {
	colorEnabled.Store(enabled)

	profile := termenv.Ascii
	if enabled {
		profile = termenv.EnvColorProfile()
	}
	lipgloss.SetColorProfile(profile)

	renderMarks()
}

func renderMarks() {
	SuccessMark = successStyle.Render("✓")
	FailMark = failStyle.Render("✗")
	UserPrompt = userStyle.Render("you> ")
	AssistantPrompt = assistantStyle.Render("assistant> ")
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time. When w is not a terminal only the
// final line is written.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	stopped := make(chan struct{})
	var mu sync.Mutex

	if IsTerminal(w) {
		go func() {
			defer close(stopped)
			frame := 0
			ticker := time.NewTicker(80 * time.Millisecond)
			defer ticker.Stop()

			for {
				mu.Lock()
				fmt.Fprintf(w, "\r  %s %s",
					spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
					msg,
				)
				mu.Unlock()

				select {
				case <-done:
					return
				case <-ticker.C:
					frame++
				}
			}
		}()
	} else {
		close(stopped)
	}

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	<-stopped

	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// Fail writes err to w as a single ✗ line.
func Fail(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", FailMark, err)
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders markdown content for terminal display using glamour.
// On failure the content is returned unchanged along with the error.
func RenderMarkdown(content string) (string, error) {
	style := glamour.WithStandardStyle("notty")
	if colorEnabled.Load() {
		style = glamour.WithAutoStyle()
	}

	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}

// Prompter reads answers to interactive prompts. One Prompter should own
// its input for its lifetime since it buffers ahead.
type Prompter struct {
	in  io.Reader
	r   *bufio.Reader
	out io.Writer
}

// NewPrompter returns a Prompter reading from in and writing labels to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, r: bufio.NewReader(in), out: out}
}

// Line writes label and reads one line, without the trailing newline.
// io.EOF is returned only when no input at all was left.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)

	line, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Password prompts for a secret. On a terminal the input is not echoed;
// otherwise one line is read as-is.
func (p *Prompter) Password(label string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) || p.r.Buffered() > 0 {
		return p.Line(label)
	}

	fmt.Fprint(p.out, label)
	raw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}
