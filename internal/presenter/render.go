// Package presenter renders the transcript and transient alerts to a terminal.
package presenter

import (
	"fmt"
	"io"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/mattn/go-isatty"

	"github.com/maumcare/companion/domain/entities"
)

// Options configures terminal output
type Options struct {
	Out io.Writer
	// Color is auto, always or never
	Color string
	// Markdown renders assistant replies with glamour when Out is a terminal
	Markdown bool

	UserLabel      string
	AssistantLabel string
	LoadingText    string

	// DismissAfter is the alert lifetime, 5s when zero
	DismissAfter time.Duration

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Color == "" {
		o.Color = "auto"
	}
	if o.UserLabel == "" {
		o.UserLabel = "You"
	}
	if o.AssistantLabel == "" {
		o.AssistantLabel = "Companion"
	}
	if o.LoadingText == "" {
		o.LoadingText = "..."
	}
	if o.DismissAfter <= 0 {
		o.DismissAfter = defaultDismissAfter
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5A8DEE"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8E6CEF"))
	loadingStyle   = lipgloss.NewStyle().Italic(true).Faint(true)

	severityStyles = map[entities.Severity]lipgloss.Style{
		entities.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("#31B0D5")),
		entities.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("#28A745")),
		entities.SeverityDanger:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#DC3545")),
	}
)

// printer writes styled lines, downsampling colors to what the writer supports
type printer struct {
	out   io.Writer
	color string
}

func (p printer) style(s lipgloss.Style, text string) string {
	if p.color == "never" {
		return text
	}
	return s.Render(text)
}

func (p printer) println(line string) {
	if p.color == "always" {
		fmt.Fprintln(p.out, line)
		return
	}
	lipgloss.Fprintln(p.out, line)
}
