package presenter

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

const timestampLayout = "15:04:05"

// MessageLog is the append-only transcript. Entries are never reordered; only
// loading placeholders are removed.
type MessageLog struct {
	opts    Options
	printer printer
	md      *glamour.TermRenderer

	mu      sync.Mutex
	entries []entities.Entry
}

var _ repositories.MessageLog = (*MessageLog)(nil)

// NewMessageLog creates an empty transcript
func NewMessageLog(opts Options) *MessageLog {
	opts = opts.withDefaults()
	l := &MessageLog{
		opts:    opts,
		printer: printer{out: opts.Out, color: opts.Color},
	}

	if opts.Markdown && IsTerminal(opts.Out) {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(100),
		)
		if err == nil {
			l.md = md
		}
	}
	return l
}

// Append adds an entry at the end of the transcript
func (l *MessageLog) Append(content string, author entities.Author) string {
	return l.add(entities.Entry{Content: content, Author: author})
}

// AppendLoading adds the placeholder shown while a reply is pending
func (l *MessageLog) AppendLoading() string {
	return l.add(entities.Entry{
		Content: l.opts.LoadingText,
		Author:  entities.AuthorAssistant,
		Loading: true,
	})
}

func (l *MessageLog) add(entry entities.Entry) string {
	entry.ID = uuid.New().String()
	entry.Timestamp = l.opts.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	l.printer.println(l.format(entry))
	return entry.ID
}

// Remove deletes a loading placeholder. Regular entries are kept.
func (l *MessageLog) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.ID != id {
			continue
		}
		if !e.Loading {
			return false
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		return true
	}
	return false
}

// Entries returns a snapshot in arrival order
func (l *MessageLog) Entries() []entities.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]entities.Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// LastAssistant returns the most recent assistant reply
func (l *MessageLog) LastAssistant() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Author == entities.AuthorAssistant && !e.Loading {
			return e.Content, true
		}
	}
	return "", false
}

func (l *MessageLog) format(e entities.Entry) string {
	ts := l.printer.style(timestampStyle, "["+e.Timestamp.Format(timestampLayout)+"]")

	if e.Loading {
		return ts + " " + l.printer.style(loadingStyle, e.Content)
	}

	if e.Author == entities.AuthorUser {
		return ts + " " + l.printer.style(userStyle, l.opts.UserLabel+":") + " " + e.Content
	}

	content := e.Content
	if l.md != nil {
		if rendered, err := l.md.Render(content); err == nil {
			content = "\n" + strings.TrimRight(rendered, "\n")
		}
	}
	return ts + " " + l.printer.style(assistantStyle, l.opts.AssistantLabel+":") + " " + content
}
