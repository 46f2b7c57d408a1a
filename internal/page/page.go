// Package page reads the element contract of the server-rendered pages: the
// conversation id, voice selector, CSRF token, mood options, voice cards,
// chart canvases and the existing chat history.
package page

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/maumcare/companion/domain/entities"
)

// Chart canvas ids
const (
	MoodChartID      = "moodChart"
	SentimentChartID = "sentimentChart"
)

// Option is an <option> of a select element
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// VoiceCard is a .voice-profile-card
type VoiceCard struct {
	VoiceID     string
	SampleAudio string
	Name        string
	Selected    bool
}

// ChartData is the dataset embedded in a chart canvas
type ChartData struct {
	ID     string
	Labels []string
	Values []float64
}

// HistoryMessage is a message already rendered in .chat-messages
type HistoryMessage struct {
	Author  entities.Author
	Content string
	Time    string
}

// Page is everything the client needs from a rendered page
type Page struct {
	ConversationID string
	CSRFToken      string
	VoiceOptions   []Option

	MoodOptions  []entities.Mood
	MoodInput    string
	HasMoodInput bool

	PreferredVoice string
	VoiceCards     []VoiceCard

	Charts   map[string]ChartData
	Messages []HistoryMessage

	HasMessageForm  bool
	HasRecorder     bool
	HasComfortEmail bool

	// Warnings lists elements that were present but unusable
	Warnings []string
}

// Parse reads an HTML document
func Parse(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	p := &Page{Charts: make(map[string]ChartData)}
	p.walk(doc)
	return p, nil
}

// SelectedVoice returns the value a browser would report for voiceSelect
func (p *Page) SelectedVoice() string {
	for _, o := range p.VoiceOptions {
		if o.Selected && o.Value != "" {
			return o.Value
		}
	}
	if len(p.VoiceOptions) > 0 && p.VoiceOptions[0].Value != "" {
		return p.VoiceOptions[0].Value
	}
	return entities.DefaultVoiceID
}

// Chart returns the dataset of a canvas by id
func (p *Page) Chart(id string) (ChartData, bool) {
	c, ok := p.Charts[id]
	return c, ok
}

func (p *Page) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		p.visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c)
	}
}

func (p *Page) visit(n *html.Node) {
	id := attr(n, "id")

	switch id {
	case "conversation-id":
		p.ConversationID = strings.TrimSpace(attr(n, "value"))
	case "voiceSelect":
		p.VoiceOptions = options(n)
	case "moodInput":
		p.HasMoodInput = true
		p.MoodInput = attr(n, "value")
	case "preferredVoice":
		p.PreferredVoice = attr(n, "value")
	case "messageForm":
		p.HasMessageForm = true
	case "recordButton":
		p.HasRecorder = true
	case "sendComfortEmail":
		p.HasComfortEmail = true
	}

	if n.DataAtom == atom.Canvas && id != "" {
		if chart, err := chartData(n, id); err != nil {
			p.Warnings = append(p.Warnings, err.Error())
		} else if chart != nil {
			p.Charts[id] = *chart
		}
	}

	if n.DataAtom == atom.Input && attr(n, "name") == "csrfmiddlewaretoken" && p.CSRFToken == "" {
		p.CSRFToken = attr(n, "value")
	}

	if hasClass(n, "mood-option") {
		if mood, err := entities.ParseMood(attr(n, "data-mood")); err == nil {
			p.MoodOptions = append(p.MoodOptions, mood)
		} else {
			p.Warnings = append(p.Warnings, err.Error())
		}
	}

	if hasClass(n, "voice-profile-card") {
		p.VoiceCards = append(p.VoiceCards, VoiceCard{
			VoiceID:     attr(n, "data-voice-id"),
			SampleAudio: attr(n, "data-sample-audio"),
			Name:        strings.TrimSpace(firstText(n, "card-title")),
			Selected:    hasClass(n, "selected"),
		})
	}

	if hasClass(n, "message") && isUnder(n, "chat-messages") {
		if msg, ok := historyMessage(n); ok {
			p.Messages = append(p.Messages, msg)
		}
	}
}

func options(sel *html.Node) []Option {
	var out []Option
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Option {
			label := strings.TrimSpace(text(n))
			value, ok := lookup(n, "value")
			if !ok {
				value = label
			}
			_, selected := lookup(n, "selected")
			out = append(out, Option{Value: value, Label: label, Selected: selected})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)
	return out
}

func chartData(n *html.Node, id string) (*ChartData, error) {
	rawLabels, hasLabels := lookup(n, "data-labels")
	rawValues, hasValues := lookup(n, "data-values")
	if !hasLabels && !hasValues {
		return nil, nil
	}

	chart := &ChartData{ID: id}
	if rawLabels != "" {
		if err := json.Unmarshal([]byte(rawLabels), &chart.Labels); err != nil {
			return nil, fmt.Errorf("chart %s: invalid data-labels: %w", id, err)
		}
	}
	if rawValues != "" {
		var values []*float64
		if err := json.Unmarshal([]byte(rawValues), &values); err != nil {
			return nil, fmt.Errorf("chart %s: invalid data-values: %w", id, err)
		}
		chart.Values = make([]float64, len(values))
		for i, v := range values {
			if v != nil {
				chart.Values[i] = *v
			}
		}
	}
	return chart, nil
}

func historyMessage(n *html.Node) (HistoryMessage, bool) {
	var author entities.Author
	switch {
	case hasClass(n, "message-user"):
		author = entities.AuthorUser
	case hasClass(n, "message-assistant"):
		author = entities.AuthorAssistant
	default:
		return HistoryMessage{}, false
	}

	content := strings.TrimSpace(firstText(n, "message-content"))
	if content == "" {
		return HistoryMessage{}, false
	}
	return HistoryMessage{
		Author:  author,
		Content: content,
		Time:    strings.TrimSpace(firstText(n, "message-time")),
	}, true
}

func lookup(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	v, _ := lookup(n, key)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func isUnder(n *html.Node, class string) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && hasClass(p, class) {
			return true
		}
	}
	return false
}

// firstText returns the text of the first descendant carrying class
func firstText(n *html.Node, class string) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if hasClass(c, class) {
			return text(c)
		}
		if t := firstText(c, class); t != "" {
			return t
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
