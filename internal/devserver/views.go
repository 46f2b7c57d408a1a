package devserver

import (
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maumcare/companion/domain/entities"
)

//go:embed templates/*.html
var templateFS embed.FS

// TemplateRenderer renders the embedded pages for echo
type TemplateRenderer struct {
	templates *template.Template
}

// NewTemplateRenderer parses the embedded templates
func NewTemplateRenderer() (*TemplateRenderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{templates: t}, nil
}

// Render implements echo.Renderer
func (r *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

var moodLabels = map[entities.Mood]string{
	entities.MoodVeryBad:  "매우 나쁨",
	entities.MoodBad:      "나쁨",
	entities.MoodNeutral:  "보통",
	entities.MoodGood:     "좋음",
	entities.MoodVeryGood: "매우 좋음",
}

type voiceView struct {
	entities.VoiceProfile
	Selected bool
}

type messageView struct {
	Author  entities.Author
	Content string
	Time    string
}

type conversationView struct {
	Title          string
	CSRFToken      string
	ConversationID string
	Voices         []voiceView
	Messages       []messageView
}

type moodView struct {
	Value    entities.Mood
	Label    string
	Selected bool
}

type dashboardView struct {
	Title           string
	CSRFToken       string
	Moods           []moodView
	SelectedMood    string
	Notes           string
	Error           string
	MoodLabels      string
	MoodValues      string
	SentimentLabels string
	SentimentValues string
}

type voiceSettingsView struct {
	Title          string
	CSRFToken      string
	PreferredVoice string
	Voices         []voiceView
}

func voiceViews(profiles []entities.VoiceProfile, selected string) []voiceView {
	out := make([]voiceView, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, voiceView{VoiceProfile: p, Selected: p.VoiceID == selected})
	}
	return out
}

func newConversationView(csrf string, conv Conversation, profiles []entities.VoiceProfile, preferred string) conversationView {
	view := conversationView{
		Title:          "상담",
		CSRFToken:      csrf,
		ConversationID: conv.ID,
		Voices:         voiceViews(profiles, preferred),
	}
	for _, m := range conv.Messages {
		view.Messages = append(view.Messages, messageView{
			Author:  m.MessageType,
			Content: m.Content,
			Time:    displayTime(m.CreatedAt),
		})
	}
	return view
}

func newDashboardView(csrf string, moods []MoodEntry, sentiments []entities.MessageRecord) dashboardView {
	view := dashboardView{Title: "대시보드", CSRFToken: csrf}
	for _, m := range entities.Moods {
		view.Moods = append(view.Moods, moodView{Value: m, Label: moodLabels[m]})
	}

	dates := make([]string, 0, len(moods))
	values := make([]int, 0, len(moods))
	for _, m := range moods {
		dates = append(dates, m.RecordedAt.Format("2006-01-02"))
		values = append(values, m.Mood.Value())
	}
	view.MoodLabels = mustJSON(dates)
	view.MoodValues = mustJSON(values)

	sentimentLabels := make([]string, 0, len(sentiments))
	sentimentValues := make([]float64, 0, len(sentiments))
	for _, m := range sentiments {
		sentimentLabels = append(sentimentLabels, displayDate(m.CreatedAt))
		sentimentValues = append(sentimentValues, *m.SentimentScore)
	}
	view.SentimentLabels = mustJSON(sentimentLabels)
	view.SentimentValues = mustJSON(sentimentValues)
	return view
}

// withForm marks the submitted choice on a re-rendered mood form
func (v dashboardView) withForm(mood, notes, formError string) dashboardView {
	v.SelectedMood = mood
	v.Notes = notes
	v.Error = formError
	for i := range v.Moods {
		v.Moods[i].Selected = string(v.Moods[i].Value) == mood
	}
	return v
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func displayTime(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format("15:04:05")
}

func displayDate(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format("01-02 15:04")
}
