package usecase

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

// ErrNoMoodSelected is returned when the mood form is submitted without a choice
var ErrNoMoodSelected = errors.New("no mood selected")

// MoodOption is one button of the mood picker
type MoodOption struct {
	Mood   entities.Mood
	Label  string
	Value  int
	Active bool
}

// MoodSelection is the mood picker of the dashboard. At most one option is active and
// its value is mirrored into the hidden form field.
type MoodSelection struct {
	recorder repositories.MoodRecorder
	alerts   repositories.AlertPresenter
	messages Messages
	logger   *zap.Logger

	mu       sync.Mutex
	selected entities.Mood
}

// NewMoodSelection creates a picker with nothing selected
func NewMoodSelection(recorder repositories.MoodRecorder, alerts repositories.AlertPresenter, messages Messages, logger *zap.Logger) *MoodSelection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if messages.MoodLabels == nil {
		messages = MessagesFor("")
	}
	return &MoodSelection{
		recorder: recorder,
		alerts:   alerts,
		messages: messages,
		logger:   logger,
	}
}

// Select activates one option and deactivates the others
func (m *MoodSelection) Select(mood entities.Mood) error {
	mood, err := entities.ParseMood(string(mood))
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.selected = mood
	m.mu.Unlock()
	return nil
}

// Value is the hidden form value, empty until a mood is selected
func (m *MoodSelection) Value() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.selected)
}

// Options lists the picker buttons from worst to best
func (m *MoodSelection) Options() []MoodOption {
	m.mu.Lock()
	selected := m.selected
	m.mu.Unlock()

	options := make([]MoodOption, 0, len(entities.Moods))
	for _, mood := range entities.Moods {
		options = append(options, MoodOption{
			Mood:   mood,
			Label:  m.messages.MoodLabels[mood],
			Value:  mood.Value(),
			Active: mood == selected,
		})
	}
	return options
}

// Submit records the selected mood with optional notes
func (m *MoodSelection) Submit(ctx context.Context, notes string) error {
	value := m.Value()
	if value == "" {
		m.alerts.Show(m.messages.MoodRequired, entities.SeverityDanger)
		return ErrNoMoodSelected
	}

	if err := m.recorder.RecordMood(ctx, entities.Mood(value), notes); err != nil {
		m.logger.Error("Error recording mood", zap.String("mood", value), zap.Error(err))
		m.alerts.Show(m.messages.MoodFailed, entities.SeverityDanger)
		return err
	}

	m.logger.Info("Mood recorded", zap.String("mood", value))
	m.alerts.Show(m.messages.MoodRecorded, entities.SeveritySuccess)
	return nil
}
