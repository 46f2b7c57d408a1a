package entities

import "fmt"

// Mood is one of the fixed mood choices a user can record
type Mood string

const (
	MoodVeryBad  Mood = "very_bad"
	MoodBad      Mood = "bad"
	MoodNeutral  Mood = "neutral"
	MoodGood     Mood = "good"
	MoodVeryGood Mood = "very_good"
)

// Moods lists the choices from worst to best
var Moods = []Mood{MoodVeryBad, MoodBad, MoodNeutral, MoodGood, MoodVeryGood}

var moodValues = map[Mood]int{
	MoodVeryBad:  -2,
	MoodBad:      -1,
	MoodNeutral:  0,
	MoodGood:     1,
	MoodVeryGood: 2,
}

// ParseMood validates a mood string
func ParseMood(s string) (Mood, error) {
	m := Mood(s)
	if _, ok := moodValues[m]; !ok {
		return "", fmt.Errorf("unknown mood %q", s)
	}
	return m, nil
}

// Value maps the mood onto the -2..2 chart scale
func (m Mood) Value() int {
	return moodValues[m]
}

// MoodForValue returns the mood for a chart value, rounding to the nearest choice
func MoodForValue(v float64) Mood {
	switch {
	case v <= -1.5:
		return MoodVeryBad
	case v <= -0.5:
		return MoodBad
	case v < 0.5:
		return MoodNeutral
	case v < 1.5:
		return MoodGood
	default:
		return MoodVeryGood
	}
}
