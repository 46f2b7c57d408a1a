package usecase

import (
	"strings"

	"github.com/maumcare/companion/domain/entities"
)

// Messages holds the user-visible strings of one locale
type Messages struct {
	ConnectionError         string
	SendFailed              string
	VoiceProcessing         string
	VoiceRequiresConnection string
	MicrophoneUnavailable   string
	EmailFailed             string
	EmailInFlight           string
	MoodRequired            string
	MoodRecorded            string
	MoodFailed              string
	NoSampleAudio           string

	MoodLabels map[entities.Mood]string
}

var catalog = map[string]Messages{
	"ko": {
		ConnectionError:         "연결 오류가 발생했습니다. 페이지를 새로고침해 주세요.",
		SendFailed:              "메시지 전송 중 오류가 발생했습니다.",
		VoiceProcessing:         "🎤 음성 메시지 전송 중...",
		VoiceRequiresConnection: "음성 메시지는 실시간 연결이 필요합니다.",
		MicrophoneUnavailable:   "마이크에 접근할 수 없습니다.",
		EmailFailed:             "이메일 전송 중 오류가 발생했습니다.",
		EmailInFlight:           "이메일을 전송하는 중입니다.",
		MoodRequired:            "감정 상태를 선택해 주세요.",
		MoodRecorded:            "오늘의 감정이 기록되었습니다.",
		MoodFailed:              "감정 기록 중 오류가 발생했습니다.",
		NoSampleAudio:           "샘플 음성이 없습니다.",
		MoodLabels: map[entities.Mood]string{
			entities.MoodVeryBad:  "매우 나쁨",
			entities.MoodBad:      "나쁨",
			entities.MoodNeutral:  "보통",
			entities.MoodGood:     "좋음",
			entities.MoodVeryGood: "매우 좋음",
		},
	},
	"en": {
		ConnectionError:         "Connection error. Please refresh the page.",
		SendFailed:              "An error occurred while sending the message.",
		VoiceProcessing:         "🎤 Sending voice message...",
		VoiceRequiresConnection: "Voice messages need a live connection.",
		MicrophoneUnavailable:   "The microphone is not available.",
		EmailFailed:             "An error occurred while sending the email.",
		EmailInFlight:           "The email is already being sent.",
		MoodRequired:            "Please choose a mood.",
		MoodRecorded:            "Today's mood has been recorded.",
		MoodFailed:              "An error occurred while recording the mood.",
		NoSampleAudio:           "No sample audio available.",
		MoodLabels: map[entities.Mood]string{
			entities.MoodVeryBad:  "Very bad",
			entities.MoodBad:      "Bad",
			entities.MoodNeutral:  "Neutral",
			entities.MoodGood:     "Good",
			entities.MoodVeryGood: "Very good",
		},
	},
}

// MessagesFor returns the catalog for a locale such as "ko" or "en-US", falling back to Korean
func MessagesFor(locale string) Messages {
	lang := strings.ToLower(locale)
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog["ko"]
}
