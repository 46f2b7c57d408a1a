package repositories

import "github.com/maumcare/companion/domain/entities"

// MessageLog is the visible transcript
type MessageLog interface {
	// Append adds an entry at the end of the transcript and returns its id
	Append(content string, author entities.Author) string
	// AppendLoading adds the transient placeholder shown while a reply is pending
	AppendLoading() string
	// Remove deletes an entry; only loading placeholders are ever removed
	Remove(id string) bool
	Entries() []entities.Entry
}

// AlertPresenter shows transient, auto-dismissing notices
type AlertPresenter interface {
	Show(message string, severity entities.Severity) string
	Dismiss(id string) bool
}
