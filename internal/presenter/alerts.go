package presenter

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

const defaultDismissAfter = 5 * time.Second

var severityIcons = map[entities.Severity]string{
	entities.SeverityInfo:    "ℹ",
	entities.SeveritySuccess: "✔",
	entities.SeverityDanger:  "✖",
}

// AlertPresenter shows transient notices that dismiss themselves after DismissAfter
type AlertPresenter struct {
	opts    Options
	printer printer

	// schedule runs f after d and returns a func that cancels it
	schedule func(d time.Duration, f func()) func() bool

	mu     sync.Mutex
	region []entities.Alert
	timers map[string]func() bool
	closed bool
}

var _ repositories.AlertPresenter = (*AlertPresenter)(nil)

// NewAlertPresenter creates a presenter. The alert region is created on first use.
func NewAlertPresenter(opts Options) *AlertPresenter {
	opts = opts.withDefaults()
	return &AlertPresenter{
		opts:    opts,
		printer: printer{out: opts.Out, color: opts.Color},
		schedule: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// Show displays a notice and schedules its dismissal
func (p *AlertPresenter) Show(message string, severity entities.Severity) string {
	alert := entities.Alert{
		ID:        uuid.New().String(),
		Message:   message,
		Severity:  severity,
		CreatedAt: p.opts.Now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.region == nil {
		p.region = make([]entities.Alert, 0, 4)
		p.timers = make(map[string]func() bool)
	}
	p.region = append(p.region, alert)

	style, ok := severityStyles[severity]
	if !ok {
		style = severityStyles[entities.SeverityInfo]
	}
	p.printer.println(p.printer.style(style, severityIcons[severity]+" "+message))

	if !p.closed {
		id := alert.ID
		p.timers[id] = p.schedule(p.opts.DismissAfter, func() { p.Dismiss(id) })
	}
	return alert.ID
}

// Dismiss removes a notice. Dismissing twice, or after the timer fired, is a no-op.
func (p *AlertPresenter) Dismiss(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, a := range p.region {
		if a.ID != id {
			continue
		}
		p.region = append(p.region[:i], p.region[i+1:]...)
		if stop, ok := p.timers[id]; ok {
			stop()
			delete(p.timers, id)
		}
		return true
	}
	return false
}

// Active lists the visible notices in the order they were shown
func (p *AlertPresenter) Active() []entities.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]entities.Alert, len(p.region))
	copy(out, p.region)
	return out
}

// Close cancels pending dismissals
func (p *AlertPresenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, stop := range p.timers {
		stop()
		delete(p.timers, id)
	}
	p.closed = true
}
