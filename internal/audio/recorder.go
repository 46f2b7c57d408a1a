// Package audio captures microphone recordings and plays reply audio.
package audio

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

var (
	// ErrRecordingInProgress is returned when Start is called while recording
	ErrRecordingInProgress = errors.New("recording already in progress")
	// ErrNotRecording is returned when Stop is called without an active recording
	ErrNotRecording = errors.New("not recording")
)

// PermissionError reports a denied or missing capture device
type PermissionError struct {
	Device string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Device == "" {
		return "microphone unavailable: " + e.Err.Error()
	}
	return "microphone unavailable (" + e.Device + "): " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

// Recorder owns at most one recording at a time
type Recorder struct {
	device repositories.CaptureDevice
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     entities.RecordingState
	stream    repositories.CaptureStream
	collected chan [][]byte
	startedAt time.Time
	artifact  *entities.AudioArtifact
}

var _ repositories.Recorder = (*Recorder)(nil)

// NewRecorder creates an idle recorder over a capture device
func NewRecorder(device repositories.CaptureDevice, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		device: device,
		logger: logger.With(zap.String("component", "recorder")),
		now:    time.Now,
		state:  entities.RecordingIdle,
	}
}

// Start acquires the device and begins collecting chunks. The previous artifact is discarded.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == entities.RecordingRecording {
		return ErrRecordingInProgress
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		var perr *PermissionError
		if !errors.As(err, &perr) {
			err = &PermissionError{Err: err}
		}
		r.logger.Error("Failed to access microphone", zap.Error(err))
		return err
	}

	r.stream = stream
	r.artifact = nil
	r.startedAt = r.now()
	r.collected = make(chan [][]byte, 1)
	r.state = entities.RecordingRecording

	go collect(stream, r.collected)

	r.logger.Debug("Recording started")
	return nil
}

func collect(stream repositories.CaptureStream, out chan<- [][]byte) {
	var chunks [][]byte
	for chunk := range stream.Chunks() {
		if len(chunk) > 0 {
			chunks = append(chunks, chunk)
		}
	}
	out <- chunks
}

// Stop releases the device, waits for pending chunks and returns the artifact
func (r *Recorder) Stop() (*entities.AudioArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != entities.RecordingRecording {
		return nil, ErrNotRecording
	}

	if err := r.stream.Close(); err != nil {
		r.logger.Warn("Capture stream did not close cleanly", zap.Error(err))
	}
	chunks := <-r.collected
	r.stream = nil
	r.collected = nil

	var buf bytes.Buffer
	for _, chunk := range chunks {
		buf.Write(chunk)
	}

	r.artifact = &entities.AudioArtifact{
		ID:        uuid.New().String(),
		MIMEType:  entities.MIMETypeWebM,
		Data:      buf.Bytes(),
		Chunks:    len(chunks),
		StartedAt: r.startedAt,
		Duration:  r.now().Sub(r.startedAt),
	}
	r.state = entities.RecordingStopped

	r.logger.Debug("Recording stopped",
		zap.String("artifactID", r.artifact.ID),
		zap.Int("chunks", r.artifact.Chunks),
		zap.Int("bytes", r.artifact.Size()))
	return r.artifact, nil
}

// Artifact returns the last finished recording
func (r *Recorder) Artifact() (*entities.AudioArtifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact, r.artifact != nil
}

// State returns the recording state
func (r *Recorder) State() entities.RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Controls returns which of record, stop and play are available
func (r *Recorder) Controls() entities.Controls {
	r.mu.Lock()
	defer r.mu.Unlock()
	return entities.ControlsFor(r.state, r.artifact != nil)
}

// Close stops an active recording and discards it
func (r *Recorder) Close() error {
	if r.State() != entities.RecordingRecording {
		return nil
	}
	_, err := r.Stop()
	return err
}
