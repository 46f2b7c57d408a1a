package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/repositories"
)

const (
	defaultChunkSize = 4096
	stopGracePeriod  = 2 * time.Second
)

// CommandDevice captures audio by running an external encoder that writes
// audio/webm to stdout, e.g. ffmpeg reading the default PulseAudio source.
type CommandDevice struct {
	Command   []string
	ChunkSize int
	logger    *zap.Logger
}

var _ repositories.CaptureDevice = (*CommandDevice)(nil)

// NewCommandDevice creates a capture device for the given command line
func NewCommandDevice(command []string, logger *zap.Logger) *CommandDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandDevice{
		Command:   command,
		ChunkSize: defaultChunkSize,
		logger:    logger,
	}
}

// Open starts the capture process. A missing binary is reported as a PermissionError.
func (d *CommandDevice) Open(ctx context.Context) (repositories.CaptureStream, error) {
	if len(d.Command) == 0 {
		return nil, &PermissionError{Err: errors.New("no capture command configured")}
	}
	path, err := exec.LookPath(d.Command[0])
	if err != nil {
		return nil, &PermissionError{Device: d.Command[0], Err: err}
	}

	// the recording outlives the caller's context, it ends at Close
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, path, d.Command[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGracePeriod

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &PermissionError{Device: d.Command[0], Err: err}
	}

	d.logger.Debug("Capture process started",
		zap.String("command", strings.Join(d.Command, " ")),
		zap.Int("pid", cmd.Process.Pid))

	s := &commandStream{
		chunks: make(chan []byte, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	go func() {
		defer close(s.done)
		pump(stdout, chunkSize, s.chunks)
		close(s.chunks)
		if err := cmd.Wait(); err != nil && procCtx.Err() == nil {
			s.err = fmt.Errorf("capture process failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}()

	return s, nil
}

// pump forwards everything read from r as chunks until EOF
func pump(r io.Reader, chunkSize int, out chan<- []byte) {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			out <- chunk
		}
		if err != nil {
			return
		}
	}
}

type commandStream struct {
	chunks chan []byte
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func (s *commandStream) Chunks() <-chan []byte { return s.chunks }

// Close interrupts the encoder so it can finalize the container, then waits for it
func (s *commandStream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return s.err
}

// FileDevice replays an audio file as if it were captured live
type FileDevice struct {
	Path      string
	ChunkSize int
	// Interval paces chunks to simulate a live source
	Interval time.Duration
}

var _ repositories.CaptureDevice = (*FileDevice)(nil)

// NewFileDevice creates a device replaying path
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{Path: path, ChunkSize: defaultChunkSize}
}

// Open opens the file. A missing file is reported as a PermissionError.
func (d *FileDevice) Open(ctx context.Context) (repositories.CaptureStream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, &PermissionError{Device: d.Path, Err: err}
	}

	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	s := &fileStream{
		file:   f,
		chunks: make(chan []byte, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(chunkSize, d.Interval)
	return s, nil
}

type fileStream struct {
	file   *os.File
	chunks chan []byte
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *fileStream) run(chunkSize int, interval time.Duration) {
	defer close(s.done)
	defer close(s.chunks)

	buf := make([]byte, chunkSize)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		n, err := s.file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			// a live source keeps going until stopped
			<-s.stop
			return
		}

		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-s.stop:
				return
			}
		}
	}
}

func (s *fileStream) Chunks() <-chan []byte { return s.chunks }

func (s *fileStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return s.file.Close()
}
