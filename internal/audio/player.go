package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

// PlayerConfig configures a CommandPlayer
type PlayerConfig struct {
	// Command is the player command line; the file path is appended
	Command []string
	// BaseURL resolves relative voice URLs such as /media/voice/1.mp3
	BaseURL  *url.URL
	CacheDir string
	Client   *http.Client
}

// CommandPlayer downloads reply audio into a cache and plays it with an external command.
// Playbacks are not queued and may overlap.
type CommandPlayer struct {
	cfg    PlayerConfig
	client *http.Client
	group  singleflight.Group
	logger *zap.Logger

	// run starts playback of a local file without waiting for it to finish
	run func(file string) error
}

var _ repositories.AudioPlayer = (*CommandPlayer)(nil)

// NewCommandPlayer creates a player
func NewCommandPlayer(cfg PlayerConfig, logger *zap.Logger) (*CommandPlayer, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("player command is required")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(os.TempDir(), "companion-voice")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create voice cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	p := &CommandPlayer{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "player")),
	}
	p.run = p.execute
	return p, nil
}

// Play fetches source (URL, relative URL or local path) and starts playback
func (p *CommandPlayer) Play(ctx context.Context, source string) error {
	if strings.TrimSpace(source) == "" {
		return errors.New("empty audio source")
	}

	file, err := p.fetch(ctx, source)
	if err != nil {
		return err
	}
	return p.run(file)
}

// PlayArtifact plays a local recording
func (p *CommandPlayer) PlayArtifact(ctx context.Context, artifact *entities.AudioArtifact) error {
	if artifact == nil || artifact.Size() == 0 {
		return errors.New("no recording to play")
	}

	file := filepath.Join(p.cfg.CacheDir, "recording-"+artifact.ID+".webm")
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(file, artifact.Data, 0o600); err != nil {
			return fmt.Errorf("failed to write recording: %w", err)
		}
	}
	return p.run(file)
}

// Resolve turns a voice URL into an absolute URL
func (p *CommandPlayer) Resolve(source string) (*url.URL, error) {
	ref, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid audio URL %q: %w", source, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if p.cfg.BaseURL == nil {
		return nil, fmt.Errorf("relative audio URL %q without base URL", source)
	}
	return p.cfg.BaseURL.ResolveReference(ref), nil
}

func (p *CommandPlayer) fetch(ctx context.Context, source string) (string, error) {
	if !strings.Contains(source, "://") && !strings.HasPrefix(source, "/") {
		if _, err := os.Stat(source); err == nil {
			return source, nil
		}
	}

	u, err := p.Resolve(source)
	if err != nil {
		return "", err
	}
	if u.Scheme == "file" {
		return u.Path, nil
	}

	sum := sha256.Sum256([]byte(u.String()))
	file := filepath.Join(p.cfg.CacheDir, hex.EncodeToString(sum[:12])+path.Ext(u.Path))
	if _, err := os.Stat(file); err == nil {
		return file, nil
	}

	_, err, shared := p.group.Do(file, func() (interface{}, error) {
		return nil, p.download(ctx, u.String(), file)
	})
	if err != nil {
		return "", err
	}
	if shared {
		p.logger.Debug("Shared voice download", zap.String("url", u.String()))
	}
	return file, nil
}

func (p *CommandPlayer) download(ctx context.Context, rawURL, file string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download audio %s: status %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(p.cfg.CacheDir, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to save audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), file)
}

func (p *CommandPlayer) execute(file string) error {
	args := append(append([]string{}, p.cfg.Command[1:]...), file)
	cmd := exec.Command(p.cfg.Command[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	p.logger.Debug("Playback started", zap.String("file", file), zap.Int("pid", cmd.Process.Pid))
	go func() {
		if err := cmd.Wait(); err != nil {
			p.logger.Warn("Playback failed", zap.String("file", file), zap.Error(err))
		}
	}()
	return nil
}
