package audio

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

type fakeStream struct {
	chunks chan []byte
	closes atomic.Int32
}

func (s *fakeStream) Chunks() <-chan []byte { return s.chunks }

func (s *fakeStream) Close() error {
	if s.closes.Add(1) == 1 {
		close(s.chunks)
	}
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	payload [][]byte
	err     error
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (repositories.CaptureStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &fakeStream{chunks: make(chan []byte, len(d.payload)+1)}
	for _, p := range d.payload {
		s.chunks <- p
	}
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

func TestRecorderLifecycle(t *testing.T) {
	device := &fakeDevice{payload: [][]byte{[]byte("web"), []byte("m-"), []byte("data")}}
	rec := NewRecorder(device, nil)

	assert.Equal(t, entities.RecordingIdle, rec.State())
	assert.Equal(t, entities.Controls{RecordEnabled: true}, rec.Controls())

	_, err := rec.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)

	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, entities.RecordingRecording, rec.State())
	assert.Equal(t, entities.Controls{StopEnabled: true}, rec.Controls(), "play stays disabled before stop")

	assert.ErrorIs(t, rec.Start(context.Background()), ErrRecordingInProgress)

	artifact, err := rec.Stop()
	require.NoError(t, err)
	assert.Equal(t, entities.MIMETypeWebM, artifact.MIMEType)
	assert.Equal(t, "webm-data", string(artifact.Data))
	assert.Equal(t, 3, artifact.Chunks)
	assert.NotEmpty(t, artifact.ID)
	assert.Equal(t, entities.RecordingStopped, rec.State())
	assert.Equal(t, entities.Controls{RecordEnabled: true, PlayEnabled: true}, rec.Controls())

	got, ok := rec.Artifact()
	require.True(t, ok)
	assert.Same(t, artifact, got)

	require.Len(t, device.streams, 1)
	assert.Equal(t, int32(1), device.streams[0].closes.Load(), "device released exactly once")

	// a stopped recorder can record again and the old artifact is discarded
	require.NoError(t, rec.Start(context.Background()))
	_, ok = rec.Artifact()
	assert.False(t, ok)
	require.NoError(t, rec.Close())
	assert.Equal(t, entities.RecordingStopped, rec.State())
}

func TestRecorderPermissionError(t *testing.T) {
	rec := NewRecorder(&fakeDevice{err: errors.New("NotAllowedError")}, nil)

	err := rec.Start(context.Background())
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "NotAllowedError")
	assert.Equal(t, entities.RecordingIdle, rec.State(), "no state transition on denial")
	assert.False(t, rec.Controls().PlayEnabled)
}

func TestFileDevice(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 10000)
	path := filepath.Join(t.TempDir(), "sample.webm")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	stream, err := NewFileDevice(path).Open(context.Background())
	require.NoError(t, err)

	var got []byte
	for len(got) < len(payload) {
		got = append(got, <-stream.Chunks()...)
	}
	assert.Equal(t, payload, got)

	require.NoError(t, stream.Close())
	_, open := <-stream.Chunks()
	assert.False(t, open)
}

func TestFileDeviceMissing(t *testing.T) {
	_, err := NewFileDevice(filepath.Join(t.TempDir(), "absent.webm")).Open(context.Background())
	var perr *PermissionError
	assert.ErrorAs(t, err, &perr)
}

func TestCommandDevice(t *testing.T) {
	_, err := NewCommandDevice([]string{"companion-no-such-binary"}, nil).Open(context.Background())
	var perr *PermissionError
	require.ErrorAs(t, err, &perr)

	_, err = NewCommandDevice(nil, nil).Open(context.Background())
	assert.ErrorAs(t, err, &perr)

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	rec := NewRecorder(NewCommandDevice([]string{"sh", "-c", "printf hello"}, nil), nil)
	require.NoError(t, rec.Start(context.Background()))
	artifact, err := rec.Stop()
	require.NoError(t, err)
	// the process may be interrupted before it writes
	assert.Contains(t, []string{"", "hello"}, string(artifact.Data))
}

func newTestPlayer(t *testing.T, base string) (*CommandPlayer, *[]string) {
	t.Helper()
	var u *url.URL
	if base != "" {
		var err error
		u, err = url.Parse(base)
		require.NoError(t, err)
	}
	p, err := NewCommandPlayer(PlayerConfig{
		Command:  []string{"true"},
		BaseURL:  u,
		CacheDir: t.TempDir(),
	}, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	played := &[]string{}
	p.run = func(file string) error {
		mu.Lock()
		defer mu.Unlock()
		*played = append(*played, file)
		return nil
	}
	return p, played
}

func TestPlayerDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/voice/7.mp3" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	p, played := newTestPlayer(t, srv.URL)

	require.NoError(t, p.Play(context.Background(), "/media/voice/7.mp3"))
	require.NoError(t, p.Play(context.Background(), srv.URL+"/media/voice/7.mp3"))
	assert.Equal(t, int32(1), hits.Load())
	require.Len(t, *played, 2)
	assert.Equal(t, (*played)[0], (*played)[1])

	data, err := os.ReadFile((*played)[0])
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data))
	assert.Equal(t, ".mp3", filepath.Ext((*played)[0]))

	err = p.Play(context.Background(), "/media/voice/missing.mp3")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	assert.Error(t, p.Play(context.Background(), "  "))
}

func TestPlayerResolve(t *testing.T) {
	p, _ := newTestPlayer(t, "https://care.example.com/app/")

	u, err := p.Resolve("/media/voice/1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://care.example.com/media/voice/1.mp3", u.String())

	u, err = p.Resolve("http://cdn.example.com/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example.com/a.mp3", u.String())

	noBase, _ := newTestPlayer(t, "")
	_, err = noBase.Resolve("/media/voice/1.mp3")
	assert.Error(t, err)
}

func TestPlayerPlayArtifact(t *testing.T) {
	p, played := newTestPlayer(t, "")

	assert.Error(t, p.PlayArtifact(context.Background(), nil))
	assert.Error(t, p.PlayArtifact(context.Background(), &entities.AudioArtifact{ID: "empty"}))

	artifact := &entities.AudioArtifact{ID: "rec-1", MIMEType: entities.MIMETypeWebM, Data: []byte("webm")}
	require.NoError(t, p.PlayArtifact(context.Background(), artifact))
	require.Len(t, *played, 1)

	data, err := os.ReadFile((*played)[0])
	require.NoError(t, err)
	assert.Equal(t, "webm", string(data))
}

func TestNewCommandPlayerRequiresCommand(t *testing.T) {
	_, err := NewCommandPlayer(PlayerConfig{CacheDir: t.TempDir()}, nil)
	assert.Error(t, err)
}
