package devserver

import (
	"strings"
	"sync"
)

const (
	voicePath       = "/media/voice/"
	voiceSamplePath = "/media/voice_samples/"
)

// MediaStore holds synthesized voice files in memory
type MediaStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMediaStore creates an empty media store
func NewMediaStore() *MediaStore {
	return &MediaStore{files: make(map[string][]byte)}
}

// Put stores data under name and returns its URL path
func (m *MediaStore) Put(name string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return voicePath + name
}

// Get returns the file stored under name
func (m *MediaStore) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[name]
	return data, ok
}

// Delete removes the files behind voice URLs returned by Put and reports how many existed
func (m *MediaStore) Delete(urls ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for _, u := range urls {
		name, ok := strings.CutPrefix(u, voicePath)
		if !ok {
			continue
		}
		if _, exists := m.files[name]; exists {
			delete(m.files, name)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of stored files
func (m *MediaStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
