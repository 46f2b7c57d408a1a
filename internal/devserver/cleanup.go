package devserver

import (
	"time"

	"go.uber.org/zap"
)

// SessionCleanupService expires idle conversations in the background
type SessionCleanupService struct {
	store    *Store
	media    *MediaStore
	maxIdle  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopped  chan struct{}
}

// NewSessionCleanupService creates a cleanup service that drops conversations idle for maxIdle
// together with their voice files
func NewSessionCleanupService(store *Store, media *MediaStore, maxIdle, interval time.Duration, logger *zap.Logger) *SessionCleanupService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &SessionCleanupService{
		store:    store,
		media:    media,
		maxIdle:  maxIdle,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("maxIdle", s.maxIdle),
		zap.Duration("interval", s.interval))
}

// Stop stops the cleanup service and waits for the loop to exit
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	<-s.stopped
	s.logger.Info("Session cleanup service stopped")
}

func (s *SessionCleanupService) cleanupLoop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *SessionCleanupService) runCleanup() {
	removed, voiceFiles := s.store.ExpireIdle(s.maxIdle)
	if removed == 0 {
		return
	}
	deleted := 0
	if s.media != nil {
		deleted = s.media.Delete(voiceFiles...)
	}
	s.logger.Info("Expired idle conversations",
		zap.Int("removed", removed),
		zap.Int("voiceFiles", deleted))
}
