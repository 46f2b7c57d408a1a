package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

// ErrUnknownVoice is returned when selecting a voice the catalog does not list
var ErrUnknownVoice = errors.New("unknown voice")

// VoiceSettings lists the voice profiles, picks the preferred one and plays samples
type VoiceSettings struct {
	catalog  repositories.VoiceCatalog
	player   repositories.AudioPlayer
	alerts   repositories.AlertPresenter
	messages Messages
	logger   *zap.Logger

	profiles []entities.VoiceProfile
}

// NewVoiceSettings creates the voice settings action; player may be nil
func NewVoiceSettings(catalog repositories.VoiceCatalog, player repositories.AudioPlayer, alerts repositories.AlertPresenter, messages Messages, logger *zap.Logger) *VoiceSettings {
	if logger == nil {
		logger = zap.NewNop()
	}
	if messages.NoSampleAudio == "" {
		messages = MessagesFor("")
	}
	return &VoiceSettings{
		catalog:  catalog,
		player:   player,
		alerts:   alerts,
		messages: messages,
		logger:   logger,
	}
}

// Profiles fetches the catalog
func (v *VoiceSettings) Profiles(ctx context.Context) ([]entities.VoiceProfile, error) {
	profiles, err := v.catalog.VoiceProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice profiles: %w", err)
	}
	v.profiles = profiles
	return profiles, nil
}

func (v *VoiceSettings) lookup(ctx context.Context, voiceID string) (entities.VoiceProfile, error) {
	if v.profiles == nil {
		if _, err := v.Profiles(ctx); err != nil {
			return entities.VoiceProfile{}, err
		}
	}
	for _, p := range v.profiles {
		if p.VoiceID == voiceID {
			return p, nil
		}
	}
	return entities.VoiceProfile{}, fmt.Errorf("%w: %s", ErrUnknownVoice, voiceID)
}

// Select makes voiceID the reply voice of the session
func (v *VoiceSettings) Select(ctx context.Context, session *ConversationSession, voiceID string) error {
	if _, err := v.lookup(ctx, voiceID); err != nil {
		return err
	}
	session.SetVoice(voiceID)
	return nil
}

// PlaySample plays the sample of a voice. Profiles without a sample show an info alert.
func (v *VoiceSettings) PlaySample(ctx context.Context, voiceID string) error {
	profile, err := v.lookup(ctx, voiceID)
	if err != nil {
		return err
	}
	if profile.SampleAudio == "" {
		v.alerts.Show(v.messages.NoSampleAudio, entities.SeverityInfo)
		return nil
	}

	source, err := v.catalog.VoiceSample(ctx, profile.ID)
	if err != nil {
		// the card carries the sample path as well
		v.logger.Warn("Sample lookup failed, using profile path", zap.String("voiceID", voiceID), zap.Error(err))
		source = profile.SampleAudio
	}
	if v.player == nil {
		return errors.New("no audio player configured")
	}
	return v.player.Play(ctx, source)
}
