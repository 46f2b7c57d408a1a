package main

import (
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/maumcare/companion/internal/presenter"
	"github.com/maumcare/companion/usecase"
)

var premiumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fb6340")).Bold(true)

func newVoicesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the available reply voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.voiceSettings()
			if err != nil {
				return err
			}
			profiles, err := settings.Profiles(cmd.Context())
			if err != nil {
				return err
			}

			for _, p := range profiles {
				line := fmt.Sprintf("%-10s %-8s %s", p.VoiceID, p.Name, p.Description)
				if p.IsPremium {
					badge := "premium"
					if a.styled() {
						badge = premiumStyle.Render(badge)
					}
					line += " " + badge
				}
				fmt.Fprintln(a.out, line)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sample <voice-id>",
		Short: "Play the sample of a voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.voiceSettings()
			if err != nil {
				return err
			}
			return settings.PlaySample(cmd.Context(), args[0])
		},
	})
	return cmd
}

func (a *app) voiceSettings() (*usecase.VoiceSettings, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	player, err := a.player(client)
	if err != nil {
		return nil, err
	}
	alerts := presenter.NewAlertPresenter(a.presenterOptions())
	return usecase.NewVoiceSettings(client, player, alerts, a.messages(), a.logger), nil
}
