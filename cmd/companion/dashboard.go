package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/internal/chart"
	"github.com/maumcare/companion/internal/page"
	"github.com/maumcare/companion/internal/presenter"
	"github.com/maumcare/companion/usecase"
)

const dashboardPath = "/dashboard/"

func newMoodCommand(a *app) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "mood [very_bad|bad|neutral|good|very_good]",
		Short: "Record today's mood",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			if _, err := a.loadPage(ctx, client, dashboardPath); err != nil {
				return err
			}

			alerts := presenter.NewAlertPresenter(a.presenterOptions())
			defer alerts.Close()
			moods := usecase.NewMoodSelection(client, alerts, a.messages(), a.logger)

			var choice string
			if len(args) == 1 {
				choice = args[0]
			} else {
				choice, err = askMood(moods.Options())
				if err != nil {
					return err
				}
			}
			if err := moods.Select(entities.Mood(choice)); err != nil {
				return err
			}
			return moods.Submit(ctx, notes)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")
	return cmd
}

// askMood shows the picker on an interactive terminal
func askMood(options []usecase.MoodOption) (string, error) {
	if !presenter.IsTerminal(os.Stdout) {
		return "", errors.New("mood is required when not running in a terminal")
	}

	labels := make([]string, 0, len(options))
	byLabel := make(map[string]entities.Mood, len(options))
	for _, o := range options {
		label := fmt.Sprintf("%s (%+d)", o.Label, o.Value)
		labels = append(labels, label)
		byLabel[label] = o.Mood
	}

	ui := &input.UI{Writer: os.Stdout, Reader: os.Stdin}
	answer, err := ui.Select("오늘 기분은 어떠세요?", labels, &input.Options{
		Default:  labels[len(labels)/2],
		Required: true,
		Loop:     true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get user input: %w", err)
	}
	return string(byLabel[answer]), nil
}

func newDashboardCommand(a *app) *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the mood and sentiment charts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			p, err := a.loadPage(cmd.Context(), client, dashboardPath)
			if err != nil {
				return err
			}

			for _, id := range []string{page.MoodChartID, page.SentimentChartID} {
				spec, _ := chart.SpecFor(id)
				data, ok := p.Chart(id)
				if !ok {
					data = page.ChartData{ID: id}
				}
				fmt.Fprintln(a.out, chart.Render(spec, data, chart.Options{
					Width:  width,
					Styled: a.styled(),
				}))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 40, "plot width in cells")
	return cmd
}

func newComfortEmailCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comfort-email",
		Short: "Ask for a comfort email now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			if _, err := a.loadPage(ctx, client, dashboardPath); err != nil {
				return err
			}

			alerts := presenter.NewAlertPresenter(a.presenterOptions())
			defer alerts.Close()

			result, err := usecase.NewComfortEmail(client, alerts, a.messages(), a.logger).Send(ctx)
			if err != nil {
				return err
			}
			if !result.Success {
				return errors.New(result.Message)
			}
			return nil
		},
	}
}
