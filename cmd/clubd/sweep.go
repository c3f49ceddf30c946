package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCommand(opts *rootOptions, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:          "sweep",
		Short:        "Run one scheduler pass and exit",
		Long:         "Closes overdue timeline entries, materializes templates up to the horizon, expires overdue reservation items and sends due-date reminders.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts.ConfigPath, logger)
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer a.drain(ctx, logger)
			return a.scheduler.SweepOnce(ctx)
		},
	}
}

type materializeOptions struct {
	Until string
}

func newMaterializeCommand(opts *rootOptions, logger *log.Logger) *cobra.Command {
	mopts := &materializeOptions{}

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize every repeating template up to a date",
		Example: `  clubd materialize --until 2024-03-01
  clubd materialize --until 2024-03-01T00:00:00Z`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			until, err := parseUntil(mopts.Until)
			if err != nil {
				return err
			}
			a, err := loadApp(opts.ConfigPath, logger)
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer a.drain(ctx, logger)

			now := time.Now().UTC()
			if !until.After(now) {
				return fmt.Errorf("--until %s is not in the future", until.Format(time.RFC3339))
			}
			logger.Printf("materializing templates until %s", until.Format(time.RFC3339))
			return a.timeline.MaterializeAll(ctx, now, until)
		},
	}

	cmd.Flags().StringVar(&mopts.Until, "until", "", "materialize up to this date (YYYY-MM-DD or RFC3339)")
	_ = cmd.MarkFlagRequired("until")

	return cmd
}

func parseUntil(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --until %q: use YYYY-MM-DD or RFC3339", raw)
	}
	return t, nil
}
