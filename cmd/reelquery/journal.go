package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reelquery/reelquery/internal/bus"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read or replay the event journal",
	}
	cmd.PersistentFlags().String("path", "", "journal file (defaults to bus.journal_path)")
	cmd.PersistentFlags().Duration("since", 24*time.Hour, "only events recorded within this window")
	cmd.AddCommand(journalTailCmd(), journalReplayCmd())
	return cmd
}

// journalArgs resolves the journal path and the since cutoff.
func journalArgs(cmd *cobra.Command, configured string) (string, time.Time, error) {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = configured
	}
	if path == "" {
		return "", time.Time{}, errors.New("no journal path: set --path or bus.journal_path")
	}
	window, _ := cmd.Flags().GetDuration("since")
	return path, time.Now().Add(-window), nil
}

func journalTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print journal entries as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := globalConfig(cmd)
			if err != nil {
				return err
			}
			path, since, err := journalArgs(cmd, cfg.Bus.JournalPath)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			topic, _ := cmd.Flags().GetString("topic")

			entries, err := bus.ReadJournal(path, since, 0)
			if err != nil {
				return err
			}
			if topic != "" {
				kept := entries[:0]
				for _, e := range entries {
					if e.Topic == topic {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				if err := printJSON(cmd.OutOrStdout(), e, false); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "print at most the last n entries (0 = all)")
	cmd.Flags().String("topic", "", "only entries of this topic ("+bus.TopicAnswer+", "+bus.TopicRelaxation+")")
	return cmd
}

func journalReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Republish journal entries onto the configured bus",
		Long: `Replay republishes journal entries, oldest first, onto the bus named by
the config (typically Kafka) so downstream consumers can catch up.
The replay itself is not journaled again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := globalConfig(cmd)
			if err != nil {
				return err
			}
			path, since, err := journalArgs(cmd, cfg.Bus.JournalPath)
			if err != nil {
				return err
			}

			busCfg := cfg.Bus
			busCfg.JournalPath = ""
			b, err := bus.NewBus(busCfg, log)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			defer func() { _ = b.Close() }()

			n, err := bus.Replay(cmd.Context(), path, b, since)
			if err != nil {
				return fmt.Errorf("replayed %d events: %w", n, err)
			}
			log.Info("Journal replayed", "path", path, "events", n, "bus", busCfg.Type)
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", n)
			return nil
		},
	}
}
