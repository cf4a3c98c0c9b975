package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/testmaster-ai/testmaster/internal/config"
	"github.com/testmaster-ai/testmaster/internal/healing/store"
)

// NewHealCmd creates the heal command group for inspecting and reviewing
// healing events.
func NewHealCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "heal",
		Short: "Inspect and review self-healing events",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "Session file naming the healing store")

	cmd.AddCommand(
		newHealStatsCmd(&configPath),
		newHealListCmd(&configPath),
		newHealReviewCmd(&configPath, "approve", true),
		newHealReviewCmd(&configPath, "reject", false),
	)

	return cmd
}

func newHealStatsCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show healing statistics over a rolling window",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := healStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := st.Statistics(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("failed to compute statistics: %w", err)
			}
			printStats(stats)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Window size in days")
	return cmd
}

func newHealListCmd(configPath *string) *cobra.Command {
	var pending bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List healing events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := healStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			events, err := st.Query(cmd.Context(), store.Filter{Pending: pending, Limit: limit})
			if err != nil {
				return fmt.Errorf("failed to query events: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("no healing events found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTRATEGY\tCONFIDENCE\tFAILED LOCATOR\tHEALED LOCATOR\tSTATUS")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
					ev.ID, ev.Strategy, ev.Confidence, ev.FailedLocator, ev.HealedLocator, eventStatus(ev))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "Only suggestions awaiting review")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events")
	return cmd
}

func newHealReviewCmd(configPath *string, verb string, approved bool) *cobra.Command {
	var approver string

	cmd := &cobra.Command{
		Use:   verb + " <event_id>",
		Short: verb + " a suggested healing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := healStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.Approve(cmd.Context(), args[0], approver, approved); err != nil {
				return fmt.Errorf("failed to %s healing event: %w", verb, err)
			}
			if approved {
				fmt.Printf("%s healing event %s approved\n", color.GreenString("✓"), args[0])
			} else {
				fmt.Printf("%s healing event %s rejected\n", color.RedString("✗"), args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&approver, "by", "cli", "Reviewer recorded on the event")
	return cmd
}

func healStore(ctx context.Context, configPath string) (store.Store, func(), error) {
	storeCfg := &config.StoreConfig{Driver: "sqlite", DSN: "file:testmaster-healing.db?_pragma=busy_timeout(5000)"}
	if configPath != "" {
		sess, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		storeCfg = sess.Store
	}
	return openStore(ctx, storeCfg)
}

func eventStatus(ev store.Event) string {
	switch {
	case ev.AutoApplied:
		return "auto-applied"
	case ev.Approved == nil:
		return "pending"
	case *ev.Approved:
		return "approved"
	default:
		return "rejected"
	}
}

func printStats(stats *store.Statistics) {
	fmt.Printf("%s (last %d days)\n", color.New(color.Bold).Sprint("Healing statistics"), stats.WindowDays)
	fmt.Printf("  Attempts:     %d\n", stats.TotalAttempts)
	fmt.Printf("  Successful:   %d\n", stats.SuccessfulHeals)
	fmt.Printf("  Success rate: %.1f%%\n", stats.SuccessRate*100)

	if len(stats.ByStrategy) > 0 {
		fmt.Println("\n  By strategy:")
		names := make([]string, 0, len(stats.ByStrategy))
		for name := range stats.ByStrategy {
			names = append(names, name)
		}
		sort.Strings(names)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  \tSTRATEGY\tATTEMPTS\tSUCCESSES\tRATE")
		for _, name := range names {
			s := stats.ByStrategy[name]
			fmt.Fprintf(w, "  \t%s\t%d\t%d\t%.1f%%\n", name, s.Attempts, s.Successes, s.Rate*100)
		}
		_ = w.Flush()
	}

	if len(stats.TopObjects) > 0 {
		fmt.Println("\n  Most healed objects:")
		for _, obj := range stats.TopObjects {
			label := obj.ObjectID
			if label == "" {
				label = obj.FailedLocator
			}
			fmt.Printf("  %4d  %s\n", obj.Count, label)
		}
	}
}
