package main

import (
	"fmt"

	"github.com/Veraticus/cumin/internal/cli"
	"github.com/Veraticus/cumin/internal/config"
	"github.com/Veraticus/cumin/internal/scheduler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run rule application and cleanup on a schedule",
		Long: `Run in the foreground, applying rules for every owner on schedule.apply
and deleting stale rules on schedule.cleanup. Both take cron expressions or
descriptors such as "@every 1h" and "@daily".

With --once both jobs run a single time and the command exits.`,
		RunE: runSchedule,
	}

	cmd.Flags().Bool("once", false, "Run both jobs once and exit")

	return cmd
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	once, _ := cmd.Flags().GetBool("once")
	out := cmd.OutOrStdout()

	cfg, err := config.LoadSchedule(viper.GetViper())
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx, stop := handler.HandleInterrupts(cmd.Context(), "Scheduler", "")
	defer stop()

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	eng, err := initEngine(store)
	if err != nil {
		return err
	}

	sched := scheduler.New(eng, cfg)

	if once {
		if err := sched.RunApply(ctx); err != nil {
			return fmt.Errorf("apply failed: %w", err)
		}
		if err := sched.RunCleanup(ctx); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Fprintln(out, cli.FormatSuccess("Scheduled jobs ran once"))
		return nil
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	nextApply, nextCleanup := sched.NextRuns()
	fmt.Fprintln(out, cli.FormatTitle("Scheduler running"))
	fmt.Fprintf(out, "  apply   %-12s next %s\n", cfg.ApplySpec, nextApply.Format("2006-01-02 15:04"))
	fmt.Fprintf(out, "  cleanup %-12s next %s\n", cfg.CleanupSpec, nextCleanup.Format("2006-01-02 15:04"))

	<-ctx.Done()
	return nil
}
