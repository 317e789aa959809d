// Package main provides the fwad command, a driver for the forward AD
// gradient storage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/forwardad/internal/envconfig"
	"github.com/born-ml/forwardad/internal/stress"
)

const version = "v0.1.0-dev"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: envconfig.LogLevel(),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewCLI().ExecuteContext(ctx); err != nil {
		slog.Error("fwad failed", "error", err)
		os.Exit(1)
	}
}

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fwad",
		Short:         "Forward AD gradient storage tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fwad %s\n", version)
		},
	}

	stressCmd := &cobra.Command{
		Use:   "stress",
		Short: "Race Set/Reset against level release and check the invariants",
		Args:  cobra.NoArgs,
		RunE:  StressHandler,
	}

	defaults := stress.DefaultOptions()
	if n := envconfig.StressWorkers(); n > 0 {
		defaults.Workers = int(n)
	}
	stressCmd.Flags().Int("workers", defaults.Workers, "Goroutines calling Set/Reset")
	stressCmd.Flags().Int("iterations", defaults.Iterations, "Operations per worker")
	stressCmd.Flags().Int("levels", defaults.Levels, "Levels kept live during the run")
	stressCmd.Flags().Int64("seed", defaults.Seed, "Random seed")
	stressCmd.Flags().Bool("sequential", false, "Run workers one after another")

	rootCmd.AddCommand(versionCmd, stressCmd)
	return rootCmd
}

// StressHandler runs the stress checker and prints its report.
func StressHandler(cmd *cobra.Command, _ []string) error {
	opts := stress.DefaultOptions()

	var err error
	if opts.Workers, err = cmd.Flags().GetInt("workers"); err != nil {
		return err
	}
	if opts.Iterations, err = cmd.Flags().GetInt("iterations"); err != nil {
		return err
	}
	if opts.Levels, err = cmd.Flags().GetInt("levels"); err != nil {
		return err
	}
	if opts.Seed, err = cmd.Flags().GetInt64("seed"); err != nil {
		return err
	}
	sequential, err := cmd.Flags().GetBool("sequential")
	if err != nil {
		return err
	}
	if sequential {
		opts.Parallel.Enabled = false
	}

	slog.Info("starting stress run", "workers", opts.Workers, "iterations", opts.Iterations, "levels", opts.Levels)

	report, err := stress.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	renderReport(cmd, report)

	if !report.OK() {
		for _, v := range report.Violations {
			slog.Error("invariant violated", "detail", v)
		}
		return fmt.Errorf("%d invariant violations", len(report.Violations))
	}
	return nil
}

func renderReport(cmd *cobra.Command, report *stress.Report) {
	data := [][]string{
		{"sets", strconv.FormatInt(report.Sets, 10)},
		{"resets", strconv.FormatInt(report.Resets, 10)},
		{"rejected", strconv.FormatInt(report.Rejected, 10)},
		{"releases", strconv.FormatInt(report.Releases, 10)},
		{"live levels", joinIndices(report.Live)},
		{"entries", joinIndices(report.Entries)},
		{"violations", strconv.Itoa(len(report.Violations))},
		{"elapsed", report.Elapsed.String()},
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"METRIC", "VALUE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func joinIndices(indices []uint64) string {
	if len(indices) == 0 {
		return "-"
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.FormatUint(idx, 10)
	}
	return strings.Join(parts, ",")
}
