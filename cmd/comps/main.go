package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/comps-engine/internal/config"
	"github.com/comps-engine/internal/pipeline"
	"github.com/comps-engine/internal/review"
)

var version = "dev"

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "comps",
		Short: "Comparable property ranking engine",
		Long:  `Normalizes, deduplicates, enriches and ranks comparable property sales against a target property.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is comps.yaml in the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createReviewCmd())
	rootCmd.AddCommand(createVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

// createRunCmd creates the run subcommand, the main processing entry point.
func createRunCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
		reviewPath string
		offline    bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process a comparables sheet",
		Long:  `Reads a CSV of comparable sales, identifies the target property, merges duplicate listings, enriches records with distance and energy certificate data, and writes the ranked result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if outputPath == "" {
				outputPath = strings.TrimSuffix(inputPath, ".csv") + "_ranked.csv"
			}

			p := pipeline.New(pipeline.Config{
				Settings: settings,
				Offline:  offline,
			}, logger)

			summary, err := p.Run(cmd.Context(), inputPath, outputPath, reviewPath)
			if err != nil {
				return err
			}

			fmt.Printf("Processed %d records into %d ranked comparables (%d merged)\n",
				summary.RecordsIn, summary.Comparables, summary.Merged)
			fmt.Printf("Output written to %s\n", outputPath)
			if summary.ReviewItems > 0 {
				fmt.Printf("%d records need manual review", summary.ReviewItems)
				if reviewPath != "" {
					fmt.Printf(" (saved to %s)", reviewPath)
				}
				fmt.Println()
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "input CSV file (required)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output CSV file (default <input>_ranked.csv)")
	runCmd.Flags().StringVar(&reviewPath, "review-out", "", "write records needing review to this JSON file")
	runCmd.Flags().BoolVar(&offline, "offline", false, "skip geocoding and certificate lookups")
	runCmd.MarkFlagRequired("input")
	return runCmd
}

// createReviewCmd creates the review subcommand, serving saved review items
// over HTTP until interrupted.
func createReviewCmd() *cobra.Command {
	var filePath string

	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Serve flagged records for manual review",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			settings, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			items, err := review.Load(filePath)
			if err != nil {
				return fmt.Errorf("load review items: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := fmt.Sprintf("%s:%d", settings.Review.Host, settings.Review.Port)
			srv := review.NewServer(addr, items, logger)
			fmt.Printf("Review server listening on http://%s (%d items)\n", addr, len(items))
			return srv.Start(ctx)
		},
	}

	reviewCmd.Flags().StringVarP(&filePath, "file", "f", "review.json", "review items file produced by run --review-out")
	return reviewCmd
}

func createVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("comps %s\n", version)
		},
	}
}
