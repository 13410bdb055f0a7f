package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-classify/benchmark"
	"github.com/nvr-ai/go-classify/classifier"
)

// benchCommand measures mean latency of models over test images.
func benchCommand(a *app) *cobra.Command {
	var (
		iterations int
		outputDir  string
	)

	cmd := &cobra.Command{
		Use:   "bench <model|all> <file|dir>",
		Short: "Benchmark model latency",
		Long:  `Run repeated classifications and report the mean per-call latency. Use "all" to benchmark every configured model.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.load(ctx); err != nil {
				return err
			}

			suite := benchmark.NewSuite(a.service, outputDir, iterations)
			if args[0] == "all" {
				suite.AddModels(a.registry.IDs()...)
			} else {
				suite.AddModels(args[0])
			}
			if err := suite.LoadTestImages(args[1]); err != nil {
				return err
			}

			reports, err := suite.Run(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tIMAGE\tITERATIONS\tAVERAGE\tFPS\tERROR")
			for _, r := range reports {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.3fms\t%.1f\t%s\n", r.Model, r.Image, r.Iterations, r.AverageMillis, r.FramesPerSecond, r.Error)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if outputDir == "" {
				return nil
			}
			path, err := suite.SaveResults()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "results written to", path)
			return nil
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "i", classifier.DefaultIterations, "Classifications per model and image")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for JSON and CSV results")
	return cmd
}
