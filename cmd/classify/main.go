// Command classify serves and runs on-device image classification models.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := rootCommand(a).ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// rootCommand creates the classify command tree around a.
func rootCommand(a *app) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:           "classify",
		Short:         "Multi-model image classification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "Enable debug output")

	rootCmd.AddCommand(
		serveCommand(a),
		imageCommand(a),
		benchCommand(a),
		modelsCommand(a),
	)
	return rootCmd
}
