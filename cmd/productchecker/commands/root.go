package commands

import (
	"context"
	"fmt"
	"os"

	"productchecker/lib/telemetry"

	"github.com/spf13/cobra"
)

var configPath *string
var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "productchecker",
	Short: "productchecker watches retailer product pages and notifies owners when products come back in stock.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file to read.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

// ExecuteContext runs the command selected by the process arguments. The
// error has already been printed when it is returned.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return err
}
