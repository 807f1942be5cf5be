package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"productchecker/internal/catalog"

	"github.com/spf13/cobra"
)

func init() {
	frequencyCmd.AddCommand(frequencyGetCmd)
	frequencyCmd.AddCommand(frequencySetCmd)
	rootCmd.AddCommand(frequencyCmd)
}

// parseFrequency accepts plain seconds ("90") or a duration ("1m30s").
func parseFrequency(s string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a number of seconds nor a duration", s)
	}
	return d, nil
}

var frequencyCmd = &cobra.Command{
	Use:   "frequency",
	Short: "Reads or changes how often products are checked.",
}

var frequencyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Prints the current check frequency.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		freq, err := a.store.GetCheckFrequency(cmd.Context())
		if errors.Is(err, catalog.ErrNotFound) {
			fmt.Printf("%s (default, never set)\n", a.defaultFrequency())
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(freq)
		return nil
	}),
}

var frequencySetCmd = &cobra.Command{
	Use:   "set <seconds|duration>",
	Short: fmt.Sprintf("Sets the check frequency, between %ds and %ds.", catalog.MinFrequency, catalog.MaxFrequency),
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		freq, err := parseFrequency(args[0])
		if err != nil {
			return err
		}
		err = a.store.SetCheckFrequency(cmd.Context(), freq)
		if err != nil {
			return err
		}
		fmt.Printf("products will be checked every %s, starting with the next pass\n", freq)
		return nil
	}),
}
