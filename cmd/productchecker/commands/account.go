package commands

import (
	"database/sql"
	"fmt"

	"productchecker/internal/catalog"
	"productchecker/internal/notify"

	"github.com/spf13/cobra"
)

var accountEmail *string
var accountAddEndpoint *string
var accountAddNotify *bool

var notifyEndpoint *string
var notifyEnabled *bool

func init() {
	accountEmail = accountAddCmd.Flags().String("email", "", "Contact address of the account.")
	accountAddEndpoint = accountAddCmd.Flags().String("endpoint", "", "Discord webhook url or mailto: address to notify.")
	accountAddNotify = accountAddCmd.Flags().Bool("notify", false, "Send restock notifications to the endpoint.")

	notifyEndpoint = accountNotifyCmd.Flags().String("endpoint", "", "Discord webhook url or mailto: address to notify, empty clears it.")
	notifyEnabled = accountNotifyCmd.Flags().Bool("enabled", true, "Whether restock notifications are sent.")

	accountCmd.AddCommand(accountAddCmd)
	accountCmd.AddCommand(accountNotifyCmd)
	rootCmd.AddCommand(accountCmd)
}

func parsePrefs(endpoint string, enabled bool) (catalog.NotificationPrefs, error) {
	if endpoint == "" {
		return catalog.NotificationPrefs{}, nil
	}
	err := notify.ValidateEndpoint(endpoint)
	if err != nil {
		return catalog.NotificationPrefs{}, err
	}
	return catalog.NotificationPrefs{
		Endpoint: sql.NullString{String: endpoint, Valid: true},
		Enabled:  enabled,
	}, nil
}

func describePrefs(prefs catalog.NotificationPrefs) string {
	if !prefs.Active() {
		return "notifications off"
	}
	return fmt.Sprintf("notifications to %s", prefs.Endpoint.String)
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manages accounts and their notification settings.",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <username> [--email <address>] [--endpoint <url>] [--notify]",
	Short: "Creates an account.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		prefs, err := parsePrefs(*accountAddEndpoint, *accountAddNotify)
		if err != nil {
			return err
		}
		account, err := a.store.CreateAccount(cmd.Context(), catalog.NewAccount{
			Username: args[0],
			Email:    *accountEmail,
			Prefs:    prefs,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created account %q (id %d, %s)\n", account.Username, account.ID, describePrefs(account.Prefs))
		return nil
	}),
}

var accountNotifyCmd = &cobra.Command{
	Use:   "notify <username> [--endpoint <url>] [--enabled=false]",
	Short: "Changes where and whether restock notifications are sent.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		prefs, err := parsePrefs(*notifyEndpoint, *notifyEnabled)
		if err != nil {
			return err
		}
		prefs, err = a.store.SetNotificationPrefs(cmd.Context(), args[0], prefs)
		if err != nil {
			return err
		}
		if *notifyEnabled && !prefs.Active() {
			fmt.Println("no endpoint given, notifications stay off")
		}
		fmt.Printf("%s: %s\n", args[0], describePrefs(prefs))
		return nil
	}),
}
