package commands

import (
	"fmt"
	"strconv"

	"productchecker/internal/extract"
	"productchecker/internal/monitor"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = productHistoryCmd.Flags().Int("limit", 50, "The number of observations to show, newest first.")

	productCmd.AddCommand(productAddCmd)
	productCmd.AddCommand(productDeleteCmd)
	productCmd.AddCommand(productListCmd)
	productCmd.AddCommand(productHistoryCmd)
	rootCmd.AddCommand(productCmd)
}

func parseProductID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return id, nil
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manages tracked products.",
}

var productAddCmd = &cobra.Command{
	Use:   "add <username> <alias> <url>",
	Short: fmt.Sprintf("Starts tracking a product page (supported retailers: %v).", extract.DefaultRegistry().Tags()),
	Args:  cobra.ExactArgs(3),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		f, err := a.newFetcher()
		if err != nil {
			return err
		}
		registrar := monitor.NewRegistrar(a.store, f, extract.DefaultRegistry())
		product, err := registrar.Register(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Alias", "Brand", "Model", "Retailer"})
		t.AppendRow(table.Row{product.ID, product.Alias, product.Brand, product.Model, product.Retailer})
		t.Render()
		return nil
	}),
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Stops tracking a product and deletes its observations.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := parseProductID(args[0])
		if err != nil {
			return err
		}
		err = a.store.DeleteProduct(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("deleted product %d\n", id)
		return nil
	}),
}

var productListCmd = &cobra.Command{
	Use:   "list <username>",
	Short: "Shows the products of an account with their latest observation.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		rows, err := a.store.Dashboard(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"ID", "Alias", "Brand", "Model", "Retailer", "In stock", "Price", "Checked"})
		for _, row := range rows {
			stock, price, checked := "-", "-", "never"
			if row.Checked {
				stock = yesNo(row.Latest.InStock)
				price = monitor.FormatPrice(row.Latest.Price)
				checked = formatTime(row.Latest.CheckedAt)
			}
			t.AppendRow(table.Row{
				row.Product.ID,
				row.Product.Alias,
				row.Product.Brand,
				row.Product.Model,
				row.Product.Retailer,
				stock,
				price,
				checked,
			})
		}
		t.Render()
		return nil
	}),
}

var productHistoryCmd = &cobra.Command{
	Use:   "history <id> [--limit <n>]",
	Short: "Shows the observations of a product, newest first.",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id, err := parseProductID(args[0])
		if err != nil {
			return err
		}
		product, err := a.store.GetProduct(cmd.Context(), id)
		if err != nil {
			return err
		}
		history, err := a.store.History(cmd.Context(), id, *historyLimit)
		if err != nil {
			return err
		}

		t := newTable()
		t.SetTitle(fmt.Sprintf("%s (%s)", product.Alias, product.URL))
		t.AppendHeader(table.Row{"Checked", "In stock", "Price"})
		for _, obs := range history {
			t.AppendRow(table.Row{formatTime(obs.CheckedAt), yesNo(obs.InStock), monitor.FormatPrice(obs.Price)})
		}
		t.Render()
		return nil
	}),
}
