package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "storefront",
		Short:        "Storefront backend: catalog, cart, checkout and exchange rates",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(rateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Serve(cmd.Context())
		},
	}
}

func rateCmd() *cobra.Command {
	rate := &cobra.Command{
		Use:   "rate",
		Short: "Inspect or refresh the stored USD exchange rate",
	}

	rate.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current rate snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer app.Close()
			return printJSON(cmd, app.rates.Current())
		},
	})

	rate.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Fetch a fresh quote from the configured sources and store it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer app.Close()
			outcome := app.rates.Refresh(cmd.Context())
			if outcome.Warning != "" {
				log.Printf("[RATE] [WARN] %s", outcome.Warning)
			}
			return printJSON(cmd, outcome)
		},
	})

	return rate
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
