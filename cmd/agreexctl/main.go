package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agreex/internal/app"
	"agreex/internal/chains"
	"agreex/internal/config"
	"agreex/internal/dex"
	"agreex/internal/verification"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agreexctl",
		Short:         "AgreeX milestone verification tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobra.OnInitialize(initConfig)

	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("chains-file", "", "YAML chain table (overrides CHAINS_FILE)")
	root.PersistentFlags().Bool("live", false, "call the live aggregator instead of simulated payloads")
	_ = viper.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("chains-file", root.PersistentFlags().Lookup("chains-file"))
	_ = viper.BindPFlag("live", root.PersistentFlags().Lookup("live"))

	root.AddCommand(verifyCmd())
	root.AddCommand(chainsCmd())
	root.AddCommand(quoteCmd())
	return root
}

func initConfig() {
	viper.SetEnvPrefix("AGREEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the service environment and applies CLI overrides.
func loadConfig() (*config.AppConfig, error) {
	if viper.GetBool("live") {
		if err := os.Setenv("OKX_SIMULATE_MODE", "false"); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if path := viper.GetString("chains-file"); path != "" {
		cfg.Service.ChainsFile = path
	}
	return cfg, nil
}

func verifyCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a milestone message (contract JSON, delimiter, milestone text)",
		Long: "Reads a message of the form\n\n  <contract JSON>\n  " + verification.Delimiter +
			"\n  <milestone description>\n\nfrom --file or stdin and prints the verification envelope.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := app.Chains(cfg)
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.OKX.Timeout)
			defer cancel()
			verifier := app.Verifier(registry, slog.Default())
			fmt.Fprintln(cmd.OutOrStdout(), verifier.Reply(ctx, string(raw)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the message from a file instead of stdin")
	return cmd
}

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := app.Chains(cfg)
			if err != nil {
				return err
			}
			return printChains(cmd.OutOrStdout(), registry.All(), viper.GetBool("json"))
		},
	}
}

func printChains(out io.Writer, list []chains.ChainInfo, asJSON bool) error {
	if asJSON {
		return printJSON(out, list)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Key", "Name", "Chain ID", "Native", "Explorer"})
	for _, c := range list {
		tw.AppendRow(table.Row{c.Key, c.Name, c.ChainID, c.NativeCurrency, c.ExplorerURL})
	}
	tw.Render()
	return nil
}

func quoteCmd() *cobra.Command {
	var chain, from, to, amount, slippage string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Request a swap quote from the aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" || amount == "" {
				return errors.New("--from, --to and --amount are required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry, err := app.Chains(cfg)
			if err != nil {
				return err
			}
			info, err := registry.Resolve(chain)
			if err != nil {
				return err
			}
			client, err := app.DEX(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.OKX.Timeout+time.Second)
			defer cancel()
			quote, err := client.Quote(ctx, dex.QuoteRequest{
				ChainID:     info.ChainID,
				FromToken:   from,
				ToToken:     to,
				Amount:      amount,
				Slippage:    slippage,
				UserAddress: cfg.OKX.Wallet,
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), quote)
			}
			return printQuote(cmd.OutOrStdout(), info, quote)
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "ethereum", "chain key or id")
	cmd.Flags().StringVar(&from, "from", "", "source token address")
	cmd.Flags().StringVar(&to, "to", "", "destination token address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in base units")
	cmd.Flags().StringVar(&slippage, "slippage", "", "slippage percent (default 0.5)")
	return cmd
}

func printQuote(out io.Writer, info chains.ChainInfo, q dex.Quote) error {
	fmt.Fprintf(out, "%s: %s -> %s\n", info.Name, q.RouterResult.FromTokenAmount, q.RouterResult.ToTokenAmount)
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Share %", "DEX", "Sub %"})
	for _, r := range q.RouterResult.Routes {
		for _, sub := range r.SubRoutes {
			tw.AppendRow(table.Row{r.Percentage, sub.Dex, sub.Percentage})
		}
	}
	tw.Render()
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
