package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const version = "v0.3.0"

// buildStamp is stamped by release builds via -ldflags "-X main.buildStamp=...".
var buildStamp string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "gerun",
		Short:   "Grand Exchange capital allocation engine",
		Version: version,
		Long: `gerun splits flipping capital across Grand Exchange opportunities.

Run 'gerun allocate' for a one-shot plan from an opportunities file, or
'gerun serve' to run the allocation service: HTTP API, websocket plan feed,
optional Redis signal consumer and Postgres plan journal.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Config YAML path (default: config/gerun.yaml when present)")

	allocateCmd := &cobra.Command{
		Use:   "allocate [opportunities.json]",
		Short: "Compute one allocation plan and print it",
		Long:  "Reads opportunity records from a JSON file ('-' or no argument for stdin), runs the allocation engine once and prints the plan.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAllocate,
	}

	allocateCmd.Flags().Float64("capital", 0, "Total capital in gp (default: bankroll from config)")
	allocateCmd.Flags().Bool("json", false, "Print the raw plan JSON instead of the table")
	addSignalFlags(allocateCmd.Flags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the allocation service",
		Long:  "Starts the HTTP API and websocket plan feed; consumes the opportunity stream and journals plans when Redis and Postgres are configured.",
		RunE:  runServe,
	}

	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// addSignalFlags registers the optional market signal inputs; zero values
// mean "absent" and fall back to the analyzer defaults
func addSignalFlags(fs *pflag.FlagSet) {
	fs.Float64("volatility", 0, "Market volatility signal 0-1 (0 = use default)")
	fs.Float64("liquidity", 0, "Market liquidity signal 0-1 (0 = use default)")
	fs.String("trend", "", "Market trend (bullish|bearish|neutral)")
	fs.Float64("active-traders", 0, "Active trader count signal")
	fs.Float64("price-stability", 0, "Price stability signal 0-1")
}

// setLogLevel applies the configured level to the global logger
func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
