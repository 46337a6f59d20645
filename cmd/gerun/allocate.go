package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/config"
)

func runAllocate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	capital, _ := cmd.Flags().GetFloat64("capital")
	if capital == 0 {
		capital = cfg.Bankroll
	}

	opportunities, err := readOpportunities(args)
	if err != nil {
		return err
	}

	signals, err := signalsFromFlags(cmd)
	if err != nil {
		return err
	}

	engine, err := alloc.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	plan, err := engine.AllocateCapital(ctx, capital, opportunities, signals)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	renderPlan(plan)
	return nil
}

// readOpportunities decodes the opportunity list from the named file, or from
// stdin when no argument (or "-") is given.
func readOpportunities(args []string) ([]alloc.Opportunity, error) {
	in := os.Stdin
	name := "stdin"
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("open opportunities: %w", err)
		}
		defer f.Close()
		in = f
		name = args[0]
	}

	var opportunities []alloc.Opportunity
	if err := json.NewDecoder(in).Decode(&opportunities); err != nil {
		return nil, fmt.Errorf("decode opportunities from %s: %w", name, err)
	}
	return opportunities, nil
}

func signalsFromFlags(cmd *cobra.Command) (alloc.MarketSignals, error) {
	volatility, _ := cmd.Flags().GetFloat64("volatility")
	liquidity, _ := cmd.Flags().GetFloat64("liquidity")
	activeTraders, _ := cmd.Flags().GetFloat64("active-traders")
	priceStability, _ := cmd.Flags().GetFloat64("price-stability")
	trend, _ := cmd.Flags().GetString("trend")

	signals := alloc.MarketSignals{
		Volatility:     volatility,
		Liquidity:      liquidity,
		ActiveTraders:  activeTraders,
		PriceStability: priceStability,
	}

	switch trend {
	case "":
	case string(alloc.TrendBullish), string(alloc.TrendBearish), string(alloc.TrendNeutral):
		signals.Trend = alloc.Trend(trend)
	default:
		return alloc.MarketSignals{}, fmt.Errorf("unknown trend %q (want bullish, bearish or neutral)", trend)
	}
	return signals, nil
}

// renderPlan prints the human-readable allocation table. Cells are padded
// before they are colored so ANSI escapes do not skew the column widths.
func renderPlan(plan *alloc.AllocationPlan) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("%s  %s\n", bold("Allocation plan"), plan.Timestamp.Format(time.RFC3339))
	fmt.Printf("Capital %s gp: allocated %s gp (%.1f%%), remaining %s gp\n",
		formatGP(plan.TotalCapital), formatGP(plan.TotalAllocated),
		plan.AllocationPercentage, formatGP(plan.RemainingCapital))
	fmt.Printf("Market: %s risk, %s trend, volatility %.2f, liquidity %.2f\n",
		plan.MarketAnalysis.RiskLevel, plan.MarketAnalysis.Trend,
		plan.MarketAnalysis.Volatility, plan.MarketAnalysis.Liquidity)
	fmt.Printf("Weights: instant %.0f%% / patient %.0f%% (%s)\n",
		plan.AdjustedAllocation.InstantPct*100, plan.AdjustedAllocation.PatientPct*100,
		plan.AdjustedAllocation.Reason)

	renderStrategy("Instant flips", plan.InstantFlips)
	renderStrategy("Patient offers", plan.PatientOffers)

	if len(plan.Recommendations) > 0 {
		fmt.Printf("\n%s\n", bold("Recommendations"))
		for _, rec := range plan.Recommendations {
			fmt.Printf("  %s %s\n", priorityTag(rec.Priority), rec.Message)
		}
	}
}

func renderStrategy(title string, result alloc.StrategyResult) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("\n%s: %d trades, %s gp allocated, expected profit %s gp (%.1f%% utilization)\n",
		bold(title), len(result.Trades), formatGP(result.TotalAllocated),
		green(formatGP(result.TotalExpectedProfit)), result.Utilization*100)
	if len(result.Trades) == 0 {
		return
	}

	fmt.Printf("  %-24s %8s %10s %10s %10s %10s %8s %s\n",
		"ITEM", "QTY", "BUY", "SELL", "CAPITAL", "PROFIT", "MARGIN", "RISK")
	for _, t := range result.Trades {
		profit := green(fmt.Sprintf("%10s", formatGP(t.ExpectedProfit)))
		fmt.Printf("  %-24s %8d %10s %10s %10s %s %7.2f%% %s\n",
			t.ItemName, t.Quantity, formatGP(t.BuyPrice), formatGP(t.SellPrice),
			formatGP(t.CapitalAllocated), profit, t.MarginPercent, riskCell(t.RiskLevel))
	}
}

func riskCell(risk alloc.RiskLevel) string {
	cell := fmt.Sprintf("%-6s", risk)
	switch risk {
	case alloc.RiskHigh:
		return color.New(color.FgRed).Sprint(cell)
	case alloc.RiskMedium:
		return color.New(color.FgYellow).Sprint(cell)
	default:
		return cell
	}
}

func priorityTag(priority string) string {
	tag := fmt.Sprintf("[%s]", priority)
	switch priority {
	case "high":
		return color.New(color.FgRed).Sprint(tag)
	case "medium":
		return color.New(color.FgYellow).Sprint(tag)
	default:
		return tag
	}
}

// formatGP renders gp amounts the way flippers read them: 12.3M, 450K, 87.
func formatGP(v float64) string {
	switch {
	case math.Abs(v) >= 1_000_000:
		return fmt.Sprintf("%.1fM", v/1_000_000)
	case math.Abs(v) >= 1_000:
		return fmt.Sprintf("%.0fK", v/1_000)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}
