package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/premium_scout/internal/analyzer"
	"github.com/eddiefleurent/premium_scout/internal/models"
)

type analyzeOptions struct {
	symbol string
	dte    int
	format string
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rank strategies for one symbol",
		Example: `  scout analyze --symbol SPY --dte 7
  scout analyze --symbol QQQ --format json --config config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "underlying symbol (required)")
	cmd.Flags().IntVar(&opts.dte, "dte", 0, "target days to expiration (default from config)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text | json")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	cfg, logger, err := root.loadConfig(cmd)
	if err != nil {
		return err
	}
	dte := opts.dte
	if dte == 0 {
		dte = cfg.Strategy.DefaultDTE
	}
	if dte < 0 {
		return fmt.Errorf("dte must be > 0, got %d", dte)
	}

	ctx := cmd.Context()
	a := buildApp(ctx, cfg, logger)
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close cache")
		}
	}()

	req, err := a.fetcher.Fetch(ctx, opts.symbol, dte)
	if err != nil {
		return fmt.Errorf("fetching market data: %w", err)
	}
	res, err := a.analyzer.Analyze(*req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Snapshot models.MarketSnapshot `json:"snapshot"`
			Result   *analyzer.Result      `json:"result"`
		}{req.Snapshot, res})
	}
	return printResult(out, req.Snapshot, res)
}

func printResult(w io.Writer, snap models.MarketSnapshot, res *analyzer.Result) error {
	fmt.Fprintf(w, "%s @ %.2f  IV %.1f%%  IV rank %.0f (%s)  trend %s  gamma %s\n",
		snap.Symbol, snap.Price, snap.IV*100, snap.IVRank, snap.IVRankTier, snap.Trend, gammaLabel(snap.Gamma))
	one := res.AdjustedBand.OneSigma
	fmt.Fprintf(w, "Expected move (%d DTE): %.2f  1σ band %.2f - %.2f\n\n",
		snap.DTE, one.Move, one.Lower, one.Upper)

	if len(res.Candidates) == 0 {
		fmt.Fprintf(w, "No strategies qualified (%d considered).\n", res.Considered)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSTRATEGY\tSTRIKES\tQTY\tPREMIUM\tMAX RISK\tWIN%\tROC%\tSCORE\tTIER")
	for _, c := range res.Candidates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.2f\t%.2f\t%.1f\t%.1f\t%d\t%s\n",
			c.Rank, c.Name, strikeList(c), c.Contracts, c.NetPremium(), c.MaxRisk, c.WinRate, c.ROC, c.Score, c.Tier)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, c := range res.Candidates {
		if len(c.Rationale) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n#%d %s\n", c.Rank, c.Name)
		for _, line := range c.Rationale {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
	return nil
}

func gammaLabel(g models.GammaSummary) string {
	if !g.Available {
		return "n/a"
	}
	return string(g.Environment)
}

func strikeList(c *models.StrategyCandidate) string {
	strikes := make([]float64, 0, len(c.Strikes))
	seen := map[float64]bool{}
	for _, k := range c.Strikes {
		if !seen[k] {
			seen[k] = true
			strikes = append(strikes, k)
		}
	}
	sort.Float64s(strikes)
	parts := make([]string, len(strikes))
	for i, k := range strikes {
		parts[i] = strconv.FormatFloat(k, 'f', -1, 64)
	}
	return strings.Join(parts, "/")
}
