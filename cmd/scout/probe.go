package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/premium_scout/internal/broker"
)

// probeResult is the outcome of one provider call.
type probeResult struct {
	Op      string
	OK      bool
	Detail  string
	Elapsed time.Duration
}

func newProbeCmd(root *rootOptions) *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check every market-data call against the configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			provider := broker.NewCircuitBreakerProviderWithSettings(newProvider(cfg, logger), cfg.BreakerSettings(), logger)

			results := probe(cmd.Context(), provider, strings.ToUpper(symbol))
			if err := printProbe(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d provider checks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "SPY", "symbol to probe")
	return cmd
}

// probe runs each MarketData call once, in dependency order.
func probe(ctx context.Context, p broker.MarketData, symbol string) []probeResult {
	var results []probeResult
	run := func(op string, fn func() (string, error)) bool {
		start := time.Now()
		detail, err := fn()
		r := probeResult{Op: op, OK: err == nil, Detail: detail, Elapsed: time.Since(start)}
		if err != nil {
			r.Detail = err.Error()
		}
		results = append(results, r)
		return r.OK
	}

	run("quote", func() (string, error) {
		q, err := p.GetQuote(ctx, symbol)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("price %.2f", q.Price()), nil
	})

	var front string
	run("expirations", func() (string, error) {
		exps, err := p.GetExpirations(ctx, symbol)
		if err != nil {
			return "", err
		}
		if len(exps) == 0 {
			return "", fmt.Errorf("no expirations listed")
		}
		front = exps[0]
		return fmt.Sprintf("%d listed, first %s", len(exps), front), nil
	})

	if front != "" {
		run("option chain", func() (string, error) {
			c, err := p.GetOptionChain(ctx, symbol, front)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d contracts for %s", len(c), front), nil
		})
	}

	run("iv history", func() (string, error) {
		h, err := p.GetIVHistory(ctx, symbol)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d values", len(h)), nil
	})
	run("technicals", func() (string, error) {
		t, err := p.GetTechnicals(ctx, symbol)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (%.0f)", t.Trend, t.Score), nil
	})
	run("gamma exposure", func() (string, error) {
		g, err := p.GetGammaExposure(ctx, symbol)
		if err != nil {
			return "", err
		}
		if !g.Available {
			return "unavailable", nil
		}
		return fmt.Sprintf("%s, zero gamma %.2f", g.Environment, g.ZeroGammaLevel), nil
	})
	run("earnings", func() (string, error) {
		e, err := p.GetEarnings(ctx, symbol)
		if err != nil {
			return "", err
		}
		if !e.Upcoming {
			return "none scheduled", nil
		}
		return fmt.Sprintf("in %d days", e.DaysUntil), nil
	})
	return results
}

func printProbe(w io.Writer, results []probeResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tLATENCY\tDETAIL")
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Op, status, r.Elapsed.Round(time.Millisecond), r.Detail)
	}
	return tw.Flush()
}
