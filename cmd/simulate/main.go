// Command simulate walks one sale through its lifecycle on the in-memory
// ledger and prints the resulting journal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/logging"
	"escrow-sale/internal/reporting"
)

func main() {
	scenario := flag.String("scenario", scenarioSuccess, "Scenario: success, expired")
	assetID := flag.Uint64("asset-id", 1001, "Sale token asset id")
	rate := flag.Uint64("rate", 2*domain.RateScale, "Tokens per currency unit, scaled by 1e6")
	goal := flag.Uint64("goal", 5_000_000, "Funding goal in currency base units")
	pledges := flag.String("pledges", "3000000,2000000", "Comma-separated pledge amounts, one contributor each")
	logLevel := flag.String("log-level", "info", "Log level")
	outputJSON := flag.Bool("json", false, "Print the event journal as JSON")
	outputDir := flag.String("output-dir", "", "Write SALE_REPORT.md and journal.csv to this directory")
	tokenDecimals := flag.Int("token-decimals", 6, "Sale token decimals for display amounts")

	flag.Parse()

	log, err := logging.NewLogger(*logLevel, true, false, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	*scenario = strings.ToLower(*scenario)
	if *scenario != scenarioSuccess && *scenario != scenarioExpired {
		log.Fatalf("Invalid scenario: %s. Must be success or expired", *scenario)
	}

	amounts, err := parsePledges(*pledges)
	if err != nil {
		log.Fatalf("Invalid pledges: %v", err)
	}

	r, err := simulate(context.Background(), params{
		Scenario: *scenario,
		AssetID:  *assetID,
		Rate:     *rate,
		Goal:     *goal,
		Pledges:  amounts,
	}, log.Named("sale"))
	if err != nil {
		log.Fatalf("simulation failed: %v", err)
	}

	if *outputDir != "" {
		if err := writeReport(*outputDir, r, int32(*tokenDecimals)); err != nil {
			log.Fatalf("write report: %v", err)
		}
		log.Infof("Report written to %s/", *outputDir)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r.Events); err != nil {
			log.Fatalf("encode journal: %v", err)
		}
		return
	}

	printReport(r)
}

func parsePledges(s string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func writeReport(dir string, r *report, tokenDecimals int32) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	rep := &reporting.Report{
		GeneratedAt:    time.Now(),
		SaleID:         r.SaleID,
		Escrow:         r.Escrow,
		TokenDecimals:  tokenDecimals,
		State:          r.State,
		EscrowCurrency: r.EscrowCurrency,
		EscrowTokens:   r.EscrowTokens,
		Events:         r.Events,
		Audit:          r.Audit,
	}
	if err := os.WriteFile(filepath.Join(dir, "SALE_REPORT.md"), []byte(reporting.RenderMarkdown(rep)), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "journal.csv"), []byte(reporting.RenderCSV(rep)), 0o644)
}

func printReport(r *report) {
	fmt.Println("=== Sale ===")
	fmt.Printf("Status:           %s\n", r.State.Status)
	fmt.Printf("Total:            %d / %d\n", r.State.Total, r.State.Goal)
	fmt.Printf("Outstanding:      %d\n", r.State.Outstanding)
	fmt.Printf("Escrow currency:  %d\n", r.EscrowCurrency)
	fmt.Printf("Escrow tokens:    %d\n", r.EscrowTokens)
	fmt.Println()
	fmt.Printf("Journal audit:    match=%t events=%d contributors=%d\n",
		r.Audit.Match, r.Audit.Events, r.Audit.Contributors)
	fmt.Println()
	fmt.Println("=== Journal ===")
	for _, e := range r.Events {
		fmt.Printf("%-12s actor=%s amount=%d tokens=%d status=%s\n",
			e.Kind, shortID(e.Actor), e.Amount, e.Tokens, e.Status)
	}
}

func shortID(id domain.Identity) string {
	s := id.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + ".." + s[len(s)-4:]
}
