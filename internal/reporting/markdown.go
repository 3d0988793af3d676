package reporting

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"escrow-sale/internal/domain"
)

func display(units uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -decimals).String()
}

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Sale Report: %s\n\n", r.SaleID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.UTC().Format(time.RFC3339)))

	// Sale
	s := r.State
	progress := "n/a"
	if s.Goal > 0 {
		pct := decimal.NewFromBigInt(new(big.Int).SetUint64(s.Total), 2).
			Div(decimal.NewFromBigInt(new(big.Int).SetUint64(s.Goal), 0))
		progress = pct.StringFixed(2) + "%"
	}

	sb.WriteString("## Sale\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", s.Status))
	sb.WriteString(fmt.Sprintf("| Creator | %s |\n", s.Creator))
	sb.WriteString(fmt.Sprintf("| Escrow | %s |\n", r.Escrow))
	sb.WriteString(fmt.Sprintf("| Asset | %d |\n", s.AssetID))
	sb.WriteString(fmt.Sprintf("| Rate | %d (per %d) |\n", s.Rate, domain.RateScale))
	sb.WriteString(fmt.Sprintf("| Goal | %s |\n", display(s.Goal, domain.CurrencyDecimals)))
	sb.WriteString(fmt.Sprintf("| Total | %s |\n", display(s.Total, domain.CurrencyDecimals)))
	sb.WriteString(fmt.Sprintf("| Progress | %s |\n", progress))
	sb.WriteString(fmt.Sprintf("| Deadline | %s |\n", time.Unix(int64(s.Deadline), 0).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Outstanding Tokens | %s |\n", display(s.Outstanding, r.TokenDecimals)))
	sb.WriteString(fmt.Sprintf("| Escrow Currency | %s |\n", display(r.EscrowCurrency, domain.CurrencyDecimals)))
	sb.WriteString(fmt.Sprintf("| Escrow Tokens | %s |\n", display(r.EscrowTokens, r.TokenDecimals)))
	sb.WriteString("\n")

	// Contributors
	sb.WriteString("## Contributors\n\n")
	rows := r.Contributors()
	if len(rows) == 0 {
		sb.WriteString("No contributions.\n\n")
	} else {
		sb.WriteString("| Contributor | Pledged | Tokens | Settled |\n")
		sb.WriteString("|-------------|---------|--------|---------|\n")
		for _, c := range rows {
			settled := "no"
			if c.Settled {
				settled = "yes"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				c.Contributor,
				display(c.Pledged, domain.CurrencyDecimals),
				display(c.Tokens, r.TokenDecimals),
				settled))
		}
		sb.WriteString("\n")
	}

	// Audit
	sb.WriteString("## Journal Audit\n\n")
	switch {
	case r.Audit == nil:
		sb.WriteString("Not verified.\n\n")
	case r.Audit.Match:
		sb.WriteString(fmt.Sprintf("**Match.** %d events replay to the ledger state.\n\n", r.Audit.Events))
	default:
		sb.WriteString(fmt.Sprintf("**Divergent.** %d events, %d divergent contributors.\n\n",
			r.Audit.Events, r.Audit.DivergentContributors))
		sb.WriteString("| Scope | Field | Ledger | Journal |\n")
		sb.WriteString("|-------|-------|--------|---------|\n")
		for _, d := range r.Audit.StateDivergences {
			sb.WriteString(fmt.Sprintf("| sale | %s | %v | %v |\n", d.Field, d.Expected, d.Actual))
		}
		for _, res := range r.Audit.Results {
			for _, d := range res.Divergences {
				sb.WriteString(fmt.Sprintf("| %s | %s | %v | %v |\n", res.Contributor, d.Field, d.Expected, d.Actual))
			}
		}
		sb.WriteString("\n")
	}

	// Journal
	sb.WriteString("## Journal\n\n")
	sb.WriteString(fmt.Sprintf("%d events. Full listing in journal.csv.\n", len(r.Events)))

	return sb.String()
}
