package reporting

import (
	"fmt"
	"strings"
	"time"

	"ztoken-ledger/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Token Supply Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Tokens: %d\n\n", len(r.Tokens)))

	if len(r.Tokens) == 0 {
		sb.WriteString("No tokens defined.\n")
		return sb.String()
	}

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Symbol | Issuer | Valuation | Supply | Issued | Commits | Holders | Conserved |\n")
	sb.WriteString("|--------|--------|-----------|--------|--------|---------|---------|-----------|\n")
	for _, t := range r.Tokens {
		conserved := "NO"
		if t.Conserved() {
			conserved = "YES"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s %s | %s | %s | %d | %d | %s |\n",
			t.Symbol, t.Issuer, t.ValuationAmount.String(), t.ValuationCurrency,
			domain.FormatAmount(t.Supply, t.FractionDigits),
			domain.FormatAmount(t.Issued, t.FractionDigits),
			t.CommitCount, len(t.Holders), conserved))
	}
	sb.WriteString("\n")

	for _, t := range r.Tokens {
		sb.WriteString(fmt.Sprintf("## %s\n\n", t.Symbol))

		if len(t.KindCounts) > 0 {
			parts := make([]string, len(t.KindCounts))
			for i, k := range t.KindCounts {
				parts[i] = fmt.Sprintf("%s %d", k.Kind, k.Count)
			}
			sb.WriteString(fmt.Sprintf("Commits: %s\n\n", strings.Join(parts, ", ")))
		}

		if len(t.Holders) == 0 {
			sb.WriteString("No live holdings.\n\n")
			continue
		}
		sb.WriteString("| Account | Host | Balance | Holdings | Share% |\n")
		sb.WriteString("|---------|------|---------|----------|--------|\n")
		for _, h := range t.Holders {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %s |\n",
				h.Account, h.Host, domain.FormatAmount(h.Balance, t.FractionDigits),
				h.HoldingCount, h.SharePct.StringFixed(2)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
