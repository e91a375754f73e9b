package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"ztoken-ledger/internal/domain"
)

// RenderCSV renders one row per (symbol, holder) as CSV string.
// Account names may contain characters that need quoting.
func RenderCSV(r *Report) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	// Header
	if err := w.Write([]string{"symbol", "account", "host", "balance", "holding_count", "share_pct", "supply"}); err != nil {
		return "", err
	}

	// Rows
	for _, t := range r.Tokens {
		supply := domain.FormatAmount(t.Supply, t.FractionDigits)
		for _, h := range t.Holders {
			if err := w.Write([]string{
				t.Symbol,
				h.Account,
				h.Host,
				domain.FormatAmount(h.Balance, t.FractionDigits),
				strconv.Itoa(h.HoldingCount),
				h.SharePct.StringFixed(2),
				supply,
			}); err != nil {
				return "", err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
