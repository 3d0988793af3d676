package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the journal as CSV string.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("event_id,kind,actor,counterparty,amount,tokens,rate,total,status,occurred_at\n")

	// Rows
	for _, e := range r.Events {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%d,%d,%d,%d,%s,%d\n",
			e.ID,
			e.Kind,
			e.Actor,
			e.Counterparty,
			e.Amount,
			e.Tokens,
			e.Rate,
			e.Total,
			e.Status,
			e.OccurredAt,
		))
	}

	return sb.String()
}
