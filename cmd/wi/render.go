package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"workinbox/internal/domain"
	"workinbox/internal/inbox"
)

func buildQuery(categories []string, minRisk string, limit int) (inbox.Query, error) {
	q := inbox.Query{Limit: limit}
	for _, raw := range categories {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, ok := domain.ParseCategory(raw)
		if !ok {
			return q, fmt.Errorf("unknown category %q", raw)
		}
		q.Categories = append(q.Categories, c)
	}
	if minRisk != "" {
		lvl, ok := domain.ParseRiskLevel(minRisk)
		if !ok {
			return q, fmt.Errorf("unknown risk level %q", minRisk)
		}
		q.MinRisk = lvl
	}
	if limit < 0 {
		return q, fmt.Errorf("--limit must not be negative")
	}
	return q, nil
}

// renderInbox prints the queue as a table. A non-nil scorer adds the
// per-component breakdown columns.
func renderInbox(w io.Writer, items []domain.WorkItem, scorer *inbox.Scorer) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	header := table.Row{"#", "Score", "Risk", "Category", "Title", "Amount", "Due", "Partner"}
	if scorer != nil {
		header = append(header, "Cat", "Rsk", "Amt", "Urg", "Evd")
	}
	tw.AppendHeader(header)
	for i, it := range items {
		row := table.Row{
			i + 1,
			fmt.Sprintf("%.1f", it.PriorityScore),
			it.RiskLevel,
			it.Category,
			it.Title,
			amountLabel(it.MonetaryImpact),
			dueLabel(it.DaysToDue),
			it.PartnerRef,
		}
		if scorer != nil {
			b := scorer.BreakdownItem(it)
			row = append(row,
				fmt.Sprintf("%.1f", b.Category),
				fmt.Sprintf("%.1f", b.Risk),
				fmt.Sprintf("%.1f", b.Monetary),
				fmt.Sprintf("%.1f", b.Urgency),
				fmt.Sprintf("%.1f", b.Evidence),
			)
		}
		tw.AppendRow(row)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	tw.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d item%s", len(items), plural(len(items)))})
	tw.Render()
}

func amountLabel(v float64) string {
	if v == 0 {
		return "-"
	}
	return humanize.CommafWithDigits(v, 0)
}

func dueLabel(days *int) string {
	if days == nil {
		return "-"
	}
	d := *days
	switch {
	case d < 0:
		return fmt.Sprintf("%d day%s late", -d, plural(-d))
	case d == 0:
		return "today"
	}
	return fmt.Sprintf("in %d day%s", d, plural(d))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
