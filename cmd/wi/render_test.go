package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workinbox/internal/config"
	"workinbox/internal/domain"
	"workinbox/internal/inbox"
)

func TestBuildQuery(t *testing.T) {
	q, err := buildQuery([]string{"invoice", "Contract"}, "high", 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{domain.CategoryInvoice, domain.CategoryContract}, q.Categories)
	assert.Equal(t, domain.RiskHigh, q.MinRisk)
	assert.Equal(t, 3, q.Limit)

	_, err = buildQuery([]string{"ticket"}, "", 0)
	assert.Error(t, err)
	_, err = buildQuery(nil, "severe", 0)
	assert.Error(t, err)
	_, err = buildQuery(nil, "", -1)
	assert.Error(t, err)
}

func TestDueLabel(t *testing.T) {
	days := func(d int) *int { return &d }
	assert.Equal(t, "-", dueLabel(nil))
	assert.Equal(t, "today", dueLabel(days(0)))
	assert.Equal(t, "in 1 day", dueLabel(days(1)))
	assert.Equal(t, "3 days late", dueLabel(days(-3)))
}

func TestAmountLabel(t *testing.T) {
	assert.Equal(t, "-", amountLabel(0))
	assert.Equal(t, "12,500,000", amountLabel(12_500_000))
}

func TestRenderInbox(t *testing.T) {
	d := -2
	items := []domain.WorkItem{{
		UniqueKey:      "invoice:INV-1",
		Category:       domain.CategoryInvoice,
		Title:          "Decide payment for invoice INV-1",
		RiskLevel:      domain.RiskHigh,
		MonetaryImpact: 6_000_000,
		DaysToDue:      &d,
		PartnerRef:     "Sotraco BTP",
		PriorityScore:  112.4,
	}}
	var buf bytes.Buffer
	s := inbox.NewScorer(config.Default().Weights)
	renderInbox(&buf, items, &s)
	out := buf.String()
	assert.Contains(t, out, "Decide payment for invoice INV-1")
	assert.Contains(t, out, "6,000,000")
	assert.Contains(t, out, "2 days late")
	assert.Contains(t, out, "Sotraco BTP")
	assert.Contains(t, strings.ToLower(out), "1 item")
}
