package inbox_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"workinbox/internal/config"
	"workinbox/internal/domain"
	"workinbox/internal/inbox"
)

func intPtr(v int) *int { return &v }

func defaultScorer() inbox.Scorer {
	return inbox.NewScorer(config.Default().Weights)
}

func TestScoreComponents(t *testing.T) {
	s := defaultScorer()
	cases := []struct {
		name string
		in   inbox.ScoreInput
		want float64
	}{
		{"category and risk only", inbox.ScoreInput{Category: domain.CategoryContract, Risk: domain.RiskLow}, 38},
		{"log scaled amount", inbox.ScoreInput{Category: domain.CategoryPurchaseOrder, Risk: domain.RiskMedium, MonetaryImpact: 1000}, 18 + 18 + 18},
		{"amount capped", inbox.ScoreInput{Category: domain.CategoryPurchaseOrder, Risk: domain.RiskMedium, MonetaryImpact: 1e12}, 18 + 18 + 30},
		{"sub-unit amount", inbox.ScoreInput{Category: domain.CategoryPurchaseOrder, Risk: domain.RiskMedium, MonetaryImpact: 0.5}, 36},
		{"due today", inbox.ScoreInput{Category: domain.CategoryAmendment, Risk: domain.RiskLow, DaysToDue: intPtr(0)}, 16 + 8 + 20},
		{"due in three days", inbox.ScoreInput{Category: domain.CategoryAmendment, Risk: domain.RiskLow, DaysToDue: intPtr(3)}, 16 + 8 + 14},
		{"due far away", inbox.ScoreInput{Category: domain.CategoryAmendment, Risk: domain.RiskLow, DaysToDue: intPtr(15)}, 16 + 8},
		{"one day late", inbox.ScoreInput{Category: domain.CategoryAmendment, Risk: domain.RiskLow, DaysToDue: intPtr(-1)}, 16 + 8 + 27},
		{"overdue capped", inbox.ScoreInput{Category: domain.CategoryAmendment, Risk: domain.RiskLow, DaysToDue: intPtr(-30)}, 16 + 8 + 45},
		{"evidence capped", inbox.ScoreInput{Category: domain.CategoryLitigation, Risk: domain.RiskCritical, EvidenceCount: 10}, 25 + 45 + 12},
		{"all signals", inbox.ScoreInput{Category: domain.CategoryInvoice, Risk: domain.RiskHigh, MonetaryImpact: 6_000_000, DaysToDue: intPtr(-5), EvidenceCount: 3}, 22 + 30 + 30 + 35 + 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, s.Score(tc.in), 1e-9)
		})
	}
}

func TestScoreBreakdownSumsToScore(t *testing.T) {
	s := defaultScorer()
	in := inbox.ScoreInput{Category: domain.CategoryBlockage, Risk: domain.RiskHigh, MonetaryImpact: 250_000, DaysToDue: intPtr(2), EvidenceCount: 2}
	b := s.Breakdown(in)
	assert.InDelta(t, s.Score(in), b.Category+b.Risk+b.Monetary+b.Urgency+b.Evidence, 1e-9)
	assert.Equal(t, 28.0, b.Category)
	assert.Equal(t, 16.0, b.Urgency)
}

func TestScoreOverdueIsMonotonic(t *testing.T) {
	s := defaultScorer()
	base := inbox.ScoreInput{Category: domain.CategoryInvoice, Risk: domain.RiskMedium, MonetaryImpact: 10_000}
	late10, late1 := base, base
	late10.DaysToDue = intPtr(-10)
	late1.DaysToDue = intPtr(-1)
	assert.Greater(t, s.Score(late10), s.Score(late1))
}

func TestScoreProperties(t *testing.T) {
	s := defaultScorer()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	categories := make([]interface{}, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, c)
	}

	properties.Property("critical never scores below low", prop.ForAll(
		func(cat domain.Category, amount float64, days int, evidence int) bool {
			low := inbox.ScoreInput{Category: cat, Risk: domain.RiskLow, MonetaryImpact: amount, DaysToDue: &days, EvidenceCount: evidence}
			critical := low
			critical.Risk = domain.RiskCritical
			return s.Score(critical) >= s.Score(low)
		},
		gen.OneConstOf(categories...).Map(func(v interface{}) domain.Category { return v.(domain.Category) }),
		gen.Float64Range(0, 1e10),
		gen.IntRange(-60, 60),
		gen.IntRange(0, 20),
	))

	properties.Property("score is never negative", prop.ForAll(
		func(amount float64, days int, evidence int) bool {
			return s.Score(inbox.ScoreInput{Category: domain.CategoryAmendment, Risk: domain.RiskLow, MonetaryImpact: amount, DaysToDue: &days, EvidenceCount: evidence}) >= 0
		},
		gen.Float64Range(-1e6, 1e10),
		gen.IntRange(-1000, 1000),
		gen.IntRange(0, 50),
	))

	properties.Property("more overdue never scores lower", prop.ForAll(
		func(a, b int) bool {
			if a > b {
				a, b = b, a
			}
			more := inbox.ScoreInput{Category: domain.CategoryInvoice, Risk: domain.RiskMedium, DaysToDue: &a}
			less := inbox.ScoreInput{Category: domain.CategoryInvoice, Risk: domain.RiskMedium, DaysToDue: &b}
			return s.Score(more) >= s.Score(less)
		},
		gen.IntRange(-100, -1),
		gen.IntRange(-100, -1),
	))

	properties.TestingRun(t)
}
