package inbox

import (
	"math"

	"workinbox/internal/config"
	"workinbox/internal/domain"
)

// ScoreInput is the part of a work item the scorer reads.
type ScoreInput struct {
	Category       domain.Category
	Risk           domain.RiskLevel
	MonetaryImpact float64
	DaysToDue      *int
	EvidenceCount  int
}

// Breakdown holds the weighted contribution of every signal.
type Breakdown struct {
	Category float64 `json:"category"`
	Risk     float64 `json:"risk"`
	Monetary float64 `json:"monetary"`
	Urgency  float64 `json:"urgency"`
	Evidence float64 `json:"evidence"`
}

// Total is the priority score.
func (b Breakdown) Total() float64 {
	return b.Category + b.Risk + b.Monetary + b.Urgency + b.Evidence
}

// Scorer computes priority scores. Scores only carry meaning relative to
// each other.
type Scorer struct {
	w config.Weights
}

func NewScorer(w config.Weights) Scorer {
	return Scorer{w: w}
}

func (s Scorer) Score(in ScoreInput) float64 {
	return s.Breakdown(in).Total()
}

func (s Scorer) ScoreItem(item domain.WorkItem) float64 {
	return s.Score(inputOf(item))
}

func (s Scorer) Breakdown(in ScoreInput) Breakdown {
	return Breakdown{
		Category: s.w.Category[in.Category],
		Risk:     s.w.Risk[in.Risk],
		Monetary: s.monetary(in.MonetaryImpact),
		Urgency:  s.urgency(in.DaysToDue),
		Evidence: clamp(float64(in.EvidenceCount)*s.w.Evidence.PerItem, 0, s.w.Evidence.Cap),
	}
}

// BreakdownItem explains the score of item.
func (s Scorer) BreakdownItem(item domain.WorkItem) Breakdown {
	return s.Breakdown(inputOf(item))
}

// monetary is log-scaled; amounts below 1 contribute nothing.
func (s Scorer) monetary(amount float64) float64 {
	m := s.w.Monetary
	return clamp(math.Log10(math.Max(1, amount))*m.Factor, 0, m.Cap)
}

func (s Scorer) urgency(days *int) float64 {
	if days == nil {
		return 0
	}
	u := s.w.Urgency
	d := float64(*days)
	if d < 0 {
		return clamp(u.OverdueBase+math.Abs(d)*u.OverduePerDay, u.OverdueBase, u.OverdueCap)
	}
	return clamp(u.UpcomingBase-d*u.UpcomingPerDay, 0, u.UpcomingBase)
}

func inputOf(item domain.WorkItem) ScoreInput {
	return ScoreInput{
		Category:       item.Category,
		Risk:           item.RiskLevel,
		MonetaryImpact: item.MonetaryImpact,
		DaysToDue:      item.DaysToDue,
		EvidenceCount:  len(item.Evidence),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
