package inbox

import "workinbox/internal/domain"

// Query narrows an aggregated queue for display. The zero Query keeps
// everything.
type Query struct {
	Categories []domain.Category
	MinRisk    domain.RiskLevel
	Limit      int
}

// Apply filters items in place order; it never reorders.
func (q Query) Apply(items []domain.WorkItem) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(items))
	minRank := q.MinRisk.Rank()
	for _, item := range items {
		if len(q.Categories) > 0 && !hasCategory(q.Categories, item.Category) {
			continue
		}
		if minRank > 0 && item.RiskLevel.Rank() < minRank {
			continue
		}
		out = append(out, item)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

func hasCategory(cats []domain.Category, c domain.Category) bool {
	for _, cat := range cats {
		if cat == c {
			return true
		}
	}
	return false
}
