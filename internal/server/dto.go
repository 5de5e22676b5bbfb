package server

import (
	"workinbox/internal/domain"
	"workinbox/internal/inbox"
)

// Request payloads

// AggregateRequest carries one raw snapshot. An absent collection skips
// its adapter; an empty one runs it over nothing.
type AggregateRequest struct {
	PurchaseOrders []map[string]any `json:"purchase_orders,omitempty" doc:"Raw purchase order records"`
	Invoices       []map[string]any `json:"invoices,omitempty" doc:"Raw invoice records"`
	Amendments     []map[string]any `json:"amendments,omitempty" doc:"Raw amendment records"`
	Contracts      []map[string]any `json:"contracts,omitempty" doc:"Raw contract records"`
}

func (r AggregateRequest) Bundle() domain.Bundle {
	return domain.Bundle{
		PurchaseOrders: toRecords(r.PurchaseOrders),
		Invoices:       toRecords(r.Invoices),
		Amendments:     toRecords(r.Amendments),
		Contracts:      toRecords(r.Contracts),
	}
}

func toRecords(in []map[string]any) []domain.Record {
	if in == nil {
		return nil
	}
	out := make([]domain.Record, len(in))
	for i, m := range in {
		out[i] = domain.Record(m)
	}
	return out
}

// Response payloads

type InboxItem struct {
	domain.WorkItem
	Breakdown *inbox.Breakdown `json:"breakdown,omitempty"`
}

type DiagnosticResponse struct {
	Adapter string `json:"adapter"`
	Message string `json:"message"`
}

type StatsResponse struct {
	Produced   map[string]int `json:"produced"`
	Duplicates int            `json:"duplicates"`
	Total      int            `json:"total" doc:"Queue size before query filters"`
	Returned   int            `json:"returned"`
}

type InboxResponse struct {
	Items       []InboxItem          `json:"items"`
	Diagnostics []DiagnosticResponse `json:"diagnostics"`
	Stats       StatsResponse        `json:"stats"`
}

func inboxResponse(agg inbox.Aggregator, res inbox.Result, q inbox.Query, explain bool) InboxResponse {
	items := q.Apply(res.Items)
	resp := InboxResponse{
		Items:       make([]InboxItem, 0, len(items)),
		Diagnostics: []DiagnosticResponse{},
		Stats: StatsResponse{
			Produced:   res.Stats.Produced,
			Duplicates: res.Stats.Duplicates,
			Total:      res.Stats.Total,
			Returned:   len(items),
		},
	}
	if resp.Stats.Produced == nil {
		resp.Stats.Produced = map[string]int{}
	}
	var scorer inbox.Scorer
	if explain {
		scorer = inbox.NewScorer(agg.Config.Weights)
	}
	for _, item := range items {
		out := InboxItem{WorkItem: item}
		if explain {
			b := scorer.BreakdownItem(item)
			out.Breakdown = &b
		}
		resp.Items = append(resp.Items, out)
	}
	for _, d := range res.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, DiagnosticResponse{Adapter: d.Adapter, Message: d.Message})
	}
	return resp
}
