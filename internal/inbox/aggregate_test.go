package inbox_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	crdberrors "github.com/cockroachdb/errors"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workinbox/internal/config"
	"workinbox/internal/domain"
	"workinbox/internal/inbox"
)

func newAggregator() inbox.Aggregator {
	agg := inbox.New(config.Default(), nil)
	agg.Now = func() time.Time { return fixedNow }
	agg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return agg
}

func sampleBundle() domain.Bundle {
	return domain.Bundle{
		PurchaseOrders: []domain.Record{
			{"id": "PO-1", "amount": 2_000_000, "daysToExpiry": 2},
			{"id": "PO-2", "amount": "350 000 FCFA"},
		},
		Invoices: []domain.Record{
			{"id": "INV-1", "status": "received", "amount": 6_000_000, "daysLate": 8},
			{"id": "INV-2", "status": "en attente", "amount": 900_000},
		},
		Amendments: []domain.Record{
			{"id": "AMD-1", "status": "proposed", "costDelta": -12_000_000},
		},
		Contracts: []domain.Record{
			{"id": "CTR-1", "daysToSignature": 3, "amount": 45_000_000},
			{"id": "CTR-2", "daysToSignature": 10},
		},
	}
}

func TestAggregateRanksByScore(t *testing.T) {
	res := newAggregator().Aggregate(sampleBundle())
	require.Len(t, res.Items, 6)
	require.Empty(t, res.Diagnostics)
	for i := 1; i < len(res.Items); i++ {
		assert.GreaterOrEqual(t, res.Items[i-1].PriorityScore, res.Items[i].PriorityScore)
	}
	for _, it := range res.Items {
		assert.Positive(t, it.PriorityScore, it.UniqueKey)
	}
	assert.Equal(t, "invoice:INV-1", res.Items[0].UniqueKey)
	assert.Equal(t, map[string]int{
		domain.DomainPurchaseOrders: 2,
		domain.DomainInvoices:       2,
		domain.DomainAmendments:     1,
		domain.DomainContracts:      1,
	}, res.Stats.Produced)
	assert.Equal(t, 6, res.Stats.Total)
}

func TestAggregateIsDeterministic(t *testing.T) {
	agg := newAggregator()
	first := agg.Aggregate(sampleBundle())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, agg.Aggregate(sampleBundle()))
	}
}

func TestAggregateDropsDuplicates(t *testing.T) {
	rec := domain.Record{"id": "INV-1", "status": "received", "amount": 10}
	res := newAggregator().Aggregate(domain.Bundle{Invoices: []domain.Record{rec, rec}})
	require.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Stats.Duplicates)
}

func TestAggregateFirstSeenDuplicateWins(t *testing.T) {
	item := func(evidence string) domain.WorkItem {
		return domain.WorkItem{
			SourceID: "X-1",
			Category: domain.CategoryBlockage,
			Title:    "Unblock site X-1",
			Evidence: []string{evidence},
			RecommendedActions: []domain.Action{
				{Kind: domain.ActionValidate}, {Kind: domain.ActionOpenModule},
			},
		}
	}
	agg := newAggregator()
	agg.Adapters = []inbox.Adapter{
		{Domain: domain.DomainPurchaseOrders, Map: func(inbox.Settings, []domain.Record) []domain.WorkItem {
			return []domain.WorkItem{item("from purchase orders")}
		}},
		{Domain: domain.DomainInvoices, Map: func(inbox.Settings, []domain.Record) []domain.WorkItem {
			dup := item("from invoices")
			dup.RecommendedActions = []domain.Action{{Kind: domain.ActionOpenModule}, {Kind: domain.ActionValidate}}
			return []domain.WorkItem{dup}
		}},
	}
	res := agg.Aggregate(domain.Bundle{PurchaseOrders: []domain.Record{}, Invoices: []domain.Record{}})
	require.Len(t, res.Items, 1)
	assert.Equal(t, []string{"from purchase orders"}, res.Items[0].Evidence)
}

func TestAggregateEqualScoresKeepInsertionOrder(t *testing.T) {
	agg := newAggregator()
	agg.Adapters = []inbox.Adapter{
		{Domain: domain.DomainInvoices, Map: func(inbox.Settings, []domain.Record) []domain.WorkItem {
			var out []domain.WorkItem
			for _, id := range []string{"B", "A", "C", "D"} {
				out = append(out, domain.WorkItem{
					SourceID:  id,
					Category:  domain.CategoryInvoice,
					Title:     "Decide payment for invoice " + id,
					RiskLevel: domain.RiskMedium,
				})
			}
			return out
		}},
	}
	res := agg.Aggregate(domain.Bundle{Invoices: []domain.Record{}})
	require.Len(t, res.Items, 4)
	var ids []string
	for _, it := range res.Items {
		ids = append(ids, it.SourceID)
	}
	assert.Equal(t, []string{"B", "A", "C", "D"}, ids)
	assert.Equal(t, res.Items[0].PriorityScore, res.Items[3].PriorityScore)
}

func TestAggregateEmptyBundle(t *testing.T) {
	agg := newAggregator()
	res := agg.Aggregate(domain.Bundle{
		PurchaseOrders: []domain.Record{},
		Invoices:       []domain.Record{},
		Amendments:     []domain.Record{},
		Contracts:      []domain.Record{},
	})
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Empty(t, agg.Aggregate(domain.Bundle{}).Items)
}

func TestAggregatePartialBundle(t *testing.T) {
	res := newAggregator().Aggregate(domain.Bundle{Contracts: sampleBundle().Contracts})
	require.Len(t, res.Items, 1)
	assert.Equal(t, domain.CategoryContract, res.Items[0].Category)
	assert.Equal(t, map[string]int{domain.DomainContracts: 1}, res.Stats.Produced)
}

func TestAggregateIsolatesFailingAdapter(t *testing.T) {
	agg := newAggregator()
	agg.Adapters = append([]inbox.Adapter{{
		Domain: domain.DomainPurchaseOrders,
		Map: func(inbox.Settings, []domain.Record) []domain.WorkItem {
			panic("boom")
		},
	}}, inbox.DefaultAdapters[1:]...)
	res := agg.Aggregate(sampleBundle())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, domain.DomainPurchaseOrders, res.Diagnostics[0].Adapter)
	assert.Contains(t, res.Diagnostics[0].Message, "boom")
	assert.Contains(t, crdberrors.GetAllDetails(res.Diagnostics[0].Err), "panic: boom (records=2)")
	assert.Len(t, res.Items, 4)
	for _, it := range res.Items {
		assert.NotEqual(t, domain.CategoryPurchaseOrder, it.Category)
	}
}

func TestAggregateAllAdaptersFailing(t *testing.T) {
	agg := newAggregator()
	agg.Adapters = []inbox.Adapter{
		{Domain: domain.DomainInvoices, Map: func(inbox.Settings, []domain.Record) []domain.WorkItem { panic("one") }},
		{Domain: domain.DomainContracts},
	}
	res := agg.Aggregate(sampleBundle())
	assert.Empty(t, res.Items)
	assert.Len(t, res.Diagnostics, 2)
}

type stubProvider struct {
	bundle domain.Bundle
	err    error
	calls  int
}

func (p *stubProvider) Bundle(context.Context) (domain.Bundle, error) {
	p.calls++
	return p.bundle, p.err
}

func TestCollectUsesProviderWhenNoBundle(t *testing.T) {
	p := &stubProvider{bundle: sampleBundle()}
	agg := newAggregator()
	agg.Provider = p
	res, err := agg.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Items, 6)
	assert.Equal(t, 1, p.calls)

	explicit := domain.Bundle{Contracts: sampleBundle().Contracts}
	res, err = agg.Collect(context.Background(), &explicit)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 1, p.calls)
}

func TestCollectReportsProviderFailure(t *testing.T) {
	agg := newAggregator()
	agg.Provider = &stubProvider{err: errors.New("db down")}
	_, err := agg.Collect(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	agg.Provider = nil
	_, err = agg.Collect(context.Background(), nil)
	assert.Error(t, err)
}

func TestQueryApply(t *testing.T) {
	res := newAggregator().Aggregate(sampleBundle())
	high := inbox.Query{MinRisk: domain.RiskHigh}.Apply(res.Items)
	for _, it := range high {
		assert.GreaterOrEqual(t, it.RiskLevel.Rank(), domain.RiskHigh.Rank())
	}
	assert.Len(t, high, 3)

	invoices := inbox.Query{Categories: []domain.Category{domain.CategoryInvoice}, Limit: 1}.Apply(res.Items)
	require.Len(t, invoices, 1)
	assert.Equal(t, "invoice:INV-1", invoices[0].UniqueKey)
	assert.Len(t, inbox.Query{}.Apply(res.Items), len(res.Items))
}

func TestAggregateProperties(t *testing.T) {
	agg := newAggregator()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	invoices := gen.SliceOf(gen.Struct(reflect.TypeOf(invoiceSeed{}), map[string]gopter.Gen{
		"ID":       gen.IntRange(1, 15),
		"Amount":   gen.Float64Range(0, 20_000_000),
		"DaysLate": gen.IntRange(0, 30),
	}))

	properties.Property("repeated aggregation is identical", prop.ForAll(
		func(seeds []invoiceSeed) bool {
			b := domain.Bundle{Invoices: invoiceRecords(seeds)}
			return reflect.DeepEqual(agg.Aggregate(b), agg.Aggregate(b))
		},
		invoices,
	))

	properties.Property("feeding every record twice changes nothing", prop.ForAll(
		func(seeds []invoiceSeed) bool {
			once := invoiceRecords(seeds)
			twice := append(append([]domain.Record{}, once...), once...)
			a := agg.Aggregate(domain.Bundle{Invoices: once}).Items
			b := agg.Aggregate(domain.Bundle{Invoices: twice}).Items
			return reflect.DeepEqual(a, b)
		},
		invoices,
	))

	properties.Property("queue is sorted by descending score", prop.ForAll(
		func(seeds []invoiceSeed) bool {
			items := agg.Aggregate(domain.Bundle{Invoices: invoiceRecords(seeds)}).Items
			for i := 1; i < len(items); i++ {
				if items[i-1].PriorityScore < items[i].PriorityScore {
					return false
				}
			}
			return true
		},
		invoices,
	))

	properties.TestingRun(t)
}

type invoiceSeed struct {
	ID       int
	Amount   float64
	DaysLate int
}

// invoiceRecords keeps the first record of each id so that duplicates in
// the seed list do not carry differing payloads under one signature.
func invoiceRecords(seeds []invoiceSeed) []domain.Record {
	seen := map[int]bool{}
	var out []domain.Record
	for _, s := range seeds {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, domain.Record{
			"id":       fmt.Sprintf("INV-%d", s.ID),
			"status":   "received",
			"amount":   s.Amount,
			"daysLate": s.DaysLate,
		})
	}
	return out
}
