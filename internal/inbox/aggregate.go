package inbox

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"workinbox/internal/config"
	"workinbox/internal/domain"
)

// Provider supplies the raw collections when the caller has none.
// Fetching completes before aggregation starts.
type Provider interface {
	Bundle(ctx context.Context) (domain.Bundle, error)
}

// Aggregator merges every source domain into one ranked queue. It holds no
// state between calls; concurrent use is safe.
type Aggregator struct {
	Provider Provider
	Config   *config.Config
	Adapters []Adapter
	Logger   *slog.Logger
	Now      func() time.Time
}

func New(cfg *config.Config, p Provider) Aggregator {
	return Aggregator{
		Provider: p,
		Config:   cfg,
		Adapters: DefaultAdapters,
		Logger:   slog.Default(),
		Now:      time.Now,
	}
}

// Diagnostic reports an adapter that failed and contributed nothing.
type Diagnostic struct {
	Adapter string `json:"adapter"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

type Stats struct {
	Produced   map[string]int `json:"produced"`
	Duplicates int            `json:"duplicates"`
	Total      int            `json:"total"`
}

type Result struct {
	Items       []domain.WorkItem `json:"items"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
	Stats       Stats             `json:"stats"`
}

func (a Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Collect aggregates b, or the provider's snapshot when b is nil. Only a
// provider failure is returned as an error.
func (a Aggregator) Collect(ctx context.Context, b *domain.Bundle) (Result, error) {
	if b != nil {
		return a.Aggregate(*b), nil
	}
	if a.Provider == nil {
		return Result{}, errors.New("no bundle given and no provider configured")
	}
	snapshot, err := a.Provider.Bundle(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "load bundle")
	}
	return a.Aggregate(snapshot), nil
}

// Aggregate runs the adapters over b, scores, deduplicates and sorts the
// result by descending priority. Equal scores keep adapter order. A failing
// adapter is reported in Diagnostics and the others still contribute.
func (a Aggregator) Aggregate(b domain.Bundle) Result {
	now := a.now()
	cfg := a.Config
	if cfg == nil {
		cfg = config.Default()
	}
	settings := SettingsFromConfig(cfg, now)
	scorer := NewScorer(cfg.Weights)
	adapters := a.Adapters
	if adapters == nil {
		adapters = DefaultAdapters
	}

	res := Result{Stats: Stats{Produced: make(map[string]int, len(adapters))}}
	var items []domain.WorkItem
	for _, ad := range adapters {
		records := b.Collection(ad.Domain)
		if records == nil {
			continue
		}
		produced, err := runAdapter(ad, settings, records)
		if err != nil {
			a.logger().Warn("inbox adapter failed", "adapter", ad.Domain, "error", err)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Adapter: ad.Domain, Message: err.Error(), Err: err})
			continue
		}
		res.Stats.Produced[ad.Domain] = len(produced)
		items = append(items, produced...)
	}

	for i := range items {
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
		items[i].PriorityScore = scorer.ScoreItem(items[i])
	}

	seen := make(map[string]struct{}, len(items))
	queue := make([]domain.WorkItem, 0, len(items))
	for _, item := range items {
		sig := SignatureOf(item)
		if _, dup := seen[sig]; dup {
			res.Stats.Duplicates++
			continue
		}
		seen[sig] = struct{}{}
		queue = append(queue, item)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].PriorityScore > queue[j].PriorityScore
	})

	res.Items = queue
	res.Stats.Total = len(queue)
	a.logger().Debug("inbox aggregated",
		"items", res.Stats.Total,
		"duplicates", res.Stats.Duplicates,
		"failed_adapters", len(res.Diagnostics),
	)
	return res
}

func runAdapter(ad Adapter, s Settings, records []domain.Record) (items []domain.WorkItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithDetailf(errors.Newf("adapter %s panicked: %v", ad.Domain, r), "panic: %v (records=%d)", r, len(records))
			items = nil
		}
	}()
	if ad.Map == nil {
		return nil, errors.Newf("adapter %s has no mapping", ad.Domain)
	}
	return ad.Map(s, records), nil
}
