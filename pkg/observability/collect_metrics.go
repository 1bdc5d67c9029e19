package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricPagesTotal    = "orbit.collect.pages.total"
	metricAccountsTotal = "orbit.collect.accounts.total"
	metricEventsTotal   = "orbit.collect.events.total"
	metricChurnTotal    = "orbit.collect.churn.total"
	metricFetchDuration = "orbit.upstream.fetch.duration.seconds"
	metricRetriesTotal  = "orbit.upstream.retries.total"

	attrEndpoint  = "endpoint"
	attrDirection = "direction"
)

// CollectMetrics holds OTel instruments for collection-run metrics.
type CollectMetrics struct {
	pagesTotal    metric.Int64Counter
	accountsTotal metric.Int64Counter
	eventsTotal   metric.Int64Counter
	churnTotal    metric.Int64Counter
	fetchDuration metric.Float64Histogram
	retriesTotal  metric.Int64Counter
}

// CollectStats holds the statistics for a single collection run,
// decoupled from collector types.
type CollectStats struct {
	Pages         int64
	Accounts      int64
	Events        int64
	NewFollowers  int64
	LostFollowers int64
}

// NewCollectMetrics creates collection metric instruments from the given meter.
func NewCollectMetrics(mt metric.Meter) (*CollectMetrics, error) {
	pages, err := mt.Int64Counter(metricPagesTotal,
		metric.WithDescription("Total upstream pages fetched"),
		metric.WithUnit("{page}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPagesTotal, err)
	}

	accounts, err := mt.Int64Counter(metricAccountsTotal,
		metric.WithDescription("Total accounts upserted"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricAccountsTotal, err)
	}

	events, err := mt.Int64Counter(metricEventsTotal,
		metric.WithDescription("Total interaction events recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricEventsTotal, err)
	}

	churn, err := mt.Int64Counter(metricChurnTotal,
		metric.WithDescription("Follower churn by direction"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricChurnTotal, err)
	}

	fetchDur, err := mt.Float64Histogram(metricFetchDuration,
		metric.WithDescription("Per-request upstream fetch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFetchDuration, err)
	}

	retries, err := mt.Int64Counter(metricRetriesTotal,
		metric.WithDescription("Upstream request retries by endpoint"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRetriesTotal, err)
	}

	return &CollectMetrics{
		pagesTotal:    pages,
		accountsTotal: accounts,
		eventsTotal:   events,
		churnTotal:    churn,
		fetchDuration: fetchDur,
		retriesTotal:  retries,
	}, nil
}

// RecordRun records statistics for a completed collection run.
// Safe to call on a nil receiver (no-op).
func (cm *CollectMetrics) RecordRun(ctx context.Context, stats CollectStats) {
	if cm == nil {
		return
	}

	cm.pagesTotal.Add(ctx, stats.Pages)
	cm.accountsTotal.Add(ctx, stats.Accounts)
	cm.eventsTotal.Add(ctx, stats.Events)

	newAttrs := metric.WithAttributes(attribute.String(attrDirection, "new"))
	cm.churnTotal.Add(ctx, stats.NewFollowers, newAttrs)

	lostAttrs := metric.WithAttributes(attribute.String(attrDirection, "lost"))
	cm.churnTotal.Add(ctx, stats.LostFollowers, lostAttrs)
}

// RecordFetch records one upstream request with its endpoint, duration,
// and the number of retries it took. Safe to call on a nil receiver.
func (cm *CollectMetrics) RecordFetch(ctx context.Context, endpoint string, duration time.Duration, retries int) {
	if cm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrEndpoint, endpoint))

	cm.fetchDuration.Record(ctx, duration.Seconds(), attrs)

	if retries > 0 {
		cm.retriesTotal.Add(ctx, int64(retries), attrs)
	}
}
