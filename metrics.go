package coocgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    observeCounter prometheus.Counter
//	    mergeHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordObserve(duration time.Duration, err error) {
//	    p.observeCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordObserve is called after each single-parse observe.
	// duration is the total time taken, err is nil if successful.
	RecordObserve(duration time.Duration, err error)

	// RecordObserveBatch is called after each batch observe.
	// count is the number of parses attempted, skipped is the number
	// rejected as malformed, duration is the total time taken.
	RecordObserveBatch(count, skipped int, duration time.Duration)

	// RecordFetchAll is called after each working set load.
	RecordFetchAll(duration time.Duration, err error)

	// RecordMarginals is called after each marginal sweep.
	RecordMarginals(duration time.Duration, err error)

	// RecordStatistics is called after each log-likelihood or mutual
	// information sweep.
	RecordStatistics(duration time.Duration, err error)

	// RecordMerge is called after each cluster merge.
	RecordMerge(duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save or restore.
	RecordSnapshot(duration time.Duration, err error)

	// RecordRank is called after each ranking query.
	// k is the number of results requested, duration is the time taken,
	// err is nil if successful.
	RecordRank(k int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordObserve(time.Duration, error)         {}
func (NoopMetricsCollector) RecordObserveBatch(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordFetchAll(time.Duration, error)        {}
func (NoopMetricsCollector) RecordMarginals(time.Duration, error)       {}
func (NoopMetricsCollector) RecordStatistics(time.Duration, error)      {}
func (NoopMetricsCollector) RecordMerge(time.Duration, error)           {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)        {}
func (NoopMetricsCollector) RecordRank(int, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ObserveCount      atomic.Int64
	ObserveErrors     atomic.Int64
	ObserveTotalNanos atomic.Int64
	BatchCount        atomic.Int64
	BatchParses       atomic.Int64
	BatchSkipped      atomic.Int64
	FetchAllCount     atomic.Int64
	FetchAllErrors    atomic.Int64
	MarginalsCount    atomic.Int64
	MarginalsErrors   atomic.Int64
	StatisticsCount   atomic.Int64
	StatisticsErrors  atomic.Int64
	MergeCount        atomic.Int64
	MergeErrors       atomic.Int64
	MergeTotalNanos   atomic.Int64
	SnapshotCount     atomic.Int64
	SnapshotErrors    atomic.Int64
	RankCount         atomic.Int64
	RankErrors        atomic.Int64
	RankTotalNanos    atomic.Int64
}

// RecordObserve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordObserve(duration time.Duration, err error) {
	b.ObserveCount.Add(1)
	b.ObserveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ObserveErrors.Add(1)
	}
}

// RecordObserveBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordObserveBatch(count, skipped int, duration time.Duration) {
	b.BatchCount.Add(1)
	b.BatchParses.Add(int64(count))
	b.BatchSkipped.Add(int64(skipped))
}

// RecordFetchAll implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetchAll(duration time.Duration, err error) {
	b.FetchAllCount.Add(1)
	if err != nil {
		b.FetchAllErrors.Add(1)
	}
}

// RecordMarginals implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMarginals(duration time.Duration, err error) {
	b.MarginalsCount.Add(1)
	if err != nil {
		b.MarginalsErrors.Add(1)
	}
}

// RecordStatistics implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStatistics(duration time.Duration, err error) {
	b.StatisticsCount.Add(1)
	if err != nil {
		b.StatisticsErrors.Add(1)
	}
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(duration time.Duration, err error) {
	b.MergeCount.Add(1)
	b.MergeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// RecordRank implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRank(k int, duration time.Duration, err error) {
	b.RankCount.Add(1)
	b.RankTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RankErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ObserveCount:     b.ObserveCount.Load(),
		ObserveErrors:    b.ObserveErrors.Load(),
		ObserveAvgNanos:  b.getAvgObserveNanos(),
		BatchCount:       b.BatchCount.Load(),
		BatchParses:      b.BatchParses.Load(),
		BatchSkipped:     b.BatchSkipped.Load(),
		FetchAllCount:    b.FetchAllCount.Load(),
		FetchAllErrors:   b.FetchAllErrors.Load(),
		MarginalsCount:   b.MarginalsCount.Load(),
		MarginalsErrors:  b.MarginalsErrors.Load(),
		StatisticsCount:  b.StatisticsCount.Load(),
		StatisticsErrors: b.StatisticsErrors.Load(),
		MergeCount:       b.MergeCount.Load(),
		MergeErrors:      b.MergeErrors.Load(),
		MergeAvgNanos:    b.getAvgMergeNanos(),
		SnapshotCount:    b.SnapshotCount.Load(),
		SnapshotErrors:   b.SnapshotErrors.Load(),
		RankCount:        b.RankCount.Load(),
		RankErrors:       b.RankErrors.Load(),
		RankAvgNanos:     b.getAvgRankNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgObserveNanos() int64 {
	count := b.ObserveCount.Load()
	if count == 0 {
		return 0
	}
	return b.ObserveTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgMergeNanos() int64 {
	count := b.MergeCount.Load()
	if count == 0 {
		return 0
	}
	return b.MergeTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgRankNanos() int64 {
	count := b.RankCount.Load()
	if count == 0 {
		return 0
	}
	return b.RankTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ObserveCount     int64
	ObserveErrors    int64
	ObserveAvgNanos  int64
	BatchCount       int64
	BatchParses      int64
	BatchSkipped     int64
	FetchAllCount    int64
	FetchAllErrors   int64
	MarginalsCount   int64
	MarginalsErrors  int64
	StatisticsCount  int64
	StatisticsErrors int64
	MergeCount       int64
	MergeErrors      int64
	MergeAvgNanos    int64
	SnapshotCount    int64
	SnapshotErrors   int64
	RankCount        int64
	RankErrors       int64
	RankAvgNanos     int64
}
