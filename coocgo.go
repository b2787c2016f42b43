package coocgo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/coocgo/archive"
	"github.com/hupe1980/coocgo/cluster"
	"github.com/hupe1980/coocgo/codec"
	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/infotheory"
	"github.com/hupe1980/coocgo/marginals"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/pairs"
	"github.com/hupe1980/coocgo/resource"
	"github.com/hupe1980/coocgo/sections"
	"github.com/hupe1980/coocgo/snapshot"
)

// Session drives one co-occurrence corpus: it owns the row store, the pair
// vector, the section index and the engines computing statistics over them.
// All methods are safe for concurrent use; merges additionally serialize
// against each other so only one redistribution runs at a time.
type Session struct {
	store     graphstore.Store
	pairs     pairs.API
	sections  *sections.Index
	marginals *marginals.Engine
	stats     *infotheory.Engine
	rc        *resource.Controller
	codec     codec.Codec
	logger    *Logger
	metrics   MetricsCollector

	mergeMu sync.Mutex
	closed  atomic.Bool
}

func newSession(makeAPI func(graphstore.Store, ...pairs.Option) pairs.API, optFns []Option) (*Session, error) {
	opts := applyOptions(optFns)

	st := opts.store
	if st == nil {
		st = graphstore.NewMemStore()
	}
	if opts.cacheSize > 0 {
		cached, err := graphstore.NewCachingStore(st, opts.cacheSize)
		if err != nil {
			return nil, err
		}
		st = cached
	}

	var rc *resource.Controller
	if opts.hasResourceCfg {
		rc = resource.NewController(opts.resourceCfg)
	}

	c := opts.codec
	if c == nil {
		c = codec.Default
	}

	api := makeAPI(st, pairs.WithController(rc))
	ix := sections.New(st,
		sections.WithController(rc),
		sections.WithEagerCross(opts.eagerCross),
	)

	return &Session{
		store:     st,
		pairs:     api,
		sections:  ix,
		marginals: marginals.New(api, st),
		stats:     infotheory.New(api, st),
		rc:        rc,
		codec:     c,
		logger:    opts.logger,
		metrics:   opts.metricsCollector,
	}, nil
}

func (s *Session) ensureOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Observe counts the pairs and sections asserted by one parse. Returns the
// number of store rows incremented. A parse that fails validation leaves
// the store untouched and returns ErrMalformedParse.
func (s *Session) Observe(ctx context.Context, p model.Parse) (int, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	rows, err := s.pairs.Observe(ctx, p)
	if err == nil {
		var n int
		n, err = s.sections.Observe(ctx, p)
		rows += n
	}
	err = translateError(err)

	s.metrics.RecordObserve(time.Since(start), err)
	s.logger.LogObserve(ctx, len(p.Words), rows, err)

	return rows, err
}

// BatchReport summarizes one ObserveBatch call.
type BatchReport struct {
	Observed int           // parses counted
	Skipped  int           // malformed parses dropped
	Rows     int           // store rows incremented
	Elapsed  time.Duration // wall time of the batch
}

// ObserveBatch counts a batch of parses concurrently. The store is the
// serialization point, so parses land in arbitrary order but no update is
// lost. Malformed parses are skipped and logged; the batch continues.
// Any other error aborts the batch.
func (s *Session) ObserveBatch(ctx context.Context, parses []model.Parse) (BatchReport, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return BatchReport{}, err
	}

	var observed, skipped, rows atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, p := range parses {
		g.Go(func() error {
			n, err := s.pairs.Observe(gctx, p)
			if err == nil {
				var m int
				m, err = s.sections.Observe(gctx, p)
				n += m
			}
			if err != nil {
				if errors.Is(err, model.ErrMalformedParse) {
					skipped.Add(1)
					s.logger.WarnContext(gctx, "parse skipped",
						"words", len(p.Words),
						"error", err,
					)
					return nil
				}
				return err
			}
			observed.Add(1)
			rows.Add(int64(n))
			return nil
		})
	}

	err := translateError(g.Wait())
	rep := BatchReport{
		Observed: int(observed.Load()),
		Skipped:  int(skipped.Load()),
		Rows:     int(rows.Load()),
		Elapsed:  time.Since(start),
	}

	s.metrics.RecordObserveBatch(len(parses), rep.Skipped, rep.Elapsed)
	s.logger.LogObserveBatch(ctx, len(parses), rep.Skipped)

	return rep, err
}

// Count returns the stored co-occurrence count of (left, right), 0 when the
// pair has never been observed.
func (s *Session) Count(ctx context.Context, left, right model.Entity) (float64, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}

	p, ok, err := s.pairs.Pair(ctx, left, right)
	if err != nil {
		return 0, translateError(err)
	}
	if !ok {
		return 0, nil
	}

	count, err := s.pairs.Count(ctx, p)
	return count, translateError(err)
}

// FetchAll bulk-loads the full pair set and section index into memory. It
// blocks until complete (possibly minutes on a large corpus) and is
// cancellable as a whole via ctx. Statistics sweeps and ranking require a
// prior FetchAll; repeat calls are no-ops.
func (s *Session) FetchAll(ctx context.Context) error {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return err
	}

	err := s.pairs.FetchAll(ctx)
	if err == nil {
		err = s.sections.LoadAll(ctx)
	}
	err = translateError(err)

	nsec, ncross := s.sections.Counts()
	s.metrics.RecordFetchAll(time.Since(start), err)
	s.logger.LogFetchAll(ctx, s.pairs.Len(), nsec+ncross, err)

	return err
}

// ComputeMarginals recomputes every wildcard row N(x,*), N(*,y) and N(*,*)
// from the loaded working set. Returns ErrNotLoaded before FetchAll.
func (s *Session) ComputeMarginals(ctx context.Context) (marginals.Report, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return marginals.Report{}, err
	}

	rep, err := s.marginals.ComputeAll(ctx)
	err = translateError(err)

	s.metrics.RecordMarginals(time.Since(start), err)
	s.logger.LogMarginals(ctx, rep.Wildcards, err)

	return rep, err
}

// ComputeLogLikelihoods writes each left entity's surprisal
// -log2(N(x,*)/N(*,*)) onto its marginal row. Requires marginals for the
// counts it reads; run ComputeMarginals first.
func (s *Session) ComputeLogLikelihoods(ctx context.Context) (infotheory.Report, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return infotheory.Report{}, err
	}

	rep, err := s.stats.ComputeAllLogli(ctx)
	err = translateError(err)

	s.metrics.RecordStatistics(time.Since(start), err)
	s.logger.LogStatistics(ctx, "log-likelihood", rep.Rows, rep.Skipped, err)

	return rep, err
}

// ComputeMutualInformation writes the pointwise mutual information of every
// concrete pair into its row. Pairs whose marginal rows are missing are
// skipped and reported; run ComputeMarginals first.
func (s *Session) ComputeMutualInformation(ctx context.Context) (infotheory.Report, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return infotheory.Report{}, err
	}

	rep, err := s.stats.ComputeAllMI(ctx)
	err = translateError(err)

	s.metrics.RecordStatistics(time.Since(start), err)
	s.logger.LogStatistics(ctx, "mutual-information", rep.Rows, rep.Skipped, err)

	return rep, err
}

// Merge folds the observation vectors of a and b into the cluster entity
// covering both member sets. fraction in [0,1] selects the share of each
// donor count that moves; noiseFloor >= 0 moves small counts whole and
// deletes donor rows left at or below it. Returns the cluster entity and a
// report of what moved. Merges serialize against each other.
func (s *Session) Merge(ctx context.Context, a, b model.Entity, fraction, noiseFloor float64) (model.Entity, cluster.MergeReport, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return model.Entity{}, cluster.MergeReport{}, err
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	policy := cluster.Policy{Fraction: fraction, NoiseFloor: noiseFloor}
	m, err := cluster.NewMerger(s.store, s.sections, policy, cluster.WithController(s.rc))
	if err != nil {
		err = translateError(err)
		s.metrics.RecordMerge(time.Since(start), err)
		s.logger.LogMerge(ctx, "", 0, err)
		return model.Entity{}, cluster.MergeReport{}, err
	}

	rep, err := m.Merge(ctx, a, b)
	err = translateError(err)

	s.metrics.RecordMerge(time.Since(start), err)
	s.logger.LogMerge(ctx, rep.Cluster.Name, rep.Moved, err)

	return rep.Cluster, rep, err
}

// VerifyReport collects every consistency violation found by
// VerifyConsistency. An empty report means the invariants hold.
type VerifyReport struct {
	// Marginals lists wildcard rows whose stored count diverges from the
	// sum recomputed over the working set. Empty before FetchAll (the
	// check needs the full pair set and is skipped without it).
	Marginals []marginals.Violation

	// Balance lists cross-section copies whose count diverges from their
	// section, and orphaned copies whose section is gone.
	Balance []cluster.Violation
}

// Pass reports whether no violation was found.
func (r VerifyReport) Pass() bool {
	return len(r.Marginals) == 0 && len(r.Balance) == 0
}

// VerifyConsistency checks the marginal identities and the detailed balance
// between sections and their cross-section copies. Violations are reported,
// never repaired.
func (s *Session) VerifyConsistency(ctx context.Context) (VerifyReport, error) {
	if err := s.ensureOpen(); err != nil {
		return VerifyReport{}, err
	}

	var rep VerifyReport

	if s.pairs.Loaded() {
		v, err := s.marginals.Verify(ctx, marginals.DefaultEpsilon)
		if err != nil {
			return rep, translateError(err)
		}
		rep.Marginals = v
	}

	m, err := cluster.NewMerger(s.store, s.sections, cluster.DefaultPolicy)
	if err != nil {
		return rep, translateError(err)
	}
	balance, err := m.Verify(ctx, 0)
	if err != nil {
		return rep, translateError(err)
	}
	rep.Balance = balance

	s.logger.LogVerify(ctx, len(rep.Marginals)+len(rep.Balance), nil)

	return rep, nil
}

// SaveSnapshot streams every store row to w in the block snapshot format,
// encoded with the session codec.
func (s *Session) SaveSnapshot(ctx context.Context, w io.Writer) (snapshot.Report, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return snapshot.Report{}, err
	}

	rep, err := snapshot.Write(ctx, w, s.store,
		snapshot.WithCodec(s.codec),
		snapshot.WithController(s.rc),
	)
	err = translateError(err)

	s.metrics.RecordSnapshot(time.Since(start), err)
	s.logger.LogSnapshot(ctx, rep.Rows, rep.Bytes, err)

	return rep, err
}

// LoadSnapshot restores rows from a snapshot stream into the session store,
// overwriting rows that already exist under the same key. The codec and
// compression are resolved from the snapshot header. Restore before
// FetchAll: a loaded working set is not refreshed by a restore.
func (s *Session) LoadSnapshot(ctx context.Context, r io.Reader) (snapshot.Report, error) {
	start := time.Now()

	if err := s.ensureOpen(); err != nil {
		return snapshot.Report{}, err
	}

	rep, err := snapshot.Read(ctx, r, s.store, snapshot.WithController(s.rc))
	err = translateError(err)

	s.metrics.RecordSnapshot(time.Since(start), err)
	s.logger.LogRestore(ctx, rep.Rows, err)

	return rep, err
}

// PublishSnapshot saves a snapshot under the given name in the archive and
// moves the current marker to it on success. A failed write is aborted and
// leaves the marker untouched.
func (s *Session) PublishSnapshot(ctx context.Context, arc archive.Archive, name string) (snapshot.Report, error) {
	if err := s.ensureOpen(); err != nil {
		return snapshot.Report{}, err
	}

	w, err := arc.Create(ctx, name)
	if err != nil {
		return snapshot.Report{}, translateError(err)
	}

	rep, err := s.SaveSnapshot(ctx, w)
	if err != nil {
		_ = w.Abort()
		return rep, err
	}
	if err := w.Close(); err != nil {
		return rep, translateError(err)
	}

	if err := archive.SetCurrent(ctx, arc, name); err != nil {
		return rep, translateError(err)
	}

	return rep, nil
}

// LoadLatestSnapshot restores the snapshot the archive's current marker
// points at. Returns ErrNotFound when no snapshot has been published.
func (s *Session) LoadLatestSnapshot(ctx context.Context, arc archive.Archive) (snapshot.Report, error) {
	if err := s.ensureOpen(); err != nil {
		return snapshot.Report{}, err
	}

	obj, name, err := archive.Latest(ctx, arc)
	if err != nil {
		return snapshot.Report{}, translateError(err)
	}
	defer obj.Close()

	rep, err := s.LoadSnapshot(ctx, obj)
	if err != nil {
		return rep, fmt.Errorf("restore %s: %w", name, err)
	}

	return rep, nil
}

// SessionStats is a snapshot of session sizes.
type SessionStats struct {
	StoreRows int  // rows in the backing store
	Pairs     int  // pairs in the loaded working set, 0 before FetchAll
	Loaded    bool // whether FetchAll has completed
	Sections  int  // sections in the index
	Crosses   int  // materialized cross-section copies
}

// Stats returns current session sizes.
func (s *Session) Stats(ctx context.Context) (SessionStats, error) {
	if err := s.ensureOpen(); err != nil {
		return SessionStats{}, err
	}

	n, err := s.store.Len(ctx)
	if err != nil {
		return SessionStats{}, translateError(err)
	}

	nsec, ncross := s.sections.Counts()

	return SessionStats{
		StoreRows: n,
		Pairs:     s.pairs.Len(),
		Loaded:    s.pairs.Loaded(),
		Sections:  nsec,
		Crosses:   ncross,
	}, nil
}
