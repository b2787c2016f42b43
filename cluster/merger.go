// Package cluster implements projective merging of co-occurrence
// vectors: two similar entities donate a share of their observed
// Sections and CrossSections to a shared cluster entity, leaving
// residual counts behind for their unmerged senses.
//
// A merge step is exclusive and walks a fixed state machine:
//
//	Idle → DirectMerging → CrossPropagating → Reconstructing →
//	Rebalancing → GC → Idle
//
// Either every phase completes and each touched section carries the same
// count as all of its cross-sections on return, or the step fails
// wrapped in ErrMergeAborted. A failed step is not resumable from an
// arbitrary phase; callers reconcile the donor entities against the
// store and retry from its latest state.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/resource"
	"github.com/hupe1980/coocgo/sections"
)

// gcEpsilon stands in for a zero noise floor during collection, so
// counts reduced to floating-point dust still read as true zeros.
const gcEpsilon = 1e-12

// Phase names one state of a merge step.
type Phase uint8

const (
	// PhaseIdle is the state between steps.
	PhaseIdle Phase = iota
	// PhaseDirectMerging moves donor germ sections onto the cluster.
	PhaseDirectMerging
	// PhaseCrossPropagating moves donor mentions between cross-sections.
	PhaseCrossPropagating
	// PhaseReconstructing reassembles propagated crosses into sections
	// and collapses doubly-nested contexts.
	PhaseReconstructing
	// PhaseRebalancing re-explodes touched sections.
	PhaseRebalancing
	// PhaseGC collects touched rows at or below the noise floor.
	PhaseGC
)

func (p Phase) String() string {
	switch p {
	case PhaseDirectMerging:
		return "DirectMerging"
	case PhaseCrossPropagating:
		return "CrossPropagating"
	case PhaseReconstructing:
		return "Reconstructing"
	case PhaseRebalancing:
		return "Rebalancing"
	case PhaseGC:
		return "GC"
	default:
		return "Idle"
	}
}

// MergeReport describes one completed merge step.
type MergeReport struct {
	StepID  string
	Cluster model.Entity
	Donors  [2]model.Entity

	// NoOp is set when the donors were already members of the cluster
	// and no state was touched.
	NoOp bool

	Direct     int // donor germ sections merged directly
	Crosses    int // donor mentions propagated between cross-sections
	Rebuilt    int // sections reassembled from propagated crosses
	TieBreaks  int // doubly-nested contexts collapsed
	Rebalanced int // touched sections re-exploded
	Deleted    int // rows collected

	Moved       float64 // observation mass moved onto the cluster
	Collected   float64 // section mass dropped by zeroing and collection
	TotalBefore float64 // germ-section mass on donors and cluster before the step
	TotalAfter  float64 // same mass after the step; Before == After + Collected

	Elapsed time.Duration
}

// Option configures a Merger.
type Option func(*options)

type options struct {
	rc *resource.Controller
}

// WithController makes merge steps hold one of the controller's
// maintenance slots for their whole duration.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// Merger runs merge steps against one store and section index. Steps are
// serialized on an internal mutex; observation must not run concurrently
// with a step (maintenance-phase model).
type Merger struct {
	store  graphstore.Store
	ix     *sections.Index
	policy Policy
	rc     *resource.Controller

	mu sync.Mutex
}

// NewMerger validates the policy and returns a merger.
func NewMerger(store graphstore.Store, ix *sections.Index, policy Policy, optFns ...Option) (*Merger, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, fn := range optFns {
		fn(&o)
	}

	return &Merger{store: store, ix: ix, policy: policy, rc: o.rc}, nil
}

// Policy returns the merger's redistribution policy.
func (m *Merger) Policy() Policy {
	return m.policy
}

// Merge folds the vectors of a and b into the cluster entity covering
// both member sets, running the five phases under the merger's lease.
// Merging entities that are already members of the resulting cluster is
// a no-op.
func (m *Merger) Merge(ctx context.Context, a, b model.Entity) (MergeReport, error) {
	started := time.Now()
	rep := MergeReport{StepID: uuid.NewString(), Donors: [2]model.Entity{a, b}}

	for _, e := range []model.Entity{a, b} {
		if err := validDonor(e); err != nil {
			return rep, err
		}
	}
	if a.Key() == b.Key() {
		return rep, fmt.Errorf("%w: %s merged with itself", ErrBadDonor, a)
	}

	cluster := model.ClassOf(a, b)
	rep.Cluster = cluster

	if cluster.Key() == a.Key() || cluster.Key() == b.Key() {
		rep.NoOp = true
		rep.Elapsed = time.Since(started)
		return rep, nil
	}
	aIn, err := m.isMember(ctx, cluster, a)
	if err != nil {
		return rep, err
	}
	bIn, err := m.isMember(ctx, cluster, b)
	if err != nil {
		return rep, err
	}
	if aIn && bIn {
		rep.NoOp = true
		rep.Elapsed = time.Since(started)
		return rep, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rc.AcquireMaintenance(ctx); err != nil {
		return rep, err
	}
	defer m.rc.ReleaseMaintenance()

	step := &mergeStep{
		store:   m.store,
		ix:      m.ix,
		policy:  m.policy,
		cluster: cluster,
		donors:  [2]model.Entity{a, b},
		touched: roaring.New(),
		rep:     &rep,
	}

	if rep.TotalBefore, err = step.germTotal(ctx); err != nil {
		return rep, err
	}

	phases := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhaseDirectMerging, step.direct},
		{PhaseCrossPropagating, step.propagate},
		{PhaseReconstructing, step.reconstruct},
		{PhaseRebalancing, step.rebalance},
		{PhaseGC, step.collect},
	}
	for _, p := range phases {
		if err := p.run(ctx); err != nil {
			return rep, fmt.Errorf("%w: step %s (%s, %s) in phase %s: %w",
				ErrMergeAborted, rep.StepID, a, b, p.phase, err)
		}
	}

	if err := m.addMembership(ctx, cluster, a); err != nil {
		return rep, err
	}
	if err := m.addMembership(ctx, cluster, b); err != nil {
		return rep, err
	}

	if rep.TotalAfter, err = step.germTotal(ctx); err != nil {
		return rep, err
	}
	rep.Elapsed = time.Since(started)
	return rep, nil
}

// Reconcile realigns the index with the store rows referencing the given
// entities: live rows missing from the index are adopted, indexed rows
// gone from the store are unlinked. Run it after an aborted merge before
// retrying.
func (m *Merger) Reconcile(ctx context.Context, entities ...model.Entity) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fixed := 0
	for _, e := range entities {
		keys, err := m.store.IncomingSet(ctx, e.Key())
		if err != nil {
			return fixed, err
		}
		for _, key := range keys {
			if _, ok := m.ix.Lookup(key); ok {
				continue
			}
			switch model.KeyClass(key) {
			case 'S':
				sec, err := model.ParseSectionKey(key)
				if err != nil {
					return fixed, err
				}
				m.ix.Adopt(sections.Row{Kind: sections.RowSection, Section: sec})
				fixed++
			case 'X':
				x, err := model.ParseCrossKey(key)
				if err != nil {
					return fixed, err
				}
				m.ix.Adopt(sections.Row{Kind: sections.RowCross, Cross: x})
				fixed++
			}
		}

		stale := make([]string, 0)
		for _, sec := range m.ix.SectionsOn(e) {
			stale = append(stale, sec.Key())
		}
		for _, sec := range m.ix.SectionsMentioning(e) {
			stale = append(stale, sec.Key())
		}
		for _, x := range m.ix.CrossesOn(e) {
			stale = append(stale, x.Key())
		}
		for _, key := range stale {
			_, ok, err := m.store.Lookup(ctx, key)
			if err != nil {
				return fixed, err
			}
			if ok {
				continue
			}
			if err := m.ix.Remove(ctx, key); err != nil {
				return fixed, err
			}
			fixed++
		}
	}
	return fixed, nil
}

// Members returns the persisted member entities of a cluster, sorted by
// key.
func (m *Merger) Members(ctx context.Context, class model.Entity) ([]model.Entity, error) {
	keys, err := m.store.IncomingSet(ctx, class.Key())
	if err != nil {
		return nil, err
	}

	var out []model.Entity
	for _, key := range keys {
		if model.KeyClass(key) != 'M' {
			continue
		}
		mem, err := model.ParseMembershipKey(key)
		if err != nil {
			return nil, err
		}
		if mem.Class.Key() != class.Key() {
			// The class is itself a member of a superclass here.
			continue
		}
		out = append(out, mem.Member)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (m *Merger) isMember(ctx context.Context, class, member model.Entity) (bool, error) {
	_, ok, err := m.store.Lookup(ctx, model.Membership{Class: class, Member: member}.Key())
	return ok, err
}

func (m *Merger) addMembership(ctx context.Context, class, member model.Entity) error {
	mem := model.Membership{Class: class, Member: member}
	_, err := graphstore.Ensure(ctx, m.store, mem.Key(), 1, mem.Refs()...)
	return err
}

func validDonor(e model.Entity) error {
	if e.Name == "" || (e.Kind != model.EntityWord && e.Kind != model.EntityClass) {
		return fmt.Errorf("%w: %s", ErrBadDonor, e)
	}
	return nil
}

// mergeStep carries the working state of one merge through its phases.
type mergeStep struct {
	store   graphstore.Store
	ix      *sections.Index
	policy  Policy
	cluster model.Entity
	donors  [2]model.Entity
	touched *roaring.Bitmap
	props   []propagation
	rep     *MergeReport
}

// propagation is one cross-section move awaiting reconstruction.
type propagation struct {
	cross model.CrossSection
	moved float64
}

// direct moves the fraction of every donor germ section whose sequence
// mentions no donor. Doubly-nested contexts wait for the tie-break.
func (s *mergeStep) direct(ctx context.Context) error {
	for _, d := range s.donors {
		for _, sec := range s.ix.SectionsOn(d) {
			if s.mentionsDonor(sec.Seq) {
				continue
			}
			c, err := s.count(ctx, sec.Key())
			if err != nil {
				return err
			}
			if c <= 0 {
				continue
			}
			moved := s.moveFraction(d, c) * c

			merged := model.Section{Germ: s.cluster, Seq: sec.Seq}
			if _, err := s.ix.AddSection(ctx, merged, moved); err != nil {
				return err
			}
			if _, err := s.ix.AddSection(ctx, sec, -moved); err != nil {
				return err
			}
			s.touch(merged.Key())
			s.touch(sec.Key())
			s.rep.Direct++
			s.rep.Moved += moved
		}
	}
	return nil
}

// propagate handles donor mentions nested inside foreign germ sections:
// the section is exploded and the same fraction moves from the cross
// holding the donor to the cross holding the cluster. The donor section
// follows its cross immediately so a later slot of the same section sees
// the reduced count.
func (s *mergeStep) propagate(ctx context.Context) error {
	for _, d := range s.donors {
		for _, sec := range s.ix.SectionsMentioning(d) {
			if s.isDonor(sec.Germ) {
				continue
			}
			for _, slot := range sec.Seq.Slots(d) {
				c, err := s.count(ctx, sec.Key())
				if err != nil {
					return err
				}
				if c <= 0 {
					break
				}
				moved := s.moveFraction(d, c) * c

				if _, err := s.ix.Explode(ctx, sec); err != nil {
					return err
				}
				donorCross := sec.CrossAt(slot)
				if _, err := s.ix.AddCross(ctx, donorCross, -moved); err != nil {
					return err
				}
				clusterCross := model.CrossSection{Hole: s.cluster, Shape: donorCross.Shape}
				if _, err := s.ix.AddCross(ctx, clusterCross, moved); err != nil {
					return err
				}
				if err := s.ix.SetSection(ctx, sec, c-moved); err != nil {
					return err
				}
				s.touch(sec.Key())
				s.props = append(s.props, propagation{cross: clusterCross, moved: moved})
				s.rep.Crosses++
				s.rep.Moved += moved
			}
		}
	}
	return nil
}

// reconstruct reassembles every propagated cluster cross into its
// section, adding to whatever count is already there, then collapses the
// doubly-nested donor contexts: a donor germ section that also mentions
// a donor becomes a single fully-substituted cluster section, and naive
// half-merged alternates are zeroed so every merge order reaches the
// same fixed point.
func (s *mergeStep) reconstruct(ctx context.Context) error {
	for _, pr := range s.props {
		sec := pr.cross.Reassemble()
		if _, err := s.ix.AddSection(ctx, sec, pr.moved); err != nil {
			return err
		}
		s.touch(sec.Key())
		s.rep.Rebuilt++
	}

	for _, d := range s.donors {
		for _, sec := range s.ix.SectionsOn(d) {
			if !s.mentionsDonor(sec.Seq) {
				continue
			}
			c, err := s.count(ctx, sec.Key())
			if err != nil {
				return err
			}
			if c <= 0 {
				continue
			}
			moved := s.moveFraction(d, c) * c

			seq := sec.Seq.ReplaceAll(s.donors[0], s.cluster).ReplaceAll(s.donors[1], s.cluster)
			full := model.Section{Germ: s.cluster, Seq: seq}
			if _, err := s.ix.AddSection(ctx, full, moved); err != nil {
				return err
			}
			if _, err := s.ix.AddSection(ctx, sec, -moved); err != nil {
				return err
			}
			s.touch(full.Key())
			s.touch(sec.Key())

			for _, alt := range []model.Section{
				{Germ: s.cluster, Seq: sec.Seq},
				{Germ: sec.Germ, Seq: seq},
			} {
				if _, ok := s.ix.Lookup(alt.Key()); !ok {
					continue
				}
				ac, err := s.count(ctx, alt.Key())
				if err != nil {
					return err
				}
				if err := s.ix.SetSection(ctx, alt, 0); err != nil {
					return err
				}
				s.touch(alt.Key())
				s.rep.Collected += ac
			}
			s.rep.TieBreaks++
			s.rep.Moved += moved
		}
	}
	return nil
}

// rebalance re-explodes every touched live section so all of its
// cross-sections carry the section's count again. Dead sections only
// sync crosses that already exist; collection removes them next.
func (s *mergeStep) rebalance(ctx context.Context) error {
	floor := s.gcFloor()
	it := s.touched.Iterator()
	for it.HasNext() {
		row, ok := s.ix.RowByID(it.Next())
		if !ok || row.Kind != sections.RowSection {
			continue
		}
		c, err := s.count(ctx, row.Section.Key())
		if err != nil {
			return err
		}
		if c > floor {
			if _, err := s.ix.Explode(ctx, row.Section); err != nil {
				return err
			}
			s.rep.Rebalanced++
			continue
		}
		for _, x := range row.Section.Explode() {
			if _, ok := s.ix.Lookup(x.Key()); !ok {
				continue
			}
			if err := s.ix.SetCross(ctx, x, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// collect deletes every touched row whose count sits at or below the
// noise floor. Sections and their cross-sections are checked
// independently; removing one never implies removing the other.
func (s *mergeStep) collect(ctx context.Context) error {
	floor := s.gcFloor()
	it := s.touched.Iterator()
	for it.HasNext() {
		row, ok := s.ix.RowByID(it.Next())
		if !ok || row.Kind != sections.RowSection {
			continue
		}
		sec := row.Section
		c, err := s.count(ctx, sec.Key())
		if err != nil {
			return err
		}
		if c <= floor {
			if err := s.ix.Remove(ctx, sec.Key()); err != nil {
				return err
			}
			s.rep.Deleted++
			s.rep.Collected += c
		}
		for _, x := range sec.Explode() {
			if _, ok := s.ix.Lookup(x.Key()); !ok {
				continue
			}
			xc, err := s.count(ctx, x.Key())
			if err != nil {
				return err
			}
			if xc <= floor {
				if err := s.ix.Remove(ctx, x.Key()); err != nil {
					return err
				}
				s.rep.Deleted++
			}
		}
	}
	return nil
}

func (s *mergeStep) count(ctx context.Context, key string) (float64, error) {
	return graphstore.Count(ctx, s.store, key)
}

// moveFraction returns the share of a donor row the step moves. Word
// donors keep a residual for their unmerged senses; cluster donors are
// intermediate aggregates and forward their whole mass, which keeps
// pairwise merges order-independent. Rows at or below the noise floor
// move whole rather than leave a negligible residue behind.
func (s *mergeStep) moveFraction(donor model.Entity, count float64) float64 {
	if count <= s.policy.NoiseFloor {
		return 1
	}
	if donor.Kind == model.EntityClass {
		return 1
	}
	return s.policy.Fraction
}

func (s *mergeStep) isDonor(e model.Entity) bool {
	return e.Key() == s.donors[0].Key() || e.Key() == s.donors[1].Key()
}

func (s *mergeStep) mentionsDonor(seq model.ConnectorSeq) bool {
	return seq.Mentions(s.donors[0]) || seq.Mentions(s.donors[1])
}

func (s *mergeStep) touch(key string) {
	if row, ok := s.ix.Lookup(key); ok {
		s.touched.Add(row.ID)
	}
}

func (s *mergeStep) gcFloor() float64 {
	if s.policy.NoiseFloor > 0 {
		return s.policy.NoiseFloor
	}
	return gcEpsilon
}

// germTotal sums the section counts anchored on the donors and the
// cluster. The five phases conserve it up to the mass reported in
// Collected.
func (s *mergeStep) germTotal(ctx context.Context) (float64, error) {
	total := 0.0
	for _, e := range []model.Entity{s.donors[0], s.donors[1], s.cluster} {
		for _, sec := range s.ix.SectionsOn(e) {
			c, err := s.count(ctx, sec.Key())
			if err != nil {
				return 0, err
			}
			total += c
		}
	}
	return total, nil
}
