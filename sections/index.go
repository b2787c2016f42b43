// Package sections maintains the structural index over Sections and
// CrossSections. Counts always live in the graphstore; the index keeps
// only parsed rows and roaring posting lists (germ to rows, connector
// target to rows) so the merge engine can answer "all sections on X" and
// "all sections mentioning X" without scanning the store.
//
// Cross-sections are materialized lazily by default: Explode writes them
// with the count of their section, which is also the rebalancing
// primitive. The eager option keeps them materialized on every
// observation.
package sections

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/coocgo/graphstore"
	"github.com/hupe1980/coocgo/model"
	"github.com/hupe1980/coocgo/resource"
)

// RowKind discriminates what an index row holds.
type RowKind uint8

const (
	// RowSection marks a row holding a Section.
	RowSection RowKind = iota + 1
	// RowCross marks a row holding a CrossSection.
	RowCross
)

// Row is one indexed section or cross-section. The ID is a dense uint32
// used in the posting lists; freed IDs are reused.
type Row struct {
	ID      uint32
	Kind    RowKind
	Section model.Section
	Cross   model.CrossSection
}

// Key returns the store key of the row.
func (r Row) Key() string {
	if r.Kind == RowCross {
		return r.Cross.Key()
	}
	return r.Section.Key()
}

// Option configures an Index.
type Option func(*options)

type options struct {
	rc    *resource.Controller
	eager bool
}

// WithController throttles LoadAll through the controller's IO budget.
func WithController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithEagerCross materializes the cross-sections of every observed
// section immediately instead of on demand. Costs one store write per
// connector per observation.
func WithEagerCross(eager bool) Option {
	return func(o *options) {
		o.eager = eager
	}
}

// Index is safe for concurrent use. Mutating calls write the store row
// first and register the index row only after the write succeeded.
type Index struct {
	store graphstore.Store
	rc    *resource.Controller
	eager bool

	mu     sync.RWMutex
	loadMu sync.Mutex
	loaded bool
	rows   map[uint32]Row
	byKey  map[string]uint32
	byGerm map[string]*roaring.Bitmap
	byConn map[string]*roaring.Bitmap
	next   uint32
	free   []uint32
}

// New creates an empty index on top of the given store.
func New(store graphstore.Store, optFns ...Option) *Index {
	var o options
	for _, fn := range optFns {
		fn(&o)
	}

	return &Index{
		store:  store,
		rc:     o.rc,
		eager:  o.eager,
		rows:   make(map[uint32]Row),
		byKey:  make(map[string]uint32),
		byGerm: make(map[string]*roaring.Bitmap),
		byConn: make(map[string]*roaring.Bitmap),
	}
}

// Observe counts one occurrence of every section asserted by the parse
// and returns the number of sections touched. Unlinked words yield no
// section. A malformed parse is rejected before any count moves.
func (ix *Index) Observe(ctx context.Context, p model.Parse) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	secs := p.Sections()
	for _, sec := range secs {
		if _, err := ix.AddSection(ctx, sec, 1); err != nil {
			return 0, err
		}
		if ix.eager {
			if _, err := ix.Explode(ctx, sec); err != nil {
				return 0, err
			}
		}
	}
	return len(secs), nil
}

// AddSection adds delta to the section's count, creating the store row
// and the index row on first use, and returns the new count.
func (ix *Index) AddSection(ctx context.Context, sec model.Section, delta float64) (float64, error) {
	count, err := graphstore.Ensure(ctx, ix.store, sec.Key(), delta, sec.Refs()...)
	if err != nil {
		return 0, err
	}
	ix.add(Row{Kind: RowSection, Section: sec})
	return count, nil
}

// SetSection overwrites the section's count, creating the row if needed.
// Computed statistics on the row are preserved.
func (ix *Index) SetSection(ctx context.Context, sec model.Section, count float64) error {
	if err := ix.setCount(ctx, sec.Key(), sec.Refs(), count); err != nil {
		return err
	}
	ix.add(Row{Kind: RowSection, Section: sec})
	return nil
}

// AddCross adds delta to the cross-section's count, creating the store
// row and the index row on first use, and returns the new count.
func (ix *Index) AddCross(ctx context.Context, x model.CrossSection, delta float64) (float64, error) {
	count, err := graphstore.Ensure(ctx, ix.store, x.Key(), delta, x.Refs()...)
	if err != nil {
		return 0, err
	}
	ix.add(Row{Kind: RowCross, Cross: x})
	return count, nil
}

// SetCross overwrites the cross-section's count, creating the row if
// needed.
func (ix *Index) SetCross(ctx context.Context, x model.CrossSection, count float64) error {
	if err := ix.setCount(ctx, x.Key(), x.Refs(), count); err != nil {
		return err
	}
	ix.add(Row{Kind: RowCross, Cross: x})
	return nil
}

// Explode materializes every cross-section of sec with the section's own
// count, restoring detailed balance for that section. Returns the number
// of cross-sections written.
func (ix *Index) Explode(ctx context.Context, sec model.Section) (int, error) {
	count, err := graphstore.Count(ctx, ix.store, sec.Key())
	if err != nil {
		return 0, err
	}

	crosses := sec.Explode()
	for _, x := range crosses {
		if err := ix.SetCross(ctx, x, count); err != nil {
			return 0, fmt.Errorf("explode %s: %w", sec, err)
		}
	}
	return len(crosses), nil
}

// ExplodeAll explodes every indexed section. Returns the total number of
// cross-sections written.
func (ix *Index) ExplodeAll(ctx context.Context) (int, error) {
	total := 0
	for _, sec := range ix.Sections() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := ix.Explode(ctx, sec)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// SectionsOn returns every indexed section whose germ is the given
// entity.
func (ix *Index) SectionsOn(germ model.Entity) []model.Section {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return ix.sectionsLocked(ix.byGerm[germ.Key()])
}

// SectionsMentioning returns every indexed section whose connector
// sequence targets the given entity, regardless of germ.
func (ix *Index) SectionsMentioning(target model.Entity) []model.Section {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return ix.sectionsLocked(ix.byConn[target.Key()])
}

// CrossesOn returns every indexed cross-section whose hole is the given
// entity.
func (ix *Index) CrossesOn(hole model.Entity) []model.CrossSection {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]model.CrossSection, 0)
	bm := ix.byGerm[hole.Key()]
	if bm == nil {
		return out
	}
	for _, id := range bm.ToArray() {
		if row, ok := ix.rows[id]; ok && row.Kind == RowCross {
			out = append(out, row.Cross)
		}
	}
	return out
}

// Sections returns a snapshot of every indexed section.
func (ix *Index) Sections() []model.Section {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]model.Section, 0, len(ix.rows))
	for _, row := range ix.rows {
		if row.Kind == RowSection {
			out = append(out, row.Section)
		}
	}
	return out
}

// Crosses returns a snapshot of every indexed cross-section.
func (ix *Index) Crosses() []model.CrossSection {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]model.CrossSection, 0)
	for _, row := range ix.rows {
		if row.Kind == RowCross {
			out = append(out, row.Cross)
		}
	}
	return out
}

// Lookup returns the index row stored under key.
func (ix *Index) Lookup(key string) (Row, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	id, ok := ix.byKey[key]
	if !ok {
		return Row{}, false
	}
	return ix.rows[id], true
}

// RowByID returns the row behind a posting-list ID. IDs are reused after
// Remove, so hold no ID across mutations.
func (ix *Index) RowByID(id uint32) (Row, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	row, ok := ix.rows[id]
	return row, ok
}

// Adopt indexes an existing store row without writing to the store. The
// reconciliation path uses it to re-register rows found by an incoming-set
// walk; the assigned ID is ignored.
func (ix *Index) Adopt(row Row) {
	ix.add(row)
}

// Counts returns the number of indexed sections and cross-sections.
func (ix *Index) Counts() (sections, crosses int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, row := range ix.rows {
		if row.Kind == RowSection {
			sections++
		} else {
			crosses++
		}
	}
	return sections, crosses
}

// Remove deletes the row under key in two explicit phases: unlink it
// from the posting lists, then delete the store row. A key absent from
// either side is not an error, so interrupted removals can be replayed.
func (ix *Index) Remove(ctx context.Context, key string) error {
	ix.mu.Lock()
	if id, ok := ix.byKey[key]; ok {
		ix.unlinkLocked(id)
	}
	ix.mu.Unlock()

	if err := ix.store.Delete(ctx, key); err != nil && !errors.Is(err, graphstore.ErrNotFound) {
		return err
	}
	return nil
}

// LoadAll rebuilds the index from a full store scan. It blocks until
// complete and is cancellable as a whole via ctx; repeat calls are
// no-ops once loaded.
func (ix *Index) LoadAll(ctx context.Context) error {
	ix.loadMu.Lock()
	defer ix.loadMu.Unlock()

	if ix.Loaded() {
		return nil
	}

	fresh := New(ix.store)
	err := ix.store.Scan(ctx, "S(", func(r graphstore.Row) error {
		if err := ix.rc.AcquireIO(ctx, len(r.Key)); err != nil {
			return err
		}
		sec, err := model.ParseSectionKey(r.Key)
		if err != nil {
			return err
		}
		fresh.add(Row{Kind: RowSection, Section: sec})
		return nil
	})
	if err != nil {
		return fmt.Errorf("load sections: %w", err)
	}

	err = ix.store.Scan(ctx, "X(", func(r graphstore.Row) error {
		if err := ix.rc.AcquireIO(ctx, len(r.Key)); err != nil {
			return err
		}
		x, err := model.ParseCrossKey(r.Key)
		if err != nil {
			return err
		}
		fresh.add(Row{Kind: RowCross, Cross: x})
		return nil
	})
	if err != nil {
		return fmt.Errorf("load cross-sections: %w", err)
	}

	ix.mu.Lock()
	ix.rows = fresh.rows
	ix.byKey = fresh.byKey
	ix.byGerm = fresh.byGerm
	ix.byConn = fresh.byConn
	ix.next = fresh.next
	ix.free = nil
	ix.loaded = true
	ix.mu.Unlock()
	return nil
}

// Loaded reports whether LoadAll has completed.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return ix.loaded
}

func (ix *Index) sectionsLocked(bm *roaring.Bitmap) []model.Section {
	out := make([]model.Section, 0)
	if bm == nil {
		return out
	}
	for _, id := range bm.ToArray() {
		if row, ok := ix.rows[id]; ok && row.Kind == RowSection {
			out = append(out, row.Section)
		}
	}
	return out
}

// add registers a row, reusing a freed ID when available. Registering an
// already-indexed key is a no-op.
func (ix *Index) add(row Row) {
	key := row.Key()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.byKey[key]; ok {
		return
	}

	if n := len(ix.free); n > 0 {
		row.ID = ix.free[n-1]
		ix.free = ix.free[:n-1]
	} else {
		row.ID = ix.next
		ix.next++
	}

	ix.rows[row.ID] = row
	ix.byKey[key] = row.ID
	ix.postLocked(ix.byGerm, ix.anchorKey(row), row.ID)
	for _, conn := range ix.connKeys(row) {
		ix.postLocked(ix.byConn, conn, row.ID)
	}
}

func (ix *Index) unlinkLocked(id uint32) {
	row, ok := ix.rows[id]
	if !ok {
		return
	}

	ix.unpostLocked(ix.byGerm, ix.anchorKey(row), id)
	for _, conn := range ix.connKeys(row) {
		ix.unpostLocked(ix.byConn, conn, id)
	}
	delete(ix.byKey, row.Key())
	delete(ix.rows, id)
	ix.free = append(ix.free, id)
}

// anchorKey is the entity a row is looked up by: the germ for sections,
// the hole for cross-sections.
func (ix *Index) anchorKey(row Row) string {
	if row.Kind == RowCross {
		return row.Cross.Hole.Key()
	}
	return row.Section.Germ.Key()
}

// connKeys are the remaining participants: connector targets for
// sections, the shape germ plus unmasked targets for cross-sections.
func (ix *Index) connKeys(row Row) []string {
	if row.Kind == RowSection {
		keys := make([]string, 0, len(row.Section.Seq))
		for _, c := range row.Section.Seq {
			keys = append(keys, c.Target.Key())
		}
		return keys
	}

	keys := make([]string, 0, len(row.Cross.Shape.Seq))
	keys = append(keys, row.Cross.Shape.Germ.Key())
	for i, c := range row.Cross.Shape.Seq {
		if i == row.Cross.Shape.Slot {
			continue
		}
		keys = append(keys, c.Target.Key())
	}
	return keys
}

func (ix *Index) postLocked(index map[string]*roaring.Bitmap, key string, id uint32) {
	bm, ok := index[key]
	if !ok {
		bm = roaring.New()
		index[key] = bm
	}
	bm.Add(id)
}

func (ix *Index) unpostLocked(index map[string]*roaring.Bitmap, key string, id uint32) {
	bm, ok := index[key]
	if !ok {
		return
	}
	bm.Remove(id)
	if bm.IsEmpty() {
		delete(index, key)
	}
}

// setCount overwrites the count of a row, creating it when missing and
// leaving any computed statistic in place.
func (ix *Index) setCount(ctx context.Context, key string, refs []string, count float64) error {
	if err := ix.store.Create(ctx, key, refs...); err != nil {
		return err
	}
	v, _, err := ix.store.Lookup(ctx, key)
	if err != nil {
		return err
	}
	v.Count = count
	return ix.store.SetValue(ctx, key, v)
}
