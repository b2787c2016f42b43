package model

import (
	"fmt"
	"strings"
)

// Section is one observed combinatorial usage of a germ: the germ entity
// together with the connector sequence it was seen with. Its count lives in
// the observation store under Key.
type Section struct {
	Germ Entity
	Seq  ConnectorSeq
}

// Key returns the stable store key of the section.
func (s Section) Key() string {
	return "S(" + s.Germ.Key() + "|" + s.Seq.Key() + ")"
}

// String returns a human-readable form of the section.
func (s Section) String() string {
	return fmt.Sprintf("%s: (%s)", s.Germ, s.Seq)
}

// Refs returns the keys of every entity participating in the section: the
// germ plus each connector target, deduplicated. Stores index rows by these
// keys to serve incoming-set queries.
func (s Section) Refs() []string {
	return dedupKeys(s.Germ, targetsOf(s.Seq)...)
}

// Explode returns the cross-sections of the section, one per connector
// slot. Each cross-section carries the slot's target as its hole and the
// section with that slot masked as its shape. The caller is responsible for
// giving every returned cross-section the same count as the section.
func (s Section) Explode() []CrossSection {
	out := make([]CrossSection, len(s.Seq))
	for i, c := range s.Seq {
		out[i] = CrossSection{
			Hole:  c.Target,
			Shape: Shape{Germ: s.Germ, Seq: s.Seq, Slot: i},
		}
	}
	return out
}

// CrossAt returns the single cross-section obtained by masking the given
// connector slot.
func (s Section) CrossAt(slot int) CrossSection {
	return CrossSection{
		Hole:  s.Seq[slot].Target,
		Shape: Shape{Germ: s.Germ, Seq: s.Seq, Slot: slot},
	}
}

// Shape is a section template with exactly one connector slot left open.
// The slot's direction is kept; only its target is masked out.
type Shape struct {
	Germ Entity
	Seq  ConnectorSeq
	Slot int
}

// Key returns the stable store key of the shape. The masked slot renders as
// the "$" variable marker, so two sections differing only in that slot's
// target produce the same shape key.
func (h Shape) Key() string {
	parts := make([]string, len(h.Seq))
	for i, c := range h.Seq {
		if i == h.Slot {
			parts[i] = "$" + string(c.Dir)
		} else {
			parts[i] = c.Key()
		}
	}
	return "H(" + h.Germ.Key() + "|" + strings.Join(parts, ",") + ")"
}

// String returns a human-readable form of the shape.
func (h Shape) String() string {
	parts := make([]string, len(h.Seq))
	for i, c := range h.Seq {
		if i == h.Slot {
			parts[i] = "$" + string(c.Dir)
		} else {
			parts[i] = c.String()
		}
	}
	return fmt.Sprintf("%s: (%s)", h.Germ, strings.Join(parts, " & "))
}

// CrossSection is the dual view of a section, keyed by one participant (the
// hole) and the shape it occupies. It has its own count row, kept equal to
// the count of the section it was exploded from.
type CrossSection struct {
	Hole  Entity
	Shape Shape
}

// Key returns the stable store key of the cross-section.
func (x CrossSection) Key() string {
	return "X(" + x.Hole.Key() + "|" + x.Shape.Key() + ")"
}

// String returns a human-readable form of the cross-section.
func (x CrossSection) String() string {
	return fmt.Sprintf("%s @ %s", x.Hole, x.Shape)
}

// Refs returns the keys of every entity participating in the cross-section.
func (x CrossSection) Refs() []string {
	return dedupKeys(x.Hole, append([]Entity{x.Shape.Germ}, targetsOf(x.Shape.Seq)...)...)
}

// Reassemble substitutes the hole back into the shape's open slot and
// returns the resulting section. Reassemble(Explode(s)[i]) == s for every
// slot i.
func (x CrossSection) Reassemble() Section {
	return Section{
		Germ: x.Shape.Germ,
		Seq:  x.Shape.Seq.ReplaceTarget(x.Shape.Slot, x.Hole),
	}
}

// Membership marks a word (or an absorbed class) as a member of a cluster
// class. Membership rows make merges idempotent: re-merging an existing
// member is a no-op.
type Membership struct {
	Class  Entity
	Member Entity
}

// Key returns the stable store key of the membership row.
func (m Membership) Key() string {
	return "M(" + m.Class.Key() + "|" + m.Member.Key() + ")"
}

// Refs returns the keys of the class and the member.
func (m Membership) Refs() []string {
	return dedupKeys(m.Class, m.Member)
}

func targetsOf(seq ConnectorSeq) []Entity {
	out := make([]Entity, len(seq))
	for i, c := range seq {
		out[i] = c.Target
	}
	return out
}

func dedupKeys(first Entity, rest ...Entity) []string {
	seen := make(map[string]struct{}, 1+len(rest))
	out := make([]string, 0, 1+len(rest))
	for _, e := range append([]Entity{first}, rest...) {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
