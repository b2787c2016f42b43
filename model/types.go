package model

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// EntityKind distinguishes the three entity flavors kept in the store.
type EntityKind uint8

const (
	// EntityWord is an atomic symbol observed directly in parsed text.
	EntityWord EntityKind = iota

	// EntityClass is a synthesized cluster entity produced by merging.
	// It is never observed directly.
	EntityClass

	// EntityAny is the wildcard marker used by marginal rows.
	EntityAny
)

// String returns a string representation of the EntityKind.
func (k EntityKind) String() string {
	switch k {
	case EntityWord:
		return "Word"
	case EntityClass:
		return "Class"
	case EntityAny:
		return "Any"
	default:
		return "Unknown"
	}
}

// Entity is an opaque, globally unique symbol identified by a stable key.
type Entity struct {
	Kind EntityKind
	Name string
}

// Wild is the wildcard entity. It replaces one side of a pair to form a
// marginal row and never appears inside a connector sequence.
var Wild = Entity{Kind: EntityAny, Name: "*"}

// Word returns a word entity for the given token.
func Word(name string) Entity {
	return Entity{Kind: EntityWord, Name: name}
}

// Class returns the cluster entity for the given member words. The name is
// deterministic (sorted unique member names joined by a space), so building
// the class for the same member set twice yields the same entity.
func Class(members ...string) Entity {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	return Entity{Kind: EntityClass, Name: strings.Join(sorted, " ")}
}

// ClassOf returns the cluster entity covering all member words of a and b.
// Word entities contribute their name; class entities contribute their
// member set, so growing a class keeps the deterministic naming.
func ClassOf(a, b Entity) Entity {
	var members []string
	for _, e := range []Entity{a, b} {
		if e.Kind == EntityClass {
			members = append(members, strings.Fields(e.Name)...)
		} else {
			members = append(members, e.Name)
		}
	}
	return Class(members...)
}

// IsWild reports whether the entity is the wildcard marker.
func (e Entity) IsWild() bool {
	return e.Kind == EntityAny
}

// Key returns the stable store key of the entity.
func (e Entity) Key() string {
	switch e.Kind {
	case EntityWord:
		return "w" + strconv.Quote(e.Name)
	case EntityClass:
		return "g" + strconv.Quote(e.Name)
	case EntityAny:
		return "*"
	default:
		return "?" + strconv.Quote(e.Name)
	}
}

// String returns a human-readable form of the entity.
func (e Entity) String() string {
	if e.IsWild() {
		return "*"
	}
	if e.Kind == EntityClass {
		return "{" + e.Name + "}"
	}
	return e.Name
}

// Direction marks which side of its germ a connector points to.
type Direction byte

const (
	// DirLeft points at an entity earlier in the sentence.
	DirLeft Direction = '-'

	// DirRight points at an entity later in the sentence.
	DirRight Direction = '+'
)

// Valid reports whether the direction is one of the two legal markers.
func (d Direction) Valid() bool {
	return d == DirLeft || d == DirRight
}

// String returns the direction marker as a string.
func (d Direction) String() string { return string(d) }

// Connector is a directional reference to another entity, attached to a
// germ as one element of its connector sequence.
type Connector struct {
	Dir    Direction
	Target Entity
}

// Key returns the stable store key fragment of the connector.
func (c Connector) Key() string {
	return c.Target.Key() + string(c.Dir)
}

// String returns a human-readable form of the connector.
func (c Connector) String() string {
	return c.Target.String() + string(c.Dir)
}

// ConnectorSeq is an ordered connector list describing one way a germ
// combines with its neighbors (a disjunct).
type ConnectorSeq []Connector

// Key returns the stable store key fragment of the sequence.
func (s ConnectorSeq) Key() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Key()
	}
	return strings.Join(parts, ",")
}

// String returns a human-readable form of the sequence.
func (s ConnectorSeq) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, " & ")
}

// Clone returns a copy that shares no storage with the receiver.
func (s ConnectorSeq) Clone() ConnectorSeq {
	out := make(ConnectorSeq, len(s))
	copy(out, s)
	return out
}

// Slots returns the indexes of every connector whose target equals e.
func (s ConnectorSeq) Slots(e Entity) []int {
	var slots []int
	for i, c := range s {
		if c.Target == e {
			slots = append(slots, i)
		}
	}
	return slots
}

// Mentions reports whether any connector targets e.
func (s ConnectorSeq) Mentions(e Entity) bool {
	for _, c := range s {
		if c.Target == e {
			return true
		}
	}
	return false
}

// ReplaceTarget returns a copy of the sequence with the connector at the
// given slot retargeted to e. The direction is preserved.
func (s ConnectorSeq) ReplaceTarget(slot int, e Entity) ConnectorSeq {
	out := s.Clone()
	out[slot].Target = e
	return out
}

// ReplaceAll returns a copy with every connector targeting old retargeted
// to next. Directions are preserved.
func (s ConnectorSeq) ReplaceAll(old, next Entity) ConnectorSeq {
	out := s.Clone()
	for i := range out {
		if out[i].Target == old {
			out[i].Target = next
		}
	}
	return out
}

// PairKind names the relation a pair is counted under. Multiple kinds may
// coexist for the same entity pair, each with an independent count.
type PairKind string

const (
	// PairAnyLink counts word pairs joined by a parser-asserted link.
	PairAnyLink PairKind = "any"

	// PairClique counts every word pair co-occurring in a sentence,
	// regardless of link structure.
	PairClique PairKind = "clique"
)

// CliqueDistance returns the relation kind holding the per-distance
// sub-count for clique pairs exactly d positions apart.
func CliqueDistance(d int) PairKind {
	return PairKind("clique-d" + strconv.Itoa(d))
}

// Pair is an ordered (left, right) entity tuple under a relation kind.
// A Wild entity on either side turns the pair into a marginal row.
type Pair struct {
	Kind  PairKind
	Left  Entity
	Right Entity
}

// Key returns the stable store key of the pair.
func (p Pair) Key() string {
	return "P(" + string(p.Kind) + ":" + p.Left.Key() + "|" + p.Right.Key() + ")"
}

// String returns a human-readable form of the pair.
func (p Pair) String() string {
	return fmt.Sprintf("(%s: %s, %s)", p.Kind, p.Left, p.Right)
}

// IsMarginal reports whether either side is the wildcard marker.
func (p Pair) IsMarginal() bool {
	return p.Left.IsWild() || p.Right.IsWild()
}
