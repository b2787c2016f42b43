package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedParse is returned when an observed parse fails validation.
var ErrMalformedParse = errors.New("malformed parse")

// Link is an undirected edge between two word positions of a parse,
// optionally tagged with a parser-assigned label.
type Link struct {
	Left  int
	Right int
	Label string
}

// Parse is one observation unit: a tokenized sentence plus the links a
// parser asserted between its word positions. Links reference positions,
// not tokens, so repeated words stay distinguishable.
type Parse struct {
	Words []string
	Links []Link
}

// Validate checks the parse for structural problems: an empty sentence,
// empty tokens, link endpoints out of range, self links, and inverted
// links (Left must be the smaller position).
func (p Parse) Validate() error {
	if len(p.Words) == 0 {
		return fmt.Errorf("%w: no words", ErrMalformedParse)
	}
	for i, w := range p.Words {
		if w == "" {
			return fmt.Errorf("%w: empty word at position %d", ErrMalformedParse, i)
		}
	}
	for _, l := range p.Links {
		if l.Left < 0 || l.Left >= len(p.Words) || l.Right < 0 || l.Right >= len(p.Words) {
			return fmt.Errorf("%w: link %d-%d out of range [0,%d)", ErrMalformedParse, l.Left, l.Right, len(p.Words))
		}
		if l.Left == l.Right {
			return fmt.Errorf("%w: self link at position %d", ErrMalformedParse, l.Left)
		}
		if l.Left > l.Right {
			return fmt.Errorf("%w: inverted link %d-%d", ErrMalformedParse, l.Left, l.Right)
		}
	}
	return nil
}

// WordAt returns the word entity at position i.
func (p Parse) WordAt(i int) Entity {
	return Word(p.Words[i])
}

// Linked reports whether position i participates in at least one link.
func (p Parse) Linked(i int) bool {
	for _, l := range p.Links {
		if l.Left == i || l.Right == i {
			return true
		}
	}
	return false
}

// Disjunct builds the connector sequence of the word at position i from
// the links incident to it. Connectors are ordered by the far word's
// position, so the sequence reads the sentence left to right; words
// earlier than i yield left connectors and later words right connectors.
// A position with no links yields an empty sequence.
func (p Parse) Disjunct(i int) ConnectorSeq {
	type far struct {
		pos int
		c   Connector
	}
	var fars []far
	for _, l := range p.Links {
		switch i {
		case l.Right:
			fars = append(fars, far{pos: l.Left, c: Connector{Dir: DirLeft, Target: p.WordAt(l.Left)}})
		case l.Left:
			fars = append(fars, far{pos: l.Right, c: Connector{Dir: DirRight, Target: p.WordAt(l.Right)}})
		}
	}
	sort.SliceStable(fars, func(a, b int) bool { return fars[a].pos < fars[b].pos })
	seq := make(ConnectorSeq, len(fars))
	for j, f := range fars {
		seq[j] = f.c
	}
	return seq
}

// Sections builds one section per linked word of the parse. Unlinked
// words carry no combinatorial information and are skipped.
func (p Parse) Sections() []Section {
	var out []Section
	for i := range p.Words {
		seq := p.Disjunct(i)
		if len(seq) == 0 {
			continue
		}
		out = append(out, Section{Germ: p.WordAt(i), Seq: seq})
	}
	return out
}
