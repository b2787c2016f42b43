package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSection() Section {
	return Section{
		Germ: Word("dog"),
		Seq: ConnectorSeq{
			{Dir: DirLeft, Target: Word("the")},
			{Dir: DirRight, Target: Word("barks")},
		},
	}
}

func TestSection_Key(t *testing.T) {
	assert.Equal(t, `S(w"dog"|w"the"-,w"barks"+)`, testSection().Key())
}

func TestSection_Refs(t *testing.T) {
	s := testSection()
	assert.Equal(t, []string{`w"dog"`, `w"the"`, `w"barks"`}, s.Refs())

	// A germ that also appears as a target is listed once.
	loop := Section{
		Germ: Word("dog"),
		Seq: ConnectorSeq{
			{Dir: DirLeft, Target: Word("the")},
			{Dir: DirRight, Target: Word("dog")},
		},
	}
	assert.Equal(t, []string{`w"dog"`, `w"the"`}, loop.Refs())
}

func TestSection_Explode(t *testing.T) {
	s := testSection()

	crosses := s.Explode()
	require.Len(t, crosses, 2)

	assert.Equal(t, Word("the"), crosses[0].Hole)
	assert.Equal(t, 0, crosses[0].Shape.Slot)
	assert.Equal(t, `X(w"the"|H(w"dog"|$-,w"barks"+))`, crosses[0].Key())

	assert.Equal(t, Word("barks"), crosses[1].Hole)
	assert.Equal(t, 1, crosses[1].Shape.Slot)
	assert.Equal(t, `X(w"barks"|H(w"dog"|w"the"-,$+))`, crosses[1].Key())
}

func TestCrossSection_Reassemble(t *testing.T) {
	s := testSection()

	for i, x := range s.Explode() {
		assert.Equal(t, s, x.Reassemble(), "slot %d", i)
		assert.Equal(t, s.Key(), x.Reassemble().Key(), "slot %d", i)
	}
}

func TestSection_CrossAt(t *testing.T) {
	s := testSection()

	x := s.CrossAt(1)

	assert.Equal(t, Word("barks"), x.Hole)
	assert.Equal(t, s.Explode()[1], x)
}

func TestShape_Key_MasksOnlyTarget(t *testing.T) {
	a := Section{
		Germ: Word("dog"),
		Seq: ConnectorSeq{
			{Dir: DirLeft, Target: Word("the")},
			{Dir: DirRight, Target: Word("barks")},
		},
	}
	b := Section{
		Germ: Word("dog"),
		Seq: ConnectorSeq{
			{Dir: DirLeft, Target: Word("a")},
			{Dir: DirRight, Target: Word("barks")},
		},
	}

	// Masking slot 0 erases the only difference.
	assert.Equal(t, a.CrossAt(0).Shape.Key(), b.CrossAt(0).Shape.Key())

	// Masking slot 1 keeps it.
	assert.NotEqual(t, a.CrossAt(1).Shape.Key(), b.CrossAt(1).Shape.Key())
}

func TestCrossSection_Refs(t *testing.T) {
	x := testSection().CrossAt(0)
	assert.Equal(t, []string{`w"the"`, `w"dog"`, `w"barks"`}, x.Refs())
}

func TestMembership_Key(t *testing.T) {
	m := Membership{Class: Class("cat", "dog"), Member: Word("dog")}

	assert.Equal(t, `M(g"cat dog"|w"dog")`, m.Key())
	assert.Equal(t, []string{`g"cat dog"`, `w"dog"`}, m.Refs())
}
