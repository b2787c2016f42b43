package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadKey is returned when a store key cannot be parsed back into a model
// value. Keys are produced by the Key methods in this package; anything
// else in the store (or a truncated/corrupted key) fails with this error.
var ErrBadKey = errors.New("malformed store key")

// KeyClass reports the leading tag of a store key: 'P' for pairs, 'S' for
// sections, 'X' for cross-sections, 'M' for membership rows. Unknown keys
// return 0.
func KeyClass(key string) byte {
	if len(key) < 2 || key[1] != '(' {
		return 0
	}
	switch key[0] {
	case 'P', 'S', 'X', 'M':
		return key[0]
	}
	return 0
}

// ParsePairKey parses a key produced by Pair.Key.
func ParsePairKey(key string) (Pair, error) {
	body, err := keyBody(key, 'P')
	if err != nil {
		return Pair{}, err
	}
	colon := strings.IndexByte(body, ':')
	if colon <= 0 {
		return Pair{}, fmt.Errorf("%w: pair %q misses relation kind", ErrBadKey, key)
	}
	kind := PairKind(body[:colon])
	left, rest, err := parseEntity(body[colon+1:])
	if err != nil {
		return Pair{}, fmt.Errorf("%w: pair %q: %v", ErrBadKey, key, err)
	}
	if len(rest) == 0 || rest[0] != '|' {
		return Pair{}, fmt.Errorf("%w: pair %q misses separator", ErrBadKey, key)
	}
	right, rest, err := parseEntity(rest[1:])
	if err != nil {
		return Pair{}, fmt.Errorf("%w: pair %q: %v", ErrBadKey, key, err)
	}
	if rest != "" {
		return Pair{}, fmt.Errorf("%w: pair %q has trailing %q", ErrBadKey, key, rest)
	}
	return Pair{Kind: kind, Left: left, Right: right}, nil
}

// ParseSectionKey parses a key produced by Section.Key.
func ParseSectionKey(key string) (Section, error) {
	body, err := keyBody(key, 'S')
	if err != nil {
		return Section{}, err
	}
	germ, seq, _, rest, err := parseGermSeq(body, false)
	if err != nil {
		return Section{}, fmt.Errorf("%w: section %q: %v", ErrBadKey, key, err)
	}
	if rest != "" {
		return Section{}, fmt.Errorf("%w: section %q has trailing %q", ErrBadKey, key, rest)
	}
	return Section{Germ: germ, Seq: seq}, nil
}

// ParseCrossKey parses a key produced by CrossSection.Key. The target at
// the shape's masked slot is not recorded in the key, so it is left zero;
// Reassemble fills the slot from the hole and is unaffected.
func ParseCrossKey(key string) (CrossSection, error) {
	body, err := keyBody(key, 'X')
	if err != nil {
		return CrossSection{}, err
	}
	hole, rest, err := parseEntity(body)
	if err != nil {
		return CrossSection{}, fmt.Errorf("%w: cross %q: %v", ErrBadKey, key, err)
	}
	if !strings.HasPrefix(rest, "|H(") {
		return CrossSection{}, fmt.Errorf("%w: cross %q misses shape", ErrBadKey, key)
	}
	germ, seq, slot, rest, err := parseGermSeq(rest[3:], true)
	if err != nil {
		return CrossSection{}, fmt.Errorf("%w: cross %q: %v", ErrBadKey, key, err)
	}
	if rest != ")" {
		return CrossSection{}, fmt.Errorf("%w: cross %q has trailing %q", ErrBadKey, key, rest)
	}
	if slot < 0 {
		return CrossSection{}, fmt.Errorf("%w: cross %q has no open slot", ErrBadKey, key)
	}
	return CrossSection{Hole: hole, Shape: Shape{Germ: germ, Seq: seq, Slot: slot}}, nil
}

// ParseMembershipKey parses a key produced by Membership.Key.
func ParseMembershipKey(key string) (Membership, error) {
	body, err := keyBody(key, 'M')
	if err != nil {
		return Membership{}, err
	}
	class, rest, err := parseEntity(body)
	if err != nil {
		return Membership{}, fmt.Errorf("%w: membership %q: %v", ErrBadKey, key, err)
	}
	if len(rest) == 0 || rest[0] != '|' {
		return Membership{}, fmt.Errorf("%w: membership %q misses separator", ErrBadKey, key)
	}
	member, rest, err := parseEntity(rest[1:])
	if err != nil {
		return Membership{}, fmt.Errorf("%w: membership %q: %v", ErrBadKey, key, err)
	}
	if rest != "" {
		return Membership{}, fmt.Errorf("%w: membership %q has trailing %q", ErrBadKey, key, rest)
	}
	return Membership{Class: class, Member: member}, nil
}

// keyBody strips the "T(...)" wrapper and returns the body between the
// parentheses. For cross keys the closing paren of the embedded shape is
// kept, so parseGermSeq can detect it.
func keyBody(key string, tag byte) (string, error) {
	if len(key) < 3 || key[0] != tag || key[1] != '(' || key[len(key)-1] != ')' {
		return "", fmt.Errorf("%w: %q is not a %c-key", ErrBadKey, key, tag)
	}
	return key[2 : len(key)-1], nil
}

// parseGermSeq parses "germ|seq" up to the enclosing boundary. With masked
// set, a single "$" slot is accepted and its index returned; slot is -1
// when no mask was seen.
func parseGermSeq(s string, masked bool) (Entity, ConnectorSeq, int, string, error) {
	germ, rest, err := parseEntity(s)
	if err != nil {
		return Entity{}, nil, -1, "", err
	}
	if len(rest) == 0 || rest[0] != '|' {
		return Entity{}, nil, -1, "", errors.New("missing germ separator")
	}
	rest = rest[1:]

	var seq ConnectorSeq
	slot := -1
	for i := 0; ; i++ {
		if len(rest) == 0 {
			return Entity{}, nil, -1, "", errors.New("unterminated connector sequence")
		}
		var c Connector
		if masked && rest[0] == '$' {
			if slot >= 0 {
				return Entity{}, nil, -1, "", errors.New("more than one open slot")
			}
			slot = i
			rest = rest[1:]
		} else {
			var target Entity
			target, rest, err = parseEntity(rest)
			if err != nil {
				return Entity{}, nil, -1, "", err
			}
			c.Target = target
		}
		if len(rest) == 0 || !Direction(rest[0]).Valid() {
			return Entity{}, nil, -1, "", errors.New("missing connector direction")
		}
		c.Dir = Direction(rest[0])
		rest = rest[1:]
		seq = append(seq, c)

		if len(rest) == 0 {
			return germ, seq, slot, "", nil
		}
		switch rest[0] {
		case ',':
			rest = rest[1:]
		case ')':
			// End of an embedded shape; hand the paren back.
			return germ, seq, slot, rest, nil
		default:
			return Entity{}, nil, -1, "", fmt.Errorf("unexpected %q after connector", rest[0])
		}
	}
}

// parseEntity consumes one entity key from the front of s.
func parseEntity(s string) (Entity, string, error) {
	if s == "" {
		return Entity{}, "", errors.New("empty entity key")
	}
	if s[0] == '*' {
		return Wild, s[1:], nil
	}
	var kind EntityKind
	switch s[0] {
	case 'w':
		kind = EntityWord
	case 'g':
		kind = EntityClass
	default:
		return Entity{}, "", fmt.Errorf("unknown entity tag %q", s[0])
	}
	quoted, err := strconv.QuotedPrefix(s[1:])
	if err != nil {
		return Entity{}, "", fmt.Errorf("entity name not quoted: %v", err)
	}
	name, err := strconv.Unquote(quoted)
	if err != nil {
		return Entity{}, "", err
	}
	return Entity{Kind: kind, Name: name}, s[1+len(quoted):], nil
}
