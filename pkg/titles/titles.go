// Package titles encodes and decodes the reserved titles used inside the
// collections root: the current-collection pointer ("CurrentBB:<name>") and
// the tokens a collection name may never contain.
package titles

import (
	"fmt"
	"strings"

	"github.com/coregx/ahocorasick"
)

// Defaults match the layout written by the Bookmark Bar Switcher extension.
const (
	DefaultTag       = "CurrentBB"
	DefaultSeparator = ":"
)

// Matcher finds reserved tokens inside a title in a single pass.
type Matcher struct {
	ac       *ahocorasick.Automaton
	patterns []string
}

// NewMatcher compiles the non-empty tokens into an Aho-Corasick automaton.
func NewMatcher(tokens []string) (*Matcher, error) {
	m := &Matcher{}
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		m.patterns = append(m.patterns, t)
	}
	if len(m.patterns) == 0 {
		return m, nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(m.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		Build()
	if err != nil {
		return nil, fmt.Errorf("titles: compile reserved tokens: %w", err)
	}
	m.ac = ac
	return m, nil
}

// First returns the reserved token that occurs earliest in s.
func (m *Matcher) First(s string) (string, bool) {
	if m == nil || m.ac == nil || s == "" {
		return "", false
	}
	matches := m.ac.FindAllOverlapping([]byte(s))
	if len(matches) == 0 {
		return "", false
	}
	best := matches[0]
	for _, mt := range matches[1:] {
		if mt.Start < best.Start || (mt.Start == best.Start && mt.End > best.End) {
			best = mt
		}
	}
	return m.patterns[best.PatternID], true
}

// Tokens returns the compiled tokens.
func (m *Matcher) Tokens() []string {
	return append([]string(nil), m.patterns...)
}

// Codec formats and parses pointer titles and checks names for reserved tokens.
type Codec struct {
	tag      string
	sep      string
	reserved *Matcher
}

// NewCodec builds a codec. The separator is always reserved; extra tokens
// are reserved in addition.
func NewCodec(tag, sep string, extraReserved ...string) (*Codec, error) {
	if tag == "" || sep == "" {
		return nil, fmt.Errorf("titles: tag and separator are required")
	}
	if strings.Contains(tag, sep) {
		return nil, fmt.Errorf("titles: tag %q contains separator %q", tag, sep)
	}
	m, err := NewMatcher(append([]string{sep}, extraReserved...))
	if err != nil {
		return nil, err
	}
	return &Codec{tag: tag, sep: sep, reserved: m}, nil
}

// MustCodec is NewCodec for constant arguments.
func MustCodec(tag, sep string, extraReserved ...string) *Codec {
	c, err := NewCodec(tag, sep, extraReserved...)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the codec for "CurrentBB:<name>".
func Default() *Codec {
	return MustCodec(DefaultTag, DefaultSeparator)
}

// Separator returns the separator.
func (c *Codec) Separator() string { return c.sep }

// Prefix returns "<tag><sep>", the prefix every pointer title starts with.
func (c *Codec) Prefix() string { return c.tag + c.sep }

// Pointer formats the pointer title for name.
func (c *Codec) Pointer(name string) string { return c.Prefix() + name }

// ParsePointer reports whether title is pointer-shaped and returns the
// encoded name. Anything after a second separator is ignored.
func (c *Codec) ParsePointer(title string) (string, bool) {
	rest, ok := strings.CutPrefix(title, c.Prefix())
	if !ok {
		return "", false
	}
	if i := strings.Index(rest, c.sep); i >= 0 {
		rest = rest[:i]
	}
	return rest, true
}

// Reserved returns the first reserved token contained in name.
func (c *Codec) Reserved(name string) (string, bool) {
	return c.reserved.First(name)
}
