// Package filter suppresses classified diagnostics that match user patterns.
package filter

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/lucasnoah/texlog/internal/logparse"
)

// Policy maps an attribute name to the patterns that suppress a message
// when they match that attribute's value.
type Policy map[string][]*regexp.Regexp

// Compile builds a Policy. Patterns are anchored at the start of the value
// but not at the end.
func Compile(spec map[string][]string) (Policy, error) {
	p := make(Policy, len(spec))
	for attr, patterns := range spec {
		for _, pat := range patterns {
			re, err := regexp.Compile(`^(?:` + pat + `)`)
			if err != nil {
				return nil, fmt.Errorf("filter %s: invalid pattern %q: %w", attr, pat, err)
			}
			p[attr] = append(p[attr], re)
		}
	}
	return p, nil
}

// Suppressed reports whether any attribute of m matches one of the
// patterns registered for it.
func (p Policy) Suppressed(m *logparse.Message) bool {
	for attr, patterns := range p {
		v, err := m.Get(attr)
		if err != nil {
			continue
		}
		for _, re := range patterns {
			if re.MatchString(v) {
				return true
			}
		}
	}
	return false
}

// Apply splits msgs into kept messages and a count of suppressed ones.
func (p Policy) Apply(msgs []*logparse.Message) ([]*logparse.Message, int) {
	if len(p) == 0 {
		return msgs, 0
	}
	kept := make([]*logparse.Message, 0, len(msgs))
	ignored := 0
	for _, m := range msgs {
		if p.Suppressed(m) {
			ignored++
			continue
		}
		kept = append(kept, m)
	}
	return kept, ignored
}

// Attributes returns the attribute names the policy inspects, sorted.
func (p Policy) Attributes() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Set holds one Policy per diagnostic kind.
type Set map[logparse.Kind]Policy

// Spec is the uncompiled form of a Set as it appears in configuration.
type Spec struct {
	Warnings    map[string][]string `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Errors      map[string][]string `yaml:"errors,omitempty" json:"errors,omitempty"`
	BadBoxes    map[string][]string `yaml:"badboxes,omitempty" json:"badboxes,omitempty"`
	MissingRefs map[string][]string `yaml:"missing_refs,omitempty" json:"missing_refs,omitempty"`
	Infos       map[string][]string `yaml:"infos,omitempty" json:"infos,omitempty"`
}

// CompileSet compiles every kind in spec.
func CompileSet(spec Spec) (Set, error) {
	set := make(Set)
	for _, e := range []struct {
		kind logparse.Kind
		spec map[string][]string
	}{
		{logparse.KindWarning, spec.Warnings},
		{logparse.KindError, spec.Errors},
		{logparse.KindBadBox, spec.BadBoxes},
		{logparse.KindMissingRef, spec.MissingRefs},
		{logparse.KindInfo, spec.Infos},
	} {
		if len(e.spec) == 0 {
			continue
		}
		p, err := Compile(e.spec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.kind, err)
		}
		set[e.kind] = p
	}
	return set, nil
}

// Apply filters msgs with the policy for kind. A nil Set keeps everything.
func (s Set) Apply(kind logparse.Kind, msgs []*logparse.Message) ([]*logparse.Message, int) {
	return s[kind].Apply(msgs)
}
