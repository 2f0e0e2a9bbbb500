package logparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a requested attribute is absent from a Message.
var ErrNotFound = errors.New("not found")

// Kind identifies which result list a Message belongs to.
type Kind int

const (
	KindNone Kind = iota
	KindMissingRef
	KindBadBox
	KindWarning
	KindError
	KindInfo
)

func (k Kind) String() string {
	switch k {
	case KindMissingRef:
		return "missing_ref"
	case KindBadBox:
		return "badbox"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindInfo:
		return "info"
	default:
		return "none"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "missing_ref", "missing_refs":
		return KindMissingRef, nil
	case "badbox", "badboxes":
		return KindBadBox, nil
	case "warning", "warnings":
		return KindWarning, nil
	case "error", "errors":
		return KindError, nil
	case "info", "infos":
		return KindInfo, nil
	}
	return KindNone, fmt.Errorf("unknown diagnostic kind %q", s)
}

// LineRange is the span of input lines a bad box was reported for.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r LineRange) String() string {
	return fmt.Sprintf("%d--%d", r.Start, r.End)
}

// Message is one classified diagnostic: a set of named attributes plus the
// raw lines around the line that triggered it.
type Message struct {
	info         map[string]string
	lines        *LineRange
	ContextLines []string
}

// NewMessage returns an empty Message.
func NewMessage() *Message {
	return &Message{info: make(map[string]string)}
}

// Get returns the attribute stored under key.
func (m *Message) Get(key string) (string, error) {
	v, ok := m.info[key]
	if !ok {
		return "", fmt.Errorf("item %q: %w", key, ErrNotFound)
	}
	return v, nil
}

// Set stores an attribute. Setting "lines" to "N--M" also updates LineRange.
func (m *Message) Set(key, value string) {
	if m.info == nil {
		m.info = make(map[string]string)
	}
	m.info[key] = value
	if key == "lines" {
		m.lines = parseLineRange(value)
	}
}

// Has reports whether key is set.
func (m *Message) Has(key string) bool {
	_, ok := m.info[key]
	return ok
}

// Keys returns the attribute names in sorted order.
func (m *Message) Keys() []string {
	keys := make([]string, 0, len(m.info))
	for k := range m.info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attributes returns a copy of all attributes.
func (m *Message) Attributes() map[string]string {
	out := make(map[string]string, len(m.info))
	for k, v := range m.info {
		out[k] = v
	}
	return out
}

// Lines returns the bad-box line range, if the log reported one.
func (m *Message) Lines() (LineRange, bool) {
	if m.lines == nil {
		return LineRange{}, false
	}
	return *m.lines, true
}

func (m *Message) setLines(start, end int) {
	r := LineRange{Start: start, End: end}
	m.lines = &r
	m.info["lines"] = r.String()
}

func (m *Message) String() string {
	return strings.Join(m.ContextLines, "\n")
}

type messageJSON struct {
	Attributes   map[string]string `json:"attributes"`
	Lines        *LineRange        `json:"lines,omitempty"`
	ContextLines []string          `json:"context_lines"`
}

func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		Attributes:   m.Attributes(),
		Lines:        m.lines,
		ContextLines: m.ContextLines,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var v messageJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.info = make(map[string]string, len(v.Attributes))
	m.lines = nil
	for k, val := range v.Attributes {
		m.Set(k, val)
	}
	m.ContextLines = v.ContextLines
	return nil
}

func parseLineRange(s string) *LineRange {
	a, b, ok := strings.Cut(s, "--")
	if !ok {
		return nil
	}
	start, err := strconv.Atoi(a)
	if err != nil {
		return nil
	}
	end, err := strconv.Atoi(b)
	if err != nil {
		return nil
	}
	return &LineRange{Start: start, End: end}
}
