// Package report renders parsed logs for people (text) and tools (JSON).
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/lucasnoah/texlog/internal/filter"
	"github.com/lucasnoah/texlog/internal/logparse"
)

// Entry is a diagnostic that survived filtering, with its position in the
// unfiltered list.
type Entry struct {
	Index   int               `json:"index"`
	Message *logparse.Message `json:"message"`
}

// Section is the filtered view of one result list.
type Section struct {
	Kind    string  `json:"kind"`
	Title   string  `json:"title"`
	Total   int     `json:"total"`
	Ignored int     `json:"ignored"`
	Entries []Entry `json:"entries"`

	label string
}

// Report is everything known about one parsed log.
type Report struct {
	Source     string                 `json:"source"`
	Encoding   string                 `json:"encoding,omitempty"`
	Engine     *logparse.EngineHeader `json:"engine,omitempty"`
	Summary    string                 `json:"summary"`
	Counts     logparse.Counts        `json:"counts"`
	Advisories []logparse.Advisory    `json:"advisories,omitempty"`
	Sections   []Section              `json:"sections"`
}

var sectionOrder = []struct {
	kind  logparse.Kind
	title string
	label string
}{
	{logparse.KindWarning, "Warnings", "Warning"},
	{logparse.KindError, "Errors", "Error"},
	{logparse.KindBadBox, "Bad boxes", "Bad box"},
	{logparse.KindMissingRef, "Missing references", "Missing reference"},
	{logparse.KindInfo, "Infos", "Info"},
}

// Build applies filters to the parser's results. Infos are only included
// when the parser collected any.
func Build(source, encoding string, p *logparse.Parser, filters filter.Set) *Report {
	r := &Report{
		Source:     source,
		Encoding:   encoding,
		Engine:     p.Engine,
		Summary:    p.String(),
		Counts:     p.Counts(),
		Advisories: p.Advisories,
	}
	for _, s := range sectionOrder {
		all := p.All(s.kind)
		if s.kind == logparse.KindInfo && len(all) == 0 {
			continue
		}
		sec := Section{
			Kind:    s.kind.String(),
			Title:   s.title,
			Total:   len(all),
			Entries: []Entry{},
			label:   s.label,
		}
		policy := filters[s.kind]
		for i, m := range all {
			if policy.Suppressed(m) {
				sec.Ignored++
				continue
			}
			sec.Entries = append(sec.Entries, Entry{Index: i + 1, Message: m})
		}
		r.Sections = append(r.Sections, sec)
	}
	return r
}

// Kept returns the per-kind counts after filtering.
func (r *Report) Kept() logparse.Counts {
	var c logparse.Counts
	for _, s := range r.Sections {
		n := len(s.Entries)
		switch s.Kind {
		case logparse.KindError.String():
			c.Errors = n
		case logparse.KindWarning.String():
			c.Warnings = n
		case logparse.KindBadBox.String():
			c.BadBoxes = n
		case logparse.KindMissingRef.String():
			c.MissingRefs = n
		case logparse.KindInfo.String():
			c.Infos = n
		}
	}
	return c
}

// Options controls text rendering.
type Options struct {
	Color       bool
	ShowContext bool
}

type palette struct {
	caption, heading, warn, err, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		caption: color.New(color.Bold),
		heading: color.New(color.Bold, color.Underline),
		warn:    color.New(color.FgYellow),
		err:     color.New(color.FgRed, color.Bold),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.caption, p.heading, p.warn, p.err, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// WriteText renders r in the classic layout: a boxed caption with the log
// name, the summary line, then one section per diagnostic kind.
func WriteText(w io.Writer, r *Report, opts Options) error {
	pal := newPalette(opts.Color)
	var b strings.Builder

	frame := "    " + r.Source + "    "
	bar := strings.Repeat("=", len(frame))
	fmt.Fprintln(&b, pal.caption.Sprint(bar))
	fmt.Fprintln(&b, pal.caption.Sprint(frame))
	fmt.Fprintln(&b, pal.caption.Sprint(bar))
	fmt.Fprintln(&b)

	heading(&b, pal, "Summary")
	fmt.Fprintln(&b, r.Summary)
	if r.Engine != nil {
		fmt.Fprintf(&b, "Engine: %s %s\n", r.Engine.Engine, r.Engine.Version)
	}
	if r.Encoding != "" {
		fmt.Fprintf(&b, "Encoding: %s\n", r.Encoding)
	}
	for _, a := range r.Advisories {
		fmt.Fprintln(&b, pal.warn.Sprint("Advisory: "+a.Message))
	}
	fmt.Fprintln(&b)

	for _, sec := range r.Sections {
		heading(&b, pal, sec.Title)
		if sec.Total == 0 {
			fmt.Fprintln(&b, "None found.")
		}
		tone := pal.warn
		if sec.Kind == logparse.KindError.String() {
			tone = pal.err
		}
		for _, e := range sec.Entries {
			writeEntry(&b, pal, tone, sec, e, opts.ShowContext)
		}
		if sec.Total > 0 {
			fmt.Fprintf(&b, "%d %s were ignored.\n", sec.Ignored, sec.Title)
		}
		fmt.Fprintln(&b)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func heading(b *strings.Builder, pal palette, title string) {
	fmt.Fprintln(b, pal.heading.Sprint(title))
	fmt.Fprintln(b, strings.Repeat("-", len(title)))
}

func writeEntry(b *strings.Builder, pal palette, tone *color.Color, sec Section, e Entry, showContext bool) {
	m := e.Message
	typ, _ := m.Get("type")
	fmt.Fprintln(b, tone.Sprintf("%s %d/%d (Type %s)", sec.label, e.Index, sec.Total, typ))

	text, err := m.Get("message")
	if err != nil && len(m.ContextLines) > 0 {
		text = m.ContextLines[0]
	}
	fmt.Fprintln(b, text)

	for _, k := range m.Keys() {
		if k == "type" || k == "message" {
			continue
		}
		v, _ := m.Get(k)
		fmt.Fprintf(b, "%s: %s\n", k, v)
	}
	if showContext {
		for _, line := range m.ContextLines {
			fmt.Fprintln(b, pal.dim.Sprint("  | "+line))
		}
	}
	fmt.Fprintln(b)
}

// WriteJSON writes reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
