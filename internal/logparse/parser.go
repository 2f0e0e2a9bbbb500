// Package logparse classifies the lines of a TeX engine log into errors,
// warnings, bad boxes, and missing references in a single streaming pass.
package logparse

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// DefaultContextLines is the number of lines kept after each diagnostic.
const DefaultContextLines = 2

// nonUnicodeEngines write 8-bit output that is usually not valid UTF-8.
var nonUnicodeEngines = []string{"TeX", "eTeX", "pdfTeX"}

// EngineHeader is the engine banner found on the first line of a log.
type EngineHeader struct {
	Engine  string `json:"engine"`
	Version string `json:"version"`
}

// Advisory is a non-fatal hint raised while parsing.
type Advisory struct {
	Engine   string `json:"engine"`
	Encoding string `json:"encoding"`
	Message  string `json:"message"`
}

// Parser accumulates diagnostics from one or more log passes. A Parser is
// not safe for concurrent use; run one Parser per log instead.
type Parser struct {
	Errors      []*Message
	Warnings    []*Message
	BadBoxes    []*Message
	MissingRefs []*Message
	Infos       []*Message

	Engine     *EngineHeader
	Advisories []Advisory

	contextLines   int
	includeInfos   bool
	sourceEncoding string
	logger         *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithContextLines sets how many lines after a diagnostic are kept.
// Zero keeps only the triggering line.
func WithContextLines(n int) Option {
	return func(p *Parser) {
		if n >= 0 {
			p.contextLines = n
		}
	}
}

// WithInfos enables collection of "... Info: ..." lines into Infos.
func WithInfos(enabled bool) Option {
	return func(p *Parser) { p.includeInfos = enabled }
}

// WithSourceEncoding records the encoding the log was decoded with. It only
// affects whether the non-Unicode engine advisory is raised.
func WithSourceEncoding(name string) Option {
	return func(p *Parser) { p.sourceEncoding = name }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Parser with the default context width of two lines.
func New(opts ...Option) *Parser {
	p := &Parser{
		contextLines: DefaultContextLines,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ContextLines returns the configured context width.
func (p *Parser) ContextLines() int {
	return p.contextLines
}

// Process reads src to the end, classifying every non-blank line. The first
// line is checked for an engine banner; when it is not one it is classified
// like any other line. Errors from src other than io.EOF are returned as is.
func (p *Parser) Process(src LineSource) error {
	w := NewWindow(src, p.contextLines)

	first := true
	for {
		line, err := w.Advance()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			if p.probeHeader(line) {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		kind, msg, ok := classify(line, p.includeInfos)
		if !ok {
			continue
		}
		ctx, err := w.Context()
		if err != nil {
			return err
		}
		msg.ContextLines = ctx
		p.add(kind, msg)
	}
}

// ProcessLines is Process over an in-memory slice.
func (p *Parser) ProcessLines(lines []string) error {
	return p.Process(Lines(lines))
}

// ProcessReader is Process over newline-separated text.
func (p *Parser) ProcessReader(r io.Reader) error {
	return p.Process(NewReaderSource(r))
}

func (p *Parser) probeHeader(line string) bool {
	m := engineRe.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	p.Engine = &EngineHeader{Engine: m[1], Version: m[2]}
	p.logger.Debug("engine banner", "engine", m[1], "version", m[2])

	if slices.Contains(nonUnicodeEngines, m[1]) && isUTF8(p.sourceEncoding) {
		adv := Advisory{
			Engine:   m[1],
			Encoding: p.sourceEncoding,
			Message: fmt.Sprintf("reading output of non-unicode engine %s as %s will likely fail to decode; "+
				"consider reading the log as latin-1", m[1], p.sourceEncoding),
		}
		p.Advisories = append(p.Advisories, adv)
		p.logger.Warn("non-unicode engine read as utf-8", "engine", m[1], "encoding", p.sourceEncoding)
	}
	return true
}

func isUTF8(name string) bool {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		return true
	}
	return false
}

func (p *Parser) add(kind Kind, msg *Message) {
	switch kind {
	case KindMissingRef:
		p.MissingRefs = append(p.MissingRefs, msg)
	case KindBadBox:
		p.BadBoxes = append(p.BadBoxes, msg)
	case KindWarning:
		p.Warnings = append(p.Warnings, msg)
	case KindError:
		p.Errors = append(p.Errors, msg)
	case KindInfo:
		p.Infos = append(p.Infos, msg)
	}
}

// All returns the result list for kind.
func (p *Parser) All(kind Kind) []*Message {
	switch kind {
	case KindMissingRef:
		return p.MissingRefs
	case KindBadBox:
		return p.BadBoxes
	case KindWarning:
		return p.Warnings
	case KindError:
		return p.Errors
	case KindInfo:
		return p.Infos
	}
	return nil
}

// Counts holds the number of diagnostics of each kind.
type Counts struct {
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	BadBoxes    int `json:"badboxes"`
	MissingRefs int `json:"missing_refs"`
	Infos       int `json:"infos,omitempty"`
}

func (p *Parser) Counts() Counts {
	return Counts{
		Errors:      len(p.Errors),
		Warnings:    len(p.Warnings),
		BadBoxes:    len(p.BadBoxes),
		MissingRefs: len(p.MissingRefs),
		Infos:       len(p.Infos),
	}
}

func (p *Parser) String() string {
	return fmt.Sprintf("Errors: %d, Warnings: %d, Badboxes: %d",
		len(p.Errors), len(p.Warnings), len(p.BadBoxes))
}
