package logparse

import (
	"bufio"
	"io"
	"iter"
)

// maxLineBytes bounds a single log line read by ReaderSource.
const maxLineBytes = 1024 * 1024

// LineSource yields log lines one at a time. Next returns io.EOF once the
// source is exhausted; any other error is passed through to the caller of
// Parser.Process untouched.
type LineSource interface {
	Next() (string, error)
}

// SliceSource serves lines from memory.
type SliceSource struct {
	lines []string
	pos   int
}

// Lines wraps an in-memory slice.
func Lines(lines []string) *SliceSource {
	return &SliceSource{lines: lines}
}

func (s *SliceSource) Next() (string, error) {
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return line, nil
}

// ReaderSource splits an io.Reader into newline-stripped lines.
type ReaderSource struct {
	scanner *bufio.Scanner
}

func NewReaderSource(r io.Reader) *ReaderSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &ReaderSource{scanner: sc}
}

func (s *ReaderSource) Next() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// SeqIterSource pulls lines from an iter.Seq. Call Close if the sequence is
// abandoned before it is exhausted.
type SeqIterSource struct {
	next func() (string, bool)
	stop func()
}

func SeqSource(seq iter.Seq[string]) *SeqIterSource {
	next, stop := iter.Pull(seq)
	return &SeqIterSource{next: next, stop: stop}
}

func (s *SeqIterSource) Next() (string, error) {
	line, ok := s.next()
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (s *SeqIterSource) Close() error {
	s.stop()
	return nil
}

// Window walks a LineSource once while letting the caller look ahead at the
// lines following the current one. Lines fetched by Context are queued and
// handed out again by Advance, so lookahead never skips or repeats a line.
type Window struct {
	src     LineSource
	pending []string
	width   int
	current string
	started bool
}

// NewWindow wraps src, exposing up to width lines of trailing context.
func NewWindow(src LineSource, width int) *Window {
	if width < 0 {
		width = 0
	}
	return &Window{src: src, width: width}
}

// Advance returns the next line, draining previously peeked lines first.
// It returns io.EOF once every line has been delivered.
func (w *Window) Advance() (string, error) {
	var line string
	if len(w.pending) > 0 {
		line = w.pending[0]
		w.pending[0] = ""
		w.pending = w.pending[1:]
	} else {
		var err error
		line, err = w.src.Next()
		if err != nil {
			return "", err
		}
	}
	w.current = line
	w.started = true
	return line, nil
}

// Current returns the most recently advanced line.
func (w *Window) Current() (string, bool) {
	return w.current, w.started
}

// Context returns the current line followed by up to width lines after it.
// The result is shorter when the source runs out. Calling Context does not
// change what Advance returns next.
func (w *Window) Context() ([]string, error) {
	out := make([]string, 0, w.width+1)
	if w.started {
		out = append(out, w.current)
	}
	for _, line := range w.pending {
		if len(out) == w.width+1 {
			return out, nil
		}
		out = append(out, line)
	}
	for len(out) < w.width+1 {
		line, err := w.src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		w.pending = append(w.pending, line)
		out = append(out, line)
	}
	return out, nil
}
