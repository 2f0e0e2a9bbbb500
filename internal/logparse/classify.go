package logparse

import (
	"regexp"
	"strconv"
)

var (
	// This is pdfTeX, Version 3.141592653-2.6-1.40.25 (TeX Live 2023) ...
	engineRe = regexp.MustCompile(`^This is (\w+), Version ([\w.-]+)`)

	// LaTeX Warning: Citation `knuth84' on page 3 undefined on input line 41.
	missingRefRe = regexp.MustCompile("^LaTeX Warning: (Citation|Reference) `([^']+)' on page (\\d+) undefined on input line (\\d+)\\.")

	// Overfull \hbox (54.95697pt too wide) in paragraph at lines 397--397
	// Underfull \vbox (badness 1234) detected at line 19
	// Overfull \vbox (3.0pt too high) has occurred while \output is active [12]
	badBoxRe = regexp.MustCompile(`^(Over|Under)full ` +
		`\\([hv])box ` +
		`\((?:badness (\d+)|(\d+(?:\.\d+)?pt) too \w+)\) (?:` +
		`(?:(?:in paragraph|in alignment|detected) ` +
		`(?:at lines (\d+)--(\d+)|at line (\d+)))` +
		`|(?:has occurred while [\\]output is active [\[](\d+)?[\]]))`)

	// Package hyperref Warning: Draft mode on.
	// LaTeX Font Warning: Font shape `OT1/cmr/bx/it' undefined
	warningRe = regexp.MustCompile(`^((?:\w*)TeX|Package|Class)(?: (\w+))? [wW]arning(?: \(([\\]?\w+)\))?: (.*)`)

	// ! LaTeX Error: File `foo.sty' not found.
	// ! Undefined control sequence.
	errorRe = regexp.MustCompile(`^(?:! ((?:\w*)TeX|Package|Class)(?: (\w+))? [eE]rror(?: \(([\\]?\w+)\))?: (.*)|! (.*))`)

	// Package hyperref Info: Hyper figures OFF on input line 4.
	infoRe = regexp.MustCompile(`^((?:\w*)TeX|Package|Class)(?: (\w+))? [iI]nfo(?: \(([\\]?\w+)\))?: (.*)`)
)

// classifier pairs a line pattern with the function that turns a match into
// a Message. Order matters: earlier patterns are more specific.
type classifier struct {
	kind  Kind
	re    *regexp.Regexp
	build func(m []string) *Message
}

var classifiers = []classifier{
	{KindMissingRef, missingRefRe, buildMissingRef},
	{KindBadBox, badBoxRe, buildBadBox},
	{KindWarning, warningRe, buildTyped},
	{KindError, errorRe, buildError},
}

var infoClassifier = classifier{KindInfo, infoRe, buildTyped}

// Classify matches one log line against the known diagnostic shapes and
// returns the first hit. Context lines are not attached.
func Classify(line string) (Kind, *Message, bool) {
	return classify(line, false)
}

func classify(line string, infos bool) (Kind, *Message, bool) {
	for _, c := range classifiers {
		if m := c.re.FindStringSubmatch(line); m != nil {
			return c.kind, c.build(m), true
		}
	}
	if infos {
		if m := infoClassifier.re.FindStringSubmatch(line); m != nil {
			return KindInfo, infoClassifier.build(m), true
		}
	}
	return KindNone, nil, false
}

func buildMissingRef(m []string) *Message {
	msg := NewMessage()
	msg.Set("type", "Missing "+m[1])
	msg.Set("key", m[2])
	msg.Set("page", m[3])
	msg.Set("line", m[4])
	return msg
}

// Groups: 1 over/under, 2 direction, 3 badness, 4 size,
// 5-6 line range, 7 single line, 8 output page.
func buildBadBox(m []string) *Message {
	msg := NewMessage()
	msg.Set("type", m[1])
	msg.Set("direction", m[2])
	if m[3] != "" {
		msg.Set("by", m[3])
	} else {
		msg.Set("by", m[4])
	}

	switch {
	case m[7] != "":
		n, _ := strconv.Atoi(m[7])
		msg.setLines(n, n)
	case m[5] != "":
		start, _ := strconv.Atoi(m[5])
		end, _ := strconv.Atoi(m[6])
		msg.setLines(start, end)
	}
	return msg
}

// buildTyped handles warnings and infos. Groups: 1 kind, 2 name,
// 3 extra, 4 message.
func buildTyped(m []string) *Message {
	msg := NewMessage()
	setOrigin(msg, m[1], m[2], m[3])
	msg.Set("message", m[4])
	return msg
}

// Groups 1-4 as buildTyped for typed errors, 5 for bare "! message".
func buildError(m []string) *Message {
	msg := NewMessage()
	if m[1] == "" {
		msg.Set("message", m[5])
		return msg
	}
	setOrigin(msg, m[1], m[2], m[3])
	msg.Set("message", m[4])
	return msg
}

func setOrigin(msg *Message, kind, name, extra string) {
	msg.Set("type", kind)
	switch {
	case kind == "Package":
		msg.Set("package", name)
	case kind == "Class":
		msg.Set("class", name)
	case name != "":
		msg.Set("component", name)
	}
	if extra != "" {
		msg.Set("extra", extra)
	}
}
