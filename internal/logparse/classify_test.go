package logparse

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		kind  Kind
		attrs map[string]string
	}{
		{
			name: "underfull vbox detected at line",
			line: `Underfull \vbox (badness 1234) detected at line 19`,
			kind: KindBadBox,
			attrs: map[string]string{
				"type": "Under", "direction": "v", "by": "1234", "lines": "19--19",
			},
		},
		{
			name: "overfull hbox in paragraph",
			line: `Overfull \hbox (54.95697pt too wide) in paragraph at lines 397--397`,
			kind: KindBadBox,
			attrs: map[string]string{
				"type": "Over", "direction": "h", "by": "54.95697pt", "lines": "397--397",
			},
		},
		{
			name: "underfull hbox range",
			line: `Underfull \hbox (badness 1234) in paragraph at lines 9--10`,
			kind: KindBadBox,
			attrs: map[string]string{
				"type": "Under", "direction": "h", "by": "1234", "lines": "9--10",
			},
		},
		{
			name: "overfull vbox while output active",
			line: `Overfull \vbox (19.05511pt too high) has occurred while \output is active []`,
			kind: KindBadBox,
			attrs: map[string]string{
				"type": "Over", "direction": "v", "by": "19.05511pt",
			},
		},
		{
			name: "package warning",
			line: "Package hyperref Warning: Draft mode on.",
			kind: KindWarning,
			attrs: map[string]string{
				"type": "Package", "package": "hyperref", "message": "Draft mode on.",
			},
		},
		{
			name: "class warning",
			line: "Class memoir Warning: Unknown option.",
			kind: KindWarning,
			attrs: map[string]string{
				"type": "Class", "class": "memoir", "message": "Unknown option.",
			},
		},
		{
			name: "latex font warning",
			line: "LaTeX Font Warning: Font shape `OT1/cmr/bx/it' undefined",
			kind: KindWarning,
			attrs: map[string]string{
				"type": "LaTeX", "component": "Font", "message": "Font shape `OT1/cmr/bx/it' undefined",
			},
		},
		{
			name: "latex warning without component",
			line: "LaTeX Warning: Label(s) may have changed. Rerun to get cross-references right.",
			kind: KindWarning,
			attrs: map[string]string{
				"type": "LaTeX", "message": "Label(s) may have changed. Rerun to get cross-references right.",
			},
		},
		{
			name: "pdftex warning with extra",
			line: `pdfTeX warning (\pdffontattr): font is not in use`,
			kind: KindWarning,
			attrs: map[string]string{
				"type": "pdfTeX", "extra": `\pdffontattr`, "message": "font is not in use",
			},
		},
		{
			name: "untyped error",
			line: "! Too many }'s.",
			kind: KindError,
			attrs: map[string]string{
				"message": "Too many }'s.",
			},
		},
		{
			name: "latex error",
			line: "! LaTeX Error: File `foobar.sty' not found.",
			kind: KindError,
			attrs: map[string]string{
				"type": "LaTeX", "message": "File `foobar.sty' not found.",
			},
		},
		{
			name: "package error",
			line: "! Package babel Error: Unknown option `latin'. Either you misspelled it",
			kind: KindError,
			attrs: map[string]string{
				"type": "Package", "package": "babel", "message": "Unknown option `latin'. Either you misspelled it",
			},
		},
		{
			name: "pdftex error with extra",
			line: `! pdfTeX error (\pdfsetmatrix): Unrecognized format..`,
			kind: KindError,
			attrs: map[string]string{
				"type": "pdfTeX", "extra": `\pdfsetmatrix`, "message": "Unrecognized format..",
			},
		},
		{
			name: "missing citation",
			line: "LaTeX Warning: Citation `foo' on page 1 undefined on input line 7.",
			kind: KindMissingRef,
			attrs: map[string]string{
				"type": "Missing Citation", "key": "foo", "page": "1", "line": "7",
			},
		},
		{
			name: "missing reference",
			line: "LaTeX Warning: Reference `fig:plot' on page 12 undefined on input line 301.",
			kind: KindMissingRef,
			attrs: map[string]string{
				"type": "Missing Reference", "key": "fig:plot", "page": "12", "line": "301",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, msg, ok := Classify(tt.line)
			if !ok {
				t.Fatalf("Classify(%q) did not match", tt.line)
			}
			if kind != tt.kind {
				t.Errorf("kind = %v, want %v", kind, tt.kind)
			}
			if got := msg.Attributes(); !reflect.DeepEqual(got, tt.attrs) {
				t.Errorf("attributes = %v, want %v", got, tt.attrs)
			}
		})
	}
}

func TestClassify_NoMatch(t *testing.T) {
	for _, line := range []string{
		"",
		" BLANK",
		"(./main.aux)",
		"Package hyperref Info: Hyper figures OFF on input line 4.",
		"Output written on main.pdf (3 pages, 41234 bytes).",
	} {
		if kind, msg, ok := Classify(line); ok {
			t.Errorf("Classify(%q) = %v %v, want no match", line, kind, msg.Attributes())
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	line := "Package natbib Warning: Citation `x' on page 2 undefined on input line 9."
	_, a, _ := Classify(line)
	_, b, _ := Classify(line)
	if !reflect.DeepEqual(a.Attributes(), b.Attributes()) {
		t.Errorf("repeat classification differs: %v vs %v", a.Attributes(), b.Attributes())
	}
}

func TestClassify_MissingRefBeforeWarning(t *testing.T) {
	// Also a valid LaTeX warning line; the missing-reference shape must win.
	kind, _, _ := Classify("LaTeX Warning: Citation `foo' on page 1 undefined on input line 7.")
	if kind != KindMissingRef {
		t.Errorf("kind = %v, want %v", kind, KindMissingRef)
	}
}

func TestClassify_BadBoxLineRange(t *testing.T) {
	_, msg, _ := Classify(`Underfull \hbox (badness 1234) in paragraph at lines 9--10`)
	r, ok := msg.Lines()
	if !ok {
		t.Fatal("expected line range")
	}
	if r != (LineRange{Start: 9, End: 10}) {
		t.Errorf("Lines() = %+v, want 9--10", r)
	}

	_, msg, _ = Classify(`Underfull \vbox (badness 1234) has occurred while \output is active []`)
	if _, ok := msg.Lines(); ok {
		t.Error("expected no line range while output is active")
	}
	if _, err := msg.Get("lines"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(lines) err = %v, want ErrNotFound", err)
	}
}

func TestClassify_MissingAttribute(t *testing.T) {
	_, msg, _ := Classify(`Overfull \hbox (54.95697pt too wide) in paragraph at lines 397--397`)
	_, err := msg.Get("package")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(package) err = %v, want ErrNotFound", err)
	}
	if got := err.Error(); got != `item "package": not found` {
		t.Errorf("error = %q", got)
	}
}

func TestClassify_Infos(t *testing.T) {
	kind, msg, ok := classify("Package hyperref Info: Hyper figures OFF on input line 4.", true)
	if !ok || kind != KindInfo {
		t.Fatalf("expected info match, got %v %v", kind, ok)
	}
	if v, _ := msg.Get("package"); v != "hyperref" {
		t.Errorf("package = %q, want hyperref", v)
	}
}
