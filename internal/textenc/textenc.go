// Package textenc detects and decodes the character encoding of engine logs.
package textenc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Canonical encoding names.
const (
	Auto        = "auto"
	UTF8        = "utf-8"
	UTF16LE     = "utf-16le"
	UTF16BE     = "utf-16be"
	Latin1      = "latin-1"
	Windows1252 = "windows-1252"
)

// chunkBytes is the read size used when scanning a file for its encoding.
const chunkBytes = 64 * 1024

var known = map[string]struct {
	name string
	enc  encoding.Encoding
}{
	"utf-8":        {UTF8, unicode.UTF8},
	"utf8":         {UTF8, unicode.UTF8},
	"utf-16le":     {UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	"utf-16be":     {UTF16BE, unicode.UTF16(unicode.BigEndian, unicode.UseBOM)},
	"utf-16":       {UTF16LE, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)},
	"latin-1":      {Latin1, charmap.ISO8859_1},
	"latin1":       {Latin1, charmap.ISO8859_1},
	"iso-8859-1":   {Latin1, charmap.ISO8859_1},
	"windows-1252": {Windows1252, charmap.Windows1252},
	"cp1252":       {Windows1252, charmap.Windows1252},
}

// Lookup resolves an encoding label. Labels not in the built-in table are
// resolved through the WHATWG index.
func Lookup(name string) (encoding.Encoding, string, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if e, ok := known[strings.ReplaceAll(label, "_", "-")]; ok {
		return e.enc, e.name, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = label
	}
	return enc, canonical, nil
}

// Valid reports whether name is Auto or a resolvable label.
func Valid(name string) bool {
	if name == "" || name == Auto {
		return true
	}
	_, _, err := Lookup(name)
	return err == nil
}

// Detect guesses the encoding of a log sample. A BOM wins; otherwise valid
// UTF-8 is UTF-8 and anything else is taken as Latin-1, which is what 8-bit
// TeX engines emit.
func Detect(sample []byte) string {
	switch {
	case bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}):
		return UTF8
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return UTF16LE
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return UTF16BE
	}
	if validUTF8Prefix(sample) {
		return UTF8
	}
	return Latin1
}

// validUTF8Prefix tolerates a rune cut off at the end of a truncated sample.
func validUTF8Prefix(b []byte) bool {
	return utf8.Valid(b[:len(b)-partialRune(b)])
}

// partialRune returns the length of an incomplete rune at the end of b, or 0
// when b ends on a rune boundary.
func partialRune(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return 0
		}
		return i
	}
	return 0
}

// DetectReader is Detect over all of r, read in chunks. A rune split
// between chunks is carried into the next one.
func DetectReader(r io.Reader) (string, error) {
	buf := make([]byte, chunkBytes+utf8.UTFMax)
	carry := 0
	first := true
	for {
		n, err := io.ReadFull(r, buf[carry:carry+chunkBytes])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return "", err
		}
		data := buf[:carry+n]
		if first {
			first = false
			if enc := Detect(data); enc != UTF8 || bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
				return enc, nil
			}
		}
		tail := partialRune(data)
		if !utf8.Valid(data[:len(data)-tail]) {
			return Latin1, nil
		}
		if err != nil {
			// A rune cut off at end of input is tolerated, as in Detect.
			return UTF8, nil
		}
		carry = copy(buf, data[len(data)-tail:])
	}
}

// NewReader decodes r from the named encoding into UTF-8.
func NewReader(r io.Reader, name string) (io.Reader, string, error) {
	enc, canonical, err := Lookup(name)
	if err != nil {
		return nil, "", err
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), canonical, nil
}

// Decoded is an open log file producing UTF-8 text.
type Decoded struct {
	io.Reader
	Encoding string
	file     *os.File
}

func (d *Decoded) Close() error {
	return d.file.Close()
}

// Open opens path and decodes it. An empty name or Auto scans the whole file
// with DetectReader before decoding from the start.
func Open(path, name string) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	if name == "" || name == Auto {
		name, err = DetectReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read log: %w", err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("rewind log: %w", err)
		}
	}

	r, canonical, err := NewReader(f, name)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Decoded{Reader: r, Encoding: canonical, file: f}, nil
}
