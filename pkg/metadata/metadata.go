// Package metadata builds and writes the search-index attribute document.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/daniel-butler/entity-meta/pkg/aggregate"
	"github.com/daniel-butler/entity-meta/pkg/ner"
)

// DefaultSourceBaseURL prefixes the derived page name in _source_uri.
const DefaultSourceBaseURL = "https://en.wikipedia.org/wiki/"

// SourceURIKey is the attribute holding the document's source URI.
const SourceURIKey = "_source_uri"

// Document is the attribute object written for one input file.
type Document struct {
	Attributes map[string]any `json:"Attributes"`
}

// SourceURI derives the source URI from a file name: the last path segment
// without its extension, with '#' replaced by '/', appended to baseURL.
func SourceURI(baseURL, filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return baseURL + strings.ReplaceAll(name, "#", "/")
}

// Build assembles the document. Every category gets a key, empty or not.
func Build(result *aggregate.Result, sourceURI string) Document {
	attrs := make(map[string]any, len(ner.Categories())+1)
	for _, c := range ner.Categories() {
		selected := []string{}
		if result != nil {
			if s := result.Selected(c); s != nil {
				selected = s
			}
		}
		attrs[c.String()] = selected
	}
	attrs[SourceURIKey] = sourceURI
	return Document{Attributes: attrs}
}

type writeOptions struct {
	ascii bool
}

// Option configures Write.
type Option func(*writeOptions)

// WithASCII controls whether non-ASCII characters are escaped as \uXXXX.
func WithASCII(ascii bool) Option {
	return func(o *writeOptions) {
		o.ascii = ascii
	}
}

// Write serializes doc as JSON with sorted keys and 4-space indentation,
// followed by a newline. Non-ASCII characters are escaped unless disabled
// with WithASCII(false).
func Write(w io.Writer, doc Document, opts ...Option) error {
	o := writeOptions{ascii: true}
	for _, opt := range opts {
		opt(&o)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	out := buf.Bytes()
	if o.ascii {
		out = escapeNonASCII(out)
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// escapeNonASCII rewrites every non-ASCII rune as a JSON \u escape, using
// surrogate pairs outside the Basic Multilingual Plane. Encoded JSON only
// carries such runes inside strings, so the result stays valid.
func escapeNonASCII(b []byte) []byte {
	if !hasNonASCII(b) {
		return b
	}

	var out bytes.Buffer
	out.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r < utf8.RuneSelf {
			out.WriteRune(r)
			continue
		}
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}

func hasNonASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return true
		}
	}
	return false
}
