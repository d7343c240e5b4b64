// Package textio reads and writes plain text in legacy Chinese encodings.
// Everything inside the converter is UTF-8; this package sits at the file
// and stdin/stdout boundary.
package textio

import (
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/FocuswithJustin/zhconv/core/errors"
)

// DefaultEncoding is used when no encoding is named.
const DefaultEncoding = "utf-8"

// Codec is a named text encoding.
type Codec struct {
	name string
	enc  encoding.Encoding
}

var builtin = map[string]encoding.Encoding{
	"utf-8":     unicode.UTF8,
	"utf8":      unicode.UTF8,
	"utf-8-sig": unicode.UTF8BOM,
	"utf-8-bom": unicode.UTF8BOM,
	"utf-16":    unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
	"utf-16le":  unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":  unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

// Lookup returns the codec for name. Besides the UTF variants it accepts
// every WHATWG label, e.g. gbk, gb18030, big5, shift_jis and euc-kr.
func Lookup(name string) (*Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultEncoding
	}
	if enc, ok := builtin[key]; ok {
		return &Codec{name: key, enc: enc}, nil
	}
	enc, err := htmlindex.Get(key)
	if err != nil {
		return nil, &errors.UnsupportedError{Feature: "encoding", Reason: name, Err: errors.ErrUnsupported}
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = key
	}
	return &Codec{name: strings.ToLower(canonical), enc: enc}, nil
}

// Name returns the canonical encoding name.
func (c *Codec) Name() string { return c.name }

// NewReader decodes r to UTF-8. A leading byte order mark selects UTF-8 or
// UTF-16 regardless of the codec and is dropped.
func (c *Codec) NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(c.enc.NewDecoder()))
}

// ReadAll decodes everything in r.
func ReadAll(r io.Reader, name string) (string, error) {
	c, err := Lookup(name)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(c.NewReader(r))
	if err != nil {
		return "", errors.NewIO("decode", c.name, err)
	}
	return string(data), nil
}

// WriteString encodes s to w. Runes the target encoding cannot represent
// fail the write.
func WriteString(w io.Writer, s, name string) error {
	c, err := Lookup(name)
	if err != nil {
		return err
	}
	out, _, err := transform.String(c.enc.NewEncoder(), s)
	if err != nil {
		return errors.NewIO("encode", c.name, err)
	}
	if _, err := io.WriteString(w, out); err != nil {
		return errors.NewIO("write", c.name, err)
	}
	return nil
}
