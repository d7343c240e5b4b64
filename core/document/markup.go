package document

import (
	"bytes"
	stdxml "encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/FocuswithJustin/zhconv/core/encoding"
)

// SegmentKind selects how a converted segment is escaped on reinsertion.
type SegmentKind int

const (
	// KindXML is character data of an XML document.
	KindXML SegmentKind = iota
	// KindHTML is a text token of an HTML document.
	KindHTML
)

// TextSegment is one run of human-readable text inside an entry payload.
// Start and End are byte offsets of the raw (still escaped) text; Text is
// the decoded value.
type TextSegment struct {
	Start int
	End   int
	Text  string
	Kind  SegmentKind
	CDATA bool
}

// Markup locates the text runs of one entry and writes converted runs back
// without touching anything else in the payload.
type Markup interface {
	ExtractTextRuns(payload []byte) ([]TextSegment, error)
	Reinsert(payload []byte, segs []TextSegment, converted []string) ([]byte, error)
}

// selector reports whether character data directly inside the innermost
// element of stack is human-readable text.
type selector func(stack []stdxml.Name) bool

// xmlMarkup walks a well-formed XML payload with encoding/xml and records
// the byte range of every selected character-data token.
type xmlMarkup struct {
	selects      selector
	htmlEntities bool
}

func (m xmlMarkup) ExtractTextRuns(payload []byte) ([]TextSegment, error) {
	d := stdxml.NewDecoder(bytes.NewReader(payload))
	d.Strict = true
	if m.htmlEntities {
		d.Entity = stdxml.HTMLEntity
	}

	var (
		segs  []TextSegment
		stack []stdxml.Name
	)
	for {
		start := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, col := d.InputPos()
			return nil, fmt.Errorf("line %d column %d: %w", line, col, err)
		}

		switch t := tok.(type) {
		case stdxml.StartElement:
			stack = append(stack, t.Name)
		case stdxml.EndElement:
			stack = stack[:len(stack)-1]
		case stdxml.CharData:
			if len(stack) == 0 || !m.selects(stack) || strings.TrimSpace(string(t)) == "" {
				continue
			}
			end := d.InputOffset()
			raw := payload[start:end]
			seg := TextSegment{
				Start: int(start),
				End:   int(end),
				Text:  string(t),
				Kind:  KindXML,
				CDATA: bytes.HasPrefix(raw, []byte("<![CDATA[")),
			}
			if bytes.IndexByte(raw, '\r') >= 0 {
				if seg.Text, err = m.keepCR(raw, seg.CDATA); err != nil {
					line, col := d.InputPos()
					return nil, fmt.Errorf("line %d column %d: %w", line, col, err)
				}
			}
			segs = append(segs, seg)
		}
	}
	return segs, nil
}

// keepCR decodes raw character data again with its carriage returns
// intact. The decoder folds CR and CRLF into LF, so a rewritten run would
// otherwise lose them.
func (m xmlMarkup) keepCR(raw []byte, cdata bool) (string, error) {
	if cdata {
		return string(raw[len("<![CDATA[") : len(raw)-len("]]>")]), nil
	}
	d := stdxml.NewDecoder(io.MultiReader(
		strings.NewReader("<r>"),
		bytes.NewReader(bytes.ReplaceAll(raw, []byte("\r"), []byte("&#13;"))),
		strings.NewReader("</r>"),
	))
	d.Strict = true
	if m.htmlEntities {
		d.Entity = stdxml.HTMLEntity
	}
	var text strings.Builder
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return text.String(), nil
		}
		if err != nil {
			return "", err
		}
		if cd, ok := tok.(stdxml.CharData); ok {
			text.Write(cd)
		}
	}
}

func (m xmlMarkup) Reinsert(payload []byte, segs []TextSegment, converted []string) ([]byte, error) {
	return splice(payload, segs, converted)
}

// htmlMarkup tokenizes non-XML HTML with golang.org/x/net/html. Text under
// body (outside script and style) and the document title are selected.
type htmlMarkup struct{}

func (htmlMarkup) ExtractTextRuns(payload []byte) ([]TextSegment, error) {
	z := html.NewTokenizer(bytes.NewReader(payload))

	var (
		segs   []TextSegment
		open   []string
		offset int
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return segs, nil
			}
			return nil, z.Err()
		}
		rawBytes := z.Raw()
		raw := len(rawBytes)
		start := offset
		offset += raw
		// Text rewrites the token in place, so keep a copy while it still
		// holds its carriage returns.
		var withCR string
		if tt == html.TextToken && bytes.IndexByte(rawBytes, '\r') >= 0 {
			withCR = string(rawBytes)
		}

		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				open = append(open, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] == string(name) {
					open = open[:i]
					break
				}
			}
		case html.TextToken:
			if !htmlSelects(open) {
				continue
			}
			text := string(z.Text())
			if withCR != "" {
				// The tokenizer folds CR into LF.
				text = html.UnescapeString(withCR)
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			segs = append(segs, TextSegment{Start: start, End: start + raw, Text: text, Kind: KindHTML})
		}
	}
}

func (htmlMarkup) Reinsert(payload []byte, segs []TextSegment, converted []string) ([]byte, error) {
	return splice(payload, segs, converted)
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

func htmlSelects(open []string) bool {
	if len(open) == 0 {
		return false
	}
	inner := open[len(open)-1]
	if inner == "script" || inner == "style" {
		return false
	}
	if inner == "title" {
		return true
	}
	for _, name := range open {
		if name == "body" {
			return true
		}
	}
	return false
}

// splice replaces each segment whose converted text differs from the
// original. Unchanged segments keep their raw bytes.
func splice(payload []byte, segs []TextSegment, converted []string) ([]byte, error) {
	if len(segs) != len(converted) {
		return nil, fmt.Errorf("reinsert: %d segments but %d converted runs", len(segs), len(converted))
	}
	if !sort.SliceIsSorted(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start }) {
		return nil, fmt.Errorf("reinsert: segments out of order")
	}

	var buf bytes.Buffer
	buf.Grow(len(payload))
	last := 0
	for i, seg := range segs {
		if seg.Start < last || seg.End < seg.Start || seg.End > len(payload) {
			return nil, fmt.Errorf("reinsert: segment %d [%d,%d) out of range", i, seg.Start, seg.End)
		}
		if converted[i] == seg.Text {
			continue
		}
		buf.Write(payload[last:seg.Start])
		buf.WriteString(encodeSegment(seg, converted[i]))
		last = seg.End
	}
	buf.Write(payload[last:])
	return buf.Bytes(), nil
}

func encodeSegment(seg TextSegment, text string) string {
	switch {
	case seg.CDATA:
		return encoding.WrapCDATA(text)
	case seg.Kind == KindHTML:
		return encoding.EscapeHTML(text)
	default:
		return encoding.EscapeXMLText(text)
	}
}

// Selectors used by the format table.

func leafIn(names ...string) selector {
	return func(stack []stdxml.Name) bool {
		leaf := stack[len(stack)-1].Local
		for _, n := range names {
			if leaf == n {
				return true
			}
		}
		return false
	}
}

func hasAncestor(stack []stdxml.Name, names ...string) bool {
	for _, el := range stack {
		for _, n := range names {
			if el.Local == n {
				return true
			}
		}
	}
	return false
}

func allOf(sels ...selector) selector {
	return func(stack []stdxml.Name) bool {
		for _, s := range sels {
			if !s(stack) {
				return false
			}
		}
		return true
	}
}

func within(names ...string) selector {
	return func(stack []stdxml.Name) bool {
		return hasAncestor(stack, names...)
	}
}

const dcNamespace = "http://purl.org/dc/elements/1.1/"

// xhtmlText selects body text outside script and style, and the title.
func xhtmlText(stack []stdxml.Name) bool {
	leaf := stack[len(stack)-1].Local
	switch leaf {
	case "script", "style":
		return false
	case "title":
		return true
	}
	return hasAncestor(stack, "body")
}

// opfText selects Dublin Core metadata values except machine-readable ones.
func opfText(stack []stdxml.Name) bool {
	leaf := stack[len(stack)-1]
	if leaf.Space != dcNamespace && leaf.Space != "dc" {
		return false
	}
	switch leaf.Local {
	case "identifier", "language", "date", "format", "type":
		return false
	}
	return true
}
