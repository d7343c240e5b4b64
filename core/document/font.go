package document

import (
	"regexp"
	"strings"

	"github.com/FocuswithJustin/zhconv/core/encoding"
)

// FontPolicy decides what happens to font family names declared in styles.
type FontPolicy int

const (
	// FontConvert runs declared font names through the transformer, the
	// same way body text is converted.
	FontConvert FontPolicy = iota
	// FontKeep leaves every font declaration byte-for-byte unchanged.
	FontKeep
)

func (p FontPolicy) String() string {
	if p == FontKeep {
		return "keep"
	}
	return "convert"
}

// PolicyFor maps the keep_font flag to a policy.
func PolicyFor(keepFont bool) FontPolicy {
	if keepFont {
		return FontKeep
	}
	return FontConvert
}

// fontRule matches font declarations with three groups: the text before
// the name, the name itself, and the text after it. escape, when set,
// encodes a converted name for the surrounding syntax.
type fontRule struct {
	re     *regexp.Regexp
	escape func(string) string
}

var (
	docxFonts = attrRule(`(w:(?:eastAsia|ascii|hAnsi|cs)=")([^"]*)(")`)
	xlsxFonts = attrRule(`(<(?:[A-Za-z]+:)?(?:rFont|name)\b[^>]*?\bval=")([^"]*)(")`)
	pptxFonts = attrRule(`(typeface=")([^"]*)(")`)
	odfFonts  = attrRule(`((?:style:font-name(?:-asian|-complex)?|svg:font-family)=["']|<style:font-face\b[^>]*?\bstyle:name=["'])([^"']*)(["'])`)
	// A family list runs to the end of the declaration and may quote names.
	// A bare quote ends it, as when the declaration sits in a style
	// attribute.
	cssFonts = fontRule{re: regexp.MustCompile(`(font-family\s*:\s*)((?:[^;}<"']|"[^"<;}]*"|'[^'<;}]*')+)()`)}
)

func attrRule(expr string) fontRule {
	return fontRule{re: regexp.MustCompile(expr), escape: encoding.EscapeXMLAttr}
}

// apply rewrites every declared name through fn and reports how many
// declarations changed. Names carrying entity references are left alone.
func (r fontRule) apply(payload []byte, fn func(string) string) ([]byte, int) {
	if r.re == nil {
		return payload, 0
	}
	matches := r.re.FindAllSubmatchIndex(payload, -1)
	if len(matches) == 0 {
		return payload, 0
	}

	var (
		out     []byte
		last    int
		changed int
	)
	for _, m := range matches {
		start, end := m[4], m[5]
		name := string(payload[start:end])
		if name == "" || strings.Contains(name, "&") {
			continue
		}
		converted := fn(name)
		if converted == name {
			continue
		}
		if r.escape != nil {
			converted = r.escape(converted)
		}
		if out == nil {
			out = make([]byte, 0, len(payload))
		}
		out = append(out, payload[last:start]...)
		out = append(out, converted...)
		last = end
		changed++
	}
	if changed == 0 {
		return payload, 0
	}
	out = append(out, payload[last:]...)
	return out, changed
}
