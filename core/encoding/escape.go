// Package encoding provides shared text escaping utilities for the markup
// written back into document containers.
package encoding

import "strings"

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\r", "&#13;",
)

// EscapeXMLText escapes only the entities text nodes require. Newlines and
// quotes are left as-is so converted runs keep their original shape. A
// carriage return is written as &#13; because parsers fold a literal one
// into a line feed.
func EscapeXMLText(s string) string {
	if !strings.ContainsAny(s, "&<>\r") {
		return s
	}
	return textEscaper.Replace(s)
}

// EscapeXMLAttr escapes text for use in double-quoted XML attributes.
func EscapeXMLAttr(s string) string {
	s = EscapeXMLText(s)
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&#34;",
	"'", "&#39;",
	"\r", "&#13;",
)

// EscapeHTML escapes & < > and quotes for HTML text tokens. Carriage
// returns are written as &#13; like EscapeXMLText does.
func EscapeHTML(s string) string {
	if !strings.ContainsAny(s, "&<>\"'\r") {
		return s
	}
	return htmlEscaper.Replace(s)
}

// WrapCDATA renders s as a CDATA section. An embedded "]]>" is split across
// two sections.
func WrapCDATA(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}
