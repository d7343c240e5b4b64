package document

import (
	"path"
	"strings"

	"github.com/FocuswithJustin/zhconv/core/epub"
)

// EntryClass says what the converter does with an archive entry.
type EntryClass int

const (
	// Opaque entries are copied byte-for-byte.
	Opaque EntryClass = iota
	// TextBearing entries have their text runs converted.
	TextBearing
	// FontDescriptor entries only declare fonts.
	FontDescriptor
)

func (c EntryClass) String() string {
	switch c {
	case TextBearing:
		return "text"
	case FontDescriptor:
		return "font"
	default:
		return "opaque"
	}
}

// Entry is the plan for one archive entry.
type Entry struct {
	Path  string
	Class EntryClass

	markup Markup
	fonts  fontRule
}

// formatSpec describes one container format.
type formatSpec struct {
	// required names the part every archive of this format carries.
	required string
	classify func(name string, pkg *epub.Package) Entry
}

var (
	docxRuns = xmlMarkup{selects: leafIn("t", "delText")}
	xlsxRuns = xmlMarkup{selects: allOf(leafIn("t"), within("si", "is"))}
	pptxRuns = xmlMarkup{selects: leafIn("t", "text")}
	odfRuns  = xmlMarkup{selects: within("body")}
	xhtmlRun = xmlMarkup{selects: xhtmlText, htmlEntities: true}
	opfRuns  = xmlMarkup{selects: opfText}
	ncxRuns  = xmlMarkup{selects: leafIn("text")}
)

var formats = map[Format]formatSpec{
	DOCX: {
		required: "word/document.xml",
		classify: globs(docxRuns, docxFonts,
			[]string{"word/document.xml", "word/header*.xml", "word/footer*.xml", "word/footnotes.xml", "word/endnotes.xml", "word/comments.xml"},
			[]string{"word/fontTable.xml", "word/styles.xml"}),
	},
	XLSX: {
		required: "xl/workbook.xml",
		classify: globs(xlsxRuns, xlsxFonts,
			[]string{"xl/sharedStrings.xml", "xl/worksheets/sheet*.xml"},
			[]string{"xl/styles.xml"}),
	},
	PPTX: {
		required: "ppt/presentation.xml",
		classify: globs(pptxRuns, pptxFonts,
			[]string{"ppt/slides/slide*.xml", "ppt/notesSlides/*.xml", "ppt/slideMasters/*.xml", "ppt/slideLayouts/*.xml", "ppt/comments/*.xml"},
			[]string{"ppt/theme/*.xml"}),
	},
	ODT: {required: "content.xml", classify: globs(odfRuns, odfFonts, []string{"content.xml"}, []string{"styles.xml"})},
	ODS: {required: "content.xml", classify: globs(odfRuns, odfFonts, []string{"content.xml"}, []string{"styles.xml"})},
	ODP: {required: "content.xml", classify: globs(odfRuns, odfFonts, []string{"content.xml"}, []string{"styles.xml"})},
	EPUB: {
		required: epub.ContainerPath,
		classify: classifyEPUB,
	},
}

func globs(m Markup, fonts fontRule, text, fontParts []string) func(string, *epub.Package) Entry {
	return func(name string, _ *epub.Package) Entry {
		for _, g := range text {
			if ok, _ := path.Match(g, name); ok {
				return Entry{Path: name, Class: TextBearing, markup: m, fonts: fonts}
			}
		}
		for _, g := range fontParts {
			if ok, _ := path.Match(g, name); ok {
				return Entry{Path: name, Class: FontDescriptor, fonts: fonts}
			}
		}
		return Entry{Path: name, Class: Opaque}
	}
}

// classifyEPUB prefers the manifest media type and falls back to the file
// extension for entries the manifest does not list.
func classifyEPUB(name string, pkg *epub.Package) Entry {
	if name == "mimetype" || name == epub.ContainerPath {
		return Entry{Path: name, Class: Opaque}
	}
	if pkg != nil && name == pkg.OPFPath {
		return Entry{Path: name, Class: TextBearing, markup: opfRuns}
	}

	kind := strings.ToLower(path.Ext(name))
	if pkg != nil {
		if mt, ok := pkg.MediaType(name); ok {
			kind = mt
		}
	}

	switch kind {
	case "application/xhtml+xml", ".xhtml":
		return Entry{Path: name, Class: TextBearing, markup: xhtmlRun, fonts: cssFonts}
	case "text/html", ".html", ".htm":
		return Entry{Path: name, Class: TextBearing, markup: htmlMarkup{}, fonts: cssFonts}
	case "application/oebps-package+xml", ".opf":
		return Entry{Path: name, Class: TextBearing, markup: opfRuns}
	case "application/x-dtbncx+xml", ".ncx":
		return Entry{Path: name, Class: TextBearing, markup: ncxRuns}
	case "text/css", ".css":
		return Entry{Path: name, Class: FontDescriptor, fonts: cssFonts}
	}
	return Entry{Path: name, Class: Opaque}
}
