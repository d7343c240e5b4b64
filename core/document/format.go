package document

import (
	"archive/zip"
	"io"
	"path/filepath"
	"strings"

	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/core/xml"
)

// Format is a supported container format, named by its file extension.
type Format string

// Supported formats.
const (
	Unknown Format = ""
	DOCX    Format = "docx"
	XLSX    Format = "xlsx"
	PPTX    Format = "pptx"
	ODT     Format = "odt"
	ODS     Format = "ods"
	ODP     Format = "odp"
	EPUB    Format = "epub"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{DOCX, XLSX, PPTX, ODT, ODS, ODP, EPUB}
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	if f == Unknown {
		return ""
	}
	return "." + string(f)
}

var ooxmlMediaTypes = map[Format]string{
	DOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	XLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	PPTX: "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// MediaType returns the IANA media type of f, or application/octet-stream
// for Unknown.
func (f Format) MediaType() string {
	if t, ok := ooxmlMediaTypes[f]; ok {
		return t
	}
	for t, g := range odfMimeTypes {
		if g == f {
			return t
		}
	}
	return "application/octet-stream"
}

// ParseFormat parses a format name. A leading dot and letter case are
// ignored.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	if _, ok := formats[f]; !ok {
		return Unknown, errors.NewUnsupported("document format", "unsupported format: "+s)
	}
	return f, nil
}

// FromPath returns the format implied by a file extension, or Unknown.
func FromPath(path string) Format {
	f, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return Unknown
	}
	return f
}

var odfMimeTypes = map[string]Format{
	"application/vnd.oasis.opendocument.text":         ODT,
	"application/vnd.oasis.opendocument.spreadsheet":  ODS,
	"application/vnd.oasis.opendocument.presentation": ODP,
	"application/epub+zip":                            EPUB,
}

var ooxmlMainParts = map[string]Format{
	"/word/document.xml":    DOCX,
	"/xl/workbook.xml":      XLSX,
	"/ppt/presentation.xml": PPTX,
}

// Sniff identifies the format of an open archive from its mimetype entry
// (ODF, EPUB) or its [Content_Types].xml part list (OOXML).
func Sniff(r *zip.Reader) (Format, error) {
	if data, ok := readSmall(r, "mimetype"); ok {
		if f, ok := odfMimeTypes[strings.TrimSpace(string(data))]; ok {
			return f, nil
		}
	}

	if data, ok := readSmall(r, "[Content_Types].xml"); ok {
		doc, err := xml.Parse(data)
		if err != nil {
			return Unknown, &errors.ContainerFormatError{Reason: "invalid [Content_Types].xml", Err: err}
		}
		overrides, err := doc.XPath(xml.LocalName("Override"))
		if err != nil {
			return Unknown, &errors.ContainerFormatError{Reason: "invalid [Content_Types].xml", Err: err}
		}
		for _, o := range overrides {
			if f, ok := ooxmlMainParts[o.Attr("PartName")]; ok {
				return f, nil
			}
		}
	}

	// Producers that omit the part list still follow the layout.
	for part, f := range ooxmlMainParts {
		if hasEntry(r, strings.TrimPrefix(part, "/")) {
			return f, nil
		}
	}
	if hasEntry(r, "META-INF/container.xml") {
		return EPUB, nil
	}

	return Unknown, errors.NewContainerFormat("", "", "unrecognised document container")
}

func hasEntry(r *zip.Reader, name string) bool {
	for _, f := range r.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// readSmall reads a manifest-sized entry; anything over 1 MiB is ignored.
func readSmall(r *zip.Reader, name string) ([]byte, bool) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, 1<<20))
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}
