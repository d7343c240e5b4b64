package document

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/FocuswithJustin/zhconv/core/dict"
	"github.com/FocuswithJustin/zhconv/core/engine"
	"github.com/FocuswithJustin/zhconv/core/epub"
	"github.com/FocuswithJustin/zhconv/core/punct"
)

type zipEntry struct {
	name   string
	body   string
	method uint16
}

func stored(name, body string) zipEntry {
	return zipEntry{name: name, body: body, method: zip.Store}
}

func deflated(name, body string) zipEntry {
	return zipEntry{name: name, body: body, method: zip.Deflate}
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

type archive struct {
	reader *zip.Reader
	order  []string
	files  map[string]*zip.File
}

func openZip(t *testing.T, data []byte) *archive {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("output is not a zip archive: %v", err)
	}
	a := &archive{reader: r, files: make(map[string]*zip.File)}
	for _, f := range r.File {
		a.order = append(a.order, f.Name)
		a.files[f.Name] = f
	}
	return a
}

func (a *archive) text(t *testing.T, name string) string {
	t.Helper()
	f, ok := a.files[name]
	if !ok {
		t.Fatalf("entry %s missing", name)
	}
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func (a *archive) raw(t *testing.T, name string) []byte {
	t.Helper()
	rc, err := a.files[name].OpenRaw()
	if err != nil {
		t.Fatalf("open raw %s: %v", name, err)
	}
	data, _ := io.ReadAll(rc)
	return data
}

// s2t converts with the bundled Simplified to Traditional tables and
// punctuation.
func s2t(t *testing.T) Transformer {
	t.Helper()
	d, err := dict.Default().Load(dict.STPhrases, dict.STCharacters)
	if err != nil {
		t.Fatalf("load tables: %v", err)
	}
	stages := []engine.Stage{{Ordinal: 0, Dict: d}}
	table := punct.TableFor(punct.S2T)
	return TransformFunc(func(s string) string {
		return engine.Apply(s, stages, table)
	})
}

func convertBytes(t *testing.T, data []byte, opts Options) ([]byte, *Report) {
	t.Helper()
	var out bytes.Buffer
	report, err := NewConverter().Convert(t.Context(), bytes.NewReader(data), int64(len(data)), &out, opts)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	return out.Bytes(), report
}

const (
	nsW   = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
	nsA   = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsP   = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	nsSML = `xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"`
	nsODF = `xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" ` +
		`xmlns:style="urn:oasis:names:tc:opendocument:xmlns:style:1.0" ` +
		`xmlns:svg="urn:oasis:names:tc:opendocument:xmlns:svg-compatible:1.0"`
)

func contentTypes(mainPart string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="png" ContentType="image/png"/>` +
		`<Override PartName="` + mainPart + `" ContentType="application/xml"/></Types>`
}

var pngBytes = string([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d})

func docxFixture(t *testing.T, document string) []byte {
	t.Helper()
	return buildZip(t,
		deflated("[Content_Types].xml", contentTypes("/word/document.xml")),
		deflated("_rels/.rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`),
		deflated("word/document.xml", document),
		deflated("word/styles.xml", `<w:styles `+nsW+`><w:style w:styleId="a"><w:rPr><w:rFonts w:eastAsia="宋体" w:ascii="Times New Roman"/></w:rPr></w:style></w:styles>`),
		deflated("word/fontTable.xml", `<w:fonts `+nsW+`><w:font w:name="宋体"/></w:fonts>`),
		stored("word/media/image1.png", pngBytes),
	)
}

const docxDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + nsW + `><w:body><w:p><w:r><w:rPr><w:rFonts w:eastAsia="黑体"/></w:rPr><w:t>春眠不觉晓，处处闻啼鸟。</w:t></w:r>` +
	`<w:r><w:t xml:space="preserve">“头发” &amp; 面条 </w:t></w:r><w:r><w:t>hello</w:t></w:r></w:p></w:body></w:document>`

func xlsxFixture(t *testing.T) []byte {
	t.Helper()
	return buildZip(t,
		deflated("[Content_Types].xml", contentTypes("/xl/workbook.xml")),
		deflated("xl/workbook.xml", `<workbook `+nsSML+`><sheets><sheet name="头发" sheetId="1"/></sheets></workbook>`),
		deflated("xl/sharedStrings.xml", `<sst `+nsSML+` count="2"><si><t>头发</t></si><si><r><rPr><rFont val="宋体"/></rPr><t>面条</t></r></si></sst>`),
		deflated("xl/worksheets/sheet1.xml", `<worksheet `+nsSML+`><sheetData><row r="1">`+
			`<c r="A1" t="s"><v>0</v></c><c r="B1" t="inlineStr"><is><t>这里</t></is></c><c r="C1" t="str"><f>"发"</f><v>发</v></c>`+
			`</row></sheetData></worksheet>`),
		deflated("xl/styles.xml", `<styleSheet `+nsSML+`><fonts><font><sz val="11"/><name val="宋体"/></font></fonts></styleSheet>`),
	)
}

func pptxFixture(t *testing.T) []byte {
	t.Helper()
	return buildZip(t,
		deflated("[Content_Types].xml", contentTypes("/ppt/presentation.xml")),
		deflated("ppt/presentation.xml", `<p:presentation `+nsP+`/>`),
		deflated("ppt/slides/slide1.xml", `<p:sld `+nsA+` `+nsP+`><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r>`+
			`<a:rPr><a:latin typeface="微软雅黑"/></a:rPr><a:t>汉语</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`),
		deflated("ppt/slides/_rels/slide1.xml.rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Target="../media/头发.png"/></Relationships>`),
		deflated("ppt/notesSlides/notesSlide1.xml", `<p:notes `+nsA+` `+nsP+`><a:t>书</a:t></p:notes>`),
		deflated("ppt/comments/comment1.xml", `<p:cmLst `+nsP+`><p:cm><p:text>说</p:text></p:cm></p:cmLst>`),
		deflated("ppt/theme/theme1.xml", `<a:theme `+nsA+`><a:fontScheme><a:majorFont><a:ea typeface="黑体"/></a:majorFont></a:fontScheme></a:theme>`),
		stored("ppt/media/头发.png", pngBytes),
	)
}

func odtFixture(t *testing.T) []byte {
	t.Helper()
	return buildZip(t,
		stored("mimetype", "application/vnd.oasis.opendocument.text"),
		deflated("content.xml", `<?xml version="1.0" encoding="UTF-8"?><office:document-content `+nsODF+`>`+
			`<office:font-face-decls><style:font-face style:name="宋体" svg:font-family="宋体"/></office:font-face-decls>`+
			`<office:automatic-styles><style:style style:name="P1"><style:text-properties style:font-name-asian="宋体"/></style:style></office:automatic-styles>`+
			`<office:body><office:text><text:p text:style-name="P1">春眠不觉晓<text:s/>处处闻啼鸟</text:p></office:text></office:body>`+
			`</office:document-content>`),
		deflated("styles.xml", `<office:document-styles `+nsODF+`><office:font-face-decls><style:font-face style:name="黑体"/></office:font-face-decls></office:document-styles>`),
		deflated("META-INF/manifest.xml", `<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0"/>`),
	)
}

// epubFixture is a one-chapter EPUB 3 book with a navigation document,
// an NCX table of contents, a stylesheet and an image.
func epubFixture(t *testing.T, title, chapterTitle, body, css string) []byte {
	t.Helper()
	return buildZip(t,
		stored("mimetype", epub.MimeType),
		deflated(epub.ContainerPath, `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`),
		deflated("OEBPS/content.opf", `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="BookId">urn:uuid:5b0e4a6c-3c1f-4d8e-9a39-2f1f0c7d8e11</dc:identifier>
    <dc:title>`+title+`</dc:title>
    <dc:language>zh</dc:language>
  </metadata>
  <manifest>
    <item id="toc" href="toc.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="style" href="style.css" media-type="text/css"/>
    <item id="chapter1" href="text/chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="res1" href="images/a.png" media-type="image/png"/>
  </manifest>
  <spine toc="ncx"><itemref idref="chapter1"/></spine>
</package>`),
		deflated("OEBPS/toc.ncx", `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <docTitle><text>`+title+`</text></docTitle>
  <navMap><navPoint id="navpoint1" playOrder="1"><navLabel><text>`+chapterTitle+`</text></navLabel><content src="text/chapter1.xhtml"/></navPoint></navMap>
</ncx>`),
		deflated("OEBPS/toc.xhtml", `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>`+title+`</title></head>
<body><nav epub:type="toc" id="toc"><ol><li><a href="text/chapter1.xhtml">`+chapterTitle+`</a></li></ol></nav></body>
</html>`),
		deflated("OEBPS/style.css", css),
		deflated("OEBPS/text/chapter1.xhtml", `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`+chapterTitle+`</title>
  <link rel="stylesheet" type="text/css" href="../style.css"/>
</head>
<body>
  <h1>`+chapterTitle+`</h1>
  `+body+`
</body>
</html>`),
		stored("OEBPS/images/a.png", pngBytes),
	)
}
