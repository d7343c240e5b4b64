// Package epub reads the package document of existing EPUB books and writes
// the OCF mimetype entry when they are repackaged.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/FocuswithJustin/zhconv/core/xml"
)

// MimeType is the content of the mimetype entry.
const MimeType = "application/epub+zip"

// ContainerPath is the fixed location of the OCF container document.
const ContainerPath = "META-INF/container.xml"

// BookMetadata is the Dublin Core metadata of a package document.
type BookMetadata struct {
	Title       string
	Author      string
	Language    string
	Identifier  string
	Publisher   string
	Description string
	Date        string
}

// WriteMimeType writes the mimetype entry stored, without a data
// descriptor. It must be the first entry written to zw.
func WriteMimeType(zw *zip.Writer) error {
	data := []byte(MimeType)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "mimetype",
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Item is one manifest entry of a package document.
type Item struct {
	ID        string
	Href      string
	Path      string // archive path, resolved against the OPF location
	MediaType string
}

// Package is the parsed package document of an existing EPUB.
type Package struct {
	OPFPath  string
	Metadata BookMetadata
	Manifest []Item
}

// MediaType returns the manifest media type of an archive path.
func (p *Package) MediaType(archivePath string) (string, bool) {
	for _, it := range p.Manifest {
		if it.Path == archivePath {
			return it.MediaType, true
		}
	}
	return "", false
}

// ReadPackage locates the package document through META-INF/container.xml
// and parses its metadata and manifest.
func ReadPackage(r *zip.Reader) (*Package, error) {
	container, err := readEntry(r, ContainerPath)
	if err != nil {
		return nil, err
	}
	doc, err := xml.Parse(container)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ContainerPath, err)
	}
	rootfile, err := doc.XPathFirst(xml.LocalName("rootfile"))
	if err != nil {
		return nil, err
	}
	if rootfile == nil || rootfile.Attr("full-path") == "" {
		return nil, fmt.Errorf("%s names no rootfile", ContainerPath)
	}

	opfPath := rootfile.Attr("full-path")
	data, err := readEntry(r, opfPath)
	if err != nil {
		return nil, err
	}
	pkg, err := parseOPF(data)
	if err != nil {
		return nil, fmt.Errorf("invalid package document %s: %w", opfPath, err)
	}
	pkg.OPFPath = opfPath

	base := path.Dir(opfPath)
	for i := range pkg.Manifest {
		href := pkg.Manifest[i].Href
		if j := strings.IndexAny(href, "#?"); j >= 0 {
			href = href[:j]
		}
		if u, err := url.PathUnescape(href); err == nil {
			href = u
		}
		pkg.Manifest[i].Path = path.Clean(path.Join(base, href))
	}
	return pkg, nil
}

// Parse reads the metadata of an EPUB held in memory.
func Parse(data []byte) (*Package, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid EPUB archive: %w", err)
	}
	return ReadPackage(r)
}

func parseOPF(data []byte) (*Package, error) {
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, err
	}

	pkg := &Package{}
	fields := []struct {
		name string
		dst  *string
	}{
		{"title", &pkg.Metadata.Title},
		{"creator", &pkg.Metadata.Author},
		{"language", &pkg.Metadata.Language},
		{"identifier", &pkg.Metadata.Identifier},
		{"publisher", &pkg.Metadata.Publisher},
		{"description", &pkg.Metadata.Description},
		{"date", &pkg.Metadata.Date},
	}
	for _, f := range fields {
		n, err := doc.XPathFirst(fmt.Sprintf("//*[local-name()='metadata']/*[local-name()='%s']", f.name))
		if err != nil {
			return nil, err
		}
		if n != nil {
			*f.dst = strings.TrimSpace(n.Text())
		}
	}

	items, err := doc.XPath("//*[local-name()='manifest']/*[local-name()='item']")
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		pkg.Manifest = append(pkg.Manifest, Item{
			ID:        it.Attr("id"),
			Href:      it.Attr("href"),
			MediaType: it.Attr("media-type"),
		})
	}
	return pkg, nil
}

func readEntry(r *zip.Reader, name string) ([]byte, error) {
	f, err := r.Open(name)
	if err != nil {
		return nil, fmt.Errorf("missing %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
