// Package document converts the human-readable text inside zip-based
// document containers (OOXML, ODF, EPUB) while leaving markup, styling and
// binary resources untouched.
package document

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/zhconv/core/epub"
	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/internal/logging"
	"github.com/FocuswithJustin/zhconv/internal/validation"
	"github.com/FocuswithJustin/zhconv/internal/workerpool"
)

// Transformer converts one run of text. Implementations must be safe for
// concurrent use.
type Transformer interface {
	Transform(text string) string
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(string) string

// Transform implements Transformer.
func (f TransformFunc) Transform(s string) string { return f(s) }

// Options controls one conversion.
type Options struct {
	Transformer Transformer
	// Format is the declared format. Unknown means detect from content.
	Format     Format
	FontPolicy FontPolicy
	// Name identifies the input in errors and logs.
	Name string
}

// Report summarises a finished conversion.
type Report struct {
	Format           Format        `json:"format"`
	Output           string        `json:"output,omitempty"`
	Entries          int           `json:"entries"`
	TextEntries      int           `json:"text_entries"`
	FontEntries      int           `json:"font_entries"`
	OpaqueEntries    int           `json:"opaque_entries"`
	ChangedEntries   int           `json:"changed_entries"`
	Segments         int           `json:"segments"`
	ChangedSegments  int           `json:"changed_segments"`
	FontDeclarations int           `json:"font_declarations"`
	InputDigest      string        `json:"input_digest"`
	OutputDigest     string        `json:"output_digest"`
	Duration         time.Duration `json:"duration"`
}

// Converter runs document conversions.
type Converter struct {
	// Workers bounds the number of entries processed at once.
	Workers int
	// MaxEntrySize bounds the decompressed size of a converted entry.
	MaxEntrySize int64
}

// NewConverter creates a converter with one worker per CPU.
func NewConverter() *Converter {
	return &Converter{
		Workers:      workerpool.DefaultWorkers(),
		MaxEntrySize: validation.MaxEntrySize,
	}
}

type entryJob struct {
	index int
	file  *zip.File
	plan  Entry
}

type entryResult struct {
	payload  []byte
	changed  bool
	segments int
	converts int
	fonts    int
}

// Convert reads the archive in src, converts its text entries and writes
// the repackaged archive to dst. Nothing is written to dst unless every
// entry converted successfully.
func (c *Converter) Convert(ctx context.Context, src io.ReaderAt, size int64, dst io.Writer, opts Options) (*Report, error) {
	start := time.Now()
	if opts.Transformer == nil {
		return nil, errors.NewValidation("transformer", "is required")
	}

	zr, err := zip.NewReader(src, size)
	if err != nil {
		return nil, &errors.ContainerFormatError{Path: opts.Name, Format: string(opts.Format), Reason: "not a zip archive", Err: err}
	}
	for _, f := range zr.File {
		if err := validation.ValidateEntryName(f.Name); err != nil {
			return nil, &errors.ContainerFormatError{Path: opts.Name, Format: string(opts.Format), Reason: "unsafe entry name", Err: err}
		}
	}

	format, err := resolveFormat(zr, opts)
	if err != nil {
		return nil, err
	}
	layout := formats[format]

	var pkg *epub.Package
	if format == EPUB {
		if pkg, err = epub.ReadPackage(zr); err != nil {
			logging.Debug("epub package unreadable, classifying by extension", "input", opts.Name, "error", err)
			pkg = nil
		}
	}

	report := &Report{Format: format, Entries: len(zr.File)}
	var jobs []entryJob
	for i, f := range zr.File {
		plan := layout.classify(f.Name, pkg)
		if opts.FontPolicy == FontKeep && plan.Class == FontDescriptor {
			plan.Class = Opaque
		}
		switch plan.Class {
		case TextBearing:
			report.TextEntries++
		case FontDescriptor:
			report.FontEntries++
		default:
			report.OpaqueEntries++
			continue
		}
		jobs = append(jobs, entryJob{index: i, file: f, plan: plan})
	}

	results, err := workerpool.Map(ctx, c.Workers, jobs, func(ctx context.Context, j entryJob) (entryResult, error) {
		return c.convertEntry(j, opts)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, errors.Wrapf(err, "convert %s", displayName(opts.Name))
		}
		return nil, err
	}
	// Repackaging is not interruptible; give up now if time ran out.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "convert %s", displayName(opts.Name))
	}

	converted := make(map[int]entryResult, len(results))
	for i, r := range results {
		report.Segments += r.segments
		report.ChangedSegments += r.converts
		report.FontDeclarations += r.fonts
		if r.changed {
			report.ChangedEntries++
			converted[jobs[i].index] = r
		}
	}

	inHash := blake3.New()
	if _, err := io.Copy(inHash, io.NewSectionReader(src, 0, size)); err != nil {
		return nil, errors.NewIO("read", opts.Name, err)
	}
	outHash := blake3.New()
	if err := repackage(zr, format, converted, io.MultiWriter(dst, outHash)); err != nil {
		return nil, errors.NewIO("write", opts.Name, err)
	}

	report.InputDigest = hex.EncodeToString(inHash.Sum(nil))
	report.OutputDigest = hex.EncodeToString(outHash.Sum(nil))
	report.Duration = time.Since(start)
	logging.DocumentConverted(ctx, opts.Name, string(format), report.Entries, report.ChangedEntries, report.Duration,
		"segments", report.Segments, "changed_segments", report.ChangedSegments, "font_policy", opts.FontPolicy.String())
	return report, nil
}

func resolveFormat(zr *zip.Reader, opts Options) (Format, error) {
	sniffed, sniffErr := Sniff(zr)
	format := opts.Format
	if format == Unknown {
		if sniffErr != nil {
			var cf *errors.ContainerFormatError
			if errors.As(sniffErr, &cf) {
				cf.Path = opts.Name
			}
			return Unknown, sniffErr
		}
		format = sniffed
	} else if _, ok := formats[format]; !ok {
		return Unknown, errors.NewUnsupported("document format", "unsupported format: "+string(format))
	} else if sniffErr == nil && sniffed != format {
		return Unknown, errors.NewContainerFormat(opts.Name, string(format), "archive contains a "+string(sniffed)+" document")
	}

	if !hasEntry(zr, formats[format].required) {
		return Unknown, errors.NewContainerFormat(opts.Name, string(format), "missing required part "+formats[format].required)
	}
	return format, nil
}

func (c *Converter) convertEntry(j entryJob, opts Options) (entryResult, error) {
	payload, err := c.readEntry(j.file)
	if err != nil {
		return entryResult{}, err
	}

	var res entryResult
	out := payload
	if j.plan.markup != nil {
		segs, err := j.plan.markup.ExtractTextRuns(payload)
		if err != nil {
			return entryResult{}, errors.NewEntryParse(j.file.Name, err)
		}
		converted := make([]string, len(segs))
		for i, seg := range segs {
			converted[i] = opts.Transformer.Transform(seg.Text)
			if converted[i] != seg.Text {
				res.converts++
			}
		}
		res.segments = len(segs)
		if res.converts > 0 {
			if out, err = j.plan.markup.Reinsert(payload, segs, converted); err != nil {
				return entryResult{}, errors.NewEntryParse(j.file.Name, err)
			}
		}
	}

	if opts.FontPolicy == FontConvert {
		out, res.fonts = j.plan.fonts.apply(out, opts.Transformer.Transform)
	}

	res.changed = res.converts > 0 || res.fonts > 0
	if res.changed {
		res.payload = out
	}
	return res, nil
}

func (c *Converter) readEntry(f *zip.File) ([]byte, error) {
	limit := c.MaxEntrySize
	if limit <= 0 {
		limit = validation.MaxEntrySize
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, errors.NewEntryParse(f.Name, errors.NewValidation("size", "entry exceeds size limit"))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.NewEntryParse(f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, errors.NewEntryParse(f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewEntryParse(f.Name, errors.NewValidation("size", "entry exceeds size limit"))
	}
	return data, nil
}

// repackage writes every entry in its original order. Unchanged entries are
// copied without recompression; converted entries keep their name, method
// and timestamps. For EPUB the mimetype entry always comes first, stored.
func repackage(zr *zip.Reader, format Format, converted map[int]entryResult, w io.Writer) error {
	zw := zip.NewWriter(w)

	if format == EPUB {
		var mt *zip.File
		for _, f := range zr.File {
			if f.Name == "mimetype" {
				mt = f
				break
			}
		}
		if mt != nil && mt.Method == zip.Store && mt.Flags&0x8 == 0 {
			if err := zw.Copy(mt); err != nil {
				return err
			}
		} else if err := epub.WriteMimeType(zw); err != nil {
			return err
		}
	}

	for i, f := range zr.File {
		if format == EPUB && f.Name == "mimetype" {
			continue
		}
		res, ok := converted[i]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return err
			}
			continue
		}

		hdr := f.FileHeader
		hdr.Extra = nil
		hdr.Flags &= 0x800
		hdr.CRC32 = 0
		hdr.CompressedSize = 0
		hdr.UncompressedSize = 0
		hdr.CompressedSize64 = 0
		hdr.UncompressedSize64 = 0
		ew, err := zw.CreateHeader(&hdr)
		if err != nil {
			return err
		}
		if _, err := ew.Write(res.payload); err != nil {
			return err
		}
	}

	if zr.Comment != "" {
		if err := zw.SetComment(zr.Comment); err != nil {
			return err
		}
	}
	return zw.Close()
}

func displayName(name string) string {
	if name == "" {
		return "document"
	}
	return name
}
