package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/internal/validation"
)

// FileRequest describes a file-to-file conversion.
type FileRequest struct {
	Input string
	// Output defaults to <stem>_converted<ext> next to Input.
	Output string
	// Format overrides detection by extension and content.
	Format Format
	// AutoExtension appends the format's extension to an Output that has
	// none, and uses it for a derived Output.
	AutoExtension bool
	FontPolicy    FontPolicy
	Transformer   Transformer
	// Timeout bounds the whole conversion; zero means no limit.
	Timeout time.Duration
}

// OutputPath derives the output file name for a request.
func OutputPath(input, output string, format Format, autoExt bool) string {
	if output == "" {
		ext := filepath.Ext(input)
		if autoExt && format != Unknown {
			ext = format.Extension()
		}
		stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		return filepath.Join(filepath.Dir(input), stem+"_converted"+ext)
	}
	if autoExt && format != Unknown && filepath.Ext(output) == "" {
		return output + format.Extension()
	}
	return output
}

// ConvertFile converts req.Input into req.Output. The output is written to
// a temporary file in the destination directory and renamed into place
// only when the conversion succeeds; on any failure no output file exists.
func (c *Converter) ConvertFile(ctx context.Context, req FileRequest) (*Report, error) {
	if err := validation.ValidatePath(req.Input); err != nil {
		return nil, errors.NewValidation("input", err.Error())
	}

	format := req.Format
	if format == Unknown {
		format = FromPath(req.Input)
	}
	out := OutputPath(req.Input, req.Output, format, req.AutoExtension)
	if err := validation.ValidatePath(out); err != nil {
		return nil, errors.NewValidation("output", err.Error())
	}
	if sameFile(req.Input, out) {
		return nil, errors.NewValidation("output", "output would overwrite the input")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	in, err := os.Open(req.Input)
	if err != nil {
		return nil, errors.NewIO("open", req.Input, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return nil, errors.NewIO("stat", req.Input, err)
	}
	if info.Size() > validation.MaxFileSize {
		return nil, errors.NewContainerFormat(req.Input, string(format), "file exceeds size limit")
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*.tmp")
	if err != nil {
		return nil, errors.NewIO("create", out, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	report, err := c.Convert(ctx, in, info.Size(), tmp, Options{
		Transformer: req.Transformer,
		Format:      format,
		FontPolicy:  req.FontPolicy,
		Name:        req.Input,
	})
	if err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.NewIO("write", out, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return nil, errors.NewIO("chmod", out, err)
	}
	if err := os.Rename(tmpName, out); err != nil {
		return nil, errors.NewIO("rename", out, err)
	}
	committed = true

	report.Output = out
	return report, nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}
