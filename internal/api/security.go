package api

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/zhconv/core/document"
	"github.com/FocuswithJustin/zhconv/internal/validation"
)

// ErrInvalidID is returned for a malformed job ID.
var ErrInvalidID = errors.New("invalid job ID")

// ValidateID checks that id is a canonical job ID. Job IDs come from the
// URL path and double as result cache keys.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: ID cannot be empty", ErrInvalidID)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	// uuid.Parse also accepts braces and urn: prefixes.
	if parsed.String() != id {
		return fmt.Errorf("%w: ID is not in canonical form", ErrInvalidID)
	}
	return nil
}

// convertedName names the download for an uploaded file the way the CLI
// names its default output: <stem>_converted<ext>. A name without an
// extension gets the detected one.
func convertedName(filename string, format document.Format) string {
	clean, err := validation.SanitizeFilename(filename)
	if err != nil {
		clean = "document"
	}
	return filepath.Base(document.OutputPath(clean, "", format, filepath.Ext(clean) == ""))
}

// contentDisposition builds an attachment header. Non-ASCII names such
// as 報告.docx are sent with RFC 2231 encoding.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf(`attachment; filename="%s"`, ascii)
}
