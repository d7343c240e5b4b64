// Package errors provides standardized error types and helpers for the zhconv codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
	// ErrDictionaryLoad indicates a dictionary table could not be loaded
	ErrDictionaryLoad = errors.New("dictionary load failed")
	// ErrUnknownConfig indicates an unrecognized conversion configuration name
	ErrUnknownConfig = errors.New("unknown config")
	// ErrContainerFormat indicates an input that cannot be opened as the expected container
	ErrContainerFormat = errors.New("invalid container")
	// ErrEntryParse indicates a text-bearing archive entry with unparsable markup
	ErrEntryParse = errors.New("entry parse failed")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "table", "job")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "pipeline definition")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// DictionaryLoadError reports a missing, malformed or self-contradicting table.
type DictionaryLoadError struct {
	Table   string // Table identifier (e.g., "st_phrases")
	Line    int    // 1-based line number, 0 when not line specific
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *DictionaryLoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("dictionary %s line %d: %s", e.Table, e.Line, e.Message)
	}
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("dictionary %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("dictionary %s: %s", e.Table, e.Message)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DictionaryLoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDictionaryLoad, e.Err}
	}
	return []error{ErrDictionaryLoad}
}

// UnknownConfigError is returned for a configuration name outside the registry.
type UnknownConfigError struct {
	Name string
}

func (e *UnknownConfigError) Error() string {
	return fmt.Sprintf("unknown config: %q", e.Name)
}

func (e *UnknownConfigError) Unwrap() error {
	return ErrUnknownConfig
}

// ContainerFormatError reports an input that cannot be opened as a document archive.
type ContainerFormatError struct {
	Path   string // Input path, if known
	Format string // Declared or detected format
	Reason string // Error details
	Err    error  // Underlying error, if any
}

func (e *ContainerFormatError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Path != "" && e.Format != "":
		return fmt.Sprintf("cannot open %s as %s: %s", e.Path, e.Format, msg)
	case e.Format != "":
		return fmt.Sprintf("cannot open input as %s: %s", e.Format, msg)
	case e.Path != "":
		return fmt.Sprintf("cannot open %s: %s", e.Path, msg)
	}
	return fmt.Sprintf("invalid container: %s", msg)
}

func (e *ContainerFormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrContainerFormat, e.Err}
	}
	return []error{ErrContainerFormat}
}

// EntryParseError identifies the archive entry whose markup could not be parsed.
type EntryParseError struct {
	Entry string // Path of the entry within the archive
	Err   error  // Underlying parser error
}

func (e *EntryParseError) Error() string {
	return fmt.Sprintf("malformed entry %s: %v", e.Entry, e.Err)
}

func (e *EntryParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrEntryParse, e.Err}
	}
	return []error{ErrEntryParse}
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// NewDictionaryLoad creates a DictionaryLoadError
func NewDictionaryLoad(table string, line int, message string) *DictionaryLoadError {
	return &DictionaryLoadError{
		Table:   table,
		Line:    line,
		Message: message,
	}
}

// NewUnknownConfig creates an UnknownConfigError
func NewUnknownConfig(name string) *UnknownConfigError {
	return &UnknownConfigError{Name: name}
}

// NewContainerFormat creates a ContainerFormatError
func NewContainerFormat(path, format, reason string) *ContainerFormatError {
	return &ContainerFormatError{
		Path:   path,
		Format: format,
		Reason: reason,
	}
}

// NewEntryParse creates an EntryParseError
func NewEntryParse(entry string, err error) *EntryParseError {
	return &EntryParseError{
		Entry: entry,
		Err:   err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
