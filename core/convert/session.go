package convert

import (
	"context"
	"fmt"
	"sync"

	"github.com/FocuswithJustin/zhconv/core/detect"
	"github.com/FocuswithJustin/zhconv/core/document"
	"github.com/FocuswithJustin/zhconv/core/pipeline"
)

// Session holds a current configuration and the last configuration
// error. Setting an unknown configuration selects s2t instead of failing.
type Session struct {
	conv *Converter

	mu        sync.RWMutex
	config    string
	lastError string
}

// NewSession creates a session on conv. An empty config means s2t.
func NewSession(conv *Converter, config string) *Session {
	if conv == nil {
		conv = Default()
	}
	s := &Session{conv: conv}
	if config == "" {
		config = string(pipeline.Fallback)
	}
	s.SetConfig(config)
	return s
}

// SetConfig switches the configuration. An unknown name selects s2t and
// records the problem in LastError; a valid name clears it.
func (s *Session) SetConfig(config string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv.registry.IsValid(config) {
		s.config = config
		s.lastError = ""
		return
	}
	s.config = string(pipeline.Fallback)
	s.lastError = fmt.Sprintf("Invalid config %q, using %s", config, pipeline.Fallback)
}

// Config returns the current configuration name.
func (s *Session) Config() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// LastError returns the last configuration error, or "".
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Convert converts text with the current configuration. A dictionary
// failure is returned with an empty string and also recorded in
// LastError.
func (s *Session) Convert(text string, punctuation bool) (string, error) {
	out, err := s.conv.ConvertText(text, s.Config(), punctuation)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return "", err
	}
	return out, nil
}

// Detect returns 1 for Traditional, 2 for Simplified and 0 otherwise.
// When the character table cannot be loaded it returns 0 and records the
// failure in LastError.
func (s *Session) Detect(text string) int {
	script, err := s.conv.Detect(text)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return int(detect.Other)
	}
	return int(script)
}

// ConvertDocument converts a document file with the current
// configuration; req.Config is ignored.
func (s *Session) ConvertDocument(ctx context.Context, req DocumentRequest) (*document.Report, error) {
	req.Config = s.Config()
	return s.conv.ConvertDocument(ctx, req)
}
