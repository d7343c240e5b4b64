package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/zhconv/core/convert"
	"github.com/FocuswithJustin/zhconv/core/document"
	"github.com/FocuswithJustin/zhconv/core/errors"
	"github.com/FocuswithJustin/zhconv/core/pipeline"
	"github.com/FocuswithJustin/zhconv/internal/logging"
	"github.com/FocuswithJustin/zhconv/internal/server"
	"github.com/FocuswithJustin/zhconv/internal/validation"
)

// maxTextBody bounds a text conversion request body.
const maxTextBody = 8 << 20

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the body of GET /health.
type HealthInfo struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	Uptime           string `json:"uptime"`
	Configs          int    `json:"configs"`
	ActiveJobs       int    `json:"active_jobs"`
	CachedResults    int    `json:"cached_results"`
	WebSocketClients int    `json:"websocket_clients"`
}

// ConfigInfo describes one conversion configuration.
type ConfigInfo struct {
	Name               string     `json:"name"`
	Stages             [][]string `json:"stages"`
	Punctuation        string     `json:"punctuation"`
	PunctuationDefault bool       `json:"punctuation_default"`
}

// ConvertRequest is the JSON body of POST /convert.
type ConvertRequest struct {
	Text   string `json:"text"`
	Config string `json:"config"`
	// Punctuation overrides the configuration's punctuation default.
	Punctuation *bool `json:"punctuation,omitempty"`
}

// ConvertResult is the response of POST /convert.
type ConvertResult struct {
	Text        string `json:"text"`
	Config      string `json:"config"`
	Punctuation bool   `json:"punctuation"`
}

// DetectRequest is the JSON body of POST /detect.
type DetectRequest struct {
	Text string `json:"text"`
}

// DetectResult is the response of POST /detect.
type DetectResult struct {
	Script int    `json:"script"`
	Name   string `json:"name"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"name":    "zhconv",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /health",
			"GET /configs",
			"POST /convert",
			"POST /detect",
			"POST /documents",
			"GET /jobs",
			"POST /jobs",
			"GET /jobs/:id",
			"GET /jobs/:id/result",
			"DELETE /jobs/:id",
			"WS /ws",
		},
		"formats": document.Formats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	active := 0
	for _, job := range s.jobs.List() {
		if !job.Status.Done() {
			active++
		}
	}

	respond(w, http.StatusOK, HealthInfo{
		Status:           "healthy",
		Version:          s.cfg.Version,
		Uptime:           time.Since(s.started).Round(time.Second).String(),
		Configs:          len(s.conv.ListConfigs()),
		ActiveJobs:       active,
		CachedResults:    s.results.Len(),
		WebSocketClients: s.hub.ClientCount(),
	})
}

func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	names := s.conv.ListConfigs()
	configs := make([]ConfigInfo, 0, len(names))
	for _, name := range names {
		cfg, err := s.conv.Registry().Resolve(name)
		if err != nil {
			continue
		}
		configs = append(configs, ConfigInfo{
			Name:               string(cfg.Name),
			Stages:             cfg.Stages,
			Punctuation:        cfg.Punct.String(),
			PunctuationDefault: cfg.PunctuationDefault,
		})
	}
	respondList(w, http.StatusOK, configs, len(configs))
}

// handleConvert converts text. A JSON body answers with a ConvertResult;
// a text/plain body takes config and punctuation from the query string
// and answers with plain text.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if !server.ValidateContentType(contentType, server.AllowedTextContentTypes) {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json or text/plain")
		return
	}
	body := http.MaxBytesReader(w, r.Body, maxTextBody)

	var req ConvertRequest
	plain := strings.HasPrefix(strings.ToLower(contentType), "text/plain")
	if plain {
		data, err := io.ReadAll(body)
		if err != nil {
			respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large")
			return
		}
		req.Text = string(data)
		req.Config = r.URL.Query().Get("config")
		if v := r.URL.Query().Get("punctuation"); v != "" {
			p, err := strconv.ParseBool(v)
			if err != nil {
				respondError(w, http.StatusBadRequest, "INVALID_PARAMS", "punctuation must be a boolean")
				return
			}
			req.Punctuation = &p
		}
	} else if err := json.NewDecoder(body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	config, ok := s.configName(w, req.Config)
	if !ok {
		return
	}
	plan, err := s.conv.Plan(config)
	if err != nil {
		respondConversionError(w, r, err)
		return
	}
	punctuation := plan.Config.PunctuationDefault
	if req.Punctuation != nil {
		punctuation = *req.Punctuation
	}

	out := plan.Convert(req.Text, punctuation)
	if plain {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, out)
		return
	}
	respond(w, http.StatusOK, ConvertResult{Text: out, Config: config, Punctuation: punctuation})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	script, err := s.conv.Detect(req.Text)
	if err != nil {
		respondConversionError(w, r, err)
		return
	}
	respond(w, http.StatusOK, DetectResult{Script: int(script), Name: script.String()})
}

// handleDocuments converts an uploaded document synchronously and
// answers with the converted file.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if s.cfg.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DocumentTimeout)
		defer cancel()
	}

	s.hub.Progress("document", "", "converting", "Converting "+up.filename, 30)
	start := time.Now()
	var out bytes.Buffer
	report, err := s.conv.ConvertStream(ctx, bytes.NewReader(up.data), int64(len(up.data)), &out, up.request)
	if err != nil {
		s.hub.Fail("document", "", err.Error())
		respondConversionError(w, r, err)
		return
	}
	logging.DocumentConverted(ctx, up.filename, string(report.Format), report.Entries, report.ChangedEntries, time.Since(start))
	s.hub.Complete("document", "", "Converted "+up.filename, map[string]any{
		"format":           report.Format,
		"changed_segments": report.ChangedSegments,
	})

	writeDocument(w, convertedName(up.filename, report.Format), report, out.Bytes())
}

// upload is a validated multipart document upload.
type upload struct {
	filename string
	data     []byte
	request  convert.StreamRequest
}

// readUpload parses a multipart upload with a "file" part and the form
// fields config, punctuation, format and keep_font. On failure the error
// response has been written.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse multipart form or file too large")
		return upload{}, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "MISSING_FILE", "No file uploaded")
		return upload{}, false
	}
	defer file.Close()

	if err := validation.ValidateFilename(header.Filename); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_FILENAME", "Invalid filename provided")
		return upload{}, false
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !server.ValidateContentType(ct, server.AllowedUploadContentTypes) {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Unsupported upload content type: "+ct)
		return upload{}, false
	}
	if header.Size > s.cfg.MaxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds maximum size limit")
		return upload{}, false
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "FILE_PROCESSING_ERROR", "Failed to read upload")
		return upload{}, false
	}
	if int64(len(data)) > s.cfg.MaxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds maximum size limit")
		return upload{}, false
	}

	// Magic bytes must agree with the extension.
	fileType, err := validation.ValidateFileType(bytes.NewReader(data), header.Filename)
	if err != nil || fileType != validation.FileTypeZip {
		msg := "Uploaded file is not a zip-based document"
		if err != nil {
			msg = fmt.Sprintf("File validation failed: %v", err)
		}
		respondError(w, http.StatusUnprocessableEntity, "INVALID_FILE_TYPE", msg)
		return upload{}, false
	}

	config, ok := s.configName(w, r.FormValue("config"))
	if !ok {
		return upload{}, false
	}
	punctuation, err := formBool(r, "punctuation")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return upload{}, false
	}
	keepFont, err := formBool(r, "keep_font")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error())
		return upload{}, false
	}
	format := r.FormValue("format")
	if format != "" {
		if _, err := document.ParseFormat(format); err != nil {
			respondConversionError(w, r, err)
			return upload{}, false
		}
	}

	return upload{
		filename: header.Filename,
		data:     data,
		request: convert.StreamRequest{
			Name:        header.Filename,
			Config:      config,
			Punctuation: punctuation,
			Format:      format,
			KeepFont:    keepFont,
		},
	}, true
}

// configName validates a configuration name from a request. Empty means
// the fallback configuration.
func (s *Server) configName(w http.ResponseWriter, name string) (string, bool) {
	if name == "" {
		return string(pipeline.Fallback), true
	}
	if !server.ValidateIdentifier(name) || !s.conv.Registry().IsValid(name) {
		respondError(w, http.StatusBadRequest, "UNKNOWN_CONFIG", fmt.Sprintf("Unknown configuration %.64q", name))
		return "", false
	}
	return name, true
}

func formBool(r *http.Request, key string) (bool, error) {
	v := r.FormValue(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}

// errorStatus maps conversion errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrUnknownConfig):
		return http.StatusBadRequest, "UNKNOWN_CONFIG"
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"
	case errors.Is(err, errors.ErrContainerFormat):
		return http.StatusUnprocessableEntity, "CONTAINER_FORMAT"
	case errors.Is(err, errors.ErrEntryParse):
		return http.StatusUnprocessableEntity, "ENTRY_PARSE"
	case errors.Is(err, errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "CANCELLED"
	case errors.Is(err, errors.ErrDictionaryLoad):
		return http.StatusInternalServerError, "DICTIONARY_LOAD"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func respondConversionError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ConversionError(r.Context(), r.URL.Path, err)
	}
	respondError(w, status, code, err.Error())
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondList(w http.ResponseWriter, status int, data any, total int) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn("failed to encode response", "error", err)
	}
}
