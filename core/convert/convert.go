// Package convert is the caller-facing API: text conversion by
// configuration name, script detection and document conversion.
package convert

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/FocuswithJustin/zhconv/core/cache"
	"github.com/FocuswithJustin/zhconv/core/detect"
	"github.com/FocuswithJustin/zhconv/core/dict"
	"github.com/FocuswithJustin/zhconv/core/document"
	"github.com/FocuswithJustin/zhconv/core/engine"
	"github.com/FocuswithJustin/zhconv/core/pipeline"
	"github.com/FocuswithJustin/zhconv/core/punct"
	"github.com/FocuswithJustin/zhconv/internal/logging"
)

// Plan is a configuration resolved to loaded dictionary stages.
type Plan struct {
	Config pipeline.Config
	Stages []engine.Stage
	punct  *punct.Table
}

// Convert runs text through the plan. Punctuation is mapped only when
// punctuation is true.
func (p *Plan) Convert(text string, punctuation bool) string {
	var table *punct.Table
	if punctuation {
		table = p.punct
	}
	return engine.Apply(text, p.Stages, table)
}

// Transformer adapts the plan for document conversion.
func (p *Plan) Transformer(punctuation bool) document.Transformer {
	return document.TransformFunc(func(s string) string {
		return p.Convert(s, punctuation)
	})
}

// Option configures a Converter.
type Option func(*Converter)

// WithStore sets the dictionary store. The default is dict.Default().
func WithStore(s *dict.Store) Option {
	return func(c *Converter) { c.store = s }
}

// WithRegistry sets the configuration registry.
func WithRegistry(r *pipeline.Registry) Option {
	return func(c *Converter) { c.registry = r }
}

// WithWorkers bounds the entries converted at once inside one document.
func WithWorkers(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.docs.Workers = n
		}
	}
}

// WithMaxEntrySize bounds the decompressed size of one document entry.
func WithMaxEntrySize(n int64) Option {
	return func(c *Converter) {
		if n > 0 {
			c.docs.MaxEntrySize = n
		}
	}
}

// Converter bundles the dictionary store, the configuration registry and
// the script detector. It is safe for concurrent use.
type Converter struct {
	store    *dict.Store
	registry *pipeline.Registry
	docs     *document.Converter
	plans    cache.Cache[string, *Plan]
	mu       sync.Mutex

	detectOnce sync.Once
	detector   *detect.Detector
	detectErr  error
}

// New creates a converter.
func New(opts ...Option) *Converter {
	c := &Converter{
		docs:  document.NewConverter(),
		plans: cache.NewLRUCache[string, *Plan](cache.Config{MaxSize: 0}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = dict.Default()
	}
	if c.registry == nil {
		c.registry = pipeline.Default()
	}
	return c
}

var (
	defaultConverter     *Converter
	defaultConverterOnce sync.Once
)

// Default returns the process-wide converter over the bundled tables.
func Default() *Converter {
	defaultConverterOnce.Do(func() {
		defaultConverter = New()
	})
	return defaultConverter
}

// Registry returns the configuration registry.
func (c *Converter) Registry() *pipeline.Registry {
	return c.registry
}

// Plan resolves name and loads its stage dictionaries. Plans are cached
// per name.
func (c *Converter) Plan(name string) (*Plan, error) {
	if p, ok := c.plans.Get(name); ok {
		return p, nil
	}
	cfg, err := c.registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.plans.Get(name); ok {
		return p, nil
	}

	p := &Plan{Config: cfg, punct: punct.TableFor(cfg.Punct)}
	for i, ids := range cfg.Stages {
		d, err := c.store.Load(ids...)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, engine.Stage{Ordinal: i, Dict: d})
	}
	c.plans.Put(name, p)
	return p, nil
}

// ConvertText converts text with the named configuration.
func (c *Converter) ConvertText(text, config string, punctuation bool) (string, error) {
	p, err := c.Plan(config)
	if err != nil {
		return "", err
	}
	return p.Convert(text, punctuation), nil
}

// Detect classifies the script of text.
func (c *Converter) Detect(text string) (detect.Script, error) {
	c.detectOnce.Do(func() {
		st, err := c.store.Table(dict.STCharacters)
		if err != nil {
			c.detectErr = err
			return
		}
		ts, err := c.store.Table(dict.TSCharacters)
		if err != nil {
			c.detectErr = err
			return
		}
		c.detector = detect.New(st, ts)
	})
	if c.detectErr != nil {
		return detect.Other, c.detectErr
	}
	return c.detector.Detect(text), nil
}

// DetectScript returns 1 for Traditional, 2 for Simplified and 0 when
// the script cannot be decided. A missing character table yields 0.
func (c *Converter) DetectScript(text string) int {
	s, err := c.Detect(text)
	if err != nil {
		logging.Error("script detection unavailable", "error", err)
		return int(detect.Other)
	}
	return int(s)
}

// ListConfigs returns the configuration names in definition order.
func (c *Converter) ListConfigs() []string {
	return c.registry.Names()
}

// DocumentRequest describes one document conversion.
type DocumentRequest struct {
	Input  string
	Output string
	Config string
	// Punctuation maps quotation glyphs in text runs.
	Punctuation bool
	// Format is a format hint such as "docx"; empty means detect.
	Format        string
	AutoExtension bool
	// KeepFont leaves font declarations untouched.
	KeepFont bool
	Timeout  time.Duration
}

func (c *Converter) documentOptions(config, format string) (*Plan, document.Format, error) {
	p, err := c.Plan(config)
	if err != nil {
		return nil, document.Unknown, err
	}
	f := document.Unknown
	if format != "" {
		if f, err = document.ParseFormat(format); err != nil {
			return nil, document.Unknown, err
		}
	}
	return p, f, nil
}

// ConvertDocument converts a document file. On failure no output file is
// left behind.
func (c *Converter) ConvertDocument(ctx context.Context, req DocumentRequest) (*document.Report, error) {
	p, format, err := c.documentOptions(req.Config, req.Format)
	if err != nil {
		return nil, err
	}
	report, err := c.docs.ConvertFile(ctx, document.FileRequest{
		Input:         req.Input,
		Output:        req.Output,
		Format:        format,
		AutoExtension: req.AutoExtension,
		FontPolicy:    document.PolicyFor(req.KeepFont),
		Transformer:   p.Transformer(req.Punctuation),
		Timeout:       req.Timeout,
	})
	if err != nil {
		logging.ConversionError(ctx, "convert document", err, "input", req.Input, "config", req.Config)
		return nil, err
	}
	return report, nil
}

// StreamRequest describes an in-memory document conversion.
type StreamRequest struct {
	Name        string
	Config      string
	Punctuation bool
	Format      string
	KeepFont    bool
}

// ConvertStream converts the archive in src and writes the result to dst.
// dst receives nothing when the conversion fails.
func (c *Converter) ConvertStream(ctx context.Context, src io.ReaderAt, size int64, dst io.Writer, req StreamRequest) (*document.Report, error) {
	p, format, err := c.documentOptions(req.Config, req.Format)
	if err != nil {
		return nil, err
	}
	return c.docs.Convert(ctx, src, size, dst, document.Options{
		Transformer: p.Transformer(req.Punctuation),
		Format:      format,
		FontPolicy:  document.PolicyFor(req.KeepFont),
		Name:        req.Name,
	})
}

// ConvertText converts text with the default converter.
func ConvertText(text, config string, punctuation bool) (string, error) {
	return Default().ConvertText(text, config, punctuation)
}

// DetectScript classifies text with the default converter.
func DetectScript(text string) int {
	return Default().DetectScript(text)
}

// ListConfigs lists the bundled configuration names.
func ListConfigs() []string {
	return Default().ListConfigs()
}

// ConvertDocument converts a document file with the default converter.
func ConvertDocument(ctx context.Context, req DocumentRequest) (*document.Report, error) {
	return Default().ConvertDocument(ctx, req)
}

// IsValidConfig reports whether name is a bundled configuration.
func IsValidConfig(name string) bool {
	return Default().registry.IsValid(name)
}

// SupportedConfigs is an alias of ListConfigs.
func SupportedConfigs() []string {
	return ListConfigs()
}
