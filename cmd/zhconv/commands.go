package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/zhconv/core/convert"
	"github.com/FocuswithJustin/zhconv/core/dict"
	"github.com/FocuswithJustin/zhconv/core/document"
	"github.com/FocuswithJustin/zhconv/core/pipeline"
	"github.com/FocuswithJustin/zhconv/core/sqlite"
	"github.com/FocuswithJustin/zhconv/internal/api"
	"github.com/FocuswithJustin/zhconv/internal/textio"
)

// ConvertCmd converts plain text from a file or stdin.
type ConvertCmd struct {
	Input  string `short:"i" help:"Input file (default: stdin)" type:"path"`
	Output string `short:"o" help:"Output file (default: stdout)" type:"path"`
	Config string `short:"c" help:"Conversion configuration (default: s2t)"`
	Punct  bool   `short:"p" help:"Also convert quotation punctuation"`
	InEnc  string `name:"in-enc" default:"utf-8" help:"Input encoding, e.g. gbk, big5, gb18030, utf-16"`
	OutEnc string `name:"out-enc" default:"utf-8" help:"Output encoding"`
}

func (c *ConvertCmd) Run(a *app) error {
	config := resolveConfig(a, c.Config)
	// Fail on bad encodings before touching the output.
	if _, err := textio.Lookup(c.InEnc); err != nil {
		return err
	}
	if _, err := textio.Lookup(c.OutEnc); err != nil {
		return err
	}

	conv, closeFn, err := a.converter()
	if err != nil {
		return err
	}
	defer closeFn()
	plan, err := conv.Plan(config)
	if err != nil {
		return err
	}

	in := a.stdin
	from := "<stdin>"
	if c.Input != "" {
		f, err := os.Open(c.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		in, from = f, c.Input
	} else if isTerminal(a.stdin) {
		a.status("Input text to convert, Ctrl+D to submit:")
	}

	text, err := textio.ReadAll(in, c.InEnc)
	if err != nil {
		return err
	}
	out := plan.Convert(text, c.Punct)

	if c.Output == "" {
		return textio.WriteString(a.stdout, out, c.OutEnc)
	}
	if err := writeFile(c.Output, out, c.OutEnc); err != nil {
		return err
	}
	a.status("Conversion completed (%s): %s -> %s", config, from, c.Output)
	return nil
}

// writeFile encodes s into path, leaving no partial file on failure.
func writeFile(path, s, encoding string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".zhconv-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := textio.WriteString(f, s, encoding); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	// CreateTemp opens the file 0600.
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// resolveConfig falls back to s2t when no configuration is named.
func resolveConfig(a *app, config string) string {
	if config != "" {
		return config
	}
	a.status("Config not specified. Using default %q", pipeline.Fallback)
	return string(pipeline.Fallback)
}

// OfficeCmd converts the text inside an office document or EPUB.
type OfficeCmd struct {
	Input    string        `short:"i" required:"" help:"Input document" type:"existingfile"`
	Output   string        `short:"o" help:"Output document (default: <name>_converted<ext>)" type:"path"`
	Config   string        `short:"c" help:"Conversion configuration (default: s2t)"`
	Punct    bool          `short:"p" help:"Also convert quotation punctuation"`
	Format   string        `short:"f" help:"Container format: docx, xlsx, pptx, odt, ods, odp or epub (default: from the input extension)"`
	AutoExt  bool          `name:"auto-ext" help:"Append the format's extension to an output name without one"`
	KeepFont bool          `name:"keep-font" help:"Keep font declarations unchanged"`
	Timeout  time.Duration `help:"Abort the conversion after this long (0 = no limit)"`
	JSON     bool          `name:"json" help:"Print the conversion report as JSON"`
}

func (c *OfficeCmd) Run(ctx context.Context, a *app) error {
	config := resolveConfig(a, c.Config)

	conv, closeFn, err := a.converter()
	if err != nil {
		return err
	}
	defer closeFn()

	if c.Format == "" && document.FromPath(c.Input) == document.Unknown {
		return fmt.Errorf("cannot infer the format of %s; use --format (%s)", c.Input, formatList())
	}

	report, err := conv.ConvertDocument(ctx, convert.DocumentRequest{
		Input:         c.Input,
		Output:        c.Output,
		Config:        config,
		Punctuation:   c.Punct,
		Format:        c.Format,
		AutoExtension: c.AutoExt,
		KeepFont:      c.KeepFont,
		Timeout:       c.Timeout,
	})
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	out, err := filepath.Abs(report.Output)
	if err != nil {
		out = report.Output
	}
	a.status("Converted %s (%s, %d of %d text entries changed)", c.Input, report.Format, report.ChangedEntries, report.TextEntries)
	a.status("Output saved to: %s", out)
	return nil
}

func formatList() string {
	names := make([]string, 0, len(document.Formats()))
	for _, f := range document.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// DetectCmd reports the script of text given as arguments, a file or
// stdin.
type DetectCmd struct {
	Text  []string `arg:"" optional:"" help:"Text to inspect (default: stdin)"`
	Input string   `short:"i" help:"Read text from this file" type:"existingfile"`
	InEnc string   `name:"in-enc" default:"utf-8" help:"Input encoding"`
	Code  bool     `help:"Print 1 (Traditional), 2 (Simplified) or 0 instead of a name"`
}

func (c *DetectCmd) Run(a *app) error {
	var text string
	switch {
	case len(c.Text) > 0:
		text = strings.Join(c.Text, " ")
	case c.Input != "":
		f, err := os.Open(c.Input)
		if err != nil {
			return err
		}
		defer f.Close()
		if text, err = textio.ReadAll(f, c.InEnc); err != nil {
			return err
		}
	default:
		var err error
		if text, err = textio.ReadAll(a.stdin, c.InEnc); err != nil {
			return err
		}
	}

	conv, closeFn, err := a.converter()
	if err != nil {
		return err
	}
	defer closeFn()

	script, err := conv.Detect(text)
	if err != nil {
		return err
	}
	if c.Code {
		fmt.Fprintln(a.stdout, int(script))
		return nil
	}
	fmt.Fprintln(a.stdout, script)
	return nil
}

// ConfigsCmd lists the conversion configurations.
type ConfigsCmd struct {
	Verbose bool `short:"v" help:"Show each configuration in definition syntax"`
}

func (c *ConfigsCmd) Run(a *app) error {
	registry := pipeline.Default()
	for _, name := range registry.Names() {
		if !c.Verbose {
			fmt.Fprintln(a.stdout, name)
			continue
		}
		cfg, err := registry.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, cfg)
	}
	return nil
}

// ServeCmd runs the REST API.
type ServeCmd struct {
	Port           int           `env:"ZHCONV_PORT" default:"8080" help:"HTTP server port"`
	APIKey         string        `name:"api-key" env:"ZHCONV_API_KEY" help:"Require this key in X-API-Key (empty = no authentication)"`
	RateLimit      int           `name:"rate-limit" help:"Requests per minute per client (0 = unlimited)"`
	RateBurst      int           `name:"rate-burst" default:"10" help:"Rate limit burst size"`
	AllowedOrigins []string      `name:"allowed-origin" help:"Allowed CORS and WebSocket origin (repeatable; default: all)"`
	TLSCert        string        `name:"tls-cert" help:"TLS certificate file" type:"path"`
	TLSKey         string        `name:"tls-key" help:"TLS private key file" type:"path"`
	MaxUpload      int64         `name:"max-upload" help:"Maximum upload size in bytes (0 = default)"`
	Timeout        time.Duration `default:"2m" help:"Per-document conversion timeout"`
	JobWorkers     int           `name:"job-workers" default:"2" help:"Documents converted concurrently by the job queue"`
	ResultTTL      time.Duration `name:"result-ttl" default:"1h" help:"How long finished job results stay downloadable"`
}

func (c *ServeCmd) config(conv *convert.Converter) api.Config {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.Version = version
	cfg.Converter = conv
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.RateBurst
	cfg.AllowedOrigins = c.AllowedOrigins
	cfg.DocumentTimeout = c.Timeout
	cfg.JobWorkers = c.JobWorkers
	cfg.ResultTTL = c.ResultTTL
	if c.MaxUpload > 0 {
		cfg.MaxUploadSize = c.MaxUpload
	}
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{Enabled: true, CertFile: c.TLSCert, KeyFile: c.TLSKey}
	}
	return cfg
}

func (c *ServeCmd) Run(ctx context.Context, a *app) error {
	conv, closeFn, err := a.converter()
	if err != nil {
		return err
	}
	defer closeFn()

	cfg := c.config(conv)
	if err := cfg.Validate(); err != nil {
		if cfg.Auth.Enabled {
			a.status("%s", api.GenerateAPIKeyExample())
		}
		return err
	}
	return api.Start(ctx, cfg)
}

// DictGroup contains dictionary table operations.
type DictGroup struct {
	Import DictImportCmd `cmd:"" help:"Copy dictionary tables into a SQLite database"`
	Tables DictTablesCmd `cmd:"" help:"List dictionary tables and their entry counts"`
}

// DictImportCmd loads the tables of the configured source into a
// database usable with --dict-db.
type DictImportCmd struct {
	Database string `arg:"" help:"SQLite database to create or extend" type:"path"`
}

func (c *DictImportCmd) Run(ctx context.Context, a *app) error {
	if a.DictDB != "" {
		return fmt.Errorf("dict import reads from --dict-dir or the bundled tables, not --dict-db")
	}
	src, closeFn, err := a.source()
	if err != nil {
		return err
	}
	defer closeFn()

	db, err := sqlite.Open(c.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := dict.Import(ctx, db, src)
	if err != nil {
		return err
	}
	a.status("Imported %d tables into %s (%s driver)", n, c.Database, sqlite.DriverType())
	return nil
}

// DictTablesCmd lists the tables the configured source provides.
type DictTablesCmd struct{}

func (c *DictTablesCmd) Run(a *app) error {
	src, closeFn, err := a.source()
	if err != nil {
		return err
	}
	defer closeFn()

	store := dict.NewStore(src)
	for _, id := range dict.TableIDs() {
		d, err := store.Table(id)
		if err != nil {
			fmt.Fprintf(a.stdout, "%-28s missing\n", id)
			continue
		}
		fmt.Fprintf(a.stdout, "%-28s %7d  %s\n", id, d.Len(), d.Fingerprint()[:16])
	}
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(a.stdout, "zhconv version %s (sqlite: %s, %s)\n", version, info.DriverType, info.Package)
	return nil
}
