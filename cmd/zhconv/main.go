// Command zhconv converts Chinese text and office documents between
// Simplified and Traditional scripts and serves the same over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/zhconv/core/convert"
	"github.com/FocuswithJustin/zhconv/core/dict"
	"github.com/FocuswithJustin/zhconv/internal/logging"
)

var version = "dev"

// CLI defines the command-line interface for zhconv.
type CLI struct {
	Globals

	Convert ConvertCmd `cmd:"" help:"Convert plain text"`
	Office  OfficeCmd  `cmd:"" help:"Convert an office document or EPUB"`
	Detect  DetectCmd  `cmd:"" help:"Detect whether text is Traditional or Simplified"`
	Configs ConfigsCmd `cmd:"" help:"List conversion configurations"`
	Serve   ServeCmd   `cmd:"" help:"Start the REST API server"`
	Dict    DictGroup  `cmd:"" help:"Dictionary table operations"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// Globals are flags shared by every command.
type Globals struct {
	DictDir   string `name:"dict-dir" env:"ZHCONV_DICT_DIR" help:"Read dictionary tables from this directory (.txt or .txt.xz)" type:"path"`
	DictDB    string `name:"dict-db" env:"ZHCONV_DICT_DB" help:"Read dictionary tables from this SQLite database" type:"path"`
	LogLevel  string `name:"log-level" env:"ZHCONV_LOG_LEVEL" default:"warn" enum:"debug,info,warn,error" help:"Log level"`
	LogFormat string `name:"log-format" env:"ZHCONV_LOG_FORMAT" default:"text" enum:"json,text" help:"Log format"`
	Workers   int    `env:"ZHCONV_WORKERS" help:"Entries converted in parallel per document (0 = one per CPU)"`
}

// app carries what commands need at run time.
type app struct {
	Globals
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// source returns the dictionary source chosen by the global flags. The
// returned closer releases it.
func (a *app) source() (dict.Source, func(), error) {
	switch {
	case a.DictDir != "" && a.DictDB != "":
		return nil, nil, fmt.Errorf("--dict-dir and --dict-db are mutually exclusive")
	case a.DictDB != "":
		src, err := dict.OpenSQLiteSource(a.DictDB)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	case a.DictDir != "":
		return dict.DirSource{Dir: a.DictDir}, func() {}, nil
	default:
		return dict.EmbeddedSource{}, func() {}, nil
	}
}

// converter builds a converter over the configured dictionary source.
func (a *app) converter() (*convert.Converter, func(), error) {
	src, closeFn, err := a.source()
	if err != nil {
		return nil, nil, err
	}
	opts := []convert.Option{convert.WithStore(dict.NewStore(src))}
	if a.Workers > 0 {
		opts = append(opts, convert.WithWorkers(a.Workers))
	}
	return convert.New(opts...), closeFn, nil
}

func (a *app) status(format string, args ...any) {
	fmt.Fprintf(a.stderr, format+"\n", args...)
}

func setupLogging(g Globals, w io.Writer) error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.SetOutput(w)
	logging.InitLogger(level, format)
	return nil
}

func newParser(cli *CLI, stdout, stderr io.Writer, exit func(int)) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("zhconv"),
		kong.Description("Chinese Simplified/Traditional conversion for text and documents"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
	)
}

// run parses args and runs the selected command.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := newParser(&cli, stdout, stderr, os.Exit)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if err := setupLogging(cli.Globals, stderr); err != nil {
		return err
	}

	a := &app{Globals: cli.Globals, stdin: stdin, stdout: stdout, stderr: stderr}
	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(a)
}

func main() {
	// A missing .env file is fine; variables already set win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "zhconv: %v\n", err)
		stop()
		os.Exit(1)
	}
}
