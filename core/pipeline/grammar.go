package pipeline

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// definitionFile is the participle grammar for pipeline definitions.
//
//nolint:govet // participle grammar tags are not standard struct tags
type definitionFile struct {
	Pipelines []*pipelineDef `( @@ | Newline )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type pipelineDef struct {
	Pos    lexer.Position
	Name   string      `@Ident "="`
	Stages []*stageDef `@@ ( ">" @@ )*`
	Punct  *punctDef   `@@?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type stageDef struct {
	Tables []string `@Ident+`
}

//nolint:govet // participle grammar tags are not standard struct tags
type punctDef struct {
	Direction string `"punct" @Ident`
	Default   bool   `@"on"?`
}

// defLexer keeps newlines significant so that each pipeline ends at the
// end of its line.
var defLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Newline", Pattern: `\n`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "Keyword", Pattern: `(punct|on)\b`},
	{Name: "Ident", Pattern: `[A-Za-z0-9_]+`},
	{Name: "Punct", Pattern: `[=>]`},
})

var defParser = participle.MustBuild[definitionFile](
	participle.Lexer(defLexer),
	participle.Elide("Whitespace", "Comment"),
)
