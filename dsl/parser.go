package dsl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	dslLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r]+`},
		{Name: "Newline", Pattern: `\n+`},
		{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
		{Name: "LineComment", Pattern: `//[^\n]*`},
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})\b`},
		{Name: "HashComment", Pattern: `#[^\n]*`},
		{Name: "Number", Pattern: `(?:\d+\.\d+|\d+)(?:px|pt|mm|ms|s|m|h|%)?`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
		{Name: "Symbol", Pattern: `[][(),=;:]`},
		{Name: "LBrace", Pattern: `{`},
		{Name: "RBrace", Pattern: `}`},
	})

	fileParser = participle.MustBuild[File](
		participle.Lexer(dslLexer),
		participle.Elide("Whitespace", "LineComment", "BlockComment", "HashComment"),
		participle.UseLookahead(2),
	)
)

// File is the root AST node of a logicfeed configuration file:
//
//	feed logicfeed v1 {
//	  source { ... }
//	  resources { ... }
//	  style Default { ... }
//	  mail { ... }
//	  web { ... }
//	  store { ... }
//	}
type File struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Name     string         `parser:"Newline* 'feed' @Ident"`
	Version  string         `parser:"@Ident"`
	Sections []*Section     `parser:"'{' Newline* ( @@ Newline* )* '}' Newline*"`
}

// Section represents a top-level section.
type Section struct {
	Pos       lexer.Position `parser:"" json:"-"`
	Source    *Block         `parser:"  'source' @@"`
	Resources *Block         `parser:"| 'resources' @@"`
	Style     *StyleSection  `parser:"| @@"`
	Mail      *Block         `parser:"| 'mail' @@"`
	Web       *Block         `parser:"| 'web' @@"`
	Store     *Block         `parser:"| 'store' @@"`
}

// Kind returns the human-readable section type.
func (s *Section) Kind() string {
	switch {
	case s == nil:
		return "unknown"
	case s.Source != nil:
		return "source"
	case s.Resources != nil:
		return "resources"
	case s.Style != nil:
		return "style"
	case s.Mail != nil:
		return "mail"
	case s.Web != nil:
		return "web"
	case s.Store != nil:
		return "store"
	default:
		return "unknown"
	}
}

// StyleSection declares a named caption style, optionally extending another.
type StyleSection struct {
	Name    string `parser:"'style' @Ident"`
	Extends string `parser:"( 'extends' @Ident )?"`
	Block   *Block `parser:"@@"`
}

// Block is a delimited list of statements.
type Block struct {
	Statements []*Statement `parser:"'{' Newline* ( @@ ( ';' | Newline )* )* '}'"`
}

// Statement inside a block (assignment or command).
type Statement struct {
	Assignment *Assignment `parser:"  @@"`
	Command    *Command    `parser:"| @@"`
}

// Assignment uses colon syntax (key: value).
type Assignment struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Key   string         `parser:"@Ident ':'"`
	Value *Value         `parser:"Newline* @@"`
}

// Command declares a resource, eg: `font Impact { src: "impact.ttf" }` or `color Accent = #0F62FE`.
// The optional block must start on the same line.
type Command struct {
	Pos    lexer.Position `parser:"" json:"-"`
	Name   string         `parser:"@Ident"`
	Args   []*Value       `parser:"@@*"`
	Assign *Value         `parser:"( '=' @@ )?"`
	Block  *Block         `parser:"@@?"`
}

// Value represents generic property values.
type Value struct {
	Pos    lexer.Position `parser:"" json:"-"`
	String *StringLiteral `parser:"  @String"`
	Number *string        `parser:"| @Number"`
	Color  *string        `parser:"| @Color"`
	Array  *ArrayValue    `parser:"| @@"`
	Call   *Call          `parser:"| @@"`
	Ident  *string        `parser:"| @Ident"`
}

// ArrayValue captures `[ ... ]` expressions; elements are separated by commas and/or newlines.
type ArrayValue struct {
	Values []*Value `parser:"'[' ( ',' | Newline )* ( @@ ( ',' | Newline )* )* ']'"`
}

// Call captures function-style values such as rgb(255, 0, 0).
type Call struct {
	Name string   `parser:"@Ident '('"`
	Args []*Value `parser:"( @@ ( ',' @@ )* )? ')'"`
}

// StringLiteral unquotes Go-style strings on capture.
type StringLiteral string

// Capture implements participle.Capture.
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("string literal capture requires value")
	}
	val, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(val)
	return nil
}

// Text renders a scalar value back to its textual form; calls are printed
// without spaces (eg: "rgb(255,0,0)") and arrays are joined with ", ".
func (v *Value) Text() string {
	switch {
	case v == nil:
		return ""
	case v.String != nil:
		return string(*v.String)
	case v.Number != nil:
		return *v.Number
	case v.Color != nil:
		return *v.Color
	case v.Ident != nil:
		return *v.Ident
	case v.Call != nil:
		args := make([]string, 0, len(v.Call.Args))
		for _, a := range v.Call.Args {
			args = append(args, a.Text())
		}
		return v.Call.Name + "(" + strings.Join(args, ",") + ")"
	case v.Array != nil:
		return strings.Join(v.List(), ", ")
	}
	return ""
}

// List returns array elements as text; a scalar becomes a single-element list.
func (v *Value) List() []string {
	if v == nil {
		return nil
	}
	if v.Array == nil {
		if s := v.Text(); s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(v.Array.Values))
	for _, item := range v.Array.Values {
		out = append(out, item.Text())
	}
	return out
}

// Parse parses DSL content from an io.Reader.
func Parse(r io.Reader) (*File, error) {
	return fileParser.Parse("", r)
}

// ParseString parses DSL content from a string.
func ParseString(input string) (*File, error) {
	return fileParser.ParseString("", input)
}
