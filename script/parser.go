// Package script runs scene scripts against a compositor.
//
// A scene script is a line-oriented description of a scene and the
// transactions applied to it:
//
//	output main 256 256
//	layer bg 256 256
//	layer fg 64 64 parent bg
//	fill bg #3f3fc3
//	fill fg #c33f3f
//	tx {
//	    position fg 64 64
//	    alpha fg 0.75
//	} sync
//	capture main "moved.png"
//
// Comments start with // and run to the end of the line.
package script

import (
	"fmt"
	"io"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r]+`},
		{Name: "Newline", Pattern: `\n+`},
		{Name: "Comment", Pattern: `//[^\n]*`},
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3,4})`},
		{Name: "Number", Pattern: `[-+]?(?:\d+\.\d*|\.\d+|\d+)`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
		{Name: "LBrace", Pattern: `{`},
		{Name: "RBrace", Pattern: `}`},
	})

	scriptParser = participle.MustBuild[Script](
		participle.Lexer(scriptLexer),
		participle.Elide("Whitespace", "Comment"),
	)
)

// Script is a parsed scene script.
type Script struct {
	Statements []*Statement `parser:"Newline* ( @@ Newline* )*"`
}

// Statement is one top-level line of a script.
type Statement struct {
	Pos lexer.Position `parser:""`

	Output       *OutputStmt       `parser:"  @@"`
	Layer        *LayerStmt        `parser:"| @@"`
	Fill         *FillStmt         `parser:"| @@"`
	Tx           *TxStmt           `parser:"| @@"`
	Flush        bool              `parser:"| @'flush'"`
	Capture      *CaptureStmt      `parser:"| @@"`
	CaptureLayer *CaptureLayerStmt `parser:"| @@"`
	Destroy      *DestroyStmt      `parser:"| @@"`
	Dispose      *DisposeStmt      `parser:"| @@"`
}

// OutputStmt declares an output. Outputs are configured before the
// compositor starts; see Script.Outputs.
type OutputStmt struct {
	ID     string   `parser:"'output' @Ident"`
	Width  int      `parser:"@Number"`
	Height int      `parser:"@Number"`
	Stack  *uint32  `parser:"( 'stack' @Number )?"`
	Hz     *float64 `parser:"( 'hz' @Number )?"`
}

// LayerStmt creates a layer:
//
//	layer NAME W H [color] [hidden] [parent NAME] [client NAME]
type LayerStmt struct {
	Name   string `parser:"'layer' @Ident"`
	Width  int    `parser:"@Number"`
	Height int    `parser:"@Number"`
	Color  bool   `parser:"@'color'?"`
	Hidden bool   `parser:"@'hidden'?"`
	Parent string `parser:"( 'parent' @Ident )?"`
	Client string `parser:"( 'client' @Ident )?"`
}

// FillStmt queues a solid buffer on a layer. Without an explicit size the
// buffer has the layer's requested size.
type FillStmt struct {
	Layer string `parser:"'fill' @Ident"`
	Color string `parser:"@Color"`
	Size  *Size  `parser:"@@?"`
}

// Size is an explicit width and height.
type Size struct {
	Width  int `parser:"@Number"`
	Height int `parser:"@Number"`
}

// TxStmt builds and applies one transaction.
type TxStmt struct {
	Ops  []*Op `parser:"'tx' '{' Newline* ( @@ Newline* )* '}'"`
	Sync bool  `parser:"@'sync'?"`
}

// Op is one transaction operation, such as "position fg 10 20".
type Op struct {
	Pos  lexer.Position `parser:""`
	Name string         `parser:"@Ident"`
	Args []*Arg         `parser:"@@*"`
}

// Arg is an operation argument.
type Arg struct {
	Number *float64 `parser:"  @Number"`
	Color  *string  `parser:"| @Color"`
	Ident  *string  `parser:"| @Ident"`
}

// String returns the argument as written.
func (a *Arg) String() string {
	switch {
	case a.Number != nil:
		return strconv.FormatFloat(*a.Number, 'g', -1, 64)
	case a.Color != nil:
		return *a.Color
	case a.Ident != nil:
		return *a.Ident
	}
	return "?"
}

// CaptureStmt captures an output, optionally limited to a z range.
type CaptureStmt struct {
	Output string        `parser:"'capture' @Ident"`
	File   StringLiteral `parser:"@String"`
	Z      *ZRange       `parser:"@@?"`
}

// ZRange bounds the absolute z of the captured layers.
type ZRange struct {
	Min int32 `parser:"'z' @Number"`
	Max int32 `parser:"@Number"`
}

// CaptureLayerStmt captures the subtree rooted at a layer.
type CaptureLayerStmt struct {
	Layer string        `parser:"'capture-layer' @Ident"`
	File  StringLiteral `parser:"@String"`
}

// DestroyStmt destroys a layer.
type DestroyStmt struct {
	Layer string `parser:"'destroy' @Ident"`
}

// DisposeStmt disposes a client and every layer it owns.
type DisposeStmt struct {
	Client string `parser:"'dispose' @Ident"`
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

// Parse parses a script from r. The name is used in error positions.
func Parse(name string, r io.Reader) (*Script, error) {
	return scriptParser.Parse(name, r)
}

// ParseString parses a script from a string.
func ParseString(input string) (*Script, error) {
	return scriptParser.ParseString("", input)
}
