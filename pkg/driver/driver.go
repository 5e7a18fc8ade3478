// Package driver wires the compilation pipeline end to end: lex, parse,
// semantic analysis, code generation.
package driver

import (
	"fmt"
	"io"

	"github.com/mpclang/mpc/pkg/codegen"
	"github.com/mpclang/mpc/pkg/lexer"
	"github.com/mpclang/mpc/pkg/parser"
	"github.com/mpclang/mpc/pkg/semantics"
	"github.com/mpclang/mpc/pkg/symbols"
	"github.com/mpclang/mpc/pkg/util"
	"github.com/mpclang/mpc/pkg/vm"
)

// Compile translates MiniPascal source text into stack machine
// instructions. Lexical and syntax errors abort the process with a
// source-anchored diagnostic; semantic and generation errors are
// returned.
func Compile(name, source string) (string, error) {
	content := []rune(source)
	util.SetSource(name, content)

	tokens := lexer.Tokenize(content)
	prog := parser.Parse(tokens)

	table := symbols.NewTable()
	if err := semantics.Analyze(prog, table); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return codegen.Generate(prog, table)
}

// Run compiles source and interprets the result, writing program output
// to out.
func Run(name, source string, out io.Writer) error {
	code, err := Compile(name, source)
	if err != nil {
		return err
	}
	return vm.Run(code, out)
}
