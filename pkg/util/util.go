// Package util provides source-anchored diagnostics for the compiler.
package util

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mpclang/mpc/pkg/token"
)

// SourceFile tracks the name and content of the file being compiled,
// so diagnostics can print the offending line.
type SourceFile struct {
	Name    string
	Content []rune
}

var source SourceFile

// SetSource stores the source code of the current compilation unit for
// rich error messages.
func SetSource(name string, content []rune) {
	source = SourceFile{Name: name, Content: content}
}

func useColor(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}

func paint(stream *os.File, code, s string) string {
	if !useColor(stream) {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// printErrorLine prints the source line and a caret indicating the error position.
func printErrorLine(stream *os.File, tok token.Token) {
	if tok.Line == 0 || len(source.Content) == 0 {
		return
	}

	content := source.Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(stream, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(stream, "  %s%s\n", strings.Repeat(" ", tok.Column-1), paint(stream, "32", caret))
}

// Error prints a formatted error message anchored at tok and exits.
func Error(tok token.Token, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s:%d:%d: %s ", source.Name, tok.Line, tok.Column, paint(os.Stderr, "31", "error:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	printErrorLine(os.Stderr, tok)
	os.Exit(1)
}

// Warn prints a formatted warning message anchored at tok.
func Warn(tok token.Token, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s:%d:%d: %s ", source.Name, tok.Line, tok.Column, paint(os.Stderr, "33", "warning:"))
	fmt.Fprintf(os.Stderr, format, args...)
	fmt.Fprintln(os.Stderr)
	printErrorLine(os.Stderr, tok)
}
