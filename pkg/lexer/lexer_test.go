package lexer

import (
	"testing"

	"github.com/mpclang/mpc/pkg/token"
)

func tokenTypes(src string) []token.Type {
	toks := Tokenize([]rune(src))
	types := make([]token.Type, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func expectTypes(t *testing.T, src string, want []token.Type) {
	t.Helper()
	got := tokenTypes(src)
	want = append(want, token.EOF)
	if len(got) != len(want) {
		t.Fatalf("token count = %d, want %d (tokens: %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestKeywordsAndIdents(t *testing.T) {
	expectTypes(t, "program demo; var x : integer;", []token.Type{
		token.Program, token.Ident, token.Semi,
		token.Var, token.Ident, token.Colon, token.Integer, token.Semi,
	})
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	expectTypes(t, "PROGRAM Begin WHILE Do", []token.Type{
		token.Program, token.Begin, token.While, token.Do,
	})
}

func TestOperators(t *testing.T) {
	expectTypes(t, ":= : <> <= >= < > = + - * / . ..", []token.Type{
		token.Assign, token.Colon, token.Neq, token.Lte, token.Gte,
		token.Lt, token.Gt, token.Eq, token.Plus, token.Minus,
		token.Star, token.Slash, token.Dot, token.DotDot,
	})
}

func TestNumbers(t *testing.T) {
	toks := Tokenize([]rune("42 3.14 7"))
	if toks[0].Type != token.IntNumber || toks[0].Value != "42" {
		t.Errorf("token 0 = %v %q, want integer 42", toks[0].Type, toks[0].Value)
	}
	if toks[1].Type != token.RealNumber || toks[1].Value != "3.14" {
		t.Errorf("token 1 = %v %q, want real 3.14", toks[1].Type, toks[1].Value)
	}
	if toks[2].Type != token.IntNumber || toks[2].Value != "7" {
		t.Errorf("token 2 = %v %q, want integer 7", toks[2].Type, toks[2].Value)
	}
}

func TestRangeIsNotADecimalPoint(t *testing.T) {
	expectTypes(t, "array[1..10] of integer", []token.Type{
		token.Array, token.LBracket, token.IntNumber, token.DotDot,
		token.IntNumber, token.RBracket, token.Of, token.Integer,
	})
}

func TestStringLiterals(t *testing.T) {
	toks := Tokenize([]rune("'hello' 'it''s'"))
	if toks[0].Type != token.String || toks[0].Value != "hello" {
		t.Errorf("token 0 = %q, want %q", toks[0].Value, "hello")
	}
	if toks[1].Type != token.String || toks[1].Value != "it's" {
		t.Errorf("token 1 = %q, want %q", toks[1].Value, "it's")
	}
}

func TestComments(t *testing.T) {
	expectTypes(t, "begin { a comment } end (* another *) .", []token.Type{
		token.Begin, token.End, token.Dot,
	})
}

func TestPositions(t *testing.T) {
	toks := Tokenize([]rune("x :=\n  y"))
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Errorf("x at %d:%d, want 1:1", toks[0].Line, toks[0].Column)
	}
	if toks[2].Line != 2 || toks[2].Column != 3 {
		t.Errorf("y at %d:%d, want 2:3", toks[2].Line, toks[2].Column)
	}
}
