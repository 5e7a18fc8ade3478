// Package token defines the lexical tokens of the MiniPascal language.
package token

type Type int

const (
	EOF Type = iota
	Ident
	IntNumber
	RealNumber
	String

	// Keywords
	Program
	Var
	Array
	Of
	Function
	Procedure
	Begin
	End
	If
	Then
	Else
	While
	Do
	Return
	Not
	Div
	And
	Or
	True
	False
	Integer
	Real
	Boolean

	// Punctuation and operators
	LParen
	RParen
	LBracket
	RBracket
	Semi
	Colon
	Comma
	Dot
	DotDot
	Assign
	Plus
	Minus
	Star
	Slash
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
)

// KeywordMap maps lowercased identifier text to keyword token types.
// MiniPascal keywords are case-insensitive; the lexer folds before lookup.
var KeywordMap = map[string]Type{
	"program":   Program,
	"var":       Var,
	"array":     Array,
	"of":        Of,
	"function":  Function,
	"procedure": Procedure,
	"begin":     Begin,
	"end":       End,
	"if":        If,
	"then":      Then,
	"else":      Else,
	"while":     While,
	"do":        Do,
	"return":    Return,
	"not":       Not,
	"div":       Div,
	"and":       And,
	"or":        Or,
	"true":      True,
	"false":     False,
	"integer":   Integer,
	"real":      Real,
	"boolean":   Boolean,
}

// TypeStrings maps keyword and operator token types back to their text,
// for diagnostics.
var TypeStrings = map[Type]string{
	LParen:   "(",
	RParen:   ")",
	LBracket: "[",
	RBracket: "]",
	Semi:     ";",
	Colon:    ":",
	Comma:    ",",
	Dot:      ".",
	DotDot:   "..",
	Assign:   ":=",
	Plus:     "+",
	Minus:    "-",
	Star:     "*",
	Slash:    "/",
	Eq:       "=",
	Neq:      "<>",
	Lt:       "<",
	Lte:      "<=",
	Gt:       ">",
	Gte:      ">=",
}

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
}

type Token struct {
	Type   Type
	Value  string
	Line   int
	Column int
	Len    int
}
