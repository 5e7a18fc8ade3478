// Package lexer turns MiniPascal source text into a token stream.
package lexer

import (
	"strings"
	"unicode"

	"github.com/mpclang/mpc/pkg/token"
	"github.com/mpclang/mpc/pkg/util"
)

type Lexer struct {
	source []rune
	pos    int
	line   int
	column int
}

func NewLexer(source []rune) *Lexer {
	return &Lexer{source: source, line: 1, column: 1}
}

// Tokenize scans the whole source, ending the stream with an EOF token.
func Tokenize(source []rune) []token.Token {
	l := NewLexer(source)
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine)
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine)
	}
	if unicode.IsDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(':
		return l.makeToken(token.LParen, "", startPos, startCol, startLine)
	case ')':
		return l.makeToken(token.RParen, "", startPos, startCol, startLine)
	case '[':
		return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
	case ']':
		return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
	case ';':
		return l.makeToken(token.Semi, "", startPos, startCol, startLine)
	case ',':
		return l.makeToken(token.Comma, "", startPos, startCol, startLine)
	case '+':
		return l.makeToken(token.Plus, "", startPos, startCol, startLine)
	case '-':
		return l.makeToken(token.Minus, "", startPos, startCol, startLine)
	case '*':
		return l.makeToken(token.Star, "", startPos, startCol, startLine)
	case '/':
		return l.makeToken(token.Slash, "", startPos, startCol, startLine)
	case '=':
		return l.makeToken(token.Eq, "", startPos, startCol, startLine)
	case ':':
		if l.match('=') {
			return l.makeToken(token.Assign, "", startPos, startCol, startLine)
		}
		return l.makeToken(token.Colon, "", startPos, startCol, startLine)
	case '<':
		if l.match('>') {
			return l.makeToken(token.Neq, "", startPos, startCol, startLine)
		}
		if l.match('=') {
			return l.makeToken(token.Lte, "", startPos, startCol, startLine)
		}
		return l.makeToken(token.Lt, "", startPos, startCol, startLine)
	case '>':
		if l.match('=') {
			return l.makeToken(token.Gte, "", startPos, startCol, startLine)
		}
		return l.makeToken(token.Gt, "", startPos, startCol, startLine)
	case '.':
		if l.match('.') {
			return l.makeToken(token.DotDot, "", startPos, startCol, startLine)
		}
		return l.makeToken(token.Dot, "", startPos, startCol, startLine)
	case '\'':
		return l.stringLiteral(startPos, startCol, startLine)
	}

	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	util.Error(tok, "Unexpected character: '%c'", ch)
	return tok
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '{':
			l.braceComment()
		case '(':
			if l.peekNext() == '*' {
				l.parenComment()
			} else {
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) braceComment() {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	l.advance()
	for !l.isAtEnd() {
		if l.advance() == '}' {
			return
		}
	}
	util.Error(startTok, "Unterminated comment")
}

func (l *Lexer) parenComment() {
	startTok := l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == ')' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	util.Error(startTok, "Unterminated comment")
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)

	if tokType, isKeyword := token.KeywordMap[strings.ToLower(value)]; isKeyword {
		tok.Type = tokType
		tok.Value = ""
	}
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	for unicode.IsDigit(l.peek()) {
		l.advance()
	}
	isReal := false
	// A '..' after digits is a range, not a decimal point.
	if l.peek() == '.' && unicode.IsDigit(l.peekNext()) {
		isReal = true
		l.advance()
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	value := string(l.source[startPos:l.pos])
	if isReal {
		return l.makeToken(token.RealNumber, value, startPos, startCol, startLine)
	}
	return l.makeToken(token.IntNumber, value, startPos, startCol, startLine)
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var sb strings.Builder
	for {
		if l.isAtEnd() || l.peek() == '\n' {
			util.Error(l.makeToken(token.String, "", startPos, startCol, startLine), "Unterminated string literal")
		}
		ch := l.advance()
		if ch == '\'' {
			// Doubled quote is an escaped quote.
			if l.peek() == '\'' {
				l.advance()
				sb.WriteRune('\'')
				continue
			}
			break
		}
		sb.WriteRune(ch)
	}
	return l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
}
