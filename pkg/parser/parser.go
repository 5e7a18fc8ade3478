// Package parser builds the MiniPascal AST from a token stream.
//
// Grammar sketch:
//
//	program     = "program" id ";" decls subprogs compound "." ;
//	decls       = { "var" idlist ":" type ";" { idlist ":" type ";" } } ;
//	subprogs    = { ("function"|"procedure") ... compound ";" } ;
//	compound    = "begin" stmt { ";" stmt } "end" ;
//
// Expression precedence follows classic Pascal: relational operators bind
// loosest, then +/-/or, then */"/"/div/and, then unary not and minus.
package parser

import (
	"strconv"

	"github.com/mpclang/mpc/pkg/ast"
	"github.com/mpclang/mpc/pkg/symbols"
	"github.com/mpclang/mpc/pkg/token"
	"github.com/mpclang/mpc/pkg/util"
)

// Parser holds the state for the parsing process.
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
}

func NewParser(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parse processes the token stream and returns the program root.
func Parse(tokens []token.Token) *ast.Node {
	return NewParser(tokens).ParseProgram()
}

func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	util.Error(p.current, message)
	return p.current
}

// ParseProgram parses the whole compilation unit.
func (p *Parser) ParseProgram() *ast.Node {
	progTok := p.expect(token.Program, "Expected 'program'")
	nameTok := p.expect(token.Ident, "Expected program name")
	p.expect(token.Semi, "Expected ';' after program name")

	decls := p.parseDeclarations()
	subprogs := p.parseSubprograms()
	body := p.parseCompound()
	p.expect(token.Dot, "Expected '.' after main block")

	return ast.NewProgram(progTok, nameTok.Value, decls, subprogs, body)
}

// parseDeclarations parses zero or more var sections, each containing one
// or more declaration groups.
func (p *Parser) parseDeclarations() []*ast.Node {
	var decls []*ast.Node
	for p.match(token.Var) {
		for p.check(token.Ident) {
			decls = append(decls, p.parseDeclGroup())
		}
	}
	return decls
}

// parseDeclGroup parses "a, b, c : type ;" as a single declaration group.
func (p *Parser) parseDeclGroup() *ast.Node {
	groupTok := p.current
	names := p.parseIdentList()
	p.expect(token.Colon, "Expected ':' in declaration")
	spec := p.parseTypeSpec()
	p.expect(token.Semi, "Expected ';' after declaration")
	return ast.NewVarDecl(groupTok, names, spec)
}

func (p *Parser) parseIdentList() []string {
	var names []string
	names = append(names, p.expect(token.Ident, "Expected identifier").Value)
	for p.match(token.Comma) {
		names = append(names, p.expect(token.Ident, "Expected identifier after ','").Value)
	}
	return names
}

func (p *Parser) parseTypeSpec() ast.TypeSpec {
	if p.match(token.Array) {
		p.expect(token.LBracket, "Expected '[' after 'array'")
		low := p.parseIntBound()
		p.expect(token.DotDot, "Expected '..' in array bounds")
		high := p.parseIntBound()
		p.expect(token.RBracket, "Expected ']' after array bounds")
		p.expect(token.Of, "Expected 'of' after array bounds")
		elem := p.parseStandardType()
		return ast.TypeSpec{Category: symbols.TypeArray, Low: low, High: high, Elem: elem}
	}
	return ast.TypeSpec{Category: p.parseStandardType()}
}

func (p *Parser) parseIntBound() int {
	neg := p.match(token.Minus)
	tok := p.expect(token.IntNumber, "Expected integer array bound")
	v, err := strconv.Atoi(tok.Value)
	if err != nil {
		util.Error(tok, "Invalid integer literal: %s", tok.Value)
	}
	if neg {
		v = -v
	}
	return v
}

func (p *Parser) parseStandardType() symbols.TypeCategory {
	switch {
	case p.match(token.Integer):
		return symbols.TypeInteger
	case p.match(token.Real):
		return symbols.TypeReal
	case p.match(token.Boolean):
		return symbols.TypeBoolean
	}
	util.Error(p.current, "Expected type name")
	return symbols.TypeUnknown
}

func (p *Parser) parseSubprograms() []*ast.Node {
	var subprogs []*ast.Node
	for p.check(token.Function) || p.check(token.Procedure) {
		subprogs = append(subprogs, p.parseSubprogram())
		p.expect(token.Semi, "Expected ';' after subprogram")
	}
	return subprogs
}

func (p *Parser) parseSubprogram() *ast.Node {
	headTok := p.current
	isFunction := p.match(token.Function)
	if !isFunction {
		p.expect(token.Procedure, "Expected 'function' or 'procedure'")
	}
	nameTok := p.expect(token.Ident, "Expected subprogram name")

	var params []*ast.Node
	if p.match(token.LParen) {
		params = append(params, p.parseParamGroup())
		for p.match(token.Semi) {
			params = append(params, p.parseParamGroup())
		}
		p.expect(token.RParen, "Expected ')' after parameters")
	}

	returnType := symbols.TypeUnknown
	if isFunction {
		p.expect(token.Colon, "Expected ':' before function return type")
		returnType = p.parseStandardType()
	}
	p.expect(token.Semi, "Expected ';' after subprogram head")

	decls := p.parseDeclarations()
	body := p.parseCompound()
	return ast.NewSubprogram(headTok, isFunction, nameTok.Value, params, returnType, decls, body)
}

func (p *Parser) parseParamGroup() *ast.Node {
	groupTok := p.current
	names := p.parseIdentList()
	p.expect(token.Colon, "Expected ':' in parameter declaration")
	spec := p.parseTypeSpec()
	return ast.NewParamGroup(groupTok, names, spec)
}

func (p *Parser) parseCompound() *ast.Node {
	beginTok := p.expect(token.Begin, "Expected 'begin'")
	var stmts []*ast.Node
	for !p.check(token.End) {
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		if !p.match(token.Semi) {
			break
		}
	}
	p.expect(token.End, "Expected 'end'")
	return ast.NewCompound(beginTok, stmts)
}

func (p *Parser) parseStatement() *ast.Node {
	switch p.current.Type {
	case token.Begin:
		return p.parseCompound()
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.Return:
		return p.parseReturn()
	case token.Ident:
		return p.parseAssignOrCall()
	case token.Semi, token.End:
		// Empty statement.
		return nil
	}
	util.Error(p.current, "Expected statement")
	return nil
}

func (p *Parser) parseIf() *ast.Node {
	ifTok := p.expect(token.If, "Expected 'if'")
	cond := p.parseExpression()
	p.expect(token.Then, "Expected 'then' after condition")
	then := p.parseStatement()
	var els *ast.Node
	if p.match(token.Else) {
		els = p.parseStatement()
	}
	return ast.NewIf(ifTok, cond, then, els)
}

func (p *Parser) parseWhile() *ast.Node {
	whileTok := p.expect(token.While, "Expected 'while'")
	cond := p.parseExpression()
	p.expect(token.Do, "Expected 'do' after condition")
	body := p.parseStatement()
	return ast.NewWhile(whileTok, cond, body)
}

func (p *Parser) parseReturn() *ast.Node {
	retTok := p.expect(token.Return, "Expected 'return'")
	if p.check(token.Semi) || p.check(token.End) || p.check(token.Else) {
		return ast.NewReturn(retTok, nil)
	}
	return ast.NewReturn(retTok, p.parseExpression())
}

func (p *Parser) parseAssignOrCall() *ast.Node {
	nameTok := p.expect(token.Ident, "Expected identifier")

	switch p.current.Type {
	case token.LBracket:
		p.advance()
		index := p.parseExpression()
		p.expect(token.RBracket, "Expected ']' after index")
		assignTok := p.expect(token.Assign, "Expected ':=' after indexed variable")
		target := ast.NewVariable(nameTok, nameTok.Value, index)
		return ast.NewAssign(assignTok, target, p.parseExpression())
	case token.Assign:
		p.advance()
		target := ast.NewVariable(nameTok, nameTok.Value, nil)
		return ast.NewAssign(p.previous, target, p.parseExpression())
	case token.LParen:
		p.advance()
		args := p.parseExprList()
		p.expect(token.RParen, "Expected ')' after arguments")
		return ast.NewProcCall(nameTok, nameTok.Value, args)
	}
	// Parameterless procedure call.
	return ast.NewProcCall(nameTok, nameTok.Value, nil)
}

func (p *Parser) parseExprList() []*ast.Node {
	if p.check(token.RParen) {
		return nil
	}
	args := []*ast.Node{p.parseExpression()}
	for p.match(token.Comma) {
		args = append(args, p.parseExpression())
	}
	return args
}

// parseExpression parses "simple [relop simple]". Relational operators do
// not chain in Pascal.
func (p *Parser) parseExpression() *ast.Node {
	left := p.parseSimple()
	switch p.current.Type {
	case token.Eq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte:
		opTok := p.current
		p.advance()
		right := p.parseSimple()
		return ast.NewBinaryOp(opTok, opTok.Type, left, right)
	}
	return left
}

func (p *Parser) parseSimple() *ast.Node {
	if p.check(token.Minus) {
		opTok := p.current
		p.advance()
		left := ast.NewUnaryOp(opTok, token.Minus, p.parseTerm())
		return p.parseSimpleRest(left)
	}
	return p.parseSimpleRest(p.parseTerm())
}

func (p *Parser) parseSimpleRest(left *ast.Node) *ast.Node {
	for p.check(token.Plus) || p.check(token.Minus) || p.check(token.Or) {
		opTok := p.current
		p.advance()
		left = ast.NewBinaryOp(opTok, opTok.Type, left, p.parseTerm())
	}
	return left
}

func (p *Parser) parseTerm() *ast.Node {
	left := p.parseFactor()
	for p.check(token.Star) || p.check(token.Slash) || p.check(token.Div) || p.check(token.And) {
		opTok := p.current
		p.advance()
		left = ast.NewBinaryOp(opTok, opTok.Type, left, p.parseFactor())
	}
	return left
}

func (p *Parser) parseFactor() *ast.Node {
	switch p.current.Type {
	case token.Not:
		opTok := p.current
		p.advance()
		return ast.NewUnaryOp(opTok, token.Not, p.parseFactor())
	case token.LParen:
		p.advance()
		expr := p.parseExpression()
		p.expect(token.RParen, "Expected ')'")
		return expr
	case token.IntNumber:
		tok := p.current
		p.advance()
		v, err := strconv.Atoi(tok.Value)
		if err != nil {
			util.Error(tok, "Invalid integer literal: %s", tok.Value)
		}
		return ast.NewIntLit(tok, v)
	case token.RealNumber:
		tok := p.current
		p.advance()
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			util.Error(tok, "Invalid real literal: %s", tok.Value)
		}
		return ast.NewRealLit(tok, v)
	case token.String:
		tok := p.current
		p.advance()
		return ast.NewStrLit(tok, tok.Value)
	case token.True:
		tok := p.current
		p.advance()
		return ast.NewBoolLit(tok, true)
	case token.False:
		tok := p.current
		p.advance()
		return ast.NewBoolLit(tok, false)
	case token.Ident:
		tok := p.current
		p.advance()
		if p.match(token.LParen) {
			args := p.parseExprList()
			p.expect(token.RParen, "Expected ')' after arguments")
			return ast.NewFuncCall(tok, tok.Value, args)
		}
		if p.match(token.LBracket) {
			index := p.parseExpression()
			p.expect(token.RBracket, "Expected ']' after index")
			return ast.NewVariable(tok, tok.Value, index)
		}
		return ast.NewIdent(tok, tok.Value)
	}
	util.Error(p.current, "Expected expression")
	return nil
}
