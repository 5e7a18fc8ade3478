// Package semantics type-checks a parsed program and populates the symbol
// table the code generator consumes: it declares globals and subprograms
// (assigning storage offsets and mangled keys), determines the type of
// every expression, resolves calls to their overload-specific entries, and
// tags variable references as global or local.
package semantics

import (
	"errors"
	"fmt"

	"github.com/mpclang/mpc/pkg/ast"
	"github.com/mpclang/mpc/pkg/symbols"
	"github.com/mpclang/mpc/pkg/token"
)

// Analyzer walks the AST once, annotating nodes in place.
type Analyzer struct {
	table *symbols.Table
	diags []string

	globalOffset int
	localOffset  int
	paramOffset  int

	// currentSubprogram is the entry of the subprogram being analyzed,
	// nil at the top level.
	currentSubprogram *symbols.Entry
}

// Analyze checks prog against table. The table must be freshly created;
// on success it holds every global and subprogram entry, ready to hand to
// the code generator.
func Analyze(prog *ast.Node, table *symbols.Table) error {
	a := &Analyzer{table: table}
	a.program(prog)
	if len(a.diags) == 0 {
		return nil
	}
	errs := make([]error, len(a.diags))
	for i, d := range a.diags {
		errs[i] = errors.New(d)
	}
	return errors.Join(errs...)
}

func (a *Analyzer) errorf(tok token.Token, format string, args ...interface{}) {
	a.diags = append(a.diags, fmt.Sprintf("%d:%d: %s", tok.Line, tok.Column, fmt.Sprintf(format, args...)))
}

func (a *Analyzer) program(prog *ast.Node) {
	p := prog.Data.(ast.ProgramNode)
	for _, decl := range p.Decls {
		a.globalDecl(decl)
	}
	for _, sub := range p.Subprogs {
		a.subprogram(sub)
	}
	a.statement(p.Body)
}

func (a *Analyzer) globalDecl(decl *ast.Node) {
	d := decl.Data.(ast.VarDeclNode)
	for _, name := range d.Names {
		if a.table.LookupCurrent(name) != nil {
			a.errorf(decl.Tok, "redeclaration of '%s'", name)
			continue
		}
		e := &symbols.Entry{
			Name:   name,
			Kind:   symbols.KindVariable,
			Type:   d.Spec.Category,
			Scope:  symbols.ScopeGlobal,
			Offset: a.globalOffset,
		}
		a.globalOffset++
		if d.Spec.Category == symbols.TypeArray {
			e.Array = d.Spec.ArrayInfo()
		}
		a.table.Add(e)
	}
}

func (a *Analyzer) subprogram(sub *ast.Node) {
	s := sub.Data.(ast.SubprogramNode)
	paramTypes := ast.ParamTypeList(s.Params)

	entry := &symbols.Entry{
		Name:       s.Name,
		NumParams:  len(paramTypes),
		ParamTypes: paramTypes,
		ReturnType: s.ReturnType,
	}
	if s.IsFunction {
		entry.Kind = symbols.KindFunction
	} else {
		entry.Kind = symbols.KindProcedure
	}
	if a.table.Lookup(entry.MangledName()) != nil {
		a.errorf(sub.Tok, "redeclaration of %s '%s' with the same parameter types", entry.Kind, s.Name)
		return
	}
	a.table.Add(entry)
	sub.Resolved = entry

	prev := a.currentSubprogram
	prevLocal, prevParam := a.localOffset, a.paramOffset
	a.currentSubprogram = entry
	a.localOffset, a.paramOffset = 0, 0

	a.table.EnterScope()
	for _, group := range s.Params {
		a.paramGroup(group)
	}
	for _, decl := range s.Decls {
		a.localDecl(decl)
	}
	a.statement(s.Body)
	a.table.ExitScope()

	a.currentSubprogram = prev
	a.localOffset, a.paramOffset = prevLocal, prevParam
}

func (a *Analyzer) paramGroup(group *ast.Node) {
	g := group.Data.(ast.ParamGroupNode)
	for _, name := range g.Names {
		if a.table.LookupCurrent(name) != nil {
			a.errorf(group.Tok, "duplicate parameter '%s'", name)
			continue
		}
		e := &symbols.Entry{
			Name:   name,
			Kind:   symbols.KindParameter,
			Type:   g.Spec.Category,
			Scope:  symbols.ScopeLocal,
			Offset: a.paramOffset,
		}
		a.paramOffset++
		if g.Spec.Category == symbols.TypeArray {
			e.Array = g.Spec.ArrayInfo()
		}
		a.table.Add(e)
	}
}

func (a *Analyzer) localDecl(decl *ast.Node) {
	d := decl.Data.(ast.VarDeclNode)
	for _, name := range d.Names {
		if a.table.LookupCurrent(name) != nil {
			a.errorf(decl.Tok, "redeclaration of '%s'", name)
			continue
		}
		e := &symbols.Entry{
			Name:   name,
			Kind:   symbols.KindVariable,
			Type:   d.Spec.Category,
			Scope:  symbols.ScopeLocal,
			Offset: a.localOffset,
		}
		a.localOffset++
		if d.Spec.Category == symbols.TypeArray {
			e.Array = d.Spec.ArrayInfo()
		}
		a.table.Add(e)
	}
}

// --- Statements ---

func (a *Analyzer) statement(stmt *ast.Node) {
	if stmt == nil {
		return
	}
	switch stmt.Type {
	case ast.Compound:
		for _, s := range stmt.Data.(ast.CompoundNode).Stmts {
			a.statement(s)
		}
	case ast.Assign:
		a.assign(stmt)
	case ast.If:
		n := stmt.Data.(ast.IfNode)
		a.condition(n.Cond)
		a.statement(n.Then)
		a.statement(n.Else)
	case ast.While:
		n := stmt.Data.(ast.WhileNode)
		a.condition(n.Cond)
		a.statement(n.Body)
	case ast.Return:
		a.returnStmt(stmt)
	case ast.ProcCall:
		a.procCall(stmt)
	default:
		a.errorf(stmt.Tok, "unexpected node in statement position")
	}
}

func (a *Analyzer) condition(cond *ast.Node) {
	a.expression(cond)
	if cond.DeterminedType != symbols.TypeBoolean && cond.DeterminedType != symbols.TypeUnknown {
		a.errorf(cond.Tok, "condition must be boolean, got %s", cond.DeterminedType)
	}
}

func (a *Analyzer) assign(stmt *ast.Node) {
	n := stmt.Data.(ast.AssignNode)
	a.expression(n.Value)
	a.variableRef(n.Target)

	target, value := n.Target.DeterminedType, n.Value.DeterminedType
	if target == symbols.TypeUnknown || value == symbols.TypeUnknown {
		return
	}
	if target == value {
		return
	}
	if target == symbols.TypeReal && value == symbols.TypeInteger {
		return // widened at generation time
	}
	a.errorf(stmt.Tok, "cannot assign %s to %s", value, target)
}

func (a *Analyzer) returnStmt(stmt *ast.Node) {
	n := stmt.Data.(ast.ReturnNode)
	if n.Value == nil {
		return
	}
	a.expression(n.Value)
	if a.currentSubprogram == nil {
		a.errorf(stmt.Tok, "return with a value outside a subprogram")
		return
	}
	if a.currentSubprogram.Kind != symbols.KindFunction {
		a.errorf(stmt.Tok, "procedure '%s' cannot return a value", a.currentSubprogram.Name)
		return
	}
	ret, got := a.currentSubprogram.ReturnType, n.Value.DeterminedType
	if got == symbols.TypeUnknown || ret == got || (ret == symbols.TypeReal && got == symbols.TypeInteger) {
		return
	}
	a.errorf(stmt.Tok, "cannot return %s from function of type %s", got, ret)
}

// isBuiltinIO reports whether name is one of the built-in I/O procedures.
func isBuiltinIO(name string) bool {
	switch name {
	case "write", "writeln", "read", "readln":
		return true
	}
	return false
}

func (a *Analyzer) procCall(stmt *ast.Node) {
	n := stmt.Data.(ast.ProcCallNode)
	for _, arg := range n.Args {
		a.expression(arg)
	}
	if isBuiltinIO(n.Name) {
		return
	}

	key := symbols.MangleKey(false, n.Name, argTypes(n.Args))
	entry := a.table.Lookup(key)
	if entry == nil {
		a.errorf(stmt.Tok, "no procedure '%s' matches this argument list", n.Name)
		return
	}
	stmt.Resolved = entry
}

// --- Expressions ---

func argTypes(args []*ast.Node) []symbols.TypeCategory {
	types := make([]symbols.TypeCategory, len(args))
	for i, arg := range args {
		types[i] = arg.DeterminedType
	}
	return types
}

func (a *Analyzer) expression(expr *ast.Node) {
	switch expr.Type {
	case ast.IntLit:
		expr.DeterminedType = symbols.TypeInteger
	case ast.RealLit:
		expr.DeterminedType = symbols.TypeReal
	case ast.BoolLit:
		expr.DeterminedType = symbols.TypeBoolean
	case ast.StrLit:
		expr.DeterminedType = symbols.TypeString
	case ast.Ident:
		a.identRef(expr)
	case ast.Variable:
		a.variableRef(expr)
	case ast.UnaryOp:
		a.unaryOp(expr)
	case ast.BinaryOp:
		a.binaryOp(expr)
	case ast.FuncCall:
		a.funcCall(expr)
	default:
		a.errorf(expr.Tok, "unexpected node in expression position")
	}
}

// identRef resolves a bare identifier: a variable, a parameter, or a
// zero-argument function referenced without parentheses.
func (a *Analyzer) identRef(expr *ast.Node) {
	name := expr.Data.(ast.IdentNode).Name
	if entry := a.table.Lookup(name); entry != nil {
		expr.DeterminedType = entry.Type
		expr.Scope = entry.Scope
		return
	}
	if entry := a.table.Lookup(symbols.MangleKey(true, name, nil)); entry != nil {
		expr.Resolved = entry
		expr.DeterminedType = entry.ReturnType
		return
	}
	a.errorf(expr.Tok, "undeclared identifier '%s'", name)
	expr.DeterminedType = symbols.TypeUnknown
}

func (a *Analyzer) variableRef(expr *ast.Node) {
	n := expr.Data.(ast.VariableNode)
	entry := a.table.Lookup(n.Name)
	if entry == nil {
		a.errorf(expr.Tok, "undeclared variable '%s'", n.Name)
		expr.DeterminedType = symbols.TypeUnknown
		return
	}
	expr.Scope = entry.Scope

	if n.Index == nil {
		expr.DeterminedType = entry.Type
		return
	}
	a.expression(n.Index)
	if entry.Type != symbols.TypeArray {
		a.errorf(expr.Tok, "'%s' is not an array", n.Name)
		expr.DeterminedType = symbols.TypeUnknown
		return
	}
	if t := n.Index.DeterminedType; t != symbols.TypeInteger && t != symbols.TypeUnknown {
		a.errorf(expr.Tok, "array index must be integer, got %s", t)
	}
	expr.DeterminedType = entry.Array.ElementType
}

func (a *Analyzer) unaryOp(expr *ast.Node) {
	n := expr.Data.(ast.UnaryOpNode)
	a.expression(n.Expr)
	switch n.Op {
	case token.Minus:
		t := n.Expr.DeterminedType
		if t != symbols.TypeInteger && t != symbols.TypeReal && t != symbols.TypeUnknown {
			a.errorf(expr.Tok, "cannot negate %s", t)
			t = symbols.TypeUnknown
		}
		expr.DeterminedType = t
	case token.Not:
		if t := n.Expr.DeterminedType; t != symbols.TypeBoolean && t != symbols.TypeUnknown {
			a.errorf(expr.Tok, "'not' requires a boolean operand, got %s", t)
		}
		expr.DeterminedType = symbols.TypeBoolean
	}
}

func (a *Analyzer) binaryOp(expr *ast.Node) {
	n := expr.Data.(ast.BinaryOpNode)
	a.expression(n.Left)
	a.expression(n.Right)
	lt, rt := n.Left.DeterminedType, n.Right.DeterminedType

	numeric := func(t symbols.TypeCategory) bool {
		return t == symbols.TypeInteger || t == symbols.TypeReal || t == symbols.TypeUnknown
	}

	switch n.Op {
	case token.Plus, token.Minus, token.Star:
		if !numeric(lt) || !numeric(rt) {
			a.errorf(expr.Tok, "arithmetic requires numeric operands, got %s and %s", lt, rt)
		}
		if lt == symbols.TypeReal || rt == symbols.TypeReal {
			expr.DeterminedType = symbols.TypeReal
		} else {
			expr.DeterminedType = symbols.TypeInteger
		}
	case token.Slash:
		if !numeric(lt) || !numeric(rt) {
			a.errorf(expr.Tok, "'/' requires numeric operands, got %s and %s", lt, rt)
		}
		expr.DeterminedType = symbols.TypeReal
	case token.Div:
		if (lt != symbols.TypeInteger && lt != symbols.TypeUnknown) || (rt != symbols.TypeInteger && rt != symbols.TypeUnknown) {
			a.errorf(expr.Tok, "'div' requires integer operands, got %s and %s", lt, rt)
		}
		expr.DeterminedType = symbols.TypeInteger
	case token.And, token.Or:
		if (lt != symbols.TypeBoolean && lt != symbols.TypeUnknown) || (rt != symbols.TypeBoolean && rt != symbols.TypeUnknown) {
			a.errorf(expr.Tok, "'%s' requires boolean operands, got %s and %s", token.TypeStrings[n.Op], lt, rt)
		}
		expr.DeterminedType = symbols.TypeBoolean
	case token.Eq, token.Neq, token.Lt, token.Lte, token.Gt, token.Gte:
		if lt != symbols.TypeUnknown && rt != symbols.TypeUnknown {
			comparable := lt == rt || (numeric(lt) && numeric(rt))
			if !comparable {
				a.errorf(expr.Tok, "cannot compare %s with %s", lt, rt)
			}
		}
		expr.DeterminedType = symbols.TypeBoolean
	default:
		a.errorf(expr.Tok, "unsupported binary operator")
		expr.DeterminedType = symbols.TypeUnknown
	}
}

func (a *Analyzer) funcCall(expr *ast.Node) {
	n := expr.Data.(ast.FuncCallNode)
	for _, arg := range n.Args {
		a.expression(arg)
	}
	key := symbols.MangleKey(true, n.Name, argTypes(n.Args))
	entry := a.table.Lookup(key)
	if entry == nil {
		a.errorf(expr.Tok, "no function '%s' matches this argument list", n.Name)
		expr.DeterminedType = symbols.TypeUnknown
		return
	}
	expr.Resolved = entry
	expr.DeterminedType = entry.ReturnType
}
