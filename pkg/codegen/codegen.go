// Package codegen walks a type-checked MiniPascal AST and emits textual
// instructions for the target stack machine.
//
// The generator performs exactly one depth-first traversal per call to
// Generate. It queries the symbol table populated by semantic analysis for
// globals and subprograms, and re-creates parameter and local entries
// itself when it re-enters a subprogram scope, assigning frame offsets as
// it goes. Every failure mode is a contract violation with the upstream
// passes and surfaces as a returned error.
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mpclang/mpc/pkg/ast"
	"github.com/mpclang/mpc/pkg/symbols"
	"github.com/mpclang/mpc/pkg/token"
)

// Generator holds the output buffer and the generation-time context: the
// label counter, the frame offset counters and the entry of the
// subprogram currently being generated.
type Generator struct {
	table *symbols.Table
	out   strings.Builder

	labelCounter int
	localOffset  int
	paramOffset  int

	// current is the subprogram being generated, nil at the top level.
	current *symbols.Entry
}

// New returns a generator emitting against table.
func New(table *symbols.Table) *Generator {
	return &Generator{table: table}
}

// Generate runs the traversal over the program root and returns the
// finished instruction text. The label counter starts at zero for every
// Generator, so generating twice from the same AST with fresh generators
// yields identical output.
func Generate(prog *ast.Node, table *symbols.Table) (string, error) {
	return New(table).Generate(prog)
}

func (g *Generator) Generate(prog *ast.Node) (string, error) {
	if err := g.program(prog); err != nil {
		return "", err
	}
	return g.out.String(), nil
}

// --- Emission helpers ---

func (g *Generator) newLabel(prefix string) string {
	label := fmt.Sprintf("L_%s_%d", prefix, g.labelCounter)
	g.labelCounter++
	return label
}

func (g *Generator) emit(instruction string) {
	g.out.WriteString("    " + instruction + "\n")
}

func (g *Generator) emitArg(instruction, arg string) {
	g.out.WriteString("    " + instruction + " " + arg + "\n")
}

func (g *Generator) emitInt(instruction string, n int) {
	g.emitArg(instruction, strconv.Itoa(n))
}

func (g *Generator) emitLabel(label string) {
	g.out.WriteString(label + ":\n")
}

// quote renders a string literal operand, escaping the characters the
// loader unescapes.
func quote(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n", "\t", "\\t")
	return "\"" + r.Replace(s) + "\""
}

// --- Program and declarations ---

func (g *Generator) program(prog *ast.Node) error {
	p, ok := prog.Data.(ast.ProgramNode)
	if !ok {
		return fmt.Errorf("codegen: root node is not a program")
	}

	g.emit("start")
	if len(p.Subprogs) > 0 {
		g.emitArg("jump", "main_entry")
	}
	for _, sub := range p.Subprogs {
		if err := g.subprogram(sub); err != nil {
			return err
		}
	}
	g.emitLabel("main_entry")
	if err := g.declarations(p.Decls); err != nil {
		return err
	}
	if err := g.statement(p.Body); err != nil {
		return err
	}
	g.emit("stop")
	return nil
}

// declarations emits storage setup for a declaration list. At global
// scope the scalar reservation is summed across all groups and issued
// once; inside a subprogram each group reserves its own scalars.
func (g *Generator) declarations(decls []*ast.Node) error {
	if g.table.IsGlobalScope() {
		varCount := 0
		for _, decl := range decls {
			d := decl.Data.(ast.VarDeclNode)
			if d.Spec.Category == symbols.TypeArray {
				continue
			}
			varCount += len(d.Names)
		}
		if varCount > 0 {
			g.emitInt("pushn", varCount)
		}
	}
	for _, decl := range decls {
		if err := g.varDecl(decl); err != nil {
			return err
		}
	}
	return nil
}

// varDecl handles one declaration group: the per-group local scalar
// reservation, local entry registration, and array cell allocation for
// both storage classes.
func (g *Generator) varDecl(decl *ast.Node) error {
	d := decl.Data.(ast.VarDeclNode)
	global := g.table.IsGlobalScope()

	if !global {
		if d.Spec.Category != symbols.TypeArray {
			g.emitInt("pushn", len(d.Names))
		}
		// Local entries were discarded with the analysis scope; the
		// generator re-creates them, handle slots included.
		for _, name := range d.Names {
			e := &symbols.Entry{
				Name:   name,
				Kind:   symbols.KindVariable,
				Type:   d.Spec.Category,
				Scope:  symbols.ScopeLocal,
				Offset: g.localOffset,
			}
			g.localOffset++
			if d.Spec.Category == symbols.TypeArray {
				e.Array = d.Spec.ArrayInfo()
			}
			g.table.Add(e)
		}
	}

	if d.Spec.Category != symbols.TypeArray {
		return nil
	}
	size := d.Spec.High - d.Spec.Low + 1
	if size <= 0 {
		return fmt.Errorf("codegen: array size must be positive, got [%d..%d]", d.Spec.Low, d.Spec.High)
	}
	for _, name := range d.Names {
		entry := g.table.Lookup(name)
		if entry == nil {
			return fmt.Errorf("codegen: symbol not found during array allocation: %s", name)
		}
		g.emitInt("alloc", size)
		if global {
			g.emitInt("storeg", entry.Offset)
		} else {
			g.emitInt("storel", entry.Offset)
		}
	}
	return nil
}

// --- Subprograms ---

func (g *Generator) subprogram(sub *ast.Node) error {
	s := sub.Data.(ast.SubprogramNode)

	// Semantic analysis stores the registered entry on the definition
	// node, so no mangled-key reconstruction happens here.
	entry := sub.Resolved
	if entry == nil {
		return fmt.Errorf("codegen: subprogram '%s' was not resolved by semantic analysis", s.Name)
	}

	prev := g.current
	prevLocal, prevParam := g.localOffset, g.paramOffset
	g.current = entry

	mangled := entry.MangledName()
	endLabel := mangled + "_end"

	// Definitions are emitted in sequence; jump over the body so it only
	// runs when called.
	g.emitArg("jump", endLabel)
	g.emitLabel(mangled)

	g.table.EnterScope()
	g.localOffset = 0
	g.paramOffset = 0

	for _, group := range s.Params {
		g.paramGroup(group)
	}
	for _, decl := range s.Decls {
		if err := g.varDecl(decl); err != nil {
			return err
		}
	}
	if err := g.statement(s.Body); err != nil {
		return err
	}

	// Functions end with an explicit return from a return statement;
	// procedures get an implicit one.
	if !s.IsFunction {
		g.emit("return")
	}

	g.emitLabel(endLabel)
	g.table.ExitScope()
	g.current = prev
	g.localOffset, g.paramOffset = prevLocal, prevParam
	return nil
}

// paramGroup registers the group's names as parameter entries with
// consecutive frame offsets. Parameters are scoped to this visit of the
// subprogram, so the generator creates them fresh each time.
func (g *Generator) paramGroup(group *ast.Node) {
	p := group.Data.(ast.ParamGroupNode)
	for _, name := range p.Names {
		e := &symbols.Entry{
			Name:   name,
			Kind:   symbols.KindParameter,
			Type:   p.Spec.Category,
			Scope:  symbols.ScopeLocal,
			Offset: g.paramOffset,
		}
		g.paramOffset++
		if p.Spec.Category == symbols.TypeArray {
			e.Array = p.Spec.ArrayInfo()
		}
		g.table.Add(e)
	}
}

// --- Statements ---

func (g *Generator) statement(stmt *ast.Node) error {
	if stmt == nil {
		return nil
	}
	switch stmt.Type {
	case ast.Compound:
		for _, s := range stmt.Data.(ast.CompoundNode).Stmts {
			if err := g.statement(s); err != nil {
				return err
			}
		}
		return nil
	case ast.Assign:
		return g.assign(stmt)
	case ast.If:
		return g.ifStmt(stmt)
	case ast.While:
		return g.whileStmt(stmt)
	case ast.Return:
		return g.returnStmt(stmt)
	case ast.ProcCall:
		return g.procCall(stmt)
	}
	return fmt.Errorf("codegen: unexpected node in statement position")
}

func (g *Generator) assign(stmt *ast.Node) error {
	n := stmt.Data.(ast.AssignNode)
	target := n.Target.Data.(ast.VariableNode)

	if target.Index != nil {
		entry := g.table.Lookup(target.Name)
		if entry == nil {
			return fmt.Errorf("codegen: array symbol not found: %s", target.Name)
		}
		if !entry.Array.Initialized {
			return fmt.Errorf("codegen: array details not found for %s", target.Name)
		}
		low := entry.Array.LowBound
		g.pushSlot(entry, n.Target.Scope)

		if lit, ok := target.Index.Data.(ast.IntLitNode); ok && target.Index.Type == ast.IntLit {
			if err := g.expression(n.Value); err != nil {
				return err
			}
			g.emitInt("store", lit.Value-low)
			return nil
		}
		if err := g.expression(target.Index); err != nil {
			return err
		}
		g.emitInt("pushi", low)
		g.emit("sub")
		if err := g.expression(n.Value); err != nil {
			return err
		}
		g.emit("storen")
		return nil
	}

	if err := g.expression(n.Value); err != nil {
		return err
	}
	if n.Target.DeterminedType == symbols.TypeReal && n.Value.DeterminedType == symbols.TypeInteger {
		g.emit("itof")
	}
	entry := g.table.Lookup(target.Name)
	if entry == nil {
		return fmt.Errorf("codegen: symbol not found in assignment: %s", target.Name)
	}
	g.storeSlot(entry, n.Target.Scope)
	return nil
}

// pushSlot pushes the value held in a variable's slot. Parameters are
// always read through the -(offset+1) transform, whatever their apparent
// scope.
func (g *Generator) pushSlot(entry *symbols.Entry, scope symbols.VarScope) {
	switch {
	case entry.Kind == symbols.KindParameter:
		g.emitInt("pushl", -(entry.Offset + 1))
	case scope == symbols.ScopeLocal:
		g.emitInt("pushl", entry.Offset)
	default:
		g.emitInt("pushg", entry.Offset)
	}
}

// storeSlot is the store-side counterpart of pushSlot.
func (g *Generator) storeSlot(entry *symbols.Entry, scope symbols.VarScope) {
	switch {
	case entry.Kind == symbols.KindParameter:
		g.emitInt("storel", -(entry.Offset + 1))
	case scope == symbols.ScopeLocal:
		g.emitInt("storel", entry.Offset)
	default:
		g.emitInt("storeg", entry.Offset)
	}
}

func (g *Generator) ifStmt(stmt *ast.Node) error {
	n := stmt.Data.(ast.IfNode)
	elseLabel := g.newLabel("ELSE")
	endIfLabel := g.newLabel("END_IF")

	if err := g.expression(n.Cond); err != nil {
		return err
	}
	g.emitArg("jz", elseLabel)
	if err := g.statement(n.Then); err != nil {
		return err
	}
	if n.Else != nil {
		g.emitArg("jump", endIfLabel)
	}
	g.emitLabel(elseLabel)
	if n.Else != nil {
		if err := g.statement(n.Else); err != nil {
			return err
		}
	}
	g.emitLabel(endIfLabel)
	return nil
}

func (g *Generator) whileStmt(stmt *ast.Node) error {
	n := stmt.Data.(ast.WhileNode)
	startLabel := g.newLabel("WHILE_START")
	endLabel := g.newLabel("WHILE_END")

	g.emitLabel(startLabel)
	if err := g.expression(n.Cond); err != nil {
		return err
	}
	g.emitArg("jz", endLabel)
	if err := g.statement(n.Body); err != nil {
		return err
	}
	g.emitArg("jump", startLabel)
	g.emitLabel(endLabel)
	return nil
}

func (g *Generator) returnStmt(stmt *ast.Node) error {
	n := stmt.Data.(ast.ReturnNode)
	if n.Value != nil {
		if g.current == nil {
			return fmt.Errorf("codegen: return statement found with no subprogram context")
		}
		if err := g.expression(n.Value); err != nil {
			return err
		}
		if g.current.ReturnType == symbols.TypeReal && n.Value.DeterminedType == symbols.TypeInteger {
			g.emit("itof")
		}
		// The caller reserved the result slot just below the parameters.
		g.emitInt("storel", -(g.current.NumParams + 1))
	}
	g.emit("return")
	return nil
}

func (g *Generator) procCall(stmt *ast.Node) error {
	n := stmt.Data.(ast.ProcCallNode)

	switch n.Name {
	case "write", "writeln":
		for _, arg := range n.Args {
			if err := g.expression(arg); err != nil {
				return err
			}
			switch {
			case arg.Type == ast.StrLit:
				g.emit("writes")
			case arg.DeterminedType == symbols.TypeInteger || arg.DeterminedType == symbols.TypeBoolean:
				g.emit("writei")
			case arg.DeterminedType == symbols.TypeReal:
				g.emit("writef")
			}
		}
		if n.Name == "writeln" {
			g.emitArg("pushs", quote("\n"))
			g.emit("writes")
		}
		return nil
	case "read", "readln":
		// TODO: lower read/readln once the VM grows input instructions.
		return nil
	}

	entry := stmt.Resolved
	if entry == nil {
		return fmt.Errorf("codegen: procedure call to '%s' was not resolved by semantic analysis", n.Name)
	}
	if err := g.pushArgsReversed(n.Args); err != nil {
		return err
	}
	g.emitArg("pusha", entry.MangledName())
	g.emit("call")
	if entry.NumParams > 0 {
		g.emitInt("pop", entry.NumParams)
	}
	return nil
}

// pushArgsReversed evaluates arguments right to left, so the first
// parameter ends up nearest the frame base.
func (g *Generator) pushArgsReversed(args []*ast.Node) error {
	for i := len(args) - 1; i >= 0; i-- {
		if err := g.expression(args[i]); err != nil {
			return err
		}
	}
	return nil
}

// --- Expressions ---

func (g *Generator) expression(expr *ast.Node) error {
	switch expr.Type {
	case ast.IntLit:
		g.emitInt("pushi", expr.Data.(ast.IntLitNode).Value)
		return nil
	case ast.RealLit:
		g.emitArg("pushf", formatReal(expr.Data.(ast.RealLitNode).Value))
		return nil
	case ast.BoolLit:
		if expr.Data.(ast.BoolLitNode).Value {
			g.emitArg("pushi", "1")
		} else {
			g.emitArg("pushi", "0")
		}
		return nil
	case ast.StrLit:
		g.emitArg("pushs", quote(expr.Data.(ast.StrLitNode).Value))
		return nil
	case ast.Ident:
		return g.identRef(expr)
	case ast.Variable:
		return g.variableRef(expr)
	case ast.UnaryOp:
		return g.unaryOp(expr)
	case ast.BinaryOp:
		return g.binaryOp(expr)
	case ast.FuncCall:
		return g.funcCall(expr)
	}
	return fmt.Errorf("codegen: unexpected node in expression position")
}

func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// identRef pushes a bare identifier. A reference to a zero-argument
// function is an implicit call: reserve the result slot, push the
// function's address, call.
func (g *Generator) identRef(expr *ast.Node) error {
	name := expr.Data.(ast.IdentNode).Name

	if fn := expr.Resolved; fn != nil && fn.Kind == symbols.KindFunction {
		g.emitArg("pushn", "1")
		g.emitArg("pusha", fn.MangledName())
		g.emit("call")
		return nil
	}

	entry := g.table.Lookup(name)
	if entry == nil {
		return fmt.Errorf("codegen: symbol not found for identifier: %s", name)
	}
	g.pushSlot(entry, expr.Scope)
	return nil
}

func (g *Generator) variableRef(expr *ast.Node) error {
	n := expr.Data.(ast.VariableNode)
	entry := g.table.Lookup(n.Name)
	if entry == nil {
		return fmt.Errorf("codegen: symbol not found: %s", n.Name)
	}

	if n.Index == nil {
		g.pushSlot(entry, expr.Scope)
		return nil
	}

	if !entry.Array.Initialized {
		return fmt.Errorf("codegen: array details not found for %s", n.Name)
	}
	low := entry.Array.LowBound
	g.pushSlot(entry, expr.Scope)

	if lit, ok := n.Index.Data.(ast.IntLitNode); ok && n.Index.Type == ast.IntLit {
		g.emitInt("load", lit.Value-low)
		return nil
	}
	if err := g.expression(n.Index); err != nil {
		return err
	}
	g.emitInt("pushi", low)
	g.emit("sub")
	g.emit("loadn")
	return nil
}

// unaryOp lowers negation as subtraction from zero; the target machine
// has no dedicated negate instruction.
func (g *Generator) unaryOp(expr *ast.Node) error {
	n := expr.Data.(ast.UnaryOpNode)
	if err := g.expression(n.Expr); err != nil {
		return err
	}
	switch n.Op {
	case token.Minus:
		if n.Expr.DeterminedType == symbols.TypeReal {
			g.emitArg("pushf", "0.0")
			g.emit("swap")
			g.emit("fsub")
		} else {
			g.emitArg("pushi", "0")
			g.emit("swap")
			g.emit("sub")
		}
		return nil
	case token.Not:
		g.emit("not")
		return nil
	}
	return fmt.Errorf("codegen: unsupported unary op '%s'", token.TypeStrings[n.Op])
}

func (g *Generator) binaryOp(expr *ast.Node) error {
	n := expr.Data.(ast.BinaryOpNode)

	// An operation is a floating one if either operand is real, or the
	// operator is real division. Logical and/or stay integer operations
	// over the 0/1 encoding no matter what.
	isRealOp := n.Left.DeterminedType == symbols.TypeReal ||
		n.Right.DeterminedType == symbols.TypeReal ||
		n.Op == token.Slash
	if n.Op == token.And || n.Op == token.Or {
		isRealOp = false
	}

	if err := g.expression(n.Left); err != nil {
		return err
	}
	if isRealOp && n.Left.DeterminedType == symbols.TypeInteger {
		g.emit("itof")
	}
	if err := g.expression(n.Right); err != nil {
		return err
	}
	if isRealOp && n.Right.DeterminedType == symbols.TypeInteger {
		g.emit("itof")
	}

	pick := func(real, integer string) string {
		if isRealOp {
			return real
		}
		return integer
	}

	switch n.Op {
	case token.Plus:
		g.emit(pick("fadd", "add"))
	case token.Minus:
		g.emit(pick("fsub", "sub"))
	case token.Star:
		g.emit(pick("fmul", "mul"))
	case token.Slash:
		g.emit("fdiv")
	case token.Div:
		g.emit("div")
	case token.Eq:
		g.emit("equal")
	case token.Neq:
		g.emit("equal")
		g.emit("not")
	case token.Lt:
		g.emit(pick("finf", "inf"))
	case token.Lte:
		g.emit(pick("finfeq", "infeq"))
	case token.Gt:
		g.emit(pick("fsup", "sup"))
	case token.Gte:
		g.emit(pick("fsupeq", "supeq"))
	case token.And:
		// 0/1 encoding: conjunction is multiplication.
		g.emit("mul")
	case token.Or:
		// 0/1 encoding: disjunction is "sum greater than zero".
		g.emit("add")
		g.emitArg("pushi", "0")
		g.emit("sup")
	default:
		return fmt.Errorf("codegen: unsupported binary op '%s'", token.TypeStrings[n.Op])
	}
	return nil
}

// funcCall pushes one reserved cell for the result, then follows the
// procedure-call convention; after parameter cleanup the result is on top
// of the stack.
func (g *Generator) funcCall(expr *ast.Node) error {
	n := expr.Data.(ast.FuncCallNode)
	entry := expr.Resolved
	if entry == nil {
		return fmt.Errorf("codegen: function call to '%s' was not resolved by semantic analysis", n.Name)
	}
	g.emitArg("pushn", "1")
	if err := g.pushArgsReversed(n.Args); err != nil {
		return err
	}
	g.emitArg("pusha", entry.MangledName())
	g.emit("call")
	if entry.NumParams > 0 {
		g.emitInt("pop", entry.NumParams)
	}
	return nil
}
