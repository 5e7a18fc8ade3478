// Package ast defines the typed abstract syntax tree of MiniPascal.
//
// The tree is a closed set of node variants: one Node struct tagged with a
// NodeType and carrying a per-kind payload in Data. Consumers dispatch with
// an exhaustive switch over the tag, so an unhandled node kind is caught at
// the switch rather than by a runtime downcast.
package ast

import (
	"github.com/mpclang/mpc/pkg/symbols"
	"github.com/mpclang/mpc/pkg/token"
)

// NodeType defines the kind of a node in the AST.
type NodeType int

const (
	// Expressions
	IntLit NodeType = iota
	RealLit
	BoolLit
	StrLit
	Ident
	Variable
	UnaryOp
	BinaryOp
	FuncCall

	// Statements
	Assign
	If
	While
	Return
	ProcCall
	Compound

	// Declarations and structure
	Program
	VarDecl
	ParamGroup
	Subprogram
)

// Node represents a node in the abstract syntax tree. DeterminedType,
// Scope and Resolved are filled in by semantic analysis; the code
// generator only reads them.
type Node struct {
	Type NodeType
	Tok  token.Token
	Data interface{}

	// DeterminedType is the type category of an expression node.
	DeterminedType symbols.TypeCategory
	// Scope marks identifier and variable references as global or local.
	Scope symbols.VarScope
	// Resolved is the symbol entry of a call target, or of the function
	// a bare identifier reference implicitly calls.
	Resolved *symbols.Entry
}

// TypeSpec is the surface type written in a declaration: a standard type
// or an array type with literal bounds.
type TypeSpec struct {
	Category symbols.TypeCategory
	Low      int
	High     int
	Elem     symbols.TypeCategory // element type when Category is TypeArray
}

// ArrayInfo converts an array TypeSpec to symbol table array metadata.
func (t TypeSpec) ArrayInfo() symbols.ArrayInfo {
	return symbols.ArrayInfo{
		LowBound:    t.Low,
		HighBound:   t.High,
		ElementType: t.Elem,
		Initialized: true,
	}
}

// --- Node payloads ---

type IntLitNode struct{ Value int }
type RealLitNode struct{ Value float64 }
type BoolLitNode struct{ Value bool }
type StrLitNode struct{ Value string }
type IdentNode struct{ Name string }
type VariableNode struct {
	Name  string
	Index *Node // nil for plain variables
}
type UnaryOpNode struct {
	Op   token.Type
	Expr *Node
}
type BinaryOpNode struct {
	Op          token.Type
	Left, Right *Node
}
type FuncCallNode struct {
	Name string
	Args []*Node
}
type AssignNode struct {
	Target *Node // Variable node
	Value  *Node
}
type IfNode struct {
	Cond, Then, Else *Node
}
type WhileNode struct {
	Cond, Body *Node
}
type ReturnNode struct{ Value *Node } // Value may be nil
type ProcCallNode struct {
	Name string
	Args []*Node
}
type CompoundNode struct{ Stmts []*Node }
type VarDeclNode struct {
	Names []string
	Spec  TypeSpec
}
type ParamGroupNode struct {
	Names []string
	Spec  TypeSpec
}
type SubprogramNode struct {
	IsFunction bool
	Name       string
	Params     []*Node // ParamGroup nodes
	ReturnType symbols.TypeCategory
	Decls      []*Node // VarDecl nodes
	Body       *Node   // Compound node
}
type ProgramNode struct {
	Name     string
	Decls    []*Node // VarDecl nodes
	Subprogs []*Node // Subprogram nodes
	Body     *Node   // Compound node
}

// --- Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewIntLit(tok token.Token, value int) *Node {
	return newNode(tok, IntLit, IntLitNode{Value: value})
}
func NewRealLit(tok token.Token, value float64) *Node {
	return newNode(tok, RealLit, RealLitNode{Value: value})
}
func NewBoolLit(tok token.Token, value bool) *Node {
	return newNode(tok, BoolLit, BoolLitNode{Value: value})
}
func NewStrLit(tok token.Token, value string) *Node {
	return newNode(tok, StrLit, StrLitNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewVariable(tok token.Token, name string, index *Node) *Node {
	return newNode(tok, Variable, VariableNode{Name: name, Index: index})
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right})
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args})
}
func NewAssign(tok token.Token, target, value *Node) *Node {
	return newNode(tok, Assign, AssignNode{Target: target, Value: value})
}
func NewIf(tok token.Token, cond, then, els *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Then: then, Else: els})
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body})
}
func NewReturn(tok token.Token, value *Node) *Node {
	return newNode(tok, Return, ReturnNode{Value: value})
}
func NewProcCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, ProcCall, ProcCallNode{Name: name, Args: args})
}
func NewCompound(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Compound, CompoundNode{Stmts: stmts})
}
func NewVarDecl(tok token.Token, names []string, spec TypeSpec) *Node {
	return newNode(tok, VarDecl, VarDeclNode{Names: names, Spec: spec})
}
func NewParamGroup(tok token.Token, names []string, spec TypeSpec) *Node {
	return newNode(tok, ParamGroup, ParamGroupNode{Names: names, Spec: spec})
}
func NewSubprogram(tok token.Token, isFunction bool, name string, params []*Node, returnType symbols.TypeCategory, decls []*Node, body *Node) *Node {
	return newNode(tok, Subprogram, SubprogramNode{
		IsFunction: isFunction, Name: name, Params: params,
		ReturnType: returnType, Decls: decls, Body: body,
	})
}
func NewProgram(tok token.Token, name string, decls, subprogs []*Node, body *Node) *Node {
	return newNode(tok, Program, ProgramNode{Name: name, Decls: decls, Subprogs: subprogs, Body: body})
}

// ParamTypeList flattens a subprogram's parameter groups into the
// declaration-order type category list used for name mangling.
func ParamTypeList(params []*Node) []symbols.TypeCategory {
	var types []symbols.TypeCategory
	for _, group := range params {
		g := group.Data.(ParamGroupNode)
		for range g.Names {
			types = append(types, g.Spec.Category)
		}
	}
	return types
}
