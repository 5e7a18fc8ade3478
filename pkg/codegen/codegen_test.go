package codegen_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mpclang/mpc/pkg/ast"
	"github.com/mpclang/mpc/pkg/codegen"
	"github.com/mpclang/mpc/pkg/lexer"
	"github.com/mpclang/mpc/pkg/parser"
	"github.com/mpclang/mpc/pkg/semantics"
	"github.com/mpclang/mpc/pkg/symbols"
	"github.com/mpclang/mpc/pkg/token"
)

func compile(t *testing.T, src string) string {
	t.Helper()
	prog := parser.Parse(lexer.Tokenize([]rune(src)))
	table := symbols.NewTable()
	if err := semantics.Analyze(prog, table); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	out, err := codegen.Generate(prog, table)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return out
}

// asm joins instruction lines into the generator's output format:
// labels flush left, everything else indented four spaces.
func asm(lines ...string) string {
	var sb strings.Builder
	for _, line := range lines {
		if strings.HasSuffix(line, ":") {
			sb.WriteString(line)
		} else {
			sb.WriteString("    " + line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestGlobalsAndArithmetic(t *testing.T) {
	got := compile(t, `
program p;
var x, y : integer;
begin
    x := 3;
    y := x + 2
end.`)
	want := asm(
		"start",
		"main_entry:",
		"pushn 2",
		"pushi 3",
		"storeg 0",
		"pushg 0",
		"pushi 2",
		"add",
		"storeg 1",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestNoGlobalReservationWhenNoScalars(t *testing.T) {
	got := compile(t, `
program p;
begin
    writeln('hi')
end.`)
	want := asm(
		"start",
		"main_entry:",
		`pushs "hi"`,
		"writes",
		`pushs "\n"`,
		"writes",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestZeroArgFunctionImplicitCall(t *testing.T) {
	got := compile(t, `
program p;
var x : integer;

function five : integer;
begin
    return 5
end;

begin
    x := five
end.`)
	want := asm(
		"start",
		"jump main_entry",
		"jump f_five_end",
		"f_five:",
		"pushi 5",
		"storel -1",
		"return",
		"f_five_end:",
		"main_entry:",
		"pushn 1",
		"pushn 1",
		"pusha f_five",
		"call",
		"storeg 0",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestProcedureCallConvention(t *testing.T) {
	got := compile(t, `
program p;

procedure show(a, b : integer);
begin
    writeln(a + b)
end;

begin
    show(1, 2)
end.`)
	want := asm(
		"start",
		"jump main_entry",
		"jump p_show_i_i_end",
		"p_show_i_i:",
		"pushl -1",
		"pushl -2",
		"add",
		"writei",
		`pushs "\n"`,
		"writes",
		"return",
		"p_show_i_i_end:",
		"main_entry:",
		"pushi 2",
		"pushi 1",
		"pusha p_show_i_i",
		"call",
		"pop 2",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestParameterSlotsUseNegativeOffsets(t *testing.T) {
	got := compile(t, `
program p;

function pick(a : integer; b : real; c : boolean) : integer;
begin
    if c then return a;
    return a
end;

begin end.`)
	// Parameter I reads through slot -(I+1), in declaration order.
	for _, want := range []string{"pushl -3", "pushl -1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "pushl 0") {
		t.Errorf("parameter read through a non-negative slot:\n%s", got)
	}
}

func TestIfElseLabels(t *testing.T) {
	got := compile(t, `
program p;
var a, b : integer;
begin
    if a > b then a := 1 else a := 2
end.`)
	want := asm(
		"start",
		"main_entry:",
		"pushn 2",
		"pushg 0",
		"pushg 1",
		"sup",
		"jz L_ELSE_0",
		"pushi 1",
		"storeg 0",
		"jump L_END_IF_1",
		"L_ELSE_0:",
		"pushi 2",
		"storeg 0",
		"L_END_IF_1:",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestIfWithoutElseSkipsEndJump(t *testing.T) {
	got := compile(t, `
program p;
var a : integer;
begin
    if a > 0 then a := 1
end.`)
	if strings.Contains(got, "jump L_END_IF") {
		t.Errorf("else-less if should not jump to END_IF:\n%s", got)
	}
	for _, want := range []string{"L_ELSE_0:", "L_END_IF_1:"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing label %q:\n%s", want, got)
		}
	}
}

func TestNestedIfLabelsAreDistinctAndMonotone(t *testing.T) {
	got := compile(t, `
program p;
var a : integer;
begin
    if a > 0 then
        if a > 1 then a := 2 else a := 3
    else
        a := 4
end.`)
	// Outer if draws 0 and 1, inner draws 2 and 3.
	for _, want := range []string{"L_ELSE_0", "L_END_IF_1", "L_ELSE_2", "L_END_IF_3"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing label %q:\n%s", want, got)
		}
	}
}

func TestWhileLoop(t *testing.T) {
	got := compile(t, `
program p;
var x : integer;
begin
    while x < 10 do x := x + 1
end.`)
	want := asm(
		"start",
		"main_entry:",
		"pushn 1",
		"L_WHILE_START_0:",
		"pushg 0",
		"pushi 10",
		"inf",
		"jz L_WHILE_END_1",
		"pushg 0",
		"pushi 1",
		"add",
		"storeg 0",
		"jump L_WHILE_START_0",
		"L_WHILE_END_1:",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayAccess(t *testing.T) {
	got := compile(t, `
program p;
var a : array[3..7] of integer;
var x : integer;
begin
    a[4] := 9;
    a[x] := 1;
    x := a[x]
end.`)
	want := asm(
		"start",
		"main_entry:",
		"pushn 1", // x only; the array handle slot is not bulk-reserved
		"alloc 5",
		"storeg 0",
		// a[4] := 9 folds the literal index to a direct store.
		"pushg 0",
		"pushi 9",
		"store 1",
		// a[x] := 1 rebases the index at run time.
		"pushg 0",
		"pushg 1",
		"pushi 3",
		"sub",
		"pushi 1",
		"storen",
		// x := a[x]
		"pushg 0",
		"pushg 1",
		"pushi 3",
		"sub",
		"loadn",
		"storeg 1",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalArrayAllocation(t *testing.T) {
	got := compile(t, `
program p;

procedure fill;
var a : array[1..4] of integer;
var i : integer;
begin
    a[1] := i
end;

begin end.`)
	for _, want := range []string{"alloc 4", "storel 0", "pushl 0", "pushl 1", "store 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRealArithmeticAndPromotion(t *testing.T) {
	got := compile(t, `
program p;
var r : real;
begin
    r := 3;
    r := 1 / 2;
    r := -r;
    r := r + 1
end.`)
	want := asm(
		"start",
		"main_entry:",
		"pushn 1",
		// integer widened exactly once on assignment
		"pushi 3",
		"itof",
		"storeg 0",
		// "/" promotes both operands and always divides as floats
		"pushi 1",
		"itof",
		"pushi 2",
		"itof",
		"fdiv",
		"storeg 0",
		// real negation is subtraction from 0.0
		"pushg 0",
		"pushf 0.0",
		"swap",
		"fsub",
		"storeg 0",
		// mixed addition promotes only the integer side
		"pushg 0",
		"pushi 1",
		"itof",
		"fadd",
		"storeg 0",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestBooleanOperators(t *testing.T) {
	got := compile(t, `
program p;
var b : boolean;
var x, y : integer;
begin
    b := b and b;
    b := b or b;
    b := x <> y;
    b := not b
end.`)
	want := asm(
		"start",
		"main_entry:",
		"pushn 3",
		"pushg 0",
		"pushg 0",
		"mul",
		"storeg 0",
		"pushg 0",
		"pushg 0",
		"add",
		"pushi 0",
		"sup",
		"storeg 0",
		"pushg 1",
		"pushg 2",
		"equal",
		"not",
		"storeg 0",
		"pushg 0",
		"not",
		"storeg 0",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestOverloadsGetDistinctLabels(t *testing.T) {
	got := compile(t, `
program p;

procedure show(x : integer);
begin
    writeln(x)
end;

procedure show(x : real);
begin
    writeln(x)
end;

begin
    show(1);
    show(1.5)
end.`)
	for _, want := range []string{"p_show_i:", "p_show_r:", "pusha p_show_i", "pusha p_show_r"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFunctionReturnWidensToReal(t *testing.T) {
	got := compile(t, `
program p;
var r : real;

function half(n : integer) : real;
begin
    return n
end;

begin
    r := half(5)
end.`)
	want := asm(
		"start",
		"jump main_entry",
		"jump f_half_i_end",
		"f_half_i:",
		"pushl -1",
		"itof",
		"storel -2",
		"return",
		"f_half_i_end:",
		"main_entry:",
		"pushn 1",
		"pushn 1",
		"pushi 5",
		"pusha f_half_i",
		"call",
		"pop 1",
		"storeg 0",
		"stop",
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerationIsIdempotent(t *testing.T) {
	src := `
program p;
var x : integer;

function twice(n : integer) : integer;
begin
    return n * 2
end;

begin
    if x < 4 then x := twice(x);
    while x > 0 do x := x - 1
end.`
	prog := parser.Parse(lexer.Tokenize([]rune(src)))
	table := symbols.NewTable()
	if err := semantics.Analyze(prog, table); err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	first, err := codegen.Generate(prog, table)
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := codegen.Generate(prog, table)
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated generation diverged (-first +second):\n%s", diff)
	}
}

// The error tests hand the generator trees that violate its contract with
// the earlier passes, bypassing semantic analysis on purpose.

func genErr(t *testing.T, prog *ast.Node, table *symbols.Table) error {
	t.Helper()
	_, err := codegen.Generate(prog, table)
	if err == nil {
		t.Fatal("Generate: expected error, got nil")
	}
	return err
}

func mainOnly(stmts ...*ast.Node) *ast.Node {
	var tok token.Token
	return ast.NewProgram(tok, "p", nil, nil, ast.NewCompound(tok, stmts))
}

func TestErrorUnresolvedCall(t *testing.T) {
	var tok token.Token
	prog := mainOnly(ast.NewProcCall(tok, "mystery", nil))
	err := genErr(t, prog, symbols.NewTable())
	if !strings.Contains(err.Error(), "was not resolved") {
		t.Errorf("error = %q, want unresolved-call message", err)
	}
}

func TestErrorSymbolNotFound(t *testing.T) {
	var tok token.Token
	target := ast.NewVariable(tok, "ghost", nil)
	prog := mainOnly(ast.NewAssign(tok, target, ast.NewIntLit(tok, 1)))
	err := genErr(t, prog, symbols.NewTable())
	if !strings.Contains(err.Error(), "symbol not found") {
		t.Errorf("error = %q, want symbol-not-found message", err)
	}
}

func TestErrorMissingArrayMetadata(t *testing.T) {
	var tok token.Token
	table := symbols.NewTable()
	table.Add(&symbols.Entry{Name: "a", Kind: symbols.KindVariable, Type: symbols.TypeArray})

	target := ast.NewVariable(tok, "a", ast.NewIntLit(tok, 1))
	prog := mainOnly(ast.NewAssign(tok, target, ast.NewIntLit(tok, 0)))
	err := genErr(t, prog, table)
	if !strings.Contains(err.Error(), "array details not found") {
		t.Errorf("error = %q, want missing-metadata message", err)
	}
}

func TestErrorInvalidArrayBounds(t *testing.T) {
	var tok token.Token
	decl := ast.NewVarDecl(tok, []string{"a"}, ast.TypeSpec{
		Category: symbols.TypeArray, Low: 5, High: 3, Elem: symbols.TypeInteger,
	})
	prog := ast.NewProgram(tok, "p", []*ast.Node{decl}, nil, ast.NewCompound(tok, nil))
	err := genErr(t, prog, symbols.NewTable())
	if !strings.Contains(err.Error(), "array size must be positive") {
		t.Errorf("error = %q, want invalid-bounds message", err)
	}
}

func TestErrorReturnOutsideSubprogram(t *testing.T) {
	var tok token.Token
	prog := mainOnly(ast.NewReturn(tok, ast.NewIntLit(tok, 1)))
	err := genErr(t, prog, symbols.NewTable())
	if !strings.Contains(err.Error(), "no subprogram context") {
		t.Errorf("error = %q, want missing-context message", err)
	}
}

func TestErrorUnsupportedOperator(t *testing.T) {
	var tok token.Token
	table := symbols.NewTable()
	table.Add(&symbols.Entry{Name: "x", Kind: symbols.KindVariable, Type: symbols.TypeInteger})

	bad := ast.NewBinaryOp(tok, token.Assign, ast.NewIntLit(tok, 1), ast.NewIntLit(tok, 2))
	target := ast.NewVariable(tok, "x", nil)
	prog := mainOnly(ast.NewAssign(tok, target, bad))
	err := genErr(t, prog, table)
	if !strings.Contains(err.Error(), "unsupported binary op") {
		t.Errorf("error = %q, want unsupported-op message", err)
	}
}
