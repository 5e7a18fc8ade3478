package driver

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func runProgram(t *testing.T, src string) string {
	t.Helper()
	var out strings.Builder
	if err := Run("test.pas", src, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestHelloWorld(t *testing.T) {
	got := runProgram(t, `
program hello;
begin
    writeln('Hello, World!')
end.`)
	if got != "Hello, World!\n" {
		t.Errorf("output = %q, want %q", got, "Hello, World!\n")
	}
}

func TestWhileLoopCountsDown(t *testing.T) {
	got := runProgram(t, `
program countdown;
var n : integer;
begin
    n := 3;
    while n > 0 do
    begin
        writeln(n);
        n := n - 1
    end
end.`)
	if diff := cmp.Diff("3\n2\n1\n", got); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRecursiveFibonacci(t *testing.T) {
	got := runProgram(t, `
program fibs;
var i : integer;

function fib(n : integer) : integer;
begin
    if n < 2 then
        return n
    else
        return fib(n - 1) + fib(n - 2)
end;

begin
    i := 0;
    while i < 8 do
    begin
        write(fib(i));
        write(' ');
        i := i + 1
    end;
    writeln('')
end.`)
	if got != "0 1 1 2 3 5 8 13 \n" {
		t.Errorf("output = %q, want %q", got, "0 1 1 2 3 5 8 13 \n")
	}
}

func TestArraysSumOfSquares(t *testing.T) {
	got := runProgram(t, `
program squares;
var a : array[1..5] of integer;
var i, sum : integer;
begin
    i := 1;
    while i <= 5 do
    begin
        a[i] := i * i;
        i := i + 1
    end;
    sum := 0;
    i := 1;
    while i <= 5 do
    begin
        sum := sum + a[i];
        i := i + 1
    end;
    writeln(sum)
end.`)
	if got != "55\n" {
		t.Errorf("output = %q, want %q", got, "55\n")
	}
}

func TestRealDivision(t *testing.T) {
	got := runProgram(t, `
program avg;
var r : real;
begin
    r := (2 + 3) / 2;
    writeln(r)
end.`)
	if got != "2.5\n" {
		t.Errorf("output = %q, want %q", got, "2.5\n")
	}
}

func TestBooleansPrintAsBits(t *testing.T) {
	got := runProgram(t, `
program bools;
var b : boolean;
var x : integer;
begin
    x := 4;
    b := (x > 2) and (x < 10);
    writeln(b);
    b := (x < 2) or (x > 10);
    writeln(b);
    b := x <> 4;
    writeln(b)
end.`)
	if got != "1\n0\n0\n" {
		t.Errorf("output = %q, want %q", got, "1\n0\n0\n")
	}
}

func TestOverloadDispatch(t *testing.T) {
	got := runProgram(t, `
program dispatch;

procedure show(x : integer);
begin
    write('int: ');
    writeln(x)
end;

procedure show(x : real);
begin
    write('real: ');
    writeln(x)
end;

begin
    show(42);
    show(1.5)
end.`)
	if got != "int: 42\nreal: 1.5\n" {
		t.Errorf("output = %q, want %q", got, "int: 42\nreal: 1.5\n")
	}
}

func TestZeroArgFunctionReference(t *testing.T) {
	got := runProgram(t, `
program implicit;
var x : integer;

function seven : integer;
begin
    return 7
end;

begin
    x := seven * 2;
    writeln(x)
end.`)
	if got != "14\n" {
		t.Errorf("output = %q, want %q", got, "14\n")
	}
}

func TestNestedCallsWithLocals(t *testing.T) {
	got := runProgram(t, `
program nested;
var r : integer;

function square(n : integer) : integer;
begin
    return n * n
end;

function sumsq(a, b : integer) : integer;
var s : integer;
begin
    s := square(a) + square(b);
    return s
end;

begin
    r := sumsq(3, 4);
    writeln(r)
end.`)
	if got != "25\n" {
		t.Errorf("output = %q, want %q", got, "25\n")
	}
}

func TestSemanticErrorIsReturned(t *testing.T) {
	var out strings.Builder
	err := Run("bad.pas", `
program bad;
var x : integer;
begin
    x := y
end.`, &out)
	if err == nil {
		t.Fatal("Run: expected error, got nil")
	}
	if !strings.Contains(err.Error(), "undeclared identifier 'y'") {
		t.Errorf("error = %q, want undeclared identifier", err)
	}
	if !strings.Contains(err.Error(), "bad.pas") {
		t.Errorf("error = %q, want source name prefix", err)
	}
}
