// Package vm interprets the textual instruction format produced by the
// code generator: a stack machine with a global frame at the bottom of
// the operand stack, frame-pointer-relative locals, separately allocated
// array blocks, and labels resolved at load time.
package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindInt valueKind = iota
	kindFloat
	kindString
	kindBlock
	kindAddr
)

// Value is one cell of the operand stack.
type Value struct {
	kind valueKind
	i    int
	f    float64
	s    string
	blk  []Value
	addr int
}

func intVal(i int) Value       { return Value{kind: kindInt, i: i} }
func floatVal(f float64) Value { return Value{kind: kindFloat, f: f} }

type instr struct {
	op     string
	hasArg bool
	intArg int
	fltArg float64
	strArg string
	// target is the resolved instruction index for jump/jz/pusha.
	target int
}

// Program is a loaded, label-resolved instruction sequence.
type Program struct {
	instrs []instr
}

// Load parses instruction text, resolving label references.
func Load(text string) (*Program, error) {
	var instrs []instr
	labels := make(map[string]int)
	type patch struct {
		index int
		label string
	}
	var patches []patch

	for lineNo, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if _, dup := labels[label]; dup {
				return nil, fmt.Errorf("vm: line %d: duplicate label %q", lineNo+1, label)
			}
			labels[label] = len(instrs)
			continue
		}

		op, rest, _ := strings.Cut(line, " ")
		in := instr{op: op, target: -1}
		if rest != "" {
			in.hasArg = true
			arg := strings.TrimSpace(rest)
			switch {
			case strings.HasPrefix(arg, "\""):
				s, err := unquote(arg)
				if err != nil {
					return nil, fmt.Errorf("vm: line %d: %v", lineNo+1, err)
				}
				in.strArg = s
			default:
				if n, err := strconv.Atoi(arg); err == nil {
					in.intArg = n
				} else if f, err := strconv.ParseFloat(arg, 64); err == nil {
					in.fltArg = f
				} else {
					// Label operand, resolved below.
					in.strArg = arg
					patches = append(patches, patch{index: len(instrs), label: arg})
				}
			}
		}
		instrs = append(instrs, in)
	}

	for _, p := range patches {
		target, ok := labels[p.label]
		if !ok {
			return nil, fmt.Errorf("vm: undefined label %q", p.label)
		}
		instrs[p.index].target = target
	}
	return &Program{instrs: instrs}, nil
}

func unquote(arg string) (string, error) {
	if len(arg) < 2 || !strings.HasSuffix(arg, "\"") {
		return "", fmt.Errorf("malformed string operand %s", arg)
	}
	var sb strings.Builder
	body := arg[1 : len(arg)-1]
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("trailing escape in string operand")
		}
		switch body[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case '\\':
			sb.WriteByte('\\')
		case '"':
			sb.WriteByte('"')
		default:
			return "", fmt.Errorf("unknown escape '\\%c'", body[i])
		}
	}
	return sb.String(), nil
}

type frame struct {
	retPC int
	fp    int
}

// Machine executes a loaded program.
type Machine struct {
	prog   *Program
	stack  []Value
	frames []frame
	fp     int
	pc     int
	out    io.Writer

	// MaxSteps aborts execution after that many instructions when set,
	// guarding tests against runaway loops.
	MaxSteps int
}

func NewMachine(prog *Program, out io.Writer) *Machine {
	return &Machine{prog: prog, out: out}
}

// Run executes a compiled program, writing program output to out.
func Run(text string, out io.Writer) error {
	prog, err := Load(text)
	if err != nil {
		return err
	}
	return NewMachine(prog, out).Run()
}

func (m *Machine) fail(format string, args ...interface{}) error {
	return fmt.Errorf("vm: pc %d (%s): %s", m.pc, m.prog.instrs[m.pc].op, fmt.Sprintf(format, args...))
}

func (m *Machine) push(v Value) { m.stack = append(m.stack, v) }

func (m *Machine) pop() (Value, error) {
	if len(m.stack) == 0 {
		return Value{}, m.fail("stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *Machine) popInt() (int, error) {
	v, err := m.pop()
	if err != nil {
		return 0, err
	}
	if v.kind != kindInt {
		return 0, m.fail("expected integer on stack")
	}
	return v.i, nil
}

func (m *Machine) popFloat() (float64, error) {
	v, err := m.pop()
	if err != nil {
		return 0, err
	}
	if v.kind != kindFloat {
		return 0, m.fail("expected float on stack")
	}
	return v.f, nil
}

// slot returns the absolute stack index of a frame-relative offset,
// growing the stack when a store targets a slot above the current top.
// Array handle slots are not covered by the scalar bulk reservation, so
// stores may address one cell past what pushn created.
func (m *Machine) slot(offset int, grow bool) (int, error) {
	idx := m.fp + offset
	if idx < 0 {
		return 0, m.fail("slot %d below stack base", idx)
	}
	if idx >= len(m.stack) {
		if !grow {
			return 0, m.fail("slot %d beyond stack top", idx)
		}
		for len(m.stack) <= idx {
			m.push(intVal(0))
		}
	}
	return idx, nil
}

func (m *Machine) Run() error {
	m.pc = 0
	steps := 0
	for m.pc < len(m.prog.instrs) {
		if m.MaxSteps > 0 {
			steps++
			if steps > m.MaxSteps {
				return fmt.Errorf("vm: exceeded %d steps", m.MaxSteps)
			}
		}
		in := m.prog.instrs[m.pc]
		next := m.pc + 1

		switch in.op {
		case "start":
			m.fp = 0
		case "stop":
			return nil
		case "jump":
			next = in.target
		case "jz":
			c, err := m.popInt()
			if err != nil {
				return err
			}
			if c == 0 {
				next = in.target
			}
		case "pushi":
			m.push(intVal(in.intArg))
		case "pushf":
			m.push(floatVal(in.fltArg))
		case "pushs":
			m.push(Value{kind: kindString, s: in.strArg})
		case "pushn":
			for i := 0; i < in.intArg; i++ {
				m.push(intVal(0))
			}
		case "pusha":
			m.push(Value{kind: kindAddr, addr: in.target})
		case "pushg":
			if in.intArg < 0 || in.intArg >= len(m.stack) {
				return m.fail("global slot %d out of range", in.intArg)
			}
			m.push(m.stack[in.intArg])
		case "storeg":
			v, err := m.pop()
			if err != nil {
				return err
			}
			idx := in.intArg
			for len(m.stack) <= idx {
				m.push(intVal(0))
			}
			m.stack[idx] = v
		case "pushl":
			idx, err := m.slot(in.intArg, false)
			if err != nil {
				return err
			}
			m.push(m.stack[idx])
		case "storel":
			v, err := m.pop()
			if err != nil {
				return err
			}
			idx, err := m.slot(in.intArg, true)
			if err != nil {
				return err
			}
			m.stack[idx] = v
		case "pop":
			for i := 0; i < in.intArg; i++ {
				if _, err := m.pop(); err != nil {
					return err
				}
			}
		case "swap":
			if len(m.stack) < 2 {
				return m.fail("stack underflow")
			}
			n := len(m.stack)
			m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]
		case "call":
			a, err := m.pop()
			if err != nil {
				return err
			}
			if a.kind != kindAddr {
				return m.fail("call target is not an address")
			}
			m.frames = append(m.frames, frame{retPC: next, fp: m.fp})
			m.fp = len(m.stack)
			next = a.addr
		case "return":
			if len(m.frames) == 0 {
				return m.fail("return with no active call")
			}
			fr := m.frames[len(m.frames)-1]
			m.frames = m.frames[:len(m.frames)-1]
			m.stack = m.stack[:m.fp]
			m.fp = fr.fp
			next = fr.retPC
		case "alloc":
			m.push(Value{kind: kindBlock, blk: make([]Value, in.intArg)})
		case "load":
			a, err := m.pop()
			if err != nil {
				return err
			}
			if a.kind != kindBlock {
				return m.fail("load from non-array value")
			}
			if in.intArg < 0 || in.intArg >= len(a.blk) {
				return m.fail("array offset %d out of range", in.intArg)
			}
			m.push(a.blk[in.intArg])
		case "store":
			v, err := m.pop()
			if err != nil {
				return err
			}
			a, err := m.pop()
			if err != nil {
				return err
			}
			if a.kind != kindBlock {
				return m.fail("store to non-array value")
			}
			if in.intArg < 0 || in.intArg >= len(a.blk) {
				return m.fail("array offset %d out of range", in.intArg)
			}
			a.blk[in.intArg] = v
		case "loadn":
			i, err := m.popInt()
			if err != nil {
				return err
			}
			a, err := m.pop()
			if err != nil {
				return err
			}
			if a.kind != kindBlock {
				return m.fail("loadn from non-array value")
			}
			if i < 0 || i >= len(a.blk) {
				return m.fail("array offset %d out of range", i)
			}
			m.push(a.blk[i])
		case "storen":
			v, err := m.pop()
			if err != nil {
				return err
			}
			i, err := m.popInt()
			if err != nil {
				return err
			}
			a, err := m.pop()
			if err != nil {
				return err
			}
			if a.kind != kindBlock {
				return m.fail("storen to non-array value")
			}
			if i < 0 || i >= len(a.blk) {
				return m.fail("array offset %d out of range", i)
			}
			a.blk[i] = v
		case "itof":
			i, err := m.popInt()
			if err != nil {
				return err
			}
			m.push(floatVal(float64(i)))
		case "not":
			i, err := m.popInt()
			if err != nil {
				return err
			}
			if i == 0 {
				m.push(intVal(1))
			} else {
				m.push(intVal(0))
			}
		case "add", "sub", "mul", "div", "inf", "infeq", "sup", "supeq":
			b, err := m.popInt()
			if err != nil {
				return err
			}
			a, err := m.popInt()
			if err != nil {
				return err
			}
			r, err := m.intBinop(in.op, a, b)
			if err != nil {
				return err
			}
			m.push(r)
		case "fadd", "fsub", "fmul", "fdiv", "finf", "finfeq", "fsup", "fsupeq":
			b, err := m.popFloat()
			if err != nil {
				return err
			}
			a, err := m.popFloat()
			if err != nil {
				return err
			}
			r, err := m.floatBinop(in.op, a, b)
			if err != nil {
				return err
			}
			m.push(r)
		case "equal":
			b, err := m.pop()
			if err != nil {
				return err
			}
			a, err := m.pop()
			if err != nil {
				return err
			}
			m.push(boolVal(valuesEqual(a, b)))
		case "writei":
			i, err := m.popInt()
			if err != nil {
				return err
			}
			fmt.Fprintf(m.out, "%d", i)
		case "writef":
			f, err := m.popFloat()
			if err != nil {
				return err
			}
			fmt.Fprintf(m.out, "%g", f)
		case "writes":
			v, err := m.pop()
			if err != nil {
				return err
			}
			if v.kind != kindString {
				return m.fail("writes on non-string value")
			}
			fmt.Fprint(m.out, v.s)
		default:
			return m.fail("unknown instruction")
		}
		m.pc = next
	}
	return fmt.Errorf("vm: ran off the end of the program (missing stop)")
}

func boolVal(b bool) Value {
	if b {
		return intVal(1)
	}
	return intVal(0)
}

func valuesEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindInt:
		return a.i == b.i
	case kindFloat:
		return a.f == b.f
	case kindString:
		return a.s == b.s
	}
	return false
}

func (m *Machine) intBinop(op string, a, b int) (Value, error) {
	switch op {
	case "add":
		return intVal(a + b), nil
	case "sub":
		return intVal(a - b), nil
	case "mul":
		return intVal(a * b), nil
	case "div":
		if b == 0 {
			return Value{}, m.fail("integer division by zero")
		}
		return intVal(a / b), nil
	case "inf":
		return boolVal(a < b), nil
	case "infeq":
		return boolVal(a <= b), nil
	case "sup":
		return boolVal(a > b), nil
	case "supeq":
		return boolVal(a >= b), nil
	}
	return Value{}, m.fail("unknown integer op")
}

func (m *Machine) floatBinop(op string, a, b float64) (Value, error) {
	switch op {
	case "fadd":
		return floatVal(a + b), nil
	case "fsub":
		return floatVal(a - b), nil
	case "fmul":
		return floatVal(a * b), nil
	case "fdiv":
		if b == 0 {
			return Value{}, m.fail("float division by zero")
		}
		return floatVal(a / b), nil
	case "finf":
		return boolVal(a < b), nil
	case "finfeq":
		return boolVal(a <= b), nil
	case "fsup":
		return boolVal(a > b), nil
	case "fsupeq":
		return boolVal(a >= b), nil
	}
	return Value{}, m.fail("unknown float op")
}
