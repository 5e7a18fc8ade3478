// Package symbols holds the symbol table shared by semantic analysis and
// code generation: entries for variables, parameters and subprograms, the
// lexical scope stack, and the mangled-name scheme that disambiguates
// overloaded subprograms.
package symbols

import "strings"

// Kind classifies a symbol table entry.
type Kind int

const (
	KindVariable Kind = iota
	KindParameter
	KindFunction
	KindProcedure
)

func (k Kind) String() string {
	switch k {
	case KindVariable:
		return "variable"
	case KindParameter:
		return "parameter"
	case KindFunction:
		return "function"
	case KindProcedure:
		return "procedure"
	}
	return "unknown"
}

// TypeCategory is the coarse type classification carried by entries and
// by every typed AST node.
type TypeCategory int

const (
	TypeUnknown TypeCategory = iota
	TypeInteger
	TypeReal
	TypeBoolean
	TypeArray
	// TypeString only occurs on string literal expressions; no variable
	// can be declared with it.
	TypeString
)

func (t TypeCategory) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeBoolean:
		return "boolean"
	case TypeArray:
		return "array"
	case TypeString:
		return "string"
	}
	return "unknown"
}

// Code returns the one-letter signature code used in mangled names.
func (t TypeCategory) Code() string {
	switch t {
	case TypeInteger:
		return "i"
	case TypeReal:
		return "r"
	case TypeBoolean:
		return "b"
	case TypeArray:
		return "a"
	}
	return "u"
}

// VarScope records whether a variable lives in the global frame or the
// current subprogram frame.
type VarScope int

const (
	ScopeGlobal VarScope = iota
	ScopeLocal
)

// ArrayInfo holds the bounds and element type of an array variable.
// Initialized reports whether the bounds were actually recorded.
type ArrayInfo struct {
	LowBound    int
	HighBound   int
	ElementType TypeCategory
	Initialized bool
}

// Size returns the number of cells the array occupies.
func (a ArrayInfo) Size() int { return a.HighBound - a.LowBound + 1 }

// Entry is one symbol table record. Offset is assigned exactly once, when
// the declaration is visited, and never reassigned.
type Entry struct {
	Name  string
	Kind  Kind
	Type  TypeCategory
	Scope VarScope

	// Offset of the variable or parameter slot within its frame. For
	// parameters every use site applies the -(Offset+1) transform; the
	// raw value stored here is the declaration-order index.
	Offset int

	Array ArrayInfo

	// Subprogram fields.
	NumParams  int
	ParamTypes []TypeCategory
	ReturnType TypeCategory // functions only
}

// MangledName derives the signature-encoded identifier of a subprogram
// entry: "f_" or "p_", the declared name, then one "_<code>" per formal
// parameter in declaration order.
func (e *Entry) MangledName() string {
	var sb strings.Builder
	if e.Kind == KindFunction {
		sb.WriteString("f_")
	} else {
		sb.WriteString("p_")
	}
	sb.WriteString(e.Name)
	for _, pt := range e.ParamTypes {
		sb.WriteString("_")
		sb.WriteString(pt.Code())
	}
	return sb.String()
}

// MangleKey builds the lookup key for a subprogram from its surface name
// and parameter type list, without needing an entry in hand. Call sites
// use it during overload resolution; the generator uses it to relocate a
// subprogram's own entry from its declaration.
func MangleKey(isFunction bool, name string, paramTypes []TypeCategory) string {
	e := Entry{Name: name, ParamTypes: paramTypes, Kind: KindProcedure}
	if isFunction {
		e.Kind = KindFunction
	}
	return e.MangledName()
}

type scope struct {
	entries map[string]*Entry
	parent  *scope
}

// Table is the scoped symbol table. Subprogram entries are keyed by their
// mangled names; everything else by its surface name.
type Table struct {
	current *scope
	global  *scope
}

func NewTable() *Table {
	g := &scope{entries: make(map[string]*Entry)}
	return &Table{current: g, global: g}
}

// EnterScope pushes a fresh lexical scope.
func (t *Table) EnterScope() {
	t.current = &scope{entries: make(map[string]*Entry), parent: t.current}
}

// ExitScope discards the innermost scope and everything declared in it.
func (t *Table) ExitScope() {
	if t.current.parent != nil {
		t.current = t.current.parent
	}
}

// IsGlobalScope reports whether the table is currently at the outermost
// scope.
func (t *Table) IsGlobalScope() bool { return t.current == t.global }

// Add registers an entry in the current scope, replacing any existing
// entry with the same key in that scope.
func (t *Table) Add(e *Entry) {
	key := e.Name
	if e.Kind == KindFunction || e.Kind == KindProcedure {
		key = e.MangledName()
	}
	t.current.entries[key] = e
}

// Lookup resolves a name or mangled key, innermost scope first.
func (t *Table) Lookup(key string) *Entry {
	for s := t.current; s != nil; s = s.parent {
		if e, ok := s.entries[key]; ok {
			return e
		}
	}
	return nil
}

// LookupCurrent resolves a key in the innermost scope only.
func (t *Table) LookupCurrent(key string) *Entry {
	if e, ok := t.current.entries[key]; ok {
		return e
	}
	return nil
}
