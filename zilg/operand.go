// Package zilg contains the code generator for the ZIL compiler.
//
// It owns every symbol of a compilation run: operands, routines with their
// instruction buffers, objects, properties, flags, globals, tables,
// vocabulary words and strings. Routines are built through RoutineBuilder,
// which feeds a peephole buffer; Game.Emit lays out all sections in the
// order the Z-machine assembler expects and returns an Image.
package zilg

import (
	"strconv"
)

// Operand is a value usable as an instruction argument. Operands are
// compared by identity: the Game interns numbers and strings, and every
// defined symbol has exactly one Operand.
type Operand interface {
	String() string
	operand()
}

// Number is a literal integer.
type Number struct {
	Value int
}

// Text is a string constant in the string pool.
type Text struct {
	Name  string
	Value string
}

type VarKind int

const (
	VarLocal VarKind = iota
	VarGlobal
	VarStack
)

// Variable is a local, a hard global or the stack.
type Variable struct {
	Kind VarKind
	Name string
}

type SymbolKind int

const (
	SymRoutine SymbolKind = iota
	SymObject
	SymTable
	SymProperty
	SymFlag
	SymWord
	SymConstant
	SymGlobal // the number of a hard global
)

// Symbol refers to a named entity whose value is known to the assembler.
type Symbol struct {
	Kind SymbolKind
	Name string
}

// Stack is the evaluation stack.
var Stack = &Variable{Kind: VarStack, Name: "STACK"}

func (*Number) operand()   {}
func (*Text) operand()     {}
func (*Variable) operand() {}
func (*Symbol) operand()   {}

func (n *Number) String() string   { return strconv.Itoa(n.Value) }
func (t *Text) String() string     { return t.Name }
func (v *Variable) String() string { return v.Name }
func (s *Symbol) String() string   { return s.Name }

// IsStack reports whether op is the stack.
func IsStack(op Operand) bool {
	v, ok := op.(*Variable)
	return ok && v.Kind == VarStack
}

// NumberValue returns the value of a literal number.
func NumberValue(op Operand) (int, bool) {
	if n, ok := op.(*Number); ok {
		return n.Value, true
	}
	return 0, false
}

// IsConstant reports whether op is known to the assembler, that is not a
// variable.
func IsConstant(op Operand) bool {
	_, isVar := op.(*Variable)
	return !isVar
}

// operands interns numbers for one compilation run.
type operands struct {
	nums map[int]*Number
	zero *Number
	one  *Number
}

func newOperands() *operands {
	o := &operands{nums: make(map[int]*Number)}
	o.zero = o.number(0)
	o.one = o.number(1)
	return o
}

func (o *operands) number(v int) *Number {
	if n, ok := o.nums[v]; ok {
		return n
	}
	n := &Number{Value: v}
	o.nums[v] = n
	return n
}
