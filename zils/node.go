// Package zils contains the intermediate representation consumed by the ZIL
// code generator: atoms, forms, lists, strings, numbers and characters, each
// carrying the source position it was read from.
package zils

import (
	"fmt"
	"strconv"
	"strings"
)

// Pos is a source position. The zero Pos is unknown.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) IsValid() bool {
	return p.Line > 0
}

func (p Pos) String() string {
	if !p.IsValid() {
		if p.File != "" {
			return p.File
		}
		return "?"
	}
	file := p.File
	if file == "" {
		file = "<input>"
	}
	if p.Col > 0 {
		return fmt.Sprintf("%s:%d:%d", file, p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d", file, p.Line)
}

// Node is an IR node.
type Node interface {
	Pos() Pos
	String() string
	node()
}

type Atom struct {
	Name string
	At   Pos
}

// Fix is a ZIL integer.
type Fix struct {
	Value int
	At    Pos
}

type String struct {
	Value string
	At    Pos
}

type Char struct {
	Value rune
	At    Pos
}

type List struct {
	Elems []Node
	At    Pos
}

// Form is a call-like node. The empty form is the false value.
type Form struct {
	Elems []Node
	At    Pos
}

// Adecl is a node with an attached type declaration, as in X:FIX.
type Adecl struct {
	Value Node
	Decl  Node
	At    Pos
}

// Splice is returned by an Expander when a macro expands to several forms.
type Splice struct {
	Elems []Node
	At    Pos
}

func (n *Atom) Pos() Pos   { return n.At }
func (n *Fix) Pos() Pos    { return n.At }
func (n *String) Pos() Pos { return n.At }
func (n *Char) Pos() Pos   { return n.At }
func (n *List) Pos() Pos   { return n.At }
func (n *Form) Pos() Pos   { return n.At }
func (n *Adecl) Pos() Pos  { return n.At }
func (n *Splice) Pos() Pos { return n.At }

func (*Atom) node()   {}
func (*Fix) node()    {}
func (*String) node() {}
func (*Char) node()   {}
func (*List) node()   {}
func (*Form) node()   {}
func (*Adecl) node()  {}
func (*Splice) node() {}

func (n *Atom) String() string { return n.Name }
func (n *Fix) String() string  { return strconv.Itoa(n.Value) }

func (n *String) String() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range n.Value {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func (n *Char) String() string { return `!\` + string(n.Value) }

func (n *List) String() string   { return "(" + joinNodes(n.Elems) + ")" }
func (n *Form) String() string   { return "<" + joinNodes(n.Elems) + ">" }
func (n *Adecl) String() string  { return n.Value.String() + ":" + n.Decl.String() }
func (n *Splice) String() string { return "#SPLICE (" + joinNodes(n.Elems) + ")" }

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, " ")
}

// Head returns the atom in head position of f, or nil.
func (n *Form) Head() *Atom {
	if len(n.Elems) == 0 {
		return nil
	}
	a, _ := n.Elems[0].(*Atom)
	return a
}

// HeadName returns the name of the head atom, or "".
func (n *Form) HeadName() string {
	if a := n.Head(); a != nil {
		return a.Name
	}
	return ""
}

// Args returns the elements after the head.
func (n *Form) Args() []Node {
	if len(n.Elems) == 0 {
		return nil
	}
	return n.Elems[1:]
}

func NewAtom(pos Pos, name string) *Atom { return &Atom{Name: name, At: pos} }

func NewForm(pos Pos, elems ...Node) *Form { return &Form{Elems: elems, At: pos} }

func NewCall(pos Pos, head string, args ...Node) *Form {
	return NewForm(pos, append([]Node{NewAtom(pos, head)}, args...)...)
}

// IsFalse reports whether n is the false value <>.
func IsFalse(n Node) bool {
	f, ok := n.(*Form)
	return ok && len(f.Elems) == 0
}

// AtomName returns the name of n if n is an atom.
func AtomName(n Node) (string, bool) {
	if a, ok := n.(*Atom); ok {
		return a.Name, true
	}
	return "", false
}

// IsCall reports whether n is a form whose head is the atom name.
func IsCall(n Node, name string) bool {
	f, ok := n.(*Form)
	return ok && f.HeadName() == name
}

// LocalName returns X if n is .X or <LVAL X>.
func LocalName(n Node) (string, bool) {
	return accessName(n, "LVAL")
}

// GlobalName returns X if n is ,X or <GVAL X>.
func GlobalName(n Node) (string, bool) {
	return accessName(n, "GVAL")
}

func accessName(n Node, head string) (string, bool) {
	f, ok := n.(*Form)
	if !ok || len(f.Elems) != 2 || f.HeadName() != head {
		return "", false
	}
	return AtomName(f.Elems[1])
}

// StripDecl returns the value of an Adecl, or n itself.
func StripDecl(n Node) Node {
	if a, ok := n.(*Adecl); ok {
		return a.Value
	}
	return n
}
