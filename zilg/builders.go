package zilg

import (
	"errors"
	"fmt"
)

// PropertyBuilder is a numbered property shared by all objects.
type PropertyBuilder struct {
	Name    string // P?NAME
	Number  int
	Default Operand // nil for 0
	sym     *Symbol
}

func (p *PropertyBuilder) Operand() Operand { return p.sym }

// FlagBuilder is a numbered object attribute.
type FlagBuilder struct {
	Name   string
	Number int
	sym    *Symbol
}

func (f *FlagBuilder) Operand() Operand { return f.sym }

// Mask returns the bit of f within its 16-bit flag word.
func (f *FlagBuilder) Mask() int { return 1 << (15 - f.Number%16) }

// GlobalBuilder is a global variable. Hard globals are VM variables; soft
// globals live in the global variables table and have no Variable.
type GlobalBuilder struct {
	Name    string
	Default Operand
	Pos     SourceLine

	Var    *Variable // nil for soft globals
	Soft   bool
	IsWord bool
	Offset int

	ref *Symbol
}

// Ref returns the variable number of a hard global as a constant, for
// data that names a global, such as conditional exits.
func (gb *GlobalBuilder) Ref() Operand { return gb.ref }

// DataElem is one element of a table or property.
type DataElem struct {
	Value Operand
	Byte  bool
}

type TableFlags uint8

const (
	TablePure TableFlags = 1 << iota
	TableByte
	TableParser // laid out before other tables
	TableLexv   // a READ/LEX buffer: header bytes, then word,byte,byte records
	TableTemp   // compiler-generated; laid out after other tables
)

// TableBuilder is a table of bytes and words.
type TableBuilder struct {
	Name  string
	Flags TableFlags
	Pos   SourceLine

	sym   *Symbol
	elems []DataElem
}

func (t *TableBuilder) Operand() Operand { return t.sym }

func (t *TableBuilder) AddByte(v Operand) { t.elems = append(t.elems, DataElem{Value: v, Byte: true}) }
func (t *TableBuilder) AddWord(v Operand) { t.elems = append(t.elems, DataElem{Value: v}) }

// Add adds an element with the table's default width.
func (t *TableBuilder) Add(v Operand) {
	if t.Flags&TableByte != 0 {
		t.AddByte(v)
		return
	}
	t.AddWord(v)
}

func (t *TableBuilder) Len() int { return len(t.elems) }

// Size returns the table size in bytes.
func (t *TableBuilder) Size() int { return dataSize(t.elems) }

func dataSize(elems []DataElem) int {
	n := 0
	for _, e := range elems {
		if e.Byte {
			n++
		} else {
			n += 2
		}
	}
	return n
}

// PropEntry is one property of an object.
type PropEntry struct {
	Prop *PropertyBuilder
	Data []DataElem
}

func (p *PropEntry) AddByte(v Operand) { p.Data = append(p.Data, DataElem{Value: v, Byte: true}) }
func (p *PropEntry) AddWord(v Operand) { p.Data = append(p.Data, DataElem{Value: v}) }

// ObjectBuilder is an object in the object tree.
type ObjectBuilder struct {
	Name        string
	Number      int
	Description string
	Pos         SourceLine
	End         SourceLine

	sym                   *Symbol
	parent, sibling, kids *ObjectBuilder
	flags                 []*FlagBuilder
	props                 []*PropEntry
}

func (o *ObjectBuilder) Operand() Operand { return o.sym }

func (o *ObjectBuilder) Parent() *ObjectBuilder     { return o.parent }
func (o *ObjectBuilder) Sibling() *ObjectBuilder    { return o.sibling }
func (o *ObjectBuilder) FirstChild() *ObjectBuilder { return o.kids }

var errObjectCycle = errors.New("object would contain itself")

// SetParent moves o into p as its first child. A nil p removes o from the
// tree.
func (o *ObjectBuilder) SetParent(p *ObjectBuilder) error {
	for a := p; a != nil; a = a.parent {
		if a == o {
			return fmt.Errorf("%s in %s: %w", o.Name, p.Name, errObjectCycle)
		}
	}
	o.unlink()
	if p != nil {
		o.parent = p
		o.sibling = p.kids
		p.kids = o
	}
	return nil
}

func (o *ObjectBuilder) unlink() {
	p := o.parent
	if p == nil {
		return
	}
	if p.kids == o {
		p.kids = o.sibling
	} else {
		for k := p.kids; k != nil; k = k.sibling {
			if k.sibling == o {
				k.sibling = o.sibling
				break
			}
		}
	}
	o.parent, o.sibling = nil, nil
}

func (o *ObjectBuilder) AddFlag(f *FlagBuilder) {
	for _, g := range o.flags {
		if g == f {
			return
		}
	}
	o.flags = append(o.flags, f)
}

func (o *ObjectBuilder) HasFlag(f *FlagBuilder) bool {
	for _, g := range o.flags {
		if g == f {
			return true
		}
	}
	return false
}

// AddProperty starts a new property entry. It fails if o already has p.
func (o *ObjectBuilder) AddProperty(p *PropertyBuilder) (*PropEntry, error) {
	for _, e := range o.props {
		if e.Prop == p {
			return nil, fmt.Errorf("%s: duplicate property %s", o.Name, p.Name)
		}
	}
	e := &PropEntry{Prop: p}
	o.props = append(o.props, e)
	return e, nil
}

func (o *ObjectBuilder) Property(p *PropertyBuilder) (*PropEntry, bool) {
	for _, e := range o.props {
		if e.Prop == p {
			return e, true
		}
	}
	return nil, false
}
