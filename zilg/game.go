package zilg

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/fzipp/zil-compiler/zilb"
	"github.com/fzipp/zil-compiler/zscii"
)

// Options select the target and the optional parts of the output.
type Options struct {
	Version           int
	Release           int
	Serial            string // six digits; empty for the assembler's date
	Debug             bool
	CompactVocabulary bool
	TimeStatus        bool // version 3 status line shows the time
	Sound             bool
	Language          string
	Charset           *zscii.Alphabet // custom alphabet, version 5 and later
	SelfInserting     string          // dictionary break characters
}

// Game owns every symbol of one compilation run.
type Game struct {
	Version int

	opts    Options
	limits  zilb.Limits
	syms    *SymbolTable
	ops     *operands
	encoder *zscii.Encoder

	strings   map[string]*Text
	stringSeq *btree.BTreeG[*Text]

	constants   map[string]*constant
	constOrder  []*constant
	globals     []*GlobalBuilder
	globalsByNm map[string]*GlobalBuilder
	hardOrder   []*GlobalBuilder // set by Emit
	tables      []*TableBuilder
	tablesBy    map[string]*TableBuilder
	routines    []*RoutineBuilder
	routinesBy  map[string]*RoutineBuilder
	objects     []*ObjectBuilder
	objectsBy   map[string]*ObjectBuilder
	props       map[string]*PropertyBuilder
	flags       map[string]*FlagBuilder
	flagOrder   []*FlagBuilder

	vocab       *btree.BTreeG[*WordBuilder]
	wordsByText map[string]*WordBuilder
	wordAliases []*WordBuilder

	entry      *RoutineBuilder
	debugFiles []string
	debug      []Item
}

type constant struct {
	name  string
	value Operand
	sym   *Symbol
	alias *constant
}

func NewGame(opts Options) *Game {
	if opts.Version == 0 {
		opts.Version = 3
	}
	enc := zscii.NewEncoder(opts.Version)
	if opts.Charset != nil {
		enc.Alphabet = *opts.Charset
	}
	return &Game{
		Version:     opts.Version,
		opts:        opts,
		limits:      zilb.LimitsFor(opts.Version),
		syms:        NewSymbolTable(),
		ops:         newOperands(),
		encoder:     enc,
		strings:     make(map[string]*Text),
		stringSeq:   btree.NewG[*Text](8, func(a, b *Text) bool { return a.Value < b.Value }),
		constants:   make(map[string]*constant),
		globalsByNm: make(map[string]*GlobalBuilder),
		tablesBy:    make(map[string]*TableBuilder),
		routinesBy:  make(map[string]*RoutineBuilder),
		objectsBy:   make(map[string]*ObjectBuilder),
		props:       make(map[string]*PropertyBuilder),
		flags:       make(map[string]*FlagBuilder),
		vocab:       newVocab(),
		wordsByText: make(map[string]*WordBuilder),
	}
}

func (g *Game) Options() Options { return g.opts }

func (g *Game) Limits() zilb.Limits { return g.limits }

// Symbols returns the symbol table of the run.
func (g *Game) Symbols() *SymbolTable { return g.syms }

// Encoder returns the text encoder for dictionary words.
func (g *Game) Encoder() *zscii.Encoder { return g.encoder }

// Operands

func (g *Game) Number(v int) *Number { return g.ops.number(v) }

func (g *Game) Zero() *Number { return g.ops.zero }

func (g *Game) One() *Number { return g.ops.one }

// String interns s in the string pool.
func (g *Game) String(s string) *Text {
	if t, ok := g.strings[s]; ok {
		return t
	}
	t := &Text{Name: fmt.Sprintf("STR?%d", len(g.strings)+1), Value: s}
	g.strings[s] = t
	g.stringSeq.ReplaceOrInsert(t)
	return t
}

// Constants

// DefineConstant defines name as an assembler equate with value.
func (g *Game) DefineConstant(name string, value Operand) (Operand, error) {
	name = Sanitize(name)
	if err := g.syms.Define(name, CatConstant); err != nil {
		return nil, err
	}
	c := &constant{name: name, value: value, sym: &Symbol{Kind: SymConstant, Name: name}}
	g.constants[name] = c
	g.constOrder = append(g.constOrder, c)
	return c.sym, nil
}

// AliasConstant defines name as another name for the constant target, so
// that both yield the same operand.
func (g *Game) AliasConstant(name, target string) error {
	t, ok := g.constants[Sanitize(target)]
	if !ok {
		return fmt.Errorf("alias %s: unknown constant %s", name, target)
	}
	name = Sanitize(name)
	if old, ok := g.constants[name]; ok {
		old.alias = t
		return nil
	}
	if err := g.syms.Define(name, CatConstant); err != nil {
		return err
	}
	c := &constant{name: name, alias: t, sym: t.sym}
	g.constants[name] = c
	g.constOrder = append(g.constOrder, c)
	return nil
}

// SetConstantValue gives a constant defined without a value its value.
func (g *Game) SetConstantValue(name string, value Operand) error {
	c, ok := g.constants[Sanitize(name)]
	if !ok {
		return fmt.Errorf("set %s: unknown constant", name)
	}
	if c.alias != nil {
		return fmt.Errorf("set %s: constant is an alias of %s", name, c.alias.name)
	}
	c.value = value
	return nil
}

// Constant returns the operand of a defined constant.
func (g *Game) Constant(name string) (Operand, bool) {
	c, ok := g.constants[Sanitize(name)]
	if !ok {
		return nil, false
	}
	for c.alias != nil {
		c = c.alias
	}
	return c.sym, true
}

// ConstantValue returns the value a constant was defined with.
func (g *Game) ConstantValue(name string) (Operand, bool) {
	c, ok := g.constants[Sanitize(name)]
	if !ok {
		return nil, false
	}
	for c.alias != nil {
		c = c.alias
	}
	return c.value, true
}

// Globals

func (g *Game) DefineGlobal(name string) (*GlobalBuilder, error) {
	name = Sanitize(name)
	if err := g.syms.Define(name, CatGlobal); err != nil {
		return nil, err
	}
	gb := &GlobalBuilder{
		Name: name,
		Var:  &Variable{Kind: VarGlobal, Name: name},
		ref:  &Symbol{Kind: SymGlobal, Name: name},
	}
	g.globals = append(g.globals, gb)
	g.globalsByNm[name] = gb
	return gb, nil
}

func (g *Game) Global(name string) (*GlobalBuilder, bool) {
	gb, ok := g.globalsByNm[Sanitize(name)]
	return gb, ok
}

func (g *Game) Globals() []*GlobalBuilder { return g.globals }

// MakeSoft moves a global into the global variables table.
func (g *Game) MakeSoft(gb *GlobalBuilder, isWord bool, offset int) {
	gb.Var = nil
	gb.Soft = true
	gb.IsWord = isWord
	gb.Offset = offset
}

// Tables

func (g *Game) DefineTable(name string, flags TableFlags) (*TableBuilder, error) {
	name = Sanitize(name)
	if err := g.syms.Define(name, CatTable); err != nil {
		return nil, err
	}
	t := &TableBuilder{Name: name, Flags: flags, sym: &Symbol{Kind: SymTable, Name: name}}
	g.tables = append(g.tables, t)
	g.tablesBy[name] = t
	return t, nil
}

func (g *Game) Table(name string) (*TableBuilder, bool) {
	t, ok := g.tablesBy[Sanitize(name)]
	return t, ok
}

// NewAnonymousTable defines a table with a generated name.
func (g *Game) NewAnonymousTable(flags TableFlags) *TableBuilder {
	for i := len(g.tables) + 1; ; i++ {
		name := fmt.Sprintf("T?%d", i)
		if _, taken := g.syms.Lookup(name); taken {
			continue
		}
		t, err := g.DefineTable(name, flags)
		if err == nil {
			return t
		}
	}
}

func (g *Game) Tables() []*TableBuilder { return g.tables }

// Routines

// DefineRoutine defines a routine. At most one routine can be the entry
// point.
func (g *Game) DefineRoutine(name string, entry, cleanStack bool) (*RoutineBuilder, error) {
	name = Sanitize(name)
	if entry && g.entry != nil {
		return nil, fmt.Errorf("%w: %s and %s", ErrMultipleEntries, g.entry.Name, name)
	}
	if err := g.syms.Define(name, CatRoutine); err != nil {
		return nil, err
	}
	rb := newRoutineBuilder(g, name, entry, cleanStack)
	g.routines = append(g.routines, rb)
	g.routinesBy[name] = rb
	if entry {
		g.entry = rb
	}
	return rb, nil
}

var ErrMultipleEntries = errors.New("more than one entry routine")

func (g *Game) Routine(name string) (*RoutineBuilder, bool) {
	rb, ok := g.routinesBy[Sanitize(name)]
	return rb, ok
}

func (g *Game) Routines() []*RoutineBuilder { return g.routines }

func (g *Game) Entry() *RoutineBuilder { return g.entry }

// Objects, properties and flags

// DefineObject defines an object with a number from the storage base.
func (g *Game) DefineObject(name string, number int) (*ObjectBuilder, error) {
	name = Sanitize(name)
	if err := g.syms.Define(name, CatObject); err != nil {
		return nil, err
	}
	o := &ObjectBuilder{Name: name, Number: number, sym: &Symbol{Kind: SymObject, Name: name}}
	g.objects = append(g.objects, o)
	g.objectsBy[name] = o
	return o, nil
}

func (g *Game) Object(name string) (*ObjectBuilder, bool) {
	o, ok := g.objectsBy[Sanitize(name)]
	return o, ok
}

func (g *Game) Objects() []*ObjectBuilder { return g.objects }

// PropertySymbol returns the symbol name of property name.
func PropertySymbol(name string) string { return "P?" + Sanitize(name) }

// DefineProperty defines the property P?name with a number from the
// storage base.
func (g *Game) DefineProperty(name string, number int) (*PropertyBuilder, error) {
	sym := PropertySymbol(name)
	if err := g.syms.Define(sym, CatProperty); err != nil {
		return nil, err
	}
	p := &PropertyBuilder{Name: sym, Number: number, sym: &Symbol{Kind: SymProperty, Name: sym}}
	g.props[sym] = p
	return p, nil
}

func (g *Game) Property(name string) (*PropertyBuilder, bool) {
	p, ok := g.props[PropertySymbol(name)]
	return p, ok
}

func (g *Game) DefineFlag(name string, number int) (*FlagBuilder, error) {
	name = Sanitize(name)
	if err := g.syms.Define(name, CatFlag); err != nil {
		return nil, err
	}
	f := &FlagBuilder{Name: name, Number: number, sym: &Symbol{Kind: SymFlag, Name: name}}
	g.flags[name] = f
	g.flagOrder = append(g.flagOrder, f)
	return f, nil
}

func (g *Game) Flag(name string) (*FlagBuilder, bool) {
	f, ok := g.flags[Sanitize(name)]
	return f, ok
}

// Debug records

// DebugFile returns the number of a source file for debug records.
func (g *Game) DebugFile(path string) int {
	for i, p := range g.debugFiles {
		if p == path {
			return i
		}
	}
	g.debugFiles = append(g.debugFiles, path)
	return len(g.debugFiles) - 1
}

// AddDebugRecord accumulates a debug directive, for example
// ".DEBUG-CLASS". It is ignored unless debug output is enabled.
func (g *Game) AddDebugRecord(text string) {
	if g.opts.Debug {
		g.debug = append(g.debug, directive(text))
	}
}
