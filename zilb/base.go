// Package zilb contains the storage base for the ZIL compiler.
//
// It hands out the scarce numbered resources of the Z-machine: property
// and flag numbers (allocated downwards from a version-dependent maximum),
// object numbers (dense, from 1), vocabulary numbers for verbs,
// prepositions, adjectives and actions, and the hard/soft split of global
// variables. Running past a limit yields a *diag.LimitExceededError.
package zilb

import (
	"github.com/fzipp/zil-compiler/diag"
)

// Limits are the capacities of one Z-machine version.
type Limits struct {
	MaxProperties     int
	MaxFlags          int
	MaxObjects        int
	MaxPropertyLength int
	MaxCallArgs       int
	MaxLocals         int
	MaxGlobals        int
	MaxSelfInserting  int
}

func LimitsFor(version int) Limits {
	l := Limits{
		MaxProperties:     63,
		MaxFlags:          48,
		MaxObjects:        65535,
		MaxPropertyLength: 64,
		MaxCallArgs:       7,
		MaxLocals:         15,
		MaxGlobals:        240,
		MaxSelfInserting:  255,
	}
	if version <= 3 {
		l.MaxProperties = 31
		l.MaxFlags = 32
		l.MaxObjects = 255
		l.MaxPropertyLength = 8
		l.MaxCallArgs = 3
	}
	return l
}

// Kind names a numbered resource.
type Kind int

const (
	KindProperty Kind = iota
	KindFlag
	KindObject
	KindVerb
	KindPreposition
	KindAdjective
	KindAction
)

func (k Kind) String() string {
	return [...]string{"properties", "flags", "objects", "verbs", "prepositions", "adjectives", "actions"}[k]
}

// Numbered is a name with its assigned number.
type Numbered struct {
	Name   string
	Number int
}

// pool assigns numbers to names. Descending pools start at first and
// count down; ascending pools count up.
type pool struct {
	kind    Kind
	first   int
	step    int
	limit   int
	numbers map[string]int
	order   []string
}

func newPool(kind Kind, first, step, limit int) *pool {
	return &pool{kind: kind, first: first, step: step, limit: limit, numbers: make(map[string]int)}
}

func (p *pool) define(name string) (int, error) {
	if n, ok := p.numbers[name]; ok {
		return n, nil
	}
	if len(p.order) >= p.limit {
		return 0, &diag.LimitExceededError{Limit: p.kind.String(), Max: p.limit, Got: len(p.order) + 1}
	}
	n := p.first + p.step*len(p.order)
	p.numbers[name] = n
	p.order = append(p.order, name)
	return n, nil
}

func (p *pool) lookup(name string) (int, bool) {
	n, ok := p.numbers[name]
	return n, ok
}

func (p *pool) list() []Numbered {
	l := make([]Numbered, len(p.order))
	for i, name := range p.order {
		l[i] = Numbered{Name: name, Number: p.numbers[name]}
	}
	return l
}

// Base holds the numbering state of one compilation run.
type Base struct {
	Version int
	Limits  Limits

	props   *pool
	flags   *pool
	objects *pool
	verbs   *pool
	preps   *pool
	adjs    *pool
	actions *pool
}

func NewBase(version int) *Base {
	l := LimitsFor(version)
	return &Base{
		Version: version,
		Limits:  l,
		// Property numbers start at the maximum; flags at max-1 since flag
		// numbers are zero-based.
		props:   newPool(KindProperty, l.MaxProperties, -1, l.MaxProperties),
		flags:   newPool(KindFlag, l.MaxFlags-1, -1, l.MaxFlags),
		objects: newPool(KindObject, 1, 1, l.MaxObjects),
		verbs:   newPool(KindVerb, 255, -1, 255),
		preps:   newPool(KindPreposition, 255, -1, 255),
		adjs:    newPool(KindAdjective, 255, -1, 255),
		actions: newPool(KindAction, 0, 1, 65536),
	}
}

// DefineProperty returns the number of the property name, allocating the
// next lower free number on first use.
func (b *Base) DefineProperty(name string) (int, error) { return b.props.define(name) }

// DefineFlag returns the number of the flag name, allocating the next
// lower free number on first use.
func (b *Base) DefineFlag(name string) (int, error) { return b.flags.define(name) }

// DefineFlags allocates names in order. It is used to give pinned and
// parser flags the highest numbers before any ordinary flag is seen.
func (b *Base) DefineFlags(names ...string) error {
	for _, name := range names {
		if _, err := b.flags.define(name); err != nil {
			return err
		}
	}
	return nil
}

// DefineObject returns the number of object name, assigned densely in
// definition order.
func (b *Base) DefineObject(name string) (int, error) { return b.objects.define(name) }

func (b *Base) DefineVerb(name string) (int, error)        { return b.verbs.define(name) }
func (b *Base) DefinePreposition(name string) (int, error) { return b.preps.define(name) }
func (b *Base) DefineAction(name string) (int, error)      { return b.actions.define(name) }

// DefineAdjective numbers an adjective. Adjective numbers exist only in
// version 3.
func (b *Base) DefineAdjective(name string) (int, error) { return b.adjs.define(name) }

func (b *Base) Property(name string) (int, bool)    { return b.props.lookup(name) }
func (b *Base) Flag(name string) (int, bool)        { return b.flags.lookup(name) }
func (b *Base) Object(name string) (int, bool)      { return b.objects.lookup(name) }
func (b *Base) Verb(name string) (int, bool)        { return b.verbs.lookup(name) }
func (b *Base) Preposition(name string) (int, bool) { return b.preps.lookup(name) }
func (b *Base) Adjective(name string) (int, bool)   { return b.adjs.lookup(name) }
func (b *Base) Action(name string) (int, bool)      { return b.actions.lookup(name) }

func (b *Base) Properties() []Numbered   { return b.props.list() }
func (b *Base) Flags() []Numbered        { return b.flags.list() }
func (b *Base) Objects() []Numbered      { return b.objects.list() }
func (b *Base) Verbs() []Numbered        { return b.verbs.list() }
func (b *Base) Prepositions() []Numbered { return b.preps.list() }
func (b *Base) Adjectives() []Numbered   { return b.adjs.list() }
func (b *Base) Actions() []Numbered      { return b.actions.list() }

// LowestProperty returns the lowest property number handed out so far,
// or MaxProperties+1 if none.
func (b *Base) LowestProperty() int {
	return b.Limits.MaxProperties - len(b.props.order) + 1
}
