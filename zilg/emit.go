package zilg

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilb"
)

// ErrNoEntry is returned by Emit when no entry routine was defined.
var ErrNoEntry = errors.New("no entry routine")

// emitter lays out one image. Errors that only spoil part of the output
// are collected; a limit error stops emission.
type emitter struct {
	g    *Game
	im   *Image
	errs []error
}

func (e *emitter) section(name string) *Section {
	s := &Section{Name: name}
	e.im.Sections = append(e.im.Sections, s)
	return s
}

func (e *emitter) fail(err error) { e.errs = append(e.errs, err) }

// Emit finishes all routines and lays out every section in assembler
// order. If err is not nil the image must not be written; err joins all
// problems found.
func (g *Game) Emit() (im *Image, err error) {
	e := &emitter{g: g, im: &Image{Version: g.Version}}
	defer func() {
		if r := recover(); r != nil {
			le, ok := r.(*diag.LimitExceededError)
			if !ok {
				panic(r)
			}
			e.fail(le)
			im, err = nil, errors.Join(e.errs...)
		}
	}()
	e.checkLimits()
	e.header()
	e.constants()
	e.propertyDefaults()
	debugObjects := e.objects()
	e.globals()
	e.tables(false)
	e.section(SectionImpureEnd).add(label("IMPURE"))
	e.vocabulary()
	e.tables(true)
	e.debug(debugObjects)
	e.section(SectionPreloadEnd).add(label("ENDLOD"))
	e.code()
	e.strings()
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	return e.im, nil
}

func limit(what string, max, got int) {
	if got > max {
		panic(&diag.LimitExceededError{Limit: what, Max: max, Got: got})
	}
}

func (e *emitter) checkLimits() {
	g := e.g
	limit("properties", g.limits.MaxProperties, len(g.props))
	limit("flags", g.limits.MaxFlags, len(g.flags))
	limit("objects", g.limits.MaxObjects, len(g.objects))
	hard := 0
	for _, gb := range g.globals {
		if !gb.Soft {
			hard++
		}
	}
	limit("globals", g.limits.MaxGlobals-zilb.ReservedGlobals, hard)
	limit("self-inserting break characters", g.limits.MaxSelfInserting, len(g.opts.SelfInserting))
}

func (e *emitter) header() {
	g := e.g
	s := e.section(SectionHeader)
	if g.Version >= 4 {
		s.add(directive(fmt.Sprintf(".NEW %d", g.Version)))
	}
	s.add(equate("ZORKID", strconv.Itoa(g.opts.Release)))
	if g.opts.Serial != "" {
		s.add(directive(".SERIAL " + quoteText(g.opts.Serial)))
	}
	if g.opts.TimeStatus && g.Version == 3 {
		s.add(directive(".TIME"))
	}
	if g.opts.Sound {
		s.add(directive(".SOUND"))
	}
	if g.opts.Language != "" {
		s.add(directive(".LANG " + g.opts.Language))
	}
	if g.opts.Charset != nil && g.Version >= 5 {
		s.add(directive(".CHRSET " + charsetTable))
	}
	if g.entry == nil {
		e.fail(ErrNoEntry)
		return
	}
	if g.Version >= 6 {
		s.add(equate("START", g.entry.Name))
	} else if g.entry.LocalCount() > 0 {
		e.fail(fmt.Errorf("entry routine %s cannot have locals before version 6", g.entry.Name))
	}
}

const charsetTable = "T?CHRSET"

func (g *Game) sortedProperties() []*PropertyBuilder {
	ps := make([]*PropertyBuilder, 0, len(g.props))
	for _, p := range g.props {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Number > ps[j].Number })
	return ps
}

func (e *emitter) constants() {
	g := e.g
	s := e.section(SectionConstants)
	for _, f := range g.flagOrder {
		s.add(equate(f.Name, strconv.Itoa(f.Number)))
		s.add(equate("FX?"+f.Name, strconv.Itoa(f.Mask())))
	}
	for _, p := range g.sortedProperties() {
		s.add(equate(p.Name, strconv.Itoa(p.Number)))
	}
	for _, c := range g.constOrder {
		if c.alias != nil {
			t := c.alias
			for t.alias != nil {
				t = t.alias
			}
			if t.name != c.name {
				s.add(equate(c.name, t.name))
			}
			continue
		}
		if c.value == nil || !IsConstant(c.value) {
			e.fail(&diag.NonConstantInitializerError{What: "constant " + c.name})
			continue
		}
		s.add(equate(c.name, c.value.String()))
	}
	for _, w := range g.wordAliases {
		s.add(equate(w.sym.Name, w.Canonical().sym.Name))
	}
}

// propertyDefaults writes one word per property number, property 1 first,
// which is where the VM looks for them.
func (e *emitter) propertyDefaults() {
	g := e.g
	byNum := make(map[int]*PropertyBuilder, len(g.props))
	for _, p := range g.props {
		byNum[p.Number] = p
	}
	s := e.section(SectionPropertyDefaults)
	s.add(label("OBJECT"))
	for n := 1; n <= g.limits.MaxProperties; n++ {
		var v Operand = g.ops.zero
		if p, ok := byNum[n]; ok && p.Default != nil {
			v = p.Default
		}
		if !IsConstant(v) {
			e.fail(&diag.NonConstantInitializerError{What: "default of " + byNum[n].Name})
			v = g.ops.zero
		}
		s.add(wordItem(v))
	}
}

func objName(o *ObjectBuilder) string {
	if o == nil {
		return "0"
	}
	return o.Name
}

func (e *emitter) constData(what string, data []DataElem) []Item {
	items := make([]Item, 0, len(data))
	for _, d := range data {
		v := d.Value
		if v == nil || !IsConstant(v) {
			e.fail(&diag.NonConstantInitializerError{What: what})
			v = e.g.ops.zero
		}
		if d.Byte {
			items = append(items, byteItem(v))
		} else {
			items = append(items, wordItem(v))
		}
	}
	return items
}

// objects writes the object records followed by their property tables.
// It returns the debug records of the objects.
func (e *emitter) objects() []Item {
	g := e.g
	objs := append([]*ObjectBuilder(nil), g.objects...)
	sort.Slice(objs, func(i, j int) bool { return objs[i].Number < objs[j].Number })
	nwords := 3
	if g.Version <= 3 {
		nwords = 2
	}

	s := e.section(SectionObjects)
	var dbg []Item
	for _, o := range objs {
		words := make([]int, nwords)
		for _, f := range o.flags {
			words[f.Number/16] |= f.Mask()
		}
		fields := []string{o.Name}
		for _, w := range words {
			fields = append(fields, strconv.Itoa(w))
		}
		fields = append(fields, objName(o.parent), objName(o.sibling), objName(o.kids), "?PTBL?"+o.Name)
		s.add(directive(".OBJECT " + strings.Join(fields, ",")))
		if g.opts.Debug {
			dbg = append(dbg, directive(fmt.Sprintf(".DEBUG-OBJECT %d,%s,%s,%d,%d,%d,%d,%d,%d",
				o.Number, quoteText(o.Name), quoteText(o.Description),
				o.Pos.File, o.Pos.Line, o.Pos.Col, o.End.File, o.End.Line, o.End.Col)))
		}
	}

	for _, o := range objs {
		s.add(label("?PTBL?"+o.Name), directive(".TABLE"), directive(".STRL "+quoteText(o.Description)))
		props := append([]*PropEntry(nil), o.props...)
		sort.Slice(props, func(i, j int) bool { return props[i].Prop.Number > props[j].Prop.Number })
		for _, p := range props {
			n := dataSize(p.Data)
			limit(fmt.Sprintf("bytes in property %s of %s", p.Prop.Name, o.Name), g.limits.MaxPropertyLength, n)
			if n == 0 {
				e.fail(fmt.Errorf("property %s of %s has no data", p.Prop.Name, o.Name))
				continue
			}
			s.add(directive(fmt.Sprintf(".PROP %d,%d", n, p.Prop.Number)))
			s.add(e.constData(fmt.Sprintf("property %s of %s", p.Prop.Name, o.Name), p.Data)...)
		}
		s.add(byteItem(g.ops.zero), directive(".ENDT"))
	}
	return dbg
}

// globals writes the hard globals. Before version 4 the status line reads
// HERE, SCORE and MOVES from the first three slots.
func (e *emitter) globals() {
	g := e.g
	var hard, first []*GlobalBuilder
	for _, gb := range g.globals {
		if !gb.Soft {
			hard = append(hard, gb)
		}
	}
	if g.Version < 4 {
		var rest []*GlobalBuilder
		for _, name := range zilb.StatusGlobals {
			for _, gb := range hard {
				if gb.Name == name {
					first = append(first, gb)
				}
			}
		}
		for _, gb := range hard {
			if !containsGlobal(first, gb) {
				rest = append(rest, gb)
			}
		}
		hard = append(first, rest...)
	}
	s := e.section(SectionGlobals)
	s.add(label("GLOBAL"))
	for _, gb := range hard {
		v := gb.Default
		if v == nil {
			v = g.ops.zero
		}
		if !IsConstant(v) {
			e.fail(&diag.NonConstantInitializerError{What: "global " + gb.Name})
			v = g.ops.zero
		}
		s.add(directive(".GVAR " + gb.Name + "=" + v.String()))
	}
	g.hardOrder = hard
}

func containsGlobal(list []*GlobalBuilder, gb *GlobalBuilder) bool {
	for _, x := range list {
		if x == gb {
			return true
		}
	}
	return false
}

// tables writes the pure or impure tables: parser tables first and
// compiler temporaries last.
func (e *emitter) tables(pure bool) {
	g := e.g
	var order []*TableBuilder
	rank := func(t *TableBuilder) int {
		switch {
		case t.Flags&TableParser != 0:
			return 0
		case t.Flags&TableTemp != 0:
			return 2
		}
		return 1
	}
	for _, t := range g.tables {
		if (t.Flags&TablePure != 0) == pure {
			order = append(order, t)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return rank(order[i]) < rank(order[j]) })

	name := SectionImpureTables
	if pure {
		name = SectionPureTables
	}
	s := e.section(name)
	for _, t := range order {
		s.add(label(t.Name), directive(fmt.Sprintf(".TABLE %d", t.Size())))
		s.add(e.constData("element of table "+t.Name, t.elems)...)
		s.add(directive(".ENDT"))
	}
	if pure && g.opts.Charset != nil && g.Version >= 5 {
		s.add(label(charsetTable))
		for _, b := range g.opts.Charset.Table() {
			s.add(byteItem(g.ops.number(int(b))))
		}
	}
}

func (e *emitter) vocabulary() {
	g := e.g
	s := e.section(SectionVocabulary)
	s.add(label("VOCAB"))
	si := g.opts.SelfInserting
	s.add(byteItem(g.ops.number(len(si))))
	for i := 0; i < len(si); i++ {
		s.add(byteItem(g.ops.number(int(si[i]))))
	}
	words := g.Words()
	dataLen := 3
	if g.opts.CompactVocabulary {
		dataLen = 2
	}
	for _, w := range words {
		if n := dataSize(w.Data); n > dataLen {
			e.fail(fmt.Errorf("word %q has %d data bytes, want at most %d", w.Text, n, dataLen))
		}
	}
	s.add(byteItem(g.ops.number(g.encoder.EncodedLength() + dataLen)))
	s.add(wordItem(g.ops.number(len(words))))
	for _, w := range words {
		s.add(label(w.sym.Name), directive(".ZWORD "+quoteText(w.Text)))
		s.add(e.constData("vocabulary word "+w.Text, w.Data)...)
		for n := dataSize(w.Data); n < dataLen; n++ {
			s.add(byteItem(g.ops.zero))
		}
	}
}

func (e *emitter) debug(objects []Item) {
	g := e.g
	s := e.section(SectionDebug)
	if !g.opts.Debug {
		return
	}
	for i, f := range g.debugFiles {
		s.add(directive(fmt.Sprintf(".DEBUG-FILE %d,%s,%s", i, quoteText(baseName(f)), quoteText(f))))
	}
	for _, f := range g.flagOrder {
		s.add(directive(fmt.Sprintf(".DEBUG-ATTR %d,%s", f.Number, quoteText(f.Name))))
	}
	for _, p := range g.sortedProperties() {
		s.add(directive(fmt.Sprintf(".DEBUG-PROP %d,%s", p.Number, quoteText(strings.TrimPrefix(p.Name, "P?")))))
	}
	for i, gb := range g.hardOrder {
		s.add(directive(fmt.Sprintf(".DEBUG-GLOBAL %d,%s", 16+i, quoteText(gb.Name))))
	}
	for _, t := range g.tables {
		s.add(directive(fmt.Sprintf(".DEBUG-ARRAY %s,%s", t.Name, quoteText(t.Name))))
	}
	s.add(objects...)
	s.add(g.debug...)
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (e *emitter) code() {
	s := e.section(SectionCode)
	for _, rb := range e.g.routines {
		rb.Finish()
		s.add(rb.Items()...)
	}
}

func (e *emitter) strings() {
	g := e.g
	s := e.section(SectionStrings)
	g.stringSeq.Ascend(func(t *Text) bool {
		s.add(directive(".GSTR " + t.Name + "," + quoteText(t.Value)))
		return true
	})
}
