package zilp

import (
	"strings"

	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

type syntaxDecl struct {
	pos       zils.Pos
	verb      string
	nobj      int
	preps     [2]string
	finds     [2]string
	opts      [2]int
	action    string // routine
	preaction string
	name      string // action name, V?name
}

type actionInfo struct {
	routine   string
	preaction string
	op        zilg.Operand
}

// parserTables are defined early so that routines can refer to them.
type parserTables struct {
	vtbl, atbl, patbl, prtbl *zilg.TableBuilder
}

// Search option bits of a syntax object slot.
var searchBits = map[string]int{
	"HAVE":      2,
	"MANY":      4,
	"TAKE":      8,
	"ON-GROUND": 16,
	"IN-ROOM":   32,
	"CARRIED":   64,
	"HELD":      128,
}

// defaultSearch applies to object slots without options.
const defaultSearch = 16 | 32 | 64 | 128

// declareSyntax parses
//
//	<SYNTAX VERB [PREP] OBJECT [(FIND FLAG)] [(opts...)] [PREP OBJECT ...] = ACTION [PREACTION] [NAME]>
func (c *Compiler) declareSyntax(f *zils.Form) {
	args := f.Args()
	if len(args) == 0 {
		c.malformed(f, "missing verb")
		return
	}
	verb, ok := wordText(args[0])
	if !ok {
		c.malformed(f, "verb must be an atom")
		return
	}
	s := &syntaxDecl{pos: f.Pos(), verb: verb}
	i := 1
	for ; i < len(args); i++ {
		a := args[i]
		if l, ok := a.(*zils.List); ok {
			if s.nobj == 0 {
				c.malformed(l, "options before any OBJECT")
				return
			}
			c.syntaxOptions(s, l)
			continue
		}
		name, ok := zils.AtomName(a)
		if !ok {
			c.malformed(a, "unexpected "+a.String())
			return
		}
		if name == "=" {
			break
		}
		if name == "OBJECT" {
			if s.nobj == 2 {
				c.malformed(a, "at most two objects")
				return
			}
			s.nobj++
			continue
		}
		if s.nobj == 2 || s.preps[s.nobj] != "" {
			c.malformed(a, "unexpected preposition "+name)
			return
		}
		s.preps[s.nobj] = strings.ToLower(name)
	}
	for k := 0; k < s.nobj; k++ {
		if s.opts[k] == 0 {
			s.opts[k] = defaultSearch
		}
	}
	rest := args[min(i+1, len(args)):]
	if i == len(args) || len(rest) == 0 {
		c.malformed(f, "missing = ACTION")
		return
	}
	action, ok := zils.AtomName(rest[0])
	if !ok {
		c.malformed(f, "action must be a routine name")
		return
	}
	s.action = action
	s.name = strings.TrimPrefix(action, "V-")
	if len(rest) > 1 {
		if pre, ok := zils.AtomName(rest[1]); ok {
			s.preaction = pre
		} else if !zils.IsFalse(rest[1]) {
			c.malformed(f, "preaction must be a routine name or <>")
			return
		}
	}
	if len(rest) > 2 {
		name, ok := zils.AtomName(rest[2])
		if !ok {
			c.malformed(f, "action name must be an atom")
			return
		}
		s.name = name
	}
	c.syntaxes = append(c.syntaxes, s)
}

func (c *Compiler) syntaxOptions(s *syntaxDecl, l *zils.List) {
	slot := s.nobj - 1
	if len(l.Elems) == 2 {
		if head, _ := zils.AtomName(l.Elems[0]); head == "FIND" {
			flag, ok := zils.AtomName(l.Elems[1])
			if !ok {
				c.malformed(l, "FIND wants a flag name")
				return
			}
			s.finds[slot] = flag
			return
		}
	}
	for _, e := range l.Elems {
		name, _ := zils.AtomName(e)
		bit, ok := searchBits[name]
		if !ok {
			c.malformed(e, "unknown search option "+e.String())
			continue
		}
		s.opts[slot] |= bit
	}
}

// syntaxWords numbers the verbs, prepositions and actions of all syntax
// lines and defines the parser tables.
func (c *Compiler) syntaxWords() {
	if len(c.syntaxes) == 0 {
		return
	}
	c.actions = make(map[string]*actionInfo)
	for _, s := range c.syntaxes {
		c.verbWord(s.pos, s.verb)
		for _, p := range s.preps {
			if p != "" {
				c.prepWord(s.pos, p)
			}
		}
		c.defineAction(s)
	}
	pt := &parserTables{}
	for _, t := range []struct {
		dst   **zilg.TableBuilder
		name  string
		flags zilg.TableFlags
	}{
		{&pt.vtbl, "VTBL", zilg.TablePure | zilg.TableParser},
		{&pt.atbl, "ATBL", zilg.TablePure | zilg.TableParser},
		{&pt.patbl, "PATBL", zilg.TablePure | zilg.TableParser},
		{&pt.prtbl, "PRTBL", zilg.TablePure | zilg.TableParser},
	} {
		tb, err := c.game.DefineTable(t.name, t.flags)
		if !c.check(zils.Pos{}, err) {
			return
		}
		*t.dst = tb
	}
	c.parser = pt
}

func (c *Compiler) defineAction(s *syntaxDecl) {
	key := zilg.Sanitize(s.name)
	if a, ok := c.actions[key]; ok {
		if a.routine != s.action {
			c.errorf(s.pos, "action %s is handled by both %s and %s", s.name, a.routine, s.action)
		}
		switch {
		case a.preaction == "":
			a.preaction = s.preaction
		case s.preaction != "" && s.preaction != a.preaction:
			c.errorf(s.pos, "action %s has pre-actions %s and %s", s.name, a.preaction, s.preaction)
		}
		return
	}
	num, err := c.base.DefineAction(key)
	if err != nil {
		c.fatal(s.pos, err)
	}
	op := c.builtinConstant("V?"+s.name, c.game.Number(num))
	c.actions[key] = &actionInfo{routine: s.action, preaction: s.preaction, op: op}
}

func (c *Compiler) routineRef(pos zils.Pos, name string) zilg.Operand {
	rb, ok := c.game.Routine(name)
	if !ok {
		c.error(pos, undefined("routine", name))
		return c.game.Zero()
	}
	return rb.Operand()
}

// buildParserTables fills VTBL with one syntax table per verb, ATBL and
// PATBL with the action and pre-action routines by action number, and
// PRTBL with the prepositions.
func (c *Compiler) buildParserTables() {
	if c.parser == nil {
		return
	}
	pt := c.parser
	byVerb := make(map[string][]*syntaxDecl)
	for _, s := range c.syntaxes {
		verb, _ := c.game.Constant(c.partConstant(psVerb, s.verb))
		byVerb[verb.String()] = append(byVerb[verb.String()], s)
	}
	for _, verb := range c.verbs {
		lines := byVerb[zilg.Sanitize(c.partConstant(psVerb, verb))]
		st, err := c.game.DefineTable("ST?"+strings.ToUpper(verb), zilg.TablePure|zilg.TableByte|zilg.TableParser)
		if !c.check(zils.Pos{}, err) {
			continue
		}
		st.AddByte(c.game.Number(len(lines)))
		for _, s := range lines {
			st.AddByte(c.game.Number(s.nobj))
			for _, p := range s.preps {
				st.AddByte(c.prepOperand(p))
			}
			for _, f := range s.finds {
				st.AddByte(c.flagOperand(f))
			}
			for _, o := range s.opts {
				st.AddByte(c.game.Number(o))
			}
			st.AddByte(c.actions[zilg.Sanitize(s.name)].op)
		}
		pt.vtbl.AddWord(st.Operand())
	}
	for _, a := range c.base.Actions() {
		info := c.actions[a.Name]
		pt.atbl.AddWord(c.routineRef(zils.Pos{}, info.routine))
		if info.preaction == "" {
			pt.patbl.AddWord(c.game.Zero())
		} else {
			pt.patbl.AddWord(c.routineRef(zils.Pos{}, info.preaction))
		}
	}
	var preps []*wordInfo
	for _, wi := range c.vocab.order {
		if wi.ps&psPreposition == 0 || wi.w.IsAlias() {
			continue
		}
		name := zilg.Sanitize(c.partConstant(psPreposition, wi.w.Text))
		if op, ok := c.game.Constant(name); ok && op.String() == name {
			preps = append(preps, wi)
		}
	}
	pt.prtbl.AddWord(c.game.Number(len(preps)))
	for _, wi := range preps {
		v, _ := wi.value(psPreposition)
		pt.prtbl.AddWord(wi.w.Operand())
		pt.prtbl.AddWord(v)
	}
}

func (c *Compiler) prepOperand(p string) zilg.Operand {
	if p == "" {
		return c.game.Zero()
	}
	op, ok := c.game.Constant(c.partConstant(psPreposition, p))
	if !ok {
		return c.game.Zero()
	}
	return op
}

func (c *Compiler) flagOperand(name string) zilg.Operand {
	if name == "" {
		return c.game.Zero()
	}
	fb, ok := c.game.Flag(name)
	if !ok {
		return c.game.Zero()
	}
	return fb.Operand()
}
