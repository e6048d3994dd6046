package zilp

import (
	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

// buildObjects fills in descriptions, locations, flags and property data
// of every object. Objects are processed in declaration order, so an
// object declared later in the same container ends up as its first
// child.
func (c *Compiler) buildObjects() {
	for _, d := range c.objects {
		for _, l := range d.props {
			c.objectProperty(d, l)
		}
		if last := len(d.props); last > 0 {
			d.ob.End = c.debugLine(d.props[last-1].Pos())
		}
	}
	c.log.Debug("built objects", "objects", len(c.objects))
}

func (c *Compiler) objectProperty(d *objectDecl, l *zils.List) {
	name, _ := zils.AtomName(l.Elems[0])
	values := l.Elems[1:]
	switch {
	case name == "DESC":
		s, ok := single(values).(*zils.String)
		if !ok {
			c.malformed(l, "DESC wants one string")
			return
		}
		d.ob.Description = c.translate(s.Value)
		return
	case name == "LOC", name == "IN" && !c.isExit(l):
		c.setLocation(d, l, single(values))
		return
	case name == "FLAGS":
		for _, v := range values {
			fn, _ := zils.AtomName(v)
			if fb, ok := c.game.Flag(fn); ok {
				d.ob.AddFlag(fb)
			}
		}
		return
	}

	p, ok := c.game.Property(name)
	if !ok {
		c.error(l.Pos(), undefined("property", name))
		return
	}
	if pe, ok := c.exp.(zils.PropertyEvaluator); ok {
		result, custom, err := pe.EvalProperty(name, values)
		if err != nil {
			c.error(l.Pos(), diag.WithPos(l.Pos(), err))
			return
		}
		if custom {
			values = result
		}
	}
	if len(values) == 0 {
		c.warn(l.Pos(), warnEmptyProperty, "property %s of %s has no value", name, d.name)
		return
	}
	e, err := d.ob.AddProperty(p)
	if !c.check(l.Pos(), err) {
		return
	}
	switch {
	case c.isExit(l):
		c.exitData(e, l)
	case name == "SYNONYM":
		for _, v := range values {
			if w := c.propWord(v); w != nil {
				e.AddWord(w)
			}
		}
	case name == "ADJECTIVE":
		for _, v := range values {
			c.adjectiveData(e, v)
		}
	case name == "GLOBAL":
		for _, v := range values {
			op := c.propObject(v)
			if c.version == 3 {
				e.AddByte(op)
			} else {
				e.AddWord(op)
			}
		}
	case name == "PSEUDO":
		if len(values)%2 != 0 {
			c.malformed(l, "PSEUDO wants pairs of a string and a routine")
			return
		}
		for i := 0; i < len(values); i += 2 {
			e.AddWord(c.propWord(values[i]))
			e.AddWord(c.propValue(values[i+1]))
		}
	default:
		for _, v := range values {
			c.propElem(e, v)
		}
	}
}

func single(values []zils.Node) zils.Node {
	if len(values) != 1 {
		return nil
	}
	return values[0]
}

func (c *Compiler) setLocation(d *objectDecl, l *zils.List, v zils.Node) {
	name, ok := zils.AtomName(v)
	if !ok {
		c.malformed(l, "location must be an object name")
		return
	}
	parent, ok := c.game.Object(name)
	if !ok {
		c.error(v.Pos(), undefined("object", name))
		return
	}
	c.check(l.Pos(), d.ob.SetParent(parent))
}

// propElem adds one ordinary property value: <BYTE x> is a byte, anything
// else a word.
func (c *Compiler) propElem(e *zilg.PropEntry, v zils.Node) {
	if f, ok := v.(*zils.Form); ok && len(f.Args()) == 1 {
		switch f.HeadName() {
		case "BYTE":
			e.AddByte(c.propValue(f.Args()[0]))
			return
		case "WORD":
			e.AddWord(c.propValue(f.Args()[0]))
			return
		}
	}
	e.AddWord(c.propValue(v))
}

func (c *Compiler) propValue(v zils.Node) zilg.Operand {
	op, err := c.constOperand(v)
	if err != nil {
		c.error(v.Pos(), err)
		return c.game.Zero()
	}
	return op
}

func (c *Compiler) propWord(v zils.Node) zilg.Operand {
	text, ok := wordText(v)
	if !ok {
		c.malformed(v, "words must be atoms or strings")
		return c.game.Zero()
	}
	w, ok := c.game.Word(text)
	if !ok {
		c.error(v.Pos(), undefined("word", text))
		return c.game.Zero()
	}
	return w.Operand()
}

func (c *Compiler) propObject(v zils.Node) zilg.Operand {
	name, ok := zils.AtomName(v)
	if !ok {
		c.malformed(v, "object name expected")
		return c.game.Zero()
	}
	ob, ok := c.game.Object(name)
	if !ok {
		c.error(v.Pos(), undefined("object", name))
		return c.game.Zero()
	}
	return ob.Operand()
}

// adjectiveData adds an adjective number in version 3 and the address of
// the dictionary word otherwise.
func (c *Compiler) adjectiveData(e *zilg.PropEntry, v zils.Node) {
	if c.version > 3 {
		e.AddWord(c.propWord(v))
		return
	}
	text, ok := wordText(v)
	if !ok {
		c.malformed(v, "adjectives must be atoms or strings")
		return
	}
	op, ok := c.game.Constant(c.partConstant(psAdjective, text))
	if !ok {
		c.error(v.Pos(), undefined("adjective", text))
		op = c.game.Zero()
	}
	e.AddByte(op)
}

// exitData writes one of the five exit shapes. Before version 4 rooms
// and doors are bytes; from version 4 on they are words.
func (c *Compiler) exitData(e *zilg.PropEntry, l *zils.List) {
	args := l.Elems[1:]
	g := c.game
	zero := g.Zero()
	obj := func(op zilg.Operand) {
		if c.version < 4 {
			e.AddByte(op)
		} else {
			e.AddWord(op)
		}
	}
	keyword := func(i int) string {
		if i >= len(args) {
			return ""
		}
		name, _ := zils.AtomName(args[i])
		return name
	}

	switch {
	case len(args) == 1 || keyword(0) == "SORRY" && len(args) == 2:
		s, ok := args[len(args)-1].(*zils.String)
		if !ok {
			c.malformed(l, "a non-exit wants a string")
			return
		}
		e.AddWord(g.String(c.translate(s.Value)))
		if c.version >= 4 {
			e.AddByte(zero)
		}

	case keyword(0) == "PER" && len(args) == 2:
		name, _ := zils.AtomName(args[1])
		r, ok := g.Routine(name)
		if !ok {
			c.error(args[1].Pos(), undefined("routine", name))
			return
		}
		e.AddWord(r.Operand())
		e.AddByte(zero)
		if c.version >= 4 {
			e.AddByte(zero)
		}

	case keyword(0) == "TO" && len(args) == 2:
		obj(c.propObject(args[1]))

	case keyword(0) == "TO" && keyword(2) == "IF" && len(args) >= 4:
		room := c.propObject(args[1])
		var msg zilg.Operand = zero
		rest := args[4:]
		door := keyword(4) == "IS"
		if door {
			if len(args) < 6 || keyword(5) != "OPEN" {
				c.malformed(l, "a door exit wants IS OPEN")
				return
			}
			rest = args[6:]
		}
		if len(rest) > 0 {
			s, ok := rest[len(rest)-1].(*zils.String)
			if len(rest) != 2 || !ok || keyword(len(args)-len(rest)) != "ELSE" {
				c.malformed(l, `an exit condition may only be followed by ELSE "text"`)
				return
			}
			msg = g.String(c.translate(s.Value))
		}
		if door {
			d := c.propObject(args[3])
			obj(room)
			obj(d)
			e.AddWord(msg)
			if c.version < 4 {
				e.AddByte(zero)
			}
			return
		}
		flag := c.exitGlobal(args[3])
		if c.version < 4 {
			e.AddByte(room)
			e.AddByte(flag)
			e.AddWord(msg)
		} else {
			e.AddWord(room)
			e.AddWord(msg)
			e.AddByte(flag)
		}

	default:
		c.malformed(l, "unrecognized exit "+l.String())
	}
}

// exitGlobal returns the variable number of the global a conditional
// exit tests. The interpreter library reads it with VALUE, so it must be
// a hard global.
func (c *Compiler) exitGlobal(n zils.Node) zilg.Operand {
	name, _ := zils.AtomName(n)
	gb, ok := c.game.Global(name)
	if !ok {
		c.error(n.Pos(), undefined("global", name))
		return c.game.Zero()
	}
	if _, soft := c.softGlobal(name); soft {
		c.errorf(n.Pos(), "conditional exit global %s is stored in the global table", name)
		return c.game.Zero()
	}
	return gb.Ref()
}
