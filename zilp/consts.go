package zilp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
	"github.com/fzipp/zil-compiler/zscii"
)

func undefined(kind, name string) error {
	return &diag.UndefinedReferenceError{Kind: kind, Name: name}
}

var errNotConstant = errors.New("not a constant")

// nameOperand resolves a name that denotes a compile-time value: a
// constant, object, routine, flag, table, property (P?X) or word (W?X).
func (c *Compiler) nameOperand(name string) (zilg.Operand, bool) {
	if op, ok := c.game.Constant(name); ok {
		return op, true
	}
	if ob, ok := c.game.Object(name); ok {
		return ob.Operand(), true
	}
	if rb, ok := c.game.Routine(name); ok {
		return rb.Operand(), true
	}
	if fb, ok := c.game.Flag(name); ok {
		return fb.Operand(), true
	}
	if t, ok := c.game.Table(name); ok {
		return t.Operand(), true
	}
	if p, ok := strings.CutPrefix(name, "P?"); ok {
		if pb, ok := c.game.Property(p); ok {
			return pb.Operand(), true
		}
	}
	if w, ok := strings.CutPrefix(name, "W?"); ok {
		wb, err := c.game.DefineWord(strings.ToLower(w))
		if err == nil {
			return wb.Operand(), true
		}
	}
	return nil, false
}

// number returns the numeric value of op if it is known at compile time.
func (c *Compiler) number(op zilg.Operand) (int, bool) {
	switch op := op.(type) {
	case *zilg.Number:
		return op.Value, true
	case *zilg.Symbol:
		switch op.Kind {
		case zilg.SymConstant:
			if d, ok := c.constsBy[op.Name]; ok {
				return c.number(c.constValue(d))
			}
			if v, ok := c.game.ConstantValue(op.Name); ok && v != nil {
				return c.number(v)
			}
		case zilg.SymFlag:
			if fb, ok := c.game.Flag(op.Name); ok {
				return fb.Number, true
			}
		case zilg.SymProperty:
			if pb, ok := c.game.Property(strings.TrimPrefix(op.Name, "P?")); ok {
				return pb.Number, true
			}
		case zilg.SymObject:
			if ob, ok := c.game.Object(op.Name); ok {
				return ob.Number, true
			}
		}
	}
	return 0, false
}

// constValue evaluates a CONSTANT declaration on first use.
func (c *Compiler) constValue(d *constDecl) zilg.Operand {
	switch d.state {
	case evaluated:
		return d.value
	case evaluating:
		c.errorf(d.pos, "constant %s is defined in terms of itself", d.name)
		return c.game.Zero()
	}
	d.state = evaluating
	v, err := c.constOperand(d.init)
	if err != nil {
		c.error(d.pos, err)
		v = c.game.Zero()
	}
	d.value, d.state = v, evaluated
	if err := c.game.SetConstantValue(d.name, v); err != nil {
		c.error(d.pos, err)
	}
	return v
}

// globalValue evaluates the initializer of a global on first use.
func (c *Compiler) globalValue(d *globalDecl) zilg.Operand {
	switch d.state {
	case evaluated:
		return d.gb.Default
	case evaluating:
		c.errorf(d.form.Pos(), "global %s is initialized in terms of itself", d.name)
		return c.game.Zero()
	}
	d.state = evaluating
	var v zilg.Operand = c.game.Zero()
	if d.init != nil {
		op, err := c.constOperand(d.init)
		if err != nil {
			c.error(d.init.Pos(), err)
		} else {
			v = op
		}
	}
	d.gb.Default, d.state = v, evaluated
	return v
}

// evalConstants evaluates every constant and global initializer and the
// property defaults of PROPDEF.
func (c *Compiler) evalConstants() {
	for _, d := range c.constants {
		c.constValue(d)
	}
	for _, d := range c.globals {
		c.globalValue(d)
	}
	for _, f := range c.propdefs {
		args := f.Args()
		if len(args) < 2 {
			continue
		}
		name, _ := zils.AtomName(args[0])
		p, ok := c.game.Property(name)
		if !ok {
			continue
		}
		if _, isList := args[1].(*zils.List); isList {
			c.malformed(f, "property patterns are not supported")
			continue
		}
		v, err := c.constOperand(args[1])
		if err != nil {
			c.error(f.Pos(), err)
			continue
		}
		p.Default = v
	}
}

// constOperand evaluates n at compile time.
func (c *Compiler) constOperand(n zils.Node) (zilg.Operand, error) {
	switch n := n.(type) {
	case *zils.Fix:
		return c.game.Number(wrap16(n.Value)), nil
	case *zils.Char:
		code, ok := zscii.ToZSCII(n.Value)
		if !ok {
			return nil, fmt.Errorf("character %q has no ZSCII code", n.Value)
		}
		return c.game.Number(int(code)), nil
	case *zils.String:
		return c.game.String(c.translate(n.Value)), nil
	case *zils.Adecl:
		return c.constOperand(n.Value)
	case *zils.Atom:
		if n.Name == "T" {
			return c.game.One(), nil
		}
		if op, ok := c.nameOperand(n.Name); ok {
			return op, nil
		}
		return nil, diag.WithPos(n.Pos(), undefined("name", n.Name))
	case *zils.Form:
		return c.constForm(n)
	}
	return nil, diag.WithPos(n.Pos(), &diag.NonConstantInitializerError{What: n.String()})
}

func wrap16(v int) int { return int(int16(v)) }

var foldOps = map[string]func(a, b int) (int, bool){
	"+":    func(a, b int) (int, bool) { return a + b, true },
	"-":    func(a, b int) (int, bool) { return a - b, true },
	"*":    func(a, b int) (int, bool) { return a * b, true },
	"/":    func(a, b int) (int, bool) { return div(a, b) },
	"MOD":  func(a, b int) (int, bool) { return mod(a, b) },
	"BOR":  func(a, b int) (int, bool) { return a | b, true },
	"ORB":  func(a, b int) (int, bool) { return a | b, true },
	"BAND": func(a, b int) (int, bool) { return a & b, true },
	"ANDB": func(a, b int) (int, bool) { return a & b, true },
	"LSH": func(a, b int) (int, bool) {
		if b < 0 {
			return int(uint16(a) >> -b), true
		}
		return a << b, true
	},
}

func div(a, b int) (int, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

func mod(a, b int) (int, bool) {
	if b == 0 {
		return 0, false
	}
	return a % b, true
}

var tableHeads = map[string]bool{
	"TABLE": true, "LTABLE": true, "ITABLE": true, "PTABLE": true, "PLTABLE": true,
}

func (c *Compiler) constForm(f *zils.Form) (zilg.Operand, error) {
	if zils.IsFalse(f) {
		return c.game.Zero(), nil
	}
	if name, ok := zils.GlobalName(f); ok {
		if d, ok := c.globalsBy[zilg.Sanitize(name)]; ok {
			// a global whose value is a constant, such as a table
			v := c.globalValue(d)
			if s, ok := v.(*zilg.Symbol); ok && s.Kind == zilg.SymTable {
				return v, nil
			}
			return nil, diag.WithPos(f.Pos(), &diag.NonConstantInitializerError{What: "global " + name})
		}
		if op, ok := c.nameOperand(name); ok {
			return op, nil
		}
		return nil, diag.WithPos(f.Pos(), undefined("name", name))
	}
	args := f.Args()
	head := f.HeadName()
	switch {
	case head == "QUOTE" && len(args) == 1:
		if name, ok := zils.AtomName(args[0]); ok {
			if op, ok := c.nameOperand(name); ok {
				return op, nil
			}
			return nil, diag.WithPos(f.Pos(), undefined("name", name))
		}
		return c.constOperand(args[0])
	case head == "CHTYPE" && len(args) == 2, head == "BYTE" && len(args) == 1, head == "WORD" && len(args) == 1:
		return c.constOperand(args[0])
	case tableHeads[head]:
		return c.table(f, "")
	case head == "VOC" && len(args) >= 1:
		text, ok := wordText(args[0])
		if !ok {
			return nil, diag.WithPos(f.Pos(), &diag.MalformedFormError{Form: "VOC", Msg: "want a word"})
		}
		w, err := c.game.DefineWord(text)
		if err != nil {
			return nil, err
		}
		return w.Operand(), nil
	case head == "VERSION?":
		if body, ok := c.selectVersion(f); ok && len(body) > 0 {
			return c.constOperand(body[len(body)-1])
		}
		return c.game.Zero(), nil
	case head == "IFFLAG":
		if body, ok := c.selectFlag(f); ok && len(body) > 0 {
			return c.constOperand(body[len(body)-1])
		}
		return c.game.Zero(), nil
	case head == "-" && len(args) == 1:
		v, err := c.constNumber(args[0])
		if err != nil {
			return nil, err
		}
		return c.game.Number(wrap16(-v)), nil
	case head == "BCOM" && len(args) == 1:
		v, err := c.constNumber(args[0])
		if err != nil {
			return nil, err
		}
		return c.game.Number(wrap16(^v)), nil
	}
	if fold, ok := foldOps[head]; ok && len(args) > 0 {
		acc, err := c.constNumber(args[0])
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			v, err := c.constNumber(a)
			if err != nil {
				return nil, err
			}
			if acc, ok = fold(acc, v); !ok {
				return nil, diag.WithPos(a.Pos(), errors.New("division by zero"))
			}
		}
		return c.game.Number(wrap16(acc)), nil
	}
	if n := c.expand("", f); n != zils.Node(f) {
		return c.constOperand(n)
	}
	return nil, diag.WithPos(f.Pos(), &diag.NonConstantInitializerError{What: f.String()})
}

func (c *Compiler) constNumber(n zils.Node) (int, error) {
	op, err := c.constOperand(n)
	if err != nil {
		return 0, err
	}
	v, ok := c.number(op)
	if !ok {
		return 0, diag.WithPos(n.Pos(), fmt.Errorf("%s: %w", n, errNotConstant))
	}
	return v, nil
}

// selectVersion returns the body of the VERSION? clause matching the
// target.
func (c *Compiler) selectVersion(f *zils.Form) ([]zils.Node, bool) {
	for _, a := range f.Args() {
		l, ok := a.(*zils.List)
		if !ok || len(l.Elems) == 0 {
			c.malformed(f, "clauses must be non-empty lists")
			continue
		}
		if name, _ := zils.AtomName(l.Elems[0]); name == "ELSE" || name == "T" {
			return l.Elems[1:], true
		}
		if v, ok := parseVersion(l.Elems[0]); ok && v == c.version {
			return l.Elems[1:], true
		}
	}
	return nil, false
}

// selectFlag returns the body of the first IFFLAG clause whose
// compilation flag is set.
func (c *Compiler) selectFlag(f *zils.Form) ([]zils.Node, bool) {
	for _, a := range f.Args() {
		l, ok := a.(*zils.List)
		if !ok || len(l.Elems) == 0 {
			c.malformed(f, "clauses must be non-empty lists")
			continue
		}
		name, ok := flagName(l.Elems[0])
		if !ok {
			c.malformed(l, "flag name must be an atom or string")
			continue
		}
		if name == "ELSE" || name == "T" || c.flags[name] {
			return l.Elems[1:], true
		}
	}
	return nil, false
}

// Tables

var tableFlagBits = map[string]zilg.TableFlags{
	"PURE":         zilg.TablePure,
	"BYTE":         zilg.TableByte,
	"LEXV":         zilg.TableLexv,
	"PARSER-TABLE": zilg.TableParser,
	"TEMP-TABLE":   zilg.TableTemp,
}

// table builds a TABLE, LTABLE, PTABLE, PLTABLE or ITABLE. Elements are
// evaluated as constants; <BYTE x> and <WORD x> force the element width.
func (c *Compiler) table(f *zils.Form, name string) (zilg.Operand, error) {
	head := f.HeadName()
	args := f.Args()
	var flags zilg.TableFlags
	length := head == "LTABLE" || head == "PLTABLE"
	str := false
	if head == "PTABLE" || head == "PLTABLE" {
		flags |= zilg.TablePure
	}

	var prefix string // ITABLE length prefix: "", "BYTE" or "WORD"
	count := -1
	if head == "ITABLE" {
		if len(args) > 0 {
			if spec, _ := zils.AtomName(args[0]); spec == "NONE" || spec == "BYTE" || spec == "WORD" {
				if spec != "NONE" {
					prefix = spec
				}
				args = args[1:]
			}
		}
		if len(args) == 0 {
			return nil, diag.WithPos(f.Pos(), &diag.MalformedFormError{Form: head, Msg: "missing element count"})
		}
		n, err := c.constNumber(args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, diag.WithPos(f.Pos(), &diag.MalformedFormError{Form: head, Msg: "negative element count"})
		}
		count = n
		args = args[1:]
	}
	if len(args) > 0 {
		if l, ok := args[0].(*zils.List); ok {
			for _, e := range l.Elems {
				fn, _ := zils.AtomName(e)
				switch fn {
				case "LENGTH":
					length = true
				case "STRING":
					str = true
					flags |= zilg.TableByte
				case "WORD", "KERNEL":
				default:
					bit, ok := tableFlagBits[fn]
					if !ok {
						return nil, diag.WithPos(e.Pos(), &diag.MalformedFormError{Form: head, Msg: "unknown table flag " + e.String()})
					}
					flags |= bit
				}
			}
			args = args[1:]
		}
	}

	var t *zilg.TableBuilder
	if name == "" {
		t = c.game.NewAnonymousTable(flags)
	} else {
		var err error
		if t, err = c.game.DefineTable(name, flags); err != nil {
			return nil, err
		}
	}
	t.Pos = c.debugLine(f.Pos())

	var elems []func()
	add := func(n zils.Node) {
		n = zils.StripDecl(n)
		if s, ok := n.(*zils.String); ok && str {
			for _, r := range c.translate(s.Value) {
				code, _ := zscii.ToZSCII(r)
				elems = append(elems, func() { t.AddByte(c.game.Number(int(code))) })
			}
			return
		}
		v, err := c.constOperand(n)
		if err != nil {
			c.error(n.Pos(), err)
			v = c.game.Zero()
		}
		switch {
		case zils.IsCall(n, "BYTE"):
			elems = append(elems, func() { t.AddByte(v) })
		case zils.IsCall(n, "WORD"):
			elems = append(elems, func() { t.AddWord(v) })
		default:
			elems = append(elems, func() { t.Add(v) })
		}
	}
	if count >= 0 {
		if flags&zilg.TableLexv != 0 && len(args) == 0 {
			// a READ/LEX buffer: one 4-byte record per word
			for i := 0; i < count; i++ {
				w, b := zils.NewCall(f.Pos(), "WORD", &zils.Fix{}), zils.NewCall(f.Pos(), "BYTE", &zils.Fix{})
				add(w)
				add(b)
				add(b)
			}
		} else {
			for i := 0; i < count; i++ {
				if len(args) == 0 {
					add(&zils.Fix{At: f.Pos()})
					continue
				}
				for _, a := range args {
					add(a)
				}
			}
		}
	} else {
		for _, a := range args {
			add(a)
		}
	}

	n := len(elems)
	if count >= 0 {
		n = count
	}
	switch {
	case prefix == "BYTE", prefix == "" && length && flags&zilg.TableByte != 0:
		t.AddByte(c.game.Number(n))
	case prefix == "WORD", length:
		t.AddWord(c.game.Number(n))
	}
	for _, e := range elems {
		e()
	}
	return t.Operand(), nil
}
