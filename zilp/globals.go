package zilp

import (
	"github.com/fzipp/zil-compiler/zilb"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

// scanGlobalUsage finds the globals that must stay VM variables: those
// named as the variable operand of INC, DEC, IGRTR? and the like, and
// those tested by conditional exits.
func (c *Compiler) scanGlobalUsage() {
	for _, d := range c.routines {
		locals := make(map[string]bool, len(d.names))
		for _, name := range d.names {
			locals[name] = true
		}
		for _, n := range d.body {
			c.scanNode(n, locals)
		}
	}
	for _, d := range c.objects {
		for _, l := range d.props {
			c.scanExit(l)
		}
	}
}

func (c *Compiler) scanNode(n zils.Node, locals map[string]bool) {
	var elems []zils.Node
	switch n := n.(type) {
	case *zils.Form:
		if args := n.Args(); len(args) > 0 && takesVariable(n.HeadName()) {
			c.forceIfGlobal(args[0], locals)
		}
		elems = n.Elems
	case *zils.List:
		elems = n.Elems
	case *zils.Adecl:
		elems = []zils.Node{n.Value}
	case *zils.Splice:
		elems = n.Elems
	}
	for _, e := range elems {
		c.scanNode(e, locals)
	}
}

func takesVariable(head string) bool {
	for _, b := range builtins[head] {
		if b.varArg {
			return true
		}
	}
	return false
}

func (c *Compiler) forceIfGlobal(n zils.Node, locals map[string]bool) {
	n = zils.StripDecl(n)
	if f, ok := n.(*zils.Form); ok && f.HeadName() == "QUOTE" && len(f.Args()) == 1 {
		n = f.Args()[0]
	}
	name, ok := zils.AtomName(n)
	if !ok || locals[name] {
		return
	}
	if gb, ok := c.game.Global(name); ok {
		c.forceHard[gb.Name] = true
	}
}

// scanExit marks the global of (DIR TO room IF global ...).
func (c *Compiler) scanExit(l *zils.List) {
	if !c.isExit(l) || len(l.Elems) < 5 {
		return
	}
	if kw, _ := zils.AtomName(l.Elems[3]); kw != "IF" {
		return
	}
	if len(l.Elems) > 5 {
		if kw, _ := zils.AtomName(l.Elems[5]); kw == "IS" {
			return
		}
	}
	c.forceIfGlobal(l.Elems[4], nil)
}

// assignGlobals decides hard or soft storage for every global. Soft
// globals are moved into T?GLOBAL-VARS-TABLE, whose address is held by
// the hard global GLOBAL-VARS-TABLE.
func (c *Compiler) assignGlobals() {
	c.scanGlobalUsage()
	list := make([]*zilb.Global, len(c.globals))
	for i, d := range c.globals {
		list[i] = &zilb.Global{Name: d.gb.Name, Byte: d.byteSized}
	}
	plan, err := zilb.AssignGlobalStorage(c.version, list, func(name string) bool {
		return c.forceHard[name]
	})
	if err != nil {
		c.fatal(zils.Pos{}, err)
	}
	if !plan.NeedTable {
		c.log.Debug("assigned global storage", "hard", len(plan.Hard), "soft", 0)
		return
	}

	t, err := c.game.DefineTable("T?"+zilb.SoftTableName, 0)
	if !c.check(zils.Pos{}, err) {
		return
	}
	var bytes, words []*zilb.Global
	for _, g := range plan.Soft {
		if g.IsWord {
			words = append(words, g)
		} else {
			bytes = append(bytes, g)
		}
	}
	for _, g := range bytes {
		d := c.globalsBy[g.Name]
		t.AddByte(d.gb.Default)
		c.game.MakeSoft(d.gb, false, g.Offset)
	}
	if len(bytes)%2 != 0 {
		t.AddByte(c.game.Zero())
	}
	for _, g := range words {
		d := c.globalsBy[g.Name]
		t.AddWord(d.gb.Default)
		c.game.MakeSoft(d.gb, true, g.Offset)
	}
	if t.Size() != plan.TableSize {
		c.errorf(zils.Pos{}, "soft global table is %d bytes, want %d", t.Size(), plan.TableSize)
	}

	gb, err := c.game.DefineGlobal(zilb.SoftTableName)
	if !c.check(zils.Pos{}, err) {
		return
	}
	gb.Default = t.Operand()
	c.softTable = gb.Var
	c.log.Debug("assigned global storage",
		"hard", len(plan.Hard)+1, "soft", len(plan.Soft), "table", plan.TableSize)
}

// softGlobal reports whether the global name lives in the soft table.
func (c *Compiler) softGlobal(name string) (*zilg.GlobalBuilder, bool) {
	gb, ok := c.game.Global(name)
	return gb, ok && gb.Soft
}
