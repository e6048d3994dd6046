package zilp

import (
	"errors"
	"strings"

	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilb"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
	"github.com/fzipp/zil-compiler/zscii"
)

type evalState int

const (
	unevaluated evalState = iota
	evaluating
	evaluated
)

type routineDecl struct {
	form   *zils.Form
	name   string
	act    string // activation naming the routine itself
	params *zils.List
	body   []zils.Node
	clean  bool
	rb     *zilg.RoutineBuilder
	inits  []localInit
	names  []string // parameter and local names
}

// localInit is a default that must be computed by code when the routine
// starts.
type localInit struct {
	v        *zilg.Variable
	optional bool
	value    zils.Node
}

type objectDecl struct {
	form  *zils.Form
	name  string
	room  bool
	props []*zils.List
	ob    *zilg.ObjectBuilder
}

type globalDecl struct {
	form      *zils.Form
	name      string
	init      zils.Node
	byteSized bool
	gb        *zilg.GlobalBuilder
	state     evalState
}

type constDecl struct {
	pos   zils.Pos
	name  string
	init  zils.Node
	state evalState
	value zilg.Operand
}

type synonymDecl struct {
	pos     zils.Pos
	kind    string
	primary string
	words   []string
}

// Directives

var versionNames = map[string]int{"ZIP": 3, "EZIP": 4, "XZIP": 5, "YZIP": 6}

func parseVersion(n zils.Node) (int, bool) {
	switch n := n.(type) {
	case *zils.Fix:
		return n.Value, n.Value >= 3 && n.Value <= 8
	case *zils.Atom:
		v, ok := versionNames[n.Name]
		return v, ok
	}
	return 0, false
}

// scanVersion applies VERSION directives before anything else, since
// expansion and allocation depend on the target.
func (c *Compiler) scanVersion(nodes []zils.Node) {
	for _, n := range nodes {
		f, ok := n.(*zils.Form)
		if !ok || f.HeadName() != "VERSION" {
			continue
		}
		args := f.Args()
		if len(args) == 0 {
			c.malformed(f, "missing version")
			continue
		}
		v, ok := parseVersion(args[0])
		if !ok {
			c.malformed(f, "unknown version "+args[0].String())
			continue
		}
		c.version = v
		for _, a := range args[1:] {
			if name, _ := zils.AtomName(a); name == "TIME" {
				c.cfg.TimeStatus = true
			}
		}
	}
}

var topLevelForms = map[string]bool{
	"VERSION": true, "CONSTANT": true, "SETG": true, "GLOBAL": true,
	"ROUTINE": true, "OBJECT": true, "ROOM": true, "PROPDEF": true,
	"DIRECTIONS": true, "SYNONYM": true, "ADJ-SYNONYM": true,
	"VERB-SYNONYM": true, "PREP-SYNONYM": true, "DIR-SYNONYM": true,
	"BUZZ": true, "SYNTAX": true, "TELL-TOKENS": true,
	"COMPILATION-FLAG": true, "COMPILATION-FLAG-DEFAULT": true,
	"ORDER-FLAGS?": true, "CHRSET": true, "ROUTINE-FLAGS": true,
	"LANGUAGE": true,
}

// expand offers f to the expander. A failed expansion is reported once
// and stands for FALSE.
func (c *Compiler) expand(routine string, f *zils.Form) zils.Node {
	n, err := c.exp.Expand(zils.ExpandContext{Routine: routine, Version: c.version}, f)
	if err != nil {
		c.error(f.Pos(), diag.WithPos(f.Pos(), err))
		return zils.NewForm(f.Pos())
	}
	if n == nil {
		return f
	}
	return n
}

const maxExpansionDepth = 100

// expandTop expands top-level macro calls and flattens splices.
func (c *Compiler) expandTop(nodes []zils.Node) []zils.Node {
	var out []zils.Node
	var walk func(n zils.Node, depth int)
	walk = func(n zils.Node, depth int) {
		if s, ok := n.(*zils.Splice); ok {
			for _, e := range s.Elems {
				walk(e, depth)
			}
			return
		}
		f, ok := n.(*zils.Form)
		if !ok || topLevelForms[f.HeadName()] {
			out = append(out, n)
			return
		}
		if depth >= maxExpansionDepth {
			c.malformed(f, "macro expansion too deep")
			return
		}
		m := c.expand("", f)
		if m == zils.Node(f) {
			out = append(out, n)
			return
		}
		if zils.IsFalse(m) {
			return
		}
		walk(m, depth+1)
	}
	for _, n := range nodes {
		walk(n, 0)
	}
	return out
}

func flagName(n zils.Node) (string, bool) {
	switch n := n.(type) {
	case *zils.Atom:
		return n.Name, true
	case *zils.String:
		return strings.ToUpper(n.Value), true
	}
	return "", false
}

func truth(n zils.Node) bool {
	if zils.IsFalse(n) {
		return false
	}
	if fix, ok := n.(*zils.Fix); ok {
		return fix.Value != 0
	}
	return true
}

// directives applies the settings that must be known before the game is
// created.
func (c *Compiler) directives() {
	for _, n := range c.top {
		f, ok := n.(*zils.Form)
		if !ok {
			continue
		}
		args := f.Args()
		switch f.HeadName() {
		case "COMPILATION-FLAG", "COMPILATION-FLAG-DEFAULT":
			if len(args) == 0 {
				c.malformed(f, "missing flag name")
				continue
			}
			name, ok := flagName(args[0])
			if !ok {
				c.malformed(f, "flag name must be an atom or string")
				continue
			}
			value := true
			if len(args) > 1 {
				value = truth(args[1])
			}
			if _, set := c.flags[name]; set && f.HeadName() == "COMPILATION-FLAG-DEFAULT" {
				continue
			}
			c.flags[name] = value
		case "ORDER-FLAGS?":
			for i, a := range args {
				name, ok := zils.AtomName(a)
				if !ok {
					c.malformed(f, "flag names must be atoms")
					break
				}
				if i == 0 && name == "LAST" {
					continue
				}
				c.pinned = append(c.pinned, name)
			}
		case "CHRSET":
			c.chrset(f)
		case "LANGUAGE":
			if len(args) == 0 {
				c.malformed(f, "missing language name")
				continue
			}
			if name, ok := flagName(args[0]); ok {
				c.cfg.Language = name
			}
		case "SETG":
			if len(args) == 2 {
				if name, _ := zils.AtomName(args[0]); name == "SIBREAKS" {
					if s, ok := args[1].(*zils.String); ok {
						c.selfInsert = s.Value
					} else {
						c.malformed(f, "SIBREAKS must be a string")
					}
				}
			}
		}
	}
}

// chrset handles <CHRSET row "characters">.
func (c *Compiler) chrset(f *zils.Form) {
	args := f.Args()
	if len(args) != 2 {
		c.malformed(f, "want a row number and a string")
		return
	}
	row, ok1 := args[0].(*zils.Fix)
	s, ok2 := args[1].(*zils.String)
	if !ok1 || !ok2 || row.Value < 0 || row.Value > 2 {
		c.malformed(f, "want a row number 0 to 2 and a string")
		return
	}
	if len(c.cfg.Charset) != 3 {
		def := zscii.DefaultAlphabet(c.version)
		c.cfg.Charset = def[:]
	}
	c.cfg.Charset[row.Value] = s.Value
}

func (c *Compiler) newGame() {
	var alpha *zscii.Alphabet
	if len(c.cfg.Charset) > 0 {
		a, err := zscii.ParseAlphabet(c.cfg.Charset)
		if err != nil {
			c.errorf(zils.Pos{}, "charset: %v", err)
		} else if c.version < 5 {
			c.errorf(zils.Pos{}, "custom character sets need version 5 or later")
		} else {
			alpha = &a
		}
	}
	c.base = zilb.NewBase(c.version)
	c.game = zilg.NewGame(zilg.Options{
		Version:           c.version,
		Release:           c.cfg.Release,
		Serial:            c.cfg.Serial,
		Debug:             c.cfg.Debug,
		CompactVocabulary: c.cfg.CompactVocabulary,
		TimeStatus:        c.cfg.TimeStatus,
		Sound:             c.cfg.Sound,
		Language:          c.cfg.Language,
		Charset:           alpha,
		SelfInserting:     c.selfInsert,
	})
}

// Pre-registration

// declare registers the name and category of every top-level declaration
// so that later passes can refer to anything regardless of source order.
func (c *Compiler) declare() {
	for _, n := range c.top {
		f, ok := n.(*zils.Form)
		if !ok {
			c.warn(n.Pos(), warnUnknownTopLevel, "ignoring top-level %s", n)
			continue
		}
		switch head := f.HeadName(); head {
		case "VERSION", "COMPILATION-FLAG", "COMPILATION-FLAG-DEFAULT",
			"ORDER-FLAGS?", "CHRSET", "LANGUAGE":
		case "ROUTINE-FLAGS":
			c.routineFlags(f)
		case "ROUTINE":
			c.declareRoutine(f)
		case "OBJECT", "ROOM":
			c.declareObject(f, head == "ROOM")
		case "GLOBAL":
			c.declareGlobal(f)
		case "CONSTANT", "SETG":
			c.declareConstant(f)
		case "PROPDEF":
			c.propdefs = append(c.propdefs, f)
		case "DIRECTIONS":
			for _, a := range f.Args() {
				if name, ok := zils.AtomName(a); ok {
					c.directions = append(c.directions, name)
				} else {
					c.malformed(f, "directions must be atoms")
				}
			}
		case "SYNONYM", "ADJ-SYNONYM", "VERB-SYNONYM", "PREP-SYNONYM", "DIR-SYNONYM":
			c.declareSynonym(f)
		case "BUZZ":
			c.buzz = append(c.buzz, f.Args()...)
		case "SYNTAX":
			c.declareSyntax(f)
		case "TELL-TOKENS":
			c.declareTellTokens(f)
		default:
			c.warn(f.Pos(), warnUnknownTopLevel, "ignoring top-level form %s", formName(f))
		}
	}
	c.declareTellTokens(defaultTellTokens())
	for _, d := range c.routines {
		c.declareParams(d)
	}
}

func (c *Compiler) routineFlags(f *zils.Form) {
	c.cleanStack = c.cfg.CleanStack
	for _, a := range f.Args() {
		switch name, _ := zils.AtomName(a); name {
		case "CLEAN-STACK?":
			c.cleanStack = true
		default:
			c.malformed(f, "unknown routine flag "+a.String())
		}
	}
}

func (c *Compiler) declareRoutine(f *zils.Form) {
	args := f.Args()
	if len(args) < 2 {
		c.malformed(f, "want a name and a parameter list")
		return
	}
	name, ok := zils.AtomName(args[0])
	if !ok {
		c.malformed(f, "routine name must be an atom")
		return
	}
	d := &routineDecl{form: f, name: name, clean: c.cleanStack}
	rest := args[1:]
	if act, ok := zils.AtomName(rest[0]); ok {
		d.act = act
		rest = rest[1:]
	}
	if len(rest) == 0 {
		c.malformed(f, "missing parameter list")
		return
	}
	switch p := rest[0].(type) {
	case *zils.List:
		d.params = p
	case *zils.Form:
		if !zils.IsFalse(p) {
			c.malformed(f, "parameter list must be a list")
			return
		}
		d.params = &zils.List{At: p.At}
	default:
		c.malformed(f, "parameter list must be a list")
		return
	}
	d.body = rest[1:]
	entry := name == c.cfg.Entry
	rb, err := c.game.DefineRoutine(name, entry, d.clean)
	if errors.Is(err, zilg.ErrMultipleEntries) {
		c.fatal(f.Pos(), err)
	}
	if !c.check(f.Pos(), err) {
		return
	}
	rb.Pos = c.debugLine(f.Pos())
	d.rb = rb
	c.routines = append(c.routines, d)
}

type paramMode int

const (
	paramRequired paramMode = iota
	paramOptional
	paramAux
)

// declareParams defines the parameters and locals of a routine so that
// calls compiled before the routine body know its arity.
func (c *Compiler) declareParams(d *routineDecl) {
	mode := paramRequired
	wantAct := false
	for _, n := range d.params.Elems {
		n = zils.StripDecl(n)
		if wantAct {
			act, ok := zils.AtomName(n)
			if !ok {
				c.malformed(n, `"NAME" must be followed by an atom`)
			}
			d.act = act
			wantAct = false
			continue
		}
		var name string
		var def zils.Node
		switch n := n.(type) {
		case *zils.String:
			switch n.Value {
			case "OPT", "OPTIONAL":
				mode = paramOptional
			case "AUX", "EXTRA":
				mode = paramAux
			case "NAME":
				wantAct = true
			default:
				c.malformed(n, "unsupported parameter section "+n.String())
			}
			continue
		case *zils.Atom:
			name = n.Name
		case *zils.List:
			if len(n.Elems) != 2 {
				c.malformed(n, "a parameter with a default wants a name and a value")
				continue
			}
			a, ok := zils.StripDecl(n.Elems[0]).(*zils.Atom)
			if !ok {
				c.malformed(n, "parameter name must be an atom")
				continue
			}
			if mode == paramRequired {
				c.malformed(n, "required parameter "+a.Name+" cannot have a default")
				continue
			}
			name, def = a.Name, n.Elems[1]
		default:
			c.malformed(n, "unexpected "+n.String()+" in parameter list")
			continue
		}
		c.defineParam(d, mode, name, def, n.Pos())
	}
}

func (c *Compiler) defineParam(d *routineDecl, mode paramMode, name string, def zils.Node, pos zils.Pos) {
	var op zilg.Operand
	var code zils.Node
	if def != nil {
		v, err := c.constOperand(def)
		switch {
		case err == nil:
			op = v
		case c.version >= 5:
			code = def
		default:
			c.error(pos, &diag.NonConstantInitializerError{What: "default of " + name})
			op = c.game.Zero()
		}
	}
	var v *zilg.Variable
	var err error
	switch mode {
	case paramRequired:
		v, err = d.rb.DefineRequiredParameter(name)
	case paramOptional:
		v, err = d.rb.DefineOptionalParameter(name, op)
	default:
		v, err = d.rb.DefineLocal(name, op)
	}
	if !c.check(pos, err) {
		return
	}
	d.names = append(d.names, name)
	if code != nil {
		d.inits = append(d.inits, localInit{v: v, optional: mode == paramOptional, value: code})
	}
}

func (c *Compiler) declareObject(f *zils.Form, room bool) {
	args := f.Args()
	if len(args) == 0 {
		c.malformed(f, "missing object name")
		return
	}
	name, ok := zils.AtomName(args[0])
	if !ok {
		c.malformed(f, "object name must be an atom")
		return
	}
	d := &objectDecl{form: f, name: name, room: room}
	for _, a := range args[1:] {
		l, ok := a.(*zils.List)
		if !ok || len(l.Elems) == 0 {
			c.malformed(a, "object properties must be non-empty lists")
			continue
		}
		if _, ok := zils.AtomName(l.Elems[0]); !ok {
			c.malformed(l, "property name must be an atom")
			continue
		}
		d.props = append(d.props, l)
	}
	num, err := c.base.DefineObject(zilg.Sanitize(name))
	if err != nil {
		c.fatal(f.Pos(), err)
	}
	ob, err := c.game.DefineObject(name, num)
	if !c.check(f.Pos(), err) {
		return
	}
	ob.Pos = c.debugLine(f.Pos())
	ob.End = ob.Pos
	d.ob = ob
	c.objects = append(c.objects, d)
}

func (c *Compiler) declareGlobal(f *zils.Form) {
	args := f.Args()
	if len(args) == 0 {
		c.malformed(f, "missing global name")
		return
	}
	d := &globalDecl{form: f}
	first := args[0]
	if a, ok := first.(*zils.Adecl); ok {
		if decl, _ := zils.AtomName(a.Decl); decl == "BYTE" {
			d.byteSized = true
		}
		first = a.Value
	}
	name, ok := zils.AtomName(first)
	if !ok {
		c.malformed(f, "global name must be an atom")
		return
	}
	d.name = name
	if len(args) > 1 {
		d.init = args[1]
	}
	for _, a := range args[2:] {
		if decl, _ := zils.AtomName(a); decl == "BYTE" {
			d.byteSized = true
		}
	}
	gb, err := c.game.DefineGlobal(name)
	if !c.check(f.Pos(), err) {
		return
	}
	gb.Pos = c.debugLine(f.Pos())
	d.gb = gb
	c.globals = append(c.globals, d)
	c.globalsBy[gb.Name] = d
}

func (c *Compiler) declareConstant(f *zils.Form) {
	args := f.Args()
	if len(args) != 2 {
		c.malformed(f, "want a name and a value")
		return
	}
	name, ok := zils.AtomName(zils.StripDecl(args[0]))
	if !ok {
		c.malformed(f, "constant name must be an atom")
		return
	}
	if f.HeadName() == "SETG" && name == "SIBREAKS" {
		return
	}
	if _, err := c.game.DefineConstant(name, nil); !c.check(f.Pos(), err) {
		return
	}
	d := &constDecl{pos: f.Pos(), name: zilg.Sanitize(name), init: args[1]}
	c.constants = append(c.constants, d)
	c.constsBy[d.name] = d
}

func wordText(n zils.Node) (string, bool) {
	switch n := n.(type) {
	case *zils.Atom:
		return strings.ToLower(n.Name), true
	case *zils.String:
		return strings.ToLower(n.Value), true
	}
	return "", false
}

func (c *Compiler) declareSynonym(f *zils.Form) {
	args := f.Args()
	if len(args) < 2 {
		c.malformed(f, "want a word and at least one synonym")
		return
	}
	d := &synonymDecl{pos: f.Pos(), kind: f.HeadName()}
	for i, a := range args {
		w, ok := wordText(a)
		if !ok {
			c.malformed(a, "synonyms must be atoms or strings")
			return
		}
		if i == 0 {
			d.primary = w
		} else {
			d.words = append(d.words, w)
		}
	}
	c.synonyms = append(c.synonyms, d)
}

// Allocation

// allocate numbers properties and flags. Directions get the highest
// property numbers, pinned and parser flags the highest flag numbers;
// everything else follows in declaration order.
func (c *Compiler) allocate() {
	for _, dir := range c.directions {
		c.defineProperty(zils.Pos{}, dir)
	}
	if len(c.directions) > 0 {
		c.builtinConstant("LOW-DIRECTION", c.game.Number(c.base.LowestProperty()))
		c.exitConstants()
	}
	for _, name := range c.pinned {
		c.defineFlag(zils.Pos{}, name)
	}
	for _, s := range c.syntaxes {
		for _, fl := range s.finds {
			if fl != "" {
				c.defineFlag(s.pos, fl)
			}
		}
	}
	for _, n := range c.top {
		f, ok := n.(*zils.Form)
		if !ok {
			continue
		}
		switch f.HeadName() {
		case "OBJECT", "ROOM":
			c.allocateObject(f)
		case "PROPDEF":
			if len(f.Args()) > 0 {
				if name, ok := zils.AtomName(f.Args()[0]); ok {
					c.defineProperty(f.Pos(), name)
					continue
				}
			}
			c.malformed(f, "missing property name")
		}
	}
	c.log.Debug("allocated", "properties", len(c.base.Properties()), "flags", len(c.base.Flags()))
}

// propertyKinds are object property lists that are not ordinary
// properties.
var propertyKinds = map[string]bool{"DESC": true, "FLAGS": true, "LOC": true}

func (c *Compiler) allocateObject(f *zils.Form) {
	for _, a := range f.Args()[1:] {
		l, ok := a.(*zils.List)
		if !ok || len(l.Elems) == 0 {
			continue
		}
		name, ok := zils.AtomName(l.Elems[0])
		if !ok {
			continue
		}
		switch {
		case name == "FLAGS":
			for _, fl := range l.Elems[1:] {
				if fn, ok := zils.AtomName(fl); ok {
					c.defineFlag(l.Pos(), fn)
				} else {
					c.malformed(l, "flags must be atoms")
				}
			}
		case propertyKinds[name]:
		case name == "IN" && !c.isExit(l):
		default:
			c.defineProperty(l.Pos(), name)
		}
	}
}

// isExit reports whether l is an exit, (DIR ...) with DIR a direction.
// (IN ROOM) is a location unless IN is a direction and more follows.
func (c *Compiler) isExit(l *zils.List) bool {
	name, _ := zils.AtomName(l.Elems[0])
	if !c.isDirection(name) {
		return false
	}
	if name == "IN" && len(l.Elems) == 2 {
		if _, ok := l.Elems[1].(*zils.Atom); ok {
			return false
		}
	}
	return true
}

func (c *Compiler) isDirection(name string) bool {
	for _, d := range c.directions {
		if d == name {
			return true
		}
	}
	return false
}

func (c *Compiler) defineProperty(pos zils.Pos, name string) *zilg.PropertyBuilder {
	if p, ok := c.game.Property(name); ok {
		return p
	}
	num, err := c.base.DefineProperty(zilg.Sanitize(name))
	if err != nil {
		c.fatal(pos, err)
	}
	p, err := c.game.DefineProperty(name, num)
	if !c.check(pos, err) {
		return nil
	}
	return p
}

func (c *Compiler) defineFlag(pos zils.Pos, name string) *zilg.FlagBuilder {
	if fb, ok := c.game.Flag(name); ok {
		return fb
	}
	num, err := c.base.DefineFlag(zilg.Sanitize(name))
	if err != nil {
		c.fatal(pos, err)
	}
	fb, err := c.game.DefineFlag(name, num)
	if !c.check(pos, err) {
		return nil
	}
	return fb
}

// builtinConstant defines a constant the compiler provides unless the
// program declares it itself.
func (c *Compiler) builtinConstant(name string, value zilg.Operand) zilg.Operand {
	if op, ok := c.game.Constant(name); ok {
		return op
	}
	op, err := c.game.DefineConstant(name, value)
	if !c.check(zils.Pos{}, err) {
		return c.game.Zero()
	}
	return op
}

// exitConstants defines the sizes of the exit shapes and the offsets of
// their fields for GET and GETB.
func (c *Compiler) exitConstants() {
	sizes := []int{1, 2, 3, 4, 5}
	cexitFlag := 1
	dexitObj, dexitStr := 1, 1
	if c.version >= 4 {
		sizes = []int{2, 3, 4, 5, 6}
		cexitFlag = 4
		dexitStr = 2
	}
	for i, name := range []string{"UEXIT", "NEXIT", "FEXIT", "CEXIT", "DEXIT"} {
		c.builtinConstant(name, c.game.Number(sizes[i]))
	}
	for _, kv := range []struct {
		name  string
		value int
	}{
		{"REXIT", 0}, {"NEXITSTR", 0}, {"FEXITFCN", 0},
		{"CEXITFLAG", cexitFlag}, {"CEXITSTR", 1},
		{"DEXITOBJ", dexitObj}, {"DEXITSTR", dexitStr},
	} {
		c.builtinConstant(kv.name, c.game.Number(kv.value))
	}
}
