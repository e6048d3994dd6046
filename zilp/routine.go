package zilp

import (
	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

// mode says what the code of an expression must do with its result.
type mode int

const (
	modeValue mode = iota // produce an operand
	modeVoid              // discard it
	modeCond              // branch on its truth
)

// want is the context an expression is compiled in.
type want struct {
	mode     mode
	dest     *zilg.Variable // value mode: preferred location, nil for any
	label    zilg.Label     // cond mode: branch target
	polarity bool           // cond mode: branch when the value is true
}

// block is an enclosing PROG, REPEAT, BIND or loop that RETURN and AGAIN
// can leave or restart.
type block struct {
	name     string
	again    zilg.Label
	ret      zilg.Label
	w        want // how RETURN delivers its value
	explicit bool // only left by a RETURN naming it
}

// routineCompiler compiles the body of one routine.
type routineCompiler struct {
	c  *Compiler
	d  *routineDecl
	rb *zilg.RoutineBuilder

	scope  map[string]*zilg.Variable
	busy   []*zilg.Variable // temporaries in use
	free   []*zilg.Variable // locals available for reuse
	blocks []*block
	start  zilg.Label
	depth  int
}

func newRoutineCompiler(c *Compiler, d *routineDecl) *routineCompiler {
	rc := &routineCompiler{
		c:     c,
		d:     d,
		rb:    d.rb,
		scope: make(map[string]*zilg.Variable),
	}
	for _, name := range d.names {
		if v, ok := d.rb.Local(name); ok {
			rc.scope[name] = v
		}
	}
	rc.start = rc.rb.NewLabel()
	return rc
}

func (c *Compiler) compileRoutines() {
	for i, d := range c.routines {
		c.compileRoutine(d)
		if c.progress != nil {
			c.progress(i+1, len(c.routines))
		}
	}
}

func (c *Compiler) compileRoutine(d *routineDecl) {
	rc := newRoutineCompiler(c, d)
	rc.prologue()
	rc.rb.MarkLabel(rc.start)
	op := rc.seq(d.body, want{mode: modeValue})
	if rc.rb.Reachable() {
		rc.rb.EmitReturn(op)
	}
	rc.rb.Finish()
	c.log.Debug("compiled routine", "name", d.name, "locals", d.rb.LocalCount())
}

// prologue sets defaults that the header cannot carry: from version 5
// all of them, and computed defaults in any version that allows them.
func (rc *routineCompiler) prologue() {
	opt, aux := rc.rb.Defaults()
	for _, l := range opt {
		skip := rc.rb.NewLabel()
		rc.rb.EmitBranch(zilg.OpAssigned, skip, true, l.Var)
		rc.rb.EmitSet(l.Var, l.Default)
		rc.rb.MarkLabel(skip)
	}
	for _, l := range aux {
		rc.rb.EmitSet(l.Var, l.Default)
	}
	for _, in := range rc.d.inits {
		if !in.optional {
			rc.assign(in.v, in.value, want{mode: modeVoid})
			continue
		}
		skip := rc.rb.NewLabel()
		rc.rb.EmitBranch(zilg.OpAssigned, skip, true, in.v)
		rc.assign(in.v, in.value, want{mode: modeVoid})
		rc.rb.MarkLabel(skip)
	}
}

// Entry points

func (rc *routineCompiler) value(n zils.Node, dest *zilg.Variable) zilg.Operand {
	return rc.expr(n, want{mode: modeValue, dest: dest})
}

func (rc *routineCompiler) stmt(n zils.Node) {
	rc.expr(n, want{mode: modeVoid})
}

func (rc *routineCompiler) cond(n zils.Node, l zilg.Label, polarity bool) {
	rc.expr(n, want{mode: modeCond, label: l, polarity: polarity})
}

// expr compiles n for w. It returns an operand only in value mode.
func (rc *routineCompiler) expr(n zils.Node, w want) zilg.Operand {
	switch n := n.(type) {
	case *zils.Form:
		return rc.form(n, w)
	case *zils.Adecl:
		return rc.expr(n.Value, w)
	case *zils.Atom:
		return rc.fromValue(rc.atom(n), w)
	case *zils.List:
		rc.c.malformed(n, "a list cannot be evaluated")
		return rc.fromValue(rc.c.game.Zero(), w)
	case *zils.Splice:
		return rc.splice(n, w)
	}
	op, err := rc.c.constOperand(n)
	if err != nil {
		rc.c.error(n.Pos(), err)
		op = rc.c.game.Zero()
	}
	return rc.fromValue(op, w)
}

// atom evaluates a bare atom: T, or the name of a constant value.
func (rc *routineCompiler) atom(a *zils.Atom) zilg.Operand {
	if a.Name == "T" || a.Name == "ELSE" {
		return rc.c.game.One()
	}
	if op, ok := rc.c.nameOperand(a.Name); ok {
		return op
	}
	if _, ok := rc.scope[a.Name]; ok {
		rc.c.malformed(a, "use ."+a.Name+" to read local "+a.Name)
	} else {
		rc.c.error(a.Pos(), undefined("name", a.Name))
	}
	return rc.c.game.Zero()
}

// fromValue delivers an operand that has already been computed.
func (rc *routineCompiler) fromValue(op zilg.Operand, w want) zilg.Operand {
	switch w.mode {
	case modeVoid:
		if zilg.IsStack(op) {
			rc.rb.EmitPopStack()
		}
		return nil
	case modeCond:
		rc.branchOn(op, w.label, w.polarity)
		return nil
	}
	return op
}

// truth returns the truth of op if it is known at compile time.
func (rc *routineCompiler) truth(op zilg.Operand) (value, known bool) {
	switch op := op.(type) {
	case *zilg.Number:
		return op.Value != 0, true
	case *zilg.Text:
		return true, true
	case *zilg.Symbol:
		switch op.Kind {
		case zilg.SymRoutine, zilg.SymObject, zilg.SymTable, zilg.SymWord, zilg.SymGlobal:
			return true, true
		}
		if n, ok := rc.c.number(op); ok {
			return n != 0, true
		}
	}
	return false, false
}

func (rc *routineCompiler) branchOn(op zilg.Operand, l zilg.Label, polarity bool) {
	if t, known := rc.truth(op); known {
		if t == polarity {
			rc.rb.EmitJump(l)
		}
		return
	}
	rc.rb.EmitBranch(zilg.OpZero, l, !polarity, op)
}

// place moves op into dest unless it is already there.
func (rc *routineCompiler) place(op zilg.Operand, dest *zilg.Variable) *zilg.Variable {
	if op == nil || op == zilg.Operand(dest) || !rc.rb.Reachable() {
		return dest
	}
	rc.rb.EmitSet(dest, op)
	return dest
}

func destOrStack(dest *zilg.Variable) *zilg.Variable {
	if dest == nil {
		return zilg.Stack
	}
	return dest
}

// materialize turns a test into the value 1 or 0 in dest.
func (rc *routineCompiler) materialize(dest *zilg.Variable, test func(l zilg.Label, polarity bool)) zilg.Operand {
	dest = destOrStack(dest)
	yes, end := rc.rb.NewLabel(), rc.rb.NewLabel()
	test(yes, true)
	rc.place(rc.c.game.Zero(), dest)
	rc.rb.EmitJump(end)
	rc.rb.MarkLabel(yes)
	rc.place(rc.c.game.One(), dest)
	rc.rb.MarkLabel(end)
	return dest
}

// unreachable is the result of a form that never completes.
func (rc *routineCompiler) unreachable(w want) zilg.Operand {
	if w.mode == modeValue {
		return rc.c.game.Zero()
	}
	return nil
}

// seq compiles statements, the last one for w.
func (rc *routineCompiler) seq(body []zils.Node, w want) zilg.Operand {
	if len(body) == 0 {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	for _, n := range body[:len(body)-1] {
		rc.rb.MarkSequencePoint(rc.c.debugLine(n.Pos()))
		if _, ok := n.(*zils.Form); !ok {
			rc.c.warn(n.Pos(), warnUnusedValue, "value of %s is not used", n)
			continue
		}
		m := rc.mark()
		rc.stmt(n)
		rc.release(m)
	}
	last := body[len(body)-1]
	rc.rb.MarkSequencePoint(rc.c.debugLine(last.Pos()))
	return rc.expr(last, w)
}

// splice compiles the forms of a macro expansion like a BIND without
// bindings that only a named RETURN can leave.
func (rc *routineCompiler) splice(s *zils.Splice, w want) zilg.Operand {
	return rc.runBlock("", nil, s.Elems, w, false, true)
}

// Temporaries

// temp returns a local that is free until the matching release.
func (rc *routineCompiler) temp() *zilg.Variable {
	var v *zilg.Variable
	if n := len(rc.free); n > 0 {
		v, rc.free = rc.free[n-1], rc.free[:n-1]
	} else {
		var err error
		v, err = rc.rb.AddSpareLocal("?TMP")
		if !rc.c.check(rc.d.form.Pos(), err) {
			return zilg.Stack
		}
	}
	rc.busy = append(rc.busy, v)
	return v
}

// tryTemp is temp without reporting an error when the routine has no
// room for another local.
func (rc *routineCompiler) tryTemp() (*zilg.Variable, bool) {
	if len(rc.free) == 0 && !rc.rb.HasSpareSlot() {
		return nil, false
	}
	return rc.temp(), true
}

func (rc *routineCompiler) mark() int { return len(rc.busy) }

func (rc *routineCompiler) release(m int) {
	rc.free = append(rc.free, rc.busy[m:]...)
	rc.busy = rc.busy[:m]
}

// Scopes

type scopeFrame struct {
	names []string
	prev  []*zilg.Variable
	vars  []*zilg.Variable
}

// bind makes name a fresh local in the innermost scope.
func (rc *routineCompiler) bind(fr *scopeFrame, name string, pos zils.Pos) *zilg.Variable {
	prev, shadowed := rc.scope[name]
	if shadowed {
		rc.c.warn(pos, warnDoubleBinding, "local %s shadows an outer binding", name)
	}
	v := rc.spare(name)
	fr.names = append(fr.names, name)
	fr.prev = append(fr.prev, prev)
	fr.vars = append(fr.vars, v)
	rc.scope[name] = v
	return v
}

// spare takes a free local, preferring one that already has the name.
func (rc *routineCompiler) spare(name string) *zilg.Variable {
	want := zilg.Sanitize(name)
	for i, v := range rc.free {
		if v.Name == want {
			rc.free = append(rc.free[:i], rc.free[i+1:]...)
			return v
		}
	}
	if n := len(rc.free); n > 0 {
		v := rc.free[n-1]
		rc.free = rc.free[:n-1]
		return v
	}
	v, err := rc.rb.AddSpareLocal(name)
	if !rc.c.check(rc.d.form.Pos(), err) {
		return zilg.Stack
	}
	return v
}

func (rc *routineCompiler) closeScope(fr *scopeFrame) {
	for i := len(fr.names) - 1; i >= 0; i-- {
		if fr.prev[i] != nil {
			rc.scope[fr.names[i]] = fr.prev[i]
		} else {
			delete(rc.scope, fr.names[i])
		}
		if !zilg.IsStack(fr.vars[i]) {
			rc.free = append(rc.free, fr.vars[i])
		}
	}
}

// bindList binds the names of a PROG, REPEAT or BIND binding list. Each
// initial value is computed before its name is bound.
func (rc *routineCompiler) bindList(fr *scopeFrame, l *zils.List) {
	if l == nil {
		return
	}
	for _, n := range l.Elems {
		n = zils.StripDecl(n)
		switch n := n.(type) {
		case *zils.String:
			if n.Value != "AUX" && n.Value != "EXTRA" {
				rc.c.malformed(n, "unexpected "+n.String()+" in binding list")
			}
		case *zils.Atom:
			rc.bind(fr, n.Name, n.Pos())
		case *zils.List:
			if len(n.Elems) != 2 {
				rc.c.malformed(n, "a binding wants a name and a value")
				continue
			}
			a, ok := zils.StripDecl(n.Elems[0]).(*zils.Atom)
			if !ok {
				rc.c.malformed(n, "binding name must be an atom")
				continue
			}
			op := rc.value(n.Elems[1], nil)
			v := rc.bind(fr, a.Name, a.Pos())
			rc.place(op, v)
		default:
			rc.c.malformed(n, "unexpected "+n.String()+" in binding list")
		}
	}
}

// variable resolves a name used as a variable operand.
func (rc *routineCompiler) variable(name string) (*zilg.Variable, bool) {
	if v, ok := rc.scope[name]; ok {
		return v, true
	}
	if gb, ok := rc.c.game.Global(name); ok && gb.Var != nil {
		return gb.Var, true
	}
	return nil, false
}

// varOperand resolves the first operand of an instruction that names a
// variable: X or 'X.
func (rc *routineCompiler) varOperand(n zils.Node) (*zilg.Variable, bool) {
	n = zils.StripDecl(n)
	if f, ok := n.(*zils.Form); ok && f.HeadName() == "QUOTE" && len(f.Args()) == 1 {
		n = f.Args()[0]
	}
	name, ok := zils.AtomName(n)
	if !ok {
		if _, isLocal := zils.LocalName(n); isLocal {
			rc.c.malformed(n, "indirect variable references are not supported")
			return nil, false
		}
		rc.c.malformed(n, "variable name expected")
		return nil, false
	}
	v, ok := rc.variable(name)
	if !ok {
		rc.c.error(n.Pos(), undefined("variable", name))
	}
	return v, ok
}

// Blocks

// runBlock compiles a PROG, REPEAT or BIND body in a new scope.
func (rc *routineCompiler) runBlock(name string, bindings *zils.List, body []zils.Node, w want, loop, explicit bool) zilg.Operand {
	bw := blockWant(w)
	fr := &scopeFrame{}
	rc.bindList(fr, bindings)
	b := &block{
		name:     name,
		again:    rc.rb.NewLabel(),
		ret:      rc.rb.NewLabel(),
		w:        bw,
		explicit: explicit,
	}
	rc.blocks = append(rc.blocks, b)
	rc.rb.MarkLabel(b.again)
	if loop {
		rc.seq(body, want{mode: modeVoid})
		if rc.rb.Reachable() {
			rc.rb.EmitJump(b.again)
		}
	} else {
		op := rc.seq(body, bw)
		if bw.mode == modeValue {
			rc.place(op, bw.dest)
		}
	}
	rc.blocks = rc.blocks[:len(rc.blocks)-1]
	rc.rb.MarkLabel(b.ret)
	rc.closeScope(fr)
	return rc.endBlock(w, bw)
}

// findBlock returns the block an unnamed or named RETURN or AGAIN refers
// to, or nil for the routine itself.
func (rc *routineCompiler) findBlock(name string) (*block, bool) {
	for i := len(rc.blocks) - 1; i >= 0; i-- {
		b := rc.blocks[i]
		if name == "" && !b.explicit || name != "" && b.name == name {
			return b, true
		}
	}
	return nil, name == "" || name == rc.d.act
}

// Calls

// simple reports whether n can be evaluated without emitting code.
func (rc *routineCompiler) simple(n zils.Node) bool {
	n = zils.StripDecl(n)
	f, ok := n.(*zils.Form)
	if !ok {
		return true
	}
	if zils.IsFalse(f) {
		return true
	}
	switch f.HeadName() {
	case "QUOTE":
		return true
	case "LVAL":
		return true
	case "GVAL":
		if name, ok := zils.GlobalName(f); ok {
			gb, isGlobal := rc.c.game.Global(name)
			return !isGlobal || !gb.Soft
		}
	}
	return false
}

// operands evaluates instruction arguments. The last argument that needs
// code goes through the stack; earlier ones are kept in temporaries so
// that the stack order is right.
func (rc *routineCompiler) operands(args []zils.Node) []zilg.Operand {
	last := -1
	for i, a := range args {
		if !rc.simple(a) {
			last = i
		}
	}
	ops := make([]zilg.Operand, len(args))
	for i, a := range args {
		if rc.simple(a) || i == last {
			ops[i] = rc.value(a, nil)
			continue
		}
		t := rc.temp()
		op := rc.value(a, t)
		if _, isVar := op.(*zilg.Variable); isVar {
			op = rc.place(op, t)
		}
		ops[i] = op
	}
	return ops
}

func (rc *routineCompiler) call(f *zils.Form, callee *zilg.RoutineBuilder, w want) zilg.Operand {
	args := f.Args()
	if len(args) < callee.MinArgs() || len(args) > callee.MaxArgs() {
		rc.c.error(f.Pos(), &diag.ArityMismatchError{
			Routine: f.HeadName(), Got: len(args), Min: callee.MinArgs(), Max: callee.MaxArgs(),
		})
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	m := rc.mark()
	defer rc.release(m)
	return rc.emitCall(f, callee.Operand(), rc.operands(args), w)
}

func (rc *routineCompiler) emitCall(f *zils.Form, routine zilg.Operand, args []zilg.Operand, w want) zilg.Operand {
	if limit := zilg.MaxCallArgs(rc.c.version); len(args) > limit {
		rc.c.error(f.Pos(), &diag.LimitExceededError{Limit: "call arguments", Max: limit, Got: len(args)})
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	switch w.mode {
	case modeVoid:
		rc.rb.EmitCall(routine, args, nil)
		return nil
	case modeCond:
		rc.rb.EmitCall(routine, args, zilg.Stack)
		rc.branchOn(zilg.Stack, w.label, w.polarity)
		return nil
	}
	dest := destOrStack(w.dest)
	rc.rb.EmitCall(routine, args, dest)
	return dest
}

// Dispatch

type controlFunc func(rc *routineCompiler, f *zils.Form, w want) zilg.Operand

// controlForms are the forms with their own compilers. Filled in init,
// since the compilers refer back to the dispatcher.
var controlForms map[string]controlFunc

// form compiles a form: macro expansion first, then control forms, user
// routines and builtins.
func (rc *routineCompiler) form(f *zils.Form, w want) zilg.Operand {
	g := rc.c.game
	if zils.IsFalse(f) {
		return rc.fromValue(g.Zero(), w)
	}
	head, ok := f.Elems[0].(*zils.Atom)
	if !ok {
		rc.c.malformed(f, "form head must be an atom")
		return rc.fromValue(g.Zero(), w)
	}
	if n := rc.c.expand(rc.d.name, f); n != zils.Node(f) {
		if rc.depth >= maxExpansionDepth {
			rc.c.malformed(f, "macro expansion too deep")
			return rc.fromValue(g.Zero(), w)
		}
		rc.depth++
		defer func() { rc.depth-- }()
		return rc.expr(n, w)
	}
	if cf, ok := controlForms[head.Name]; ok {
		return cf(rc, f, w)
	}
	if callee, ok := g.Routine(head.Name); ok {
		return rc.call(f, callee, w)
	}
	if op, ok := rc.builtin(f, head.Name, w); ok {
		return op
	}
	rc.c.error(f.Pos(), undefined("routine", head.Name))
	return rc.fromValue(g.Zero(), w)
}

// builtin compiles a builtin operation. ok is false if name is none.
func (rc *routineCompiler) builtin(f *zils.Form, name string, w want) (op zilg.Operand, ok bool) {
	args := f.Args()
	b, found := lookupBuiltin(name, rc.c.version, len(args))
	if !found {
		return nil, false
	}
	if b == nil {
		rc.c.malformed(f, "wrong number of arguments or not available in this version")
		return rc.fromValue(rc.c.game.Zero(), w), true
	}
	m := rc.mark()
	defer rc.release(m)
	var ops []zilg.Operand
	if b.varArg {
		v, ok := rc.varOperand(args[0])
		if !ok {
			return rc.fromValue(rc.c.game.Zero(), w), true
		}
		ops = append([]zilg.Operand{v}, rc.operands(args[1:])...)
	} else {
		ops = rc.operands(args)
	}
	s, _ := b.pick(w.mode)
	return rc.applyShape(b, s, ops, w), true
}

func (rc *routineCompiler) applyShape(b *builtin, s shape, ops []zilg.Operand, w want) zilg.Operand {
	switch w.mode {
	case modeValue:
		dest := destOrStack(w.dest)
		switch s {
		case shapeValue:
			return b.value(rc, ops, dest)
		case shapeValuePredicate:
			l := rc.rb.NewLabel()
			b.valuePred(rc, ops, dest, l, true)
			rc.rb.MarkLabel(l)
			return dest
		case shapePredicate:
			return rc.materialize(w.dest, func(l zilg.Label, polarity bool) {
				b.pred(rc, ops, l, polarity)
			})
		}
		b.void(rc, ops)
		return rc.c.game.One()

	case modeVoid:
		switch s {
		case shapeVoid:
			b.void(rc, ops)
		case shapePredicate:
			l := rc.rb.NewLabel()
			b.pred(rc, ops, l, true)
			rc.rb.MarkLabel(l)
		case shapeValue:
			rc.fromValue(b.value(rc, ops, zilg.Stack), w)
		case shapeValuePredicate:
			l := rc.rb.NewLabel()
			b.valuePred(rc, ops, zilg.Stack, l, true)
			rc.rb.MarkLabel(l)
			rc.rb.EmitPopStack()
		}
		return nil
	}

	switch s {
	case shapePredicate:
		b.pred(rc, ops, w.label, w.polarity)
	case shapeValue:
		rc.branchOn(b.value(rc, ops, zilg.Stack), w.label, w.polarity)
	case shapeValuePredicate:
		// Without a clean stack the value goes to a temporary so the
		// branch can be used; the stack must not grow in loops.
		if !rc.d.clean {
			if v, ok := rc.tryTemp(); ok {
				b.valuePred(rc, ops, v, w.label, w.polarity)
				return nil
			}
		}
		l := rc.rb.NewLabel()
		b.valuePred(rc, ops, zilg.Stack, l, true)
		rc.rb.MarkLabel(l)
		rc.branchOn(zilg.Stack, w.label, w.polarity)
	case shapeVoid:
		b.void(rc, ops)
		if w.polarity {
			rc.rb.EmitJump(w.label)
		}
	}
	return nil
}
