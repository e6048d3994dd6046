package zilp

import (
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

func init() {
	controlForms = map[string]controlFunc{
		"COND":           compileCond,
		"AND":            compileAnd,
		"OR":             compileOr,
		"NOT":            compileNot,
		"PROG":           compileProg,
		"REPEAT":         compileProg,
		"BIND":           compileProg,
		"RETURN":         compileReturn,
		"AGAIN":          compileAgain,
		"DO":             compileDo,
		"MAP-CONTENTS":   compileMapContents,
		"MAP-DIRECTIONS": compileMapDirections,
		"LVAL":           compileLval,
		"GVAL":           compileGval,
		"SET":            compileSet,
		"SETG":           compileSetg,
		"VERSION?":       compileVersion,
		"IFFLAG":         compileIfflag,
		"GASSIGNED?":     compileGassigned,
		"CHTYPE":         compileChtype,
		"QUOTE":          compileQuote,
		"TABLE":          compileTable,
		"LTABLE":         compileTable,
		"PTABLE":         compileTable,
		"PLTABLE":        compileTable,
		"ITABLE":         compileTable,
		"PRINTI":         compilePrinti,
		"PRINTR":         compilePrinti,
		"TELL":           compileTell,
		"APPLY":          compileApply,
	}
}

// alwaysTrue reports whether a COND test is known to succeed: ELSE, T or
// any literal. A literal is never FALSE, since FALSE is the form <>; this
// includes 0.
func alwaysTrue(n zils.Node) bool {
	switch n := zils.StripDecl(n).(type) {
	case *zils.Atom:
		return n.Name == "ELSE" || n.Name == "T"
	case *zils.Fix, *zils.String, *zils.Char:
		return true
	}
	return false
}

func compileCond(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	clauses := f.Args()
	if len(clauses) == 0 {
		rc.c.malformed(f, "missing clauses")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	out := w
	if w.mode == modeValue {
		out.dest = destOrStack(w.dest)
	}
	end := rc.rb.NewLabel()
	hasElse := false
	for i, cl := range clauses {
		l, ok := cl.(*zils.List)
		if !ok || len(l.Elems) == 0 {
			rc.c.malformed(cl, "clauses must be non-empty lists")
			continue
		}
		test, body := l.Elems[0], l.Elems[1:]
		if alwaysTrue(test) {
			if i < len(clauses)-1 {
				rc.c.warn(clauses[i+1].Pos(), warnClauseAfterElse, "clauses after an ELSE clause are never reached")
			}
			hasElse = true
			if len(body) == 0 {
				body = []zils.Node{test}
			}
			rc.deliver(rc.seq(body, out), out)
			break
		}
		m := rc.mark()
		next := rc.rb.NewLabel()
		if len(body) == 0 {
			rc.condValue(test, out, end, next)
		} else {
			rc.cond(test, next, false)
			rc.deliver(rc.seq(body, out), out)
			if rc.rb.Reachable() {
				rc.rb.EmitJump(end)
			}
		}
		rc.rb.MarkLabel(next)
		rc.release(m)
	}
	if !hasElse {
		switch w.mode {
		case modeValue:
			rc.place(rc.c.game.Zero(), out.dest)
		case modeCond:
			if !w.polarity {
				rc.rb.EmitJump(w.label)
			}
		}
	}
	rc.rb.MarkLabel(end)
	if w.mode == modeValue {
		return out.dest
	}
	return nil
}

// condValue compiles a COND clause without a body, whose value is the
// value of its test.
func (rc *routineCompiler) condValue(test zils.Node, w want, end, next zilg.Label) {
	switch w.mode {
	case modeVoid:
		rc.cond(test, end, true)
	case modeCond:
		if w.polarity {
			rc.cond(test, w.label, true)
		} else {
			rc.cond(test, end, true)
		}
	default:
		t := rc.temp()
		rc.place(rc.value(test, t), t)
		rc.rb.EmitBranch(zilg.OpZero, next, true, t)
		rc.place(t, w.dest)
		rc.rb.EmitJump(end)
	}
}

// deliver places the value of a path in the destination of a form with
// several paths.
func (rc *routineCompiler) deliver(op zilg.Operand, w want) {
	if w.mode == modeValue {
		rc.place(op, w.dest)
	}
}

// isSetZero matches <SET var 0> and <SETG var 0>.
func isSetZero(n zils.Node) bool {
	f, ok := n.(*zils.Form)
	if !ok {
		return false
	}
	if h := f.HeadName(); h != "SET" && h != "SETG" {
		return false
	}
	args := f.Args()
	if len(args) != 2 {
		return false
	}
	if fix, ok := args[1].(*zils.Fix); ok {
		return fix.Value == 0
	}
	return zils.IsFalse(args[1])
}

func compileAnd(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	return rc.andOr(f, w, true)
}

func compileOr(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	return rc.andOr(f, w, false)
}

func (rc *routineCompiler) andOr(f *zils.Form, w want, and bool) zilg.Operand {
	g := rc.c.game
	args := f.Args()
	if len(args) == 0 {
		if and {
			return rc.fromValue(g.One(), w)
		}
		return rc.fromValue(g.Zero(), w)
	}
	if and && w.mode != modeVoid && isSetZero(args[len(args)-1]) {
		// Old compilers took <AND ... <SET X 0>> as true; games rely on it.
		last := args[len(args)-1]
		rc.c.warn(last.Pos(), warnAndSetZero, "%s at the end of AND is treated as true", last)
		args = append(args[:len(args)-1:len(args)-1],
			zils.NewCall(last.Pos(), "BIND", &zils.List{At: last.Pos()}, last, zils.NewAtom(last.Pos(), "T")))
	}
	first, last := args[:len(args)-1], args[len(args)-1]

	switch w.mode {
	case modeVoid:
		end := rc.rb.NewLabel()
		for _, a := range first {
			rc.cond(a, end, !and)
		}
		rc.stmt(last)
		rc.rb.MarkLabel(end)
		return nil

	case modeCond:
		if and == w.polarity {
			skip := rc.rb.NewLabel()
			for _, a := range first {
				rc.cond(a, skip, !and)
			}
			rc.cond(last, w.label, w.polarity)
			rc.rb.MarkLabel(skip)
		} else {
			for _, a := range args {
				rc.cond(a, w.label, w.polarity)
			}
		}
		return nil
	}

	if len(first) == 0 {
		return rc.value(last, w.dest)
	}
	dest := destOrStack(w.dest)
	end := rc.rb.NewLabel()
	if and {
		fail := rc.rb.NewLabel()
		for _, a := range first {
			rc.cond(a, fail, false)
		}
		rc.place(rc.value(last, dest), dest)
		rc.rb.EmitJump(end)
		rc.rb.MarkLabel(fail)
		rc.place(g.Zero(), dest)
		rc.rb.MarkLabel(end)
		return dest
	}
	for _, a := range first {
		m := rc.mark()
		next := rc.rb.NewLabel()
		var op zilg.Operand
		if rc.simple(a) {
			op = rc.value(a, nil)
		} else {
			t := rc.temp()
			op = rc.place(rc.value(a, t), t)
		}
		if t, known := rc.truth(op); known {
			if t {
				rc.place(op, dest)
				rc.rb.EmitJump(end)
			}
			rc.release(m)
			continue
		}
		rc.rb.EmitBranch(zilg.OpZero, next, true, op)
		rc.place(op, dest)
		rc.rb.EmitJump(end)
		rc.rb.MarkLabel(next)
		rc.release(m)
	}
	rc.place(rc.value(last, dest), dest)
	rc.rb.MarkLabel(end)
	return dest
}

func compileNot(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	if len(args) != 1 {
		rc.c.malformed(f, "want one argument")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	switch w.mode {
	case modeCond:
		rc.cond(args[0], w.label, !w.polarity)
		return nil
	case modeVoid:
		rc.stmt(args[0])
		return nil
	}
	return rc.materialize(w.dest, func(l zilg.Label, polarity bool) {
		rc.cond(args[0], l, !polarity)
	})
}

// Blocks

// compileProg handles <PROG [act] (bindings) body...>, REPEAT and BIND.
func compileProg(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	head := f.HeadName()
	args := f.Args()
	var name string
	if len(args) > 0 {
		if a, ok := args[0].(*zils.Atom); ok {
			name = a.Name
			args = args[1:]
		}
	}
	if len(args) == 0 {
		rc.c.malformed(f, "missing binding list")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	var bindings *zils.List
	switch b := args[0].(type) {
	case *zils.List:
		bindings = b
	case *zils.Form:
		if !zils.IsFalse(b) {
			rc.c.malformed(f, "binding list must be a list")
			return rc.fromValue(rc.c.game.Zero(), w)
		}
	default:
		rc.c.malformed(f, "binding list must be a list")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	return rc.runBlock(name, bindings, args[1:], w, head == "REPEAT", head == "BIND")
}

// compileReturn handles <RETURN [value [activation]]>. Leaving a block
// is a jump to its end; leaving the routine is a return.
func compileReturn(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	if len(args) > 2 {
		rc.c.malformed(f, "too many arguments")
		return rc.unreachable(w)
	}
	var name string
	if len(args) == 2 {
		n, ok := zils.AtomName(args[1])
		if !ok {
			rc.c.malformed(args[1], "activation must be an atom")
			return rc.unreachable(w)
		}
		name = n
	}
	b, ok := rc.findBlock(name)
	if !ok {
		rc.c.malformed(f, "no enclosing block named "+name)
		return rc.unreachable(w)
	}
	g := rc.c.game
	if b == nil {
		var op zilg.Operand = g.One()
		if len(args) > 0 {
			op = rc.value(args[0], nil)
		}
		if rc.rb.Reachable() {
			rc.rb.EmitReturn(op)
		}
		return rc.unreachable(w)
	}
	switch {
	case b.w.mode == modeValue:
		var op zilg.Operand = g.One()
		if len(args) > 0 {
			op = rc.value(args[0], b.w.dest)
		}
		rc.place(op, b.w.dest)
	case len(args) > 0:
		rc.stmt(args[0])
	}
	if rc.rb.Reachable() {
		rc.rb.EmitJump(b.ret)
	}
	return rc.unreachable(w)
}

func compileAgain(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	var name string
	if len(args) > 0 {
		n, ok := zils.AtomName(args[0])
		if !ok || len(args) > 1 {
			rc.c.malformed(f, "want an optional activation")
			return rc.unreachable(w)
		}
		name = n
	}
	b, ok := rc.findBlock(name)
	if !ok {
		rc.c.malformed(f, "no enclosing block named "+name)
		return rc.unreachable(w)
	}
	target := rc.start
	if b != nil {
		target = b.again
	}
	if rc.rb.Reachable() {
		rc.rb.EmitJump(target)
	}
	return rc.unreachable(w)
}

// Variables

func compileLval(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	name, ok := zils.LocalName(f)
	if !ok {
		rc.c.malformed(f, "want a local name")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	v, ok := rc.scope[name]
	if !ok {
		rc.c.error(f.Pos(), undefined("local", name))
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	return rc.fromValue(v, w)
}

func compileGval(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	name, ok := zils.GlobalName(f)
	if !ok {
		rc.c.malformed(f, "want a global name")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	gb, ok := rc.c.game.Global(name)
	if !ok {
		if op, ok := rc.c.nameOperand(name); ok {
			return rc.fromValue(op, w)
		}
		rc.c.error(f.Pos(), undefined("global", name))
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	if !gb.Soft {
		return rc.fromValue(gb.Var, w)
	}
	if w.mode == modeVoid {
		return nil
	}
	dest := zilg.Stack
	if w.mode == modeValue {
		dest = destOrStack(w.dest)
	}
	op := zilg.OpGetb
	if gb.IsWord {
		op = zilg.OpGet
	}
	rc.rb.EmitStore(op, dest, rc.c.softTable, rc.c.game.Number(gb.Offset))
	return rc.fromValue(dest, w)
}

// assign stores the value of n in v.
func (rc *routineCompiler) assign(v *zilg.Variable, n zils.Node, w want) zilg.Operand {
	rc.place(rc.value(n, v), v)
	return rc.fromValue(v, w)
}

func compileSet(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	name, value, ok := rc.setArgs(f)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	if v, ok := rc.scope[name]; ok {
		return rc.assign(v, value, w)
	}
	if gb, ok := rc.c.game.Global(name); ok {
		rc.c.warn(f.Pos(), warnSetGlobal, "SET of global %s; use SETG", name)
		return rc.setGlobal(gb, value, w)
	}
	rc.c.error(f.Pos(), undefined("local", name))
	return rc.fromValue(rc.c.game.Zero(), w)
}

func compileSetg(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	name, value, ok := rc.setArgs(f)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	gb, ok := rc.c.game.Global(name)
	if !ok {
		rc.c.error(f.Pos(), undefined("global", name))
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	return rc.setGlobal(gb, value, w)
}

func (rc *routineCompiler) setArgs(f *zils.Form) (string, zils.Node, bool) {
	args := f.Args()
	if len(args) != 2 {
		rc.c.malformed(f, "want a variable and a value")
		return "", nil, false
	}
	target := zils.StripDecl(args[0])
	if q, ok := target.(*zils.Form); ok && q.HeadName() == "QUOTE" && len(q.Args()) == 1 {
		target = q.Args()[0]
	}
	name, ok := zils.AtomName(target)
	if !ok {
		if _, isLocal := zils.LocalName(target); isLocal {
			rc.c.malformed(f, "indirect variable references are not supported")
		} else {
			rc.c.malformed(f, "variable name expected")
		}
		return "", nil, false
	}
	return name, args[1], true
}

// setGlobal assigns a hard global like a local and writes a soft global
// into the global variables table.
func (rc *routineCompiler) setGlobal(gb *zilg.GlobalBuilder, n zils.Node, w want) zilg.Operand {
	if !gb.Soft {
		return rc.assign(gb.Var, n, w)
	}
	op := rc.value(n, nil)
	if w.mode != modeVoid && zilg.IsStack(op) {
		t := rc.temp()
		op = rc.place(op, t)
	}
	put := zilg.OpPutb
	if gb.IsWord {
		put = zilg.OpPut
	}
	rc.rb.Emit(put, rc.c.softTable, rc.c.game.Number(gb.Offset), op)
	return rc.fromValue(op, w)
}

// Compile-time selection

func compileVersion(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	body, ok := rc.c.selectVersion(f)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	return rc.seq(body, w)
}

func compileIfflag(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	body, ok := rc.c.selectFlag(f)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	return rc.seq(body, w)
}

func compileGassigned(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	name, ok := zils.AtomName(zils.StripDecl(firstArg(args)))
	if len(args) != 1 || !ok {
		rc.c.malformed(f, "want a name")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	_, isGlobal := rc.c.game.Global(name)
	_, isConst := rc.c.nameOperand(name)
	if isGlobal || isConst {
		return rc.fromValue(rc.c.game.One(), w)
	}
	return rc.fromValue(rc.c.game.Zero(), w)
}

func firstArg(args []zils.Node) zils.Node {
	if len(args) == 0 {
		return &zils.Form{}
	}
	return args[0]
}

// compileChtype ignores the type change: the value is the same word.
func compileChtype(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	if len(args) != 2 {
		rc.c.malformed(f, "want a value and a type")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	return rc.expr(args[0], w)
}

func compileQuote(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	op, err := rc.c.constOperand(f)
	if err != nil {
		rc.c.error(f.Pos(), err)
		op = rc.c.game.Zero()
	}
	return rc.fromValue(op, w)
}

func compileTable(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	op, err := rc.c.table(f, "")
	if err != nil {
		rc.c.error(f.Pos(), err)
		op = rc.c.game.Zero()
	}
	return rc.fromValue(op, w)
}

// Output and calls

// compilePrinti handles <PRINTI "text"> and <PRINTR "text">.
func compilePrinti(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	s, ok := firstArg(args).(*zils.String)
	if len(args) != 1 || !ok {
		rc.c.malformed(f, "want a string")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	text := rc.c.translate(s.Value)
	if f.HeadName() == "PRINTR" {
		rc.rb.EmitPrintReturn(text)
		return rc.unreachable(w)
	}
	rc.rb.EmitPrint(text)
	return rc.fromValue(rc.c.game.One(), w)
}

// compileApply calls a routine given by value, without an arity check.
func compileApply(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	args := f.Args()
	if len(args) == 0 {
		rc.c.malformed(f, "missing routine")
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	m := rc.mark()
	defer rc.release(m)
	ops := rc.operands(args)
	return rc.emitCall(f, ops[0], ops[1:], w)
}
