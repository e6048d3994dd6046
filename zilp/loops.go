package zilp

import (
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

// blockWant is how the body of a block delivers its value. A block
// tested as a condition computes its value on the stack first.
func blockWant(w want) want {
	bw := w
	if w.mode == modeCond {
		bw = want{mode: modeValue}
	}
	if bw.mode == modeValue {
		bw.dest = destOrStack(bw.dest)
	}
	return bw
}

// endBlock delivers the value a block left in bw.dest.
func (rc *routineCompiler) endBlock(w, bw want) zilg.Operand {
	switch w.mode {
	case modeCond:
		rc.branchOn(bw.dest, w.label, w.polarity)
	case modeValue:
		return bw.dest
	}
	return nil
}

// loopSpec splits the arguments of a loop form into the optional
// activation, the binding list, the END clause and the body.
func (rc *routineCompiler) loopSpec(f *zils.Form, minLen, maxLen int) (act string, spec *zils.List, end, body []zils.Node, ok bool) {
	args := f.Args()
	if len(args) > 0 {
		if a, isAtom := args[0].(*zils.Atom); isAtom {
			act = a.Name
			args = args[1:]
		}
	}
	if len(args) == 0 {
		rc.c.malformed(f, "missing loop specification")
		return "", nil, nil, nil, false
	}
	spec, isList := args[0].(*zils.List)
	if !isList || len(spec.Elems) < minLen || len(spec.Elems) > maxLen {
		rc.c.malformed(f, "bad loop specification")
		return "", nil, nil, nil, false
	}
	body = args[1:]
	if len(body) > 0 {
		if l, isList := body[0].(*zils.List); isList && len(l.Elems) > 0 {
			if head, _ := zils.AtomName(l.Elems[0]); head == "END" {
				end = l.Elems[1:]
				body = body[1:]
			}
		}
	}
	return act, spec, end, body, true
}

// loopName returns the variable name at position i of a loop spec.
func (rc *routineCompiler) loopName(spec *zils.List, i int) (*zils.Atom, bool) {
	a, ok := zils.StripDecl(spec.Elems[i]).(*zils.Atom)
	if !ok {
		rc.c.malformed(spec, "loop variable must be an atom")
	}
	return a, ok
}

// finishLoop runs the END statements once the loop is exhausted and
// gives the loop the value true.
func (rc *routineCompiler) finishLoop(b *block, exhausted zilg.Label, end []zils.Node) {
	rc.rb.MarkLabel(exhausted)
	if len(end) > 0 {
		rc.seq(end, want{mode: modeVoid})
	}
	if b.w.mode == modeValue {
		rc.place(rc.c.game.One(), b.w.dest)
	}
	rc.rb.MarkLabel(b.ret)
}

// compileDo handles <DO (I start end [step]) [(END ...)] body...>.
//
// The loop counts down if the step is negative, or without a step if
// both bounds are constants and end is less than start. An end that
// needs code is a condition tested before each pass; the loop stops
// once it is true. A step that is not a constant computes the next
// value of I.
func compileDo(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	act, spec, endStmts, body, ok := rc.loopSpec(f, 3, 4)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	name, ok := rc.loopName(spec, 0)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	g := rc.c.game
	start, end := spec.Elems[1], spec.Elems[2]
	var step zils.Node
	if len(spec.Elems) == 4 {
		step = spec.Elems[3]
	}

	s, sConst := rc.constValue(start)
	e, eConst := rc.constValue(end)
	delta, stepConst := 1, true
	if step != nil {
		delta, stepConst = rc.constValue(step)
	} else if sConst && eConst && e < s {
		delta = -1
	}
	endCond := !rc.simple(end)
	down := delta < 0 || !stepConst && sConst && eConst && e < s
	cmp := zilg.OpGrtr
	if down {
		cmp = zilg.OpLess
	}

	bw := blockWant(w)
	fr := &scopeFrame{}
	startOp := rc.value(start, nil)
	v := rc.bind(fr, name.Name, name.Pos())
	rc.place(startOp, v)
	var endOp zilg.Operand
	if !endCond {
		endOp = rc.value(end, nil)
	}

	b := &block{name: act, again: rc.rb.NewLabel(), ret: rc.rb.NewLabel(), w: bw}
	top, exhausted := rc.rb.NewLabel(), rc.rb.NewLabel()
	knownToRun := sConst && eConst && (down && s >= e || !down && s <= e)
	if !endCond && !knownToRun {
		rc.rb.EmitBranch(cmp, exhausted, true, v, endOp)
	}
	rc.rb.MarkLabel(top)
	if endCond {
		rc.cond(end, exhausted, true)
	}
	rc.blocks = append(rc.blocks, b)
	rc.seq(body, want{mode: modeVoid})
	rc.blocks = rc.blocks[:len(rc.blocks)-1]

	rc.rb.MarkLabel(b.again)
	switch {
	case !stepConst:
		rc.assign(v, step, want{mode: modeVoid})
		if endCond {
			rc.rb.EmitJump(top)
		} else {
			rc.rb.EmitBranch(cmp, top, false, v, endOp)
		}
	case endCond:
		rc.rb.EmitStore(zilg.OpAdd, v, v, g.Number(delta))
		rc.rb.EmitJump(top)
	case delta == 1:
		rc.rb.EmitBranch(zilg.OpIgrtr, top, false, v, endOp)
	case delta == -1:
		rc.rb.EmitBranch(zilg.OpDless, top, false, v, endOp)
	default:
		rc.rb.EmitStore(zilg.OpAdd, v, v, g.Number(delta))
		rc.rb.EmitBranch(cmp, top, false, v, endOp)
	}
	rc.finishLoop(b, exhausted, endStmts)
	rc.closeScope(fr)
	return rc.endBlock(w, bw)
}

// constValue returns the value of n if it is a compile-time number.
func (rc *routineCompiler) constValue(n zils.Node) (int, bool) {
	if _, isForm := zils.StripDecl(n).(*zils.Form); isForm {
		return 0, false
	}
	op, err := rc.c.constOperand(n)
	if err != nil {
		return 0, false
	}
	return rc.c.number(op)
}

// compileMapContents handles <MAP-CONTENTS (I [N] container) [(END ...)]
// body...>. With N, the next sibling is fetched before the body runs, so
// the body may move I elsewhere.
func compileMapContents(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	act, spec, endStmts, body, ok := rc.loopSpec(f, 2, 3)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	iName, ok := rc.loopName(spec, 0)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	var nName *zils.Atom
	if len(spec.Elems) == 3 {
		if nName, ok = rc.loopName(spec, 1); !ok {
			return rc.fromValue(rc.c.game.Zero(), w)
		}
	}

	bw := blockWant(w)
	fr := &scopeFrame{}
	cont := rc.value(spec.Elems[len(spec.Elems)-1], nil)
	i := rc.bind(fr, iName.Name, iName.Pos())
	var n *zilg.Variable
	if nName != nil {
		n = rc.bind(fr, nName.Name, nName.Pos())
	}

	b := &block{name: act, again: rc.rb.NewLabel(), ret: rc.rb.NewLabel(), w: bw}
	top, exhausted := rc.rb.NewLabel(), rc.rb.NewLabel()
	rc.rb.EmitStoreBranch(zilg.OpFirst, i, exhausted, false, cont)
	rc.rb.MarkLabel(top)
	if n != nil {
		l := rc.rb.NewLabel()
		rc.rb.EmitStoreBranch(zilg.OpNext, n, l, true, i)
		rc.rb.MarkLabel(l)
	}
	rc.blocks = append(rc.blocks, b)
	rc.seq(body, want{mode: modeVoid})
	rc.blocks = rc.blocks[:len(rc.blocks)-1]

	rc.rb.MarkLabel(b.again)
	if n != nil {
		rc.rb.EmitSet(i, n)
		rc.rb.EmitBranch(zilg.OpZero, top, false, i)
	} else {
		rc.rb.EmitStoreBranch(zilg.OpNext, i, top, true, i)
	}
	rc.finishLoop(b, exhausted, endStmts)
	rc.closeScope(fr)
	return rc.endBlock(w, bw)
}

// compileMapDirections handles <MAP-DIRECTIONS (D P room) [(END ...)]
// body...>. D counts down through the direction properties; the body
// runs for each exit room has, with P the address of the exit.
func compileMapDirections(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	act, spec, endStmts, body, ok := rc.loopSpec(f, 3, 3)
	if !ok {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	dName, ok1 := rc.loopName(spec, 0)
	pName, ok2 := rc.loopName(spec, 1)
	if !ok1 || !ok2 {
		return rc.fromValue(rc.c.game.Zero(), w)
	}
	low, ok := rc.c.game.Constant("LOW-DIRECTION")
	if !ok {
		rc.c.malformed(f, "no DIRECTIONS are defined")
		return rc.fromValue(rc.c.game.Zero(), w)
	}

	bw := blockWant(w)
	fr := &scopeFrame{}
	room := rc.value(spec.Elems[2], nil)
	if zilg.IsStack(room) {
		t := rc.temp()
		room = rc.place(room, t)
	}
	d := rc.bind(fr, dName.Name, dName.Pos())
	p := rc.bind(fr, pName.Name, pName.Pos())

	b := &block{name: act, again: rc.rb.NewLabel(), ret: rc.rb.NewLabel(), w: bw}
	exhausted := rc.rb.NewLabel()
	maxProp := rc.c.game.Limits().MaxProperties
	rc.rb.EmitSet(d, rc.c.game.Number(maxProp+1))
	rc.rb.MarkLabel(b.again)
	rc.rb.EmitBranch(zilg.OpDless, exhausted, true, d, low)
	rc.rb.EmitStore(zilg.OpGetpt, p, room, d)
	rc.rb.EmitBranch(zilg.OpZero, b.again, true, p)
	rc.blocks = append(rc.blocks, b)
	rc.seq(body, want{mode: modeVoid})
	rc.blocks = rc.blocks[:len(rc.blocks)-1]
	if rc.rb.Reachable() {
		rc.rb.EmitJump(b.again)
	}
	rc.finishLoop(b, exhausted, endStmts)
	rc.closeScope(fr)
	return rc.endBlock(w, bw)
}
