package zilg

import (
	"github.com/fzipp/zil-compiler/peephole"
)

type zline = peephole.Line[*Instr]
type zrepl = peephole.Replacement[*Instr]
type zresult = peephole.Result[*Instr]

// zapCombiner holds the instruction-level rewrite rules.
type zapCombiner struct {
	version int
}

func noMatch() zresult { return peephole.NoMatch[*Instr]() }

func replace(n int, lines ...zrepl) zresult { return peephole.Replace(n, lines...) }

func plain(in *Instr) zrepl { return zrepl{Code: in, Type: peephole.Plain} }

func (c *zapCombiner) Apply(w []zline) zresult {
	if r := c.single(w[0]); r.Consumed > 0 {
		return r
	}
	if len(w) >= 2 {
		if r := c.pair(w[0], w[1]); r.Consumed > 0 {
			return r
		}
	}
	return noMatch()
}

func withLines(in *Instr, from ...*Instr) *Instr {
	for _, f := range from {
		if len(f.Lines) > 0 {
			in.Lines = append(append([]SourceLine(nil), in.Lines...), f.Lines...)
		}
	}
	return in
}

func isVar(op Operand) (*Variable, bool) {
	v, ok := op.(*Variable)
	if !ok || v.Kind == VarStack {
		return nil, false
	}
	return v, true
}

func numberIs(op Operand, v int) bool {
	n, ok := NumberValue(op)
	return ok && n == v
}

func (c *zapCombiner) single(l zline) zresult {
	in := l.Code
	switch in.Op {
	case OpReturn:
		var op Op
		switch {
		case numberIs(in.Args[0], 1):
			op = OpRtrue
		case numberIs(in.Args[0], 0):
			op = OpRfalse
		case IsStack(in.Args[0]):
			op = OpRstack
		default:
			return noMatch()
		}
		return replace(1, zrepl{Code: withLines(&Instr{Op: op}, in), Type: peephole.Terminator})

	case OpAdd, OpSub:
		if l.Type != peephole.Plain || in.Store == nil || IsStack(in.Store) {
			return noMatch()
		}
		var delta int
		switch {
		case in.Args[0] == in.Store && numberIs(in.Args[1], 1):
			delta = 1
		case in.Args[0] == in.Store && numberIs(in.Args[1], -1):
			delta = -1
		case in.Op == OpAdd && in.Args[1] == in.Store && numberIs(in.Args[0], 1):
			delta = 1
		default:
			return noMatch()
		}
		if in.Op == OpSub {
			delta = -delta
		}
		op := OpInc
		if delta < 0 {
			op = OpDec
		}
		return replace(1, plain(withLines(&Instr{Op: op, Args: []Operand{in.Store}}, in)))

	case OpSet:
		if l.Type == peephole.Plain && in.Args[0] == in.Args[1] && !IsStack(in.Args[0]) {
			return replace(1)
		}
	}
	return noMatch()
}

func (c *zapCombiner) isPop(in *Instr) bool {
	switch in.Op {
	case OpFstack:
		return len(in.Args) == 0
	case OpIcall2:
		return len(in.Args) == 2 && numberIs(in.Args[0], 0) && IsStack(in.Args[1]) && in.Store == nil
	}
	return false
}

// stackUse returns the index of the single operand of in that pops the
// stack, or -1.
func stackUse(in *Instr) int {
	idx := -1
	for i, a := range in.Args {
		if !IsStack(a) {
			continue
		}
		if i == 0 && in.Op.VarArg() {
			return -1
		}
		if idx >= 0 {
			return -1
		}
		idx = i
	}
	return idx
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (c *zapCombiner) pair(l1, l2 zline) zresult {
	a, b := l1.Code, l2.Code
	if l1.Type != peephole.Plain {
		return c.branchPair(l1, l2)
	}

	switch {
	case a.Op == OpPrinti && b.Op == OpPrinti && l2.Type == peephole.Plain:
		return replace(2, plain(withLines(&Instr{Op: OpPrinti, Text: a.Text + b.Text}, a, b)))

	case a.Op == OpPrinti && b.Op == OpCrlf:
		return replace(2, plain(withLines(&Instr{Op: OpPrinti, Text: a.Text + "\n"}, a, b)))

	case a.Op == OpPrinti && b.Op == OpRtrue && len(a.Text) > 0 && a.Text[len(a.Text)-1] == '\n':
		in := withLines(&Instr{Op: OpPrintr, Text: a.Text[:len(a.Text)-1]}, a, b)
		return replace(2, zrepl{Code: in, Type: peephole.HeavyTerminator})

	case a.Op == OpCrlf && b.Op == OpRtrue:
		return replace(2, zrepl{Code: withLines(&Instr{Op: OpPrintr}, a, b), Type: peephole.HeavyTerminator})

	case a.Op == OpPush && !IsStack(a.Args[0]) && c.isPop(b):
		return replace(2)

	case a.Store == Stack && a.Op.IsPure() && !a.readsStack() && !a.Op.Branches(c.version) && c.isPop(b):
		return replace(2)

	case a.Op == OpPush && b.Op == OpRstack:
		in := withLines(&Instr{Op: OpReturn, Args: []Operand{a.Args[0]}}, a, b)
		return replace(2, zrepl{Code: in, Type: peephole.Terminator})

	case a.Store == Stack && b.Op == OpSet && IsStack(b.Args[1]) && l2.Type == peephole.Plain:
		v, ok := isVar(b.Args[0])
		if !ok || a.Op.Branches(c.version) {
			break
		}
		in := withLines(&Instr{Op: a.Op, Args: a.Args, Text: a.Text, Store: v}, a, b)
		return replace(2, plain(in))

	case a.Op == OpPush && !IsStack(a.Args[0]):
		i := stackUse(b)
		if i < 0 {
			break
		}
		args := append([]Operand(nil), b.Args...)
		args[i] = a.Args[0]
		in := withLines(&Instr{Op: b.Op, Args: args, Store: b.Store, Text: b.Text}, a, b)
		return replace(2, zrepl{Code: in, Target: l2.Target, Type: l2.Type})

	case a.Op == OpBand && a.Store == Stack && b.Op == OpZero && IsStack(b.Args[0]) && l2.Type.IsConditional():
		m, ok := NumberValue(a.Args[1])
		if !ok || !isPowerOfTwo(m) || IsStack(a.Args[0]) {
			break
		}
		in := withLines(&Instr{Op: OpBtst, Args: []Operand{a.Args[0], a.Args[1]}}, a, b)
		return replace(2, zrepl{Code: in, Target: l2.Target, Type: l2.Type.Invert()})

	case a.Op == OpInc && b.Op == OpGrtr && l2.Type.IsConditional() && b.Args[0] == a.Args[0] && !IsStack(a.Args[0]):
		in := withLines(&Instr{Op: OpIgrtr, Args: []Operand{a.Args[0], b.Args[1]}}, a, b)
		return replace(2, zrepl{Code: in, Target: l2.Target, Type: l2.Type})

	case a.Op == OpDec && b.Op == OpLess && l2.Type.IsConditional() && b.Args[0] == a.Args[0] && !IsStack(a.Args[0]):
		in := withLines(&Instr{Op: OpDless, Args: []Operand{a.Args[0], b.Args[1]}}, a, b)
		return replace(2, zrepl{Code: in, Target: l2.Target, Type: l2.Type})
	}
	return noMatch()
}

// branchPair merges consecutive EQUAL? tests of the same value that branch
// to the same place.
func (c *zapCombiner) branchPair(l1, l2 zline) zresult {
	a, b := l1.Code, l2.Code
	if a.Op != OpEqual || b.Op != OpEqual {
		return noMatch()
	}
	if l1.Type != peephole.BranchPositive || l2.Type != peephole.BranchPositive || l1.Target != l2.Target {
		return noMatch()
	}
	if a.Args[0] != b.Args[0] || IsStack(a.Args[0]) || len(a.Args)+len(b.Args)-1 > 4 {
		return noMatch()
	}
	for _, op := range b.Args[1:] {
		if IsStack(op) {
			return noMatch()
		}
	}
	args := append(append([]Operand(nil), a.Args...), b.Args[1:]...)
	in := withLines(&Instr{Op: OpEqual, Args: args}, a, b)
	return replace(2, zrepl{Code: in, Target: l1.Target, Type: peephole.BranchPositive})
}

func (c *zapCombiner) SynthesizeBranchAlways() *Instr {
	return &Instr{Op: OpJump}
}

func (c *zapCombiner) AreIdentical(a, b *Instr) bool {
	return a.identical(b)
}

func (c *zapCombiner) MergeIdentical(a, b *Instr) *Instr {
	in := *a
	return withLines(&in, b)
}

func (c *zapCombiner) AreSameTest(a, b *Instr) peephole.SameTestResult {
	if b.hasEffect() {
		return peephole.Unrelated
	}
	if a.Op == b.Op && a.Store == nil && !a.readsStack() && a.Op.IsPure() && sameOperands(a.Args, b.Args) {
		return peephole.SameTest
	}
	if (a.Op == OpFirst || a.Op == OpNext) && a.Store != nil && !IsStack(a.Store) &&
		b.Op == OpZero && b.Args[0] == a.Store {
		return peephole.OppositeTest
	}
	return peephole.Unrelated
}

func (c *zapCombiner) ControlsConditionalBranch(a, b *Instr) peephole.Condition {
	if a.Op != OpPush || b.Store != nil || len(b.Args) == 0 || !IsStack(b.Args[0]) {
		return peephole.ConditionUnknown
	}
	k, ok := NumberValue(a.Args[0])
	if !ok {
		return peephole.ConditionUnknown
	}
	nums := make([]int, 0, len(b.Args)-1)
	for _, op := range b.Args[1:] {
		n, ok := NumberValue(op)
		if !ok {
			return peephole.ConditionUnknown
		}
		nums = append(nums, n)
	}
	var v bool
	switch {
	case b.Op == OpZero && len(nums) == 0:
		v = k == 0
	case b.Op == OpEqual && len(nums) > 0:
		for _, n := range nums {
			v = v || k == n
		}
	case b.Op == OpLess && len(nums) == 1:
		v = k < nums[0]
	case b.Op == OpGrtr && len(nums) == 1:
		v = k > nums[0]
	default:
		return peephole.ConditionUnknown
	}
	if v {
		return peephole.ConditionTrue
	}
	return peephole.ConditionFalse
}

func (c *zapCombiner) ReturnLabel(in *Instr) (Label, bool) {
	switch in.Op {
	case OpRtrue:
		return peephole.TrueLabel, true
	case OpRfalse:
		return peephole.FalseLabel, true
	}
	return "", false
}
