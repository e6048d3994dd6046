package zilg

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/fzipp/zil-compiler/peephole"
)

// zprog is a routine body under test: three locals and interned numbers,
// since operands compare by identity.
type zprog struct {
	a, b, c *Variable
	nums    map[int]*Number
	lines   []zline
}

func newZProg() *zprog {
	return &zprog{
		a:    &Variable{Kind: VarLocal, Name: "A"},
		b:    &Variable{Kind: VarLocal, Name: "B"},
		c:    &Variable{Kind: VarLocal, Name: "C"},
		nums: make(map[int]*Number),
	}
}

func (p *zprog) num(v int) *Number {
	n, ok := p.nums[v]
	if !ok {
		n = &Number{Value: v}
		p.nums[v] = n
	}
	return n
}

func (p *zprog) vars() []*Variable { return []*Variable{p.a, p.b, p.c} }

// forwardTarget marks a branch whose target is chosen once all lines exist.
const forwardTarget peephole.Label = "?FWD"

func (p *zprog) add(in *Instr, target peephole.Label, typ peephole.LineType) *zline {
	p.lines = append(p.lines, zline{Code: in, Target: target, Type: typ})
	return &p.lines[len(p.lines)-1]
}

func (p *zprog) plain(op Op, store *Variable, args ...Operand) {
	p.add(&Instr{Op: op, Args: args, Store: store}, "", peephole.Plain)
}

func (p *zprog) branch(op Op, store *Variable, target peephole.Label, polarity bool, args ...Operand) *zline {
	return p.add(&Instr{Op: op, Args: args, Store: store}, target, lineType(op, true, polarity))
}

// randomZProgram strings together short idioms that the ZAP rules rewrite,
// with forward branches only and a terminator at the end.
func randomZProgram(rng *rand.Rand) *zprog {
	p := newZProg()
	pick := func() *Variable { return p.vars()[rng.Intn(3)] }
	k := func() *Number { return p.num(rng.Intn(4)) }
	pol := func() bool { return rng.Intn(2) == 0 }
	starts := []int{}
	n := 3 + rng.Intn(10)
	for i := 0; i < n; i++ {
		starts = append(starts, len(p.lines))
		v, w := pick(), pick()
		switch rng.Intn(17) {
		case 0: // ADD/SUB to INC/DEC
			switch rng.Intn(4) {
			case 0:
				p.plain(OpAdd, v, v, p.num(1))
			case 1:
				p.plain(OpSub, v, v, p.num(1))
			case 2:
				p.plain(OpAdd, v, p.num(1), v)
			default:
				p.plain(OpSub, v, v, p.num(-1))
			}
		case 1: // PUSH folded into the next stack operand
			p.plain(OpPush, nil, k())
			p.plain(OpAdd, w, Stack, v)
		case 2: // SET through the stack
			p.plain(OpAdd, Stack, v, k())
			p.plain(OpSet, nil, w, Stack)
		case 3: // BAND then ZERO? to BTST
			p.plain(OpBand, Stack, v, p.num(1<<rng.Intn(3)))
			p.branch(OpZero, nil, forwardTarget, pol(), Stack)
		case 4: // INC then GRTR? to IGRTR?
			p.plain(OpInc, nil, v)
			p.branch(OpGrtr, nil, forwardTarget, pol(), v, k())
		case 5: // DEC then LESS? to DLESS?
			p.plain(OpDec, nil, v)
			p.branch(OpLess, nil, forwardTarget, pol(), v, k())
		case 6: // EQUAL? tests of one value to one place
			p.branch(OpEqual, nil, forwardTarget, true, v, k())
			p.lines[len(p.lines)-1].Target = peephole.Label(fmt.Sprintf("?SAME%d", i))
			p.branch(OpEqual, nil, forwardTarget, true, v, k(), k())
			p.lines[len(p.lines)-1].Target = peephole.Label(fmt.Sprintf("?SAME%d", i))
		case 7: // FIRST? whose branch lands on a ZERO? of its result
			t := peephole.Label(fmt.Sprintf("?Z%d", i))
			p.branch(OpFirst, w, t, pol(), v)
			p.plain(OpPrintn, nil, w)
			p.branch(OpZero, nil, forwardTarget, pol(), w).Label = t
		case 8: // NEXT? followed by ZERO? of its result
			p.branch(OpNext, w, forwardTarget, pol(), v)
			p.branch(OpZero, nil, forwardTarget, pol(), w)
		case 9: // pushed value popped again
			if pol() {
				p.plain(OpPush, nil, k())
			} else {
				p.plain(OpAdd, Stack, v, w)
			}
			p.plain(OpIcall2, nil, p.num(0), Stack)
		case 10: // pushed constant tested at once
			p.plain(OpPush, nil, k())
			p.branch(OpZero, nil, forwardTarget, pol(), Stack)
		case 11:
			p.plain(OpPrinti, nil)
			p.lines[len(p.lines)-1].Code.Text = string(rune('a' + rng.Intn(3)))
			if pol() {
				p.plain(OpCrlf, nil)
			}
		case 12:
			p.plain(OpPrintn, nil, v)
		case 13:
			p.plain(OpSet, nil, v, v)
		case 14:
			p.add(&Instr{Op: OpJump}, forwardTarget, peephole.BranchAlways)
		case 15:
			p.plain(OpPush, nil, k())
			p.add(&Instr{Op: OpRstack}, "", peephole.Terminator)
		default:
			p.branch(OpEqual, nil, forwardTarget, pol(), v, k())
		}
	}
	starts = append(starts, len(p.lines))
	switch rng.Intn(4) {
	case 0:
		p.plain(OpCrlf, nil)
		p.add(&Instr{Op: OpRtrue}, "", peephole.Terminator)
	case 1:
		p.add(&Instr{Op: OpReturn, Args: []Operand{p.num(rng.Intn(2))}}, "", peephole.Terminator)
	default:
		p.add(&Instr{Op: OpReturn, Args: []Operand{pick()}}, "", peephole.Terminator)
	}

	// Label some idiom starts and resolve the forward branches.
	labels := make(map[int]peephole.Label)
	for j, s := range starts {
		if j > 0 && rng.Intn(3) == 0 && p.lines[s].Label == "" {
			labels[s] = peephole.Label(fmt.Sprintf("?S%d", s))
			p.lines[s].Label = labels[s]
		}
	}
	target := func(i int) peephole.Label {
		var cands []peephole.Label
		for _, s := range starts {
			if s > i && labels[s] != "" {
				cands = append(cands, labels[s])
			}
		}
		if len(cands) == 0 || rng.Intn(6) == 0 {
			return []peephole.Label{peephole.TrueLabel, peephole.FalseLabel}[rng.Intn(2)]
		}
		return cands[rng.Intn(len(cands))]
	}
	same := make(map[peephole.Label]peephole.Label)
	for i := range p.lines {
		l := &p.lines[i]
		switch {
		case l.Target == forwardTarget:
			l.Target = target(i)
		case strings.HasPrefix(string(l.Target), "?SAME"):
			t, ok := same[l.Target]
			if !ok {
				t = target(i)
				same[l.Target] = t
			}
			l.Target = t
		}
	}
	return p
}

// zoutcome is what a routine body observably does.
type zoutcome struct {
	output string
	vars   [3]int
	ret    int
	done   string
}

// runZ interprets the lines. FIRST? and NEXT? model the object tree as a
// function of the object number.
func runZ(p *zprog, lines []zline, init [3]int) zoutcome {
	vars := map[*Variable]int{p.a: init[0], p.b: init[1], p.c: init[2]}
	var stack []int
	var out strings.Builder
	pop := func() int {
		if len(stack) == 0 {
			return 0
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	val := func(op Operand) int {
		switch op := op.(type) {
		case *Number:
			return op.Value
		case *Variable:
			if op.Kind == VarStack {
				return pop()
			}
			return vars[op]
		}
		panic("unexpected operand " + op.String())
	}
	store := func(v *Variable, x int) {
		if v.Kind == VarStack {
			stack = append(stack, x)
			return
		}
		vars[v] = x
	}
	result := func(ret int, done string) zoutcome {
		return zoutcome{output: out.String(), vars: [3]int{vars[p.a], vars[p.b], vars[p.c]}, ret: ret, done: done}
	}
	related := func(x int) int { return (x*3 + 1) % 4 }

	idx := make(map[peephole.Label]int)
	for i, l := range lines {
		if l.Label != "" {
			idx[l.Label] = i
		}
	}
	pc := 0
	for steps := 0; steps < 10000; steps++ {
		if pc >= len(lines) {
			return result(0, "fell off")
		}
		l := lines[pc]
		pc++
		if l.IsAnchor() {
			continue
		}
		in := l.Code
		var args []int
		start := 0
		if in.Op.VarArg() {
			start = 1
		}
		for _, a := range in.Args[start:] {
			args = append(args, val(a))
		}
		var cond bool
		switch in.Op {
		case OpAdd:
			store(in.Store, args[0]+args[1])
		case OpSub:
			store(in.Store, args[0]-args[1])
		case OpBand:
			store(in.Store, args[0]&args[1])
		case OpBtst:
			cond = args[0]&args[1] == args[1]
		case OpInc:
			vars[in.Args[0].(*Variable)]++
		case OpDec:
			vars[in.Args[0].(*Variable)]--
		case OpIgrtr:
			v := in.Args[0].(*Variable)
			vars[v]++
			cond = vars[v] > args[0]
		case OpDless:
			v := in.Args[0].(*Variable)
			vars[v]--
			cond = vars[v] < args[0]
		case OpSet:
			store(in.Args[0].(*Variable), args[0])
		case OpPush:
			stack = append(stack, args[0])
		case OpIcall2:
		case OpZero:
			cond = args[0] == 0
		case OpEqual:
			for _, x := range args[1:] {
				cond = cond || args[0] == x
			}
		case OpGrtr:
			cond = args[0] > args[1]
		case OpLess:
			cond = args[0] < args[1]
		case OpFirst, OpNext:
			x := related(args[0])
			store(in.Store, x)
			cond = x != 0
		case OpPrintn:
			out.WriteString(strconv.Itoa(args[0]) + " ")
		case OpPrinti:
			out.WriteString(in.Text)
		case OpCrlf:
			out.WriteString("\n")
		case OpPrintr:
			out.WriteString(in.Text + "\n")
			return result(1, "returned")
		case OpRtrue:
			return result(1, "returned")
		case OpRfalse:
			return result(0, "returned")
		case OpReturn:
			return result(args[0], "returned")
		case OpRstack:
			return result(pop(), "returned")
		case OpJump:
		default:
			panic("unexpected instruction " + in.String())
		}
		switch l.Type {
		case peephole.BranchAlways:
		case peephole.BranchPositive:
			if !cond {
				continue
			}
		case peephole.BranchNegative:
			if cond {
				continue
			}
		default:
			continue
		}
		switch l.Target {
		case peephole.TrueLabel:
			return result(1, "returned")
		case peephole.FalseLabel:
			return result(0, "returned")
		}
		pc = idx[l.Target]
	}
	return result(0, "timeout")
}

func combineZ(lines []zline) []zline {
	n := 0
	b := peephole.NewBuffer[*Instr](&zapCombiner{version: 5}, func() peephole.Label {
		n++
		return peephole.Label(fmt.Sprintf("?N%d", n))
	})
	for _, l := range lines {
		if l.Label != "" {
			b.MarkLabel(l.Label)
		}
		if l.IsAnchor() {
			continue
		}
		b.AddLine(l.Code, l.Target, l.Type)
	}
	var out []zline
	b.Finish(func(l zline) { out = append(out, l) })
	return out
}

func renderZ(lines []zline) string {
	var b strings.Builder
	for _, l := range lines {
		if l.Label != "" {
			b.WriteString(string(l.Label) + ": ")
		}
		if !l.IsAnchor() {
			b.WriteString(l.Code.Render(l.Target, l.Type))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestCombiner_RandomProgramsKeepBehaviour(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 800; i++ {
		p := randomZProgram(rng)
		combined := combineZ(p.lines)
		for a := 0; a < 4; a++ {
			for b := 0; b < 4; b++ {
				for c := 0; c < 4; c++ {
					init := [3]int{a, b, c}
					want := runZ(p, p.lines, init)
					got := runZ(p, combined, init)
					if got != want {
						t.Fatalf("program %d with %v: got = %+v, want %+v\nbefore:\n%s\nafter:\n%s",
							i, init, got, want, renderZ(p.lines), renderZ(combined))
					}
				}
			}
		}
	}
}

func TestCombiner_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 400; i++ {
		once := combineZ(randomZProgram(rng).lines)
		twice := combineZ(once)
		if a, b := renderZ(once), renderZ(twice); a != b {
			t.Fatalf("program %d changed on a second pass:\n%s\nthen:\n%s", i, a, b)
		}
	}
}

func TestCombiner_EveryRuleFires(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	seen := make(map[string]bool)
	for i := 0; i < 800; i++ {
		p := randomZProgram(rng)
		for _, l := range combineZ(p.lines) {
			if l.IsAnchor() {
				continue
			}
			in := l.Code
			switch {
			case in.Op == OpInc, in.Op == OpDec, in.Op == OpBtst, in.Op == OpIgrtr,
				in.Op == OpDless, in.Op == OpPrintr, in.Op == OpRtrue, in.Op == OpRfalse:
				seen[in.Op.String()] = true
			case in.Op == OpEqual && len(in.Args) > 3:
				seen["EQUAL? merged"] = true
			case in.Op == OpAdd && in.Store != nil && !IsStack(in.Store) && len(in.Args) == 2 && IsConstant(in.Args[0]):
				seen["PUSH folded"] = true
			case in.Op == OpAdd && in.Store != nil && !IsStack(in.Store) && in.Args[0] != in.Store && IsConstant(in.Args[1]):
				seen["SET through stack"] = true
			case in.Op == OpReturn && IsConstant(in.Args[0]):
				seen["PUSH RSTACK"] = true
			}
		}
	}
	for _, rule := range []string{"INC", "DEC", "BTST", "IGRTR?", "DLESS?", "PRINTR", "RTRUE", "RFALSE",
		"EQUAL? merged", "PUSH folded", "SET through stack", "PUSH RSTACK"} {
		if !seen[rule] {
			t.Errorf("rule producing %s never applied", rule)
		}
	}
}

func TestCombiner_FirstThenZeroIsOppositeTest(t *testing.T) {
	p := newZProg()
	p.branch(OpFirst, p.b, "?Z", true, p.a)
	p.plain(OpPrintn, nil, p.b)
	p.branch(OpZero, nil, "?OUT", true, p.b).Label = "?Z"
	p.add(&Instr{Op: OpRfalse}, "", peephole.Terminator)
	p.add(&Instr{Op: OpRtrue}, "", peephole.Terminator).Label = "?OUT"

	combined := combineZ(p.lines)
	if got := renderZ(combined); !strings.Contains(got, "FIRST? A >B /") || strings.Contains(got, "/?Z") {
		t.Errorf("FIRST? still branches to the ZERO? test:\n%s", got)
	}
	for a := 0; a < 4; a++ {
		init := [3]int{a, 0, 0}
		if got, want := runZ(p, combined, init), runZ(p, p.lines, init); got != want {
			t.Errorf("A=%d: got = %+v, want %+v", a, got, want)
		}
	}
}
