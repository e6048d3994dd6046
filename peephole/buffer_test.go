package peephole

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

// A small abstract instruction set for exercising the buffer.
//
//	set v k    var[v] = k
//	add v k    var[v] += k
//	push k     push k
//	pop v      var[v] = pop
//	print k    output k
//	eq v k     test var[v] == k
//	ne v k     test var[v] != k
//	zero       test pop == 0
//	ret k      return k
//	jump       unconditional jump
type tinstr struct {
	op   string
	v, k int
}

func (t tinstr) String() string {
	switch t.op {
	case "jump", "zero":
		return t.op
	case "push", "print", "ret":
		return fmt.Sprintf("%s %d", t.op, t.k)
	case "pop":
		return fmt.Sprintf("pop %d", t.v)
	}
	return fmt.Sprintf("%s %d %d", t.op, t.v, t.k)
}

type testCombiner struct{}

func (testCombiner) Apply(w []Line[tinstr]) Result[tinstr] {
	a := w[0].Code
	if w[0].Type == Plain && a.op == "add" && a.k == 0 {
		return Replace[tinstr](1)
	}
	if len(w) < 2 {
		return NoMatch[tinstr]()
	}
	b := w[1].Code
	if w[0].Type != Plain || w[1].Type != Plain {
		return NoMatch[tinstr]()
	}
	switch {
	case a.op == "add" && b.op == "add" && a.v == b.v:
		return Replace(2, Replacement[tinstr]{Code: tinstr{op: "add", v: a.v, k: a.k + b.k}})
	case a.op == "push" && b.op == "pop":
		return Replace(2, Replacement[tinstr]{Code: tinstr{op: "set", v: b.v, k: a.k}})
	case a.op == "set" && b.op == "set" && a.v == b.v:
		return Replace(2, Replacement[tinstr]{Code: b})
	}
	return NoMatch[tinstr]()
}

func (testCombiner) SynthesizeBranchAlways() tinstr { return tinstr{op: "jump"} }

func (testCombiner) AreIdentical(a, b tinstr) bool { return a == b }

func (testCombiner) MergeIdentical(a, _ tinstr) tinstr { return a }

func (testCombiner) AreSameTest(a, b tinstr) SameTestResult {
	test := func(t tinstr) bool { return t.op == "eq" || t.op == "ne" }
	if !test(a) || !test(b) || a.v != b.v || a.k != b.k {
		return Unrelated
	}
	if a.op == b.op {
		return SameTest
	}
	return OppositeTest
}

func (testCombiner) ControlsConditionalBranch(a, b tinstr) Condition {
	if a.op != "push" || b.op != "zero" {
		return ConditionUnknown
	}
	if a.k == 0 {
		return ConditionTrue
	}
	return ConditionFalse
}

func (testCombiner) ReturnLabel(code tinstr) (Label, bool) {
	if code.op != "ret" {
		return "", false
	}
	switch code.k {
	case 1:
		return TrueLabel, true
	case 0:
		return FalseLabel, true
	}
	return "", false
}

type state struct {
	vars   [3]int
	stack  []int
	output []int
	ret    int
	done   string
}

func (s *state) pop() int {
	if len(s.stack) == 0 {
		return 0
	}
	v := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return v
}

// run interprets lines from the initial variables.
func run(lines []Line[tinstr], vars [3]int) state {
	s := state{vars: vars}
	idx := make(map[Label]int)
	for i, l := range lines {
		if l.Label != "" {
			idx[l.Label] = i
		}
	}
	pc := 0
	for steps := 0; steps < 10000; steps++ {
		if pc >= len(lines) {
			s.done = "fell off"
			return s
		}
		l := lines[pc]
		pc++
		if l.IsAnchor() {
			continue
		}
		c := l.Code
		var cond bool
		switch c.op {
		case "set":
			s.vars[c.v] = c.k
		case "add":
			s.vars[c.v] += c.k
		case "push":
			s.stack = append(s.stack, c.k)
		case "pop":
			s.vars[c.v] = s.pop()
		case "print":
			s.output = append(s.output, c.k)
		case "eq":
			cond = s.vars[c.v] == c.k
		case "ne":
			cond = s.vars[c.v] != c.k
		case "zero":
			cond = s.pop() == 0
		case "ret":
			s.ret, s.done = c.k, "returned"
			return s
		}
		target := l.Target
		switch l.Type {
		case BranchAlways:
		case BranchPositive, BranchNegative:
			if !branchTaken(l.Type, cond) {
				continue
			}
		default:
			continue
		}
		switch target {
		case TrueLabel:
			s.ret, s.done = 1, "returned"
			return s
		case FalseLabel:
			s.ret, s.done = 0, "returned"
			return s
		}
		pc = idx[target]
	}
	s.done = "timeout"
	return s
}

// randomProgram builds a program whose branches only go forward and whose
// last line is a terminator.
func randomProgram(rng *rand.Rand) []Line[tinstr] {
	n := 4 + rng.Intn(24)
	labels := make([]Label, n)
	for i := 1; i < n; i++ {
		if rng.Intn(3) == 0 {
			labels[i] = Label(fmt.Sprintf("L%d", i))
		}
	}
	forward := func(i int) Label {
		var cands []Label
		for j := i + 1; j < n; j++ {
			if labels[j] != "" {
				cands = append(cands, labels[j])
			}
		}
		if len(cands) == 0 || rng.Intn(8) == 0 {
			return []Label{TrueLabel, FalseLabel}[rng.Intn(2)]
		}
		return cands[rng.Intn(len(cands))]
	}
	lines := make([]Line[tinstr], n)
	for i := 0; i < n; i++ {
		l := Line[tinstr]{Label: labels[i]}
		v, k := rng.Intn(3), rng.Intn(3)
		switch r := rng.Intn(12); {
		case i == n-1 || r == 0:
			l.Code, l.Type = tinstr{op: "ret", k: rng.Intn(3)}, Terminator
		case r == 1:
			l.Code, l.Type = tinstr{op: "set", v: v, k: k}, Plain
		case r == 2:
			l.Code, l.Type = tinstr{op: "add", v: v, k: k - 1}, Plain
		case r == 3:
			l.Code, l.Type = tinstr{op: "push", k: k % 2}, Plain
		case r == 4:
			l.Code, l.Type = tinstr{op: "pop", v: v}, Plain
		case r == 5:
			l.Code, l.Type = tinstr{op: "print", k: k}, Plain
		case r == 6:
			t := forward(i)
			if t.IsReturn() {
				l.Code, l.Type = tinstr{op: "ret", k: k}, Terminator
			} else {
				l.Code, l.Type, l.Target = tinstr{op: "jump"}, BranchAlways, t
			}
		case r == 7:
			l.Code, l.Type, l.Target = tinstr{op: "zero"}, BranchPositive, forward(i)
		default:
			op := []string{"eq", "ne"}[rng.Intn(2)]
			typ := []LineType{BranchPositive, BranchNegative}[rng.Intn(2)]
			l.Code, l.Type, l.Target = tinstr{op: op, v: v, k: k % 2}, typ, forward(i)
		}
		lines[i] = l
	}
	return lines
}

func optimize(lines []Line[tinstr]) []Line[tinstr] {
	n := 0
	b := NewBuffer[tinstr](testCombiner{}, func() Label {
		n++
		return Label(fmt.Sprintf("N%d", n))
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
	var out []Line[tinstr]
	b.Finish(func(l Line[tinstr]) { out = append(out, l) })
	return out
}

func render(lines []Line[tinstr]) string {
	var sb strings.Builder
	for _, l := range lines {
		if l.Label != "" {
			fmt.Fprintf(&sb, "%s: ", l.Label)
		}
		if !l.IsAnchor() {
			fmt.Fprintf(&sb, "%v %v %s", l.Code, l.Type, l.Target)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func allInputs() [][3]int {
	var in [][3]int
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			for c := 0; c < 3; c++ {
				in = append(in, [3]int{a, b, c})
			}
		}
	}
	return in
}

func TestBuffer_RandomProgramsKeepBehaviour(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 2000; n++ {
		prog := randomProgram(rng)
		opt := optimize(prog)
		for _, in := range allInputs() {
			want := run(prog, in)
			got := run(opt, in)
			want.stack, got.stack = nil, nil
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("program %d with %v:\n%s\noptimized:\n%s\ngot  %+v\nwant %+v",
					n, in, render(prog), render(opt), got, want)
			}
		}
	}
}

func TestBuffer_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for n := 0; n < 2000; n++ {
		once := optimize(randomProgram(rng))
		twice := optimize(once)
		if a, b := render(once), render(twice); a != b {
			t.Fatalf("program %d not idempotent:\n%s\nsecond run:\n%s", n, a, b)
		}
	}
}

func TestBuffer_NeverGrows(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for n := 0; n < 500; n++ {
		prog := randomProgram(rng)
		if opt := optimize(prog); len(opt) > len(prog) {
			t.Fatalf("program %d grew from %d to %d lines:\n%s\n%s", n, len(prog), len(opt), render(prog), render(opt))
		}
	}
}

func TestBuffer_Rules(t *testing.T) {
	L := func(name string) Label { return Label(name) }
	tests := []struct {
		name string
		in   []Line[tinstr]
		want string
	}{
		{
			name: "jump to next line",
			in: []Line[tinstr]{
				{Code: tinstr{op: "jump"}, Target: L("A"), Type: BranchAlways},
				{Label: L("A"), Code: tinstr{op: "ret", k: 2}, Type: Terminator},
			},
			want: "ret 2 terminator \n",
		},
		{
			name: "branch over jump",
			in: []Line[tinstr]{
				{Code: tinstr{op: "eq", v: 0, k: 1}, Target: L("A"), Type: BranchPositive},
				{Code: tinstr{op: "jump"}, Target: L("B"), Type: BranchAlways},
				{Label: L("A"), Code: tinstr{op: "print", k: 1}, Type: Plain},
				{Label: L("B"), Code: tinstr{op: "ret", k: 2}, Type: HeavyTerminator},
			},
			want: "eq 0 1 negative B\nprint 1 plain \nB: ret 2 heavy \n",
		},
		{
			name: "branch to return true",
			in: []Line[tinstr]{
				{Code: tinstr{op: "eq", v: 0, k: 1}, Target: L("A"), Type: BranchPositive},
				{Code: tinstr{op: "print", k: 1}, Type: Plain},
				{Label: L("A"), Code: tinstr{op: "ret", k: 1}, Type: Terminator},
			},
			want: "eq 0 1 positive TRUE\nprint 1 plain \nret 1 terminator \n",
		},
		{
			name: "pushed constant decides test",
			in: []Line[tinstr]{
				{Code: tinstr{op: "push", k: 0}, Type: Plain},
				{Code: tinstr{op: "zero"}, Target: L("A"), Type: BranchNegative},
				{Code: tinstr{op: "print", k: 1}, Type: Plain},
				{Label: L("A"), Code: tinstr{op: "ret", k: 2}, Type: HeavyTerminator},
			},
			want: "print 1 plain \nret 2 heavy \n",
		},
		{
			name: "same test on fallthrough",
			in: []Line[tinstr]{
				{Code: tinstr{op: "eq", v: 1, k: 0}, Target: L("A"), Type: BranchPositive},
				{Code: tinstr{op: "ne", v: 1, k: 0}, Target: L("B"), Type: BranchPositive},
				{Label: L("A"), Code: tinstr{op: "print", k: 1}, Type: Plain},
				{Label: L("B"), Code: tinstr{op: "ret", k: 2}, Type: HeavyTerminator},
			},
			// The second test becomes a jump, and the branch over that
			// jump is inverted.
			want: "eq 1 0 negative B\nprint 1 plain \nB: ret 2 heavy \n",
		},
	}
	for _, tt := range tests {
		got := render(optimize(tt.in))
		if got != tt.want {
			t.Errorf("%s:\ngot\n%swant\n%s", tt.name, got, tt.want)
		}
	}
}
