package zilg

import (
	"fmt"
	"strings"

	"github.com/fzipp/zil-compiler/peephole"
)

// Label is a branch target inside a routine.
type Label = peephole.Label

// SourceLine is a debug sequence point.
type SourceLine struct {
	File int
	Line int
	Col  int
}

// Instr is one instruction. Branch targets live in the peephole line that
// carries the instruction.
type Instr struct {
	Op    Op
	Args  []Operand
	Store *Variable // nil when the instruction stores nothing
	Text  string    // PRINTI and PRINTR

	Lines []SourceLine
}

func (in *Instr) readsStack() bool {
	for i, a := range in.Args {
		if i == 0 && in.Op.VarArg() {
			continue
		}
		if IsStack(a) {
			return true
		}
	}
	return false
}

// hasEffect reports whether in does anything besides testing.
func (in *Instr) hasEffect() bool {
	return !in.Op.IsPure() || in.Store != nil || in.readsStack()
}

func sameOperands(a, b []Operand) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (in *Instr) identical(o *Instr) bool {
	return in.Op == o.Op && in.Store == o.Store && in.Text == o.Text && sameOperands(in.Args, o.Args)
}

func lineType(op Op, branch bool, polarity bool) peephole.LineType {
	switch {
	case branch && polarity:
		return peephole.BranchPositive
	case branch:
		return peephole.BranchNegative
	case op == OpJump:
		return peephole.BranchAlways
	case opTable[op].heavy:
		return peephole.HeavyTerminator
	case op.IsTerminator():
		return peephole.Terminator
	}
	return peephole.Plain
}

// quoteText renders a string for the assembler: quotes are doubled and
// newlines become |.
func quoteText(s string) string {
	s = strings.ReplaceAll(s, `"`, `""`)
	s = strings.ReplaceAll(s, "\n", "|")
	return `"` + s + `"`
}

// Render returns the assembler text of in with its branch.
func (in *Instr) Render(target Label, typ peephole.LineType) string {
	var b strings.Builder
	b.WriteString(in.Op.String())
	if in.Op.HasText() {
		b.WriteByte(' ')
		b.WriteString(quoteText(in.Text))
	}
	for i, a := range in.Args {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}
		if i == 0 && in.Op.VarArg() {
			if v, ok := a.(*Variable); ok {
				b.WriteString("'" + v.Name)
				continue
			}
		}
		b.WriteString(a.String())
	}
	if in.Store != nil {
		b.WriteString(" >" + in.Store.Name)
	}
	switch typ {
	case peephole.BranchPositive:
		b.WriteString(" /" + string(target))
	case peephole.BranchNegative:
		b.WriteString(" \\" + string(target))
	case peephole.BranchAlways:
		if in.Op == OpJump {
			b.WriteString(" " + string(target))
		}
	}
	return b.String()
}

func (in *Instr) String() string {
	return in.Render("", peephole.Plain)
}

// debugLines renders the sequence points attached to in.
func (in *Instr) debugLines() []string {
	var s []string
	for _, l := range in.Lines {
		s = append(s, fmt.Sprintf(".DEBUG-LINE %d,%d,%d", l.File, l.Line, l.Col))
	}
	return s
}
