package zilg

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fzipp/zil-compiler/diag"
)

func itemText(it Item) string {
	switch it.Kind {
	case ItemLabel:
		if it.Local {
			return it.Name + ":"
		}
		return it.Name + "::"
	case ItemEquate:
		return it.Name + "=" + it.Text
	}
	return it.Text
}

func newTestRoutine(t *testing.T, version int) (*Game, *RoutineBuilder) {
	t.Helper()
	g := NewGame(Options{Version: version})
	rb, err := g.DefineRoutine("F", false, false)
	if err != nil {
		t.Fatalf("DefineRoutine: %v", err)
	}
	return g, rb
}

// body returns the finished code without the header.
func body(rb *RoutineBuilder) []string {
	rb.Finish()
	var lines []string
	for _, it := range rb.code {
		lines = append(lines, itemText(it))
	}
	return lines
}

func checkBody(t *testing.T, rb *RoutineBuilder, want ...string) {
	t.Helper()
	if got := body(rb); !reflect.DeepEqual(got, want) {
		t.Errorf("code =\n\t%s\nwant\n\t%s", strings.Join(got, "\n\t"), strings.Join(want, "\n\t"))
	}
}

func TestRoutine_ReturnConstants(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	l := rb.NewLabel()
	x, _ := rb.DefineRequiredParameter("X")
	rb.EmitBranch(OpZero, l, true, x)
	rb.EmitReturn(g.One())
	rb.MarkLabel(l)
	rb.EmitReturn(g.Zero())
	checkBody(t, rb, "ZERO? X /FALSE", "RTRUE")
}

func TestRoutine_PrintCrlfReturn(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	rb.EmitPrint("Hello, ")
	rb.EmitPrint("world.")
	rb.Emit(OpCrlf)
	rb.EmitReturn(g.One())
	checkBody(t, rb, `PRINTR "Hello, world."`)
}

func TestRoutine_Increment(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	x, _ := rb.DefineLocal("X", nil)
	rb.EmitStore(OpAdd, x, x, g.One())
	rb.EmitStore(OpSub, x, x, g.One())
	rb.EmitStore(OpAdd, x, g.One(), x)
	rb.EmitReturn(x)
	checkBody(t, rb, "INC 'X", "DEC 'X", "INC 'X", "RETURN X")
}

func TestRoutine_StoreThroughStack(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	x, _ := rb.DefineLocal("X", nil)
	tbl, _ := g.DefineTable("TBL", 0)
	rb.EmitStore(OpGet, Stack, tbl.Operand(), g.One())
	rb.EmitSet(x, Stack)
	rb.EmitSet(Stack, g.Number(7))
	rb.EmitReturn(Stack)
	checkBody(t, rb, "GET TBL,1 >X", "RETURN 7")
}

func TestRoutine_DiscardedCall(t *testing.T) {
	for _, tt := range []struct {
		version int
		want    []string
	}{
		{3, []string{"CALL G >STACK", "FSTACK", "RTRUE"}},
		{4, []string{"CALL1 G >STACK", "FSTACK", "RTRUE"}},
		{5, []string{"ICALL1 G", "RTRUE"}},
	} {
		g, rb := newTestRoutine(t, tt.version)
		callee, _ := g.DefineRoutine("G", false, false)
		rb.EmitCall(callee.Operand(), nil, nil)
		rb.EmitReturn(g.One())
		checkBody(t, rb, tt.want...)
	}
}

func TestRoutine_CallOpcodes(t *testing.T) {
	g, rb := newTestRoutine(t, 5)
	callee, _ := g.DefineRoutine("G", false, false)
	x, _ := rb.DefineLocal("X", nil)
	rb.EmitCall(callee.Operand(), []Operand{g.One()}, x)
	rb.EmitCall(callee.Operand(), []Operand{g.One(), x, x, x}, nil)
	rb.EmitReturn(x)
	checkBody(t, rb, "CALL2 G,1 >X", "IXCALL G,1,X,X,X", "RETURN X")
}

func TestRoutine_PureValueDiscarded(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	x, _ := rb.DefineLocal("X", nil)
	rb.EmitStore(OpAdd, Stack, x, g.Number(3))
	rb.EmitPopStack()
	rb.Emit(OpPush, x)
	rb.EmitPopStack()
	rb.EmitReturn(g.One())
	checkBody(t, rb, "RTRUE")
}

func TestRoutine_BitTest(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	x, _ := rb.DefineLocal("X", nil)
	l := rb.NewLabel()
	rb.EmitStore(OpBand, Stack, x, g.Number(4))
	rb.EmitBranch(OpZero, l, false, Stack)
	rb.EmitPrint("no")
	rb.EmitReturn(g.Zero())
	rb.MarkLabel(l)
	rb.EmitPrint("yes")
	rb.EmitReturn(g.One())
	checkBody(t, rb, "BTST X,4 /?L1", `PRINTI "no"`, "RFALSE", "?L1:", `PRINTI "yes"`, "RTRUE")
}

func TestRoutine_EqualChain(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	x, _ := rb.DefineLocal("X", nil)
	l := rb.NewLabel()
	rb.EmitBranch(OpEqual, l, true, x, g.One())
	rb.EmitBranch(OpEqual, l, true, x, g.Number(2))
	rb.EmitReturn(g.Zero())
	rb.MarkLabel(l)
	rb.EmitReturn(g.One())
	checkBody(t, rb, "EQUAL? X,1,2 /TRUE", "RFALSE")
}

func TestRoutine_IncrementAndTest(t *testing.T) {
	g, rb := newTestRoutine(t, 3)
	x, _ := rb.DefineLocal("X", nil)
	l := rb.NewLabel()
	rb.MarkLabel(l)
	rb.Emit(OpInc, x)
	rb.EmitBranch(OpGrtr, l, false, x, g.Number(10))
	rb.EmitReturn(x)
	checkBody(t, rb, "?L1:", "IGRTR? 'X,10 \\?L1", "RETURN X")
}

func TestRoutine_Header(t *testing.T) {
	for _, tt := range []struct {
		version int
		want    string
	}{
		{3, ".FUNCT F,A,B=5,C=1"},
		{5, ".FUNCT F,A,B,C"},
	} {
		g, rb := newTestRoutine(t, tt.version)
		rb.DefineRequiredParameter("A")
		rb.DefineOptionalParameter("B", g.Number(5))
		rb.DefineLocal("C", g.One())
		if got := rb.header(); got != tt.want {
			t.Errorf("v%d: header = %q, want %q", tt.version, got, tt.want)
		}
		opt, aux := rb.Defaults()
		if tt.version >= 5 && (len(opt) != 1 || len(aux) != 1) {
			t.Errorf("v%d: Defaults = %d, %d, want 1, 1", tt.version, len(opt), len(aux))
		}
		if lo, hi := rb.MinArgs(), rb.MaxArgs(); lo != 1 || hi != 2 {
			t.Errorf("v%d: arity = %d..%d, want 1..2", tt.version, lo, hi)
		}
	}
}

func TestRoutine_NonConstantDefault(t *testing.T) {
	_, rb := newTestRoutine(t, 3)
	_, err := rb.DefineLocal("X", Stack)
	var nc *diag.NonConstantInitializerError
	if !errors.As(err, &nc) {
		t.Fatalf("err = %v, want NonConstantInitializerError", err)
	}
}

func TestRoutine_TooManyLocals(t *testing.T) {
	_, rb := newTestRoutine(t, 5)
	for i := 0; i < 15; i++ {
		if _, err := rb.AddSpareLocal("X"); err != nil {
			t.Fatalf("local %d: %v", i+1, err)
		}
	}
	_, err := rb.AddSpareLocal("X")
	var le *diag.LimitExceededError
	if !errors.As(err, &le) || le.Max != 15 {
		t.Fatalf("err = %v, want LimitExceededError with Max 15", err)
	}
}

func TestRoutine_DuplicateLocal(t *testing.T) {
	_, rb := newTestRoutine(t, 3)
	rb.DefineRequiredParameter("X")
	_, err := rb.DefineLocal("X", nil)
	var dup *diag.DuplicateSymbolError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateSymbolError", err)
	}
}

func TestRoutine_SequencePoints(t *testing.T) {
	g := NewGame(Options{Version: 3, Debug: true})
	rb, _ := g.DefineRoutine("F", false, false)
	rb.Pos = SourceLine{File: 0, Line: 1, Col: 1}
	rb.MarkSequencePoint(SourceLine{File: 0, Line: 2, Col: 3})
	rb.EmitPrint("hi")
	rb.EmitReturn(g.One())
	rb.Finish()
	var got []string
	for _, it := range rb.Items() {
		got = append(got, itemText(it))
	}
	want := []string{
		`.DEBUG-ROUTINE 0,1,1,"F"`,
		".FUNCT F",
		".DEBUG-LINE 0,2,3",
		`PRINTI "hi"`,
		"RTRUE",
		".DEBUG-ROUTINE-END",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("items = %q, want %q", got, want)
	}
}
