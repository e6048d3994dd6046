package zilg

import (
	"fmt"
	"strings"

	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/peephole"
)

// Local is a parameter or local variable of a routine.
type Local struct {
	Var     *Variable
	Default Operand // nil when the local starts as 0 or as the caller's argument
}

// RoutineBuilder collects the code of one routine. Instructions go through a
// peephole buffer; Finish optimizes and renders them.
type RoutineBuilder struct {
	Name       string
	Entry      bool
	CleanStack bool
	Pos        SourceLine // debug position of the definition

	game     *Game
	sym      *Symbol
	required []*Local
	optional []*Local
	aux      []*Local
	byName   map[string]*Local

	buf     *peephole.Buffer[*Instr]
	nlabel  int
	pending []SourceLine

	code     []Item
	finished bool
}

func newRoutineBuilder(g *Game, name string, entry, cleanStack bool) *RoutineBuilder {
	rb := &RoutineBuilder{
		Name:       name,
		Entry:      entry,
		CleanStack: cleanStack,
		game:       g,
		sym:        &Symbol{Kind: SymRoutine, Name: name},
		byName:     make(map[string]*Local),
	}
	rb.buf = peephole.NewBuffer[*Instr](&zapCombiner{version: g.Version}, rb.NewLabel)
	return rb
}

// Operand returns the routine's address.
func (rb *RoutineBuilder) Operand() Operand { return rb.sym }

func (rb *RoutineBuilder) Version() int { return rb.game.Version }

// Game returns the game the routine belongs to.
func (rb *RoutineBuilder) Game() *Game { return rb.game }

// MinArgs is the number of required parameters.
func (rb *RoutineBuilder) MinArgs() int { return len(rb.required) }

// MaxArgs is the number of required and optional parameters.
func (rb *RoutineBuilder) MaxArgs() int { return len(rb.required) + len(rb.optional) }

// LocalCount is the number of local variable slots in use.
func (rb *RoutineBuilder) LocalCount() int {
	return len(rb.required) + len(rb.optional) + len(rb.aux)
}

// HasSpareSlot reports whether another local fits.
func (rb *RoutineBuilder) HasSpareSlot() bool {
	return rb.LocalCount() < rb.game.limits.MaxLocals
}

// Local looks up a local by its sanitized name.
func (rb *RoutineBuilder) Local(name string) (*Variable, bool) {
	l, ok := rb.byName[name]
	if !ok {
		return nil, false
	}
	return l.Var, true
}

func (rb *RoutineBuilder) addLocal(list *[]*Local, name string, def Operand) (*Variable, error) {
	name = Sanitize(name)
	if _, dup := rb.byName[name]; dup {
		return nil, &diag.DuplicateSymbolError{Name: name, Category: "local"}
	}
	if max := rb.game.limits.MaxLocals; rb.LocalCount() >= max {
		return nil, &diag.LimitExceededError{Limit: "locals in " + rb.Name, Max: max, Got: rb.LocalCount() + 1}
	}
	l := &Local{Var: &Variable{Kind: VarLocal, Name: name}, Default: def}
	*list = append(*list, l)
	rb.byName[name] = l
	return l.Var, nil
}

func (rb *RoutineBuilder) DefineRequiredParameter(name string) (*Variable, error) {
	if len(rb.optional) > 0 || len(rb.aux) > 0 {
		return nil, fmt.Errorf("%s: required parameter %s after optional parameters or locals", rb.Name, name)
	}
	return rb.addLocal(&rb.required, name, nil)
}

// DefineOptionalParameter adds a parameter the caller may omit. Before
// version 5 the default must be a constant; it is stored in the routine
// header.
func (rb *RoutineBuilder) DefineOptionalParameter(name string, def Operand) (*Variable, error) {
	if len(rb.aux) > 0 {
		return nil, fmt.Errorf("%s: optional parameter %s after locals", rb.Name, name)
	}
	if def != nil && !IsConstant(def) && rb.game.Version < 5 {
		return nil, &diag.NonConstantInitializerError{What: "default of " + name}
	}
	return rb.addLocal(&rb.optional, name, def)
}

// DefineLocal adds an auxiliary local. As with optional parameters, a
// default before version 5 must be a constant.
func (rb *RoutineBuilder) DefineLocal(name string, def Operand) (*Variable, error) {
	if def != nil && !IsConstant(def) && rb.game.Version < 5 {
		return nil, &diag.NonConstantInitializerError{What: "default of " + name}
	}
	return rb.addLocal(&rb.aux, name, def)
}

// AddSpareLocal adds a local for compiler use with a name derived from
// base that does not clash with existing locals.
func (rb *RoutineBuilder) AddSpareLocal(base string) (*Variable, error) {
	name := Sanitize(base)
	for i := 1; ; i++ {
		if _, ok := rb.byName[name]; !ok {
			break
		}
		name = fmt.Sprintf("%s?%d", Sanitize(base), i)
	}
	return rb.addLocal(&rb.aux, name, nil)
}

// Code generation

func (rb *RoutineBuilder) NewLabel() Label {
	rb.nlabel++
	return Label(fmt.Sprintf("?L%d", rb.nlabel))
}

func (rb *RoutineBuilder) MarkLabel(l Label) { rb.buf.MarkLabel(l) }

// MarkSequencePoint attaches a debug line to the next instruction.
func (rb *RoutineBuilder) MarkSequencePoint(l SourceLine) {
	if rb.game.opts.Debug {
		rb.pending = append(rb.pending, l)
	}
}

// Reachable reports whether the next instruction can be reached.
func (rb *RoutineBuilder) Reachable() bool { return rb.buf.Reachable() }

func (rb *RoutineBuilder) add(in *Instr, target Label, typ peephole.LineType) {
	if rb.finished {
		panic("zilg: emit into finished routine " + rb.Name)
	}
	if !in.Op.Available(rb.game.Version) {
		panic(fmt.Sprintf("zilg: %s is not available in version %d", in.Op, rb.game.Version))
	}
	if len(rb.pending) > 0 {
		in.Lines = rb.pending
		rb.pending = nil
	}
	rb.buf.AddLine(in, target, typ)
}

// Emit adds an instruction that neither stores nor branches.
func (rb *RoutineBuilder) Emit(op Op, args ...Operand) {
	rb.add(&Instr{Op: op, Args: args}, "", lineType(op, false, false))
}

// EmitStore adds an instruction storing into dest.
func (rb *RoutineBuilder) EmitStore(op Op, dest *Variable, args ...Operand) {
	rb.add(&Instr{Op: op, Args: args, Store: dest}, "", lineType(op, false, false))
}

// EmitBranch adds a test that jumps to target when its outcome equals
// polarity.
func (rb *RoutineBuilder) EmitBranch(op Op, target Label, polarity bool, args ...Operand) {
	rb.add(&Instr{Op: op, Args: args}, target, lineType(op, true, polarity))
}

// EmitStoreBranch adds an instruction that both stores and branches, such
// as FIRST? or INTBL?.
func (rb *RoutineBuilder) EmitStoreBranch(op Op, dest *Variable, target Label, polarity bool, args ...Operand) {
	rb.add(&Instr{Op: op, Args: args, Store: dest}, target, lineType(op, true, polarity))
}

func (rb *RoutineBuilder) EmitJump(target Label) {
	rb.add(&Instr{Op: OpJump}, target, peephole.BranchAlways)
}

func (rb *RoutineBuilder) EmitPrint(text string) {
	rb.add(&Instr{Op: OpPrinti, Text: text}, "", peephole.Plain)
}

// EmitPrintReturn prints text and a newline, then returns true.
func (rb *RoutineBuilder) EmitPrintReturn(text string) {
	rb.add(&Instr{Op: OpPrintr, Text: text}, "", peephole.HeavyTerminator)
}

func (rb *RoutineBuilder) EmitReturn(value Operand) {
	rb.add(&Instr{Op: OpReturn, Args: []Operand{value}}, "", peephole.Terminator)
}

func (rb *RoutineBuilder) EmitQuit() {
	rb.add(&Instr{Op: OpQuit}, "", peephole.HeavyTerminator)
}

// EmitSet assigns value to dest. Assigning to the stack pushes.
func (rb *RoutineBuilder) EmitSet(dest *Variable, value Operand) {
	if IsStack(dest) {
		rb.Emit(OpPush, value)
		return
	}
	rb.Emit(OpSet, dest, value)
}

// EmitPopStack discards the top of the stack.
func (rb *RoutineBuilder) EmitPopStack() {
	if rb.game.Version <= 4 {
		rb.Emit(OpFstack)
		return
	}
	rb.Emit(OpIcall2, rb.game.ops.zero, Stack)
}

// EmitCall calls routine with args and stores the result in dest. A nil
// dest discards the result: from version 5 through a non-storing call,
// before that by popping it off the stack.
func (rb *RoutineBuilder) EmitCall(routine Operand, args []Operand, dest *Variable) {
	discard := dest == nil
	op := CallOp(rb.game.Version, len(args), discard)
	all := append([]Operand{routine}, args...)
	if !op.Stores(rb.game.Version) {
		rb.Emit(op, all...)
		return
	}
	if discard {
		rb.EmitStore(op, Stack, all...)
		rb.EmitPopStack()
		return
	}
	rb.EmitStore(op, dest, all...)
}

// Finish optimizes the buffered code and renders it. The builder accepts
// no further instructions afterwards.
func (rb *RoutineBuilder) Finish() {
	if rb.finished {
		return
	}
	rb.pending = nil
	first := true
	rb.buf.Finish(func(l peephole.Line[*Instr]) {
		if l.Label != "" {
			rb.code = append(rb.code, Item{Kind: ItemLabel, Name: string(l.Label), Local: true})
		}
		if l.IsAnchor() {
			return
		}
		if first && rb.Entry && rb.game.Version < 6 {
			rb.code = append(rb.code, Item{Kind: ItemLabel, Name: "START"})
		}
		first = false
		for _, d := range l.Code.debugLines() {
			rb.code = append(rb.code, Item{Kind: ItemDirective, Text: d})
		}
		rb.code = append(rb.code, Item{Kind: ItemInstr, Text: l.Code.Render(l.Target, l.Type)})
	})
	rb.finished = true
}

// header renders the .FUNCT directive. Defaults appear in the header only
// before version 5; later versions initialize them in code.
func (rb *RoutineBuilder) header() string {
	var b strings.Builder
	b.WriteString(".FUNCT " + rb.Name)
	for _, list := range [][]*Local{rb.required, rb.optional, rb.aux} {
		for _, l := range list {
			b.WriteString("," + l.Var.Name)
			if l.Default != nil && rb.game.Version < 5 {
				b.WriteString("=" + l.Default.String())
			}
		}
	}
	return b.String()
}

// Defaults returns the locals whose defaults must be set by code at the
// start of the routine: from version 5 all of them. Optional parameters
// are only set if the caller omitted them.
func (rb *RoutineBuilder) Defaults() (optional, aux []*Local) {
	if rb.game.Version < 5 {
		return nil, nil
	}
	for _, l := range rb.optional {
		if l.Default != nil {
			optional = append(optional, l)
		}
	}
	for _, l := range rb.aux {
		if l.Default != nil {
			aux = append(aux, l)
		}
	}
	return optional, aux
}

// Items returns the rendered routine including its header.
func (rb *RoutineBuilder) Items() []Item {
	items := make([]Item, 0, len(rb.code)+3)
	if rb.game.opts.Debug {
		var names []string
		for _, list := range [][]*Local{rb.required, rb.optional, rb.aux} {
			for _, l := range list {
				names = append(names, quoteText(l.Var.Name))
			}
		}
		args := fmt.Sprintf("%d,%d,%d,%s", rb.Pos.File, rb.Pos.Line, rb.Pos.Col, quoteText(rb.Name))
		if len(names) > 0 {
			args += "," + strings.Join(names, ",")
		}
		items = append(items, Item{Kind: ItemDirective, Text: ".DEBUG-ROUTINE " + args})
	}
	items = append(items, Item{Kind: ItemDirective, Text: rb.header()})
	items = append(items, rb.code...)
	if rb.game.opts.Debug {
		items = append(items, Item{Kind: ItemDirective, Text: ".DEBUG-ROUTINE-END"})
	}
	return items
}
