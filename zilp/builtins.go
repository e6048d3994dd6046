package zilp

import (
	"strings"

	"github.com/fzipp/zil-compiler/zilg"
)

// shape is a way an operation can be compiled.
type shape int

const (
	shapeValue          shape = iota // stores a result
	shapeValuePredicate              // stores a result and branches
	shapePredicate                   // branches
	shapeVoid                        // neither
)

// preference lists the shapes to try for each mode, cheapest first.
var preference = [...][]shape{
	modeValue: {shapeValue, shapeValuePredicate, shapePredicate, shapeVoid},
	modeVoid:  {shapeVoid, shapePredicate, shapeValue, shapeValuePredicate},
	modeCond:  {shapePredicate, shapeValue, shapeValuePredicate, shapeVoid},
}

type (
	valueFunc     func(rc *routineCompiler, args []zilg.Operand, dest *zilg.Variable) zilg.Operand
	valuePredFunc func(rc *routineCompiler, args []zilg.Operand, dest *zilg.Variable, l zilg.Label, polarity bool)
	predFunc      func(rc *routineCompiler, args []zilg.Operand, l zilg.Label, polarity bool)
	voidFunc      func(rc *routineCompiler, args []zilg.Operand)
)

// builtin is one version- and arity-specific implementation of an
// operation, with a function for each shape it supports.
type builtin struct {
	name     string
	lo, hi   int // versions
	min, max int // argument counts, max -1 for any
	varArg   bool

	value     valueFunc
	valuePred valuePredFunc
	pred      predFunc
	void      voidFunc
}

func (b *builtin) has(s shape) bool {
	switch s {
	case shapeValue:
		return b.value != nil
	case shapeValuePredicate:
		return b.valuePred != nil
	case shapePredicate:
		return b.pred != nil
	}
	return b.void != nil
}

// pick returns the shape b is compiled with in mode m.
func (b *builtin) pick(m mode) (shape, bool) {
	for _, s := range preference[m] {
		if b.has(s) {
			return s, true
		}
	}
	return 0, false
}

func (b *builtin) accepts(version, argc int) bool {
	return version >= b.lo && version <= b.hi && argc >= b.min && (b.max < 0 || argc <= b.max)
}

// builtins maps an operation name to its implementations.
var builtins = make(map[string][]*builtin)

// lookupBuiltin finds the implementation of name for the target and
// argument count. found reports whether name is a builtin at all.
func lookupBuiltin(name string, version, argc int) (b *builtin, found bool) {
	list, found := builtins[name]
	for _, b := range list {
		if b.accepts(version, argc) {
			return b, true
		}
	}
	return nil, found
}

// def registers b under each of the space-separated names.
func def(names string, b builtin) {
	if b.lo == 0 {
		b.lo = 1
	}
	if b.hi == 0 {
		b.hi = 8
	}
	for _, name := range strings.Fields(names) {
		nb := b
		nb.name = name
		builtins[name] = append(builtins[name], &nb)
	}
}

func storeOp(op zilg.Op) valueFunc {
	return func(rc *routineCompiler, args []zilg.Operand, dest *zilg.Variable) zilg.Operand {
		rc.rb.EmitStore(op, dest, args...)
		return dest
	}
}

func storeBranchOp(op zilg.Op) valuePredFunc {
	return func(rc *routineCompiler, args []zilg.Operand, dest *zilg.Variable, l zilg.Label, polarity bool) {
		rc.rb.EmitStoreBranch(op, dest, l, polarity, args...)
	}
}

func branchOp(op zilg.Op) predFunc {
	return func(rc *routineCompiler, args []zilg.Operand, l zilg.Label, polarity bool) {
		rc.rb.EmitBranch(op, l, polarity, args...)
	}
}

func negate(p predFunc) predFunc {
	return func(rc *routineCompiler, args []zilg.Operand, l zilg.Label, polarity bool) {
		p(rc, args, l, !polarity)
	}
}

func plainOp(op zilg.Op) voidFunc {
	return func(rc *routineCompiler, args []zilg.Operand) {
		rc.rb.Emit(op, args...)
	}
}

// arith folds constant operands from the left and chains the rest
// through the stack, storing the final step in dest.
func arith(op zilg.Op, unit int, fold func(a, b int) (int, bool)) valueFunc {
	return func(rc *routineCompiler, args []zilg.Operand, dest *zilg.Variable) zilg.Operand {
		g := rc.c.game
		switch len(args) {
		case 0:
			return g.Number(unit)
		case 1:
			if op != zilg.OpSub {
				return args[0]
			}
			if n, ok := zilg.NumberValue(args[0]); ok {
				return g.Number(wrap16(-n))
			}
			rc.rb.EmitStore(op, dest, g.Zero(), args[0])
			return dest
		}
		acc := args[0]
		for i, a := range args[1:] {
			x, ok1 := zilg.NumberValue(acc)
			y, ok2 := zilg.NumberValue(a)
			if ok1 && ok2 {
				if v, ok := fold(x, y); ok {
					acc = g.Number(wrap16(v))
					continue
				}
			}
			d := zilg.Stack
			if i == len(args)-2 {
				d = dest
			}
			rc.rb.EmitStore(op, d, acc, a)
			acc = d
		}
		return acc
	}
}

// equalPred tests the first operand against the others, three at a time.
func equalPred(rc *routineCompiler, args []zilg.Operand, l zilg.Label, polarity bool) {
	x, rest := args[0], args[1:]
	if xv, ok := zilg.NumberValue(x); ok {
		match, known := false, true
		for _, a := range rest {
			v, ok := zilg.NumberValue(a)
			if !ok {
				known = false
				break
			}
			match = match || v == xv
		}
		if known {
			if match == polarity {
				rc.rb.EmitJump(l)
			}
			return
		}
	}
	if len(rest) > 3 && zilg.IsStack(x) {
		t := rc.temp()
		rc.rb.EmitSet(t, x)
		x = t
	}
	var chunks [][]zilg.Operand
	for len(rest) > 3 {
		chunks = append(chunks, rest[:3])
		rest = rest[3:]
	}
	chunks = append(chunks, rest)
	if polarity {
		for _, ch := range chunks {
			rc.rb.EmitBranch(zilg.OpEqual, l, true, append([]zilg.Operand{x}, ch...)...)
		}
		return
	}
	skip := rc.rb.NewLabel()
	for _, ch := range chunks[:len(chunks)-1] {
		rc.rb.EmitBranch(zilg.OpEqual, skip, true, append([]zilg.Operand{x}, ch...)...)
	}
	rc.rb.EmitBranch(zilg.OpEqual, l, false, append([]zilg.Operand{x}, chunks[len(chunks)-1]...)...)
	rc.rb.MarkLabel(skip)
}

func restOp(op zilg.Op) valueFunc {
	return func(rc *routineCompiler, args []zilg.Operand, dest *zilg.Variable) zilg.Operand {
		n := zilg.Operand(rc.c.game.One())
		if len(args) > 1 {
			n = args[1]
		}
		if numberIs(n, 0) {
			return args[0]
		}
		rc.rb.EmitStore(op, dest, args[0], n)
		return dest
	}
}

func numberIs(op zilg.Operand, v int) bool {
	n, ok := zilg.NumberValue(op)
	return ok && n == v
}

func returnConst(v int) voidFunc {
	return func(rc *routineCompiler, _ []zilg.Operand) {
		rc.rb.EmitReturn(rc.c.game.Number(v))
	}
}

func init() {
	add := func(a, b int) (int, bool) { return a + b, true }
	sub := func(a, b int) (int, bool) { return a - b, true }
	mul := func(a, b int) (int, bool) { return a * b, true }
	bor := func(a, b int) (int, bool) { return a | b, true }
	band := func(a, b int) (int, bool) { return a & b, true }

	// arithmetic
	def("+ ADD", builtin{max: -1, value: arith(zilg.OpAdd, 0, add)})
	def("- SUB", builtin{max: -1, value: arith(zilg.OpSub, 0, sub)})
	def("* MUL", builtin{max: -1, value: arith(zilg.OpMul, 1, mul)})
	def("/ DIV", builtin{min: 2, max: -1, value: arith(zilg.OpDiv, 1, div)})
	def("MOD", builtin{min: 2, max: -1, value: arith(zilg.OpMod, 0, mod)})
	def("BOR ORB", builtin{max: -1, value: arith(zilg.OpBor, 0, bor)})
	def("BAND ANDB", builtin{max: -1, value: arith(zilg.OpBand, -1, band)})
	def("BCOM", builtin{min: 1, max: 1, value: storeOp(zilg.OpBcom)})
	def("LSH SHIFT", builtin{lo: 5, min: 2, max: 2, value: storeOp(zilg.OpShift)})
	def("ASH ASHIFT", builtin{lo: 5, min: 2, max: 2, value: storeOp(zilg.OpAshift)})
	def("RANDOM", builtin{min: 1, max: 1, value: storeOp(zilg.OpRandom)})
	def("REST", builtin{min: 1, max: 2, value: restOp(zilg.OpAdd)})
	def("BACK", builtin{min: 1, max: 2, value: restOp(zilg.OpSub)})

	// comparisons
	def("==? =? EQUAL?", builtin{min: 2, max: -1, pred: equalPred})
	def("N==? N=?", builtin{min: 2, max: -1, pred: negate(equalPred)})
	def("L? LESS?", builtin{min: 2, max: 2, pred: branchOp(zilg.OpLess)})
	def("G? GRTR?", builtin{min: 2, max: 2, pred: branchOp(zilg.OpGrtr)})
	def("L=?", builtin{min: 2, max: 2, pred: negate(branchOp(zilg.OpGrtr))})
	def("G=?", builtin{min: 2, max: 2, pred: negate(branchOp(zilg.OpLess))})
	def("0? ZERO?", builtin{min: 1, max: 1, pred: branchOp(zilg.OpZero)})
	def("N0? T?", builtin{min: 1, max: 1, pred: negate(branchOp(zilg.OpZero))})
	def("1?", builtin{min: 1, max: 1, pred: func(rc *routineCompiler, args []zilg.Operand, l zilg.Label, polarity bool) {
		equalPred(rc, []zilg.Operand{args[0], rc.c.game.One()}, l, polarity)
	}})
	def("BTST", builtin{min: 2, max: 2, pred: branchOp(zilg.OpBtst)})

	// variables
	def("INC", builtin{min: 1, max: 1, varArg: true, void: plainOp(zilg.OpInc)})
	def("DEC", builtin{min: 1, max: 1, varArg: true, void: plainOp(zilg.OpDec)})
	def("IGRTR?", builtin{min: 2, max: 2, varArg: true, pred: branchOp(zilg.OpIgrtr)})
	def("DLESS?", builtin{min: 2, max: 2, varArg: true, pred: branchOp(zilg.OpDless)})
	def("VALUE", builtin{min: 1, max: 1, varArg: true, value: storeOp(zilg.OpValue)})
	def("ASSIGNED?", builtin{lo: 5, min: 1, max: 1, varArg: true, pred: branchOp(zilg.OpAssigned)})
	def("PUSH", builtin{min: 1, max: 1, void: plainOp(zilg.OpPush)})

	// objects
	def("FIRST?", builtin{min: 1, max: 1, valuePred: storeBranchOp(zilg.OpFirst)})
	def("NEXT?", builtin{min: 1, max: 1, valuePred: storeBranchOp(zilg.OpNext)})
	def("LOC", builtin{min: 1, max: 1, value: storeOp(zilg.OpLoc)})
	def("IN?", builtin{min: 2, max: 2, pred: branchOp(zilg.OpIn)})
	def("MOVE", builtin{min: 2, max: 2, void: plainOp(zilg.OpMove)})
	def("REMOVE", builtin{min: 1, max: 1, void: plainOp(zilg.OpRemove)})
	def("FSET?", builtin{min: 2, max: 2, pred: branchOp(zilg.OpFsetP)})
	def("FSET", builtin{min: 2, max: 2, void: plainOp(zilg.OpFset)})
	def("FCLEAR", builtin{min: 2, max: 2, void: plainOp(zilg.OpFclear)})
	def("GETP", builtin{min: 2, max: 2, value: storeOp(zilg.OpGetp)})
	def("GETPT", builtin{min: 2, max: 2, value: storeOp(zilg.OpGetpt)})
	def("NEXTP", builtin{min: 2, max: 2, value: storeOp(zilg.OpNextp)})
	def("PTSIZE", builtin{min: 1, max: 1, value: storeOp(zilg.OpPtsize)})
	def("PUTP", builtin{min: 3, max: 3, void: plainOp(zilg.OpPutp)})

	// tables
	def("GET NTH", builtin{min: 2, max: 2, value: storeOp(zilg.OpGet)})
	def("GETB", builtin{min: 2, max: 2, value: storeOp(zilg.OpGetb)})
	def("PUT", builtin{min: 3, max: 3, void: plainOp(zilg.OpPut)})
	def("PUTB", builtin{min: 3, max: 3, void: plainOp(zilg.OpPutb)})
	def("INTBL?", builtin{lo: 4, hi: 4, min: 3, max: 3, valuePred: storeBranchOp(zilg.OpIntbl)})
	def("INTBL?", builtin{lo: 5, min: 3, max: 4, valuePred: storeBranchOp(zilg.OpIntbl)})
	def("COPYT", builtin{lo: 5, min: 3, max: 3, void: plainOp(zilg.OpCopyt)})

	// output
	def("PRINT", builtin{min: 1, max: 1, void: plainOp(zilg.OpPrint)})
	def("PRINTB", builtin{min: 1, max: 1, void: plainOp(zilg.OpPrintb)})
	def("PRINTD", builtin{min: 1, max: 1, void: plainOp(zilg.OpPrintd)})
	def("PRINTN", builtin{min: 1, max: 1, void: plainOp(zilg.OpPrintn)})
	def("PRINTC", builtin{min: 1, max: 1, void: plainOp(zilg.OpPrintc)})
	def("PRINTU", builtin{lo: 5, min: 1, max: 1, void: plainOp(zilg.OpPrintu)})
	def("PRINTT", builtin{lo: 5, min: 2, max: 4, void: plainOp(zilg.OpPrintt)})
	def("CRLF", builtin{void: plainOp(zilg.OpCrlf)})
	def("BUFOUT", builtin{lo: 4, min: 1, max: 1, void: plainOp(zilg.OpBufout)})
	def("DIROUT", builtin{lo: 3, min: 1, max: 3, void: plainOp(zilg.OpDirout)})
	def("DIRIN", builtin{lo: 3, min: 1, max: 1, void: plainOp(zilg.OpDirin)})
	def("HLIGHT", builtin{lo: 4, min: 1, max: 1, void: plainOp(zilg.OpHlight)})
	def("COLOR", builtin{lo: 5, min: 2, max: 3, void: plainOp(zilg.OpColor)})
	def("FONT", builtin{lo: 5, min: 1, max: 2, value: storeOp(zilg.OpFont)})
	def("CHECKU", builtin{lo: 5, min: 1, max: 1, value: storeOp(zilg.OpChecku)})
	def("SOUND", builtin{lo: 3, min: 1, max: 4, void: plainOp(zilg.OpSound)})

	// screen
	def("SPLIT", builtin{lo: 3, min: 1, max: 1, void: plainOp(zilg.OpSplit)})
	def("SCREEN", builtin{lo: 3, min: 1, max: 1, void: plainOp(zilg.OpScreen)})
	def("CLEAR", builtin{lo: 4, min: 1, max: 1, void: plainOp(zilg.OpClear)})
	def("ERASE", builtin{lo: 4, min: 1, max: 1, void: plainOp(zilg.OpErase)})
	def("CURSET", builtin{lo: 4, min: 1, max: 3, void: plainOp(zilg.OpCurset)})
	def("CURGET", builtin{lo: 4, min: 1, max: 1, void: plainOp(zilg.OpCurget)})
	def("USL", builtin{hi: 3, void: plainOp(zilg.OpUsl)})
	def("MARGIN", builtin{lo: 6, min: 2, max: 3, void: plainOp(zilg.OpMargin)})
	def("WINPOS", builtin{lo: 6, min: 3, max: 3, void: plainOp(zilg.OpWinpos)})
	def("WINSIZE", builtin{lo: 6, min: 3, max: 3, void: plainOp(zilg.OpWinsize)})
	def("MOUSE-INFO", builtin{lo: 6, min: 1, max: 1, void: plainOp(zilg.OpMouseInfo)})

	// input
	def("READ", builtin{hi: 3, min: 2, max: 2, void: plainOp(zilg.OpRead)})
	def("READ", builtin{lo: 4, hi: 4, min: 2, max: 4, void: plainOp(zilg.OpRead)})
	def("READ", builtin{lo: 5, min: 1, max: 4, value: storeOp(zilg.OpRead)})
	def("INPUT", builtin{lo: 4, min: 1, max: 3, value: storeOp(zilg.OpInput)})
	def("LEX", builtin{lo: 5, min: 2, max: 4, void: plainOp(zilg.OpLex)})
	def("ZWSTR", builtin{lo: 5, min: 4, max: 4, void: plainOp(zilg.OpZwstr)})

	// game state
	def("SAVE", builtin{hi: 3, pred: branchOp(zilg.OpSave)})
	def("SAVE", builtin{lo: 4, hi: 4, value: storeOp(zilg.OpSave)})
	def("SAVE", builtin{lo: 5, max: 3, value: storeOp(zilg.OpSave)})
	def("RESTORE", builtin{hi: 3, pred: branchOp(zilg.OpRestore)})
	def("RESTORE", builtin{lo: 4, hi: 4, value: storeOp(zilg.OpRestore)})
	def("RESTORE", builtin{lo: 5, max: 3, value: storeOp(zilg.OpRestore)})
	def("ISAVE", builtin{lo: 5, value: storeOp(zilg.OpIsave)})
	def("IRESTORE", builtin{lo: 5, value: storeOp(zilg.OpIrestore)})
	def("RESTART", builtin{void: plainOp(zilg.OpRestart)})
	def("QUIT", builtin{void: func(rc *routineCompiler, _ []zilg.Operand) { rc.rb.EmitQuit() }})
	def("VERIFY", builtin{lo: 3, pred: branchOp(zilg.OpVerify)})
	def("ORIGINAL?", builtin{lo: 5, pred: branchOp(zilg.OpOriginal)})
	def("CATCH", builtin{lo: 5, value: storeOp(zilg.OpCatch)})
	def("THROW", builtin{lo: 5, min: 2, max: 2, void: plainOp(zilg.OpThrow)})
	def("NOOP", builtin{void: plainOp(zilg.OpNoop)})

	// returns
	def("RTRUE", builtin{void: returnConst(1)})
	def("RFALSE", builtin{void: returnConst(0)})
	def("RFATAL", builtin{void: returnConst(2)})
	def("RSTACK", builtin{void: func(rc *routineCompiler, _ []zilg.Operand) { rc.rb.EmitReturn(zilg.Stack) }})
}
