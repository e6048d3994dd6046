package zilg

// Op is a Z-machine instruction as named by the assembler.
type Op uint8

const (
	OpNone Op = iota

	// two-operand
	OpEqual
	OpLess
	OpGrtr
	OpDless
	OpIgrtr
	OpIn
	OpBtst
	OpBor
	OpBand
	OpFsetP
	OpFset
	OpFclear
	OpSet
	OpMove
	OpGet
	OpGetb
	OpGetp
	OpGetpt
	OpNextp
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpCall2
	OpIcall2
	OpColor
	OpThrow

	// one-operand
	OpZero
	OpNext
	OpFirst
	OpLoc
	OpPtsize
	OpInc
	OpDec
	OpPrintb
	OpCall1
	OpIcall1
	OpRemove
	OpPrintd
	OpReturn
	OpJump
	OpPrint
	OpValue
	OpBcom

	// zero-operand
	OpRtrue
	OpRfalse
	OpPrinti
	OpPrintr
	OpNoop
	OpSave
	OpRestore
	OpRestart
	OpRstack
	OpFstack
	OpQuit
	OpCrlf
	OpUsl
	OpVerify
	OpOriginal
	OpCatch

	// variable-operand
	OpCall
	OpPut
	OpPutb
	OpPutp
	OpRead
	OpPrintc
	OpPrintn
	OpRandom
	OpPush
	OpPop
	OpSplit
	OpScreen
	OpXcall
	OpIcall
	OpIxcall
	OpClear
	OpErase
	OpCurset
	OpCurget
	OpHlight
	OpBufout
	OpDirout
	OpDirin
	OpSound
	OpInput
	OpIntbl
	OpLex
	OpZwstr
	OpCopyt
	OpPrintt
	OpAssigned

	// extended
	OpShift
	OpAshift
	OpFont
	OpIsave
	OpIrestore
	OpPrintu
	OpChecku
	OpMargin
	OpWinpos
	OpWinsize
	OpMouseInfo

	numOps
)

// versions is an inclusive range of Z-machine versions. The zero value
// contains no version.
type versions struct{ lo, hi int }

func (v versions) has(version int) bool { return version >= v.lo && version <= v.hi }

var (
	never = versions{}
	all   = versions{1, 8}
	from3 = versions{3, 8}
	from4 = versions{4, 8}
	from5 = versions{5, 8}
	upTo3 = versions{1, 3}
	upTo4 = versions{1, 4}
	from6 = versions{6, 8}
)

type opInfo struct {
	name   string
	avail  versions
	store  versions
	branch versions
	varArg bool // the first operand names a variable
	term   bool // control does not continue
	heavy  bool // a terminator too large to copy
	text   bool // takes a literal string
	pure   bool // no effect besides its store or branch
}

var opTable = [numOps]opInfo{
	OpNone: {name: "?", avail: never},

	OpEqual:  {name: "EQUAL?", avail: all, branch: all, pure: true},
	OpLess:   {name: "LESS?", avail: all, branch: all, pure: true},
	OpGrtr:   {name: "GRTR?", avail: all, branch: all, pure: true},
	OpDless:  {name: "DLESS?", avail: all, branch: all, varArg: true},
	OpIgrtr:  {name: "IGRTR?", avail: all, branch: all, varArg: true},
	OpIn:     {name: "IN?", avail: all, branch: all, pure: true},
	OpBtst:   {name: "BTST", avail: all, branch: all, pure: true},
	OpBor:    {name: "BOR", avail: all, store: all, pure: true},
	OpBand:   {name: "BAND", avail: all, store: all, pure: true},
	OpFsetP:  {name: "FSET?", avail: all, branch: all, pure: true},
	OpFset:   {name: "FSET", avail: all},
	OpFclear: {name: "FCLEAR", avail: all},
	OpSet:    {name: "SET", avail: all, varArg: true},
	OpMove:   {name: "MOVE", avail: all},
	OpGet:    {name: "GET", avail: all, store: all, pure: true},
	OpGetb:   {name: "GETB", avail: all, store: all, pure: true},
	OpGetp:   {name: "GETP", avail: all, store: all, pure: true},
	OpGetpt:  {name: "GETPT", avail: all, store: all, pure: true},
	OpNextp:  {name: "NEXTP", avail: all, store: all, pure: true},
	OpAdd:    {name: "ADD", avail: all, store: all, pure: true},
	OpSub:    {name: "SUB", avail: all, store: all, pure: true},
	OpMul:    {name: "MUL", avail: all, store: all, pure: true},
	OpDiv:    {name: "DIV", avail: all, store: all, pure: true},
	OpMod:    {name: "MOD", avail: all, store: all, pure: true},
	OpCall2:  {name: "CALL2", avail: from4, store: from4},
	OpIcall2: {name: "ICALL2", avail: from5},
	OpColor:  {name: "COLOR", avail: from5},
	OpThrow:  {name: "THROW", avail: from5, term: true},

	OpZero:   {name: "ZERO?", avail: all, branch: all, pure: true},
	OpNext:   {name: "NEXT?", avail: all, store: all, branch: all, pure: true},
	OpFirst:  {name: "FIRST?", avail: all, store: all, branch: all, pure: true},
	OpLoc:    {name: "LOC", avail: all, store: all, pure: true},
	OpPtsize: {name: "PTSIZE", avail: all, store: all, pure: true},
	OpInc:    {name: "INC", avail: all, varArg: true},
	OpDec:    {name: "DEC", avail: all, varArg: true},
	OpPrintb: {name: "PRINTB", avail: all},
	OpCall1:  {name: "CALL1", avail: from4, store: from4},
	OpIcall1: {name: "ICALL1", avail: from5},
	OpRemove: {name: "REMOVE", avail: all},
	OpPrintd: {name: "PRINTD", avail: all},
	OpReturn: {name: "RETURN", avail: all, term: true},
	OpJump:   {name: "JUMP", avail: all},
	OpPrint:  {name: "PRINT", avail: all},
	OpValue:  {name: "VALUE", avail: all, store: all, varArg: true, pure: true},
	OpBcom:   {name: "BCOM", avail: all, store: all, pure: true},

	OpRtrue:    {name: "RTRUE", avail: all, term: true},
	OpRfalse:   {name: "RFALSE", avail: all, term: true},
	OpPrinti:   {name: "PRINTI", avail: all, text: true},
	OpPrintr:   {name: "PRINTR", avail: all, text: true, term: true, heavy: true},
	OpNoop:     {name: "NOOP", avail: all},
	OpSave:     {name: "SAVE", avail: all, store: from4, branch: upTo3},
	OpRestore:  {name: "RESTORE", avail: all, store: from4, branch: upTo3},
	OpRestart:  {name: "RESTART", avail: all, term: true, heavy: true},
	OpRstack:   {name: "RSTACK", avail: all, term: true},
	OpFstack:   {name: "FSTACK", avail: upTo4},
	OpQuit:     {name: "QUIT", avail: all, term: true, heavy: true},
	OpCrlf:     {name: "CRLF", avail: all},
	OpUsl:      {name: "USL", avail: upTo3},
	OpVerify:   {name: "VERIFY", avail: from3, branch: from3},
	OpOriginal: {name: "ORIGINAL?", avail: from5, branch: from5},
	OpCatch:    {name: "CATCH", avail: from5, store: from5},

	OpCall:     {name: "CALL", avail: all, store: all},
	OpPut:      {name: "PUT", avail: all},
	OpPutb:     {name: "PUTB", avail: all},
	OpPutp:     {name: "PUTP", avail: all},
	OpRead:     {name: "READ", avail: all, store: from5},
	OpPrintc:   {name: "PRINTC", avail: all},
	OpPrintn:   {name: "PRINTN", avail: all},
	OpRandom:   {name: "RANDOM", avail: all, store: all},
	OpPush:     {name: "PUSH", avail: all},
	OpPop:      {name: "POP", avail: all, varArg: true},
	OpSplit:    {name: "SPLIT", avail: from3},
	OpScreen:   {name: "SCREEN", avail: from3},
	OpXcall:    {name: "XCALL", avail: from4, store: from4},
	OpIcall:    {name: "ICALL", avail: from5},
	OpIxcall:   {name: "IXCALL", avail: from5},
	OpClear:    {name: "CLEAR", avail: from4},
	OpErase:    {name: "ERASE", avail: from4},
	OpCurset:   {name: "CURSET", avail: from4},
	OpCurget:   {name: "CURGET", avail: from4},
	OpHlight:   {name: "HLIGHT", avail: from4},
	OpBufout:   {name: "BUFOUT", avail: from4},
	OpDirout:   {name: "DIROUT", avail: from3},
	OpDirin:    {name: "DIRIN", avail: from3},
	OpSound:    {name: "SOUND", avail: from3},
	OpInput:    {name: "INPUT", avail: from4, store: from4},
	OpIntbl:    {name: "INTBL?", avail: from4, store: from4, branch: from4, pure: true},
	OpLex:      {name: "LEX", avail: from5},
	OpZwstr:    {name: "ZWSTR", avail: from5},
	OpCopyt:    {name: "COPYT", avail: from5},
	OpPrintt:   {name: "PRINTT", avail: from5},
	OpAssigned: {name: "ASSIGNED?", avail: from5, branch: from5, varArg: true, pure: true},

	OpShift:     {name: "SHIFT", avail: from5, store: from5, pure: true},
	OpAshift:    {name: "ASHIFT", avail: from5, store: from5, pure: true},
	OpFont:      {name: "FONT", avail: from5, store: from5},
	OpIsave:     {name: "ISAVE", avail: from5, store: from5},
	OpIrestore:  {name: "IRESTORE", avail: from5, store: from5},
	OpPrintu:    {name: "PRINTU", avail: from5},
	OpChecku:    {name: "CHECKU", avail: from5, store: from5, pure: true},
	OpMargin:    {name: "MARGIN", avail: from6},
	OpWinpos:    {name: "WINPOS", avail: from6},
	OpWinsize:   {name: "WINSIZE", avail: from6},
	OpMouseInfo: {name: "MOUSE-INFO", avail: from6},
}

func (op Op) String() string { return opTable[op].name }

// Available reports whether op exists in version.
func (op Op) Available(version int) bool { return opTable[op].avail.has(version) }

// Stores reports whether op stores a result in version.
func (op Op) Stores(version int) bool { return opTable[op].store.has(version) }

// Branches reports whether op branches in version.
func (op Op) Branches(version int) bool { return opTable[op].branch.has(version) }

// VarArg reports whether the first operand of op names a variable.
func (op Op) VarArg() bool { return opTable[op].varArg }

// IsTerminator reports whether control never continues after op.
func (op Op) IsTerminator() bool { return opTable[op].term }

// IsPure reports whether op has no effect besides its store or branch.
func (op Op) IsPure() bool { return opTable[op].pure }

// HasText reports whether op takes a literal string.
func (op Op) HasText() bool { return opTable[op].text }

// CallOp returns the call instruction for argc arguments. discard selects
// the variants that do not store a result, which exist from version 5.
func CallOp(version, argc int, discard bool) Op {
	switch {
	case version <= 3:
		return OpCall
	case version == 4:
		switch {
		case argc == 0:
			return OpCall1
		case argc == 1:
			return OpCall2
		case argc <= 3:
			return OpCall
		}
		return OpXcall
	}
	if discard {
		switch {
		case argc == 0:
			return OpIcall1
		case argc == 1:
			return OpIcall2
		case argc <= 3:
			return OpIcall
		}
		return OpIxcall
	}
	switch {
	case argc == 0:
		return OpCall1
	case argc == 1:
		return OpCall2
	case argc <= 3:
		return OpCall
	}
	return OpXcall
}

// MaxCallArgs returns the number of routine arguments a call can pass.
func MaxCallArgs(version int) int {
	if version <= 3 {
		return 3
	}
	return 7
}

var opsByName = func() map[string]Op {
	m := make(map[string]Op, numOps)
	for op := OpNone + 1; op < numOps; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

// LookupOp finds an instruction by its assembler name.
func LookupOp(name string) (Op, bool) {
	op, ok := opsByName[name]
	return op, ok
}
