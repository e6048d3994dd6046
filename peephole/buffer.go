package peephole

// maxRewrites bounds the work done by Finish. Each rewrite makes the code
// shorter or moves a branch target forward, so the bound is only reached
// on pathological input.
const maxRewrites = 1 << 16

// Buffer holds the pending lines of one routine.
type Buffer[T any] struct {
	c        Combiner[T]
	newLabel func() Label
	lines    []Line[T]
	pending  Label
	alias    map[Label]Label
}

// NewBuffer returns an empty buffer. newLabel mints labels that are unique
// within the routine; it is used when a rewrite needs to branch to a line
// that has no label yet.
func NewBuffer[T any](c Combiner[T], newLabel func() Label) *Buffer[T] {
	return &Buffer[T]{c: c, newLabel: newLabel, alias: make(map[Label]Label)}
}

// AddLine appends a line, attaching the pending label if any.
func (b *Buffer[T]) AddLine(code T, target Label, typ LineType) {
	b.lines = append(b.lines, Line[T]{Label: b.pending, Code: code, Target: target, Type: typ})
	b.pending = ""
}

// MarkLabel attaches l to the next line. Several labels marked in a row
// name the same line.
func (b *Buffer[T]) MarkLabel(l Label) {
	if b.pending != "" {
		b.alias[l] = b.pending
		return
	}
	b.pending = l
}

// Len returns the number of pending lines.
func (b *Buffer[T]) Len() int { return len(b.lines) }

// Reachable reports whether a line added now could be reached by falling
// through from the previous line or through a pending label.
func (b *Buffer[T]) Reachable() bool {
	if b.pending != "" || len(b.lines) == 0 {
		return true
	}
	return !b.lines[len(b.lines)-1].Type.IsUnconditional()
}

// Finish optimizes the buffer and calls emit for every surviving line in
// order. The buffer is empty afterwards.
func (b *Buffer[T]) Finish(emit func(Line[T])) {
	if b.pending != "" {
		b.lines = append(b.lines, Line[T]{Label: b.pending, anchor: true})
		b.pending = ""
	}
	for i := range b.lines {
		b.lines[i].Target = b.resolve(b.lines[i].Target)
	}
	for n := 0; n < maxRewrites && b.rewrite(); n++ {
	}
	for _, l := range b.lines {
		emit(l)
	}
	b.lines = nil
	b.alias = make(map[Label]Label)
}

func (b *Buffer[T]) resolve(l Label) Label {
	for i := 0; i < len(b.alias)+1; i++ {
		a, ok := b.alias[l]
		if !ok {
			return l
		}
		l = a
	}
	return l
}

func (b *Buffer[T]) index() map[Label]int {
	idx := make(map[Label]int)
	for i, l := range b.lines {
		if l.Label != "" {
			idx[l.Label] = i
		}
	}
	return idx
}

func (b *Buffer[T]) references() map[Label]int {
	refs := make(map[Label]int)
	for _, l := range b.lines {
		if l.Target != "" {
			refs[l.Target]++
		}
	}
	return refs
}

// retarget makes every branch to from go to to.
func (b *Buffer[T]) retarget(from, to Label) {
	for i := range b.lines {
		if b.lines[i].Target == from {
			b.lines[i].Target = to
		}
	}
}

// remove deletes line i. A label on it moves to the following line.
func (b *Buffer[T]) remove(i int) {
	if lbl := b.lines[i].Label; lbl != "" {
		if i+1 == len(b.lines) {
			b.lines[i] = Line[T]{Label: lbl, anchor: true}
			return
		}
		if next := b.lines[i+1].Label; next != "" {
			b.retarget(lbl, next)
		} else {
			b.lines[i+1].Label = lbl
		}
	}
	b.lines = append(b.lines[:i], b.lines[i+1:]...)
}

// labelOf returns the label of line i, minting one if needed.
func (b *Buffer[T]) labelOf(i int) Label {
	if b.lines[i].Label == "" {
		b.lines[i].Label = b.newLabel()
	}
	return b.lines[i].Label
}

// rewrite applies the first applicable rule and reports whether it did.
func (b *Buffer[T]) rewrite() bool {
	refs := b.references()
	for i := range b.lines {
		if l := b.lines[i].Label; l != "" && refs[l] == 0 {
			if b.lines[i].anchor {
				b.lines = append(b.lines[:i], b.lines[i+1:]...)
			} else {
				b.lines[i].Label = ""
			}
			return true
		}
	}
	idx := b.index()
	rules := []func(int, map[Label]int) bool{
		b.removeUnreachable,
		b.threadJump,
		b.dropJumpToNext,
		b.copyTerminator,
		b.branchToReturn,
		b.invertBranchOverJump,
		b.foldTestAtTarget,
		b.foldTestOnFallthrough,
		b.resolveControlledBranch,
		b.crossJump,
		b.combine,
	}
	for i := range b.lines {
		for _, rule := range rules {
			if rule(i, idx) {
				return true
			}
		}
	}
	return false
}

// lineAt returns the index of the line labelled l.
func lineAt(idx map[Label]int, l Label) (int, bool) {
	if l == "" || l.IsReturn() {
		return 0, false
	}
	i, ok := idx[l]
	return i, ok
}

func (b *Buffer[T]) removeUnreachable(i int, _ map[Label]int) bool {
	if i == 0 || b.lines[i].Label != "" {
		return false
	}
	if !b.lines[i-1].Type.IsUnconditional() || b.lines[i-1].anchor {
		return false
	}
	b.lines = append(b.lines[:i], b.lines[i+1:]...)
	return true
}

// threadJump makes a branch to an unconditional jump go to the jump's
// destination.
func (b *Buffer[T]) threadJump(i int, idx map[Label]int) bool {
	l := b.lines[i]
	if l.Target == "" || l.anchor {
		return false
	}
	seen := map[Label]bool{l.Target: true}
	dest := l.Target
	for {
		j, ok := lineAt(idx, dest)
		if !ok || b.lines[j].anchor || b.lines[j].Type != BranchAlways {
			break
		}
		next := b.lines[j].Target
		if seen[next] {
			return false
		}
		seen[next] = true
		dest = next
	}
	if dest == l.Target || (dest.IsReturn() && !l.Type.IsConditional()) {
		return false
	}
	b.lines[i].Target = dest
	return true
}

func (b *Buffer[T]) dropJumpToNext(i int, _ map[Label]int) bool {
	l := b.lines[i]
	if l.Type != BranchAlways || l.anchor || i+1 >= len(b.lines) {
		return false
	}
	if b.lines[i+1].Label != l.Target {
		return false
	}
	b.remove(i)
	return true
}

// copyTerminator replaces a jump to a light terminator by the terminator.
func (b *Buffer[T]) copyTerminator(i int, idx map[Label]int) bool {
	l := b.lines[i]
	if l.Type != BranchAlways || l.anchor {
		return false
	}
	j, ok := lineAt(idx, l.Target)
	if !ok || b.lines[j].anchor || b.lines[j].Type != Terminator {
		return false
	}
	b.lines[i].Code = b.lines[j].Code
	b.lines[i].Target = ""
	b.lines[i].Type = Terminator
	return true
}

func (b *Buffer[T]) branchToReturn(i int, idx map[Label]int) bool {
	l := b.lines[i]
	if !l.Type.IsConditional() || l.anchor {
		return false
	}
	j, ok := lineAt(idx, l.Target)
	if !ok || b.lines[j].anchor || b.lines[j].Type != Terminator {
		return false
	}
	ret, ok := b.c.ReturnLabel(b.lines[j].Code)
	if !ok {
		return false
	}
	b.lines[i].Target = ret
	return true
}

// invertBranchOverJump turns "test /L; JUMP M; L:" into "test \M; L:".
func (b *Buffer[T]) invertBranchOverJump(i int, _ map[Label]int) bool {
	if i+2 >= len(b.lines) {
		return false
	}
	l, jmp, next := b.lines[i], b.lines[i+1], b.lines[i+2]
	if !l.Type.IsConditional() || l.anchor || jmp.Type != BranchAlways || jmp.anchor || jmp.Label != "" {
		return false
	}
	if next.Label == "" || next.Label != l.Target {
		return false
	}
	b.lines[i].Target = jmp.Target
	b.lines[i].Type = l.Type.Invert()
	b.lines = append(b.lines[:i+1], b.lines[i+2:]...)
	return true
}

// branchTaken reports whether a line of type t branches when its test
// evaluates to v.
func branchTaken(t LineType, v bool) bool {
	return v == (t == BranchPositive)
}

// outcome returns the test value of b given the test value v of a.
func outcome(rel SameTestResult, v bool) bool {
	if rel == OppositeTest {
		return !v
	}
	return v
}

// foldTestAtTarget skips a test at a branch target whose outcome is known
// from the branching test.
func (b *Buffer[T]) foldTestAtTarget(i int, idx map[Label]int) bool {
	l := b.lines[i]
	if !l.Type.IsConditional() || l.anchor {
		return false
	}
	j, ok := lineAt(idx, l.Target)
	if !ok || j == i {
		return false
	}
	t := b.lines[j]
	if !t.Type.IsConditional() || t.anchor {
		return false
	}
	rel := b.c.AreSameTest(l.Code, t.Code)
	if rel == Unrelated {
		return false
	}
	v := outcome(rel, l.Type == BranchPositive) // value when l branched
	if branchTaken(t.Type, v) {
		if t.Target == l.Target {
			return false
		}
		b.lines[i].Target = t.Target
		return true
	}
	if j+1 >= len(b.lines) {
		return false
	}
	b.lines[i].Target = b.labelOf(j + 1)
	return true
}

// foldTestOnFallthrough resolves a test that directly follows an
// equivalent test.
func (b *Buffer[T]) foldTestOnFallthrough(i int, _ map[Label]int) bool {
	if i+1 >= len(b.lines) {
		return false
	}
	l, t := b.lines[i], b.lines[i+1]
	if !l.Type.IsConditional() || l.anchor || !t.Type.IsConditional() || t.anchor || t.Label != "" {
		return false
	}
	rel := b.c.AreSameTest(l.Code, t.Code)
	if rel == Unrelated {
		return false
	}
	v := outcome(rel, l.Type != BranchPositive) // value when l fell through
	taken := branchTaken(t.Type, v)
	if !b.canResolve(t, taken) {
		return false
	}
	b.resolveBranch(i+1, taken)
	return true
}

// canResolve reports whether a conditional line can be replaced by a jump
// or removed. A taken branch to TrueLabel or FalseLabel needs a matching
// terminator to copy.
func (b *Buffer[T]) canResolve(t Line[T], taken bool) bool {
	if !taken || !t.Target.IsReturn() {
		return true
	}
	_, ok := b.returnCode(t.Target)
	return ok
}

// resolveBranch replaces the conditional line i by a jump or nothing.
func (b *Buffer[T]) resolveBranch(i int, taken bool) {
	if !taken {
		b.remove(i)
		return
	}
	target := b.lines[i].Target
	if target.IsReturn() {
		if ret, ok := b.returnCode(target); ok {
			b.lines[i].Code = ret
			b.lines[i].Target = ""
			b.lines[i].Type = Terminator
			return
		}
	}
	b.lines[i].Code = b.c.SynthesizeBranchAlways()
	b.lines[i].Type = BranchAlways
}

// returnCode finds a terminator returning the value named by l.
func (b *Buffer[T]) returnCode(l Label) (T, bool) {
	for _, line := range b.lines {
		if line.Type != Terminator || line.anchor {
			continue
		}
		if r, ok := b.c.ReturnLabel(line.Code); ok && r == l {
			return line.Code, true
		}
	}
	var zero T
	return zero, false
}

func (b *Buffer[T]) resolveControlledBranch(i int, _ map[Label]int) bool {
	if i+1 >= len(b.lines) {
		return false
	}
	l, t := b.lines[i], b.lines[i+1]
	if l.Type != Plain || l.anchor || !t.Type.IsConditional() || t.anchor || t.Label != "" {
		return false
	}
	var v bool
	switch b.c.ControlsConditionalBranch(l.Code, t.Code) {
	case ConditionTrue:
		v = true
	case ConditionFalse:
		v = false
	default:
		return false
	}
	taken := branchTaken(t.Type, v)
	if !b.canResolve(t, taken) {
		return false
	}
	b.resolveBranch(i+1, taken)
	b.remove(i)
	return true
}

// crossJump turns "X; JUMP L" into "JUMP L'" when L is preceded by a
// copy of X labelled L'.
func (b *Buffer[T]) crossJump(i int, idx map[Label]int) bool {
	if i == 0 {
		return false
	}
	jmp, x := b.lines[i], b.lines[i-1]
	if jmp.Type != BranchAlways || jmp.anchor || x.Type != Plain || x.anchor {
		return false
	}
	j, ok := lineAt(idx, jmp.Target)
	if !ok || j == 0 || j-1 == i-1 || j-1 == i {
		return false
	}
	y := b.lines[j-1]
	if y.Type != Plain || y.anchor || !b.c.AreIdentical(x.Code, y.Code) {
		return false
	}
	b.lines[j-1].Code = b.c.MergeIdentical(y.Code, x.Code)
	target := b.labelOf(j - 1)
	b.lines[i-1] = Line[T]{Label: x.Label, Code: b.c.SynthesizeBranchAlways(), Target: target, Type: BranchAlways}
	return true
}

func (b *Buffer[T]) combine(i int, _ map[Label]int) bool {
	if b.lines[i].anchor {
		return false
	}
	n := 1
	for n < 3 && i+n < len(b.lines) && b.lines[i+n].Label == "" && !b.lines[i+n].anchor {
		n++
	}
	window := b.lines[i : i+n]
	r := b.c.Apply(window)
	if r.Consumed == 0 {
		return false
	}
	label := b.lines[i].Label
	repl := make([]Line[T], len(r.Lines))
	for k, rl := range r.Lines {
		repl[k] = Line[T]{Code: rl.Code, Target: rl.Target, Type: rl.Type}
	}
	rest := append(repl, b.lines[i+r.Consumed:]...)
	b.lines = append(b.lines[:i:i], rest...)
	if label != "" {
		if len(repl) > 0 {
			b.lines[i].Label = label
		} else {
			b.lines = append(b.lines[:i], append([]Line[T]{{Label: label, anchor: true}}, b.lines[i:]...)...)
			b.removeAnchor(i)
		}
	}
	return true
}

// removeAnchor folds the anchor at i into the following line if possible.
func (b *Buffer[T]) removeAnchor(i int) {
	if i+1 < len(b.lines) {
		b.remove(i)
	}
}
