// Package peephole implements a target-independent peephole optimizer.
//
// A Buffer collects the lines of one routine. Each line has an optional
// label, a payload of the caller's instruction type, an optional branch
// target and a LineType. Finish rewrites the lines until no rule applies
// and hands the survivors to an emit function. Target-specific knowledge
// (which instruction pairs can be fused, which tests are equivalent) comes
// from a Combiner.
package peephole

// Label names a line. TrueLabel and FalseLabel are the branch targets
// meaning "return true" and "return false".
type Label string

const (
	TrueLabel  Label = "TRUE"
	FalseLabel Label = "FALSE"
)

// IsReturn reports whether l is TrueLabel or FalseLabel.
func (l Label) IsReturn() bool {
	return l == TrueLabel || l == FalseLabel
}

type LineType int

const (
	Plain LineType = iota
	BranchAlways
	BranchPositive
	BranchNegative
	Terminator
	HeavyTerminator
)

func (t LineType) String() string {
	return [...]string{"plain", "always", "positive", "negative", "terminator", "heavy"}[t]
}

// IsConditional reports whether lines of type t branch on a test.
func (t LineType) IsConditional() bool {
	return t == BranchPositive || t == BranchNegative
}

// IsUnconditional reports whether control never falls through a line of
// type t.
func (t LineType) IsUnconditional() bool {
	return t == BranchAlways || t == Terminator || t == HeavyTerminator
}

// Invert returns the opposite branch polarity.
func (t LineType) Invert() LineType {
	switch t {
	case BranchPositive:
		return BranchNegative
	case BranchNegative:
		return BranchPositive
	}
	return t
}

// Line is one pending line.
type Line[T any] struct {
	Label  Label
	Code   T
	Target Label
	Type   LineType

	anchor bool
}

// IsAnchor reports whether the line only carries a label.
func (l Line[T]) IsAnchor() bool { return l.anchor }

// Replacement is a line produced by a Combiner.
type Replacement[T any] struct {
	Code   T
	Target Label
	Type   LineType
}

// Result is the outcome of Combiner.Apply. Consumed is the number of
// window lines replaced by Lines; zero means no match.
type Result[T any] struct {
	Consumed int
	Lines    []Replacement[T]
}

// NoMatch is the Result of a window no rule applies to.
func NoMatch[T any]() Result[T] { return Result[T]{} }

// Replace builds a Result consuming n lines.
func Replace[T any](n int, lines ...Replacement[T]) Result[T] {
	return Result[T]{Consumed: n, Lines: lines}
}

type SameTestResult int

const (
	Unrelated SameTestResult = iota
	SameTest
	OppositeTest
)

// Condition is the statically known outcome of a test.
type Condition int

const (
	ConditionUnknown Condition = iota
	ConditionTrue
	ConditionFalse
)

// Combiner supplies the target-specific rules.
type Combiner[T any] interface {
	// Apply looks at a window of one to three lines. Only the first line
	// of a window can carry a label.
	Apply(window []Line[T]) Result[T]

	// SynthesizeBranchAlways returns the payload of an unconditional jump.
	SynthesizeBranchAlways() T

	// AreIdentical reports whether two payloads do the same thing.
	AreIdentical(a, b T) bool

	// MergeIdentical combines two identical payloads, keeping metadata of
	// both.
	MergeIdentical(a, b T) T

	// AreSameTest reports how the test of b relates to the test of a when
	// b runs immediately after a. It must return Unrelated if b has side
	// effects.
	AreSameTest(a, b T) SameTestResult

	// ControlsConditionalBranch reports the outcome of the test of b when
	// it runs immediately after the plain line a.
	ControlsConditionalBranch(a, b T) Condition

	// ReturnLabel reports whether a terminator returns true or false, so
	// that branches to it can use TrueLabel or FalseLabel.
	ReturnLabel(code T) (Label, bool)
}
