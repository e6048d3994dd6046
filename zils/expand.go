package zils

// ExpandContext describes where a form is being expanded.
type ExpandContext struct {
	Routine string // enclosing routine, "" at top level
	Version int
}

// Expander expands macros. It returns the form itself when its head does
// not name a macro, a rewritten node, or a *Splice of several nodes.
type Expander interface {
	Expand(ctx ExpandContext, f *Form) (Node, error)
}

// PropertyEvaluator is implemented by expanders that evaluate custom
// property builders. ok is false when prop has no custom builder.
type PropertyEvaluator interface {
	EvalProperty(prop string, values []Node) (result []Node, ok bool, err error)
}

// NopExpander expands nothing.
type NopExpander struct{}

func (NopExpander) Expand(_ ExpandContext, f *Form) (Node, error) {
	return f, nil
}

// MacroFunc rewrites one form.
type MacroFunc func(ctx ExpandContext, f *Form) (Node, error)

// MacroTable is an Expander backed by Go functions keyed by head atom.
type MacroTable map[string]MacroFunc

func (t MacroTable) Expand(ctx ExpandContext, f *Form) (Node, error) {
	if m, ok := t[f.HeadName()]; ok {
		return m(ctx, f)
	}
	return f, nil
}
