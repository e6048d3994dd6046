package zilp

import (
	"strings"

	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
	"github.com/fzipp/zil-compiler/zscii"
)

// tokenElem is one element of a TELL token pattern: one of several
// words, or a capture (nil words) that takes any expression.
type tokenElem struct {
	words []string
}

// tellToken rewrites a run of TELL arguments into a call of its handler,
// with the captured expressions in place of the handler's locals.
type tellToken struct {
	pattern []tokenElem
	handler *zils.Form
	params  []string // locals of the handler, one per capture
}

func defaultTellTokens() *zils.Form {
	return zils.MustReadString(`<TELL-TOKENS
		(CR CRLF) <CRLF>
		D * <PRINTD .X>
		N * <PRINTN .X>
		C * <PRINTC .X>
		B * <PRINTB .X>>`)[0].(*zils.Form)
}

// declareTellTokens parses <TELL-TOKENS pattern handler ...>. Patterns
// are atoms, lists of alternative atoms and * for a capture; each ends
// at its handler form.
func (c *Compiler) declareTellTokens(f *zils.Form) {
	var pattern []tokenElem
	for _, a := range f.Args() {
		switch a := a.(type) {
		case *zils.Atom:
			if a.Name == "*" {
				pattern = append(pattern, tokenElem{})
			} else {
				pattern = append(pattern, tokenElem{words: []string{a.Name}})
			}
		case *zils.List:
			var words []string
			for _, e := range a.Elems {
				name, ok := zils.AtomName(e)
				if !ok {
					c.malformed(e, "token alternatives must be atoms")
					continue
				}
				words = append(words, name)
			}
			pattern = append(pattern, tokenElem{words: words})
		case *zils.Form:
			if len(pattern) == 0 {
				c.malformed(a, "handler without a token pattern")
				continue
			}
			c.addTellToken(pattern, a)
			pattern = nil
		default:
			c.malformed(a, "unexpected "+a.String()+" in TELL-TOKENS")
		}
	}
	if len(pattern) > 0 {
		c.malformed(f, "token pattern without a handler")
	}
}

func (c *Compiler) addTellToken(pattern []tokenElem, handler *zils.Form) {
	if pattern[0].words == nil {
		c.malformed(handler, "a token pattern must start with a word")
		return
	}
	captures := 0
	for _, e := range pattern {
		if e.words == nil {
			captures++
		}
	}
	var params []string
	seen := make(map[string]bool)
	repeated := false
	walkLocals(handler, func(name string) {
		if seen[name] {
			repeated = true
			return
		}
		seen[name] = true
		params = append(params, name)
	})
	if repeated || len(params) != captures {
		c.error(handler.Pos(), &diag.MalformedFormError{
			Form: "TELL-TOKENS",
			Msg:  "handler " + handler.String() + " does not use each captured value exactly once",
		})
		return
	}
	c.tokens = append(c.tokens, &tellToken{pattern: pattern, handler: handler, params: params})
}

func walkLocals(n zils.Node, fn func(name string)) {
	if name, ok := zils.LocalName(n); ok {
		fn(name)
		return
	}
	var elems []zils.Node
	switch n := n.(type) {
	case *zils.Form:
		elems = n.Elems
	case *zils.List:
		elems = n.Elems
	}
	for _, e := range elems {
		walkLocals(e, fn)
	}
}

// match returns the number of arguments t consumes at the start of args,
// or 0, and the handler with the captures substituted.
func (t *tellToken) match(c *Compiler, args []zils.Node) (int, zils.Node) {
	if len(args) < len(t.pattern) {
		return 0, nil
	}
	var captured []zils.Node
	for i, e := range t.pattern {
		if e.words == nil {
			captured = append(captured, c.tellCapture(args[i]))
			continue
		}
		name, ok := zils.AtomName(args[i])
		if !ok || !containsWord(e.words, name) {
			return 0, nil
		}
	}
	subst := make(map[string]zils.Node, len(t.params))
	for i, p := range t.params {
		subst[p] = captured[i]
	}
	return len(t.pattern), substitute(t.handler, subst)
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

// tellCapture reads a quoted global name after a token as the value of
// that global, so that D 'HERE describes the object in HERE.
func (c *Compiler) tellCapture(n zils.Node) zils.Node {
	f, ok := n.(*zils.Form)
	if !ok || f.HeadName() != "QUOTE" || len(f.Args()) != 1 {
		return n
	}
	name, ok := zils.AtomName(f.Args()[0])
	if !ok {
		return n
	}
	if _, isGlobal := c.game.Global(name); !isGlobal {
		return n
	}
	return zils.NewCall(f.Pos(), "GVAL", zils.NewAtom(f.Pos(), name))
}

func substitute(n zils.Node, subst map[string]zils.Node) zils.Node {
	if name, ok := zils.LocalName(n); ok {
		if v, ok := subst[name]; ok {
			return v
		}
		return n
	}
	switch n := n.(type) {
	case *zils.Form:
		elems := make([]zils.Node, len(n.Elems))
		for i, e := range n.Elems {
			elems[i] = substitute(e, subst)
		}
		return &zils.Form{Elems: elems, At: n.At}
	case *zils.List:
		elems := make([]zils.Node, len(n.Elems))
		for i, e := range n.Elems {
			elems[i] = substitute(e, subst)
		}
		return &zils.List{Elems: elems, At: n.At}
	}
	return n
}

// compileTell prints its arguments in order. Tokens are tried first;
// then strings and characters print directly, a property name followed
// by an object prints that property and anything else prints as a
// string address.
func compileTell(rc *routineCompiler, f *zils.Form, w want) zilg.Operand {
	g := rc.c.game
	args := f.Args()
	for i := 0; i < len(args); {
		if n, call := rc.c.matchToken(args[i:]); n > 0 {
			m := rc.mark()
			rc.stmt(call)
			rc.release(m)
			i += n
			continue
		}
		switch a := zils.StripDecl(args[i]).(type) {
		case *zils.String:
			rc.rb.EmitPrint(rc.c.translate(a.Value))
			i++
			continue
		case *zils.Char:
			code, ok := zscii.ToZSCII(a.Value)
			if !ok {
				rc.c.errorf(a.Pos(), "character %q has no ZSCII code", a.Value)
			}
			rc.rb.Emit(zilg.OpPrintc, g.Number(int(code)))
			i++
			continue
		case *zils.Atom:
			if p, ok := g.Property(a.Name); ok && i+1 < len(args) {
				m := rc.mark()
				obj := rc.value(args[i+1], nil)
				rc.rb.EmitStore(zilg.OpGetp, zilg.Stack, obj, p.Operand())
				rc.rb.Emit(zilg.OpPrint, zilg.Stack)
				rc.release(m)
				i += 2
				continue
			}
		}
		m := rc.mark()
		rc.rb.Emit(zilg.OpPrint, rc.value(args[i], nil))
		rc.release(m)
		i++
	}
	return rc.fromValue(g.One(), w)
}

func (c *Compiler) matchToken(args []zils.Node) (int, zils.Node) {
	for _, t := range c.tokens {
		if n, call := t.match(c, args); n > 0 {
			return n, call
		}
	}
	return 0, nil
}

// translate converts ZIL string syntax to output text: | is a line
// break, other line breaks are spaces with the indentation that follows
// them removed, and unless spaces are preserved, two or more spaces
// after the end of a sentence become one.
func (c *Compiler) translate(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; r {
		case '|':
			b.WriteByte('\n')
			if i+1 < len(rs) && rs[i+1] == '\r' {
				i++
			}
			if i+1 < len(rs) && rs[i+1] == '\n' {
				i++
			}
		case '\r':
		case '\n':
			b.WriteByte(' ')
			for i+1 < len(rs) && (rs[i+1] == ' ' || rs[i+1] == '\t') {
				i++
			}
		default:
			b.WriteRune(r)
		}
	}
	if c.cfg.PreserveSpaces {
		return b.String()
	}
	return collapseSentenceSpaces(b.String())
}

func collapseSentenceSpaces(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		b.WriteRune(rs[i])
		if rs[i] != '.' && rs[i] != '!' && rs[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(rs) && rs[j] == ' ' {
			j++
		}
		if j-i-1 >= 2 {
			b.WriteByte(' ')
			i = j - 1
		}
	}
	return b.String()
}
