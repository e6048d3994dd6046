package zilp

import (
	"strings"

	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

type partOfSpeech int

const (
	psObject      partOfSpeech = 128
	psVerb        partOfSpeech = 64
	psAdjective   partOfSpeech = 32
	psDirection   partOfSpeech = 16
	psPreposition partOfSpeech = 8
	psBuzz        partOfSpeech = 4
)

// firstCodes mark which part of speech the first value byte belongs to.
var firstCodes = map[partOfSpeech]int{
	psObject:      0,
	psVerb:        1,
	psAdjective:   2,
	psDirection:   3,
	psPreposition: 0,
}

var partNames = []struct {
	ps   partOfSpeech
	name string
}{
	{psObject, "OBJECT"},
	{psVerb, "VERB"},
	{psAdjective, "ADJECTIVE"},
	{psDirection, "DIRECTION"},
	{psPreposition, "PREPOSITION"},
	{psBuzz, "BUZZ-WORD"},
}

type partValue struct {
	ps    partOfSpeech
	value zilg.Operand // nil for parts without a number
}

type wordInfo struct {
	w      *zilg.WordBuilder
	ps     partOfSpeech
	values []partValue
}

func (wi *wordInfo) value(ps partOfSpeech) (zilg.Operand, bool) {
	for _, pv := range wi.values {
		if pv.ps == ps {
			return pv.value, true
		}
	}
	return nil, false
}

type vocabulary struct {
	words map[*zilg.WordBuilder]*wordInfo
	order []*wordInfo
}

// word returns the entry for text, creating the dictionary word.
func (c *Compiler) word(pos zils.Pos, text string) *wordInfo {
	w, err := c.game.DefineWord(text)
	if !c.check(pos, err) {
		return nil
	}
	w = w.Canonical()
	if wi, ok := c.vocab.words[w]; ok {
		return wi
	}
	wi := &wordInfo{w: w}
	c.vocab.words[w] = wi
	c.vocab.order = append(c.vocab.order, wi)
	return wi
}

// addPart marks text as ps. The first value given for a part sticks.
func (c *Compiler) addPart(pos zils.Pos, text string, ps partOfSpeech, value zilg.Operand) *wordInfo {
	wi := c.word(pos, text)
	if wi == nil {
		return nil
	}
	wi.ps |= ps
	if _, ok := wi.value(ps); !ok {
		wi.values = append(wi.values, partValue{ps: ps, value: value})
	}
	return wi
}

// partConstant returns the name of the constant numbering text as ps, or
// "" if that part has none.
func (c *Compiler) partConstant(ps partOfSpeech, text string) string {
	upper := strings.ToUpper(text)
	switch ps {
	case psVerb:
		return "ACT?" + upper
	case psPreposition:
		return "PR?" + upper
	case psAdjective:
		if c.version == 3 {
			return "A?" + upper
		}
	}
	return ""
}

func (c *Compiler) verbWord(pos zils.Pos, text string) *wordInfo {
	name := c.partConstant(psVerb, text)
	op, ok := c.game.Constant(name)
	if !ok {
		num, err := c.base.DefineVerb(zilg.Sanitize(strings.ToUpper(text)))
		if err != nil {
			c.fatal(pos, err)
		}
		op = c.builtinConstant(name, c.game.Number(num))
		c.verbs = append(c.verbs, text)
	}
	return c.addPart(pos, text, psVerb, op)
}

func (c *Compiler) prepWord(pos zils.Pos, text string) *wordInfo {
	name := c.partConstant(psPreposition, text)
	op, ok := c.game.Constant(name)
	if !ok {
		num, err := c.base.DefinePreposition(zilg.Sanitize(strings.ToUpper(text)))
		if err != nil {
			c.fatal(pos, err)
		}
		op = c.builtinConstant(name, c.game.Number(num))
	}
	return c.addPart(pos, text, psPreposition, op)
}

func (c *Compiler) adjectiveWord(pos zils.Pos, text string) *wordInfo {
	var op zilg.Operand
	if name := c.partConstant(psAdjective, text); name != "" {
		var ok bool
		op, ok = c.game.Constant(name)
		if !ok {
			num, err := c.base.DefineAdjective(zilg.Sanitize(strings.ToUpper(text)))
			if err != nil {
				c.fatal(pos, err)
			}
			op = c.builtinConstant(name, c.game.Number(num))
		}
	}
	return c.addPart(pos, text, psAdjective, op)
}

func (c *Compiler) directionWord(pos zils.Pos, dir string) *wordInfo {
	p, ok := c.game.Property(dir)
	if !ok {
		c.errorf(pos, "%s is not a direction", dir)
		return nil
	}
	return c.addPart(pos, strings.ToLower(dir), psDirection, p.Operand())
}

// buildVocabulary collects every dictionary word with its parts of
// speech, numbers verbs, prepositions, adjectives and actions, applies
// synonyms and merges words the dictionary cannot tell apart.
func (c *Compiler) buildVocabulary() {
	c.vocab = &vocabulary{words: make(map[*zilg.WordBuilder]*wordInfo)}
	for _, pn := range partNames {
		c.builtinConstant("PS?"+pn.name, c.game.Number(int(pn.ps)))
	}
	for _, pn := range partNames[:4] {
		c.builtinConstant("P1?"+pn.name, c.game.Number(firstCodes[pn.ps]))
	}

	for _, d := range c.objects {
		for _, l := range d.props {
			name, _ := zils.AtomName(l.Elems[0])
			switch name {
			case "SYNONYM":
				for _, e := range l.Elems[1:] {
					if text, ok := wordText(e); ok {
						c.addPart(e.Pos(), text, psObject, nil)
					} else {
						c.malformed(e, "synonyms must be atoms or strings")
					}
				}
			case "ADJECTIVE":
				for _, e := range l.Elems[1:] {
					if text, ok := wordText(e); ok {
						c.adjectiveWord(e.Pos(), text)
					} else {
						c.malformed(e, "adjectives must be atoms or strings")
					}
				}
			case "PSEUDO":
				for i := 1; i < len(l.Elems); i += 2 {
					if s, ok := l.Elems[i].(*zils.String); ok {
						c.addPart(s.Pos(), s.Value, psObject, nil)
					}
				}
			}
		}
	}
	for _, dir := range c.directions {
		c.directionWord(zils.Pos{}, dir)
	}
	c.syntaxWords()
	for _, b := range c.buzz {
		if text, ok := wordText(b); ok {
			c.addPart(b.Pos(), text, psBuzz, nil)
		} else {
			c.malformed(b, "buzz words must be atoms or strings")
		}
	}
	for _, s := range c.synonyms {
		c.applySynonym(s)
	}
	c.mergeCollisions()
	c.writeWordData()
	c.log.Debug("built vocabulary", "words", len(c.game.Words()),
		"verbs", len(c.base.Verbs()), "prepositions", len(c.base.Prepositions()),
		"actions", len(c.base.Actions()))
}

var synonymParts = map[string]partOfSpeech{
	"VERB-SYNONYM": psVerb,
	"PREP-SYNONYM": psPreposition,
	"ADJ-SYNONYM":  psAdjective,
	"DIR-SYNONYM":  psDirection,
}

// applySynonym gives each synonym the parts of speech and values of the
// primary word, restricted to one part for the typed synonym forms. Its
// derived constants become aliases of the primary's.
func (c *Compiler) applySynonym(s *synonymDecl) {
	only, typed := synonymParts[s.kind]
	var primary *wordInfo
	switch only {
	case psVerb:
		primary = c.verbWord(s.pos, s.primary)
	case psPreposition:
		primary = c.prepWord(s.pos, s.primary)
	case psAdjective:
		primary = c.adjectiveWord(s.pos, s.primary)
	case psDirection:
		primary = c.directionWord(s.pos, strings.ToUpper(s.primary))
	default:
		primary = c.word(s.pos, s.primary)
	}
	if primary == nil {
		return
	}
	for _, text := range s.words {
		syn := c.word(s.pos, text)
		if syn == nil || syn == primary {
			continue
		}
		for _, pv := range primary.values {
			if typed && pv.ps != only {
				continue
			}
			if name := c.partConstant(pv.ps, text); name != "" {
				target := c.partConstant(pv.ps, primary.w.Text)
				if err := c.game.AliasConstant(name, target); err != nil {
					c.error(s.pos, err)
				}
			}
			if c.cfg.CompactVocabulary {
				continue
			}
			syn.ps |= pv.ps
			if _, ok := syn.value(pv.ps); !ok {
				syn.values = append(syn.values, pv)
			}
		}
		if c.cfg.CompactVocabulary {
			c.mergeWord(s.pos, primary, syn)
		}
	}
}

// mergeWord folds dup into keep: parts are unioned, derived constants of
// dup become aliases and dup's dictionary entry disappears.
func (c *Compiler) mergeWord(pos zils.Pos, keep, dup *wordInfo) {
	for _, pv := range dup.values {
		name := c.partConstant(pv.ps, dup.w.Text)
		if _, has := keep.value(pv.ps); has {
			if name != "" {
				if err := c.game.AliasConstant(name, c.partConstant(pv.ps, keep.w.Text)); err != nil {
					c.error(pos, err)
				}
			}
			continue
		}
		keep.values = append(keep.values, pv)
	}
	keep.ps |= dup.ps
	if err := c.game.MergeWords(keep.w, dup.w); err != nil {
		c.error(pos, err)
		return
	}
	delete(c.vocab.words, dup.w)
	for i, wi := range c.vocab.order {
		if wi == dup {
			c.vocab.order = append(c.vocab.order[:i], c.vocab.order[i+1:]...)
			break
		}
	}
}

func (c *Compiler) mergeCollisions() {
	for _, group := range c.game.WordCollisions() {
		keep := c.vocab.words[group[0]]
		if keep == nil {
			keep = c.word(zils.Pos{}, group[0].Text)
		}
		for _, w := range group[1:] {
			dup := c.vocab.words[w]
			if dup == nil {
				dup = c.word(zils.Pos{}, w.Text)
			}
			c.warn(zils.Pos{}, warnWordCollision, "words %q and %q look the same to the parser; merged", keep.w.Text, w.Text)
			c.mergeWord(zils.Pos{}, keep, dup)
		}
	}
}

// writeWordData fills the data bytes after each dictionary word: the
// part of speech flags and up to two values, or one in a compact
// vocabulary.
func (c *Compiler) writeWordData() {
	for _, wi := range c.vocab.order {
		if wi.w.IsAlias() {
			continue
		}
		flags := int(wi.ps)
		var vals []zilg.Operand
		for _, pv := range wi.values {
			if pv.value == nil {
				continue
			}
			if len(vals) == 0 && !c.cfg.CompactVocabulary {
				flags |= firstCodes[pv.ps]
			}
			vals = append(vals, pv.value)
		}
		n := 2
		if c.cfg.CompactVocabulary {
			n = 1
		}
		wi.w.AddByte(c.game.Number(flags))
		for i := 0; i < n; i++ {
			if i < len(vals) {
				wi.w.AddByte(vals[i])
			} else {
				wi.w.AddByte(c.game.Zero())
			}
		}
	}
}
