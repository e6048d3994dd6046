package zilg

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/google/btree"
)

// WordBuilder is a dictionary entry. Its data bytes follow the encoded
// text in the vocabulary table.
type WordBuilder struct {
	Text    string
	Encoded []byte
	Data    []DataElem

	seq   int
	sym   *Symbol
	alias *WordBuilder
}

// Canonical follows merges to the word that is emitted.
func (w *WordBuilder) Canonical() *WordBuilder {
	for w.alias != nil {
		w = w.alias
	}
	return w
}

// Operand returns the address of the dictionary entry.
func (w *WordBuilder) Operand() Operand { return w.Canonical().sym }

func (w *WordBuilder) IsAlias() bool { return w.alias != nil }

func (w *WordBuilder) AddByte(v Operand) { w.Data = append(w.Data, DataElem{Value: v, Byte: true}) }
func (w *WordBuilder) AddWord(v Operand) { w.Data = append(w.Data, DataElem{Value: v}) }

func wordLess(a, b *WordBuilder) bool {
	if c := bytes.Compare(a.Encoded, b.Encoded); c != 0 {
		return c < 0
	}
	return a.Text < b.Text
}

func newVocab() *btree.BTreeG[*WordBuilder] {
	return btree.NewG[*WordBuilder](8, wordLess)
}

// WordSymbol returns the symbol name of a dictionary word.
func WordSymbol(text string) string {
	return "W?" + Sanitize(strings.ToUpper(text))
}

// DefineWord returns the dictionary entry for text, creating it on first
// use. Text is folded to lower case.
func (g *Game) DefineWord(text string) (*WordBuilder, error) {
	text = strings.ToLower(text)
	if w, ok := g.wordsByText[text]; ok {
		return w, nil
	}
	name := WordSymbol(text)
	if err := g.syms.Define(name, CatWord); err != nil {
		return nil, err
	}
	w := &WordBuilder{
		Text:    text,
		Encoded: g.encoder.EncodeWord(text),
		seq:     len(g.wordsByText),
		sym:     &Symbol{Kind: SymWord, Name: name},
	}
	g.wordsByText[text] = w
	g.vocab.ReplaceOrInsert(w)
	return w, nil
}

// Word looks up a dictionary word by its text.
func (g *Game) Word(text string) (*WordBuilder, bool) {
	w, ok := g.wordsByText[strings.ToLower(text)]
	return w, ok
}

// Words returns the words that will be emitted, sorted by their encoded
// form.
func (g *Game) Words() []*WordBuilder {
	ws := make([]*WordBuilder, 0, g.vocab.Len())
	g.vocab.Ascend(func(w *WordBuilder) bool {
		ws = append(ws, w)
		return true
	})
	return ws
}

// WordCollisions returns groups of distinct words with the same encoded
// form. Each group is in definition order.
func (g *Game) WordCollisions() [][]*WordBuilder {
	var groups [][]*WordBuilder
	var cur []*WordBuilder
	flush := func() {
		if len(cur) > 1 {
			sort.Slice(cur, func(i, j int) bool { return cur[i].seq < cur[j].seq })
			groups = append(groups, cur)
		}
		cur = nil
	}
	g.vocab.Ascend(func(w *WordBuilder) bool {
		if len(cur) > 0 && !bytes.Equal(cur[0].Encoded, w.Encoded) {
			flush()
		}
		cur = append(cur, w)
		return true
	})
	flush()
	return groups
}

// MergeWords makes dup an alias of keep. dup disappears from the
// vocabulary table; its symbol is kept as an equate of keep's.
func (g *Game) MergeWords(keep, dup *WordBuilder) error {
	keep = keep.Canonical()
	if dup.alias != nil || dup == keep {
		return fmt.Errorf("word %q is already merged", dup.Text)
	}
	if _, ok := g.vocab.Delete(dup); !ok {
		return fmt.Errorf("word %q is not in the vocabulary", dup.Text)
	}
	dup.alias = keep
	g.syms.Remove(dup.sym.Name)
	if err := g.syms.Define(dup.sym.Name, CatConstant); err != nil {
		return err
	}
	g.wordAliases = append(g.wordAliases, dup)
	return nil
}
