package zilg

import (
	"fmt"
	"strings"

	"github.com/fzipp/zil-compiler/diag"
)

type Category int

const (
	CatConstant Category = iota
	CatGlobal
	CatTable
	CatRoutine
	CatObject
	CatProperty
	CatFlag
	CatWord
)

func (c Category) String() string {
	return [...]string{"constant", "global", "table", "routine", "object", "property", "flag", "word"}[c]
}

// reservedWords name single punctuation characters, so that dictionary
// words such as "," get readable symbols. Each starts with $ and a pair
// that is not two hex digits, a spelling escaping never produces.
var reservedWords = map[string]string{
	",":  "$COMMA",
	".":  "$PERIOD",
	"\"": "$QUOTE",
	"'":  "$APOSTROPHE",
	";":  "$SEMI",
	":":  "$COLON",
	"!":  "$EXCLAM",
	"?":  "$QUESTION",
	"#":  "$HASH",
	"-":  "$HYPHEN",
}

// Sanitize maps a ZIL name to an assembler symbol. Letters, digits and
// the characters ? # - pass through; a lone punctuation character becomes
// a reserved word; every other byte, including $, is written as $XX.
func Sanitize(name string) string {
	if w, ok := reservedWords[name]; ok {
		return w
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '?', c == '#', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "$%02X", c)
		}
	}
	return b.String()
}

// SymbolTable enforces that sanitized names are unique across all
// categories.
type SymbolTable struct {
	names map[string]Category
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{names: make(map[string]Category)}
}

// Define records name, which must already be sanitized.
func (t *SymbolTable) Define(name string, cat Category) error {
	if old, ok := t.names[name]; ok {
		return &diag.DuplicateSymbolError{Name: name, Category: cat.String(), Existing: old.String()}
	}
	t.names[name] = cat
	return nil
}

func (t *SymbolTable) Lookup(name string) (Category, bool) {
	c, ok := t.names[name]
	return c, ok
}

// Remove deletes a name. Only vocabulary words are ever removed.
func (t *SymbolTable) Remove(name string) {
	delete(t.names, name)
}
