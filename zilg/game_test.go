package zilg

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/fzipp/zil-compiler/diag"
)

func TestSanitize(t *testing.T) {
	for _, tt := range []struct {
		name, want string
	}{
		{"FOO-BAR?", "FOO-BAR?"},
		{"#1", "#1"},
		{"A.B", "A$2EB"},
		{"$", "$24"},
		{"A$2EB", "A$242EB"},
		{",", "$COMMA"},
		{".", "$PERIOD"},
		{"COMMA", "COMMA"},
		{"-", "$HYPHEN"},
		{"\xDASH", "$DASH"},
		{"ü", "$C3$BC"},
	} {
		if got := Sanitize(tt.name); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSanitize_ReservedWordsCannotCollide(t *testing.T) {
	isHex := func(c byte) bool { return c >= '0' && c <= '9' || c >= 'A' && c <= 'F' }
	for punct, w := range reservedWords {
		if len(w) < 3 || w[0] != '$' || isHex(w[1]) && isHex(w[2]) {
			t.Errorf("reserved word %q for %q could come from escaping", w, punct)
		}
		for _, other := range []string{w, w[1:], "$" + w[1:]} {
			if other != punct && Sanitize(other) == Sanitize(punct) {
				t.Errorf("Sanitize(%q) = Sanitize(%q) = %q", other, punct, Sanitize(punct))
			}
		}
	}
}

func TestGame_DuplicateAcrossCategories(t *testing.T) {
	g := NewGame(Options{Version: 3})
	if _, err := g.DefineGlobal("LAMP"); err != nil {
		t.Fatal(err)
	}
	_, err := g.DefineObject("LAMP", 1)
	var dup *diag.DuplicateSymbolError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateSymbolError", err)
	}
	if dup.Existing != "global" || dup.Category != "object" {
		t.Errorf("dup = %+v", dup)
	}
}

func TestGame_Interning(t *testing.T) {
	g := NewGame(Options{Version: 3})
	if g.String("hello") != g.String("hello") {
		t.Error("identical strings are not interned")
	}
	if g.String("a") == g.String("b") {
		t.Error("distinct strings share an operand")
	}
	if g.Number(7) != g.Number(7) {
		t.Error("numbers are not interned")
	}
	if g.Zero() != g.Number(0) || g.One() != g.Number(1) {
		t.Error("0 and 1 are not pre-interned")
	}
}

func TestGame_MultipleEntries(t *testing.T) {
	g := NewGame(Options{Version: 3})
	if _, err := g.DefineRoutine("GO", true, false); err != nil {
		t.Fatal(err)
	}
	_, err := g.DefineRoutine("MAIN", true, false)
	if !errors.Is(err, ErrMultipleEntries) {
		t.Fatalf("err = %v, want ErrMultipleEntries", err)
	}
}

func TestGame_VocabularyMerge(t *testing.T) {
	g := NewGame(Options{Version: 3})
	through, _ := g.DefineWord("through")
	throughput, _ := g.DefineWord("THROUGHPUT")
	g.DefineWord("lamp")
	if _, err := g.DefineConstant("PR?THROUGH", g.Number(255)); err != nil {
		t.Fatal(err)
	}
	if _, err := g.DefineConstant("PR?THROUGHPUT", g.Number(254)); err != nil {
		t.Fatal(err)
	}

	groups := g.WordCollisions()
	if len(groups) != 1 || !reflect.DeepEqual(groups[0], []*WordBuilder{through, throughput}) {
		t.Fatalf("WordCollisions = %v", groups)
	}
	if err := g.MergeWords(through, throughput); err != nil {
		t.Fatal(err)
	}
	if err := g.AliasConstant("PR?THROUGHPUT", "PR?THROUGH"); err != nil {
		t.Fatal(err)
	}
	if throughput.Operand() != through.Operand() {
		t.Error("W?THROUGHPUT does not resolve to W?THROUGH")
	}
	a, _ := g.Constant("PR?THROUGHPUT")
	b, _ := g.Constant("PR?THROUGH")
	if a != b {
		t.Error("PR?THROUGHPUT does not resolve to PR?THROUGH")
	}
	if n := len(g.Words()); n != 2 {
		t.Errorf("len(Words) = %d, want 2", n)
	}
	if len(g.WordCollisions()) != 0 {
		t.Error("collisions remain after merging")
	}
	if err := g.MergeWords(through, throughput); err == nil {
		t.Error("merging twice succeeded")
	}
}

func TestGame_VocabularySorted(t *testing.T) {
	g := NewGame(Options{Version: 5})
	for _, w := range []string{"zebra", "apple", "mango", "banana"} {
		g.DefineWord(w)
	}
	ws := g.Words()
	for i := 1; i < len(ws); i++ {
		if bytes.Compare(ws[i-1].Encoded, ws[i].Encoded) >= 0 {
			t.Errorf("words not sorted: %q before %q", ws[i-1].Text, ws[i].Text)
		}
	}
}

func TestObject_Tree(t *testing.T) {
	g := NewGame(Options{Version: 3})
	room, _ := g.DefineObject("ROOM", 1)
	a, _ := g.DefineObject("A", 2)
	b, _ := g.DefineObject("B", 3)
	a.SetParent(room)
	b.SetParent(room)
	if room.FirstChild() != b || b.Sibling() != a || a.Sibling() != nil {
		t.Errorf("children of ROOM are not B, A")
	}
	if err := room.SetParent(a); err == nil {
		t.Error("cycle was accepted")
	}
	if err := room.SetParent(room); err == nil {
		t.Error("self containment was accepted")
	}
	a.SetParent(b)
	if room.FirstChild() != b || b.Sibling() != nil || b.FirstChild() != a || a.Parent() != b {
		t.Error("moving A into B did not relink")
	}
}

func minimalGame(t *testing.T, opts Options) *Game {
	t.Helper()
	g := NewGame(opts)
	rb, err := g.DefineRoutine("GO", true, false)
	if err != nil {
		t.Fatal(err)
	}
	rb.EmitPrint("Hi")
	rb.Emit(OpQuit)
	return g
}

func sectionText(im *Image, name string) []string {
	var lines []string
	for _, it := range im.Section(name).Items {
		lines = append(lines, itemText(it))
	}
	return lines
}

func TestGame_SectionOrder(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	im, err := g.Emit()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range im.Sections {
		got = append(got, s.Name)
	}
	want := []string{
		SectionHeader, SectionConstants, SectionPropertyDefaults, SectionObjects,
		SectionGlobals, SectionImpureTables, SectionImpureEnd, SectionVocabulary,
		SectionPureTables, SectionDebug, SectionPreloadEnd, SectionCode, SectionStrings,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sections = %q, want %q", got, want)
	}
	code := sectionText(im, SectionCode)
	wantCode := []string{".FUNCT GO", "START::", `PRINTI "Hi"`, "QUIT"}
	if !reflect.DeepEqual(code, wantCode) {
		t.Errorf("code = %q, want %q", code, wantCode)
	}
}

func TestGame_NoEntry(t *testing.T) {
	g := NewGame(Options{Version: 3})
	_, err := g.Emit()
	if !errors.Is(err, ErrNoEntry) {
		t.Fatalf("err = %v, want ErrNoEntry", err)
	}
}

func TestGame_EntryWithLocals(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	g.Entry().DefineLocal("X", nil)
	if _, err := g.Emit(); err == nil {
		t.Fatal("entry routine with locals accepted in version 3")
	}
}

func TestGame_PropertyDefaults(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	p, _ := g.DefineProperty("SIZE", 31)
	p.Default = g.Number(5)
	g.DefineProperty("CAPACITY", 30)
	im, err := g.Emit()
	if err != nil {
		t.Fatal(err)
	}
	defs := sectionText(im, SectionPropertyDefaults)
	if len(defs) != 32 || defs[0] != "OBJECT::" {
		t.Fatalf("defaults = %q", defs)
	}
	if defs[1] != ".WORD 0" || defs[31] != ".WORD 5" {
		t.Errorf("property 1 = %q, property 31 = %q", defs[1], defs[31])
	}
	consts := sectionText(im, SectionConstants)
	want := []string{"P?SIZE=31", "P?CAPACITY=30"}
	if !reflect.DeepEqual(consts, want) {
		t.Errorf("constants = %q, want %q", consts, want)
	}
}

func TestGame_Objects(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	room, _ := g.DefineObject("ROOM", 1)
	lamp, _ := g.DefineObject("LAMP", 2)
	lamp.SetParent(room)
	lamp.Description = "brass lamp"
	takebit, _ := g.DefineFlag("TAKEBIT", 31)
	lightbit, _ := g.DefineFlag("LIGHTBIT", 1)
	lamp.AddFlag(takebit)
	lamp.AddFlag(lightbit)
	size, _ := g.DefineProperty("SIZE", 31)
	synonym, _ := g.DefineProperty("SYNONYM", 30)
	e, _ := lamp.AddProperty(synonym)
	w, _ := g.DefineWord("lamp")
	e.AddWord(w.Operand())
	e, _ = lamp.AddProperty(size)
	e.AddByte(g.Number(15))

	im, err := g.Emit()
	if err != nil {
		t.Fatal(err)
	}
	got := sectionText(im, SectionObjects)
	want := []string{
		".OBJECT ROOM,0,0,0,0,LAMP,?PTBL?ROOM",
		".OBJECT LAMP,16384,1,ROOM,0,0,?PTBL?LAMP",
		"?PTBL?ROOM::", ".TABLE", `.STRL ""`, ".BYTE 0", ".ENDT",
		"?PTBL?LAMP::", ".TABLE", `.STRL "brass lamp"`,
		".PROP 1,31", ".BYTE 15",
		".PROP 2,30", ".WORD W?LAMP",
		".BYTE 0", ".ENDT",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("objects =\n\t%s\nwant\n\t%s", strings.Join(got, "\n\t"), strings.Join(want, "\n\t"))
	}
	consts := sectionText(im, SectionConstants)
	if consts[0] != "TAKEBIT=31" || consts[1] != "FX?TAKEBIT=1" || consts[3] != "FX?LIGHTBIT=16384" {
		t.Errorf("flag constants = %q", consts[:4])
	}
}

func TestGame_PropertyTooLong(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	o, _ := g.DefineObject("THING", 1)
	p, _ := g.DefineProperty("DATA", 31)
	e, _ := o.AddProperty(p)
	for i := 0; i < 9; i++ {
		e.AddByte(g.Number(i))
	}
	_, err := g.Emit()
	var le *diag.LimitExceededError
	if !errors.As(err, &le) || le.Max != 8 || le.Got != 9 {
		t.Fatalf("err = %v, want LimitExceededError 9 > 8", err)
	}
}

func TestGame_TooManySelfInserting(t *testing.T) {
	g := minimalGame(t, Options{Version: 5, SelfInserting: strings.Repeat(",", 256)})
	_, err := g.Emit()
	var le *diag.LimitExceededError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want LimitExceededError", err)
	}
}

func TestGame_StatusGlobalsFirst(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	for _, name := range []string{"WINNER", "MOVES", "HERE", "SCORE"} {
		g.DefineGlobal(name)
	}
	im, err := g.Emit()
	if err != nil {
		t.Fatal(err)
	}
	got := sectionText(im, SectionGlobals)
	want := []string{"GLOBAL::", ".GVAR HERE=0", ".GVAR SCORE=0", ".GVAR MOVES=0", ".GVAR WINNER=0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("globals = %q, want %q", got, want)
	}
}

func TestGame_TablesAndVocabulary(t *testing.T) {
	g := minimalGame(t, Options{Version: 3, SelfInserting: ".,"})
	pure, _ := g.DefineTable("PTBL", TablePure)
	pure.AddWord(g.One())
	impure, _ := g.DefineTable("ITBL", TableByte)
	impure.Add(g.Number(2))
	parser, _ := g.DefineTable("PARSE-TBL", TableParser)
	parser.AddWord(g.Zero())
	w, _ := g.DefineWord("lamp")
	w.AddByte(g.Number(128))

	im, err := g.Emit()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := sectionText(im, SectionImpureTables), []string{
		"PARSE-TBL::", ".TABLE 2", ".WORD 0", ".ENDT",
		"ITBL::", ".TABLE 1", ".BYTE 2", ".ENDT",
	}; !reflect.DeepEqual(got, want) {
		t.Errorf("impure tables = %q, want %q", got, want)
	}
	if got, want := sectionText(im, SectionPureTables), []string{
		"PTBL::", ".TABLE 2", ".WORD 1", ".ENDT",
	}; !reflect.DeepEqual(got, want) {
		t.Errorf("pure tables = %q, want %q", got, want)
	}
	if got, want := sectionText(im, SectionVocabulary), []string{
		"VOCAB::", ".BYTE 2", ".BYTE 46", ".BYTE 44", ".BYTE 7", ".WORD 1",
		"W?LAMP::", `.ZWORD "lamp"`, ".BYTE 128", ".BYTE 0", ".BYTE 0",
	}; !reflect.DeepEqual(got, want) {
		t.Errorf("vocabulary = %q, want %q", got, want)
	}
}

func TestGame_VocabularyEntrySize(t *testing.T) {
	tests := []struct {
		version int
		compact bool
		want    string
	}{
		{3, false, ".BYTE 7"},
		{5, false, ".BYTE 9"},
		{5, true, ".BYTE 8"},
	}
	for _, tt := range tests {
		g := minimalGame(t, Options{Version: tt.version, CompactVocabulary: tt.compact})
		w, _ := g.DefineWord("lamp")
		w.AddByte(g.Number(128))
		im, err := g.Emit()
		if err != nil {
			t.Fatal(err)
		}
		// VOCAB::, count of self-inserting characters, entry size
		lines := sectionText(im, SectionVocabulary)
		if len(lines) < 3 || lines[2] != tt.want {
			t.Errorf("v%d compact=%v: vocabulary = %q, want entry size %s", tt.version, tt.compact, lines, tt.want)
		}
	}
}

func TestGame_NonConstantTableElement(t *testing.T) {
	g := minimalGame(t, Options{Version: 3})
	gb, _ := g.DefineGlobal("G")
	tbl, _ := g.DefineTable("T", 0)
	tbl.AddWord(gb.Var)
	_, err := g.Emit()
	var nc *diag.NonConstantInitializerError
	if !errors.As(err, &nc) {
		t.Fatalf("err = %v, want NonConstantInitializerError", err)
	}
}

func TestImage_WriteZAP(t *testing.T) {
	g := minimalGame(t, Options{Version: 5, Release: 2})
	g.String("zeta")
	g.String("alpha")
	im, err := g.Emit()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := im.WriteZAP(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"\t.NEW 5\n",
		"\tZORKID=2\n",
		"OBJECT::\n",
		"START::\n",
		"\t.GSTR STR?2,\"alpha\"\n\t.GSTR STR?1,\"zeta\"\n",
		"\t.END\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}
