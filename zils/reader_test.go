package zils

import (
	"errors"
	"testing"
)

func TestReadString_Routine(t *testing.T) {
	nodes, err := ReadString(`
; "a comment"
<ROUTINE FOO (X "OPT" (Y 5) "AUX" Z)
	<SET Z <+ .X ,COUNT>>
	<TELL "hi" CR>
	<RTRUE>>`)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1", len(nodes))
	}
	f, ok := nodes[0].(*Form)
	if !ok {
		t.Fatalf("got %T, want *Form", nodes[0])
	}
	if got := f.HeadName(); got != "ROUTINE" {
		t.Errorf("head = %q, want ROUTINE", got)
	}
	if got, want := f.String(), `<ROUTINE FOO (X "OPT" (Y 5) "AUX" Z) <SET Z <+ <LVAL X> <GVAL COUNT>>> <TELL "hi" CR> <RTRUE>>`; got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
	if p := f.Pos(); p.Line != 3 || p.Col != 1 {
		t.Errorf("pos = %v, want line 3 col 1", p)
	}
}

func TestReadString_Literals(t *testing.T) {
	nodes, err := ReadString(`<> *17* -3 #2 101 !\A "a\"b" #BYTE 4 X:FIX 'Y`)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	want := []string{`<>`, `15`, `-3`, `5`, `!\A`, `"a\"b"`, `<BYTE 4>`, `X:FIX`, `<QUOTE Y>`}
	if len(nodes) != len(want) {
		t.Fatalf("got %d nodes, want %d", len(nodes), len(want))
	}
	for i, n := range nodes {
		if got := n.String(); got != want[i] {
			t.Errorf("node %d = %s, want %s", i, got, want[i])
		}
	}
	if !IsFalse(nodes[0]) {
		t.Errorf("<> is not false")
	}
}

func TestReadString_Unterminated(t *testing.T) {
	_, err := ReadString("<FOO (1 2>")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SyntaxError", err)
	}
}

func TestLocalName(t *testing.T) {
	nodes := MustReadString(".X ,Y")
	if n, ok := LocalName(nodes[0]); !ok || n != "X" {
		t.Errorf("LocalName = %q %v", n, ok)
	}
	if n, ok := GlobalName(nodes[1]); !ok || n != "Y" {
		t.Errorf("GlobalName = %q %v", n, ok)
	}
	if _, ok := LocalName(nodes[1]); ok {
		t.Errorf("LocalName(,Y) succeeded")
	}
}
