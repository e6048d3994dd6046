package zscii

import (
	"bytes"
	"testing"
)

func TestEncodeWord_V3(t *testing.T) {
	e := NewEncoder(3)
	got := e.EncodeWord("LAMP")
	want := []byte{0x44, 0xd2, 0xd4, 0xa5}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeWord(LAMP) = % x, want % x", got, want)
	}
}

func TestEncodeWord_Truncates(t *testing.T) {
	e := NewEncoder(3)
	if a, b := e.EncodeWord("through"), e.EncodeWord("throughput"); !bytes.Equal(a, b) {
		t.Errorf("v3 encodings differ: % x vs % x", a, b)
	}
	e = NewEncoder(5)
	if a, b := e.EncodeWord("through"), e.EncodeWord("throughput"); bytes.Equal(a, b) {
		t.Errorf("v5 encodings collide: % x", a)
	}
	if got := len(e.EncodeWord("x")); got != 6 {
		t.Errorf("v5 word length = %d bytes, want 6", got)
	}
}

func TestEncodedLength(t *testing.T) {
	for _, v := range []int{3, 4, 5, 8} {
		e := NewEncoder(v)
		if got, want := e.EncodedLength(), len(e.EncodeWord("lamp")); got != want {
			t.Errorf("v%d: EncodedLength = %d, want %d", v, got, want)
		}
	}
}

func TestZChars_Escapes(t *testing.T) {
	e := NewEncoder(5)
	got := e.ZChars("a1@")
	want := []byte{6, 5, 9, 5, 6, 2, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("ZChars = %v, want %v", got, want)
	}
}

func TestFold(t *testing.T) {
	if got := Fold("café"); got != "café" {
		t.Errorf("Fold(café) = %q, want unchanged", got)
	}
	if got := Fold("Ŝaŭ"); got != "Sau" {
		t.Errorf("Fold = %q, want Sau", got)
	}
	if c, ok := ToZSCII('ä'); !ok || c != 155 {
		t.Errorf("ToZSCII(ä) = %d %v, want 155", c, ok)
	}
	if c, ok := ToZSCII('¿'); !ok || c != 223 {
		t.Errorf("ToZSCII(¿) = %d %v, want 223", c, ok)
	}
}

func TestParseAlphabet(t *testing.T) {
	if _, err := ParseAlphabet([]string{DefaultA0, DefaultA1}); err == nil {
		t.Errorf("two rows accepted")
	}
	a, err := ParseAlphabet([]string{DefaultA0, DefaultA1, "0123456789.,!?_#'\"/\\-:()"})
	if err != nil {
		t.Fatalf("ParseAlphabet: %v", err)
	}
	if got := len(a.Table()); got != 78 {
		t.Errorf("table length = %d, want 78", got)
	}
}
