package zilb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fzipp/zil-compiler/diag"
)

func TestDefineProperty_Descending(t *testing.T) {
	for _, version := range []int{3, 5} {
		b := NewBase(version)
		max := b.Limits.MaxProperties
		for i := 0; i < 10; i++ {
			n, err := b.DefineProperty(fmt.Sprintf("P%d", i))
			if err != nil {
				t.Fatalf("v%d: DefineProperty: %v", version, err)
			}
			if n != max-i {
				t.Errorf("v%d: property %d got %d, want %d", version, i, n, max-i)
			}
		}
		n, _ := b.DefineProperty("P3")
		if n != max-3 {
			t.Errorf("v%d: redefinition got %d, want %d", version, n, max-3)
		}
		if got := len(b.Properties()); got != 10 {
			t.Errorf("v%d: %d properties, want 10", version, got)
		}
	}
}

func TestDefineFlag_Limit(t *testing.T) {
	b := NewBase(5)
	for i := 0; i < 48; i++ {
		if _, err := b.DefineFlag(fmt.Sprintf("F%d", i)); err != nil {
			t.Fatalf("flag %d: %v", i, err)
		}
	}
	_, err := b.DefineFlag("ONE-TOO-MANY")
	var le *diag.LimitExceededError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LimitExceededError", err)
	}
	if le.Max != 48 {
		t.Errorf("Max = %d, want 48", le.Max)
	}
	if n, _ := b.Flag("F47"); n != 0 {
		t.Errorf("last flag = %d, want 0", n)
	}
}

func TestDefineFlag_V3Limit(t *testing.T) {
	b := NewBase(3)
	for i := 0; i < 32; i++ {
		if _, err := b.DefineFlag(fmt.Sprintf("F%d", i)); err != nil {
			t.Fatalf("flag %d: %v", i, err)
		}
	}
	if _, err := b.DefineFlag("X"); err == nil {
		t.Errorf("33rd flag accepted in v3")
	}
}

func TestDefineFlags_PinnedFirst(t *testing.T) {
	b := NewBase(5)
	if err := b.DefineFlags("TOUCHBIT"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"TAKEBIT", "OPENBIT", "TOUCHBIT"} {
		if _, err := b.DefineFlag(name); err != nil {
			t.Fatal(err)
		}
	}
	want := map[string]int{"TOUCHBIT": 47, "TAKEBIT": 46, "OPENBIT": 45}
	for name, n := range want {
		if got, _ := b.Flag(name); got != n {
			t.Errorf("%s = %d, want %d", name, got, n)
		}
	}
}

func TestDefineObject_Dense(t *testing.T) {
	b := NewBase(3)
	for i, name := range []string{"ROOMS", "KITCHEN", "LAMP"} {
		n, err := b.DefineObject(name)
		if err != nil {
			t.Fatal(err)
		}
		if n != i+1 {
			t.Errorf("%s = %d, want %d", name, n, i+1)
		}
	}
}

func TestVocabularyNumbers(t *testing.T) {
	b := NewBase(3)
	v1, _ := b.DefineVerb("TAKE")
	v2, _ := b.DefineVerb("DROP")
	p1, _ := b.DefinePreposition("IN")
	a0, _ := b.DefineAction("V-TAKE")
	a1, _ := b.DefineAction("V-DROP")
	if v1 != 255 || v2 != 254 || p1 != 255 || a0 != 0 || a1 != 1 {
		t.Errorf("got verbs %d %d prep %d actions %d %d", v1, v2, p1, a0, a1)
	}
	if n, ok := b.Verb("DROP"); !ok || n != 254 {
		t.Errorf("Verb(DROP) = %d, %v, want 254, true", n, ok)
	}
	if n, ok := b.Preposition("IN"); !ok || n != 255 {
		t.Errorf("Preposition(IN) = %d, %v, want 255, true", n, ok)
	}
	if n, ok := b.Action("V-DROP"); !ok || n != 1 {
		t.Errorf("Action(V-DROP) = %d, %v, want 1, true", n, ok)
	}
	if _, ok := b.Verb("IN"); ok {
		t.Error("IN is a verb")
	}
	b.DefineAdjective("RED")
	b.DefineAdjective("RED")
	if got := b.Adjectives(); len(got) != 1 || got[0].Name != "RED" {
		t.Errorf("Adjectives = %v, want [RED]", got)
	}
}
