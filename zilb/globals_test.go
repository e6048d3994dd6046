package zilb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fzipp/zil-compiler/diag"
)

func makeGlobals(n int) []*Global {
	gs := make([]*Global, n)
	for i := range gs {
		gs[i] = &Global{Name: fmt.Sprintf("G%d", i)}
	}
	return gs
}

func TestAssignGlobalStorage_AllFit(t *testing.T) {
	gs := makeGlobals(236)
	gs[3].Storage = StorageSoft
	plan, err := AssignGlobalStorage(3, gs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if plan.NeedTable || len(plan.Soft) != 0 || len(plan.Hard) != 236 {
		t.Errorf("got hard %d soft %d table %v", len(plan.Hard), len(plan.Soft), plan.NeedTable)
	}
	if gs[3].Storage != StorageHard {
		t.Errorf("declared soft global is %v, want hard", gs[3].Storage)
	}
}

func TestAssignGlobalStorage_Overflow(t *testing.T) {
	gs := makeGlobals(238)
	forced := map[string]bool{"G200": true, "G201": true, "G230": true, "G236": true, "G237": true}
	for i := 0; i < 20; i++ {
		gs[i].Byte = i%3 == 0
	}
	plan, err := AssignGlobalStorage(3, gs, func(name string) bool { return forced[name] })
	if err != nil {
		t.Fatal(err)
	}
	capacity := 240 - ReservedGlobals - 1
	if !plan.NeedTable {
		t.Errorf("NeedTable = false")
	}
	if len(plan.Hard) != capacity {
		t.Errorf("%d hard globals, want %d", len(plan.Hard), capacity)
	}
	if len(plan.Hard)+len(plan.Soft) != len(gs) {
		t.Errorf("hard %d + soft %d != %d", len(plan.Hard), len(plan.Soft), len(gs))
	}
	for name := range forced {
		for _, g := range gs {
			if g.Name == name && g.Storage != StorageHard {
				t.Errorf("%s is %v, want hard", name, g.Storage)
			}
		}
	}
	// The first non-forced globals in declaration order fill the rest.
	for i := 0; i < capacity-len(forced); i++ {
		if gs[i].Storage != StorageHard {
			t.Errorf("G%d is %v, want hard", i, gs[i].Storage)
		}
	}
	checkSoftPacking(t, plan)
}

func TestAssignGlobalStorage_AnyBeforeSoft(t *testing.T) {
	gs := makeGlobals(240)
	gs[0].Storage = StorageSoft
	plan, err := AssignGlobalStorage(5, gs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if gs[0].Storage != StorageSoft {
		t.Errorf("declared soft global became hard while any globals remained")
	}
	checkSoftPacking(t, plan)
}

func TestAssignGlobalStorage_StatusLineV3(t *testing.T) {
	gs := makeGlobals(240)
	gs = append(gs, &Global{Name: "HERE"}, &Global{Name: "SCORE"}, &Global{Name: "MOVES"})
	if _, err := AssignGlobalStorage(3, gs, nil); err != nil {
		t.Fatal(err)
	}
	for _, g := range gs[240:] {
		if g.Storage != StorageHard {
			t.Errorf("%s is %v, want hard", g.Name, g.Storage)
		}
	}
}

func TestAssignGlobalStorage_TooManyForced(t *testing.T) {
	gs := makeGlobals(300)
	_, err := AssignGlobalStorage(5, gs, func(string) bool { return true })
	var le *diag.LimitExceededError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LimitExceededError", err)
	}
}

func TestAssignGlobalStorage_SoftPackingProperty(t *testing.T) {
	for n := 0; n < 40; n++ {
		gs := makeGlobals(240 + n)
		for i, g := range gs {
			g.Byte = (i*7+n)%5 == 0
		}
		plan, err := AssignGlobalStorage(4, gs, nil)
		if err != nil {
			t.Fatal(err)
		}
		checkSoftPacking(t, plan)
	}
}

func checkSoftPacking(t *testing.T, plan *GlobalPlan) {
	t.Helper()
	used := make([]bool, plan.TableSize)
	size := 0
	for _, g := range plan.Soft {
		start, width := g.Offset, 1
		if g.IsWord {
			start, width = g.Offset*2, 2
		}
		for i := start; i < start+width; i++ {
			if i >= len(used) {
				t.Fatalf("%s at byte %d outside table of %d bytes", g.Name, i, plan.TableSize)
			}
			if used[i] {
				t.Fatalf("%s overlaps at byte %d", g.Name, i)
			}
			used[i] = true
		}
		size += width
	}
	pad := plan.TableSize - size
	if pad != 0 && pad != 1 {
		t.Errorf("table size %d leaves %d unused bytes", plan.TableSize, pad)
	}
}
