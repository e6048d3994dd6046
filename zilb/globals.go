package zilb

import (
	"github.com/fzipp/zil-compiler/diag"
)

// ReservedGlobals is the number of global slots kept free for the
// interpreter and the library.
const ReservedGlobals = 4

// SoftTableName is the global holding the address of the soft globals
// table.
const SoftTableName = "GLOBAL-VARS-TABLE"

// StatusGlobals are the status line variables, which must be hard
// globals in the first slots before version 4.
var StatusGlobals = []string{"HERE", "SCORE", "MOVES"}

type Storage int

const (
	StorageAny Storage = iota
	StorageHard
	StorageSoft
)

func (s Storage) String() string {
	return [...]string{"any", "hard", "soft"}[s]
}

// Global is a global variable taking part in storage assignment.
type Global struct {
	Name    string
	Storage Storage // requested storage; assignment overwrites it
	Byte    bool    // value fits in a byte

	// Set for soft globals after assignment.
	IsWord bool
	Offset int // byte offset for byte globals, word offset for word globals
}

// GlobalPlan is the result of AssignGlobalStorage.
type GlobalPlan struct {
	Hard      []*Global // in declaration order
	Soft      []*Global // bytes first, then words
	TableSize int       // bytes
	NeedTable bool      // a SoftTableName global must be defined
}

// AssignGlobalStorage decides hard or soft storage for every global.
// forceHard reports globals used directly as variable operands; such
// globals cannot live in a table.
func AssignGlobalStorage(version int, globals []*Global, forceHard func(name string) bool) (*GlobalPlan, error) {
	capacity := LimitsFor(version).MaxGlobals - ReservedGlobals
	plan := &GlobalPlan{}
	if len(globals) <= capacity {
		for _, g := range globals {
			g.Storage = StorageHard
		}
		plan.Hard = globals
		return plan, nil
	}

	capacity-- // slot for the table pointer
	plan.NeedTable = true

	status := make(map[string]bool)
	if version < 4 {
		for _, name := range StatusGlobals {
			status[name] = true
		}
	}
	hard := make(map[*Global]bool)
	var anyq, softq []*Global
	for _, g := range globals {
		switch {
		case g.Storage == StorageHard, status[g.Name], forceHard != nil && forceHard(g.Name):
			hard[g] = true
		case g.Storage == StorageSoft:
			softq = append(softq, g)
		default:
			anyq = append(anyq, g)
		}
	}
	if len(hard) > capacity {
		return nil, &diag.LimitExceededError{Limit: "hard globals", Max: capacity, Got: len(hard)}
	}
	for _, q := range [][]*Global{anyq, softq} {
		for _, g := range q {
			if len(hard) >= capacity {
				break
			}
			hard[g] = true
		}
	}

	var bytes, words []*Global
	for _, g := range globals {
		if hard[g] {
			g.Storage = StorageHard
			plan.Hard = append(plan.Hard, g)
			continue
		}
		g.Storage = StorageSoft
		if g.Byte {
			bytes = append(bytes, g)
		} else {
			words = append(words, g)
		}
	}
	for i, g := range bytes {
		g.IsWord = false
		g.Offset = i
	}
	pad := len(bytes) % 2
	base := (len(bytes) + pad) / 2
	for i, g := range words {
		g.IsWord = true
		g.Offset = base + i
	}
	plan.Soft = append(bytes, words...)
	plan.TableSize = len(bytes) + pad + 2*len(words)
	return plan, nil
}
