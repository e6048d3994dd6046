package zilp

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

// ifidNamespace scopes the identifiers derived for stories without a
// configured IFID.
var ifidNamespace = uuid.MustParse("4a1c3d52-7e0b-5f38-9c61-2d8f0b6e4a17")

// ifid returns the configured IFID or one derived from the story name,
// release and serial, so that rebuilding the same release keeps it.
func (c *Compiler) ifid() uuid.UUID {
	if c.cfg.IFID != "" {
		id, err := uuid.Parse(c.cfg.IFID)
		if err == nil {
			return id
		}
		c.errorf(zils.Pos{}, "ifid: %v", err)
	}
	name := c.name
	if name == "" {
		name = c.cfg.Entry
	}
	key := fmt.Sprintf("%s/%d/%s", name, c.cfg.Release, c.cfg.Serial)
	return uuid.NewSHA1(ifidNamespace, []byte(key))
}

// releaseTables adds the tables that identify the release: IFID-ARRAY
// holds the IFID as text for the Treaty of Babel.
func (c *Compiler) releaseTables() {
	if _, taken := c.game.Symbols().Lookup("IFID-ARRAY"); taken {
		return
	}
	t, err := c.game.DefineTable("IFID-ARRAY", zilg.TablePure|zilg.TableByte)
	if !c.check(zils.Pos{}, err) {
		return
	}
	id := c.ifid()
	text := "UUID://" + strings.ToUpper(id.String()) + "//"
	for i := 0; i < len(text); i++ {
		t.AddByte(c.game.Number(int(text[i])))
	}
	c.log.Debug("release", "ifid", id.String())
}
