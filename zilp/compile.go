// Package zilp contains the routine and expression compiler of the ZIL
// compiler, together with the declaration loader that drives a run.
//
// Compile walks the top-level IR forms in passes: directives first, then
// every declaration's name and category so that forward references
// resolve, then the numbering of flags, properties and vocabulary through
// zilb, global storage, routine bodies, objects and tables. Finally the
// zilg game lays out the sections of the story file.
package zilp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fzipp/zil-compiler/config"
	"github.com/fzipp/zil-compiler/diag"
	"github.com/fzipp/zil-compiler/zilb"
	"github.com/fzipp/zil-compiler/zilg"
	"github.com/fzipp/zil-compiler/zils"
)

// Options configure one compilation run.
type Options struct {
	Config   *config.Config // nil for config.Default()
	Expander zils.Expander  // nil expands nothing
	Reporter *diag.Reporter // nil collects silently
	Logger   *slog.Logger   // nil for slog.Default()

	// Progress is called after each routine with the number of routines
	// compiled so far.
	Progress func(done, total int)

	// Name identifies the story when the IFID is derived.
	Name string
}

// ErrFailed is returned when errors were reported during the run.
var ErrFailed = errors.New("compilation failed")

// Warning codes.
const (
	warnUnknownTopLevel = "ZIL0101"
	warnClauseAfterElse = "ZIL0102"
	warnAndSetZero      = "ZIL0103"
	warnSetGlobal       = "ZIL0104"
	warnDoubleBinding   = "ZIL0105"
	warnUnusedValue     = "ZIL0106"
	warnEmptyProperty   = "ZIL0107"
	warnWordCollision   = "ZIL0108"
)

// Compiler holds the state of one run. It owns the storage base and the
// game builder; nothing is shared between runs.
type Compiler struct {
	cfg      config.Config
	rep      *diag.Reporter
	log      *slog.Logger
	exp      zils.Expander
	progress func(done, total int)
	name     string

	version    int
	cleanStack bool
	flags      map[string]bool // compilation flags for IFFLAG
	pinned     []string
	selfInsert string

	base *zilb.Base
	game *zilg.Game

	top        []zils.Node
	routines   []*routineDecl
	objects    []*objectDecl
	globals    []*globalDecl
	globalsBy  map[string]*globalDecl
	constants  []*constDecl
	constsBy   map[string]*constDecl
	propdefs   []*zils.Form
	directions []string
	syntaxes   []*syntaxDecl
	synonyms   []*synonymDecl
	buzz       []zils.Node
	tokens     []*tellToken

	vocab     *vocabulary
	verbs     []string // verb words in numbering order
	actions   map[string]*actionInfo
	parser    *parserTables
	forceHard map[string]bool
	softTable *zilg.Variable // hard global holding the soft globals table
}

// Compile compiles the top-level forms of a program into an image. Errors
// are reported to opts.Reporter; if any were reported, the returned error
// wraps ErrFailed and the image is nil. Fatal errors end the run early
// and are returned directly.
func Compile(nodes []zils.Node, opts Options) (im *zilg.Image, err error) {
	defer diag.Recover(&err)
	c := newCompiler(opts)
	return c.run(nodes)
}

func newCompiler(opts Options) *Compiler {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Compiler{
		cfg:        *cfg,
		rep:        opts.Reporter,
		log:        opts.Logger,
		exp:        opts.Expander,
		progress:   opts.Progress,
		name:       opts.Name,
		version:    cfg.Version,
		cleanStack: cfg.CleanStack,
		flags:      make(map[string]bool),
		pinned:     append([]string(nil), cfg.PinnedFlags...),
		selfInsert: `.,"`,
		globalsBy:  make(map[string]*globalDecl),
		constsBy:   make(map[string]*constDecl),
		forceHard:  make(map[string]bool),
	}
	if c.rep == nil {
		c.rep = diag.NewReporter(nil)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.exp == nil {
		c.exp = zils.NopExpander{}
	}
	if c.version == 0 {
		c.version = 3
	}
	for k, v := range cfg.Flags {
		c.flags[k] = v
	}
	return c
}

func (c *Compiler) run(nodes []zils.Node) (*zilg.Image, error) {
	c.scanVersion(nodes)
	c.top = c.expandTop(nodes)
	c.directives()
	c.newGame()

	c.declare()
	c.log.Debug("pre-registered",
		"routines", len(c.routines), "objects", len(c.objects),
		"globals", len(c.globals), "constants", len(c.constants))

	c.allocate()
	c.buildVocabulary()
	c.evalConstants()
	c.assignGlobals()
	c.compileRoutines()
	c.buildObjects()
	c.buildParserTables()
	c.releaseTables()

	if n := c.rep.ErrorCount(); n > 0 {
		return nil, fmt.Errorf("%w: %d errors, %d warnings", ErrFailed, n, c.rep.WarningCount())
	}
	im, err := c.game.Emit()
	if err != nil {
		diag.Throw(err)
	}
	c.log.Debug("emitted", "sections", len(im.Sections), "warnings", c.rep.WarningCount())
	return im, nil
}

// Diagnostics

func (c *Compiler) error(pos zils.Pos, err error) {
	c.rep.Error(pos, err)
}

func (c *Compiler) errorf(pos zils.Pos, format string, args ...any) {
	c.rep.Errorf(pos, format, args...)
}

func (c *Compiler) warn(pos zils.Pos, code, format string, args ...any) {
	c.rep.Warn(pos, code, format, args...)
}

func (c *Compiler) malformed(n zils.Node, msg string) {
	c.error(n.Pos(), &diag.MalformedFormError{Form: formName(n), Msg: msg})
}

// fatal ends the run. Allocation limits are fatal.
func (c *Compiler) fatal(pos zils.Pos, err error) {
	c.error(pos, err)
	diag.Throw(diag.WithPos(pos, err))
}

// check reports err, treating limit errors as fatal.
func (c *Compiler) check(pos zils.Pos, err error) bool {
	if err == nil {
		return true
	}
	var le *diag.LimitExceededError
	if errors.As(err, &le) {
		c.fatal(pos, err)
	}
	c.error(pos, err)
	return false
}

func formName(n zils.Node) string {
	if f, ok := n.(*zils.Form); ok {
		if h := f.HeadName(); h != "" {
			return h
		}
	}
	return n.String()
}

func (c *Compiler) debugLine(pos zils.Pos) zilg.SourceLine {
	if !pos.IsValid() {
		return zilg.SourceLine{}
	}
	return zilg.SourceLine{File: c.game.DebugFile(pos.File), Line: pos.Line, Col: pos.Col}
}
