package diag

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/fzipp/zil-compiler/zils"
)

// MaxMessages is the default number of messages printed before the
// reporter goes quiet. Counting continues past the limit.
const MaxMessages = 25

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is one reported message.
type Diagnostic struct {
	Severity Severity
	Pos      zils.Pos
	Code     string
	Msg      string
	Err      error
}

func (d Diagnostic) String() string {
	if d.Code != "" {
		return fmt.Sprintf("%s: %s %s: %s", d.Pos, d.Severity, d.Code, d.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Msg)
}

// Reporter prints diagnostics and counts them. The error count gates
// output: nothing is written for a run with errors.
type Reporter struct {
	MaxMessages int

	w       io.Writer
	color   bool
	errCnt  int
	warnCnt int
	printed int
	list    []Diagnostic
}

// NewReporter returns a reporter printing to w. Messages are coloured when
// w is a terminal. A nil w collects diagnostics silently.
func NewReporter(w io.Writer) *Reporter {
	r := &Reporter{MaxMessages: MaxMessages, w: w}
	if f, ok := w.(*os.File); ok {
		r.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return r
}

// Error reports err at pos.
func (r *Reporter) Error(pos zils.Pos, err error) {
	var pe *PosError
	if errors.As(err, &pe) && pe.Pos.IsValid() {
		pos, err = pe.Pos, pe.Err
	}
	r.errCnt++
	r.add(Diagnostic{Severity: SeverityError, Pos: pos, Msg: err.Error(), Err: err})
}

func (r *Reporter) Errorf(pos zils.Pos, format string, args ...any) {
	r.Error(pos, fmt.Errorf(format, args...))
}

// Warn reports a warning identified by code.
func (r *Reporter) Warn(pos zils.Pos, code, format string, args ...any) {
	r.warnCnt++
	r.add(Diagnostic{Severity: SeverityWarning, Pos: pos, Code: code, Msg: fmt.Sprintf(format, args...)})
}

func (r *Reporter) add(d Diagnostic) {
	r.list = append(r.list, d)
	if r.w == nil || (r.MaxMessages > 0 && r.printed >= r.MaxMessages) {
		return
	}
	r.printed++
	if r.color {
		c := "\x1b[33m"
		if d.Severity == SeverityError {
			c = "\x1b[31m"
		}
		_, _ = fmt.Fprintf(r.w, "%s: %s%s\x1b[0m: %s\n", d.Pos, c, d.Severity, d.Msg)
		return
	}
	_, _ = fmt.Fprintln(r.w, d)
}

func (r *Reporter) ErrorCount() int   { return r.errCnt }
func (r *Reporter) WarningCount() int { return r.warnCnt }

// Diagnostics returns everything reported so far, including messages
// suppressed by MaxMessages.
func (r *Reporter) Diagnostics() []Diagnostic { return r.list }

// HasWarning reports whether a warning with code was reported.
func (r *Reporter) HasWarning(code string) bool {
	for _, d := range r.list {
		if d.Severity == SeverityWarning && d.Code == code {
			return true
		}
	}
	return false
}

// Summary returns the final count line.
func (r *Reporter) Summary() string {
	return fmt.Sprintf("%d error(s), %d warning(s)", r.errCnt, r.warnCnt)
}
