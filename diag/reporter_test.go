package diag

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fzipp/zil-compiler/zils"
)

func TestReporter_CapsOutputButKeepsCounting(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.MaxMessages = 2
	pos := zils.Pos{File: "a.zil", Line: 3, Col: 1}
	for i := 0; i < 5; i++ {
		r.Error(pos, &UndefinedReferenceError{Kind: "routine", Name: "FOO"})
	}
	r.Warn(pos, "ZIL0001", "suspicious %s", "thing")
	if got := r.ErrorCount(); got != 5 {
		t.Errorf("ErrorCount = %d, want 5", got)
	}
	if got := r.WarningCount(); got != 1 {
		t.Errorf("WarningCount = %d, want 1", got)
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("printed %d lines, want 2:\n%s", got, buf.String())
	}
	if !strings.HasPrefix(buf.String(), "a.zil:3:1: error: undefined routine: FOO") {
		t.Errorf("unexpected output %q", buf.String())
	}
	if !r.HasWarning("ZIL0001") {
		t.Errorf("warning not recorded")
	}
}

func TestReporter_UsesEmbeddedPosition(t *testing.T) {
	r := NewReporter(nil)
	inner := zils.Pos{File: "b.zil", Line: 9}
	r.Error(zils.Pos{}, WithPos(inner, errors.New("boom")))
	d := r.Diagnostics()[0]
	if d.Pos != inner {
		t.Errorf("pos = %v, want %v", d.Pos, inner)
	}
	if d.Msg != "boom" {
		t.Errorf("msg = %q, want boom", d.Msg)
	}
}

func TestRecover(t *testing.T) {
	f := func() (err error) {
		defer Recover(&err)
		Throw(&LimitExceededError{Limit: "flags", Max: 48, Got: 49})
		return nil
	}
	err := f()
	var le *LimitExceededError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LimitExceededError", err)
	}
	if le.Got != 49 {
		t.Errorf("Got = %d, want 49", le.Got)
	}
}
