// Package files writes assembler source files.
//
// A Writer remembers the first error; later writes are no-ops and Flush
// reports it.
package files

import (
	"bufio"
	"io"
)

type Writer struct {
	w   *bufio.Writer
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) write(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.WriteString(s)
}

// Label writes "name::" for a global label and "name:" for a local one.
func (w *Writer) Label(name string, local bool) {
	if local {
		w.write(name + ":\n")
		return
	}
	w.write(name + "::\n")
}

// Line writes an indented line.
func (w *Writer) Line(text string) {
	w.write("\t" + text + "\n")
}

func (w *Writer) Equate(name, value string) {
	w.Line(name + "=" + value)
}

func (w *Writer) Comment(text string) {
	w.write("; " + text + "\n")
}

func (w *Writer) Blank() {
	w.write("\n")
}

func (w *Writer) Err() error { return w.err }

// Flush writes buffered data and returns the first error encountered.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}
