package zils

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// SyntaxError is reported by the reader.
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Reader reads the textual IR dump format into nodes. It recognises
// forms, lists, strings, numbers, characters, atoms and the usual
// prefix abbreviations, and skips ;-comments. It does not evaluate.
type Reader struct {
	r    io.RuneReader
	file string
	ch   rune // last character read
	eot  bool
	line int
	col  int
	err  error
}

func NewReader(r io.Reader, file string) *Reader {
	rd := &Reader{r: bufio.NewReader(r), file: file, line: 1}
	rd.nextCh()
	return rd
}

// Read reads all top-level nodes from r.
func Read(r io.Reader, file string) ([]Node, error) {
	return NewReader(r, file).ReadAll()
}

// ReadString reads all top-level nodes from src.
func ReadString(src string) ([]Node, error) {
	return Read(strings.NewReader(src), "<string>")
}

// MustReadString is ReadString for tests and static inputs.
func MustReadString(src string) []Node {
	nodes, err := ReadString(src)
	if err != nil {
		panic(err)
	}
	return nodes
}

func (rd *Reader) pos() Pos {
	return Pos{File: rd.file, Line: rd.line, Col: rd.col}
}

func (rd *Reader) mark(pos Pos, format string, args ...any) {
	if rd.err == nil {
		rd.err = &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}
}

func (rd *Reader) nextCh() {
	if rd.eot {
		return
	}
	if rd.ch == '\n' {
		rd.line++
		rd.col = 0
	}
	ch, _, err := rd.r.ReadRune()
	if err != nil {
		if err != io.EOF {
			rd.mark(rd.pos(), "read error: %v", err)
		}
		rd.eot = true
		rd.ch = 0
		return
	}
	rd.ch = ch
	rd.col++
}

// ReadAll reads nodes until end of input or the first error.
func (rd *Reader) ReadAll() ([]Node, error) {
	var nodes []Node
	for rd.err == nil {
		n, ok := rd.next()
		if !ok {
			break
		}
		nodes = append(nodes, n)
	}
	return nodes, rd.err
}

func (rd *Reader) skipSpace() {
	for !rd.eot && unicode.IsSpace(rd.ch) {
		rd.nextCh()
	}
}

// next reads one object, skipping comments. ok is false at end of input
// or at a closing delimiter.
func (rd *Reader) next() (Node, bool) {
	for {
		rd.skipSpace()
		if rd.eot || rd.err != nil {
			return nil, false
		}
		if rd.ch != ';' {
			break
		}
		pos := rd.pos()
		rd.nextCh()
		if _, ok := rd.next(); !ok {
			rd.mark(pos, "comment without object")
			return nil, false
		}
	}
	pos := rd.pos()
	switch rd.ch {
	case '<':
		rd.nextCh()
		return &Form{Elems: rd.seq('>', pos), At: pos}, true
	case '(':
		rd.nextCh()
		return &List{Elems: rd.seq(')', pos), At: pos}, true
	case '[':
		rd.nextCh()
		return &List{Elems: rd.seq(']', pos), At: pos}, true
	case '>', ')', ']':
		return nil, false
	case '"':
		return rd.string(pos), true
	case '.', ',', '\'':
		prefix := rd.ch
		rd.nextCh()
		if rd.eot || unicode.IsSpace(rd.ch) {
			rd.mark(pos, "%c must precede an object", prefix)
			return nil, false
		}
		obj, ok := rd.next()
		if !ok {
			rd.mark(pos, "%c must precede an object", prefix)
			return nil, false
		}
		head := map[rune]string{'.': "LVAL", ',': "GVAL", '\'': "QUOTE"}[prefix]
		return NewCall(pos, head, obj), true
	case '!':
		rd.nextCh()
		if rd.ch != '\\' {
			rd.mark(pos, "unsupported ! syntax")
			return nil, false
		}
		rd.nextCh()
		if rd.eot {
			rd.mark(pos, "character expected")
			return nil, false
		}
		c := rd.ch
		rd.nextCh()
		return &Char{Value: c, At: pos}, true
	case '#':
		return rd.hash(pos)
	case '%':
		rd.mark(pos, "read-time evaluation is not supported")
		return nil, false
	}
	return rd.atomOrNumber(pos), true
}

func (rd *Reader) seq(closer rune, pos Pos) []Node {
	elems := []Node{}
	for {
		n, ok := rd.next()
		if !ok {
			break
		}
		elems = append(elems, n)
	}
	if rd.err != nil {
		return elems
	}
	if rd.eot || rd.ch != closer {
		rd.mark(pos, "missing %c", closer)
		return elems
	}
	rd.nextCh()
	return elems
}

func (rd *Reader) string(pos Pos) Node {
	var b strings.Builder
	rd.nextCh()
	for !rd.eot && rd.ch != '"' {
		if rd.ch == '\\' {
			rd.nextCh()
			if rd.eot {
				break
			}
		}
		b.WriteRune(rd.ch)
		rd.nextCh()
	}
	if rd.eot {
		rd.mark(pos, "string not terminated")
	} else {
		rd.nextCh()
	}
	return &String{Value: b.String(), At: pos}
}

// hash reads #TYPE obj and #radix digits.
func (rd *Reader) hash(pos Pos) (Node, bool) {
	rd.nextCh()
	if rd.ch >= '0' && rd.ch <= '9' {
		radix := 0
		for !rd.eot && rd.ch >= '0' && rd.ch <= '9' {
			radix = radix*10 + int(rd.ch-'0')
			rd.nextCh()
		}
		rd.skipSpace()
		digits := rd.token()
		v, err := strconv.ParseInt(digits, radix, 32)
		if err != nil {
			rd.mark(pos, "bad #%d number %q", radix, digits)
			return nil, false
		}
		return &Fix{Value: int(v), At: pos}, true
	}
	typ := rd.token()
	if typ == "" {
		rd.mark(pos, "type name expected after #")
		return nil, false
	}
	obj, ok := rd.next()
	if !ok {
		rd.mark(pos, "object expected after #%s", typ)
		return nil, false
	}
	return NewCall(pos, typ, obj), true
}

func isDelimiter(ch rune) bool {
	switch ch {
	case '<', '>', '(', ')', '[', ']', '"', ';', '{', '}':
		return true
	}
	return unicode.IsSpace(ch)
}

func (rd *Reader) token() string {
	var b strings.Builder
	for !rd.eot && !isDelimiter(rd.ch) {
		if rd.ch == '\\' {
			rd.nextCh()
			if rd.eot {
				break
			}
		}
		b.WriteRune(rd.ch)
		rd.nextCh()
	}
	return b.String()
}

func (rd *Reader) atomOrNumber(pos Pos) Node {
	tok := rd.token()
	if tok == "" {
		rd.mark(pos, "unexpected %q", rd.ch)
		rd.nextCh()
		return &Atom{Name: "", At: pos}
	}
	if n, ok := parseNumber(tok); ok {
		return &Fix{Value: n, At: pos}
	}
	if i := strings.IndexByte(tok, ':'); i > 0 && i < len(tok)-1 {
		decl := tok[i+1:]
		return &Adecl{
			Value: &Atom{Name: tok[:i], At: pos},
			Decl:  &Atom{Name: decl, At: pos},
			At:    pos,
		}
	}
	return &Atom{Name: tok, At: pos}
}

func parseNumber(tok string) (int, bool) {
	if len(tok) > 2 && tok[0] == '*' && tok[len(tok)-1] == '*' {
		v, err := strconv.ParseInt(tok[1:len(tok)-1], 8, 32)
		return int(v), err == nil
	}
	digits := strings.TrimPrefix(tok, "-")
	if digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(tok, 10, 32)
	return int(v), err == nil
}
