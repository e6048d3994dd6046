// Package zscii converts text to the Z-machine character set and encodes
// dictionary words as packed Z-characters.
package zscii

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Default alphabet rows. The first two positions of A2 are the escape
// and newline codes and never match a character.
const (
	DefaultA0 = "abcdefghijklmnopqrstuvwxyz"
	DefaultA1 = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultA2 = "\x00\n0123456789.,!?_#'\"/\\-:()"
	v1A2      = "\x00" + "0123456789.,!?_#'\"/\\<-:()"
)

// ExtraChars are the default extra characters, ZSCII codes 155 to 223.
const ExtraChars = "äöüÄÖÜß»«ëïÿËÏáéíóúýÁÉÍÓÚÝàèìòùÀÈÌÒÙâêîôûÂÊÎÔÛåÅøØãñõÃÑÕæÆçÇþðÞÐ£œŒ¡¿"

const firstExtra = 155

var extraCodes = func() map[rune]byte {
	m := make(map[rune]byte)
	i := 0
	for _, r := range ExtraChars {
		m[r] = byte(firstExtra + i)
		i++
	}
	return m
}()

// Alphabet is a set of three alphabet rows of 26 characters each.
type Alphabet [3]string

func DefaultAlphabet(version int) Alphabet {
	if version == 1 {
		return Alphabet{DefaultA0, DefaultA1, v1A2}
	}
	return Alphabet{DefaultA0, DefaultA1, DefaultA2}
}

// ParseAlphabet validates three user rows. Row 2 may have 24 characters,
// in which case the escape and newline positions are prepended.
func ParseAlphabet(rows []string) (Alphabet, error) {
	var a Alphabet
	if len(rows) != 3 {
		return a, fmt.Errorf("character set needs 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		n := utf8.RuneCountInString(row)
		if i == 2 && n == 24 {
			row = "\x00\n" + row
			n = 26
		}
		if n != 26 {
			return a, fmt.Errorf("character set row %d has %d characters, want 26", i, n)
		}
		for _, r := range row {
			if _, ok := ToZSCII(r); !ok && r != 0 {
				return a, fmt.Errorf("character set row %d: %q is not a ZSCII character", i, r)
			}
		}
		a[i] = row
	}
	return a, nil
}

// Table returns the 78-byte alphabet table for the header's custom
// alphabet address.
func (a Alphabet) Table() []byte {
	var t []byte
	for _, row := range a {
		for _, r := range row {
			c, _ := ToZSCII(r)
			t = append(t, c)
		}
	}
	return t
}

func (a Alphabet) find(r rune) (row, idx int, ok bool) {
	for row := range a {
		i := 0
		for _, c := range a[row] {
			if c == r && !(row == 2 && i < 2 && c != '\n') {
				return row, i, true
			}
			i++
		}
	}
	return 0, 0, false
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold replaces characters outside ZSCII by their unaccented base letter
// where one exists. Unrepresentable characters are replaced with '?'.
func Fold(s string) string {
	needs := false
	for _, r := range s {
		if _, ok := ToZSCII(r); !ok {
			needs = true
			break
		}
	}
	if !needs {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if _, ok := ToZSCII(r); ok {
			b.WriteRune(r)
			continue
		}
		folded, _, err := transform.String(fold, string(r))
		if err != nil || folded == "" {
			b.WriteByte('?')
			continue
		}
		for _, f := range folded {
			if _, ok := ToZSCII(f); ok {
				b.WriteRune(f)
			} else {
				b.WriteByte('?')
			}
		}
	}
	return b.String()
}

// ToZSCII returns the ZSCII code of r.
func ToZSCII(r rune) (byte, bool) {
	switch {
	case r == '\n':
		return 13, true
	case r == '\t':
		return 9, true
	case r >= 32 && r <= 126:
		return byte(r), true
	}
	c, ok := extraCodes[r]
	return c, ok
}

// Encoder encodes dictionary words for one Z-machine version.
type Encoder struct {
	Version  int
	Alphabet Alphabet
}

func NewEncoder(version int) *Encoder {
	return &Encoder{Version: version, Alphabet: DefaultAlphabet(version)}
}

// WordLength returns the number of Z-characters in a dictionary word.
func (e *Encoder) WordLength() int {
	if e.Version <= 3 {
		return 6
	}
	return 9
}

// EncodedLength returns the number of bytes of an encoded dictionary
// word: three Z-characters per 16-bit word.
func (e *Encoder) EncodedLength() int {
	return e.WordLength() / 3 * 2
}

// ZChars converts text to Z-characters without truncation.
func (e *Encoder) ZChars(text string) []byte {
	var zc []byte
	shift := func(row int) byte {
		if e.Version <= 2 {
			return byte(1 + row) // temporary shifts 2 and 3
		}
		return byte(3 + row)
	}
	for _, r := range Fold(text) {
		if r == ' ' {
			zc = append(zc, 0)
			continue
		}
		if row, idx, ok := e.Alphabet.find(r); ok {
			if row > 0 {
				zc = append(zc, shift(row))
			}
			zc = append(zc, byte(idx+6))
			continue
		}
		c, _ := ToZSCII(r)
		zc = append(zc, shift(2), 6, c>>5, c&0x1f)
	}
	return zc
}

// EncodeWord returns the packed dictionary form of a word: lowercased,
// truncated to the version's word length and padded with 5s.
func (e *Encoder) EncodeWord(word string) []byte {
	n := e.WordLength()
	zc := e.ZChars(strings.ToLower(word))
	if len(zc) > n {
		zc = zc[:n]
	}
	for len(zc) < n {
		zc = append(zc, 5)
	}
	out := make([]byte, 0, e.EncodedLength())
	for i := 0; i < n; i += 3 {
		w := uint16(zc[i])<<10 | uint16(zc[i+1])<<5 | uint16(zc[i+2])
		if i+3 >= n {
			w |= 0x8000
		}
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}
