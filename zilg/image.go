package zilg

import (
	"io"

	"github.com/fzipp/zil-compiler/files"
)

type ItemKind int

const (
	ItemLabel     ItemKind = iota // Name:: or Name:
	ItemEquate                    // Name=Text
	ItemDirective                 // Text starts with the directive, e.g. ".WORD 0"
	ItemInstr                     // Text is an instruction
)

// Item is one line of assembler output.
type Item struct {
	Kind  ItemKind
	Name  string
	Text  string
	Local bool // local label
}

func label(name string) Item         { return Item{Kind: ItemLabel, Name: name} }
func equate(name, value string) Item { return Item{Kind: ItemEquate, Name: name, Text: value} }
func directive(text string) Item     { return Item{Kind: ItemDirective, Text: text} }
func byteItem(value Operand) Item    { return directive(".BYTE " + value.String()) }
func wordItem(value Operand) Item    { return directive(".WORD " + value.String()) }

// Section names in output order.
const (
	SectionHeader           = "header"
	SectionConstants        = "constants"
	SectionPropertyDefaults = "property defaults"
	SectionObjects          = "objects"
	SectionGlobals          = "globals"
	SectionImpureTables     = "impure tables"
	SectionImpureEnd        = "impure end"
	SectionVocabulary       = "vocabulary"
	SectionPureTables       = "pure tables"
	SectionDebug            = "debug"
	SectionPreloadEnd       = "preload end"
	SectionCode             = "code"
	SectionStrings          = "strings"
)

type Section struct {
	Name  string
	Items []Item
}

func (s *Section) add(items ...Item) { s.Items = append(s.Items, items...) }

// Image is the complete output of a compilation run, ready to be written
// as assembler source.
type Image struct {
	Version  int
	Sections []*Section
}

// Section returns the section called name or nil.
func (im *Image) Section(name string) *Section {
	for _, s := range im.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// WriteZAP writes the image as assembler source.
func (im *Image) WriteZAP(w io.Writer) error {
	fw := files.NewWriter(w)
	for _, s := range im.Sections {
		if len(s.Items) == 0 {
			continue
		}
		fw.Comment(s.Name)
		for _, it := range s.Items {
			switch it.Kind {
			case ItemLabel:
				fw.Label(it.Name, it.Local)
			case ItemEquate:
				fw.Equate(it.Name, it.Text)
			default:
				fw.Line(it.Text)
			}
		}
		fw.Blank()
	}
	fw.Line(".END")
	return fw.Flush()
}
