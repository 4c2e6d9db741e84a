// Package ebml implements a generic, random-access EBML element reader over
// a pluggable byte source. It knows nothing about WebM/Matroska semantics
// beyond the element id → (name, type) registry; higher layers interpret
// the decoded elements.
package ebml

import "fmt"

// ID is an EBML element id, on-wire bit pattern including the VLQ marker bit.
type ID uint32

// Kind classifies the payload an Element carries.
type Kind int

const (
	KindMaster Kind = iota
	KindUInt
	KindInt
	KindFloat
	KindDate
	KindString
	KindBinary
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindMaster:
		return "master"
	case KindUInt:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Element is the tagged variant produced by the reader. Every element
// carries id, name, kind and its absolute position on the wire; only the
// field matching Kind is meaningful.
type Element struct {
	ID       ID
	Name     string
	Kind     Kind
	Position int64

	// Master range. Children are not descended into automatically; callers
	// iterate [From, To) themselves.
	From int64
	To   int64

	UInt   uint64
	Int    int64
	Float  float64
	Date   int64
	Str    string
	Binary []byte
}

func (e Element) String() string {
	switch e.Kind {
	case KindMaster:
		return fmt.Sprintf("%s[%#x]{%d..%d}", e.Name, uint32(e.ID), e.From, e.To)
	default:
		return fmt.Sprintf("%s[%#x]@%d", e.Name, uint32(e.ID), e.Position)
	}
}
