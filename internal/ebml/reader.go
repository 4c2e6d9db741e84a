package ebml

import (
	"encoding/binary"
	"math"
	"strings"
)

// ReadElement reads one element header and payload starting at *pos,
// advancing *pos past it. Master elements are not descended into: the
// returned Element carries [From, To) and *pos is advanced past the whole
// range, leaving iteration of the children to the caller.
func ReadElement(src Source, pos *int64) (Element, error) {
	position := *pos

	idVal, _, err := decodeVLQ(src, pos, false)
	if err != nil {
		return Element{}, err
	}
	id := ID(idVal)

	size, _, err := decodeVLQ(src, pos, true)
	if err != nil {
		return Element{}, err
	}

	entry := lookup(id)
	el := Element{ID: id, Name: entry.name, Kind: entry.kind, Position: position}

	switch entry.kind {
	case KindMaster:
		el.From = *pos
		el.To = *pos + int64(size)
		*pos = el.To
		return el, nil
	case KindUnknown:
		*pos += int64(size)
		return el, nil
	}

	if size == 0 {
		*pos += 0
		return readZeroSize(el), nil
	}

	buf := make([]byte, size)
	if err := src.Read(buf, pos, int(size)); err != nil {
		return Element{}, err
	}

	switch entry.kind {
	case KindUInt, KindInt, KindDate:
		var v uint64
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
		switch entry.kind {
		case KindUInt:
			el.UInt = v
		case KindDate:
			el.Date = signExtend(v, len(buf))
		case KindInt:
			el.Int = signExtend(v, len(buf))
		}
	case KindFloat:
		switch len(buf) {
		case 4:
			el.Float = float64(math.Float32frombits(binary.BigEndian.Uint32(buf)))
		case 8:
			el.Float = math.Float64frombits(binary.BigEndian.Uint64(buf))
		default:
			el.Float = 0.0
		}
	case KindString:
		s := string(buf)
		if i := strings.IndexByte(s, 0); i >= 0 {
			s = s[:i]
		}
		el.Str = s
	case KindBinary:
		el.Binary = buf
	}

	return el, nil
}

func readZeroSize(el Element) Element {
	switch el.Kind {
	case KindString:
		el.Str = ""
	case KindBinary:
		el.Binary = []byte{}
	}
	return el
}

func signExtend(v uint64, nbytes int) int64 {
	if nbytes == 0 || nbytes >= 8 {
		return int64(v)
	}
	bits := uint(nbytes * 8)
	signBit := uint64(1) << (bits - 1)
	if v&signBit != 0 {
		v |= ^uint64(0) << bits
	}
	return int64(v)
}
