package ebml

// vlqWidth inspects the first on-wire octet of a variable-length quantity
// and returns the total octet width (1..8) and the marker bit mask set in
// that first octet. The width is the position of the highest set bit,
// counted from the MSB.
func vlqWidth(first byte) (width int, marker byte, ok bool) {
	for i := 0; i < 8; i++ {
		mask := byte(0x80 >> uint(i))
		if first&mask != 0 {
			return i + 1, mask, true
		}
	}
	return 0, 0, false
}

// decodeVLQ reads a variable-length quantity starting at *pos. When
// stripLeading is true (sizes), the marker bit is cleared before the value
// is assembled; when false (ids), the marker bit is kept so the id matches
// its full on-wire bit pattern.
func decodeVLQ(src Source, pos *int64, stripLeading bool) (value uint64, width int, err error) {
	var first [1]byte
	headerPos := *pos
	if err := src.Read(first[:], pos, 1); err != nil {
		return 0, 0, err
	}

	w, marker, ok := vlqWidth(first[0])
	if !ok {
		return 0, 0, ErrMalformed
	}

	b := first[0]
	if stripLeading {
		b &^= marker
	}
	value = uint64(b)

	if w > 1 {
		rest := make([]byte, w-1)
		p := headerPos + 1
		if err := src.Read(rest, &p, w-1); err != nil {
			return 0, 0, err
		}
		*pos = p
		for _, rb := range rest {
			value = value<<8 | uint64(rb)
		}
	}

	return value, w, nil
}

// decodeVLQBytes is the in-memory variant used when the VLQ is embedded in
// an already-read byte slice (e.g. a SimpleBlock's track-number prefix).
func decodeVLQBytes(data []byte, stripLeading bool) (value uint64, width int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrOutOfRange
	}
	w, marker, ok := vlqWidth(data[0])
	if !ok {
		return 0, 0, ErrMalformed
	}
	if len(data) < w {
		return 0, 0, ErrOutOfRange
	}

	b := data[0]
	if stripLeading {
		b &^= marker
	}
	value = uint64(b)
	for _, rb := range data[1:w] {
		value = value<<8 | uint64(rb)
	}
	return value, w, nil
}

// DecodeTrackNumber decodes the size-style (marker stripped) variable-length
// track number prefix of a SimpleBlock's binary payload.
func DecodeTrackNumber(data []byte) (trackNumber uint64, width int, err error) {
	return decodeVLQBytes(data, true)
}

// EncodeVLQ is the inverse of decodeVLQ for a given target width, used only
// by tests exercising the encode/decode round trip.
func EncodeVLQ(n uint64, width int, stripLeading bool) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(n & 0xFF)
		n >>= 8
	}
	if stripLeading {
		out[0] |= byte(0x80 >> uint(width-1))
	}
	return out
}
