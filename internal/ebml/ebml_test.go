package ebml

import (
	"bytes"
	"testing"
)

type memSource struct {
	data []byte
}

func (m *memSource) Read(buf []byte, pos *int64, n int) error {
	if *pos < 0 || *pos+int64(n) > int64(len(m.data)) {
		return ErrOutOfRange
	}
	copy(buf[:n], m.data[*pos:*pos+int64(n)])
	*pos += int64(n)
	return nil
}

func (m *memSource) Length() (int64, error) {
	return int64(len(m.data)), nil
}

func TestVLQRoundTrip(t *testing.T) {
	cases := []struct {
		width int
		n     uint64
	}{
		{1, 10},
		{1, 126},
		{2, 1000},
		{3, 100000},
		{4, 10000000},
		{8, 1},
	}
	for _, tc := range cases {
		for _, strip := range []bool{true, false} {
			enc := EncodeVLQ(tc.n, tc.width, strip)
			got, width, err := decodeVLQBytes(enc, strip)
			if err != nil {
				t.Fatalf("decode(%v strip=%v): %v", enc, strip, err)
			}
			if width != tc.width {
				t.Fatalf("width = %d, want %d", width, tc.width)
			}
			if got != tc.n {
				t.Fatalf("decoded %d, want %d (strip=%v, width=%d)", got, tc.n, strip, tc.width)
			}
		}
	}
}

func TestReadElementUInt(t *testing.T) {
	// TimecodeScale (0x2AD7B1), size 3 (VLQ 0x83), value 1000000 (0x0F4240)
	data := []byte{0x2A, 0xD7, 0xB1, 0x83, 0x0F, 0x42, 0x40}
	src := &memSource{data: data}
	var pos int64
	el, err := ReadElement(src, &pos)
	if err != nil {
		t.Fatal(err)
	}
	if el.Kind != KindUInt || el.UInt != 1000000 {
		t.Fatalf("got kind=%v uint=%d", el.Kind, el.UInt)
	}
	if pos != int64(len(data)) {
		t.Fatalf("pos = %d, want %d", pos, len(data))
	}
}

func TestReadElementMasterDoesNotDescend(t *testing.T) {
	// Info (0x1549A966) master, size 2, containing two junk bytes.
	data := []byte{0x15, 0x49, 0xA9, 0x66, 0x82, 0xAA, 0xBB}
	src := &memSource{data: data}
	var pos int64
	el, err := ReadElement(src, &pos)
	if err != nil {
		t.Fatal(err)
	}
	if el.Kind != KindMaster {
		t.Fatalf("kind = %v, want master", el.Kind)
	}
	if el.From != 5 || el.To != 7 {
		t.Fatalf("range = [%d,%d), want [5,7)", el.From, el.To)
	}
	if pos != 7 {
		t.Fatalf("pos = %d, want 7 (advanced past whole range without descending)", pos)
	}
}

func TestReadElementFloat(t *testing.T) {
	// Duration (0x4489), size 8 (VLQ 0x88), IEEE754 double for 1000.0
	var buf bytes.Buffer
	buf.Write([]byte{0x44, 0x89, 0x88})
	buf.Write([]byte{0x40, 0x8F, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00}) // 1000.0
	src := &memSource{data: buf.Bytes()}
	var pos int64
	el, err := ReadElement(src, &pos)
	if err != nil {
		t.Fatal(err)
	}
	if el.Kind != KindFloat || el.Float != 1000.0 {
		t.Fatalf("got kind=%v float=%v", el.Kind, el.Float)
	}
}

func TestReadElementOutOfRange(t *testing.T) {
	// CodecID (0x86) claims size 10 but only 2 bytes follow.
	data := []byte{0x86, 0x8A, 0x41, 0x42}
	src := &memSource{data: data}
	var pos int64
	if _, err := ReadElement(src, &pos); err != ErrOutOfRange {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}

func TestReadElementMalformedVLQ(t *testing.T) {
	data := []byte{0x00}
	src := &memSource{data: data}
	var pos int64
	if _, err := ReadElement(src, &pos); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestElementRangeIteratesSiblings(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x2A, 0xD7, 0xB1, 0x81, 0x05})          // TimecodeScale = 5
	buf.Write([]byte{0xD7, 0x81, 0x01})                      // TrackNumber = 1
	src := &memSource{data: buf.Bytes()}

	it := NewElementRange(src, 0, int64(buf.Len()))
	var ids []ID
	for {
		el, ok, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		ids = append(ids, el.ID)
	}
	if len(ids) != 2 || ids[0] != IDTimecodeScale || ids[1] != IDTrackNumber {
		t.Fatalf("ids = %v", ids)
	}
}

func TestSearcherRetainsAndReuses(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xD7, 0x81, 0x02})       // TrackNumber = 2
	buf.Write([]byte{0x86, 0x85, 'A', '_', 'O', 'P', 'U'}) // CodecID = "A_OPU"
	src := &memSource{data: buf.Bytes()}

	s := NewSearcher(src, 0, int64(buf.Len()))
	codec, ok, err := s.Get(IDCodecID)
	if err != nil || !ok {
		t.Fatalf("Get(CodecID) = %v, %v, %v", codec, ok, err)
	}
	// TrackNumber was read and retained along the way; fetching it now must
	// not re-scan (the range iterator is already exhausted).
	track, ok, err := s.Get(IDTrackNumber)
	if err != nil || !ok || track.UInt != 2 {
		t.Fatalf("Get(TrackNumber) = %v, %v, %v", track, ok, err)
	}
}
