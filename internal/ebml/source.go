package ebml

// Source is the byte-source contract the reader consumes. Read fills
// buf[0:n] from the source at offset *pos and advances *pos by n, or fails
// with ErrOutOfRange (pos+n > Length()) or an I/O error. Length returns the
// total byte count; for sources backed by an in-flight HTTP response this
// may require a round trip.
type Source interface {
	Read(buf []byte, pos *int64, n int) error
	Length() (int64, error)
}
