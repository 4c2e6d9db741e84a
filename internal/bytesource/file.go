package bytesource

import (
	"fmt"
	"io"
	"os"
)

// FileSource wraps a read-only file handle, used for the local on-disk
// cache (internal/youtube.DownloadToCache writes the file this later
// reads).
type FileSource struct {
	file   *os.File
	length int64
}

// OpenFileSource opens path read-only and caches its size.
func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytesource: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("bytesource: stat %s: %w", path, err)
	}
	return &FileSource{file: f, length: info.Size()}, nil
}

func (f *FileSource) Read(buf []byte, pos *int64, n int) error {
	if *pos < 0 || *pos+int64(n) > f.length {
		return ErrOutOfRange
	}
	read, err := f.file.ReadAt(buf[:n], *pos)
	if read == n {
		*pos += int64(n)
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("bytesource: short read: %w", err)
}

func (f *FileSource) Length() (int64, error) {
	return f.length, nil
}

func (f *FileSource) Close() error {
	return f.file.Close()
}
