package bytesource

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	// resetIfAheadBy is the forward-jump threshold past which re-requesting
	// with a fresh Range is cheaper than draining the socket up to the new
	// offset.
	resetIfAheadBy = 50 * 1024
	// defaultTrimCacheAfter bounds memory while leaving a generous window
	// for parser backtracks (header re-scans, seeks within the prefetch
	// window), used unless SetCacheLimit overrides it.
	defaultTrimCacheAfter = 10 * 1024 * 1024
	readChunkSize         = 32 * 1024
	maxRedirects          = 1

	// DefaultUserAgent advertises a desktop Chrome 87 string, matching what
	// YouTube's player endpoints expect to see (internal/youtube uses the
	// same string for page/player fetches).
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/87.0.4280.88 Safari/537.36"
)

type connState int

const (
	stateDisconnected connState = iota
	stateBody
)

// HTTPSource satisfies Source against a remote resource with forward-seek
// locality: it keeps a contiguous forward cache and only re-requests on a
// backward seek or a jump larger than resetIfAheadBy. It is single-reader,
// called from a WebM decoder's prefetch worker only (internal/webm), but
// guards its own state with a mutex so Length() can be called
// concurrently during setup.
type HTTPSource struct {
	mu sync.Mutex

	client    *http.Client
	userAgent string
	logger    *slog.Logger

	parsedURL *url.URL
	state     connState
	body      io.ReadCloser

	cachePos int64
	cache    []byte

	contentLengthKnown bool
	contentLength      int64

	trimCacheAfter int64
}

// NewHTTPSource builds a source for rawURL. client defaults to
// http.DefaultClient when nil.
func NewHTTPSource(rawURL string, client *http.Client, logger *slog.Logger) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("bytesource: parse url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		client:         client,
		userAgent:      DefaultUserAgent,
		logger:         logger,
		parsedURL:      u,
		trimCacheAfter: defaultTrimCacheAfter,
	}, nil
}

// SetCacheLimit overrides how many trailing bytes of already-consumed
// stream the source keeps buffered before trimming. bytes <= 0 is ignored.
func (s *HTTPSource) SetCacheLimit(bytes int64) {
	if bytes <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trimCacheAfter = bytes
}

func (s *HTTPSource) Read(buf []byte, pos *int64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n == 0 {
		return nil
	}
	if *pos < 0 {
		return ErrOutOfRange
	}

	offset := *pos - s.cachePos
	if offset < 0 || offset-int64(len(s.cache)) > resetIfAheadBy {
		s.closeConnLocked()
		s.cachePos = *pos
		s.cache = s.cache[:0]
		offset = 0
	}

	for int64(len(s.cache)) < offset+int64(n) {
		if err := s.ensureBodyLocked(); err != nil {
			return err
		}
		chunk := make([]byte, readChunkSize)
		read, err := s.body.Read(chunk)
		if read > 0 {
			s.cache = append(s.cache, chunk[:read]...)
		}
		if err != nil {
			s.closeConnLocked()
			if err != io.EOF {
				return fmt.Errorf("bytesource: http read: %w", err)
			}
			if int64(len(s.cache)) < offset+int64(n) {
				return ErrOutOfRange
			}
			break
		}
	}

	copy(buf[:n], s.cache[offset:offset+int64(n)])
	*pos += int64(n)

	if offset > s.trimCacheAfter {
		trimmed := make([]byte, int64(len(s.cache))-offset)
		copy(trimmed, s.cache[offset:])
		s.cache = trimmed
		s.cachePos += offset
	}

	return nil
}

// Length forces one poll cycle if the content length is not yet known, so
// it can read Content-Length (or Content-Range's total) off the response.
func (s *HTTPSource) Length() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.contentLengthKnown {
		return s.contentLength, nil
	}
	if err := s.ensureBodyLocked(); err != nil {
		return 0, err
	}
	if !s.contentLengthKnown {
		return 0, fmt.Errorf("bytesource: server did not report a content length")
	}
	return s.contentLength, nil
}

func (s *HTTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeConnLocked()
	return nil
}

func (s *HTTPSource) closeConnLocked() {
	if s.body != nil {
		s.body.Close()
		s.body = nil
	}
	s.state = stateDisconnected
}

func (s *HTTPSource) ensureBodyLocked() error {
	if s.state == stateBody {
		return nil
	}
	return s.connectLocked(0)
}

func (s *HTTPSource) connectLocked(redirectDepth int) error {
	req, err := http.NewRequest(http.MethodGet, s.parsedURL.String(), nil)
	if err != nil {
		return fmt.Errorf("bytesource: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", s.cachePos+int64(len(s.cache))))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("bytesource: http request: %w", err)
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		resp.Body.Close()
		if redirectDepth >= maxRedirects {
			return fmt.Errorf("bytesource: too many redirects")
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return fmt.Errorf("bytesource: redirect without Location")
		}
		next, err := resolveRedirect(s.parsedURL, loc)
		if err != nil {
			return fmt.Errorf("bytesource: redirect: %w", err)
		}
		s.logger.Debug("following redirect", slog.String("from", s.parsedURL.String()), slog.String("to", next.String()))
		s.parsedURL = next
		s.state = stateDisconnected
		return s.connectLocked(redirectDepth + 1)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return fmt.Errorf("bytesource: unexpected status %d", resp.StatusCode)
	}

	s.body = resp.Body
	s.state = stateBody
	s.recordLength(resp)
	return nil
}

func (s *HTTPSource) recordLength(resp *http.Response) {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndex(cr, "/"); i >= 0 && i+1 < len(cr) {
			total := cr[i+1:]
			if total != "*" {
				if v, err := strconv.ParseInt(total, 10, 64); err == nil {
					s.contentLength = v
					s.contentLengthKnown = true
					return
				}
			}
		}
	}
	if resp.StatusCode == http.StatusOK {
		if v, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && v > 0 {
			s.contentLength = v
			s.contentLengthKnown = true
		}
	}
}

// resolveRedirect handles absolute, root-relative ("/path") and
// protocol-relative ("//host/path") Location forms. url.ResolveReference
// already implements the RFC 3986 resolution rules that cover all three,
// including taking the scheme from base for a network-path reference.
func resolveRedirect(base *url.URL, location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}
