package bytesource

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func rangeServer(t *testing.T, data []byte) (*httptest.Server, *int32) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		start := 0
		if rng := r.Header.Get("Range"); rng != "" {
			fmt.Sscanf(rng, "bytes=%d-", &start)
		}
		if start >= len(data) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(data)-1, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start:])
	}))
	return srv, &requests
}

func TestHTTPSourceSequentialReadsReuseConnection(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	srv, requests := rangeServer(t, data)
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, 100)
	var pos int64
	for i := 0; i < 5; i++ {
		if err := src.Read(buf, &pos, 100); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(requests); got != 1 {
		t.Fatalf("requests = %d, want 1 (sequential reads should reuse the body)", got)
	}
}

func TestHTTPSourceBackwardSeekReconnects(t *testing.T) {
	data := make([]byte, 1000)
	srv, requests := rangeServer(t, data)
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, 10)
	pos := int64(500)
	if err := src.Read(buf, &pos, 10); err != nil {
		t.Fatal(err)
	}
	pos = 0
	if err := src.Read(buf, &pos, 10); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(requests); got != 2 {
		t.Fatalf("requests = %d, want 2 (backward seek must re-request)", got)
	}
}

func TestHTTPSourceLargeForwardJumpReconnects(t *testing.T) {
	data := make([]byte, 200*1024)
	srv, requests := rangeServer(t, data)
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, 10)
	pos := int64(0)
	if err := src.Read(buf, &pos, 10); err != nil {
		t.Fatal(err)
	}
	pos = 150 * 1024
	if err := src.Read(buf, &pos, 10); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(requests); got != 2 {
		t.Fatalf("requests = %d, want 2 (jump past resetIfAheadBy must re-request)", got)
	}
}

func TestHTTPSourceFollowsProtocolRelativeRedirect(t *testing.T) {
	data := []byte("redirected payload bytes")
	target, requests := rangeServer(t, data)
	defer target.Close()

	redirectSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Protocol-relative Location; url.ResolveReference must still
		// resolve it against the request's own scheme.
		host := target.URL[len("http://"):]
		w.Header().Set("Location", "//"+host+"/")
		w.WriteHeader(http.StatusFound)
	}))
	defer redirectSrv.Close()

	src, err := NewHTTPSource(redirectSrv.URL, redirectSrv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, len(data))
	var pos int64
	if err := src.Read(buf, &pos, len(data)); err != nil {
		t.Fatalf("read after redirect: %v", err)
	}
	if string(buf) != string(data) {
		t.Fatalf("got %q, want %q", buf, data)
	}
	if got := atomic.LoadInt32(requests); got != 1 {
		t.Fatalf("target requests = %d, want 1", got)
	}
}

func TestHTTPSourceLength(t *testing.T) {
	data := make([]byte, 4096)
	srv, _ := rangeServer(t, data)
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	length, err := src.Length()
	if err != nil {
		t.Fatal(err)
	}
	if length != int64(len(data)) {
		t.Fatalf("length = %d, want %d", length, len(data))
	}
}

func TestHTTPSourceOutOfRange(t *testing.T) {
	data := make([]byte, 10)
	srv, _ := rangeServer(t, data)
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	buf := make([]byte, 50)
	var pos int64
	if err := src.Read(buf, &pos, 50); err != ErrOutOfRange {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}
