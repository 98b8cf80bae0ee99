// Package httprange reads a remote file with HTTP byte-range requests so the
// MP4 demuxer can seek in it like a local file.
package httprange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/framecue/pkg/ports"
)

// skipLimit is the largest forward gap read through rather than re-requested.
const skipLimit = 256 << 10

var (
	// ErrNoRangeSupport is returned when the server ignores Range requests.
	ErrNoRangeSupport = errors.New("httprange: server does not support byte ranges")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("httprange: reader closed")
)

// Options configures a Reader.
type Options struct {
	// Timeout bounds connecting and waiting for response headers. Body
	// reads are not bounded so long sequential reads are not cut off.
	Timeout time.Duration
	// Client overrides the HTTP client built from Timeout.
	Client *http.Client
}

// Reader is an io.ReadSeekCloser over a URL. Read and Seek must not be
// called concurrently, but Close may be called at any time: it cancels the
// request in flight so a Read blocked on a stalled body returns.
type Reader struct {
	ctx    context.Context
	cancel context.CancelFunc
	url    string
	client *http.Client
	size   int64

	mu     sync.Mutex
	closed bool
	off    int64
	body   io.ReadCloser
	pos    int64 // offset of the next byte body yields
}

// Open probes url with a one byte range request to learn the size and to
// confirm the server supports ranges. ctx bounds the probe only; later
// requests live until Close.
func Open(ctx context.Context, url string, opts Options) (*Reader, error) {
	client := opts.Client
	if client == nil {
		client = newClient(opts.Timeout)
	}
	r := &Reader{ctx: ctx, url: url, client: client}

	resp, err := r.get(0, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	size, err := totalSize(resp.Header.Get("Content-Range"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrNetwork, url, err)
	}
	r.size = size
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	return r, nil
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// Size returns the total length of the resource.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) get(start, end int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrUnsupportedFormat, err)
	}
	if end >= 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", start))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrNetwork, r.url, err)
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp, nil
	case http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w: %s", ports.ErrNetwork, ErrNoRangeSupport, r.url)
	case http.StatusNotFound, http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: %s", ports.ErrSourceNotFound, r.url, resp.Status)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: %s", ports.ErrNetwork, r.url, resp.Status)
	}
}

// totalSize extracts the complete length from "bytes 0-0/12345".
func totalSize(contentRange string) (int64, error) {
	i := strings.LastIndexByte(contentRange, '/')
	if !strings.HasPrefix(contentRange, "bytes ") || i < 0 {
		return 0, fmt.Errorf("bad Content-Range %q", contentRange)
	}
	total := contentRange[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("unknown length in Content-Range %q", contentRange)
	}
	return strconv.ParseInt(total, 10, 64)
}

// Read reads from the current offset, reusing the open response when the
// offset is at or shortly after its position.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	if r.off >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.body != nil && (r.off < r.pos || r.off-r.pos > skipLimit) {
		r.dropBody()
	}
	if r.body != nil && r.off > r.pos {
		n, err := io.CopyN(io.Discard, r.body, r.off-r.pos)
		r.pos += n
		if err != nil {
			r.dropBody()
		}
	}
	if r.body == nil {
		resp, err := r.get(r.off, -1)
		if err != nil {
			if r.ctx.Err() != nil {
				return 0, ErrClosed
			}
			return 0, err
		}
		r.body = resp.Body
		r.pos = r.off
	}

	n, err := r.body.Read(p)
	r.off += int64(n)
	r.pos += int64(n)
	switch {
	case errors.Is(err, io.EOF):
		r.dropBody()
		switch {
		case n > 0:
			err = nil
		case r.off < r.size:
			err = fmt.Errorf("%w: %s: body ended at %d of %d", ports.ErrNetwork, r.url, r.off, r.size)
		}
	case err != nil && r.ctx.Err() != nil:
		r.dropBody()
		err = ErrClosed
	case err != nil:
		r.dropBody()
		err = fmt.Errorf("%w: %s: %v", ports.ErrNetwork, r.url, err)
	}
	return n, err
}

// Seek sets the offset for the next Read. No request is made until then.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		r.mu.Lock()
		abs = r.off + offset
		r.mu.Unlock()
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, errors.New("httprange: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("httprange: negative position")
	}
	r.mu.Lock()
	r.off = abs
	r.mu.Unlock()
	return abs, nil
}

// Close aborts any request in flight and releases the open response.
func (r *Reader) Close() error {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.dropBody()
	return nil
}

func (r *Reader) dropBody() {
	if r.body != nil {
		r.body.Close()
		r.body = nil
	}
}

var _ io.ReadSeekCloser = (*Reader)(nil)
