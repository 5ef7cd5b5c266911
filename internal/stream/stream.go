package stream

import (
	"bufio"
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/internal/models"
)

// drainLimit bounds how much of an unread body Close consumes so the
// connection can be reused.
const drainLimit = 64 << 10

var gzipMagic = []byte{0x1f, 0x8b}

type Options struct {
	URI                *url.URL
	ContentType        string
	ContentEncoding    string
	ContentLength      int64
	ContentDisposition string
	ConditionalGet     *models.ConditionalGetToken
	// Abort cancels the underlying transfer. It is also called after Close
	// to release the request. May be nil.
	Abort func()
}

// Stream is the body of a successful fetch, decompressed when needed.
type Stream struct {
	raw    io.ReadCloser
	reader io.Reader
	opts   Options

	once sync.Once
	err  error
}

// New wraps body. Gzip is enabled by a gzip Content-Encoding or, when the
// header is absent, by the magic bytes at the start of the body.
func New(body io.ReadCloser, opts Options) (*Stream, error) {
	s := &Stream{raw: body, opts: opts}

	buffered := bufio.NewReader(body)
	head, _ := buffered.Peek(len(gzipMagic))

	useGzip := isGzipEncoding(opts.ContentEncoding)
	if !useGzip && opts.ContentEncoding == "" && len(head) == len(gzipMagic) &&
		head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		useGzip = true
	}

	if useGzip && len(head) > 0 {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			s.Abort()
			return nil, errors.Wrap(err, "invalid gzip stream")
		}
		s.reader = gz
		// decompressed length is unknown
		s.opts.ContentLength = -1
	} else {
		s.reader = buffered
	}
	return s, nil
}

// FromResponse wraps a successful HTTP response. requested is the URI the
// caller asked for; the conditional-get token is keyed on it.
func FromResponse(resp *http.Response, requested *url.URL, abort func()) (*Stream, error) {
	finalURI := requested
	if resp.Request != nil && resp.Request.URL != nil {
		finalURI = resp.Request.URL
	}
	return New(resp.Body, Options{
		URI:                finalURI,
		ContentType:        resp.Header.Get("Content-Type"),
		ContentEncoding:    resp.Header.Get("Content-Encoding"),
		ContentLength:      resp.ContentLength,
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ConditionalGet: models.NewConditionalGetToken(
			requested.String(),
			resp.Header.Get("Last-Modified"),
			resp.Header.Get("ETag"),
		),
		Abort: abort,
	})
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Close finishes the transfer, draining a bounded remainder of the body.
func (s *Stream) Close() error {
	s.once.Do(func() {
		_, _ = io.CopyN(io.Discard, s.raw, drainLimit)
		s.err = s.raw.Close()
		if s.opts.Abort != nil {
			s.opts.Abort()
		}
	})
	return s.err
}

// Abort drops the transfer without reading the rest of the body. Use it
// whenever the stream will not be read to the end.
func (s *Stream) Abort() {
	s.once.Do(func() {
		if s.opts.Abort != nil {
			s.opts.Abort()
		}
		s.err = s.raw.Close()
	})
}

// URI is the final URI after redirects.
func (s *Stream) URI() *url.URL { return s.opts.URI }

func (s *Stream) ContentType() string { return s.opts.ContentType }

// ContentLength is -1 when unknown.
func (s *Stream) ContentLength() int64 { return s.opts.ContentLength }

func (s *Stream) ContentDisposition() string { return s.opts.ContentDisposition }

// ConditionalGet is nil when the response carried no validators.
func (s *Stream) ConditionalGet() *models.ConditionalGetToken { return s.opts.ConditionalGet }

func isGzipEncoding(encoding string) bool {
	for _, part := range strings.Split(encoding, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "gzip", "x-gzip":
			return true
		}
	}
	return false
}
