package httptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/models"
)

type mockParser struct {
	mock.Mock
}

func (m *mockParser) Interpret(ctx context.Context, r io.Reader, doc *models.FeedDocument, opts models.ParseOptions) error {
	body, _ := io.ReadAll(r)
	args := m.Called(string(body), opts.ForcedEncoding)
	if err := args.Error(0); err != nil {
		return err
	}
	doc.Title = string(body)
	return nil
}

func TestReload_ForcedEncodingRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = io.WriteString(w, "doc")
	}))
	defer srv.Close()

	parser := &mockParser{}
	parser.On("Interpret", "doc", "").Return(&feedErrors.EncodingError{Cause: io.ErrUnexpectedEOF}).Once()
	parser.On("Interpret", "doc", "windows-1252").Return(nil).Once()

	handler, _ := newTestHandler(t, parser)
	result, err := handler.Reload(context.Background(), parse(t, srv.URL+"/feed"), nil)
	require.NoError(t, err)

	assert.Equal(t, "doc", result.Document.Title)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", result.ConditionalGet.LastModified)
	assert.Equal(t, "/feed", result.FinalURI.Path)
	parser.AssertExpectations(t)
}

func TestGetLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, "<?xml version=\"1.0\" encoding=\"utf-8\"?>\n<rss>\n<channel>\n<title><![CDATA[Daily &amp; Weekly]]></title>\n")
	}))
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	label, err := handler.GetLabel(context.Background(), parse(t, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "Daily & Weekly", label)
}

func TestGetFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = io.WriteString(w, "<rss/>")
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "<?xml version=\"1.0\"?><rss version=\"2.0\"></rss>")
	})
	mux.HandleFunc("/blog/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><head>
<link rel="stylesheet" href="/s.css">
<link rel="alternate" type="application/atom+xml" href="atom.xml">
</head><body></body></html>`)
	})
	mux.HandleFunc("/nofeed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><head></head></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	ctx := context.Background()

	feed, err := handler.GetFeed(ctx, parse(t, srv.URL+"/feed.xml"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/feed.xml", feed.String())

	feed, err = handler.GetFeed(ctx, parse(t, srv.URL+"/plain"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/plain", feed.String())

	feed, err = handler.GetFeed(ctx, parse(t, srv.URL+"/blog/"))
	require.NoError(t, err)
	require.NotNil(t, feed)
	assert.Equal(t, srv.URL+"/blog/atom.xml", feed.String())

	feed, err = handler.GetFeed(ctx, parse(t, srv.URL+"/nofeed"))
	require.NoError(t, err)
	assert.Nil(t, feed)
}

func TestGetFeedIcon_FromPageMarkup(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	mux := http.NewServeMux()
	mux.HandleFunc("/favicon.ico", http.NotFound)
	mux.HandleFunc("/static/icon.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><link rel="shortcut icon" href="/static/icon.png"></head></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	icon, err := handler.GetFeedIcon(context.Background(), parse(t, srv.URL+"/blog/feed.xml"))
	require.NoError(t, err)
	assert.Equal(t, png, icon)
}

func TestGetFeedIcon_FaviconFirst(t *testing.T) {
	pageHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/x-icon")
		_, _ = w.Write([]byte{0, 0, 1, 0})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		pageHits++
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	icon, err := handler.GetFeedIcon(context.Background(), parse(t, srv.URL+"/feed"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1, 0}, icon)
	assert.Zero(t, pageHits)
}

func TestGetFeedIcon_NoneFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	icon, err := handler.GetFeedIcon(context.Background(), parse(t, srv.URL+"/feed"))
	assert.NoError(t, err)
	assert.Nil(t, icon)
}
