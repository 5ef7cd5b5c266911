package httptransport

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/services/connection"
	"github.com/customeros/feedsync/services/credentials"
)

func parse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newTestHandler(t *testing.T, parser interfaces.DocumentParser) (*Handler, *credentials.Provider) {
	t.Helper()
	provider := credentials.NewProvider("", nil, logger.NewNopLogger())
	registry := connection.NewCredentialsRegistry(map[string]interfaces.CredentialsProvider{
		"http":  provider,
		"https": provider,
	})
	handler := NewHandler(&config.HTTPConfig{
		UserAgent:        "feedsync-test",
		ConnectTimeout:   5 * time.Second,
		LabelTimeout:     5 * time.Second,
		FallbackEncoding: "windows-1252",
	}, registry, parser, nil, logger.NewNopLogger())
	return handler, provider
}

func TestOpenStream_ConditionalGetEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var seen []http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Clone())
		mu.Unlock()
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, "<rss/>")
	}))
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	uri := parse(t, srv.URL+"/feed.xml")

	s, err := handler.OpenStream(context.Background(), uri, &models.ConnectionProperties{})
	require.NoError(t, err)
	body, err := io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, "<rss/>", string(body))

	token := s.ConditionalGet()
	require.NotNil(t, token)
	assert.Equal(t, `"v1"`, token.ETag)
	assert.Empty(t, token.LastModified)

	_, err = handler.OpenStream(context.Background(), uri, &models.ConnectionProperties{ConditionalGet: token})
	assert.True(t, feedErrors.IsNotModified(err))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Empty(t, seen[0].Get("If-None-Match"))
	assert.Equal(t, `"v1"`, seen[1].Get("If-None-Match"))
	assert.Empty(t, seen[1].Get("If-Modified-Since"))
	assert.Equal(t, "gzip", seen[0].Get("Accept-Encoding"))
	assert.Equal(t, "feedsync-test", seen[0].Get("User-Agent"))
}

func TestOpenStream_AuthRetryFailsAndDeletesCredential(t *testing.T) {
	var requests atomic.Int32
	var authHeaders []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		mu.Lock()
		authHeaders = append(authHeaders, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="R%d"`, n))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	handler, provider := newTestHandler(t, nil)
	authority := parse(t, srv.URL)
	require.NoError(t, provider.SetAuthCredentials(authority, "R1", models.Credential{Username: "u", Password: "p"}))

	_, err := handler.OpenStream(context.Background(), parse(t, srv.URL+"/private/feed.xml"), nil)

	var authErr *feedErrors.AuthenticationRequiredError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "R2", authErr.Realm, "the error of the retried request propagates")
	assert.Equal(t, int32(2), requests.Load())

	mu.Lock()
	assert.Empty(t, authHeaders[0])
	assert.NotEmpty(t, authHeaders[1])
	mu.Unlock()

	stored, err := provider.GetAuthCredentials(authority, "R1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOpenStream_AuthRetrySucceedsAndRemembers(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			w.Header().Set("WWW-Authenticate", `Basic realm="R"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	handler, provider := newTestHandler(t, nil)
	require.NoError(t, provider.SetAuthCredentials(parse(t, srv.URL), "R", models.Credential{Username: "u", Password: "p"}))
	uri := parse(t, srv.URL+"/feed.xml")

	s, err := handler.OpenStream(context.Background(), uri, nil)
	require.NoError(t, err)
	s.Abort()
	assert.Equal(t, int32(2), requests.Load())

	s, err = handler.OpenStream(context.Background(), uri, nil)
	require.NoError(t, err)
	s.Abort()
	assert.Equal(t, int32(3), requests.Load(), "remembered credential is sent up front")
}

func TestOpenStream_AuthWithoutStoredCredential(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("WWW-Authenticate", `Basic realm="R"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	_, err := handler.OpenStream(context.Background(), parse(t, srv.URL+"/feed"), nil)

	assert.True(t, feedErrors.IsAuthenticationRequired(err))
	assert.Equal(t, int32(1), requests.Load())
}

func TestOpenStream_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync-denied":
			w.Header().Set("Error", "CaptchaRequired")
			w.Header().Set("Url", "https://example.com/unlock")
			w.WriteHeader(http.StatusForbidden)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/proxy":
			w.WriteHeader(http.StatusProxyAuthRequired)
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	open := func(path string) error {
		_, err := handler.OpenStream(context.Background(), parse(t, srv.URL+path), nil)
		return err
	}

	var syncErr *feedErrors.SyncConnectionError
	require.True(t, errors.As(open("/sync-denied"), &syncErr))
	assert.Equal(t, "CaptchaRequired", syncErr.Code)
	assert.Equal(t, "https://example.com/unlock", syncErr.RemediationURL)

	var connErr *feedErrors.ConnectionError
	require.True(t, errors.As(open("/forbidden"), &connErr))
	assert.Equal(t, "Forbidden", connErr.Message)
	assert.Equal(t, http.StatusForbidden, connErr.StatusCode)

	var proxyErr *feedErrors.ProxyAuthenticationRequiredError
	assert.True(t, errors.As(open("/proxy"), &proxyErr))

	notFound := open("/missing")
	assert.True(t, feedErrors.IsPlainConnectionError(notFound))
	require.True(t, errors.As(notFound, &connErr))
	assert.Equal(t, "Not Found", connErr.Message)

	require.True(t, errors.As(open("/teapot"), &connErr))
	assert.Equal(t, http.StatusTeapot, connErr.StatusCode)
}

func TestOpenStream_GzipSniffedWithoutHeader(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write([]byte("<feed/>"))
	require.NoError(t, gz.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	s, err := handler.OpenStream(context.Background(), parse(t, srv.URL), nil)
	require.NoError(t, err)
	defer s.Close()

	body, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "<feed/>", string(body))
}

func TestOpenStream_PostWithRepeatedParameters(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		assert.Equal(t, "GoogleLogin auth=tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "OK")
	}))
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	s, err := handler.OpenStream(context.Background(), parse(t, srv.URL+"/edit-tag"), &models.ConnectionProperties{
		Post:       true,
		Parameters: url.Values{"i": {"a", "b"}, "a": {"user/-/state/com.google/read"}},
		Headers:    map[string]string{"Authorization": "GoogleLogin auth=tok"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"a", "b"}, form["i"])
}

func TestOpenStream_RedirectExposesFinalURI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "moved")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	handler, _ := newTestHandler(t, nil)
	s, err := handler.OpenStream(context.Background(), parse(t, srv.URL+"/old"), nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "/new", s.URI().Path)
}

func TestOpenStream_CancelledContext(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler, _ := newTestHandler(t, nil)
	_, err := handler.OpenStream(ctx, parse(t, srv.URL), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), requests.Load())
}

func TestOpenStream_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte("<rss/>"), 0o600))
	handler, _ := newTestHandler(t, nil)

	uri := &url.URL{Scheme: "file", Path: path}
	s, err := handler.OpenStream(context.Background(), uri, nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(s)
	require.NoError(t, s.Close())
	assert.Equal(t, "<rss/>", string(body))
	assert.Equal(t, int64(6), s.ContentLength())

	_, err = handler.OpenStream(context.Background(), uri, &models.ConnectionProperties{ConditionalGet: s.ConditionalGet()})
	assert.True(t, feedErrors.IsNotModified(err))

	_, err = handler.OpenStream(context.Background(), &url.URL{Scheme: "file", Path: path + ".missing"}, nil)
	assert.True(t, feedErrors.IsPlainConnectionError(err))
}

func TestResolveFeedScheme(t *testing.T) {
	assert.Equal(t, "http://example.com/rss", resolveFeedScheme(parse(t, "feed://example.com/rss")).String())
	assert.Equal(t, "https://example.com/rss", resolveFeedScheme(parse(t, "feed:https://example.com/rss")).String())
	assert.Equal(t, "https://example.com/rss", resolveFeedScheme(parse(t, "https://example.com/rss")).String())
}
