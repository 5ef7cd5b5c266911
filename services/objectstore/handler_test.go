package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
)

const feedBody = `<?xml version="1.0" encoding="utf-8"?>
<rss><channel><title>Bucket News</title></channel></rss>`

type fakeResolver struct {
	credential *models.Credential
	err        error
}

func (f *fakeResolver) GetCredentialsProvider(*url.URL) interfaces.CredentialsProvider { return nil }

func (f *fakeResolver) GetAuthCredentials(*url.URL, string) (*models.Credential, error) {
	return f.credential, f.err
}

func (f *fakeResolver) GetProxyCredentials(*url.URL) *models.ProxyCredential { return nil }

// fakeBucket answers path-style GetObject requests for bucket "feeds".
type fakeBucket struct {
	mu             sync.Mutex
	authorizations []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.authorizations = append(b.authorizations, r.Header.Get("Authorization"))
	b.mu.Unlock()

	switch r.URL.Path {
	case "/feeds/news.xml":
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, feedBody)
	case "/feeds/secret.xml":
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
	default:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
	}
}

func (b *fakeBucket) lastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.authorizations) == 0 {
		return ""
	}
	return b.authorizations[len(b.authorizations)-1]
}

func newTestHandler(t *testing.T, resolver interfaces.CredentialsResolver, parser interfaces.DocumentParser) (*Handler, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	cfg := &config.S3Config{
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "CONFIGKEY",
		AccessKeySecret: "config-secret",
		PathStyle:       true,
	}
	return NewHandler(cfg, "windows-1252", resolver, parser, nil, logger.NewNopLogger()), bucket
}

func objectURI(t *testing.T, raw string) *url.URL {
	t.Helper()
	uri, err := url.Parse(raw)
	require.NoError(t, err)
	return uri
}

func TestOpenStream_ConditionalGet(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)
	uri := objectURI(t, "s3://feeds/news.xml")
	ctx := context.Background()

	s, err := h.OpenStream(ctx, uri, nil)
	require.NoError(t, err)
	body, err := io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, feedBody, string(body))
	assert.Equal(t, "application/rss+xml", s.ContentType())
	token := s.ConditionalGet()
	require.NotNil(t, token)
	assert.Equal(t, `"v1"`, token.ETag)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 GMT", token.LastModified)
	assert.Equal(t, "s3://feeds/news.xml", token.URI)

	_, err = h.OpenStream(ctx, uri, &models.ConnectionProperties{ConditionalGet: token})
	require.Error(t, err)
	assert.True(t, feedErrors.IsNotModified(err))
}

func TestOpenStream_StatusMapping(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)

	_, err := h.OpenStream(context.Background(), objectURI(t, "s3://feeds/secret.xml"), nil)
	var connErr *feedErrors.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, http.StatusForbidden, connErr.StatusCode)
	assert.Equal(t, "Forbidden", connErr.Message)

	_, err = h.OpenStream(context.Background(), objectURI(t, "s3://feeds/missing.xml"), nil)
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, http.StatusNotFound, connErr.StatusCode)
	assert.Equal(t, "Not Found", connErr.Message)
}

func TestOpenStream_InvalidURI(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)
	_, err := h.OpenStream(context.Background(), objectURI(t, "s3://feeds"), nil)
	require.Error(t, err)
	assert.True(t, feedErrors.IsPlainConnectionError(err))
}

func TestOpenStream_Credentials(t *testing.T) {
	resolver := &fakeResolver{credential: &models.Credential{Username: "STOREDKEY", Password: "stored-secret"}}
	h, bucket := newTestHandler(t, resolver, nil)

	s, err := h.OpenStream(context.Background(), objectURI(t, "s3://feeds/news.xml"), nil)
	require.NoError(t, err)
	s.Abort()
	assert.Contains(t, bucket.lastAuthorization(), "Credential=STOREDKEY/")

	resolver.credential = nil
	resolver.err = &feedErrors.CredentialsError{Message: "no credentials provider for scheme s3"}
	s, err = h.OpenStream(context.Background(), objectURI(t, "s3://feeds/news.xml"), nil)
	require.NoError(t, err)
	s.Abort()
	assert.Contains(t, bucket.lastAuthorization(), "Credential=CONFIGKEY/")
}

type titleParser struct{}

func (titleParser) Interpret(_ context.Context, r io.Reader, doc *models.FeedDocument, _ models.ParseOptions) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if strings.Contains(string(body), "Bucket News") {
		doc.Title = "Bucket News"
	}
	return nil
}

func TestReload(t *testing.T) {
	h, _ := newTestHandler(t, nil, titleParser{})
	uri := objectURI(t, "s3://feeds/news.xml")

	result, err := h.Reload(context.Background(), uri, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bucket News", result.Document.Title)
	assert.Equal(t, uri, result.FinalURI)
	require.NotNil(t, result.ConditionalGet)

	_, err = h.Reload(context.Background(), uri, &models.ConnectionProperties{ConditionalGet: result.ConditionalGet})
	assert.True(t, feedErrors.IsNotModified(err))
}

func TestDelegatedOperations(t *testing.T) {
	h, _ := newTestHandler(t, nil, nil)
	uri := objectURI(t, "s3://feeds/news.xml")

	title, err := h.GetLabel(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, "Bucket News", title)

	feed, err := h.GetFeed(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, uri, feed)

	icon, err := h.GetFeedIcon(context.Background(), uri)
	require.NoError(t, err)
	assert.Nil(t, icon)
}
