package objectstore

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/metrics"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/sniff"
	"github.com/customeros/feedsync/internal/stream"
	"github.com/customeros/feedsync/internal/tracing"
)

// Schemes served by the handler. URIs have the form s3://bucket/key.
var Schemes = []string{"s3"}

const defaultLabelTimeout = 5 * time.Second

// Handler reads feeds stored in an S3 compatible object store.
type Handler struct {
	cfg              *config.S3Config
	fallbackEncoding string
	credentials      interfaces.CredentialsResolver
	parser           interfaces.DocumentParser
	prefs            interfaces.PreferenceStore
	log              logger.Logger
	newClient        func(*aws.Config) (ObjectClient, error)

	mu      sync.Mutex
	clients map[string]ObjectClient
}

func NewHandler(cfg *config.S3Config, fallbackEncoding string, credentials interfaces.CredentialsResolver,
	parser interfaces.DocumentParser, prefs interfaces.PreferenceStore, log logger.Logger) *Handler {
	if cfg == nil {
		cfg = &config.S3Config{}
	}
	return &Handler{
		cfg:              cfg,
		fallbackEncoding: fallbackEncoding,
		credentials:      credentials,
		parser:           parser,
		prefs:            prefs,
		log:              log,
		newClient:        NewS3Client,
		clients:          make(map[string]ObjectClient),
	}
}

func splitObjectURI(uri *url.URL) (bucket, key string, err error) {
	bucket = uri.Host
	key = strings.TrimPrefix(uri.Path, "/")
	if bucket == "" || key == "" {
		return "", "", feedErrors.NewConnectionError("invalid object URI "+uri.String(), nil)
	}
	return bucket, key, nil
}

// client returns a client signed with the credentials stored for uri, or
// with the configured key pair when there are none.
func (h *Handler) client(uri *url.URL) (ObjectClient, error) {
	accessKeyID, accessKeySecret := h.cfg.AccessKeyID, h.cfg.AccessKeySecret
	if h.credentials != nil {
		credential, err := h.credentials.GetAuthCredentials(uri, "")
		if err != nil {
			h.log.Debugf("No stored object storage credentials for %s: %v", uri.Host, err)
		} else if credential != nil {
			accessKeyID, accessKeySecret = credential.Username, credential.Password
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	cacheKey := accessKeyID + "\x00" + accessKeySecret
	if c, ok := h.clients[cacheKey]; ok {
		return c, nil
	}
	c, err := h.newClient(awsConfig(h.cfg, accessKeyID, accessKeySecret))
	if err != nil {
		return nil, err
	}
	h.clients[cacheKey] = c
	return c, nil
}

func (h *Handler) OpenStream(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ObjectStore.OpenStream")
	defer span.Finish()
	tracing.TagComponentTransport(span)
	tracing.TagScheme(span, uri.Scheme)

	if props == nil {
		props = &models.ConnectionProperties{}
	}

	bucket, key, err := splitObjectURI(uri)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	c, err := h.client(uri)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if token := props.ConditionalGet; token != nil {
		if token.ETag != "" {
			input.IfNoneMatch = aws.String(token.ETag)
		}
		if token.LastModified != "" {
			if t, err := http.ParseTime(token.LastModified); err == nil {
				input.IfModifiedSince = aws.Time(t)
			}
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	out, err := c.GetObject(reqCtx, input)
	if err != nil {
		cancel()
		mapped := mapError(ctx, uri, err)
		recordFetch(uri.Scheme, mapped)
		if !feedErrors.IsNotModified(mapped) {
			tracing.TraceErr(span, mapped)
		}
		return nil, mapped
	}
	recordFetch(uri.Scheme, nil)

	lastModified := ""
	if out.LastModified != nil {
		lastModified = out.LastModified.UTC().Format(http.TimeFormat)
	}
	contentLength := int64(-1)
	if out.ContentLength != nil {
		contentLength = *out.ContentLength
	}

	s, err := stream.New(out.Body, stream.Options{
		URI:                uri,
		ContentType:        aws.StringValue(out.ContentType),
		ContentEncoding:    aws.StringValue(out.ContentEncoding),
		ContentLength:      contentLength,
		ContentDisposition: aws.StringValue(out.ContentDisposition),
		ConditionalGet:     models.NewConditionalGetToken(uri.String(), lastModified, aws.StringValue(out.ETag)),
		Abort:              cancel,
	})
	if err != nil {
		cancel()
		tracing.TraceErr(span, err)
		return nil, feedErrors.NewConnectionError("failed to read object", err)
	}
	return s, nil
}

func mapError(ctx context.Context, uri *url.URL, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch code := reqErr.StatusCode(); {
		case code == http.StatusNotModified:
			return &feedErrors.NotModifiedError{URI: uri.String()}
		case code == http.StatusForbidden:
			return feedErrors.NewStatusError(code, "Forbidden")
		case code == http.StatusNotFound:
			return feedErrors.NewStatusError(code, "Not Found")
		case code >= http.StatusBadRequest:
			message := reqErr.Message()
			if message == "" {
				message = http.StatusText(code)
			}
			return feedErrors.NewStatusError(code, message)
		}
	}
	return feedErrors.NewConnectionError("object storage request failed", err)
}

func recordFetch(scheme string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case feedErrors.IsNotModified(err):
		outcome = metrics.OutcomeNotModified
	default:
		outcome = metrics.OutcomeError
	}
	metrics.FetchesTotal.WithLabelValues(scheme, outcome).Inc()
}

func (h *Handler) Reload(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*models.ReloadResult, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ObjectStore.Reload")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	var interpret stream.Interpreter
	if h.parser != nil {
		interpret = h.parser.Interpret
	}
	open := func(ctx context.Context) (*stream.Stream, error) {
		return h.OpenStream(ctx, uri, props)
	}

	result, err := stream.Reload(ctx, open, interpret, h.fallbackEncoding)
	if err != nil && !feedErrors.IsNotModified(err) {
		tracing.TraceErr(span, err)
	}
	return result, err
}

// GetFeedIcon always returns nil, buckets have no favicon.
func (h *Handler) GetFeedIcon(context.Context, *url.URL) ([]byte, error) {
	return nil, nil
}

func (h *Handler) GetLabel(ctx context.Context, uri *url.URL) (string, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ObjectStore.GetLabel")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	timeout := defaultLabelTimeout
	if h.prefs != nil {
		timeout = h.prefs.GetDuration(config.PrefLabelTimeout, defaultLabelTimeout)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := h.OpenStream(ctx, uri, &models.ConnectionProperties{})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	defer s.Abort()

	title, err := sniff.ScanTitle(ctx, s, h.fallbackEncoding)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return title, nil
}

// GetFeed returns uri unchanged, an object is always the feed itself.
func (h *Handler) GetFeed(_ context.Context, uri *url.URL) (*url.URL, error) {
	return uri, nil
}
