package reader

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/stream"
	"github.com/customeros/feedsync/internal/tracing"
)

// Schemes served by the adapter. reader maps to http, readers to https.
var Schemes = []string{"reader", "readers"}

// EditTagURI is the batch mutation endpoint as seen through the registry.
func EditTagURI() *url.URL {
	return &url.URL{Scheme: "readers", Host: PseudoHost, Path: PathEditTag}
}

// Adapter speaks the aggregation service's JSON API on top of the HTTP
// transport.
type Adapter struct {
	cfg       *config.ReaderConfig
	transport interfaces.ProtocolHandler
	tokens    *TokenSource
	prefs     interfaces.PreferenceStore
	log       logger.Logger
	now       func() time.Time
}

func NewAdapter(cfg *config.ReaderConfig, transport interfaces.ProtocolHandler, tokens *TokenSource, prefs interfaces.PreferenceStore, log logger.Logger) *Adapter {
	return &Adapter{
		cfg:       cfg,
		transport: transport,
		tokens:    tokens,
		prefs:     prefs,
		log:       log,
		now:       time.Now,
	}
}

func (a *Adapter) Tokens() *TokenSource {
	return a.tokens
}

// ToHTTP translates a reader/readers URI to the http/https URI it wraps.
func ToHTTP(uri *url.URL) *url.URL {
	clone := *uri
	switch strings.ToLower(uri.Scheme) {
	case "reader":
		clone.Scheme = "http"
	case "readers":
		clone.Scheme = "https"
	}
	return &clone
}

// FromHTTP is the inverse of ToHTTP.
func FromHTTP(uri *url.URL) *url.URL {
	clone := *uri
	switch strings.ToLower(uri.Scheme) {
	case "http":
		clone.Scheme = "reader"
	case "https":
		clone.Scheme = "readers"
	}
	return &clone
}

func isPseudo(uri *url.URL) bool {
	return strings.EqualFold(uri.Hostname(), PseudoHost)
}

// APIURI rewrites uri to the service endpoint that serves it.
func (a *Adapter) APIURI(uri *url.URL, props *models.ConnectionProperties) (*url.URL, error) {
	base, err := url.Parse(strings.TrimSuffix(a.cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid reader base URL")
	}
	if props == nil {
		props = &models.ConnectionProperties{}
	}

	query := url.Values{}
	query.Set("client", a.cfg.ClientID)

	var endpoint string
	switch {
	case isPseudo(uri) && uri.Path == PathEditTag:
		endpoint = "/edit-tag"
	case isPseudo(uri):
		pseudo, ok := pseudoStreams[uri.Path]
		if !ok {
			return nil, feedErrors.NewConnectionError("unknown reader stream "+uri.Path, nil)
		}
		endpoint = "/stream/contents/" + pseudo.streamID
		a.addStreamQuery(query, props)
	default:
		endpoint = "/stream/contents/feed/" + url.PathEscape(ToHTTP(uri).String())
		a.addStreamQuery(query, props)
	}

	target, err := url.Parse(base.String() + endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid reader endpoint")
	}
	target.RawQuery = query.Encode()
	return target, nil
}

func (a *Adapter) addStreamQuery(query url.Values, props *models.ConnectionProperties) {
	limit := props.ItemLimit
	if limit <= 0 {
		limit = a.cfg.ItemLimit
		if a.prefs != nil {
			limit = a.prefs.GetInt(config.PrefItemLimit, limit)
		}
	}
	if limit > 0 {
		query.Set("n", strconv.Itoa(limit))
	}
	if !props.Since.IsZero() {
		query.Set("ot", strconv.FormatInt(props.Since.Unix(), 10))
	}
	query.Set("likes", "false")
	query.Set("comments", "false")
	query.Set("ck", strconv.FormatInt(a.now().UnixMilli(), 10))
}

// OpenStream sends the rewritten request with the service token. When the
// service rejects the token it is refreshed once and the request retried.
func (a *Adapter) OpenStream(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ReaderAdapter.OpenStream")
	defer span.Finish()
	tracing.TagComponentTransport(span)
	tracing.TagScheme(span, uri.Scheme)

	target, err := a.APIURI(uri, props)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	force := props != nil && props.ForceTokenRefresh
	for attempt := 0; ; attempt++ {
		token, err := a.tokens.Token(ctx, force)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}

		request := props.Clone()
		request.ForceTokenRefresh = false
		if request.Headers == nil {
			request.Headers = map[string]string{}
		}
		request.Headers["Authorization"] = "GoogleLogin auth=" + token

		s, err := a.transport.OpenStream(ctx, target, request)
		if err == nil {
			return s, nil
		}
		if attempt == 0 && rejectsToken(err) {
			a.log.Infof("Reader token rejected for %s, refreshing", uri)
			force = true
			continue
		}
		if !feedErrors.IsNotModified(err) {
			tracing.TraceErr(span, err)
		}
		return nil, err
	}
}

func rejectsToken(err error) bool {
	var syncErr *feedErrors.SyncConnectionError
	return feedErrors.IsAuthenticationRequired(err) || errors.As(err, &syncErr)
}

// Reload fetches the stream and decodes it, replaying props.Uncommitted onto
// the parsed items.
func (a *Adapter) Reload(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*models.ReloadResult, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "ReaderAdapter.Reload")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	s, err := a.OpenStream(ctx, uri, props)
	if err != nil {
		return nil, err
	}

	doc, err := decodeStream(s)
	if err != nil {
		s.Abort()
		tracing.TraceErr(span, err)
		return nil, err
	}
	_ = s.Close()

	if props != nil && len(props.Uncommitted) > 0 {
		for i := range doc.Items {
			if pending, ok := props.Uncommitted[doc.Items[i].ID]; ok {
				pending.ApplyTo(&doc.Items[i])
			}
		}
	}

	return &models.ReloadResult{
		Document:       doc,
		ConditionalGet: s.ConditionalGet(),
		FinalURI:       uri,
	}, nil
}

func (a *Adapter) GetFeedIcon(ctx context.Context, uri *url.URL) ([]byte, error) {
	if isPseudo(uri) {
		return nil, nil
	}
	return a.transport.GetFeedIcon(ctx, ToHTTP(uri))
}

func (a *Adapter) GetLabel(ctx context.Context, uri *url.URL) (string, error) {
	if isPseudo(uri) {
		if pseudo, ok := pseudoStreams[uri.Path]; ok {
			return pseudo.label, nil
		}
		return "", nil
	}
	return a.transport.GetLabel(ctx, ToHTTP(uri))
}

func (a *Adapter) GetFeed(ctx context.Context, uri *url.URL) (*url.URL, error) {
	if isPseudo(uri) {
		return uri, nil
	}
	feed, err := a.transport.GetFeed(ctx, ToHTTP(uri))
	if err != nil || feed == nil {
		return feed, err
	}
	return FromHTTP(feed), nil
}
