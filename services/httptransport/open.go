package httptransport

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/metrics"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/stream"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/internal/utils"
)

type authState int

const (
	authInitial authState = iota
	authRetriedWithRealmCredential
	authSucceeded
	authFailed
)

func (s authState) String() string {
	switch s {
	case authInitial:
		return "initial"
	case authRetriedWithRealmCredential:
		return "retried-with-realm-credential"
	case authSucceeded:
		return "succeeded"
	default:
		return "failed"
	}
}

var realmRegex = regexp.MustCompile(`(?i)realm\s*=\s*"([^"]*)"`)

// OpenStream fetches uri. A 401 with a realm is retried once with the
// credential stored for the URI's authority and that realm; if the retry is
// rejected as well the stored credential is deleted and the second error is
// returned.
func (h *Handler) OpenStream(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*stream.Stream, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "HttpTransport.OpenStream")
	defer span.Finish()
	tracing.TagComponentTransport(span)
	tracing.TagScheme(span, uri.Scheme)
	span.LogKV("uri", uri.String())

	if props == nil {
		props = &models.ConnectionProperties{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := resolveFeedScheme(uri)
	if target.Scheme == "file" {
		s, err := h.openFile(target, props)
		recordFetch(target.Scheme, err)
		return s, err
	}

	credential := h.initialCredential(target, props)
	authority := utils.NormalizeURI(target)
	realm := ""
	state := authInitial

	for state == authInitial || state == authRetriedWithRealmCredential {
		s, err := h.attempt(ctx, target, props, credential)
		if err == nil {
			if state == authRetriedWithRealmCredential {
				h.rememberCredential(target, *credential)
			}
			state = authSucceeded
			recordFetch(target.Scheme, nil)
			return s, nil
		}

		var authErr *feedErrors.AuthenticationRequiredError
		if !errors.As(err, &authErr) {
			tracing.TraceErr(span, err)
			recordFetch(target.Scheme, err)
			return nil, err
		}

		switch state {
		case authInitial:
			stored := h.realmCredential(authority, authErr.Realm)
			if stored == nil {
				state = authFailed
				recordFetch(target.Scheme, err)
				return nil, err
			}
			credential = stored
			realm = authErr.Realm
			state = authRetriedWithRealmCredential
			span.LogKV("auth_state", state.String())
		case authRetriedWithRealmCredential:
			state = authFailed
			h.forgetCredential(authority, realm)
			recordFetch(target.Scheme, err)
			return nil, err
		}
	}
	return nil, errors.Errorf("unexpected auth state %s", state)
}

// resolveFeedScheme maps feed://host/path and feed:https://host/path to the
// HTTP URI they stand for.
func resolveFeedScheme(uri *url.URL) *url.URL {
	if !strings.EqualFold(uri.Scheme, "feed") {
		return uri
	}
	if uri.Opaque != "" {
		if inner, err := url.Parse(uri.Opaque); err == nil && inner.Scheme != "" {
			return inner
		}
	}
	return utils.WithScheme(uri, "http")
}

func (h *Handler) initialCredential(uri *url.URL, props *models.ConnectionProperties) *models.Credential {
	if props.Credentials != nil {
		c := *props.Credentials
		return &c
	}
	if uri.User != nil {
		password, _ := uri.User.Password()
		return &models.Credential{Username: uri.User.Username(), Password: password}
	}
	if h.credentials == nil {
		return nil
	}
	c, err := h.credentials.GetAuthCredentials(uri, "")
	if err != nil {
		h.log.Debugf("No stored credentials for %s: %v", uri, err)
		return nil
	}
	return c
}

func (h *Handler) realmCredential(authority *url.URL, realm string) *models.Credential {
	if realm == "" || h.credentials == nil {
		return nil
	}
	c, err := h.credentials.GetAuthCredentials(authority, realm)
	if err != nil {
		h.log.Warnf("Unable to look up credentials for %s realm %q: %v", authority, realm, err)
		return nil
	}
	return c
}

func (h *Handler) rememberCredential(uri *url.URL, credential models.Credential) {
	if h.credentials == nil {
		return
	}
	if provider := h.credentials.GetCredentialsProvider(uri); provider != nil {
		provider.SetInMemoryAuthCredentials(uri, "", credential)
	}
}

func (h *Handler) forgetCredential(authority *url.URL, realm string) {
	if h.credentials == nil {
		return
	}
	provider := h.credentials.GetCredentialsProvider(authority)
	if provider == nil {
		return
	}
	if err := provider.DeleteAuthCredentials(authority, realm); err != nil {
		h.log.Errorf("Unable to delete rejected credentials for %s: %v", authority, err)
	}
}

func (h *Handler) attempt(ctx context.Context, uri *url.URL, props *models.ConnectionProperties, credential *models.Credential) (*stream.Stream, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := h.newRequest(reqCtx, uri, props)
	if err != nil {
		cancel()
		return nil, err
	}
	// an explicit Authorization header from the caller wins
	if credential != nil && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(credential.Username, credential.Password)
	}
	tracing.InjectSpanContextIntoHTTPRequest(req, opentracing.SpanFromContext(ctx))

	resp, err := h.client(uri, props.TimeoutOr(h.connectTimeout())).Do(req)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, feedErrors.NewConnectionError("connection timed out", feedErrors.ErrConnectionTimeout)
		}
		return nil, feedErrors.NewConnectionError("connection failed", err)
	}

	if err := ctx.Err(); err != nil {
		abortResponse(resp, cancel)
		return nil, err
	}

	if err := statusError(uri, resp); err != nil {
		abortResponse(resp, cancel)
		return nil, err
	}

	s, err := stream.FromResponse(resp, uri, cancel)
	if err != nil {
		return nil, feedErrors.NewConnectionError("unreadable response body", err)
	}
	return s, nil
}

func (h *Handler) newRequest(ctx context.Context, uri *url.URL, props *models.ConnectionProperties) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if props.Post {
		body := props.Parameters.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, uri.String(), strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	}
	if err != nil {
		return nil, feedErrors.NewConnectionError("invalid request", err)
	}

	req.Header.Set("Accept-Encoding", "gzip")
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	props.ConditionalGet.Apply(req.Header)
	if lang := h.acceptLanguage(props); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	if props.Cookie != "" {
		req.Header.Set("Cookie", props.Cookie)
	}
	for k, v := range props.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func abortResponse(resp *http.Response, cancel context.CancelFunc) {
	cancel()
	_ = resp.Body.Close()
}

func recordFetch(scheme string, err error) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case feedErrors.IsNotModified(err):
		outcome = metrics.OutcomeNotModified
	case feedErrors.IsAuthenticationRequired(err):
		outcome = metrics.OutcomeAuth
	default:
		outcome = metrics.OutcomeError
	}
	metrics.FetchesTotal.WithLabelValues(scheme, outcome).Inc()
}
