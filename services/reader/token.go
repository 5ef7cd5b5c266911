package reader

import (
	"bufio"
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/metrics"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/tracing"
)

// TokenSource obtains and caches the auth token of the aggregation service
// using the credentials stored for the login URL.
type TokenSource struct {
	cfg         *config.ReaderConfig
	transport   interfaces.ProtocolHandler
	credentials interfaces.CredentialsResolver
	now         func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewTokenSource(cfg *config.ReaderConfig, transport interfaces.ProtocolHandler, credentials interfaces.CredentialsResolver) *TokenSource {
	return &TokenSource{
		cfg:         cfg,
		transport:   transport,
		credentials: credentials,
		now:         time.Now,
	}
}

// LoginURI is where credentials for the service are stored and where the
// login prompt points to.
func (ts *TokenSource) LoginURI() (*url.URL, error) {
	uri, err := url.Parse(ts.cfg.LoginURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid reader login URL")
	}
	return uri, nil
}

// Token returns the cached token, logging in when there is none, it expired
// or forceRefresh is set.
func (ts *TokenSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !forceRefresh && ts.token != "" && ts.now().Before(ts.expires) {
		return ts.token, nil
	}
	if forceRefresh {
		metrics.TokenRefreshesTotal.Inc()
	}

	token, err := ts.login(ctx)
	if err != nil {
		ts.token = ""
		return "", err
	}
	ts.token = token
	ts.expires = ts.now().Add(ts.cfg.TokenTTL)
	return token, nil
}

func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
}

func (ts *TokenSource) login(ctx context.Context) (string, error) {
	span, ctx := tracing.StartTracerSpan(ctx, "TokenSource.login")
	defer span.Finish()
	tracing.TagComponentTransport(span)

	loginURI, err := ts.LoginURI()
	if err != nil {
		return "", err
	}
	credential, err := ts.credentials.GetAuthCredentials(loginURI, "")
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if credential == nil || credential.Username == "" {
		return "", &feedErrors.AuthenticationRequiredError{URI: loginURI.String()}
	}

	s, err := ts.transport.OpenStream(ctx, loginURI, &models.ConnectionProperties{
		Post: true,
		Parameters: url.Values{
			"Email":       {credential.Username},
			"Passwd":      {credential.Password},
			"service":     {"reader"},
			"source":      {ts.cfg.ClientID},
			"accountType": {"GOOGLE"},
		},
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	defer s.Abort()

	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "Auth=") {
			return strings.TrimPrefix(line, "Auth="), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", feedErrors.NewConnectionError("failed to read login response", err)
	}
	return "", feedErrors.NewConnectionError("login response carried no token", nil)
}
