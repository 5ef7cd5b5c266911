package connection

import (
	"net/url"
	"strings"

	"github.com/customeros/feedsync/interfaces"
	feedErrors "github.com/customeros/feedsync/internal/errors"
	"github.com/customeros/feedsync/internal/models"
)

// CredentialsRegistry maps URI schemes to credentials providers. It is
// complete after construction and safe for concurrent reads.
type CredentialsRegistry struct {
	providers map[string]interfaces.CredentialsProvider
}

func NewCredentialsRegistry(providers map[string]interfaces.CredentialsProvider) *CredentialsRegistry {
	r := &CredentialsRegistry{providers: make(map[string]interfaces.CredentialsProvider, len(providers))}
	for scheme, provider := range providers {
		r.providers[strings.ToLower(scheme)] = provider
	}
	return r
}

func (r *CredentialsRegistry) GetCredentialsProvider(uri *url.URL) interfaces.CredentialsProvider {
	if uri == nil {
		return nil
	}
	return r.providers[strings.ToLower(uri.Scheme)]
}

func (r *CredentialsRegistry) GetAuthCredentials(uri *url.URL, realm string) (*models.Credential, error) {
	if uri == nil || uri.Scheme == "" {
		return nil, &feedErrors.CredentialsError{Message: "unable to look up credentials for a URI without scheme"}
	}
	provider := r.GetCredentialsProvider(uri)
	if provider == nil {
		return nil, &feedErrors.CredentialsError{Message: "no credentials provider registered for scheme " + uri.Scheme}
	}
	credential, err := provider.GetAuthCredentials(uri, realm)
	if err != nil {
		return nil, &feedErrors.CredentialsError{Message: "credentials lookup failed", Cause: err}
	}
	return credential, nil
}

func (r *CredentialsRegistry) GetProxyCredentials(uri *url.URL) *models.ProxyCredential {
	provider := r.GetCredentialsProvider(uri)
	if provider == nil {
		return nil
	}
	return provider.GetProxyCredentials(uri)
}
