package interfaces

import (
	"net/url"

	"github.com/customeros/feedsync/internal/models"
)

// CredentialsProvider stores site and proxy credentials for one or more
// URI schemes. A nil credential with a nil error means none is stored.
type CredentialsProvider interface {
	GetAuthCredentials(uri *url.URL, realm string) (*models.Credential, error)
	GetPersistedAuthCredentials(uri *url.URL, realm string) (*models.Credential, error)
	SetAuthCredentials(uri *url.URL, realm string, credential models.Credential) error
	SetInMemoryAuthCredentials(uri *url.URL, realm string, credential models.Credential)
	// DeleteAuthCredentials removes the entry for uri and realm. An empty
	// realm removes every entry stored for uri.
	DeleteAuthCredentials(uri *url.URL, realm string) error
	GetProxyCredentials(uri *url.URL) *models.ProxyCredential
	SetProxyCredentials(credential *models.ProxyCredential)
}

type CredentialsResolver interface {
	GetCredentialsProvider(uri *url.URL) CredentialsProvider
	GetAuthCredentials(uri *url.URL, realm string) (*models.Credential, error)
	GetProxyCredentials(uri *url.URL) *models.ProxyCredential
}

type LoginPrompt interface {
	// PromptLogin asks the user for credentials and reports whether new
	// ones were accepted.
	PromptLogin(uri *url.URL, realm string) bool
}
