package credentials

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/customeros/feedsync/config"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/models"
	"github.com/customeros/feedsync/internal/utils"
)

const (
	FileName    = "credentials.json"
	fileVersion = 1
)

type entryKey struct {
	uri   string
	realm string
}

type fileEntry struct {
	URI   string `json:"uri"`
	Realm string `json:"realm,omitempty"`
	models.Credential
}

type fileContents struct {
	Version     int         `json:"version"`
	Credentials []fileEntry `json:"credentials"`
}

// Provider keeps persisted credentials in a JSON file next to in-memory
// ones learned during the session.
type Provider struct {
	mu        sync.RWMutex
	path      string
	persisted map[entryKey]models.Credential
	inMemory  map[entryKey]models.Credential
	proxy     *models.ProxyCredential
	noProxy   []string
	log       logger.Logger
}

// NewProvider loads path if it exists. An empty path keeps everything in
// memory.
func NewProvider(path string, proxyCfg *config.ProxyConfig, log logger.Logger) *Provider {
	p := &Provider{
		path:      path,
		persisted: make(map[entryKey]models.Credential),
		inMemory:  make(map[entryKey]models.Credential),
		log:       log,
	}
	if proxyCfg != nil {
		p.noProxy = proxyCfg.NoProxy
		if proxyCfg.Enabled && proxyCfg.Host != "" {
			p.proxy = &models.ProxyCredential{
				Host:     proxyCfg.Host,
				Port:     proxyCfg.Port,
				Username: proxyCfg.Username,
				Password: proxyCfg.Password,
				Domain:   proxyCfg.Domain,
			}
		}
	}
	if err := p.load(); err != nil {
		log.Warnf("Unable to load credentials from %s: %v", path, err)
	}
	return p
}

func keyFor(uri *url.URL, realm string) entryKey {
	return entryKey{uri: uri.String(), realm: realm}
}

func (p *Provider) GetAuthCredentials(uri *url.URL, realm string) (*models.Credential, error) {
	if uri == nil {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, key := range []entryKey{keyFor(uri, realm), keyFor(utils.NormalizeURI(uri), realm)} {
		if c, ok := p.persisted[key]; ok {
			return &c, nil
		}
		if c, ok := p.inMemory[key]; ok {
			return &c, nil
		}
	}
	return nil, nil
}

func (p *Provider) GetPersistedAuthCredentials(uri *url.URL, realm string) (*models.Credential, error) {
	if uri == nil {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if c, ok := p.persisted[keyFor(uri, realm)]; ok {
		return &c, nil
	}
	return nil, nil
}

func (p *Provider) SetAuthCredentials(uri *url.URL, realm string, credential models.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := keyFor(uri, realm)
	p.persisted[key] = credential
	delete(p.inMemory, key)
	return p.saveLocked()
}

func (p *Provider) SetInMemoryAuthCredentials(uri *url.URL, realm string, credential models.Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inMemory[keyFor(uri, realm)] = credential
}

func (p *Provider) DeleteAuthCredentials(uri *url.URL, realm string) error {
	if uri == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	target := uri.String()
	changed := false
	for _, entries := range []map[entryKey]models.Credential{p.persisted, p.inMemory} {
		for key := range entries {
			if key.uri == target && (realm == "" || key.realm == realm) {
				delete(entries, key)
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	return p.saveLocked()
}

// GetProxyCredentials returns the configured proxy unless uri's host is
// excluded.
func (p *Provider) GetProxyCredentials(uri *url.URL) *models.ProxyCredential {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.proxy == nil {
		return nil
	}
	if uri != nil && utils.IsHostInSlice(uri.Hostname(), p.noProxy) {
		return nil
	}
	proxy := *p.proxy
	return &proxy
}

func (p *Provider) SetProxyCredentials(credential *models.ProxyCredential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if credential == nil {
		p.proxy = nil
		return
	}
	proxy := *credential
	p.proxy = &proxy
}

func (p *Provider) load() error {
	if p.path == "" {
		return nil
	}
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read credentials file")
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return errors.Wrap(err, "decode credentials file")
	}
	if contents.Version != fileVersion {
		return errors.Errorf("unsupported credentials file version %d", contents.Version)
	}
	for _, e := range contents.Credentials {
		p.persisted[entryKey{uri: e.URI, realm: e.Realm}] = e.Credential
	}
	return nil
}

func (p *Provider) saveLocked() error {
	if p.path == "" {
		return nil
	}

	contents := fileContents{Version: fileVersion, Credentials: make([]fileEntry, 0, len(p.persisted))}
	for key, c := range p.persisted {
		contents.Credentials = append(contents.Credentials, fileEntry{URI: key.uri, Realm: key.realm, Credential: c})
	}
	sort.Slice(contents.Credentials, func(i, j int) bool {
		a, b := contents.Credentials[i], contents.Credentials[j]
		if a.URI != b.URI {
			return a.URI < b.URI
		}
		return a.Realm < b.Realm
	})

	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return errors.Wrap(err, "create credentials dir")
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write credentials file")
	}
	return errors.Wrap(os.Rename(tmp, p.path), "replace credentials file")
}
