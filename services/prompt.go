package services

import (
	"net/url"

	"github.com/customeros/feedsync/internal/logger"
)

// LogPrompt is the login prompt of headless runs: it reports the request and
// never supplies credentials. Credentials are stored with the login command.
type LogPrompt struct {
	log logger.Logger
}

func NewLogPrompt(log logger.Logger) *LogPrompt {
	return &LogPrompt{log: log}
}

func (p *LogPrompt) PromptLogin(uri *url.URL, realm string) bool {
	if realm != "" {
		p.log.Warnf("Login required for %s (realm %q), store credentials with the login command", uri, realm)
	} else {
		p.log.Warnf("Login required for %s, store credentials with the login command", uri)
	}
	return false
}
