package models

import (
	"net/url"
	"time"
)

// ConnectionProperties configures a single fetch. Handlers treat the value as
// read-only and Clone it before deriving a modified copy.
type ConnectionProperties struct {
	Timeout        time.Duration
	Post           bool
	Parameters     url.Values
	Headers        map[string]string
	AcceptLanguage string
	Cookie         string
	ConditionalGet *ConditionalGetToken
	Credentials    *Credential

	// remote-reader options
	ItemLimit         int
	Since             time.Time
	Uncommitted       map[string]SyncItem
	ForceTokenRefresh bool
}

func (p *ConnectionProperties) Clone() *ConnectionProperties {
	if p == nil {
		return &ConnectionProperties{}
	}
	clone := *p
	if p.Parameters != nil {
		clone.Parameters = make(url.Values, len(p.Parameters))
		for k, v := range p.Parameters {
			clone.Parameters[k] = append([]string(nil), v...)
		}
	}
	if p.Headers != nil {
		clone.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			clone.Headers[k] = v
		}
	}
	return &clone
}

// TimeoutOr returns the configured timeout or def when none is set.
func (p *ConnectionProperties) TimeoutOr(def time.Duration) time.Duration {
	if p == nil || p.Timeout <= 0 {
		return def
	}
	return p.Timeout
}
