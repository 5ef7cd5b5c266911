package models

import "strconv"

// Credential authenticates against a single URI authority, optionally scoped
// to a realm announced by the server.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain,omitempty"`
}

// ProxyCredential describes a configured proxy. Username and Password are
// empty for an unauthenticated proxy.
type ProxyCredential struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Domain   string `json:"domain,omitempty"`
}

func (p ProxyCredential) Address() string {
	if p.Port <= 0 {
		return p.Host
	}
	return p.Host + ":" + strconv.Itoa(p.Port)
}
