// Package tlsglue binds a client TLS context and per-connection sessions
// with SNI to stdlib crypto/tls.
package tlsglue

import "crypto/tls"

// Context is a process-scope (but not global — callers own an instance)
// TLS configuration: minimum protocol version and default peer
// verification (no InsecureSkipVerify).
type Context struct {
	base *tls.Config
}

// NewContext returns a Context with TLS 1.2 as the floor and default
// (enabled) peer verification.
func NewContext() *Context {
	return &Context{
		base: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// Session is a per-connection TLS object bound to one request's transport.
// Its lifetime is owned by whichever HTTP transport dials with it.
type Session struct {
	Config *tls.Config
}

// NewSession clones ctx's base configuration and installs hostname as SNI.
func (c *Context) NewSession(hostname string) *Session {
	cfg := c.base.Clone()
	cfg.ServerName = hostname
	return &Session{Config: cfg}
}
