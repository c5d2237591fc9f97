package tls

import (
	"crypto/tls"
	"fmt"

	"mercator-hq/conduit/pkg/config"
)

// ParseVersion maps "1.2" and "1.3" to their crypto/tls constants. Empty
// selects TLS 1.2.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

// NewServerConfig builds the listener configuration. Certificates are served
// from certs on every handshake; http.Server.ServeTLS adds the ALPN protocols.
func NewServerConfig(cfg config.TLSConfig, certs *Reloader) (*tls.Config, error) {
	if certs == nil {
		return nil, fmt.Errorf("tls: certificate reloader is required")
	}

	minVersion, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: certs.GetCertificate,
	}, nil
}
