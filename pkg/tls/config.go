package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
)

// ErrIncompletePair is returned when only one of the certificate and key
// files is given.
var ErrIncompletePair = errors.New("both a certificate and a key file are required")

// Options selects where the server certificate comes from.
type Options struct {
	CertFile string
	KeyFile  string
	// Auto generates a self-signed certificate for Hosts when no files are given.
	Auto  bool
	Hosts []string
}

// Enabled reports whether o asks for TLS at all.
func (o Options) Enabled() bool {
	return o.CertFile != "" || o.KeyFile != "" || o.Auto
}

// ServerConfig returns the listener TLS configuration, or nil when o does
// not enable TLS.
func ServerConfig(o Options) (*tls.Config, error) {
	if !o.Enabled() {
		return nil, nil
	}
	var (
		cert tls.Certificate
		err  error
	)
	switch {
	case o.CertFile != "" && o.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load certificate %s: %w", o.CertFile, err)
		}
	case o.CertFile != "" || o.KeyFile != "":
		return nil, ErrIncompletePair
	default:
		certPEM, keyPEM, err := SelfSigned(o.Hosts, DefaultValidity)
		if err != nil {
			return nil, err
		}
		cert, err = tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("load generated certificate: %w", err)
		}
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
