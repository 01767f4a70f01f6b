// Package pki configures optional TLS for the sync protocol's transport.
// The protocol itself carries no credentials or encryption (the
// username at login is the only identity check, by design) — TLS here
// is purely transport hardening and is never required to dial or
// accept a connection.
package pki

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// NewClientTLSConfig builds a TLS config that verifies the server's
// certificate against caCertPath. There is no client certificate: the
// client never authenticates itself at the transport layer, only at
// the protocol layer (CMD_LOGIN).
func NewClientTLSConfig(caCertPath string) (*tls.Config, error) {
	caPool, err := loadCACertPool(caCertPath)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    caPool,
	}, nil
}

// NewServerTLSConfig builds a TLS config serving serverCertPath /
// serverKeyPath. It requests no client certificate.
func NewServerTLSConfig(serverCertPath, serverKeyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(serverCertPath, serverKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

func loadCACertPool(caCertPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", caCertPath)
	}

	return pool, nil
}
