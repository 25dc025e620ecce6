package strategy

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/aponysus/nodecall/policy"
)

// Security selects the channel's transport credentials. It does not alter
// individual calls.
type Security struct {
	mode           policy.SecurityMode
	serverName     string
	caCertFile     string
	clientCertFile string
	clientKeyFile  string
}

// PlainText uses an unencrypted channel.
func PlainText() *Security {
	return &Security{mode: policy.SecurityPlainText}
}

// TransportSecurity uses TLS. caCertFile may be empty to trust the system
// roots; clientCertFile and clientKeyFile enable mutual TLS when both are set.
func TransportSecurity(serverName, caCertFile, clientCertFile, clientKeyFile string) *Security {
	return &Security{
		mode:           policy.SecurityTLS,
		serverName:     serverName,
		caCertFile:     caCertFile,
		clientCertFile: clientCertFile,
		clientKeyFile:  clientKeyFile,
	}
}

func (s *Security) Mode() policy.SecurityMode { return s.mode }
func (s *Security) Capability() Capability    { return CapSecurity }
func (s *Security) Priority() int             { return PrioritySecurity }
func (s *Security) Apply(next Invocation) Invocation {
	return next
}

// TransportCredentials loads the configured key material.
func (s *Security) TransportCredentials() (credentials.TransportCredentials, error) {
	if s.mode != policy.SecurityTLS {
		return insecure.NewCredentials(), nil
	}

	cfg := &tls.Config{
		ServerName: s.serverName,
		MinVersion: tls.VersionTLS12,
	}
	if s.caCertFile != "" {
		pem, err := os.ReadFile(s.caCertFile)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca cert %s: no certificates found", s.caCertFile)
		}
		cfg.RootCAs = pool
	}
	if s.clientCertFile != "" || s.clientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.clientCertFile, s.clientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return credentials.NewTLS(cfg), nil
}

func (s *Security) DialOptions() ([]grpc.DialOption, error) {
	creds, err := s.TransportCredentials()
	if err != nil {
		return nil, err
	}
	return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil
}
