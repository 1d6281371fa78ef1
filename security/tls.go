package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds server-side TLS settings.
type TLSConfig struct {
	// CertFile is the path to the server certificate PEM file.
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	// KeyFile is the path to the server private key PEM file.
	KeyFile string `yaml:"key_file" mapstructure:"key_file"`
	// ClientCAFile, when set, requires clients to present a certificate signed by it.
	ClientCAFile string `yaml:"client_ca_file" mapstructure:"client_ca_file"`
	// MinVersion is the minimum TLS version. Defaults to TLS 1.2.
	MinVersion uint16 `yaml:"min_version" mapstructure:"min_version"`
}

// IsEnabled reports whether a certificate is configured.
func (c *TLSConfig) IsEnabled() bool {
	return c != nil && c.CertFile != ""
}

// Validate checks that the configuration is consistent.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("security/tls: both cert_file and key_file must be provided together")
	}
	if c.ClientCAFile != "" && c.CertFile == "" {
		return fmt.Errorf("security/tls: client_ca_file requires cert_file and key_file")
	}
	if c.MinVersion != 0 && c.MinVersion < tls.VersionTLS12 {
		return fmt.Errorf("security/tls: min_version %#x is below TLS 1.2", c.MinVersion)
	}
	return nil
}

// Build loads the certificate and returns a server *tls.Config, or nil when
// TLS is not enabled.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.IsEnabled() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	minVersion := c.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("security/tls: failed to load server certificate: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}
	if err := c.loadClientCA(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *TLSConfig) loadClientCA(cfg *tls.Config) error {
	if c.ClientCAFile == "" {
		return nil
	}
	ca, err := os.ReadFile(c.ClientCAFile)
	if err != nil {
		return fmt.Errorf("security/tls: failed to read client CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return fmt.Errorf("security/tls: failed to parse client CA certificate")
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return nil
}
