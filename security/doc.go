// Package security loads TLS material for the servers framepipe exposes.
//
//	cfg := security.TLSConfig{
//	    CertFile:     "/etc/framepipe/cert.pem",
//	    KeyFile:      "/etc/framepipe/key.pem",
//	    ClientCAFile: "/etc/framepipe/clients.pem", // optional, enables mTLS
//	}
//	tlsConfig, err := cfg.Build()
package security
