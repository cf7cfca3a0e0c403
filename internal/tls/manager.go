package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"buddiesfinder/internal/config"
	"buddiesfinder/internal/util"
)

// Manager picks the server certificate: ACME via autocert when enabled, then
// a configured key pair, then (development only) a self-signed certificate.
type Manager struct {
	cfg         config.ServerConfig
	development bool
	autoCert    *autocert.Manager

	mu       sync.Mutex
	fileCert *tls.Certificate
	devCert  *tls.Certificate
}

func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{cfg: cfg.Server, development: cfg.IsDevelopment()}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		m.fileCert = &cert
	}

	if m.cfg.AutoCert {
		if err := os.MkdirAll(m.cfg.AutoCertDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create autocert directory: %w", err)
		}
		m.autoCert = &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(m.cfg.Domain),
			Cache:      autocert.DirCache(m.cfg.AutoCertDir),
			Email:      m.cfg.Email,
		}
		util.Info("AutoCert configured",
			zap.String("domain", m.cfg.Domain),
			zap.String("cache_dir", m.cfg.AutoCertDir))
	}

	if m.autoCert == nil && m.fileCert == nil && !m.development {
		return nil, errors.New("TLS enabled without autocert or a certificate file")
	}
	return m, nil
}

func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		if m.fileCert == nil && !m.development {
			return nil, err
		}
		util.Warn("AutoCert failed, falling back", zap.String("server_name", hello.ServerName), zap.Error(err))
	}
	if m.fileCert != nil {
		return m.fileCert, nil
	}
	return m.selfSigned()
}

func (m *Manager) selfSigned() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.devCert != nil {
		return m.devCert, nil
	}
	hosts := []string{m.cfg.Domain, "localhost", "127.0.0.1", "::1"}
	cert, err := loadOrCreateDevCert(m.cfg.AutoCertDir, hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	m.devCert = &cert
	return m.devCert, nil
}

func (m *Manager) TLSConfig() *tls.Config {
	cfg := &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},
	}
	if m.autoCert != nil {
		cfg.NextProtos = append(cfg.NextProtos, "acme-tls/1")
	}
	return cfg
}

// HTTPChallengeHandler serves ACME http-01 challenges on the plain port and
// passes everything else to fallback.
func (m *Manager) HTTPChallengeHandler(fallback http.Handler) http.Handler {
	if m.autoCert == nil {
		return fallback
	}
	return m.autoCert.HTTPHandler(fallback)
}
