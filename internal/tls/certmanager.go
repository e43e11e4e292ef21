// Package tls serves the gateway over HTTPS with certificates obtained and
// renewed automatically by certmagic.
package tls

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/caddyserver/certmagic"

	"github.com/nopenet/nopenet/internal/config"
)

// ErrNoDomains is returned when TLS is requested without any domain names.
var ErrNoDomains = errors.New("tls: no domains configured")

// CertManager obtains certificates for a fixed list of domains. Outside
// production it uses the Let's Encrypt staging CA.
type CertManager struct {
	domains []string
	logger  *slog.Logger
	cfg     *certmagic.Config
	issuer  *certmagic.ACMEIssuer
}

// NewCertManager creates a CertManager for the configured domains.
func NewCertManager(tc config.TLSConfig, production bool, logger *slog.Logger) (*CertManager, error) {
	if len(tc.Domains) == 0 {
		return nil, ErrNoDomains
	}

	ca := certmagic.LetsEncryptStagingCA
	if production {
		ca = certmagic.LetsEncryptProductionCA
	}

	cfg := certmagic.NewDefault()
	issuer := certmagic.NewACMEIssuer(cfg, certmagic.ACMEIssuer{
		CA:     ca,
		Email:  tc.Email,
		Agreed: true,
	})
	cfg.Issuers = []certmagic.Issuer{issuer}

	return &CertManager{domains: tc.Domains, logger: logger, cfg: cfg, issuer: issuer}, nil
}

// Serve manages certificates for the domains, then serves srv over TLS on
// port 443 until srv is shut down.
func (cm *CertManager) Serve(ctx context.Context, srv *http.Server) error {
	cm.logger.Info("obtaining certificates", "domains", cm.domains, "ca", cm.issuer.CA)
	if err := cm.cfg.ManageSync(ctx, cm.domains); err != nil {
		return fmt.Errorf("tls: manage domains: %w", err)
	}

	ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", certmagic.HTTPSPort), cm.cfg.TLSConfig())
	if err != nil {
		return fmt.Errorf("tls: listen: %w", err)
	}

	cm.logger.Info("serving HTTPS", "port", certmagic.HTTPSPort)
	return srv.Serve(ln)
}

// CA returns the ACME directory in use.
func (cm *CertManager) CA() string {
	return cm.issuer.CA
}
