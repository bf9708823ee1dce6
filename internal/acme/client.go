// Package acme obtains the certificate for the public HTTPS/WSS endpoint
// from Let's Encrypt. Only the DNS-01 challenge is supported: the tracker
// usually runs on an internal network where HTTP-01 cannot reach it, but
// the DNS provider can still publish the challenge record.
package acme

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/dns"
	"github.com/go-acme/lego/v4/registration"
	"github.com/rs/zerolog"
)

// Config describes one certificate order.
type Config struct {
	Email       string // account email for the CA
	DNSProvider string // lego provider name, credentials come from env vars
	CertPath    string // where to write the issued certificate chain
	KeyPath     string // where to write the private key
	CADirURL    string // ACME directory, empty means lego's default
	Domain      string // domain the certificate covers
}

// account carries the ACME registration state lego needs.
type account struct {
	email        string
	registration *registration.Resource
	key          crypto.PrivateKey
}

func (a *account) GetEmail() string                        { return a.email }
func (a *account) GetRegistration() *registration.Resource { return a.registration }
func (a *account) GetPrivateKey() crypto.PrivateKey        { return a.key }

// Client orders certificates via the DNS-01 challenge.
type Client struct {
	config Config
	logger zerolog.Logger
}

// NewClient creates a certificate client for the configured domain.
func NewClient(config Config, logger zerolog.Logger) *Client {
	return &Client{
		config: config,
		logger: logger.With().Str("component", "acme").Logger(),
	}
}

// ObtainCertificate registers a fresh account, solves the DNS-01 challenge
// through the configured provider and writes the issued certificate and key
// to their configured paths.
func (c *Client) ObtainCertificate() error {
	// lego logs through the standard log package; route that into our logger.
	log.SetOutput(&legoLogBridge{logger: c.logger})
	log.SetFlags(0)

	c.logger.Info().
		Str("domain", c.config.Domain).
		Str("dns_provider", c.config.DNSProvider).
		Msg("Requesting certificate")

	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate account key: %w", err)
	}
	acct := &account{email: c.config.Email, key: accountKey}

	legoConfig := lego.NewConfig(acct)
	if c.config.CADirURL != "" {
		legoConfig.CADirURL = c.config.CADirURL
	}
	legoConfig.Certificate.KeyType = certcrypto.RSA2048

	client, err := lego.NewClient(legoConfig)
	if err != nil {
		return fmt.Errorf("create acme client: %w", err)
	}

	provider, err := c.dnsProvider()
	if err != nil {
		return err
	}
	if err := client.Challenge.SetDNS01Provider(provider); err != nil {
		return fmt.Errorf("set dns-01 provider: %w", err)
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return fmt.Errorf("register acme account: %w", err)
	}
	acct.registration = reg

	certs, err := client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: []string{c.config.Domain},
		Bundle:  true,
	})
	if err != nil {
		return fmt.Errorf("obtain certificate: %w", err)
	}

	if err := c.writeCertificate(certs); err != nil {
		return err
	}

	c.logger.Info().
		Str("domain", certs.Domain).
		Str("cert_path", c.config.CertPath).
		Str("key_path", c.config.KeyPath).
		Msg("Certificate obtained and saved")
	return nil
}

func (c *Client) dnsProvider() (challenge.Provider, error) {
	provider, err := dns.NewDNSChallengeProviderByName(c.config.DNSProvider)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("provider", c.config.DNSProvider).
			Msg("DNS provider setup failed, check the provider's credential env vars")
		return nil, fmt.Errorf("dns provider %q: %w", c.config.DNSProvider, err)
	}
	return provider, nil
}

// writeCertificate persists the chain world-readable and the key owner-only.
func (c *Client) writeCertificate(certs *certificate.Resource) error {
	for _, dir := range []string{filepath.Dir(c.config.CertPath), filepath.Dir(c.config.KeyPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create tls directory: %w", err)
		}
	}
	if err := os.WriteFile(c.config.CertPath, certs.Certificate, 0644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(c.config.KeyPath, certs.PrivateKey, 0600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	return nil
}

// legoLogBridge forwards lego's standard-log output to zerolog.
type legoLogBridge struct {
	logger zerolog.Logger
}

func (b *legoLogBridge) Write(p []byte) (int, error) {
	b.logger.Info().Str("source", "lego").Msg(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
