// Package cert issues and checks the self-signed Ed25519 certificates that
// identify widescan peers. A peer is known by its public key, which is also
// encoded in the certificate's single DNS name.
package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// DefaultValidity is how long generated certificates stay valid.
const DefaultValidity = 24 * time.Hour

// dnsNamePrefix keeps the encoded key a valid DNS label
const dnsNamePrefix = "w"

// base32Encoding uses a lower-case alphabet so names survive DNS case folding
var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

var (
	ErrNotEd25519     = errors.New("cert: public key is not Ed25519")
	ErrInvalidDNSName = errors.New("cert: DNS name does not encode the public key")
	ErrNotValidNow    = errors.New("cert: outside validity period")
	ErrWrongSignature = errors.New("cert: signature algorithm is not Ed25519")
)

// Identity is a key pair together with the certificate that presents it.
type Identity struct {
	PublicKey   ed25519.PublicKey
	PrivateKey  ed25519.PrivateKey
	Certificate *tls.Certificate
}

// NewIdentity creates a fresh key pair and its certificate.
func NewIdentity(validity time.Duration) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	c, err := Generate(pub, priv, validity)
	if err != nil {
		return nil, err
	}
	return &Identity{PublicKey: pub, PrivateKey: priv, Certificate: c}, nil
}

// DNSName encodes a public key as the DNS name its certificate carries.
func DNSName(pub ed25519.PublicKey) string {
	return dnsNamePrefix + base32Encoding.EncodeToString(pub)
}

// Generate creates a self-signed certificate for pub usable for both server
// and client authentication, valid from a minute ago for validity. A
// validity <= 0 means DefaultValidity.
func Generate(pub ed25519.PublicKey, priv ed25519.PrivateKey, validity time.Duration) (*tls.Certificate, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}
	now := time.Now()
	// tolerate small clock skew between peers
	return GenerateValidBetween(pub, priv, now.Add(-time.Minute), now.Add(validity))
}

// GenerateValidBetween is Generate with an explicit validity window.
func GenerateValidBetween(pub ed25519.PublicKey, priv ed25519.PrivateKey, notBefore, notAfter time.Time) (*tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	name := DNSName(pub)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{name},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}, nil
}

// Validator implements transport.CertValidator for certificates made by
// Generate.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateCertificate checks the signature algorithm, that the only DNS name
// encodes the certificate's key, and the validity period.
func (v *Validator) ValidateCertificate(c *x509.Certificate) error {
	if c.SignatureAlgorithm != x509.PureEd25519 {
		return ErrWrongSignature
	}
	pub, err := v.ExtractPublicKey(c)
	if err != nil {
		return err
	}
	if len(c.DNSNames) != 1 || c.DNSNames[0] != DNSName(pub) {
		return fmt.Errorf("%w: %v", ErrInvalidDNSName, c.DNSNames)
	}

	now := v.now()
	if now.Before(c.NotBefore) || now.After(c.NotAfter) {
		return fmt.Errorf("%w: %s to %s", ErrNotValidNow, c.NotBefore.Format(time.RFC3339), c.NotAfter.Format(time.RFC3339))
	}
	return nil
}

func (v *Validator) ExtractPublicKey(c *x509.Certificate) (ed25519.PublicKey, error) {
	pub, ok := c.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pub, nil
}
