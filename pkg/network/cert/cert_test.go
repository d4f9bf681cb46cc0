package cert

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity(time.Hour)
	require.NoError(t, err)

	leaf := id.Certificate.Leaf
	require.NotNil(t, leaf)
	assert.Equal(t, []string{DNSName(id.PublicKey)}, leaf.DNSNames)
	assert.Len(t, leaf.DNSNames[0], 53)
	assert.NoError(t, NewValidator().ValidateCertificate(leaf))

	pub, err := NewValidator().ExtractPublicKey(leaf)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKey, pub)
}

func TestValidateCertificate(t *testing.T) {
	id, err := NewIdentity(time.Hour)
	require.NoError(t, err)
	other, err := NewIdentity(time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		cert    func() *x509.Certificate
		now     time.Time
		wantErr error
	}{
		{
			name: "valid",
			cert: func() *x509.Certificate { return id.Certificate.Leaf },
			now:  time.Now(),
		},
		{
			name: "dns name of another key",
			cert: func() *x509.Certificate {
				c := *id.Certificate.Leaf
				c.DNSNames = []string{DNSName(other.PublicKey)}
				return &c
			},
			now:     time.Now(),
			wantErr: ErrInvalidDNSName,
		},
		{
			name: "two dns names",
			cert: func() *x509.Certificate {
				c := *id.Certificate.Leaf
				c.DNSNames = append(c.DNSNames, "extra")
				return &c
			},
			now:     time.Now(),
			wantErr: ErrInvalidDNSName,
		},
		{
			name:    "expired",
			cert:    func() *x509.Certificate { return id.Certificate.Leaf },
			now:     time.Now().Add(2 * time.Hour),
			wantErr: ErrNotValidNow,
		},
		{
			name:    "not yet valid",
			cert:    func() *x509.Certificate { return id.Certificate.Leaf },
			now:     time.Now().Add(-time.Hour),
			wantErr: ErrNotValidNow,
		},
		{
			name:    "ecdsa",
			cert:    func() *x509.Certificate { return ecdsaCert(t) },
			now:     time.Now(),
			wantErr: ErrWrongSignature,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := &Validator{now: func() time.Time { return tc.now }}
			err := v.ValidateCertificate(tc.cert())
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestGenerateDefaultValidity(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	c, err := Generate(pub, priv, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultValidity), c.Leaf.NotAfter, time.Minute)

	c, err = Generate(pub, priv, -time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultValidity), c.Leaf.NotAfter, time.Minute)
	assert.NoError(t, NewValidator().ValidateCertificate(c.Leaf))
}

func TestGenerateValidBetween(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	notBefore := time.Now().Add(-2 * time.Hour)
	notAfter := time.Now().Add(-time.Hour)
	c, err := GenerateValidBetween(pub, priv, notBefore, notAfter)
	require.NoError(t, err)
	assert.WithinDuration(t, notBefore, c.Leaf.NotBefore, time.Second)
	assert.WithinDuration(t, notAfter, c.Leaf.NotAfter, time.Second)
	assert.ErrorIs(t, NewValidator().ValidateCertificate(c.Leaf), ErrNotValidNow)
}

func ecdsaCert(t *testing.T) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ecdsa"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	c, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return c
}
