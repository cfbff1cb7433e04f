package certutils_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrouesnel/sheets-replicator/pkg/certutils"
)

func selfSignedPEM(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestLoadCertificatesFromPem(t *testing.T) {
	pemData := selfSignedPEM(t)

	certs, err := certutils.LoadCertificatesFromPem([]byte(pemData))
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "test", certs[0].Subject.CommonName)
}

func TestLoadCertificatesFromPemNoCertificates(t *testing.T) {
	_, err := certutils.LoadCertificatesFromPem([]byte("not a certificate"))
	require.Error(t, err)
}

func TestEncodeX509ToPemRoundTrip(t *testing.T) {
	pemData := selfSignedPEM(t)

	certs, err := certutils.LoadCertificatesFromPem([]byte(pemData))
	require.NoError(t, err)

	reencoded := certutils.EncodeX509ToPem(certs[0])
	reparsed, err := certutils.LoadCertificatesFromPem([]byte(reencoded))
	require.NoError(t, err)
	assert.True(t, certs[0].Equal(reparsed[0]))
}

func TestReadCertificateVariants(t *testing.T) {
	pemData := selfSignedPEM(t)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte(pemData), 0o600))

	for name, input := range map[string]string{
		"filepath": path,
		"literal":  pemData,
		"base64":   base64.StdEncoding.EncodeToString([]byte(pemData)),
	} {
		certs, err := certutils.ReadCertificate(input)
		require.NoError(t, err, name)
		require.Len(t, certs, 1, name)
	}
}

func TestReadCertificateGarbage(t *testing.T) {
	_, err := certutils.ReadCertificate("@@@ not a certificate @@@")
	require.Error(t, err)
}
