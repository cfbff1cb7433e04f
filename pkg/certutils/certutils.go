package certutils

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

type ReadCertificateError struct {
	msg string
}

func (r ReadCertificateError) Error() string {
	return fmt.Sprintf("ReadCertificateError: %s", r.msg)
}

// LoadCertificatesFromPem parses every CERTIFICATE block out of pemData.
func LoadCertificatesFromPem(pemData []byte) ([]*x509.Certificate, error) {
	certs := []*x509.Certificate{}

	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return certs, &ReadCertificateError{msg: fmt.Sprintf("certificate parse failed: %v", err)}
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return certs, &ReadCertificateError{msg: "no certificates found in PEM data"}
	}

	return certs, nil
}

// EncodeX509ToPem renders a certificate back to PEM text.
func EncodeX509ToPem(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

// ReadCertificate reads a certificate from the given input string dynamically,
// in the order of file path, certificate literal, base64-encoded certificate.
func ReadCertificate(input string) ([]*x509.Certificate, error) {
	certs := []*x509.Certificate{}

	var certData []byte
	if _, err := os.Stat(input); err == nil {
		certData, err = os.ReadFile(input)
		if err != nil {
			return certs, &ReadCertificateError{msg: fmt.Sprintf("could not read file: %v", err)}
		}
	} else if _, err := LoadCertificatesFromPem([]byte(input)); err == nil {
		certData = []byte(input)
	} else if certData, err = base64.StdEncoding.DecodeString(input); err != nil {
		return certs, &ReadCertificateError{msg: "no PEM data found as filepath, literal or base64-encoded literal"}
	}

	certs, err := LoadCertificatesFromPem(certData)
	if err != nil {
		return certs, err
	}

	return certs, nil
}
