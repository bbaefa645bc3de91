package devcert

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// validatePKCS12KeyType checks that the private key is one this module issues.
func validatePKCS12KeyType(privateKey crypto.PrivateKey) error {
	if _, ok := privateKey.(*rsa.PrivateKey); !ok {
		return fmt.Errorf("unsupported private key type %T", privateKey)
	}
	return nil
}

// EncodePKCS12 creates a PKCS#12/PFX bundle from a private key, leaf cert,
// CA chain, and password. Returns the DER-encoded PKCS#12 data.
func EncodePKCS12(privateKey crypto.PrivateKey, leaf *x509.Certificate, caCerts []*x509.Certificate, password string) ([]byte, error) {
	if err := validatePKCS12KeyType(privateKey); err != nil {
		return nil, newError(ErrBundling, "encoding PKCS#12", err)
	}
	data, err := gopkcs12.Modern.Encode(privateKey, leaf, caCerts, password)
	if err != nil {
		return nil, newError(ErrBundling, "encoding PKCS#12", err)
	}
	return data, nil
}

// EncodePKCS12Legacy creates a PKCS#12/PFX bundle using the legacy RC2 cipher for
// compatibility with older Java keystores and Windows. Returns the DER-encoded PKCS#12 data.
func EncodePKCS12Legacy(privateKey crypto.PrivateKey, leaf *x509.Certificate, caCerts []*x509.Certificate, password string) ([]byte, error) {
	if err := validatePKCS12KeyType(privateKey); err != nil {
		return nil, newError(ErrBundling, "encoding legacy PKCS#12", err)
	}
	data, err := gopkcs12.LegacyRC2.Encode(privateKey, leaf, caCerts, password)
	if err != nil {
		return nil, newError(ErrBundling, "encoding legacy PKCS#12", err)
	}
	return data, nil
}

// DecodePKCS12 decodes a PKCS#12/PFX bundle and returns the private key, leaf certificate,
// and CA certificates.
func DecodePKCS12(pfxData []byte, password string) (crypto.PrivateKey, *x509.Certificate, []*x509.Certificate, error) {
	privateKey, leaf, caCerts, err := gopkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, nil, nil, newError(ErrBundling, "decoding PKCS#12", err)
	}
	return privateKey, leaf, caCerts, nil
}

// PKCS12Input holds the material for BundlePKCS12.
type PKCS12Input struct {
	KeyPEM        []byte
	KeyPassphrase string
	CertPEM       []byte
	ChainPEM      [][]byte // ordered; the CA certificate when there is one
	Password      string   // explicit bundle password, may be empty
	Legacy        bool
}

// PKCS12Result is an encoded bundle together with the password that protects
// it and the redacted form of that password for display.
type PKCS12Result struct {
	Data     []byte
	Password string
	Report   string
}

// BundlePKCS12 unlocks the key, resolves the bundle password and encodes a
// PKCS#12 archive of key, certificate and chain.
func BundlePKCS12(in PKCS12Input) (*PKCS12Result, error) {
	if len(in.KeyPEM) == 0 || len(in.CertPEM) == 0 {
		return nil, errorf(ErrBundling, "bundling PKCS#12: private key and certificate are required")
	}
	key, err := UnlockPrivateKey(in.KeyPEM, in.KeyPassphrase)
	if err != nil {
		return nil, err
	}
	leaf, err := ParsePEMCertificate(in.CertPEM)
	if err != nil {
		return nil, newError(ErrBundling, "reading certificate for PKCS#12", err)
	}
	if !publicKeysEqual(&key.PublicKey, leaf.PublicKey) {
		return nil, errorf(ErrBundling, "bundling PKCS#12: private key does not match the certificate")
	}

	var chain []*x509.Certificate
	for i, p := range in.ChainPEM {
		cert, err := ParsePEMCertificate(p)
		if err != nil {
			return nil, newError(ErrBundling, fmt.Sprintf("reading chain certificate %d", i), err)
		}
		chain = append(chain, cert)
	}

	password := ResolvePKCS12Password(in.KeyPassphrase, in.Password)
	encode := EncodePKCS12
	if in.Legacy {
		encode = EncodePKCS12Legacy
	}
	data, err := encode(key, leaf, chain, password)
	if err != nil {
		return nil, err
	}
	return &PKCS12Result{
		Data:     data,
		Password: password,
		Report:   RedactPassword(password),
	}, nil
}

// EncodePKCS7 creates a certs-only PKCS#7/P7B bundle from a certificate chain.
// Returns the DER-encoded PKCS#7 SignedData structure.
func EncodePKCS7(certs []*x509.Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, errorf(ErrBundling, "encoding PKCS#7: no certificates to encode")
	}
	var derBytes []byte
	for _, cert := range certs {
		derBytes = append(derBytes, cert.Raw...)
	}
	data, err := pkcs7.DegenerateCertificate(derBytes)
	if err != nil {
		return nil, newError(ErrBundling, "encoding PKCS#7", err)
	}
	return data, nil
}

// DecodePKCS7 decodes a DER-encoded PKCS#7 bundle and returns the certificates it contains.
func DecodePKCS7(derData []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(derData)
	if err != nil {
		return nil, newError(ErrBundling, "parsing PKCS#7", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, newError(ErrBundling, "parsing PKCS#7", errors.New("bundle contains no certificates"))
	}
	return p7.Certificates, nil
}
