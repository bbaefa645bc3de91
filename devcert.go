// Package devcert issues RSA key and certificate material for local
// development: private keys, CSRs, self-signed or CA-chained certificates,
// public keys, and PKCS#12/JKS/PKCS#7 containers. It also provides the PEM
// parsing and encoding helpers the rest of the module builds on.
package devcert

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// PEM block types produced and consumed by this package.
const (
	pemTypeCertificate = "CERTIFICATE"
	pemTypeCSR         = "CERTIFICATE REQUEST"
	pemTypeRSAKey      = "RSA PRIVATE KEY"
	pemTypePKCS8Key    = "PRIVATE KEY"
	pemTypeEncPKCS8Key = "ENCRYPTED PRIVATE KEY"
	pemTypePublicKey   = "PUBLIC KEY"
	pemTypeOpenSSHKey  = "OPENSSH PRIVATE KEY"
)

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for block, rest := pem.Decode(pemData); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != pemTypeCertificate {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", len(certs)+1, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("PEM data holds no CERTIFICATE block")
	}
	return certs, nil
}

// ParsePEMCertificate parses a single certificate from PEM data.
func ParsePEMCertificate(pemData []byte) (*x509.Certificate, error) {
	certs, err := ParsePEMCertificates(pemData)
	if err != nil {
		return nil, err
	}
	return certs[0], nil
}

// ParsePEMCertificateRequest parses a single certificate request from PEM data.
func ParsePEMCertificateRequest(pemData []byte) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in certificate request data")
	}
	if block.Type != pemTypeCSR {
		return nil, fmt.Errorf("expected CERTIFICATE REQUEST PEM block, got %q", block.Type)
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate request: %w", err)
	}
	return csr, nil
}

// normalizeKey dereferences *ed25519.PrivateKey (returned by
// ssh.ParseRawPrivateKey) so type switches only need the value form.
func normalizeKey(key crypto.PrivateKey) crypto.PrivateKey {
	if ptr, ok := key.(*ed25519.PrivateKey); ok {
		return *ptr
	}
	return key
}

// ParsePEMPrivateKey parses an unencrypted PEM private key (PKCS#1, PKCS#8,
// EC, or OpenSSH).
func ParsePEMPrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key data")
	}

	switch block.Type {
	case pemTypeRSAKey:
		//nolint:staticcheck // legacy RFC 1423 encryption is detected, not used
		if x509.IsEncryptedPEMBlock(block) {
			return nil, errors.New("private key is encrypted")
		}
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case pemTypePKCS8Key:
		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		// Some tools label PKCS#1 keys as "PRIVATE KEY"
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		return nil, errors.New("parsing PRIVATE KEY block with any known format")
	case pemTypeEncPKCS8Key:
		return nil, errors.New("private key is encrypted")
	case pemTypeOpenSSHKey:
		key, err := ssh.ParseRawPrivateKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("parsing OpenSSH private key: %w", err)
		}
		return normalizeKey(key), nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// DefaultPasswords returns the passwords tried when opening protected keys
// and keystores without an explicit password. Returns a fresh copy each call.
func DefaultPasswords() []string {
	return []string{"", DefaultPKCS12Password, "changeit", "password"}
}

// DeduplicatePasswords merges additional passwords with the defaults and removes
// duplicates while preserving order.
func DeduplicatePasswords(extra []string) []string {
	all := append(DefaultPasswords(), extra...)
	seen := make(map[string]bool, len(all))
	result := make([]string, 0, len(all))
	for _, p := range all {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}

// ParsePEMPrivateKeyWithPasswords parses a PEM private key, trying each
// password in order when the key is encrypted. Returns the first key that
// decrypts.
func ParsePEMPrivateKeyWithPasswords(pemData []byte, passwords []string) (crypto.PrivateKey, error) {
	if key, err := ParsePEMPrivateKey(pemData); err == nil {
		return key, nil
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key data")
	}
	if block.Type == pemTypeOpenSSHKey {
		for _, password := range passwords {
			if password == "" {
				continue
			}
			if key, err := ssh.ParseRawPrivateKeyWithPassphrase(pemData, []byte(password)); err == nil {
				return normalizeKey(key), nil
			}
		}
		return nil, errors.New("parsing OpenSSH private key with any provided password")
	}

	for _, password := range passwords {
		if password == "" {
			continue
		}
		if key, err := UnlockPrivateKey(pemData, password); err == nil {
			return key, nil
		}
	}
	return nil, errors.New("decrypting private key with any provided password")
}

// MarshalPublicKeyToPEM marshals a public key to PKIX PEM format.
func MarshalPublicKeyToPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key to PKIX: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der}), nil
}

// GetPublicKey extracts the public key from a private key via crypto.Signer.
func GetPublicKey(priv crypto.PrivateKey) (crypto.PublicKey, error) {
	if signer, ok := priv.(crypto.Signer); ok {
		return signer.Public(), nil
	}
	return nil, fmt.Errorf("unsupported private key type: %T", priv)
}

// publicKeysEqual reports whether two public keys are the same key. All
// standard public key types implement Equal.
func publicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

// KeyMatchesCert reports whether a private key corresponds to the public key
// in a certificate.
func KeyMatchesCert(priv crypto.PrivateKey, cert *x509.Certificate) (bool, error) {
	pub, err := GetPublicKey(priv)
	if err != nil {
		return false, err
	}
	return publicKeysEqual(pub, cert.PublicKey), nil
}

// CertSKIEmbedded is the certificate's Subject Key Identifier in ColonHex
// form, "" when the extension is absent (devcert leaves carry none).
func CertSKIEmbedded(cert *x509.Certificate) string {
	return ColonHex(cert.SubjectKeyId)
}

// CertAKIEmbedded is the certificate's Authority Key Identifier in ColonHex
// form, "" when absent.
func CertAKIEmbedded(cert *x509.Certificate) string {
	return ColonHex(cert.AuthorityKeyId)
}

// GetCertificateType classifies cert as "root", "intermediate" or "leaf".
func GetCertificateType(cert *x509.Certificate) string {
	switch {
	case !cert.IsCA:
		return "leaf"
	case bytes.Equal(cert.RawIssuer, cert.RawSubject):
		return "root"
	default:
		return "intermediate"
	}
}

// KeyAlgorithmName names the algorithm of a private key.
func KeyAlgorithmName(key crypto.PrivateKey) string {
	pub, err := GetPublicKey(key)
	if err != nil {
		return "unknown"
	}
	return PublicKeyAlgorithmName(pub)
}

// PublicKeyAlgorithmName names the algorithm of a public key.
func PublicKeyAlgorithmName(key crypto.PublicKey) string {
	switch key.(type) {
	case *rsa.PublicKey:
		return "RSA"
	case *ecdsa.PublicKey:
		return "ECDSA"
	case ed25519.PublicKey:
		return "Ed25519"
	}
	return "unknown"
}

// CertFingerprint is the lowercase hex SHA-256 of the certificate DER. The
// ledger keys rows on it.
func CertFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// CertFingerprintColonSHA256 is the SHA-256 fingerprint as OpenSSL prints
// it: uppercase, colon separated.
func CertFingerprintColonSHA256(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return strings.ToUpper(ColonHex(sum[:]))
}

// ColonHex formats b as colon-separated lowercase hex pairs. Empty input
// gives "".
func ColonHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// ComputeSKI computes a Subject Key Identifier using RFC 7093 Method 1:
// SHA-256 of the subjectPublicKey BIT STRING, truncated to 160 bits.
func ComputeSKI(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal PKIX: %w", err)
	}
	var spki struct {
		Algorithm asn1.RawValue
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil, fmt.Errorf("parsing SubjectPublicKeyInfo: %w", err)
	}
	sum := sha256.Sum256(spki.PublicKey.Bytes)
	return sum[:20], nil
}

// IsPEM reports whether data contains a PEM armor line.
func IsPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN "))
}

// CertExpiresWithin reports whether cert's NotAfter falls before now+d.
func CertExpiresWithin(cert *x509.Certificate, d time.Duration) bool {
	return cert.NotAfter.Before(time.Now().Add(d))
}
