package devcert

import (
	"crypto/x509"
	"sync"
	"testing"
)

// testKeyBits keeps key generation fast; sizes themselves are covered in
// keygen_test.go.
const testKeyBits = 1024

var (
	sharedKeyOnce sync.Once
	sharedKeyPEM  []byte
	sharedKeyErr  error
)

// sharedKey returns one unencrypted PKCS#1 key reused by tests that do not
// care about key freshness.
func sharedKey(t *testing.T) []byte {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKeyPEM, sharedKeyErr = GeneratePrivateKey(KeyOptions{Bits: testKeyBits})
	})
	if sharedKeyErr != nil {
		t.Fatalf("generating shared key: %v", sharedKeyErr)
	}
	return sharedKeyPEM
}

// newKey generates a fresh key with the given options.
func newKey(t *testing.T, opts KeyOptions) []byte {
	t.Helper()
	if opts.Bits == 0 {
		opts.Bits = testKeyBits
	}
	keyPEM, err := GeneratePrivateKey(opts)
	if err != nil {
		t.Fatalf("GeneratePrivateKey(%+v): %v", opts, err)
	}
	return keyPEM
}

func testSubject() Subject {
	return Subject{
		Country:            "US",
		State:              "Unknown",
		Locality:           "Unknown",
		Organization:       "devbox",
		OrganizationalUnit: "alice",
		CommonName:         "myapp.test",
		AltNames:           []string{"myapp.test", "127.0.0.1", "localhost"},
	}
}

// newTestCA creates a CA with the package's own constructor.
func newTestCA(t *testing.T) *CAResult {
	t.Helper()
	ca, err := CreateCACertificate(CAInput{
		Subject: Subject{Country: "US", Organization: "devbox", CommonName: "myapp.test Development CA"},
		Bits:    testKeyBits,
		Hash:    HashSHA256,
		Days:    30,
	})
	if err != nil {
		t.Fatalf("CreateCACertificate: %v", err)
	}
	return ca
}

// issueSelfSigned issues a subject-mode certificate for keyPEM.
func issueSelfSigned(t *testing.T, keyPEM []byte) *IssueResult {
	t.Helper()
	res, err := Issue(IssueInput{
		Mode:    ModeSelfSignedSubject,
		Subject: testSubject(),
		Hash:    HashSHA256,
		Days:    30,
		KeyPEM:  keyPEM,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return res
}

func mustParseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	cert, err := ParsePEMCertificate(certPEM)
	if err != nil {
		t.Fatalf("ParsePEMCertificate: %v", err)
	}
	return cert
}
