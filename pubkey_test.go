package devcert

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestExtractPublicKey(t *testing.T) {
	// WHY: The extracted key must be the certificate's subject key, in the
	// PKIX form openssl x509 -pubkey prints.
	t.Parallel()

	res := issueSelfSigned(t, sharedKey(t))
	pubPEM, err := ExtractPublicKey(res.CertPEM)
	if err != nil {
		t.Fatalf("ExtractPublicKey: %v", err)
	}
	block, _ := pem.Decode(pubPEM)
	if block == nil || block.Type != "PUBLIC KEY" {
		t.Fatalf("unexpected PEM block %v", block)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		t.Fatal(err)
	}
	key, err := UnlockPrivateKey(sharedKey(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if !key.PublicKey.Equal(pub.(*rsa.PublicKey)) {
		t.Error("extracted key differs from the signing key")
	}
}

func TestExtractAuthorizedKey(t *testing.T) {
	// WHY: The SSH form must parse as an authorized_keys line for the same key.
	t.Parallel()

	res := issueSelfSigned(t, sharedKey(t))
	line, err := ExtractAuthorizedKey(res.CertPEM)
	if err != nil {
		t.Fatalf("ExtractAuthorizedKey: %v", err)
	}
	if !bytes.HasPrefix(line, []byte("ssh-rsa ")) || !bytes.HasSuffix(line, []byte("\n")) {
		t.Errorf("line = %q", line)
	}
	parsed, _, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		t.Fatalf("ParseAuthorizedKey: %v", err)
	}
	cert := mustParseCert(t, res.CertPEM)
	want, err := ssh.NewPublicKey(cert.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(parsed.Marshal(), want.Marshal()) {
		t.Error("authorized key differs from certificate key")
	}
}

func TestExtractPublicKey_Malformed(t *testing.T) {
	// WHY: Garbage in either extractor is a malformed certificate error.
	t.Parallel()

	for name, extract := range map[string]func([]byte) ([]byte, error){
		"pem": ExtractPublicKey,
		"ssh": ExtractAuthorizedKey,
	} {
		if _, err := extract([]byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n")); !errors.Is(err, ErrMalformedCertificate) {
			t.Errorf("%s: err = %v, want ErrMalformedCertificate", name, err)
		}
	}
}
