package devcert

import (
	"crypto/x509"
	"errors"
	"testing"
)

func TestEncodeJKS_RoundTrip(t *testing.T) {
	// WHY: Java tooling loads the store and the key entry with one password;
	// the entry must carry the leaf followed by its CA.
	t.Parallel()

	ca := newTestCA(t)
	res, err := Issue(IssueInput{
		Mode: ModeCASigned, Subject: testSubject(), Hash: HashSHA256, Days: 30,
		KeyPEM: sharedKey(t), CACertPEM: ca.CertPEM, CAKeyPEM: ca.KeyPEM,
	})
	if err != nil {
		t.Fatal(err)
	}
	key, err := UnlockPrivateKey(sharedKey(t), "")
	if err != nil {
		t.Fatal(err)
	}
	leaf := mustParseCert(t, res.CertPEM)
	caCert := mustParseCert(t, ca.CertPEM)

	data, err := EncodeJKS(key, leaf, []*x509.Certificate{caCert}, "myapp", "sunshine")
	if err != nil {
		t.Fatalf("EncodeJKS: %v", err)
	}

	certs, keys, err := DecodeJKS(data, []string{"wrong", "sunshine"})
	if err != nil {
		t.Fatalf("DecodeJKS: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("decoded %d keys, want 1", len(keys))
	}
	if ok, _ := KeyMatchesCert(keys[0], leaf); !ok {
		t.Error("decoded key does not match leaf")
	}
	if len(certs) != 2 {
		t.Fatalf("decoded %d certificates, want 2", len(certs))
	}
	if CertFingerprint(certs[0]) != CertFingerprint(leaf) || CertFingerprint(certs[1]) != CertFingerprint(caCert) {
		t.Error("chain order is not leaf then CA")
	}
}

func TestDecodeJKS_Errors(t *testing.T) {
	// WHY: A store no password opens, or data that is not a store at all, is
	// a bundling failure.
	t.Parallel()

	key, err := UnlockPrivateKey(sharedKey(t), "")
	if err != nil {
		t.Fatal(err)
	}
	leaf := mustParseCert(t, issueSelfSigned(t, sharedKey(t)).CertPEM)
	data, err := EncodeJKS(key, leaf, nil, "", "sunshine")
	if err != nil {
		t.Fatalf("EncodeJKS: %v", err)
	}

	if _, _, err := DecodeJKS(data, []string{"changeit"}); !errors.Is(err, ErrBundling) {
		t.Errorf("wrong password err = %v, want ErrBundling", err)
	}
	if _, _, err := DecodeJKS([]byte("not a keystore"), DefaultPasswords()); !errors.Is(err, ErrBundling) {
		t.Errorf("garbage err = %v, want ErrBundling", err)
	}
}
