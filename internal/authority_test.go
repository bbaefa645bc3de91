package internal

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/sensiblebit/devcert"
)

func TestAuthority_SetOnce(t *testing.T) {
	// WHY: A step that writes an artifact twice in one run is a pipeline bug
	// and must not silently replace material that was already derived from.
	t.Parallel()

	auth := NewAuthority(Config{})
	setters := map[string]func([]byte) error{
		"private key": auth.SetPrivateKey,
		"csr":         auth.SetCSR,
		"public key":  auth.SetPublicKey,
		"jks":         auth.SetJKS,
		"p7b":         auth.SetP7B,
	}
	for name, set := range setters {
		if err := set([]byte("first")); err != nil {
			t.Fatalf("%s: first set: %v", name, err)
		}
		if err := set([]byte("second")); !errors.Is(err, ErrArtifactWritten) {
			t.Errorf("%s: second set err = %v, want ErrArtifactWritten", name, err)
		}
	}
	if err := auth.SetCA([]byte("c"), []byte("k"), "ca.pem"); err != nil {
		t.Fatal(err)
	}
	if err := auth.SetCA([]byte("c"), []byte("k"), "ca.pem"); !errors.Is(err, ErrArtifactWritten) {
		t.Errorf("second SetCA err = %v", err)
	}
	if err := auth.SetCert(&devcert.IssueResult{CertPEM: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	if err := auth.SetCert(&devcert.IssueResult{CertPEM: []byte("y")}); !errors.Is(err, ErrArtifactWritten) {
		t.Errorf("second SetCert err = %v", err)
	}
	if err := auth.SetPKCS12(&devcert.PKCS12Result{Data: []byte("p"), Report: "n*"}); err != nil {
		t.Fatal(err)
	}
	if err := auth.SetPKCS12(&devcert.PKCS12Result{Data: []byte("q")}); !errors.Is(err, ErrArtifactWritten) {
		t.Errorf("second SetPKCS12 err = %v", err)
	}
	if got := string(auth.Artifacts().PrivateKey); got != "first" {
		t.Errorf("private key = %q", got)
	}
}

func TestAuthority_Mode(t *testing.T) {
	// WHY: The issuance path follows the artifacts present, with the CA
	// taking precedence over a CSR.
	t.Parallel()

	auth := NewAuthority(Config{})
	if auth.Mode() != devcert.ModeSelfSignedSubject {
		t.Errorf("empty: mode = %s", auth.Mode())
	}
	if err := auth.SetCSR([]byte("csr")); err != nil {
		t.Fatal(err)
	}
	if auth.Mode() != devcert.ModeSelfSignedCSR {
		t.Errorf("csr: mode = %s", auth.Mode())
	}
	if err := auth.SetCA([]byte("c"), []byte("k"), ""); err != nil {
		t.Fatal(err)
	}
	if auth.Mode() != devcert.ModeCASigned {
		t.Errorf("csr+ca: mode = %s", auth.Mode())
	}
}

func TestAuthority_IdentityLock(t *testing.T) {
	// WHY: Changing the subject after key material exists would produce a
	// certificate that disagrees with its CSR; only a full reset unlocks it.
	t.Parallel()

	initial := Config{Identity: Identity{CommonName: "a.test"}}
	auth := NewAuthority(initial)
	if err := auth.SetIdentity(Identity{CommonName: "b.test"}); err != nil {
		t.Fatalf("SetIdentity before issuance: %v", err)
	}
	if err := auth.SetPrivateKey([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := auth.SetIdentity(Identity{CommonName: "c.test"}); !errors.Is(err, ErrIdentityLocked) {
		t.Errorf("err = %v, want ErrIdentityLocked", err)
	}
	if got := auth.Config().Identity.CommonName; got != "b.test" {
		t.Errorf("common name = %q", got)
	}

	auth.Reset(true)
	if got := auth.Config().Identity.CommonName; got != "a.test" {
		t.Errorf("after Reset(true) common name = %q, want a.test", got)
	}
	if err := auth.SetIdentity(Identity{CommonName: "c.test"}); err != nil {
		t.Errorf("SetIdentity after Reset(true): %v", err)
	}
}

func TestAuthority_Reset(t *testing.T) {
	// WHY: A partial reset drops every per-run artifact, the certificate
	// included, but keeps the CA; a full reset forgets everything.
	t.Parallel()

	auth := NewAuthority(Config{Policy: Policy{KeyBits: 2048}})
	for _, set := range []func([]byte) error{auth.SetPrivateKey, auth.SetCSR, auth.SetPublicKey, auth.SetJKS, auth.SetP7B} {
		if err := set([]byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	if err := auth.SetCA([]byte("c"), []byte("k"), "ca.pem"); err != nil {
		t.Fatal(err)
	}
	if err := auth.SetCert(&devcert.IssueResult{CertPEM: []byte("cert"), Mode: devcert.ModeCASigned, Serial: big.NewInt(7)}); err != nil {
		t.Fatal(err)
	}

	auth.Reset(false)
	art := auth.Artifacts()
	if art.PrivateKey != nil || art.CSR != nil || art.PublicKey != nil || art.JKS != nil || art.P7B != nil {
		t.Errorf("per-key artifacts survived Reset(false): %+v", art)
	}
	if art.Cert != nil || art.Serial != nil || art.Mode != devcert.ModeSelfSignedSubject || !art.NotAfter.IsZero() {
		t.Errorf("certificate survived Reset(false): %+v", art)
	}
	if art.CACert == nil || art.CAKey == nil || art.CACertRef != "ca.pem" {
		t.Error("CA dropped by Reset(false)")
	}
	if auth.Mode() != devcert.ModeCASigned {
		t.Errorf("mode after Reset(false) = %s", auth.Mode())
	}
	if err := auth.SetPrivateKey([]byte("again")); err != nil {
		t.Errorf("SetPrivateKey after Reset(false): %v", err)
	}
	if err := auth.SetCert(&devcert.IssueResult{CertPEM: []byte("cert2")}); err != nil {
		t.Errorf("SetCert after Reset(false): %v", err)
	}

	auth.Reset(true)
	art = auth.Artifacts()
	if art.CACert != nil || art.Cert != nil || art.PrivateKey != nil {
		t.Errorf("artifacts survived Reset(true): %+v", art)
	}
}

func TestAuthority_RunAfterPartialReset(t *testing.T) {
	// WHY: After Reset(false) the same Authority must issue a second leaf
	// under the CA from the first run.
	t.Parallel()

	cfg, _ := resolveAnswers(t, testAnswers(t))
	auth := NewAuthority(cfg)
	ctx := context.Background()
	if err := Run(ctx, auth, Plan(OutputCA), Hooks{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := auth.Artifacts()

	auth.Reset(false)
	if err := Run(ctx, auth, Plan(0), Hooks{}); err != nil {
		t.Fatalf("run after Reset(false): %v", err)
	}
	second := auth.Artifacts()
	if second.Mode != devcert.ModeCASigned {
		t.Errorf("mode = %s, want CA-signed", second.Mode)
	}
	if string(second.CACert) != string(first.CACert) {
		t.Error("CA certificate changed across Reset(false)")
	}
	if second.Serial.Cmp(first.Serial) <= 0 {
		t.Errorf("serial %s not after %s", second.Serial, first.Serial)
	}
	leaf, err := devcert.ParsePEMCertificate(second.Cert)
	if err != nil {
		t.Fatal(err)
	}
	ca, err := devcert.ParsePEMCertificate(second.CACert)
	if err != nil {
		t.Fatal(err)
	}
	if err := leaf.CheckSignatureFrom(ca); err != nil {
		t.Errorf("second leaf not signed by the first run's CA: %v", err)
	}
}
