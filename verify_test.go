package devcert

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"strings"
	"testing"
	"time"
)

// issueCASignedLeaf issues a leaf for days under ca.
func issueCASignedLeaf(t *testing.T, ca *CAResult, days int) *x509.Certificate {
	t.Helper()
	res, err := Issue(IssueInput{
		Mode: ModeCASigned, Subject: testSubject(), Hash: HashSHA256, Days: days,
		KeyPEM: sharedKey(t), CACertPEM: ca.CertPEM, CAKeyPEM: ca.KeyPEM,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return mustParseCert(t, res.CertPEM)
}

func TestVerifyChain_CustomRoot(t *testing.T) {
	// WHY: A leaf issued under the run's CA verifies against that CA alone,
	// and the reported chain runs leaf to root.
	t.Parallel()

	ca := newTestCA(t)
	leaf := issueCASignedLeaf(t, ca, 90)
	caCert := mustParseCert(t, ca.CertPEM)

	res, err := VerifyChain(leaf, ChainOptions{Roots: []*x509.Certificate{caCert}})
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if len(res.Chain) != 2 || !res.Chain[1].Equal(caCert) {
		t.Errorf("chain length = %d", len(res.Chain))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestVerifyChain_ExpiryWarning(t *testing.T) {
	// WHY: A certificate inside the expiry window still verifies but is
	// flagged so the operator can reissue in time.
	t.Parallel()

	ca := newTestCA(t)
	leaf := issueCASignedLeaf(t, ca, 10)
	caCert := mustParseCert(t, ca.CertPEM)

	res, err := VerifyChain(leaf, ChainOptions{
		TrustStore:   TrustStoreCustom,
		Roots:        []*x509.Certificate{caCert},
		ExpiryWindow: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "expires within 30 days") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestVerifyChain_Errors(t *testing.T) {
	// WHY: A bad trust store choice is a configuration problem; a chain that
	// does not verify is an issuance problem.
	t.Parallel()

	ca := newTestCA(t)
	other := newTestCA(t)
	leaf := issueCASignedLeaf(t, ca, 90)

	tests := []struct {
		name    string
		opts    ChainOptions
		wantErr error
	}{
		{name: "unknown_store", opts: ChainOptions{TrustStore: "windows"}, wantErr: ErrConfiguration},
		{name: "custom_without_roots", opts: ChainOptions{TrustStore: TrustStoreCustom}, wantErr: ErrConfiguration},
		{name: "wrong_root", opts: ChainOptions{Roots: []*x509.Certificate{mustParseCert(t, other.CertPEM)}}, wantErr: ErrIssuance},
		{name: "mozilla", opts: ChainOptions{TrustStore: TrustStoreMozilla}, wantErr: ErrIssuance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := VerifyChain(leaf, tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyChain_SHA1Leaf(t *testing.T) {
	// WHY: SHA-1 leaves are still issued on request; they must verify
	// against their CA with a deprecation warning rather than fail.
	t.Parallel()

	ca, err := CreateCACertificate(CAInput{Subject: Subject{CommonName: "sha1 CA"}, Bits: testKeyBits, Hash: HashSHA1, Days: 90})
	if err != nil {
		t.Fatalf("CreateCACertificate: %v", err)
	}
	res, err := Issue(IssueInput{
		Mode: ModeCASigned, Subject: testSubject(), Hash: HashSHA1, Days: 90,
		KeyPEM: sharedKey(t), CACertPEM: ca.CertPEM, CAKeyPEM: ca.KeyPEM,
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	leaf := mustParseCert(t, res.CertPEM)
	caCert := mustParseCert(t, ca.CertPEM)

	chain, err := VerifyChain(leaf, ChainOptions{Roots: []*x509.Certificate{caCert}})
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if len(chain.Chain) != 2 {
		t.Errorf("chain length = %d", len(chain.Chain))
	}
	if len(chain.Warnings) == 0 || !strings.Contains(chain.Warnings[0], "deprecated") {
		t.Errorf("warnings = %v", chain.Warnings)
	}

	other := mustParseCert(t, newTestCA(t).CertPEM)
	if _, err := VerifyChain(leaf, ChainOptions{Roots: []*x509.Certificate{other}}); !errors.Is(err, ErrIssuance) {
		t.Errorf("wrong root: err = %v, want ErrIssuance", err)
	}
}

func TestCheckWeakSignatures(t *testing.T) {
	// WHY: SHA-1 and MD5 signatures are accepted for development but must be
	// called out.
	t.Parallel()

	chain := []*x509.Certificate{
		{Subject: pkix.Name{CommonName: "a"}, SignatureAlgorithm: x509.SHA1WithRSA},
		{Subject: pkix.Name{CommonName: "b"}, SignatureAlgorithm: x509.SHA256WithRSA},
		{Subject: pkix.Name{CommonName: "c"}, SignatureAlgorithm: x509.MD5WithRSA},
	}
	warnings := checkWeakSignatures(chain)
	if len(warnings) != 2 || !strings.Contains(warnings[0], `"a"`) || !strings.Contains(warnings[1], `"c"`) {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestCheckExpiryWarnings_Expired(t *testing.T) {
	t.Parallel()

	chain := []*x509.Certificate{{Subject: pkix.Name{CommonName: "old"}, NotAfter: time.Now().Add(-time.Hour)}}
	warnings := checkExpiryWarnings(chain, time.Hour)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "has expired") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestFormatWindow(t *testing.T) {
	t.Parallel()

	if got := formatWindow(7 * 24 * time.Hour); got != "7 days" {
		t.Errorf("formatWindow(7d) = %q", got)
	}
	if got := formatWindow(90 * time.Minute); got != "1h30m0s" {
		t.Errorf("formatWindow(90m) = %q", got)
	}
}
