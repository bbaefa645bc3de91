package devcert

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // verifying, not producing, SHA-1 signatures
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/breml/rootcerts/embedded"
)

// Trust stores accepted by VerifyChain.
const (
	TrustStoreCustom  = "custom"
	TrustStoreSystem  = "system"
	TrustStoreMozilla = "mozilla"
)

// ChainOptions configures VerifyChain.
type ChainOptions struct {
	// TrustStore selects the root pool: "custom", "system" or "mozilla".
	TrustStore string
	// Roots are the trust anchors used when TrustStore is "custom", typically
	// the CA certificate issued alongside the leaf.
	Roots []*x509.Certificate
	// Intermediates are extra certificates considered while building chains.
	Intermediates []*x509.Certificate
	// ExpiryWindow triggers a warning for certificates expiring within it.
	// Zero selects 30 days.
	ExpiryWindow time.Duration
}

// ChainResult is a verified chain and its non-fatal findings.
type ChainResult struct {
	// Chain is the shortest verified chain, leaf first and root last.
	Chain    []*x509.Certificate
	Warnings []string
}

func rootPool(opts ChainOptions) (*x509.CertPool, error) {
	switch opts.TrustStore {
	case TrustStoreSystem:
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("loading system cert pool: %w", err)
		}
		return pool, nil
	case TrustStoreMozilla:
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			return nil, errors.New("parsing embedded Mozilla root certificates")
		}
		return pool, nil
	case TrustStoreCustom, "":
		if len(opts.Roots) == 0 {
			return nil, errors.New("custom trust store has no root certificates")
		}
		pool := x509.NewCertPool()
		for _, cert := range opts.Roots {
			pool.AddCert(cert)
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown trust store %q", opts.TrustStore)
	}
}

// VerifyChain verifies leaf against the selected trust store. Verification
// failures are ErrIssuance; deprecated signatures and near expiry are
// reported as warnings on a successful result.
func VerifyChain(leaf *x509.Certificate, opts ChainOptions) (*ChainResult, error) {
	roots, err := rootPool(opts)
	if err != nil {
		return nil, newError(ErrConfiguration, "building trust store", err)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range opts.Intermediates {
		intermediates.AddCert(cert)
	}

	chains, err := leaf.Verify(x509.VerifyOptions{
		Intermediates: intermediates,
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil && leaf.SignatureAlgorithm == x509.SHA1WithRSA {
		chains, err = verifySHA1Leaf(leaf, opts)
	}
	if err != nil {
		return nil, newError(ErrIssuance, "chain verification failed", err)
	}

	best := chains[0]
	for _, chain := range chains[1:] {
		if len(chain) < len(best) {
			best = chain
		}
	}

	window := opts.ExpiryWindow
	if window == 0 {
		window = 30 * 24 * time.Hour
	}
	result := &ChainResult{Chain: best}
	result.Warnings = append(result.Warnings, checkWeakSignatures(best)...)
	result.Warnings = append(result.Warnings, checkExpiryWarnings(best, window)...)
	return result, nil
}

// verifySHA1Leaf checks a SHA-1 signed leaf directly against the trust
// anchors, since crypto/x509 no longer verifies SHA-1 signatures. Only a
// leaf issued directly by a root is accepted.
func verifySHA1Leaf(leaf *x509.Certificate, opts ChainOptions) ([][]*x509.Certificate, error) {
	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return nil, fmt.Errorf("certificate %q is outside its validity period", leaf.Subject.CommonName)
	}
	digest := sha1.Sum(leaf.RawTBSCertificate)
	for _, root := range opts.Roots {
		if !bytes.Equal(leaf.RawIssuer, root.RawSubject) {
			continue
		}
		pub, ok := root.PublicKey.(*rsa.PublicKey)
		if !ok {
			continue
		}
		if rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], leaf.Signature) == nil {
			return [][]*x509.Certificate{{leaf, root}}, nil
		}
	}
	return nil, fmt.Errorf("no trusted root signed %q", leaf.Subject.CommonName)
}

// checkWeakSignatures returns a warning for each certificate signed with
// SHA-1 or MD5.
func checkWeakSignatures(chain []*x509.Certificate) []string {
	var warnings []string
	for _, cert := range chain {
		switch cert.SignatureAlgorithm {
		case x509.SHA1WithRSA, x509.MD5WithRSA:
			warnings = append(warnings, fmt.Sprintf("certificate %q uses deprecated signature algorithm %s", cert.Subject.CommonName, cert.SignatureAlgorithm))
		}
	}
	return warnings
}

// checkExpiryWarnings checks the chain for expired or soon-to-expire certificates.
func checkExpiryWarnings(chain []*x509.Certificate, window time.Duration) []string {
	var warnings []string
	now := time.Now()
	for _, cert := range chain {
		if now.After(cert.NotAfter) {
			warnings = append(warnings, fmt.Sprintf("certificate %q has expired (not after: %s)", cert.Subject.CommonName, cert.NotAfter.UTC().Format("2006-01-02")))
		} else if CertExpiresWithin(cert, window) {
			warnings = append(warnings, fmt.Sprintf("certificate %q expires within %s (not after: %s)", cert.Subject.CommonName, formatWindow(window), cert.NotAfter.UTC().Format("2006-01-02")))
		}
	}
	return warnings
}

func formatWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", int(d/(24*time.Hour)))
	}
	return d.String()
}
