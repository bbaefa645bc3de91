package internal

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sensiblebit/devcert"
)

// VerifyInput holds the parsed certificate data and verification options.
type VerifyInput struct {
	Cert           *x509.Certificate
	Key            crypto.PrivateKey
	ExtraCerts     []*x509.Certificate
	CustomRoots    []*x509.Certificate
	CheckChain     bool
	ExpiryDuration time.Duration
	TrustStore     string
}

// ChainCert holds display information for one certificate in the chain.
type ChainCert struct {
	Subject string `json:"subject"`
	Expiry  string `json:"expiry"`
	SKI     string `json:"ski,omitempty"`
	IsRoot  bool   `json:"is_root,omitempty"`
}

// VerifyResult holds the results of certificate verification checks.
type VerifyResult struct {
	Subject     string      `json:"subject"`
	SANs        []string    `json:"sans,omitempty"`
	NotAfter    string      `json:"not_after"`
	SKI         string      `json:"ski,omitempty"`
	KeyMatch    *bool       `json:"key_match,omitempty"`
	KeyMatchErr string      `json:"key_match_error,omitempty"`
	KeyInfo     string      `json:"key_info,omitempty"`
	ChainValid  *bool       `json:"chain_valid,omitempty"`
	ChainErr    string      `json:"chain_error,omitempty"`
	Chain       []ChainCert `json:"chain,omitempty"`
	Expiry      *bool       `json:"expires_within,omitempty"`
	ExpiryInfo  string      `json:"expiry_info,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	Errors      []string    `json:"errors,omitempty"`
}

// VerifyCert verifies a certificate with optional key matching, chain
// validation, and expiry checking. Failed checks are reported in the
// result's Errors rather than returned.
func VerifyCert(input *VerifyInput) *VerifyResult {
	cert := input.Cert

	result := &VerifyResult{
		Subject:  cert.Subject.String(),
		SANs:     altNames(cert.Extensions),
		NotAfter: cert.NotAfter.UTC().Format(time.RFC3339),
		SKI:      devcert.CertSKIEmbedded(cert),
	}

	if input.Key != nil {
		match, err := devcert.KeyMatchesCert(input.Key, cert)
		if err != nil {
			result.KeyMatchErr = fmt.Sprintf("comparing key: %v", err)
			result.Errors = append(result.Errors, result.KeyMatchErr)
		} else {
			result.KeyMatch = &match
			result.KeyInfo = fmt.Sprintf("%s %s", devcert.KeyAlgorithmName(input.Key), privateKeySize(input.Key))
			if !match {
				result.Errors = append(result.Errors, "key does not match certificate")
			}
		}
	}

	if input.CheckChain {
		chain, err := devcert.VerifyChain(cert, devcert.ChainOptions{
			TrustStore:    input.TrustStore,
			Roots:         input.CustomRoots,
			Intermediates: input.ExtraCerts,
		})
		valid := err == nil
		result.ChainValid = &valid
		if err != nil {
			result.ChainErr = err.Error()
			result.Errors = append(result.Errors, fmt.Sprintf("chain validation: %s", err))
		} else {
			result.Chain = buildChainDisplay(chain.Chain)
			result.Warnings = append(result.Warnings, chain.Warnings...)
		}
	}

	if input.ExpiryDuration > 0 {
		expires := devcert.CertExpiresWithin(cert, input.ExpiryDuration)
		result.Expiry = &expires
		if expires {
			result.ExpiryInfo = fmt.Sprintf("certificate expires within %s (not after: %s)", input.ExpiryDuration, result.NotAfter)
			result.Errors = append(result.Errors, result.ExpiryInfo)
		} else {
			result.ExpiryInfo = fmt.Sprintf("certificate does not expire within %s", input.ExpiryDuration)
		}
	}

	return result
}

// buildChainDisplay creates the display chain, leaf first.
func buildChainDisplay(chain []*x509.Certificate) []ChainCert {
	display := make([]ChainCert, 0, len(chain))
	for i, c := range chain {
		display = append(display, ChainCert{
			Subject: c.Subject.String(),
			Expiry:  c.NotAfter.UTC().Format("2006-01-02"),
			SKI:     devcert.CertSKIEmbedded(c),
			IsRoot:  i > 0 && i == len(chain)-1,
		})
	}
	return display
}

// daysUntil returns the number of days from now until t, rounded down.
func daysUntil(t time.Time) int {
	return int(math.Floor(time.Until(t).Hours() / 24))
}

// FormatVerifyResult formats a verify result as human-readable text.
func FormatVerifyResult(r *VerifyResult) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 1, ' ', tabwriter.AlignRight)
	line := func(label, value string) {
		fmt.Fprintf(tw, "%s:\t %s\n", label, value)
	}

	line("Certificate", r.Subject)
	if len(r.SANs) > 0 {
		line("SANs", strings.Join(r.SANs, ", "))
	}
	if notAfter, err := time.Parse(time.RFC3339, r.NotAfter); err == nil {
		line("Not After", fmt.Sprintf("%s (%d days)", r.NotAfter, daysUntil(notAfter)))
	} else {
		line("Not After", r.NotAfter)
	}
	if r.SKI != "" {
		line("SKI", r.SKI)
	}
	switch {
	case r.KeyMatch == nil && r.KeyMatchErr != "":
		line("Key Match", "ERROR ("+r.KeyMatchErr+")")
	case r.KeyMatch == nil:
	case *r.KeyMatch:
		line("Key Match", "OK ("+r.KeyInfo+")")
	default:
		line("Key Match", "MISMATCH ("+r.KeyInfo+")")
	}
	if r.ChainValid != nil {
		status := "VALID"
		if !*r.ChainValid {
			status = "INVALID (" + r.ChainErr + ")"
		}
		line("Chain", status)
	}
	tw.Flush()

	if len(r.Chain) > 0 {
		sb.WriteString("\nChain:\n")
		for depth, c := range r.Chain {
			role := ""
			if c.IsRoot {
				role = " [root]"
			}
			fmt.Fprintf(&sb, "  [%d] %s, expires %s%s\n", depth, c.Subject, c.Expiry, role)
			if c.SKI != "" {
				fmt.Fprintf(&sb, "      SKI %s\n", c.SKI)
			}
		}
	}

	if r.Expiry != nil {
		fmt.Fprintf(&sb, "\nExpiry: %s\n", r.ExpiryInfo)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "warning: %s\n", w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&sb, "\nVerification FAILED (%d error(s))\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	} else {
		sb.WriteString("\nVerification OK\n")
	}
	return sb.String()
}
