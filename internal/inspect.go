package internal

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	ctx509 "github.com/google/certificate-transparency-go/x509"
	"github.com/google/certificate-transparency-go/x509util"
	"github.com/sensiblebit/devcert"
)

// Inspect output formats.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatOpenSSL = "openssl"
)

// InspectResult holds the inspection details for one object in a file.
type InspectResult struct {
	Type        string   `json:"type"`
	Subject     string   `json:"subject,omitempty"`
	Issuer      string   `json:"issuer,omitempty"`
	Serial      string   `json:"serial,omitempty"`
	NotBefore   string   `json:"not_before,omitempty"`
	NotAfter    string   `json:"not_after,omitempty"`
	CertType    string   `json:"cert_type,omitempty"`
	KeyAlgo     string   `json:"key_algorithm,omitempty"`
	KeySize     string   `json:"key_size,omitempty"`
	SANs        []string `json:"sans,omitempty"`
	SHA256      string   `json:"sha256_fingerprint,omitempty"`
	SKI         string   `json:"subject_key_id,omitempty"`
	AKI         string   `json:"authority_key_id,omitempty"`
	SigAlg      string   `json:"signature_algorithm,omitempty"`
	KeyType     string   `json:"key_type,omitempty"`
	CSRSubject  string   `json:"csr_subject,omitempty"`
	CSRAltNames []string `json:"csr_alt_names,omitempty"`

	der []byte // raw certificate, for the openssl format
}

// InspectFile reads a file and returns inspection results for all objects found.
func InspectFile(path string, passwords []string) ([]InspectResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var results []InspectResult
	if devcert.IsPEM(data) {
		results = inspectPEMData(data, passwords)
	} else {
		results = inspectDERData(data, passwords)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("no certificates, keys, or CSRs found in %s", path)
	}
	return results, nil
}

func inspectPEMData(data []byte, passwords []string) []InspectResult {
	var results []InspectResult

	if certs, err := devcert.ParsePEMCertificates(data); err == nil {
		for _, cert := range certs {
			results = append(results, inspectCert(cert))
		}
	}

	if csr, err := devcert.ParsePEMCertificateRequest(data); err == nil {
		results = append(results, inspectCSR(csr))
	}

	if key, err := devcert.ParsePEMPrivateKeyWithPasswords(data, passwords); err == nil {
		results = append(results, inspectKey(key))
	}

	return results
}

func inspectDERData(data []byte, passwords []string) []InspectResult {
	var results []InspectResult

	if certs, err := x509.ParseCertificates(data); err == nil && len(certs) > 0 {
		for _, cert := range certs {
			results = append(results, inspectCert(cert))
		}
		return results
	}

	if csr, err := x509.ParseCertificateRequest(data); err == nil {
		return append(results, inspectCSR(csr))
	}

	if key, err := x509.ParsePKCS8PrivateKey(data); err == nil {
		return append(results, inspectKey(key))
	}

	if certs, err := devcert.DecodePKCS7(data); err == nil {
		for _, cert := range certs {
			results = append(results, inspectCert(cert))
		}
		return results
	}

	// JKS magic bytes 0xFEEDFEED
	if len(data) >= 4 && data[0] == 0xFE && data[1] == 0xED && data[2] == 0xFE && data[3] == 0xED {
		if certs, keys, err := devcert.DecodeJKS(data, passwords); err == nil {
			for _, cert := range certs {
				results = append(results, inspectCert(cert))
			}
			for _, key := range keys {
				results = append(results, inspectKey(key))
			}
			return results
		}
	}

	// PKCS#12 as last resort
	for _, password := range passwords {
		privKey, leaf, caCerts, err := devcert.DecodePKCS12(data, password)
		if err != nil {
			continue
		}
		if leaf != nil {
			results = append(results, inspectCert(leaf))
		}
		for _, ca := range caCerts {
			results = append(results, inspectCert(ca))
		}
		if privKey != nil {
			results = append(results, inspectKey(privKey))
		}
		return results
	}

	return results
}

// altNames lists a certificate's or CSR's alternative names in encoded order.
func altNames(exts []pkix.Extension) []string {
	names, err := devcert.AltNames(exts)
	if err != nil {
		return nil
	}
	return names
}

func inspectCert(cert *x509.Certificate) InspectResult {
	return InspectResult{
		Type:      "certificate",
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		Serial:    cert.SerialNumber.String(),
		NotBefore: cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:  cert.NotAfter.UTC().Format(time.RFC3339),
		CertType:  devcert.GetCertificateType(cert),
		KeyAlgo:   devcert.PublicKeyAlgorithmName(cert.PublicKey),
		KeySize:   publicKeySize(cert.PublicKey),
		SANs:      altNames(cert.Extensions),
		SHA256:    devcert.CertFingerprintColonSHA256(cert),
		SKI:       devcert.CertSKIEmbedded(cert),
		AKI:       devcert.CertAKIEmbedded(cert),
		SigAlg:    cert.SignatureAlgorithm.String(),
		der:       cert.Raw,
	}
}

func inspectCSR(csr *x509.CertificateRequest) InspectResult {
	return InspectResult{
		Type:        "csr",
		CSRSubject:  csr.Subject.String(),
		KeyAlgo:     devcert.PublicKeyAlgorithmName(csr.PublicKey),
		KeySize:     publicKeySize(csr.PublicKey),
		SigAlg:      csr.SignatureAlgorithm.String(),
		CSRAltNames: altNames(csr.Extensions),
	}
}

func inspectKey(key any) InspectResult {
	r := InspectResult{
		Type:    "private_key",
		KeyType: devcert.KeyAlgorithmName(key),
		KeySize: privateKeySize(key),
	}
	if signer, ok := key.(crypto.Signer); ok {
		if ski, err := devcert.ComputeSKI(signer.Public()); err == nil {
			r.SKI = devcert.ColonHex(ski)
		}
	}
	return r
}

func publicKeySize(pub any) string {
	if k, ok := pub.(*rsa.PublicKey); ok {
		return fmt.Sprintf("%d", k.N.BitLen())
	}
	return "unknown"
}

func privateKeySize(key any) string {
	if k, ok := key.(*rsa.PrivateKey); ok {
		return fmt.Sprintf("%d", k.N.BitLen())
	}
	return "unknown"
}

// FormatInspectResults formats inspection results as text, JSON, or the
// OpenSSL-style certificate dump.
func FormatInspectResults(results []InspectResult, format string) (string, error) {
	switch format {
	case FormatText:
		return formatInspectText(results), nil
	case FormatJSON:
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshaling JSON: %w", err)
		}
		return string(data) + "\n", nil
	case FormatOpenSSL:
		return formatInspectOpenSSL(results)
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or openssl)", format)
	}
}

// formatInspectOpenSSL renders certificates the way `openssl x509 -text`
// does. Objects other than certificates fall back to the text format.
func formatInspectOpenSSL(results []InspectResult) (string, error) {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		if r.Type != "certificate" || r.der == nil {
			sb.WriteString(formatInspectText([]InspectResult{r}))
			continue
		}
		cert, err := ctx509.ParseCertificate(r.der)
		if err != nil && ctx509.IsFatal(err) {
			return "", fmt.Errorf("parsing certificate %s: %w", r.Subject, err)
		}
		sb.WriteString(x509util.CertificateToString(cert))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatInspectText(results []InspectResult) string {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "  %s:\t%s\n", label, value)
		}
	}
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		switch r.Type {
		case "certificate":
			fmt.Fprintln(tw, "Certificate:")
			field("Subject", r.Subject)
			field("SANs", strings.Join(r.SANs, ", "))
			field("Issuer", r.Issuer)
			field("Serial", r.Serial)
			field("Type", r.CertType)
			field("Not Before", r.NotBefore)
			field("Not After", r.NotAfter)
			field("Key", r.KeyAlgo+" "+r.KeySize)
			field("Signature", r.SigAlg)
			field("SHA-256", r.SHA256)
			field("SKI", r.SKI)
			field("AKI", r.AKI)
		case "csr":
			fmt.Fprintln(tw, "Certificate Signing Request:")
			field("Subject", r.CSRSubject)
			field("Alt Names", strings.Join(r.CSRAltNames, ", "))
			field("Key", r.KeyAlgo+" "+r.KeySize)
			field("Signature", r.SigAlg)
		case "private_key":
			fmt.Fprintln(tw, "Private Key:")
			field("Type", r.KeyType)
			field("Size", r.KeySize)
			field("SKI", r.SKI)
		}
	}
	tw.Flush()
	return sb.String()
}
