package devcert

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Hash names the digest used for CSR and certificate signatures.
type Hash string

const (
	HashMD5    Hash = "md5"
	HashSHA1   Hash = "sha1"
	HashSHA256 Hash = "sha256"
)

// Hashes returns the accepted digest names in display order.
func Hashes() []Hash {
	return []Hash{HashMD5, HashSHA1, HashSHA256}
}

// ParseHash parses a digest name case-insensitively.
func ParseHash(name string) (Hash, error) {
	switch h := Hash(strings.ToLower(strings.TrimSpace(name))); h {
	case HashMD5, HashSHA1, HashSHA256:
		return h, nil
	default:
		return "", errorf(ErrConfiguration, "unsupported hash algorithm %q (want md5, sha1 or sha256)", name)
	}
}

// SignatureAlgorithm maps the digest to the RSA signature algorithm. Note that
// crypto/x509 refuses to sign with MD5.
func (h Hash) SignatureAlgorithm() x509.SignatureAlgorithm {
	switch h {
	case HashMD5:
		return x509.MD5WithRSA
	case HashSHA1:
		return x509.SHA1WithRSA
	default:
		return x509.SHA256WithRSA
	}
}

var (
	oidExtensionSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidEmailAddress            = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}
)

// GeneralName tags (RFC 5280 section 4.2.1.6).
const (
	sanTagDNS = 2
	sanTagIP  = 7
)

// Subject is the identity written into CSRs and certificates.
type Subject struct {
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
	CommonName         string
	AltNames           []string // DNS names or IP literals, in order
	Email              string
}

// Name returns the subject as a pkix.Name. Empty fields are omitted and the
// email, when set, is added as the PKCS#9 emailAddress attribute.
func (s Subject) Name() pkix.Name {
	var name pkix.Name
	if s.Country != "" {
		name.Country = []string{s.Country}
	}
	if s.State != "" {
		name.Province = []string{s.State}
	}
	if s.Locality != "" {
		name.Locality = []string{s.Locality}
	}
	if s.Organization != "" {
		name.Organization = []string{s.Organization}
	}
	if s.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{s.OrganizationalUnit}
	}
	name.CommonName = s.CommonName
	if s.Email != "" {
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidEmailAddress,
			Value: s.Email,
		})
	}
	return name
}

// ParseAltNames splits a comma-separated list of alternative names. Entries
// are trimmed and empty entries dropped; order and duplicates are kept.
func ParseAltNames(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// marshalAltNames encodes names as a single subjectAltName extension, keeping
// the caller's order across DNS and IP entries.
func marshalAltNames(names []string) (pkix.Extension, error) {
	raw := make([]asn1.RawValue, 0, len(names))
	for _, n := range names {
		if ip := net.ParseIP(n); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				ip = v4
			}
			raw = append(raw, asn1.RawValue{Tag: sanTagIP, Class: asn1.ClassContextSpecific, Bytes: ip})
			continue
		}
		raw = append(raw, asn1.RawValue{Tag: sanTagDNS, Class: asn1.ClassContextSpecific, Bytes: []byte(n)})
	}
	value, err := asn1.Marshal(raw)
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("marshaling subjectAltName: %w", err)
	}
	return pkix.Extension{Id: oidExtensionSubjectAltName, Value: value}, nil
}

// AltNames returns the DNS and IP alternative names found in exts, in the
// order they were encoded.
func AltNames(exts []pkix.Extension) ([]string, error) {
	for _, ext := range exts {
		if !ext.Id.Equal(oidExtensionSubjectAltName) {
			continue
		}
		var raw []asn1.RawValue
		rest, err := asn1.Unmarshal(ext.Value, &raw)
		if err != nil {
			return nil, fmt.Errorf("parsing subjectAltName: %w", err)
		}
		if len(rest) > 0 {
			return nil, errors.New("trailing data after subjectAltName")
		}
		var names []string
		for _, v := range raw {
			switch v.Tag {
			case sanTagDNS:
				names = append(names, string(v.Bytes))
			case sanTagIP:
				names = append(names, net.IP(v.Bytes).String())
			}
		}
		return names, nil
	}
	return nil, nil
}

// sanExtension returns the subjectAltName extension for names, or nil when
// there are none.
func sanExtension(names []string) ([]pkix.Extension, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ext, err := marshalAltNames(names)
	if err != nil {
		return nil, err
	}
	return []pkix.Extension{ext}, nil
}

// CSRInput holds the parameters for BuildCSR.
type CSRInput struct {
	KeyPEM     []byte
	Passphrase string // required when KeyPEM is encrypted
	Subject    Subject
	Hash       Hash
}

// BuildCSR creates a PKCS#10 request for the subject, signed by the given
// key, and returns it PEM-encoded.
func BuildCSR(in CSRInput) ([]byte, error) {
	key, err := UnlockPrivateKey(in.KeyPEM, in.Passphrase)
	if err != nil {
		return nil, err
	}
	if len(in.Subject.AltNames) == 0 {
		return nil, errorf(ErrIssuance, "creating CSR: at least one alternative name is required")
	}

	exts, err := sanExtension(in.Subject.AltNames)
	if err != nil {
		return nil, newError(ErrIssuance, "creating CSR", err)
	}
	template := &x509.CertificateRequest{
		Subject:            in.Subject.Name(),
		SignatureAlgorithm: in.Hash.SignatureAlgorithm(),
		ExtraExtensions:    exts,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, newError(ErrIssuance, "creating CSR", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeCSR, Bytes: der}), nil
}
