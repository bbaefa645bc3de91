package devcert

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"
)

// CAValidityBonus is added to the leaf validity for generated CA
// certificates so the CA outlives everything it signs.
const CAValidityBonus = 365

// IssueMode is the issuance path chosen for a leaf certificate.
type IssueMode int

const (
	// ModeSelfSignedSubject builds the certificate from subject fields and
	// signs it with its own key.
	ModeSelfSignedSubject IssueMode = iota
	// ModeSelfSignedCSR takes subject and public key from a CSR and signs
	// with the CSR's own key.
	ModeSelfSignedCSR
	// ModeCASigned signs the certificate with a previously issued CA key.
	ModeCASigned
)

func (m IssueMode) String() string {
	switch m {
	case ModeSelfSignedSubject:
		return "self-signed"
	case ModeSelfSignedCSR:
		return "self-signed-csr"
	case ModeCASigned:
		return "ca-signed"
	default:
		return fmt.Sprintf("IssueMode(%d)", int(m))
	}
}

// SelectMode picks the issuance path. CA material takes precedence over a
// CSR; with neither, the certificate is self-signed from the subject.
func SelectMode(hasCSR, hasCA bool) IssueMode {
	switch {
	case hasCA:
		return ModeCASigned
	case hasCSR:
		return ModeSelfSignedCSR
	default:
		return ModeSelfSignedSubject
	}
}

var lastSerial atomic.Int64

// NextSerial returns a time-derived serial number that is strictly greater
// than every serial previously returned in this process.
func NextSerial() *big.Int {
	for {
		prev := lastSerial.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if lastSerial.CompareAndSwap(prev, next) {
			return big.NewInt(next)
		}
	}
}

// CAInput holds the parameters for CreateCACertificate.
type CAInput struct {
	Subject Subject
	Bits    int
	Hash    Hash
	Days    int // leaf validity; the CA gets Days + CAValidityBonus
	Now     time.Time
}

// CAResult is a generated CA certificate and its unencrypted key.
type CAResult struct {
	CertPEM []byte
	KeyPEM  []byte
	Serial  *big.Int
}

// CreateCACertificate generates a fresh RSA key and a self-signed CA
// certificate for it.
func CreateCACertificate(in CAInput) (*CAResult, error) {
	key, err := rsa.GenerateKey(rand.Reader, in.Bits)
	if err != nil {
		return nil, newError(ErrKeyGeneration, "generating CA key", err)
	}
	ski, err := ComputeSKI(&key.PublicKey)
	if err != nil {
		return nil, newError(ErrIssuance, "computing CA subject key identifier", err)
	}

	now := issueTime(in.Now)
	serial := NextSerial()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               in.Subject.Name(),
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, in.Days+CAValidityBonus),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
		SubjectKeyId:          ski,
		SignatureAlgorithm:    in.Hash.SignatureAlgorithm(),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, newError(ErrIssuance, "creating CA certificate", err)
	}

	return &CAResult{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAKey, Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		Serial:  serial,
	}, nil
}

// IssueInput holds everything Issue may need. Which fields are read depends
// on Mode.
type IssueInput struct {
	Mode    IssueMode
	Subject Subject
	Hash    Hash
	Days    int
	Now     time.Time

	// KeyPEM is the leaf private key. When empty in the subject or CA modes
	// a fresh key of KeyBits is generated and returned in IssueResult.KeyPEM.
	KeyPEM     []byte
	Passphrase string
	KeyBits    int

	CSRPEM []byte

	CACertPEM []byte
	CAKeyPEM  []byte
	// CACertRef is the path of the CA certificate file, carried through as
	// the trust anchor reference for chain-aware consumers.
	CACertRef string
}

// IssueResult is an issued leaf certificate.
type IssueResult struct {
	Mode      IssueMode
	CertPEM   []byte
	KeyPEM    []byte // set only when Issue generated the key
	Serial    *big.Int
	NotAfter  time.Time
	ChainRefs []string
}

// Issue issues a leaf certificate along the path given by in.Mode.
func Issue(in IssueInput) (*IssueResult, error) {
	switch in.Mode {
	case ModeSelfSignedCSR:
		return issueFromCSR(in)
	case ModeSelfSignedSubject:
		return issueFromSubject(in)
	case ModeCASigned:
		return issueCASigned(in)
	default:
		return nil, errorf(ErrIssuance, "unknown issuance mode %d", int(in.Mode))
	}
}

func issueTime(now time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	return now.UTC().Truncate(time.Second)
}

// leafKey returns the leaf signing key, generating one when none is given.
func leafKey(in IssueInput) (key *rsa.PrivateKey, generated []byte, err error) {
	if len(in.KeyPEM) > 0 {
		key, err = UnlockPrivateKey(in.KeyPEM, in.Passphrase)
		return key, nil, err
	}
	key, err = rsa.GenerateKey(rand.Reader, in.KeyBits)
	if err != nil {
		return nil, nil, newError(ErrKeyGeneration, "generating certificate key", err)
	}
	generated = pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAKey, Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, generated, nil
}

func leafTemplate(subject pkix.Name, exts []pkix.Extension, in IssueInput) *x509.Certificate {
	now := issueTime(in.Now)
	return &x509.Certificate{
		SerialNumber:       NextSerial(),
		Subject:            subject,
		NotBefore:          now,
		NotAfter:           now.AddDate(0, 0, in.Days),
		KeyUsage:           x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		ExtraExtensions:    exts,
		SignatureAlgorithm: in.Hash.SignatureAlgorithm(),
	}
}

func signLeaf(template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer, mode IssueMode) (*IssueResult, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		return nil, newError(ErrIssuance, "creating certificate", err)
	}
	return &IssueResult{
		Mode:     mode,
		CertPEM:  pem.EncodeToMemory(&pem.Block{Type: pemTypeCertificate, Bytes: der}),
		Serial:   template.SerialNumber,
		NotAfter: template.NotAfter,
	}, nil
}

func issueFromCSR(in IssueInput) (*IssueResult, error) {
	csr, err := ParsePEMCertificateRequest(in.CSRPEM)
	if err != nil {
		return nil, newError(ErrIssuance, "reading CSR", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, newError(ErrIssuance, "verifying CSR signature", err)
	}
	key, err := UnlockPrivateKey(in.KeyPEM, in.Passphrase)
	if err != nil {
		return nil, err
	}
	if !publicKeysEqual(&key.PublicKey, csr.PublicKey) {
		return nil, errorf(ErrIssuance, "private key does not match the CSR public key")
	}

	var exts []pkix.Extension
	for _, ext := range csr.Extensions {
		if ext.Id.Equal(oidExtensionSubjectAltName) {
			exts = append(exts, ext)
		}
	}
	template := leafTemplate(csr.Subject, exts, in)
	// pkix.Name drops attributes it has no field for, such as emailAddress.
	template.RawSubject = csr.RawSubject
	return signLeaf(template, template, csr.PublicKey, key, ModeSelfSignedCSR)
}

func issueFromSubject(in IssueInput) (*IssueResult, error) {
	key, generated, err := leafKey(in)
	if err != nil {
		return nil, err
	}
	exts, err := sanExtension(in.Subject.AltNames)
	if err != nil {
		return nil, newError(ErrIssuance, "building certificate", err)
	}
	template := leafTemplate(in.Subject.Name(), exts, in)
	res, err := signLeaf(template, template, &key.PublicKey, key, ModeSelfSignedSubject)
	if err != nil {
		return nil, err
	}
	res.KeyPEM = generated
	return res, nil
}

func issueCASigned(in IssueInput) (*IssueResult, error) {
	caCert, err := ParsePEMCertificate(in.CACertPEM)
	if err != nil {
		return nil, newError(ErrIssuance, "reading CA certificate", err)
	}
	if !caCert.IsCA {
		return nil, errorf(ErrIssuance, "certificate %q is not a CA", caCert.Subject.CommonName)
	}
	caKey, err := UnlockPrivateKey(in.CAKeyPEM, "")
	if err != nil {
		return nil, newError(ErrIssuance, "reading CA key", err)
	}
	if !publicKeysEqual(&caKey.PublicKey, caCert.PublicKey) {
		return nil, errorf(ErrIssuance, "CA key does not match the CA certificate")
	}

	key, generated, err := leafKey(in)
	if err != nil {
		return nil, err
	}
	exts, err := sanExtension(in.Subject.AltNames)
	if err != nil {
		return nil, newError(ErrIssuance, "building certificate", err)
	}
	template := leafTemplate(in.Subject.Name(), exts, in)
	res, err := signLeaf(template, caCert, &key.PublicKey, caKey, ModeCASigned)
	if err != nil {
		return nil, err
	}

	// CreateCertificate has checked the signature; Certificate.CheckSignature
	// would refuse SHA-1, so only the issuer linkage is checked here.
	leaf, err := ParsePEMCertificate(res.CertPEM)
	if err != nil {
		return nil, newError(ErrIssuance, "reading issued certificate", err)
	}
	if !bytes.Equal(leaf.RawIssuer, caCert.RawSubject) || !bytes.Equal(leaf.AuthorityKeyId, caCert.SubjectKeyId) {
		return nil, errorf(ErrIssuance, "issued certificate does not chain to %q", caCert.Subject.CommonName)
	}

	res.KeyPEM = generated
	if in.CACertRef != "" {
		res.ChainRefs = []string{in.CACertRef}
	}
	return res, nil
}
