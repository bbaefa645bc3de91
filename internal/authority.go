package internal

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/sensiblebit/devcert"
)

var (
	// ErrArtifactWritten is returned when a step tries to set an artifact
	// that an earlier step of the same run already produced.
	ErrArtifactWritten = errors.New("artifact already written in this run")

	// ErrIdentityLocked is returned by SetIdentity once any artifact exists.
	ErrIdentityLocked = errors.New("identity cannot change once issuance has begun")
)

// Artifacts holds everything a run has produced so far. A nil slice means the
// artifact has not been produced.
type Artifacts struct {
	PrivateKey []byte
	CSR        []byte
	CACert     []byte
	CAKey      []byte
	// CACertRef is where the CA certificate will be written. Chain-aware
	// consumers take it as the trust anchor input.
	CACertRef    string
	Cert         []byte
	PublicKey    []byte
	PKCS12       []byte
	PKCS12Report string // redacted bundle password
	JKS          []byte
	P7B          []byte

	Mode     devcert.IssueMode
	Serial   *big.Int
	NotAfter time.Time
}

// Authority accumulates the artifacts of one issuance run. It is owned by a
// single pipeline run and is not safe for concurrent use.
type Authority struct {
	initial Config
	cfg     Config
	art     Artifacts
}

// NewAuthority returns an Authority for cfg with no artifacts.
func NewAuthority(cfg Config) *Authority {
	return &Authority{initial: cloneConfig(cfg), cfg: cloneConfig(cfg)}
}

func cloneConfig(cfg Config) Config {
	cfg.Identity.AltNames = slices.Clone(cfg.Identity.AltNames)
	return cfg
}

// Config returns the current configuration.
func (a *Authority) Config() Config {
	return cloneConfig(a.cfg)
}

// Artifacts returns a snapshot of the artifacts produced so far.
func (a *Authority) Artifacts() Artifacts {
	return a.art
}

// began reports whether any artifact has been produced.
func (a *Authority) began() bool {
	art := a.art
	return art.PrivateKey != nil || art.CSR != nil || art.CACert != nil || art.CAKey != nil ||
		art.Cert != nil || art.PublicKey != nil || art.PKCS12 != nil || art.JKS != nil || art.P7B != nil
}

// SetIdentity replaces the subject. It fails with ErrIdentityLocked once
// issuance has begun; Reset(true) unlocks it again.
func (a *Authority) SetIdentity(id Identity) error {
	if a.began() {
		return ErrIdentityLocked
	}
	id.AltNames = slices.Clone(id.AltNames)
	a.cfg.Identity = id
	return nil
}

// Mode is the issuance path the current artifacts select.
func (a *Authority) Mode() devcert.IssueMode {
	hasCA := a.art.CACert != nil && a.art.CAKey != nil
	return devcert.SelectMode(a.art.CSR != nil, hasCA)
}

// Reset clears per-run state. Reset(false) restores the construction-time
// policy and drops the private key, CSR, certificate, public key and
// containers; the identity and CA material survive. Reset(true) also
// restores the identity and drops the CA material.
func (a *Authority) Reset(all bool) {
	a.cfg.Policy = a.initial.Policy
	a.art.PrivateKey = nil
	a.art.CSR = nil
	a.art.PublicKey = nil
	a.art.PKCS12 = nil
	a.art.PKCS12Report = ""
	a.art.JKS = nil
	a.art.P7B = nil
	a.art.Cert = nil
	a.art.Mode = 0
	a.art.Serial = nil
	a.art.NotAfter = time.Time{}
	if !all {
		return
	}
	a.cfg = cloneConfig(a.initial)
	a.art = Artifacts{}
}

func setOnce(dst *[]byte, name string, v []byte) error {
	if *dst != nil {
		return fmt.Errorf("setting %s: %w", name, ErrArtifactWritten)
	}
	if v == nil {
		v = []byte{}
	}
	*dst = v
	return nil
}

// SetPrivateKey records the private key PEM.
func (a *Authority) SetPrivateKey(keyPEM []byte) error {
	return setOnce(&a.art.PrivateKey, "private key", keyPEM)
}

// SetCSR records the CSR PEM.
func (a *Authority) SetCSR(csrPEM []byte) error {
	return setOnce(&a.art.CSR, "CSR", csrPEM)
}

// SetCA records the CA certificate, its key and the path the certificate
// will be written to.
func (a *Authority) SetCA(certPEM, keyPEM []byte, ref string) error {
	if a.art.CACert != nil || a.art.CAKey != nil {
		return fmt.Errorf("setting CA: %w", ErrArtifactWritten)
	}
	a.art.CACert = certPEM
	a.art.CAKey = keyPEM
	a.art.CACertRef = ref
	return nil
}

// SetCert records an issued leaf certificate.
func (a *Authority) SetCert(res *devcert.IssueResult) error {
	if err := setOnce(&a.art.Cert, "certificate", res.CertPEM); err != nil {
		return err
	}
	a.art.Mode = res.Mode
	a.art.Serial = res.Serial
	a.art.NotAfter = res.NotAfter
	return nil
}

// SetPublicKey records the extracted public key.
func (a *Authority) SetPublicKey(pub []byte) error {
	return setOnce(&a.art.PublicKey, "public key", pub)
}

// SetPKCS12 records the PKCS#12 bundle and its redacted password.
func (a *Authority) SetPKCS12(res *devcert.PKCS12Result) error {
	if err := setOnce(&a.art.PKCS12, "PKCS#12 bundle", res.Data); err != nil {
		return err
	}
	a.art.PKCS12Report = res.Report
	return nil
}

// SetJKS records the Java keystore.
func (a *Authority) SetJKS(data []byte) error {
	return setOnce(&a.art.JKS, "JKS keystore", data)
}

// SetP7B records the PKCS#7 chain.
func (a *Authority) SetP7B(data []byte) error {
	return setOnce(&a.art.P7B, "PKCS#7 bundle", data)
}
