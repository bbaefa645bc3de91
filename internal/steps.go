package internal

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/sensiblebit/devcert"
)

// caSubject derives the CA's subject from the leaf identity. The CA carries
// no alternative names or email.
func caSubject(id Identity) devcert.Subject {
	s := id.Subject()
	s.CommonName = id.CommonName + " Development CA"
	s.AltNames = nil
	s.Email = ""
	return s
}

func createCA(_ context.Context, auth *Authority) error {
	cfg := auth.Config()
	res, err := devcert.CreateCACertificate(devcert.CAInput{
		Subject: caSubject(cfg.Identity),
		Bits:    cfg.Policy.KeyBits,
		Hash:    cfg.Policy.Hash,
		Days:    cfg.Policy.Days,
	})
	if err != nil {
		return err
	}
	ref := filepath.Join(cfg.OutDir, OutputFileName(cfg.BaseName, SuffixCACert))
	slog.Debug("created CA certificate", "serial", res.Serial, "ref", ref)
	return auth.SetCA(res.CertPEM, res.KeyPEM, ref)
}

func generateKey(_ context.Context, auth *Authority) error {
	p := auth.Config().Policy
	keyPEM, err := devcert.GeneratePrivateKey(devcert.KeyOptions{
		Bits:       p.KeyBits,
		Cipher:     p.Cipher,
		Passphrase: p.KeyPassphrase,
		Format:     p.KeyFormat,
	})
	if err != nil {
		return err
	}
	slog.Debug("generated private key", "bits", p.KeyBits, "format", p.KeyFormat, "encrypted", p.KeyPassphrase != "")
	return auth.SetPrivateKey(keyPEM)
}

func buildCSR(_ context.Context, auth *Authority) error {
	cfg := auth.Config()
	art := auth.Artifacts()
	csrPEM, err := devcert.BuildCSR(devcert.CSRInput{
		KeyPEM:     art.PrivateKey,
		Passphrase: cfg.Policy.KeyPassphrase,
		Subject:    cfg.Identity.Subject(),
		Hash:       cfg.Policy.Hash,
	})
	if err != nil {
		return err
	}
	return auth.SetCSR(csrPEM)
}

func issueCert(_ context.Context, auth *Authority) error {
	cfg := auth.Config()
	art := auth.Artifacts()
	mode := auth.Mode()
	res, err := devcert.Issue(devcert.IssueInput{
		Mode:       mode,
		Subject:    cfg.Identity.Subject(),
		Hash:       cfg.Policy.Hash,
		Days:       cfg.Policy.Days,
		KeyPEM:     art.PrivateKey,
		Passphrase: cfg.Policy.KeyPassphrase,
		KeyBits:    cfg.Policy.KeyBits,
		CSRPEM:     art.CSR,
		CACertPEM:  art.CACert,
		CAKeyPEM:   art.CAKey,
		CACertRef:  art.CACertRef,
	})
	if err != nil {
		return err
	}
	if res.KeyPEM != nil {
		if err := auth.SetPrivateKey(res.KeyPEM); err != nil {
			return err
		}
	}
	slog.Debug("issued certificate", "mode", res.Mode, "serial", res.Serial, "not_after", res.NotAfter)
	return auth.SetCert(res)
}

func extractPublicKey(_ context.Context, auth *Authority) error {
	cfg := auth.Config()
	art := auth.Artifacts()
	extract := devcert.ExtractPublicKey
	if cfg.Policy.PubFormat == PubFormatSSH {
		extract = devcert.ExtractAuthorizedKey
	}
	pub, err := extract(art.Cert)
	if err != nil {
		return err
	}
	return auth.SetPublicKey(pub)
}

// chainPEM is the certificate chain handed to containers: the CA
// certificate when one was issued in this run, nothing otherwise.
func chainPEM(art Artifacts) [][]byte {
	if art.CACert == nil {
		return nil
	}
	return [][]byte{art.CACert}
}

func bundlePKCS12(_ context.Context, auth *Authority) error {
	cfg := auth.Config()
	art := auth.Artifacts()
	res, err := devcert.BundlePKCS12(devcert.PKCS12Input{
		KeyPEM:        art.PrivateKey,
		KeyPassphrase: cfg.Policy.KeyPassphrase,
		CertPEM:       art.Cert,
		ChainPEM:      chainPEM(art),
		Password:      cfg.Policy.PKCS12Password,
		Legacy:        cfg.Policy.LegacyPKCS12,
	})
	if err != nil {
		return err
	}
	return auth.SetPKCS12(res)
}

// leafMaterial parses the certificate and chain for the containers that
// take parsed values.
func leafMaterial(art Artifacts) (*x509.Certificate, []*x509.Certificate, error) {
	leaf, err := devcert.ParsePEMCertificate(art.Cert)
	if err != nil {
		return nil, nil, fmt.Errorf("reading certificate: %w", err)
	}
	var chain []*x509.Certificate
	for _, p := range chainPEM(art) {
		ca, err := devcert.ParsePEMCertificate(p)
		if err != nil {
			return nil, nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		chain = append(chain, ca)
	}
	return leaf, chain, nil
}

func buildJKS(_ context.Context, auth *Authority) error {
	cfg := auth.Config()
	art := auth.Artifacts()
	key, err := devcert.UnlockPrivateKey(art.PrivateKey, cfg.Policy.KeyPassphrase)
	if err != nil {
		return err
	}
	leaf, chain, err := leafMaterial(art)
	if err != nil {
		return err
	}
	password := devcert.ResolvePKCS12Password(cfg.Policy.KeyPassphrase, cfg.Policy.PKCS12Password)
	data, err := devcert.EncodeJKS(key, leaf, chain, cfg.BaseName, password)
	if err != nil {
		return err
	}
	return auth.SetJKS(data)
}

func buildP7B(_ context.Context, auth *Authority) error {
	art := auth.Artifacts()
	leaf, chain, err := leafMaterial(art)
	if err != nil {
		return err
	}
	data, err := devcert.EncodePKCS7(append([]*x509.Certificate{leaf}, chain...))
	if err != nil {
		return err
	}
	return auth.SetP7B(data)
}
