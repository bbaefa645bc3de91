package devcert

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// DefaultJKSAlias is the entry alias used when the caller does not name one.
const DefaultJKSAlias = "server"

// DecodeJKS decodes a Java KeyStore (JKS) and returns the certificates and
// private keys it contains. Each password is tried for the store and then
// for the key entries (Java uses one password for both by convention).
//
// Individual entry errors are skipped; an error is returned only if the
// store cannot be loaded with any password or holds no usable entries.
func DecodeJKS(data []byte, passwords []string) ([]*x509.Certificate, []crypto.PrivateKey, error) {
	var ks keystore.KeyStore
	var loaded bool
	for _, password := range passwords {
		ks = keystore.New()
		if err := ks.Load(bytes.NewReader(data), []byte(password)); err == nil {
			loaded = true
			break
		}
	}
	if !loaded {
		return nil, nil, newError(ErrBundling, "loading JKS", errors.New("no password opened the keystore"))
	}

	var certs []*x509.Certificate
	var keys []crypto.PrivateKey

	for _, alias := range ks.Aliases() {
		if ks.IsTrustedCertificateEntry(alias) {
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				continue
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				continue
			}
			certs = append(certs, cert)
		}

		if ks.IsPrivateKeyEntry(alias) {
			for _, password := range passwords {
				entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
				if err != nil {
					continue
				}
				key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
				if err != nil {
					break
				}
				keys = append(keys, key)
				for _, certEntry := range entry.CertificateChain {
					cert, err := x509.ParseCertificate(certEntry.Content)
					if err != nil {
						continue
					}
					certs = append(certs, cert)
				}
				break
			}
		}
	}

	if len(certs) == 0 && len(keys) == 0 {
		return nil, nil, newError(ErrBundling, "loading JKS", errors.New("keystore contains no usable certificates or keys"))
	}
	return certs, keys, nil
}

// EncodeJKS creates a Java KeyStore holding one private key entry with its
// certificate chain (leaf first, then caCerts) under alias. The same password
// protects the store and the entry.
func EncodeJKS(privateKey crypto.PrivateKey, leaf *x509.Certificate, caCerts []*x509.Certificate, alias, password string) ([]byte, error) {
	if alias == "" {
		alias = DefaultJKSAlias
	}
	pkcs8Key, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, newError(ErrBundling, "marshaling private key to PKCS#8", err)
	}

	chain := []keystore.Certificate{
		{Type: "X.509", Content: leaf.Raw},
	}
	for _, ca := range caCerts {
		chain = append(chain, keystore.Certificate{
			Type:    "X.509",
			Content: ca.Raw,
		})
	}

	ks := keystore.New()
	if err := ks.SetPrivateKeyEntry(alias, keystore.PrivateKeyEntry{
		CreationTime:     time.Now(),
		PrivateKey:       pkcs8Key,
		CertificateChain: chain,
	}, []byte(password)); err != nil {
		return nil, newError(ErrBundling, fmt.Sprintf("setting JKS entry %q", alias), err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, newError(ErrBundling, "storing JKS", err)
	}
	return buf.Bytes(), nil
}
