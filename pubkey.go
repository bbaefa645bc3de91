package devcert

import (
	"golang.org/x/crypto/ssh"
)

// ExtractPublicKey returns the subject public key of a PEM certificate as a
// PKIX "PUBLIC KEY" PEM block.
func ExtractPublicKey(certPEM []byte) ([]byte, error) {
	cert, err := ParsePEMCertificate(certPEM)
	if err != nil {
		return nil, newError(ErrMalformedCertificate, "extracting public key", err)
	}
	pub, err := MarshalPublicKeyToPEM(cert.PublicKey)
	if err != nil {
		return nil, newError(ErrMalformedCertificate, "extracting public key", err)
	}
	return pub, nil
}

// ExtractAuthorizedKey returns the subject public key of a PEM certificate in
// OpenSSH authorized_keys form, newline-terminated.
func ExtractAuthorizedKey(certPEM []byte) ([]byte, error) {
	cert, err := ParsePEMCertificate(certPEM)
	if err != nil {
		return nil, newError(ErrMalformedCertificate, "extracting SSH public key", err)
	}
	sshPub, err := ssh.NewPublicKey(cert.PublicKey)
	if err != nil {
		return nil, newError(ErrMalformedCertificate, "extracting SSH public key", err)
	}
	return ssh.MarshalAuthorizedKey(sshPub), nil
}
