package devcert

import (
	"errors"
	"fmt"
)

// Error kinds. Errors from key generation, issuance and bundling match one
// of these with errors.Is.
var (
	// ErrConfiguration is returned for an invalid key size, cipher, hash or
	// output choice. It is reported before any key material is generated.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrKeyGeneration is returned when the RSA primitive or the key
	// encryption primitive rejects its input.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrKeyUnlock is returned when an encrypted private key is used without
	// its passphrase, or with the wrong one.
	ErrKeyUnlock = errors.New("unlocking private key failed")

	// ErrIssuance is returned for subject, CSR or key mismatches and for any
	// signing failure.
	ErrIssuance = errors.New("certificate issuance failed")

	// ErrMalformedCertificate is returned when certificate bytes cannot be
	// parsed.
	ErrMalformedCertificate = errors.New("malformed certificate")

	// ErrBundling is returned when a PKCS#12, JKS or PKCS#7 container cannot
	// be assembled.
	ErrBundling = errors.New("bundling failed")
)

// Error wraps a failure with the operation that produced it and its kind.
type Error struct {
	Op   string // e.g. "generating RSA key"
	Kind error  // one of the Err* sentinels
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func errorf(kind error, format string, args ...any) *Error {
	return &Error{Op: fmt.Sprintf(format, args...), Kind: kind}
}
