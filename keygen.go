package devcert

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"slices"
	"strings"

	"github.com/youmark/pkcs8"
)

// KeySizes lists the RSA key sizes accepted for generated keys.
var KeySizes = []int{1024, 2048, 4096}

// Cipher names a symmetric cipher used to encrypt a private key at rest.
type Cipher string

// Ciphers offered for private key encryption. Not every cipher is available
// in every key format; see GeneratePrivateKey.
const (
	CipherAES128      Cipher = "aes128"
	CipherAES192      Cipher = "aes192"
	CipherAES256      Cipher = "aes256"
	CipherCamellia128 Cipher = "camellia128"
	CipherCamellia192 Cipher = "camellia192"
	CipherCamellia256 Cipher = "camellia256"
	CipherDES         Cipher = "des"
	CipherDES3        Cipher = "des3"
	CipherIDEA        Cipher = "idea"
)

// Ciphers returns every accepted cipher name in display order.
func Ciphers() []Cipher {
	return []Cipher{
		CipherAES128, CipherAES192, CipherAES256,
		CipherCamellia128, CipherCamellia192, CipherCamellia256,
		CipherDES, CipherDES3, CipherIDEA,
	}
}

// KeyFormat selects the PEM encoding of a generated private key.
type KeyFormat string

const (
	// KeyFormatPKCS1 writes "RSA PRIVATE KEY" blocks, encrypted with RFC 1423
	// DEK-Info headers as `openssl genrsa -aes256` does.
	KeyFormatPKCS1 KeyFormat = "pkcs1"
	// KeyFormatPKCS8 writes "PRIVATE KEY" or PBES2 "ENCRYPTED PRIVATE KEY"
	// blocks.
	KeyFormatPKCS8 KeyFormat = "pkcs8"
)

// ValidateKeySize reports whether bits is one of KeySizes.
func ValidateKeySize(bits int) error {
	if !slices.Contains(KeySizes, bits) {
		return errorf(ErrConfiguration, "unsupported key size %d (want one of 1024, 2048, 4096)", bits)
	}
	return nil
}

// ParseCipher parses a cipher name case-insensitively.
func ParseCipher(name string) (Cipher, error) {
	c := Cipher(strings.ToLower(strings.TrimSpace(name)))
	if !slices.Contains(Ciphers(), c) {
		return "", errorf(ErrConfiguration, "unsupported cipher %q", name)
	}
	return c, nil
}

// ParseKeyFormat parses a key format name. The empty string selects PKCS#1.
func ParseKeyFormat(name string) (KeyFormat, error) {
	switch KeyFormat(strings.ToLower(name)) {
	case "", KeyFormatPKCS1:
		return KeyFormatPKCS1, nil
	case KeyFormatPKCS8:
		return KeyFormatPKCS8, nil
	default:
		return "", errorf(ErrConfiguration, "unsupported key format %q (want pkcs1 or pkcs8)", name)
	}
}

var pemCiphers = map[Cipher]x509.PEMCipher{
	CipherAES128: x509.PEMCipherAES128,
	CipherAES192: x509.PEMCipherAES192,
	CipherAES256: x509.PEMCipherAES256,
	CipherDES:    x509.PEMCipherDES,
	CipherDES3:   x509.PEMCipher3DES,
}

var pkcs8Ciphers = map[Cipher]pkcs8.Cipher{
	CipherAES128: pkcs8.AES128CBC,
	CipherAES192: pkcs8.AES192CBC,
	CipherAES256: pkcs8.AES256CBC,
	CipherDES3:   pkcs8.TripleDESCBC,
}

// KeyOptions configures GeneratePrivateKey.
type KeyOptions struct {
	Bits       int
	Cipher     Cipher
	Passphrase string // empty leaves the key unencrypted and Cipher unused
	Format     KeyFormat
}

// GeneratePrivateKey generates an RSA key and returns it PEM-encoded,
// encrypted with opts.Cipher when opts.Passphrase is set. Camellia and IDEA
// have no Go implementation and are reported as ErrKeyGeneration, as is DES
// for PKCS#8 (PBES2 has no single-DES scheme).
func GeneratePrivateKey(opts KeyOptions) ([]byte, error) {
	if opts.Bits <= 0 {
		return nil, errorf(ErrKeyGeneration, "generating RSA key: invalid bit size %d", opts.Bits)
	}
	format, err := ParseKeyFormat(string(opts.Format))
	if err != nil {
		return nil, newError(ErrKeyGeneration, "generating RSA key", err)
	}
	// Reject the cipher before spending time on the key.
	if opts.Passphrase != "" {
		if err := checkCipher(format, opts.Cipher); err != nil {
			return nil, err
		}
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.Bits)
	if err != nil {
		return nil, newError(ErrKeyGeneration, "generating RSA key", err)
	}
	return EncodePrivateKey(key, opts.Passphrase, opts.Cipher, format)
}

func checkCipher(format KeyFormat, c Cipher) error {
	var ok bool
	switch format {
	case KeyFormatPKCS8:
		_, ok = pkcs8Ciphers[c]
	default:
		_, ok = pemCiphers[c]
	}
	if !ok {
		return errorf(ErrKeyGeneration, "encrypting private key: cipher %q is not available for %s keys", c, format)
	}
	return nil
}

// EncodePrivateKey PEM-encodes an RSA key in the given format, encrypting it
// when passphrase is non-empty.
func EncodePrivateKey(key *rsa.PrivateKey, passphrase string, c Cipher, format KeyFormat) ([]byte, error) {
	if passphrase != "" {
		if err := checkCipher(format, c); err != nil {
			return nil, err
		}
	}

	switch format {
	case KeyFormatPKCS8:
		if passphrase == "" {
			der, err := x509.MarshalPKCS8PrivateKey(key)
			if err != nil {
				return nil, newError(ErrKeyGeneration, "marshaling private key to PKCS#8", err)
			}
			return pem.EncodeToMemory(&pem.Block{Type: pemTypePKCS8Key, Bytes: der}), nil
		}
		der, err := pkcs8.MarshalPrivateKey(key, []byte(passphrase), &pkcs8.Opts{
			Cipher: pkcs8Ciphers[c],
			KDFOpts: pkcs8.PBKDF2Opts{
				SaltSize:       16,
				IterationCount: 10000,
				HMACHash:       crypto.SHA256,
			},
		})
		if err != nil {
			return nil, newError(ErrKeyGeneration, "encrypting private key", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: pemTypeEncPKCS8Key, Bytes: der}), nil
	default:
		der := x509.MarshalPKCS1PrivateKey(key)
		if passphrase == "" {
			return pem.EncodeToMemory(&pem.Block{Type: pemTypeRSAKey, Bytes: der}), nil
		}
		//nolint:staticcheck // RFC 1423 is what openssl genrsa -<cipher> writes
		block, err := x509.EncryptPEMBlock(rand.Reader, pemTypeRSAKey, der, []byte(passphrase), pemCiphers[c])
		if err != nil {
			return nil, newError(ErrKeyGeneration, "encrypting private key", err)
		}
		return pem.EncodeToMemory(block), nil
	}
}

// IsEncryptedKey reports whether keyPEM holds an encrypted private key.
func IsEncryptedKey(keyPEM []byte) bool {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return false
	}
	//nolint:staticcheck // legacy RFC 1423 detection
	return block.Type == pemTypeEncPKCS8Key || x509.IsEncryptedPEMBlock(block)
}

// UnlockPrivateKey parses an RSA private key in either format, decrypting it
// with passphrase when it is encrypted. An encrypted key with an empty or
// wrong passphrase yields ErrKeyUnlock.
func UnlockPrivateKey(keyPEM []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errorf(ErrKeyUnlock, "no PEM block found in private key data")
	}

	if IsEncryptedKey(keyPEM) && passphrase == "" {
		return nil, errorf(ErrKeyUnlock, "private key is encrypted and no passphrase was supplied")
	}

	var key any
	var err error
	switch {
	case block.Type == pemTypeEncPKCS8Key:
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, newError(ErrKeyUnlock, "decrypting PKCS#8 private key", err)
		}
	//nolint:staticcheck // legacy RFC 1423 decryption
	case x509.IsEncryptedPEMBlock(block):
		//nolint:staticcheck // legacy RFC 1423 decryption
		der, derr := x509.DecryptPEMBlock(block, []byte(passphrase))
		if derr != nil {
			return nil, newError(ErrKeyUnlock, "decrypting private key", derr)
		}
		key, err = x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			// A wrong passphrase can pass the padding check and still
			// produce garbage.
			return nil, newError(ErrKeyUnlock, "decrypting private key", err)
		}
	default:
		key, err = ParsePEMPrivateKey(keyPEM)
		if err != nil {
			return nil, newError(ErrKeyUnlock, "parsing private key", err)
		}
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errorf(ErrKeyUnlock, "private key is %T, want RSA", key)
	}
	return rsaKey, nil
}
