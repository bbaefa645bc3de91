package devcert

import "regexp"

// DefaultPKCS12Password protects a PKCS#12 bundle when neither a key
// passphrase nor a bundle password was given.
const DefaultPKCS12Password = "nopassword"

// ResolvePKCS12Password picks the bundle password: the key passphrase wins
// over the explicit bundle password, which wins over DefaultPKCS12Password.
func ResolvePKCS12Password(keyPassphrase, pkcs12Password string) string {
	switch {
	case keyPassphrase != "":
		return keyPassphrase
	case pkcs12Password != "":
		return pkcs12Password
	default:
		return DefaultPKCS12Password
	}
}

// wordTail matches every word character that is not the first of its run.
var wordTail = regexp.MustCompile(`\B\w`)

// RedactPassword masks a password for display. DefaultPKCS12Password is
// returned as is, since it tells the operator no real password was set.
func RedactPassword(password string) string {
	if password == DefaultPKCS12Password {
		return password
	}
	return wordTail.ReplaceAllString(password, "*")
}
