package devcert

import (
	"crypto/x509/pkix"
	"errors"
	"slices"
	"testing"
)

func TestBuildCSR_SubjectAndAltNames(t *testing.T) {
	// WHY: The request must carry every subject field and the alternative
	// names in the order given, with DNS and IP entries interleaved as the
	// user typed them.
	t.Parallel()

	subject := testSubject()
	subject.AltNames = []string{"127.0.0.1", "myapp.test", "::1", "localhost"}
	subject.Email = "dev@myapp.test"

	csrPEM, err := BuildCSR(CSRInput{KeyPEM: sharedKey(t), Subject: subject, Hash: HashSHA256})
	if err != nil {
		t.Fatalf("BuildCSR: %v", err)
	}
	csr, err := ParsePEMCertificateRequest(csrPEM)
	if err != nil {
		t.Fatalf("ParsePEMCertificateRequest: %v", err)
	}
	if err := csr.CheckSignature(); err != nil {
		t.Errorf("CSR signature: %v", err)
	}

	if csr.Subject.CommonName != "myapp.test" {
		t.Errorf("CN = %q", csr.Subject.CommonName)
	}
	if !slices.Equal(csr.Subject.Country, []string{"US"}) || !slices.Equal(csr.Subject.OrganizationalUnit, []string{"alice"}) {
		t.Errorf("subject = %v", csr.Subject)
	}

	got, err := AltNames(csr.Extensions)
	if err != nil {
		t.Fatalf("AltNames: %v", err)
	}
	if !slices.Equal(got, subject.AltNames) {
		t.Errorf("alt names = %v, want %v", got, subject.AltNames)
	}

	var email string
	for _, atv := range csr.Subject.Names {
		if atv.Type.Equal(oidEmailAddress) {
			email, _ = atv.Value.(string)
		}
	}
	if email != subject.Email {
		t.Errorf("emailAddress = %q, want %q", email, subject.Email)
	}
}

func TestBuildCSR_Errors(t *testing.T) {
	// WHY: A locked key and an empty alternative name list are distinct
	// failures the caller reports differently.
	t.Parallel()

	encrypted := newKey(t, KeyOptions{Cipher: CipherAES256, Passphrase: "sunshine"})
	noAlt := testSubject()
	noAlt.AltNames = nil

	tests := []struct {
		name    string
		in      CSRInput
		wantErr error
	}{
		{name: "encrypted_key_no_passphrase", in: CSRInput{KeyPEM: encrypted, Subject: testSubject(), Hash: HashSHA256}, wantErr: ErrKeyUnlock},
		{name: "encrypted_key_wrong_passphrase", in: CSRInput{KeyPEM: encrypted, Passphrase: "nope", Subject: testSubject(), Hash: HashSHA256}, wantErr: ErrKeyUnlock},
		{name: "no_alt_names", in: CSRInput{KeyPEM: sharedKey(t), Subject: noAlt, Hash: HashSHA256}, wantErr: ErrIssuance},
		{name: "md5", in: CSRInput{KeyPEM: sharedKey(t), Subject: testSubject(), Hash: HashMD5}, wantErr: ErrIssuance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := BuildCSR(tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildCSR_EncryptedKeyWithPassphrase(t *testing.T) {
	// WHY: An encrypted PKCS#8 key unlocks with its passphrase and signs.
	t.Parallel()

	keyPEM := newKey(t, KeyOptions{Format: KeyFormatPKCS8, Cipher: CipherAES128, Passphrase: "sunshine"})
	if _, err := BuildCSR(CSRInput{KeyPEM: keyPEM, Passphrase: "sunshine", Subject: testSubject(), Hash: HashSHA256}); err != nil {
		t.Fatalf("BuildCSR: %v", err)
	}
}

func TestParseAltNames(t *testing.T) {
	// WHY: Alternative names come in as one comma-separated string; blanks
	// are dropped but order and duplicates are the user's to keep.
	t.Parallel()

	tests := []struct {
		input string
		want  []string
	}{
		{input: "", want: nil},
		{input: " , ,", want: nil},
		{input: "localhost", want: []string{"localhost"}},
		{input: "localhost, 127.0.0.1 ,myapp.test", want: []string{"localhost", "127.0.0.1", "myapp.test"}},
		{input: "a.test,a.test", want: []string{"a.test", "a.test"}},
	}
	for _, tt := range tests {
		if got := ParseAltNames(tt.input); !slices.Equal(got, tt.want) {
			t.Errorf("ParseAltNames(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAltNames_NoExtension(t *testing.T) {
	// WHY: Certificates without a SAN extension report no names, not an error.
	t.Parallel()

	names, err := AltNames([]pkix.Extension{{Id: []int{2, 5, 29, 15}, Value: []byte{0x03, 0x02, 0x05, 0xa0}}})
	if err != nil || names != nil {
		t.Errorf("AltNames = %v, %v; want nil, nil", names, err)
	}
}

func TestParseHash(t *testing.T) {
	// WHY: Hash names are user input; anything outside the three names is a
	// configuration error.
	t.Parallel()

	for _, name := range []string{"md5", "SHA1", " sha256 "} {
		if _, err := ParseHash(name); err != nil {
			t.Errorf("ParseHash(%q): %v", name, err)
		}
	}
	if _, err := ParseHash("sha512"); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ParseHash(sha512) err = %v, want ErrConfiguration", err)
	}
}
