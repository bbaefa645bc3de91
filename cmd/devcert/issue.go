package main

import (
	"fmt"
	"os"

	"github.com/sensiblebit/devcert"
	"github.com/sensiblebit/devcert/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var issueFlags struct {
	configPath         string
	encryptKey         bool
	keyPassword        string
	keyPasswordFile    string
	keySize            int
	cipher             string
	keyFormat          string
	csrMode            string
	commonName         string
	country            string
	state              string
	locality           string
	organization       string
	organizationUnit   string
	altNames           []string
	email              string
	hash               string
	outputs            []string
	baseName           string
	outDir             string
	days               int
	pkcs12Password     string
	pkcs12PasswordFile string
	pubFormat          string
	legacyPKCS12       bool
	force              bool
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Generate a key and certificate",
	Long: `Generate a private key and a certificate, plus any of a CA, CSR, public key,
PKCS#12, JKS and PKCS#7 bundle. With a CA the certificate is signed by it;
with a CSR it is self-signed from the CSR; otherwise it is self-signed from the
subject. Files are written as <base-name>.<suffix> only when every step succeeds.

Settings come from the defaults, then an optional YAML answers file (--config),
then flags.`,
	Example: `  devcert issue
  devcert issue --outputs ca,pkcs12 --cn myapp.test --alt-names myapp.test,127.0.0.1
  devcert issue --encrypt-key --key-password-file ./pass.txt --cipher aes256
  devcert issue --config answers.yaml -o ./certs`,
	Args: cobra.NoArgs,
	RunE: runIssue,
}

func init() {
	f := issueCmd.Flags()
	f.StringVarP(&issueFlags.configPath, "config", "c", "", "YAML answers file")
	f.BoolVar(&issueFlags.encryptKey, "encrypt-key", false, "Encrypt the private key")
	f.StringVar(&issueFlags.keyPassword, "key-password", "", "Private key passphrase (implies --encrypt-key)")
	f.StringVar(&issueFlags.keyPasswordFile, "key-password-file", "", "File whose first line is the private key passphrase")
	f.IntVarP(&issueFlags.keySize, "key-size", "b", 2048, "RSA key size: 1024, 2048 or 4096")
	enumFlag(f, &issueFlags.cipher, "cipher", string(devcert.CipherAES256), "Private key cipher", cipherNames()...)
	enumFlag(f, &issueFlags.keyFormat, "key-format", string(devcert.KeyFormatPKCS1), "Private key format", string(devcert.KeyFormatPKCS1), string(devcert.KeyFormatPKCS8))
	enumFlag(f, &issueFlags.csrMode, "csr-mode", internal.CSRModeAuto, "Subject source", internal.CSRModeAuto, internal.CSRModeCustom)
	f.StringVar(&issueFlags.commonName, "cn", "", "Common Name (default: current directory name)")
	f.StringVar(&issueFlags.country, "country", "", "Country code (default: US)")
	f.StringVar(&issueFlags.state, "state", "", "State or province")
	f.StringVar(&issueFlags.locality, "locality", "", "Locality")
	f.StringVar(&issueFlags.organization, "org", "", "Organization (default: host name)")
	f.StringVar(&issueFlags.organizationUnit, "ou", "", "Organizational unit (default: user name)")
	f.StringSliceVar(&issueFlags.altNames, "alt-names", nil, "Comma-separated DNS names and IPs (default: localhost,127.0.0.1)")
	f.StringVar(&issueFlags.email, "email", "", "Email address for the subject")
	enumFlag(f, &issueFlags.hash, "hash", string(devcert.HashSHA256), "Signature hash", string(devcert.HashSHA1), string(devcert.HashSHA256))
	f.StringSliceVarP(&issueFlags.outputs, "outputs", "O", nil, "Optional outputs: "+fmt.Sprint(internal.OutputNames()))
	f.StringVarP(&issueFlags.baseName, "base-name", "n", "", "Output file base name (default: current directory name)")
	f.StringVarP(&issueFlags.outDir, "out-dir", "o", ".", "Output directory")
	f.IntVar(&issueFlags.days, "days", 3650, "Certificate validity in days")
	f.StringVar(&issueFlags.pkcs12Password, "pkcs12-password", "", "PKCS#12 and JKS password when the key is not encrypted")
	f.StringVar(&issueFlags.pkcs12PasswordFile, "pkcs12-password-file", "", "File whose first line is the PKCS#12 password")
	enumFlag(f, &issueFlags.pubFormat, "pub-format", internal.PubFormatPEM, "Public key format", internal.PubFormatPEM, internal.PubFormatSSH)
	f.BoolVar(&issueFlags.legacyPKCS12, "legacy-pkcs12", false, "Encrypt PKCS#12 with RC2 for older consumers")
	f.BoolVarP(&issueFlags.force, "force", "f", false, "Overwrite existing files")

	completeEnums(issueCmd)
	completeFlag(issueCmd, "config", files("yaml", "yml"))
	completeFlag(issueCmd, "key-password-file", files())
	completeFlag(issueCmd, "pkcs12-password-file", files())
	completeFlag(issueCmd, "key-size", values("1024", "2048", "4096"))
	completeFlag(issueCmd, "outputs", values(internal.OutputNames()...))
	completeFlag(issueCmd, "out-dir", dirs)
}

func cipherNames() []string {
	var names []string
	for _, c := range devcert.Ciphers() {
		names = append(names, string(c))
	}
	return names
}

// subjectFlags select custom mode when set without an explicit --csr-mode.
var subjectFlags = []string{"cn", "country", "state", "locality", "org", "ou", "alt-names", "email"}

// buildAnswers layers the answers file and the flags that were set over the
// defaults.
func buildAnswers(fs *pflag.FlagSet, env internal.Environment) (internal.Answers, error) {
	answers := internal.DefaultAnswers(env)
	if issueFlags.configPath != "" {
		var err error
		answers, err = internal.LoadAnswers(issueFlags.configPath, answers)
		if err != nil {
			return answers, err
		}
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("encrypt-key", func() { answers.EncryptKey = issueFlags.encryptKey })
	set("key-password", func() { answers.KeyPassword = issueFlags.keyPassword })
	set("key-size", func() { answers.KeySize = issueFlags.keySize })
	set("cipher", func() { answers.Cipher = issueFlags.cipher })
	set("key-format", func() { answers.KeyFormat = issueFlags.keyFormat })
	set("csr-mode", func() { answers.CSRMode = issueFlags.csrMode })
	set("cn", func() { answers.CommonName = issueFlags.commonName })
	set("country", func() { answers.Country = issueFlags.country })
	set("state", func() { answers.State = issueFlags.state })
	set("locality", func() { answers.Locality = issueFlags.locality })
	set("org", func() { answers.Organization = issueFlags.organization })
	set("ou", func() { answers.OrganizationUnit = issueFlags.organizationUnit })
	set("alt-names", func() { answers.AltNames = issueFlags.altNames })
	set("email", func() { answers.Email = issueFlags.email })
	set("hash", func() { answers.HashAlgorithm = issueFlags.hash })
	set("outputs", func() { answers.Outputs = issueFlags.outputs })
	set("base-name", func() { answers.BaseName = issueFlags.baseName })
	set("out-dir", func() { answers.OutDir = issueFlags.outDir })
	set("days", func() { answers.Days = issueFlags.days })
	set("pkcs12-password", func() { answers.PKCS12Password = issueFlags.pkcs12Password })
	set("pub-format", func() { answers.PubFormat = issueFlags.pubFormat })
	set("legacy-pkcs12", func() { answers.LegacyPKCS12 = issueFlags.legacyPKCS12 })

	if issueFlags.keyPasswordFile != "" {
		pw, err := internal.ReadSecretFile(issueFlags.keyPasswordFile)
		if err != nil {
			return answers, fmt.Errorf("--key-password-file: %w", err)
		}
		answers.KeyPassword = pw
	}
	if issueFlags.pkcs12PasswordFile != "" {
		pw, err := internal.ReadSecretFile(issueFlags.pkcs12PasswordFile)
		if err != nil {
			return answers, fmt.Errorf("--pkcs12-password-file: %w", err)
		}
		answers.PKCS12Password = pw
	}
	if answers.KeyPassword != "" && !fs.Changed("encrypt-key") {
		answers.EncryptKey = true
	}

	if !fs.Changed("csr-mode") {
		for _, name := range subjectFlags {
			if fs.Changed(name) {
				answers.CSRMode = internal.CSRModeCustom
				break
			}
		}
	}
	return answers, nil
}

func runIssue(cmd *cobra.Command, args []string) error {
	env := internal.CurrentEnvironment()
	answers, err := buildAnswers(cmd.Flags(), env)
	if err != nil {
		return err
	}
	cfg, outputs, err := internal.Resolve(answers, env)
	if err != nil {
		return err
	}

	var ledger *internal.Ledger
	if dbPath != "" {
		ledger, err = internal.OpenLedger(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = ledger.Close() }()
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	progress := internal.NewProgress(os.Stderr)
	report, err := internal.RunIssuance(ctx, cfg, internal.IssueOptions{
		Outputs:   outputs,
		Overwrite: issueFlags.force,
		Ledger:    ledger,
		Hooks:     progress.Hooks(nil),
	})
	if err != nil {
		return err
	}

	art := report.Artifacts
	fmt.Fprintf(os.Stderr, "Certificate: %s (%s, serial %s)\n", cfg.Identity.CommonName, art.Mode, art.Serial)
	for _, path := range report.Files {
		fmt.Fprintf(os.Stderr, "  %s\n", path)
	}
	passwordReport := art.PKCS12Report
	if passwordReport == "" && art.JKS != nil {
		passwordReport = devcert.RedactPassword(devcert.ResolvePKCS12Password(cfg.Policy.KeyPassphrase, cfg.Policy.PKCS12Password))
	}
	if passwordReport != "" {
		fmt.Fprintf(os.Stderr, "Bundle password: %s\n", passwordReport)
	}
	return nil
}
