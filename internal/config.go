package internal

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sensiblebit/devcert"
	"gopkg.in/yaml.v3"
)

// CSR modes. In auto mode the subject comes from the environment defaults;
// custom mode takes the answers' subject fields, falling back to the
// defaults for any left blank.
const (
	CSRModeAuto   = "auto"
	CSRModeCustom = "custom"
)

// Public key formats.
const (
	PubFormatPEM = "pem"
	PubFormatSSH = "ssh"
)

// Answers is the structured configuration record collected from the user,
// either from a YAML answers file or from command line flags.
type Answers struct {
	EncryptKey       bool     `yaml:"encryptKey"`
	KeySize          int      `yaml:"keySize"`
	Cipher           string   `yaml:"cipher"`
	KeyPassword      string   `yaml:"keyPassword,omitempty"`
	KeyFormat        string   `yaml:"keyFormat,omitempty"`
	CSRMode          string   `yaml:"csrMode"`
	CommonName       string   `yaml:"commonName,omitempty"`
	Country          string   `yaml:"country,omitempty"`
	State            string   `yaml:"state,omitempty"`
	Locality         string   `yaml:"locality,omitempty"`
	Organization     string   `yaml:"organization,omitempty"`
	OrganizationUnit string   `yaml:"organizationUnit,omitempty"`
	AltNames         []string `yaml:"altNames,omitempty"`
	Email            string   `yaml:"email,omitempty"`
	HashAlgorithm    string   `yaml:"hashAlgorithm"`
	Outputs          []string `yaml:"outputs,omitempty"`
	BaseName         string   `yaml:"baseName,omitempty"`
	OutDir           string   `yaml:"outDir,omitempty"`
	Days             int      `yaml:"days"`
	PKCS12Password   string   `yaml:"pkcs12Password,omitempty"`
	PubFormat        string   `yaml:"pubFormat,omitempty"`
	LegacyPKCS12     bool     `yaml:"legacyPKCS12,omitempty"`
}

// Environment supplies the values subject defaults are derived from.
type Environment struct {
	Hostname string
	User     string
	WorkDir  string
}

// CurrentEnvironment reads the host name, the login user and the working
// directory. Lookups that fail leave the field empty.
func CurrentEnvironment() Environment {
	var env Environment
	env.Hostname, _ = os.Hostname()
	if u, err := user.Current(); err == nil {
		env.User = u.Username
	}
	if env.User == "" {
		env.User = os.Getenv("USER")
	}
	env.WorkDir, _ = os.Getwd()
	return env
}

// DefaultIdentity returns the subject used in auto mode and for blank fields
// in custom mode.
func DefaultIdentity(env Environment) Identity {
	name := filepath.Base(env.WorkDir)
	if env.WorkDir == "" || name == "/" || name == "." {
		name = "localhost"
	}
	return Identity{
		Country:            "US",
		State:              "Unknown",
		Locality:           "Unknown",
		Organization:       env.Hostname,
		OrganizationalUnit: env.User,
		CommonName:         name,
		AltNames:           []string{"localhost", "127.0.0.1"},
	}
}

// DefaultAnswers returns the answers used when nothing is configured.
func DefaultAnswers(env Environment) Answers {
	id := DefaultIdentity(env)
	return Answers{
		KeySize:       2048,
		Cipher:        string(devcert.CipherAES256),
		KeyFormat:     string(devcert.KeyFormatPKCS1),
		CSRMode:       CSRModeAuto,
		HashAlgorithm: string(devcert.HashSHA256),
		BaseName:      id.CommonName,
		Days:          3650,
		PubFormat:     PubFormatPEM,
	}
}

// LoadAnswers reads a YAML answers file over base. Keys absent from the file
// keep their value from base.
func LoadAnswers(path string, base Answers) (Answers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Answers{}, fmt.Errorf("reading answers file: %w", err)
	}
	answers := base
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return Answers{}, &devcert.Error{Op: "parsing answers file " + path, Kind: devcert.ErrConfiguration, Err: err}
	}
	return answers, nil
}

// Identity is the subject of the issued certificate.
type Identity struct {
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
	CommonName         string
	AltNames           []string
	Email              string
}

// Subject converts the identity for the devcert primitives.
func (id Identity) Subject() devcert.Subject {
	return devcert.Subject{
		Country:            id.Country,
		State:              id.State,
		Locality:           id.Locality,
		Organization:       id.Organization,
		OrganizationalUnit: id.OrganizationalUnit,
		CommonName:         id.CommonName,
		AltNames:           slices.Clone(id.AltNames),
		Email:              id.Email,
	}
}

// Policy holds the key, signature and container choices of a run.
type Policy struct {
	KeyBits        int
	Cipher         devcert.Cipher
	KeyPassphrase  string // empty when the key is not encrypted
	KeyFormat      devcert.KeyFormat
	Hash           devcert.Hash
	Days           int
	PKCS12Password string
	LegacyPKCS12   bool
	PubFormat      string
}

// Config is a fully resolved issuance configuration.
type Config struct {
	Identity Identity
	Policy   Policy
	BaseName string
	OutDir   string
}

// OutputSet is the set of optional outputs requested for a run. The private
// key and the certificate are always produced.
type OutputSet uint8

const (
	OutputCA OutputSet = 1 << iota
	OutputCSR
	OutputPubKey
	OutputPKCS12
	OutputJKS
	OutputP7B
)

type outputName struct {
	name string
	set  OutputSet
}

var outputNames = []outputName{
	{"ca", OutputCA},
	{"csr", OutputCSR},
	{"pubkey", OutputPubKey},
	{"pkcs12", OutputPKCS12},
	{"jks", OutputJKS},
	{"p7b", OutputP7B},
}

// OutputNames lists the accepted output names.
func OutputNames() []string {
	names := make([]string, len(outputNames))
	for i, o := range outputNames {
		names[i] = o.name
	}
	return names
}

// Has reports whether every output in o is in s.
func (s OutputSet) Has(o OutputSet) bool {
	return s&o == o
}

func (s OutputSet) String() string {
	var names []string
	for _, o := range outputNames {
		if s.Has(o.set) {
			names = append(names, o.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseOutputs parses output names. Names may also be comma-separated within
// one element.
func ParseOutputs(names []string) (OutputSet, error) {
	var set OutputSet
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			idx := slices.IndexFunc(outputNames, func(o outputName) bool { return o.name == name })
			if idx < 0 {
				return 0, fmt.Errorf("unknown output %q (want one of %s)", name, strings.Join(OutputNames(), ", "))
			}
			set |= outputNames[idx].set
		}
	}
	return set, nil
}

// Resolve validates answers and turns them into a Config and the requested
// outputs. Every error is devcert.ErrConfiguration and is reported before
// any key material exists.
func Resolve(a Answers, env Environment) (Config, OutputSet, error) {
	cfg, outputs, err := resolve(a, env)
	if err != nil {
		return Config{}, 0, &devcert.Error{Op: "resolving configuration", Kind: devcert.ErrConfiguration, Err: err}
	}
	return cfg, outputs, nil
}

func resolve(a Answers, env Environment) (Config, OutputSet, error) {
	var cfg Config

	if err := devcert.ValidateKeySize(a.KeySize); err != nil {
		return cfg, 0, err
	}
	cfg.Policy.KeyBits = a.KeySize

	format, err := devcert.ParseKeyFormat(a.KeyFormat)
	if err != nil {
		return cfg, 0, err
	}
	cfg.Policy.KeyFormat = format

	cipherName := a.Cipher
	if cipherName == "" {
		cipherName = string(devcert.CipherAES256)
	}
	cipher, err := devcert.ParseCipher(cipherName)
	if err != nil {
		return cfg, 0, err
	}
	cfg.Policy.Cipher = cipher
	if a.EncryptKey {
		if a.KeyPassword == "" {
			return cfg, 0, errors.New("key encryption requested without a key password")
		}
		cfg.Policy.KeyPassphrase = a.KeyPassword
	}

	hash, err := devcert.ParseHash(a.HashAlgorithm)
	if err != nil {
		return cfg, 0, err
	}
	if hash == devcert.HashMD5 {
		return cfg, 0, errors.New("md5 signatures cannot be produced; choose sha1 or sha256")
	}
	cfg.Policy.Hash = hash

	if a.Days <= 0 {
		return cfg, 0, fmt.Errorf("validity must be at least one day, got %d", a.Days)
	}
	cfg.Policy.Days = a.Days
	cfg.Policy.PKCS12Password = a.PKCS12Password
	cfg.Policy.LegacyPKCS12 = a.LegacyPKCS12

	switch pub := strings.ToLower(a.PubFormat); pub {
	case "", PubFormatPEM:
		cfg.Policy.PubFormat = PubFormatPEM
	case PubFormatSSH:
		cfg.Policy.PubFormat = PubFormatSSH
	default:
		return cfg, 0, fmt.Errorf("unsupported public key format %q (want pem or ssh)", a.PubFormat)
	}

	id, err := resolveIdentity(a, env)
	if err != nil {
		return cfg, 0, err
	}
	cfg.Identity = id

	cfg.BaseName = a.BaseName
	if cfg.BaseName == "" {
		cfg.BaseName = DefaultIdentity(env).CommonName
	}
	if strings.ContainsAny(cfg.BaseName, `/\`) || cfg.BaseName == "." || cfg.BaseName == ".." {
		return cfg, 0, fmt.Errorf("base name %q must be a plain file name", cfg.BaseName)
	}
	cfg.OutDir = a.OutDir
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}

	outputs, err := ParseOutputs(a.Outputs)
	if err != nil {
		return cfg, 0, err
	}
	return cfg, outputs, nil
}

func resolveIdentity(a Answers, env Environment) (Identity, error) {
	def := DefaultIdentity(env)
	switch strings.ToLower(a.CSRMode) {
	case "", CSRModeAuto:
		return def, nil
	case CSRModeCustom:
	default:
		return Identity{}, fmt.Errorf("unsupported csr mode %q (want auto or custom)", a.CSRMode)
	}

	id := Identity{
		Country:            orDefault(a.Country, def.Country),
		State:              orDefault(a.State, def.State),
		Locality:           orDefault(a.Locality, def.Locality),
		Organization:       orDefault(a.Organization, def.Organization),
		OrganizationalUnit: orDefault(a.OrganizationUnit, def.OrganizationalUnit),
		CommonName:         orDefault(a.CommonName, def.CommonName),
		AltNames:           devcert.ParseAltNames(strings.Join(a.AltNames, ",")),
		Email:              strings.TrimSpace(a.Email),
	}
	if len(id.AltNames) == 0 {
		id.AltNames = def.AltNames
	}
	if len(id.Country) != 2 {
		return Identity{}, fmt.Errorf("country %q must be a two-letter code", id.Country)
	}
	return id, nil
}

// orDefault returns the trimmed value, or def when it is blank.
func orDefault(value, def string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return def
}
