package main

import (
	"crypto"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sensiblebit/devcert"
	"github.com/sensiblebit/devcert/internal"
	"github.com/spf13/cobra"
)

var (
	verifyKeyPath    string
	verifyCAPath     string
	verifyExpiry     string
	verifyTrustStore string
	verifyFormat     string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <cert>",
	Short: "Verify certificate chain, key match, or expiry",
	Long: `Verify an issued certificate: that it chains to its CA (--ca) or to a trust
store, that a private key matches it, and that it does not expire within a window.`,
	Example: `  devcert verify myapp.pem --ca myapp.ca.pem --key myapp.key
  devcert verify myapp.pem --trust-store mozilla
  devcert verify myapp.pem --expiry 30d`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyKeyPath, "key", "", "Private key file to check against the certificate")
	verifyCmd.Flags().StringVar(&verifyCAPath, "ca", "", "CA certificate to verify the chain against")
	verifyCmd.Flags().StringVarP(&verifyExpiry, "expiry", "e", "", "Check if cert expires within duration (e.g., 30d, 720h)")
	enumFlag(verifyCmd.Flags(), &verifyTrustStore, "trust-store", "", "Trust store when --ca is not given", devcert.TrustStoreSystem, devcert.TrustStoreMozilla)
	enumFlag(verifyCmd.Flags(), &verifyFormat, "format", internal.FormatText, "Output format", internal.FormatText, internal.FormatJSON)

	completeEnums(verifyCmd)
	completeFlag(verifyCmd, "key", files("key", "pem"))
	completeFlag(verifyCmd, "ca", files("pem", "crt"))
}

// parseDuration extends time.ParseDuration to support a "d" suffix for days.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func readCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	certs, err := devcert.ParsePEMCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return certs, nil
}

func readPrivateKey(path string, passwords []string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	key, err := devcert.ParsePEMPrivateKeyWithPasswords(data, passwords)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return key, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	var expiryDuration time.Duration
	if verifyExpiry != "" {
		var err error
		expiryDuration, err = parseDuration(verifyExpiry)
		if err != nil {
			return fmt.Errorf("invalid --expiry value: %w", err)
		}
	}

	certs, err := readCertificates(args[0])
	if err != nil {
		return err
	}
	input := &internal.VerifyInput{
		Cert:           certs[0],
		ExtraCerts:     certs[1:],
		ExpiryDuration: expiryDuration,
	}

	if verifyKeyPath != "" {
		passwords, err := loadPasswords()
		if err != nil {
			return fmt.Errorf("loading passwords: %w", err)
		}
		if input.Key, err = readPrivateKey(verifyKeyPath, passwords); err != nil {
			return err
		}
	}

	switch {
	case verifyCAPath != "":
		roots, err := readCertificates(verifyCAPath)
		if err != nil {
			return err
		}
		input.CheckChain = true
		input.TrustStore = devcert.TrustStoreCustom
		input.CustomRoots = roots
	case verifyTrustStore != "":
		input.CheckChain = true
		input.TrustStore = verifyTrustStore
	}

	result := internal.VerifyCert(input)

	if verifyFormat == internal.FormatJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(internal.FormatVerifyResult(result))
	}

	if len(result.Errors) > 0 {
		return errors.New("verification failed")
	}
	return nil
}
