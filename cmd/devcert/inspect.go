package main

import (
	"fmt"

	"github.com/sensiblebit/devcert/internal"
	"github.com/spf13/cobra"
)

var inspectFormat string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Display certificate, key, CSR or bundle information",
	Long:  "Show information about certificates, private keys, CSRs, PKCS#12, JKS and PKCS#7 bundles in a file.",
	Example: `  devcert inspect myapp.pem
  devcert inspect myapp.pfx -p secret
  devcert inspect myapp.pem --format openssl
  devcert inspect myapp.csr --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	enumFlag(inspectCmd.Flags(), &inspectFormat, "format", internal.FormatText, "Output format", internal.FormatText, internal.FormatJSON, internal.FormatOpenSSL)
	completeEnums(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	passwords, err := loadPasswords()
	if err != nil {
		return fmt.Errorf("loading passwords: %w", err)
	}

	results, err := internal.InspectFile(args[0], passwords)
	if err != nil {
		return err
	}

	output, err := internal.FormatInspectResults(results, inspectFormat)
	if err != nil {
		return err
	}

	fmt.Print(output)
	return nil
}
